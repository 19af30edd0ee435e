package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	redis "github.com/redis/go-redis/v9"
	accountdomain "github.com/smallbiznis/finora/internal/account/domain"
	"github.com/smallbiznis/finora/internal/cache"
	"github.com/smallbiznis/finora/internal/clock"
	"github.com/smallbiznis/finora/internal/config"
	"github.com/smallbiznis/finora/internal/migration"
	paymentdomain "github.com/smallbiznis/finora/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/finora/internal/payment/repository"
	"github.com/smallbiznis/finora/internal/ratelimit"
	subscriptiondomain "github.com/smallbiznis/finora/internal/subscription/domain"
	"github.com/smallbiznis/finora/internal/subscription/repository"
	"github.com/smallbiznis/finora/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) Provider() string { return "stripe" }

func (m *mockGateway) EnsureCustomer(ctx context.Context, req paymentdomain.CustomerRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockGateway) StartPaidSubscription(ctx context.Context, req paymentdomain.CheckoutRequest) (paymentdomain.CheckoutSession, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(paymentdomain.CheckoutSession), args.Error(1)
}

func (m *mockGateway) ChangeSubscriptionItem(ctx context.Context, subscriptionID, newPriceRef string) error {
	return m.Called(ctx, subscriptionID, newPriceRef).Error(0)
}

func (m *mockGateway) CancelSubscription(ctx context.Context, subscriptionID string) error {
	return m.Called(ctx, subscriptionID).Error(0)
}

func (m *mockGateway) ResolvePlanName(ctx context.Context, priceRef string) (string, error) {
	args := m.Called(ctx, priceRef)
	return args.String(0), args.Error(1)
}

func (m *mockGateway) AttachPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error {
	return m.Called(ctx, customerID, paymentMethodID).Error(0)
}

func (m *mockGateway) ParseEvent(ctx context.Context, payload []byte, signatureHeader string) (paymentdomain.Event, error) {
	args := m.Called(ctx, payload, signatureHeader)
	return args.Get(0).(paymentdomain.Event), args.Error(1)
}

type testEnv struct {
	svc     *Service
	db      *gorm.DB
	gateway *mockGateway
	clock   *clock.FakeClock
	repo    subscriptiondomain.Repository
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Discard,
	})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, migration.EnsureSchema(conn, db.DialectSQLite))
	return conn
}

func newTestEnv(t *testing.T, opts ...func(*ServiceParam)) *testEnv {
	t.Helper()
	conn := setupTestDB(t)

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	catalog, err := config.NewStaticPlanCatalogHolder(config.DefaultPlanCatalog(config.PlanDefaults{
		ProPriceRef:        "price_pro",
		EnterprisePriceRef: "price_ent",
	}))
	require.NoError(t, err)

	gateway := &mockGateway{}
	repo := repository.Provide()
	p := ServiceParam{
		DB:          conn,
		Log:         zap.NewNop(),
		GenID:       node,
		Clock:       clk,
		Repo:        repo,
		PaymentRepo: paymentrepo.Provide(),
		Gateway:     gateway,
		Catalog:     catalog,
		PlanNames:   cache.NewMemoryPlanNameCache(clk, time.Minute),
	}
	for _, opt := range opts {
		opt(&p)
	}

	t.Cleanup(func() { gateway.AssertExpectations(t) })
	return &testEnv{
		svc:     NewService(p).(*Service),
		db:      conn,
		gateway: gateway,
		clock:   clk,
		repo:    repo,
	}
}

func testAccount(id int64) accountdomain.Account {
	return accountdomain.Account{
		ID:    snowflake.ID(id),
		Email: "owner@example.com",
		Role:  accountdomain.RoleUser,
	}
}

func (e *testEnv) records(t *testing.T, accountID int64) []subscriptiondomain.Subscription {
	t.Helper()
	items, err := e.repo.ListByAccount(context.Background(), e.db, snowflake.ID(accountID))
	require.NoError(t, err)
	return items
}

func (e *testEnv) activeCount(t *testing.T, accountID int64) int {
	t.Helper()
	count := 0
	for _, item := range e.records(t, accountID) {
		if item.IsActive {
			count++
		}
	}
	return count
}

func (e *testEnv) seedPaid(t *testing.T, accountID int64, externalID, priceRef string, active bool) subscriptiondomain.Subscription {
	t.Helper()
	now := e.clock.Now()
	record := subscriptiondomain.Subscription{
		ID:                     e.svc.genID.Generate(),
		AccountID:              snowflake.ID(accountID),
		ExternalCustomerID:     "cus_seed",
		ExternalSubscriptionID: &externalID,
		Plan:                   "pro",
		PriceRef:               &priceRef,
		IsActive:               active,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	require.NoError(t, e.repo.Insert(context.Background(), e.db, &record))
	return record
}

func (e *testEnv) deliver(t *testing.T, event paymentdomain.Event) error {
	t.Helper()
	if event.Provider == "" {
		event.Provider = "stripe"
	}
	if event.RawPayload == nil {
		event.RawPayload = []byte(`{"id":"` + event.ID + `"}`)
	}
	signature := "sig-" + event.ID
	e.gateway.On("ParseEvent", mock.Anything, mock.Anything, signature).Return(event, nil)
	return e.svc.HandleWebhookEvent(context.Background(), "stripe", event.RawPayload, signature)
}

func TestSubscribeFreeCreatesActiveRecord(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.svc.Subscribe(context.Background(), testAccount(10), subscriptiondomain.SubscribeRequest{Plan: "basic"})
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.StateActive, resp.State)
	require.NotNil(t, resp.Subscription)
	assert.Equal(t, "Basic", resp.Subscription.PlanName)
	assert.Empty(t, resp.CheckoutURL)

	records := env.records(t, 10)
	require.Len(t, records, 1)
	assert.True(t, records[0].IsActive)
	assert.Nil(t, records[0].ExternalSubscriptionID)
	assert.Equal(t, "basic", records[0].Plan)

	env.gateway.AssertNotCalled(t, "EnsureCustomer", mock.Anything, mock.Anything)
	env.gateway.AssertNotCalled(t, "StartPaidSubscription", mock.Anything, mock.Anything)
}

func TestSubscribeRejectsUnknownPlan(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Subscribe(context.Background(), testAccount(10), subscriptiondomain.SubscribeRequest{Plan: "platinum"})
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidPlan)
	assert.Empty(t, env.records(t, 10))
}

func TestSubscribeConflictsWithActiveRecord(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Subscribe(ctx, testAccount(10), subscriptiondomain.SubscribeRequest{Plan: "basic"})
	require.NoError(t, err)

	_, err = env.svc.Subscribe(ctx, testAccount(10), subscriptiondomain.SubscribeRequest{Plan: "pro"})
	assert.ErrorIs(t, err, subscriptiondomain.ErrConflict)
	_, err = env.svc.Subscribe(ctx, testAccount(10), subscriptiondomain.SubscribeRequest{Plan: "basic"})
	assert.ErrorIs(t, err, subscriptiondomain.ErrConflict)
	assert.Equal(t, 1, env.activeCount(t, 10))
}

func TestSubscribePaidReturnsCheckoutURL(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.gateway.On("EnsureCustomer", mock.Anything, paymentdomain.CustomerRequest{AccountID: "10", Email: "owner@example.com"}).
		Return("cus_1", nil).Once()
	env.gateway.On("StartPaidSubscription", mock.Anything, mock.MatchedBy(func(req paymentdomain.CheckoutRequest) bool {
		return req.CustomerID == "cus_1" && req.PriceRef == "price_pro" && req.Plan == "pro" && req.Reference != ""
	})).Return(paymentdomain.CheckoutSession{SessionID: "cs_1", URL: "https://pay/x"}, nil).Once()

	resp, err := env.svc.Subscribe(ctx, testAccount(10), subscriptiondomain.SubscribeRequest{Plan: "Pro"})
	require.NoError(t, err)
	assert.Equal(t, "https://pay/x", resp.CheckoutURL)
	assert.Equal(t, subscriptiondomain.StatePendingCheckout, resp.State)
	assert.Nil(t, resp.Subscription)
	assert.Empty(t, env.records(t, 10))

	checkout, err := env.repo.FindCheckoutByReference(ctx, env.db, resp.CheckoutReference)
	require.NoError(t, err)
	require.NotNil(t, checkout)
	assert.Equal(t, subscriptiondomain.CheckoutStatusOpen, checkout.Status)
	assert.Equal(t, "cs_1", checkout.ExternalSessionID)

	state, err := env.svc.State(ctx, "10")
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.StatePendingCheckout, state.State)
	assert.Equal(t, "pro", state.Plan)

	customer, err := env.repo.FindCustomer(ctx, env.db, 10)
	require.NoError(t, err)
	require.NotNil(t, customer)
	assert.Equal(t, "cus_1", customer.ExternalCustomerID)
}

func TestSubscribePaidReusesStoredCustomer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.gateway.On("EnsureCustomer", mock.Anything, mock.Anything).Return("cus_1", nil).Once()
	env.gateway.On("StartPaidSubscription", mock.Anything, mock.MatchedBy(func(req paymentdomain.CheckoutRequest) bool {
		return req.CustomerID == "cus_1"
	})).Return(paymentdomain.CheckoutSession{SessionID: "cs", URL: "https://pay/x"}, nil).Twice()

	_, err := env.svc.Subscribe(ctx, testAccount(10), subscriptiondomain.SubscribeRequest{Plan: "pro"})
	require.NoError(t, err)

	// The abandoned checkout stops blocking once the hosted session has lapsed.
	env.clock.Advance(checkoutPendingWindow + time.Minute)
	_, err = env.svc.Subscribe(ctx, testAccount(10), subscriptiondomain.SubscribeRequest{Plan: "enterprise"})
	require.NoError(t, err)
}

func TestSubscribeRejectedWhileCheckoutPending(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.gateway.On("EnsureCustomer", mock.Anything, mock.Anything).Return("cus_1", nil).Once()
	env.gateway.On("StartPaidSubscription", mock.Anything, mock.Anything).
		Return(paymentdomain.CheckoutSession{SessionID: "cs_1", URL: "https://pay/x"}, nil).Once()
	resp, err := env.svc.Subscribe(ctx, testAccount(10), subscriptiondomain.SubscribeRequest{Plan: "pro"})
	require.NoError(t, err)

	_, err = env.svc.Subscribe(ctx, testAccount(10), subscriptiondomain.SubscribeRequest{Plan: "basic"})
	assert.ErrorIs(t, err, subscriptiondomain.ErrConflict)
	_, err = env.svc.Subscribe(ctx, testAccount(10), subscriptiondomain.SubscribeRequest{Plan: "enterprise"})
	assert.ErrorIs(t, err, subscriptiondomain.ErrConflict)
	assert.Empty(t, env.records(t, 10))

	require.NoError(t, env.deliver(t, paymentdomain.Event{
		ID:                "evt_expired",
		Type:              paymentdomain.EventCheckoutExpired,
		CheckoutReference: resp.CheckoutReference,
	}))

	_, err = env.svc.Subscribe(ctx, testAccount(10), subscriptiondomain.SubscribeRequest{Plan: "basic"})
	require.NoError(t, err)
	assert.Equal(t, 1, env.activeCount(t, 10))
}

func TestSubscribePaidPropagatesProviderError(t *testing.T) {
	env := newTestEnv(t)
	providerErr := &paymentdomain.ProviderError{Provider: "stripe", Code: "resource_missing", Message: "No such price"}

	env.gateway.On("EnsureCustomer", mock.Anything, mock.Anything).Return("cus_1", nil).Once()
	env.gateway.On("StartPaidSubscription", mock.Anything, mock.Anything).
		Return(paymentdomain.CheckoutSession{}, providerErr).Once()

	_, err := env.svc.Subscribe(context.Background(), testAccount(10), subscriptiondomain.SubscribeRequest{Plan: "pro"})
	got, ok := paymentdomain.AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, "resource_missing", got.Code)

	state, err := env.svc.State(context.Background(), "10")
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.StateNone, state.State)
}

// barrierRepo holds every caller of FindActiveByAccount until all of them have
// seen the same result, so concurrent subscribes reach the insert together.
type barrierRepo struct {
	subscriptiondomain.Repository
	arrived sync.WaitGroup
}

func (r *barrierRepo) FindActiveByAccount(ctx context.Context, conn *gorm.DB, accountID snowflake.ID) (*subscriptiondomain.Subscription, error) {
	item, err := r.Repository.FindActiveByAccount(ctx, conn, accountID)
	r.arrived.Done()
	r.arrived.Wait()
	return item, err
}

func TestConcurrentFreeSubscribeKeepsSingleActive(t *testing.T) {
	const attempts = 8
	barrier := &barrierRepo{}
	barrier.arrived.Add(attempts)
	env := newTestEnv(t, func(p *ServiceParam) {
		barrier.Repository = p.Repo
		p.Repo = barrier
	})

	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.Subscribe(context.Background(), testAccount(10), subscriptiondomain.SubscribeRequest{Plan: "basic"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, subscriptiondomain.ErrConflict)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, env.activeCount(t, 10))
}

func TestConcurrentPaidSubscribeHoldsCheckoutLock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	guard := ratelimit.NewCheckoutGuard(client, config.Config{Redis: config.RedisConfig{
		CheckoutLockTTL: time.Minute,
		CheckoutRate:    1,
		CheckoutBurst:   5,
	}}, zap.NewNop())

	env := newTestEnv(t, func(p *ServiceParam) { p.Guard = guard })

	started := make(chan struct{})
	release := make(chan struct{})
	env.gateway.On("EnsureCustomer", mock.Anything, mock.Anything).Return("cus_1", nil).Once()
	env.gateway.On("StartPaidSubscription", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			close(started)
			<-release
		}).
		Return(paymentdomain.CheckoutSession{SessionID: "cs_1", URL: "https://pay/x"}, nil).Once()

	done := make(chan error, 1)
	go func() {
		_, err := env.svc.Subscribe(context.Background(), testAccount(10), subscriptiondomain.SubscribeRequest{Plan: "pro"})
		done <- err
	}()

	<-started
	_, err := env.svc.Subscribe(context.Background(), testAccount(10), subscriptiondomain.SubscribeRequest{Plan: "pro"})
	assert.ErrorIs(t, err, subscriptiondomain.ErrConflict)

	close(release)
	require.NoError(t, <-done)
}

func TestPaymentSucceededCreatesRecordForPendingCheckout(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.gateway.On("EnsureCustomer", mock.Anything, mock.Anything).Return("cus_1", nil).Once()
	env.gateway.On("StartPaidSubscription", mock.Anything, mock.Anything).
		Return(paymentdomain.CheckoutSession{SessionID: "cs_1", URL: "https://pay/x"}, nil).Once()
	resp, err := env.svc.Subscribe(ctx, testAccount(10), subscriptiondomain.SubscribeRequest{Plan: "pro"})
	require.NoError(t, err)

	event := paymentdomain.Event{
		ID:             "evt_paid",
		Type:           paymentdomain.EventInvoicePaymentSucceeded,
		SubscriptionID: "sub_1",
		CustomerID:     "cus_1",
		PriceRef:       "price_pro",
	}
	require.NoError(t, env.deliver(t, event))

	records := env.records(t, 10)
	require.Len(t, records, 1)
	first := records[0]
	assert.True(t, first.IsActive)
	require.NotNil(t, first.ExternalSubscriptionID)
	assert.Equal(t, "sub_1", *first.ExternalSubscriptionID)
	assert.Equal(t, "pro", first.Plan)
	assert.Equal(t, "cus_1", first.ExternalCustomerID)

	checkout, err := env.repo.FindCheckoutByReference(ctx, env.db, resp.CheckoutReference)
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.CheckoutStatusCompleted, checkout.Status)

	env.clock.Advance(time.Hour)
	require.NoError(t, env.deliver(t, event))

	again := env.records(t, 10)
	require.Len(t, again, 1)
	assert.Equal(t, first, again[0])

	state, err := env.svc.State(ctx, "10")
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.StateActive, state.State)

	stored, err := paymentrepo.Provide().FindEvent(ctx, env.db, "stripe", "evt_paid")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.NotNil(t, stored.ProcessedAt)
}

func TestPaymentForSupersededCheckoutIsOrphaned(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.gateway.On("EnsureCustomer", mock.Anything, mock.Anything).Return("cus_1", nil).Once()
	env.gateway.On("StartPaidSubscription", mock.Anything, mock.Anything).
		Return(paymentdomain.CheckoutSession{SessionID: "cs_1", URL: "https://pay/x"}, nil).Once()
	resp, err := env.svc.Subscribe(ctx, testAccount(10), subscriptiondomain.SubscribeRequest{Plan: "pro"})
	require.NoError(t, err)

	// A free record that raced in ahead of the checkout row.
	now := env.clock.Now()
	free := subscriptiondomain.Subscription{
		ID:                 env.svc.genID.Generate(),
		AccountID:          10,
		ExternalCustomerID: "cus_1",
		Plan:               "basic",
		IsActive:           true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	require.NoError(t, env.repo.Insert(ctx, env.db, &free))

	event := paymentdomain.Event{
		ID:             "evt_paid",
		Type:           paymentdomain.EventInvoicePaymentSucceeded,
		SubscriptionID: "sub_1",
		CustomerID:     "cus_1",
		PriceRef:       "price_pro",
	}
	require.NoError(t, env.deliver(t, event))
	require.NoError(t, env.deliver(t, event))

	records := env.records(t, 10)
	require.Len(t, records, 1)
	assert.Equal(t, "basic", records[0].Plan)
	assert.True(t, records[0].IsActive)

	paid, err := env.repo.FindByExternalID(ctx, env.db, "sub_1")
	require.NoError(t, err)
	assert.Nil(t, paid)

	checkout, err := env.repo.FindCheckoutByReference(ctx, env.db, resp.CheckoutReference)
	require.NoError(t, err)
	require.NotNil(t, checkout)
	assert.Equal(t, subscriptiondomain.CheckoutStatusOrphaned, checkout.Status)
	require.NotNil(t, checkout.ExternalSubscriptionID)
	assert.Equal(t, "sub_1", *checkout.ExternalSubscriptionID)

	state, err := env.svc.State(ctx, "10")
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.StateActive, state.State)
	assert.Equal(t, "basic", state.Plan)
}

func TestCheckoutCompletedLinksSubscriptionBeforePayment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.gateway.On("EnsureCustomer", mock.Anything, mock.Anything).Return("cus_1", nil).Once()
	env.gateway.On("StartPaidSubscription", mock.Anything, mock.Anything).
		Return(paymentdomain.CheckoutSession{SessionID: "cs_1", URL: "https://pay/x"}, nil).Once()
	resp, err := env.svc.Subscribe(ctx, testAccount(10), subscriptiondomain.SubscribeRequest{Plan: "enterprise"})
	require.NoError(t, err)

	require.NoError(t, env.deliver(t, paymentdomain.Event{
		ID:                "evt_checkout",
		Type:              paymentdomain.EventCheckoutCompleted,
		SessionID:         "cs_1",
		SubscriptionID:    "sub_9",
		CheckoutReference: resp.CheckoutReference,
	}))

	checkout, err := env.repo.FindCheckoutBySubscriptionID(ctx, env.db, "sub_9")
	require.NoError(t, err)
	require.NotNil(t, checkout)

	// The invoice carries no customer; the linked checkout resolves the account.
	require.NoError(t, env.deliver(t, paymentdomain.Event{
		ID:             "evt_invoice",
		Type:           paymentdomain.EventInvoicePaymentSucceeded,
		SubscriptionID: "sub_9",
	}))

	records := env.records(t, 10)
	require.Len(t, records, 1)
	assert.Equal(t, "enterprise", records[0].Plan)
	require.NotNil(t, records[0].PriceRef)
	assert.Equal(t, "price_ent", *records[0].PriceRef)
}

func TestCheckoutExpiredClosesPendingCheckout(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.gateway.On("EnsureCustomer", mock.Anything, mock.Anything).Return("cus_1", nil).Once()
	env.gateway.On("StartPaidSubscription", mock.Anything, mock.Anything).
		Return(paymentdomain.CheckoutSession{SessionID: "cs_1", URL: "https://pay/x"}, nil).Once()
	resp, err := env.svc.Subscribe(ctx, testAccount(10), subscriptiondomain.SubscribeRequest{Plan: "pro"})
	require.NoError(t, err)

	require.NoError(t, env.deliver(t, paymentdomain.Event{
		ID:                "evt_expired",
		Type:              paymentdomain.EventCheckoutExpired,
		CheckoutReference: resp.CheckoutReference,
	}))

	state, err := env.svc.State(ctx, "10")
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.StateNone, state.State)
}

func TestSubscriptionDeletedDeactivatesIdempotently(t *testing.T) {
	env := newTestEnv(t)
	seeded := env.seedPaid(t, 10, "sub_1", "price_pro", true)

	event := paymentdomain.Event{
		ID:             "evt_deleted",
		Type:           paymentdomain.EventSubscriptionDeleted,
		SubscriptionID: "sub_1",
	}
	env.clock.Advance(time.Minute)
	require.NoError(t, env.deliver(t, event))

	records := env.records(t, 10)
	require.Len(t, records, 1)
	assert.False(t, records[0].IsActive)
	assert.Equal(t, seeded.ID, records[0].ID)
	first := records[0]

	env.clock.Advance(time.Minute)
	require.NoError(t, env.deliver(t, event))
	assert.Equal(t, first, env.records(t, 10)[0])

	state, err := env.svc.State(context.Background(), "10")
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.StateCanceled, state.State)
}

func TestPaymentFailedDeactivatesAndSucceededReactivates(t *testing.T) {
	env := newTestEnv(t)
	env.seedPaid(t, 10, "sub_1", "price_pro", true)

	require.NoError(t, env.deliver(t, paymentdomain.Event{
		ID: "evt_failed", Type: paymentdomain.EventInvoicePaymentFailed, SubscriptionID: "sub_1",
	}))
	assert.Equal(t, 0, env.activeCount(t, 10))

	require.NoError(t, env.deliver(t, paymentdomain.Event{
		ID: "evt_recovered", Type: paymentdomain.EventInvoicePaymentSucceeded, SubscriptionID: "sub_1",
	}))
	assert.Equal(t, 1, env.activeCount(t, 10))
	assert.Len(t, env.records(t, 10), 1)
}

func TestWebhookMissesAreAbsorbed(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.deliver(t, paymentdomain.Event{
		ID: "evt_1", Type: paymentdomain.EventInvoicePaymentFailed, SubscriptionID: "sub_unknown",
	}))
	require.NoError(t, env.deliver(t, paymentdomain.Event{
		ID: "evt_2", Type: paymentdomain.EventInvoicePaymentSucceeded, SubscriptionID: "sub_unknown", CustomerID: "cus_unknown",
	}))
	require.NoError(t, env.deliver(t, paymentdomain.Event{
		ID: "evt_3", Type: "customer.updated",
	}))
	assert.Empty(t, env.records(t, 10))
}

func TestWebhookRejectsInvalidSignature(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.On("ParseEvent", mock.Anything, mock.Anything, "bad").
		Return(paymentdomain.Event{}, paymentdomain.ErrInvalidSignature).Once()

	err := env.svc.HandleWebhookEvent(context.Background(), "stripe", []byte(`{}`), "bad")
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidSignature)
}

func TestWebhookAbsorbsMalformedPayload(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.On("ParseEvent", mock.Anything, mock.Anything, "sig").
		Return(paymentdomain.Event{}, paymentdomain.ErrInvalidPayload).Once()

	assert.NoError(t, env.svc.HandleWebhookEvent(context.Background(), "stripe", []byte(`{`), "sig"))
}

func TestWebhookRejectsUnknownProvider(t *testing.T) {
	env := newTestEnv(t)

	err := env.svc.HandleWebhookEvent(context.Background(), "paddle", []byte(`{}`), "sig")
	assert.ErrorIs(t, err, subscriptiondomain.ErrUnknownProvider)
	env.gateway.AssertNotCalled(t, "ParseEvent", mock.Anything, mock.Anything, mock.Anything)
}

func TestCancelWithoutActiveSubscription(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Cancel(context.Background(), testAccount(10))
	assert.ErrorIs(t, err, subscriptiondomain.ErrNotFound)
	env.gateway.AssertNotCalled(t, "CancelSubscription", mock.Anything, mock.Anything)
}

func TestCancelKeepsRecordActiveWhenProviderFails(t *testing.T) {
	env := newTestEnv(t)
	env.seedPaid(t, 10, "sub_1", "price_pro", true)

	env.gateway.On("CancelSubscription", mock.Anything, "sub_1").
		Return(&paymentdomain.ProviderError{Provider: "stripe", Code: paymentdomain.ProviderCodeTimeout}).Once()

	_, err := env.svc.Cancel(context.Background(), testAccount(10))
	_, ok := paymentdomain.AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, 1, env.activeCount(t, 10))
}

func TestCancelDeactivatesAfterProviderSuccess(t *testing.T) {
	env := newTestEnv(t)
	env.seedPaid(t, 10, "sub_1", "price_pro", true)

	env.gateway.On("CancelSubscription", mock.Anything, "sub_1").Return(nil).Once()
	env.gateway.On("ResolvePlanName", mock.Anything, "price_pro").Return("Pro", nil).Once()

	view, err := env.svc.Cancel(context.Background(), testAccount(10))
	require.NoError(t, err)
	assert.False(t, view.IsActive)
	assert.Equal(t, "Pro", view.PlanName)
	assert.Equal(t, 0, env.activeCount(t, 10))
	assert.Len(t, env.records(t, 10), 1)
}

func TestCancelFreeTierIsLocal(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.Subscribe(context.Background(), testAccount(10), subscriptiondomain.SubscribeRequest{Plan: "basic"})
	require.NoError(t, err)

	_, err = env.svc.Cancel(context.Background(), testAccount(10))
	require.NoError(t, err)
	assert.Equal(t, 0, env.activeCount(t, 10))
	env.gateway.AssertNotCalled(t, "CancelSubscription", mock.Anything, mock.Anything)

	// A new cycle may begin after cancellation.
	_, err = env.svc.Subscribe(context.Background(), testAccount(10), subscriptiondomain.SubscribeRequest{Plan: "basic"})
	require.NoError(t, err)
	assert.Len(t, env.records(t, 10), 2)
	assert.Equal(t, 1, env.activeCount(t, 10))
}

func TestUpgradeWithoutActiveSubscription(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Upgrade(context.Background(), testAccount(10), subscriptiondomain.UpgradeRequest{PriceRef: "price_ent"})
	assert.ErrorIs(t, err, subscriptiondomain.ErrNotFound)
	env.gateway.AssertNotCalled(t, "ChangeSubscriptionItem", mock.Anything, mock.Anything, mock.Anything)
}

func TestUpgradeMutatesRecordInPlace(t *testing.T) {
	env := newTestEnv(t)
	seeded := env.seedPaid(t, 10, "sub_1", "price_pro", true)

	env.gateway.On("ChangeSubscriptionItem", mock.Anything, "sub_1", "price_ent").Return(nil).Once()
	env.gateway.On("ResolvePlanName", mock.Anything, "price_ent").Return("Enterprise", nil).Once()

	env.clock.Advance(time.Hour)
	view, err := env.svc.Upgrade(context.Background(), testAccount(10), subscriptiondomain.UpgradeRequest{PriceRef: "price_ent"})
	require.NoError(t, err)
	assert.Equal(t, "Enterprise", view.PlanName)
	assert.Equal(t, "enterprise", view.Plan)

	records := env.records(t, 10)
	require.Len(t, records, 1)
	assert.Equal(t, seeded.ID, records[0].ID)
	assert.Equal(t, "enterprise", records[0].Plan)
	assert.Equal(t, "price_ent", *records[0].PriceRef)
	assert.True(t, records[0].UpdatedAt.After(seeded.UpdatedAt))
	assert.True(t, records[0].IsActive)
}

func TestUpgradeLeavesRecordWhenProviderFails(t *testing.T) {
	env := newTestEnv(t)
	env.seedPaid(t, 10, "sub_1", "price_pro", true)

	env.gateway.On("ChangeSubscriptionItem", mock.Anything, "sub_1", "price_ent").
		Return(&paymentdomain.ProviderError{Provider: "stripe", Code: "card_declined"}).Once()

	_, err := env.svc.Upgrade(context.Background(), testAccount(10), subscriptiondomain.UpgradeRequest{PriceRef: "price_ent"})
	require.Error(t, err)
	records := env.records(t, 10)
	assert.Equal(t, "pro", records[0].Plan)
	assert.Equal(t, "price_pro", *records[0].PriceRef)
}

func TestUpgradeRejectsUnknownPriceAndFreeRecords(t *testing.T) {
	env := newTestEnv(t)
	env.seedPaid(t, 10, "sub_1", "price_pro", true)

	_, err := env.svc.Upgrade(context.Background(), testAccount(10), subscriptiondomain.UpgradeRequest{PriceRef: "price_nope"})
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidPlan)

	_, err = env.svc.Subscribe(context.Background(), testAccount(11), subscriptiondomain.SubscribeRequest{Plan: "basic"})
	require.NoError(t, err)
	_, err = env.svc.Upgrade(context.Background(), testAccount(11), subscriptiondomain.UpgradeRequest{PriceRef: "price_pro"})
	assert.ErrorIs(t, err, subscriptiondomain.ErrNotFound)
}

func TestListEnrichesPaidRecordsBestEffort(t *testing.T) {
	env := newTestEnv(t)
	env.seedPaid(t, 10, "sub_old", "price_pro", false)
	env.clock.Advance(time.Minute)
	env.seedPaid(t, 10, "sub_mid", "price_pro", false)
	env.clock.Advance(time.Minute)
	env.seedPaid(t, 10, "sub_new", "price_ent", true)

	env.gateway.On("ResolvePlanName", mock.Anything, "price_pro").Return("Pro", nil).Once()
	env.gateway.On("ResolvePlanName", mock.Anything, "price_ent").
		Return("", &paymentdomain.ProviderError{Provider: "stripe", Code: paymentdomain.ProviderCodeUnavailable})

	views, err := env.svc.List(context.Background(), "10")
	require.NoError(t, err)
	require.Len(t, views, 3)
	assert.Equal(t, "sub_new", *views[0].ExternalSubscriptionID)
	assert.Equal(t, "unknown", views[0].PlanName)
	assert.Equal(t, "Pro", views[1].PlanName)
	assert.Equal(t, "Pro", views[2].PlanName)
}

func TestListRejectsInvalidAccountID(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.List(context.Background(), "not-a-number")
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidAccount)
}

func TestGetActive(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.GetActive(context.Background(), "10")
	assert.ErrorIs(t, err, subscriptiondomain.ErrNotFound)

	_, err = env.svc.Subscribe(context.Background(), testAccount(10), subscriptiondomain.SubscribeRequest{Plan: "basic"})
	require.NoError(t, err)

	view, err := env.svc.GetActive(context.Background(), "10")
	require.NoError(t, err)
	assert.True(t, view.IsActive)
	assert.Equal(t, "Basic", view.PlanName)
}

func TestStateTransitions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	state, err := env.svc.State(ctx, "10")
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.StateNone, state.State)

	env.seedPaid(t, 10, "sub_old", "price_pro", false)
	state, err = env.svc.State(ctx, "10")
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.StateCanceled, state.State)

	env.seedPaid(t, 10, "sub_new", "price_pro", true)
	state, err = env.svc.State(ctx, "10")
	require.NoError(t, err)
	assert.Equal(t, subscriptiondomain.StateActive, state.State)
	assert.Equal(t, "pro", state.Plan)

	_, err = env.svc.State(ctx, "abc")
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidAccount)
}

func TestUpdatePaymentMethod(t *testing.T) {
	env := newTestEnv(t)

	err := env.svc.UpdatePaymentMethod(context.Background(), testAccount(10), subscriptiondomain.UpdatePaymentMethodRequest{})
	assert.ErrorIs(t, err, subscriptiondomain.ErrInvalidPaymentMethod)

	env.gateway.On("EnsureCustomer", mock.Anything, mock.Anything).Return("cus_1", nil).Once()
	env.gateway.On("AttachPaymentMethod", mock.Anything, "cus_1", "pm_1").Return(nil).Once()
	require.NoError(t, env.svc.UpdatePaymentMethod(context.Background(), testAccount(10), subscriptiondomain.UpdatePaymentMethodRequest{PaymentMethodID: "pm_1"}))

	env.gateway.On("AttachPaymentMethod", mock.Anything, "cus_1", "pm_2").Return(errors.New("boom")).Once()
	assert.Error(t, env.svc.UpdatePaymentMethod(context.Background(), testAccount(10), subscriptiondomain.UpdatePaymentMethodRequest{PaymentMethodID: "pm_2"}))
}
