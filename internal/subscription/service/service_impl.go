package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	accountdomain "github.com/smallbiznis/finora/internal/account/domain"
	"github.com/smallbiznis/finora/internal/cache"
	"github.com/smallbiznis/finora/internal/clock"
	"github.com/smallbiznis/finora/internal/config"
	"github.com/smallbiznis/finora/internal/observability/logger"
	"github.com/smallbiznis/finora/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/finora/internal/payment/domain"
	"github.com/smallbiznis/finora/internal/ratelimit"
	subscriptiondomain "github.com/smallbiznis/finora/internal/subscription/domain"
	"github.com/smallbiznis/finora/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const unknownPlanName = "unknown"

// checkoutPendingWindow matches the provider's hosted checkout lifetime. An
// OPEN checkout older than this no longer blocks a new subscription.
const checkoutPendingWindow = 24 * time.Hour

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID       *snowflake.Node
	clock       clock.Clock
	repo        subscriptiondomain.Repository
	paymentRepo paymentdomain.Repository
	gateway     paymentdomain.Gateway
	catalog     *config.PlanCatalogHolder
	planNames   *cache.PlanNameCache
	guard       *ratelimit.CheckoutGuard
	metrics     *metrics.Metrics
	lifecycle   *metrics.LifecycleMetrics
}

type ServiceParam struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        subscriptiondomain.Repository
	PaymentRepo paymentdomain.Repository
	Gateway     paymentdomain.Gateway
	Catalog     *config.PlanCatalogHolder

	PlanNames *cache.PlanNameCache      `optional:"true"`
	Guard     *ratelimit.CheckoutGuard  `optional:"true"`
	Metrics   *metrics.Metrics          `optional:"true"`
	Lifecycle *metrics.LifecycleMetrics `optional:"true"`
}

func NewService(p ServiceParam) subscriptiondomain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("subscription.service"),

		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		paymentRepo: p.PaymentRepo,
		gateway:     p.Gateway,
		catalog:     p.Catalog,
		planNames:   p.PlanNames,
		guard:       p.Guard,
		metrics:     p.Metrics,
		lifecycle:   p.Lifecycle,
	}
}

// Subscribe implements domain.Service.
func (s *Service) Subscribe(ctx context.Context, account accountdomain.Account, req subscriptiondomain.SubscribeRequest) (subscriptiondomain.SubscribeResponse, error) {
	if account.ID == 0 {
		return subscriptiondomain.SubscribeResponse{}, subscriptiondomain.ErrInvalidAccount
	}
	plan, ok := s.catalog.Get().Lookup(req.Plan)
	if !ok {
		return subscriptiondomain.SubscribeResponse{}, subscriptiondomain.ErrInvalidPlan
	}

	log := logger.WithAccount(logger.WithContext(ctx, s.log), int64(account.ID)).With(zap.String("plan", plan.Code))

	active, err := s.repo.FindActiveByAccount(ctx, s.db, account.ID)
	if err != nil {
		return subscriptiondomain.SubscribeResponse{}, err
	}
	if active != nil {
		return subscriptiondomain.SubscribeResponse{}, subscriptiondomain.ErrConflict
	}

	pending, err := s.repo.FindLatestOpenCheckout(ctx, s.db, account.ID)
	if err != nil {
		return subscriptiondomain.SubscribeResponse{}, err
	}
	if pending != nil && s.clock.Now().Sub(pending.CreatedAt) < checkoutPendingWindow {
		log.Info("subscribe rejected while checkout pending", zap.String("checkout_reference", pending.Reference))
		return subscriptiondomain.SubscribeResponse{}, subscriptiondomain.ErrConflict
	}

	if plan.Free {
		return s.subscribeFree(ctx, log, account, plan)
	}
	return s.subscribePaid(ctx, log, account, plan)
}

func (s *Service) subscribeFree(ctx context.Context, log *zap.Logger, account accountdomain.Account, plan config.Plan) (subscriptiondomain.SubscribeResponse, error) {
	customerID := ""
	customer, err := s.repo.FindCustomer(ctx, s.db, account.ID)
	if err != nil {
		return subscriptiondomain.SubscribeResponse{}, err
	}
	if customer != nil {
		customerID = customer.ExternalCustomerID
	}

	now := s.clock.Now()
	record := subscriptiondomain.Subscription{
		ID:                 s.genID.Generate(),
		AccountID:          account.ID,
		ExternalCustomerID: customerID,
		Plan:               plan.Code,
		IsActive:           true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.repo.Insert(ctx, s.db, &record); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return subscriptiondomain.SubscribeResponse{}, subscriptiondomain.ErrConflict
		}
		s.lifecycle.RecordError("subscribe", err)
		return subscriptiondomain.SubscribeResponse{}, err
	}

	s.lifecycle.RecordTransition(metrics.StateNone, metrics.StateActive)
	log.Info("free subscription activated", zap.String("subscription_id", record.ID.String()))

	view := s.view(record, plan.Name)
	return subscriptiondomain.SubscribeResponse{
		State:        subscriptiondomain.StateActive,
		Subscription: &view,
	}, nil
}

// subscribePaid issues a hosted checkout. The ledger record is created when the
// first invoice payment is confirmed.
func (s *Service) subscribePaid(ctx context.Context, log *zap.Logger, account accountdomain.Account, plan config.Plan) (subscriptiondomain.SubscribeResponse, error) {
	release, err := s.guard.Acquire(ctx, account.ID.String())
	if err != nil {
		switch {
		case errors.Is(err, ratelimit.ErrCheckoutInProgress):
			s.metrics.RecordCheckoutThrottled(ctx, "in_progress")
			return subscriptiondomain.SubscribeResponse{}, subscriptiondomain.ErrConflict
		case errors.Is(err, ratelimit.ErrCheckoutRateLimited):
			s.metrics.RecordCheckoutThrottled(ctx, "rate_limited")
			return subscriptiondomain.SubscribeResponse{}, subscriptiondomain.ErrRateLimited
		default:
			return subscriptiondomain.SubscribeResponse{}, err
		}
	}
	defer release()

	customerID, err := s.ensureCustomer(ctx, account)
	if err != nil {
		s.lifecycle.RecordError("subscribe", err)
		return subscriptiondomain.SubscribeResponse{}, err
	}

	reference := ulid.Make().String()
	session, err := s.gateway.StartPaidSubscription(ctx, paymentdomain.CheckoutRequest{
		CustomerID: customerID,
		PriceRef:   plan.PriceRef,
		Reference:  reference,
		AccountID:  account.ID.String(),
		Plan:       plan.Code,
	})
	if err != nil {
		s.lifecycle.RecordError("subscribe", err)
		log.Warn("checkout not started", zap.Error(err))
		return subscriptiondomain.SubscribeResponse{}, err
	}

	now := s.clock.Now()
	checkout := subscriptiondomain.Checkout{
		ID:                 s.genID.Generate(),
		Reference:          reference,
		AccountID:          account.ID,
		ExternalCustomerID: customerID,
		ExternalSessionID:  session.SessionID,
		Plan:               plan.Code,
		PriceRef:           plan.PriceRef,
		Status:             subscriptiondomain.CheckoutStatusOpen,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if session.SubscriptionID != "" {
		checkout.ExternalSubscriptionID = &session.SubscriptionID
	}
	if err := s.repo.InsertCheckout(ctx, s.db, &checkout); err != nil {
		s.lifecycle.RecordError("subscribe", err)
		return subscriptiondomain.SubscribeResponse{}, err
	}

	s.lifecycle.RecordTransition(metrics.StateNone, metrics.StatePendingCheckout)
	log.Info("checkout started",
		zap.String("checkout_reference", reference),
		zap.String("session_id", session.SessionID),
	)

	return subscriptiondomain.SubscribeResponse{
		State:             subscriptiondomain.StatePendingCheckout,
		CheckoutURL:       session.URL,
		CheckoutReference: reference,
	}, nil
}

// ensureCustomer returns the account's provider customer, creating it on first use.
// The first stored mapping wins so the id stays stable.
func (s *Service) ensureCustomer(ctx context.Context, account accountdomain.Account) (string, error) {
	existing, err := s.repo.FindCustomer(ctx, s.db, account.ID)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return existing.ExternalCustomerID, nil
	}

	customerID, err := s.gateway.EnsureCustomer(ctx, paymentdomain.CustomerRequest{
		AccountID: account.ID.String(),
		Email:     account.Email,
	})
	if err != nil {
		return "", err
	}

	if err := s.repo.InsertCustomer(ctx, s.db, &subscriptiondomain.BillingCustomer{
		ID:                 s.genID.Generate(),
		AccountID:          account.ID,
		Provider:           s.gateway.Provider(),
		ExternalCustomerID: customerID,
		CreatedAt:          s.clock.Now(),
	}); err != nil {
		return "", err
	}

	stored, err := s.repo.FindCustomer(ctx, s.db, account.ID)
	if err != nil {
		return "", err
	}
	if stored != nil {
		return stored.ExternalCustomerID, nil
	}
	return customerID, nil
}

// Upgrade implements domain.Service.
func (s *Service) Upgrade(ctx context.Context, account accountdomain.Account, req subscriptiondomain.UpgradeRequest) (subscriptiondomain.SubscriptionView, error) {
	if account.ID == 0 {
		return subscriptiondomain.SubscriptionView{}, subscriptiondomain.ErrInvalidAccount
	}

	active, err := s.repo.FindActiveByAccount(ctx, s.db, account.ID)
	if err != nil {
		return subscriptiondomain.SubscriptionView{}, err
	}
	if active == nil || active.IsFree() {
		return subscriptiondomain.SubscriptionView{}, subscriptiondomain.ErrNotFound
	}

	priceRef := strings.TrimSpace(req.PriceRef)
	plan, ok := s.catalog.Get().ByPriceRef(priceRef)
	if !ok {
		return subscriptiondomain.SubscriptionView{}, subscriptiondomain.ErrInvalidPlan
	}

	if active.PriceRef != nil && *active.PriceRef == priceRef {
		return s.view(*active, s.planName(ctx, priceRef, plan.Name)), nil
	}

	if err := s.gateway.ChangeSubscriptionItem(ctx, *active.ExternalSubscriptionID, priceRef); err != nil {
		s.lifecycle.RecordError("upgrade", err)
		return subscriptiondomain.SubscriptionView{}, err
	}

	name := s.planName(ctx, priceRef, plan.Name)
	now := s.clock.Now()
	if err := s.repo.UpdatePlan(ctx, s.db, active.ID, plan.Code, priceRef, now); err != nil {
		s.lifecycle.RecordError("upgrade", err)
		return subscriptiondomain.SubscriptionView{}, err
	}

	active.Plan = plan.Code
	active.PriceRef = &priceRef
	active.UpdatedAt = now

	s.lifecycle.RecordTransition(metrics.StateActive, metrics.StateActive)
	logger.WithAccount(logger.WithContext(ctx, s.log), int64(account.ID)).Info("subscription plan changed",
		zap.String("subscription_id", active.ID.String()),
		zap.String("plan", plan.Code),
	)
	return s.view(*active, name), nil
}

// Cancel implements domain.Service. The provider is canceled before the record.
func (s *Service) Cancel(ctx context.Context, account accountdomain.Account) (subscriptiondomain.SubscriptionView, error) {
	if account.ID == 0 {
		return subscriptiondomain.SubscriptionView{}, subscriptiondomain.ErrInvalidAccount
	}

	active, err := s.repo.FindActiveByAccount(ctx, s.db, account.ID)
	if err != nil {
		return subscriptiondomain.SubscriptionView{}, err
	}
	if active == nil {
		return subscriptiondomain.SubscriptionView{}, subscriptiondomain.ErrNotFound
	}

	if !active.IsFree() {
		if err := s.gateway.CancelSubscription(ctx, *active.ExternalSubscriptionID); err != nil {
			s.lifecycle.RecordError("cancel", err)
			return subscriptiondomain.SubscriptionView{}, err
		}
	}

	now := s.clock.Now()
	if err := s.repo.Deactivate(ctx, s.db, active.ID, now); err != nil {
		s.lifecycle.RecordError("cancel", err)
		return subscriptiondomain.SubscriptionView{}, err
	}
	active.IsActive = false
	active.UpdatedAt = now

	s.lifecycle.RecordTransition(metrics.StateActive, metrics.StateCanceled)
	logger.WithAccount(logger.WithContext(ctx, s.log), int64(account.ID)).Info("subscription canceled",
		zap.String("subscription_id", active.ID.String()),
	)
	return s.view(*active, s.displayName(ctx, *active)), nil
}

// List implements domain.Service. Paid plan names are resolved best-effort.
func (s *Service) List(ctx context.Context, accountID string) ([]subscriptiondomain.SubscriptionView, error) {
	id, err := parseAccountID(accountID)
	if err != nil {
		return nil, err
	}

	items, err := s.repo.ListByAccount(ctx, s.db, id)
	if err != nil {
		return nil, err
	}

	views := make([]subscriptiondomain.SubscriptionView, 0, len(items))
	for _, item := range items {
		views = append(views, s.view(item, s.displayName(ctx, item)))
	}
	return views, nil
}

// GetActive implements domain.Service.
func (s *Service) GetActive(ctx context.Context, accountID string) (subscriptiondomain.SubscriptionView, error) {
	id, err := parseAccountID(accountID)
	if err != nil {
		return subscriptiondomain.SubscriptionView{}, err
	}

	active, err := s.repo.FindActiveByAccount(ctx, s.db, id)
	if err != nil {
		return subscriptiondomain.SubscriptionView{}, err
	}
	if active == nil {
		return subscriptiondomain.SubscriptionView{}, subscriptiondomain.ErrNotFound
	}
	return s.view(*active, s.displayName(ctx, *active)), nil
}

// State implements domain.Service.
func (s *Service) State(ctx context.Context, accountID string) (subscriptiondomain.StateResponse, error) {
	id, err := parseAccountID(accountID)
	if err != nil {
		return subscriptiondomain.StateResponse{}, err
	}

	active, err := s.repo.FindActiveByAccount(ctx, s.db, id)
	if err != nil {
		return subscriptiondomain.StateResponse{}, err
	}
	if active != nil {
		return subscriptiondomain.StateResponse{State: subscriptiondomain.StateActive, Plan: active.Plan}, nil
	}

	checkout, err := s.repo.FindLatestOpenCheckout(ctx, s.db, id)
	if err != nil {
		return subscriptiondomain.StateResponse{}, err
	}
	if checkout != nil {
		return subscriptiondomain.StateResponse{
			State:             subscriptiondomain.StatePendingCheckout,
			Plan:              checkout.Plan,
			CheckoutReference: checkout.Reference,
		}, nil
	}

	count, err := s.repo.CountByAccount(ctx, s.db, id)
	if err != nil {
		return subscriptiondomain.StateResponse{}, err
	}
	if count > 0 {
		return subscriptiondomain.StateResponse{State: subscriptiondomain.StateCanceled}, nil
	}
	return subscriptiondomain.StateResponse{State: subscriptiondomain.StateNone}, nil
}

// UpdatePaymentMethod implements domain.Service.
func (s *Service) UpdatePaymentMethod(ctx context.Context, account accountdomain.Account, req subscriptiondomain.UpdatePaymentMethodRequest) error {
	if account.ID == 0 {
		return subscriptiondomain.ErrInvalidAccount
	}
	paymentMethodID := strings.TrimSpace(req.PaymentMethodID)
	if paymentMethodID == "" {
		return subscriptiondomain.ErrInvalidPaymentMethod
	}

	customerID, err := s.ensureCustomer(ctx, account)
	if err != nil {
		return err
	}
	if err := s.gateway.AttachPaymentMethod(ctx, customerID, paymentMethodID); err != nil {
		s.lifecycle.RecordError("update_payment_method", err)
		return err
	}

	logger.WithAccount(logger.WithContext(ctx, s.log), int64(account.ID)).Info("default payment method updated")
	return nil
}

// displayName labels a record. Paid names come from the provider and degrade
// to "unknown" when it cannot be reached.
func (s *Service) displayName(ctx context.Context, item subscriptiondomain.Subscription) string {
	if item.IsFree() || item.PriceRef == nil || *item.PriceRef == "" {
		if plan, ok := s.catalog.Get().Lookup(item.Plan); ok {
			return plan.Name
		}
		if item.IsFree() {
			return item.Plan
		}
		return unknownPlanName
	}
	return s.planName(ctx, *item.PriceRef, unknownPlanName)
}

func (s *Service) planName(ctx context.Context, priceRef, fallback string) string {
	if name, ok := s.planNames.Get(ctx, priceRef); ok {
		return name
	}
	name, err := s.gateway.ResolvePlanName(ctx, priceRef)
	if err != nil || strings.TrimSpace(name) == "" {
		logger.WithContext(ctx, s.log).Warn("plan name unresolved",
			zap.String("price_ref", priceRef),
			zap.Error(err),
		)
		return fallback
	}
	s.planNames.Set(ctx, priceRef, name)
	return name
}

func (s *Service) view(item subscriptiondomain.Subscription, planName string) subscriptiondomain.SubscriptionView {
	return subscriptiondomain.SubscriptionView{
		ID:                     item.ID.String(),
		AccountID:              item.AccountID.String(),
		Plan:                   item.Plan,
		PlanName:               planName,
		PriceRef:               item.PriceRef,
		ExternalCustomerID:     item.ExternalCustomerID,
		ExternalSubscriptionID: item.ExternalSubscriptionID,
		IsActive:               item.IsActive,
		CreatedAt:              item.CreatedAt,
		UpdatedAt:              item.UpdatedAt,
	}
}

func parseAccountID(value string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(value))
	if err != nil || id == 0 {
		return 0, subscriptiondomain.ErrInvalidAccount
	}
	return id, nil
}
