package service

import (
	"context"
	"errors"
	"strings"

	obscontext "github.com/smallbiznis/finora/internal/observability/context"
	"github.com/smallbiznis/finora/internal/observability/logger"
	"github.com/smallbiznis/finora/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/finora/internal/payment/domain"
	subscriptiondomain "github.com/smallbiznis/finora/internal/subscription/domain"
	"github.com/smallbiznis/finora/pkg/db"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	outcomeApplied   = "applied"
	outcomeIgnored   = "ignored"
	outcomeMissed    = "missed"
	outcomeFailed    = "failed"
	outcomeRejected  = "rejected"
	outcomeMalformed = "malformed"
	outcomeOrphaned  = "orphaned"
)

var (
	errUnmatchedPayment = errors.New("unmatched_payment")
	errOrphanedPayment  = errors.New("orphaned_payment")
)

// HandleWebhookEvent implements domain.Service. Only unverifiable requests are
// rejected; every handler is an assignment keyed by the external subscription
// id so redelivery leaves state unchanged.
func (s *Service) HandleWebhookEvent(ctx context.Context, provider string, payload []byte, signature string) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider != s.gateway.Provider() {
		return subscriptiondomain.ErrUnknownProvider
	}
	ctx = obscontext.WithProvider(ctx, provider)
	log := logger.WithContext(ctx, s.log)

	event, err := s.gateway.ParseEvent(ctx, payload, signature)
	if err != nil {
		if errors.Is(err, paymentdomain.ErrInvalidSignature) {
			s.metrics.RecordWebhookEvent(ctx, provider, "unknown", outcomeRejected)
			log.Warn("webhook signature rejected")
			return paymentdomain.ErrInvalidSignature
		}
		s.metrics.RecordWebhookEvent(ctx, provider, "unknown", outcomeMalformed)
		log.Warn("webhook payload discarded", zap.Error(err))
		return nil
	}

	log = log.With(zap.String("event_id", event.ID), zap.String("event_type", event.Type))

	record, inserted := s.recordEvent(ctx, log, event)
	if !inserted {
		log.Info("webhook event redelivered")
	}

	outcome, err := s.applyEvent(ctx, log, event)
	if err != nil {
		outcome = outcomeFailed
		s.lifecycle.RecordError("webhook", err)
		log.Error("webhook event not applied", zap.Error(err))
	} else if record != nil {
		if err := s.paymentRepo.MarkProcessed(ctx, s.db, record.ID, s.clock.Now()); err != nil {
			log.Warn("webhook event not marked processed", zap.Error(err))
		}
	}

	s.metrics.RecordWebhookEvent(ctx, provider, metricEventType(event.Type), outcome)
	return nil
}

// recordEvent stores the event for audit. Storage failures never block processing.
func (s *Service) recordEvent(ctx context.Context, log *zap.Logger, event paymentdomain.Event) (*paymentdomain.EventRecord, bool) {
	record := &paymentdomain.EventRecord{
		ID:              s.genID.Generate(),
		Provider:        event.Provider,
		ProviderEventID: event.ID,
		EventType:       event.Type,
		Payload:         datatypes.JSON(event.RawPayload),
		ReceivedAt:      s.clock.Now(),
	}
	if event.SubscriptionID != "" {
		subscriptionID := event.SubscriptionID
		record.ExternalSubscriptionID = &subscriptionID
	}

	inserted, err := s.paymentRepo.InsertEvent(ctx, s.db, record)
	if err != nil {
		log.Warn("webhook event not recorded", zap.Error(err))
		return nil, true
	}
	if !inserted {
		existing, err := s.paymentRepo.FindEvent(ctx, s.db, event.Provider, event.ID)
		if err != nil {
			log.Warn("recorded webhook event lookup failed", zap.Error(err))
		}
		return existing, false
	}
	return record, true
}

func (s *Service) applyEvent(ctx context.Context, log *zap.Logger, event paymentdomain.Event) (string, error) {
	switch event.Type {
	case paymentdomain.EventInvoicePaymentSucceeded:
		return s.handlePaymentSucceeded(ctx, log, event)
	case paymentdomain.EventInvoicePaymentFailed, paymentdomain.EventSubscriptionDeleted:
		return s.handleDeactivation(ctx, log, event)
	case paymentdomain.EventCheckoutCompleted:
		return s.handleCheckoutCompleted(ctx, log, event)
	case paymentdomain.EventCheckoutExpired:
		return s.handleCheckoutExpired(ctx, log, event)
	default:
		log.Debug("webhook event ignored")
		return outcomeIgnored, nil
	}
}

func (s *Service) handlePaymentSucceeded(ctx context.Context, log *zap.Logger, event paymentdomain.Event) (string, error) {
	if event.SubscriptionID == "" {
		log.Info("invoice without subscription ignored")
		return outcomeIgnored, nil
	}

	existing, err := s.repo.FindByExternalID(ctx, s.db, event.SubscriptionID)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return s.activateExisting(ctx, log, existing)
	}

	var checkout *subscriptiondomain.Checkout
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		checkout, txErr = s.createFromPayment(ctx, tx, log, event)
		return txErr
	})
	if errors.Is(err, errUnmatchedPayment) {
		return outcomeMissed, nil
	}
	if err != nil {
		if !db.IsDuplicateKeyErr(err) {
			return "", err
		}
		// A concurrent delivery created the record first.
		existing, findErr := s.repo.FindByExternalID(ctx, s.db, event.SubscriptionID)
		if findErr != nil {
			return "", findErr
		}
		if existing == nil {
			return s.orphanPayment(ctx, log, event, checkout)
		}
		return s.activateExisting(ctx, log, existing)
	}
	return outcomeApplied, nil
}

// orphanPayment handles a confirmed paid subscription whose account already
// holds another active record. The checkout is closed as ORPHANED so it stops
// reporting PENDING_CHECKOUT, and the provider subscription is left for
// operators to cancel or refund.
func (s *Service) orphanPayment(ctx context.Context, log *zap.Logger, event paymentdomain.Event, checkout *subscriptiondomain.Checkout) (string, error) {
	log = log.With(zap.String("external_subscription_id", event.SubscriptionID))
	if checkout != nil {
		now := s.clock.Now()
		if checkout.ExternalSubscriptionID == nil {
			if err := s.repo.LinkCheckoutSubscription(ctx, s.db, checkout.ID, event.SubscriptionID, now); err != nil {
				return "", err
			}
		}
		if err := s.repo.UpdateCheckoutStatus(ctx, s.db, checkout.ID, subscriptiondomain.CheckoutStatusOpen, subscriptiondomain.CheckoutStatusOrphaned, now); err != nil {
			return "", err
		}
		log = logger.WithAccount(log, int64(checkout.AccountID)).With(zap.String("checkout_reference", checkout.Reference))
	}
	s.lifecycle.RecordError("webhook", errOrphanedPayment)
	log.Error("orphaned paid subscription: account already has an active subscription")
	return outcomeOrphaned, nil
}

func (s *Service) activateExisting(ctx context.Context, log *zap.Logger, existing *subscriptiondomain.Subscription) (string, error) {
	if existing.IsActive {
		return outcomeApplied, nil
	}
	if _, err := s.repo.SetActiveByExternalID(ctx, s.db, *existing.ExternalSubscriptionID, true, s.clock.Now()); err != nil {
		return "", err
	}
	s.lifecycle.RecordTransition(metrics.StateCanceled, metrics.StateActive)
	log.Info("subscription reactivated", zap.String("subscription_id", existing.ID.String()))
	return outcomeApplied, nil
}

// createFromPayment creates the ledger record for a paid checkout on its first
// confirmed payment. The account is resolved from the checkout linked to the
// subscription, falling back to the customer mapping.
func (s *Service) createFromPayment(ctx context.Context, tx *gorm.DB, log *zap.Logger, event paymentdomain.Event) (*subscriptiondomain.Checkout, error) {
	checkout, err := s.repo.FindCheckoutBySubscriptionID(ctx, tx, event.SubscriptionID)
	if err != nil {
		return checkout, err
	}

	var customer *subscriptiondomain.BillingCustomer
	if event.CustomerID != "" {
		customer, err = s.repo.FindCustomerByExternalID(ctx, tx, event.CustomerID)
		if err != nil {
			return checkout, err
		}
	}
	if checkout == nil && customer != nil {
		checkout, err = s.repo.FindLatestOpenCheckout(ctx, tx, customer.AccountID)
		if err != nil {
			return checkout, err
		}
	}

	record := subscriptiondomain.Subscription{
		ID:                     s.genID.Generate(),
		ExternalSubscriptionID: &event.SubscriptionID,
		IsActive:               true,
	}
	switch {
	case checkout != nil:
		record.AccountID = checkout.AccountID
		record.ExternalCustomerID = checkout.ExternalCustomerID
		record.Plan = checkout.Plan
		record.PriceRef = &checkout.PriceRef
	case customer != nil:
		record.AccountID = customer.AccountID
		record.ExternalCustomerID = customer.ExternalCustomerID
	default:
		log.Warn("payment for unknown subscription", zap.String("external_subscription_id", event.SubscriptionID))
		return nil, errUnmatchedPayment
	}

	if event.PriceRef != "" && (record.PriceRef == nil || *record.PriceRef != event.PriceRef) {
		priceRef := event.PriceRef
		record.PriceRef = &priceRef
		record.Plan = ""
		if plan, ok := s.catalog.Get().ByPriceRef(priceRef); ok {
			record.Plan = plan.Code
		}
	}
	if record.Plan == "" {
		record.Plan = unknownPlanName
	}
	if record.ExternalCustomerID == "" {
		record.ExternalCustomerID = event.CustomerID
	}

	now := s.clock.Now()
	record.CreatedAt = now
	record.UpdatedAt = now
	if err := s.repo.Insert(ctx, tx, &record); err != nil {
		return checkout, err
	}

	if checkout != nil {
		if checkout.ExternalSubscriptionID == nil {
			if err := s.repo.LinkCheckoutSubscription(ctx, tx, checkout.ID, event.SubscriptionID, now); err != nil {
				return checkout, err
			}
		}
		if err := s.repo.UpdateCheckoutStatus(ctx, tx, checkout.ID, subscriptiondomain.CheckoutStatusOpen, subscriptiondomain.CheckoutStatusCompleted, now); err != nil {
			return checkout, err
		}
	}

	s.lifecycle.RecordTransition(metrics.StatePendingCheckout, metrics.StateActive)
	logger.WithAccount(log, int64(record.AccountID)).Info("paid subscription activated",
		zap.String("subscription_id", record.ID.String()),
		zap.String("plan", record.Plan),
	)
	return checkout, nil
}

func (s *Service) handleDeactivation(ctx context.Context, log *zap.Logger, event paymentdomain.Event) (string, error) {
	if event.SubscriptionID == "" {
		log.Info("event without subscription ignored")
		return outcomeIgnored, nil
	}

	existing, err := s.repo.FindByExternalID(ctx, s.db, event.SubscriptionID)
	if err != nil {
		return "", err
	}
	if existing == nil {
		log.Warn("no subscription for event", zap.String("external_subscription_id", event.SubscriptionID))
		return outcomeMissed, nil
	}
	if !existing.IsActive {
		return outcomeApplied, nil
	}

	if _, err := s.repo.SetActiveByExternalID(ctx, s.db, event.SubscriptionID, false, s.clock.Now()); err != nil {
		return "", err
	}
	s.lifecycle.RecordTransition(metrics.StateActive, metrics.StateCanceled)
	logger.WithAccount(log, int64(existing.AccountID)).Info("subscription deactivated",
		zap.String("subscription_id", existing.ID.String()),
	)
	return outcomeApplied, nil
}

func (s *Service) handleCheckoutCompleted(ctx context.Context, log *zap.Logger, event paymentdomain.Event) (string, error) {
	if event.CheckoutReference == "" || event.SubscriptionID == "" {
		return outcomeIgnored, nil
	}
	checkout, err := s.repo.FindCheckoutByReference(ctx, s.db, event.CheckoutReference)
	if err != nil {
		return "", err
	}
	if checkout == nil {
		log.Warn("no checkout for event", zap.String("checkout_reference", event.CheckoutReference))
		return outcomeMissed, nil
	}
	if checkout.ExternalSubscriptionID != nil && *checkout.ExternalSubscriptionID == event.SubscriptionID {
		return outcomeApplied, nil
	}
	if err := s.repo.LinkCheckoutSubscription(ctx, s.db, checkout.ID, event.SubscriptionID, s.clock.Now()); err != nil {
		return "", err
	}
	return outcomeApplied, nil
}

func (s *Service) handleCheckoutExpired(ctx context.Context, log *zap.Logger, event paymentdomain.Event) (string, error) {
	if event.CheckoutReference == "" {
		return outcomeIgnored, nil
	}
	checkout, err := s.repo.FindCheckoutByReference(ctx, s.db, event.CheckoutReference)
	if err != nil {
		return "", err
	}
	if checkout == nil {
		return outcomeMissed, nil
	}
	if checkout.Status != subscriptiondomain.CheckoutStatusOpen {
		return outcomeApplied, nil
	}
	if err := s.repo.UpdateCheckoutStatus(ctx, s.db, checkout.ID, subscriptiondomain.CheckoutStatusOpen, subscriptiondomain.CheckoutStatusExpired, s.clock.Now()); err != nil {
		return "", err
	}
	s.lifecycle.RecordTransition(metrics.StatePendingCheckout, metrics.StateNone)
	log.Info("checkout expired", zap.String("checkout_reference", checkout.Reference))
	return outcomeApplied, nil
}

// metricEventType bounds the event_type label to the handled set.
func metricEventType(eventType string) string {
	switch eventType {
	case paymentdomain.EventInvoicePaymentSucceeded,
		paymentdomain.EventInvoicePaymentFailed,
		paymentdomain.EventSubscriptionDeleted,
		paymentdomain.EventCheckoutCompleted,
		paymentdomain.EventCheckoutExpired:
		return eventType
	}
	return "other"
}
