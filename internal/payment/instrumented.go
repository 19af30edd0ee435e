package payment

import (
	"context"
	"time"

	"github.com/smallbiznis/finora/internal/observability/metrics"
	"github.com/smallbiznis/finora/internal/observability/tracing"
	"github.com/smallbiznis/finora/internal/payment/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// instrumentedGateway wraps every outbound provider call in a span and
// records call counts and latency.
type instrumentedGateway struct {
	next      domain.Gateway
	tracer    trace.Tracer
	metrics   *metrics.Metrics
	lifecycle *metrics.LifecycleMetrics
}

func Instrument(next domain.Gateway, m *metrics.Metrics, lifecycle *metrics.LifecycleMetrics) domain.Gateway {
	return &instrumentedGateway{
		next:      next,
		tracer:    otel.Tracer("finora/payment"),
		metrics:   m,
		lifecycle: lifecycle,
	}
}

func (g *instrumentedGateway) Provider() string {
	return g.next.Provider()
}

func (g *instrumentedGateway) EnsureCustomer(ctx context.Context, req domain.CustomerRequest) (string, error) {
	var id string
	err := g.observe(ctx, "ensure_customer", func(ctx context.Context) error {
		var err error
		id, err = g.next.EnsureCustomer(ctx, req)
		return err
	}, attribute.String("account.id", req.AccountID))
	return id, err
}

func (g *instrumentedGateway) StartPaidSubscription(ctx context.Context, req domain.CheckoutRequest) (domain.CheckoutSession, error) {
	var session domain.CheckoutSession
	err := g.observe(ctx, "start_checkout", func(ctx context.Context) error {
		var err error
		session, err = g.next.StartPaidSubscription(ctx, req)
		return err
	}, attribute.String("account.id", req.AccountID), attribute.String("billing.plan", req.Plan))
	return session, err
}

func (g *instrumentedGateway) ChangeSubscriptionItem(ctx context.Context, subscriptionID, newPriceRef string) error {
	return g.observe(ctx, "change_subscription_item", func(ctx context.Context) error {
		return g.next.ChangeSubscriptionItem(ctx, subscriptionID, newPriceRef)
	}, attribute.String("billing.subscription_id", subscriptionID), attribute.String("billing.price_ref", newPriceRef))
}

func (g *instrumentedGateway) CancelSubscription(ctx context.Context, subscriptionID string) error {
	return g.observe(ctx, "cancel_subscription", func(ctx context.Context) error {
		return g.next.CancelSubscription(ctx, subscriptionID)
	}, attribute.String("billing.subscription_id", subscriptionID))
}

func (g *instrumentedGateway) ResolvePlanName(ctx context.Context, priceRef string) (string, error) {
	var name string
	err := g.observe(ctx, "resolve_plan_name", func(ctx context.Context) error {
		var err error
		name, err = g.next.ResolvePlanName(ctx, priceRef)
		return err
	}, attribute.String("billing.price_ref", priceRef))
	return name, err
}

func (g *instrumentedGateway) AttachPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error {
	return g.observe(ctx, "attach_payment_method", func(ctx context.Context) error {
		return g.next.AttachPaymentMethod(ctx, customerID, paymentMethodID)
	}, attribute.String("billing.customer_id", customerID))
}

// ParseEvent is local signature verification and is not counted as a provider call.
func (g *instrumentedGateway) ParseEvent(ctx context.Context, payload []byte, signatureHeader string) (domain.Event, error) {
	return g.next.ParseEvent(ctx, payload, signatureHeader)
}

func (g *instrumentedGateway) observe(ctx context.Context, operation string, call func(context.Context) error, attrs ...attribute.KeyValue) error {
	provider := g.next.Provider()
	attrs = append(attrs,
		attribute.String("payment.provider", provider),
		attribute.String("payment.operation", operation),
	)
	ctx, span := g.tracer.Start(ctx, "payment."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(tracing.SafeAttributes(attrs...)...),
	)
	defer span.End()

	start := time.Now()
	err := call(ctx)
	g.lifecycle.ObserveProviderCall(operation, time.Since(start))

	outcome := "success"
	if err != nil {
		outcome = "error"
		if providerErr, ok := domain.AsProviderError(err); ok {
			outcome = providerErr.Code
			span.SetAttributes(attribute.String("payment.error_code", providerErr.Code))
		}
		span.RecordError(tracing.SafeError(err))
		span.SetStatus(codes.Error, operation+" failed")
	}
	g.metrics.RecordProviderCall(ctx, provider, operation, outcome)
	return err
}
