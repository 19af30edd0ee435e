package context

import (
	"context"
	"strings"
)

type contextKey string

const (
	requestIDKey contextKey = "obs.request_id"
	accountIDKey contextKey = "obs.account_id"
	providerKey  contextKey = "obs.provider"

	subscriptionIDKey contextKey = "obs.subscription_id"
	planKey           contextKey = "obs.plan"
)

// WithRequestID stores the request id for log and trace correlation.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return withValue(ctx, requestIDKey, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	return valueFrom(ctx, requestIDKey)
}

// WithAccountID stores the authenticated account id.
func WithAccountID(ctx context.Context, accountID string) context.Context {
	return withValue(ctx, accountIDKey, accountID)
}

func AccountIDFromContext(ctx context.Context) string {
	return valueFrom(ctx, accountIDKey)
}

// WithProvider stores the payment provider handling the request.
func WithProvider(ctx context.Context, provider string) context.Context {
	return withValue(ctx, providerKey, provider)
}

func ProviderFromContext(ctx context.Context) string {
	return valueFrom(ctx, providerKey)
}

// WithSubscription stores the ledger record and plan a request acted on.
func WithSubscription(ctx context.Context, subscriptionID string, plan string) context.Context {
	ctx = withValue(ctx, subscriptionIDKey, subscriptionID)
	return withValue(ctx, planKey, plan)
}

func SubscriptionIDFromContext(ctx context.Context) string {
	return valueFrom(ctx, subscriptionIDKey)
}

func PlanFromContext(ctx context.Context) string {
	return valueFrom(ctx, planKey)
}

func withValue(ctx context.Context, key contextKey, value string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return ctx
	}
	return context.WithValue(ctx, key, value)
}

func valueFrom(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(key).(string)
	return value
}
