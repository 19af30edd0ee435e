package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextValues(t *testing.T) {
	ctx := WithRequestID(context.Background(), " req-1 ")
	ctx = WithAccountID(ctx, "42")
	ctx = WithProvider(ctx, "stripe")

	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
	assert.Equal(t, "42", AccountIDFromContext(ctx))
	assert.Equal(t, "stripe", ProviderFromContext(ctx))
}

func TestBlankValuesAreIgnored(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithRequestID(ctx, "  ")

	assert.Equal(t, "req-1", RequestIDFromContext(ctx))
	assert.Empty(t, AccountIDFromContext(nil))
}

func TestSubscriptionValues(t *testing.T) {
	ctx := WithSubscription(context.Background(), "1900", "pro")
	assert.Equal(t, "1900", SubscriptionIDFromContext(ctx))
	assert.Equal(t, "pro", PlanFromContext(ctx))

	ctx = WithSubscription(context.Background(), "", "basic")
	assert.Empty(t, SubscriptionIDFromContext(ctx))
	assert.Equal(t, "basic", PlanFromContext(ctx))
}
