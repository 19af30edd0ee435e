package domain

import "context"

// Gateway is the billing provider contract. Every failure is a *ProviderError
// except ParseEvent, which returns ErrInvalidSignature or ErrInvalidPayload.
type Gateway interface {
	Provider() string
	// EnsureCustomer returns the provider customer for the account, creating one if none exists.
	EnsureCustomer(ctx context.Context, req CustomerRequest) (string, error)
	// StartPaidSubscription opens a hosted checkout for a recurring price.
	StartPaidSubscription(ctx context.Context, req CheckoutRequest) (CheckoutSession, error)
	// ChangeSubscriptionItem replaces the price on the subscription's single item.
	ChangeSubscriptionItem(ctx context.Context, subscriptionID, newPriceRef string) error
	CancelSubscription(ctx context.Context, subscriptionID string) error
	// ResolvePlanName returns the display name of the product behind priceRef.
	ResolvePlanName(ctx context.Context, priceRef string) (string, error)
	// AttachPaymentMethod attaches the method to the customer and makes it the invoice default.
	AttachPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error
	ParseEvent(ctx context.Context, payload []byte, signatureHeader string) (Event, error)
}

type AdapterFactory interface {
	Provider() string
	NewAdapter(cfg AdapterConfig) (Gateway, error)
}
