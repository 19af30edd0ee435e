package domain

import (
	"context"
	"errors"
	"time"

	accountdomain "github.com/smallbiznis/finora/internal/account/domain"
)

type SubscribeRequest struct {
	Plan string `json:"plan"`
}

type SubscribeResponse struct {
	State             State             `json:"state"`
	Subscription      *SubscriptionView `json:"subscription,omitempty"`
	CheckoutURL       string            `json:"checkout_url,omitempty"`
	CheckoutReference string            `json:"checkout_reference,omitempty"`
}

type UpgradeRequest struct {
	PriceRef string `json:"price_ref"`
}

type UpdatePaymentMethodRequest struct {
	PaymentMethodID string `json:"payment_method_id"`
}

// SubscriptionView is a ledger record as returned to clients. PlanName is the
// display name; for paid records it is resolved from the provider.
type SubscriptionView struct {
	ID                     string    `json:"id"`
	AccountID              string    `json:"account_id"`
	Plan                   string    `json:"plan"`
	PlanName               string    `json:"plan_name"`
	PriceRef               *string   `json:"price_ref,omitempty"`
	ExternalCustomerID     string    `json:"external_customer_id,omitempty"`
	ExternalSubscriptionID *string   `json:"external_subscription_id,omitempty"`
	IsActive               bool      `json:"is_active"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

type StateResponse struct {
	State             State  `json:"state"`
	Plan              string `json:"plan,omitempty"`
	CheckoutReference string `json:"checkout_reference,omitempty"`
}

//go:generate mockgen -source=service.go -destination=./mocks/mock_service.go -package=mocks
type Service interface {
	Subscribe(ctx context.Context, account accountdomain.Account, req SubscribeRequest) (SubscribeResponse, error)
	Upgrade(ctx context.Context, account accountdomain.Account, req UpgradeRequest) (SubscriptionView, error)
	Cancel(ctx context.Context, account accountdomain.Account) (SubscriptionView, error)
	List(ctx context.Context, accountID string) ([]SubscriptionView, error)
	GetActive(ctx context.Context, accountID string) (SubscriptionView, error)
	State(ctx context.Context, accountID string) (StateResponse, error)
	UpdatePaymentMethod(ctx context.Context, account accountdomain.Account, req UpdatePaymentMethodRequest) error
	// HandleWebhookEvent returns an error only for requests that are not verified
	// provider events. Processing failures are logged and absorbed.
	HandleWebhookEvent(ctx context.Context, provider string, payload []byte, signature string) error
}

var (
	ErrConflict             = errors.New("subscription_conflict")
	ErrInvalidPlan          = errors.New("invalid_plan")
	ErrNotFound             = errors.New("subscription_not_found")
	ErrInvalidAccount       = errors.New("invalid_account")
	ErrInvalidPaymentMethod = errors.New("invalid_payment_method")
	ErrRateLimited          = errors.New("rate_limited")
	ErrUnknownProvider      = errors.New("unknown_provider")
)
