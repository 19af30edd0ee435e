package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// EventRecord is the audit row for a verified provider webhook.
type EventRecord struct {
	ID                     snowflake.ID   `json:"id" gorm:"primaryKey"`
	Provider               string         `json:"provider" gorm:"type:varchar(32);not null;uniqueIndex:ux_billing_events_provider_event,priority:1"`
	ProviderEventID        string         `json:"provider_event_id" gorm:"type:varchar(255);not null;uniqueIndex:ux_billing_events_provider_event,priority:2"`
	EventType              string         `json:"event_type" gorm:"type:varchar(128);not null"`
	ExternalSubscriptionID *string        `json:"external_subscription_id" gorm:"type:varchar(255);index"`
	Payload                datatypes.JSON `json:"payload" gorm:"not null"`
	ReceivedAt             time.Time      `json:"received_at" gorm:"not null"`
	ProcessedAt            *time.Time     `json:"processed_at"`
}

func (EventRecord) TableName() string { return "billing_events" }

const (
	EventInvoicePaymentSucceeded = "invoice.payment_succeeded"
	EventInvoicePaymentFailed    = "invoice.payment_failed"
	EventSubscriptionDeleted     = "customer.subscription.deleted"
	EventCheckoutCompleted       = "checkout.session.completed"
	EventCheckoutExpired         = "checkout.session.expired"
)

// Event is a verified provider webhook normalized to the fields billing acts on.
// Fields the event type does not carry are left empty.
type Event struct {
	Provider          string
	ID                string
	Type              string
	SubscriptionID    string
	CustomerID        string
	PriceRef          string
	CheckoutReference string
	SessionID         string
	OccurredAt        time.Time
	RawPayload        []byte
}

// CustomerRequest identifies the local account a provider customer belongs to.
type CustomerRequest struct {
	AccountID string
	Email     string
}

// CheckoutRequest opens a hosted checkout for one recurring price.
type CheckoutRequest struct {
	CustomerID string
	PriceRef   string
	Reference  string
	AccountID  string
	Plan       string
	SuccessURL string
	CancelURL  string
}

type CheckoutSession struct {
	SessionID      string
	SubscriptionID string
	URL            string
}

// AdapterConfig is injected into an adapter at construction.
type AdapterConfig struct {
	APIKey        string
	WebhookSecret string
	APIBaseURL    string
	SuccessURL    string
	CancelURL     string
	Timeout       time.Duration
}
