// Package domain contains the subscription ledger and the lifecycle contract.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// State is the per-account lifecycle position.
type State string

const (
	StateNone            State = "NONE"
	StatePendingCheckout State = "PENDING_CHECKOUT"
	StateActive          State = "ACTIVE"
	StateCanceled        State = "CANCELED"
)

// Subscription is one ledger record. At most one record per account is active.
// Free-tier records have no external subscription id.
type Subscription struct {
	ID                     snowflake.ID `gorm:"primaryKey"`
	AccountID              snowflake.ID `gorm:"not null;index:idx_subscriptions_account_created,priority:1"`
	ExternalCustomerID     string       `gorm:"type:varchar(255);not null"`
	ExternalSubscriptionID *string      `gorm:"type:varchar(255);uniqueIndex:ux_subscriptions_external_subscription"`
	Plan                   string       `gorm:"type:varchar(64);not null"`
	PriceRef               *string      `gorm:"type:varchar(255)"`
	IsActive               bool         `gorm:"not null"`
	CreatedAt              time.Time    `gorm:"not null;index:idx_subscriptions_account_created,priority:2"`
	UpdatedAt              time.Time    `gorm:"not null"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

// IsFree reports whether the record belongs to the free tier.
func (s Subscription) IsFree() bool {
	return s.ExternalSubscriptionID == nil || *s.ExternalSubscriptionID == ""
}

// BillingCustomer maps an account to its provider customer. Rows are never updated.
type BillingCustomer struct {
	ID                 snowflake.ID `gorm:"primaryKey"`
	AccountID          snowflake.ID `gorm:"not null;uniqueIndex:ux_billing_customers_account"`
	Provider           string       `gorm:"type:varchar(32);not null"`
	ExternalCustomerID string       `gorm:"type:varchar(255);not null;uniqueIndex:ux_billing_customers_external"`
	CreatedAt          time.Time    `gorm:"not null"`
}

func (BillingCustomer) TableName() string { return "billing_customers" }

type CheckoutStatus string

const (
	CheckoutStatusOpen      CheckoutStatus = "OPEN"
	CheckoutStatusCompleted CheckoutStatus = "COMPLETED"
	CheckoutStatusExpired   CheckoutStatus = "EXPIRED"

	// CheckoutStatusOrphaned marks a confirmed paid checkout that could not be
	// recorded because the account already held an active subscription.
	CheckoutStatusOrphaned CheckoutStatus = "ORPHANED"
)

// Checkout is a hosted checkout issued for a paid plan. The ledger record is
// created only once the provider confirms the first payment.
type Checkout struct {
	ID                     snowflake.ID   `gorm:"primaryKey"`
	Reference              string         `gorm:"type:varchar(26);not null;uniqueIndex:ux_billing_checkouts_reference"`
	AccountID              snowflake.ID   `gorm:"not null;index:idx_billing_checkouts_account_status,priority:1"`
	ExternalCustomerID     string         `gorm:"type:varchar(255);not null"`
	ExternalSessionID      string         `gorm:"type:varchar(255);not null"`
	ExternalSubscriptionID *string        `gorm:"type:varchar(255);index"`
	Plan                   string         `gorm:"type:varchar(64);not null"`
	PriceRef               string         `gorm:"type:varchar(255);not null"`
	Status                 CheckoutStatus `gorm:"type:varchar(16);not null;index:idx_billing_checkouts_account_status,priority:2"`
	CreatedAt              time.Time      `gorm:"not null"`
	UpdatedAt              time.Time      `gorm:"not null"`
}

func (Checkout) TableName() string { return "billing_checkouts" }
