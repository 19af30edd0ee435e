package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	FindActiveByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (*Subscription, error)
	FindByExternalID(ctx context.Context, db *gorm.DB, externalSubscriptionID string) (*Subscription, error)
	ListByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID) ([]Subscription, error)
	CountByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (int64, error)
	UpdatePlan(ctx context.Context, db *gorm.DB, id snowflake.ID, plan string, priceRef string, updatedAt time.Time) error
	// SetActiveByExternalID reports the number of records matched.
	SetActiveByExternalID(ctx context.Context, db *gorm.DB, externalSubscriptionID string, active bool, updatedAt time.Time) (int64, error)
	Deactivate(ctx context.Context, db *gorm.DB, id snowflake.ID, updatedAt time.Time) error

	FindCustomer(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (*BillingCustomer, error)
	FindCustomerByExternalID(ctx context.Context, db *gorm.DB, externalCustomerID string) (*BillingCustomer, error)
	// InsertCustomer keeps the first mapping when one already exists.
	InsertCustomer(ctx context.Context, db *gorm.DB, customer *BillingCustomer) error

	InsertCheckout(ctx context.Context, db *gorm.DB, checkout *Checkout) error
	FindCheckoutByReference(ctx context.Context, db *gorm.DB, reference string) (*Checkout, error)
	FindCheckoutBySubscriptionID(ctx context.Context, db *gorm.DB, externalSubscriptionID string) (*Checkout, error)
	FindLatestOpenCheckout(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (*Checkout, error)
	LinkCheckoutSubscription(ctx context.Context, db *gorm.DB, id snowflake.ID, externalSubscriptionID string, updatedAt time.Time) error
	UpdateCheckoutStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to CheckoutStatus, updatedAt time.Time) error
}
