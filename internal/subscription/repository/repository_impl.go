package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	subscriptiondomain "github.com/smallbiznis/finora/internal/subscription/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() subscriptiondomain.Repository {
	return &repo{}
}

const subscriptionColumns = `id, account_id, external_customer_id, external_subscription_id, plan,
	price_ref, is_active, created_at, updated_at`

const checkoutColumns = `id, reference, account_id, external_customer_id, external_session_id,
	external_subscription_id, plan, price_ref, status, created_at, updated_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, subscription *subscriptiondomain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (`+subscriptionColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		subscription.ID,
		subscription.AccountID,
		subscription.ExternalCustomerID,
		subscription.ExternalSubscriptionID,
		subscription.Plan,
		subscription.PriceRef,
		subscription.IsActive,
		subscription.CreatedAt,
		subscription.UpdatedAt,
	).Error
}

func (r *repo) FindActiveByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (*subscriptiondomain.Subscription, error) {
	var item subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+`
		 FROM subscriptions
		 WHERE account_id = ? AND is_active = ?
		 LIMIT 1`,
		accountID,
		true,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindByExternalID(ctx context.Context, db *gorm.DB, externalSubscriptionID string) (*subscriptiondomain.Subscription, error) {
	var item subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+`
		 FROM subscriptions
		 WHERE external_subscription_id = ?
		 LIMIT 1`,
		externalSubscriptionID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID) ([]subscriptiondomain.Subscription, error) {
	var items []subscriptiondomain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT `+subscriptionColumns+`
		 FROM subscriptions
		 WHERE account_id = ?
		 ORDER BY created_at DESC, id DESC`,
		accountID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) CountByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM subscriptions WHERE account_id = ?`,
		accountID,
	).Scan(&count).Error
	return count, err
}

func (r *repo) UpdatePlan(ctx context.Context, db *gorm.DB, id snowflake.ID, plan string, priceRef string, updatedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET plan = ?, price_ref = ?, updated_at = ?
		 WHERE id = ?`,
		plan,
		priceRef,
		updatedAt,
		id,
	).Error
}

func (r *repo) SetActiveByExternalID(ctx context.Context, db *gorm.DB, externalSubscriptionID string, active bool, updatedAt time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET is_active = ?, updated_at = ?
		 WHERE external_subscription_id = ?`,
		active,
		updatedAt,
		externalSubscriptionID,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) Deactivate(ctx context.Context, db *gorm.DB, id snowflake.ID, updatedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET is_active = ?, updated_at = ?
		 WHERE id = ?`,
		false,
		updatedAt,
		id,
	).Error
}

func (r *repo) FindCustomer(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (*subscriptiondomain.BillingCustomer, error) {
	var item subscriptiondomain.BillingCustomer
	err := db.WithContext(ctx).Raw(
		`SELECT id, account_id, provider, external_customer_id, created_at
		 FROM billing_customers
		 WHERE account_id = ?
		 LIMIT 1`,
		accountID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindCustomerByExternalID(ctx context.Context, db *gorm.DB, externalCustomerID string) (*subscriptiondomain.BillingCustomer, error) {
	var item subscriptiondomain.BillingCustomer
	err := db.WithContext(ctx).Raw(
		`SELECT id, account_id, provider, external_customer_id, created_at
		 FROM billing_customers
		 WHERE external_customer_id = ?
		 LIMIT 1`,
		externalCustomerID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) InsertCustomer(ctx context.Context, db *gorm.DB, customer *subscriptiondomain.BillingCustomer) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(customer).Error
}

func (r *repo) InsertCheckout(ctx context.Context, db *gorm.DB, checkout *subscriptiondomain.Checkout) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO billing_checkouts (`+checkoutColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		checkout.ID,
		checkout.Reference,
		checkout.AccountID,
		checkout.ExternalCustomerID,
		checkout.ExternalSessionID,
		checkout.ExternalSubscriptionID,
		checkout.Plan,
		checkout.PriceRef,
		checkout.Status,
		checkout.CreatedAt,
		checkout.UpdatedAt,
	).Error
}

func (r *repo) FindCheckoutByReference(ctx context.Context, db *gorm.DB, reference string) (*subscriptiondomain.Checkout, error) {
	return r.findCheckout(ctx, db, `reference = ?`, reference)
}

func (r *repo) FindCheckoutBySubscriptionID(ctx context.Context, db *gorm.DB, externalSubscriptionID string) (*subscriptiondomain.Checkout, error) {
	return r.findCheckout(ctx, db, `external_subscription_id = ?`, externalSubscriptionID)
}

func (r *repo) FindLatestOpenCheckout(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (*subscriptiondomain.Checkout, error) {
	return r.findCheckout(ctx, db, `account_id = ? AND status = ?`, accountID, subscriptiondomain.CheckoutStatusOpen)
}

func (r *repo) findCheckout(ctx context.Context, db *gorm.DB, where string, args ...any) (*subscriptiondomain.Checkout, error) {
	var item subscriptiondomain.Checkout
	err := db.WithContext(ctx).Raw(
		`SELECT `+checkoutColumns+`
		 FROM billing_checkouts
		 WHERE `+where+`
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`,
		args...,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) LinkCheckoutSubscription(ctx context.Context, db *gorm.DB, id snowflake.ID, externalSubscriptionID string, updatedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE billing_checkouts
		 SET external_subscription_id = ?, updated_at = ?
		 WHERE id = ?`,
		externalSubscriptionID,
		updatedAt,
		id,
	).Error
}

func (r *repo) UpdateCheckoutStatus(ctx context.Context, db *gorm.DB, id snowflake.ID, from, to subscriptiondomain.CheckoutStatus, updatedAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE billing_checkouts
		 SET status = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		to,
		updatedAt,
		id,
		from,
	).Error
}
