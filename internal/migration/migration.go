package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	accountdomain "github.com/smallbiznis/finora/internal/account/domain"
	paymentdomain "github.com/smallbiznis/finora/internal/payment/domain"
	subscriptiondomain "github.com/smallbiznis/finora/internal/subscription/domain"
	"github.com/smallbiznis/finora/pkg/db"
	"gorm.io/gorm"
)

// RunMigrations applies the embedded postgres migrations.
func RunMigrations(sqlDB *sql.DB) error {
	if sqlDB == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// EnsureSchema creates the billing tables on dialects without SQL migrations,
// including the one-active-subscription-per-account index.
func EnsureSchema(conn *gorm.DB, dialect string) error {
	if err := conn.AutoMigrate(
		&accountdomain.Account{},
		&subscriptiondomain.Subscription{},
		&subscriptiondomain.BillingCustomer{},
		&subscriptiondomain.Checkout{},
		&paymentdomain.EventRecord{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	switch dialect {
	case db.DialectMySQL:
		if !conn.Migrator().HasColumn(&subscriptiondomain.Subscription{}, "active_account_id") {
			if err := conn.Exec(
				`ALTER TABLE subscriptions
				 ADD COLUMN active_account_id BIGINT AS (CASE WHEN is_active THEN account_id ELSE NULL END) VIRTUAL`,
			).Error; err != nil {
				return fmt.Errorf("add active account column: %w", err)
			}
		}
		if !conn.Migrator().HasIndex(&subscriptiondomain.Subscription{}, "ux_subscriptions_active_account") {
			if err := conn.Exec(
				`CREATE UNIQUE INDEX ux_subscriptions_active_account ON subscriptions (active_account_id)`,
			).Error; err != nil {
				return fmt.Errorf("create active account index: %w", err)
			}
		}
	default:
		if err := conn.Exec(
			`CREATE UNIQUE INDEX IF NOT EXISTS ux_subscriptions_active_account
			 ON subscriptions (account_id) WHERE is_active`,
		).Error; err != nil {
			return fmt.Errorf("create active account index: %w", err)
		}
	}
	return nil
}
