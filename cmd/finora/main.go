package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/finora/internal/account"
	"github.com/smallbiznis/finora/internal/authorization"
	"github.com/smallbiznis/finora/internal/cache"
	"github.com/smallbiznis/finora/internal/clock"
	"github.com/smallbiznis/finora/internal/config"
	"github.com/smallbiznis/finora/internal/migration"
	"github.com/smallbiznis/finora/internal/observability"
	"github.com/smallbiznis/finora/internal/payment"
	"github.com/smallbiznis/finora/internal/ratelimit"
	"github.com/smallbiznis/finora/internal/server"
	"github.com/smallbiznis/finora/internal/subscription"
	"github.com/smallbiznis/finora/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		fx.Provide(RegisterSnowflake),
		clock.Module,
		db.Module,
		migration.Module,
		ratelimit.Module,
		cache.Module,

		// Domains
		account.Module,
		authorization.Module,
		payment.Module,
		subscription.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}
