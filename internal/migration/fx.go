package migration

import (
	"strings"

	"github.com/smallbiznis/finora/internal/config"
	"github.com/smallbiznis/finora/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		if !cfg.DBAutoMigrate {
			log.Info("database migrations disabled")
			return nil
		}

		dialect := strings.ToLower(strings.TrimSpace(cfg.DBType))
		if dialect != db.DialectPostgres {
			return EnsureSchema(conn, dialect)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
