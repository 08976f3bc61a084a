package migration

import (
	"strings"

	"github.com/smallbiznis/tirta/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, log *zap.Logger) error {
		dbType := strings.ToLower(strings.TrimSpace(cfg.DBType))
		if dbType != "" && dbType != "postgres" {
			log.Warn("migrations.skipped", zap.String("db_type", dbType))
			return nil
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		if err := RunMigrations(sqlDB); err != nil {
			return err
		}
		log.Info("migrations.applied")
		return nil
	}),
)
