package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallbiznis/tirta/internal/config"
	obslogger "github.com/smallbiznis/tirta/internal/observability/logger"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormprometheus "gorm.io/plugin/prometheus"
)

var Module = fx.Module("db",
	fx.Provide(FromAppConfig),
	fx.Provide(New),
)

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    Config
	AppConfig config.Config
	Log       *zap.Logger
}

// New opens the gorm connection, installs tracing and pool metrics plugins,
// and closes the pool on shutdown.
func New(p Params) (*gorm.DB, error) {
	dialector, err := Dialect(p.Config)
	if err != nil {
		return nil, err
	}

	gormLog := obslogger.NewGormLogger(obslogger.DefaultGormLoggerConfig())
	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormLog,
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", p.Config.Type, err)
	}

	if err := conn.Use(otelgorm.NewPlugin(otelgorm.WithDBName(p.Config.Name))); err != nil {
		return nil, fmt.Errorf("install otelgorm: %w", err)
	}

	if !strings.EqualFold(p.Config.Type, "sqlite") {
		if err := conn.Use(gormprometheus.New(gormprometheus.Config{
			DBName:          p.Config.Name,
			RefreshInterval: 15,
			StartServer:     false,
			Labels: map[string]string{
				"service": p.AppConfig.AppName,
				"env":     p.AppConfig.Environment,
			},
		})); err != nil {
			return nil, fmt.Errorf("install gorm prometheus: %w", err)
		}
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	if p.Config.MaxIdleConn > 0 {
		sqlDB.SetMaxIdleConns(p.Config.MaxIdleConn)
	}
	if p.Config.MaxOpenConn > 0 {
		sqlDB.SetMaxOpenConns(p.Config.MaxOpenConn)
	}
	if p.Config.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(p.Config.ConnMaxLifetime)
	}
	if p.Config.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(p.Config.ConnMaxIdleTime)
	}

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return sqlDB.PingContext(ctx)
		},
		OnStop: func(context.Context) error {
			p.Log.Info("closing database pool")
			return sqlDB.Close()
		},
	})

	p.Log.Info("database connected",
		zap.String("type", p.Config.Type),
		zap.String("host", p.Config.Host),
		zap.String("name", p.Config.Name),
	)
	return conn, nil
}
