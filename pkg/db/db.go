package db

import (
	"context"
	"fmt"
	"strings"

	obslogger "github.com/apipatb/earning-sub011/internal/observability/logger"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormprometheus "gorm.io/plugin/prometheus"
)

// Open connects to the configured database, applies pool limits and installs
// the tracing and pool-metrics plugins.
func Open(cfg Config) (*gorm.DB, error) {
	dialector, err := Dialect(cfg)
	if err != nil {
		return nil, err
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:         obslogger.NewGormLogger(obslogger.DefaultGormLoggerConfig()),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Type, err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxIdleConn > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConn)
	}
	if cfg.MaxOpenConn > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConn)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	if err := conn.Use(otelgorm.NewPlugin(otelgorm.WithDBName(cfg.Name))); err != nil {
		return nil, fmt.Errorf("install tracing plugin: %w", err)
	}

	dbName := strings.TrimSpace(cfg.Name)
	if dbName == "" {
		dbName = cfg.Type
	}
	if err := conn.Use(gormprometheus.New(gormprometheus.Config{
		DBName:          dbName,
		RefreshInterval: 15,
		StartServer:     false,
	})); err != nil {
		return nil, fmt.Errorf("install metrics plugin: %w", err)
	}

	return conn, nil
}

func provide(lc fx.Lifecycle, cfg Config, log *zap.Logger) (*gorm.DB, error) {
	conn, err := Open(cfg)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			log.Info("closing database pool", zap.String("type", cfg.Type))
			return sqlDB.Close()
		},
	})

	log.Info("database connected",
		zap.String("type", cfg.Type),
		zap.String("host", cfg.Host),
		zap.String("name", cfg.Name),
	)
	return conn, nil
}

var Module = fx.Module("db",
	fx.Provide(ConfigFromApp),
	fx.Provide(provide),
)
