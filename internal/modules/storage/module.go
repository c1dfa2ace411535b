package storage

import (
	"context"
	"fmt"

	"signal_tracker/internal/modules/config"
	"signal_tracker/internal/modules/storage/service"
	"signal_tracker/pkg/db"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

func Module() fx.Option {
	return fx.Module("storage",
		fx.Provide(
			func(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (*service.Sheet, error) {
				b, err := NewBackend(context.Background(), cfg)
				if err != nil {
					return nil, err
				}
				sheet := service.NewSheet(b, log)
				log.Info("storage opened", zap.String("driver", cfg.Storage.Driver), zap.String("sheet", cfg.Storage.Sheet))

				lc.Append(fx.Hook{
					OnStart: func(ctx context.Context) error {
						return sheet.EnsureHeader(ctx)
					},
					OnStop: func(ctx context.Context) error {
						return sheet.Close()
					},
				})
				return sheet, nil
			},
		),
	)
}

// NewBackend открывает хранилище по storage.driver.
func NewBackend(ctx context.Context, cfg *config.Config) (service.Backend, error) {
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		return service.NewMemory(), nil
	case config.DriverSQLite:
		return service.OpenSQLite(cfg.Storage.SQLitePath, cfg.Storage.Sheet)
	case config.DriverPostgres:
		poolMaster, err := db.NewPool(ctx, db.PoolConfig{
			DSN: cfg.Storage.DSN,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create poolMaster: %w", err)
		}
		tm := db.NewPgTxManager(poolMaster)
		pg, err := service.NewPostgres(ctx, tm, cfg.Storage.Sheet)
		if err != nil {
			tm.Close()
			return nil, err
		}
		return pg, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}
