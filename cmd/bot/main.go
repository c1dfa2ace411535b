package main

import (
	"context"
	"log"

	"signal_tracker/internal/modules/bybit"
	"signal_tracker/internal/modules/coinmarketcap"
	"signal_tracker/internal/modules/config"
	"signal_tracker/internal/modules/feed"
	"signal_tracker/internal/modules/health"
	"signal_tracker/internal/modules/housekeeping"
	"signal_tracker/internal/modules/httpserver"
	"signal_tracker/internal/modules/storage"
	telegram "signal_tracker/internal/modules/telegram_bot"
	"signal_tracker/internal/modules/webhook"
	"signal_tracker/internal/runner"
	"signal_tracker/pkg/logger"
	"signal_tracker/pkg/tracing"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatal(err)
	}

	zl, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		Service:     cfg.Service.Name,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer func() {
		_ = zl.Sync()
	}()
	tracing.SetServiceName(cfg.Service.Name)

	app := fx.New(
		fx.Supply(zl),
		fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: l.Named("fx")}
		}),
		fx.Invoke(initTracing),
		config.Module(cfg),
		storage.Module(),
		bybit.Module(),
		coinmarketcap.Module(),
		telegram.Module(),
		feed.Module(),
		runner.Module(),
		health.Module(),
		webhook.Module(),
		housekeeping.Module(),
		// сервер поднимается после регистрации всех маршрутов
		httpserver.Module(),
		fx.Invoke(health.MarkReady),
	)
	app.Run()
}

// initTracing поднимает jaeger, если он включён в конфиге.
func initTracing(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) error {
	if !cfg.Tracing.Enabled {
		return nil
	}
	_, closer, err := tracing.InitTracer(tracing.Config{
		Host: cfg.Tracing.Host,
		Port: cfg.Tracing.Port,
	})
	if err != nil {
		return err
	}
	log.Info("tracing enabled", zap.String("host", cfg.Tracing.Host), zap.Int("port", cfg.Tracing.Port))
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			closer()
			return nil
		},
	})
	return nil
}
