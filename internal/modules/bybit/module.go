package bybit

import (
	"signal_tracker/internal/modules/bybit/service"
	"signal_tracker/internal/modules/config"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

func Module() fx.Option {
	return fx.Module("bybit",
		fx.Provide(
			func(cfg *config.Config, log *zap.Logger) *service.Client {
				return service.NewClient(service.Config{
					BaseURL:  cfg.Bybit.BaseURL,
					Category: cfg.Bybit.Category,
					Quote:    cfg.Bybit.Quote,
					Timeout:  cfg.Bybit.Timeout,
				}, log)
			},
		),
	)
}
