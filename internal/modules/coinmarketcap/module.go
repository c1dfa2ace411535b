package coinmarketcap

import (
	"signal_tracker/internal/modules/coinmarketcap/service"
	"signal_tracker/internal/modules/config"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

func Module() fx.Option {
	return fx.Module("coinmarketcap",
		fx.Provide(
			func(cfg *config.Config, log *zap.Logger) *service.Client {
				return service.NewClient(service.Config{
					BaseURL:    cfg.CoinMarketCap.BaseURL,
					CatalogURL: cfg.CoinMarketCap.CatalogURL,
					APIKey:     cfg.CoinMarketCap.APIKey,
					Retries:    cfg.CoinMarketCap.Retries,
					Delay:      cfg.CoinMarketCap.Delay,
					Timeout:    cfg.CoinMarketCap.Timeout,
					UseCatalog: cfg.CoinMarketCap.UseCatalog,
				}, log)
			},
		),
	)
}
