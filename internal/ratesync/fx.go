package ratesync

import (
	"context"
	"time"

	"github.com/smallbiznis/classbill/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("ratesync",
	fx.Provide(NewConfig),
	fx.Provide(New),
	fx.Invoke(Run),
)

func NewConfig(cfg config.Config) Config {
	return Config{
		SourceURL: cfg.RatesURL,
		Base:      cfg.BaseCurrency,
		Interval:  time.Duration(cfg.RatesSyncInterval) * time.Second,
	}
}

func Run(lc fx.Lifecycle, s *Syncer, cfg Config, log *zap.Logger) {
	if cfg.SourceURL == "" {
		log.Info("currency rate sync disabled, no source url configured")
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())
			go s.RunForever(ctx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})
			return nil
		},
	})
}
