package stripegw

import (
	"github.com/smallbiznis/classbill/internal/config"
	"github.com/smallbiznis/classbill/internal/gateway"
	"github.com/smallbiznis/classbill/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Cfg     config.Config
	Log     *zap.Logger
	Metrics *metrics.Metrics `optional:"true"`
}

var Module = fx.Module("gateway.stripe",
	fx.Provide(Provide),
)

func Provide(p Params) gateway.Gateway {
	client := New(p.Cfg.StripeSecretKey, p.Cfg.StripeWebhookSecret, p.Log)
	if p.Metrics != nil {
		client.onRetry = p.Metrics.ObserveGatewayRetry
	}
	return client
}
