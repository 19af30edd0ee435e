package payment

import (
	"github.com/smallbiznis/finora/internal/config"
	"github.com/smallbiznis/finora/internal/observability/metrics"
	"github.com/smallbiznis/finora/internal/payment/adapters"
	"github.com/smallbiznis/finora/internal/payment/adapters/stripe"
	"github.com/smallbiznis/finora/internal/payment/domain"
	"github.com/smallbiznis/finora/internal/payment/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("payment.service",
	fx.Provide(repository.Provide),
	fx.Provide(func(log *zap.Logger) *adapters.Registry {
		return adapters.NewRegistry(
			stripe.NewFactoryWithLogger(log),
		)
	}),
	fx.Provide(NewGateway),
)

type GatewayParams struct {
	fx.In

	Cfg       config.Config
	Log       *zap.Logger
	Registry  *adapters.Registry
	Metrics   *metrics.Metrics          `optional:"true"`
	Lifecycle *metrics.LifecycleMetrics `optional:"true"`
}

// NewGateway builds the configured provider's gateway. Missing credentials fail startup.
func NewGateway(p GatewayParams) (domain.Gateway, error) {
	gateway, err := p.Registry.NewGateway(p.Cfg.Payment.Provider, domain.AdapterConfig{
		APIKey:        p.Cfg.Payment.APIKey,
		WebhookSecret: p.Cfg.Payment.WebhookSecret,
		APIBaseURL:    p.Cfg.Payment.APIBaseURL,
		SuccessURL:    p.Cfg.Payment.SuccessURL,
		CancelURL:     p.Cfg.Payment.CancelURL,
		Timeout:       p.Cfg.Payment.Timeout,
	})
	if err != nil {
		p.Log.Error("payment gateway unavailable",
			zap.String("provider", p.Cfg.Payment.Provider),
			zap.Error(err),
		)
		return nil, err
	}
	p.Log.Info("payment gateway ready", zap.String("provider", gateway.Provider()))
	return Instrument(gateway, p.Metrics, p.Lifecycle), nil
}
