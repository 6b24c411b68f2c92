package providers

import (
	"fmt"
	"net/http"

	"billpay-gateway/config"

	"go.uber.org/zap"
)

// New selects the billing adapter named by the configuration.
func New(cfg config.BillingConfig, httpClient *http.Client, logger *zap.Logger) (BillingProvider, error) {
	switch cfg.Provider {
	case config.ProviderAggregator:
		return NewAggregator(cfg.Aggregator, httpClient, logger), nil
	case config.ProviderPeyflex:
		return NewPeyflex(cfg.Peyflex, httpClient, logger), nil
	case config.ProviderSandbox:
		return NewSandbox(cfg.Sandbox, logger), nil
	}
	return nil, fmt.Errorf("unknown billing provider %q", cfg.Provider)
}
