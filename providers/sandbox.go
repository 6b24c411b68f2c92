package providers

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"billpay-gateway/config"

	"go.uber.org/zap"
)

// Sandbox simulates a biller for local development: it sleeps a random latency, rejects a
// configurable share of purchases and never touches the network. It has no catalog of its own, so
// the bundled fallback listings are served.
type Sandbox struct {
	failureRate float64
	maxLatency  time.Duration
	logger      *zap.Logger
}

func NewSandbox(cfg config.SandboxConfig, logger *zap.Logger) *Sandbox {
	return &Sandbox{failureRate: cfg.FailureRate, maxLatency: cfg.MaxLatency, logger: logger}
}

func (s *Sandbox) Name() string {
	return "sandbox"
}

// delay simulates network latency and honours cancellation.
func (s *Sandbox) delay(ctx context.Context) error {
	if s.maxLatency <= 0 {
		return ctx.Err()
	}
	d := time.Duration(rand.Int63n(int64(s.maxLatency)))
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func (s *Sandbox) FetchCatalog(ctx context.Context, category Category) (*Catalog, error) {
	return nil, fmt.Errorf("%w: sandbox has no %s catalog", ErrUpstreamUnavailable, category)
}

func (s *Sandbox) Buy(ctx context.Context, p Purchase) (*PaymentReceipt, error) {
	if err := s.delay(ctx); err != nil {
		return nil, err
	}
	if rand.Float64() < s.failureRate {
		s.logger.Info("sandbox rejected purchase", zap.String("reference", p.Reference))
		return nil, &UpstreamError{Provider: s.Name(), StatusCode: http.StatusUnprocessableEntity, Message: "Purchase declined by provider (simulated)"}
	}

	ref := fmt.Sprintf("SANDBOX-%d", time.Now().UnixNano())
	return &PaymentReceipt{
		Success:   true,
		Token:     ref,
		Reference: ref,
		Message:   fmt.Sprintf("Sandbox %s purchase of NGN %.2f processed", p.Category, p.Amount),
	}, nil
}

func (s *Sandbox) Verify(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	if req.Category != CategoryElectricity && req.Category != CategoryCable {
		return nil, fmt.Errorf("%w: %s cannot be verified", ErrUnsupportedCategory, req.Category)
	}
	if err := s.delay(ctx); err != nil {
		return nil, err
	}
	return &VerifyResult{CustomerName: "Sandbox Customer"}, nil
}
