package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"billpay-gateway/config"

	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// DefaultFallbackRate is roughly 1 USD = 1650 NGN.
var DefaultFallbackRate = decimal.NewFromInt(1650)

var errInvalidRate = errors.New("rate response has no positive tether.ngn")

// Quote is an NGN-per-USDT rate. Cached marks the configured fallback rather than a live value.
type Quote struct {
	Rate   decimal.Decimal
	Cached bool
}

// Source fetches the live USDT/NGN rate and degrades to a fixed fallback on any failure.
type Source struct {
	url        string
	fallback   decimal.Decimal
	ttl        time.Duration
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *zap.Logger
	now        func() time.Time

	mu      sync.Mutex
	last    decimal.Decimal
	fetched time.Time
}

func NewSource(cfg config.RatesConfig, httpClient *http.Client, logger *zap.Logger) *Source {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	fallback := DefaultFallbackRate
	if cfg.FallbackRate > 0 {
		fallback = decimal.NewFromFloat(cfg.FallbackRate)
	}
	return &Source{
		url:        cfg.APIURL,
		fallback:   fallback,
		ttl:        cfg.TTL,
		httpClient: httpClient,
		logger:     logger,
		now:        time.Now,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "rates",
			Timeout: time.Minute,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
	}
}

// Rate never fails: a live rate younger than the TTL is reused, otherwise one fetch is made and
// the fallback is served if it does not produce a positive rate.
func (s *Source) Rate(ctx context.Context) Quote {
	s.mu.Lock()
	if !s.fetched.IsZero() && s.now().Sub(s.fetched) < s.ttl {
		q := Quote{Rate: s.last}
		s.mu.Unlock()
		return q
	}
	s.mu.Unlock()

	out, err := s.breaker.Execute(func() (interface{}, error) {
		return s.fetch(ctx)
	})
	if err != nil {
		s.logger.Warn("using fallback rate", zap.Error(err), zap.String("rate", s.fallback.String()))
		return Quote{Rate: s.fallback, Cached: true}
	}

	rate := out.(decimal.Decimal)
	s.mu.Lock()
	s.last, s.fetched = rate, s.now()
	s.mu.Unlock()
	return Quote{Rate: rate}
}

func (s *Source) fetch(ctx context.Context) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("build rate request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("rate request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decimal.Zero, fmt.Errorf("rate api returned %s", resp.Status)
	}

	var body struct {
		Tether struct {
			NGN *decimal.Decimal `json:"ngn"`
		} `json:"tether"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("decode rate response: %w", err)
	}
	if body.Tether.NGN == nil || !body.Tether.NGN.IsPositive() {
		return decimal.Zero, errInvalidRate
	}
	return *body.Tether.NGN, nil
}
