package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const maxResponseBytes = 1 << 20

// apiClient is the HTTP plumbing shared by the billing adapters. Every call runs through the
// adapter's circuit breaker.
type apiClient struct {
	name       string
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *zap.Logger
}

type apiCall struct {
	method string
	path   string
	query  url.Values
	body   any
	auth   string // Authorization header value, empty for public endpoints
}

func newAPIClient(name, baseURL string, httpClient *http.Client, logger *zap.Logger) *apiClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	return &apiClient{
		name:       name,
		baseURL:    baseURL,
		httpClient: httpClient,
		breaker:    NewBreaker(name, logger),
		logger:     logger,
	}
}

// NewBreaker builds the circuit breaker guarding one upstream. Definitive rejections and caller
// cancellations do not count as failures; 5xx answers do.
func NewBreaker(name string, logger *zap.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			var rejected *UpstreamError
			if errors.As(err, &rejected) {
				return rejected.Definitive()
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
}

// do executes the call and returns the decoded JSON body. Non-2xx responses and bodies carrying a
// failure flag become *UpstreamError; everything that prevents an answer wraps ErrUpstreamUnavailable.
func (c *apiClient) do(ctx context.Context, call apiCall) (any, error) {
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.roundTrip(ctx, call)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %s: %v", ErrUpstreamUnavailable, c.name, err)
		}
		return nil, err
	}
	return out, nil
}

func (c *apiClient) roundTrip(ctx context.Context, call apiCall) (any, error) {
	target := c.baseURL + call.path
	if len(call.query) > 0 {
		target += "?" + call.query.Encode()
	}

	var body io.Reader
	if call.body != nil {
		payload, err := json.Marshal(call.body)
		if err != nil {
			return nil, fmt.Errorf("%s: encode request: %w", c.name, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, call.method, target, body)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", c.name, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if call.auth != "" {
		req.Header.Set("Authorization", call.auth)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s %s: %v", ErrUpstreamUnavailable, c.name, call.path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: read body: %v", ErrUpstreamUnavailable, c.name, call.path, err)
	}

	c.logger.Debug("upstream call",
		zap.String("provider", c.name),
		zap.String("method", call.method),
		zap.String("path", call.path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	var decoded any
	decodeErr := json.Unmarshal(raw, &decoded)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := resp.Status
		if m, ok := decoded.(map[string]any); ok && decodeErr == nil {
			if upstream := upstreamMessage(m); upstream != "" {
				msg = upstream
			}
		}
		return nil, &UpstreamError{Provider: c.name, StatusCode: resp.StatusCode, Message: msg}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("%w: %s %s: decode response: %v", ErrUpstreamUnavailable, c.name, call.path, decodeErr)
	}
	if m, ok := decoded.(map[string]any); ok && failed(m) {
		msg := upstreamMessage(m)
		if msg == "" {
			msg = "request failed"
		}
		return nil, &UpstreamError{Provider: c.name, StatusCode: resp.StatusCode, Message: msg}
	}
	return decoded, nil
}
