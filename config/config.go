package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	ProviderAggregator = "aggregator"
	ProviderPeyflex    = "peyflex"
	ProviderSandbox    = "sandbox"
)

type Config struct {
	Server  ServerConfig
	Billing BillingConfig
	Chain   ChainConfig
	Rates   RatesConfig
	Catalog CatalogConfig
	Payment PaymentConfig
	Redis   RedisConfig
}

type ServerConfig struct {
	Port        string
	Env         string
	CORSOrigins []string
}

type BillingConfig struct {
	Provider   string // aggregator, peyflex or sandbox
	Timeout    time.Duration
	Aggregator AggregatorConfig
	Peyflex    PeyflexConfig
	Sandbox    SandboxConfig
}

type AggregatorConfig struct {
	BaseURL string
	APIKey  string
}

type PeyflexConfig struct {
	BaseURL string
	APIKey  string
}

// SandboxConfig tunes the simulated biller used for local development.
type SandboxConfig struct {
	FailureRate float64 // share of purchases rejected, 0..1
	MaxLatency  time.Duration
}

type ChainConfig struct {
	RPCURL          string
	MaxAttempts     int
	Delay           time.Duration
	USDTAddress     string
	USDTDecimals    int
	TreasuryAddress string // empty disables the on-chain amount check
}

type RatesConfig struct {
	APIURL       string
	FallbackRate float64
	TTL          time.Duration
}

type CatalogConfig struct {
	RefreshInterval time.Duration
}

type PaymentConfig struct {
	FeePercent     float64
	Slippage       float64
	AirtimeMin     float64
	AirtimeMax     float64
	ElectricityMin float64
	ElectricityMax float64
}

type RedisConfig struct {
	Addr     string // empty selects the in-memory idempotency store
	Password string
	DB       int
}

// Load reads the configuration from the environment and applies defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Env:         getEnv("ENVIRONMENT", "development"),
			CORSOrigins: splitList(getEnv("CORS_ORIGINS", "*")),
		},
		Billing: BillingConfig{
			Provider: strings.ToLower(getEnv("BILLING_PROVIDER", ProviderAggregator)),
			Aggregator: AggregatorConfig{
				BaseURL: strings.TrimRight(getEnv("BILL_API_BASE_URL", ""), "/"),
				APIKey:  getEnv("BILL_API_KEY", ""),
			},
			Peyflex: PeyflexConfig{
				BaseURL: strings.TrimRight(getEnv("PEYFLEX_BASE_URL", "https://client.peyflex.com.ng"), "/"),
				APIKey:  getEnv("PEYFLEX_API_KEY", ""),
			},
		},
		Chain: ChainConfig{
			RPCURL:          getEnv("RPC_URL", "https://flare-api.flare.network/ext/C/rpc"),
			USDTAddress:     getEnv("USDT_ADDRESS", "0x1D80c49BbBCd1C0911346356B529d9BFF6AD1470"),
			TreasuryAddress: getEnv("TREASURY_ADDRESS", ""),
		},
		Rates: RatesConfig{
			APIURL: getEnv("RATE_API_URL", "https://api.coingecko.com/api/v3/simple/price?ids=tether&vs_currencies=ngn"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
		},
	}

	var err error
	if cfg.Billing.Timeout, err = getDuration("UPSTREAM_TIMEOUT", 20*time.Second); err != nil {
		return nil, err
	}
	if cfg.Billing.Sandbox.FailureRate, err = getFloat("SANDBOX_FAILURE_RATE", 0); err != nil {
		return nil, err
	}
	if cfg.Billing.Sandbox.MaxLatency, err = getDuration("SANDBOX_MAX_LATENCY", 800*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.Chain.MaxAttempts, err = getInt("CONFIRM_MAX_ATTEMPTS", 30); err != nil {
		return nil, err
	}
	if cfg.Chain.Delay, err = getDuration("CONFIRM_DELAY", 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.Chain.USDTDecimals, err = getInt("USDT_DECIMALS", 6); err != nil {
		return nil, err
	}
	if cfg.Rates.FallbackRate, err = getFloat("FALLBACK_RATE", 1650); err != nil {
		return nil, err
	}
	if cfg.Rates.TTL, err = getDuration("RATE_TTL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.Catalog.RefreshInterval, err = getDuration("CATALOG_REFRESH_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	if cfg.Payment.FeePercent, err = getFloat("FEE_PERCENT", 2); err != nil {
		return nil, err
	}
	if cfg.Payment.Slippage, err = getFloat("PAYMENT_SLIPPAGE", 0.01); err != nil {
		return nil, err
	}
	if cfg.Payment.AirtimeMin, err = getFloat("AIRTIME_MIN", 50); err != nil {
		return nil, err
	}
	if cfg.Payment.AirtimeMax, err = getFloat("AIRTIME_MAX", 50000); err != nil {
		return nil, err
	}
	if cfg.Payment.ElectricityMin, err = getFloat("ELECTRICITY_MIN", 500); err != nil {
		return nil, err
	}
	if cfg.Payment.ElectricityMax, err = getFloat("ELECTRICITY_MAX", 500000); err != nil {
		return nil, err
	}
	if cfg.Redis.DB, err = getInt("REDIS_DB", 0); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the service cannot start with. Missing API keys are not
// fatal here: they fail each upstream call instead.
func (c *Config) Validate() error {
	switch c.Billing.Provider {
	case ProviderAggregator:
		if c.Billing.Aggregator.BaseURL == "" {
			return fmt.Errorf("BILL_API_BASE_URL is required for the %s provider", ProviderAggregator)
		}
	case ProviderPeyflex:
		if c.Billing.Peyflex.BaseURL == "" {
			return fmt.Errorf("PEYFLEX_BASE_URL is required for the %s provider", ProviderPeyflex)
		}
	case ProviderSandbox:
		if c.Billing.Sandbox.FailureRate < 0 || c.Billing.Sandbox.FailureRate > 1 {
			return fmt.Errorf("SANDBOX_FAILURE_RATE must be between 0 and 1")
		}
	default:
		return fmt.Errorf("unknown BILLING_PROVIDER %q", c.Billing.Provider)
	}
	if c.Chain.RPCURL == "" {
		return fmt.Errorf("RPC_URL is required")
	}
	if c.Chain.MaxAttempts <= 0 {
		return fmt.Errorf("CONFIRM_MAX_ATTEMPTS must be positive")
	}
	if c.Chain.Delay <= 0 {
		return fmt.Errorf("CONFIRM_DELAY must be positive")
	}
	if c.Rates.FallbackRate <= 0 {
		return fmt.Errorf("FALLBACK_RATE must be positive")
	}
	return nil
}

// ConfirmationBudget is the longest a payment can spend waiting for the chain.
func (c *Config) ConfirmationBudget() time.Duration {
	return time.Duration(c.Chain.MaxAttempts) * c.Chain.Delay
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return n, nil
}

func getFloat(key string, defaultValue float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return f, nil
}

// getDuration accepts Go durations ("90s") or a bare number of seconds.
func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue, nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
