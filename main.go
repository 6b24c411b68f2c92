package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"billpay-gateway/cache"
	"billpay-gateway/catalog"
	"billpay-gateway/chain"
	"billpay-gateway/config"
	"billpay-gateway/payment"
	"billpay-gateway/providers"
	"billpay-gateway/rates"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func newLogger(env string) (*zap.Logger, error) {
	if env == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// newStore picks Redis when an address is configured so replicas share payment claims.
func newStore(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (cache.IdempotencyStore, func(), error) {
	if cfg.Addr == "" {
		logger.Warn("REDIS_ADDR not set, payment idempotency is process-local")
		return cache.NewMemoryStore(), func() {}, nil
	}
	store, err := cache.NewRedisStore(ctx, cfg.Addr, cfg.Password, cfg.DB)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("connected to redis", zap.String("addr", cfg.Addr))
	return store, func() { _ = store.Close() }, nil
}

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Server.Env)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.String("environment", cfg.Server.Env),
		zap.String("port", cfg.Server.Port),
		zap.String("billing_provider", cfg.Billing.Provider))

	ctx := context.Background()
	upstream := &http.Client{Timeout: cfg.Billing.Timeout}

	biller, err := providers.New(cfg.Billing, upstream, logger)
	if err != nil {
		logger.Fatal("failed to create billing provider", zap.Error(err))
	}

	rpc, err := chain.Dial(ctx, cfg.Chain.RPCURL)
	if err != nil {
		logger.Fatal("failed to connect to chain", zap.Error(err))
	}
	defer rpc.Close()

	store, closeStore, err := newStore(ctx, cfg.Redis, logger)
	if err != nil {
		logger.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer closeStore()

	catalogCache := catalog.New(biller, cfg.Catalog.RefreshInterval, logger)
	rateSource := rates.NewSource(cfg.Rates, nil, logger)
	waiter := chain.NewWaiter(rpc, cfg.Chain.MaxAttempts, cfg.Chain.Delay, logger)

	opts := []payment.Option{payment.WithLimits(cfg.Payment)}
	if cfg.Chain.TreasuryAddress != "" {
		if !common.IsHexAddress(cfg.Chain.TreasuryAddress) || !common.IsHexAddress(cfg.Chain.USDTAddress) {
			logger.Fatal("invalid TREASURY_ADDRESS or USDT_ADDRESS")
		}
		opts = append(opts, payment.WithTransferCheck(
			common.HexToAddress(cfg.Chain.USDTAddress),
			common.HexToAddress(cfg.Chain.TreasuryAddress),
			cfg.Chain.USDTDecimals,
			cfg.Payment.Slippage,
			rateSource))
		logger.Info("on-chain amount check enabled", zap.String("treasury", cfg.Chain.TreasuryAddress))
	}
	payments := payment.New(biller, waiter, catalogCache, store, logger, opts...)

	gateway := NewGateway(biller, catalogCache, rateSource, rates.NewPricing(cfg.Payment.FeePercent), payments, logger)

	// Leave room for the biller call after the longest confirmation wait.
	requestTimeout := cfg.ConfirmationBudget() + 2*cfg.Billing.Timeout
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      NewRouter(gateway, cfg.Server.CORSOrigins, requestTimeout, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: requestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
