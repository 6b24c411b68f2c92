package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

const (
	DefaultMaxAttempts = 30
	DefaultDelay       = 2 * time.Second
)

var (
	// ErrConfirmationTimeout means no receipt appeared within the attempt budget.
	ErrConfirmationTimeout = errors.New("transaction confirmation timeout")
	ErrInvalidTxHash       = errors.New("invalid transaction hash")
)

// ReceiptFetcher is the slice of the JSON-RPC client the waiter needs. *ethclient.Client satisfies it.
type ReceiptFetcher interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Dial connects to the chain's JSON-RPC endpoint.
func Dial(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc %s: %w", rpcURL, err)
	}
	return client, nil
}

// Waiter polls for a transaction receipt until the transaction is mined or the budget runs out.
type Waiter struct {
	client      ReceiptFetcher
	maxAttempts int
	delay       time.Duration
	logger      *zap.Logger
}

func NewWaiter(client ReceiptFetcher, maxAttempts int, delay time.Duration, logger *zap.Logger) *Waiter {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Waiter{client: client, maxAttempts: maxAttempts, delay: delay, logger: logger}
}

// ParseTxHash validates a 0x-prefixed 32-byte hash.
func ParseTxHash(s string) (common.Hash, error) {
	b, err := hexutil.Decode(s)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("%w: %q", ErrInvalidTxHash, s)
	}
	return common.BytesToHash(b), nil
}

// Confirmed reports whether a mined transaction succeeded.
func Confirmed(receipt *types.Receipt) bool {
	return receipt != nil && receipt.Status == types.ReceiptStatusSuccessful
}

// WaitForConfirmation returns true once the transaction is mined successfully and false as soon as
// it is mined with any other status.
func (w *Waiter) WaitForConfirmation(ctx context.Context, txHash string) (bool, error) {
	receipt, err := w.Wait(ctx, txHash)
	if err != nil {
		return false, err
	}
	return Confirmed(receipt), nil
}

// Wait makes at most maxAttempts receipt queries spaced delay apart and returns the first receipt
// seen. It fails with ErrConfirmationTimeout when none appears and stops early when ctx is done.
func (w *Waiter) Wait(ctx context.Context, txHash string) (*types.Receipt, error) {
	hash, err := ParseTxHash(txHash)
	if err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		receipt, err := w.client.TransactionReceipt(ctx, hash)
		switch {
		case err == nil && receipt != nil:
			w.logger.Info("transaction receipt found",
				zap.String("tx_hash", hash.Hex()),
				zap.Int("attempt", attempt),
				zap.Uint64("status", receipt.Status))
			return receipt, nil
		case err != nil && !errors.Is(err, ethereum.NotFound):
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("rpc receipt query for %s: %w", hash.Hex(), err)
		}

		if attempt == w.maxAttempts {
			break
		}

		timer := time.NewTimer(w.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			w.logger.Info("confirmation wait abandoned",
				zap.String("tx_hash", hash.Hex()),
				zap.Int("attempt", attempt))
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	w.logger.Warn("transaction not mined in time",
		zap.String("tx_hash", hash.Hex()),
		zap.Int("attempts", w.maxAttempts),
		zap.Duration("delay", w.delay))
	return nil, ErrConfirmationTimeout
}
