package payment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"billpay-gateway/cache"
	"billpay-gateway/chain"
	"billpay-gateway/config"
	"billpay-gateway/providers"
	"billpay-gateway/rates"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Request is the body of a pay call. FeeAmount and TotalAmount are informational; the fee is
// recomputed server-side.
type Request struct {
	Category    string                `json:"category"`
	TxHash      string                `json:"txHash"`
	UserInputs  *providers.UserInputs `json:"userInputs"`
	NGNAmount   float64               `json:"ngnAmount"`
	FeeAmount   float64               `json:"feeAmount,omitempty"`
	TotalAmount float64               `json:"totalAmount,omitempty"`
}

// Confirmer waits for a transfer to be mined. *chain.Waiter satisfies it.
type Confirmer interface {
	Wait(ctx context.Context, txHash string) (*types.Receipt, error)
}

// Catalog resolves providers and prices. *catalog.Cache satisfies it.
type Catalog interface {
	FindProvider(ctx context.Context, category providers.Category, key string) (providers.Provider, error)
	FindPlan(ctx context.Context, category providers.Category, providerKey, planID string) (providers.Provider, providers.Plan, error)
}

type RateSource interface {
	Rate(ctx context.Context) rates.Quote
}

type amountRange struct{ min, max float64 }

// transferCheck verifies the receipt carries enough USDT to the treasury.
type transferCheck struct {
	token    common.Address
	treasury common.Address
	decimals int
	slippage decimal.Decimal
	rates    RateSource
}

// Orchestrator turns a confirmed on-chain transfer into a settled bill.
type Orchestrator struct {
	biller    providers.BillingProvider
	confirmer Confirmer
	catalog   Catalog
	store     cache.IdempotencyStore
	pricing   rates.Pricing
	limits    map[providers.Category]amountRange
	transfer  *transferCheck
	logger    *zap.Logger
	newRef    func() string
}

type Option func(*Orchestrator)

// WithLimits sets the fee and the accepted amount bounds of airtime and electricity.
func WithLimits(cfg config.PaymentConfig) Option {
	return func(o *Orchestrator) {
		o.pricing = rates.NewPricing(cfg.FeePercent)
		o.limits = map[providers.Category]amountRange{
			providers.CategoryAirtime:     {cfg.AirtimeMin, cfg.AirtimeMax},
			providers.CategoryElectricity: {cfg.ElectricityMin, cfg.ElectricityMax},
		}
	}
}

// WithTransferCheck requires a token Transfer to treasury worth the bill plus fee, less slippage.
func WithTransferCheck(token, treasury common.Address, decimals int, slippage float64, rs RateSource) Option {
	return func(o *Orchestrator) {
		o.transfer = &transferCheck{
			token:    token,
			treasury: treasury,
			decimals: decimals,
			slippage: decimal.NewFromFloat(slippage),
			rates:    rs,
		}
	}
}

func New(biller providers.BillingProvider, confirmer Confirmer, catalog Catalog, store cache.IdempotencyStore, logger *zap.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		biller:    biller,
		confirmer: confirmer,
		catalog:   catalog,
		store:     store,
		pricing:   rates.NewPricing(2),
		logger:    logger,
		newRef:    func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Pay validates the request, waits for the transfer to confirm and settles the bill exactly once
// per transaction hash. The biller is never called for an unconfirmed transfer.
func (o *Orchestrator) Pay(ctx context.Context, req Request) (*providers.PaymentReceipt, error) {
	if o.settled(ctx, req.TxHash) {
		o.logger.Warn("replay of settled transaction rejected", zap.String("tx_hash", req.TxHash))
		return nil, ErrDuplicatePayment
	}
	purchase, hash, err := o.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	log := o.logger.With(
		zap.String("tx_hash", hash),
		zap.String("category", string(purchase.Category)),
		zap.String("reference", purchase.Reference))
	log.Info("payment submitted", zap.Float64("ngn_amount", purchase.Amount))

	dup, err := o.store.CheckOrSetInProgress(ctx, hash)
	if dup {
		log.Warn("duplicate payment rejected", zap.Error(err))
		return nil, ErrDuplicatePayment
	}
	if err != nil {
		return nil, fmt.Errorf("claim transaction: %w", err)
	}

	log.Info("confirming transaction on chain")
	receipt, err := o.confirmer.Wait(ctx, hash)
	if err != nil {
		o.release(ctx, log, hash)
		if errors.Is(err, chain.ErrConfirmationTimeout) {
			log.Warn("payment chain_timeout")
			return nil, ErrChainTimeout
		}
		log.Error("confirmation aborted", zap.Error(err))
		return nil, fmt.Errorf("confirm transaction: %w", err)
	}
	if !chain.Confirmed(receipt) {
		o.release(ctx, log, hash)
		log.Warn("payment chain_failed", zap.Uint64("status", receipt.Status))
		return nil, ErrChainFailed
	}
	log.Info("payment confirmed", zap.Uint64("block", blockNumber(receipt)))

	if o.transfer != nil {
		if err := o.checkTransfer(ctx, receipt, purchase.Amount); err != nil {
			o.release(ctx, log, hash)
			log.Warn("payment underpaid", zap.Error(err))
			return nil, err
		}
	}

	log.Info("dispatching purchase", zap.String("biller", o.biller.Name()))
	result, err := o.biller.Buy(ctx, purchase)
	if err != nil {
		// Only a definitive rejection frees the hash; anything else may have delivered.
		var rejected *providers.UpstreamError
		if (errors.As(err, &rejected) && rejected.Definitive()) || errors.Is(err, providers.ErrMissingCredential) {
			o.release(ctx, log, hash)
		}
		log.Error("payment upstream_failed", zap.Error(err))
		return nil, err
	}

	if result.Reference == "" {
		result.Reference = purchase.Reference
	}
	if result.Token == "" {
		result.Token = result.Reference
	}
	if result.Message == "" {
		result.Message = "Payment successful"
	}
	result.Success = true

	if err := o.store.SetCompleted(context.WithoutCancel(ctx), hash); err != nil {
		log.Error("failed to mark payment completed", zap.Error(err))
	}
	log.Info("payment settled", zap.String("upstream_reference", result.Reference))
	return result, nil
}

// settled reports whether the hash already paid a bill, so replays skip catalog and chain lookups.
// Lookup failures fall through to the claim, which decides authoritatively.
func (o *Orchestrator) settled(ctx context.Context, txHash string) bool {
	hash, err := chain.ParseTxHash(strings.TrimSpace(txHash))
	if err != nil {
		return false
	}
	done, err := o.store.CheckCompleted(ctx, hash.Hex())
	if err != nil {
		o.logger.Warn("settled-hash lookup failed", zap.Error(err))
		return false
	}
	return done
}

// prepare validates the request and builds the biller instruction with provider codes resolved and
// the amount fixed.
func (o *Orchestrator) prepare(ctx context.Context, req Request) (providers.Purchase, string, error) {
	if strings.TrimSpace(req.Category) == "" || strings.TrimSpace(req.TxHash) == "" || req.UserInputs == nil || req.NGNAmount == 0 {
		return providers.Purchase{}, "", ErrMissingFields
	}
	category, err := providers.ParseCategory(req.Category)
	if err != nil {
		return providers.Purchase{}, "", fmt.Errorf("%w: %q", ErrInvalidCategory, req.Category)
	}
	hash, err := chain.ParseTxHash(strings.TrimSpace(req.TxHash))
	if err != nil {
		return providers.Purchase{}, "", err
	}
	in := *req.UserInputs
	if missing := in.Missing(category); len(missing) > 0 {
		return providers.Purchase{}, "", fmt.Errorf("%w: %s", ErrMissingFields, strings.Join(missing, ", "))
	}

	amount := req.NGNAmount
	if category.HasPlans() {
		providerKey := in.Network
		if category == providers.CategoryCable {
			providerKey = in.Provider
		}
		provider, plan, err := o.catalog.FindPlan(ctx, category, providerKey, in.PlanID)
		if err != nil {
			return providers.Purchase{}, "", err
		}
		if math.Abs(plan.Amount-req.NGNAmount) >= 0.005 {
			return providers.Purchase{}, "", fmt.Errorf("%w: got %.2f, plan %s costs %.2f", ErrAmountMismatch, req.NGNAmount, plan.ID, plan.Amount)
		}
		amount = plan.Amount
		if plan.Code != "" {
			in.PlanID = plan.Code
		}
		if category == providers.CategoryData {
			in.Network = provider.Code
		} else {
			in.Provider = provider.Code
		}
	} else {
		if r, ok := o.limits[category]; ok && (amount < r.min || amount > r.max) {
			return providers.Purchase{}, "", fmt.Errorf("%w: %s amount must be between %.0f and %.0f", ErrAmountOutOfRange, category, r.min, r.max)
		}
		if amount <= 0 {
			return providers.Purchase{}, "", fmt.Errorf("%w: amount must be positive", ErrAmountOutOfRange)
		}
		key := in.Network
		if category == providers.CategoryElectricity {
			key = in.Disco
		}
		provider, err := o.catalog.FindProvider(ctx, category, key)
		if err != nil {
			return providers.Purchase{}, "", err
		}
		if category == providers.CategoryAirtime {
			in.Network = provider.Code
		} else {
			in.Disco = provider.Code
			if in.MeterType == "" {
				in.MeterType = "prepaid"
			}
		}
	}

	return providers.Purchase{
		Category:  category,
		Reference: o.newRef(),
		Amount:    amount,
		Inputs:    in,
	}, hash.Hex(), nil
}

func (o *Orchestrator) checkTransfer(ctx context.Context, receipt *types.Receipt, ngn float64) error {
	t := o.transfer
	quote := t.rates.Rate(ctx)
	if !quote.Rate.IsPositive() {
		return fmt.Errorf("%w: no usable rate", ErrUnderpaid)
	}
	usd := o.pricing.TotalWithFee(decimal.NewFromFloat(ngn)).Div(quote.Rate)
	minUnits := decimal.NewFromBigInt(rates.USDTUnits(usd, t.decimals), 0).
		Mul(decimal.NewFromInt(1).Sub(t.slippage)).
		Floor().
		BigInt()

	paid := chain.TransferredTo(receipt, t.token, t.treasury)
	if paid.Cmp(minUnits) < 0 {
		return fmt.Errorf("%w: received %s units, expected at least %s", ErrUnderpaid, paid, minUnits)
	}
	return nil
}

func (o *Orchestrator) release(ctx context.Context, log *zap.Logger, hash string) {
	if err := o.store.Release(context.WithoutCancel(ctx), hash); err != nil {
		log.Error("failed to release payment claim", zap.Error(err))
	}
}

func blockNumber(r *types.Receipt) uint64 {
	if r.BlockNumber == nil {
		return 0
	}
	return r.BlockNumber.Uint64()
}
