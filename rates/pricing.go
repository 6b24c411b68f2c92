package rates

import (
	"math/big"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Pricing applies the service fee to bill amounts.
type Pricing struct {
	FeePercent decimal.Decimal
}

func NewPricing(feePercent float64) Pricing {
	return Pricing{FeePercent: decimal.NewFromFloat(feePercent)}
}

func (p Pricing) FeeAmount(ngn decimal.Decimal) decimal.Decimal {
	return ngn.Mul(p.FeePercent).Div(hundred)
}

func (p Pricing) TotalWithFee(ngn decimal.Decimal) decimal.Decimal {
	return ngn.Add(p.FeeAmount(ngn))
}

// Breakdown is what the payer is shown before sending the transfer.
type Breakdown struct {
	Rate      decimal.Decimal
	NGNAmount decimal.Decimal
	Fee       decimal.Decimal
	Total     decimal.Decimal
	USDAmount decimal.Decimal
	Cached    bool
}

func (p Pricing) Breakdown(ngn decimal.Decimal, q Quote) Breakdown {
	total := p.TotalWithFee(ngn)
	return Breakdown{
		Rate:      q.Rate,
		NGNAmount: ngn,
		Fee:       p.FeeAmount(ngn),
		Total:     total,
		USDAmount: NGNToUSD(total, q.Rate),
		Cached:    q.Cached,
	}
}

// NGNToUSD converts at rate NGN per USD, rounded to cents. A non-positive rate yields zero.
func NGNToUSD(ngn, rate decimal.Decimal) decimal.Decimal {
	if !rate.IsPositive() {
		return decimal.Zero
	}
	return ngn.Div(rate).Round(2)
}

// USDTUnits converts a USD amount into the token's smallest unit, rounding to the token precision.
func USDTUnits(usd decimal.Decimal, decimals int) *big.Int {
	return usd.Round(int32(decimals)).Shift(int32(decimals)).BigInt()
}
