package rates

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestPricing(t *testing.T) {
	p := NewPricing(2)

	assert.Equal(t, "20", p.FeeAmount(d("1000")).String())
	assert.Equal(t, "1020", p.TotalWithFee(d("1000")).String())
	assert.Equal(t, "10.2", p.TotalWithFee(d("10")).String())
}

func TestNGNToUSD(t *testing.T) {
	assert.Equal(t, "0.62", NGNToUSD(d("1020"), d("1650")).String())
	assert.True(t, NGNToUSD(d("1020"), decimal.Zero).IsZero())
	assert.True(t, NGNToUSD(d("1020"), d("-1")).IsZero())
}

func TestUSDTUnits(t *testing.T) {
	assert.Equal(t, big.NewInt(618182), USDTUnits(d("1020").Div(d("1650")), 6))
	assert.Equal(t, big.NewInt(1_500_000), USDTUnits(d("1.5"), 6))
}

func TestBreakdown(t *testing.T) {
	b := NewPricing(2).Breakdown(d("1000"), Quote{Rate: d("1650"), Cached: true})

	assert.Equal(t, "20", b.Fee.String())
	assert.Equal(t, "1020", b.Total.String())
	assert.Equal(t, "0.62", b.USDAmount.String())
	assert.True(t, b.Cached)
}
