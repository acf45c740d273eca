package backtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testParams() Params {
	return Params{
		MaxPrice:       200,
		MinPrice:       100,
		GridLevels:     10,
		SellPercentage: 2.0,
		FeePct:         0.002,
		BuyPullback:    0.002,
		SellPullback:   0.002,
	}
}

func TestRun_EmptyInputIsZeroResult(t *testing.T) {
	res := Run("BTCUSDC", nil, 1000, testParams())
	assert.Equal(t, 0, res.NumTrades)
	assert.Equal(t, 0.0, res.TotalPnL)
	assert.Equal(t, 0.0, res.MaxDrawdown)
	assert.Equal(t, 0.0, res.SharpeRatio)
}

func TestRun_TradeCountInvariant(t *testing.T) {
	prices := []float64{
		150, 142, 139, 139.5, 139.3,
		122, 119, 119.5, 119.3,
		124, 123.5, 123,
		143, 145, 144.5, 155, 154.5,
	}
	res := Run("BTCUSDC", prices, 1000, testParams())

	assert.Equal(t, res.NumBuys+res.NumSells, res.NumTrades)
	assert.LessOrEqual(t, res.NumSells, res.NumBuys)
	assert.Equal(t, res.NumBuys-res.NumSells, res.FinalOpenPositions)
}

func TestRun_PnLPctConsistentWithPnL(t *testing.T) {
	prices := []float64{100, 102.5, 102.0}
	totalAmount := 1000.0
	res := Run("BTCUSDC", prices, totalAmount, testParams())

	assert.InDelta(t, res.TotalPnL, res.TotalPnLPct*totalAmount/100, 0.01)
}

func TestRun_DrawdownNonNegative(t *testing.T) {
	prices := []float64{150, 142, 139, 139.5, 139.3, 122, 119}
	res := Run("BTCUSDC", prices, 1000, testParams())
	assert.GreaterOrEqual(t, res.MaxDrawdown, 0.0)
}

func TestRun_WinRateBounded(t *testing.T) {
	prices := []float64{100, 102.5, 102.0, 95, 97.5, 97.0}
	res := Run("BTCUSDC", prices, 1000, testParams())
	assert.GreaterOrEqual(t, res.WinRate, 0.0)
	assert.LessOrEqual(t, res.WinRate, 1.0)
}

func TestRun_ZeroTotalAmountZeroPnLPct(t *testing.T) {
	prices := []float64{150, 142, 139}
	res := Run("BTCUSDC", prices, 0, testParams())
	assert.Equal(t, 0.0, res.TotalPnLPct)
}

func TestSharpeRatio_ConstantReturnsUsesVarianceFloor(t *testing.T) {
	returns := []float64{0.01, 0.01, 0.01, 0.01}
	ratio := sharpeRatio(returns)
	assert.True(t, ratio > 0)
}

func TestSharpeRatio_EmptyIsZero(t *testing.T) {
	assert.Equal(t, 0.0, sharpeRatio(nil))
}
