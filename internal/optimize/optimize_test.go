package optimize

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func syntheticPrices(n int, seed int64) []float64 {
	r := rand.New(rand.NewSource(seed))
	prices := make([]float64, n)
	price := 150.0
	for i := range prices {
		price += (r.Float64() - 0.5) * 4
		if price < 80 {
			price = 80
		}
		prices[i] = price
	}
	return prices
}

func TestGenerateGrid_SkipsNarrowRanges(t *testing.T) {
	prices := syntheticPrices(200, 1)
	combos := GenerateGrid(prices, nil, nil)
	require.NotEmpty(t, combos)
	for _, c := range combos {
		assert.Greater(t, c.MaxPrice, c.MinPrice*1.02)
	}
}

func TestGenerateGrid_EmptyPricesYieldsNoCombos(t *testing.T) {
	assert.Empty(t, GenerateGrid(nil, nil, nil))
}

func TestOptimize_SelectsBestAndValidatesOnTest(t *testing.T) {
	prices := syntheticPrices(400, 2)
	result, err := Optimize("BTCUSDC", prices, 1000, 0.7, 0.002, 0.002, 0.002, ScreeningGridLevels, ScreeningSellPercentages, 10)
	require.NoError(t, err)

	assert.Equal(t, int(400*0.7), result.TrainSize)
	assert.Equal(t, 400-result.TrainSize, result.TestSize)
	assert.NotEmpty(t, result.AllResults)
	assert.LessOrEqual(t, len(result.AllResults), 10)

	for i := 1; i < len(result.AllResults); i++ {
		assert.GreaterOrEqual(t, result.AllResults[i-1].TotalPnLPct, result.AllResults[i].TotalPnLPct)
	}
}

func TestOptimize_NoCombosFails(t *testing.T) {
	_, err := Optimize("BTCUSDC", []float64{100, 100, 100}, 1000, 0.7, 0.002, 0.002, 0.002, []int{5}, []float64{1.0}, 10)
	assert.Error(t, err)
}

func TestPercentile_Monotonic(t *testing.T) {
	sorted := []float64{10, 20, 30, 40, 50}
	prev := -1.0
	for _, p := range []float64{5, 10, 15, 25, 75, 85, 90, 95} {
		v := percentile(sorted, p)
		assert.GreaterOrEqual(t, v, prev)
		prev = v
	}
}
