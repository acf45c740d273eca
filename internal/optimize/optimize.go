// Package optimize implements percentile-derived grid search over the
// strategy's parameter space, with a train/test split to guard against
// overfitting a single price series. Grounded on the percentile-bucket
// algorithm in the original parameter_optimizer.py.
package optimize

import (
	"sort"

	"market_maker/internal/backtest"
	"market_maker/internal/core"
)

// Parameter option sets: Default* are the general grid-search defaults,
// Screening* the smaller sets used by the screening job.
var (
	DefaultGridLevels     = []int{3, 5, 7, 10, 15, 20}
	DefaultSellPercentages = []float64{0.5, 1.0, 1.5, 2.0, 3.0, 5.0}

	ScreeningGridLevels     = []int{5, 10, 15}
	ScreeningSellPercentages = []float64{1.0, 2.0, 3.0, 5.0}
)

var minPercentiles = []float64{5, 10, 15, 25}
var maxPercentiles = []float64{75, 85, 90, 95}

// Combo is one candidate parameter set considered during a grid search.
type Combo struct {
	MinPrice       float64
	MaxPrice       float64
	GridLevels     int
	SellPercentage float64
}

// percentile computes the p-th percentile (0-100) of a sorted slice using
// linear interpolation between closest ranks, matching numpy's default.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := p / 100 * float64(len(sorted)-1)
	lo := int(rank)
	hi := lo + 1
	if hi >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

// GenerateGrid derives candidate (min, max, grid_levels, sell_percentage)
// combinations from percentiles of prices. A combination is skipped when
// max <= min*1.02 (too narrow a range to be useful).
func GenerateGrid(prices []float64, gridLevelsOpts []int, sellPctOpts []float64) []Combo {
	if len(gridLevelsOpts) == 0 {
		gridLevelsOpts = DefaultGridLevels
	}
	if len(sellPctOpts) == 0 {
		sellPctOpts = DefaultSellPercentages
	}
	if len(prices) == 0 {
		return nil
	}

	sorted := append([]float64(nil), prices...)
	sort.Float64s(sorted)

	var mins, maxs []float64
	for _, p := range minPercentiles {
		mins = append(mins, percentile(sorted, p))
	}
	for _, p := range maxPercentiles {
		maxs = append(maxs, percentile(sorted, p))
	}

	var combos []Combo
	for _, min := range mins {
		for _, max := range maxs {
			if max <= min*1.02 {
				continue
			}
			for _, levels := range gridLevelsOpts {
				for _, sellPct := range sellPctOpts {
					combos = append(combos, Combo{
						MinPrice:       min,
						MaxPrice:       max,
						GridLevels:     levels,
						SellPercentage: sellPct,
					})
				}
			}
		}
	}
	return combos
}

// Result is the full outcome of an Optimize run.
type Result struct {
	BestParams  Combo
	TrainResult backtest.Result
	TestResult  backtest.Result
	AllResults  []backtest.Result
	TrainSize   int
	TestSize    int
}

// Optimize splits prices at train_ratio, grid-searches combos on the train
// segment, selects the combo with the highest train total_pnl_pct, then
// validates it against the held-out test segment.
func Optimize(
	symbol string,
	prices []float64,
	totalAmount float64,
	trainRatio float64,
	feePct, buyPullback, sellPullback float64,
	gridLevelsOpts []int,
	sellPctOpts []float64,
	topN int,
) (Result, error) {
	if trainRatio < 0.5 {
		trainRatio = 0.5
	}
	if trainRatio > 0.9 {
		trainRatio = 0.9
	}
	if topN <= 0 {
		topN = 10
	}

	splitAt := int(float64(len(prices)) * trainRatio)
	train := prices[:splitAt]
	test := prices[splitAt:]

	combos := GenerateGrid(train, gridLevelsOpts, sellPctOpts)
	if len(combos) == 0 {
		return Result{}, core.ErrNoCombinations
	}

	results := make([]backtest.Result, 0, len(combos))
	for _, c := range combos {
		p := backtest.Params{
			MaxPrice:       c.MaxPrice,
			MinPrice:       c.MinPrice,
			GridLevels:     c.GridLevels,
			SellPercentage: c.SellPercentage,
			FeePct:         feePct,
			BuyPullback:    buyPullback,
			SellPullback:   sellPullback,
		}
		results = append(results, backtest.Run(symbol, train, totalAmount, p))
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].TotalPnLPct > results[j].TotalPnLPct
	})

	if len(results) == 0 {
		return Result{}, core.ErrNoCombinations
	}

	best := results[0]
	bestCombo := Combo{
		MinPrice:       best.Params.MinPrice,
		MaxPrice:       best.Params.MaxPrice,
		GridLevels:     best.Params.GridLevels,
		SellPercentage: best.Params.SellPercentage,
	}

	testResult := backtest.Run(symbol, test, totalAmount, best.Params)

	if topN > len(results) {
		topN = len(results)
	}

	return Result{
		BestParams:  bestCombo,
		TrainResult: best,
		TestResult:  testResult,
		AllResults:  results[:topN],
		TrainSize:   len(train),
		TestSize:    len(test),
	}, nil
}
