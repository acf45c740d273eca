package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market_maker/internal/core"
)

func testCfg() core.BotConfig {
	return core.BotConfig{
		ID:              "bot-1",
		Symbol:          "BTCUSDC",
		IsActive:        true,
		MaxPrice:        200,
		MinPrice:        100,
		TotalAmount:     1000,
		GridLevels:      10,
		SellPercentage:  2.0,
		FeePct:          0.002,
		BuyPullbackPct:  0.002,
		SellPullbackPct: 0.002,
	}
}

func runSeries(t *testing.T, cfg core.BotConfig, prices []float64) ([][]core.Decision, core.BotState) {
	t.Helper()
	var state core.BotState
	var prev *float64
	var all [][]core.Decision
	for _, p := range prices {
		price := p
		var decisions []core.Decision
		decisions, state = Decide(cfg, price, prev, state)
		all = append(all, decisions)
		prevCopy := price
		prev = &prevCopy
	}
	return all, state
}

func TestComputeGrid(t *testing.T) {
	grid := ComputeGrid(200, 100, 10)
	require.Len(t, grid, 9)
	expect := []float64{190, 180, 170, 160, 150, 140, 130, 120, 110}
	for i, v := range expect {
		assert.InDelta(t, v, grid[i], 1e-9)
	}
	for i := 1; i < len(grid); i++ {
		assert.Less(t, grid[i], grid[i-1])
	}

	assert.Nil(t, ComputeGrid(200, 100, 1))
	assert.Nil(t, ComputeGrid(200, 100, 0))
	assert.Nil(t, ComputeGrid(100, 200, 10))
}

func TestDecide_Scenario1_FirstBuyOpensGrid(t *testing.T) {
	cfg := testCfg()
	decisions, state := Decide(cfg, 150.0, nil, core.BotState{})
	require.Len(t, decisions, 1)
	assert.Equal(t, core.SideBuy, decisions[0].Side)
	assert.InDelta(t, 150.0, decisions[0].Price, 1e-9)
	assert.InDelta(t, 1000.0/10/150.0, decisions[0].Qty, 1e-9)

	require.Len(t, state.Positions, 1)
	assert.InDelta(t, 150.0, state.Positions[0].Entry, 1e-9)
	require.Len(t, state.GridPrices, 9)
	assert.Equal(t, 5, state.NextGridIndex)
}

func TestDecide_Scenario2_OutOfRangeNeverTrades(t *testing.T) {
	cfg := testCfg()
	cfg.MaxPrice = 150
	cfg.MinPrice = 100
	var state core.BotState
	var prev *float64
	for i := 0; i < 10; i++ {
		var decisions []core.Decision
		decisions, state = Decide(cfg, 200.0, prev, state)
		assert.Empty(t, decisions)
		p := 200.0
		prev = &p
	}
	assert.True(t, state.IsIdle())
}

func TestDecide_Scenario3_BuyThenSellOnPullbackGain(t *testing.T) {
	cfg := testCfg()
	all, final := runSeries(t, cfg, []float64{100, 102.5, 102.0})

	require.Len(t, all[0], 1)
	assert.Equal(t, core.SideBuy, all[0][0].Side)

	assert.Empty(t, all[1])

	require.Len(t, all[2], 1)
	assert.Equal(t, core.SideSell, all[2][0].Side)

	assert.True(t, final.IsIdle())
}

func TestDecide_Scenario4_TwoBuys(t *testing.T) {
	cfg := testCfg()
	prices := []float64{150, 142, 140, 139, 139.4, 139.3}
	all, final := runSeries(t, cfg, prices)

	buyCount := 0
	for _, decisions := range all {
		for _, d := range decisions {
			if d.Side == core.SideBuy {
				buyCount++
			}
		}
	}
	assert.Equal(t, 2, buyCount)
	assert.Equal(t, 6, final.NextGridIndex)
}

func TestDecide_Scenario5_NoPullbackNoSecondBuy(t *testing.T) {
	cfg := testCfg()
	prices := []float64{150, 148, 147, 146, 147, 146.5}
	all, _ := runSeries(t, cfg, prices)

	buyCount := 0
	for _, decisions := range all {
		for _, d := range decisions {
			if d.Side == core.SideBuy {
				buyCount++
			}
		}
	}
	assert.Equal(t, 1, buyCount)
}

func TestDecide_Scenario6_FullCycle(t *testing.T) {
	cfg := testCfg()
	prices := []float64{
		150, 142, 139, 139.5, 139.3,
		122, 119, 119.5, 119.3,
		124, 123.5, 123,
		143, 145, 144.5, 155, 154.5,
	}
	all, final := runSeries(t, cfg, prices)

	buys, sells := 0, 0
	for _, decisions := range all {
		for _, d := range decisions {
			if d.Side == core.SideBuy {
				buys++
			} else {
				sells++
			}
		}
	}
	assert.Equal(t, 3, buys)
	assert.Equal(t, 3, sells)
	assert.Equal(t, 0, len(final.Positions))
	assert.True(t, final.IsIdle())
}

func TestDecide_AtMostOneBuyPerTick(t *testing.T) {
	cfg := testCfg()
	var state core.BotState
	var prev *float64
	prices := []float64{150, 142, 139, 120, 110}
	for _, p := range prices {
		price := p
		var decisions []core.Decision
		decisions, state = Decide(cfg, price, prev, state)
		buys := 0
		for _, d := range decisions {
			if d.Side == core.SideBuy {
				buys++
			}
		}
		assert.LessOrEqual(t, buys, 1)
		prevCopy := price
		prev = &prevCopy
	}
}

func TestDecide_IdleInvariant(t *testing.T) {
	cfg := testCfg()
	_, final := runSeries(t, cfg, []float64{100, 102.5, 102.0})
	require.True(t, final.IsIdle())
	assert.Nil(t, final.LowestPrice)
	assert.Empty(t, final.GridPrices)
	assert.Equal(t, 0, final.NextGridIndex)
}

func TestDecide_Deterministic(t *testing.T) {
	cfg := testCfg()
	state := core.BotState{}
	price, prevPrice := 150.0, 142.0
	d1, s1 := Decide(cfg, price, &prevPrice, state)
	d2, s2 := Decide(cfg, price, &prevPrice, state)
	assert.Equal(t, d1, d2)
	assert.Equal(t, s1, s2)
}

func TestReconstructState_RoundTrip(t *testing.T) {
	cfg := testCfg()
	prices := []float64{
		150, 142, 139, 139.5, 139.3,
		122, 119, 119.5, 119.3,
		124, 123.5, 123,
	}
	var state core.BotState
	var prev *float64
	var trades []core.Trade
	var id int64
	base := 0
	for _, p := range prices {
		price := p
		var decisions []core.Decision
		decisions, state = Decide(cfg, price, prev, state)
		for _, d := range decisions {
			id++
			base++
			trades = append(trades, core.Trade{
				ID:        id,
				BotID:     cfg.ID,
				Type:      d.Side,
				Price:     d.Price,
				Qty:       d.Qty,
				CreatedAt: time.Unix(int64(base), 0),
			})
		}
		prevCopy := price
		prev = &prevCopy
	}

	reconstructed := ReconstructState(cfg, trades)
	require.Equal(t, len(state.Positions), len(reconstructed.Positions))
	for i := range state.Positions {
		assert.InDelta(t, state.Positions[i].Qty, reconstructed.Positions[i].Qty, 1e-9)
		assert.InDelta(t, state.Positions[i].Entry, reconstructed.Positions[i].Entry, 1e-9)
	}
}

func TestReconstructState_EmptyTradesIsIdle(t *testing.T) {
	cfg := testCfg()
	state := ReconstructState(cfg, nil)
	assert.True(t, state.IsIdle())
}
