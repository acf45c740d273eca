// Package strategy implements the grid trading state machine: the pure
// decision function shared by the live Bot Runtime and the Backtest Engine,
// and the trade-log replay used for crash recovery.
package strategy

import (
	"sort"

	"market_maker/internal/core"
)

// ComputeGrid returns N-1 evenly spaced prices strictly between max and min,
// in decreasing order: the i-th entry (1-indexed) equals max - i*(max-min)/N.
// It returns nil if levels <= 1 or max <= min.
func ComputeGrid(max, min float64, levels int) []float64 {
	if levels <= 1 || max <= min {
		return nil
	}
	step := (max - min) / float64(levels)
	grid := make([]float64, 0, levels-1)
	for i := 1; i < levels; i++ {
		grid = append(grid, max-float64(i)*step)
	}
	return grid
}

// firstIndexBelow returns the index of the first entry in a strictly
// decreasing grid that is less than price, or len(grid) if none qualify.
func firstIndexBelow(grid []float64, price float64) int {
	for i, g := range grid {
		if g < price {
			return i
		}
	}
	return len(grid)
}

// Decide is the pure, deterministic core of the grid strategy. It never
// errors: a degenerate configuration (e.g. max_price <= min_price) simply
// yields an empty grid and thus never a grid buy.
func Decide(cfg core.BotConfig, price float64, prevPrice *float64, state core.BotState) ([]core.Decision, core.BotState) {
	next := state.Clone()

	if next.IsIdle() {
		if price < cfg.MinPrice || price > cfg.MaxPrice {
			return nil, next
		}
		qty := cfg.TotalAmount / float64(cfg.GridLevels) / price
		fee := qty * price * cfg.FeePct
		next.Positions = []core.Position{{Qty: qty, Entry: price, Highest: price, Fee: fee}}
		next.GridPrices = ComputeGrid(cfg.MaxPrice, cfg.MinPrice, cfg.GridLevels)
		next.NextGridIndex = firstIndexBelow(next.GridPrices, price)
		next.LowestPrice = nil
		return []core.Decision{{Side: core.SideBuy, Price: price, Qty: qty}}, next
	}

	if next.LowestPrice == nil {
		v := price
		next.LowestPrice = &v
	} else if price < *next.LowestPrice {
		*next.LowestPrice = price
	}

	for i := range next.Positions {
		if price > next.Positions[i].Highest {
			next.Positions[i].Highest = price
		}
	}

	var decisions []core.Decision
	sold := make([]bool, len(next.Positions))
	for i, pos := range next.Positions {
		gainPct := price/pos.Entry - 1
		pullbackOK := price <= pos.Highest*(1-cfg.SellPullbackPct)
		if gainPct >= cfg.SellPercentage/100 && pullbackOK {
			decisions = append(decisions, core.Decision{Side: core.SideSell, Price: price, Qty: pos.Qty})
			sold[i] = true
		}
	}
	if len(decisions) > 0 {
		remaining := next.Positions[:0]
		for i, pos := range next.Positions {
			if !sold[i] {
				remaining = append(remaining, pos)
			}
		}
		next.Positions = remaining
	}

	if len(next.Positions) == 0 {
		next.LowestPrice = nil
		next.GridPrices = nil
		next.NextGridIndex = 0
		return decisions, next
	}

	if prevPrice != nil && next.NextGridIndex < len(next.GridPrices) && price <= cfg.MaxPrice {
		target := next.GridPrices[next.NextGridIndex]
		if price <= target {
			pullbackOK := price < *prevPrice && price >= *next.LowestPrice*(1+cfg.BuyPullbackPct)
			if pullbackOK {
				qty := cfg.TotalAmount / float64(cfg.GridLevels) / price
				fee := qty * price * cfg.FeePct
				next.Positions = append(next.Positions, core.Position{Qty: qty, Entry: price, Highest: price, Fee: fee})
				next.NextGridIndex++
				lp := price
				next.LowestPrice = &lp
				decisions = append(decisions, core.Decision{Side: core.SideBuy, Price: price, Qty: qty})
			}
		}
	}

	return decisions, next
}

// ReconstructState rebuilds a BotState from a bot's full trade log, using
// the *current* configuration to rebuild the grid (see design notes on
// grid reconstruction ambiguity: an operator may have changed cfg mid-cycle).
func ReconstructState(cfg core.BotConfig, trades []core.Trade) core.BotState {
	sorted := append([]core.Trade(nil), trades...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})

	var positions []core.Position
	for _, t := range sorted {
		switch t.Type {
		case core.SideBuy:
			fee := t.Qty * t.Price * cfg.FeePct
			positions = append(positions, core.Position{Qty: t.Qty, Entry: t.Price, Highest: t.Price, Fee: fee})
		case core.SideSell:
			if len(positions) > 0 {
				positions = positions[1:]
			}
		}
	}

	if len(positions) == 0 {
		return core.BotState{}
	}

	grid := ComputeGrid(cfg.MaxPrice, cfg.MinPrice, cfg.GridLevels)
	startIndex := len(grid)
	for i, g := range grid {
		if g < positions[0].Entry {
			startIndex = i
			break
		}
	}

	lowest := positions[0].Entry
	for _, p := range positions[1:] {
		if p.Entry < lowest {
			lowest = p.Entry
		}
	}

	return core.BotState{
		Positions:     positions,
		LowestPrice:   &lowest,
		GridPrices:    grid,
		NextGridIndex: startIndex + (len(positions) - 1),
	}
}
