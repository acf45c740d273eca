// Package backtest replays the grid strategy over a historical close-price
// series and reports fee-adjusted P&L, drawdown, and Sharpe metrics.
package backtest

import (
	"math"

	"market_maker/internal/core"
	"market_maker/internal/strategy"
)

// Params is the parameter echo carried on every Result; package optimize
// builds one per candidate combination.
type Params struct {
	MaxPrice       float64
	MinPrice       float64
	GridLevels     int
	SellPercentage float64
	FeePct         float64
	BuyPullback    float64
	SellPullback   float64
}

// Result is the full metrics set produced by Run.
type Result struct {
	Params Params

	TotalPnL          float64
	TotalPnLPct       float64
	NumTrades         int
	NumBuys           int
	NumSells          int
	WinRate           float64
	MaxDrawdown       float64
	SharpeRatio       float64
	FinalOpenPositions int
	UnrealizedPnL     float64
}

type openLot struct {
	qty       float64
	buyPrice  float64
	buyFee    float64
}

// Run replays Decide tick-by-tick over closePrices, maintaining an external
// FIFO of open lots used solely for P&L accounting (the strategy's own
// position queue governs decisions; this queue governs money).
func Run(symbol string, closePrices []float64, totalAmount float64, p Params) Result {
	res := Result{Params: p}
	if len(closePrices) == 0 {
		return res
	}

	cfg := core.BotConfig{
		Symbol:          symbol,
		IsActive:        true,
		MaxPrice:        p.MaxPrice,
		MinPrice:        p.MinPrice,
		TotalAmount:     totalAmount,
		GridLevels:      p.GridLevels,
		SellPercentage:  p.SellPercentage,
		FeePct:          p.FeePct,
		BuyPullbackPct:  p.BuyPullback,
		SellPullbackPct: p.SellPullback,
	}

	var state core.BotState
	var prev *float64
	var lots []openLot
	var realizedPnL float64
	var wins int
	var returns []float64

	equity := totalAmount
	peak := equity
	maxDrawdown := 0.0

	for i, price := range closePrices {
		decisions, newState := strategy.Decide(cfg, price, prev, state)
		state = newState

		for _, d := range decisions {
			switch d.Side {
			case core.SideBuy:
				res.NumBuys++
				fee := d.Qty * d.Price * p.FeePct
				lots = append(lots, openLot{qty: d.Qty, buyPrice: d.Price, buyFee: fee})
			case core.SideSell:
				res.NumSells++
				if len(lots) > 0 {
					lot := lots[0]
					lots = lots[1:]
					sellValue := d.Price * lot.qty
					sellFee := sellValue * p.FeePct
					buyCost := lot.buyPrice * lot.qty
					tradePnL := (sellValue - sellFee) - (buyCost + lot.buyFee)
					realizedPnL += tradePnL
					if tradePnL > 0 {
						wins++
					}
				}
			}
		}

		openCost := 0.0
		openValue := 0.0
		for _, lot := range lots {
			openCost += lot.buyPrice*lot.qty + lot.buyFee
			openValue += price * lot.qty
		}

		newEquity := totalAmount + realizedPnL + (openValue - openCost)
		if i > 0 && equity != 0 {
			returns = append(returns, (newEquity-equity)/equity)
		}
		equity = newEquity

		if equity > peak {
			peak = equity
		}
		if peak > 0 {
			if dd := (peak - equity) / peak; dd > maxDrawdown {
				maxDrawdown = dd
			}
		}

		priceCopy := price
		prev = &priceCopy
	}

	res.NumTrades = res.NumBuys + res.NumSells
	res.FinalOpenPositions = len(lots)
	res.MaxDrawdown = maxDrawdown
	if res.NumSells > 0 {
		res.WinRate = float64(wins) / float64(res.NumSells)
	}

	lastPrice := closePrices[len(closePrices)-1]
	unrealized := 0.0
	for _, lot := range lots {
		unrealized += lastPrice*lot.qty - (lot.buyPrice*lot.qty + lot.buyFee)
	}
	res.UnrealizedPnL = unrealized

	res.TotalPnL = realizedPnL + unrealized
	if totalAmount != 0 {
		res.TotalPnLPct = res.TotalPnL / totalAmount * 100
	}

	res.SharpeRatio = sharpeRatio(returns)

	return res
}

// sharpeRatio computes mean(r)/std(r)*sqrt(N) with population variance
// floored at 1e-10 to avoid division blowups on near-constant series.
func sharpeRatio(returns []float64) float64 {
	n := len(returns)
	if n == 0 {
		return 0
	}
	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(n)

	var variance float64
	for _, r := range returns {
		d := r - mean
		variance += d * d
	}
	variance /= float64(n)
	if variance < 1e-10 {
		variance = 1e-10
	}
	std := math.Sqrt(variance)

	return mean / std * math.Sqrt(float64(n))
}
