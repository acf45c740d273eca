// Package core defines the domain types and collaborator interfaces shared
// across the grid trading engine: bot configuration, persisted state, trade
// history, and the store/exchange/logger seams every other package is built
// against.
package core

import "time"

// Side is the direction of a trade decision.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// BotConfig is the immutable-per-tick configuration of a single grid bot.
// It may be edited externally between ticks (e.g. an operator changing
// MaxPrice), in which case the next tick observes the new values.
type BotConfig struct {
	ID             string
	Symbol         string
	IsActive       bool
	MaxPrice       float64
	MinPrice       float64
	TotalAmount    float64
	GridLevels     int
	SellPercentage float64

	// Strategy tunables, normally shared across bots but injected per-config
	// so tests can parameterize them (see design notes on dependency injection).
	FeePct          float64
	BuyPullbackPct  float64
	SellPullbackPct float64
}

// Validate reports whether cfg describes a usable grid. It does not mutate cfg.
func (c BotConfig) Validate() error {
	if c.MaxPrice <= c.MinPrice {
		return ErrInvalidGridRange
	}
	if c.MinPrice <= 0 {
		return ErrInvalidGridRange
	}
	if c.TotalAmount <= 0 {
		return ErrInvalidTotalAmount
	}
	if c.GridLevels < 1 {
		return ErrInvalidGridLevels
	}
	if c.SellPercentage <= 0 || c.SellPercentage > 100 {
		return ErrInvalidSellPercentage
	}
	return nil
}

// Position is a single open lot held by a bot, FIFO-ordered within BotState.
type Position struct {
	Qty     float64
	Entry   float64
	Highest float64
	Fee     float64
}

// BotState is the persistent, per-bot state threaded through Decide calls.
// The zero value is the idle state: no open positions, no pending grid.
type BotState struct {
	Positions     []Position
	LowestPrice   *float64
	GridPrices    []float64
	NextGridIndex int
}

// IsIdle reports whether the state holds no open positions. Per the data
// model invariant, idle is equivalent to LowestPrice == nil, GridPrices == nil
// and NextGridIndex == 0.
func (s BotState) IsIdle() bool {
	return len(s.Positions) == 0
}

// Clone returns a deep copy so callers can mutate the result without
// aliasing the receiver's slices.
func (s BotState) Clone() BotState {
	out := BotState{NextGridIndex: s.NextGridIndex}
	if len(s.Positions) > 0 {
		out.Positions = append([]Position(nil), s.Positions...)
	}
	if len(s.GridPrices) > 0 {
		out.GridPrices = append([]float64(nil), s.GridPrices...)
	}
	if s.LowestPrice != nil {
		v := *s.LowestPrice
		out.LowestPrice = &v
	}
	return out
}

// Decision is one trade a bot wants to make in the current tick.
type Decision struct {
	Side  Side
	Price float64
	Qty   float64
}

// Trade is an append-only, durable record of an executed decision.
type Trade struct {
	ID        int64
	BotID     string
	Type      Side
	Price     float64
	Qty       float64
	CreatedAt time.Time
}

// Candle is one OHLCV bar, oldest-to-newest within any returned slice.
type Candle struct {
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// CachedPrice is the value stored per symbol in the Price Store.
type CachedPrice struct {
	Price  float64 `json:"price"`
	Ts     int64   `json:"timestamp"`
	Source string  `json:"source"`
}

// ScreeningStatus is the lifecycle state of a screening task.
type ScreeningStatus string

const (
	ScreeningPending   ScreeningStatus = "pending"
	ScreeningRunning   ScreeningStatus = "running"
	ScreeningCompleted ScreeningStatus = "completed"
)

// ScreeningResultRow is one (task, symbol) outcome, published incrementally
// in ScreeningProgress.Results and persisted durably at the end of the job.
type ScreeningResultRow struct {
	Symbol         string  `json:"symbol"`
	BestPnLPct     float64 `json:"best_pnl_pct"`
	BestMinPrice   float64 `json:"best_min_price"`
	BestMaxPrice   float64 `json:"best_max_price"`
	BestGridLevels int     `json:"best_grid_levels"`
	BestSellPct    float64 `json:"best_sell_percentage"`
	NumTrades      int     `json:"num_trades"`
	WinRate        float64 `json:"win_rate"`
	MaxDrawdown    float64 `json:"max_drawdown"`
	SharpeRatio    float64 `json:"sharpe_ratio"`
	TestPnLPct     float64 `json:"test_pnl_pct"`
	TestWinRate    float64 `json:"test_win_rate"`
}

// ScreeningProgress is the volatile, per-task progress blob published while
// a screening job runs and polled by clients.
type ScreeningProgress struct {
	TaskID      string               `json:"task_id"`
	Status      ScreeningStatus      `json:"status"`
	Total       int                  `json:"total"`
	Processed   int                  `json:"processed"`
	Results     []ScreeningResultRow `json:"results"`
	StartedAt   time.Time            `json:"started_at"`
	CompletedAt *time.Time           `json:"completed_at,omitempty"`
}
