// Package screening implements the Screening Job: it resolves a symbol
// universe, backtests an optimized grid against each symbol's recent
// history, and publishes incremental progress while persisting the final
// ranked results durably. Grounded on the spec's Screening Job section and
// the teacher's DBOS durable-workflow pattern (internal/engine/durable),
// used here when AppConfig.EngineType == "dbos" for crash-safe resumption.
package screening

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/dbos-inc/dbos-transact-golang/dbos"
	"github.com/google/uuid"

	"market_maker/internal/config"
	"market_maker/internal/core"
	"market_maker/internal/optimize"
)

const maxPublishedResults = 50

// minCandleHistory is the spec's floor below which a symbol is skipped
// rather than optimized against too little history.
const minCandleHistory = 200

// Screening-grade defaults used when Input leaves a field zero, matching
// the original task's (interval="1h", limit=720, total_amount=1000).
const (
	defaultInterval    = "1h"
	defaultLimit       = 720
	defaultTotalAmount = 1000
)

// Input parameterizes one screening run: (user_id, interval, limit,
// total_amount) per the spec's Screening Job signature.
type Input struct {
	TaskID      string
	UserID      string
	QuoteAsset  string
	Interval    string
	Limit       int
	TotalAmount float64
}

// withDefaults fills zero-valued Interval/Limit/TotalAmount with the
// screening-grade defaults.
func (in Input) withDefaults() Input {
	if in.Interval == "" {
		in.Interval = defaultInterval
	}
	if in.Limit == 0 {
		in.Limit = defaultLimit
	}
	if in.TotalAmount == 0 {
		in.TotalAmount = defaultTotalAmount
	}
	return in
}

// Job owns the collaborators needed to run a screening task either
// in-process (EngineType=simple) or as a DBOS durable workflow
// (EngineType=dbos).
type Job struct {
	universe core.SymbolUniverse
	candles  core.CandleSource
	prices   core.PriceStore
	durable  core.DurableStore
	log      core.ILogger
	timing   config.TimingConfig
	strategy config.StrategyConfig
}

func NewJob(universe core.SymbolUniverse, candles core.CandleSource, prices core.PriceStore, durable core.DurableStore, log core.ILogger, timing config.TimingConfig, strategy config.StrategyConfig) *Job {
	return &Job{universe: universe, candles: candles, prices: prices, durable: durable, log: log.WithField("component", "screening"), timing: timing, strategy: strategy}
}

// NewTaskID generates a task identifier for a fresh screening run.
func NewTaskID() string {
	return uuid.NewString()
}

// RunSimple executes the screening job directly on the calling goroutine,
// with no durable step boundaries. Intended for EngineType=simple.
func (j *Job) RunSimple(ctx context.Context, in Input) error {
	_, err := j.run(ctx, in)
	return err
}

// RunDBOS executes the screening job as a DBOS workflow: symbol-universe
// resolution and each per-symbol backtest are individually durable steps,
// so a process crash mid-run resumes from the last completed step instead
// of restarting the whole task.
func (j *Job) RunDBOS(dbosCtx dbos.DBOSContext, in Input) error {
	handle, err := dbosCtx.RunWorkflow(dbosCtx, j.workflow, in)
	if err != nil {
		return fmt.Errorf("screening: start workflow: %w", err)
	}
	_, err = handle.GetResult()
	return err
}

func (j *Job) workflow(ctx dbos.DBOSContext, input any) (any, error) {
	in := input.(Input).withDefaults()

	symbolsRaw, err := ctx.RunAsStep(ctx, func(stepCtx context.Context) (any, error) {
		return j.resolveUniverse(stepCtx, in.QuoteAsset)
	})
	if err != nil {
		return nil, err
	}
	symbols := symbolsRaw.([]string)

	if err := j.publishStarted(ctx, in.TaskID, len(symbols)); err != nil {
		j.log.Warn("screening: publish start failed", "task_id", in.TaskID, "err", err)
	}

	var rows []core.ScreeningResultRow
	for i, symbol := range symbols {
		rowRaw, err := ctx.RunAsStep(ctx, func(stepCtx context.Context) (any, error) {
			return j.screenSymbol(stepCtx, symbol, in.Interval, in.Limit, in.TotalAmount)
		})
		if err != nil {
			j.log.Warn("screening: symbol skipped", "symbol", symbol, "err", err)
		} else {
			rows = append(rows, rowRaw.(core.ScreeningResultRow))
		}

		if _, err := ctx.RunAsStep(ctx, func(stepCtx context.Context) (any, error) {
			return nil, j.publishProgress(stepCtx, in.TaskID, i+1, len(symbols), rows)
		}); err != nil {
			j.log.Warn("screening: progress publish failed", "task_id", in.TaskID, "err", err)
		}

		time.Sleep(j.timing.ScreeningSymbolPause())
	}

	_, err = ctx.RunAsStep(ctx, func(stepCtx context.Context) (any, error) {
		return nil, j.finalize(stepCtx, in, len(symbols), rows)
	})
	return nil, err
}

// run is the shared, non-durable core used directly by RunSimple.
func (j *Job) run(ctx context.Context, in Input) ([]core.ScreeningResultRow, error) {
	in = in.withDefaults()

	symbols, err := j.resolveUniverse(ctx, in.QuoteAsset)
	if err != nil {
		return nil, fmt.Errorf("screening: resolve universe: %w", err)
	}

	if err := j.publishStarted(ctx, in.TaskID, len(symbols)); err != nil {
		j.log.Warn("screening: publish start failed", "task_id", in.TaskID, "err", err)
	}

	var rows []core.ScreeningResultRow
	for i, symbol := range symbols {
		row, err := j.screenSymbol(ctx, symbol, in.Interval, in.Limit, in.TotalAmount)
		if err != nil {
			j.log.Warn("screening: symbol skipped", "symbol", symbol, "err", err)
		} else {
			rows = append(rows, row)
		}

		if err := j.publishProgress(ctx, in.TaskID, i+1, len(symbols), rows); err != nil {
			j.log.Warn("screening: progress publish failed", "task_id", in.TaskID, "err", err)
		}

		time.Sleep(j.timing.ScreeningSymbolPause())
	}

	if err := j.finalize(ctx, in, len(symbols), rows); err != nil {
		return rows, err
	}
	return rows, nil
}

// resolveUniverse prefers the Price Store's cached symbol list and falls
// back to the upstream exchange's symbol discovery, re-caching the result.
func (j *Job) resolveUniverse(ctx context.Context, quoteAsset string) ([]string, error) {
	if symbols, ok, err := j.prices.GetSymbols(ctx, quoteAsset); err == nil && ok && len(symbols) > 0 {
		return symbols, nil
	}

	symbols, err := j.universe.ActiveSymbols(ctx, quoteAsset)
	if err != nil {
		return nil, err
	}

	if err := j.prices.SetSymbols(ctx, quoteAsset, symbols, time.Hour); err != nil {
		j.log.Warn("screening: symbol cache refresh failed", "err", err)
	}
	return symbols, nil
}

// screenSymbol fetches recent candles and runs the Parameter Optimizer
// against the symbol's closing prices, returning the winning, test-validated
// combination as a result row.
func (j *Job) screenSymbol(ctx context.Context, symbol, interval string, limit int, totalAmount float64) (core.ScreeningResultRow, error) {
	candles, err := j.candles.FetchKlines(ctx, symbol, interval, limit)
	if err != nil {
		return core.ScreeningResultRow{}, fmt.Errorf("fetch candles: %w", err)
	}
	if len(candles) < minCandleHistory {
		return core.ScreeningResultRow{}, fmt.Errorf("insufficient candle history: %d", len(candles))
	}

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}

	result, err := optimize.Optimize(symbol, closes, totalAmount, 0.7,
		j.strategy.FeePct, j.strategy.BuyPullbackPct, j.strategy.SellPullbackPct,
		optimize.ScreeningGridLevels, optimize.ScreeningSellPercentages, 1)
	if err != nil {
		return core.ScreeningResultRow{}, fmt.Errorf("optimize: %w", err)
	}

	return core.ScreeningResultRow{
		Symbol:         symbol,
		BestPnLPct:     result.TrainResult.TotalPnLPct,
		BestMinPrice:   result.BestParams.MinPrice,
		BestMaxPrice:   result.BestParams.MaxPrice,
		BestGridLevels: result.BestParams.GridLevels,
		BestSellPct:    result.BestParams.SellPercentage,
		NumTrades:      result.TrainResult.NumTrades,
		WinRate:        result.TrainResult.WinRate,
		MaxDrawdown:    result.TrainResult.MaxDrawdown,
		SharpeRatio:    result.TrainResult.SharpeRatio,
		TestPnLPct:     result.TestResult.TotalPnLPct,
		TestWinRate:    result.TestResult.WinRate,
	}, nil
}

func (j *Job) publishStarted(ctx context.Context, taskID string, total int) error {
	return j.prices.SetProgress(ctx, taskID, core.ScreeningProgress{
		TaskID: taskID, Status: core.ScreeningRunning, Total: total, StartedAt: time.Now(),
	}, j.timing.ScreeningProgressTTL())
}

// publishProgress sorts the rows-so-far descending by best PnL% and
// truncates to maxPublishedResults before caching, matching the spec's
// top-N incremental preview.
func (j *Job) publishProgress(ctx context.Context, taskID string, processed, total int, rows []core.ScreeningResultRow) error {
	sorted := append([]core.ScreeningResultRow(nil), rows...)
	sort.Slice(sorted, func(i, k int) bool { return sorted[i].BestPnLPct > sorted[k].BestPnLPct })
	if len(sorted) > maxPublishedResults {
		sorted = sorted[:maxPublishedResults]
	}

	return j.prices.SetProgress(ctx, taskID, core.ScreeningProgress{
		TaskID: taskID, Status: core.ScreeningRunning, Total: total, Processed: processed, Results: sorted,
	}, j.timing.ScreeningProgressTTL())
}

// finalize persists the collected rows and publishes the completed status.
// totalSymbols is the full symbol-universe count resolved at the start of
// the run; Total and Processed both publish that count (not len(rows),
// which undercounts whenever a symbol was skipped) so progress is
// monotonically non-decreasing and processed == total on completion, per
// spec §8.
func (j *Job) finalize(ctx context.Context, in Input, totalSymbols int, rows []core.ScreeningResultRow) error {
	if err := j.durable.SaveScreeningResults(ctx, in.TaskID, in.UserID, rows); err != nil {
		return fmt.Errorf("screening: persist results: %w", err)
	}

	now := time.Now()
	sorted := append([]core.ScreeningResultRow(nil), rows...)
	sort.Slice(sorted, func(i, k int) bool { return sorted[i].BestPnLPct > sorted[k].BestPnLPct })
	if len(sorted) > maxPublishedResults {
		sorted = sorted[:maxPublishedResults]
	}

	return j.prices.SetProgress(ctx, in.TaskID, core.ScreeningProgress{
		TaskID: in.TaskID, Status: core.ScreeningCompleted, Total: totalSymbols, Processed: totalSymbols,
		Results: sorted, CompletedAt: &now,
	}, j.timing.ScreeningProgressTTL())
}
