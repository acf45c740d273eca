// Package botruntime runs one grid bot's tick loop: load-or-reconstruct
// state on startup, poll the active flag, fetch the cached price, advance
// the strategy, and persist the trade log before the state so a crash
// between the two can never lose a fill. Grounded on the spec's Bot
// Runtime section and the teacher's context-driven worker-loop style
// (internal/engine/simple).
package botruntime

import (
	"context"
	"fmt"
	"time"

	"market_maker/internal/config"
	"market_maker/internal/core"
	"market_maker/internal/strategy"
)

// Runtime drives a single bot's ticks until its context is cancelled or the
// bot is deactivated.
type Runtime struct {
	botID    string
	durable  core.DurableStore
	prices   core.PriceStore
	executor core.OrderExecutor
	log      core.ILogger
	timing   config.TimingConfig

	state     core.BotState
	prevPrice *float64
	tickCount int
}

// New builds a Runtime for botID. State is loaded lazily on the first Run
// call so construction never touches the store.
func New(botID string, durable core.DurableStore, prices core.PriceStore, executor core.OrderExecutor, log core.ILogger, timing config.TimingConfig) *Runtime {
	return &Runtime{
		botID:    botID,
		durable:  durable,
		prices:   prices,
		executor: executor,
		log:      log.WithField("bot_id", botID),
		timing:   timing,
	}
}

// Run blocks, ticking every BotTickInterval, until ctx is cancelled or the
// bot's is_active flag turns false on a poll boundary. It returns nil on a
// clean stop (cancellation or deactivation), and a non-nil error only if
// startup state recovery fails.
func (r *Runtime) Run(ctx context.Context) error {
	if err := r.loadOrReconstructState(ctx); err != nil {
		return fmt.Errorf("botruntime: bot %s: load state: %w", r.botID, err)
	}

	ticker := time.NewTicker(r.timing.BotTickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.tickCount++

			if r.tickCount%r.timing.ActiveFlagPollTicks == 0 {
				active, err := r.durable.IsBotActive(ctx, r.botID)
				if err != nil {
					r.log.Warn("active flag poll failed, continuing with last known state", "err", err)
				} else if !active {
					r.log.Info("bot deactivated, stopping runtime")
					return nil
				}
			}

			r.tick(ctx)
		}
	}
}

// loadOrReconstructState loads BotState from the Price Store's hot cache;
// on a miss (fresh start or cache eviction) it replays the durable trade
// log via strategy.ReconstructState and writes the rebuilt state back so
// the next tick's cache lookup hits.
func (r *Runtime) loadOrReconstructState(ctx context.Context) error {
	cached, ok, err := r.prices.GetBotState(ctx, r.botID)
	if err != nil {
		return err
	}
	if ok {
		r.state = cached
		return nil
	}

	cfg, err := r.durable.BotConfig(ctx, r.botID)
	if err != nil {
		return err
	}
	trades, err := r.durable.TradesForBot(ctx, r.botID)
	if err != nil {
		return err
	}

	r.state = strategy.ReconstructState(cfg, trades)
	return r.prices.SetBotState(ctx, r.botID, r.state)
}

// tick runs exactly one strategy step. A price-store miss is swallowed: the
// bot simply skips the tick rather than falling back to any other source.
func (r *Runtime) tick(ctx context.Context) {
	cfg, err := r.durable.BotConfig(ctx, r.botID)
	if err != nil {
		r.log.Warn("tick skipped: config load failed", "err", err)
		return
	}

	cached, ok, err := r.prices.GetPrice(ctx, cfg.Symbol)
	if err != nil || !ok {
		return
	}
	price := cached.Price

	decisions, next := strategy.Decide(cfg, price, r.prevPrice, r.state)
	prev := price
	r.prevPrice = &prev

	if len(decisions) == 0 {
		r.state = next
		return
	}

	for _, d := range decisions {
		// Whether PlaceMarket sends a real order or only simulates one is
		// decided inside the executor (exchangeclient.Client's live-trading
		// flag); a nil executor skips order placement entirely.
		if r.executor != nil {
			if err := r.executor.PlaceMarket(ctx, cfg.Symbol, d.Side, d.Qty); err != nil {
				r.log.Error("order placement failed, aborting remaining decisions this tick", "side", d.Side, "err", err)
				return
			}
		}

		trade := core.Trade{BotID: r.botID, Type: d.Side, Price: d.Price, Qty: d.Qty, CreatedAt: time.Now()}
		if err := r.durable.AppendTrade(ctx, trade); err != nil {
			r.log.Error("trade log append failed, aborting tick to avoid state/log divergence", "err", err)
			return
		}
	}

	r.state = next
	if err := r.prices.SetBotState(ctx, r.botID, r.state); err != nil {
		r.log.Error("state persist failed", "err", err)
	}
}
