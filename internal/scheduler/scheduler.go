// Package scheduler is the Bot Scheduler: it owns the set of running bot
// runtimes, enforces at most one runtime per bot, and dispatches runtimes
// onto a bounded worker pool. Grounded on pkg/concurrency.WorkerPool
// (alitto/pond).
package scheduler

import (
	"context"
	"sync"

	"market_maker/internal/config"
	"market_maker/internal/core"
	"market_maker/pkg/concurrency"
)

// RuntimeFactory constructs the per-bot runner invoked by the scheduler.
// Kept as a function so tests can substitute a fake runtime without
// depending on botruntime's store wiring.
type RuntimeFactory func(botID string) func(ctx context.Context) error

// Scheduler dispatches one goroutine per active bot onto a bounded pool and
// guarantees a bot is never scheduled twice concurrently.
type Scheduler struct {
	pool    *concurrency.WorkerPool
	durable core.DurableStore
	factory RuntimeFactory
	log     core.ILogger

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

// New builds a Scheduler sized per cfg.
func New(cfg config.ConcurrencyConfig, durable core.DurableStore, factory RuntimeFactory, log core.ILogger) *Scheduler {
	pool := concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:        "bot-scheduler",
		MaxWorkers:  cfg.SchedulerPoolSize,
		MaxCapacity: cfg.SchedulerPoolBuffer,
	}, log)

	return &Scheduler{
		pool:    pool,
		durable: durable,
		factory: factory,
		log:     log.WithField("component", "scheduler"),
		running: make(map[string]context.CancelFunc),
	}
}

// StartAll enumerates every currently active bot and dispatches a runtime
// for each. Call once at process startup.
func (s *Scheduler) StartAll(ctx context.Context) error {
	ids, err := s.durable.ActiveBotIDs(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		s.Activate(ctx, id)
	}
	return nil
}

// Activate dispatches a runtime for botID if one is not already running.
// Safe to call repeatedly (e.g. from a create-bot or activate-bot API
// handler); a second call for an already-running bot is a no-op.
func (s *Scheduler) Activate(ctx context.Context, botID string) {
	s.mu.Lock()
	if _, ok := s.running[botID]; ok {
		s.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.running[botID] = cancel
	s.mu.Unlock()

	run := s.factory(botID)
	err := s.pool.Submit(func() {
		if err := run(runCtx); err != nil {
			s.log.Error("bot runtime exited with error", "bot_id", botID, "err", err)
		}
		s.mu.Lock()
		delete(s.running, botID)
		s.mu.Unlock()
	})
	if err != nil {
		s.log.Error("failed to dispatch bot runtime", "bot_id", botID, "err", err)
		s.mu.Lock()
		delete(s.running, botID)
		s.mu.Unlock()
	}
}

// Deactivate cancels a running bot's context, causing its runtime to stop
// at the next tick boundary. It does not wait for the runtime to exit.
func (s *Scheduler) Deactivate(botID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.running[botID]; ok {
		cancel()
		delete(s.running, botID)
	}
}

// IsRunning reports whether botID currently has a dispatched runtime.
func (s *Scheduler) IsRunning(botID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[botID]
	return ok
}

// Stop cancels every running bot and drains the worker pool.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	for botID, cancel := range s.running {
		cancel()
		delete(s.running, botID)
	}
	s.mu.Unlock()
	s.pool.Stop()
}
