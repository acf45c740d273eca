package pricestore

import (
	"context"
	"sync"
	"time"

	"market_maker/internal/core"
)

type memoryEntry struct {
	price   core.CachedPrice
	expires time.Time
}

// Memory is an in-process PriceStore used by tests; the binaries always use
// the Redis store. TTLs are honored via wall-clock
// comparison rather than a background sweep.
type Memory struct {
	mu        sync.Mutex
	prices    map[string]memoryEntry
	symbols   map[string]memoryEntry2
	botStates map[string]core.BotState
	progress  map[string]memoryEntry3
	clock     core.Clock
}

type memoryEntry2 struct {
	symbols []string
	expires time.Time
}

type memoryEntry3 struct {
	progress core.ScreeningProgress
	expires  time.Time
}

// NewMemory returns an empty Memory store using the system clock.
func NewMemory() *Memory {
	return &Memory{
		prices:    make(map[string]memoryEntry),
		symbols:   make(map[string]memoryEntry2),
		botStates: make(map[string]core.BotState),
		progress:  make(map[string]memoryEntry3),
		clock:     core.SystemClock{},
	}
}

// WithClock overrides the clock, for deterministic TTL tests.
func (m *Memory) WithClock(c core.Clock) *Memory {
	m.clock = c
	return m
}

func (m *Memory) now() time.Time { return m.clock.Now() }

func (m *Memory) SetPrice(_ context.Context, symbol string, price float64, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[symbol] = memoryEntry{
		price:   core.CachedPrice{Price: price, Ts: m.now().Unix(), Source: "ingest"},
		expires: m.now().Add(ttl),
	}
	return nil
}

func (m *Memory) GetPrice(_ context.Context, symbol string) (core.CachedPrice, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.prices[symbol]
	if !ok || m.now().After(entry.expires) {
		return core.CachedPrice{}, false, nil
	}
	return entry.price, true, nil
}

func (m *Memory) SetPricesBatch(_ context.Context, prices map[string]float64, ttl time.Duration) error {
	if len(prices) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ts := m.now().Unix()
	exp := m.now().Add(ttl)
	for symbol, price := range prices {
		m.prices[symbol] = memoryEntry{
			price:   core.CachedPrice{Price: price, Ts: ts, Source: "ingest"},
			expires: exp,
		}
	}
	return nil
}

func (m *Memory) SetSymbols(_ context.Context, quote string, symbols []string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.symbols[quote] = memoryEntry2{symbols: append([]string(nil), symbols...), expires: m.now().Add(ttl)}
	return nil
}

func (m *Memory) GetSymbols(_ context.Context, quote string) ([]string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.symbols[quote]
	if !ok || m.now().After(entry.expires) {
		return nil, false, nil
	}
	return entry.symbols, true, nil
}

func (m *Memory) SetBotState(_ context.Context, botID string, state core.BotState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.botStates[botID] = state
	return nil
}

func (m *Memory) GetBotState(_ context.Context, botID string) (core.BotState, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	state, ok := m.botStates[botID]
	return state, ok, nil
}

func (m *Memory) DeleteBotState(_ context.Context, botID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.botStates, botID)
	return nil
}

func (m *Memory) SetProgress(_ context.Context, taskID string, progress core.ScreeningProgress, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.progress[taskID] = memoryEntry3{progress: progress, expires: m.now().Add(ttl)}
	return nil
}

func (m *Memory) GetProgress(_ context.Context, taskID string) (core.ScreeningProgress, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.progress[taskID]
	if !ok || m.now().After(entry.expires) {
		return core.ScreeningProgress{}, false, nil
	}
	return entry.progress, true, nil
}

var _ core.PriceStore = (*Memory)(nil)
