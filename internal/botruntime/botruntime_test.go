package botruntime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market_maker/internal/config"
	"market_maker/internal/core"
	"market_maker/internal/logging"
	"market_maker/internal/pricestore"
)

func testLogger(t *testing.T) *logging.ZapLogger {
	t.Helper()
	l, err := logging.NewZapLogger("ERROR")
	require.NoError(t, err)
	return l
}

func testTiming() config.TimingConfig {
	return config.TimingConfig{
		BotTickSeconds:      1,
		ActiveFlagPollTicks: 2,
	}
}

func testCfg(botID string) core.BotConfig {
	return core.BotConfig{
		ID: botID, Symbol: "BTCUSDC", IsActive: true,
		MaxPrice: 200, MinPrice: 100, TotalAmount: 1000, GridLevels: 10, SellPercentage: 2.0,
		FeePct: 0.002, BuyPullbackPct: 0.002, SellPullbackPct: 0.002,
	}
}

// fakeDurable is an in-memory core.DurableStore for runtime tests.
type fakeDurable struct {
	mu     sync.Mutex
	cfgs   map[string]core.BotConfig
	active map[string]bool
	trades map[string][]core.Trade
}

func newFakeDurable() *fakeDurable {
	return &fakeDurable{cfgs: map[string]core.BotConfig{}, active: map[string]bool{}, trades: map[string][]core.Trade{}}
}

func (f *fakeDurable) ActiveBotIDs(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id, a := range f.active {
		if a {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (f *fakeDurable) BotConfig(ctx context.Context, botID string) (core.BotConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cfg, ok := f.cfgs[botID]
	if !ok {
		return core.BotConfig{}, errors.New("bot not found")
	}
	return cfg, nil
}

func (f *fakeDurable) IsBotActive(ctx context.Context, botID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active[botID], nil
}

func (f *fakeDurable) AppendTrade(ctx context.Context, t core.Trade) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trades[t.BotID] = append(f.trades[t.BotID], t)
	return nil
}

func (f *fakeDurable) TradesForBot(ctx context.Context, botID string) ([]core.Trade, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]core.Trade(nil), f.trades[botID]...), nil
}

func (f *fakeDurable) SaveScreeningResults(ctx context.Context, taskID, userID string, rows []core.ScreeningResultRow) error {
	return nil
}

type noopExecutor struct{ calls int }

func (e *noopExecutor) PlaceMarket(ctx context.Context, symbol string, side core.Side, qty float64) error {
	e.calls++
	return nil
}

type failingExecutor struct{}

func (failingExecutor) PlaceMarket(ctx context.Context, symbol string, side core.Side, qty float64) error {
	return errors.New("exchange rejected order")
}

func TestRuntime_FreshStartOpensGridOnFirstTick(t *testing.T) {
	durable := newFakeDurable()
	durable.cfgs["bot1"] = testCfg("bot1")
	durable.active["bot1"] = true

	store := pricestore.NewMemory()
	executor := &noopExecutor{}
	rt := New("bot1", durable, store, executor, testLogger(t), testTiming())

	require.NoError(t, rt.loadOrReconstructState(context.Background()))
	assert.True(t, rt.state.IsIdle())

	require.NoError(t, store.SetPrice(context.Background(), "BTCUSDC", 150, time.Minute))
	rt.tick(context.Background())

	assert.False(t, rt.state.IsIdle())
	assert.Equal(t, 1, executor.calls)

	trades, _ := durable.TradesForBot(context.Background(), "bot1")
	assert.Len(t, trades, 1)
	assert.Equal(t, core.SideBuy, trades[0].Type)
}

func TestRuntime_PriceMissSkipsTickWithoutError(t *testing.T) {
	durable := newFakeDurable()
	durable.cfgs["bot1"] = testCfg("bot1")
	durable.active["bot1"] = true

	store := pricestore.NewMemory()
	rt := New("bot1", durable, store, &noopExecutor{}, testLogger(t), testTiming())
	require.NoError(t, rt.loadOrReconstructState(context.Background()))

	rt.tick(context.Background())

	assert.True(t, rt.state.IsIdle())
	trades, _ := durable.TradesForBot(context.Background(), "bot1")
	assert.Empty(t, trades)
}

func TestRuntime_OrderFailureAbortsTickBeforeTradeLog(t *testing.T) {
	durable := newFakeDurable()
	durable.cfgs["bot1"] = testCfg("bot1")
	durable.active["bot1"] = true

	store := pricestore.NewMemory()
	rt := New("bot1", durable, store, failingExecutor{}, testLogger(t), testTiming())
	require.NoError(t, rt.loadOrReconstructState(context.Background()))

	require.NoError(t, store.SetPrice(context.Background(), "BTCUSDC", 150, time.Minute))
	rt.tick(context.Background())

	trades, _ := durable.TradesForBot(context.Background(), "bot1")
	assert.Empty(t, trades, "trade log must not record a fill the exchange rejected")
	assert.True(t, rt.state.IsIdle(), "state must not advance past a rejected order")
}

func TestRuntime_ReconstructsStateFromTradeLogOnCacheMiss(t *testing.T) {
	durable := newFakeDurable()
	cfg := testCfg("bot1")
	durable.cfgs["bot1"] = cfg
	durable.active["bot1"] = true
	durable.trades["bot1"] = []core.Trade{
		{BotID: "bot1", Type: core.SideBuy, Price: 150, Qty: 1, CreatedAt: time.Unix(1000, 0)},
	}

	store := pricestore.NewMemory()
	rt := New("bot1", durable, store, &noopExecutor{}, testLogger(t), testTiming())

	require.NoError(t, rt.loadOrReconstructState(context.Background()))
	assert.False(t, rt.state.IsIdle())
	assert.Len(t, rt.state.Positions, 1)

	cached, ok, err := store.GetBotState(context.Background(), "bot1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rt.state, cached)
}

func TestRuntime_Run_StopsOnContextCancel(t *testing.T) {
	durable := newFakeDurable()
	durable.cfgs["bot1"] = testCfg("bot1")
	durable.active["bot1"] = true

	store := pricestore.NewMemory()
	rt := New("bot1", durable, store, &noopExecutor{}, testLogger(t), testTiming())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := rt.Run(ctx)
	assert.NoError(t, err)
}
