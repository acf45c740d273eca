package pricestore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market_maker/internal/core"
)

func TestMemory_PriceRoundTrip(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	require.NoError(t, m.SetPrice(ctx, "BTCUSDC", 65000.5, 10*time.Second))
	cp, ok, err := m.GetPrice(ctx, "BTCUSDC")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 65000.5, cp.Price)
}

func TestMemory_PriceMissIsFalseNotError(t *testing.T) {
	m := NewMemory()
	_, ok, err := m.GetPrice(context.Background(), "UNKNOWN")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemory_SetPricesBatchNoopOnEmpty(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.SetPricesBatch(context.Background(), nil, 10*time.Second))
	require.NoError(t, m.SetPricesBatch(context.Background(), map[string]float64{}, 10*time.Second))
}

func TestMemory_BotStateRoundTripAndDelete(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	state := core.BotState{Positions: []core.Position{{Qty: 1, Entry: 100, Highest: 100}}}

	require.NoError(t, m.SetBotState(ctx, "bot-1", state))
	got, ok, err := m.GetBotState(ctx, "bot-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, state, got)

	require.NoError(t, m.DeleteBotState(ctx, "bot-1"))
	_, ok, err = m.GetBotState(ctx, "bot-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemory_ProgressExpiresAfterTTL(t *testing.T) {
	start := time.Now()
	clock := &fakeClock{t: start}
	m := NewMemory().WithClock(clock)
	ctx := context.Background()

	require.NoError(t, m.SetProgress(ctx, "task-1", core.ScreeningProgress{TaskID: "task-1"}, time.Hour))
	_, ok, err := m.GetProgress(ctx, "task-1")
	require.NoError(t, err)
	assert.True(t, ok)

	clock.t = start.Add(2 * time.Hour)
	_, ok, err = m.GetProgress(ctx, "task-1")
	require.NoError(t, err)
	assert.False(t, ok)
}

type fakeClock struct{ t time.Time }

func (f *fakeClock) Now() time.Time { return f.t }
