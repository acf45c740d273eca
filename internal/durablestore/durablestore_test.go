package durablestore

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"market_maker/internal/core"
)

// These tests exercise a real Postgres instance and are skipped unless
// TEST_DATABASE_URL is set, matching the schema in
// original_source/app/models/{trading_bot,trade,screening_result}.py.
func testStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping durablestore integration test")
	}

	s, err := New(context.Background(), url, nil)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestStore_ActiveBotIDs_ReturnsOnlyActiveBots(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	_, err := s.pool.Exec(ctx, `INSERT INTO trading_bots (user_id, symbol, is_active, max_price, min_price, total_amount, sell_percentage, grid_levels) VALUES (1, 'BTCUSDT', 1, 200, 100, 1000, 2.0, 10)`)
	require.NoError(t, err)
	_, err = s.pool.Exec(ctx, `INSERT INTO trading_bots (user_id, symbol, is_active, max_price, min_price, total_amount, sell_percentage, grid_levels) VALUES (1, 'ETHUSDT', 0, 3000, 2000, 1000, 2.0, 10)`)
	require.NoError(t, err)

	ids, err := s.ActiveBotIDs(ctx)
	require.NoError(t, err)
	require.Len(t, ids, 1)
}

func TestStore_AppendTradeThenTradesForBot_RoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	var botID int64
	err := s.pool.QueryRow(ctx, `INSERT INTO trading_bots (user_id, symbol, is_active, max_price, min_price, total_amount, sell_percentage, grid_levels) VALUES (1, 'BTCUSDT', 1, 200, 100, 1000, 2.0, 10) RETURNING id`).Scan(&botID)
	require.NoError(t, err)
	botIDStr := strconv.FormatInt(botID, 10)

	cfg, err := s.BotConfig(ctx, botIDStr)
	require.NoError(t, err)
	require.Equal(t, "BTCUSDT", cfg.Symbol)

	trade := core.Trade{BotID: botIDStr, Type: core.SideBuy, Price: 150, Qty: 1, CreatedAt: time.Now()}
	require.NoError(t, s.AppendTrade(ctx, trade))

	trades, err := s.TradesForBot(ctx, botIDStr)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	require.Equal(t, core.SideBuy, trades[0].Type)
}

func TestStore_SaveScreeningResults_PersistsAllRows(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	rows := []core.ScreeningResultRow{
		{Symbol: "BTCUSDT", BestPnLPct: 5.0, BestMinPrice: 100, BestMaxPrice: 200, BestGridLevels: 10, BestSellPct: 2.0, NumTrades: 4, WinRate: 0.75, MaxDrawdown: 0.1, SharpeRatio: 1.2, TestPnLPct: 3.0, TestWinRate: 0.6},
	}
	require.NoError(t, s.SaveScreeningResults(ctx, "task-1", "1", rows))
}
