// Package durablestore is the Postgres-backed core.DurableStore: the
// trading_bots/trades/screening_results schema the original service
// maintained via SQLAlchemy, reimplemented with pgx against the same
// column names. Grounded on original_source/app/models/{trading_bot,trade,
// screening_result}.py.
package durablestore

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"market_maker/internal/core"
)

// Store is a pgxpool-backed core.DurableStore.
type Store struct {
	pool *pgxpool.Pool
	log  core.ILogger
}

// New opens a connection pool against url (a postgres:// DSN).
func New(ctx context.Context, url string, log core.ILogger) (*Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("durablestore: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("durablestore: ping: %w", err)
	}
	return &Store{pool: pool, log: log}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// ActiveBotIDs returns every trading_bots.id with is_active = 1.
func (s *Store) ActiveBotIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM trading_bots WHERE is_active = 1`)
	if err != nil {
		return nil, fmt.Errorf("durablestore: query active bot ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("durablestore: scan bot id: %w", err)
		}
		ids = append(ids, fmt.Sprintf("%d", id))
	}
	return ids, rows.Err()
}

// BotConfig loads one trading_bots row and maps it onto core.BotConfig. The
// strategy tunables (fee/pullback percentages) are not part of this schema;
// they are injected by the caller from config.StrategyConfig since they are
// process-wide, not per-bot.
func (s *Store) BotConfig(ctx context.Context, botID string) (core.BotConfig, error) {
	id, err := strconv.ParseInt(botID, 10, 64)
	if err != nil {
		return core.BotConfig{}, fmt.Errorf("durablestore: invalid bot id %q: %w", botID, err)
	}

	var cfg core.BotConfig
	var isActive int
	row := s.pool.QueryRow(ctx, `
		SELECT id, symbol, is_active, max_price, min_price, total_amount, sell_percentage, grid_levels
		FROM trading_bots WHERE id = $1`, id)

	var rowID int64
	if err := row.Scan(&rowID, &cfg.Symbol, &isActive, &cfg.MaxPrice, &cfg.MinPrice, &cfg.TotalAmount, &cfg.SellPercentage, &cfg.GridLevels); err != nil {
		if err == pgx.ErrNoRows {
			return core.BotConfig{}, fmt.Errorf("durablestore: bot %s not found", botID)
		}
		return core.BotConfig{}, fmt.Errorf("durablestore: load bot config: %w", err)
	}

	cfg.ID = strconv.FormatInt(rowID, 10)
	cfg.IsActive = isActive == 1
	return cfg, nil
}

// IsBotActive is a narrow, cheap variant of BotConfig for the tick loop's
// periodic active-flag poll.
func (s *Store) IsBotActive(ctx context.Context, botID string) (bool, error) {
	id, err := strconv.ParseInt(botID, 10, 64)
	if err != nil {
		return false, fmt.Errorf("durablestore: invalid bot id %q: %w", botID, err)
	}

	var isActive int
	err = s.pool.QueryRow(ctx, `SELECT is_active FROM trading_bots WHERE id = $1`, id).Scan(&isActive)
	if err != nil {
		if err == pgx.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("durablestore: poll active flag: %w", err)
	}
	return isActive == 1, nil
}

// AppendTrade inserts one row into trades. Called before SetBotState on
// every tick with decisions, so a crash between the two always resumes
// with a trade log at least as fresh as the cached state.
func (s *Store) AppendTrade(ctx context.Context, t core.Trade) error {
	botID, err := strconv.ParseInt(t.BotID, 10, 64)
	if err != nil {
		return fmt.Errorf("durablestore: invalid bot id %q: %w", t.BotID, err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO trades (trading_bot_id, trade_type, price, quantity, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		botID, string(t.Type), t.Price, t.Qty, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("durablestore: append trade: %w", err)
	}
	return nil
}

// TradesForBot returns every trade for botID, oldest first, for crash
// recovery replay via strategy.ReconstructState.
func (s *Store) TradesForBot(ctx context.Context, botID string) ([]core.Trade, error) {
	id, err := strconv.ParseInt(botID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("durablestore: invalid bot id %q: %w", botID, err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, trading_bot_id, trade_type, price, quantity, created_at
		FROM trades WHERE trading_bot_id = $1 ORDER BY created_at ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("durablestore: query trades: %w", err)
	}
	defer rows.Close()

	var trades []core.Trade
	for rows.Next() {
		var t core.Trade
		var tradeType string
		var rowBotID int64
		if err := rows.Scan(&t.ID, &rowBotID, &tradeType, &t.Price, &t.Qty, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("durablestore: scan trade: %w", err)
		}
		t.BotID = strconv.FormatInt(rowBotID, 10)
		t.Type = core.Side(tradeType)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// SaveScreeningResults bulk-inserts the final ranked rows for one screening
// task inside a single transaction.
func (s *Store) SaveScreeningResults(ctx context.Context, taskID, userID string, rows []core.ScreeningResultRow) error {
	if len(rows) == 0 {
		return nil
	}

	userIDInt, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return fmt.Errorf("durablestore: invalid user id %q: %w", userID, err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("durablestore: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, r := range rows {
		_, err := tx.Exec(ctx, `
			INSERT INTO screening_results (
				task_id, user_id, symbol, best_pnl_pct, best_min_price, best_max_price,
				best_grid_levels, best_sell_percentage, num_trades, win_rate, max_drawdown,
				sharpe_ratio, test_pnl_pct, test_win_rate
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			taskID, userIDInt, r.Symbol, r.BestPnLPct, r.BestMinPrice, r.BestMaxPrice,
			r.BestGridLevels, r.BestSellPct, r.NumTrades, r.WinRate, r.MaxDrawdown,
			r.SharpeRatio, r.TestPnLPct, r.TestWinRate)
		if err != nil {
			return fmt.Errorf("durablestore: insert screening result for %s: %w", r.Symbol, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("durablestore: commit screening results: %w", err)
	}
	return nil
}

var _ core.DurableStore = (*Store)(nil)
