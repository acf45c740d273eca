package core

import (
	"context"
	"time"
)

// ILogger defines the interface for structured logging, implemented by the
// zap-backed logger in package logging. Every long-running component takes
// one so tests can inject a no-op or recording fake.
type ILogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) ILogger
	WithFields(fields map[string]interface{}) ILogger
}

// PriceStore is the short-TTL volatile store consulted by every bot tick and
// written by the single Price Ingest Worker. Implementations: pricestore.Redis
// (production) and pricestore.Memory (tests).
type PriceStore interface {
	SetPrice(ctx context.Context, symbol string, price float64, ttl time.Duration) error
	GetPrice(ctx context.Context, symbol string) (CachedPrice, bool, error)
	SetPricesBatch(ctx context.Context, prices map[string]float64, ttl time.Duration) error

	SetSymbols(ctx context.Context, quote string, symbols []string, ttl time.Duration) error
	GetSymbols(ctx context.Context, quote string) ([]string, bool, error)

	SetBotState(ctx context.Context, botID string, state BotState) error
	GetBotState(ctx context.Context, botID string) (BotState, bool, error)
	DeleteBotState(ctx context.Context, botID string) error

	SetProgress(ctx context.Context, taskID string, progress ScreeningProgress, ttl time.Duration) error
	GetProgress(ctx context.Context, taskID string) (ScreeningProgress, bool, error)
}

// DurableStore is the authoritative SQL store: bot configuration, the
// append-only trade log, and final screening results. The core never manages
// its schema or transactions beyond what is described here.
type DurableStore interface {
	ActiveBotIDs(ctx context.Context) ([]string, error)
	BotConfig(ctx context.Context, botID string) (BotConfig, error)
	IsBotActive(ctx context.Context, botID string) (bool, error)

	AppendTrade(ctx context.Context, t Trade) error
	TradesForBot(ctx context.Context, botID string) ([]Trade, error)

	SaveScreeningResults(ctx context.Context, taskID, userID string, rows []ScreeningResultRow) error
}

// OrderExecutor is the opaque collaborator that turns a strategy Decision
// into a real (or simulated) fill. Live vs. simulated mode is a boolean on
// the concrete implementation, never branched on by the core.
type OrderExecutor interface {
	PlaceMarket(ctx context.Context, symbol string, side Side, qty float64) error
}

// CandleSource fetches historical OHLCV data, either from the paginated REST
// API or from the daily archive host for fine-grained intervals.
type CandleSource interface {
	FetchKlines(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
	FetchArchive(ctx context.Context, symbol, interval string, days int) ([]Candle, error)
}

// SymbolUniverse discovers which symbols are eligible for screening.
type SymbolUniverse interface {
	ActiveSymbols(ctx context.Context, quoteAsset string) ([]string, error)
}

// Clock abstracts wall-clock time so tick loops and TTL math are testable.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock backed by time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
