package bootstrap

import (
	"market_maker/internal/core"
	"market_maker/internal/logging"
)

// InitLogger builds the process-wide zap-backed logger at the level named by
// cfg.System.LogLevel. Every gridbot binary shares this one construction
// path so log shape stays identical across cmd/gridbot, cmd/screener, and
// cmd/backtest.
func InitLogger(cfg *Config) (core.ILogger, error) {
	return logging.NewZapLogger(cfg.System.LogLevel)
}
