package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewZapLogger_ValidLevels(t *testing.T) {
	for _, level := range []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL", "debug"} {
		logger, err := NewZapLogger(level)
		require.NoError(t, err)
		require.NotNil(t, logger)
	}
}

func TestZapLogger_LogsDoNotPanic(t *testing.T) {
	logger, err := NewZapLogger("DEBUG")
	require.NoError(t, err)

	logger.Info("tick processed", "bot_id", "bot-1", "price", 65000.5)
	logger.Debug("price fetched", "symbol", "BTCUSDC")
	logger.Warn("price miss", "symbol", "ETHUSDC")
	logger.Error("upstream failure", "err", "timeout")

	assert.NoError(t, logger.Sync())
}

func TestZapLogger_WithFieldReturnsNewLogger(t *testing.T) {
	logger, err := NewZapLogger("INFO")
	require.NoError(t, err)

	scoped := logger.WithField("bot_id", "bot-1")
	require.NotNil(t, scoped)
	assert.NotSame(t, logger, scoped)
}

func TestZapLogger_WithFieldsReturnsNewLogger(t *testing.T) {
	logger, err := NewZapLogger("INFO")
	require.NoError(t, err)

	scoped := logger.WithFields(map[string]interface{}{"bot_id": "bot-1", "symbol": "BTCUSDC"})
	require.NotNil(t, scoped)
}

func TestZapLevelFromString_InvalidDefaultsToInfo(t *testing.T) {
	level, err := zapLevelFromString("NOT_A_LEVEL")
	assert.Error(t, err)
	assert.Equal(t, zap.InfoLevel, level)
}
