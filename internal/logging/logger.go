// Package logging provides structured logging functionality using Zap and
// an OpenTelemetry log bridge, shared by every gridbot process.
package logging

import (
	"fmt"
	"os"
	"strings"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log/global"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"market_maker/internal/core"
)

// ZapLogger implements core.ILogger using zap.Logger.
type ZapLogger struct {
	logger *zap.Logger
}

// NewZapLogger builds a console-encoded logger at levelStr, tee'd into the
// global OTel LoggerProvider so log records flow alongside traces/metrics.
func NewZapLogger(levelStr string) (*ZapLogger, error) {
	zapLevel, err := zapLevelFromString(levelStr)
	if err != nil {
		zapLevel = zap.InfoLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	stdoutCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.AddSync(os.Stdout),
		zapLevel,
	)

	otelCore := otelzap.NewCore("gridbot", otelzap.WithLoggerProvider(global.GetLoggerProvider()))
	combinedCore := zapcore.NewTee(stdoutCore, otelCore)

	logger := zap.New(combinedCore, zap.AddCaller(), zap.AddCallerSkip(1))

	return &ZapLogger{logger: logger}, nil
}

func zapLevelFromString(levelStr string) (zapcore.Level, error) {
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		return zap.DebugLevel, nil
	case "INFO":
		return zap.InfoLevel, nil
	case "WARN":
		return zap.WarnLevel, nil
	case "ERROR":
		return zap.ErrorLevel, nil
	case "FATAL":
		return zap.FatalLevel, nil
	default:
		return zap.InfoLevel, fmt.Errorf("invalid log level: %s", levelStr)
	}
}

// convertToZapFields interprets the variadic fields as alternating key/value
// pairs, matching the ILogger contract's printf-free structured style.
func (l *ZapLogger) convertToZapFields(fields []interface{}) []zap.Field {
	zapFields := make([]zap.Field, 0, len(fields)/2)
	for i := 0; i < len(fields); i += 2 {
		if i+1 >= len(fields) {
			break
		}
		key, ok := fields[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", fields[i])
		}
		zapFields = append(zapFields, zap.Any(key, fields[i+1]))
	}
	return zapFields
}

func (l *ZapLogger) Debug(msg string, fields ...interface{}) {
	l.logger.Debug(msg, l.convertToZapFields(fields)...)
}

func (l *ZapLogger) Info(msg string, fields ...interface{}) {
	l.logger.Info(msg, l.convertToZapFields(fields)...)
}

func (l *ZapLogger) Warn(msg string, fields ...interface{}) {
	l.logger.Warn(msg, l.convertToZapFields(fields)...)
}

func (l *ZapLogger) Error(msg string, fields ...interface{}) {
	l.logger.Error(msg, l.convertToZapFields(fields)...)
}

func (l *ZapLogger) Fatal(msg string, fields ...interface{}) {
	l.logger.Fatal(msg, l.convertToZapFields(fields)...)
}

func (l *ZapLogger) WithField(key string, value interface{}) core.ILogger {
	return &ZapLogger{logger: l.logger.With(zap.Any(key, value))}
}

func (l *ZapLogger) WithFields(fields map[string]interface{}) core.ILogger {
	zapFields := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		zapFields = append(zapFields, zap.Any(k, v))
	}
	return &ZapLogger{logger: l.logger.With(zapFields...)}
}

// Sync flushes any buffered log entries.
func (l *ZapLogger) Sync() error {
	return l.logger.Sync()
}

var _ core.ILogger = (*ZapLogger)(nil)
