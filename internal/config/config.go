// Package config handles configuration management with validation.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete configuration structure for every gridbot binary
// (cmd/gridbot, cmd/screener, cmd/backtest each load the sections they need).
type Config struct {
	App         AppConfig         `yaml:"app"`
	Strategy    StrategyConfig    `yaml:"strategy"`
	Exchange    ExchangeConfig    `yaml:"exchange"`
	Stores      StoresConfig      `yaml:"stores"`
	System      SystemConfig      `yaml:"system"`
	Timing      TimingConfig      `yaml:"timing"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
}

// AppConfig contains process-level settings.
type AppConfig struct {
	EngineType  string `yaml:"engine_type" validate:"required,oneof=simple dbos"`
	DatabaseURL string `yaml:"database_url"` // required when engine_type=dbos (screening durability)
}

// StrategyConfig holds the dependency-injected strategy constants shared
// across every bot, per the design note that these must never be global.
type StrategyConfig struct {
	FeePct          float64 `yaml:"fee_pct" validate:"required,min=0,max=1"`
	BuyPullbackPct  float64 `yaml:"buy_pullback_pct" validate:"required,min=0,max=1"`
	SellPullbackPct float64 `yaml:"sell_pullback_pct" validate:"required,min=0,max=1"`
}

// ExchangeConfig configures the upstream Binance-compatible REST/WS API.
type ExchangeConfig struct {
	BaseURL     string `yaml:"base_url" validate:"required"`
	StreamURL   string `yaml:"stream_url" validate:"required"` // aggregate ticker WebSocket endpoint
	ArchiveURL  string `yaml:"archive_url"`                    // daily kline ZIP archive host, optional
	QuoteAsset  string `yaml:"quote_asset" validate:"required"`
	LiveTrading bool   `yaml:"live_trading"` // default false: simulated fills only
	APIKey      Secret `yaml:"api_key"`      // required when live_trading is true
	APISecret   Secret `yaml:"api_secret"`   // required when live_trading is true
}

// StoresConfig configures the durable (SQL) and volatile (Redis) stores.
type StoresConfig struct {
	DurableURL  Secret `yaml:"durable_url" validate:"required"`
	VolatileURL Secret `yaml:"volatile_url" validate:"required"`
}

// SystemConfig contains system-wide settings.
type SystemConfig struct {
	LogLevel string `yaml:"log_level" validate:"required,oneof=DEBUG INFO WARN ERROR FATAL"`
}

// TimingConfig contains every wall-clock interval named by the spec. Values
// are expressed in the natural unit and converted via the Duration helpers.
type TimingConfig struct {
	BotTickSeconds                int `yaml:"bot_tick_seconds" validate:"min=1,max=60"`
	ActiveFlagPollTicks           int `yaml:"active_flag_poll_ticks" validate:"min=1,max=3600"`
	IngestReconnectMinSeconds     int `yaml:"ingest_reconnect_min_seconds" validate:"min=1,max=300"`
	IngestReconnectMaxSeconds     int `yaml:"ingest_reconnect_max_seconds" validate:"min=1,max=600"`
	IngestPingSeconds             int `yaml:"ingest_ping_seconds" validate:"min=1,max=300"`
	IngestPongTimeoutSeconds      int `yaml:"ingest_pong_timeout_seconds" validate:"min=1,max=300"`
	TrackedSymbolRefreshSeconds   int `yaml:"tracked_symbol_refresh_seconds" validate:"min=1,max=3600"`
	PriceTTLSeconds               int `yaml:"price_ttl_seconds" validate:"min=1,max=60"`
	ScreeningSymbolPauseMillis    int `yaml:"screening_symbol_pause_millis" validate:"min=0,max=60000"`
	ScreeningProgressTTLMinutes   int `yaml:"screening_progress_ttl_minutes" validate:"min=1,max=1440"`
}

// ConcurrencyConfig sizes the Bot Scheduler's worker pool.
type ConcurrencyConfig struct {
	SchedulerPoolSize   int `yaml:"scheduler_pool_size" validate:"min=1,max=10000"`
	SchedulerPoolBuffer int `yaml:"scheduler_pool_buffer" validate:"min=1,max=100000"`
}

// TelemetryConfig contains telemetry settings.
type TelemetryConfig struct {
	MetricsPort   int  `yaml:"metrics_port"`
	EnableMetrics bool `yaml:"enable_metrics"`
}

// BotTickInterval and the other Duration helpers below
// convert TimingConfig's plain-int fields into time.Duration once, at the
// point of use, instead of scattering *time.Second throughout the runtime.
func (t TimingConfig) BotTickInterval() time.Duration {
	return time.Duration(t.BotTickSeconds) * time.Second
}

func (t TimingConfig) IngestReconnectMin() time.Duration {
	return time.Duration(t.IngestReconnectMinSeconds) * time.Second
}

func (t TimingConfig) IngestReconnectMax() time.Duration {
	return time.Duration(t.IngestReconnectMaxSeconds) * time.Second
}

func (t TimingConfig) IngestPingInterval() time.Duration {
	return time.Duration(t.IngestPingSeconds) * time.Second
}

func (t TimingConfig) IngestPongTimeout() time.Duration {
	return time.Duration(t.IngestPongTimeoutSeconds) * time.Second
}

func (t TimingConfig) TrackedSymbolRefreshInterval() time.Duration {
	return time.Duration(t.TrackedSymbolRefreshSeconds) * time.Second
}

func (t TimingConfig) PriceTTL() time.Duration {
	return time.Duration(t.PriceTTLSeconds) * time.Second
}

func (t TimingConfig) ScreeningSymbolPause() time.Duration {
	return time.Duration(t.ScreeningSymbolPauseMillis) * time.Millisecond
}

func (t TimingConfig) ScreeningProgressTTL() time.Duration {
	return time.Duration(t.ScreeningProgressTTLMinutes) * time.Minute
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// LoadConfig loads configuration from a YAML file with environment variable expansion.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// Validate performs comprehensive validation of the configuration.
func (c *Config) Validate() error {
	var errors []string

	if err := c.validateAppConfig(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateStrategyConfig(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateExchangeConfig(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateStoresConfig(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateSystemConfig(); err != nil {
		errors = append(errors, err.Error())
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errors, "\n"))
	}
	return nil
}

func (c *Config) validateAppConfig() error {
	if c.App.EngineType != "simple" && c.App.EngineType != "dbos" {
		return ValidationError{Field: "app.engine_type", Value: c.App.EngineType, Message: "must be one of: simple, dbos"}
	}
	if c.App.EngineType == "dbos" && c.App.DatabaseURL == "" {
		return ValidationError{Field: "app.database_url", Message: "required when engine_type is dbos"}
	}
	return nil
}

func (c *Config) validateStrategyConfig() error {
	if c.Strategy.FeePct < 0 || c.Strategy.FeePct > 1 {
		return ValidationError{Field: "strategy.fee_pct", Value: c.Strategy.FeePct, Message: "must be in [0,1]"}
	}
	if c.Strategy.BuyPullbackPct < 0 || c.Strategy.BuyPullbackPct > 1 {
		return ValidationError{Field: "strategy.buy_pullback_pct", Value: c.Strategy.BuyPullbackPct, Message: "must be in [0,1]"}
	}
	if c.Strategy.SellPullbackPct < 0 || c.Strategy.SellPullbackPct > 1 {
		return ValidationError{Field: "strategy.sell_pullback_pct", Value: c.Strategy.SellPullbackPct, Message: "must be in [0,1]"}
	}
	return nil
}

func (c *Config) validateExchangeConfig() error {
	if c.Exchange.BaseURL == "" {
		return ValidationError{Field: "exchange.base_url", Message: "required"}
	}
	if c.Exchange.StreamURL == "" {
		return ValidationError{Field: "exchange.stream_url", Message: "required"}
	}
	if c.Exchange.QuoteAsset == "" {
		return ValidationError{Field: "exchange.quote_asset", Message: "required"}
	}
	if c.Exchange.LiveTrading {
		if c.Exchange.APIKey == "" {
			return ValidationError{Field: "exchange.api_key", Message: "required when live_trading is true"}
		}
		if c.Exchange.APISecret == "" {
			return ValidationError{Field: "exchange.api_secret", Message: "required when live_trading is true"}
		}
	}
	return nil
}

func (c *Config) validateStoresConfig() error {
	if c.Stores.DurableURL == "" {
		return ValidationError{Field: "stores.durable_url", Message: "required"}
	}
	if c.Stores.VolatileURL == "" {
		return ValidationError{Field: "stores.volatile_url", Message: "required"}
	}
	return nil
}

func (c *Config) validateSystemConfig() error {
	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	if !contains(validLevels, strings.ToUpper(c.System.LogLevel)) {
		return ValidationError{
			Field:   "system.log_level",
			Value:   c.System.LogLevel,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLevels, ", ")),
		}
	}
	return nil
}

// String returns a YAML representation of the configuration with secrets redacted.
func (c *Config) String() string {
	data, _ := yaml.Marshal(c)
	return string(data)
}

func expandEnvVars(s string) string {
	return os.Expand(s, func(key string) string {
		return os.Getenv(key)
	})
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// DefaultConfig returns a default configuration for tests.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{EngineType: "simple"},
		Strategy: StrategyConfig{
			FeePct:          0.001,
			BuyPullbackPct:  0.002,
			SellPullbackPct: 0.002,
		},
		Exchange: ExchangeConfig{
			BaseURL:     "https://api.binance.com",
			StreamURL:   "wss://stream.binance.com:9443/ws/!ticker@arr",
			ArchiveURL:  "https://data.binance.vision",
			QuoteAsset:  "USDC",
			LiveTrading: false,
		},
		Stores: StoresConfig{
			DurableURL:  "postgres://localhost:5432/gridbot",
			VolatileURL: "redis://localhost:6379/0",
		},
		System: SystemConfig{LogLevel: "INFO"},
		Timing: TimingConfig{
			BotTickSeconds:              1,
			ActiveFlagPollTicks:         30,
			IngestReconnectMinSeconds:   5,
			IngestReconnectMaxSeconds:   60,
			IngestPingSeconds:           20,
			IngestPongTimeoutSeconds:    10,
			TrackedSymbolRefreshSeconds: 60,
			PriceTTLSeconds:             10,
			ScreeningSymbolPauseMillis:  500,
			ScreeningProgressTTLMinutes: 60,
		},
		Concurrency: ConcurrencyConfig{
			SchedulerPoolSize:   100,
			SchedulerPoolBuffer: 1000,
		},
		Telemetry: TelemetryConfig{MetricsPort: 9090, EnableMetrics: true},
	}
}
