package bootstrap

import (
	"fmt"

	"market_maker/internal/config"
)

// Config is an alias for the project's main configuration struct
type Config = config.Config

// LoadConfig delegates to the project's config loader
func LoadConfig(path string) (*Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	// Pre-flight Checks
	if err := checkPreFlight(cfg); err != nil {
		return nil, fmt.Errorf("pre-flight checks failed: %w", err)
	}

	return cfg, nil
}

// checkPreFlight performs environment checks beyond schema validation.
func checkPreFlight(cfg *Config) error {
	if cfg.App.EngineType == "dbos" && cfg.App.DatabaseURL == "" {
		return fmt.Errorf("app.database_url is required when engine_type is 'dbos'")
	}
	if cfg.Exchange.LiveTrading && (cfg.Exchange.APIKey == "" || cfg.Exchange.APISecret == "") {
		return fmt.Errorf("exchange.api_key and exchange.api_secret are required when live_trading is true")
	}
	return nil
}
