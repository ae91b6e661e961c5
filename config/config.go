package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"newstrader/internal/adapters/logger" // Import the logger package for LogLevel
)

// RunMode selects how orders are executed.
type RunMode string

const (
	// ModeDryRun simulates fills locally without talking to the broker.
	ModeDryRun RunMode = "DRYRUN"
	// ModeLive places real orders through the broker API.
	ModeLive RunMode = "LIVE"
)

// Config holds all application configuration.
type Config struct {
	// Anthropic API (news classification)
	AnthropicAPIKey string
	AnthropicModel  string

	// Alpaca Trading API
	AlpacaAPIKey    string
	AlpacaSecretKey string
	AlpacaBaseURL   string

	// Slack (optional)
	SlackWebhookURL string

	// Trading Parameters
	RunMode         RunMode
	RunOnce         bool // Execute a single pipeline cycle and exit
	TickerWhitelist []string
	CycleMinutes    int           // News pipeline cycle interval
	MonitorInterval time.Duration // Open-position polling interval
	FillTimeout     time.Duration // How long to wait for a limit order to fill
	InitialEquity   float64

	// Rules
	RulesPath string

	// Database
	DBPath string

	// Logging
	LogLevel logger.LogLevel // Use the LogLevel type from the logger adapter
}

// SlackEnabled reports whether Slack notifications are configured.
func (c *Config) SlackEnabled() bool {
	return strings.HasPrefix(c.SlackWebhookURL, "http")
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var errs []string // Collect validation errors

	// Anthropic API
	cfg.AnthropicAPIKey = getEnv("ANTHROPIC_API_KEY", "")
	cfg.AnthropicModel = getEnv("ANTHROPIC_MODEL", "claude-3-haiku-20240307")
	if cfg.AnthropicAPIKey == "" {
		errs = append(errs, "ANTHROPIC_API_KEY must be set")
	}

	// Alpaca API
	cfg.AlpacaAPIKey = getEnv("ALPACA_API_KEY", "")
	cfg.AlpacaSecretKey = getEnv("ALPACA_SECRET_KEY", "")
	cfg.AlpacaBaseURL = getEnv("ALPACA_BASE_URL", "https://paper-api.alpaca.markets")

	// Slack
	cfg.SlackWebhookURL = getEnv("SLACK_WEBHOOK_URL", "")

	// Trading Parameters
	mode := strings.ToUpper(getEnv("RUN_MODE", string(ModeDryRun)))
	switch RunMode(mode) {
	case ModeDryRun, ModeLive:
		cfg.RunMode = RunMode(mode)
	default:
		errs = append(errs, fmt.Sprintf("invalid RUN_MODE %q (must be DRYRUN or LIVE)", mode))
	}

	// Broker keys are only required when placing real orders.
	if cfg.RunMode == ModeLive {
		if cfg.AlpacaAPIKey == "" {
			errs = append(errs, "ALPACA_API_KEY must be set in LIVE mode")
		}
		if cfg.AlpacaSecretKey == "" {
			errs = append(errs, "ALPACA_SECRET_KEY must be set in LIVE mode")
		}
	}

	cfg.RunOnce = getEnvAsBool("RUN_ONCE", false)

	whitelist := getEnv("TICKER_WHITELIST", "AAPL,TSLA,NVDA,MSFT,GOOGL,AMZN,META")
	for _, t := range strings.Split(whitelist, ",") {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t != "" {
			cfg.TickerWhitelist = append(cfg.TickerWhitelist, t)
		}
	}
	if len(cfg.TickerWhitelist) == 0 {
		errs = append(errs, "TICKER_WHITELIST must contain at least one symbol")
	}

	cfg.CycleMinutes = getEnvAsInt("CYCLE_MINUTES", 5)
	if cfg.CycleMinutes <= 0 {
		errs = append(errs, "CYCLE_MINUTES must be positive")
	}

	monitorSeconds := getEnvAsInt("MONITOR_INTERVAL_SECONDS", 30)
	if monitorSeconds <= 0 {
		errs = append(errs, "MONITOR_INTERVAL_SECONDS must be positive")
	}
	cfg.MonitorInterval = time.Duration(monitorSeconds) * time.Second

	fillTimeoutSeconds := getEnvAsInt("FILL_TIMEOUT_SECONDS", 30)
	if fillTimeoutSeconds <= 0 {
		errs = append(errs, "FILL_TIMEOUT_SECONDS must be positive")
	}
	cfg.FillTimeout = time.Duration(fillTimeoutSeconds) * time.Second

	var err error
	cfg.InitialEquity, err = getEnvAsFloatRequired("INITIAL_EQUITY", 100000.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid INITIAL_EQUITY: %v", err))
	} else if cfg.InitialEquity <= 0 {
		errs = append(errs, "INITIAL_EQUITY must be positive")
	}

	// Rules
	cfg.RulesPath = getEnv("RULES_PATH", "configs/rules.yaml")

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/newstrader.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Logging
	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr) // Use the parser from the logger package

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}
