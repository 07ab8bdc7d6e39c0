// Package config provides configuration management for the signal trading application.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Trading       TradingConfig      `mapstructure:"trading"`
	Execution     ExecutionConfig    `mapstructure:"execution"`
	Classifier    ClassifierConfig   `mapstructure:"classifier"`
	Monitor       MonitorConfig      `mapstructure:"monitor"`
	UI            UIConfig           `mapstructure:"ui"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Credentials   Credentials        `mapstructure:"-"` // Loaded separately
}

// TradingConfig holds trading-related configuration.
type TradingConfig struct {
	Mode           string `mapstructure:"mode"`            // "live", "paper"
	DefaultProduct string `mapstructure:"default_product"` // MIS, CNC, NRML
	Username       string `mapstructure:"username"`
	DatabasePath   string `mapstructure:"database_path"`
}

// ExecutionConfig holds auto-execution configuration.
type ExecutionConfig struct {
	Enabled                bool    `mapstructure:"enabled"`
	ConfidenceThreshold    float64 `mapstructure:"confidence_threshold"`
	DuplicateWindowSeconds int     `mapstructure:"duplicate_window_seconds"`
	TradingLots            int     `mapstructure:"trading_lots"`
	MinEntryTolerance      float64 `mapstructure:"min_entry_tolerance"`
	MaxEntryTolerance      float64 `mapstructure:"max_entry_tolerance"`
}

// ClassifierConfig holds signal classifier configuration.
type ClassifierConfig struct {
	SymbolsCSV string `mapstructure:"symbols_csv"`
	LLMEnabled bool   `mapstructure:"llm_enabled"`
	LLMModel   string `mapstructure:"llm_model"`
}

// MonitorConfig holds position monitor configuration.
type MonitorConfig struct {
	PollIntervalSeconds int  `mapstructure:"poll_interval_seconds"`
	TrailingEnabled     bool `mapstructure:"trailing_enabled"`
	HistoryLimit        int  `mapstructure:"history_limit"`
}

// UIConfig holds UI-related configuration.
type UIConfig struct {
	ColorEnabled bool   `mapstructure:"color_enabled"`
	DateFormat   string `mapstructure:"date_format"`
	TimeFormat   string `mapstructure:"time_format"`
}

// NotificationConfig holds notification configuration.
type NotificationConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Level    string         `mapstructure:"level"` // all, trades_only, errors_only
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// WebhookConfig holds webhook notification configuration.
type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// TelegramConfig holds Telegram notification configuration.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

// Credentials holds API credentials.
type Credentials struct {
	Zerodha ZerodhaCredentials `mapstructure:"zerodha"`
	OpenAI  OpenAICredentials  `mapstructure:"openai"`
}

// ZerodhaCredentials holds Zerodha API credentials.
type ZerodhaCredentials struct {
	APIKey      string `mapstructure:"api_key"`
	APISecret   string `mapstructure:"api_secret"`
	UserID      string `mapstructure:"user_id"`
	AccessToken string `mapstructure:"access_token"`
}

// OpenAICredentials holds OpenAI API credentials.
type OpenAICredentials struct {
	APIKey string `mapstructure:"api_key"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/signal-trader"
	}
	return filepath.Join(home, ".config", "signal-trader")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := &Config{}

	// Load main config
	if err := loadConfigFile(configDir, "config", cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	// Load credentials
	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	applyDefaults(cfg, configDir)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadConfigFile(configDir, name string, target interface{}) error {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	v.SetDefault("trading.mode", "paper")
	v.SetDefault("trading.default_product", "MIS")
	v.SetDefault("execution.enabled", false)
	v.SetDefault("execution.confidence_threshold", 0.7)
	v.SetDefault("execution.duplicate_window_seconds", 300)
	v.SetDefault("execution.trading_lots", 1)
	v.SetDefault("execution.min_entry_tolerance", 0.1)
	v.SetDefault("execution.max_entry_tolerance", 1.5)
	v.SetDefault("classifier.llm_model", "gpt-4o-mini")
	v.SetDefault("monitor.poll_interval_seconds", 5)
	v.SetDefault("monitor.trailing_enabled", true)
	v.SetDefault("monitor.history_limit", 100)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found, create template
			return createTemplateConfig(configDir, name)
		}
		return err
	}

	return v.Unmarshal(target)
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return createTemplateCredentials(configDir)
		}
		return err
	}

	return v.Unmarshal(creds)
}

func applyEnvOverrides(cfg *Config) {
	// Zerodha credentials
	if v := os.Getenv("ZERODHA_API_KEY"); v != "" {
		cfg.Credentials.Zerodha.APIKey = v
	}
	if v := os.Getenv("ZERODHA_API_SECRET"); v != "" {
		cfg.Credentials.Zerodha.APISecret = v
	}
	if v := os.Getenv("ZERODHA_USER_ID"); v != "" {
		cfg.Credentials.Zerodha.UserID = v
	}

	// OpenAI credentials
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Credentials.OpenAI.APIKey = v
	}

	// Trading mode
	if v := os.Getenv("TRADING_MODE"); v != "" {
		cfg.Trading.Mode = v
	}

	// Auto-execution gate
	if v := os.Getenv("AUTO_EXECUTE_SIGNALS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Execution.Enabled = b
		}
	}
	if v := os.Getenv("SIGNAL_CONFIDENCE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Execution.ConfidenceThreshold = f
		}
	}
}

func applyDefaults(cfg *Config, configDir string) {
	if cfg.Trading.DatabasePath == "" {
		cfg.Trading.DatabasePath = filepath.Join(configDir, "signal-trader.db")
	}
	if cfg.Trading.Username == "" {
		cfg.Trading.Username = cfg.Credentials.Zerodha.UserID
	}
	if cfg.Execution.TradingLots <= 0 {
		cfg.Execution.TradingLots = 1
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	// Validate trading mode
	if c.Trading.Mode != "" && c.Trading.Mode != "live" && c.Trading.Mode != "paper" {
		return fmt.Errorf("invalid trading mode: %s (must be 'live' or 'paper')", c.Trading.Mode)
	}

	if c.Execution.ConfidenceThreshold < 0 || c.Execution.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence_threshold must be between 0 and 1")
	}
	if c.Execution.DuplicateWindowSeconds < 0 {
		return fmt.Errorf("duplicate_window_seconds must be non-negative")
	}
	if c.Execution.MinEntryTolerance < 0 || c.Execution.MaxEntryTolerance < c.Execution.MinEntryTolerance {
		return fmt.Errorf("entry tolerances must satisfy 0 <= min <= max")
	}
	if c.Monitor.PollIntervalSeconds <= 0 {
		return fmt.Errorf("poll_interval_seconds must be positive")
	}

	return nil
}

// IsPaperMode returns true if paper trading mode is enabled.
func (c *Config) IsPaperMode() bool {
	return c.Trading.Mode == "paper"
}
