package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Signal Trader Configuration

[trading]
# Trading mode: "live" or "paper"
mode = "paper"
# Default product type: MIS, CNC, NRML
default_product = "MIS"
# Account label stamped on sandbox positions
username = ""
# SQLite database path (defaults to <config dir>/signal-trader.db)
database_path = ""

[execution]
# Auto-execute classified signals
enabled = false
# Minimum classifier confidence to act on (0.0 - 1.0)
confidence_threshold = 0.7
# Suppress repeat signals from the same channel within this window
duplicate_window_seconds = 300
# Lot multiplier applied to resolved lot size
trading_lots = 1
# Entry tolerance band around the signalled price
min_entry_tolerance = 0.1
max_entry_tolerance = 1.5

[classifier]
# CSV of valid underlying symbols (one per row, header allowed)
symbols_csv = ""
# Fall back to the LLM parser when regex extraction is incomplete
llm_enabled = false
llm_model = "gpt-4o-mini"

[monitor]
# Quote polling interval in seconds
poll_interval_seconds = 5
# Trail the stop-loss as targets are hit
trailing_enabled = true
# Closed positions retained in memory
history_limit = 100

[ui]
# Enable colored output
color_enabled = true
# Date format
date_format = "02-Jan-2006"
# Time format
time_format = "15:04:05"

[notifications]
# Enable notifications
enabled = false
# Notification level: all, trades_only, errors_only
level = "all"

[notifications.webhook]
enabled = false
url = ""

[notifications.telegram]
enabled = false
bot_token = ""
chat_id = ""
`

const credentialsTemplate = `# Signal Trader Credentials
# WARNING: Keep this file secure! Do not commit to version control.

[zerodha]
api_key = ""
api_secret = ""
user_id = ""
access_token = ""

[openai]
api_key = ""
`

func createTemplateConfig(configDir, name string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, name+".toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return fmt.Errorf("config file not found, created template at %s", path)
}

func createTemplateCredentials(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "credentials.toml")
	// Use restricted permissions for credentials file
	if err := os.WriteFile(path, []byte(credentialsTemplate), 0600); err != nil {
		return fmt.Errorf("writing credentials template: %w", err)
	}

	return fmt.Errorf("credentials file not found, created template at %s", path)
}
