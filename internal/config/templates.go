package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Earnings Tracker Configuration

[provider]
# Alpha Vantage query endpoint
base_url = "https://www.alphavantage.co/query"
# Minimum gap between any two outbound calls (free tier: 5 calls/minute)
min_interval = "12s"
# Wait after the provider answers with a rate-limit note
cooldown = "60s"
# Retries for rate-limit notes and network errors
max_retries = 3
# Linear backoff unit for network errors (attempt n waits n * retry_wait)
retry_wait = "5s"
# Per-request timeout
timeout = "30s"

[calendar]
# Weekday candidates tried before a trading day is reported as not found
max_attempts = 5
# Calendar-day span searched from the announcement date
max_span_days = 7

[alignment]
# "close-to-close" or "legacy-next-open"
convention = "close-to-close"
# Reports without a time are treated as "AMC" or "BMO"
unspecified_as = "AMC"

[store]
# SQLite database path (default: <config dir>/earnings.db)
path = ""

[sync]
# Skip re-fetching data younger than these
earnings_stale = "24h"
prices_stale = "24h"
# Tighter threshold while the US market is open
market_hours_stale = "15m"
# Whole-symbol attempts in bulk sync
symbol_attempts = 3
symbol_retry_wait = "2s"
# How long new fetches stay suspended after the daily quota is exhausted
quota_open_duration = "1h"

[server]
port = 5000
# Cron schedule (with seconds) for background refresh; empty disables it
refresh_schedule = "0 30 21 * * MON-FRI"
# Workers for cross-symbol analysis
workers = 4

[log]
# debug, info, warn, error
level = "info"
# Rotating log file (empty: <config dir>/logs/earnings.log)
file = ""
`

const credentialsTemplate = `# Earnings Tracker Credentials
# WARNING: Keep this file secure! Do not commit to version control.

[alpha_vantage]
api_key = ""
`

func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	return nil
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

	return nil
}
