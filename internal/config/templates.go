package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# trading-core configuration

[market_data]
# Quote provider: finnhub, kite or synthetic
quote_provider = "synthetic"
# History providers tried in order; the synthetic series is always the last resort
history_providers = ["finnhub", "alphavantage"]
# Daily bars fetched per symbol
history_days = 100
# How long a market snapshot is served from cache
quote_ttl = "120s"
connect_timeout = "10s"
request_timeout = "30s"
# Outgoing calls per second per provider (0 disables pacing)
requests_per_second = 1.0
# Exchange prefix for Kite instruments
kite_exchange = "NSE"
# Use the single-pass indicator calculator
fast_indicators = true

[resilience]
# Consecutive failures before a provider circuit opens
failure_threshold = 5
# How long an open circuit waits before probing
breaker_timeout = "60s"
# Total attempts per provider call (first call plus retries)
retry_attempts = 4
retry_initial_delay = "1s"
retry_max_delay = "4s"

[cache]
max_size = 1000
default_ttl = "300s"

[broker]
# Paper broker starting cash
initial_cash = 100000.0
# Simulated slippage in basis points
slippage_bps = 5.0
# Fill price when no hint, mark or limit is known
default_price = 100.0

[preferences]
reads_per_minute = 100
writes_per_minute = 10
cache_ttl = "1h"
# Rotating JSON-lines journal of preference updates (relative to this directory)
audit_dir = "audit"

[trading]
# Notional pre-validated against preferences for personalized signals
default_trade_size = 5000.0
default_user = "local"

[telemetry]
listen_addr = ":9090"
slippage_alert_bps = 50.0
latency_alert_ms = 1000.0

[logging]
# debug, info, warn, error
level = "info"
console = true
file = false
file_path = "logs/trader.log"

[storage]
preferences_db = "preferences.db"
ledger_db = "ledger.db"
`

const credentialsTemplate = `# trading-core credentials
# Keep this file private (chmod 600). Environment variables take precedence:
# KITE_API_KEY, KITE_ACCESS_TOKEN, FINNHUB_TOKEN, ALPHAVANTAGE_API_KEY

[kite]
api_key = ""
access_token = ""

[finnhub]
token = ""

[alphavantage]
api_key = ""
`

func writeTemplate(configDir, name, content string, perm os.FileMode) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	path := filepath.Join(configDir, name)
	if err := os.WriteFile(path, []byte(content), perm); err != nil {
		return fmt.Errorf("writing %s template: %w", name, err)
	}
	return nil
}
