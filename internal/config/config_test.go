package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "trading-core/internal/errors"
)

func TestLoad_WritesTemplatesAndUsesDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(dir, "config.toml"))
	info, err := os.Stat(filepath.Join(dir, "credentials.toml"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	assert.Equal(t, "synthetic", cfg.MarketData.QuoteProvider)
	assert.Equal(t, 120*time.Second, cfg.MarketData.QuoteTTL)
	assert.Equal(t, 5, cfg.Resilience.FailureThreshold)
	assert.Equal(t, 60*time.Second, cfg.Resilience.BreakerTimeout)
	assert.Equal(t, 100000.0, cfg.Broker.InitialCash)
	assert.Equal(t, 10, cfg.Preferences.WritesPerMinute)
	assert.Equal(t, filepath.Join(dir, "ledger.db"), cfg.Storage.LedgerDB)
	assert.Equal(t, filepath.Join(dir, "audit"), cfg.Preferences.AuditDir)
	assert.False(t, cfg.HasKite())
}

func TestLoad_TemplateRoundTrips(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(dir)
	require.NoError(t, err)

	// second load reads the written template instead of defaults
	cfg, err := Load(dir)
	require.NoError(t, err)
	defaults := Default()
	assert.Equal(t, defaults.MarketData, cfg.MarketData)
	assert.Equal(t, defaults.Resilience, cfg.Resilience)
	assert.Equal(t, defaults.Broker, cfg.Broker)
}

func TestLoad_FileAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(`
[market_data]
quote_provider = "finnhub"
history_days = 60

[broker]
slippage_bps = 10.0

[storage]
ledger_db = "/var/lib/trader/ledger.db"
`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "credentials.toml"), []byte(`
[finnhub]
token = "from-file"

[kite]
api_key = "kite-key"
`), 0600))

	t.Setenv("FINNHUB_TOKEN", "from-env")
	t.Setenv("KITE_ACCESS_TOKEN", "kite-token")
	t.Setenv("TRADER_LOG_LEVEL", "debug")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "finnhub", cfg.MarketData.QuoteProvider)
	assert.Equal(t, 60, cfg.MarketData.HistoryDays)
	assert.Equal(t, 10.0, cfg.Broker.SlippageBps)
	// unspecified keys keep their defaults
	assert.Equal(t, 100000.0, cfg.Broker.InitialCash)
	assert.Equal(t, "/var/lib/trader/ledger.db", cfg.Storage.LedgerDB)
	assert.Equal(t, "from-env", cfg.Credentials.Finnhub.Token)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.HasKite())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown quote provider", func(c *Config) { c.MarketData.QuoteProvider = "bloomberg" }},
		{"unknown history provider", func(c *Config) { c.MarketData.HistoryProviders = []string{"yahoo"} }},
		{"short history", func(c *Config) { c.MarketData.HistoryDays = 5 }},
		{"zero threshold", func(c *Config) { c.Resilience.FailureThreshold = 0 }},
		{"inverted retry delays", func(c *Config) { c.Resilience.RetryMaxDelay = time.Millisecond }},
		{"slippage out of range", func(c *Config) { c.Broker.SlippageBps = -1 }},
		{"zero throttle", func(c *Config) { c.Preferences.WritesPerMinute = 0 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }},
	}

	require.NoError(t, Default().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrConfigInvalid)
		})
	}
}

func TestLoad_RejectsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte("[market_data\n"), 0644))
	_, err := Load(dir)
	assert.Error(t, err)
}
