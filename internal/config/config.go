// Package config provides configuration management for the trading pipeline.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	apperrors "trading-core/internal/errors"
)

// Config holds all application configuration.
type Config struct {
	MarketData  MarketDataConfig  `mapstructure:"market_data"`
	Resilience  ResilienceConfig  `mapstructure:"resilience"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Broker      BrokerConfig      `mapstructure:"broker"`
	Preferences PreferencesConfig `mapstructure:"preferences"`
	Trading     TradingConfig     `mapstructure:"trading"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Credentials Credentials       `mapstructure:"-" json:"-"` // Loaded separately; never serialized
}

// MarketDataConfig selects and tunes the data providers.
type MarketDataConfig struct {
	QuoteProvider     string        `mapstructure:"quote_provider"`    // finnhub, kite, synthetic
	HistoryProviders  []string      `mapstructure:"history_providers"` // tried in order; synthetic is always appended
	HistoryDays       int           `mapstructure:"history_days"`
	QuoteTTL          time.Duration `mapstructure:"quote_ttl"`
	ConnectTimeout    time.Duration `mapstructure:"connect_timeout"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	KiteExchange      string        `mapstructure:"kite_exchange"`
	FastIndicators    bool          `mapstructure:"fast_indicators"`
}

// ResilienceConfig holds circuit breaker and retry settings.
type ResilienceConfig struct {
	FailureThreshold  int           `mapstructure:"failure_threshold"`
	BreakerTimeout    time.Duration `mapstructure:"breaker_timeout"`
	RetryAttempts     int           `mapstructure:"retry_attempts"`
	RetryInitialDelay time.Duration `mapstructure:"retry_initial_delay"`
	RetryMaxDelay     time.Duration `mapstructure:"retry_max_delay"`
}

// CacheConfig holds snapshot cache settings.
type CacheConfig struct {
	MaxSize    int           `mapstructure:"max_size"`
	DefaultTTL time.Duration `mapstructure:"default_ttl"`
}

// BrokerConfig holds paper broker settings.
type BrokerConfig struct {
	InitialCash  float64 `mapstructure:"initial_cash"`
	SlippageBps  float64 `mapstructure:"slippage_bps"`
	DefaultPrice float64 `mapstructure:"default_price"`
}

// PreferencesConfig holds preference manager settings.
type PreferencesConfig struct {
	ReadsPerMinute  int           `mapstructure:"reads_per_minute"`
	WritesPerMinute int           `mapstructure:"writes_per_minute"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
	AuditDir        string        `mapstructure:"audit_dir"`
}

// TradingConfig holds orchestration settings.
type TradingConfig struct {
	DefaultTradeSize float64 `mapstructure:"default_trade_size"`
	DefaultUser      string  `mapstructure:"default_user"`
}

// TelemetryConfig holds metrics export and alert settings.
type TelemetryConfig struct {
	ListenAddr       string  `mapstructure:"listen_addr"`
	SlippageAlertBps float64 `mapstructure:"slippage_alert_bps"`
	LatencyAlertMs   float64 `mapstructure:"latency_alert_ms"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Console  bool   `mapstructure:"console"`
	File     bool   `mapstructure:"file"`
	FilePath string `mapstructure:"file_path"`
}

// StorageConfig locates the sqlite databases.
type StorageConfig struct {
	PreferencesDB string `mapstructure:"preferences_db"`
	LedgerDB      string `mapstructure:"ledger_db"`
}

// Credentials holds provider API credentials.
type Credentials struct {
	Kite         KiteCredentials         `mapstructure:"kite"`
	Finnhub      FinnhubCredentials      `mapstructure:"finnhub"`
	AlphaVantage AlphaVantageCredentials `mapstructure:"alphavantage"`
}

// KiteCredentials holds Kite Connect credentials.
type KiteCredentials struct {
	APIKey      string `mapstructure:"api_key"`
	AccessToken string `mapstructure:"access_token"`
}

// FinnhubCredentials holds the Finnhub token.
type FinnhubCredentials struct {
	Token string `mapstructure:"token"`
}

// AlphaVantageCredentials holds the Alpha Vantage key.
type AlphaVantageCredentials struct {
	APIKey string `mapstructure:"api_key"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/trading-core"
	}
	return filepath.Join(home, ".config", "trading-core")
}

// Load loads configuration from configDir, writing templates for missing
// files and continuing with defaults. If configDir is empty, uses the
// default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := &Config{}
	if err := loadConfigFile(configDir, cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}
	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	applyEnvOverrides(cfg)
	cfg.resolvePaths(configDir)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	cfg := &Config{}
	v := viper.New()
	setDefaults(v)
	if err := v.Unmarshal(cfg); err != nil {
		panic(fmt.Sprintf("config defaults do not decode: %v", err))
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("market_data.quote_provider", "synthetic")
	v.SetDefault("market_data.history_providers", []string{"finnhub", "alphavantage"})
	v.SetDefault("market_data.history_days", 100)
	v.SetDefault("market_data.quote_ttl", "120s")
	v.SetDefault("market_data.connect_timeout", "10s")
	v.SetDefault("market_data.request_timeout", "30s")
	v.SetDefault("market_data.requests_per_second", 1.0)
	v.SetDefault("market_data.kite_exchange", "NSE")
	v.SetDefault("market_data.fast_indicators", true)

	v.SetDefault("resilience.failure_threshold", 5)
	v.SetDefault("resilience.breaker_timeout", "60s")
	v.SetDefault("resilience.retry_attempts", 4)
	v.SetDefault("resilience.retry_initial_delay", "1s")
	v.SetDefault("resilience.retry_max_delay", "4s")

	v.SetDefault("cache.max_size", 1000)
	v.SetDefault("cache.default_ttl", "300s")

	v.SetDefault("broker.initial_cash", 100000.0)
	v.SetDefault("broker.slippage_bps", 5.0)
	v.SetDefault("broker.default_price", 100.0)

	v.SetDefault("preferences.reads_per_minute", 100)
	v.SetDefault("preferences.writes_per_minute", 10)
	v.SetDefault("preferences.cache_ttl", "1h")
	v.SetDefault("preferences.audit_dir", "audit")

	v.SetDefault("trading.default_trade_size", 5000.0)
	v.SetDefault("trading.default_user", "local")

	v.SetDefault("telemetry.listen_addr", ":9090")
	v.SetDefault("telemetry.slippage_alert_bps", 50.0)
	v.SetDefault("telemetry.latency_alert_ms", 1000.0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", true)
	v.SetDefault("logging.file", false)
	v.SetDefault("logging.file_path", "logs/trader.log")

	v.SetDefault("storage.preferences_db", "preferences.db")
	v.SetDefault("storage.ledger_db", "ledger.db")
}

func loadConfigFile(configDir string, cfg *Config) error {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
		if err := writeTemplate(configDir, "config.toml", configTemplate, 0644); err != nil {
			return err
		}
	}
	return v.Unmarshal(cfg)
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return err
		}
		// Use restricted permissions for credentials file
		return writeTemplate(configDir, "credentials.toml", credentialsTemplate, 0600)
	}
	return v.Unmarshal(creds)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("KITE_API_KEY"); v != "" {
		cfg.Credentials.Kite.APIKey = v
	}
	if v := os.Getenv("KITE_ACCESS_TOKEN"); v != "" {
		cfg.Credentials.Kite.AccessToken = v
	}
	if v := os.Getenv("FINNHUB_TOKEN"); v != "" {
		cfg.Credentials.Finnhub.Token = v
	}
	if v := os.Getenv("ALPHAVANTAGE_API_KEY"); v != "" {
		cfg.Credentials.AlphaVantage.APIKey = v
	}
	if v := os.Getenv("TRADER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// resolvePaths anchors relative file locations at configDir.
func (c *Config) resolvePaths(configDir string) {
	for _, p := range []*string{&c.Storage.PreferencesDB, &c.Storage.LedgerDB, &c.Preferences.AuditDir, &c.Logging.FilePath} {
		if *p != "" && *p != ":memory:" && !filepath.IsAbs(*p) {
			*p = filepath.Join(configDir, *p)
		}
	}
}

var (
	quoteProviders   = []string{"finnhub", "kite", "synthetic"}
	historyProviders = []string{"finnhub", "alphavantage", "kite", "synthetic"}
	logLevels        = []string{"debug", "info", "warn", "warning", "error"}
)

// Validate validates the configuration.
func (c *Config) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return apperrors.Wrap(apperrors.ErrConfigInvalid, fmt.Sprintf(format, args...))
	}

	md := c.MarketData
	if !slices.Contains(quoteProviders, strings.ToLower(md.QuoteProvider)) {
		return invalid("unknown quote_provider %q (must be one of %s)", md.QuoteProvider, strings.Join(quoteProviders, ", "))
	}
	for _, p := range md.HistoryProviders {
		if !slices.Contains(historyProviders, strings.ToLower(p)) {
			return invalid("unknown history provider %q", p)
		}
	}
	if md.HistoryDays < 20 {
		return invalid("history_days must be at least 20, got %d", md.HistoryDays)
	}
	if md.QuoteTTL <= 0 || md.RequestTimeout <= 0 || md.ConnectTimeout <= 0 {
		return invalid("market_data timeouts and quote_ttl must be positive")
	}
	if md.RequestsPerSecond < 0 {
		return invalid("requests_per_second must be non-negative")
	}

	r := c.Resilience
	if r.FailureThreshold <= 0 || r.RetryAttempts <= 0 {
		return invalid("failure_threshold and retry_attempts must be positive")
	}
	if r.RetryMaxDelay < r.RetryInitialDelay {
		return invalid("retry_max_delay must not be shorter than retry_initial_delay")
	}

	if c.Cache.MaxSize <= 0 {
		return invalid("cache.max_size must be positive")
	}

	if c.Broker.InitialCash < 0 {
		return invalid("broker.initial_cash must be non-negative")
	}
	if c.Broker.SlippageBps < 0 || c.Broker.SlippageBps > 10000 {
		return invalid("broker.slippage_bps must be between 0 and 10000")
	}

	if c.Preferences.ReadsPerMinute <= 0 || c.Preferences.WritesPerMinute <= 0 {
		return invalid("preference throttles must be positive")
	}
	if c.Trading.DefaultTradeSize <= 0 {
		return invalid("trading.default_trade_size must be positive")
	}
	if !slices.Contains(logLevels, strings.ToLower(c.Logging.Level)) {
		return invalid("unknown log level %q", c.Logging.Level)
	}
	return nil
}

// HasKite reports whether Kite credentials are configured.
func (c *Config) HasKite() bool {
	return c.Credentials.Kite.APIKey != "" && c.Credentials.Kite.AccessToken != ""
}
