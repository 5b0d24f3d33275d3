package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"trading-core/internal/analysis/indicators"
	"trading-core/internal/broker"
	"trading-core/internal/cache"
	"trading-core/internal/config"
	"trading-core/internal/execution"
	"trading-core/internal/ledger"
	"trading-core/internal/marketdata"
	"trading-core/internal/models"
	"trading-core/internal/preferences"
	"trading-core/internal/resilience"
	"trading-core/internal/security"
	"trading-core/internal/store"
	"trading-core/internal/strategy"
	"trading-core/internal/telemetry"
	"trading-core/internal/trading"
)

// App holds the application dependencies. Everything is constructed here
// and passed by reference; nothing is package-global.
type App struct {
	Config *config.Config
	Logger zerolog.Logger

	Journal     *security.AuditJournal
	PrefStore   *store.SQLiteStore
	Preferences *preferences.Manager
	Ledger      *ledger.Ledger
	Breakers    *resilience.CircuitBreakerRegistry
	Market      *marketdata.Service
	Strategies  *strategy.Engine
	Broker      *broker.PaperBroker
	Monitor     *execution.Monitor
	Router      *execution.Router
	Health      *resilience.HealthMonitor
	Queue       *trading.MemoryQueue
	Trading     *trading.Service
	Exporter    *telemetry.Exporter

	closers []func() error
}

// NewApp wires the pipeline from cfg. Call Close when done.
func NewApp(cfg *config.Config, logger zerolog.Logger) (*App, error) {
	app := &App{Config: cfg, Logger: logger}
	wired := false
	defer func() {
		if !wired {
			_ = app.Close()
		}
	}()

	var err error
	app.Journal, err = security.NewAuditJournal(security.AuditConfig{
		LogDir:     cfg.Preferences.AuditDir,
		MaxSize:    50,
		MaxBackups: 30,
		MaxAge:     365,
		Compress:   true,
	})
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, app.Journal.Close)

	app.PrefStore, err = store.NewSQLiteStore(cfg.Storage.PreferencesDB)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, app.PrefStore.Close)

	app.Ledger, err = ledger.Open(cfg.Storage.LedgerDB, logger)
	if err != nil {
		return nil, err
	}
	app.closers = append(app.closers, app.Ledger.Close)

	retry := resilience.RetryWithBackoff{
		MaxAttempts:   cfg.Resilience.RetryAttempts,
		InitialDelay:  cfg.Resilience.RetryInitialDelay,
		MaxDelay:      cfg.Resilience.RetryMaxDelay,
		BackoffFactor: 2,
	}

	prefsCfg := preferences.DefaultConfig()
	prefsCfg.ReadsPerMinute = cfg.Preferences.ReadsPerMinute
	prefsCfg.WritesPerMinute = cfg.Preferences.WritesPerMinute
	prefsCfg.CacheTTL = cfg.Preferences.CacheTTL
	app.Preferences = preferences.NewManager(prefsCfg, app.PrefStore, logger, preferences.WithJournal(app.Journal))

	breakerCfg := resilience.CircuitBreakerConfig{
		FailureThreshold: cfg.Resilience.FailureThreshold,
		Timeout:          cfg.Resilience.BreakerTimeout,
	}
	app.Breakers = resilience.NewCircuitBreakerRegistry(breakerCfg)
	app.Breakers.OnStateChange(func(name string, from, to resilience.CircuitState) {
		logger.Warn().Str("breaker", name).Str("from", string(from)).Str("to", string(to)).Msg("Circuit breaker state changed")
	})

	quotes, history := buildProviders(cfg, logger)
	snapshots := cache.New[string, *models.MarketSnapshot](cache.Config{
		MaxSize:    cfg.Cache.MaxSize,
		DefaultTTL: cfg.Cache.DefaultTTL,
	})
	app.Market = marketdata.NewService(marketdata.Config{
		HistoryDays:    cfg.MarketData.HistoryDays,
		QuoteTTL:       cfg.MarketData.QuoteTTL,
		RequestTimeout: cfg.MarketData.RequestTimeout,
		Retry:          retry,
		Breaker:        breakerCfg,
	}, quotes, history, app.Breakers, snapshots, indicators.NewEngine(cfg.MarketData.FastIndicators, logger), logger)

	app.Strategies = strategy.NewEngine(nil, logger)

	app.Broker = broker.NewPaperBroker(broker.PaperBrokerConfig{
		InitialCash:  cfg.Broker.InitialCash,
		SlippageBps:  cfg.Broker.SlippageBps,
		DefaultPrice: cfg.Broker.DefaultPrice,
	}, logger)

	app.Monitor = execution.NewMonitor(execution.MonitorConfig{
		SlippageAlertBps: cfg.Telemetry.SlippageAlertBps,
		LatencyAlertMs:   cfg.Telemetry.LatencyAlertMs,
	})
	app.Monitor.OnAlert(func(a execution.Alert) {
		logger.Warn().
			Str("alert", string(a.Type)).
			Str("order_id", a.OrderID).
			Str("symbol", a.Symbol).
			Float64("value", a.Value).
			Float64("threshold", a.Threshold).
			Msg(a.Message)
	})
	app.Router = execution.NewRouter(app.Broker, app.Monitor, logger,
		execution.WithSink(&journalSink{ledger: app.Ledger, journal: app.Journal}))

	app.Health = resilience.NewHealthMonitor()
	app.Health.RegisterComponent("circuit_breakers", resilience.BreakerHealthCheck(app.Breakers))
	app.Health.RegisterComponent("preferences_db", resilience.DatabaseHealthCheck(app.PrefStore.Ping))
	app.Health.RegisterComponent("ledger_db", resilience.DatabaseHealthCheck(app.Ledger.Ping))

	app.Queue = trading.NewMemoryQueue()
	app.Trading = trading.NewService(trading.Config{
		Retry:            retry,
		DefaultTradeSize: cfg.Trading.DefaultTradeSize,
	}, app.Market, app.Strategies, logger,
		trading.WithPreferences(app.Preferences),
		trading.WithRecorder(app.Ledger),
		trading.WithPortfolio(app.Broker),
		trading.WithQueue(app.Queue),
		trading.WithJournal(app.Journal),
		trading.WithMonitor(app.Monitor),
		trading.WithBreakers(app.Breakers),
		trading.WithHealth(app.Health),
	)

	app.Exporter = telemetry.NewExporter()
	wired = true
	return app, nil
}

// Close releases resources in reverse construction order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// buildProviders selects the quote provider and the history chain. Providers
// without credentials are skipped; synthetic data always ends the chain.
func buildProviders(cfg *config.Config, logger zerolog.Logger) (marketdata.QuoteProvider, []marketdata.HistoryProvider) {
	md := cfg.MarketData
	creds := cfg.Credentials
	httpCfg := marketdata.HTTPConfig{
		ConnectTimeout:    md.ConnectTimeout,
		RequestTimeout:    md.RequestTimeout,
		RequestsPerSecond: md.RequestsPerSecond,
		Burst:             1,
	}

	synthetic := marketdata.NewSyntheticProvider()
	var (
		finnhub *marketdata.FinnhubProvider
		kite    *marketdata.KiteProvider
	)
	if creds.Finnhub.Token != "" {
		finnhub = marketdata.NewFinnhubProvider(creds.Finnhub.Token, httpCfg, logger)
	}
	if cfg.HasKite() {
		kite = marketdata.NewKiteProvider(marketdata.KiteConfig{
			APIKey:      creds.Kite.APIKey,
			AccessToken: creds.Kite.AccessToken,
			Exchange:    md.KiteExchange,
			HTTPTimeout: md.RequestTimeout,
		}, logger)
	}

	var quotes marketdata.QuoteProvider = synthetic
	switch strings.ToLower(md.QuoteProvider) {
	case "finnhub":
		if finnhub != nil {
			quotes = finnhub
		} else {
			logger.Warn().Msg("Finnhub token not configured, using synthetic quotes")
		}
	case "kite":
		if kite != nil {
			quotes = kite
		} else {
			logger.Warn().Msg("Kite credentials not configured, using synthetic quotes")
		}
	}

	history := make([]marketdata.HistoryProvider, 0, len(md.HistoryProviders)+1)
	for _, name := range md.HistoryProviders {
		switch strings.ToLower(name) {
		case "finnhub":
			if finnhub != nil {
				history = append(history, finnhub)
			}
		case "alphavantage":
			if key := creds.AlphaVantage.APIKey; key != "" {
				history = append(history, marketdata.NewAlphaVantageProvider(key, httpCfg, logger))
			}
		case "kite":
			if kite != nil {
				history = append(history, kite)
			}
		}
	}
	history = append(history, synthetic)

	names := make([]string, len(history))
	for i, h := range history {
		names[i] = h.Name()
	}
	logger.Debug().Str("quotes", quotes.Name()).Strs("history", names).Msg("Market data providers selected")
	return quotes, history
}

// journalSink persists execution records to the ledger and the audit journal.
type journalSink struct {
	ledger  *ledger.Ledger
	journal *security.AuditJournal
}

func (s *journalSink) RecordExecution(ctx context.Context, rec execution.Record) error {
	price := rec.FillPrice
	if price == 0 {
		price = rec.ReferencePrice
	}
	jerr := s.journal.LogOrder(ctx, rec.OrderID, rec.Symbol, string(rec.Side), rec.Quantity, price, !rec.Filled(), rec.Reason)
	if err := s.ledger.RecordExecution(ctx, rec); err != nil {
		return fmt.Errorf("recording execution %s: %w", rec.OrderID, err)
	}
	return jerr
}
