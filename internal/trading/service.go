// Package trading orchestrates market data, strategies and user preferences
// into signal and trade responses.
package trading

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	apperrors "trading-core/internal/errors"
	"trading-core/internal/execution"
	"trading-core/internal/logging"
	"trading-core/internal/marketdata"
	"trading-core/internal/models"
	"trading-core/internal/preferences"
	"trading-core/internal/resilience"
	"trading-core/internal/strategy"
	"trading-core/internal/telemetry"
)

// MarketData resolves a symbol to a snapshot with indicators.
type MarketData interface {
	GetRealTimeData(ctx context.Context, symbol string) (*models.MarketSnapshot, error)
}

// Preferences is the subset of the preferences manager the service uses.
type Preferences interface {
	Get(ctx context.Context, sessionID, userID string) (*models.TradingPreferences, error)
	Update(ctx context.Context, userID, sessionID string, update preferences.Update, reason, actor string) (*models.TradingPreferences, error)
}

// SignalRecorder persists signals for ROI accounting.
type SignalRecorder interface {
	RecordSignal(ctx context.Context, sig models.TradingSignal) (uint, error)
}

// PortfolioValuer reports the current portfolio value.
type PortfolioValuer interface {
	PortfolioValue(ctx context.Context) (float64, error)
}

// TradeJournal records trades handed to the confirmation workflow.
type TradeJournal interface {
	LogTradePending(ctx context.Context, orderID, symbol, action string) error
}

// Config holds service settings.
type Config struct {
	// Retry applies to market data lookups; only transient errors are retried.
	Retry resilience.RetryWithBackoff
	// DefaultTradeSize is the notional pre-validated for personalized signals.
	DefaultTradeSize float64
}

// DefaultConfig returns the default service configuration.
func DefaultConfig() Config {
	return Config{
		Retry:            resilience.DefaultRetryWithBackoff(),
		DefaultTradeSize: 5000,
	}
}

// Option configures a Service.
type Option func(*Service)

// WithPreferences sets the preferences manager.
func WithPreferences(p Preferences) Option { return func(s *Service) { s.prefs = p } }

// WithRecorder sets the signal ledger.
func WithRecorder(r SignalRecorder) Option { return func(s *Service) { s.recorder = r } }

// WithPortfolio sets the portfolio valuation source.
func WithPortfolio(p PortfolioValuer) Option { return func(s *Service) { s.portfolio = p } }

// WithQueue sets where pending trades are handed off.
func WithQueue(q ConfirmationQueue) Option { return func(s *Service) { s.queue = q } }

// WithJournal sets the trade journal.
func WithJournal(j TradeJournal) Option { return func(s *Service) { s.journal = j } }

// WithMonitor sets the execution monitor read by Telemetry.
func WithMonitor(m *execution.Monitor) Option { return func(s *Service) { s.monitor = m } }

// WithBreakers sets the breaker registry read by Telemetry.
func WithBreakers(r *resilience.CircuitBreakerRegistry) Option {
	return func(s *Service) { s.breakers = r }
}

// WithHealth sets the health monitor read by Telemetry.
func WithHealth(h *resilience.HealthMonitor) Option { return func(s *Service) { s.health = h } }

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// Service is the orchestration entry point: signals, personalized signals,
// trade intents and telemetry.
type Service struct {
	cfg        Config
	market     MarketData
	strategies *strategy.Engine
	prefs      Preferences
	recorder   SignalRecorder
	portfolio  PortfolioValuer
	queue      ConfirmationQueue
	journal    TradeJournal
	monitor    *execution.Monitor
	breakers   *resilience.CircuitBreakerRegistry
	health     *resilience.HealthMonitor
	logger     zerolog.Logger
	now        func() time.Time

	signalsGenerated atomic.Int64
}

// NewService creates a trading service.
func NewService(cfg Config, market MarketData, strategies *strategy.Engine, logger zerolog.Logger, opts ...Option) *Service {
	def := DefaultConfig()
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = def.Retry
	}
	if cfg.Retry.Retryable == nil {
		cfg.Retry.Retryable = apperrors.IsTransient
	}
	if cfg.DefaultTradeSize <= 0 {
		cfg.DefaultTradeSize = def.DefaultTradeSize
	}
	if strategies == nil {
		strategies = strategy.NewEngine(nil, logger)
	}
	s := &Service{
		cfg:        cfg,
		market:     market,
		strategies: strategies,
		logger:     logger.With().Str("component", "trading").Logger(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Status tags the outcome of a request.
type Status string

const (
	StatusOK          Status = "ok"
	StatusPending     Status = "pending"
	StatusUnavailable Status = "unavailable"
	StatusNoData      Status = "no_data"
	StatusInvalid     Status = "invalid"
	StatusError       Status = "error"
)

// SignalMetrics describes how a signal result was produced.
type SignalMetrics struct {
	LatencyMs     float64 `json:"latency_ms"`
	Price         float64 `json:"price"`
	DataSource    string  `json:"data_source,omitempty"`
	HistorySource string  `json:"history_source,omitempty"`
	IndicatorPath string  `json:"indicator_path,omitempty"`
	Bars          int     `json:"bars"`
	Attempts      int     `json:"attempts"`
	Strategies    int     `json:"strategies"`
}

// SignalResult is the structured response of GetSignals. Failures are
// reported through Status and Error, never as a Go error.
type SignalResult struct {
	Status     Status                 `json:"status"`
	Symbol     string                 `json:"symbol"`
	Signals    []models.TradingSignal `json:"signals"`
	Indicators *models.IndicatorSet   `json:"indicators,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
	Metrics    SignalMetrics          `json:"metrics"`
}

// statusFor maps an error onto the status taxonomy.
func statusFor(err error) Status {
	switch {
	case apperrors.IsValidation(err):
		return StatusInvalid
	case errors.Is(err, apperrors.ErrNoData):
		return StatusNoData
	case errors.Is(err, apperrors.ErrServiceUnavailable), apperrors.IsTransient(err):
		return StatusUnavailable
	default:
		return StatusError
	}
}

// GetSignals fetches market data for symbol and runs every strategy on it.
func (s *Service) GetSignals(ctx context.Context, symbol string) SignalResult {
	start := s.now()
	log := logging.WithOperation(logging.WithSymbol(s.logger, symbol), "get_signals")
	result := SignalResult{
		Symbol:  strings.ToUpper(strings.TrimSpace(symbol)),
		Signals: []models.TradingSignal{},
	}
	finish := func() SignalResult {
		result.Timestamp = s.now().UTC()
		result.Metrics.LatencyMs = float64(s.now().Sub(start).Microseconds()) / 1000
		return result
	}

	sym, err := marketdata.NormalizeSymbol(symbol)
	if err != nil {
		result.Status = StatusInvalid
		result.Error = err.Error()
		return finish()
	}
	result.Symbol = sym

	attempts := 0
	snap, err := resilience.Retry(ctx, s.cfg.Retry, func(ctx context.Context) (*models.MarketSnapshot, error) {
		attempts++
		return s.market.GetRealTimeData(ctx, sym)
	})
	result.Metrics.Attempts = attempts
	if err != nil {
		result.Status = statusFor(err)
		result.Error = err.Error()
		log.Warn().Err(err).Str("status", string(result.Status)).Int("attempts", attempts).Msg("Market data unavailable")
		return finish()
	}

	result.Metrics.Price = snap.Quote.Current
	result.Metrics.DataSource = snap.QuoteSource
	result.Metrics.HistorySource = snap.HistorySource
	result.Metrics.IndicatorPath = snap.IndicatorPath
	result.Metrics.Bars = snap.Bars
	result.Metrics.Strategies = len(s.strategies.Names())
	indicators := snap.Indicators
	result.Indicators = &indicators

	if snap.Quote.Current <= 0 {
		result.Status = StatusNoData
		result.Error = apperrors.NewDataError("quote", sym, "no usable price", apperrors.ErrNoData).Error()
		return finish()
	}

	signals, err := s.strategies.Run(ctx, strategy.Input{
		Symbol:     sym,
		Price:      snap.Quote.Current,
		Indicators: snap.Indicators,
		Timestamp:  s.now().UTC(),
	})
	if err != nil {
		result.Status = statusFor(err)
		result.Error = err.Error()
		return finish()
	}
	result.Status = StatusOK
	result.Signals = signals
	s.signalsGenerated.Add(int64(len(signals)))
	return finish()
}

// UpdatePreferences passes an update through to the preferences manager.
func (s *Service) UpdatePreferences(ctx context.Context, userID, sessionID string, update preferences.Update, reason, actor string) (*models.TradingPreferences, error) {
	if s.prefs == nil {
		return nil, apperrors.Wrap(apperrors.ErrServiceUnavailable, "preferences not configured")
	}
	return s.prefs.Update(ctx, userID, sessionID, update, reason, actor)
}

// RecordSignal stores sig for ROI accounting.
func (s *Service) RecordSignal(ctx context.Context, sig models.TradingSignal) (uint, error) {
	if s.recorder == nil {
		return 0, apperrors.Wrap(apperrors.ErrServiceUnavailable, "signal ledger not configured")
	}
	return s.recorder.RecordSignal(ctx, sig)
}

// SignalsGenerated returns the number of signals produced so far.
func (s *Service) SignalsGenerated() int64 {
	return s.signalsGenerated.Load()
}

// Telemetry collects execution, breaker, portfolio and health state.
func (s *Service) Telemetry(ctx context.Context) telemetry.Snapshot {
	snap := telemetry.Snapshot{
		SignalsGenerated: s.signalsGenerated.Load(),
		Health:           resilience.HealthStatusUnknown,
		Timestamp:        s.now().UTC(),
	}
	if s.monitor != nil {
		snap.Execution = s.monitor.Stats()
	}
	if s.breakers != nil {
		snap.BreakerTrips = s.breakers.TotalTrips()
		snap.Breakers = s.breakers.AllStats()
	}
	if s.portfolio != nil {
		if v, err := s.portfolio.PortfolioValue(ctx); err == nil {
			snap.PortfolioValue = v
		} else {
			s.logger.Warn().Err(err).Msg("Portfolio valuation failed")
		}
	}
	if s.health != nil {
		snap.Health = s.health.Check(ctx).Status
	}
	return snap
}

func newOrderID() string {
	return uuid.NewString()
}
