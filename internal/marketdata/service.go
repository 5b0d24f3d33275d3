package marketdata

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"trading-core/internal/analysis/indicators"
	"trading-core/internal/cache"
	apperrors "trading-core/internal/errors"
	"trading-core/internal/logging"
	"trading-core/internal/models"
	"trading-core/internal/resilience"
)

// Config holds market data service settings.
type Config struct {
	HistoryDays    int
	QuoteTTL       time.Duration
	RequestTimeout time.Duration
	Retry          resilience.RetryWithBackoff
	Breaker        resilience.CircuitBreakerConfig
}

// DefaultConfig returns the default service configuration.
func DefaultConfig() Config {
	return Config{
		HistoryDays:    100,
		QuoteTTL:       120 * time.Second,
		RequestTimeout: 30 * time.Second,
		Retry:          resilience.DefaultRetryWithBackoff(),
		Breaker:        resilience.DefaultCircuitBreakerConfig(),
	}
}

// Service resolves market snapshots: a quote behind a circuit breaker, daily
// bars from an ordered provider chain, and indicators over those bars.
type Service struct {
	cfg      Config
	quotes   QuoteProvider
	history  []HistoryProvider
	breakers *resilience.CircuitBreakerRegistry
	cache    *cache.Cache[string, *models.MarketSnapshot]
	engine   *indicators.Engine
	logger   zerolog.Logger
	now      func() time.Time
}

// NewService creates a market data service. history is tried in order; the
// last entry is normally a SyntheticProvider.
func NewService(
	cfg Config,
	quotes QuoteProvider,
	history []HistoryProvider,
	breakers *resilience.CircuitBreakerRegistry,
	snapshots *cache.Cache[string, *models.MarketSnapshot],
	engine *indicators.Engine,
	logger zerolog.Logger,
) *Service {
	def := DefaultConfig()
	if cfg.HistoryDays <= 0 {
		cfg.HistoryDays = def.HistoryDays
	}
	if cfg.QuoteTTL <= 0 {
		cfg.QuoteTTL = def.QuoteTTL
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = def.Retry
	}
	if cfg.Retry.Retryable == nil {
		cfg.Retry.Retryable = apperrors.IsTransient
	}
	if cfg.Breaker.IsFailure == nil {
		cfg.Breaker.IsFailure = countsAgainstBreaker
	}
	if breakers == nil {
		breakers = resilience.NewCircuitBreakerRegistry(cfg.Breaker)
	}
	if snapshots == nil {
		snapshots = cache.New[string, *models.MarketSnapshot](cache.DefaultConfig())
	}
	if engine == nil {
		engine = indicators.NewEngine(true, logger)
	}
	return &Service{
		cfg:      cfg,
		quotes:   quotes,
		history:  history,
		breakers: breakers,
		cache:    snapshots,
		engine:   engine,
		logger:   logger.With().Str("component", "marketdata").Logger(),
		now:      time.Now,
	}
}

// countsAgainstBreaker ignores answers that prove the upstream is reachable.
func countsAgainstBreaker(err error) bool {
	return !errors.Is(err, apperrors.ErrNoData) && !errors.Is(err, context.Canceled)
}

func cacheKey(symbol string) string {
	return "quote_" + symbol
}

// GetRealTimeData returns the cached snapshot for symbol, or fetches the
// quote and history concurrently and computes indicators on a miss.
func (s *Service) GetRealTimeData(ctx context.Context, symbol string) (*models.MarketSnapshot, error) {
	sym, err := NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	if snap, ok := s.cache.Get(cacheKey(sym)); ok {
		return snap, nil
	}

	logger := logging.WithSymbol(s.logger, sym)
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	var (
		quote         *models.Quote
		candles       []models.Candle
		historySource string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		q, err := s.fetchQuote(gctx, sym)
		quote = q
		return err
	})
	g.Go(func() error {
		c, src, err := s.fetchHistory(gctx, sym, s.cfg.HistoryDays)
		candles, historySource = c, src
		return err
	})
	if err := g.Wait(); err != nil {
		logger.Warn().Err(err).Msg("Market data fetch failed")
		return nil, err
	}

	set, path, err := s.engine.Compute(ctx, candles)
	if err != nil {
		return nil, apperrors.NewDataError("indicators", sym, "indicator computation failed", err)
	}

	snap := &models.MarketSnapshot{
		Symbol:        sym,
		Quote:         *quote,
		Indicators:    set,
		Bars:          len(candles),
		QuoteSource:   s.quotes.Name(),
		HistorySource: historySource,
		IndicatorPath: string(path),
		FetchedAt:     s.now(),
	}
	s.cache.Set(cacheKey(sym), snap, s.cfg.QuoteTTL)

	logger.Debug().
		Str("quote_source", snap.QuoteSource).
		Str("history_source", historySource).
		Int("bars", snap.Bars).
		Str("indicator_path", snap.IndicatorPath).
		Msg("Market snapshot refreshed")
	return snap, nil
}

// History returns daily bars from the first provider in the chain that
// answers, along with that provider's name.
func (s *Service) History(ctx context.Context, symbol string, days int) ([]models.Candle, string, error) {
	sym, err := NormalizeSymbol(symbol)
	if err != nil {
		return nil, "", err
	}
	if days <= 0 {
		days = s.cfg.HistoryDays
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()
	return s.fetchHistory(ctx, sym, days)
}

// Invalidate drops the cached snapshot for symbol.
func (s *Service) Invalidate(symbol string) bool {
	sym, err := NormalizeSymbol(symbol)
	if err != nil {
		return false
	}
	return s.cache.Delete(cacheKey(sym))
}

// CacheStats returns snapshot cache statistics.
func (s *Service) CacheStats() cache.Stats {
	return s.cache.Stats()
}

// Breakers returns the registry guarding the providers.
func (s *Service) Breakers() *resilience.CircuitBreakerRegistry {
	return s.breakers
}

func (s *Service) fetchQuote(ctx context.Context, sym string) (*models.Quote, error) {
	cb := s.breakers.GetWithConfig("quote:"+s.quotes.Name(), s.cfg.Breaker)
	return resilience.ExecuteWithResult(cb, ctx, func(ctx context.Context) (*models.Quote, error) {
		return s.quotes.Quote(ctx, sym)
	})
}

// fetchHistory walks the provider chain. Each provider gets its own breaker
// and retry budget; an open breaker is not retried and falls through.
func (s *Service) fetchHistory(ctx context.Context, sym string, days int) ([]models.Candle, string, error) {
	var errs []error
	for _, p := range s.history {
		provider := p
		cb := s.breakers.GetWithConfig("history:"+provider.Name(), s.cfg.Breaker)

		candles, err := resilience.Retry(ctx, s.cfg.Retry, func(ctx context.Context) ([]models.Candle, error) {
			return resilience.ExecuteWithResult(cb, ctx, func(ctx context.Context) ([]models.Candle, error) {
				return provider.History(ctx, sym, days)
			})
		})
		if err == nil && len(candles) > 0 {
			return candles, provider.Name(), nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, "", ctxErr
		}
		if err == nil {
			err = noData(provider.Name(), "history", sym)
		}
		s.logger.Warn().
			Err(err).
			Str("symbol", sym).
			Str("provider", provider.Name()).
			Msg("History provider failed, trying next")
		errs = append(errs, err)
	}
	return nil, "", apperrors.NewDataError("history", sym, "no provider returned bars", errors.Join(append([]error{apperrors.ErrNoData}, errs...)...))
}
