// Package indicators computes technical indicators over candle series.
//
// Two calculators produce an IndicatorSet: a single-pass streaming
// calculator (the fast path) and a series calculator that evaluates each
// indicator family concurrently (the reference path). Both agree on
// classification; see Agree and WithinTolerance.
package indicators

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"trading-core/internal/models"
)

// Path identifies which calculator produced an IndicatorSet.
type Path string

const (
	PathFast      Path = "fast"
	PathReference Path = "reference"
)

// Engine computes indicator sets, preferring the fast path when enabled.
type Engine struct {
	fastPath bool
	fast     func([]models.Candle) (models.IndicatorSet, error)
	logger   zerolog.Logger
}

// NewEngine creates a new indicator engine.
func NewEngine(fastPath bool, logger zerolog.Logger) *Engine {
	return &Engine{
		fastPath: fastPath,
		fast:     ComputeFast,
		logger:   logger.With().Str("component", "indicators").Logger(),
	}
}

// Compute returns the indicator set for candles and the path that produced
// it. A failing fast path falls back to the reference path.
func (e *Engine) Compute(ctx context.Context, candles []models.Candle) (models.IndicatorSet, Path, error) {
	if e.fastPath {
		set, err := e.fast(candles)
		if err == nil {
			return set, PathFast, nil
		}
		e.logger.Warn().Err(err).Int("bars", len(candles)).Msg("Fast indicator path failed, using reference path")
	}

	set, err := ComputeReference(ctx, candles)
	if err != nil {
		return models.IndicatorSet{}, PathReference, err
	}
	return set, PathReference, nil
}

// ComputeReference evaluates each indicator family concurrently over the
// full series.
func ComputeReference(ctx context.Context, candles []models.Candle) (models.IndicatorSet, error) {
	if err := validCandles(candles); err != nil {
		return models.IndicatorSet{}, err
	}

	closes := closePrices(candles)
	var (
		sma20, sma50, ema12, ema26 float64
		macd                       MACDResult
		rsi                        float64
		stoch                      StochasticResult
		bb                         BollingerResult
		atr                        float64
		obv                        float64
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sma20 = SMA(closes, BollingerPeriod)
		sma50 = SMA(closes, windowSize)
		ema12 = EMA(closes, MACDFast)
		ema26 = EMA(closes, MACDSlow)
		macd = MACD(closes)
		return ctx.Err()
	})
	g.Go(func() error {
		rsi = RSI(closes, RSIPeriod)
		stoch = Stochastic(candles, StochasticPeriod)
		return ctx.Err()
	})
	g.Go(func() error {
		bb = Bollinger(closes, BollingerPeriod, BollingerStdDev)
		atr = ATR(candles, ATRPeriod)
		return ctx.Err()
	})
	g.Go(func() error {
		obv = OBV(candles)
		return ctx.Err()
	})
	if err := g.Wait(); err != nil {
		return models.IndicatorSet{}, fmt.Errorf("computing indicators: %w", err)
	}

	set := models.IndicatorSet{
		SMA20:      sma20,
		SMA50:      sma50,
		EMA12:      ema12,
		EMA26:      ema26,
		RSI14:      rsi,
		MACD:       macd.MACD,
		MACDSignal: macd.Signal,
		MACDHist:   macd.Histogram,
		StochK:     stoch.K,
		StochD:     stoch.D,
		BBUpper:    bb.Upper,
		BBMiddle:   bb.Middle,
		BBLower:    bb.Lower,
		ATR14:      atr,
		OBV:        obv,
	}
	if !setFinite(set) {
		return models.IndicatorSet{}, ErrNonFinite
	}
	return set, nil
}
