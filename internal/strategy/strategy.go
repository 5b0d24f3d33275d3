// Package strategy turns a price and an indicator set into trading signals.
//
// Strategies are stateless. Each one either emits a single signal or
// declines; a declined evaluation never shows up as a NEUTRAL signal.
package strategy

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"trading-core/internal/logging"
	"trading-core/internal/models"
)

// Input is what every strategy evaluates.
type Input struct {
	Symbol     string
	Price      float64
	Indicators models.IndicatorSet
	Timestamp  time.Time
}

// Strategy evaluates one input. ok is false when the strategy has nothing
// actionable to say.
type Strategy interface {
	Name() string
	Evaluate(in Input) (signal models.TradingSignal, ok bool)
}

// Defaults returns the built-in strategies in reporting order.
func Defaults() []Strategy {
	return []Strategy{Momentum{}, MeanReversion{}, Breakout{}}
}

// Engine runs a fixed set of strategies concurrently.
type Engine struct {
	strategies []Strategy
	logger     zerolog.Logger
}

// NewEngine creates an engine. A nil strategy list uses Defaults.
func NewEngine(strategies []Strategy, logger zerolog.Logger) *Engine {
	if len(strategies) == 0 {
		strategies = Defaults()
	}
	return &Engine{
		strategies: strategies,
		logger:     logger.With().Str("component", "strategy").Logger(),
	}
}

// Names returns the configured strategy names.
func (e *Engine) Names() []string {
	names := make([]string, len(e.strategies))
	for i, s := range e.strategies {
		names[i] = s.Name()
	}
	return names
}

// Run evaluates every strategy in parallel and returns the emitted signals
// in strategy order.
func (e *Engine) Run(ctx context.Context, in Input) ([]models.TradingSignal, error) {
	if in.Price <= 0 || math.IsNaN(in.Price) || math.IsInf(in.Price, 0) {
		return nil, fmt.Errorf("strategy input for %s: invalid price %v", in.Symbol, in.Price)
	}
	if in.Timestamp.IsZero() {
		in.Timestamp = time.Now()
	}

	type slot struct {
		signal models.TradingSignal
		ok     bool
	}
	results := make([]slot, len(e.strategies))

	g, ctx := errgroup.WithContext(ctx)
	for i, s := range e.strategies {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			sig, ok := s.Evaluate(in)
			results[i] = slot{signal: sig, ok: ok}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	signals := make([]models.TradingSignal, 0, len(results))
	for _, r := range results {
		if !r.ok {
			continue
		}
		signals = append(signals, r.signal)
		logging.LogSignal(e.logger, r.signal.Symbol, r.signal.Strategy, string(r.signal.Type), r.signal.Confidence)
	}
	return signals, nil
}

// RunMany evaluates several symbols concurrently.
func (e *Engine) RunMany(ctx context.Context, inputs []Input) (map[string][]models.TradingSignal, error) {
	results := make([][]models.TradingSignal, len(inputs))
	g, ctx := errgroup.WithContext(ctx)
	for i, in := range inputs {
		g.Go(func() error {
			signals, err := e.Run(ctx, in)
			if err != nil {
				return err
			}
			results[i] = signals
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string][]models.TradingSignal, len(inputs))
	for i, in := range inputs {
		out[in.Symbol] = append(out[in.Symbol], results[i]...)
	}
	return out, nil
}

func newSignal(in Input, strategy string, typ models.SignalType, confidence, stop, take float64, rationale string) models.TradingSignal {
	return models.TradingSignal{
		Symbol:     in.Symbol,
		Type:       typ,
		Strategy:   strategy,
		Confidence: math.Max(0, math.Min(1, confidence)),
		EntryPrice: in.Price,
		StopLoss:   stop,
		TakeProfit: take,
		Rationale:  rationale,
		Timestamp:  in.Timestamp,
	}
}
