package strategy

import (
	"fmt"

	"trading-core/internal/models"
)

// squeezeRatio is the band width, relative to price, below which the bands
// count as compressed.
const squeezeRatio = 0.04

// Breakout trades a move through either band after a volatility squeeze.
type Breakout struct{}

func (Breakout) Name() string { return "breakout" }

func (b Breakout) Evaluate(in Input) (models.TradingSignal, bool) {
	ind := in.Indicators
	var score float64
	squeezed := ind.BandWidth()/in.Price < squeezeRatio
	if squeezed {
		score += 0.3
	}
	up := in.Price > ind.BBUpper
	down := in.Price < ind.BBLower
	if up || down {
		score += 0.4
	}
	if score < 0.6 {
		return models.TradingSignal{}, false
	}

	atr := ind.ATR14
	rationale := fmt.Sprintf("breakout score %.2f (width %.2f%% of price)", score, ind.BandWidth()/in.Price*100)
	if up {
		return newSignal(in, b.Name(), models.SignalBuy, score, in.Price-2*atr, in.Price+3*atr, rationale), true
	}
	return newSignal(in, b.Name(), models.SignalSell, score, in.Price+2*atr, in.Price-3*atr, rationale), true
}
