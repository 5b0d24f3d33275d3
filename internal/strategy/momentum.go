package strategy

import (
	"fmt"

	"trading-core/internal/models"
)

// Momentum rewards a healthy RSI, a positive MACD histogram and price
// trading above both moving averages.
type Momentum struct{}

func (Momentum) Name() string { return "momentum" }

// Score returns the momentum score in [0, 1].
func (Momentum) Score(in Input) float64 {
	ind := in.Indicators
	var score float64
	if ind.RSI14 >= 40 && ind.RSI14 <= 70 {
		score += 0.3
	}
	if ind.MACDHist > 0 {
		score += 0.3
	}
	if in.Price > ind.SMA20 && in.Price > ind.SMA50 {
		score += 0.4
	}
	return score
}

func (m Momentum) Evaluate(in Input) (models.TradingSignal, bool) {
	score := m.Score(in)
	atr := in.Indicators.ATR14
	rationale := fmt.Sprintf("momentum score %.2f (RSI %.1f, MACD hist %.3f)", score, in.Indicators.RSI14, in.Indicators.MACDHist)

	// the score is a sum of tenths; compare with a little slack
	const eps = 1e-9
	switch {
	case score >= 0.8-eps:
		return newSignal(in, m.Name(), models.SignalStrongBuy, score, in.Price-1.5*atr, in.Price+2.5*atr, rationale), true
	case score >= 0.6-eps:
		return newSignal(in, m.Name(), models.SignalBuy, score, in.Price-1.5*atr, in.Price+2.5*atr, rationale), true
	case score <= 0.2+eps:
		return newSignal(in, m.Name(), models.SignalSell, 1-score, in.Price+1.5*atr, in.Price-2.5*atr, rationale), true
	}
	return models.TradingSignal{}, false
}
