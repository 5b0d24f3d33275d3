package strategy

import (
	"fmt"
	"math"

	"trading-core/internal/models"
)

// MeanReversion fades moves outside the Bollinger bands back to the middle band.
type MeanReversion struct{}

func (MeanReversion) Name() string { return "mean_reversion" }

func (m MeanReversion) Evaluate(in Input) (models.TradingSignal, bool) {
	ind := in.Indicators
	if ind.BBMiddle <= 0 {
		return models.TradingSignal{}, false
	}
	confidence := math.Min(1, 0.5+math.Abs(in.Price-ind.BBMiddle)/ind.BBMiddle)

	switch {
	case in.Price < ind.BBLower:
		return newSignal(in, m.Name(), models.SignalBuy, confidence, in.Price-ind.ATR14, ind.BBMiddle,
			fmt.Sprintf("price %.2f below lower band %.2f", in.Price, ind.BBLower)), true
	case in.Price > ind.BBUpper:
		return newSignal(in, m.Name(), models.SignalSell, confidence, in.Price+ind.ATR14, ind.BBMiddle,
			fmt.Sprintf("price %.2f above upper band %.2f", in.Price, ind.BBUpper)), true
	}
	return models.TradingSignal{}, false
}
