package indicators

import (
	"math"

	"trading-core/internal/models"
)

// Default periods for the momentum indicators in an IndicatorSet.
const (
	RSIPeriod        = 14
	StochasticPeriod = 14
	neutralRSI       = 50.0
	neutralStoch     = 50.0
)

// RSI calculates the Relative Strength Index with Wilder smoothing.
// Fewer than period+1 samples yield the neutral value 50.
func RSI(closes []float64, period int) float64 {
	if period <= 0 || len(closes) < period+1 {
		return neutralRSI
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period + 1; i < len(closes); i++ {
		var gain, loss float64
		change := closes[i] - closes[i-1]
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	return rsiFromAverages(avgGain, avgLoss)
}

func rsiFromAverages(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return neutralRSI
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// StochasticResult holds %K and %D.
type StochasticResult struct {
	K float64
	D float64
}

// Stochastic computes %K over the last period bars. A short history or a
// zero high-low range yields 50. %D equals %K.
func Stochastic(candles []models.Candle, period int) StochasticResult {
	k := stochasticK(candles, period)
	return StochasticResult{K: k, D: k}
}

func stochasticK(candles []models.Candle, period int) float64 {
	if period <= 0 || len(candles) < period {
		return neutralStoch
	}
	window := tail(candles, period)
	highest, lowest := highLow(window)
	if highest == lowest {
		return neutralStoch
	}
	k := 100 * (window[len(window)-1].Close - lowest) / (highest - lowest)
	return math.Max(0, math.Min(100, k))
}
