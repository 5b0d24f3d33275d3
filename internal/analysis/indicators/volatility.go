package indicators

import (
	"trading-core/internal/models"
)

// Default parameters for the volatility indicators in an IndicatorSet.
const (
	ATRPeriod       = 14
	BollingerPeriod = 20
	BollingerStdDev = 2.0
)

// ATR averages the true range over the last period bars. With fewer than
// period+1 bars it falls back to the standard deviation of closes.
func ATR(candles []models.Candle, period int) float64 {
	if period <= 0 || len(candles) < period+1 {
		return stdDev(closePrices(candles))
	}
	start := len(candles) - period
	var total float64
	for i := start; i < len(candles); i++ {
		total += trueRange(candles[i], candles[i-1].Close)
	}
	return total / float64(period)
}

// BollingerResult holds the three Bollinger bands.
type BollingerResult struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// Bollinger computes middle = SMA(period) and bands at +/- k standard
// deviations of the same window.
func Bollinger(closes []float64, period int, k float64) BollingerResult {
	window := tail(closes, period)
	middle := mean(window)
	sd := stdDev(window)
	return BollingerResult{
		Upper:  middle + k*sd,
		Middle: middle,
		Lower:  middle - k*sd,
	}
}
