package indicators

import (
	"errors"
	"math"

	"trading-core/internal/models"
)

// ErrNonFinite is returned when an input or output is NaN or infinite.
var ErrNonFinite = errors.New("non-finite indicator value")

// mean calculates the arithmetic mean of a slice of float64.
func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var total float64
	for _, v := range values {
		total += v
	}
	return total / float64(len(values))
}

// stdDev calculates the population standard deviation of a slice of float64.
func stdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	m := mean(values)
	var variance float64
	for _, v := range values {
		diff := v - m
		variance += diff * diff
	}
	variance /= float64(len(values))
	return math.Sqrt(variance)
}

// trueRange calculates the true range for a candle.
func trueRange(current models.Candle, prevClose float64) float64 {
	highLow := current.High - current.Low
	highClose := math.Abs(current.High - prevClose)
	lowClose := math.Abs(current.Low - prevClose)
	return math.Max(highLow, math.Max(highClose, lowClose))
}

// closePrices extracts close prices from candles.
func closePrices(candles []models.Candle) []float64 {
	prices := make([]float64, len(candles))
	for i, c := range candles {
		prices[i] = c.Close
	}
	return prices
}

// tail returns the last n values, or all of them if shorter.
func tail[T any](values []T, n int) []T {
	if n <= 0 || n >= len(values) {
		return values
	}
	return values[len(values)-n:]
}

// highLow returns the highest high and lowest low of candles.
func highLow(candles []models.Candle) (float64, float64) {
	if len(candles) == 0 {
		return 0, 0
	}
	h, l := candles[0].High, candles[0].Low
	for _, c := range candles[1:] {
		h = math.Max(h, c.High)
		l = math.Min(l, c.Low)
	}
	return h, l
}

func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func validCandles(candles []models.Candle) error {
	for _, c := range candles {
		if !finite(c.Open, c.High, c.Low, c.Close) {
			return ErrNonFinite
		}
	}
	return nil
}

func setFinite(s models.IndicatorSet) bool {
	return finite(s.SMA20, s.SMA50, s.EMA12, s.EMA26, s.RSI14, s.MACD, s.MACDSignal,
		s.MACDHist, s.StochK, s.StochD, s.BBUpper, s.BBMiddle, s.BBLower, s.ATR14, s.OBV)
}
