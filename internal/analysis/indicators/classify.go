package indicators

import (
	"math"

	"trading-core/internal/models"
)

// Direction is the bias an indicator reading implies.
type Direction string

const (
	Bullish Direction = "bullish"
	Bearish Direction = "bearish"
	Neutral Direction = "neutral"
)

// Agreement tolerances between the fast and reference paths.
const (
	// ConfidenceTolerance is the widest confidence gap still treated as the same bucket.
	ConfidenceTolerance = 0.01
	// ValueTolerance bounds per-value differences; relative for price-scaled
	// values and absolute for oscillators.
	ValueTolerance = 1e-6
)

// Classification is a direction with a confidence in [0, 1].
type Classification struct {
	Direction  Direction `json:"direction"`
	Confidence float64   `json:"confidence"`
}

// Agrees reports whether two classifications share a direction and a
// confidence bucket.
func (c Classification) Agrees(other Classification) bool {
	return c.Direction == other.Direction &&
		math.Abs(c.Confidence-other.Confidence) <= ConfidenceTolerance
}

// ClassifyRSI maps RSI to overbought (bearish), oversold (bullish) or neutral.
func ClassifyRSI(rsi float64) Classification {
	switch {
	case rsi >= 70:
		return Classification{Direction: Bearish, Confidence: math.Min(1, (rsi-70)/30)}
	case rsi <= 30:
		return Classification{Direction: Bullish, Confidence: math.Min(1, (30-rsi)/30)}
	default:
		return Classification{Direction: Neutral, Confidence: 0.35}
	}
}

// ClassifyMACD maps the MACD histogram sign to a direction.
func ClassifyMACD(hist float64) Classification {
	dir := Bullish
	if hist < 0 {
		dir = Bearish
	}
	return Classification{Direction: dir, Confidence: math.Min(1, math.Abs(hist)/0.15)}
}

// Agree reports whether two indicator sets classify the same way.
func Agree(a, b models.IndicatorSet) bool {
	return ClassifyRSI(a.RSI14).Agrees(ClassifyRSI(b.RSI14)) &&
		ClassifyMACD(a.MACDHist).Agrees(ClassifyMACD(b.MACDHist))
}

// WithinTolerance reports whether every value in a and b is within ValueTolerance.
func WithinTolerance(a, b models.IndicatorSet) bool {
	relative := [][2]float64{
		{a.SMA20, b.SMA20}, {a.SMA50, b.SMA50}, {a.EMA12, b.EMA12}, {a.EMA26, b.EMA26},
		{a.BBUpper, b.BBUpper}, {a.BBMiddle, b.BBMiddle}, {a.BBLower, b.BBLower},
		{a.ATR14, b.ATR14}, {a.OBV, b.OBV}, {a.MACD, b.MACD}, {a.MACDSignal, b.MACDSignal},
		{a.MACDHist, b.MACDHist},
	}
	for _, p := range relative {
		scale := math.Max(1, math.Max(math.Abs(p[0]), math.Abs(p[1])))
		if math.Abs(p[0]-p[1]) > ValueTolerance*scale {
			return false
		}
	}
	absolute := [][2]float64{{a.RSI14, b.RSI14}, {a.StochK, b.StochK}, {a.StochD, b.StochD}}
	for _, p := range absolute {
		if math.Abs(p[0]-p[1]) > ValueTolerance {
			return false
		}
	}
	return true
}
