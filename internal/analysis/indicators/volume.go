package indicators

import (
	"trading-core/internal/models"
)

// OBV returns cumulative on-balance volume: volume is added on an up close,
// subtracted on a down close, and ignored on an unchanged close.
func OBV(candles []models.Candle) float64 {
	var obv float64
	for i := 1; i < len(candles); i++ {
		switch {
		case candles[i].Close > candles[i-1].Close:
			obv += float64(candles[i].Volume)
		case candles[i].Close < candles[i-1].Close:
			obv -= float64(candles[i].Volume)
		}
	}
	return obv
}
