// Package models provides domain models for the trading pipeline.
package models

import (
	"time"
)

// Candle represents OHLCV data for a time period.
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume"`
}

// Quote represents a market quote.
type Quote struct {
	Symbol        string    `json:"symbol"`
	Current       float64   `json:"current_price"`
	Open          float64   `json:"open"`
	High          float64   `json:"high"`
	Low           float64   `json:"low"`
	PreviousClose float64   `json:"previous_close"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"change_percent"`
	Timestamp     time.Time `json:"timestamp"`
}

// IndicatorSet is the latest value of every indicator the strategies read.
type IndicatorSet struct {
	SMA20      float64 `json:"sma20"`
	SMA50      float64 `json:"sma50"`
	EMA12      float64 `json:"ema12"`
	EMA26      float64 `json:"ema26"`
	RSI14      float64 `json:"rsi14"`
	MACD       float64 `json:"macd"`
	MACDSignal float64 `json:"macd_signal"`
	MACDHist   float64 `json:"macd_hist"`
	StochK     float64 `json:"stoch_k"`
	StochD     float64 `json:"stoch_d"`
	BBUpper    float64 `json:"bb_upper"`
	BBMiddle   float64 `json:"bb_middle"`
	BBLower    float64 `json:"bb_lower"`
	ATR14      float64 `json:"atr14"`
	OBV        float64 `json:"obv"`
}

// BandWidth returns the distance between the Bollinger bands.
func (s IndicatorSet) BandWidth() float64 {
	return s.BBUpper - s.BBLower
}

// MarketSnapshot is the cached payload for one symbol: quote plus indicators.
type MarketSnapshot struct {
	Symbol        string       `json:"symbol"`
	Quote         Quote        `json:"quote"`
	Indicators    IndicatorSet `json:"indicators"`
	Bars          int          `json:"bars"`
	QuoteSource   string       `json:"quote_source"`
	HistorySource string       `json:"history_source"`
	IndicatorPath string       `json:"indicator_path"`
	FetchedAt     time.Time    `json:"fetched_at"`
}
