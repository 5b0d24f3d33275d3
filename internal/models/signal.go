package models

import "time"

// SignalType is the direction and strength of a trading signal.
type SignalType string

const (
	SignalStrongBuy  SignalType = "STRONG_BUY"
	SignalBuy        SignalType = "BUY"
	SignalNeutral    SignalType = "NEUTRAL"
	SignalSell       SignalType = "SELL"
	SignalStrongSell SignalType = "STRONG_SELL"
)

// IsBuy reports whether the signal recommends buying.
func (t SignalType) IsBuy() bool {
	return t == SignalBuy || t == SignalStrongBuy
}

// IsSell reports whether the signal recommends selling.
func (t SignalType) IsSell() bool {
	return t == SignalSell || t == SignalStrongSell
}

// TradingSignal is one strategy's recommendation for a symbol.
type TradingSignal struct {
	Symbol     string     `json:"symbol"`
	Type       SignalType `json:"signal_type"`
	Strategy   string     `json:"strategy"`
	Confidence float64    `json:"confidence"`
	EntryPrice float64    `json:"entry_price"`
	StopLoss   float64    `json:"stop_loss"`
	TakeProfit float64    `json:"take_profit"`
	Rationale  string     `json:"rationale"`
	Timestamp  time.Time  `json:"timestamp"`
}
