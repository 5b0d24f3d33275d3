package trading

import (
	"context"
	"fmt"
	"strings"
	"time"

	"trading-core/internal/logging"
	"trading-core/internal/marketdata"
)

// Action is what a trade intent asks for.
type Action string

const (
	ActionSignal Action = "signal"
	ActionBuy    Action = "buy"
	ActionSell   Action = "sell"
)

// TradeIntent is a request to act on a symbol.
type TradeIntent struct {
	Symbol     string  `json:"symbol"`
	Action     Action  `json:"action"`
	Quantity   float64 `json:"quantity,omitempty"`
	LimitPrice float64 `json:"limit_price,omitempty"`
	UserID     string  `json:"user_id,omitempty"`
	Reason     string  `json:"reason,omitempty"`
}

// TradeResult is the structured response of ExecuteTrade.
type TradeResult struct {
	Status    Status        `json:"status"`
	Symbol    string        `json:"symbol"`
	Action    Action        `json:"action"`
	OrderID   string        `json:"order_id,omitempty"`
	Quantity  float64       `json:"quantity,omitempty"`
	Message   string        `json:"message,omitempty"`
	Signals   *SignalResult `json:"signals,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// ExecuteTrade validates intent. A signal action delegates to GetSignals;
// buy and sell only produce a pending trade for the confirmation workflow
// and never reach a broker.
func (s *Service) ExecuteTrade(ctx context.Context, intent TradeIntent) TradeResult {
	action := Action(strings.ToLower(strings.TrimSpace(string(intent.Action))))
	result := TradeResult{
		Symbol:    strings.ToUpper(strings.TrimSpace(intent.Symbol)),
		Action:    action,
		Timestamp: s.now().UTC(),
	}

	sym, err := marketdata.NormalizeSymbol(intent.Symbol)
	if err != nil {
		result.Status = StatusInvalid
		result.Message = err.Error()
		return result
	}
	result.Symbol = sym
	intent.Symbol = sym
	intent.Action = action

	switch action {
	case ActionSignal:
		signals := s.GetSignals(ctx, sym)
		result.Status = signals.Status
		result.Signals = &signals
		result.Message = signals.Error
		return result
	case ActionBuy, ActionSell:
	default:
		result.Status = StatusInvalid
		result.Message = fmt.Sprintf("unknown action %q: expected signal, buy or sell", intent.Action)
		return result
	}

	// quantity is optional; sizing is left to confirmation
	if intent.Quantity < 0 {
		result.Status = StatusInvalid
		result.Message = fmt.Sprintf("quantity must not be negative, got %v", intent.Quantity)
		return result
	}

	result.OrderID = newOrderID()
	result.Quantity = intent.Quantity
	log := logging.WithOrderID(logging.WithSymbol(s.logger, sym), result.OrderID)

	if s.queue != nil {
		pending := PendingTrade{OrderID: result.OrderID, Intent: intent, CreatedAt: result.Timestamp}
		if err := s.queue.Enqueue(ctx, pending); err != nil {
			log.Error().Err(err).Msg("Failed to queue trade for confirmation")
			result.Status = StatusError
			result.Message = fmt.Sprintf("queueing for confirmation: %v", err)
			return result
		}
	}
	if s.journal != nil {
		if err := s.journal.LogTradePending(ctx, result.OrderID, sym, string(action)); err != nil {
			log.Error().Err(err).Msg("Failed to journal pending trade")
		}
	}

	result.Status = StatusPending
	result.Message = "awaiting confirmation"
	log.Info().Str("action", string(action)).Float64("quantity", intent.Quantity).Msg("Trade pending confirmation")
	return result
}
