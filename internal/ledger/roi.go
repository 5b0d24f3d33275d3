package ledger

import (
	"context"
	"errors"

	"gorm.io/gorm"

	apperrors "trading-core/internal/errors"
	"trading-core/internal/models"
)

// Outcome classifies a signal against a later price.
type Outcome string

const (
	OutcomeTargetHit Outcome = "TARGET_HIT"
	OutcomeStopped   Outcome = "STOPPED"
	OutcomeOpen      Outcome = "OPEN"
)

// ROI is a recorded signal's return at a given exit price.
type ROI struct {
	SignalID   uint    `json:"signal_id"`
	Symbol     string  `json:"symbol"`
	Strategy   string  `json:"strategy"`
	Type       string  `json:"signal_type"`
	EntryPrice float64 `json:"entry_price"`
	ExitPrice  float64 `json:"exit_price"`
	ReturnPct  float64 `json:"return_pct"`
	Outcome    Outcome `json:"outcome"`
}

// Won reports whether the signal made money.
func (r ROI) Won() bool { return r.ReturnPct > 0 }

// Evaluate computes the return of rec closed at exitPrice. Sell signals
// profit when the price falls.
func Evaluate(rec SignalRecord, exitPrice float64) ROI {
	r := ROI{
		SignalID:   rec.ID,
		Symbol:     rec.Symbol,
		Strategy:   rec.Strategy,
		Type:       rec.Type,
		EntryPrice: rec.EntryPrice,
		ExitPrice:  exitPrice,
		Outcome:    OutcomeOpen,
	}
	if rec.EntryPrice <= 0 {
		return r
	}
	move := (exitPrice - rec.EntryPrice) / rec.EntryPrice * 100
	typ := models.SignalType(rec.Type)
	switch {
	case typ.IsBuy():
		r.ReturnPct = move
		if rec.TakeProfit > 0 && exitPrice >= rec.TakeProfit {
			r.Outcome = OutcomeTargetHit
		} else if rec.StopLoss > 0 && exitPrice <= rec.StopLoss {
			r.Outcome = OutcomeStopped
		}
	case typ.IsSell():
		r.ReturnPct = -move
		if rec.TakeProfit > 0 && exitPrice <= rec.TakeProfit {
			r.Outcome = OutcomeTargetHit
		} else if rec.StopLoss > 0 && exitPrice >= rec.StopLoss {
			r.Outcome = OutcomeStopped
		}
	}
	return r
}

// SignalROI evaluates one recorded signal at exitPrice.
func (l *Ledger) SignalROI(ctx context.Context, id uint, exitPrice float64) (ROI, error) {
	if exitPrice <= 0 {
		return ROI{}, apperrors.NewValidationError("exit_price", exitPrice, "must be positive")
	}
	rec, err := l.Signal(ctx, id)
	if err != nil {
		return ROI{}, err
	}
	return Evaluate(rec, exitPrice), nil
}

// Signal loads one recorded signal.
func (l *Ledger) Signal(ctx context.Context, id uint) (SignalRecord, error) {
	var rec SignalRecord
	err := l.db.WithContext(ctx).First(&rec, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return SignalRecord{}, apperrors.Wrapf(apperrors.ErrNotFound, "signal %d", id)
	}
	if err != nil {
		return SignalRecord{}, apperrors.Wrapf(err, "loading signal %d", id)
	}
	return rec, nil
}

// StrategySummary aggregates ROI per strategy.
type StrategySummary struct {
	Strategy     string  `json:"strategy"`
	Signals      int     `json:"signals"`
	Wins         int     `json:"wins"`
	AvgReturnPct float64 `json:"avg_return_pct"`
}

// WinRate returns wins over signals, 0 when empty.
func (s StrategySummary) WinRate() float64 {
	if s.Signals == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.Signals)
}

// Summarize evaluates every recorded signal for symbol at price and
// aggregates by strategy, in first-seen order.
func (l *Ledger) Summarize(ctx context.Context, symbol string, price float64) ([]StrategySummary, error) {
	recs, err := l.Signals(ctx, symbol, 0)
	if err != nil {
		return nil, err
	}
	index := make(map[string]int)
	var out []StrategySummary
	for _, rec := range recs {
		roi := Evaluate(rec, price)
		i, ok := index[rec.Strategy]
		if !ok {
			i = len(out)
			index[rec.Strategy] = i
			out = append(out, StrategySummary{Strategy: rec.Strategy})
		}
		s := &out[i]
		s.AvgReturnPct = (s.AvgReturnPct*float64(s.Signals) + roi.ReturnPct) / float64(s.Signals+1)
		s.Signals++
		if roi.Won() {
			s.Wins++
		}
	}
	return out, nil
}
