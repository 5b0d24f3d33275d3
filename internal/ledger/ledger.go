// Package ledger persists recorded signals and executions for ROI accounting.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	apperrors "trading-core/internal/errors"
	"trading-core/internal/execution"
	"trading-core/internal/models"
)

// SignalRecord is a signal explicitly recorded for later evaluation.
type SignalRecord struct {
	gorm.Model
	Symbol     string  `gorm:"index;not null"`
	Type       string  `gorm:"not null"`
	Strategy   string  `gorm:"index"`
	Confidence float64 `gorm:"not null"`
	EntryPrice float64 `gorm:"not null"`
	StopLoss   float64
	TakeProfit float64
	Rationale  string
	SignalTime time.Time `gorm:"index"`
}

// ExecutionRecord is one routed order outcome.
type ExecutionRecord struct {
	gorm.Model
	OrderID        string `gorm:"uniqueIndex;not null"`
	Symbol         string `gorm:"index;not null"`
	Side           string `gorm:"not null"`
	Quantity       float64
	Status         string `gorm:"index"`
	ReferencePrice float64
	FillPrice      float64
	Notional       float64
	SlippageBps    float64
	LatencyMs      float64
	Reason         string
	SubmittedAt    time.Time
}

// Ledger stores records in a sqlite database through gorm.
type Ledger struct {
	db     *gorm.DB
	logger zerolog.Logger
}

var _ execution.Sink = (*Ledger)(nil)

// Open connects to dsn and migrates the schema. Use ":memory:" in tests.
func Open(dsn string, logger zerolog.Logger) (*Ledger, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Discard,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ledger database: %w", err)
	}
	if dsn == ":memory:" {
		// each pooled connection would get its own empty database
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to access ledger pool: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	if err := db.AutoMigrate(&SignalRecord{}, &ExecutionRecord{}); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate ledger: %w", err)
	}
	return &Ledger{
		db:     db,
		logger: logger.With().Str("component", "ledger").Logger(),
	}, nil
}

// RecordSignal stores sig and returns its ledger id.
func (l *Ledger) RecordSignal(ctx context.Context, sig models.TradingSignal) (uint, error) {
	if sig.Symbol == "" || sig.EntryPrice <= 0 {
		return 0, apperrors.NewValidationError("signal", sig.Symbol, "symbol and positive entry price required")
	}
	rec := SignalRecord{
		Symbol:     strings.ToUpper(sig.Symbol),
		Type:       string(sig.Type),
		Strategy:   sig.Strategy,
		Confidence: sig.Confidence,
		EntryPrice: sig.EntryPrice,
		StopLoss:   sig.StopLoss,
		TakeProfit: sig.TakeProfit,
		Rationale:  sig.Rationale,
		SignalTime: sig.Timestamp,
	}
	if err := l.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return 0, apperrors.Wrap(apperrors.Join(apperrors.ErrDatabaseError, err), "recording signal")
	}
	l.logger.Debug().Uint("id", rec.ID).Str("symbol", rec.Symbol).Str("strategy", rec.Strategy).Msg("Signal recorded")
	return rec.ID, nil
}

// RecordExecution stores an execution record. Re-recording an order id
// updates the existing row.
func (l *Ledger) RecordExecution(ctx context.Context, r execution.Record) error {
	rec := ExecutionRecord{
		OrderID:        r.OrderID,
		Symbol:         r.Symbol,
		Side:           string(r.Side),
		Quantity:       r.Quantity,
		Status:         string(r.Status),
		ReferencePrice: r.ReferencePrice,
		FillPrice:      r.FillPrice,
		Notional:       r.Notional,
		SlippageBps:    r.SlippageBps,
		LatencyMs:      r.LatencyMs,
		Reason:         r.Reason,
		SubmittedAt:    r.SubmittedAt,
	}
	err := l.db.WithContext(ctx).
		Where(ExecutionRecord{OrderID: r.OrderID}).
		Assign(rec).
		FirstOrCreate(&ExecutionRecord{}).Error
	if err != nil {
		return apperrors.Wrapf(apperrors.Join(apperrors.ErrDatabaseError, err), "recording execution %s", r.OrderID)
	}
	return nil
}

// Signals returns recorded signals for symbol, newest first. An empty symbol
// matches all; limit <= 0 means no limit.
func (l *Ledger) Signals(ctx context.Context, symbol string, limit int) ([]SignalRecord, error) {
	var out []SignalRecord
	q := l.db.WithContext(ctx).Order("signal_time desc, id desc")
	if symbol != "" {
		q = q.Where("symbol = ?", strings.ToUpper(symbol))
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, apperrors.Wrap(err, "listing signals")
	}
	return out, nil
}

// Executions returns execution records for symbol, newest first.
func (l *Ledger) Executions(ctx context.Context, symbol string, limit int) ([]ExecutionRecord, error) {
	var out []ExecutionRecord
	q := l.db.WithContext(ctx).Order("submitted_at desc, id desc")
	if symbol != "" {
		q = q.Where("symbol = ?", strings.ToUpper(symbol))
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, apperrors.Wrap(err, "listing executions")
	}
	return out, nil
}

// Ping verifies the database is reachable.
func (l *Ledger) Ping(ctx context.Context) error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (l *Ledger) Close() error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
