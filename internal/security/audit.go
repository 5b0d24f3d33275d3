// Package security provides the audit journal and credential masking.
package security

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"
)

// AuditEventType represents the type of audit event.
type AuditEventType string

const (
	// Preference events
	AuditPreferencesUpdated  AuditEventType = "PREFERENCES_UPDATED"
	AuditPreferencesRejected AuditEventType = "PREFERENCES_REJECTED"
	AuditRateLimited         AuditEventType = "RATE_LIMITED"

	// Trading events
	AuditTradePending  AuditEventType = "TRADE_PENDING"
	AuditOrderExecuted AuditEventType = "ORDER_EXECUTED"
	AuditOrderRejected AuditEventType = "ORDER_REJECTED"
)

// AuditEvent represents a single audit log entry.
type AuditEvent struct {
	Timestamp time.Time              `json:"timestamp"`
	EventType AuditEventType         `json:"event_type"`
	UserID    string                 `json:"user_id,omitempty"`
	SessionID string                 `json:"session_id,omitempty"`
	Actor     string                 `json:"actor,omitempty"`
	Symbol    string                 `json:"symbol,omitempty"`
	OrderID   string                 `json:"order_id,omitempty"`
	Action    string                 `json:"action,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Success   bool                   `json:"success"`
	ErrorMsg  string                 `json:"error,omitempty"`
	JournalID string                 `json:"journal_id"`
	RequestID string                 `json:"request_id,omitempty"`
}

type requestIDKey struct{}

// WithRequestID tags ctx so journal entries written under it carry id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// AuditJournal appends JSON lines to a rotating file.
type AuditJournal struct {
	mu        sync.Mutex
	writer    io.WriteCloser
	journalID string
	now       func() time.Time
}

// AuditConfig holds audit journal configuration.
type AuditConfig struct {
	LogDir     string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
	Compress   bool
}

// DefaultAuditConfig returns the default audit configuration.
func DefaultAuditConfig() AuditConfig {
	home, _ := os.UserHomeDir()
	return AuditConfig{
		LogDir:     filepath.Join(home, ".config", "trading-core", "audit"),
		MaxSize:    50,
		MaxBackups: 30,
		MaxAge:     365,
		Compress:   true,
	}
}

// NewAuditJournal creates a journal writing to LogDir/audit.log.
func NewAuditJournal(cfg AuditConfig) (*AuditJournal, error) {
	if err := os.MkdirAll(cfg.LogDir, 0700); err != nil {
		return nil, fmt.Errorf("creating audit directory: %w", err)
	}
	return NewAuditJournalWriter(&lumberjack.Logger{
		Filename:   filepath.Join(cfg.LogDir, "audit.log"),
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}), nil
}

// NewAuditJournalWriter creates a journal over an arbitrary writer.
func NewAuditJournalWriter(w io.WriteCloser) *AuditJournal {
	return &AuditJournal{
		writer:    w,
		journalID: uuid.NewString(),
		now:       time.Now,
	}
}

// Log appends one event.
func (j *AuditJournal) Log(ctx context.Context, event AuditEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = j.now().UTC()
	}
	event.JournalID = j.journalID
	if reqID, ok := ctx.Value(requestIDKey{}).(string); ok {
		event.RequestID = reqID
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("serializing audit event: %w", err)
	}
	if _, err := j.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing audit event: %w", err)
	}
	return nil
}

// LogPreferencesUpdate records an accepted or rejected preference update.
func (j *AuditJournal) LogPreferencesUpdate(ctx context.Context, userID, sessionID, actor, reason string, changed []string, errMsg string) error {
	event := AuditEvent{
		EventType: AuditPreferencesUpdated,
		UserID:    userID,
		SessionID: sessionID,
		Actor:     actor,
		Success:   errMsg == "",
		ErrorMsg:  errMsg,
		Details: map[string]interface{}{
			"reason":         reason,
			"changed_fields": changed,
		},
	}
	if errMsg != "" {
		event.EventType = AuditPreferencesRejected
	}
	return j.Log(ctx, event)
}

// LogRateLimited records a throttled request.
func (j *AuditJournal) LogRateLimited(ctx context.Context, userID, scope string) error {
	return j.Log(ctx, AuditEvent{
		EventType: AuditRateLimited,
		UserID:    userID,
		Action:    scope,
		Success:   false,
	})
}

// LogTradePending records a trade handed to the confirmation workflow.
func (j *AuditJournal) LogTradePending(ctx context.Context, orderID, symbol, action string) error {
	return j.Log(ctx, AuditEvent{
		EventType: AuditTradePending,
		OrderID:   orderID,
		Symbol:    symbol,
		Action:    action,
		Success:   true,
	})
}

// LogOrder records a routed order's outcome.
func (j *AuditJournal) LogOrder(ctx context.Context, orderID, symbol, side string, qty, price float64, rejected bool, reason string) error {
	event := AuditEvent{
		EventType: AuditOrderExecuted,
		OrderID:   orderID,
		Symbol:    symbol,
		Action:    side,
		Success:   !rejected,
		ErrorMsg:  reason,
		Details: map[string]interface{}{
			"quantity": qty,
			"price":    price,
		},
	}
	if rejected {
		event.EventType = AuditOrderRejected
	}
	return j.Log(ctx, event)
}

// Close closes the journal.
func (j *AuditJournal) Close() error {
	return j.writer.Close()
}
