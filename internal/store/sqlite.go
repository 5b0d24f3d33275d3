package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	apperrors "trading-core/internal/errors"
	"trading-core/internal/models"
)

// SQLiteStore implements PreferencesStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ PreferencesStore = (*SQLiteStore)(nil)

// NewSQLiteStore opens (and if needed creates) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS preferences (
		user_id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		risk_tolerance TEXT NOT NULL,
		trading_style TEXT NOT NULL,
		risk_parameters TEXT NOT NULL,
		watchlist TEXT NOT NULL,
		banned_symbols TEXT NOT NULL,
		allow_autonomous_trading INTEGER NOT NULL DEFAULT 0,
		max_autonomous_position_size REAL NOT NULL DEFAULT 0,
		compliance_acknowledged INTEGER NOT NULL DEFAULT 0,
		risk_disclosure_accepted INTEGER NOT NULL DEFAULT 0,
		audit_trail TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_preferences_session ON preferences(session_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// LoadPreferences retrieves the record for userID.
func (s *SQLiteStore) LoadPreferences(ctx context.Context, userID string) (*models.TradingPreferences, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, session_id, risk_tolerance, trading_style, risk_parameters,
			watchlist, banned_symbols, allow_autonomous_trading, max_autonomous_position_size,
			compliance_acknowledged, risk_disclosure_accepted, audit_trail, created_at, updated_at
		FROM preferences WHERE user_id = ?
	`, userID)

	var (
		p                                  models.TradingPreferences
		riskParams, watchlist, banned, aud string
	)
	err := row.Scan(&p.UserID, &p.SessionID, &p.RiskTolerance, &p.TradingStyle, &riskParams,
		&watchlist, &banned, &p.AllowAutonomousTrading, &p.MaxAutonomousPositionSize,
		&p.ComplianceAcknowledged, &p.RiskDisclosureAccepted, &aud, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.Wrapf(apperrors.ErrNotFound, "preferences for %s", userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load preferences: %w", errors.Join(apperrors.ErrDatabaseError, err))
	}

	for _, field := range []struct {
		raw  string
		dest interface{}
	}{
		{riskParams, &p.RiskParameters},
		{watchlist, &p.Watchlist},
		{banned, &p.BannedSymbols},
		{aud, &p.AuditTrail},
	} {
		if err := json.Unmarshal([]byte(field.raw), field.dest); err != nil {
			return nil, fmt.Errorf("failed to decode preferences for %s: %w", userID, err)
		}
	}
	return &p, nil
}

// SavePreferences upserts the record.
func (s *SQLiteStore) SavePreferences(ctx context.Context, p *models.TradingPreferences) error {
	encoded := make([]string, 4)
	for i, v := range []interface{}{p.RiskParameters, nonNil(p.Watchlist), nonNil(p.BannedSymbols), auditOrEmpty(p.AuditTrail)} {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode preferences: %w", err)
		}
		encoded[i] = string(b)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO preferences (user_id, session_id, risk_tolerance, trading_style, risk_parameters,
			watchlist, banned_symbols, allow_autonomous_trading, max_autonomous_position_size,
			compliance_acknowledged, risk_disclosure_accepted, audit_trail, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			session_id = excluded.session_id,
			risk_tolerance = excluded.risk_tolerance,
			trading_style = excluded.trading_style,
			risk_parameters = excluded.risk_parameters,
			watchlist = excluded.watchlist,
			banned_symbols = excluded.banned_symbols,
			allow_autonomous_trading = excluded.allow_autonomous_trading,
			max_autonomous_position_size = excluded.max_autonomous_position_size,
			compliance_acknowledged = excluded.compliance_acknowledged,
			risk_disclosure_accepted = excluded.risk_disclosure_accepted,
			audit_trail = excluded.audit_trail,
			updated_at = excluded.updated_at
	`, p.UserID, p.SessionID, string(p.RiskTolerance), string(p.TradingStyle), encoded[0],
		encoded[1], encoded[2], p.AllowAutonomousTrading, p.MaxAutonomousPositionSize,
		p.ComplianceAcknowledged, p.RiskDisclosureAccepted, encoded[3], p.CreatedAt.UTC(), p.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save preferences: %w", errors.Join(apperrors.ErrDatabaseError, err))
	}
	return nil
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nonNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}

func auditOrEmpty(trail []models.AuditEntry) []models.AuditEntry {
	if trail == nil {
		return []models.AuditEntry{}
	}
	return trail
}
