// Package preferences manages per-user trading preferences: cached reads,
// throttled and validated updates, and trade pre-validation.
package preferences

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"trading-core/internal/cache"
	apperrors "trading-core/internal/errors"
	"trading-core/internal/logging"
	"trading-core/internal/models"
	"trading-core/internal/resilience"
	"trading-core/internal/store"
)

// EscalationWindow is how long a risk escalation blocks the next one.
const EscalationWindow = 24 * time.Hour

// Config holds manager settings.
type Config struct {
	ReadsPerMinute  int
	WritesPerMinute int
	CacheTTL        time.Duration
	CacheSize       int
	Persist         resilience.RetryWithBackoff
}

// DefaultConfig returns the default manager configuration.
func DefaultConfig() Config {
	return Config{
		ReadsPerMinute:  100,
		WritesPerMinute: 10,
		CacheTTL:        time.Hour,
		CacheSize:       1000,
		Persist:         resilience.DefaultRetryWithBackoff(),
	}
}

// Journal receives a durable record of every update attempt.
type Journal interface {
	LogPreferencesUpdate(ctx context.Context, userID, sessionID, actor, reason string, changed []string, errMsg string) error
	LogRateLimited(ctx context.Context, userID, scope string) error
}

// Option configures a Manager.
type Option func(*Manager)

// WithJournal sets the audit journal.
func WithJournal(j Journal) Option {
	return func(m *Manager) { m.journal = j }
}

// WithClock overrides the time source used for throttles, audit entries and
// the escalation window.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager owns preference reads and writes for all users.
type Manager struct {
	cfg     Config
	store   store.PreferencesStore
	cache   *cache.Cache[string, *models.TradingPreferences]
	journal Journal
	logger  zerolog.Logger
	now     func() time.Time

	mu      sync.Mutex
	readers map[string]*rate.Limiter
	writers map[string]*rate.Limiter
	// serializes read-modify-write per user
	userLocks map[string]*sync.Mutex
}

// NewManager creates a preferences manager over st.
func NewManager(cfg Config, st store.PreferencesStore, logger zerolog.Logger, opts ...Option) *Manager {
	def := DefaultConfig()
	if cfg.ReadsPerMinute <= 0 {
		cfg.ReadsPerMinute = def.ReadsPerMinute
	}
	if cfg.WritesPerMinute <= 0 {
		cfg.WritesPerMinute = def.WritesPerMinute
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = def.CacheTTL
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = def.CacheSize
	}
	if cfg.Persist.MaxAttempts <= 0 {
		cfg.Persist = def.Persist
	}
	if cfg.Persist.Retryable == nil {
		cfg.Persist.Retryable = func(err error) bool {
			return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		}
	}

	m := &Manager{
		cfg:       cfg,
		store:     st,
		logger:    logging.WithOperation(logger, "preferences"),
		now:       time.Now,
		readers:   make(map[string]*rate.Limiter),
		writers:   make(map[string]*rate.Limiter),
		userLocks: make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.cache = cache.New[string, *models.TradingPreferences](
		cache.Config{MaxSize: cfg.CacheSize, DefaultTTL: cfg.CacheTTL},
		cache.WithClock(m.now),
	)
	return m
}

func (m *Manager) limiter(limiters map[string]*rate.Limiter, userID string, perMinute int) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := limiters[userID]
	if !ok {
		l = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
		limiters[userID] = l
	}
	return l
}

func (m *Manager) userLock(userID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.userLocks[userID]
	if !ok {
		l = &sync.Mutex{}
		m.userLocks[userID] = l
	}
	return l
}

func (m *Manager) throttle(ctx context.Context, scope, userID string) error {
	limiters, perMinute := m.readers, m.cfg.ReadsPerMinute
	if scope == "write" {
		limiters, perMinute = m.writers, m.cfg.WritesPerMinute
	}
	if m.limiter(limiters, userID, perMinute).AllowN(m.now(), 1) {
		return nil
	}
	m.logger.Warn().Str("user_id", userID).Str("scope", scope).Msg("Preference request throttled")
	if m.journal != nil {
		if err := m.journal.LogRateLimited(ctx, userID, scope); err != nil {
			m.logger.Error().Err(err).Msg("Failed to journal throttled request")
		}
	}
	return &apperrors.RateLimitError{Scope: scope, UserID: userID}
}

// Get returns the user's preferences. A cache miss is throttled, then loaded
// from the store, falling back to defaults for unknown users.
func (m *Manager) Get(ctx context.Context, sessionID, userID string) (*models.TradingPreferences, error) {
	if userID == "" {
		return nil, apperrors.NewValidationError("user_id", userID, "required")
	}
	if p, ok := m.cache.Get(userID); ok {
		return p.Clone(), nil
	}
	if err := m.throttle(ctx, "read", userID); err != nil {
		return nil, err
	}
	p, err := m.load(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	m.cache.Set(userID, p, 0)
	return p.Clone(), nil
}

func (m *Manager) load(ctx context.Context, sessionID, userID string) (*models.TradingPreferences, error) {
	p, err := m.store.LoadPreferences(ctx, userID)
	switch {
	case err == nil:
		return p, nil
	case errors.Is(err, apperrors.ErrNotFound):
		m.logger.Debug().Str("user_id", userID).Msg("No stored preferences, using defaults")
		return models.DefaultPreferences(userID, sessionID, m.now().UTC()), nil
	default:
		return nil, apperrors.Wrapf(err, "loading preferences for %s", userID)
	}
}

// Update merges update into the user's record, validates the result,
// persists it and appends an audit entry. Rejected updates leave the record
// and its audit trail untouched.
func (m *Manager) Update(ctx context.Context, userID, sessionID string, update Update, reason, actor string) (*models.TradingPreferences, error) {
	if userID == "" {
		return nil, apperrors.NewValidationError("user_id", userID, "required")
	}
	if err := m.throttle(ctx, "write", userID); err != nil {
		return nil, err
	}

	lock := m.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	current, ok := m.cache.Get(userID)
	if !ok {
		var err error
		if current, err = m.load(ctx, sessionID, userID); err != nil {
			return nil, err
		}
	}

	next := update.apply(current)
	changed := changedFields(current.Snapshot(), next.Snapshot())
	escalating := update.RiskTolerance != nil && models.Escalates(current.RiskTolerance, next.RiskTolerance)
	if err := m.check(current, next, escalating); err != nil {
		m.journalUpdate(ctx, userID, sessionID, actor, reason, changed, err)
		return nil, err
	}

	now := m.now().UTC()
	if sessionID != "" {
		next.SessionID = sessionID
	}
	next.UpdatedAt = now
	next.AppendAudit(models.AuditEntry{
		Timestamp:         now,
		Actor:             actor,
		Reason:            reason,
		ChangedFields:     changed,
		RiskToleranceFrom: current.RiskTolerance,
		RiskToleranceTo:   next.RiskTolerance,
		Escalation:        escalating,
		PriorState:        current.Snapshot(),
	})

	if err := m.cfg.Persist.Execute(ctx, func(ctx context.Context) error {
		return m.store.SavePreferences(ctx, next)
	}); err != nil {
		err = apperrors.Wrapf(err, "saving preferences for %s", userID)
		m.journalUpdate(ctx, userID, sessionID, actor, reason, changed, err)
		return nil, err
	}

	m.cache.Set(userID, next, 0)
	m.journalUpdate(ctx, userID, sessionID, actor, reason, changed, nil)
	log := logging.WithUser(m.logger, userID)
	log.Info().
		Strs("changed_fields", changed).
		Str("actor", actor).
		Str("risk_tolerance", string(next.RiskTolerance)).
		Msg("Preferences updated")
	return next.Clone(), nil
}

// check validates next and enforces the escalation cooldown relative to current.
// Re-requesting the current high-risk level counts as an escalation.
func (m *Manager) check(current, next *models.TradingPreferences, escalating bool) error {
	if err := Validate(next); err != nil {
		return err
	}
	if escalating && current.RecentEscalation(m.now().Add(-EscalationWindow)) {
		return apperrors.NewValidationError("risk_tolerance", next.RiskTolerance,
			fmt.Sprintf("risk was already escalated within the last %s", EscalationWindow))
	}
	return nil
}

func (m *Manager) journalUpdate(ctx context.Context, userID, sessionID, actor, reason string, changed []string, cause error) {
	if m.journal == nil {
		return
	}
	var msg string
	if cause != nil {
		msg = cause.Error()
	}
	if err := m.journal.LogPreferencesUpdate(ctx, userID, sessionID, actor, reason, changed, msg); err != nil {
		m.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to journal preference update")
	}
}

// ValidateTrade checks a proposed position against the user's preferences.
func (m *Manager) ValidateTrade(ctx context.Context, sessionID, userID, symbol string, size, portfolioValue float64) (models.TradeValidation, error) {
	p, err := m.Get(ctx, sessionID, userID)
	if err != nil {
		return models.TradeValidation{}, err
	}
	return p.ValidateTrade(symbol, size, portfolioValue), nil
}

// Invalidate drops the cached record for userID.
func (m *Manager) Invalidate(userID string) {
	m.cache.Delete(userID)
}
