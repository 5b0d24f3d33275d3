package preferences

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "trading-core/internal/errors"
	"trading-core/internal/models"
	"trading-core/internal/store"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

// flakyStore fails the first failSaves saves and counts loads.
type flakyStore struct {
	*store.MemoryStore
	failSaves int32
	saves     atomic.Int32
	loads     atomic.Int32
}

func (f *flakyStore) LoadPreferences(ctx context.Context, userID string) (*models.TradingPreferences, error) {
	f.loads.Add(1)
	return f.MemoryStore.LoadPreferences(ctx, userID)
}

func (f *flakyStore) SavePreferences(ctx context.Context, p *models.TradingPreferences) error {
	if f.saves.Add(1) <= f.failSaves {
		return errors.New("database is locked")
	}
	return f.MemoryStore.SavePreferences(ctx, p)
}

type recordingJournal struct {
	mu       sync.Mutex
	updates  []string
	rejected []string
	limited  []string
}

func (j *recordingJournal) LogPreferencesUpdate(ctx context.Context, userID, sessionID, actor, reason string, changed []string, errMsg string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if errMsg != "" {
		j.rejected = append(j.rejected, errMsg)
	} else {
		j.updates = append(j.updates, reason)
	}
	return nil
}

func (j *recordingJournal) LogRateLimited(ctx context.Context, userID, scope string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.limited = append(j.limited, scope)
	return nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Persist.Sleep = func(context.Context, time.Duration) error { return nil }
	return cfg
}

func newTestManager(t *testing.T, failSaves int32) (*Manager, *flakyStore, *fakeClock, *recordingJournal) {
	t.Helper()
	st := &flakyStore{MemoryStore: store.NewMemoryStore(), failSaves: failSaves}
	clock := &fakeClock{now: time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)}
	journal := &recordingJournal{}
	m := NewManager(testConfig(), st, zerolog.Nop(), WithClock(clock.Now), WithJournal(journal))
	return m, st, clock, journal
}

func risk(r models.RiskTolerance) *models.RiskTolerance { return &r }
func pct(v float64) *float64                             { return &v }
func flag(v bool) *bool                                  { return &v }

func TestManager_GetDefaultsAndCaches(t *testing.T) {
	m, st, _, _ := newTestManager(t, 0)
	ctx := context.Background()

	p, err := m.Get(ctx, "s1", "alice")
	require.NoError(t, err)
	assert.Equal(t, models.RiskModerate, p.RiskTolerance)
	assert.Equal(t, models.StyleSwingTrading, p.TradingStyle)
	assert.Equal(t, 5.0, p.RiskParameters.MaxPositionSizePct)
	assert.Equal(t, "s1", p.SessionID)

	// mutate the returned copy; the cached record must not change
	p.RiskTolerance = models.RiskExtreme
	again, err := m.Get(ctx, "s1", "alice")
	require.NoError(t, err)
	assert.Equal(t, models.RiskModerate, again.RiskTolerance)
	assert.Equal(t, int32(1), st.loads.Load())
}

func TestManager_GetRequiresUser(t *testing.T) {
	m, _, _, _ := newTestManager(t, 0)
	_, err := m.Get(context.Background(), "s1", "")
	assert.True(t, apperrors.IsValidation(err))
}

func TestManager_ReadThrottle(t *testing.T) {
	m, _, clock, journal := newTestManager(t, 0)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		_, err := m.Get(ctx, "s1", "bob")
		require.NoError(t, err)
		m.Invalidate("bob")
	}
	_, err := m.Get(ctx, "s1", "bob")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrRateLimited)
	var rle *apperrors.RateLimitError
	require.ErrorAs(t, err, &rle)
	assert.Equal(t, "read", rle.Scope)
	assert.Equal(t, []string{"read"}, journal.limited)

	// other users are unaffected
	_, err = m.Get(ctx, "s2", "carol")
	assert.NoError(t, err)

	clock.Advance(time.Minute)
	_, err = m.Get(ctx, "s1", "bob")
	assert.NoError(t, err)
}

func TestManager_WriteThrottle(t *testing.T) {
	m, st, _, _ := newTestManager(t, 0)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := m.Update(ctx, "dave", "s1", Update{Watchlist: []string{"AAPL"}}, "tweak", "user")
		require.NoError(t, err)
	}
	saves := st.saves.Load()
	_, err := m.Update(ctx, "dave", "s1", Update{Watchlist: []string{"MSFT"}}, "tweak", "user")
	assert.ErrorIs(t, err, apperrors.ErrRateLimited)
	assert.Equal(t, saves, st.saves.Load(), "no mutation attempted when throttled")
}

func TestManager_UpdateRecordsAudit(t *testing.T) {
	m, st, _, journal := newTestManager(t, 0)
	ctx := context.Background()

	p, err := m.Update(ctx, "erin", "s9", Update{
		RiskTolerance: risk(models.RiskAggressive),
		Watchlist:     []string{"aapl", " msft", "AAPL"},
	}, "wants growth", "user")
	require.NoError(t, err)

	assert.Equal(t, models.RiskAggressive, p.RiskTolerance)
	assert.Equal(t, []string{"AAPL", "MSFT"}, p.Watchlist)
	require.Len(t, p.AuditTrail, 1)
	entry := p.AuditTrail[0]
	assert.Equal(t, "user", entry.Actor)
	assert.Equal(t, "wants growth", entry.Reason)
	assert.ElementsMatch(t, []string{"risk_tolerance", "watchlist"}, entry.ChangedFields)
	assert.Equal(t, models.RiskModerate, entry.PriorState.RiskTolerance)
	assert.True(t, entry.IsEscalation())

	stored, err := st.LoadPreferences(ctx, "erin")
	require.NoError(t, err)
	assert.Equal(t, models.RiskAggressive, stored.RiskTolerance)
	assert.Len(t, stored.AuditTrail, 1)
	assert.Equal(t, []string{"wants growth"}, journal.updates)
}

func TestManager_ValidationRejectsWithoutMutation(t *testing.T) {
	tests := []struct {
		name   string
		update Update
	}{
		{"conservative over 5%", Update{RiskTolerance: risk(models.RiskConservative), MaxPositionSizePct: pct(8)}},
		{"position below daily loss", Update{MaxPositionSizePct: pct(1), MaxDailyLossPct: pct(2)}},
		{"autonomous without acknowledgements", Update{AllowAutonomousTrading: flag(true)}},
		{"autonomous with extreme", Update{
			AllowAutonomousTrading: flag(true),
			ComplianceAcknowledged: flag(true),
			RiskDisclosureAccepted: flag(true),
			RiskTolerance:          risk(models.RiskExtreme),
		}},
		{"unknown tolerance", Update{RiskTolerance: risk("yolo")}},
		{"percentage out of range", Update{MaxDrawdownPct: pct(150)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, st, _, journal := newTestManager(t, 0)
			ctx := context.Background()

			_, err := m.Update(ctx, "frank", "s1", tt.update, "test", "user")
			require.Error(t, err)
			assert.True(t, apperrors.IsValidation(err), err.Error())
			assert.Equal(t, int32(0), st.saves.Load())
			assert.Len(t, journal.rejected, 1)

			p, err := m.Get(ctx, "s1", "frank")
			require.NoError(t, err)
			assert.Empty(t, p.AuditTrail)
		})
	}
}

func TestManager_AutonomousAllowedWithAcknowledgements(t *testing.T) {
	m, _, _, _ := newTestManager(t, 0)
	p, err := m.Update(context.Background(), "gina", "s1", Update{
		AllowAutonomousTrading: flag(true),
		ComplianceAcknowledged: flag(true),
		RiskDisclosureAccepted: flag(true),
	}, "opt in", "user")
	require.NoError(t, err)
	assert.True(t, p.AllowAutonomousTrading)
}

func TestManager_EscalationCooldown(t *testing.T) {
	m, _, clock, _ := newTestManager(t, 0)
	ctx := context.Background()

	_, err := m.Update(ctx, "hank", "s1", Update{RiskTolerance: risk(models.RiskAggressive)}, "first", "user")
	require.NoError(t, err)

	clock.Advance(23 * time.Hour)
	_, err = m.Update(ctx, "hank", "s1", Update{RiskTolerance: risk(models.RiskExtreme)}, "second", "user")
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))

	// de-escalating is always allowed, and re-escalating stays blocked
	_, err = m.Update(ctx, "hank", "s1", Update{RiskTolerance: risk(models.RiskModerate)}, "calm down", "user")
	require.NoError(t, err)
	_, err = m.Update(ctx, "hank", "s1", Update{RiskTolerance: risk(models.RiskAggressive)}, "again", "user")
	require.Error(t, err)

	clock.Advance(time.Hour + time.Second)
	p, err := m.Update(ctx, "hank", "s1", Update{RiskTolerance: risk(models.RiskExtreme)}, "later", "user")
	require.NoError(t, err)
	assert.Equal(t, models.RiskExtreme, p.RiskTolerance)
}

func TestManager_RepeatedExtremeWithinWindow(t *testing.T) {
	m, _, clock, _ := newTestManager(t, 0)
	ctx := context.Background()

	p, err := m.Update(ctx, "ivy", "s1", Update{RiskTolerance: risk(models.RiskExtreme)}, "first", "user")
	require.NoError(t, err)
	assert.True(t, p.AuditTrail[len(p.AuditTrail)-1].Escalation)

	clock.Advance(time.Hour)
	_, err = m.Update(ctx, "ivy", "s1", Update{RiskTolerance: risk(models.RiskExtreme)}, "again", "user")
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))

	// updates that leave risk_tolerance alone are not escalations
	p, err = m.Update(ctx, "ivy", "s1", Update{Watchlist: []string{"AAPL"}}, "watch", "user")
	require.NoError(t, err)
	assert.False(t, p.AuditTrail[len(p.AuditTrail)-1].IsEscalation())

	clock.Advance(23*time.Hour + time.Second)
	p, err = m.Update(ctx, "ivy", "s1", Update{RiskTolerance: risk(models.RiskExtreme)}, "next day", "user")
	require.NoError(t, err)
	assert.Equal(t, models.RiskExtreme, p.RiskTolerance)
}

func TestManager_PersistRetries(t *testing.T) {
	m, st, _, _ := newTestManager(t, 2)
	p, err := m.Update(context.Background(), "ivy", "s1", Update{StopLossPct: pct(3)}, "tighter", "user")
	require.NoError(t, err)
	assert.Equal(t, 3.0, p.RiskParameters.StopLossPct)
	assert.Equal(t, int32(3), st.saves.Load())
}

func TestManager_PersistFailureLeavesCacheUntouched(t *testing.T) {
	m, st, _, journal := newTestManager(t, 5)
	ctx := context.Background()

	_, err := m.Update(ctx, "jack", "s1", Update{StopLossPct: pct(3)}, "tighter", "user")
	require.Error(t, err)
	assert.Equal(t, int32(4), st.saves.Load())
	assert.Len(t, journal.rejected, 1)

	p, err := m.Get(ctx, "s1", "jack")
	require.NoError(t, err)
	assert.Equal(t, 2.0, p.RiskParameters.StopLossPct)
	assert.Empty(t, p.AuditTrail)
}

func TestManager_ValidateTrade(t *testing.T) {
	m, _, _, _ := newTestManager(t, 0)
	ctx := context.Background()

	_, err := m.Update(ctx, "kim", "s1", Update{BannedSymbols: []string{"gme"}}, "no memes", "user")
	require.NoError(t, err)

	v, err := m.ValidateTrade(ctx, "s1", "kim", "GME", 100, 10000)
	require.NoError(t, err)
	assert.False(t, v.Allowed)
	assert.Contains(t, v.Reason, "banned")

	v, err = m.ValidateTrade(ctx, "s1", "kim", "AAPL", 1000, 10000)
	require.NoError(t, err)
	assert.True(t, v.Allowed)
	assert.True(t, v.Adjusted)
	assert.InDelta(t, 500, v.AdjustedSize, 1e-9)
	assert.NotEmpty(t, v.Reason)

	v, err = m.ValidateTrade(ctx, "s1", "kim", "AAPL", 100, 10000)
	require.NoError(t, err)
	assert.False(t, v.Adjusted)
	assert.Equal(t, 100.0, v.AdjustedSize)
}

func TestUpdate_Set(t *testing.T) {
	var u Update
	require.NoError(t, u.Set("risk_tolerance", "Aggressive"))
	require.NoError(t, u.Set("max_position_size_pct", "7.5"))
	require.NoError(t, u.Set("watchlist", "aapl, msft,,AAPL"))
	require.NoError(t, u.Set("allow_autonomous_trading", "false"))

	assert.Equal(t, models.RiskAggressive, *u.RiskTolerance)
	assert.Equal(t, 7.5, *u.MaxPositionSizePct)
	assert.Equal(t, []string{"AAPL", "MSFT"}, u.Watchlist)
	assert.False(t, *u.AllowAutonomousTrading)
	assert.False(t, u.Empty())

	assert.True(t, apperrors.IsValidation(u.Set("max_position_size_pct", "lots")))
	assert.True(t, apperrors.IsValidation(u.Set("favourite_colour", "blue")))
	assert.True(t, Update{}.Empty())
}

// Property: the audit trail never exceeds its cap and always ends with the
// latest accepted update.
func TestProperty_AuditTrailBounded(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("audit trail bounded", prop.ForAll(
		func(n int) bool {
			cfg := testConfig()
			cfg.WritesPerMinute = 1000
			m := NewManager(cfg, store.NewMemoryStore(), zerolog.Nop())
			var last *models.TradingPreferences
			for i := 0; i < n; i++ {
				stop := 1 + float64(i%5)
				p, err := m.Update(context.Background(), "prop", "s", Update{StopLossPct: &stop}, "step", "user")
				if err != nil {
					return false
				}
				last = p
			}
			if last == nil {
				return true
			}
			return len(last.AuditTrail) <= models.MaxAuditEntries &&
				last.AuditTrail[len(last.AuditTrail)-1].PriorState.RiskParameters.StopLossPct != 0
		},
		gen.IntRange(0, 160),
	))

	properties.TestingRun(t)
}
