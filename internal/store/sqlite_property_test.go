package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "trading-core/internal/errors"
	"trading-core/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "prefs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func samplePreferences(userID string) *models.TradingPreferences {
	now := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)
	p := models.DefaultPreferences(userID, "session-1", now)
	p.Watchlist = []string{"AAPL", "MSFT"}
	p.BannedSymbols = []string{"GME"}
	p.AppendAudit(models.AuditEntry{
		Timestamp:         now,
		Actor:             "user",
		Reason:            "more risk",
		ChangedFields:     []string{"risk_tolerance"},
		RiskToleranceFrom: models.RiskModerate,
		RiskToleranceTo:   models.RiskAggressive,
		PriorState:        p.Snapshot(),
	})
	p.RiskTolerance = models.RiskAggressive
	return p
}

func TestSQLiteStore_SaveThenLoad(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	want := samplePreferences("alice")
	require.NoError(t, s.SavePreferences(ctx, want))

	got, err := s.LoadPreferences(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, want.RiskTolerance, got.RiskTolerance)
	assert.Equal(t, want.RiskParameters, got.RiskParameters)
	assert.Equal(t, want.Watchlist, got.Watchlist)
	assert.Equal(t, want.BannedSymbols, got.BannedSymbols)
	require.Len(t, got.AuditTrail, 1)
	assert.True(t, got.AuditTrail[0].IsEscalation())
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt))
}

func TestSQLiteStore_UpsertReplaces(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	p := samplePreferences("bob")
	require.NoError(t, s.SavePreferences(ctx, p))
	p.RiskTolerance = models.RiskConservative
	p.Watchlist = nil
	require.NoError(t, s.SavePreferences(ctx, p))

	got, err := s.LoadPreferences(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, models.RiskConservative, got.RiskTolerance)
	assert.Empty(t, got.Watchlist)
}

func TestSQLiteStore_MissingIsNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.LoadPreferences(context.Background(), "nobody")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, s.Ping(context.Background()))
}

func TestMemoryStore_CopiesRecords(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()

	_, err := m.LoadPreferences(ctx, "alice")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	p := samplePreferences("alice")
	require.NoError(t, m.SavePreferences(ctx, p))
	p.Watchlist[0] = "CHANGED"

	got, err := m.LoadPreferences(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "AAPL", got.Watchlist[0])
}

// Property: any record saved to SQLite loads back with the same risk
// settings and lists.
func TestProperty_PreferencesRoundTrip(t *testing.T) {
	s := newTestStore(t)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)
	tolerances := []models.RiskTolerance{models.RiskConservative, models.RiskModerate, models.RiskAggressive, models.RiskExtreme}

	properties.Property("save then load preserves the record", prop.ForAll(
		func(id int, tol int, maxPos, maxLoss float64, watch []string) bool {
			ctx := context.Background()
			p := models.DefaultPreferences(fmt.Sprintf("user-%d", id), "s", time.Now().UTC())
			p.RiskTolerance = tolerances[tol]
			p.RiskParameters.MaxPositionSizePct = maxPos
			p.RiskParameters.MaxDailyLossPct = maxLoss
			p.Watchlist = append([]string{}, watch...)

			if err := s.SavePreferences(ctx, p); err != nil {
				return false
			}
			got, err := s.LoadPreferences(ctx, p.UserID)
			if err != nil {
				return false
			}
			if len(got.Watchlist) != len(p.Watchlist) {
				return false
			}
			for i := range got.Watchlist {
				if got.Watchlist[i] != p.Watchlist[i] {
					return false
				}
			}
			return got.RiskTolerance == p.RiskTolerance &&
				got.RiskParameters == p.RiskParameters
		},
		gen.IntRange(0, 20),
		gen.IntRange(0, 3),
		gen.Float64Range(0, 100),
		gen.Float64Range(0, 100),
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
