// Package store provides preference persistence interfaces and implementations.
package store

import (
	"context"
	"sync"

	apperrors "trading-core/internal/errors"
	"trading-core/internal/models"
)

// PreferencesStore persists one preference record per user.
type PreferencesStore interface {
	// LoadPreferences returns the stored record, or an error wrapping
	// ErrNotFound when the user has none.
	LoadPreferences(ctx context.Context, userID string) (*models.TradingPreferences, error)
	// SavePreferences inserts or replaces the record.
	SavePreferences(ctx context.Context, prefs *models.TradingPreferences) error
	Close() error
}

// MemoryStore keeps records in a map. Records are copied in and out.
type MemoryStore struct {
	mu    sync.RWMutex
	prefs map[string]*models.TradingPreferences
}

var _ PreferencesStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{prefs: make(map[string]*models.TradingPreferences)}
}

func (m *MemoryStore) LoadPreferences(ctx context.Context, userID string) (*models.TradingPreferences, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.prefs[userID]
	if !ok {
		return nil, apperrors.Wrapf(apperrors.ErrNotFound, "preferences for %s", userID)
	}
	return p.Clone(), nil
}

func (m *MemoryStore) SavePreferences(ctx context.Context, prefs *models.TradingPreferences) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefs[prefs.UserID] = prefs.Clone()
	return nil
}

func (m *MemoryStore) Close() error { return nil }
