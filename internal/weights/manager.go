// Package weights owns the per-user learned weight vectors: atomic
// read-mutate-write updates, an in-process cache, and first-access
// default initialization.
package weights

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/fluxtask/fluxtask/internal/db"
	"github.com/fluxtask/fluxtask/pkg/models"
)

// casRetries is how many times an update retries after losing an
// optimistic compare-and-swap race before giving up.
const casRetries = 3

// Mutation is a pure function applied to a freshly loaded weight
// vector inside an update cycle. It must not retain the pointer.
type Mutation func(w *models.UserWeights)

// Manager is the single writer for UserWeights. Updates for the same
// user are serialized on a per-user lock; different users proceed in
// parallel. The cache is an optimization only: it is refreshed on
// every successful write and a miss falls through to the store.
type Manager struct {
	store db.WeightStore

	group singleflight.Group

	// alphaMu guards defaultAlpha, the EMA smoothing factor seeded into
	// newly created vectors. Zero means the model default.
	alphaMu      sync.RWMutex
	defaultAlpha float64

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	cacheMu sync.RWMutex
	cache   map[string]*models.UserWeights
}

// NewManager creates a weight manager over the given store.
func NewManager(store db.WeightStore) *Manager {
	return &Manager{
		store: store,
		locks: make(map[string]*sync.Mutex),
		cache: make(map[string]*models.UserWeights),
	}
}

// SetDefaultAlpha changes the EMA smoothing factor seeded into weight
// vectors created from this point on. Existing vectors keep their
// stored alpha. Out-of-range values are ignored.
func (m *Manager) SetDefaultAlpha(alpha float64) {
	if alpha <= 0 || alpha > 1 {
		log.Warn().Float64("alpha", alpha).Msg("Ignoring invalid default alpha")
		return
	}
	m.alphaMu.Lock()
	m.defaultAlpha = alpha
	m.alphaMu.Unlock()
}

// newDefault builds a fresh default vector, honoring any configured
// alpha override.
func (m *Manager) newDefault(userID string) *models.UserWeights {
	w := models.DefaultUserWeights(userID)
	m.alphaMu.RLock()
	if m.defaultAlpha > 0 {
		w.Alpha = m.defaultAlpha
	}
	m.alphaMu.RUnlock()
	return w
}

// Get returns the user's weight vector, creating and persisting a
// default-initialized one on first access. The returned vector is a
// private copy; mutating it does not affect the cache.
func (m *Manager) Get(ctx context.Context, userID string) (*models.UserWeights, error) {
	m.cacheMu.RLock()
	cached, ok := m.cache[userID]
	m.cacheMu.RUnlock()
	if ok {
		return cached.Clone(), nil
	}

	// Collapse concurrent first loads for the same user into one
	// store round trip.
	v, err, _ := m.group.Do(userID, func() (any, error) {
		return m.loadOrCreate(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.UserWeights).Clone(), nil
}

func (m *Manager) loadOrCreate(ctx context.Context, userID string) (*models.UserWeights, error) {
	w, err := m.store.GetWeights(ctx, userID)
	if errors.Is(err, db.ErrNotFound) {
		w = m.newDefault(userID)
		w.LastUpdated = time.Now().UTC()
		if err := m.store.UpsertWeights(ctx, w, time.Time{}); err != nil {
			return nil, fmt.Errorf("persist default weights: %w", err)
		}
		log.Debug().Str("user", userID).Msg("Initialized default weights")
	} else if err != nil {
		return nil, fmt.Errorf("load weights: %w", err)
	}
	m.cacheIfNewer(w)
	return w, nil
}

// Update performs one atomic read-mutate-write cycle. The mutation
// closure receives the just-loaded vector, never a stale cached copy.
// Writes use optimistic compare-and-swap on the last-updated stamp and
// the whole mutation is retried on conflict.
func (m *Manager) Update(ctx context.Context, userID string, mutate Mutation) (*models.UserWeights, error) {
	lock := m.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	var lastErr error
	for attempt := 0; attempt <= casRetries; attempt++ {
		current, err := m.store.GetWeights(ctx, userID)
		expected := time.Time{}
		if errors.Is(err, db.ErrNotFound) {
			current = m.newDefault(userID)
		} else if err != nil {
			return nil, fmt.Errorf("load weights: %w", err)
		} else {
			expected = current.LastUpdated
		}

		w := current.Clone()
		mutate(w)
		w.LastUpdated = time.Now().UTC()

		err = m.store.UpsertWeights(ctx, w, expected)
		if errors.Is(err, db.ErrConflict) {
			lastErr = err
			log.Debug().Str("user", userID).Int("attempt", attempt+1).
				Msg("Weight update lost CAS race, retrying")
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("persist weights: %w", err)
		}

		m.cacheSet(w)
		return w.Clone(), nil
	}
	return nil, fmt.Errorf("update weights for %s: %w", userID, lastErr)
}

// Invalidate drops the cached entry for a user.
func (m *Manager) Invalidate(userID string) {
	m.cacheMu.Lock()
	delete(m.cache, userID)
	m.cacheMu.Unlock()
}

// cacheSet unconditionally replaces the cache entry. Only called after
// a successful write while holding the user lock, so the entry can
// never regress behind this manager's own writes.
func (m *Manager) cacheSet(w *models.UserWeights) {
	m.cacheMu.Lock()
	m.cache[w.UserID] = w.Clone()
	m.cacheMu.Unlock()
}

// cacheIfNewer stores a loaded vector unless the cache already holds a
// newer one (a concurrent Update may have written since our read).
func (m *Manager) cacheIfNewer(w *models.UserWeights) {
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()
	if existing, ok := m.cache[w.UserID]; ok && existing.LastUpdated.After(w.LastUpdated) {
		return
	}
	m.cache[w.UserID] = w.Clone()
}

func (m *Manager) userLock(userID string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	if lock, ok := m.locks[userID]; ok {
		return lock
	}
	lock := &sync.Mutex{}
	m.locks[userID] = lock
	return lock
}
