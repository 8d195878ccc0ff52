package sensitivity

import (
	"context"
	"sync"
)

// Store persists one [State] record per student.
//
// Load must be degrade-only: an absent, partially-shaped, or corrupt record
// yields defaults (with missing fields filled in) rather than an error on the
// caller's path. Sensitivity adaptation is an enhancement, never a
// correctness-critical dependency of a session.
//
// Implementations must be safe for concurrent use. They do not need to
// serialize read-modify-write cycles per student — that is the
// [Engine]'s job.
type Store interface {
	// Load returns the state for userID, creating defaults lazily when no
	// record exists. The returned error is advisory (logged by callers);
	// the State is always usable.
	Load(ctx context.Context, userID string) (State, error)

	// Save writes st for userID, overwriting any previous record.
	Save(ctx context.Context, userID string, st State) error

	// Reset overwrites any existing record with fresh defaults. This is the
	// explicit recalibration hook and the only deletion path.
	Reset(ctx context.Context, userID string) error
}

// MemStore is an in-memory Store for tests and single-process use.
type MemStore struct {
	mu     sync.Mutex
	states map[string]State
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{states: make(map[string]State)}
}

// Compile-time interface check.
var _ Store = (*MemStore)(nil)

// Load implements Store.
func (m *MemStore) Load(_ context.Context, userID string) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[userID]
	if !ok {
		return DefaultState(), nil
	}
	st.normalize()
	// Copy the slice so callers cannot alias stored state.
	st.RecentStressScores = append([]float64(nil), st.RecentStressScores...)
	return st, nil
}

// Save implements Store.
func (m *MemStore) Save(_ context.Context, userID string, st State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st.RecentStressScores = append([]float64(nil), st.RecentStressScores...)
	m.states[userID] = st
	return nil
}

// Reset implements Store.
func (m *MemStore) Reset(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[userID] = DefaultState()
	return nil
}
