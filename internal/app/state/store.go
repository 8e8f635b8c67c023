// Package state persists the per-model acceleration warm-up state machine and
// drives model warming. State survives process restart because re-warming a
// model's acceleration backend is too costly to repeat on every launch.
package state

import (
	"context"
	"sync"
	"time"

	"speechpipe/internal/app/model"
)

// nowFunc is swapped out in tests.
var nowFunc = time.Now

// Store is durable key-value storage keyed by model id.
type Store interface {
	// GetState returns the state record for a model. A model the store has
	// never seen reports StateNotDownloaded.
	GetState(ctx context.Context, modelID string) (model.StateInfo, error)

	// SetState upserts the state record atomically so a committed write is
	// observed by all later readers.
	SetState(ctx context.Context, modelID string, st model.State, reason string) error

	// List returns all known state records.
	List(ctx context.Context) ([]model.StateInfo, error)

	Close() error
}

// MemoryStore is a non-durable Store for tests and ephemeral runs.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]model.StateInfo
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]model.StateInfo)}
}

func (m *MemoryStore) GetState(_ context.Context, modelID string) (model.StateInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if info, ok := m.states[modelID]; ok {
		return info, nil
	}
	return model.StateInfo{ModelID: modelID, State: model.StateNotDownloaded}, nil
}

func (m *MemoryStore) SetState(_ context.Context, modelID string, st model.State, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	info := m.states[modelID]
	info.ModelID = modelID
	info.State = st
	info.Reason = reason
	if st == model.StateReady {
		info.LastWarmed = nowFunc()
	}
	m.states[modelID] = info
	return nil
}

func (m *MemoryStore) List(_ context.Context) ([]model.StateInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.StateInfo, 0, len(m.states))
	for _, info := range m.states {
		out = append(out, info)
	}
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }

// IsAccelReady reports whether a model's acceleration backend is warmed.
// Readiness is only observed after the state write is fully committed.
func IsAccelReady(ctx context.Context, store Store, modelID string) bool {
	info, err := store.GetState(ctx, modelID)
	if err != nil {
		return false
	}
	return info.State == model.StateReady
}

// AccelView adapts a Store to the readiness check the engine cache gates on.
type AccelView struct {
	store Store
}

func NewAccelView(store Store) AccelView {
	return AccelView{store: store}
}

func (v AccelView) IsAccelReady(ctx context.Context, modelID string) bool {
	return IsAccelReady(ctx, v.store, modelID)
}
