package session

import (
	"context"
	"errors"
	"sync"
)

// MemoryStore keeps states in a process-local map. States are lost on restart.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]*State
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]*State)}
}

// Get returns a copy of the user's state, or nil when idle.
func (m *MemoryStore) Get(_ context.Context, userID string) (*State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.states[userID]
	if !ok {
		return nil, nil
	}
	return state.clone(), nil
}

// Set stores a copy of state. Setting an idle step clears the user.
func (m *MemoryStore) Set(ctx context.Context, state *State) error {
	if state == nil || state.UserID == "" {
		return errors.New("state user id is required")
	}
	if state.Step == StepIdle {
		return m.Clear(ctx, state.UserID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.states[state.UserID] = state.clone()
	return nil
}

// Clear drops the user's state.
func (m *MemoryStore) Clear(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.states, userID)
	return nil
}

// Len returns the number of users currently mid-flow.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.states)
}
