package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/phantomwatt/phantomwatt/pkg/types"
)

// MemoryProvider implements the Database interface entirely in memory. State
// does not survive a restart; it exists for local development and tests.
type MemoryProvider struct {
	mu         sync.Mutex
	cfg        *types.Config
	cfgVersion int
	outputs    map[types.OutputID]types.OutputState
}

// NewMemoryProvider returns an empty in-memory database.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{outputs: make(map[types.OutputID]types.OutputState)}
}

// GetConfig returns the stored configuration, or ErrConfigNotFound.
func (m *MemoryProvider) GetConfig(context.Context) (types.Config, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cfg == nil {
		return types.Config{}, 0, ErrConfigNotFound
	}
	return *m.cfg, m.cfgVersion, nil
}

// SetConfig stores the configuration.
func (m *MemoryProvider) SetConfig(_ context.Context, cfg types.Config, version int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = &cfg
	m.cfgVersion = version
	return nil
}

// UpsertOutputState stores the latest state of an output.
func (m *MemoryProvider) UpsertOutputState(_ context.Context, st types.OutputState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outputs[st.ID] = st
	return nil
}

// GetOutputState returns the stored state of an output, or nil.
func (m *MemoryProvider) GetOutputState(_ context.Context, id types.OutputID) (*types.OutputState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.outputs[id]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

// ListOutputStates returns every stored output state sorted by ID.
func (m *MemoryProvider) ListOutputStates(context.Context) ([]types.OutputState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	states := make([]types.OutputState, 0, len(m.outputs))
	for _, st := range m.outputs {
		states = append(states, st)
	}
	sort.Slice(states, func(i, j int) bool { return states[i].ID < states[j].ID })
	return states, nil
}

// DeleteOutputState removes the stored state of an output.
func (m *MemoryProvider) DeleteOutputState(_ context.Context, id types.OutputID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.outputs, id)
	return nil
}

// Close implements Database.
func (m *MemoryProvider) Close() error { return nil }
