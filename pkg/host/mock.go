package host

import (
	"context"
	"sync"
	"time"

	"github.com/phantomwatt/phantomwatt/pkg/types"
)

// MockScheduler implements Scheduler with manually fired ticks for tests.
type MockScheduler struct {
	mu    sync.Mutex
	next  int
	ticks map[int]func(now time.Time)
}

// NewMockScheduler returns an empty MockScheduler.
func NewMockScheduler() *MockScheduler {
	return &MockScheduler{ticks: make(map[int]func(now time.Time))}
}

// Every implements Scheduler. Nothing fires until Fire is called.
func (s *MockScheduler) Every(_ time.Duration, fn func(now time.Time)) (cancel func()) {
	s.mu.Lock()
	id := s.next
	s.next++
	s.ticks[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.ticks, id)
	}
}

// Fire synchronously invokes every registered callback with the given time.
func (s *MockScheduler) Fire(now time.Time) {
	s.mu.Lock()
	fns := make([]func(time.Time), 0, len(s.ticks))
	for _, fn := range s.ticks {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(now)
	}
}

// Active returns how many periodic callbacks are currently registered.
func (s *MockScheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ticks)
}

// MockPublisher implements Publisher by recording everything published.
type MockPublisher struct {
	mu        sync.Mutex
	published []types.OutputState
}

// NewMockPublisher returns an empty MockPublisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

// Publish implements Publisher.
func (p *MockPublisher) Publish(_ context.Context, out types.OutputState) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, out)
	return nil
}

// All returns a copy of everything published so far, in order.
func (p *MockPublisher) All() []types.OutputState {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]types.OutputState, len(p.published))
	copy(out, p.published)
	return out
}

// Last returns the most recent state published for the given output, or nil.
func (p *MockPublisher) Last(id types.OutputID) *types.OutputState {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.published) - 1; i >= 0; i-- {
		if p.published[i].ID == id {
			out := p.published[i]
			return &out
		}
	}
	return nil
}

// Reset drops everything recorded so far.
func (p *MockPublisher) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = nil
}

// MockRestorer implements Restorer from a fixed map of persisted states.
type MockRestorer struct {
	mu     sync.Mutex
	states map[types.OutputID]types.OutputState
	err    error
}

// NewMockRestorer returns an empty MockRestorer.
func NewMockRestorer() *MockRestorer {
	return &MockRestorer{states: make(map[types.OutputID]types.OutputState)}
}

// Store sets the state LoadLast will return for the output.
func (r *MockRestorer) Store(out types.OutputState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[out.ID] = out
}

// Fail makes every subsequent LoadLast return err.
func (r *MockRestorer) Fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// LoadLast implements Restorer.
func (r *MockRestorer) LoadLast(_ context.Context, id types.OutputID) (*types.OutputState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	out, ok := r.states[id]
	if !ok {
		return nil, nil
	}
	return &out, nil
}
