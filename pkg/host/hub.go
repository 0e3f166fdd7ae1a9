package host

import (
	"sync"
	"time"

	"github.com/phantomwatt/phantomwatt/pkg/types"
)

// Hub is an in-memory Values+Notifier backed by pushed readings. The HTTP
// ingest endpoint feeds it via Set; the engine subscribes via OnChange.
type Hub struct {
	mu       sync.Mutex
	latest   map[types.SourceID]types.Reading
	nextSub  int
	subs     map[int]*subscription
	bySource map[types.SourceID]map[int]struct{}
}

type subscription struct {
	fn func(types.SourceID, types.Reading)
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{
		latest:   make(map[types.SourceID]types.Reading),
		subs:     make(map[int]*subscription),
		bySource: make(map[types.SourceID]map[int]struct{}),
	}
}

// Set records the latest reading for a source and notifies subscribers.
// Callbacks run on the caller's goroutine, after the internal lock is
// released, so a callback may call back into the Hub.
func (h *Hub) Set(id types.SourceID, r types.Reading) {
	h.mu.Lock()
	h.latest[id] = r
	var fns []func(types.SourceID, types.Reading)
	for sub := range h.bySource[id] {
		if s, ok := h.subs[sub]; ok {
			fns = append(fns, s.fn)
		}
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(id, r)
	}
}

// SetUnavailable marks a source as known but currently unavailable.
func (h *Hub) SetUnavailable(id types.SourceID) {
	h.Set(id, types.Unavailable())
}

// Get implements Values.
func (h *Hub) Get(id types.SourceID) (types.Reading, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.latest[id]
	return r, ok
}

// Sources returns the IDs of all sources that have ever reported.
func (h *Hub) Sources() []types.SourceID {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]types.SourceID, 0, len(h.latest))
	for id := range h.latest {
		ids = append(ids, id)
	}
	return ids
}

// OnChange implements Notifier. The cancel func may be called more than once.
func (h *Hub) OnChange(ids []types.SourceID, fn func(types.SourceID, types.Reading)) (cancel func()) {
	h.mu.Lock()
	sub := h.nextSub
	h.nextSub++
	h.subs[sub] = &subscription{fn: fn}
	for _, id := range ids {
		m := h.bySource[id]
		if m == nil {
			m = make(map[int]struct{})
			h.bySource[id] = m
		}
		m[sub] = struct{}{}
	}
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs, sub)
		for _, id := range ids {
			delete(h.bySource[id], sub)
		}
	}
}

// TickerScheduler implements Scheduler on real time.Ticker timers.
type TickerScheduler struct{}

// Every implements Scheduler.
func (TickerScheduler) Every(d time.Duration, fn func(now time.Time)) (cancel func()) {
	t := time.NewTicker(d)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case now := <-t.C:
				fn(now)
			case <-done:
				return
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			t.Stop()
			close(done)
		})
	}
}
