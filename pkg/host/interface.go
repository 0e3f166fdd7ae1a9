// Package host defines the boundary between the metering engine and the
// surrounding system that owns source readings, timers, and persisted output
// state. The engine only ever talks to these interfaces; the in-memory Hub
// and the ticker Scheduler in this package back the HTTP deployment, and the
// storage package provides the persistence half.
package host

import (
	"context"
	"time"

	"github.com/phantomwatt/phantomwatt/pkg/types"
)

// Values provides synchronous access to the latest reading of a source.
type Values interface {
	// Get returns the latest reading for the source and whether the source
	// is known at all. An unknown source is distinct from a known source
	// that is currently unavailable.
	Get(id types.SourceID) (types.Reading, bool)
}

// Notifier delivers source change events.
type Notifier interface {
	// OnChange registers fn to be called whenever any of the given sources
	// changes. The returned cancel func deregisters the subscription; after
	// it returns, fn is never called again.
	OnChange(ids []types.SourceID, fn func(types.SourceID, types.Reading)) (cancel func())
}

// Scheduler provides periodic callbacks.
type Scheduler interface {
	// Every calls fn roughly every d until the returned cancel func is
	// called.
	Every(d time.Duration, fn func(now time.Time)) (cancel func())
}

// Publisher receives output state whenever an output changes.
type Publisher interface {
	// Publish announces the new state of an output. Implementations must
	// not block on the caller's goroutine for long.
	Publish(ctx context.Context, out types.OutputState) error
}

// Restorer loads the last persisted state of an output.
type Restorer interface {
	// LoadLast returns the last persisted state for the output, or nil when
	// nothing was persisted. Errors are for storage failures only; absent
	// state is (nil, nil).
	LoadLast(ctx context.Context, id types.OutputID) (*types.OutputState, error)
}
