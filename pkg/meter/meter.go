// Package meter holds the stateful accumulation core: monotonic consumption
// meters, group sums, remainder reconciliation ledgers and cost ledgers. All
// types here are plain state machines with no I/O; the engine package owns
// scheduling, availability publication and persistence.
package meter

import (
	"github.com/phantomwatt/phantomwatt/pkg/types"
)

// epsilon is the smallest delta treated as real movement. Anything inside
// ±epsilon is noise from float round-tripping through the host's encoding.
const epsilon = 1e-6

// ResetPolicy selects how a Meter absorbs a reading that is lower than the
// previous one. The two policies existed side by side in earlier versions of
// this tracker; which one is "more correct" for real meters was never
// settled, so the choice is explicit per instantiation.
//
// TODO: revisit PolicyAbsolute vs PolicyRebaseline against observed behavior
// of meters that roll over rather than reset to zero.
type ResetPolicy int

const (
	// PolicyAbsolute treats the post-reset reading itself as consumption:
	// a drop from 15 to 3 adds 3. Appropriate for raw meters that reset to
	// zero, where the new reading is consumption since the reset.
	PolicyAbsolute ResetPolicy = iota

	// PolicyRebaseline shifts the baseline to the new reading without
	// adding consumption, preserving the pre-reset total. Appropriate for
	// counters chained on top of another accumulator, where a drop means
	// the upstream counter was reset by hand.
	PolicyRebaseline
)

// Meter converts a stream of possibly discontinuous cumulative readings into
// a monotonically increasing consumed-since-start total in kWh. The total
// never decreases except through Reset.
type Meter struct {
	policy    ResetPolicy
	total     float64
	lastRaw   *float64
	available bool
}

// NewMeter returns an empty meter using the given reset policy.
func NewMeter(policy ResetPolicy) *Meter {
	return &Meter{policy: policy}
}

// RestoreMeter rebuilds a meter from persisted state. lastRaw may be nil when
// the persisted attributes predate the first successful reading.
func RestoreMeter(policy ResetPolicy, total float64, lastRaw *float64) *Meter {
	m := &Meter{policy: policy, total: total}
	if lastRaw != nil {
		v := *lastRaw
		m.lastRaw = &v
	}
	return m
}

// Update consumes one reading and returns the running total. An unavailable
// reading freezes the total and clears availability. The first available
// reading only establishes the baseline.
func (m *Meter) Update(r types.Reading) float64 {
	if !r.Available {
		m.available = false
		return m.total
	}

	v := r.KilowattHours()
	switch {
	case m.lastRaw == nil:
		// baseline only
	case v >= *m.lastRaw-epsilon:
		// decreases inside epsilon are encoding noise, not a reset
		if d := v - *m.lastRaw; d > 0 {
			m.total += d
		}
	default:
		// reset or rollover detected
		if m.policy == PolicyAbsolute {
			m.total += v
		}
	}

	m.lastRaw = &v
	m.available = true
	return m.total
}

// Reset zeroes the total and baselines against the current source reading so
// tracking resumes from here. The source itself is untouched.
func (m *Meter) Reset(current types.Reading) {
	m.total = 0
	m.lastRaw = nil
	if current.Available {
		v := current.KilowattHours()
		m.lastRaw = &v
	}
}

// Total returns the accumulated consumption in kWh.
func (m *Meter) Total() float64 { return m.total }

// LastRaw returns the last raw reading seen (normalized to kWh), or nil
// before the first successful reading.
func (m *Meter) LastRaw() *float64 {
	if m.lastRaw == nil {
		return nil
	}
	v := *m.lastRaw
	return &v
}

// Available reports whether the most recent update had an available source.
func (m *Meter) Available() bool { return m.available }
