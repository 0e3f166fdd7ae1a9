package meter

// Remainder accumulates the portion by which an upstream cumulative total has
// grown faster than a group cumulative total: the consumption (or cost) seen
// by the reference meter but not attributed to any tracked member. Negative
// deltas are never subtracted, so the ledger cannot shrink from normal
// updates; it only shrinks via the sanity clamp or Reset.
//
// Both inputs must already be monotonic series (Meter totals or CostLedger
// totals). A decrease in either input is treated as an upstream reset: the
// cycle rebaselines without accumulating.
type Remainder struct {
	accumulated  float64
	lastUpstream *float64
	lastGroup    *float64

	// allowNegative disables the floor-at-zero on the sanity clamp. The
	// cost-denominated ledger reports over-allocation as a negative value;
	// the energy ledger never goes below zero. This asymmetry is deliberate.
	allowNegative bool
}

// NewRemainder returns an empty energy-denominated remainder ledger.
func NewRemainder() *Remainder {
	return &Remainder{}
}

// NewCostRemainder returns an empty cost-denominated remainder ledger, which
// may report negative values when the group total overtakes upstream.
func NewCostRemainder() *Remainder {
	return &Remainder{allowNegative: true}
}

// RestoreRemainder rebuilds a ledger from persisted state.
func RestoreRemainder(accumulated float64, lastUpstream, lastGroup *float64, allowNegative bool) *Remainder {
	l := &Remainder{accumulated: accumulated, allowNegative: allowNegative}
	if lastUpstream != nil {
		v := *lastUpstream
		l.lastUpstream = &v
	}
	if lastGroup != nil {
		v := *lastGroup
		l.lastGroup = &v
	}
	return l
}

// Update consumes a joint reading of both totals and returns the accumulated
// remainder. The first joint reading establishes baselines without
// accumulating, so historical consumption present at startup is not credited
// as untracked.
func (l *Remainder) Update(upstream, group float64) float64 {
	if l.lastUpstream == nil || l.lastGroup == nil {
		l.rebaseline(upstream, group)
		return l.accumulated
	}

	du := upstream - *l.lastUpstream
	dg := group - *l.lastGroup

	switch {
	case du < -epsilon || dg < -epsilon:
		// a meter reset somewhere in the chain: skip this cycle
	case du > epsilon || dg > epsilon:
		if dr := du - dg; dr > 0 {
			l.accumulated += dr
		}
	}

	l.rebaseline(upstream, group)

	// The running ledger must never exceed what the instantaneous totals
	// justify. Drift above the gap can follow a restart with stale
	// persisted state; clamp back down rather than carrying the error.
	if gap := upstream - group; l.accumulated > gap {
		if gap < 0 && !l.allowNegative {
			gap = 0
		}
		l.accumulated = gap
	}

	return l.accumulated
}

func (l *Remainder) rebaseline(upstream, group float64) {
	u, g := upstream, group
	l.lastUpstream = &u
	l.lastGroup = &g
}

// Reset zeroes the accumulated remainder. Baselines are retained on purpose:
// tracking continues from the current instantaneous gap instead of
// re-crediting it on the next update.
func (l *Remainder) Reset() {
	l.accumulated = 0
}

// Accumulated returns the accumulated remainder.
func (l *Remainder) Accumulated() float64 { return l.accumulated }

// LastUpstream returns the upstream baseline, or nil before the first joint
// reading.
func (l *Remainder) LastUpstream() *float64 { return copyPtr(l.lastUpstream) }

// LastGroup returns the group baseline, or nil before the first joint
// reading.
func (l *Remainder) LastGroup() *float64 { return copyPtr(l.lastGroup) }

func copyPtr(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
