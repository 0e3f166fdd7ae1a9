package engine

import (
	"context"

	"github.com/phantomwatt/phantomwatt/pkg/meter"
	"github.com/phantomwatt/phantomwatt/pkg/types"
)

// meterSeries tracks a set of raw sources through private monotonic meters
// and exposes their summed total. Cost and remainder ledgers consume this
// series instead of raw source sums: an unavailable source freezes its meter
// rather than dropping out of the sum, and a raw meter reset absorbs through
// the reset policy rather than appearing as a huge negative delta.
type meterSeries struct {
	sources  []types.SourceID
	seedFrom []types.OutputID
	meters   []*meter.Meter
}

// newMeterSeries builds a series over the given sources. seedFrom names, per
// source, the published meter output whose persisted state restores the
// private meter; it must be parallel to sources.
func newMeterSeries(sources []types.SourceID, seedFrom []types.OutputID) *meterSeries {
	s := &meterSeries{
		sources:  sources,
		seedFrom: seedFrom,
		meters:   make([]*meter.Meter, len(sources)),
	}
	for i := range s.meters {
		s.meters[i] = meter.NewMeter(meter.PolicyAbsolute)
	}
	return s
}

// restore rebuilds each private meter from the matching published meter
// output's persisted state, so the summed series continues across restarts
// instead of collapsing to zero. Missing or invalid state leaves that meter
// fresh.
func (s *meterSeries) restore(ctx context.Context, e *Engine) {
	for i, id := range s.seedFrom {
		if id == "" {
			continue
		}
		st, err := e.deps.Restorer.LoadLast(ctx, id)
		if err != nil || st == nil {
			continue
		}
		migrated, _, err := types.MigrateOutputState(*st, st.Version)
		if err != nil {
			continue
		}
		s.meters[i] = meter.RestoreMeter(meter.PolicyAbsolute, migrated.Value, migrated.Attributes.LastRaw)
	}
}

// update consumes the latest reading of every source and returns the summed
// monotonic total plus whether any source is currently available.
func (s *meterSeries) update(e *Engine) (float64, bool) {
	var total float64
	var any bool
	for i, src := range s.sources {
		total += s.meters[i].Update(e.read(src))
		any = any || s.meters[i].Available()
	}
	return total, any
}

// total returns the summed total without consuming new readings.
func (s *meterSeries) total() float64 {
	var t float64
	for _, m := range s.meters {
		t += m.Total()
	}
	return t
}
