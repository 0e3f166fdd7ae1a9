package meter

import (
	"time"
)

// CostLedger converts a monotonic energy series plus a resolved rate into an
// accumulated monetary total. Deltas are priced at the rate in effect when
// the delta is observed; the rate-boundary catch-up in RateCatchUp covers
// consumption that happened before a rate change but had not yet shown up as
// a meter delta.
type CostLedger struct {
	totalCost  float64
	lastEnergy *float64
	lastRate   *float64
	lastRateAt *time.Time
}

// NewCostLedger returns an empty cost ledger.
func NewCostLedger() *CostLedger {
	return &CostLedger{}
}

// RestoreCostLedger rebuilds a ledger from persisted state. Any of the
// pointer arguments may be nil.
func RestoreCostLedger(totalCost float64, lastEnergy, lastRate *float64, lastRateAt *time.Time) *CostLedger {
	l := &CostLedger{totalCost: totalCost}
	l.lastEnergy = copyPtr(lastEnergy)
	l.lastRate = copyPtr(lastRate)
	if lastRateAt != nil {
		t := *lastRateAt
		l.lastRateAt = &t
	}
	return l
}

// Update consumes a cumulative energy reading (kWh) with the rate resolved
// for now, and returns the running cost total. The first reading only
// establishes the baseline. A decreased reading means the upstream meter was
// reset: no cost is added for that transition, the baseline just moves.
func (l *CostLedger) Update(energyKWH, rate float64, now time.Time) float64 {
	if l.lastEnergy == nil {
		l.lastEnergy = &energyKWH
		l.noteRate(rate, now)
		return l.totalCost
	}

	de := energyKWH - *l.lastEnergy
	switch {
	case de > epsilon:
		l.totalCost += de * rate
		l.noteRate(rate, now)
	case de < -epsilon:
		// meter reset: rebaseline without charging for the drop
	}

	e := energyKWH
	l.lastEnergy = &e
	return l.totalCost
}

// RateCatchUp handles the periodic forced refresh across a rate boundary.
// When the meter has not moved since the last update but the resolved rate
// differs from the one last seen, the energy consumed during the elapsed
// interval is estimated from the companion instantaneous power reading
// (power_kw x elapsed_hours) and priced at the previously active rate, since
// that consumption happened before the boundary. The estimate assumes power
// was constant over the interval; changing that assumption would alter
// historical cost figures, so it is kept as-is.
//
// It returns the running cost total and records the new rate/time for the
// next boundary.
func (l *CostLedger) RateCatchUp(energyKWH, powerKW, rate float64, now time.Time) float64 {
	if l.lastRate != nil && l.lastRateAt != nil && l.lastEnergy != nil &&
		rate != *l.lastRate && powerKW > 0 {
		flat := energyKWH-*l.lastEnergy < epsilon && energyKWH-*l.lastEnergy > -epsilon
		if flat {
			elapsed := now.Sub(*l.lastRateAt).Hours()
			if elapsed > 0 {
				estimated := powerKW * elapsed
				l.totalCost += estimated * *l.lastRate
			}
		}
	}
	l.noteRate(rate, now)
	return l.totalCost
}

func (l *CostLedger) noteRate(rate float64, now time.Time) {
	r := rate
	t := now
	l.lastRate = &r
	l.lastRateAt = &t
}

// Reset zeroes the cost total and rebaselines against the given current
// energy reading (nil when the source is unavailable) so tracking resumes
// cleanly.
func (l *CostLedger) Reset(currentEnergyKWH *float64) {
	l.totalCost = 0
	l.lastEnergy = copyPtr(currentEnergyKWH)
}

// TotalCost returns the accumulated cost.
func (l *CostLedger) TotalCost() float64 { return l.totalCost }

// LastEnergy returns the energy baseline, or nil before the first reading.
func (l *CostLedger) LastEnergy() *float64 { return copyPtr(l.lastEnergy) }

// LastRate returns the rate recorded at the last accumulation, or nil.
func (l *CostLedger) LastRate() *float64 { return copyPtr(l.lastRate) }

// LastRateAt returns when the last rate was recorded, or nil.
func (l *CostLedger) LastRateAt() *time.Time {
	if l.lastRateAt == nil {
		return nil
	}
	t := *l.lastRateAt
	return &t
}
