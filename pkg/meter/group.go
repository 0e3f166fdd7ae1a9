package meter

import (
	"github.com/phantomwatt/phantomwatt/pkg/types"
)

// Sum adds the available readings after normalizing each with norm, and
// reports whether any member was available. The group output is available
// when at least one member is; unavailable members contribute nothing.
func Sum(readings []types.Reading, norm func(types.Reading) float64) (float64, bool) {
	var total float64
	var any bool
	for _, r := range readings {
		if !r.Available {
			continue
		}
		any = true
		if norm != nil {
			total += norm(r)
		} else {
			total += r.Value
		}
	}
	return total, any
}

// SumPowerWatts sums power readings into a group total in watts.
func SumPowerWatts(readings []types.Reading) (float64, bool) {
	return Sum(readings, func(r types.Reading) float64 { return r.Kilowatts() * 1000 })
}

// SumEnergyKWH sums energy readings into a group total in kWh.
func SumEnergyKWH(readings []types.Reading) (float64, bool) {
	return Sum(readings, func(r types.Reading) float64 { return r.KilowattHours() })
}
