package types

// SourceID identifies one externally supplied measurement value stream.
type SourceID string

// OutputID identifies one published output.
type OutputID string

// Unit is the unit of measurement a source reports in.
type Unit string

const (
	UnitWatt         Unit = "W"
	UnitKilowatt     Unit = "kW"
	UnitWattHour     Unit = "Wh"
	UnitKilowattHour Unit = "kWh"
)

// Reading is a single sampled value from a measurement source.
// Available is false when the source is missing or reports an
// unknown/unavailable state; Value is meaningless in that case.
type Reading struct {
	Value     float64 `json:"value"`
	Unit      Unit    `json:"unit,omitempty"`
	Available bool    `json:"available"`
}

// Unavailable returns a reading representing a missing source.
func Unavailable() Reading {
	return Reading{}
}

// KilowattHours normalizes an energy reading to kWh. Sources reporting in Wh
// are scaled down; readings already in kWh (or with no declared unit, the
// working default) pass through unchanged.
func (r Reading) KilowattHours() float64 {
	if r.Unit == UnitWattHour {
		return r.Value / 1000
	}
	return r.Value
}

// Kilowatts normalizes a power reading to kW. Sources reporting in W are
// scaled down; readings already in kW pass through unchanged.
func (r Reading) Kilowatts() float64 {
	if r.Unit == UnitKilowatt {
		return r.Value
	}
	return r.Value / 1000
}
