package types

import (
	"fmt"
	"time"
)

// CurrentStateVersion is the current version of the persisted output state
// schema. Increment when adding attribute fields that need backfilling.
const CurrentStateVersion = 2

// OutputKind classifies what an output publishes.
type OutputKind string

const (
	OutputPowerTotal    OutputKind = "power_total"
	OutputMemberPower   OutputKind = "power"
	OutputEnergyTotal   OutputKind = "energy_total"
	OutputEnergyMeter   OutputKind = "energy_meter"
	OutputUpstreamPower OutputKind = "upstream_power"
	OutputUpstreamMeter OutputKind = "upstream_energy_meter"
	OutputEnergyRemain  OutputKind = "energy_remainder"
	OutputTotalCost     OutputKind = "total_cost"
	OutputGroupCost     OutputKind = "group_total_cost"
	OutputUpstreamCost  OutputKind = "upstream_total_cost"
	OutputCostRemain    OutputKind = "cost_remainder"
	OutputHourlyCost    OutputKind = "hourly_cost"
	OutputCurrentRate   OutputKind = "current_rate"
)

// Attributes is the explicit diagnostic/restore schema attached to every
// published output state. Pointer fields are omitted when not applicable to
// the output kind; restoration only reads the fields its ledger declares.
type Attributes struct {
	// Monotonic meters
	LastRaw *float64 `json:"lastRaw,omitempty"`

	// Remainder ledgers
	LastUpstream *float64 `json:"lastUpstream,omitempty"`
	LastGroup    *float64 `json:"lastGroup,omitempty"`

	// Cost ledgers
	LastEnergy *float64   `json:"lastEnergy,omitempty"`
	LastRate   *float64   `json:"lastRate,omitempty"`
	LastRateAt *time.Time `json:"lastRateAt,omitempty"`

	// Diagnostics (not read back on restore)
	Source         SourceID `json:"source,omitempty"`
	Rate           float64  `json:"rate,omitempty"`
	Period         string   `json:"period,omitempty"`
	Unit           string   `json:"unit,omitempty"`
	CurrencySymbol string   `json:"currencySymbol,omitempty"`
}

// OutputState is one published value plus its restore/diagnostic attributes.
type OutputState struct {
	ID         OutputID   `json:"id"`
	Kind       OutputKind `json:"kind"`
	Value      float64    `json:"value"`
	Available  bool       `json:"available"`
	Version    int        `json:"version"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	Attributes Attributes `json:"attributes"`
}

// MigrateOutputState migrates a restored state to the current schema version.
// It returns the migrated state, whether anything changed, and an error for
// versions newer than this build understands.
func MigrateOutputState(s OutputState, version int) (OutputState, bool, error) {
	if version > CurrentStateVersion {
		return s, false, fmt.Errorf("state version %d is newer than supported %d", version, CurrentStateVersion)
	}
	if version == CurrentStateVersion {
		return s, false, nil
	}

	migrated := false
	for v := version + 1; v <= CurrentStateVersion; v++ {
		switch v {
		case 1:
			// version 1: initial schema
		case 2:
			// version 2: lastEnergy split out of lastRaw for cost ledgers
			if s.Kind == OutputTotalCost || s.Kind == OutputUpstreamCost {
				if s.Attributes.LastEnergy == nil && s.Attributes.LastRaw != nil {
					s.Attributes.LastEnergy = s.Attributes.LastRaw
					s.Attributes.LastRaw = nil
					migrated = true
				}
			}
		default:
			return s, false, fmt.Errorf("unknown state version: %d", v)
		}
	}
	s.Version = CurrentStateVersion
	return s, migrated, nil
}
