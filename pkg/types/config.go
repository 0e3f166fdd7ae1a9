package types

import (
	"fmt"
	"strings"
	"time"
)

// CurrentConfigVersion is the current version of the deployment config.
// Increment when adding fields that require default values.
const CurrentConfigVersion = 3

// Config is the dynamic deployment configuration: which sources form which
// groups, and the tariff applied to their consumption.
type Config struct {
	Groups []GroupConfig `json:"groups"`
	Tariff Tariff        `json:"tariff"`

	// RefreshInterval forces a recompute/publish of every output even when
	// no source changed, so downstream displays never go stale.
	RefreshInterval time.Duration `json:"refreshInterval,omitempty"`

	// CostRefreshInterval is the (typically shorter) forced refresh for cost
	// outputs; it also drives rate-boundary catch-up estimation.
	CostRefreshInterval time.Duration `json:"costRefreshInterval,omitempty"`
}

// GroupConfig names a collection of member sources optionally reconciled
// against an upstream pair of sources.
type GroupConfig struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Members  []MemberConfig `json:"members"`
	Upstream *SourcePair    `json:"upstream,omitempty"`
}

// MemberConfig is one tracked device inside a group.
type MemberConfig struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	SourcePair
}

// SourcePair holds the instantaneous-power and cumulative-energy sources for
// one metered point. Either may be empty when the point only reports one.
type SourcePair struct {
	Power  SourceID `json:"power,omitempty"`
	Energy SourceID `json:"energy,omitempty"`
}

// SanitizeName lowercases a display name for use in output identifiers.
func SanitizeName(name string) string {
	return strings.ToLower(strings.NewReplacer(" ", "_", "-", "_").Replace(name))
}

// Output derives the OutputID for a group-level output kind.
func (g *GroupConfig) Output(kind OutputKind) OutputID {
	id := g.ID
	if id == "" {
		id = SanitizeName(g.Name)
	}
	return OutputID(id + "_" + string(kind))
}

// Output derives the OutputID for a member-level output kind.
func (m *MemberConfig) Output(kind OutputKind) OutputID {
	id := m.ID
	if id == "" {
		id = SanitizeName(m.Name)
	}
	return OutputID(id + "_" + string(kind))
}

// Validate checks structural problems that prevent the engine from running.
func (c *Config) Validate() error {
	seen := map[string]bool{}
	for i, g := range c.Groups {
		if g.Name == "" {
			return fmt.Errorf("group %d missing name", i)
		}
		key := g.ID
		if key == "" {
			key = SanitizeName(g.Name)
		}
		if seen[key] {
			return fmt.Errorf("duplicate group id %q", key)
		}
		seen[key] = true
		for j, m := range g.Members {
			if m.Name == "" {
				return fmt.Errorf("group %q member %d missing name", g.Name, j)
			}
			if m.Power == "" && m.Energy == "" {
				return fmt.Errorf("group %q member %q has no sources", g.Name, m.Name)
			}
		}
	}
	return nil
}

// MigrateConfig migrates a stored config to the current version. It returns
// the migrated config, whether anything changed, and an error when a version
// is unknown.
func MigrateConfig(c Config, currentVersion int) (Config, bool, error) {
	if currentVersion >= CurrentConfigVersion {
		return c, false, nil
	}

	migrated := false
	for version := currentVersion + 1; version <= CurrentConfigVersion; version++ {
		switch version {
		case 1:
			// version 1: initial
		case 2:
			// version 2: add forced refresh intervals
			if c.RefreshInterval == 0 {
				c.RefreshInterval = 30 * time.Second
				migrated = true
			}
			if c.CostRefreshInterval == 0 {
				c.CostRefreshInterval = 10 * time.Second
				migrated = true
			}
		case 3:
			// version 3: default currency
			if c.Tariff.Currency == "" {
				c.Tariff.Currency = "USD"
				migrated = true
			}
			if c.Tariff.CurrencySymbol == "" {
				c.Tariff.CurrencySymbol = "$"
				migrated = true
			}
		default:
			return c, false, fmt.Errorf("unknown config version: %d", version)
		}
	}

	return c, migrated, nil
}
