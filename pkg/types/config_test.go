package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	valid := Config{
		Groups: []GroupConfig{
			{
				Name: "Kitchen",
				Members: []MemberConfig{
					{Name: "Fridge", SourcePair: SourcePair{Power: "sensor.fridge_power"}},
				},
				Upstream: &SourcePair{Energy: "sensor.mains_energy"},
			},
		},
	}
	require.NoError(t, valid.Validate())

	t.Run("duplicate group ids", func(t *testing.T) {
		c := valid
		c.Groups = append(c.Groups, GroupConfig{
			Name:    "kitchen",
			Members: []MemberConfig{{Name: "Oven", SourcePair: SourcePair{Power: "sensor.oven"}}},
		})
		assert.Error(t, c.Validate())
	})

	t.Run("member without sources", func(t *testing.T) {
		c := Config{
			Groups: []GroupConfig{
				{Name: "Office", Members: []MemberConfig{{Name: "Lamp"}}},
			},
		}
		assert.Error(t, c.Validate())
	})
}

func TestMigrateConfig(t *testing.T) {
	c, changed, err := MigrateConfig(Config{}, 0)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, 30*time.Second, c.RefreshInterval)
	assert.Equal(t, 10*time.Second, c.CostRefreshInterval)
	assert.Equal(t, "USD", c.Tariff.Currency)
	assert.Equal(t, "$", c.Tariff.CurrencySymbol)

	// already current
	_, changed, err = MigrateConfig(c, CurrentConfigVersion)
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestOutputIDs(t *testing.T) {
	g := &GroupConfig{Name: "Home Office"}
	assert.Equal(t, OutputID("home_office_power_total"), g.Output(OutputPowerTotal))

	g2 := &GroupConfig{ID: "abc123", Name: "Home Office"}
	assert.Equal(t, OutputID("abc123_energy_total"), g2.Output(OutputEnergyTotal))

	m := &MemberConfig{ID: "dev-1"}
	assert.Equal(t, OutputID("dev-1_total_cost"), m.Output(OutputTotalCost))
}

func TestReadingUnits(t *testing.T) {
	assert.Equal(t, 1.5, Reading{Value: 1500, Unit: UnitWattHour, Available: true}.KilowattHours())
	assert.Equal(t, 1.5, Reading{Value: 1.5, Unit: UnitKilowattHour, Available: true}.KilowattHours())
	assert.Equal(t, 1.5, Reading{Value: 1.5, Available: true}.KilowattHours())

	assert.Equal(t, 2.0, Reading{Value: 2000, Unit: UnitWatt, Available: true}.Kilowatts())
	assert.Equal(t, 2.0, Reading{Value: 2, Unit: UnitKilowatt, Available: true}.Kilowatts())
}
