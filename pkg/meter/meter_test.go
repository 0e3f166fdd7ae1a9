package meter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phantomwatt/phantomwatt/pkg/types"
)

func kwh(v float64) types.Reading {
	return types.Reading{Value: v, Unit: types.UnitKilowattHour, Available: true}
}

func TestMeterBaseline(t *testing.T) {
	m := NewMeter(PolicyAbsolute)
	assert.Zero(t, m.Update(kwh(10)))
	require.NotNil(t, m.LastRaw())
	assert.Equal(t, 10.0, *m.LastRaw())
	assert.True(t, m.Available())
}

func TestMeterMonotonicity(t *testing.T) {
	for _, policy := range []ResetPolicy{PolicyAbsolute, PolicyRebaseline} {
		m := NewMeter(policy)
		prev := 0.0
		for _, v := range []float64{5, 5.5, 5.5, 7, 2, 2.1, 100, 0.5, 3} {
			total := m.Update(kwh(v))
			assert.GreaterOrEqual(t, total, prev, "policy %d: total decreased on reading %v", policy, v)
			prev = total
		}
	}
}

func TestMeterResetAbsorptionPolicyAbsolute(t *testing.T) {
	m := NewMeter(PolicyAbsolute)
	readings := []float64{10, 15, 3, 8}
	want := []float64{0, 5, 8, 13}
	for i, v := range readings {
		assert.InDelta(t, want[i], m.Update(kwh(v)), 1e-9, "after reading %v", v)
	}

	t.Run("large decrease", func(t *testing.T) {
		m := NewMeter(PolicyAbsolute)
		m.Update(kwh(1000))
		m.Update(kwh(1050)) // +50
		got := m.Update(kwh(2))
		assert.InDelta(t, 52.0, got, 1e-9)
	})
}

func TestMeterResetAbsorptionPolicyRebaseline(t *testing.T) {
	m := NewMeter(PolicyRebaseline)
	m.Update(kwh(10))
	m.Update(kwh(15)) // +5

	// small decrease: nothing added, baseline moves
	assert.InDelta(t, 5.0, m.Update(kwh(14)), 1e-9)
	assert.InDelta(t, 6.0, m.Update(kwh(15)), 1e-9)

	// large decrease
	assert.InDelta(t, 6.0, m.Update(kwh(1)), 1e-9)
	assert.InDelta(t, 7.0, m.Update(kwh(2)), 1e-9)
}

func TestMeterUnavailableFreezes(t *testing.T) {
	m := NewMeter(PolicyAbsolute)
	m.Update(kwh(10))
	m.Update(kwh(12))

	total := m.Update(types.Unavailable())
	assert.InDelta(t, 2.0, total, 1e-9)
	assert.False(t, m.Available())

	// source comes back with a higher value: normal delta
	assert.InDelta(t, 3.0, m.Update(kwh(13)), 1e-9)
	assert.True(t, m.Available())
}

func TestMeterUnitConversion(t *testing.T) {
	m := NewMeter(PolicyAbsolute)
	m.Update(types.Reading{Value: 10000, Unit: types.UnitWattHour, Available: true})
	total := m.Update(types.Reading{Value: 12500, Unit: types.UnitWattHour, Available: true})
	assert.InDelta(t, 2.5, total, 1e-9)
}

func TestMeterReset(t *testing.T) {
	m := NewMeter(PolicyAbsolute)
	m.Update(kwh(10))
	m.Update(kwh(15))
	require.InDelta(t, 5.0, m.Total(), 1e-9)

	m.Reset(kwh(15))
	assert.Zero(t, m.Total())
	require.NotNil(t, m.LastRaw())
	assert.Equal(t, 15.0, *m.LastRaw())

	// consumption resumes from the new baseline
	assert.InDelta(t, 1.0, m.Update(kwh(16)), 1e-9)

	t.Run("reset with unavailable source clears baseline", func(t *testing.T) {
		m := NewMeter(PolicyAbsolute)
		m.Update(kwh(10))
		m.Reset(types.Unavailable())
		assert.Nil(t, m.LastRaw())
		// next reading is baseline only again
		assert.Zero(t, m.Update(kwh(20)))
	})
}

func TestMeterRestoreRoundTrip(t *testing.T) {
	live := NewMeter(PolicyAbsolute)
	live.Update(kwh(100))
	live.Update(kwh(104.5))

	restored := RestoreMeter(PolicyAbsolute, live.Total(), live.LastRaw())

	for _, v := range []float64{105, 107.25, 3, 4} {
		assert.InDelta(t, live.Update(kwh(v)), restored.Update(kwh(v)), 1e-9,
			"restored meter diverged at reading %v", v)
	}
}

func TestSum(t *testing.T) {
	t.Run("power in watts", func(t *testing.T) {
		total, ok := SumPowerWatts([]types.Reading{
			{Value: 100, Unit: types.UnitWatt, Available: true},
			{Value: 0.5, Unit: types.UnitKilowatt, Available: true},
			{Available: false},
		})
		require.True(t, ok)
		assert.InDelta(t, 600.0, total, 1e-9)
	})

	t.Run("energy in kwh", func(t *testing.T) {
		total, ok := SumEnergyKWH([]types.Reading{
			{Value: 2000, Unit: types.UnitWattHour, Available: true},
			{Value: 1.5, Unit: types.UnitKilowattHour, Available: true},
		})
		require.True(t, ok)
		assert.InDelta(t, 3.5, total, 1e-9)
	})

	t.Run("all unavailable", func(t *testing.T) {
		total, ok := SumPowerWatts([]types.Reading{{Available: false}, {Available: false}})
		assert.False(t, ok)
		assert.Zero(t, total)
	})

	t.Run("empty", func(t *testing.T) {
		_, ok := SumPowerWatts(nil)
		assert.False(t, ok)
	})
}
