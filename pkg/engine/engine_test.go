package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phantomwatt/phantomwatt/pkg/host"
	"github.com/phantomwatt/phantomwatt/pkg/tariff"
	"github.com/phantomwatt/phantomwatt/pkg/types"
)

type harness struct {
	eng   *Engine
	hub   *host.Hub
	sched *host.MockScheduler
	pub   *host.MockPublisher
	rest  *host.MockRestorer
}

func testConfig() types.Config {
	return types.Config{
		Groups: []types.GroupConfig{{
			ID:   "kitchen",
			Name: "Kitchen",
			Members: []types.MemberConfig{
				{ID: "oven", Name: "Oven", SourcePair: types.SourcePair{Power: "oven_w", Energy: "oven_kwh"}},
				{ID: "fridge", Name: "Fridge", SourcePair: types.SourcePair{Power: "fridge_w", Energy: "fridge_kwh"}},
			},
			Upstream: &types.SourcePair{Power: "mains_w", Energy: "mains_kwh"},
		}},
		Tariff: types.Tariff{
			Enabled:        true,
			Currency:       "USD",
			CurrencySymbol: "$",
			RateType:       types.RateTypeFlat,
			FlatRate:       0.25,
		},
		RefreshInterval:     time.Minute,
		CostRefreshInterval: time.Minute,
	}
}

func start(t *testing.T, cfg types.Config) *harness {
	t.Helper()
	h := &harness{
		hub:   host.NewHub(),
		sched: host.NewMockScheduler(),
		pub:   host.NewMockPublisher(),
		rest:  host.NewMockRestorer(),
	}
	eng, err := New(cfg, Deps{
		Values:    h.hub,
		Notifier:  h.hub,
		Scheduler: h.sched,
		Publisher: h.pub,
		Restorer:  h.rest,
		Rates:     tariff.NewResolver(cfg.Tariff),
	})
	require.NoError(t, err)
	h.eng = eng
	require.NoError(t, eng.Start(context.Background()))
	t.Cleanup(eng.Stop)
	return h
}

// waitFor polls the publisher until the output's last published state
// satisfies ok.
func (h *harness) waitFor(t *testing.T, id types.OutputID, ok func(types.OutputState) bool) types.OutputState {
	t.Helper()
	var st types.OutputState
	require.Eventually(t, func() bool {
		last := h.pub.Last(id)
		if last == nil || !ok(*last) {
			return false
		}
		st = *last
		return true
	}, 2*time.Second, 2*time.Millisecond, "output %s never reached expected state", id)
	return st
}

func kwh(v float64) types.Reading {
	return types.Reading{Value: v, Unit: types.UnitKilowattHour, Available: true}
}

func watts(v float64) types.Reading {
	return types.Reading{Value: v, Unit: types.UnitWatt, Available: true}
}

func TestEngineRegistry(t *testing.T) {
	h := start(t, testConfig())

	expected := []types.OutputID{
		"kitchen_power_total",
		"kitchen_energy_total",
		"oven_power", "oven_energy_meter", "oven_total_cost", "oven_hourly_cost",
		"fridge_power", "fridge_energy_meter", "fridge_total_cost", "fridge_hourly_cost",
		"kitchen_upstream_power", "kitchen_upstream_energy_meter",
		"kitchen_upstream_total_cost",
		"kitchen_group_total_cost", "kitchen_hourly_cost",
		"kitchen_energy_remainder", "kitchen_cost_remainder",
		"kitchen_current_rate",
	}
	require.Eventually(t, func() bool {
		return len(h.eng.Outputs()) == len(expected)
	}, 2*time.Second, 2*time.Millisecond)

	var got []types.OutputID
	for _, st := range h.eng.Outputs() {
		got = append(got, st.ID)
	}
	assert.ElementsMatch(t, expected, got)
}

func TestEngineNoCostOutputsWhenTariffDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Tariff = types.Tariff{}
	h := start(t, cfg)

	require.Eventually(t, func() bool {
		return len(h.eng.Outputs()) > 0
	}, 2*time.Second, 2*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	for _, st := range h.eng.Outputs() {
		switch st.Kind {
		case types.OutputTotalCost, types.OutputGroupCost, types.OutputUpstreamCost,
			types.OutputCostRemain, types.OutputHourlyCost, types.OutputCurrentRate:
			t.Fatalf("unexpected cost output %s with disabled tariff", st.ID)
		}
	}
}

func TestEnginePowerOutputs(t *testing.T) {
	h := start(t, testConfig())

	// before any reading the sources are unavailable
	h.waitFor(t, "kitchen_power_total", func(st types.OutputState) bool { return !st.Available })

	h.hub.Set("oven_w", watts(1000))
	h.hub.Set("fridge_w", types.Reading{Value: 0.5, Unit: types.UnitKilowatt, Available: true})

	st := h.waitFor(t, "kitchen_power_total", func(st types.OutputState) bool {
		return st.Available && st.Value == 1500
	})
	assert.Equal(t, "W", st.Attributes.Unit)

	st = h.waitFor(t, "oven_power", func(st types.OutputState) bool { return st.Available })
	assert.Equal(t, 1000.0, st.Value)
	assert.Equal(t, types.SourceID("oven_w"), st.Attributes.Source)
}

func TestEngineMeterAndTotals(t *testing.T) {
	h := start(t, testConfig())

	h.hub.Set("oven_kwh", kwh(10))
	h.hub.Set("fridge_kwh", kwh(5))
	h.waitFor(t, "kitchen_energy_total", func(st types.OutputState) bool { return st.Available })

	// both meters baseline first, then deltas accumulate
	h.hub.Set("oven_kwh", kwh(12))
	h.hub.Set("fridge_kwh", kwh(5.5))

	st := h.waitFor(t, "kitchen_energy_total", func(st types.OutputState) bool {
		return st.Value > 2.49 && st.Value < 2.51
	})
	assert.True(t, st.Available)

	st = h.waitFor(t, "oven_energy_meter", func(st types.OutputState) bool { return st.Value == 2 })
	require.NotNil(t, st.Attributes.LastRaw)
	assert.Equal(t, 12.0, *st.Attributes.LastRaw)
}

func TestEngineUpstreamPowerReportsZeroWhenMissing(t *testing.T) {
	h := start(t, testConfig())

	st := h.waitFor(t, "kitchen_upstream_power", func(st types.OutputState) bool { return st.Available })
	assert.Zero(t, st.Value)

	h.hub.Set("mains_w", watts(2000))
	h.waitFor(t, "kitchen_upstream_power", func(st types.OutputState) bool { return st.Value == 2000 })
}

func TestEngineCostOutput(t *testing.T) {
	h := start(t, testConfig())

	h.hub.Set("oven_kwh", kwh(10))
	h.waitFor(t, "oven_total_cost", func(st types.OutputState) bool { return st.Available })

	h.hub.Set("oven_kwh", kwh(14))
	st := h.waitFor(t, "oven_total_cost", func(st types.OutputState) bool {
		return st.Value > 0.99 && st.Value < 1.01
	})
	assert.Equal(t, 0.25, st.Attributes.Rate)
	assert.Equal(t, "flat", st.Attributes.Period)
	assert.Equal(t, "USD", st.Attributes.Unit)
	assert.Equal(t, "$", st.Attributes.CurrencySymbol)
}

func TestEngineGroupCostSurvivesMemberFlap(t *testing.T) {
	h := start(t, testConfig())

	h.hub.Set("oven_kwh", kwh(100))
	h.hub.Set("fridge_kwh", kwh(50))
	h.waitFor(t, "kitchen_group_total_cost", func(st types.OutputState) bool { return st.Available })

	h.hub.Set("oven_kwh", kwh(101))
	h.waitFor(t, "kitchen_group_total_cost", func(st types.OutputState) bool {
		return st.Value > 0.249 && st.Value < 0.251
	})

	// fridge drops out and comes back at its lifetime reading; its meter
	// freezes, so nothing is charged for the round trip
	before := h.pub.Last("kitchen_group_total_cost")
	require.NotNil(t, before)
	h.hub.SetUnavailable("fridge_kwh")
	h.waitFor(t, "kitchen_group_total_cost", func(st types.OutputState) bool {
		return st.UpdatedAt.After(before.UpdatedAt)
	})

	before = h.pub.Last("kitchen_group_total_cost")
	h.hub.Set("fridge_kwh", kwh(50))
	st := h.waitFor(t, "kitchen_group_total_cost", func(st types.OutputState) bool {
		return st.UpdatedAt.After(before.UpdatedAt)
	})
	assert.InDelta(t, 0.25, st.Value, 1e-9)

	// consumption keeps pricing normally afterwards
	h.hub.Set("oven_kwh", kwh(101.2))
	h.waitFor(t, "kitchen_group_total_cost", func(st types.OutputState) bool {
		return st.Value > 0.299 && st.Value < 0.301
	})
}

func TestEngineCostChargesMeterReset(t *testing.T) {
	h := start(t, testConfig())

	h.hub.Set("oven_kwh", kwh(10))
	h.waitFor(t, "oven_total_cost", func(st types.OutputState) bool { return st.Available })

	h.hub.Set("oven_kwh", kwh(15))
	h.waitFor(t, "oven_total_cost", func(st types.OutputState) bool {
		return st.Value > 1.249 && st.Value < 1.251
	})

	// raw meter reset: the post-reset reading counts as fresh consumption
	h.hub.Set("oven_kwh", kwh(3))
	h.waitFor(t, "oven_total_cost", func(st types.OutputState) bool {
		return st.Value > 1.999 && st.Value < 2.001
	})
}

func TestEngineCurrentRate(t *testing.T) {
	h := start(t, testConfig())
	st := h.waitFor(t, "kitchen_current_rate", func(st types.OutputState) bool { return st.Available })
	assert.Equal(t, 0.25, st.Value)
	assert.Equal(t, "USD/kWh", st.Attributes.Unit)
}

func TestEngineEnergyRemainder(t *testing.T) {
	h := start(t, testConfig())

	h.hub.Set("mains_kwh", kwh(20))
	h.hub.Set("oven_kwh", kwh(10))
	h.hub.Set("fridge_kwh", kwh(5))
	h.waitFor(t, "kitchen_energy_remainder", func(st types.OutputState) bool { return st.Available })

	// upstream grows 1.0, members together grow 0.6
	h.hub.Set("mains_kwh", kwh(21))
	h.hub.Set("oven_kwh", kwh(10.4))
	h.hub.Set("fridge_kwh", kwh(5.2))

	h.waitFor(t, "kitchen_energy_remainder", func(st types.OutputState) bool {
		return st.Value > 0.39 && st.Value < 0.41
	})
}

func TestEngineRemainderSurvivesUpstreamMeterReset(t *testing.T) {
	h := start(t, testConfig())

	h.hub.Set("mains_kwh", kwh(20))
	h.hub.Set("oven_kwh", kwh(10))
	h.hub.Set("fridge_kwh", kwh(5))
	h.waitFor(t, "kitchen_energy_remainder", func(st types.OutputState) bool { return st.Available })

	h.hub.Set("mains_kwh", kwh(21))
	h.hub.Set("oven_kwh", kwh(10.4))
	h.hub.Set("fridge_kwh", kwh(5.2))
	h.waitFor(t, "kitchen_energy_remainder", func(st types.OutputState) bool {
		return st.Value > 0.39 && st.Value < 0.41
	})

	// upstream meter hardware reset: the accumulated remainder is retained and
	// the post-reset reading counts as fresh untracked consumption
	h.hub.Set("mains_kwh", kwh(0.2))
	st := h.waitFor(t, "kitchen_energy_remainder", func(st types.OutputState) bool {
		return st.Value > 0.59 && st.Value < 0.61
	})
	assert.NotZero(t, st.Value)
}

func TestEngineRestore(t *testing.T) {
	cfg := testConfig()
	lastRaw := 50.0
	h := &harness{
		hub:   host.NewHub(),
		sched: host.NewMockScheduler(),
		pub:   host.NewMockPublisher(),
		rest:  host.NewMockRestorer(),
	}
	h.rest.Store(types.OutputState{
		ID:        "oven_energy_meter",
		Kind:      types.OutputEnergyMeter,
		Value:     7.5,
		Version:   types.CurrentStateVersion,
		Available: true,
		Attributes: types.Attributes{
			LastRaw: &lastRaw,
		},
	})

	eng, err := New(cfg, Deps{
		Values:    h.hub,
		Notifier:  h.hub,
		Scheduler: h.sched,
		Publisher: h.pub,
		Restorer:  h.rest,
		Rates:     tariff.NewResolver(cfg.Tariff),
	})
	require.NoError(t, err)
	h.eng = eng
	require.NoError(t, eng.Start(context.Background()))
	t.Cleanup(eng.Stop)

	// restored total survives the restart
	h.waitFor(t, "oven_energy_meter", func(st types.OutputState) bool { return st.Value == 7.5 })

	// and accumulation resumes from the persisted baseline
	h.hub.Set("oven_kwh", kwh(52))
	h.waitFor(t, "oven_energy_meter", func(st types.OutputState) bool { return st.Value == 9.5 })
}

func TestEngineRestoreErrorStartsFresh(t *testing.T) {
	cfg := testConfig()
	h := &harness{
		hub:   host.NewHub(),
		sched: host.NewMockScheduler(),
		pub:   host.NewMockPublisher(),
		rest:  host.NewMockRestorer(),
	}
	h.rest.Fail(assert.AnError)

	eng, err := New(cfg, Deps{
		Values:    h.hub,
		Notifier:  h.hub,
		Scheduler: h.sched,
		Publisher: h.pub,
		Restorer:  h.rest,
		Rates:     tariff.NewResolver(cfg.Tariff),
	})
	require.NoError(t, err)
	h.eng = eng
	require.NoError(t, eng.Start(context.Background()))
	t.Cleanup(eng.Stop)

	h.hub.Set("oven_kwh", kwh(10))
	h.hub.Set("oven_kwh", kwh(11))
	h.waitFor(t, "oven_energy_meter", func(st types.OutputState) bool { return st.Value == 1 })
}

func TestEngineReset(t *testing.T) {
	h := start(t, testConfig())

	h.hub.Set("oven_kwh", kwh(10))
	h.hub.Set("oven_kwh", kwh(15))
	h.waitFor(t, "oven_energy_meter", func(st types.OutputState) bool { return st.Value == 5 })

	require.NoError(t, h.eng.Reset("oven_energy_meter"))
	h.waitFor(t, "oven_energy_meter", func(st types.OutputState) bool { return st.Value == 0 })

	// consumption resumes from the reset baseline
	h.hub.Set("oven_kwh", kwh(16))
	h.waitFor(t, "oven_energy_meter", func(st types.OutputState) bool { return st.Value == 1 })

	assert.ErrorIs(t, h.eng.Reset("nope"), ErrUnknownOutput)
}

func TestEngineTeardownStopsPublishing(t *testing.T) {
	h := start(t, testConfig())

	h.hub.Set("oven_kwh", kwh(10))
	h.waitFor(t, "oven_energy_meter", func(st types.OutputState) bool { return st.Available })

	h.eng.Stop()
	assert.Zero(t, h.sched.Active(), "timers must be cancelled on teardown")

	before := len(h.pub.All())
	h.hub.Set("oven_kwh", kwh(99))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, before, len(h.pub.All()), "no publishes after teardown")
}

func TestEngineTickForcesRefresh(t *testing.T) {
	h := start(t, testConfig())
	h.hub.Set("oven_w", watts(2000))
	h.waitFor(t, "oven_hourly_cost", func(st types.OutputState) bool { return st.Available })

	before := h.pub.Last("oven_hourly_cost")
	require.NotNil(t, before)

	h.sched.Fire(time.Now())
	h.waitFor(t, "oven_hourly_cost", func(st types.OutputState) bool {
		return st.UpdatedAt.After(before.UpdatedAt)
	})

	// 2 kW at 0.25/kWh
	assert.InDelta(t, 0.5, h.pub.Last("oven_hourly_cost").Value, 1e-9)
}
