package engine

import (
	"context"
	"time"

	"github.com/phantomwatt/phantomwatt/pkg/meter"
	"github.com/phantomwatt/phantomwatt/pkg/types"
)

// read returns the latest reading of a source, treating unknown sources and
// empty IDs as unavailable.
func (e *Engine) read(id types.SourceID) types.Reading {
	if id == "" {
		return types.Unavailable()
	}
	r, ok := e.deps.Values.Get(id)
	if !ok {
		return types.Unavailable()
	}
	return r
}

func (e *Engine) readAll(ids []types.SourceID) []types.Reading {
	out := make([]types.Reading, len(ids))
	for i, id := range ids {
		out[i] = e.read(id)
	}
	return out
}

func (e *Engine) state(a *actor, now time.Time, value float64, available bool, attrs types.Attributes) types.OutputState {
	return types.OutputState{
		ID:         a.id,
		Kind:       a.kind,
		Value:      value,
		Available:  available,
		Version:    types.CurrentStateVersion,
		UpdatedAt:  now,
		Attributes: attrs,
	}
}

// buildGroup assembles the actors for one configured group. Outputs whose
// sources are not configured are simply not created; cost outputs only exist
// when the tariff is enabled.
func (e *Engine) buildGroup(g *types.GroupConfig) []*actor {
	var powerSources, energySources []types.SourceID
	var energySeeds []types.OutputID
	for i := range g.Members {
		m := &g.Members[i]
		if m.Power != "" {
			powerSources = append(powerSources, m.Power)
		}
		if m.Energy != "" {
			energySources = append(energySources, m.Energy)
			energySeeds = append(energySeeds, m.Output(types.OutputEnergyMeter))
		}
	}

	var actors []*actor
	add := func(a *actor) { actors = append(actors, a) }

	if len(powerSources) > 0 {
		add(e.groupPower(g, powerSources))
	}
	if len(energySources) > 0 {
		add(e.groupEnergy(g, energySources))
	}
	for i := range g.Members {
		m := &g.Members[i]
		if m.Power != "" {
			add(e.memberPower(m))
		}
		if m.Energy != "" {
			add(e.memberMeter(m))
		}
	}

	if up := g.Upstream; up != nil {
		if up.Power != "" {
			add(e.upstreamPower(g, up))
		}
		if up.Energy != "" {
			add(e.upstreamMeter(g, up))
			if len(energySources) > 0 {
				add(e.energyRemainder(g, up, energySources, energySeeds))
			}
		}
	}

	if e.deps.Rates.Enabled() {
		for i := range g.Members {
			m := &g.Members[i]
			if m.Energy != "" {
				add(e.costOutput(m.Output(types.OutputTotalCost), types.OutputTotalCost,
					[]types.SourceID{m.Energy}, []types.OutputID{m.Output(types.OutputEnergyMeter)},
					[]types.SourceID{m.Power}, m.Energy))
			}
			if m.Power != "" {
				add(e.hourlyCost(m.Output(types.OutputHourlyCost), []types.SourceID{m.Power}))
			}
		}
		if len(energySources) > 0 {
			add(e.costOutput(g.Output(types.OutputGroupCost), types.OutputGroupCost,
				energySources, energySeeds, powerSources, ""))
		}
		if len(powerSources) > 0 {
			add(e.hourlyCost(g.Output(types.OutputHourlyCost), powerSources))
		}
		if up := g.Upstream; up != nil && up.Energy != "" {
			add(e.costOutput(g.Output(types.OutputUpstreamCost), types.OutputUpstreamCost,
				[]types.SourceID{up.Energy}, []types.OutputID{g.Output(types.OutputUpstreamMeter)},
				[]types.SourceID{up.Power}, up.Energy))
			if len(energySources) > 0 {
				add(e.costRemainder(g, up, energySources, energySeeds, powerSources))
			}
		}
		add(e.currentRate(g))
	}

	return actors
}

// memberPower republishes one member's instantaneous power in watts.
func (e *Engine) memberPower(m *types.MemberConfig) *actor {
	a := newActor(m.Output(types.OutputMemberPower), types.OutputMemberPower,
		e.cfg.RefreshInterval, []types.SourceID{m.Power})
	a.compute = func(_ context.Context, now time.Time, _ bool) types.OutputState {
		r := e.read(m.Power)
		var v float64
		if r.Available {
			v = r.Kilowatts() * 1000
		}
		return e.state(a, now, v, r.Available, types.Attributes{Source: m.Power, Unit: string(types.UnitWatt)})
	}
	return a
}

// groupPower sums member power into a group total in watts. The total is
// available while at least one member is.
func (e *Engine) groupPower(g *types.GroupConfig, sources []types.SourceID) *actor {
	a := newActor(g.Output(types.OutputPowerTotal), types.OutputPowerTotal,
		e.cfg.RefreshInterval, sources)
	a.compute = func(_ context.Context, now time.Time, _ bool) types.OutputState {
		total, any := meter.SumPowerWatts(e.readAll(sources))
		return e.state(a, now, total, any, types.Attributes{Unit: string(types.UnitWatt)})
	}
	return a
}

// memberMeter is the monotonic energy meter of a single member source.
func (e *Engine) memberMeter(m *types.MemberConfig) *actor {
	a := newActor(m.Output(types.OutputEnergyMeter), types.OutputEnergyMeter,
		e.cfg.RefreshInterval, []types.SourceID{m.Energy})
	mt := meter.NewMeter(meter.PolicyAbsolute)
	a.restore = func(_ context.Context, st types.OutputState) {
		mt = meter.RestoreMeter(meter.PolicyAbsolute, st.Value, st.Attributes.LastRaw)
	}
	a.compute = func(_ context.Context, now time.Time, _ bool) types.OutputState {
		total := mt.Update(e.read(m.Energy))
		return e.state(a, now, total, mt.Available(), types.Attributes{
			LastRaw: mt.LastRaw(),
			Source:  m.Energy,
			Unit:    string(types.UnitKilowattHour),
		})
	}
	a.reset = func(context.Context) { mt.Reset(e.read(m.Energy)) }
	return a
}

// upstreamMeter is the monotonic meter of the group's upstream energy source.
func (e *Engine) upstreamMeter(g *types.GroupConfig, up *types.SourcePair) *actor {
	a := newActor(g.Output(types.OutputUpstreamMeter), types.OutputUpstreamMeter,
		e.cfg.RefreshInterval, []types.SourceID{up.Energy})
	mt := meter.NewMeter(meter.PolicyAbsolute)
	a.restore = func(_ context.Context, st types.OutputState) {
		mt = meter.RestoreMeter(meter.PolicyAbsolute, st.Value, st.Attributes.LastRaw)
	}
	a.compute = func(_ context.Context, now time.Time, _ bool) types.OutputState {
		total := mt.Update(e.read(up.Energy))
		return e.state(a, now, total, mt.Available(), types.Attributes{
			LastRaw: mt.LastRaw(),
			Source:  up.Energy,
			Unit:    string(types.UnitKilowattHour),
		})
	}
	a.reset = func(context.Context) { mt.Reset(e.read(up.Energy)) }
	return a
}

// groupEnergy tracks every member energy source with its own meter and
// publishes the sum. Only the summed total is persisted; the per-source
// baselines re-establish from the first reading after a restart.
func (e *Engine) groupEnergy(g *types.GroupConfig, sources []types.SourceID) *actor {
	a := newActor(g.Output(types.OutputEnergyTotal), types.OutputEnergyTotal,
		e.cfg.RefreshInterval, sources)
	var base float64
	meters := make([]*meter.Meter, len(sources))
	for i := range meters {
		meters[i] = meter.NewMeter(meter.PolicyAbsolute)
	}
	a.restore = func(_ context.Context, st types.OutputState) { base = st.Value }
	a.compute = func(_ context.Context, now time.Time, _ bool) types.OutputState {
		total := base
		any := false
		for i, src := range sources {
			total += meters[i].Update(e.read(src))
			any = any || meters[i].Available()
		}
		return e.state(a, now, total, any, types.Attributes{Unit: string(types.UnitKilowattHour)})
	}
	a.reset = func(context.Context) {
		base = 0
		for i, src := range sources {
			meters[i].Reset(e.read(src))
		}
	}
	return a
}

// upstreamPower republishes the upstream instantaneous power. A missing
// upstream reads as 0 rather than unavailable so downstream consumers keep a
// usable series.
func (e *Engine) upstreamPower(g *types.GroupConfig, up *types.SourcePair) *actor {
	a := newActor(g.Output(types.OutputUpstreamPower), types.OutputUpstreamPower,
		e.cfg.RefreshInterval, []types.SourceID{up.Power})
	a.compute = func(_ context.Context, now time.Time, _ bool) types.OutputState {
		r := e.read(up.Power)
		var v float64
		if r.Available {
			v = r.Kilowatts() * 1000
		}
		return e.state(a, now, v, true, types.Attributes{Source: up.Power, Unit: string(types.UnitWatt)})
	}
	return a
}

// costOutput prices the growth of a monotonic energy series. The ledger
// consumes summed private meter totals rather than raw source sums: a member
// going unavailable freezes its meter instead of collapsing the sum, and a
// raw meter reset absorbs through the reset policy so the post-reset reading
// is charged as fresh consumption. powerSources feed the rate-boundary
// catch-up estimate on forced refreshes.
func (e *Engine) costOutput(id types.OutputID, kind types.OutputKind, energySources []types.SourceID, energySeeds []types.OutputID, powerSources []types.SourceID, source types.SourceID) *actor {
	a := newActor(id, kind, e.cfg.CostRefreshInterval, energySources)
	l := meter.NewCostLedger()
	series := newMeterSeries(energySources, energySeeds)
	a.restore = func(ctx context.Context, st types.OutputState) {
		l = meter.RestoreCostLedger(st.Value, st.Attributes.LastEnergy, st.Attributes.LastRate, st.Attributes.LastRateAt)
		series.restore(ctx, e)
	}
	a.compute = func(ctx context.Context, now time.Time, tick bool) types.OutputState {
		rate, period := e.deps.Rates.Resolve(ctx, now)
		attrs := types.Attributes{
			Source:         source,
			Rate:           rate,
			Period:         period,
			Unit:           e.deps.Rates.Currency(),
			CurrencySymbol: e.deps.Rates.CurrencySymbol(),
		}
		energy, any := series.update(e)
		if !any {
			attrs.LastEnergy = l.LastEnergy()
			attrs.LastRate = l.LastRate()
			attrs.LastRateAt = l.LastRateAt()
			return e.state(a, now, l.TotalCost(), false, attrs)
		}
		if tick {
			kw, _ := meter.SumPowerWatts(e.readAll(powerSources))
			l.RateCatchUp(energy, kw/1000, rate, now)
		}
		v := l.Update(energy, rate, now)
		attrs.LastEnergy = l.LastEnergy()
		attrs.LastRate = l.LastRate()
		attrs.LastRateAt = l.LastRateAt()
		return e.state(a, now, v, true, attrs)
	}
	a.reset = func(context.Context) {
		cur := series.total()
		l.Reset(&cur)
	}
	return a
}

// hourlyCost publishes the instantaneous spend rate, power x tariff rate.
func (e *Engine) hourlyCost(id types.OutputID, powerSources []types.SourceID) *actor {
	a := newActor(id, types.OutputHourlyCost, e.cfg.CostRefreshInterval, powerSources)
	a.compute = func(ctx context.Context, now time.Time, _ bool) types.OutputState {
		rate, period := e.deps.Rates.Resolve(ctx, now)
		watts, any := meter.SumPowerWatts(e.readAll(powerSources))
		v := e.deps.Rates.CostPerHour(watts/1000, rate)
		return e.state(a, now, v, any, types.Attributes{
			Rate:           rate,
			Period:         period,
			Unit:           e.deps.Rates.Currency() + "/h",
			CurrencySymbol: e.deps.Rates.CurrencySymbol(),
		})
	}
	return a
}

// currentRate publishes the resolved tariff rate for the group.
func (e *Engine) currentRate(g *types.GroupConfig) *actor {
	a := newActor(g.Output(types.OutputCurrentRate), types.OutputCurrentRate,
		e.cfg.CostRefreshInterval, nil)
	a.compute = func(ctx context.Context, now time.Time, _ bool) types.OutputState {
		rate, period := e.deps.Rates.Resolve(ctx, now)
		return e.state(a, now, rate, true, types.Attributes{
			Period:         period,
			Unit:           e.deps.Rates.Currency() + "/kWh",
			CurrencySymbol: e.deps.Rates.CurrencySymbol(),
		})
	}
	return a
}

// energyRemainder reconciles the upstream meter against the group: energy the
// upstream saw that no member accounts for. Both remainder inputs are private
// monotonic meter series, so a raw upstream meter reset absorbs through the
// reset policy instead of collapsing the gap the sanity clamp compares
// against.
func (e *Engine) energyRemainder(g *types.GroupConfig, up *types.SourcePair, energySources []types.SourceID, energySeeds []types.OutputID) *actor {
	sources := append([]types.SourceID{up.Energy}, energySources...)
	a := newActor(g.Output(types.OutputEnergyRemain), types.OutputEnergyRemain,
		e.cfg.RefreshInterval, sources)
	rem := meter.NewRemainder()
	upSeries := newMeterSeries([]types.SourceID{up.Energy}, []types.OutputID{g.Output(types.OutputUpstreamMeter)})
	groupSeries := newMeterSeries(energySources, energySeeds)
	a.restore = func(ctx context.Context, st types.OutputState) {
		rem = meter.RestoreRemainder(st.Value, st.Attributes.LastUpstream, st.Attributes.LastGroup, false)
		upSeries.restore(ctx, e)
		groupSeries.restore(ctx, e)
	}
	a.compute = func(_ context.Context, now time.Time, _ bool) types.OutputState {
		upTotal, upAny := upSeries.update(e)
		group, any := groupSeries.update(e)
		attrs := types.Attributes{Unit: string(types.UnitKilowattHour)}
		if !upAny || !any {
			attrs.LastUpstream = rem.LastUpstream()
			attrs.LastGroup = rem.LastGroup()
			return e.state(a, now, rem.Accumulated(), false, attrs)
		}
		v := rem.Update(upTotal, group)
		attrs.LastUpstream = rem.LastUpstream()
		attrs.LastGroup = rem.LastGroup()
		return e.state(a, now, v, true, attrs)
	}
	a.reset = func(context.Context) { rem.Reset() }
	return a
}

// costRemainder reconciles upstream cost against the summed member cost. The
// actor runs private meter series and cost ledgers over the same sources as
// the cost outputs so the remainder never races their actors; on restart the
// private meters restore from the sibling meter outputs and the ledgers from
// the sibling cost outputs, so the sanity clamp keeps comparing against
// continuous totals.
func (e *Engine) costRemainder(g *types.GroupConfig, up *types.SourcePair, energySources []types.SourceID, energySeeds []types.OutputID, powerSources []types.SourceID) *actor {
	sources := append([]types.SourceID{up.Energy}, energySources...)
	a := newActor(g.Output(types.OutputCostRemain), types.OutputCostRemain,
		e.cfg.CostRefreshInterval, sources)
	rem := meter.NewCostRemainder()
	upSeries := newMeterSeries([]types.SourceID{up.Energy}, []types.OutputID{g.Output(types.OutputUpstreamMeter)})
	groupSeries := newMeterSeries(energySources, energySeeds)
	upLedger := meter.NewCostLedger()
	groupLedger := meter.NewCostLedger()

	restoreLedger := func(ctx context.Context, id types.OutputID) *meter.CostLedger {
		st, err := e.deps.Restorer.LoadLast(ctx, id)
		if err != nil || st == nil {
			return meter.NewCostLedger()
		}
		migrated, _, err := types.MigrateOutputState(*st, st.Version)
		if err != nil {
			return meter.NewCostLedger()
		}
		return meter.RestoreCostLedger(migrated.Value, migrated.Attributes.LastEnergy,
			migrated.Attributes.LastRate, migrated.Attributes.LastRateAt)
	}
	a.restore = func(ctx context.Context, st types.OutputState) {
		rem = meter.RestoreRemainder(st.Value, st.Attributes.LastUpstream, st.Attributes.LastGroup, true)
		upSeries.restore(ctx, e)
		groupSeries.restore(ctx, e)
		upLedger = restoreLedger(ctx, g.Output(types.OutputUpstreamCost))
		groupLedger = restoreLedger(ctx, g.Output(types.OutputGroupCost))
	}
	a.compute = func(ctx context.Context, now time.Time, tick bool) types.OutputState {
		rate, _ := e.deps.Rates.Resolve(ctx, now)
		attrs := types.Attributes{
			Unit:           e.deps.Rates.Currency(),
			CurrencySymbol: e.deps.Rates.CurrencySymbol(),
		}
		upTotal, upAny := upSeries.update(e)
		group, any := groupSeries.update(e)
		if !upAny || !any {
			attrs.LastUpstream = rem.LastUpstream()
			attrs.LastGroup = rem.LastGroup()
			return e.state(a, now, rem.Accumulated(), false, attrs)
		}
		if tick {
			if p := e.read(up.Power); p.Available {
				upLedger.RateCatchUp(upTotal, p.Kilowatts(), rate, now)
			}
			if watts, anyP := meter.SumPowerWatts(e.readAll(powerSources)); anyP {
				groupLedger.RateCatchUp(group, watts/1000, rate, now)
			}
		}
		u := upLedger.Update(upTotal, rate, now)
		gr := groupLedger.Update(group, rate, now)
		v := rem.Update(u, gr)
		attrs.LastUpstream = rem.LastUpstream()
		attrs.LastGroup = rem.LastGroup()
		return e.state(a, now, v, true, attrs)
	}
	a.reset = func(context.Context) { rem.Reset() }
	return a
}
