package tariff

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/phantomwatt/phantomwatt/pkg/log"
	"github.com/phantomwatt/phantomwatt/pkg/types"
)

// Resolver resolves the applicable rate and period label for a point in time
// from an immutable tariff definition. It is safe for concurrent use.
type Resolver struct {
	tariff types.Tariff

	mu     sync.Mutex
	warned map[int]bool
}

// NewResolver returns a Resolver for the given tariff.
func NewResolver(t types.Tariff) *Resolver {
	return &Resolver{
		tariff: t,
		warned: make(map[int]bool),
	}
}

// Enabled reports whether tariff tracking is enabled.
func (r *Resolver) Enabled() bool { return r.tariff.Enabled }

// Currency returns the configured currency code.
func (r *Resolver) Currency() string { return r.tariff.Currency }

// CurrencySymbol returns the configured currency symbol.
func (r *Resolver) CurrencySymbol() string { return r.tariff.CurrencySymbol }

// Resolve returns the rate (per kWh) and period label applicable at the given
// time. Disabled tariffs resolve to (0, ""). TOU periods are evaluated in
// declaration order and the first match wins; periods with unparsable times
// are skipped. When nothing matches, a positive flat rate serves as fallback,
// otherwise the rate is 0 with an empty label.
func (r *Resolver) Resolve(ctx context.Context, at time.Time) (float64, string) {
	if !r.tariff.Enabled {
		return 0, ""
	}

	switch r.tariff.RateType {
	case types.RateTypeFlat:
		return r.tariff.FlatRate, types.PeriodFlat
	case types.RateTypeTOU:
		return r.resolveTOU(ctx, at)
	}
	return 0, ""
}

func (r *Resolver) resolveTOU(ctx context.Context, at time.Time) (float64, string) {
	if len(r.tariff.TOURates) == 0 {
		if r.tariff.FlatRate > 0 {
			return r.tariff.FlatRate, types.PeriodFlat
		}
		return 0, ""
	}

	for i := range r.tariff.TOURates {
		p := &r.tariff.TOURates[i]
		ok, err := p.Matches(at)
		if err != nil {
			r.warnPeriod(ctx, i, p, err)
			continue
		}
		if ok {
			return p.Rate, p.Name
		}
	}

	if r.tariff.FlatRate > 0 {
		log.Ctx(ctx).DebugContext(ctx, "no tou period matched, using flat fallback",
			slog.Time("at", at), slog.Float64("rate", r.tariff.FlatRate))
		return r.tariff.FlatRate, types.PeriodFlat
	}

	log.Ctx(ctx).WarnContext(ctx, "no tou period matched and no flat fallback", slog.Time("at", at))
	return 0, ""
}

// warnPeriod logs a malformed period once per resolver instance.
func (r *Resolver) warnPeriod(ctx context.Context, i int, p *types.TOUPeriod, err error) {
	r.mu.Lock()
	already := r.warned[i]
	r.warned[i] = true
	r.mu.Unlock()
	if already {
		return
	}
	log.Ctx(ctx).WarnContext(ctx, "skipping malformed tou period",
		slog.Int("index", i),
		slog.String("name", p.Name),
		slog.String("start", p.StartTime),
		slog.String("end", p.EndTime),
		slog.Any("error", err))
}

// EnergyCost returns the cost of the given energy at the given rate. It is 0
// when the tariff is disabled.
func (r *Resolver) EnergyCost(energyKWH, rate float64) float64 {
	if !r.tariff.Enabled {
		return 0
	}
	return energyKWH * rate
}

// CostPerHour returns the hourly cost of a constant power draw at the given
// rate. It is 0 when the tariff is disabled.
func (r *Resolver) CostPerHour(powerKW, rate float64) float64 {
	if !r.tariff.Enabled {
		return 0
	}
	return powerKW * rate
}
