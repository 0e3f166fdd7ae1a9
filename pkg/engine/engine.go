// Package engine runs one actor per published output. Each actor owns its
// ledgers outright and consumes a stream of source-change, tick, reset and
// teardown events, so ledger state is never mutated concurrently and bursts
// of triggers coalesce into a single recompute.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/phantomwatt/phantomwatt/pkg/host"
	"github.com/phantomwatt/phantomwatt/pkg/log"
	"github.com/phantomwatt/phantomwatt/pkg/tariff"
	"github.com/phantomwatt/phantomwatt/pkg/types"
)

// ErrUnknownOutput is returned for operations on an output the engine does
// not manage.
var ErrUnknownOutput = errors.New("unknown output")

// Deps holds the host collaborators the engine runs against.
type Deps struct {
	Values    host.Values
	Notifier  host.Notifier
	Scheduler host.Scheduler
	Publisher host.Publisher
	Restorer  host.Restorer
	Rates     *tariff.Resolver
}

// Engine builds and supervises the output actors for a configuration.
type Engine struct {
	cfg  types.Config
	deps Deps

	mu      sync.Mutex
	actors  map[types.OutputID]*actor
	order   []types.OutputID
	last    map[types.OutputID]types.OutputState
	started bool
	stopped bool
	wg      sync.WaitGroup
}

// actor is one output's event loop plus the closures operating its ledgers.
// compute, restore and reset only ever run on the actor goroutine, except
// restore which runs once before the goroutine starts.
type actor struct {
	id      types.OutputID
	kind    types.OutputKind
	sources []types.SourceID
	period  time.Duration

	compute func(ctx context.Context, now time.Time, tick bool) types.OutputState
	restore func(ctx context.Context, st types.OutputState)
	reset   func(ctx context.Context)

	changec chan struct{}
	tickc   chan time.Time
	resetc  chan struct{}
	stop    chan struct{}
	cancels []func()
}

func newActor(id types.OutputID, kind types.OutputKind, period time.Duration, sources []types.SourceID) *actor {
	return &actor{
		id:      id,
		kind:    kind,
		sources: sources,
		period:  period,
		changec: make(chan struct{}, 1),
		tickc:   make(chan time.Time, 1),
		resetc:  make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}
}

// kickChange requests a recompute; pending requests coalesce.
func (a *actor) kickChange() {
	select {
	case a.changec <- struct{}{}:
	default:
	}
}

// kickTick requests a forced refresh; pending ticks coalesce.
func (a *actor) kickTick(now time.Time) {
	select {
	case a.tickc <- now:
	default:
	}
}

// New validates the configuration and builds the actor set. Nothing runs
// until Start.
func New(cfg types.Config, deps Deps) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 30 * time.Second
	}
	if cfg.CostRefreshInterval <= 0 {
		cfg.CostRefreshInterval = 10 * time.Second
	}

	e := &Engine{
		cfg:    cfg,
		deps:   deps,
		actors: make(map[types.OutputID]*actor),
		last:   make(map[types.OutputID]types.OutputState),
	}
	for i := range cfg.Groups {
		for _, a := range e.buildGroup(&cfg.Groups[i]) {
			if a == nil {
				continue
			}
			if _, ok := e.actors[a.id]; ok {
				return nil, errors.New("duplicate output id: " + string(a.id))
			}
			e.actors[a.id] = a
			e.order = append(e.order, a.id)
		}
	}
	return e, nil
}

// Start restores persisted state, subscribes every actor to its sources and
// refresh timer, and publishes an initial state for each output. It may be
// called once.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return errors.New("engine already started")
	}
	e.started = true
	e.mu.Unlock()

	for _, id := range e.order {
		a := e.actors[id]
		e.restoreActor(ctx, a)
	}

	for _, id := range e.order {
		a := e.actors[id]
		e.wg.Add(1)
		go e.runActor(ctx, a)

		if len(a.sources) > 0 {
			kick := func(types.SourceID, types.Reading) { a.kickChange() }
			a.cancels = append(a.cancels, e.deps.Notifier.OnChange(a.sources, kick))
		}
		if a.period > 0 {
			a.cancels = append(a.cancels, e.deps.Scheduler.Every(a.period, a.kickTick))
		}
		a.kickChange()
	}

	log.Ctx(ctx).InfoContext(ctx, "engine started",
		slog.Int("outputs", len(e.order)),
		slog.Duration("refreshInterval", e.cfg.RefreshInterval),
		slog.Duration("costRefreshInterval", e.cfg.CostRefreshInterval))
	return nil
}

// restoreActor loads the last persisted state for an output. Absent or
// invalid state leaves the actor at zero state; restore never fails Start.
func (e *Engine) restoreActor(ctx context.Context, a *actor) {
	if a.restore == nil {
		return
	}
	st, err := e.deps.Restorer.LoadLast(ctx, a.id)
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to load persisted output state, starting fresh",
			slog.String("output", string(a.id)), slog.Any("error", err))
		return
	}
	if st == nil {
		return
	}
	migrated, _, err := types.MigrateOutputState(*st, st.Version)
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "ignoring persisted output state",
			slog.String("output", string(a.id)), slog.Any("error", err))
		return
	}
	a.restore(ctx, migrated)
}

func (e *Engine) runActor(ctx context.Context, a *actor) {
	defer e.wg.Done()
	ctx = log.WithAttrs(ctx, slog.String("output", string(a.id)))
	for {
		// drain a pending teardown before handling more work
		select {
		case <-a.stop:
			return
		default:
		}
		select {
		case <-a.stop:
			return
		case <-a.changec:
			e.publish(ctx, a, a.compute(ctx, time.Now(), false))
		case now := <-a.tickc:
			e.publish(ctx, a, a.compute(ctx, now, true))
		case <-a.resetc:
			if a.reset != nil {
				a.reset(ctx)
			}
			e.publish(ctx, a, a.compute(ctx, time.Now(), false))
		}
	}
}

// publish records and announces a freshly computed state. After teardown the
// in-flight recompute finishes but its publish is dropped.
func (e *Engine) publish(ctx context.Context, a *actor, st types.OutputState) {
	select {
	case <-a.stop:
		return
	default:
	}

	e.mu.Lock()
	e.last[a.id] = st
	e.mu.Unlock()

	if err := e.deps.Publisher.Publish(ctx, st); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to publish output state",
			slog.String("output", string(a.id)), slog.Any("error", err))
	}
}

// Stop tears every actor down: timers and subscriptions are cancelled and the
// actor goroutines drain. It blocks until all actors have exited.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.started || e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	e.mu.Unlock()

	for _, id := range e.order {
		a := e.actors[id]
		close(a.stop)
		for _, cancel := range a.cancels {
			cancel()
		}
	}
	e.wg.Wait()
}

// Outputs returns the last published state of every output, sorted by ID.
func (e *Engine) Outputs() []types.OutputState {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]types.OutputState, 0, len(e.last))
	for _, st := range e.last {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Output returns the last published state of one output.
func (e *Engine) Output(id types.OutputID) (types.OutputState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.last[id]
	return st, ok
}

// Reset requests a user reset of the output's ledger. The reset is applied on
// the actor's goroutine; repeated requests before it runs coalesce.
func (e *Engine) Reset(id types.OutputID) error {
	e.mu.Lock()
	a, ok := e.actors[id]
	e.mu.Unlock()
	if !ok {
		return ErrUnknownOutput
	}
	select {
	case a.resetc <- struct{}{}:
	default:
	}
	return nil
}

// Rates exposes the engine's rate resolver.
func (e *Engine) Rates() *tariff.Resolver {
	return e.deps.Rates
}
