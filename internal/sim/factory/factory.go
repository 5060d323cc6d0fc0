package factory

import (
	"context"
	"errors"
	"io"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/samber/oops"

	"foobartory.ai/internal/persistence/snapshot"
	"foobartory.ai/internal/sim/policy"
	"foobartory.ai/internal/sim/rng"
	"foobartory.ai/internal/sim/robot"
	"foobartory.ai/internal/sim/stock"
	"foobartory.ai/internal/sim/tasks"
)

var ErrTickBudgetExceeded = errors.New("tick budget exceeded before reaching target fleet")

// Report is the per-tick state summary handed to reporters.
type Report struct {
	Tick     uint64 `json:"tick"`
	TotalOre int    `json:"total_ore"`
	Foo      int    `json:"foo"`
	Bar      int    `json:"bar"`
	FooBars  int    `json:"foobars"`
	Money    int    `json:"money"`
	Robots   int    `json:"robots"`
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type TickLogEntry struct {
	RunID  string          `json:"run_id"`
	Tick   uint64          `json:"tick"`
	Report Report          `json:"report"`
	Events []RecordedEvent `json:"events,omitempty"`
	Digest string          `json:"digest"`
	// Final marks the summary emitted once when a run terminates.
	Final bool `json:"final,omitempty"`
}

type RecordedEvent struct {
	Robot  int    `json:"robot"`
	Type   string `json:"type"` // ASSIGNED, RETOOLED, COMPLETED, COMMISSIONED
	Action string `json:"action,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// Factory is a single-threaded simulation. It owns every piece of shared
// state; nothing here is package-level.
type Factory struct {
	cfg Config
	log *log.Logger

	rnd    rng.Source
	pools  *stock.Pools
	policy *policy.Policy

	robots    []*robot.Robot
	nextRobot int

	tick uint64

	tickLoggers  []TickLogger
	snapshotSink chan<- snapshot.SnapshotV1
}

// New builds a factory with cfg.InitialRobots idle robots. A nil src uses a
// Seeded source for cfg.Seed; a nil logger discards output.
func New(cfg Config, src rng.Source, logger *log.Logger) *Factory {
	if src == nil {
		src = rng.New(cfg.Seed)
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	f := &Factory{
		cfg:    cfg,
		log:    logger,
		rnd:    src,
		pools:  stock.NewPools(cfg.Seed),
		policy: policy.New(cfg.Catalog, cfg.Policy, src),
	}
	for i := 0; i < cfg.InitialRobots; i++ {
		f.spawnRobot()
	}
	return f
}

func (f *Factory) AddTickLogger(l TickLogger) { f.tickLoggers = append(f.tickLoggers, l) }

func (f *Factory) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { f.snapshotSink = ch }

func (f *Factory) Config() Config { return f.cfg }

func (f *Factory) CurrentTick() uint64 { return f.tick }

func (f *Factory) Pools() *stock.Pools { return f.pools }

func (f *Factory) Robots() []*robot.Robot {
	return append([]*robot.Robot(nil), f.robots...)
}

// Done reports whether the fleet reached its target size.
func (f *Factory) Done() bool { return len(f.robots) >= f.cfg.TargetRobots }

func (f *Factory) Report() Report {
	return Report{
		Tick:     f.tick,
		TotalOre: f.pools.Total(),
		Foo:      f.pools.Count(stock.Foo),
		Bar:      f.pools.Count(stock.Bar),
		FooBars:  f.pools.AssemblyLen(),
		Money:    f.pools.Money(),
		Robots:   len(f.robots),
	}
}

func (f *Factory) spawnRobot() *robot.Robot {
	r := robot.New(f.nextRobot, f.cfg.Catalog)
	f.nextRobot++
	f.robots = append(f.robots, r)
	f.log.Debug("robot awaking", "robot", r.Index())
	return r
}

// Step advances the factory by one tick quantum. Robots are processed in
// creation order: each one advances and, if idle afterwards, is given its
// next action before the following robot moves. Robots bought during the
// tick are commissioned only after every robot has been processed.
func (f *Factory) Step() (TickLogEntry, error) {
	f.tick++
	nowTick := f.tick

	ws := robot.Workshop{Pools: f.pools, Rand: f.rnd, Rules: f.cfg.Robot}
	var events []RecordedEvent

	for _, r := range f.robots {
		ev, err := r.Advance(f.cfg.TickQuantum, ws)
		if err != nil {
			return TickLogEntry{}, f.fatal(err, nowTick, r, "advance")
		}
		if ev.Type != robot.EventNone {
			events = append(events, f.recordEvent(r, ev))
		}
		if !r.IsIdle() {
			continue
		}

		a, err := f.policy.Decide(f.robots, f.pools)
		if err != nil {
			return TickLogEntry{}, f.fatal(err, nowTick, r, "decide")
		}
		if err := r.Assign(a); err != nil {
			return TickLogEntry{}, f.fatal(err, nowTick, r, "assign")
		}
		started, _ := r.Action()
		f.log.Debug("starting", "robot", r.Index(), "action", started.Name(), "duration", a.Duration.String())
		events = append(events, RecordedEvent{Robot: r.Index(), Type: "ASSIGNED", Action: a.Name(), Detail: a.Duration.String()})
	}

	for n := f.pools.DrainRobots(); n > 0; n-- {
		r := f.spawnRobot()
		events = append(events, RecordedEvent{Robot: r.Index(), Type: "COMMISSIONED"})
	}

	entry := TickLogEntry{
		RunID:  f.cfg.RunID,
		Tick:   nowTick,
		Report: f.Report(),
		Events: events,
		Digest: f.Digest(),
	}
	f.emit(entry)

	if f.snapshotSink != nil && f.cfg.SnapshotEveryTicks > 0 && nowTick%uint64(f.cfg.SnapshotEveryTicks) == 0 {
		snap := f.ExportSnapshot()
		select {
		case f.snapshotSink <- snap:
		default:
			// Drop snapshot if sink is backed up.
		}
	}
	return entry, nil
}

// Run steps until the fleet reaches its target, the tick budget is spent,
// ctx is cancelled or a step fails. A final entry is emitted in every case.
func (f *Factory) Run(ctx context.Context, pacer Pacer) (Report, error) {
	if pacer == nil {
		pacer = NoPacer{}
	}
	err := f.run(ctx, pacer)
	f.emit(TickLogEntry{
		RunID:  f.cfg.RunID,
		Tick:   f.tick,
		Report: f.Report(),
		Digest: f.Digest(),
		Final:  true,
	})
	return f.Report(), err
}

func (f *Factory) run(ctx context.Context, pacer Pacer) error {
	for !f.Done() {
		if f.cfg.MaxTicks > 0 && f.tick >= f.cfg.MaxTicks {
			return oops.
				In("factory").
				Code("tick_budget_exceeded").
				With("tick", f.tick, "robots", len(f.robots), "target", f.cfg.TargetRobots).
				Wrap(ErrTickBudgetExceeded)
		}
		if err := pacer.Wait(ctx); err != nil {
			return err
		}
		if _, err := f.Step(); err != nil {
			return err
		}
	}
	return nil
}

func (f *Factory) emit(entry TickLogEntry) {
	for _, l := range f.tickLoggers {
		if err := l.WriteTick(entry); err != nil {
			f.log.Warn("tick logger failed", "tick", entry.Tick, "err", err)
		}
	}
}

func (f *Factory) fatal(err error, tick uint64, r *robot.Robot, stage string) error {
	f.log.Error("invariant violated", "tick", tick, "robot", r.Index(), "stage", stage, "err", err)
	return oops.
		In("factory").
		With("tick", tick, "robot", r.Index(), "stage", stage).
		Wrap(err)
}

func (f *Factory) recordEvent(r *robot.Robot, ev robot.Event) RecordedEvent {
	rec := RecordedEvent{Robot: r.Index(), Action: ev.Action.Name()}
	switch ev.Type {
	case robot.EventRetooled:
		rec.Type = "RETOOLED"
		f.log.Debug("retooled", "robot", r.Index(), "next", ev.Action.Name())
		return rec
	case robot.EventCompleted:
		rec.Type = "COMPLETED"
	}

	switch {
	case ev.Ore != nil:
		rec.Detail = string(ev.Ore.Kind) + " " + ev.Ore.ID.String()
		f.log.Debug("stocked ore", "robot", r.Index(), "kind", ev.Ore.Kind, "id", ev.Ore.ID)
	case ev.Action.Kind == tasks.KindAssemble && ev.Assembled:
		rec.Detail = "success"
		f.log.Debug("foobar assembled", "robot", r.Index(), "foo", ev.Action.Foo.ID, "bar", ev.Action.Bar.ID)
	case ev.Action.Kind == tasks.KindAssemble:
		rec.Detail = "failure"
		f.log.Debug("foobar assembly failed", "robot", r.Index(), "lost_foo", ev.Action.Foo.ID, "restocked_bar", ev.Action.Bar.ID)
	case ev.Sold > 0:
		rec.Detail = "sold " + strconv.Itoa(ev.Sold)
		f.log.Debug("sold foobars", "robot", r.Index(), "count", ev.Sold, "money", f.pools.Money())
	}
	f.log.Debug("finished", "robot", r.Index(), "action", ev.Action.Name())
	return rec
}
