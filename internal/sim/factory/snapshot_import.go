package factory

import (
	"encoding"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"foobartory.ai/internal/persistence/snapshot"
	"foobartory.ai/internal/sim/robot"
	"foobartory.ai/internal/sim/stock"
	"foobartory.ai/internal/sim/tasks"
)

// ImportSnapshot replaces the factory state with snap. The factory keeps
// its config, catalog and loggers.
func (f *Factory) ImportSnapshot(snap snapshot.SnapshotV1) error {
	if snap.Header.Version != snapshot.Version {
		return fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	if snap.Seed != f.cfg.Seed {
		return fmt.Errorf("snapshot seed %d does not match config seed %d", snap.Seed, f.cfg.Seed)
	}

	ns, err := uuid.Parse(snap.Stock.Namespace)
	if err != nil {
		return fmt.Errorf("stock namespace: %w", err)
	}
	st := stock.State{
		Namespace:     ns,
		NextOre:       snap.Counters.NextOre,
		Ores:          map[stock.OreKind][]stock.Ore{},
		Money:         snap.Stock.Money,
		PendingRobots: snap.Stock.PendingRobots,
	}
	if st.Ores[stock.Foo], err = oresFromV1(snap.Stock.Foo); err != nil {
		return err
	}
	if st.Ores[stock.Bar], err = oresFromV1(snap.Stock.Bar); err != nil {
		return err
	}
	for _, fb := range snap.Stock.Assembly {
		foo, err := oreFromV1(fb.Foo)
		if err != nil {
			return err
		}
		bar, err := oreFromV1(fb.Bar)
		if err != nil {
			return err
		}
		st.Assembly = append(st.Assembly, stock.FooBar{Foo: foo, Bar: bar})
	}
	pools, err := stock.FromState(st)
	if err != nil {
		return err
	}

	seen := map[uuid.UUID]string{}
	claim := func(o stock.Ore, where string) error {
		if prev, ok := seen[o.ID]; ok {
			return fmt.Errorf("ore %s held by both %s and %s", o.ID, prev, where)
		}
		seen[o.ID] = where
		return nil
	}
	for _, k := range stock.Kinds {
		for _, o := range st.Ores[k] {
			if err := claim(o, "stock"); err != nil {
				return err
			}
		}
	}
	for _, fb := range st.Assembly {
		if err := claim(fb.Foo, "assembly"); err != nil {
			return err
		}
		if err := claim(fb.Bar, "assembly"); err != nil {
			return err
		}
	}

	robots := make([]*robot.Robot, 0, len(snap.Robots))
	for _, rv := range snap.Robots {
		last, err := actionFromV1(rv.Last)
		if err != nil {
			return fmt.Errorf("robot %d last action: %w", rv.Index, err)
		}
		var cur *tasks.Action
		if rv.Action != nil {
			a, err := actionFromV1(*rv.Action)
			if err != nil {
				return fmt.Errorf("robot %d action: %w", rv.Index, err)
			}
			cur = &a
			for _, o := range heldOres(a) {
				if err := claim(o, fmt.Sprintf("robot %d", rv.Index)); err != nil {
					return err
				}
			}
		}
		remaining, err := decimal.NewFromString(rv.Remaining)
		if err != nil {
			return fmt.Errorf("robot %d remaining: %w", rv.Index, err)
		}
		if remaining.IsNegative() {
			return fmt.Errorf("robot %d remaining %s is negative", rv.Index, remaining)
		}
		robots = append(robots, robot.Restore(rv.Index, f.cfg.Catalog, cur, last, remaining))
	}

	if len(snap.Rand) > 0 {
		u, ok := f.rnd.(encoding.BinaryUnmarshaler)
		if !ok {
			return fmt.Errorf("random source %T cannot restore state", f.rnd)
		}
		if err := u.UnmarshalBinary(snap.Rand); err != nil {
			return fmt.Errorf("restore random source: %w", err)
		}
	}

	f.pools = pools
	f.robots = robots
	f.nextRobot = snap.Counters.NextRobot
	f.tick = snap.Header.Tick
	return nil
}

// heldOres lists the ores reserved by an in-flight action, including the
// target of a retooling move.
func heldOres(a tasks.Action) []stock.Ore {
	switch a.Kind {
	case tasks.KindMove:
		if a.Next != nil {
			return heldOres(*a.Next)
		}
	case tasks.KindAssemble:
		return []stock.Ore{a.Foo, a.Bar}
	case tasks.KindBuyRobot:
		return a.Foos
	}
	return nil
}

func oreFromV1(o snapshot.OreV1) (stock.Ore, error) {
	id, err := uuid.Parse(o.ID)
	if err != nil {
		return stock.Ore{}, fmt.Errorf("ore id %q: %w", o.ID, err)
	}
	kind := stock.OreKind(o.Kind)
	if kind != stock.Foo && kind != stock.Bar {
		return stock.Ore{}, fmt.Errorf("ore %s: unknown kind %q", o.ID, o.Kind)
	}
	return stock.Ore{ID: id, Kind: kind}, nil
}

func oresFromV1(in []snapshot.OreV1) ([]stock.Ore, error) {
	var out []stock.Ore
	for _, o := range in {
		ore, err := oreFromV1(o)
		if err != nil {
			return nil, err
		}
		out = append(out, ore)
	}
	return out, nil
}

func actionFromV1(av snapshot.ActionV1) (tasks.Action, error) {
	d, err := decimal.NewFromString(av.Duration)
	if err != nil {
		return tasks.Action{}, fmt.Errorf("duration %q: %w", av.Duration, err)
	}
	a := tasks.Action{Kind: tasks.Kind(av.Kind), Duration: d}
	switch a.Kind {
	case tasks.KindInitial, tasks.KindMineFoo, tasks.KindMineBar, tasks.KindSell:
	case tasks.KindMove:
		if av.Next == nil {
			return tasks.Action{}, fmt.Errorf("retooling without target")
		}
		next, err := actionFromV1(*av.Next)
		if err != nil {
			return tasks.Action{}, err
		}
		a.Next = &next
	case tasks.KindAssemble:
		if av.Foo == nil || av.Bar == nil {
			return tasks.Action{}, fmt.Errorf("assemble without reserved ores")
		}
		if a.Foo, err = oreFromV1(*av.Foo); err != nil {
			return tasks.Action{}, err
		}
		if a.Bar, err = oreFromV1(*av.Bar); err != nil {
			return tasks.Action{}, err
		}
	case tasks.KindBuyRobot:
		if a.Foos, err = oresFromV1(av.Foos); err != nil {
			return tasks.Action{}, err
		}
		a.Money = av.Money
	default:
		return tasks.Action{}, fmt.Errorf("unknown action kind %q", av.Kind)
	}
	return a, nil
}
