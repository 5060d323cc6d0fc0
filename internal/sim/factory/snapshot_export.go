package factory

import (
	"encoding"

	"foobartory.ai/internal/persistence/snapshot"
	"foobartory.ai/internal/sim/stock"
	"foobartory.ai/internal/sim/tasks"
)

func (f *Factory) ExportSnapshot() snapshot.SnapshotV1 {
	st := f.pools.State()
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: snapshot.Version,
			RunID:   f.cfg.RunID,
			Tick:    f.tick,
		},
		Seed:         f.cfg.Seed,
		TickQuantum:  f.cfg.TickQuantum.String(),
		TargetRobots: f.cfg.TargetRobots,
		Stock: snapshot.StockV1{
			Namespace:     st.Namespace.String(),
			Foo:           oresV1(st.Ores[stock.Foo]),
			Bar:           oresV1(st.Ores[stock.Bar]),
			Money:         st.Money,
			PendingRobots: st.PendingRobots,
		},
		Counters: snapshot.CountersV1{
			NextOre:   st.NextOre,
			NextRobot: f.nextRobot,
		},
	}
	for _, fb := range st.Assembly {
		snap.Stock.Assembly = append(snap.Stock.Assembly, snapshot.FooBarV1{Foo: oreV1(fb.Foo), Bar: oreV1(fb.Bar)})
	}
	if m, ok := f.rnd.(encoding.BinaryMarshaler); ok {
		if b, err := m.MarshalBinary(); err == nil {
			snap.Rand = b
		}
	}
	for _, r := range f.robots {
		rv := snapshot.RobotV1{
			Index:     r.Index(),
			Last:      actionV1(r.LastAction()),
			Remaining: r.Remaining().String(),
		}
		if a, ok := r.Action(); ok {
			av := actionV1(a)
			rv.Action = &av
		}
		snap.Robots = append(snap.Robots, rv)
	}
	return snap
}

func oreV1(o stock.Ore) snapshot.OreV1 {
	return snapshot.OreV1{ID: o.ID.String(), Kind: string(o.Kind)}
}

func oresV1(ores []stock.Ore) []snapshot.OreV1 {
	if len(ores) == 0 {
		return nil
	}
	out := make([]snapshot.OreV1, 0, len(ores))
	for _, o := range ores {
		out = append(out, oreV1(o))
	}
	return out
}

func actionV1(a tasks.Action) snapshot.ActionV1 {
	av := snapshot.ActionV1{Kind: string(a.Kind), Duration: a.Duration.String()}
	switch a.Kind {
	case tasks.KindMove:
		if a.Next != nil {
			next := actionV1(*a.Next)
			av.Next = &next
		}
	case tasks.KindAssemble:
		foo, bar := oreV1(a.Foo), oreV1(a.Bar)
		av.Foo, av.Bar = &foo, &bar
	case tasks.KindBuyRobot:
		av.Foos = oresV1(a.Foos)
		av.Money = a.Money
	}
	return av
}
