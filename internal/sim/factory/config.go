package factory

import (
	"github.com/shopspring/decimal"

	"foobartory.ai/internal/sim/policy"
	"foobartory.ai/internal/sim/robot"
	"foobartory.ai/internal/sim/tasks"
	"foobartory.ai/internal/sim/tuning"
)

type Config struct {
	RunID string
	Seed  int64

	TickQuantum   decimal.Decimal
	InitialRobots int
	TargetRobots  int
	// MaxTicks bounds Run; 0 means unbounded.
	MaxTicks uint64

	// Operational parameters.
	SnapshotEveryTicks int

	Catalog tasks.Catalog
	Robot   robot.Rules
	Policy  policy.Rules
}

func DefaultConfig() Config {
	return Config{
		RunID:         "run",
		Seed:          1337,
		TickQuantum:   decimal.RequireFromString("0.1"),
		InitialRobots: 2,
		TargetRobots:  6,
		Catalog:       tasks.DefaultCatalog(),
		Robot:         robot.DefaultRules(),
		Policy:        policy.DefaultRules(),
	}
}

// ConfigFromTuning converts the float tuning values into exact decimals.
func ConfigFromTuning(runID string, t tuning.Tuning) Config {
	d := decimal.NewFromFloat
	return Config{
		RunID:              runID,
		Seed:               t.Seed,
		TickQuantum:        d(t.TickQuantum),
		InitialRobots:      t.InitialRobots,
		TargetRobots:       t.TargetRobots,
		MaxTicks:           t.MaxTicks,
		SnapshotEveryTicks: t.SnapshotEveryTicks,
		Catalog: tasks.Catalog{
			MoveTime:     d(t.RetoolDuration),
			MineFooTime:  d(t.Durations.MineFoo),
			MineBarMin:   d(t.Durations.MineBarMin),
			MineBarMax:   d(t.Durations.MineBarMax),
			AssembleTime: d(t.Durations.Assemble),
			SellTime:     d(t.Durations.Sell),
			BuyRobotTime: d(t.Durations.BuyRobot),
		},
		Robot: robot.Rules{
			AssemblySuccessPercent: t.AssemblySuccessPercent,
			SellBatchMax:           t.SellBatchMax,
			FooBarPrice:            t.FooBarPrice,
		},
		Policy: policy.Rules{
			RobotPriceMoney: t.RobotPrice.Money,
			RobotPriceFoo:   t.RobotPrice.Foo,
		},
	}
}
