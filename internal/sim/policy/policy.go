// Package policy decides what an idle robot does next.
//
// Decisions are evaluated in strict priority order:
//
//  1. buy a robot (nobody else is buying, enough money and foo)
//  2. mine foo whenever money alone would afford a robot
//  3. sell (nobody else is selling, assembly queue non-empty)
//  4. assemble (at least one ore of each kind)
//  5. mine the scarcer ore, random on ties
//
// Rules that consume stock or money reserve it in the same call, so the
// returned action already owns its inputs.
package policy

import (
	"github.com/samber/oops"

	"foobartory.ai/internal/sim/rng"
	"foobartory.ai/internal/sim/robot"
	"foobartory.ai/internal/sim/stock"
	"foobartory.ai/internal/sim/tasks"
)

type Rules struct {
	RobotPriceMoney int
	RobotPriceFoo   int
}

func DefaultRules() Rules {
	return Rules{RobotPriceMoney: 3, RobotPriceFoo: 6}
}

type Policy struct {
	Catalog tasks.Catalog
	Rules   Rules
	Rand    rng.Source
}

func New(cat tasks.Catalog, rules Rules, src rng.Source) *Policy {
	return &Policy{Catalog: cat, Rules: rules, Rand: src}
}

// Decide picks and reserves the next action for an idle robot.
func (p *Policy) Decide(robots []*robot.Robot, pools *stock.Pools) (tasks.Action, error) {
	switch {
	case CanBuyRobot(robots, pools, p.Rules):
		if err := pools.Spend(p.Rules.RobotPriceMoney); err != nil {
			return tasks.Action{}, oops.In("policy").With("rule", "buy_robot").Wrap(err)
		}
		foos, err := pools.Take(stock.Foo, p.Rules.RobotPriceFoo)
		if err != nil {
			pools.Earn(p.Rules.RobotPriceMoney)
			return tasks.Action{}, oops.In("policy").With("rule", "buy_robot").Wrap(err)
		}
		return p.Catalog.BuyRobot(foos, p.Rules.RobotPriceMoney), nil

	case pools.Money() >= p.Rules.RobotPriceMoney:
		return p.Catalog.MineFoo(), nil

	case CanSell(robots, pools.AssemblyLen()):
		return p.Catalog.Sell(), nil

	case pools.HasOneOfEach():
		foo, bar, err := pools.TakePair()
		if err != nil {
			return tasks.Action{}, oops.In("policy").With("rule", "assemble").Wrap(err)
		}
		return p.Catalog.Assemble(foo, bar), nil

	default:
		return ChooseOreToMine(pools.Counts(), p.Catalog, p.Rand), nil
	}
}

// Scheduled reports whether any robot intends to perform an action of kind.
func Scheduled(robots []*robot.Robot, kind tasks.Kind) bool {
	for _, r := range robots {
		if a, ok := r.ScheduledAction(); ok && a.Kind == kind {
			return true
		}
	}
	return false
}

func CanBuyRobot(robots []*robot.Robot, pools *stock.Pools, rules Rules) bool {
	return !Scheduled(robots, tasks.KindBuyRobot) &&
		pools.Money() >= rules.RobotPriceMoney &&
		pools.Count(stock.Foo) >= rules.RobotPriceFoo
}

// CanSell is true iff the queue is non-empty and no robot is already
// scheduled to sell.
func CanSell(robots []*robot.Robot, assemblyLen int) bool {
	return !Scheduled(robots, tasks.KindSell) && assemblyLen > 0
}

// ChooseOreToMine mines the kind with the strictly smallest count. When
// every kind is tied the choice is uniform.
func ChooseOreToMine(counts stock.Counts, cat tasks.Catalog, src rng.Source) tasks.Action {
	minKind := stock.Kinds[0]
	tied := true
	for _, k := range stock.Kinds[1:] {
		if counts[k] != counts[stock.Kinds[0]] {
			tied = false
		}
		if counts[k] < counts[minKind] {
			minKind = k
		}
	}
	if tied {
		minKind = stock.Kinds[src.IntN(len(stock.Kinds))]
	}
	return cat.Mine(minKind, src)
}
