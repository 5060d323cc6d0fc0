package tasks

import (
	"fmt"

	"github.com/shopspring/decimal"

	"foobartory.ai/internal/sim/rng"
	"foobartory.ai/internal/sim/stock"
)

// Kind tags an Action with the operation it performs.
type Kind string

const (
	KindInitial  Kind = "INITIAL"
	KindMove     Kind = "MOVE"
	KindMineFoo  Kind = "MINE_FOO"
	KindMineBar  Kind = "MINE_BAR"
	KindAssemble Kind = "ASSEMBLE"
	KindSell     Kind = "SELL_FOOBAR"
	KindBuyRobot Kind = "BUY_ROBOT"
)

// Action is a timed robot operation. Kind selects which payload fields
// are meaningful; the zero payload is used everywhere else.
type Action struct {
	Kind     Kind
	Duration decimal.Decimal

	// MOVE
	Next *Action

	// ASSEMBLE
	Foo stock.Ore
	Bar stock.Ore

	// BUY_ROBOT
	Foos  []stock.Ore
	Money int
}

// Name is the human-readable label used in logs and events.
func (a Action) Name() string {
	switch a.Kind {
	case KindInitial:
		return "init"
	case KindMove:
		if a.Next == nil {
			return "retooling"
		}
		return "retooling toward " + a.Next.Name()
	case KindMineFoo:
		return "mine foo"
	case KindMineBar:
		return "mine bar"
	case KindAssemble:
		return "assemble foobar"
	case KindSell:
		return "sell foobar"
	case KindBuyRobot:
		return "buy new robot"
	default:
		return string(a.Kind)
	}
}

func (a Action) String() string {
	return fmt.Sprintf("%s (%ss)", a.Name(), a.Duration.String())
}

// ProducedOre reports the ore kind a mining action yields.
func ProducedOre(k Kind) (stock.OreKind, bool) {
	switch k {
	case KindMineFoo:
		return stock.Foo, true
	case KindMineBar:
		return stock.Bar, true
	default:
		return "", false
	}
}

// MineAction returns the kind of action that mines ore kind k.
func MineAction(k stock.OreKind) Kind {
	if k == stock.Bar {
		return KindMineBar
	}
	return KindMineFoo
}

// Catalog holds the nominal durations of every action, in time units.
type Catalog struct {
	MoveTime     decimal.Decimal
	MineFooTime  decimal.Decimal
	MineBarMin   decimal.Decimal
	MineBarMax   decimal.Decimal
	AssembleTime decimal.Decimal
	SellTime     decimal.Decimal
	BuyRobotTime decimal.Decimal
}

// DefaultCatalog returns the reference durations.
func DefaultCatalog() Catalog {
	return Catalog{
		MoveTime:     decimal.RequireFromString("5.0"),
		MineFooTime:  decimal.RequireFromString("1.0"),
		MineBarMin:   decimal.RequireFromString("0.5"),
		MineBarMax:   decimal.RequireFromString("2.0"),
		AssembleTime: decimal.RequireFromString("2.0"),
		SellTime:     decimal.RequireFromString("10.0"),
		BuyRobotTime: decimal.Zero,
	}
}

// Initial is the placeholder a new robot reports as its last action.
func (c Catalog) Initial() Action { return Action{Kind: KindInitial, Duration: decimal.Zero} }

// MoveTo wraps next in a retooling action.
func (c Catalog) MoveTo(next Action) Action {
	n := next
	return Action{Kind: KindMove, Duration: c.MoveTime, Next: &n}
}

func (c Catalog) MineFoo() Action { return Action{Kind: KindMineFoo, Duration: c.MineFooTime} }

// MineBar draws a fresh duration, uniform over [MineBarMin, MineBarMax)
// and rounded to one decimal place.
func (c Catalog) MineBar(src rng.Source) Action {
	lo, _ := c.MineBarMin.Float64()
	hi, _ := c.MineBarMax.Float64()
	d := decimal.NewFromFloat(lo + src.Float64()*(hi-lo)).Round(1)
	return Action{Kind: KindMineBar, Duration: d}
}

// Mine returns the mining action for ore kind k.
func (c Catalog) Mine(k stock.OreKind, src rng.Source) Action {
	if MineAction(k) == KindMineBar {
		return c.MineBar(src)
	}
	return c.MineFoo()
}

// Assemble turns a reserved foo and bar into an assembly attempt.
func (c Catalog) Assemble(foo, bar stock.Ore) Action {
	return Action{Kind: KindAssemble, Duration: c.AssembleTime, Foo: foo, Bar: bar}
}

func (c Catalog) Sell() Action { return Action{Kind: KindSell, Duration: c.SellTime} }

// BuyRobot carries the foos and money already reserved for a new robot.
func (c Catalog) BuyRobot(foos []stock.Ore, money int) Action {
	return Action{Kind: KindBuyRobot, Duration: c.BuyRobotTime, Foos: foos, Money: money}
}
