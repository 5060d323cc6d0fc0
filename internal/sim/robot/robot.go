// Package robot implements the per-robot action state machine.
//
// A robot is Idle, Retooling (a transparent MOVE wrapping the next action
// while it changes activity) or Executing. Completing an action applies its
// effect to the shared stock.
package robot

import (
	"errors"
	"fmt"

	"github.com/samber/oops"
	"github.com/shopspring/decimal"

	"foobartory.ai/internal/sim/rng"
	"foobartory.ai/internal/sim/stock"
	"foobartory.ai/internal/sim/tasks"
)

var ErrActorBusy = errors.New("robot is busy")

type State int

const (
	StateIdle State = iota
	StateRetooling
	StateExecuting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRetooling:
		return "retooling"
	case StateExecuting:
		return "executing"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Rules are the outcome parameters of completion effects.
type Rules struct {
	AssemblySuccessPercent int
	SellBatchMax           int
	FooBarPrice            int
}

func DefaultRules() Rules {
	return Rules{AssemblySuccessPercent: 60, SellBatchMax: 5, FooBarPrice: 1}
}

// Workshop is what a completing action acts upon.
type Workshop struct {
	Pools *stock.Pools
	Rand  rng.Source
	Rules Rules
}

type EventType int

const (
	EventNone EventType = iota
	// EventRetooled: overhead elapsed, the wrapped action starts now.
	EventRetooled
	// EventCompleted: the action finished and its effect was applied.
	EventCompleted
)

type Event struct {
	Type   EventType
	Action tasks.Action

	Ore       *stock.Ore
	Assembled bool
	Sold      int
}

type Robot struct {
	index   int
	catalog tasks.Catalog

	action    *tasks.Action
	last      tasks.Action
	remaining decimal.Decimal
}

// New returns an idle robot whose last completed action is INITIAL, so its
// first assignment always retools.
func New(index int, cat tasks.Catalog) *Robot {
	return &Robot{index: index, catalog: cat, last: cat.Initial(), remaining: decimal.Zero}
}

// Restore rebuilds a robot mid-action.
func Restore(index int, cat tasks.Catalog, current *tasks.Action, last tasks.Action, remaining decimal.Decimal) *Robot {
	r := &Robot{index: index, catalog: cat, last: last, remaining: remaining}
	if current != nil {
		a := *current
		r.action = &a
	}
	return r
}

func (r *Robot) Index() int { return r.index }

func (r *Robot) IsIdle() bool { return r.action == nil }

func (r *Robot) State() State {
	switch {
	case r.action == nil:
		return StateIdle
	case r.action.Kind == tasks.KindMove:
		return StateRetooling
	default:
		return StateExecuting
	}
}

// Action returns the raw in-flight action, including a MOVE wrapper.
func (r *Robot) Action() (tasks.Action, bool) {
	if r.action == nil {
		return tasks.Action{}, false
	}
	return *r.action, true
}

func (r *Robot) LastAction() tasks.Action { return r.last }

func (r *Robot) Remaining() decimal.Decimal { return r.remaining }

// ScheduledAction returns the action the robot intends to perform: the
// wrapped target while retooling, the action itself while executing.
func (r *Robot) ScheduledAction() (tasks.Action, bool) {
	if r.action == nil {
		return tasks.Action{}, false
	}
	if r.action.Kind == tasks.KindMove && r.action.Next != nil {
		return *r.action.Next, true
	}
	return *r.action, true
}

// Assign starts a. A change of kind from the last completed action is
// preceded by retooling.
func (r *Robot) Assign(a tasks.Action) error {
	if r.action != nil {
		return oops.
			In("robot").
			Code("actor_busy").
			With("robot", r.index, "current", r.action.Name(), "requested", a.Name()).
			Wrapf(ErrActorBusy, "assign %s to robot %d", a.Name(), r.index)
	}
	next := a
	if a.Kind != r.last.Kind {
		next = r.catalog.MoveTo(a)
	}
	r.action = &next
	r.remaining = next.Duration
	return nil
}

// Advance runs the robot for elapsed time units.
func (r *Robot) Advance(elapsed decimal.Decimal, ws Workshop) (Event, error) {
	r.remaining = r.remaining.Sub(elapsed)
	if r.remaining.IsNegative() {
		r.remaining = decimal.Zero
	}
	if !r.remaining.IsZero() || r.action == nil {
		return Event{}, nil
	}

	cur := *r.action
	if cur.Kind == tasks.KindMove {
		next := *cur.Next
		r.action = &next
		r.remaining = next.Duration
		return Event{Type: EventRetooled, Action: next}, nil
	}

	ev, err := r.complete(cur, ws)
	if err != nil {
		return Event{}, oops.
			In("robot").
			With("robot", r.index, "action", cur.Name()).
			Wrap(err)
	}
	r.last = cur
	r.action = nil
	return ev, nil
}

func (r *Robot) complete(a tasks.Action, ws Workshop) (Event, error) {
	ev := Event{Type: EventCompleted, Action: a}
	switch a.Kind {
	case tasks.KindInitial:
	case tasks.KindMineFoo, tasks.KindMineBar:
		kind, _ := tasks.ProducedOre(a.Kind)
		o := ws.Pools.MintOre(kind)
		ev.Ore = &o
	case tasks.KindAssemble:
		if ws.Rand.IntN(100) < ws.Rules.AssemblySuccessPercent {
			ws.Pools.AddFooBar(stock.FooBar{Foo: a.Foo, Bar: a.Bar})
			ev.Assembled = true
		} else {
			// The foo is lost; the bar goes back to stock.
			ws.Pools.Put(a.Bar)
		}
	case tasks.KindSell:
		n, err := ws.Pools.SellBatch(ws.Rules.SellBatchMax)
		if err != nil {
			return Event{}, err
		}
		ws.Pools.Earn(n * ws.Rules.FooBarPrice)
		ev.Sold = n
	case tasks.KindBuyRobot:
		ws.Pools.RequestRobot()
	case tasks.KindMove:
		return Event{}, oops.In("robot").Code("invalid_action").Errorf("retooling cannot complete directly")
	default:
		return Event{}, oops.In("robot").Code("invalid_action").With("kind", a.Kind).Errorf("unknown action kind %q", a.Kind)
	}
	return ev, nil
}
