package stock

import (
	"encoding/binary"
	"errors"
	"strconv"

	"github.com/google/uuid"
	"github.com/samber/oops"
)

// OreKind names a raw ore.
type OreKind string

const (
	Foo OreKind = "FOO"
	Bar OreKind = "BAR"
)

// Kinds lists every raw ore kind in a fixed order. Scarcity ties and
// digests iterate in this order.
var Kinds = []OreKind{Foo, Bar}

var (
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrEmptySale         = errors.New("sale attempted with empty assembly queue")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// Ore is a raw mined unit. It lives either in the pool or inside the
// payload of exactly one in-flight action.
type Ore struct {
	ID   uuid.UUID
	Kind OreKind
}

// FooBar is a successfully assembled pair, queued for sale.
type FooBar struct {
	Foo Ore
	Bar Ore
}

// Counts is an ore tally by kind.
type Counts map[OreKind]int

// Tally counts ores by kind. Every kind in Kinds is present in the result.
func Tally(ores []Ore) Counts {
	c := make(Counts, len(Kinds))
	for _, k := range Kinds {
		c[k] = 0
	}
	for _, o := range ores {
		c[o.Kind]++
	}
	return c
}

// HasOneOfEach reports whether ores holds at least one ore of every kind.
func HasOneOfEach(ores []Ore) bool {
	return Tally(ores).HasOneOfEach()
}

func (c Counts) HasOneOfEach() bool {
	for _, k := range Kinds {
		if c[k] < 1 {
			return false
		}
	}
	return true
}

// Pools is the shared mutable state of a factory: ore stock, the FooBar
// assembly queue, money and robots waiting to be commissioned.
// It is owned by a single simulation loop and is not safe for concurrent use.
type Pools struct {
	ores     map[OreKind][]Ore
	assembly []FooBar

	money         int
	pendingRobots int

	namespace uuid.UUID
	nextOre   uint64
}

// NewPools returns empty pools. Ore IDs are derived from seed so that two
// runs with the same seed mint the same IDs.
func NewPools(seed int64) *Pools {
	return &Pools{
		ores:      emptyStock(),
		namespace: uuid.NewSHA1(uuid.NameSpaceOID, []byte("foobartory/"+strconv.FormatInt(seed, 10))),
	}
}

func emptyStock() map[OreKind][]Ore {
	m := make(map[OreKind][]Ore, len(Kinds))
	for _, k := range Kinds {
		m[k] = nil
	}
	return m
}

// MintOre creates a fresh ore of kind and puts it in stock.
func (p *Pools) MintOre(kind OreKind) Ore {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], p.nextOre)
	p.nextOre++
	o := Ore{ID: uuid.NewSHA1(p.namespace, buf[:]), Kind: kind}
	p.ores[kind] = append(p.ores[kind], o)
	return o
}

// Put returns an ore to stock.
func (p *Pools) Put(o Ore) {
	p.ores[o.Kind] = append(p.ores[o.Kind], o)
}

// Take removes the n oldest ores of kind. Nothing is removed when fewer
// than n are in stock.
func (p *Pools) Take(kind OreKind, n int) ([]Ore, error) {
	have := p.ores[kind]
	if n < 0 || len(have) < n {
		return nil, oops.
			In("stock").
			Code("insufficient_stock").
			With("kind", kind, "want", n, "have", len(have)).
			Wrapf(ErrInsufficientStock, "take %d %s", n, kind)
	}
	out := make([]Ore, n)
	copy(out, have[:n])
	p.ores[kind] = append(have[:0:0], have[n:]...)
	return out, nil
}

// TakePair removes the oldest Foo and the oldest Bar together, or neither.
func (p *Pools) TakePair() (foo Ore, bar Ore, err error) {
	if !p.HasOneOfEach() {
		return Ore{}, Ore{}, oops.
			In("stock").
			Code("insufficient_stock").
			With("foo", p.Count(Foo), "bar", p.Count(Bar)).
			Wrapf(ErrInsufficientStock, "take foobar pair")
	}
	foos, _ := p.Take(Foo, 1)
	bars, _ := p.Take(Bar, 1)
	return foos[0], bars[0], nil
}

func (p *Pools) Count(kind OreKind) int { return len(p.ores[kind]) }

func (p *Pools) Total() int {
	n := 0
	for _, k := range Kinds {
		n += len(p.ores[k])
	}
	return n
}

func (p *Pools) Counts() Counts {
	c := make(Counts, len(Kinds))
	for _, k := range Kinds {
		c[k] = len(p.ores[k])
	}
	return c
}

func (p *Pools) HasOneOfEach() bool { return p.Counts().HasOneOfEach() }

// Ores returns a copy of the stock of kind, oldest first.
func (p *Pools) Ores(kind OreKind) []Ore {
	return append([]Ore(nil), p.ores[kind]...)
}

func (p *Pools) AddFooBar(fb FooBar) { p.assembly = append(p.assembly, fb) }

func (p *Pools) AssemblyLen() int { return len(p.assembly) }

// Assembly returns a copy of the assembly queue, oldest first.
func (p *Pools) Assembly() []FooBar {
	return append([]FooBar(nil), p.assembly...)
}

// SellBatch removes up to limit of the oldest FooBars and returns how many
// were removed.
func (p *Pools) SellBatch(limit int) (int, error) {
	if len(p.assembly) == 0 {
		return 0, oops.
			In("stock").
			Code("empty_sale").
			Wrapf(ErrEmptySale, "sell batch of %d", limit)
	}
	n := min(limit, len(p.assembly))
	p.assembly = append(p.assembly[:0:0], p.assembly[n:]...)
	return n, nil
}

func (p *Pools) Money() int { return p.money }

func (p *Pools) Earn(amount int) { p.money += amount }

// Spend deducts amount; money never goes negative.
func (p *Pools) Spend(amount int) error {
	if amount > p.money {
		return oops.
			In("stock").
			Code("insufficient_funds").
			With("want", amount, "have", p.money).
			Wrapf(ErrInsufficientFunds, "spend %d", amount)
	}
	p.money -= amount
	return nil
}

func (p *Pools) RequestRobot() { p.pendingRobots++ }

func (p *Pools) PendingRobots() int { return p.pendingRobots }

// DrainRobots resets the pending robot counter and returns its old value.
func (p *Pools) DrainRobots() int {
	n := p.pendingRobots
	p.pendingRobots = 0
	return n
}

// State is a deep copy of the pools, used by snapshots and digests.
type State struct {
	Namespace     uuid.UUID
	NextOre       uint64
	Ores          map[OreKind][]Ore
	Assembly      []FooBar
	Money         int
	PendingRobots int
}

func (p *Pools) State() State {
	st := State{
		Namespace:     p.namespace,
		NextOre:       p.nextOre,
		Ores:          make(map[OreKind][]Ore, len(Kinds)),
		Assembly:      p.Assembly(),
		Money:         p.money,
		PendingRobots: p.pendingRobots,
	}
	for _, k := range Kinds {
		st.Ores[k] = p.Ores(k)
	}
	return st
}

// FromState rebuilds pools from a State.
func FromState(st State) (*Pools, error) {
	if st.Money < 0 || st.PendingRobots < 0 {
		return nil, oops.In("stock").Code("invalid_state").
			With("money", st.Money, "pending_robots", st.PendingRobots).
			Errorf("negative counters in stock state")
	}
	p := &Pools{
		ores:          emptyStock(),
		assembly:      append([]FooBar(nil), st.Assembly...),
		money:         st.Money,
		pendingRobots: st.PendingRobots,
		namespace:     st.Namespace,
		nextOre:       st.NextOre,
	}
	for kind, ores := range st.Ores {
		if _, ok := p.ores[kind]; !ok {
			return nil, oops.In("stock").Code("invalid_state").With("kind", kind).Errorf("unknown ore kind")
		}
		p.ores[kind] = append([]Ore(nil), ores...)
	}
	return p, nil
}
