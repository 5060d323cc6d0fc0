package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foobartory.ai/internal/sim/rng"
	"foobartory.ai/internal/sim/robot"
	"foobartory.ai/internal/sim/stock"
	"foobartory.ai/internal/sim/tasks"
)

func ores(p *stock.Pools, kinds ...stock.OreKind) []stock.Ore {
	out := make([]stock.Ore, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, p.MintOre(k))
	}
	return out
}

func robotDoing(t *testing.T, a tasks.Action) *robot.Robot {
	t.Helper()
	r := robot.New(0, tasks.DefaultCatalog())
	require.NoError(t, r.Assign(a))
	return r
}

func TestChooseOreToMine_StrictlyFewer(t *testing.T) {
	cat := tasks.DefaultCatalog()
	p := stock.NewPools(1)

	got := ChooseOreToMine(stock.Tally(ores(p, stock.Foo, stock.Bar, stock.Bar, stock.Foo, stock.Foo)), cat, &rng.Scripted{})
	assert.Equal(t, tasks.KindMineBar, got.Kind)

	got = ChooseOreToMine(stock.Tally(ores(p, stock.Bar, stock.Bar)), cat, &rng.Scripted{})
	assert.Equal(t, tasks.KindMineFoo, got.Kind)
}

func TestChooseOreToMine_TieIsRandom(t *testing.T) {
	cat := tasks.DefaultCatalog()
	counts := stock.Tally(nil)

	got := ChooseOreToMine(counts, cat, &rng.Scripted{Ints: []int{0}})
	assert.Equal(t, tasks.KindMineFoo, got.Kind)
	got = ChooseOreToMine(counts, cat, &rng.Scripted{Ints: []int{1}})
	assert.Equal(t, tasks.KindMineBar, got.Kind)
}

func TestCanSell(t *testing.T) {
	cat := tasks.DefaultCatalog()

	seller := []*robot.Robot{robotDoing(t, cat.Sell())}
	miner := []*robot.Robot{robotDoing(t, cat.MineFoo())}

	assert.False(t, CanSell(seller, 0))
	assert.False(t, CanSell(miner, 0))
	assert.False(t, CanSell(seller, 1))
	assert.False(t, CanSell(seller, 100))
	assert.True(t, CanSell(miner, 1))
	assert.True(t, CanSell(nil, 1))
}

func TestDecide_BuyRobotReservesAtomically(t *testing.T) {
	cat := tasks.DefaultCatalog()
	pol := New(cat, DefaultRules(), &rng.Scripted{})
	p := stock.NewPools(1)
	minted := ores(p, stock.Foo, stock.Foo, stock.Foo, stock.Foo, stock.Foo, stock.Foo, stock.Foo)
	p.Earn(4)

	a, err := pol.Decide(nil, p)
	require.NoError(t, err)
	assert.Equal(t, tasks.KindBuyRobot, a.Kind)
	assert.Equal(t, minted[:6], a.Foos)
	assert.Equal(t, 3, a.Money)
	assert.Equal(t, 1, p.Money())
	assert.Equal(t, 1, p.Count(stock.Foo))
}

func TestDecide_OnlyOneBuyerAtATime(t *testing.T) {
	cat := tasks.DefaultCatalog()
	pol := New(cat, DefaultRules(), &rng.Scripted{})
	p := stock.NewPools(1)
	ores(p, stock.Foo, stock.Foo, stock.Foo, stock.Foo, stock.Foo, stock.Foo)
	p.Earn(3)

	buyer := robotDoing(t, cat.BuyRobot(nil, 3))
	a, err := pol.Decide([]*robot.Robot{buyer}, p)
	require.NoError(t, err)
	assert.Equal(t, tasks.KindMineFoo, a.Kind, "money >= price falls back to mining foo")
	assert.Equal(t, 6, p.Count(stock.Foo))
	assert.Equal(t, 3, p.Money())
}

func TestDecide_MoneyPrioritisesFooOverSale(t *testing.T) {
	cat := tasks.DefaultCatalog()
	pol := New(cat, DefaultRules(), &rng.Scripted{})
	p := stock.NewPools(1)
	p.AddFooBar(stock.FooBar{Foo: p.MintOre(stock.Foo), Bar: p.MintOre(stock.Bar)})
	ores(p, stock.Foo, stock.Foo, stock.Foo, stock.Bar)
	p.Earn(3)

	a, err := pol.Decide(nil, p)
	require.NoError(t, err)
	assert.Equal(t, tasks.KindMineFoo, a.Kind)
}

func TestDecide_SellBeforeAssemble(t *testing.T) {
	cat := tasks.DefaultCatalog()
	pol := New(cat, DefaultRules(), &rng.Scripted{})
	p := stock.NewPools(1)
	p.AddFooBar(stock.FooBar{Foo: p.MintOre(stock.Foo), Bar: p.MintOre(stock.Bar)})
	ores(p, stock.Foo, stock.Bar)

	a, err := pol.Decide(nil, p)
	require.NoError(t, err)
	assert.Equal(t, tasks.KindSell, a.Kind)

	seller := robotDoing(t, cat.Sell())
	a, err = pol.Decide([]*robot.Robot{seller}, p)
	require.NoError(t, err)
	assert.Equal(t, tasks.KindAssemble, a.Kind)
}

func TestDecide_AssembleReservesPair(t *testing.T) {
	cat := tasks.DefaultCatalog()
	pol := New(cat, DefaultRules(), &rng.Scripted{})
	p := stock.NewPools(1)
	minted := ores(p, stock.Bar, stock.Foo, stock.Foo)

	a, err := pol.Decide(nil, p)
	require.NoError(t, err)
	require.Equal(t, tasks.KindAssemble, a.Kind)
	assert.Equal(t, minted[1], a.Foo)
	assert.Equal(t, minted[0], a.Bar)
	assert.Equal(t, 1, p.Count(stock.Foo))
	assert.Equal(t, 0, p.Count(stock.Bar))
}

func TestDecide_MinesScarcerOre(t *testing.T) {
	cat := tasks.DefaultCatalog()
	pol := New(cat, DefaultRules(), &rng.Scripted{Floats: []float64{0.5}})
	p := stock.NewPools(1)
	ores(p, stock.Foo, stock.Foo)

	a, err := pol.Decide(nil, p)
	require.NoError(t, err)
	assert.Equal(t, tasks.KindMineBar, a.Kind)
	assert.Equal(t, "1.3", a.Duration.String())
}
