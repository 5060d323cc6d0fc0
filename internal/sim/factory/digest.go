package factory

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"strconv"

	"foobartory.ai/internal/sim/stock"
	"foobartory.ai/internal/sim/tasks"
)

// Digest hashes the complete simulation state. Two factories with equal
// digests at the same tick evolve identically under the same random stream.
func (f *Factory) Digest() string {
	h := sha256.New()
	var tmp [8]byte

	writeU64 := func(v uint64) {
		binary.LittleEndian.PutUint64(tmp[:], v)
		h.Write(tmp[:])
	}
	writeStr := func(s string) {
		writeU64(uint64(len(s)))
		h.Write([]byte(s))
	}

	st := f.pools.State()
	writeU64(f.tick)
	writeU64(uint64(st.Money))
	writeU64(uint64(st.PendingRobots))
	writeU64(st.NextOre)
	writeU64(uint64(f.nextRobot))
	h.Write(st.Namespace[:])

	for _, k := range stock.Kinds {
		writeStr(string(k))
		writeU64(uint64(len(st.Ores[k])))
		for _, o := range st.Ores[k] {
			h.Write(o.ID[:])
		}
	}
	writeU64(uint64(len(st.Assembly)))
	for _, fb := range st.Assembly {
		h.Write(fb.Foo.ID[:])
		h.Write(fb.Bar.ID[:])
	}

	writeU64(uint64(len(f.robots)))
	for _, r := range f.robots {
		writeU64(uint64(r.Index()))
		if a, ok := r.Action(); ok {
			h.Write([]byte{1})
			writeAction(h, writeStr, a)
		} else {
			h.Write([]byte{0})
		}
		writeStr(string(r.LastAction().Kind))
		writeStr(r.Remaining().String())
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writeAction(h hash.Hash, writeStr func(string), a tasks.Action) {
	writeStr(string(a.Kind))
	writeStr(a.Duration.String())
	switch a.Kind {
	case tasks.KindMove:
		if a.Next != nil {
			writeAction(h, writeStr, *a.Next)
		}
	case tasks.KindAssemble:
		h.Write(a.Foo.ID[:])
		h.Write(a.Bar.ID[:])
	case tasks.KindBuyRobot:
		for _, o := range a.Foos {
			h.Write(o.ID[:])
		}
		writeStr(strconv.Itoa(a.Money))
	}
}
