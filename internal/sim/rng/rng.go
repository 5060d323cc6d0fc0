// Package rng supplies the random draws used by the decision policy and
// by action outcomes. Everything random in a run flows through a Source so
// tests can script outcomes and snapshots can capture the stream position.
package rng

import (
	"math/rand/v2"
)

// Source is the randomness collaborator.
type Source interface {
	// IntN returns a uniform integer in [0, n).
	IntN(n int) int
	// Float64 returns a uniform float in [0, 1).
	Float64() float64
}

// Seeded is a PCG-backed Source. Its state can be marshalled.
type Seeded struct {
	pcg *rand.PCG
	r   *rand.Rand
}

func New(seed int64) *Seeded {
	pcg := rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15)
	return &Seeded{pcg: pcg, r: rand.New(pcg)}
}

func (s *Seeded) IntN(n int) int    { return s.r.IntN(n) }
func (s *Seeded) Float64() float64 { return s.r.Float64() }

func (s *Seeded) MarshalBinary() ([]byte, error) { return s.pcg.MarshalBinary() }

func (s *Seeded) UnmarshalBinary(b []byte) error { return s.pcg.UnmarshalBinary(b) }

// Scripted replays canned draws in order. When a queue runs dry it
// returns zero.
type Scripted struct {
	Ints   []int
	Floats []float64
}

func (s *Scripted) IntN(n int) int {
	if len(s.Ints) == 0 {
		return 0
	}
	v := s.Ints[0]
	s.Ints = s.Ints[1:]
	if v >= n {
		v = n - 1
	}
	return v
}

func (s *Scripted) Float64() float64 {
	if len(s.Floats) == 0 {
		return 0
	}
	v := s.Floats[0]
	s.Floats = s.Floats[1:]
	return v
}
