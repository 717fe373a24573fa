package ddscdr

import (
	"crypto/rand"
	"encoding/binary"
	"sync/atomic"
)

//============================================= ddscdr IIDGen

// IidGenerator produces monotonically increasing, process-unique 64-bit
// instance identifiers, spec §4.5.5. It is seeded from randomness at
// construction so that successive process restarts get disjoint ranges
// with high probability, then only ever increments: isolated behind this
// handle (rather than a package-level singleton) so a root process object
// owns its own IID space, per the Design Notes.
type IidGenerator struct {
	counter atomic.Uint64
}

// NewIidGenerator seeds a generator from crypto/rand.
func NewIidGenerator() *IidGenerator {
	g := &IidGenerator{}
	var seed [8]byte
	if _, err := rand.Read(seed[:]); err == nil {
		g.counter.Store(binary.BigEndian.Uint64(seed[:]))
	}
	return g
}

// Next returns the next IID. 0 is never returned, reserved as a NIL
// sentinel (spec §4.5.1 "lookup_iid(sample) -> IID or NIL").
func (g *IidGenerator) Next() uint64 {
	for {
		v := g.counter.Add(1)
		if v != 0 {
			return v
		}
	}
}
