package ddscdr

import "encoding/binary"

//============================================= ddscdr Sample


// Scalars stored directly in Mem use the host's native byte order; Mem is
// this module's stand-in for "the user struct's raw memory", and a real
// struct's integer fields are naturally in host order until a CDR codec
// translates them. Conversion to/from the wire's chosen endianness happens
// only in the Walker, at the Mem/OctetStream boundary.
var memOrder = binary.NativeEndian


// Sample is the in-memory representation of a user topic instance. Rather
// than reaching fields through unsafe pointer arithmetic the way the C
// core does (base_ptr + opcode_offset), Sample models the struct as an
// addressable byte slab (Mem) plus two side tables for the two field kinds
// that are owned-pointer indirections in the original memory layout:
// unbounded strings and sequences. Both side tables are keyed by the
// field's absolute byte offset within Mem, which is unique per field
// instance even inside arrays of nested structs, so no unsafe conversions
// are needed anywhere in the walker. See Design Notes "Pointer-offset
// arithmetic in walker".
type Sample struct {
	Mem       []byte
	Strings   map[int]string
	Sequences map[int]*Sequence
}

// NewSample allocates a zeroed Sample sized for desc.
func NewSample(desc *TypeDescriptor) *Sample {
	return &Sample{Mem: make([]byte, desc.Size)}
}

// GetU8, GetU16, GetU32, GetU64 read a scalar out of Mem at byte offset off.
func (s *Sample) GetU8(off int) uint8   { return s.Mem[off] }
func (s *Sample) GetU16(off int) uint16 { return memOrder.Uint16(s.Mem[off:]) }
func (s *Sample) GetU32(off int) uint32 { return memOrder.Uint32(s.Mem[off:]) }
func (s *Sample) GetU64(off int) uint64 { return memOrder.Uint64(s.Mem[off:]) }

// SetU8, SetU16, SetU32, SetU64 write a scalar into Mem at byte offset off.
func (s *Sample) SetU8(off int, v uint8)   { s.Mem[off] = v }
func (s *Sample) SetU16(off int, v uint16) { memOrder.PutUint16(s.Mem[off:], v) }
func (s *Sample) SetU32(off int, v uint32) { memOrder.PutUint32(s.Mem[off:], v) }
func (s *Sample) SetU64(off int, v uint64) { memOrder.PutUint64(s.Mem[off:], v) }

// String returns the unbounded string stored at absolute offset off.
func (s *Sample) String(off int) string {
	if s.Strings == nil {
		return ""
	}
	return s.Strings[off]
}

// SetString stores an unbounded string at absolute offset off.
func (s *Sample) SetString(off int, v string) {
	if s.Strings == nil {
		s.Strings = make(map[int]string)
	}
	s.Strings[off] = v
}

// Seq returns the sequence stored at absolute offset off, allocating an
// empty one (release=true, the Go-owned default) if none exists yet.
func (s *Sample) Seq(off int) *Sequence {
	if s.Sequences == nil {
		s.Sequences = make(map[int]*Sequence)
	}
	seq, ok := s.Sequences[off]
	if !ok {
		seq = &Sequence{Release: true}
		s.Sequences[off] = seq
	}
	return seq
}

// SetSeq installs seq at absolute offset off.
func (s *Sample) SetSeq(off int, seq *Sequence) {
	if s.Sequences == nil {
		s.Sequences = make(map[int]*Sequence)
	}
	s.Sequences[off] = seq
}

// Sequence mirrors the C core's `{len, max, buf, release}` sequence
// descriptor (spec §4.2, SEQ tag). Exactly one element storage field is
// populated, chosen by the sequence's element tag at construction time:
// Prim for primitive elements packed contiguously, Strs for STR/BST
// elements, Nodes for complex (nested-struct) elements. Unlike an ARR,
// which is inline in its parent's Mem, a SEQ is an owned-pointer
// indirection (spec §3 "Sample... indirection via owned pointers for
// unbounded strings and sequences"); a complex element therefore gets its
// own boxed Sample rather than a slice carved out of the parent's Mem, so
// it can carry its own Strings/Sequences side tables.
type Sequence struct {
	// Release reports whether Go owns this buffer (true) or the caller
	// lent memory with a fixed Max capacity (false). When Release is false
	// and an incoming primitive-element sequence is longer than Max, the
	// read path truncates to Max and skips the excess on the wire. String
	// and nested-struct sequences do not honour Release: the read path
	// replaces them with a new Go-owned sequence of the full wire length.
	Release bool
	Max     int
	Len     int

	Prim  []byte
	Strs  []string
	Nodes []*Sample
}
