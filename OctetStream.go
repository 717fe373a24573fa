package ddscdr

import "encoding/binary"

//============================================= ddscdr OctetStream


// growChunk is the unit the backing buffer grows by once the write cursor
// would exceed capacity, per spec §4.1.
const growChunk = 4096

// OctetStream is an in-memory, growable CDR body buffer. Primitives are
// aligned relative to the start of the body (index 0 of buf), not relative
// to any header the caller may prefix separately.
type OctetStream struct {
	buf   []byte
	pos   int
	order binary.ByteOrder
}

// NewOctetStream returns an empty stream using the given byte order.
func NewOctetStream(order binary.ByteOrder) *OctetStream {
	return &OctetStream{buf: make([]byte, 0, growChunk), order: order}
}

// NewOctetStreamFromBytes wraps an existing buffer for reading.
func NewOctetStreamFromBytes(order binary.ByteOrder, b []byte) *OctetStream {
	return &OctetStream{buf: b, order: order}
}

// Bytes returns the written body, zero-padded to a 4-byte boundary by the
// caller (the OctetStream itself does not know where the body ends until
// told; see Pad4).
func (s *OctetStream) Bytes() []byte { return s.buf }

// Pos is the current read/write cursor, relative to body start.
func (s *OctetStream) Pos() int { return s.pos }

// Len is the number of bytes written so far.
func (s *OctetStream) Len() int { return len(s.buf) }

// grow ensures cap(buf) can hold n additional bytes past the current length,
// growing in 4 KiB chunks.
func (s *OctetStream) grow(n int) {
	need := len(s.buf) + n
	if need <= cap(s.buf) {
		return
	}
	newCap := ((need + growChunk - 1) / growChunk) * growChunk
	grown := make([]byte, len(s.buf), newCap)
	copy(grown, s.buf)
	s.buf = grown
}

// align pads the write cursor with zero bytes until pos%a==0, relative to
// body start, and returns the number of pad bytes written.
func (s *OctetStream) align(a int) int {
	if a <= 1 {
		return 0
	}
	pad := (a - s.pos%a) % a
	if pad == 0 {
		return 0
	}
	s.grow(pad)
	s.buf = append(s.buf, make([]byte, pad)...)
	s.pos += pad
	return pad
}

// Put1 writes a single byte; no alignment required.
func (s *OctetStream) Put1(v uint8) {
	s.grow(1)
	s.buf = append(s.buf, v)
	s.pos++
}

// Put2 aligns to 2 bytes then writes a uint16 in the stream's byte order.
func (s *OctetStream) Put2(v uint16) {
	s.align(2)
	s.grow(2)
	var tmp [2]byte
	s.order.PutUint16(tmp[:], v)
	s.buf = append(s.buf, tmp[:]...)
	s.pos += 2
}

// Put4 aligns to 4 bytes then writes a uint32 in the stream's byte order.
func (s *OctetStream) Put4(v uint32) {
	s.align(4)
	s.grow(4)
	var tmp [4]byte
	s.order.PutUint32(tmp[:], v)
	s.buf = append(s.buf, tmp[:]...)
	s.pos += 4
}

// Put8 aligns to 8 bytes then writes a uint64 in the stream's byte order.
func (s *OctetStream) Put8(v uint64) {
	s.align(8)
	s.grow(8)
	var tmp [8]byte
	s.order.PutUint64(tmp[:], v)
	s.buf = append(s.buf, tmp[:]...)
	s.pos += 8
}

// PutBytes copies p into the stream unaligned.
func (s *OctetStream) PutBytes(p []byte) {
	s.grow(len(p))
	s.buf = append(s.buf, p...)
	s.pos += len(p)
}

// PutBytesAligned aligns to a, then copies p.
func (s *OctetStream) PutBytesAligned(p []byte, a int) {
	s.align(a)
	s.PutBytes(p)
}

// WriteString emits a CDR string: uint32 length (including the NUL), the
// bytes, then the NUL byte. An empty string serializes as length 1 and one
// NUL byte.
func (s *OctetStream) WriteString(str string) {
	s.Put4(uint32(len(str) + 1))
	s.PutBytes([]byte(str))
	s.Put1(0)
}

// Pad4 zero-pads the stream until Len()%4==0 and returns the pad count
// written, matching the options-field pad-count convention of spec §3/§6.1.
func (s *OctetStream) Pad4() int {
	pad := (4 - len(s.buf)%4) % 4
	if pad == 0 {
		return 0
	}
	s.grow(pad)
	s.buf = append(s.buf, make([]byte, pad)...)
	s.pos += pad
	return pad
}

// alignRead advances the read cursor to the next multiple of a, without
// validating bounds (callers that need bounds checking use Normalize first).
func (s *OctetStream) alignRead(a int) {
	if a <= 1 {
		return
	}
	pad := (a - s.pos%a) % a
	s.pos += pad
}

// Get1 reads a single byte.
func (s *OctetStream) Get1() uint8 {
	v := s.buf[s.pos]
	s.pos++
	return v
}

// Get2 aligns to 2 bytes then reads a uint16.
func (s *OctetStream) Get2() uint16 {
	s.alignRead(2)
	v := s.order.Uint16(s.buf[s.pos:])
	s.pos += 2
	return v
}

// Get4 aligns to 4 bytes then reads a uint32.
func (s *OctetStream) Get4() uint32 {
	s.alignRead(4)
	v := s.order.Uint32(s.buf[s.pos:])
	s.pos += 4
	return v
}

// Get8 aligns to 8 bytes then reads a uint64.
func (s *OctetStream) Get8() uint64 {
	s.alignRead(8)
	v := s.order.Uint64(s.buf[s.pos:])
	s.pos += 8
	return v
}

// GetBytes reads n unaligned bytes.
func (s *OctetStream) GetBytes(n int) []byte {
	v := s.buf[s.pos : s.pos+n]
	s.pos += n
	return v
}

// ReadString reads a CDR string: length (including NUL), bytes, NUL. The
// returned string excludes the terminating NUL.
func (s *OctetStream) ReadString() string {
	n := s.Get4()
	b := s.GetBytes(int(n))
	if n == 0 {
		return ""
	}
	return string(b[:n-1])
}

// Remaining is the number of unread bytes left in the stream.
func (s *OctetStream) Remaining() int {
	return len(s.buf) - s.pos
}

// Seek repositions the read/write cursor, relative to body start.
func (s *OctetStream) Seek(pos int) { s.pos = pos }
