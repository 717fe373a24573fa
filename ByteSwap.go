package ddscdr

import (
	"encoding/binary"
)

//============================================= ddscdr ByteSwap / CDR header


// CDR representation identifiers, spec §6.1.
const (
	CdrPlainBE uint16 = 0x0000
	CdrPlainLE uint16 = 0x0001
	CdrPLBE    uint16 = 0x0002
	CdrPLLE    uint16 = 0x0003
)

// CdrHeader is the 4-byte prefix of a SerializedSample body: a 2-byte
// representation identifier and 2-byte options, whose low bits carry the
// trailing pad count needed to reach a 4-byte boundary (spec §3/§6.1).
type CdrHeader struct {
	Identifier uint16
	Options    uint16
}

// LittleEndian reports whether this header's identifier selects an LE body.
func (h CdrHeader) LittleEndian() bool {
	return h.Identifier == CdrPlainLE || h.Identifier == CdrPLLE
}

// PadCount extracts the trailing pad-byte count encoded in Options, big
// endian per spec §6.1 ("options low 2 bits... in big-endian").
func (h CdrHeader) PadCount() int {
	return int(h.Options & 0x3)
}

// EncodeCdrHeader writes the 4-byte CDR header: identifier and options are
// both written big-endian regardless of the body's own endianness, matching
// the wire convention documented in spec §6.1.
func EncodeCdrHeader(h CdrHeader) [4]byte {
	var out [4]byte
	binary.BigEndian.PutUint16(out[0:2], h.Identifier)
	binary.BigEndian.PutUint16(out[2:4], h.Options)
	return out
}

// DecodeCdrHeader parses the 4-byte CDR header prefix of a wire buffer.
func DecodeCdrHeader(b []byte) CdrHeader {
	return CdrHeader{
		Identifier: binary.BigEndian.Uint16(b[0:2]),
		Options:    binary.BigEndian.Uint16(b[2:4]),
	}
}

// orderForIdentifier returns the byte order a body with the given CDR
// identifier should be read/written in.
func orderForIdentifier(id uint16) binary.ByteOrder {
	if id == CdrPlainLE || id == CdrPLLE {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

// HostIsLittleEndian detects the runtime's native byte order using the
// standard uint16(1) trick, since Go has no builtin for this.
func HostIsLittleEndian() bool {
	var x uint16 = 1
	var b [2]byte
	binary.NativeEndian.PutUint16(b[:], x)
	return b[0] == 1
}

// swap2 byte-swaps a uint16 in place.
func swap2(b []byte) {
	b[0], b[1] = b[1], b[0]
}

// swap4 byte-swaps a uint32 in place.
func swap4(b []byte) {
	b[0], b[1], b[2], b[3] = b[3], b[2], b[1], b[0]
}

// swap8 byte-swaps a uint64 in place.
func swap8(b []byte) {
	b[0], b[1], b[2], b[3], b[4], b[5], b[6], b[7] =
		b[7], b[6], b[5], b[4], b[3], b[2], b[1], b[0]
}

// swapPrimitiveInPlace byte-swaps the size-byte primitive at b[0:size] in
// place; size must be 1, 2, 4, or 8. Used by Normalize when the incoming
// buffer's endianness differs from the host's.
func swapPrimitiveInPlace(b []byte, size int) {
	switch size {
	case 2:
		swap2(b)
	case 4:
		swap4(b)
	case 8:
		swap8(b)
	}
}
