package ddscdr_test

import (
	"encoding/binary"
	"testing"

	"github.com/sirgallo/ddscdr"
)

func buildPointDescriptor(t *testing.T) *ddscdr.TypeDescriptor {
	t.Helper()
	b := ddscdr.NewBuilder()
	b.Primitive(ddscdr.Tag4BY, 0, true)
	b.Primitive(ddscdr.Tag4BY, 4, false)
	b.RTS()
	desc, err := ddscdr.NewTypeDescriptor(8, 4, ddscdr.FlagFixedKey, b.Ops())
	if err != nil {
		t.Fatalf("NewTypeDescriptor: %v", err)
	}
	return desc
}

func TestWriteReadRoundTripPrimitives(t *testing.T) {
	desc := buildPointDescriptor(t)
	sample := ddscdr.NewSample(desc)
	sample.SetU32(0, 10)
	sample.SetU32(4, 20)

	out := ddscdr.NewOctetStream(binary.LittleEndian)
	if err := ddscdr.WriteFull(desc, sample, out); err != nil {
		t.Fatalf("WriteFull: %v", err)
	}

	in := ddscdr.NewOctetStreamFromBytes(binary.LittleEndian, out.Bytes())
	got := ddscdr.NewSample(desc)
	if err := ddscdr.ReadFull(desc, got, in); err != nil {
		t.Fatalf("ReadFull: %v", err)
	}
	if got.GetU32(0) != 10 || got.GetU32(4) != 20 {
		t.Fatalf("round trip mismatch: got (%d,%d), want (10,20)", got.GetU32(0), got.GetU32(4))
	}
}

// TestOptimizeFastPathMatchesMem exercises spec §8's "optimize agreement"
// property for an all-primitive, naturally aligned topic: the §4.2.2 fast
// path must emit exactly sample.Mem when the stream's order already
// matches the host's.
func TestOptimizeFastPathMatchesMem(t *testing.T) {
	desc := buildPointDescriptor(t)
	if desc.OptSize == 0 {
		t.Fatal("expected OptSize > 0 for an all-primitive, aligned struct")
	}
	sample := ddscdr.NewSample(desc)
	sample.SetU32(0, 10)
	sample.SetU32(4, 20)

	hostOrder := binary.ByteOrder(binary.BigEndian)
	if ddscdr.HostIsLittleEndian() {
		hostOrder = binary.LittleEndian
	}

	out := ddscdr.NewOctetStream(hostOrder)
	if err := ddscdr.WriteFull(desc, sample, out); err != nil {
		t.Fatalf("WriteFull: %v", err)
	}
	if string(out.Bytes()) != string(sample.Mem) {
		t.Fatalf("fast path output %v does not match Mem %v", out.Bytes(), sample.Mem)
	}
}

func buildWidgetDescriptor(t *testing.T) *ddscdr.TypeDescriptor {
	t.Helper()
	b := ddscdr.NewBuilder()
	b.Primitive(ddscdr.Tag4BY, 0, true)            // ID
	b.BoundedString(4, 8, false)                    // Label, bound 8
	b.PrimitiveArray(ddscdr.Tag4BY, 12, 3, false)    // Nums[3]
	b.PrimitiveSequence(ddscdr.Tag2BY, 1000, false) // Extra, side-table offset
	b.RTS()
	desc, err := ddscdr.NewTypeDescriptor(24, 4, 0, b.Ops())
	if err != nil {
		t.Fatalf("NewTypeDescriptor: %v", err)
	}
	return desc
}

func TestWriteReadRoundTripCompositeFields(t *testing.T) {
	desc := buildWidgetDescriptor(t)
	if desc.OptSize != 0 {
		t.Fatal("expected OptSize == 0: topic has a bounded string and a sequence")
	}

	sample := ddscdr.NewSample(desc)
	sample.SetU32(0, 42)
	copy(sample.Mem[4:12], "hi\x00\x00\x00\x00\x00\x00")
	sample.SetU32(12, 1)
	sample.SetU32(16, 2)
	sample.SetU32(20, 3)

	seqBuf := make([]byte, 4)
	binary.NativeEndian.PutUint16(seqBuf[0:2], 7)
	binary.NativeEndian.PutUint16(seqBuf[2:4], 9)
	sample.SetSeq(1000, &ddscdr.Sequence{Release: true, Len: 2, Max: 2, Prim: seqBuf})

	out := ddscdr.NewOctetStream(binary.LittleEndian)
	if err := ddscdr.WriteFull(desc, sample, out); err != nil {
		t.Fatalf("WriteFull: %v", err)
	}

	in := ddscdr.NewOctetStreamFromBytes(binary.LittleEndian, out.Bytes())
	got := ddscdr.NewSample(desc)
	if err := ddscdr.ReadFull(desc, got, in); err != nil {
		t.Fatalf("ReadFull: %v", err)
	}

	if got.GetU32(0) != 42 {
		t.Fatalf("ID = %d, want 42", got.GetU32(0))
	}
	if label := nulTerminated(got.Mem[4:12]); label != "hi" {
		t.Fatalf("Label = %q, want %q", label, "hi")
	}
	if got.GetU32(12) != 1 || got.GetU32(16) != 2 || got.GetU32(20) != 3 {
		t.Fatalf("Nums mismatch: %d,%d,%d", got.GetU32(12), got.GetU32(16), got.GetU32(20))
	}
	seq := got.Seq(1000)
	if seq.Len != 2 {
		t.Fatalf("Extra.Len = %d, want 2", seq.Len)
	}
	if binary.NativeEndian.Uint16(seq.Prim[0:2]) != 7 || binary.NativeEndian.Uint16(seq.Prim[2:4]) != 9 {
		t.Fatalf("Extra contents mismatch: %v", seq.Prim)
	}
}

func nulTerminated(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}

// TestNestedStructThreadsOffset builds ops by hand for an outer struct
// whose only field is a nested struct at offset 8, itself containing one
// uint32 field at offset 0 (relative to the nested field). This exercises
// the JSR/ADR(STU) base-threading the walker must perform: the inner
// field's absolute Mem offset is 8, not 0.
func TestNestedStructThreadsOffset(t *testing.T) {
	ops := []uint32{
		packOpForTest(ddscdr.ADR, ddscdr.TagSTU, 0, 0), 8,
		packOpForTest(ddscdr.JSR, 0, 0, 0) | 2,
		packOpForTest(ddscdr.RTS, 0, 0, 0),
		packOpForTest(ddscdr.ADR, ddscdr.Tag4BY, 0, ddscdr.FlagKey), 0,
		packOpForTest(ddscdr.RTS, 0, 0, 0),
	}
	desc, err := ddscdr.NewTypeDescriptor(12, 4, 0, ops)
	if err != nil {
		t.Fatalf("NewTypeDescriptor: %v", err)
	}

	sample := ddscdr.NewSample(desc)
	sample.SetU32(8, 99)

	out := ddscdr.NewOctetStream(binary.LittleEndian)
	if err := ddscdr.WriteFull(desc, sample, out); err != nil {
		t.Fatalf("WriteFull: %v", err)
	}

	in := ddscdr.NewOctetStreamFromBytes(binary.LittleEndian, out.Bytes())
	got := ddscdr.NewSample(desc)
	if err := ddscdr.ReadFull(desc, got, in); err != nil {
		t.Fatalf("ReadFull: %v", err)
	}
	if got.GetU32(8) != 99 {
		t.Fatalf("nested field at offset 8 = %d, want 99", got.GetU32(8))
	}
}

func packOpForTest(op ddscdr.Op, typ, subtype ddscdr.Tag, flags uint8) uint32 {
	return uint32(op)<<24 | uint32(typ)<<16 | uint32(subtype)<<8 | uint32(flags)
}

// TestUnionRoundTrip reproduces spec §8 scenario 5: a uint8 discriminant
// selecting a uint32 case.
func TestUnionRoundTrip(t *testing.T) {
	b := ddscdr.NewBuilder()
	b.Union(ddscdr.Tag1BY, 0, []ddscdr.UnionCase{
		{Tag: ddscdr.Tag4BY, DiscValue: 1, Offset: 4},
		{Tag: ddscdr.Tag4BY, DiscValue: 2, Offset: 4},
	}, false, false)
	b.RTS()
	desc, err := ddscdr.NewTypeDescriptor(8, 4, 0, b.Ops())
	if err != nil {
		t.Fatalf("NewTypeDescriptor: %v", err)
	}

	sample := ddscdr.NewSample(desc)
	sample.SetU8(0, 2)
	sample.SetU32(4, 0x11223344)

	out := ddscdr.NewOctetStream(binary.LittleEndian)
	if err := ddscdr.WriteFull(desc, sample, out); err != nil {
		t.Fatalf("WriteFull: %v", err)
	}
	want := []byte{0x02, 0x00, 0x00, 0x00, 0x44, 0x33, 0x22, 0x11}
	if string(out.Bytes()) != string(want) {
		t.Fatalf("got % x, want % x", out.Bytes(), want)
	}

	in := ddscdr.NewOctetStreamFromBytes(binary.LittleEndian, out.Bytes())
	got := ddscdr.NewSample(desc)
	if err := ddscdr.ReadFull(desc, got, in); err != nil {
		t.Fatalf("ReadFull: %v", err)
	}
	if got.GetU8(0) != 2 || got.GetU32(4) != 0x11223344 {
		t.Fatalf("round trip mismatch: disc=%d value=%#x", got.GetU8(0), got.GetU32(4))
	}
}
