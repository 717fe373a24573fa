package ddscdr_test

import (
	"encoding/binary"
	"testing"

	"github.com/spaolacci/murmur3"

	"github.com/sirgallo/ddscdr"
)

func wrapAsSerializedSample(t *testing.T, desc *ddscdr.TypeDescriptor, sample *ddscdr.Sample) *ddscdr.SerializedSample {
	t.Helper()
	hostLE := ddscdr.HostIsLittleEndian()
	order := binary.ByteOrder(binary.BigEndian)
	id := ddscdr.CdrPlainBE
	if hostLE {
		order = binary.LittleEndian
		id = ddscdr.CdrPlainLE
	}
	out := ddscdr.NewOctetStream(order)
	if err := ddscdr.WriteFull(desc, sample, out); err != nil {
		t.Fatalf("WriteFull: %v", err)
	}
	return ddscdr.NewSerializedSample(desc, ddscdr.CdrHeader{Identifier: id}, out.Bytes())
}

func TestSerializedSampleHashIsCachedAndXorsTopicHash(t *testing.T) {
	desc := buildPointDescriptor(t)
	desc.TopicHash = 0xABCD1234

	sample := ddscdr.NewSample(desc)
	sample.SetU32(0, 42)
	ss := wrapAsSerializedSample(t, desc, sample)

	h1, err := ss.Hash()
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	h2, err := ss.Hash()
	if err != nil {
		t.Fatalf("Hash (cached): %v", err)
	}
	if h1 != h2 {
		t.Fatalf("Hash not stable across calls: %d vs %d", h1, h2)
	}

	kh, err := ss.KeyHash()
	if err != nil {
		t.Fatalf("KeyHash: %v", err)
	}
	want := murmur3.Sum32WithSeed(kh.Bytes[:], 0) ^ desc.TopicHash
	if h1 != want {
		t.Fatalf("Hash = %d, want %d", h1, want)
	}
}

func TestSerializedSampleHashUsesMD5PrefixForDigestKeys(t *testing.T) {
	b := ddscdr.NewBuilder()
	b.UnboundedString(0, true)
	b.RTS()
	desc, err := ddscdr.NewTypeDescriptor(8, 8, 0, b.Ops())
	if err != nil {
		t.Fatalf("NewTypeDescriptor: %v", err)
	}

	sample := ddscdr.NewSample(desc)
	sample.SetString(0, "hello")
	ss := wrapAsSerializedSample(t, desc, sample)

	kh, err := ss.KeyHash()
	if err != nil {
		t.Fatalf("KeyHash: %v", err)
	}
	if kh.IsKey {
		t.Fatal("expected IsKey false for an MD5-digest key")
	}

	h, err := ss.Hash()
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	want := binary.LittleEndian.Uint32(kh.Bytes[:4])
	if h != want {
		t.Fatalf("Hash = %d, want %d (first 4 bytes of MD5, LE)", h, want)
	}
}

func TestSerializedSampleDifferentTopicsOrderByTopicHash(t *testing.T) {
	descA := buildPointDescriptor(t)
	descA.TopicHash = 1
	descB := buildPointDescriptor(t)
	descB.TopicHash = 2

	sampleA := ddscdr.NewSample(descA)
	sampleA.SetU32(0, 1)
	sampleB := ddscdr.NewSample(descB)
	sampleB.SetU32(0, 1)

	ssA := wrapAsSerializedSample(t, descA, sampleA)
	ssB := wrapAsSerializedSample(t, descB, sampleB)

	cmp, err := ddscdr.SerdataCmp(ssA, ssB)
	if err != nil {
		t.Fatalf("SerdataCmp: %v", err)
	}
	if cmp >= 0 {
		t.Fatalf("SerdataCmp(A,B) = %d, want < 0 (A's topic hash is smaller)", cmp)
	}
}
