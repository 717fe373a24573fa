package ddscdr

import (
	"encoding/binary"

	"github.com/spaolacci/murmur3"
)

//============================================= ddscdr SerializedSample

// SerializedSample is a CDR-header-prefixed wire buffer plus the
// out-of-band metadata the map and comparator need but that is never
// itself serialized: a lazily computed 32-bit hash and a 16-byte keyhash
// with its set/iskey flags (spec §3).
type SerializedSample struct {
	Header CdrHeader
	Body   []byte

	Topic *TypeDescriptor

	keyhash    KeyHash
	keyhashSet bool

	hash    uint32
	hashSet bool
}

// NewSerializedSample wraps a CDR body (already padded to a 4-byte
// boundary) with its header and owning topic.
func NewSerializedSample(topic *TypeDescriptor, header CdrHeader, body []byte) *SerializedSample {
	return &SerializedSample{Header: header, Body: body, Topic: topic}
}

// SetKeyHash installs a precomputed keyhash, e.g. one derived by KeyHasher
// at the point the sample was built.
func (s *SerializedSample) SetKeyHash(kh KeyHash) {
	s.keyhash = kh
	s.keyhashSet = true
}

// KeyHash returns the sample's keyhash, computing it on first use via
// ExtractKeyBE + KeyHasher if the caller never set one explicitly (spec
// §4.5.2: "the caller is required to populate the keyhash before
// lookup/insert; this is the point at which missing-keyhash is generated
// via KeyHasher").
func (s *SerializedSample) KeyHash() (KeyHash, error) {
	if s.keyhashSet {
		return s.keyhash, nil
	}
	in := NewOctetStreamFromBytes(orderForIdentifier(s.Header.Identifier), s.Body)
	keyOut := NewOctetStream(binary.BigEndian)
	if err := ExtractKeyBE(s.Topic, in, keyOut); err != nil {
		return KeyHash{}, err
	}
	kh := ComputeKeyHashFromCDR(s.Topic, keyOut.Bytes())
	s.keyhash = kh
	s.keyhashSet = true
	return kh, nil
}

// Hash returns the sample's 32-bit map-slot hash, spec §4.4: the first 4
// bytes of the MD5 (little-endian) when the keyhash is a digest, or
// MurmurHash3_x86_32(seed=0) over the 16-byte keyhash when it is the
// literal key, XORed with the topic's own hash to disambiguate types
// sharing a keyhash space. Cached after first computation.
func (s *SerializedSample) Hash() (uint32, error) {
	if s.hashSet {
		return s.hash, nil
	}
	kh, err := s.KeyHash()
	if err != nil {
		return 0, err
	}

	var h uint32
	if !kh.IsKey {
		h = binary.LittleEndian.Uint32(kh.Bytes[:4])
	} else {
		h = murmur3.Sum32WithSeed(kh.Bytes[:], 0)
	}

	if s.Topic != nil {
		h ^= s.Topic.TopicHash
	}

	s.hash = h
	s.hashSet = true
	return h, nil
}

// SerdataCmp implements spec §4.5.2's comparator: 0 if a and b are the same
// keyless-topic default instance, the sign of the topic pointer difference
// if the topics differ, otherwise a byte comparison of the two keyhashes
// (both of which must already be set).
func SerdataCmp(a, b *SerializedSample) (int, error) {
	if a.Topic != b.Topic {
		pa, pb := topicOrdinal(a.Topic), topicOrdinal(b.Topic)
		switch {
		case pa < pb:
			return -1, nil
		case pa > pb:
			return 1, nil
		default:
			return 0, nil
		}
	}
	if len(a.Topic.Keys) == 0 {
		return 0, nil
	}
	ka, err := a.KeyHash()
	if err != nil {
		return 0, err
	}
	kb, err := b.KeyHash()
	if err != nil {
		return 0, err
	}
	for i := 0; i < 16; i++ {
		if ka.Bytes[i] != kb.Bytes[i] {
			if ka.Bytes[i] < kb.Bytes[i] {
				return -1, nil
			}
			return 1, nil
		}
	}
	return 0, nil
}

// topicOrdinal stands in for the original's raw topic-descriptor pointer
// comparison (spec §4.5.2 "sign of topic_ptr(a) - topic_ptr(b)"), which Go
// cannot portably perform on pointers; the topic's own hash is a stable,
// comparable substitute that still only equates identical topics (distinct
// topics are expected to register with distinct TopicHash values).
func topicOrdinal(t *TypeDescriptor) uint32 {
	if t == nil {
		return 0
	}
	return t.TopicHash
}
