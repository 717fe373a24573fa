package ddscdr

import (
	"crypto/md5"
	"encoding/binary"
)

//============================================= ddscdr KeyHasher

// KeyHash is the 16-byte identity digest of a sample's key fields, spec
// §4.3: either the literal big-endian key CDR (zero-padded, FIXED_KEY
// types) or an MD5 over the key CDR.
type KeyHash struct {
	Bytes [16]byte
	IsKey bool
	Flags uint8
}

// ComputeKeyHash derives the keyhash of sample under desc, spec §4.3.
//  1. No key fields at all: m_iskey=true, all-zero hash.
//  2. FIXED_KEY: key ops write directly into the 16-byte sink, big-endian,
//     zero-padded, no MD5.
//  3. Otherwise: key ops write into a growable big-endian stream, then MD5
//     digests that stream into the 16-byte hash.
func ComputeKeyHash(desc *TypeDescriptor, sample *Sample) (KeyHash, error) {
	var kh KeyHash
	kh.Flags = KeyHashSetFlag

	if len(desc.Keys) == 0 {
		kh.IsKey = true
		kh.Flags |= KeyHashHashSetFlag
		return kh, nil
	}

	if desc.Flags&FlagFixedKey != 0 {
		out := NewOctetStream(binary.BigEndian)
		if err := writeKeyFields(desc, sample, out); err != nil {
			return KeyHash{}, err
		}
		// FIXED_KEY types are only marked as such when their key CDR always
		// fits in 16 bytes (spec §3); the sink is zero-padded, never
		// reallocated past that bound.
		copy(kh.Bytes[:], out.Bytes())
		kh.IsKey = true
		kh.Flags |= KeyHashIsHashFlag | KeyHashHashSetFlag
		return kh, nil
	}

	out := NewOctetStream(binary.BigEndian)
	if err := writeKeyFields(desc, sample, out); err != nil {
		return KeyHash{}, err
	}
	sum := md5.Sum(out.Bytes())
	kh.Bytes = sum
	kh.IsKey = false
	kh.Flags |= KeyHashHashSetFlag
	return kh, nil
}

// ComputeKeyHashFromCDR derives the keyhash directly from a CDR-form key
// buffer (not an in-memory sample), used when a remote writer sent only the
// key, spec §4.3 "A second entry point derives the keyhash directly from a
// CDR-form key."
func ComputeKeyHashFromCDR(desc *TypeDescriptor, keyCDR []byte) KeyHash {
	var kh KeyHash
	kh.Flags = KeyHashSetFlag

	if len(desc.Keys) == 0 {
		kh.IsKey = true
		kh.Flags |= KeyHashHashSetFlag
		return kh
	}

	if desc.Flags&FlagFixedKey != 0 {
		copy(kh.Bytes[:], keyCDR)
		kh.IsKey = true
		kh.Flags |= KeyHashIsHashFlag | KeyHashHashSetFlag
		return kh
	}

	kh.Bytes = md5.Sum(keyCDR)
	kh.IsKey = false
	kh.Flags |= KeyHashHashSetFlag
	return kh
}

// writeKeyFields writes desc's key ops, in key order, into out.
func writeKeyFields(desc *TypeDescriptor, sample *Sample, out *OctetStream) error {
	for _, pos := range desc.Keys {
		if err := writeSimpleKeyField(desc.Ops, pos, sample, out); err != nil {
			return err
		}
	}
	return nil
}

