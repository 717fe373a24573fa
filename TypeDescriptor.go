package ddscdr

//============================================= ddscdr TypeDescriptor


// TypeDescriptor is immutable topic metadata shared read-only across every
// sample of a topic: total in-memory size, natural alignment, a flag
// bitset, the bytecode ops stream, and the ordered list of key-field op
// indices the serializer must emit in. Spec §3.
type TypeDescriptor struct {
	Size  int
	Align int
	Flags uint32
	Ops   []uint32
	Keys  []int

	// OptSize caches the §4.2.2 fast-path eligibility: non-zero (equal to
	// Size) means every field is a primitive scalar or primitive array at
	// a naturally-aligned offset, so Write/Read may memcpy the whole body.
	OptSize int

	// TopicHash, if non-zero, disambiguates samples of different topics
	// that might otherwise collide in SerializedSample.Hash (spec §4.4).
	TopicHash uint32
}

// NewTypeDescriptor validates ops and returns a TypeDescriptor. It does not
// validate that the bytecode is semantically well-formed beyond what spec
// §1's Non-goals require ("generated by an IDL compiler which is trusted");
// it only checks the invariants spec §3 states plainly: the stream
// terminates with RTS, every key index addresses an ADR whose FLAG_KEY bit
// is set and whose tag is a simple key tag, and no complex array/sequence
// descriptor carries a zero jmp delta (this module's Open Question
// decision: reject, don't guess a fallback).
func NewTypeDescriptor(size, align int, flags uint32, ops []uint32) (*TypeDescriptor, error) {
	if len(ops) == 0 || Op(ops[len(ops)-1]>>24) != RTS {
		return nil, ErrBadOps
	}

	desc := &TypeDescriptor{Size: size, Align: align, Flags: flags, Ops: ops}

	keys, err := scanKeys(ops)
	if err != nil {
		return nil, err
	}
	desc.Keys = keys

	if err := checkZeroJumps(ops); err != nil {
		return nil, err
	}

	desc.OptSize = detectOptSize(ops, size)
	return desc, nil
}

// scanKeys walks ops linearly up to the first RTS, collecting the index of
// every ADR opcode whose FLAG_KEY bit is set and validating that it
// addresses a simple key tag (an array only with a primitive element tag).
// Key fields inside nested-struct subroutines placed after that RTS are not
// collected.
func scanKeys(ops []uint32) ([]int, error) {
	var keys []int
	pos := 0
	for pos < len(ops) {
		op, typ, subtype, flags := unpackOp(ops[pos])
		switch op {
		case RTS:
			return keys, nil
		case ADR:
			if flags&FlagKey != 0 {
				if !isSimpleKeyTag(typ) || (typ == TagARR && !isPrimitive(subtype)) {
					return nil, ErrBadOps
				}
				keys = append(keys, pos)
			}
			n, err := adrWordCount(ops, pos)
			if err != nil {
				return nil, err
			}
			pos += n
		case JSR:
			pos++
		case JEQ:
			pos += 3
		default:
			return nil, ErrBadOps
		}
	}
	return nil, ErrBadOps
}

// adrWordCount returns how many ops words (including the ADR word itself)
// the field starting at pos occupies, per the grammar in spec §4.2.
func adrWordCount(ops []uint32, pos int) (int, error) {
	if pos >= len(ops) {
		return 0, ErrBadOps
	}
	_, typ, subtype, _ := unpackOp(ops[pos])
	switch typ {
	case Tag1BY, Tag2BY, Tag4BY, Tag8BY, TagSTR:
		return 2, nil
	case TagBST:
		return 3, nil
	case TagARR:
		if isPrimitive(subtype) {
			return 3, nil
		}
		return 5, nil
	case TagSEQ:
		switch {
		case subtype == TagBST:
			return 3, nil
		case isPrimitive(subtype) || subtype == TagSTR:
			return 2, nil
		default:
			return 4, nil
		}
	case TagUNI:
		return 4, nil
	case TagSTU:
		return 2, nil
	default:
		return 0, ErrBadOps
	}
}

// checkZeroJumps rejects any ARR/SEQ-of-complex descriptor whose packed
// jmp_jsr delta is zero. Like scanKeys it stops at the first RTS, so
// descriptors inside subroutines placed after it are not checked.
func checkZeroJumps(ops []uint32) error {
	pos := 0
	for pos < len(ops) {
		op, typ, subtype, _ := unpackOp(ops[pos])
		switch op {
		case RTS:
			return nil
		case ADR:
			switch {
			case typ == TagARR && !isPrimitive(subtype):
				jmpJsr := ops[pos+3]
				if int16(jmpJsr&0xFFFF) == 0 {
					return ErrZeroJump
				}
			case typ == TagSEQ && subtype != TagBST && !isPrimitive(subtype) && subtype != TagSTR:
				jmpJsr := ops[pos+3]
				if int16(jmpJsr&0xFFFF) == 0 {
					return ErrZeroJump
				}
			}
			n, err := adrWordCount(ops, pos)
			if err != nil {
				return err
			}
			pos += n
		case JSR:
			pos++
		case JEQ:
			pos += 3
		default:
			return ErrBadOps
		}
	}
	return ErrBadOps
}

// detectOptSize implements spec §4.2.2: a type is eligible for the
// single-memcpy fast path if every ADR in its ops is a primitive scalar or
// a primitive array, at an offset that is already naturally aligned. On
// eligibility it returns size; otherwise 0.
func detectOptSize(ops []uint32, size int) int {
	pos := 0
	for pos < len(ops) {
		op, typ, subtype, _ := unpackOp(ops[pos])
		switch op {
		case RTS:
			return size
		case ADR:
			offset := int(ops[pos+1])
			switch typ {
			case Tag1BY, Tag2BY, Tag4BY, Tag8BY:
				elemSize := sizeOfTag(typ)
				if offset%elemSize != 0 {
					return 0
				}
				pos += 2
			case TagARR:
				if !isPrimitive(subtype) {
					return 0
				}
				elemSize := sizeOfTag(subtype)
				if offset%elemSize != 0 {
					return 0
				}
				pos += 3
			default:
				return 0
			}
		default:
			return 0
		}
	}
	return 0
}
