package ddscdr

//============================================= ddscdr Normalize

// maxCdrLength is the largest buffer Normalize will accept, spec §4.2.1.
const maxCdrLength = 0xFFFFFFF0

// Normalize validates buf against desc's ops and, if the wire's declared
// endianness differs from the host's, byte-swaps every primitive in place.
// It never touches a Sample: unlike Write/Read, Normalize runs once per
// received buffer before the buffer is trusted enough to deserialize, so it
// walks the wire bytes directly (spec §4.2.1). On any malformed input it
// returns ErrMalformedCDR, ErrBufferTooLarge or, for a union discriminant
// with no matching case and no default, ErrUnknownUnionCase, and the caller
// discards the buffer (spec §7.1: "never escalated"). An ops stream it cannot
// walk yields ErrBadOps.
func Normalize(desc *TypeDescriptor, body []byte, bigEndian bool) error {
	if len(body) > maxCdrLength {
		return ErrBufferTooLarge
	}
	n := &normalizer{buf: body, swap: bigEndian == HostIsLittleEndian()}
	return n.walk(desc.Ops, 0)
}

type normalizer struct {
	buf  []byte
	pos  int
	swap bool
}

func (n *normalizer) align(a int) error {
	if a <= 1 {
		return nil
	}
	pad := (a - n.pos%a) % a
	if n.pos+pad > len(n.buf) {
		return ErrMalformedCDR
	}
	n.pos += pad
	return nil
}

func (n *normalizer) take(size int) ([]byte, error) {
	if n.pos+size > len(n.buf) {
		return nil, ErrMalformedCDR
	}
	b := n.buf[n.pos : n.pos+size]
	n.pos += size
	return b, nil
}

func (n *normalizer) primitive(size int) error {
	if err := n.align(size); err != nil {
		return err
	}
	b, err := n.take(size)
	if err != nil {
		return err
	}
	if n.swap {
		swapPrimitiveInPlace(b, size)
	}
	return nil
}

// u32 reads (and, if needed, swaps) a 4-byte-aligned uint32, returning its
// host-order value for length/count checks.
func (n *normalizer) u32() (uint32, error) {
	if err := n.align(4); err != nil {
		return 0, err
	}
	b, err := n.take(4)
	if err != nil {
		return 0, err
	}
	if n.swap {
		swap4(b)
	}
	return memOrder.Uint32(b), nil
}

func (n *normalizer) str(bound int) error {
	length, err := n.u32()
	if err != nil {
		return err
	}
	if length == 0 {
		return ErrMalformedCDR
	}
	if bound != 0 && int(length) > bound {
		return ErrMalformedCDR
	}
	b, err := n.take(int(length))
	if err != nil {
		return err
	}
	if b[length-1] != 0 {
		return ErrMalformedCDR
	}
	return nil
}

func (n *normalizer) walk(ops []uint32, pos int) error {
	for {
		if pos >= len(ops) {
			return ErrBadOps
		}
		op, typ, subtype, flags := unpackOp(ops[pos])
		switch op {
		case RTS:
			return nil
		case JSR:
			delta := int16(ops[pos] & 0xFFFF)
			if err := n.walk(ops, pos+int(delta)); err != nil {
				return err
			}
			pos++
		case JEQ:
			pos += 3
		case ADR:
			switch typ {
			case Tag1BY:
				if err := n.primitive(1); err != nil {
					return err
				}
				pos += 2
			case Tag2BY:
				if err := n.primitive(2); err != nil {
					return err
				}
				pos += 2
			case Tag4BY:
				if err := n.primitive(4); err != nil {
					return err
				}
				pos += 2
			case Tag8BY:
				if err := n.primitive(8); err != nil {
					return err
				}
				pos += 2
			case TagSTR:
				if err := n.str(0); err != nil {
					return err
				}
				pos += 2
			case TagBST:
				bound := int(ops[pos+2])
				if err := n.str(bound); err != nil {
					return err
				}
				pos += 3
			case TagARR:
				count := int(ops[pos+2])
				if isPrimitive(subtype) {
					for i := 0; i < count; i++ {
						if err := n.primitive(sizeOfTag(subtype)); err != nil {
							return err
						}
					}
					pos += 3
				} else {
					jsrWord := pos + 3
					delta := int16(ops[jsrWord] & 0xFFFF)
					sub := jsrWord + int(delta)
					for i := 0; i < count; i++ {
						if err := n.walk(ops, sub); err != nil {
							return err
						}
					}
					pos += 5
				}
			case TagSEQ:
				switch {
				case subtype == TagBST:
					bound := int(ops[pos+2])
					count, err := n.u32()
					if err != nil {
						return err
					}
					for i := uint32(0); i < count; i++ {
						if err := n.str(bound); err != nil {
							return err
						}
					}
					pos += 3
				case subtype == TagSTR:
					count, err := n.u32()
					if err != nil {
						return err
					}
					for i := uint32(0); i < count; i++ {
						if err := n.str(0); err != nil {
							return err
						}
					}
					pos += 2
				case isPrimitive(subtype):
					count, err := n.u32()
					if err != nil {
						return err
					}
					for i := uint32(0); i < count; i++ {
						if err := n.primitive(sizeOfTag(subtype)); err != nil {
							return err
						}
					}
					pos += 2
				default:
					jsrWord := pos + 3
					delta := int16(ops[jsrWord] & 0xFFFF)
					sub := jsrWord + int(delta)
					count, err := n.u32()
					if err != nil {
						return err
					}
					for i := uint32(0); i < count; i++ {
						if err := n.walk(ops, sub); err != nil {
							return err
						}
					}
					pos += 4
				}
			case TagUNI:
				if err := n.union(ops, pos, flags); err != nil {
					return err
				}
				pos += 4
			case TagSTU:
				pos += 2
			default:
				return ErrBadOps
			}
		default:
			return ErrBadOps
		}
	}
}

func (n *normalizer) union(ops []uint32, pos int, flags uint8) error {
	_, _, discTag, _ := unpackOp(ops[pos])
	numCases := int(ops[pos+2])
	jsrWord := pos + 3
	delta := int16(ops[jsrWord] & 0xFFFF)
	caseTable := jsrWord + int(delta)

	var discVal uint32
	var err error
	switch discTag {
	case Tag1BY:
		err = n.primitive(1)
		if err == nil {
			discVal = uint32(n.buf[n.pos-1])
		}
	case Tag2BY:
		if err = n.align(2); err == nil {
			var b []byte
			if b, err = n.take(2); err == nil {
				if n.swap {
					swap2(b)
				}
				discVal = uint32(memOrder.Uint16(b))
			}
		}
	case Tag4BY:
		discVal, err = n.u32()
	case Tag8BY:
		if err = n.align(8); err == nil {
			var b []byte
			if b, err = n.take(8); err == nil {
				if n.swap {
					swap8(b)
				}
				discVal = uint32(memOrder.Uint64(b))
			}
		}
	}
	if err != nil {
		return err
	}

	caseOff, caseTag, err := findUnionCase(ops, caseTable, numCases, flags, discVal)
	if err != nil {
		return err
	}
	_ = caseOff
	switch caseTag {
	case Tag1BY:
		return n.primitive(1)
	case Tag2BY:
		return n.primitive(2)
	case Tag4BY:
		return n.primitive(4)
	case Tag8BY:
		return n.primitive(8)
	case TagSTR:
		return n.str(0)
	default:
		return ErrBadOps
	}
}
