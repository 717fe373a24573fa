package ddscdr

//============================================= ddscdr ExtractKey

// ExtractKey reads a full-data CDR body from in, copying only the FLAG_KEY
// fields (in ops order) into out and skipping every non-key field by its
// exact on-wire size. It never materializes a Sample: this is a pure
// wire-to-wire projection, spec §4.2.3.
func ExtractKey(desc *TypeDescriptor, in, out *OctetStream) error {
	return extractKeyWalk(desc.Ops, 0, in, out)
}

// ExtractKeyBE is the big-endian variant used when the projected key feeds
// keyhash computation (spec §4.2.3, §4.3): out must already be constructed
// with a big-endian OctetStream (NewOctetStream(binary.BigEndian)); this
// function differs from ExtractKey only in that it asserts nothing about
// endianness itself — the caller's choice of out's byte order is what makes
// it the BE variant.
func ExtractKeyBE(desc *TypeDescriptor, in, out *OctetStream) error {
	return ExtractKey(desc, in, out)
}

func extractKeyWalk(ops []uint32, pos int, in, out *OctetStream) error {
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
			if err := extractKeyWalk(ops, pos+int(delta), in, out); err != nil {
				return err
			}
			pos++
		case JEQ:
			pos += 3
		case ADR:
			isKey := flags&FlagKey != 0
			switch typ {
			case Tag1BY:
				v := in.Get1()
				if isKey {
					out.Put1(v)
				}
				pos += 2
			case Tag2BY:
				v := in.Get2()
				if isKey {
					out.Put2(v)
				}
				pos += 2
			case Tag4BY:
				v := in.Get4()
				if isKey {
					out.Put4(v)
				}
				pos += 2
			case Tag8BY:
				v := in.Get8()
				if isKey {
					out.Put8(v)
				}
				pos += 2
			case TagSTR:
				v := in.ReadString()
				if isKey {
					out.WriteString(v)
				}
				pos += 2
			case TagBST:
				v := in.ReadString()
				if isKey {
					out.WriteString(v)
				}
				pos += 3
			case TagARR:
				count := int(ops[pos+2])
				if isPrimitive(subtype) {
					elemSize := sizeOfTag(subtype)
					b := make([]byte, count*elemSize)
					readPrimArray(b, subtype, in)
					if isKey {
						writePrimArray(b, subtype, out)
					}
					pos += 3
				} else {
					jsrWord := pos + 3
					delta := int16(ops[jsrWord] & 0xFFFF)
					sub := jsrWord + int(delta)
					for i := 0; i < count; i++ {
						if err := extractKeyWalk(ops, sub, in, out); err != nil {
							return err
						}
					}
					pos += 5
				}
			case TagSEQ:
				switch {
				case subtype == TagBST, subtype == TagSTR:
					n := int(in.Get4())
					for i := 0; i < n; i++ {
						v := in.ReadString()
						if isKey {
							out.WriteString(v)
						}
					}
					if subtype == TagBST {
						pos += 3
					} else {
						pos += 2
					}
				case isPrimitive(subtype):
					n := int(in.Get4())
					elemSize := sizeOfTag(subtype)
					b := make([]byte, n*elemSize)
					readPrimArray(b, subtype, in)
					if isKey {
						out.Put4(uint32(n))
						writePrimArray(b, subtype, out)
					}
					pos += 2
				default:
					jsrWord := pos + 3
					delta := int16(ops[jsrWord] & 0xFFFF)
					sub := jsrWord + int(delta)
					n := int(in.Get4())
					for i := 0; i < n; i++ {
						if err := extractKeyWalk(ops, sub, in, out); err != nil {
							return err
						}
					}
					pos += 4
				}
			case TagUNI:
				if err := extractKeyUnion(ops, pos, flags, in, out); err != nil {
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

// extractKeyUnion skips the discriminant and matching case value; it never
// copies them to out. A union is never a key field (spec §3's key tags do
// not include UNI), but its presence on the path to a later key field must
// still be walked past correctly.
func extractKeyUnion(ops []uint32, pos int, flags uint8, in, out *OctetStream) error {
	_, _, discTag, _ := unpackOp(ops[pos])
	numCases := int(ops[pos+2])
	jsrWord := pos + 3
	delta := int16(ops[jsrWord] & 0xFFFF)
	caseTable := jsrWord + int(delta)

	discVal := readDiscriminantWire(in, discTag)

	_, caseTag, err := findUnionCase(ops, caseTable, numCases, flags, discVal)
	if err != nil {
		return err
	}
	switch caseTag {
	case Tag1BY:
		in.Get1()
	case Tag2BY:
		in.Get2()
	case Tag4BY:
		in.Get4()
	case Tag8BY:
		in.Get8()
	case TagSTR:
		in.ReadString()
	default:
		return ErrBadOps
	}
	return nil
}
