package ddscdr

import "encoding/binary"

//============================================= ddscdr Walker


func littleEndian() binary.ByteOrder { return binary.LittleEndian }


// WriteFull serializes every field of sample, in ops order, into out. This
// is the KIND=DATA path of spec §3: "a full-data sample serializes every
// field in ops order."
func WriteFull(desc *TypeDescriptor, sample *Sample, out *OctetStream) error {
	if desc.OptSize != 0 && sameAsMemOrder(out) {
		out.PutBytes(sample.Mem[:desc.OptSize])
		return nil
	}
	return walkWrite(desc.Ops, 0, 0, sample, out)
}

// ReadFull deserializes in into sample, in ops order.
func ReadFull(desc *TypeDescriptor, sample *Sample, in *OctetStream) error {
	if desc.OptSize != 0 && sameAsMemOrder(in) {
		sample.Mem = append(sample.Mem[:0], in.GetBytes(desc.OptSize)...)
		return nil
	}
	return walkRead(desc.Ops, 0, 0, sample, in)
}

// sameAsMemOrder reports whether a stream's byte order matches the order
// Sample.Mem stores scalars in, the precondition for the §4.2.2 raw-copy
// fast path. In the original this check also requires the destination
// buffer to sit on an 8-byte-aligned machine address; Go slices carry no
// such hardware alignment requirement (unaligned access is never undefined
// behavior here), so that half of the original condition is vacuously true
// in this port.
func sameAsMemOrder(s *OctetStream) bool {
	return HostIsLittleEndian() == (s.order == littleEndian())
}

// WriteKey serializes only the key fields of sample, in key order, per
// spec §3: "a sample carrying only the key... serializes only the key
// fields in key order." Per the §3 invariant every key op addresses a
// simple key tag (integer, string, or array of integers), so this does not
// need the general recursive walker.
func WriteKey(desc *TypeDescriptor, sample *Sample, out *OctetStream) error {
	for _, pos := range desc.Keys {
		if err := writeSimpleKeyField(desc.Ops, pos, sample, out); err != nil {
			return err
		}
	}
	return nil
}

func writeSimpleKeyField(ops []uint32, pos int, sample *Sample, out *OctetStream) error {
	_, typ, subtype, _ := unpackOp(ops[pos])
	off := int(ops[pos+1])
	switch typ {
	case Tag1BY:
		out.Put1(sample.GetU8(off))
	case Tag2BY:
		out.Put2(sample.GetU16(off))
	case Tag4BY:
		out.Put4(sample.GetU32(off))
	case Tag8BY:
		out.Put8(sample.GetU64(off))
	case TagSTR:
		out.WriteString(sample.String(off))
	case TagBST:
		bound := int(ops[pos+2])
		writeBoundedStringFromMem(sample.Mem[off:off+bound], out)
	case TagARR:
		if !isPrimitive(subtype) {
			return ErrBadOps
		}
		elemSize := sizeOfTag(subtype)
		count := int(ops[pos+2])
		writePrimArray(sample.Mem[off:off+count*elemSize], subtype, out)
	default:
		return ErrBadOps
	}
	return nil
}

//============================================= recursive full-data walk


func walkWrite(ops []uint32, pos, base int, sample *Sample, out *OctetStream) error {
	// jsrBase is the base a following JSR should recurse with. It defaults
	// to this level's own base and is overridden, for exactly the next JSR,
	// by an immediately preceding ADR(STU): a nested struct's fields are
	// addressed relative to the STU field's own offset, not the struct
	// that contains it.
	jsrBase := base
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
			if err := walkWrite(ops, pos+int(delta), jsrBase, sample, out); err != nil {
				return err
			}
			jsrBase = base
			pos++
		case JEQ:
			// Union case-table rows sit inline after their ADR(UNI) and are
			// read through its jsr delta; the linear walk steps over them.
			pos += 3
		case ADR:
			off := base + int(ops[pos+1])
			switch typ {
			case Tag1BY:
				out.Put1(sample.GetU8(off))
				pos += 2
			case Tag2BY:
				out.Put2(sample.GetU16(off))
				pos += 2
			case Tag4BY:
				out.Put4(sample.GetU32(off))
				pos += 2
			case Tag8BY:
				out.Put8(sample.GetU64(off))
				pos += 2
			case TagSTR:
				out.WriteString(sample.String(off))
				pos += 2
			case TagBST:
				bound := int(ops[pos+2])
				writeBoundedStringFromMem(sample.Mem[off:off+bound], out)
				pos += 3
			case TagARR:
				count := int(ops[pos+2])
				if isPrimitive(subtype) {
					elemSize := sizeOfTag(subtype)
					writePrimArray(sample.Mem[off:off+count*elemSize], subtype, out)
					pos += 3
				} else {
					jsrWord := pos + 3
					delta := int16(ops[jsrWord] & 0xFFFF)
					elemSize := int(ops[pos+4])
					sub := jsrWord + int(delta)
					for i := 0; i < count; i++ {
						if err := walkWrite(ops, sub, off+i*elemSize, sample, out); err != nil {
							return err
						}
					}
					pos += 5
				}
			case TagSEQ:
				seq := sample.Seq(off)
				switch {
				case subtype == TagBST, subtype == TagSTR:
					out.Put4(uint32(seq.Len))
					for i := 0; i < seq.Len; i++ {
						out.WriteString(seq.Strs[i])
					}
					if subtype == TagBST {
						pos += 3
					} else {
						pos += 2
					}
				case isPrimitive(subtype):
					writeSeqPrimitive(seq, subtype, out)
					pos += 2
				default:
					jsrWord := pos + 3
					delta := int16(ops[jsrWord] & 0xFFFF)
					sub := jsrWord + int(delta)
					out.Put4(uint32(seq.Len))
					for i := 0; i < seq.Len; i++ {
						if err := walkWrite(ops, sub, 0, seq.Nodes[i], out); err != nil {
							return err
						}
					}
					pos += 4
				}
			case TagUNI:
				if err := writeUnion(ops, pos, off, flags, sample, out); err != nil {
					return err
				}
				pos += 4
			case TagSTU:
				jsrBase = off
				pos += 2
			default:
				return ErrBadOps
			}
		default:
			return ErrBadOps
		}
	}
}

func writeUnion(ops []uint32, pos, discOff int, flags uint8, sample *Sample, out *OctetStream) error {
	_, _, discTag, _ := unpackOp(ops[pos])
	numCases := int(ops[pos+2])
	jsrWord := pos + 3
	delta := int16(ops[jsrWord] & 0xFFFF)
	caseTable := jsrWord + int(delta)

	discVal := readDiscriminant(sample, discOff, discTag)
	writeDiscriminant(out, discTag, discVal)

	base := discOff - int(ops[pos+1])
	caseOff, caseTag, err := findUnionCase(ops, caseTable, numCases, flags, discVal)
	if err != nil {
		return err
	}
	return writeUnionCaseValue(sample, caseTag, base+caseOff, out)
}

// findUnionCase searches the numCases JEQ rows starting at caseTable for one
// whose disc value matches discVal; if none matches and FlagDef is set, the
// last row is the default (spec §4.2 "If FLAG_DEF is set... the last JEQ is
// the default case").
func findUnionCase(ops []uint32, caseTable, numCases int, flags uint8, discVal uint32) (offset int, tag Tag, err error) {
	matched := -1
	for i := 0; i < numCases; i++ {
		c := caseTable + i*3
		if ops[c+1] == discVal {
			matched = i
			break
		}
	}
	if matched < 0 && flags&FlagDef != 0 {
		matched = numCases - 1
	}
	if matched < 0 {
		return 0, 0, ErrUnknownUnionCase
	}
	c := caseTable + matched*3
	_, caseTag, _, _ := unpackOp(ops[c])
	return int(ops[c+2]), caseTag, nil
}

func writeUnionCaseValue(sample *Sample, tag Tag, off int, out *OctetStream) error {
	switch tag {
	case Tag1BY:
		out.Put1(sample.GetU8(off))
	case Tag2BY:
		out.Put2(sample.GetU16(off))
	case Tag4BY:
		out.Put4(sample.GetU32(off))
	case Tag8BY:
		out.Put8(sample.GetU64(off))
	case TagSTR:
		out.WriteString(sample.String(off))
	default:
		return ErrBadOps
	}
	return nil
}

func readDiscriminant(sample *Sample, off int, tag Tag) uint32 {
	switch tag {
	case Tag1BY:
		return uint32(sample.GetU8(off))
	case Tag2BY:
		return uint32(sample.GetU16(off))
	case Tag4BY:
		return sample.GetU32(off)
	case Tag8BY:
		return uint32(sample.GetU64(off))
	default:
		return 0
	}
}

func writeDiscriminant(out *OctetStream, tag Tag, v uint32) {
	switch tag {
	case Tag1BY:
		out.Put1(uint8(v))
	case Tag2BY:
		out.Put2(uint16(v))
	case Tag4BY:
		out.Put4(v)
	case Tag8BY:
		out.Put8(uint64(v))
	}
}

// writeBoundedStringFromMem finds the NUL within a bound-byte inline buffer
// and writes it as a CDR string.
func writeBoundedStringFromMem(mem []byte, out *OctetStream) {
	n := len(mem)
	for i, b := range mem {
		if b == 0 {
			n = i
			break
		}
	}
	out.WriteString(string(mem[:n]))
}

// writePrimArray writes count elements of a primitive tag, packed
// contiguously in mem using memOrder, converting to the stream's order.
func writePrimArray(mem []byte, tag Tag, out *OctetStream) {
	elemSize := sizeOfTag(tag)
	count := len(mem) / elemSize
	for i := 0; i < count; i++ {
		chunk := mem[i*elemSize : (i+1)*elemSize]
		switch tag {
		case Tag1BY:
			out.Put1(chunk[0])
		case Tag2BY:
			out.Put2(memOrder.Uint16(chunk))
		case Tag4BY:
			out.Put4(memOrder.Uint32(chunk))
		case Tag8BY:
			out.Put8(memOrder.Uint64(chunk))
		}
	}
}

func writeSeqPrimitive(seq *Sequence, tag Tag, out *OctetStream) {
	out.Put4(uint32(seq.Len))
	if seq.Len == 0 {
		return
	}
	elemSize := sizeOfTag(tag)
	writePrimArray(seq.Prim[:seq.Len*elemSize], tag, out)
}

//============================================= recursive full-data read


func walkRead(ops []uint32, pos, base int, sample *Sample, in *OctetStream) error {
	jsrBase := base
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
			if err := walkRead(ops, pos+int(delta), jsrBase, sample, in); err != nil {
				return err
			}
			jsrBase = base
			pos++
		case JEQ:
			pos += 3
		case ADR:
			off := base + int(ops[pos+1])
			switch typ {
			case Tag1BY:
				sample.SetU8(off, in.Get1())
				pos += 2
			case Tag2BY:
				sample.SetU16(off, in.Get2())
				pos += 2
			case Tag4BY:
				sample.SetU32(off, in.Get4())
				pos += 2
			case Tag8BY:
				sample.SetU64(off, in.Get8())
				pos += 2
			case TagSTR:
				sample.SetString(off, in.ReadString())
				pos += 2
			case TagBST:
				bound := int(ops[pos+2])
				if err := readBoundedStringIntoMem(sample.Mem[off:off+bound], in); err != nil {
					return err
				}
				pos += 3
			case TagARR:
				count := int(ops[pos+2])
				if isPrimitive(subtype) {
					elemSize := sizeOfTag(subtype)
					readPrimArray(sample.Mem[off:off+count*elemSize], subtype, in)
					pos += 3
				} else {
					jsrWord := pos + 3
					delta := int16(ops[jsrWord] & 0xFFFF)
					elemSize := int(ops[pos+4])
					sub := jsrWord + int(delta)
					for i := 0; i < count; i++ {
						clearMem(sample.Mem[off+i*elemSize : off+(i+1)*elemSize])
						if err := walkRead(ops, sub, off+i*elemSize, sample, in); err != nil {
							return err
						}
					}
					pos += 5
				}
			case TagSEQ:
				switch {
				case subtype == TagBST, subtype == TagSTR:
					n := int(in.Get4())
					strs := make([]string, n)
					for i := 0; i < n; i++ {
						strs[i] = in.ReadString()
					}
					sample.SetSeq(off, &Sequence{Release: true, Len: n, Max: n, Strs: strs})
					if subtype == TagBST {
						pos += 3
					} else {
						pos += 2
					}
				case isPrimitive(subtype):
					seq, err := readSeqPrimitive(sample.Seq(off), subtype, in)
					if err != nil {
						return err
					}
					sample.SetSeq(off, seq)
					pos += 2
				default:
					jsrWord := pos + 3
					delta := int16(ops[jsrWord] & 0xFFFF)
					sub := jsrWord + int(delta)
					elemSize := int(ops[pos+2])
					n := int(in.Get4())
					nodes := make([]*Sample, n)
					for i := 0; i < n; i++ {
						nodes[i] = &Sample{Mem: make([]byte, elemSize)}
						if err := walkRead(ops, sub, 0, nodes[i], in); err != nil {
							return err
						}
					}
					sample.SetSeq(off, &Sequence{Release: true, Len: n, Max: n, Nodes: nodes})
					pos += 4
				}
			case TagUNI:
				if err := readUnion(ops, pos, off, flags, sample, in); err != nil {
					return err
				}
				pos += 4
			case TagSTU:
				jsrBase = off
				pos += 2
			default:
				return ErrBadOps
			}
		default:
			return ErrBadOps
		}
	}
}

func readUnion(ops []uint32, pos, discOff int, flags uint8, sample *Sample, in *OctetStream) error {
	_, _, discTag, _ := unpackOp(ops[pos])
	numCases := int(ops[pos+2])
	jsrWord := pos + 3
	delta := int16(ops[jsrWord] & 0xFFFF)
	caseTable := jsrWord + int(delta)

	discVal := readDiscriminantWire(in, discTag)
	writeDiscriminantMem(sample, discOff, discTag, discVal)

	base := discOff - int(ops[pos+1])
	caseOff, caseTag, err := findUnionCase(ops, caseTable, numCases, flags, discVal)
	if err != nil {
		return err
	}
	return readUnionCaseValue(sample, caseTag, base+caseOff, in)
}

func readUnionCaseValue(sample *Sample, tag Tag, off int, in *OctetStream) error {
	switch tag {
	case Tag1BY:
		sample.SetU8(off, in.Get1())
	case Tag2BY:
		sample.SetU16(off, in.Get2())
	case Tag4BY:
		sample.SetU32(off, in.Get4())
	case Tag8BY:
		sample.SetU64(off, in.Get8())
	case TagSTR:
		sample.SetString(off, in.ReadString())
	default:
		return ErrBadOps
	}
	return nil
}

func readDiscriminantWire(in *OctetStream, tag Tag) uint32 {
	switch tag {
	case Tag1BY:
		return uint32(in.Get1())
	case Tag2BY:
		return uint32(in.Get2())
	case Tag4BY:
		return in.Get4()
	case Tag8BY:
		return uint32(in.Get8())
	default:
		return 0
	}
}

func writeDiscriminantMem(sample *Sample, off int, tag Tag, v uint32) {
	switch tag {
	case Tag1BY:
		sample.SetU8(off, uint8(v))
	case Tag2BY:
		sample.SetU16(off, uint16(v))
	case Tag4BY:
		sample.SetU32(off, v)
	case Tag8BY:
		sample.SetU64(off, uint64(v))
	}
}

// readBoundedStringIntoMem reads a CDR string into a fixed bound-byte inline
// buffer, zero-filling the remainder. Callers must Normalize first for a
// length guarantee; this also defends length>bound defensively.
func readBoundedStringIntoMem(mem []byte, in *OctetStream) error {
	n := int(in.Get4())
	b := in.GetBytes(n)
	if n == 0 || n > len(mem) {
		return ErrMalformedCDR
	}
	copy(mem, b[:n-1])
	for i := n - 1; i < len(mem); i++ {
		mem[i] = 0
	}
	return nil
}

// readPrimArray reads count elements of a primitive tag from in into mem,
// storing each in memOrder.
func readPrimArray(mem []byte, tag Tag, in *OctetStream) {
	elemSize := sizeOfTag(tag)
	count := len(mem) / elemSize
	for i := 0; i < count; i++ {
		chunk := mem[i*elemSize : (i+1)*elemSize]
		switch tag {
		case Tag1BY:
			chunk[0] = in.Get1()
		case Tag2BY:
			memOrder.PutUint16(chunk, in.Get2())
		case Tag4BY:
			memOrder.PutUint32(chunk, in.Get4())
		case Tag8BY:
			memOrder.PutUint64(chunk, in.Get8())
		}
	}
}

func readSeqPrimitive(seq *Sequence, tag Tag, in *OctetStream) (*Sequence, error) {
	n := int(in.Get4())
	elemSize := sizeOfTag(tag)
	if !seq.Release && n > seq.Max {
		// Borrowed buffer too small: truncate and skip the excess on the
		// wire, per spec §4.2 "Sequence walker" read path.
		buf := make([]byte, seq.Max*elemSize)
		readPrimArray(buf, tag, in)
		skip := (n - seq.Max) * elemSize
		in.GetBytes(skip)
		return &Sequence{Release: seq.Release, Max: seq.Max, Len: seq.Max, Prim: buf}, nil
	}
	buf := make([]byte, n*elemSize)
	readPrimArray(buf, tag, in)
	max := seq.Max
	if n > max {
		max = n
	}
	return &Sequence{Release: true, Max: max, Len: n, Prim: buf}, nil
}

// clearMem zero-fills a region of Mem. The read path applies it to each
// element of a nested-struct array before reading into that element. It
// clears Mem only: the sample's Strings and Sequences side tables keep any
// earlier entries. ReadFull reads into the Sample the caller passes and does
// not reset it first, and it does not consult FlagContainsUnion.
func clearMem(mem []byte) {
	for i := range mem {
		mem[i] = 0
	}
}
