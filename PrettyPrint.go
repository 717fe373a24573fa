package ddscdr

import (
	"strconv"
	"unicode"
)

//============================================= ddscdr PrettyPrint

// PrettyPrint renders a full-data CDR body from in as text into buf:
// "{f1,f2,...}" for structs, "{e1,e2,...}" for arrays/sequences,
// "discval:value" for unions, decimal for primitives, double-quoted for
// strings, and a double-quoted printable run for a byte array that looks
// like ASCII text (spec §4.2.4). It writes directly from the wire, never
// materializing a Sample. If buf fills before printing finishes, PrettyPrint
// stops cleanly and returns the number of bytes written with 0 remaining
// capacity rather than panicking or growing buf.
func PrettyPrint(desc *TypeDescriptor, in *OctetStream, buf []byte) (written int, remaining int) {
	p := &printer{buf: buf}
	p.walk(desc.Ops, 0, in)
	return p.n, len(buf) - p.n
}

type printer struct {
	buf []byte
	n   int
}

func (p *printer) full() bool { return p.n >= len(p.buf) }

func (p *printer) writeByte(b byte) {
	if p.full() {
		return
	}
	p.buf[p.n] = b
	p.n++
}

func (p *printer) writeString(s string) {
	for i := 0; i < len(s); i++ {
		if p.full() {
			return
		}
		p.writeByte(s[i])
	}
}

func (p *printer) comma(i int) {
	if i > 0 {
		p.writeByte(',')
	}
}

func (p *printer) quoted(s string) {
	p.writeByte('"')
	p.writeString(s)
	p.writeByte('"')
}

func (p *printer) int(v int64) { p.writeString(strconv.FormatInt(v, 10)) }
func (p *printer) uint(v uint64) { p.writeString(strconv.FormatUint(v, 10)) }

func (p *printer) walk(ops []uint32, pos int, in *OctetStream) int {
	fieldIndex := 0
	opened := false
	for {
		if p.full() || pos >= len(ops) {
			return pos
		}
		op, typ, subtype, flags := unpackOp(ops[pos])
		switch op {
		case RTS:
			if opened {
				p.writeByte('}')
			}
			return pos
		case JSR:
			// A JSR always immediately follows the ADR(STU) that reserved
			// this field's comma slot (see TagSTU below); it supplies the
			// nested struct's printed value, not a new field of its own.
			delta := int16(ops[pos] & 0xFFFF)
			p.walk(ops, pos+int(delta), in)
			pos++
		case JEQ:
			pos += 3
		case ADR:
			if !opened {
				p.writeByte('{')
				opened = true
			}
			p.comma(fieldIndex)
			fieldIndex++
			switch typ {
			case Tag1BY:
				p.uint(uint64(in.Get1()))
				pos += 2
			case Tag2BY:
				p.uint(uint64(in.Get2()))
				pos += 2
			case Tag4BY:
				p.uint(uint64(in.Get4()))
				pos += 2
			case Tag8BY:
				p.uint(in.Get8())
				pos += 2
			case TagSTR, TagBST:
				p.quoted(in.ReadString())
				if typ == TagBST {
					pos += 3
				} else {
					pos += 2
				}
			case TagARR:
				count := int(ops[pos+2])
				if isPrimitive(subtype) {
					p.printPrimArray(subtype, count, in)
					pos += 3
				} else {
					jsrWord := pos + 3
					delta := int16(ops[jsrWord] & 0xFFFF)
					sub := jsrWord + int(delta)
					p.writeByte('{')
					for i := 0; i < count && !p.full(); i++ {
						p.comma(i)
						p.walk(ops, sub, in)
					}
					p.writeByte('}')
					pos += 5
				}
			case TagSEQ:
				switch {
				case subtype == TagBST, subtype == TagSTR:
					n := int(in.Get4())
					p.writeByte('{')
					for i := 0; i < n; i++ {
						v := in.ReadString()
						p.comma(i)
						p.quoted(v)
					}
					p.writeByte('}')
					if subtype == TagBST {
						pos += 3
					} else {
						pos += 2
					}
				case isPrimitive(subtype):
					n := int(in.Get4())
					p.printPrimArray(subtype, n, in)
					pos += 2
				default:
					jsrWord := pos + 3
					delta := int16(ops[jsrWord] & 0xFFFF)
					sub := jsrWord + int(delta)
					n := int(in.Get4())
					p.writeByte('{')
					for i := 0; i < n && !p.full(); i++ {
						p.comma(i)
						p.walk(ops, sub, in)
					}
					p.writeByte('}')
					pos += 4
				}
			case TagUNI:
				p.printUnion(ops, pos, flags, in)
				pos += 4
			case TagSTU:
				pos += 2
			default:
				return pos
			}
		default:
			return pos
		}
	}
}

// printPrimArray renders count primitive elements as "{e1,e2,...}", except
// for a byte (1BY) array, which spec §4.2.4 renders as a quoted string if
// every byte is printable ASCII, falling back to a decimal list otherwise.
func (p *printer) printPrimArray(tag Tag, count int, in *OctetStream) {
	if tag == Tag1BY {
		raw := make([]byte, count)
		for i := range raw {
			raw[i] = in.Get1()
		}
		if isPrintableRun(raw) {
			p.quoted(string(raw))
			return
		}
		p.writeByte('{')
		for i, b := range raw {
			p.comma(i)
			p.uint(uint64(b))
		}
		p.writeByte('}')
		return
	}
	p.writeByte('{')
	for i := 0; i < count; i++ {
		p.comma(i)
		switch tag {
		case Tag2BY:
			p.uint(uint64(in.Get2()))
		case Tag4BY:
			p.uint(uint64(in.Get4()))
		case Tag8BY:
			p.uint(in.Get8())
		}
	}
	p.writeByte('}')
}

func isPrintableRun(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	for _, c := range b {
		if c >= utf8RuneSelf || !unicode.IsPrint(rune(c)) {
			return false
		}
	}
	return true
}

const utf8RuneSelf = 0x80

func (p *printer) printUnion(ops []uint32, pos int, flags uint8, in *OctetStream) {
	_, _, discTag, _ := unpackOp(ops[pos])
	numCases := int(ops[pos+2])
	jsrWord := pos + 3
	delta := int16(ops[jsrWord] & 0xFFFF)
	caseTable := jsrWord + int(delta)

	discVal := readDiscriminantWire(in, discTag)
	p.uint(uint64(discVal))
	p.writeByte(':')

	_, caseTag, err := findUnionCase(ops, caseTable, numCases, flags, discVal)
	if err != nil {
		return
	}
	switch caseTag {
	case Tag1BY:
		p.uint(uint64(in.Get1()))
	case Tag2BY:
		p.uint(uint64(in.Get2()))
	case Tag4BY:
		p.uint(uint64(in.Get4()))
	case Tag8BY:
		p.uint(in.Get8())
	case TagSTR:
		p.quoted(in.ReadString())
	}
}
