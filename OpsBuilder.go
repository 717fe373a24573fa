package ddscdr

//============================================= ddscdr ops stream builder


// Builder assembles a bytecode ops stream word by word. In production this
// stream is emitted by an IDL compiler (spec §1 Non-goals: "does not
// validate that the bytecode itself is well-formed... it is generated by
// an IDL compiler which is trusted"); Builder is the ergonomic stand-in for
// that compiler used by this module's own tests and by callers registering
// a topic type by hand.
type Builder struct {
	ops []uint32
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder { return &Builder{} }

// Ops returns the assembled stream; the caller must still append RTS.
func (b *Builder) Ops() []uint32 { return b.ops }

// Pos returns the current word offset, useful for computing JSR/JEQ deltas.
func (b *Builder) Pos() int { return len(b.ops) }

func (b *Builder) emit(words ...uint32) int {
	start := len(b.ops)
	b.ops = append(b.ops, words...)
	return start
}

// Primitive appends an ADR for a 1/2/4/8-byte integer field at offset.
func (b *Builder) Primitive(tag Tag, offset int, key bool) int {
	return b.emit(packOp(ADR, tag, 0, flagsOf(key, false)), uint32(offset))
}

// UnboundedString appends an ADR for an STR field at offset.
func (b *Builder) UnboundedString(offset int, key bool) int {
	return b.emit(packOp(ADR, TagSTR, 0, flagsOf(key, false)), uint32(offset))
}

// BoundedString appends an ADR for a BST field at offset with the given
// inline buffer bound (including room for the NUL).
func (b *Builder) BoundedString(offset, bound int, key bool) int {
	return b.emit(packOp(ADR, TagBST, 0, flagsOf(key, false)), uint32(offset), uint32(bound))
}

// PrimitiveArray appends an ADR for a fixed array of a primitive tag.
func (b *Builder) PrimitiveArray(elem Tag, offset, count int, key bool) int {
	return b.emit(packOp(ADR, TagARR, elem, flagsOf(key, false)), uint32(offset), uint32(count))
}

// ComplexArray appends an ADR for a fixed array of a nested-struct element.
// jsrDeltaFromWord is the signed word delta, measured from the jmp_jsr
// word itself (word index start+3), to the nested type's ops subroutine —
// the same "resume after this word" convention JSR uses. The high 16 bits
// of jmp_jsr (spec's "jump-to-next") are not load-bearing for this
// interpreter: word counts per op kind are fixed and known from the type
// tag alone (see adrWordCount), so they are packed as 0.
func (b *Builder) ComplexArray(offset, count int, jsrDeltaFromWord int16, elemSize int, key bool) int {
	start := b.emit(packOp(ADR, TagARR, TagSTU, flagsOf(key, false)), uint32(offset), uint32(count))
	b.emit(uint32(uint16(jsrDeltaFromWord)), uint32(elemSize))
	return start
}

// PrimitiveSequence appends an ADR for a SEQ of a primitive tag.
func (b *Builder) PrimitiveSequence(elem Tag, offset int, key bool) int {
	return b.emit(packOp(ADR, TagSEQ, elem, flagsOf(key, false)), uint32(offset))
}

// StringSequence appends an ADR for a SEQ of unbounded strings.
func (b *Builder) StringSequence(offset int, key bool) int {
	return b.emit(packOp(ADR, TagSEQ, TagSTR, flagsOf(key, false)), uint32(offset))
}

// BoundedStringSequence appends an ADR for a SEQ of bounded strings.
func (b *Builder) BoundedStringSequence(offset, bound int, key bool) int {
	return b.emit(packOp(ADR, TagSEQ, TagBST, flagsOf(key, false)), uint32(offset), uint32(bound))
}

// ComplexSequence appends an ADR for a SEQ of nested-struct elements.
// jsrDeltaFromWord follows the same convention as ComplexArray.
func (b *Builder) ComplexSequence(offset, elemSize int, jsrDeltaFromWord int16, key bool) int {
	start := b.emit(packOp(ADR, TagSEQ, TagSTU, flagsOf(key, false)), uint32(offset), uint32(elemSize))
	b.emit(uint32(uint16(jsrDeltaFromWord)))
	return start
}

// NestedStruct appends an ADR(STU) followed immediately by a JSR to the
// nested type's ops subroutine. jsrDeltaFromWord is measured from the JSR
// word itself.
func (b *Builder) NestedStruct(offset int, jsrDeltaFromWord int16, key bool) int {
	start := b.emit(packOp(ADR, TagSTU, 0, flagsOf(key, false)), uint32(offset))
	b.emit(packOp(JSR, 0, 0, 0) | uint32(uint16(jsrDeltaFromWord)))
	return start
}

// UnionCase describes one row of a union's JEQ case table.
type UnionCase struct {
	Tag       Tag
	DiscValue uint32
	Offset    int
}

// Union appends an ADR(UNI) descriptor plus its JEQ case table (placed
// immediately after, addressed by the embedded jsr delta). If hasDefault is
// true, the last entry in cases is treated as the default (FlagDef set on
// the union's own ADR).
func (b *Builder) Union(discTag Tag, discOffset int, cases []UnionCase, hasDefault, key bool) int {
	flags := flagsOf(key, hasDefault)
	start := b.emit(packOp(ADR, TagUNI, discTag, flags), uint32(discOffset), uint32(len(cases)))
	jsrSlot := b.emit(0)
	caseTableStart := b.Pos()
	for _, c := range cases {
		b.emit(packOp(JEQ, c.Tag, 0, 0), c.DiscValue, uint32(c.Offset))
	}
	delta := int16(caseTableStart - jsrSlot)
	b.ops[jsrSlot] = uint32(uint16(delta))
	return start
}

// RTS appends the terminal return opcode.
func (b *Builder) RTS() {
	b.emit(packOp(RTS, 0, 0, 0))
}

func flagsOf(key, def bool) uint8 {
	var f uint8
	if key {
		f |= FlagKey
	}
	if def {
		f |= FlagDef
	}
	return f
}
