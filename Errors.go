package ddscdr

import "errors"

//============================================= ddscdr Errors


var (
	// ErrMalformedCDR is returned by Normalize when a buffer fails validation:
	// out-of-bounds alignment/read, bad string length, or missing NUL (an
	// unknown union case with no default is ErrUnknownUnionCase). Spec §7.1:
	// "reported to the caller as a failure; the buffer is discarded. Never
	// escalated."
	ErrMalformedCDR = errors.New("ddscdr: malformed CDR")

	// ErrBufferTooLarge is returned when a buffer handed to Normalize exceeds
	// the maximum length spec §4.2.1 allows (0xFFFFFFF0 bytes).
	ErrBufferTooLarge = errors.New("ddscdr: buffer exceeds maximum CDR length")

	// ErrUnknownUnionCase is returned when a union discriminant matches no
	// JEQ case and the union has no default case (FlagDef not set).
	ErrUnknownUnionCase = errors.New("ddscdr: union discriminant matches no case and no default is declared")

	// ErrZeroJump is returned by TypeDescriptor construction when a
	// sequence/array-of-complex opcode carries a zero JSR delta. Spec's
	// Open Question: reject at registration rather than silently falling
	// back to a hardcoded word-advance.
	ErrZeroJump = errors.New("ddscdr: sequence/array descriptor has a zero jmp delta")

	// ErrBadOps is returned when an ops stream does not terminate with RTS,
	// or a key index does not reference a qualifying ADR opcode.
	ErrBadOps = errors.New("ddscdr: malformed ops stream")

	// ErrInstanceGone is returned by TkMap.InstanceRef when the instance is
	// observed mid-teardown. TkMap.Find handles it by waiting for the removal
	// and retrying (spec §4.5.4) and never returns it.
	ErrInstanceGone = errors.New("ddscdr: instance is being torn down")

	// ErrTopicMismatch describes two samples that do not belong to the same
	// topic. No function in this package returns it: SerdataCmp orders
	// samples of different topics by their topic hash instead.
	ErrTopicMismatch = errors.New("ddscdr: samples belong to different topics")
)
