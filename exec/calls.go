package exec

import "emberjit/ir"

// The six dispatchable foreign-call shapes of §4.3, expressed as
// concrete Go function types rather than reconstructed from the
// source's opaque 32-bit signature byte-packing (flagged as
// underspecified by §9 open question 3). A registered FuncTable entry
// is type-switched against these at CALL time; the concrete type IS
// the signature, so there is nothing left to reconstruct.
type (
	// ThunkCtxToU32 is signature 0x00008084: (void*) -> u32.
	ThunkCtxToU32 func(ctx []byte) uint32
	// ThunkU32ToU32 is signature 0x00008484: (u32) -> u32.
	ThunkU32ToU32 func(p0 uint32) uint32
	// ThunkCtxU32ToU32 is signature 0x00808484: (void*, u32) -> u32.
	ThunkCtxU32ToU32 func(ctx []byte, p0 uint32) uint32
	// ThunkCtxU32ToU64 is signature 0x0080848A: (void*, u32) -> u64.
	ThunkCtxU32ToU64 func(ctx []byte, p0 uint32) uint64
	// ThunkCtxU32U32ToVoid covers signatures 0x80818400, 0x80818300 and
	// 0x80838400: (void*, u32, u32) -> void, called as fn(ctx, p1, p0).
	ThunkCtxU32U32ToVoid func(ctx []byte, p1, p0 uint32)
	// ThunkCtxU64U32ToVoid is signature 0x80898400: (void*, u64, u32) -> void,
	// called as fn(ctx, p1, p0).
	ThunkCtxU64U32ToVoid func(ctx []byte, p1 uint64, p0 uint32)
)

// FuncTable maps a CALL handle (read from the instruction's src1
// operand) to the Go closure it invokes.
type FuncTable map[uint32]any

// ExternTable maps an EXTERNJMP handle to the tail-call closure it
// invokes.
type ExternTable map[uint32]func([]byte)

// dispatchCall implements §4.3's CALL semantics: resolve the handle,
// pop the declared parameter count off the queue, and invoke whichever
// of the six Thunk* shapes was registered.
func (it *Interpreter) dispatchCall(instr ir.Instruction) {
	h := it.handle(instr, instr.Src1Operand())
	fn, ok := it.Calls[h]
	if !ok {
		it.fault(instr, ir.SymCstPtr, "no function registered for call handle %#x", h)
	}

	n := it.get32(instr, instr.Src2Operand())
	if n > 3 {
		it.fault(instr, ir.SymCst, "CALL count %d exceeds the maximum of 3", n)
	}
	if int(n) > len(it.params) {
		it.fault(instr, ir.SymCst, "CALL count %d exceeds parameter queue depth %d", n, len(it.params))
	}
	params := it.params[:n]

	dst := instr.DstOperand()

	switch f := fn.(type) {
	case ThunkCtxToU32:
		it.requireArity(instr, n, 0)
		res := f(it.ctx)
		if !dst.IsNull() {
			it.set32(instr, dst, res)
		}

	case ThunkU32ToU32:
		it.requireArity(instr, n, 1)
		p0 := it.get32(instr, params[0])
		res := f(p0)
		if !dst.IsNull() {
			it.set32(instr, dst, res)
		}

	case ThunkCtxU32ToU32:
		it.requireArity(instr, n, 1)
		p0 := it.get32(instr, params[0])
		res := f(it.ctx, p0)
		if !dst.IsNull() {
			it.set32(instr, dst, res)
		}

	case ThunkCtxU32ToU64:
		it.requireArity(instr, n, 1)
		p0 := it.get32(instr, params[0])
		res := f(it.ctx, p0)
		if !dst.IsNull() {
			it.set64(instr, dst, res)
		}

	case ThunkCtxU32U32ToVoid:
		it.requireArity(instr, n, 2)
		p0 := it.get32(instr, params[0])
		p1 := it.get32(instr, params[1])
		f(it.ctx, p1, p0)

	case ThunkCtxU64U32ToVoid:
		it.requireArity(instr, n, 2)
		p0 := it.get32(instr, params[0])
		p1 := it.get64(instr, params[1])
		f(it.ctx, p1, p0)

	default:
		it.fault(instr, ir.SymCstPtr, "handle %#x registered with unsupported thunk type %T", h, fn)
	}

	it.params = it.params[n:]
}

func (it *Interpreter) requireArity(instr ir.Instruction, got uint32, want int) {
	if int(got) != want {
		it.fault(instr, ir.SymCst, "CALL count %d does not match registered thunk arity %d", got, want)
	}
}

// dispatchExternJmp implements §4.3's EXTERNJMP: invoke the registered
// extern closure with the context buffer; Execute returns immediately
// afterwards.
func (it *Interpreter) dispatchExternJmp(instr ir.Instruction) {
	h := it.handle(instr, instr.Src1Operand())
	fn, ok := it.Externs[h]
	if !ok {
		it.fault(instr, ir.SymCstPtr, "no extern registered for handle %#x", h)
	}
	fn(it.ctx)
}
