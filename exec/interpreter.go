package exec

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	"emberjit/ir"
)

// Interpreter is a single stack-machine instance over a decoded
// bytecode image. It owns a private word-addressed stack and a copy of
// the constant pool for its lifetime; the context buffer passed to
// Execute is borrowed only for the duration of that call.
//
// An Interpreter is not reentrant: Execute must not be called
// recursively on the same instance. It is not goroutine-safe, though
// the *ir.Image it was built from may be shared read-only by many
// Interpreters (see jit.Cache).
type Interpreter struct {
	Calls   FuncTable
	Externs ExternTable
	Logger  *Logger

	img    *ir.Image
	stack  []byte
	consts []byte
	params []ir.Operand

	ctx []byte
	ip  int
}

// DefaultStackWords is the private stack size, in 32-bit words, an
// Interpreter allocates for an image that declares a zero stack size —
// the same role the teacher's vm.StackSize default plays for a freshly
// constructed VM, so a TMP-region access never faults purely because the
// image under-declared its own stack requirement.
const DefaultStackWords = 64

// New constructs an Interpreter over img: a zeroed stack sized per
// img.StackWords (falling back to DefaultStackWords if the image
// declares none), and a private copy of the constant pool (the image
// itself remains immutable and shareable).
func New(img *ir.Image) *Interpreter {
	consts := make([]byte, len(img.Constants)*4)
	for i, c := range img.Constants {
		binary.NativeEndian.PutUint32(consts[i*4:], c)
	}

	words := img.StackWords()
	if words == 0 {
		words = DefaultStackWords
	}

	return &Interpreter{
		Calls:   make(FuncTable),
		Externs: make(ExternTable),
		Logger:  NewLogger(LogNone),
		img:     img,
		stack:   make([]byte, words*4),
		consts:  consts,
	}
}

// Execute runs the interpreter's image to completion, or until
// EXTERNJMP tail-calls out, against ctx. It recovers any internal
// panic exactly once at this boundary and converts it into a *Fault —
// the Go-idiomatic analogue of §7's "immediate process-level abort",
// letting an embedding program (the JIT engine, a CLI) report the
// diagnostic without the whole process dying, while never attempting
// to resume the faulted interpreter.
func (it *Interpreter) Execute(ctx []byte) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if ep, ok := r.(*execPanic); ok {
			it.Logger.Error("%s", ep.fault)
			err = ep.fault
			return
		}
		var op ir.Opcode
		if it.ip < len(it.img.Instructions) {
			op = it.img.Instructions[it.ip].Opcode()
		}
		f := &Fault{Opcode: op, InstrIndex: it.ip, Msg: fmt.Sprintf("%v", r)}
		it.Logger.Error("%s", f)
		err = f
	}()

	it.ctx = ctx
	it.ip = 0

	for it.ip < len(it.img.Instructions) {
		instr := it.img.Instructions[it.ip]
		it.Logger.Trace("ip=%d op=%s", it.ip, instr.Opcode())

		if it.step(instr) {
			return nil
		}
		it.ip++
	}

	return nil
}

// fault raises a *Fault identifying the current opcode, instruction
// index and symbol tag, and unwinds to Execute's recover boundary. Per
// §7, decode and execution errors are programming bugs: fault never
// returns.
func (it *Interpreter) fault(instr ir.Instruction, tag ir.SymbolType, format string, args ...any) {
	f := &Fault{
		Opcode:     instr.Opcode(),
		InstrIndex: it.ip,
		Tag:        tag,
		Msg:        fmt.Sprintf(format, args...),
	}
	panic(&execPanic{f})
}

// step executes one instruction. It returns true when EXTERNJMP fired
// and Execute should return immediately.
func (it *Interpreter) step(instr ir.Instruction) (terminate bool) {
	switch instr.Opcode() {
	case ir.OpAdd:
		it.set32(instr, instr.DstOperand(), it.get32(instr, instr.Src1Operand())+it.get32(instr, instr.Src2Operand()))
	case ir.OpSub:
		it.set32(instr, instr.DstOperand(), it.get32(instr, instr.Src1Operand())-it.get32(instr, instr.Src2Operand()))
	case ir.OpAnd:
		it.set32(instr, instr.DstOperand(), it.get32(instr, instr.Src1Operand())&it.get32(instr, instr.Src2Operand()))
	case ir.OpOr:
		it.set32(instr, instr.DstOperand(), it.get32(instr, instr.Src1Operand())|it.get32(instr, instr.Src2Operand()))
	case ir.OpXor:
		it.set32(instr, instr.DstOperand(), it.get32(instr, instr.Src1Operand())^it.get32(instr, instr.Src2Operand()))
	case ir.OpNot:
		it.set32(instr, instr.DstOperand(), ^it.get32(instr, instr.Src1Operand()))
	case ir.OpSll:
		a := it.get32(instr, instr.Src1Operand())
		sh := it.get32(instr, instr.Src2Operand()) & 31
		it.set32(instr, instr.DstOperand(), a<<sh)
	case ir.OpSrl:
		a := it.get32(instr, instr.Src1Operand())
		sh := it.get32(instr, instr.Src2Operand()) & 31
		it.set32(instr, instr.DstOperand(), a>>sh)
	case ir.OpSra:
		a := int32(it.get32(instr, instr.Src1Operand()))
		sh := it.get32(instr, instr.Src2Operand()) & 31
		it.set32(instr, instr.DstOperand(), uint32(a>>sh))
	case ir.OpMul:
		a := it.get32(instr, instr.Src1Operand())
		b := it.get32(instr, instr.Src2Operand())
		it.set64(instr, instr.DstOperand(), uint64(a)*uint64(b))
	case ir.OpMulS:
		a := int64(int32(it.get32(instr, instr.Src1Operand())))
		b := int64(int32(it.get32(instr, instr.Src2Operand())))
		it.set64(instr, instr.DstOperand(), uint64(a*b))
	case ir.OpDiv:
		a := it.get32(instr, instr.Src1Operand())
		b := it.get32(instr, instr.Src2Operand())
		q, r := a/b, a%b
		it.set64(instr, instr.DstOperand(), uint64(q)|uint64(r)<<32)
	case ir.OpDivS:
		a := int32(it.get32(instr, instr.Src1Operand()))
		b := int32(it.get32(instr, instr.Src2Operand()))
		q, r := a/b, a%b
		it.set64(instr, instr.DstOperand(), uint64(uint32(q))|uint64(uint32(r))<<32)
	case ir.OpAddRef:
		p := it.ptr(instr, instr.Src1Operand())
		off := it.get32(instr, instr.Src2Operand())
		it.setPtr(instr, instr.DstOperand(), p+uintptr(off))
	case ir.OpAnd64:
		it.set64(instr, instr.DstOperand(), it.get64(instr, instr.Src1Operand())&it.get64(instr, instr.Src2Operand()))
	case ir.OpExtLow64:
		it.set32(instr, instr.DstOperand(), uint32(it.get64(instr, instr.Src1Operand())))
	case ir.OpExtHigh64:
		it.set32(instr, instr.DstOperand(), uint32(it.get64(instr, instr.Src1Operand())>>32))
	case ir.OpLoadFromRef:
		it.execLoadFromRef(instr)
	case ir.OpLoad16FromRef:
		p := it.ptr(instr, instr.Src1Operand())
		v := *(*uint16)(unsafe.Pointer(p))
		it.set32(instr, instr.DstOperand(), uint32(v))
	case ir.OpStoreAtRef:
		it.execStoreAtRef(instr)
	case ir.OpStore16AtRef:
		p := it.ptr(instr, instr.Src1Operand())
		v := it.get32(instr, instr.Src2Operand())
		*(*uint16)(unsafe.Pointer(p)) = uint16(v)
	case ir.OpMov:
		it.execMov(instr)
	case ir.OpCmp:
		it.execCmp(instr)
	case ir.OpCmp64:
		it.execCmp64(instr)
	case ir.OpJmp:
		it.ip = int(instr.Dst) - 1
	case ir.OpCondJmp:
		it.execCondJmp(instr)
	case ir.OpExternJmp:
		it.dispatchExternJmp(instr)
		return true
	case ir.OpParam:
		it.params = append(it.params, instr.Src1Operand())
	case ir.OpCall:
		it.dispatchCall(instr)
	default:
		it.fault(instr, 0, "unknown or unencodable opcode")
	}
	return false
}

func (it *Interpreter) execLoadFromRef(instr ir.Instruction) {
	p := it.ptr(instr, instr.Src1Operand())
	dst := instr.DstOperand()
	switch ir.DecodeTag(dst) {
	case ir.SymRel, ir.SymTmp:
		it.set32(instr, dst, *(*uint32)(unsafe.Pointer(p)))
	case ir.SymTmpRef:
		it.setPtr(instr, dst, uintptr(*(*uint64)(unsafe.Pointer(p))))
	default:
		it.fault(instr, ir.DecodeTag(dst), "LOADFROMREF destination tag must be REL, TMP or TMP_REF")
	}
}

func (it *Interpreter) execStoreAtRef(instr ir.Instruction) {
	p := it.ptr(instr, instr.Src1Operand())
	src2 := instr.Src2Operand()
	switch ir.DecodeTag(src2) {
	case ir.SymRel, ir.SymCst:
		*(*uint32)(unsafe.Pointer(p)) = it.get32(instr, src2)
	case ir.SymRel64:
		*(*uint64)(unsafe.Pointer(p)) = it.get64(instr, src2)
	case ir.SymRel128:
		lo, hi := it.get128(instr, src2)
		*(*uint64)(unsafe.Pointer(p)) = lo
		*(*uint64)(unsafe.Pointer(p + 8)) = hi
	default:
		it.fault(instr, ir.DecodeTag(src2), "STOREATREF source tag must be REL, CST, REL64 or REL128")
	}
}

func (it *Interpreter) execMov(instr ir.Instruction) {
	src1 := instr.Src1Operand()
	switch ir.DecodeTag(src1) {
	case ir.SymRel, ir.SymTmp, ir.SymCst:
		it.set32(instr, instr.DstOperand(), it.get32(instr, src1))
	case ir.SymRel64, ir.SymTmp64, ir.SymCst64:
		it.set64(instr, instr.DstOperand(), it.get64(instr, src1))
	default:
		it.fault(instr, ir.DecodeTag(src1), "MOV source tag must be a 32-bit or 64-bit region operand")
	}
}

func (it *Interpreter) execCmp(instr ir.Instruction) {
	a := it.get32(instr, instr.Src1Operand())
	b := it.get32(instr, instr.Src2Operand())
	var result uint32
	switch instr.Cond() {
	case ir.CondNE:
		if a != b {
			result = 1
		}
	case ir.CondLT:
		if int32(a) < int32(b) {
			result = 1
		}
	default:
		it.fault(instr, 0, "CMP supports only NE and LT, got %s", instr.Cond())
	}
	it.set32(instr, instr.DstOperand(), result)
}

func (it *Interpreter) execCmp64(instr ir.Instruction) {
	a := it.get64(instr, instr.Src1Operand())
	b := it.get64(instr, instr.Src2Operand())
	var result uint32
	switch instr.Cond() {
	case ir.CondNE:
		if a != b {
			result = 1
		}
	case ir.CondBL:
		if a < b {
			result = 1
		}
	case ir.CondLT:
		if int64(a) < int64(b) {
			result = 1
		}
	default:
		it.fault(instr, 0, "CMP64 supports only NE, BL and LT, got %s", instr.Cond())
	}
	it.set32(instr, instr.DstOperand(), result)
}

func (it *Interpreter) execCondJmp(instr ir.Instruction) {
	src1, src2 := instr.Src1Operand(), instr.Src2Operand()
	tag1, tag2 := ir.DecodeTag(src1), ir.DecodeTag(src2)

	var taken bool
	switch {
	case tag1 == ir.SymTmpRef && tag2 == ir.SymCst:
		if instr.Cond() != ir.CondEQ {
			it.fault(instr, tag1, "pointer CONDJMP supports only EQ, got %s", instr.Cond())
		}
		if c := it.get32(instr, src2); c != 0 {
			it.fault(instr, tag2, "pointer CONDJMP's constant operand must be 0, got %d", c)
		}
		taken = it.ptr(instr, src1) == 0

	case (tag1 == ir.SymRel || tag1 == ir.SymTmp) && tag2 == ir.SymCst:
		a := it.get32(instr, src1)
		b := it.get32(instr, src2)
		switch instr.Cond() {
		case ir.CondEQ:
			taken = a == b
		case ir.CondNE:
			taken = a != b
		case ir.CondGT:
			taken = int32(a) > int32(b)
		default:
			it.fault(instr, 0, "CONDJMP supports only EQ, NE and GT here, got %s", instr.Cond())
		}

	default:
		it.fault(instr, tag1, "illegal CONDJMP operand tag combination (%s, %s)", tag1, tag2)
	}

	if taken {
		it.ip = int(instr.Dst) - 1
	}
}
