package exec

import (
	"encoding/binary"
	"unsafe"

	"emberjit/ir"
)

// regionBuf returns the byte slice backing tag's region: the borrowed
// context buffer, the interpreter's private stack, or its copy of the
// constant pool. CONTEXT and the pointer-width tags are handled
// separately by ptr/setPtr, since they name a base address rather than
// an indexable slot.
func (it *Interpreter) regionBuf(instr ir.Instruction, tag ir.SymbolType) []byte {
	switch tag.Region() {
	case ir.RegionContext:
		return it.ctx
	case ir.RegionStack:
		return it.stack
	case ir.RegionConst:
		return it.consts
	default:
		it.fault(instr, tag, "operand tag has no addressable region")
		panic("unreachable")
	}
}

func (it *Interpreter) bounds(instr ir.Instruction, tag ir.SymbolType, buf []byte, off uint16, width int) {
	if int(off)+width > len(buf) {
		it.fault(instr, tag, "offset %d+%d out of range for region of length %d", off, width, len(buf))
	}
}

// get32 reads a 32-bit value from a REL, TMP or CST operand.
func (it *Interpreter) get32(instr ir.Instruction, op ir.Operand) uint32 {
	tag := ir.DecodeTag(op)
	switch tag {
	case ir.SymRel, ir.SymTmp, ir.SymCst:
	default:
		it.fault(instr, tag, "operand tag illegal for 32-bit read")
	}
	buf := it.regionBuf(instr, tag)
	off := ir.DecodeOffset(op)
	it.bounds(instr, tag, buf, off, 4)
	return binary.NativeEndian.Uint32(buf[off:])
}

// set32 writes a 32-bit value to a REL or TMP operand (CST is read-only).
func (it *Interpreter) set32(instr ir.Instruction, op ir.Operand, val uint32) {
	tag := ir.DecodeTag(op)
	switch tag {
	case ir.SymRel, ir.SymTmp:
	default:
		it.fault(instr, tag, "operand tag illegal for 32-bit write")
	}
	buf := it.regionBuf(instr, tag)
	off := ir.DecodeOffset(op)
	it.bounds(instr, tag, buf, off, 4)
	binary.NativeEndian.PutUint32(buf[off:], val)
}

// get64 reads a 64-bit value from a REL64, TMP64 or CST64 operand.
func (it *Interpreter) get64(instr ir.Instruction, op ir.Operand) uint64 {
	tag := ir.DecodeTag(op)
	switch tag {
	case ir.SymRel64, ir.SymTmp64, ir.SymCst64:
	default:
		it.fault(instr, tag, "operand tag illegal for 64-bit read")
	}
	buf := it.regionBuf(instr, tag)
	off := ir.DecodeOffset(op)
	it.bounds(instr, tag, buf, off, 8)
	return binary.NativeEndian.Uint64(buf[off:])
}

// set64 writes a 64-bit value to a REL64 or TMP64 operand.
func (it *Interpreter) set64(instr ir.Instruction, op ir.Operand, val uint64) {
	tag := ir.DecodeTag(op)
	switch tag {
	case ir.SymRel64, ir.SymTmp64:
	default:
		it.fault(instr, tag, "operand tag illegal for 64-bit write")
	}
	buf := it.regionBuf(instr, tag)
	off := ir.DecodeOffset(op)
	it.bounds(instr, tag, buf, off, 8)
	binary.NativeEndian.PutUint64(buf[off:], val)
}

// get128 reads a 128-bit value from a REL128 operand as two 64-bit
// halves (no native 128-bit integer exists in Go).
func (it *Interpreter) get128(instr ir.Instruction, op ir.Operand) (lo, hi uint64) {
	tag := ir.DecodeTag(op)
	if tag != ir.SymRel128 {
		it.fault(instr, tag, "operand tag illegal for 128-bit read")
	}
	buf := it.regionBuf(instr, tag)
	off := ir.DecodeOffset(op)
	it.bounds(instr, tag, buf, off, 16)
	lo = binary.NativeEndian.Uint64(buf[off:])
	hi = binary.NativeEndian.Uint64(buf[off+8:])
	return lo, hi
}

// ptr resolves a pointer-tagged operand (CONTEXT, REL_REF, TMP_REF or
// CSTPTR) to a usable address. CONTEXT is the address of the borrowed
// context buffer's first byte; the other three tags store a pointer
// value, written there either by the emitter (CSTPTR) or by ADDREF /
// LOADFROMREF at run time (TMP_REF).
func (it *Interpreter) ptr(instr ir.Instruction, op ir.Operand) uintptr {
	tag := ir.DecodeTag(op)
	if tag == ir.SymContext {
		if len(it.ctx) == 0 {
			it.fault(instr, tag, "CONTEXT operand used against an empty context buffer")
		}
		return uintptr(unsafe.Pointer(&it.ctx[0]))
	}

	var buf []byte
	switch tag {
	case ir.SymRelRef:
		buf = it.ctx
	case ir.SymTmpRef:
		buf = it.stack
	case ir.SymCstPtr:
		buf = it.consts
	default:
		it.fault(instr, tag, "operand tag illegal for pointer read")
	}
	off := ir.DecodeOffset(op)
	it.bounds(instr, tag, buf, off, 8)
	return uintptr(binary.NativeEndian.Uint64(buf[off:]))
}

// setPtr writes a pointer value to a TMP_REF operand; REL_REF and
// CSTPTR are read-only per the data model's mutability table.
func (it *Interpreter) setPtr(instr ir.Instruction, op ir.Operand, val uintptr) {
	tag := ir.DecodeTag(op)
	if tag != ir.SymTmpRef {
		it.fault(instr, tag, "operand tag illegal for pointer write")
	}
	off := ir.DecodeOffset(op)
	it.bounds(instr, tag, it.stack, off, 8)
	binary.NativeEndian.PutUint64(it.stack[off:], uint64(val))
}

// handle reads a CSTPTR operand as a registered call/extern-jump
// handle rather than a raw address — the Go-level stand-in for casting
// an integer to a function pointer (see calls.go).
func (it *Interpreter) handle(instr ir.Instruction, op ir.Operand) uint32 {
	tag := ir.DecodeTag(op)
	if tag != ir.SymCstPtr {
		it.fault(instr, tag, "CALL/EXTERNJMP target must be a CSTPTR handle")
	}
	return uint32(it.ptr(instr, op))
}
