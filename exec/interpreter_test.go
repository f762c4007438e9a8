package exec

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emberjit/emit"
	"emberjit/ir"
)

func relU32(ctx []byte, off uint32) uint32 { return binary.NativeEndian.Uint32(ctx[off:]) }

func setRelU32(ctx []byte, off uint32, v uint32) { binary.NativeEndian.PutUint32(ctx[off:], v) }

func relRef(off uint32) *emit.SymbolRef { return &emit.SymbolRef{Type: ir.SymRel, ValueLow: off} }
func tmpRef(loc uint32) *emit.SymbolRef { return &emit.SymbolRef{Type: ir.SymTmp, StackLocation: loc} }
func cstRef(v uint32) *emit.SymbolRef   { return &emit.SymbolRef{Type: ir.SymCst, ValueLow: v} }

// TestUnsignedDivideRelRel grounds scenario 1 of §8: unsigned divide of
// two context-resident values, with the 64-bit result split via
// EXTLOW64/EXTHIGH64 back into the context.
func TestUnsignedDivideRelRel(t *testing.T) {
	stmts := []emit.Statement{
		{Op: ir.OpDiv, Dst: &emit.SymbolRef{Type: ir.SymTmp64, StackLocation: 0}, Src1: relRef(0), Src2: relRef(4)},
		{Op: ir.OpExtLow64, Dst: relRef(8), Src1: &emit.SymbolRef{Type: ir.SymTmp64, StackLocation: 0}},
		{Op: ir.OpExtHigh64, Dst: relRef(12), Src1: &emit.SymbolRef{Type: ir.SymTmp64, StackLocation: 0}},
	}
	img, err := emit.Assemble(stmts, 8)
	require.NoError(t, err)

	ctx := make([]byte, 16)
	setRelU32(ctx, 0, 0xFFFF8000)
	setRelU32(ctx, 4, 0x8000FFFF)

	require.NoError(t, New(img).Execute(ctx))

	assert.Equal(t, uint32(1), relU32(ctx, 8), "quotient")
	assert.Equal(t, uint32(0x7FFE8001), relU32(ctx, 12), "remainder")
}

// TestSignedDivideCstCst grounds scenario 2 of §8.
func TestSignedDivideCstCst(t *testing.T) {
	stmts := []emit.Statement{
		{Op: ir.OpDivS, Dst: &emit.SymbolRef{Type: ir.SymTmp64, StackLocation: 0}, Src1: cstRef(0x80004040), Src2: cstRef(0x40408000)},
		{Op: ir.OpExtLow64, Dst: relRef(0), Src1: &emit.SymbolRef{Type: ir.SymTmp64, StackLocation: 0}},
		{Op: ir.OpExtHigh64, Dst: relRef(4), Src1: &emit.SymbolRef{Type: ir.SymTmp64, StackLocation: 0}},
	}
	img, err := emit.Assemble(stmts, 8)
	require.NoError(t, err)

	ctx := make([]byte, 8)
	require.NoError(t, New(img).Execute(ctx))

	assert.Equal(t, uint32(0xFFFFFFFF), relU32(ctx, 0), "quotient (-1)")
	assert.Equal(t, uint32(0xC040C040), relU32(ctx, 4), "remainder")
}

// TestConditionalJumpNE grounds scenario 3 of §8: both branch outcomes,
// comparing TMP word 0 (set to 5) against a CST operand via NE.
func TestConditionalJumpNE(t *testing.T) {
	const target emit.BlockID = 1

	stmtsFor := func(cstVal uint32) []emit.Statement {
		return []emit.Statement{
			{Op: ir.OpMov, Dst: tmpRef(0), Src1: cstRef(5)},
			{Op: ir.OpCondJmp, Src1: tmpRef(0), Src2: cstRef(cstVal), JmpCondition: ir.CondNE, JmpBlock: target},
			{Op: ir.OpMov, Dst: relRef(0), Src1: cstRef(2)},
			{Op: ir.OpLabel, JmpBlock: target},
			{Op: ir.OpMov, Dst: relRef(4), Src1: cstRef(1)},
		}
	}

	// CST=7: branch taken, fallthrough instruction never executes.
	img, err := emit.Assemble(stmtsFor(7), 8)
	require.NoError(t, err)
	ctx := make([]byte, 8)
	require.NoError(t, New(img).Execute(ctx))
	assert.Equal(t, uint32(0), relU32(ctx, 0), "fallthrough marker must not be written on a taken branch")
	assert.Equal(t, uint32(1), relU32(ctx, 4), "landing marker after taken branch")

	// CST=5: branch not taken, fallthrough executes.
	img, err = emit.Assemble(stmtsFor(5), 8)
	require.NoError(t, err)
	ctx = make([]byte, 8)
	require.NoError(t, New(img).Execute(ctx))
	assert.Equal(t, uint32(2), relU32(ctx, 0), "fallthrough marker on not-taken branch")
	assert.Equal(t, uint32(1), relU32(ctx, 4), "landing marker on fallthrough path")
}

// TestCallVoidPtrU32ToU32 grounds scenario 4 of §8.
func TestCallVoidPtrU32ToU32(t *testing.T) {
	const handle = 0xAAAA

	stmts := []emit.Statement{
		{Op: ir.OpParam, Src1: cstRef(42)},
		{Op: ir.OpCall, Dst: relRef(0), Src1: &emit.SymbolRef{Type: ir.SymCstPtr, ValueLow: handle}, Src2: cstRef(1)},
	}
	img, err := emit.Assemble(stmts, 4)
	require.NoError(t, err)

	it := New(img)
	it.Calls[handle] = ThunkCtxU32ToU32(func(ctx []byte, p0 uint32) uint32 {
		base := binary.NativeEndian.Uint32(ctx[0:])
		return base + p0
	})

	ctx := make([]byte, 4)
	setRelU32(ctx, 0, 100)

	require.NoError(t, it.Execute(ctx))
	assert.Equal(t, uint32(142), relU32(ctx, 0))
	assert.Empty(t, it.params, "parameter queue must drain after CALL")
}

// TestExternJmpTerminatesExecute grounds scenario 5 of §8: any
// following instructions never execute.
func TestExternJmpTerminatesExecute(t *testing.T) {
	const handle = 0xBEEF

	stmts := []emit.Statement{
		{Op: ir.OpExternJmp, Src1: &emit.SymbolRef{Type: ir.SymCstPtr, ValueLow: handle}},
		{Op: ir.OpMov, Dst: relRef(0), Src1: cstRef(999)},
	}
	img, err := emit.Assemble(stmts, 4)
	require.NoError(t, err)

	it := New(img)
	called := false
	it.Externs[handle] = func(ctx []byte) { called = true }

	ctx := make([]byte, 4)
	require.NoError(t, it.Execute(ctx))
	assert.True(t, called, "extern was never invoked")
	assert.NotEqual(t, uint32(999), relU32(ctx, 0), "instruction following EXTERNJMP must not execute")
}

func TestCmpProducesBoolean(t *testing.T) {
	stmts := []emit.Statement{
		{Op: ir.OpCmp, Dst: relRef(0), Src1: cstRef(3), Src2: cstRef(3), JmpCondition: ir.CondNE},
		{Op: ir.OpCmp, Dst: relRef(4), Src1: cstRef(1), Src2: cstRef(2), JmpCondition: ir.CondLT},
	}
	img, err := emit.Assemble(stmts, 8)
	require.NoError(t, err)

	ctx := make([]byte, 8)
	require.NoError(t, New(img).Execute(ctx))
	assert.Equal(t, uint32(0), relU32(ctx, 0), "NE(3,3)")
	assert.Equal(t, uint32(1), relU32(ctx, 4), "LT(1,2)")
}

func TestEmptyFunctionCompletesImmediately(t *testing.T) {
	img, err := emit.Assemble(nil, 0)
	require.NoError(t, err)
	assert.NoError(t, New(img).Execute(nil))
}

func TestUnknownCallSignatureFaults(t *testing.T) {
	stmts := []emit.Statement{
		{Op: ir.OpCall, Src1: &emit.SymbolRef{Type: ir.SymCstPtr, ValueLow: 1}, Src2: cstRef(0)},
	}
	img, err := emit.Assemble(stmts, 0)
	require.NoError(t, err)

	// handle 1 is never registered: dispatch must fault.
	err = New(img).Execute(nil)
	require.Error(t, err)
	assert.IsType(t, &Fault{}, err)
}

func TestDivideByZeroFaults(t *testing.T) {
	stmts := []emit.Statement{
		{Op: ir.OpDiv, Dst: &emit.SymbolRef{Type: ir.SymTmp64, StackLocation: 0}, Src1: cstRef(10), Src2: cstRef(0)},
	}
	img, err := emit.Assemble(stmts, 0)
	require.NoError(t, err)

	err = New(img).Execute(nil)
	require.Error(t, err)
}
