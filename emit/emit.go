package emit

import (
	"bytes"
	"io"

	"emberjit/ir"
)

// emitter holds the mutable state of one emission pass: the growing
// instruction buffer, the constant pool, and the label bookkeeping maps
// from §4.2 step 2.
type emitter struct {
	instrs    []ir.Instruction
	constants []uint32
	labelDefs map[BlockID]int
	labelRefs map[BlockID][]int
}

// Emit runs the full algorithm of §4.2 over stmts and writes the
// resulting bytecode image to w. stackSizeBytes becomes the image
// header's declared stack size.
func Emit(w io.Writer, stmts []Statement, stackSizeBytes uint32) error {
	img, err := build(stmts, stackSizeBytes)
	if err != nil {
		return err
	}
	return img.Encode(w)
}

// Assemble is a convenience wrapper for callers (tests, the JIT engine)
// that want the decoded image directly: it emits to an in-memory buffer
// and decodes it back, exercising the exact wire format Execute reads.
func Assemble(stmts []Statement, stackSizeBytes uint32) (*ir.Image, error) {
	var buf bytes.Buffer
	if err := Emit(&buf, stmts, stackSizeBytes); err != nil {
		return nil, err
	}
	return ir.Decode(&buf)
}

// StatementSource is the contract an external IR statement producer
// satisfies to hand the emitter an ordered statement list without the
// emitter depending on the producer's internals. emberjit ships no
// producer of its own — the high-level IR builder is an external
// collaborator (§1) — but Assemble/Emit's callers are free to hold onto
// a StatementSource rather than a bare slice.
type StatementSource interface {
	Statements() []Statement
}

// AssembleFrom adapts a StatementSource into Assemble.
func AssembleFrom(src StatementSource, stackSizeBytes uint32) (*ir.Image, error) {
	return Assemble(src.Statements(), stackSizeBytes)
}

func build(stmts []Statement, stackSizeBytes uint32) (*ir.Image, error) {
	e := &emitter{
		labelDefs: make(map[BlockID]int),
		labelRefs: make(map[BlockID][]int),
	}

	for i, stmt := range stmts {
		if err := e.scan(i, stmt); err != nil {
			return nil, err
		}
	}

	if err := e.fixup(); err != nil {
		return nil, err
	}

	return &ir.Image{
		StackSize:    stackSizeBytes,
		Instructions: e.instrs,
		Constants:    e.constants,
	}, nil
}

func (e *emitter) scan(i int, stmt Statement) error {
	switch stmt.Op {
	case ir.OpLabel:
		// labelDefs is single-valued; a redefinition silently wins with
		// the last position, matching a forward-only single pass over
		// statements that never revisits an earlier LABEL.
		e.labelDefs[stmt.JmpBlock] = len(e.instrs)
		return nil

	case ir.OpJmp, ir.OpCondJmp:
		e.labelRefs[stmt.JmpBlock] = append(e.labelRefs[stmt.JmpBlock], len(e.instrs))
		src1, err := e.encodeRef(stmt.Src1)
		if err != nil {
			return e.wrap(err, i, stmt)
		}
		src2, err := e.encodeRef(stmt.Src2)
		if err != nil {
			return e.wrap(err, i, stmt)
		}
		e.instrs = append(e.instrs, ir.Instruction{
			Op:   ir.EncodeOp(stmt.Op, stmt.JmpCondition),
			Dst:  0,
			Src1: uint32(src1),
			Src2: uint32(src2),
		})
		return nil

	case ir.OpRetVal:
		if len(e.instrs) == 0 || e.instrs[len(e.instrs)-1].Opcode() != ir.OpCall {
			return e.wrap(&Error{Err: ErrDanglingRetval, StmtIndex: i, Block: stmt.JmpBlock, Op: stmt.Op.String()}, i, stmt)
		}
		dst, err := e.encodeRef(stmt.Dst)
		if err != nil {
			return e.wrap(err, i, stmt)
		}
		e.instrs[len(e.instrs)-1].Dst = uint32(dst)
		return nil

	default:
		dst, err := e.encodeRef(stmt.Dst)
		if err != nil {
			return e.wrap(err, i, stmt)
		}
		src1, err := e.encodeRef(stmt.Src1)
		if err != nil {
			return e.wrap(err, i, stmt)
		}
		src2, err := e.encodeRef(stmt.Src2)
		if err != nil {
			return e.wrap(err, i, stmt)
		}
		e.instrs = append(e.instrs, ir.Instruction{
			Op:   ir.EncodeOp(stmt.Op, stmt.JmpCondition),
			Dst:  uint32(dst),
			Src1: uint32(src1),
			Src2: uint32(src2),
		})
		return nil
	}
}

// wrap promotes a plain error into an *Error carrying statement
// context, unless it already is one.
func (e *emitter) wrap(err error, i int, stmt Statement) error {
	if ee, ok := err.(*Error); ok {
		return ee
	}
	return &Error{Err: err, StmtIndex: i, Block: stmt.JmpBlock, Op: stmt.Op.String()}
}

// fixup implements §4.2 step 4: every recorded label reference must
// resolve to a defined block, and must still hold the unpatched zero
// dst left by scan.
func (e *emitter) fixup() error {
	for block, refs := range e.labelRefs {
		target, ok := e.labelDefs[block]
		if !ok {
			return &Error{Err: ErrUnresolvedLabel, Block: block, StmtIndex: -1, Op: "JMP/CONDJMP"}
		}
		for _, idx := range refs {
			if e.instrs[idx].Dst != 0 {
				return &Error{Err: ErrFixupConflict, Block: block, StmtIndex: idx, Op: e.instrs[idx].Opcode().String()}
			}
			e.instrs[idx].Dst = uint32(target)
		}
	}
	return nil
}

// encodeRef implements the per-symbol-type operand encoding rules of
// §4.2. A nil ref encodes the null operand.
func (e *emitter) encodeRef(ref *SymbolRef) (ir.Operand, error) {
	if ref == nil {
		return ir.NullOperand, nil
	}

	switch ref.Type {
	case ir.SymRegister:
		return ir.EncodeOperand(ref.Type, uint16(ref.ValueLow)), nil

	case ir.SymContext:
		return ir.EncodeOperand(ref.Type, 0), nil

	case ir.SymRel, ir.SymRel64, ir.SymRel128, ir.SymRelRef:
		return ir.EncodeOperand(ref.Type, uint16(ref.ValueLow)), nil

	case ir.SymTmp, ir.SymTmp64, ir.SymTmpRef:
		return ir.EncodeOperand(ref.Type, uint16(ref.StackLocation)), nil

	case ir.SymCst:
		offset := uint16(len(e.constants) * 4)
		e.constants = append(e.constants, ref.ValueLow)
		return ir.EncodeOperand(ref.Type, offset), nil

	case ir.SymCst64:
		if len(e.constants)%2 != 0 {
			e.constants = append(e.constants, 0)
		}
		offset := uint16(len(e.constants) * 4)
		e.constants = append(e.constants, ref.ValueLow, ref.ValueHigh)
		return ir.EncodeOperand(ref.Type, offset), nil

	case ir.SymCstPtr:
		// No alignment pad: this matches the layout's own asymmetry
		// (§9 open question 1), preserved rather than fixed.
		offset := uint16(len(e.constants) * 4)
		e.constants = append(e.constants, ref.ValueLow, ref.ValueHigh)
		return ir.EncodeOperand(ref.Type, offset), nil

	default:
		return 0, ErrUnknownSymbolType
	}
}
