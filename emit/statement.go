package emit

import "emberjit/ir"

// BlockID names a label target. The external statement producer
// allocates these; the emitter only ever compares them for equality.
type BlockID uint32

// SymbolRef names a symbol of some type and carries the value the
// emitter needs to turn it into an ir.Operand: a 32-bit ValueLow, an
// optional ValueHigh for 64-bit/pointer constants, and a StackLocation
// for TMP*-tagged temporaries.
type SymbolRef struct {
	Type          ir.SymbolType
	ValueLow      uint32
	ValueHigh     uint32
	StackLocation uint32
}

// Statement is one entry in the ordered list the external IR builder
// hands to Emit. A nil Dst/Src1/Src2 encodes the null operand.
type Statement struct {
	Op           ir.Opcode
	Dst          *SymbolRef
	Src1         *SymbolRef
	Src2         *SymbolRef
	JmpCondition ir.Condition
	JmpBlock     BlockID
}
