package exec

import (
	"fmt"

	"emberjit/ir"
)

// Fault reports a decode- or execution-class failure: per §7 these are
// treated as programming bugs, surfaced as a single fatal diagnostic
// rather than something the interpreter attempts to recover from. It
// identifies the opcode, instruction index, and symbol tag involved,
// exactly as §7 requires.
type Fault struct {
	Opcode     ir.Opcode
	InstrIndex int
	Tag        ir.SymbolType
	Msg        string
}

func (f *Fault) Error() string {
	return fmt.Sprintf("exec: fault at instruction %d (%s, tag %s): %s", f.InstrIndex, f.Opcode, f.Tag, f.Msg)
}

// execPanic is the internal unwinding type thrown by fault() and
// recovered exactly once, at the top of Execute.
type execPanic struct {
	fault *Fault
}
