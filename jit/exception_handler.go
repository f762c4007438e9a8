package jit

import (
	"fmt"
	"strings"

	"emberjit/exec"
	"emberjit/ir"
)

// TrapType classifies a fault surfacing out of Engine.Invoke into one of
// a small set of actionable categories, the way the teacher's
// ARM64ExceptionHandler classified native signals into an ExceptionType.
// There is no signal handler here — exec.Interpreter.Execute already
// recovers its own panics into *exec.Fault, so classification is pure
// inspection of that value.
type TrapType int

const (
	TrapUnknown TrapType = iota
	TrapDivideByZero
	TrapUnknownOpcode
	TrapUnknownSignature
	TrapOutOfBounds
	TrapIllegalOperand
)

func (t TrapType) String() string {
	switch t {
	case TrapDivideByZero:
		return "divide-by-zero"
	case TrapUnknownOpcode:
		return "unknown-opcode"
	case TrapUnknownSignature:
		return "unknown-signature"
	case TrapOutOfBounds:
		return "out-of-bounds"
	case TrapIllegalOperand:
		return "illegal-operand"
	default:
		return "unknown"
	}
}

// Trap is the classified form of an *exec.Fault, intended for an embedder
// to log or report. No trap
// class here is actually recoverable in-place — per spec.md §7, exec
// treats every fault as a programming bug — but distinguishing the class
// still tells the embedder what to report without re-parsing Msg.
type Trap struct {
	Type  TrapType
	Fault *exec.Fault
}

func (t *Trap) Error() string {
	return fmt.Sprintf("jit: %s trap: %s", t.Type, t.Fault)
}

func (t *Trap) Unwrap() error { return t.Fault }

// ClassifyFault inspects f and assigns it a TrapType by opcode and
// message content — the fault's Msg is produced by a small, known set of
// call sites in exec, so matching against it is stable in practice even
// though exec.Fault carries no explicit error code.
func ClassifyFault(f *exec.Fault) *Trap {
	switch f.Opcode {
	case ir.OpDiv, ir.OpDivS:
		if looksLikeDivideByZero(f.Msg) {
			return &Trap{Type: TrapDivideByZero, Fault: f}
		}
	case ir.OpCall, ir.OpExternJmp:
		if looksLikeSignatureFailure(f.Msg) {
			return &Trap{Type: TrapUnknownSignature, Fault: f}
		}
	}

	switch {
	case containsAny(f.Msg, "unknown or unencodable opcode"):
		return &Trap{Type: TrapUnknownOpcode, Fault: f}
	case looksLikeOutOfBounds(f.Msg):
		return &Trap{Type: TrapOutOfBounds, Fault: f}
	case looksLikeIllegalOperand(f.Msg):
		return &Trap{Type: TrapIllegalOperand, Fault: f}
	default:
		return &Trap{Type: TrapUnknown, Fault: f}
	}
}

func looksLikeDivideByZero(msg string) bool {
	return containsAny(msg, "divide", "division", "runtime error: integer divide by zero")
}

func looksLikeSignatureFailure(msg string) bool {
	return containsAny(msg, "no function registered", "no extern registered", "unsupported thunk type", "does not match registered thunk arity")
}

func looksLikeOutOfBounds(msg string) bool {
	return containsAny(msg, "out of range")
}

func looksLikeIllegalOperand(msg string) bool {
	return containsAny(msg, "illegal", "must be")
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
