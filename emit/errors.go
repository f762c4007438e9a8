package emit

import (
	"errors"
	"fmt"
)

// Sentinel errors identifying the emission failure modes of §4.2.
// These are the only errors the core is willing to report to a caller
// rather than treat as a fatal bug (§7's "only emission errors are
// reported to the caller" policy).
var (
	ErrUnresolvedLabel   = errors.New("emit: label reference to undefined block")
	ErrDanglingRetval    = errors.New("emit: RETVAL not immediately preceded by CALL")
	ErrFixupConflict     = errors.New("emit: label fixup target already patched")
	ErrUnknownSymbolType = errors.New("emit: unknown symbol type")
)

// Error wraps one of the sentinel errors above with enough structured
// context — the offending statement index, block id and opcode — for a
// caller to log or report it.
type Error struct {
	Err       error
	StmtIndex int
	Block     BlockID
	Op        string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (statement %d, block %d, op %s)", e.Err, e.StmtIndex, e.Block, e.Op)
}

func (e *Error) Unwrap() error {
	return e.Err
}
