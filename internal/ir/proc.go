package ir

import (
	"github.com/segmentio/ksuid"
)

// Argument is one entry of a Procedure's signature (spec.md §3.1).
type Argument struct {
	Sym    Symbol
	Typ    Type
	Mem    MemSpace
	Effect IOEffect
}

// Procedure is (name, args, preconditions, body, instr?, srcinfo) from
// spec.md §3.1. Preconditions are free-form boolean expressions asserted at
// entry; the oracle may consult them (spec.md §6 "Procedure-level state"),
// e.g. to discharge split(tail=perfect)'s divisibility obligation.
type Procedure struct {
	Name          string
	Args          []Argument
	Preconditions []Expr
	Body          []Stmt
	Instr         *Instr
	Src           SrcInfo
}

// Program is the root handle a directive receives and returns. Handle is a
// ksuid stamped fresh on every produced tree (spec.md §5's "deterministic
// ordering" property is about the *shape* of the tree, not this id — Handle
// exists purely so a host pipeline embedding the engine can key a cache or
// correlate trees across a log without diffing whole trees).
type Program struct {
	Handle ksuid.KSUID
	Proc   *Procedure
}

// NewProgram wraps a Procedure as a fresh root, stamping a new Handle.
func NewProgram(p *Procedure) *Program {
	return &Program{Handle: ksuid.New(), Proc: p}
}

// WithProc returns a new Program wrapping a different Procedure body but
// stamped with a fresh Handle, the shape every atomic edit in
// internal/cursor produces.
func (p *Program) WithProc(proc *Procedure) *Program {
	return &Program{Handle: ksuid.New(), Proc: proc}
}
