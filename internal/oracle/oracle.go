// Package oracle defines the safety-oracle interface of spec.md §4.2: a set
// of total black-box predicates every rewrite in internal/rewrite consults
// before committing an edit. The oracle is free to be incomplete — it may
// reject a true property — but must never accept a false one (spec.md §4.2).
//
// A production deployment backs Oracle with an external symbolic engine
// (spec.md §1 places that engine itself out of scope); conservative.go ships
// a reference implementation that answers every query by conservative,
// syntactic reasoning, rejecting whenever it cannot prove the property.
package oracle

import (
	"github.com/exo-lang/loopsched/internal/ir"
	"github.com/exo-lang/loopsched/internal/serr"
)

// ProgramPoint names a statement by the block it lives in and its index,
// the granularity every query in spec.md §4.2 is phrased at ("an IR root
// and a list of program-point handles (statement identities)", spec.md §6).
type ProgramPoint struct {
	Root  *ir.Program
	Block []ir.Stmt
	Index int
}

// Oracle is the thirteen-query interface of spec.md §4.2.
type Oracle interface {
	ExpressionEquivalenceInContext(e1 ir.Expr, p1 ProgramPoint, e2 ir.Expr, p2 ProgramPoint) (bool, error)
	IsPositive(e ir.Expr, p ProgramPoint) (bool, error)
	ReorderStmts(s1, s2 ir.Stmt) (bool, error)
	ReorderLoops(outer ir.Seq) (bool, error)
	FissionLoop(loop ir.Seq, pre, post []ir.Stmt, skippable bool) (bool, error)
	BufferRW(block []ir.Stmt, buf ir.Symbol, rank int) (read, written bool, err error)
	BufferReduceOnly(block []ir.Stmt, buf ir.Symbol, rank int) (bool, error)
	Bounds(alloc ir.Alloc, following []ir.Stmt) (bool, error)
	DeadAfter(stmts []ir.Stmt, buf ir.Symbol, rank int) (bool, error)
	Idempotent(stmts []ir.Stmt) (bool, error)
	DeleteConfigWrite(block []ir.Stmt) (configKeys map[string]bool, ok bool, err error)
	ExtendEqv(oldCall, newCall ir.Call, configKeys map[string]bool) (bool, error)
	Aliasing(proc *ir.Procedure) (bool, error)
}

// reject builds the *serr.SchedulingError every failed query returns,
// naming the query and the reason it could not be discharged.
func reject(query string, pos ir.SrcInfo, reason string) error {
	return serr.New(serr.CodeOracleRejected, toPosition(pos), "%s: %s", query, reason)
}

func toPosition(s ir.SrcInfo) serr.Position {
	return serr.Position{File: s.File, Line: s.Line, Col: s.Col}
}

func locOf(s ir.Stmt) ir.SrcInfo {
	if s == nil {
		return ir.SrcInfo{}
	}
	return s.Loc()
}
