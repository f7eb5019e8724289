// Package rewrite implements the rewrite kernel of spec.md §4.3: one Go
// function per scheduling directive, each validating its preconditions
// against an internal/oracle.Oracle, building a replacement subtree, and
// committing it through internal/cursor's atomic edits. Grounded
// directive-by-directive on original_source/src/exo/LoopIR_scheduling.py's
// `Do*` classes, restated without that file's visitor-class machinery since
// internal/ir is a plain tagged-variant sum.
package rewrite

import (
	"github.com/exo-lang/loopsched/internal/cursor"
	"github.com/exo-lang/loopsched/internal/ir"
	"github.com/exo-lang/loopsched/internal/serr"
)

// Result is the (new root, forwarder) pair every directive produces, the
// same shape internal/cursor's atomic edits return (spec.md §4.1).
type Result = cursor.Result

// edit is one atomic step of a multi-edit directive: given the current
// root, produce its replacement plus the forwarder from that root.
type edit func(root *ir.Program) (Result, error)

// compose runs a sequence of edits against successive roots, threading the
// output root of one into the input of the next, and returns the final
// root paired with the left-to-right composition of every per-edit
// forwarder — spec.md §4.1's contract for directives built from more than
// one atomic edit.
func compose(root *ir.Program, edits ...edit) (Result, error) {
	forwards := make([]cursor.Forwarder, 0, len(edits))
	current := root
	for _, e := range edits {
		res, err := e(current)
		if err != nil {
			return Result{}, err
		}
		current = res.Root
		forwards = append(forwards, res.Forward)
	}
	return Result{Root: current, Forward: cursor.Compose(forwards...)}, nil
}

var idxType = ir.Scalar{Kind: ir.ScalarIndex}

func constIdx(n int64) ir.Expr { return ir.Const{Value: n, Typ: idxType} }

func readIdx(s ir.Symbol) ir.Expr { return ir.Read{Sym: s, Typ: idxType} }

func add(a, b ir.Expr) ir.Expr { return ir.BinOp{Op: ir.OpAdd, Lhs: a, Rhs: b, Typ: idxType} }
func sub(a, b ir.Expr) ir.Expr { return ir.BinOp{Op: ir.OpSub, Lhs: a, Rhs: b, Typ: idxType} }
func mul(a, b ir.Expr) ir.Expr { return ir.BinOp{Op: ir.OpMul, Lhs: a, Rhs: b, Typ: idxType} }
func div(a, b ir.Expr) ir.Expr { return ir.BinOp{Op: ir.OpDiv, Lhs: a, Rhs: b, Typ: idxType} }
func mod(a, b ir.Expr) ir.Expr { return ir.BinOp{Op: ir.OpMod, Lhs: a, Rhs: b, Typ: idxType} }
func lt(a, b ir.Expr) ir.Expr {
	return ir.BinOp{Op: ir.OpLt, Lhs: a, Rhs: b, Typ: ir.Scalar{Kind: ir.ScalarBool}}
}

// constOf extracts a literal integer from e, the syntactic (not symbolic)
// check every directive uses before attempting a statically-shaped rewrite.
func constOf(e ir.Expr) (int64, bool) {
	c, ok := e.(ir.Const)
	if !ok {
		return 0, false
	}
	switch n := c.Value.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}

func unsupported(pos ir.SrcInfo, reason string) error {
	return serr.New(serr.CodeUnsupportedForm, toPosition(pos), "%s", reason)
}

func shapeMismatch(pos ir.SrcInfo, reason string) error {
	return serr.New(serr.CodeShapeMismatch, toPosition(pos), "%s", reason)
}

func toPosition(s ir.SrcInfo) serr.Position {
	return serr.Position{File: s.File, Line: s.Line, Col: s.Col}
}
