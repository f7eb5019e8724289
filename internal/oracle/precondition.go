package oracle

import "github.com/exo-lang/loopsched/internal/ir"

// PreconditionProver discharges the divisibility obligation of
// split(loop, q, tail=perfect): "q divides N provably (constant or from a
// procedure precondition of the form N % k == 0 with q | k)" (spec.md §4.3).
// Grounded on original_source/src/exo/LoopIR_scheduling.py's DoSplit, which
// scans the procedure's precondition list for exactly this shape before
// falling back to rejecting the split.
type PreconditionProver struct{}

// ProvesDivisibility reports whether n is provably divisible by q, either
// because n is itself a literal multiple of q, or because one of proc's
// preconditions states `n % k == 0` for some k that q divides.
func (PreconditionProver) ProvesDivisibility(n ir.Expr, q int64, proc *ir.Procedure) bool {
	if lit, ok := literalValue(n); ok {
		return lit%q == 0
	}
	for _, pre := range proc.Preconditions {
		if k, ok := matchModZero(pre, n); ok && k%q == 0 {
			return true
		}
	}
	return false
}

// literalValue extracts an integer constant from e, looking through nothing
// else: this is a syntactic check, not a symbolic one.
func literalValue(e ir.Expr) (int64, bool) {
	c, ok := e.(ir.Const)
	if !ok {
		return 0, false
	}
	return asInt(c.Value)
}

// matchModZero recognizes the precondition shape `n % k == 0`, returning k.
func matchModZero(pre ir.Expr, n ir.Expr) (int64, bool) {
	eq, ok := pre.(ir.BinOp)
	if !ok || eq.Op != ir.OpEq {
		return 0, false
	}
	zero, zok := literalValue(eq.Rhs)
	lhs := eq.Lhs
	if !zok || zero != 0 {
		// Equality may be written with the zero on the left.
		if zero, zok = literalValue(eq.Lhs); !zok || zero != 0 {
			return 0, false
		}
		lhs = eq.Rhs
	}
	mod, ok := lhs.(ir.BinOp)
	if !ok || mod.Op != ir.OpMod {
		return 0, false
	}
	if !ir.ExprEqual(mod.Lhs, n) {
		return 0, false
	}
	return literalValue(mod.Rhs)
}
