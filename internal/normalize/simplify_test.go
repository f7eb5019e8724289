package normalize_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exo-lang/loopsched/internal/ir"
	"github.com/exo-lang/loopsched/internal/normalize"
)

var idxT = ir.Scalar{Kind: ir.ScalarIndex}
var boolT = ir.Scalar{Kind: ir.ScalarBool}

func sym(name string, tag int64) ir.Symbol { return ir.Symbol{Name: name, Tag: tag} }

func constI(n int64) ir.Const { return ir.Const{Value: n, Typ: idxT} }

func readI(s ir.Symbol, idx ...ir.Expr) ir.Read { return ir.Read{Sym: s, Typ: idxT, Idx: idx} }

func TestSimplifyFoldsConstantArithmetic(t *testing.T) {
	s := normalize.NewSimplifier()
	e := ir.BinOp{Op: ir.OpMul, Lhs: constI(3), Rhs: ir.BinOp{Op: ir.OpAdd, Lhs: constI(2), Rhs: constI(5)}, Typ: idxT}

	out := s.SimplifyExpr(e, nil)

	c, ok := out.(ir.Const)
	require.True(t, ok)
	assert.Equal(t, int64(21), c.Value)
}

func TestSimplifyAppliesAdditiveAndMultiplicativeIdentities(t *testing.T) {
	s := normalize.NewSimplifier()
	x := sym("x", 1)

	plusZero := s.SimplifyExpr(ir.BinOp{Op: ir.OpAdd, Lhs: readI(x), Rhs: constI(0), Typ: idxT}, nil)
	assert.True(t, ir.ExprEqual(readI(x), plusZero))

	timesOne := s.SimplifyExpr(ir.BinOp{Op: ir.OpMul, Lhs: constI(1), Rhs: readI(x), Typ: idxT}, nil)
	assert.True(t, ir.ExprEqual(readI(x), timesOne))

	timesZero := s.SimplifyExpr(ir.BinOp{Op: ir.OpMul, Lhs: readI(x), Rhs: constI(0), Typ: idxT}, nil)
	c, ok := timesZero.(ir.Const)
	require.True(t, ok)
	assert.Equal(t, int64(0), c.Value)

	modOne := s.SimplifyExpr(ir.BinOp{Op: ir.OpMod, Lhs: readI(x), Rhs: constI(1), Typ: idxT}, nil)
	c, ok = modOne.(ir.Const)
	require.True(t, ok)
	assert.Equal(t, int64(0), c.Value)
}

func TestSimplifyRecognizesModPlusDivPattern(t *testing.T) {
	s := normalize.NewSimplifier()
	n := sym("n", 1)
	k := constI(4)

	mod := ir.BinOp{Op: ir.OpMod, Lhs: readI(n), Rhs: k, Typ: idxT}
	div := ir.BinOp{Op: ir.OpDiv, Lhs: readI(n), Rhs: k, Typ: idxT}
	mul := ir.BinOp{Op: ir.OpMul, Lhs: k, Rhs: div, Typ: idxT}
	sum := ir.BinOp{Op: ir.OpAdd, Lhs: mod, Rhs: mul, Typ: idxT}

	out := s.SimplifyExpr(sum, nil)

	assert.True(t, ir.ExprEqual(readI(n), out))
}

func TestSimplifyModPlusDivPatternIsCommutative(t *testing.T) {
	s := normalize.NewSimplifier()
	n := sym("n", 1)
	k := constI(4)

	mod := ir.BinOp{Op: ir.OpMod, Lhs: readI(n), Rhs: k, Typ: idxT}
	div := ir.BinOp{Op: ir.OpDiv, Lhs: readI(n), Rhs: k, Typ: idxT}
	mul := ir.BinOp{Op: ir.OpMul, Lhs: div, Rhs: k, Typ: idxT}
	sum := ir.BinOp{Op: ir.OpAdd, Lhs: mul, Rhs: mod, Typ: idxT}

	out := s.SimplifyExpr(sum, nil)

	assert.True(t, ir.ExprEqual(readI(n), out))
}

func TestSimplifyDropsDeadIfBranch(t *testing.T) {
	s := normalize.NewSimplifier()
	y := sym("y", 1)

	stmt := ir.If{
		Cond:   ir.Const{Value: true, Typ: boolT},
		Body:   []ir.Stmt{ir.Assign{Name: y, Rhs: constI(1)}},
		Orelse: []ir.Stmt{ir.Assign{Name: y, Rhs: constI(2)}},
	}

	out := s.Simplify([]ir.Stmt{stmt})

	require.Len(t, out, 1)
	a, ok := out[0].(ir.Assign)
	require.True(t, ok)
	assert.Equal(t, int64(1), a.Rhs.(ir.Const).Value)
}

func TestSimplifyDropsFalseIfBranchKeepingOrelse(t *testing.T) {
	s := normalize.NewSimplifier()
	y := sym("y", 1)

	stmt := ir.If{
		Cond:   ir.Const{Value: false, Typ: boolT},
		Body:   []ir.Stmt{ir.Assign{Name: y, Rhs: constI(1)}},
		Orelse: []ir.Stmt{ir.Assign{Name: y, Rhs: constI(2)}},
	}

	out := s.Simplify([]ir.Stmt{stmt})

	require.Len(t, out, 1)
	a, ok := out[0].(ir.Assign)
	require.True(t, ok)
	assert.Equal(t, int64(2), a.Rhs.(ir.Const).Value)
}

func TestSimplifyDropsEmptyBodyLoop(t *testing.T) {
	s := normalize.NewSimplifier()
	i := sym("i", 1)

	loop := ir.Seq{Iter: i, Lo: constI(0), Hi: constI(8), Body: nil}

	out := s.Simplify([]ir.Stmt{loop})

	assert.Empty(t, out)
}

func TestSimplifyDropsLoopWithEqualBounds(t *testing.T) {
	s := normalize.NewSimplifier()
	i, y := sym("i", 1), sym("y", 2)

	loop := ir.Seq{Iter: i, Lo: constI(4), Hi: constI(4), Body: []ir.Stmt{ir.Assign{Name: y, Rhs: constI(0)}}}

	out := s.Simplify([]ir.Stmt{loop})

	assert.Empty(t, out)
}

func TestSimplifyIsIdempotent(t *testing.T) {
	s := normalize.NewSimplifier()
	x, y, i := sym("x", 1), sym("y", 2), sym("i", 3)

	body := []ir.Stmt{
		ir.Seq{Iter: i, Lo: constI(0), Hi: constI(4), Body: []ir.Stmt{
			ir.Assign{Name: y, Idx: []ir.Expr{readI(i)}, Rhs: ir.BinOp{
				Op: ir.OpAdd, Lhs: readI(x, readI(i)), Rhs: constI(0), Typ: idxT,
			}},
		}},
		ir.If{Cond: ir.Const{Value: true, Typ: boolT}, Body: []ir.Stmt{ir.Assign{Name: y, Rhs: constI(9)}}},
	}

	once := s.Simplify(body)
	twice := s.Simplify(once)

	require.Equal(t, len(once), len(twice))
	for idx := range once {
		assert.True(t, ir.StmtEqual(once[idx], twice[idx]), "statement %d not stable under a second pass", idx)
	}
}

func TestSimplifyPropagatesIfConditionEqualityIntoThenBranch(t *testing.T) {
	s := normalize.NewSimplifier()
	n, y := sym("n", 1), sym("y", 2)

	cond := ir.BinOp{Op: ir.OpEq, Lhs: readI(n), Rhs: constI(3), Typ: boolT}
	stmt := ir.If{
		Cond: cond,
		Body: []ir.Stmt{ir.Assign{Name: y, Rhs: readI(n)}},
	}

	out := s.Simplify([]ir.Stmt{stmt})

	require.Len(t, out, 1)
	ifStmt, ok := out[0].(ir.If)
	require.True(t, ok)
	require.Len(t, ifStmt.Body, 1)
	a, ok := ifStmt.Body[0].(ir.Assign)
	require.True(t, ok)
	assert.True(t, ir.ExprEqual(constI(3), a.Rhs), "the then-branch read of n should be rewritten to the proven-equal constant")
}

func TestSimplifyLeavesNonConstantBinOpAlone(t *testing.T) {
	s := normalize.NewSimplifier()
	x, y := sym("x", 1), sym("y", 2)

	e := ir.BinOp{Op: ir.OpAdd, Lhs: readI(x), Rhs: readI(y), Typ: idxT}

	out := s.SimplifyExpr(e, nil)

	assert.True(t, ir.ExprEqual(e, out))
}
