package oracle_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exo-lang/loopsched/internal/ir"
	"github.com/exo-lang/loopsched/internal/oracle"
)

var idxT = ir.Scalar{Kind: ir.ScalarIndex}
var realT = ir.Scalar{Kind: ir.ScalarReal}

func sym(name string, tag int64) ir.Symbol { return ir.Symbol{Name: name, Tag: tag} }

func constI(n int64) ir.Const { return ir.Const{Value: n, Typ: idxT} }

func readI(s ir.Symbol, idx ...ir.Expr) ir.Read { return ir.Read{Sym: s, Idx: idx, Typ: realT} }

func TestIsPositiveAcceptsLiteralConstant(t *testing.T) {
	o := oracle.NewConservativeOracle()
	root := ir.NewProgram(&ir.Procedure{Name: "p", Body: nil})
	ok, err := o.IsPositive(constI(4), oracle.ProgramPoint{Root: root})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIsPositiveRejectsZero(t *testing.T) {
	o := oracle.NewConservativeOracle()
	root := ir.NewProgram(&ir.Procedure{Name: "p", Body: nil})
	ok, err := o.IsPositive(constI(0), oracle.ProgramPoint{Root: root})
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestIsPositiveUsesLoopBoundEnvironment(t *testing.T) {
	i, buf := sym("i", 1), sym("buf", 2)
	proc := &ir.Procedure{
		Name: "p",
		Body: []ir.Stmt{
			ir.Seq{Iter: i, Lo: constI(1), Hi: constI(8), Body: []ir.Stmt{
				ir.Assign{Name: buf, Idx: []ir.Expr{readI(i)}, Rhs: readI(i)},
			}},
		},
	}
	root := ir.NewProgram(proc)
	o := oracle.NewConservativeOracle()
	ok, err := o.IsPositive(readI(i), oracle.ProgramPoint{Root: root})
	require.NoError(t, err)
	assert.True(t, ok, "i ranges over [1, 8), so it is provably positive")
}

func TestReorderStmtsRejectsSharedBuffer(t *testing.T) {
	buf := sym("buf", 1)
	s1 := ir.Assign{Name: buf, Idx: []ir.Expr{constI(0)}, Rhs: constI(1)}
	s2 := ir.Assign{Name: buf, Idx: []ir.Expr{constI(1)}, Rhs: constI(2)}
	o := oracle.NewConservativeOracle()
	ok, err := o.ReorderStmts(s1, s2)
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestReorderStmtsAcceptsDisjointBuffers(t *testing.T) {
	a, b := sym("a", 1), sym("b", 2)
	s1 := ir.Assign{Name: a, Idx: []ir.Expr{constI(0)}, Rhs: constI(1)}
	s2 := ir.Assign{Name: b, Idx: []ir.Expr{constI(0)}, Rhs: constI(2)}
	o := oracle.NewConservativeOracle()
	ok, err := o.ReorderStmts(s1, s2)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReorderLoopsRejectsWhenInnerBoundsDependOnOuterIterator(t *testing.T) {
	outer, inner := sym("i", 1), sym("j", 2)
	buf := sym("buf", 3)
	loop := ir.Seq{Iter: outer, Lo: constI(0), Hi: constI(8), Body: []ir.Stmt{
		ir.Seq{Iter: inner, Lo: constI(0), Hi: readI(outer), Body: []ir.Stmt{
			ir.Assign{Name: buf, Idx: []ir.Expr{readI(inner)}, Rhs: constI(0)},
		}},
	}}
	o := oracle.NewConservativeOracle()
	ok, err := o.ReorderLoops(loop)
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestReorderLoopsAcceptsIndependentBounds(t *testing.T) {
	outer, inner := sym("i", 1), sym("j", 2)
	buf := sym("buf", 3)
	loop := ir.Seq{Iter: outer, Lo: constI(0), Hi: constI(8), Body: []ir.Stmt{
		ir.Seq{Iter: inner, Lo: constI(0), Hi: constI(8), Body: []ir.Stmt{
			ir.Assign{Name: buf, Idx: []ir.Expr{readI(inner), readI(outer)}, Rhs: constI(0)},
		}},
	}}
	o := oracle.NewConservativeOracle()
	ok, err := o.ReorderLoops(loop)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestFissionLoopRejectsWhenAllocationEscapes(t *testing.T) {
	i, tmp := sym("i", 1), sym("tmp", 2)
	loop := ir.Seq{Iter: i, Lo: constI(0), Hi: constI(8)}
	pre := []ir.Stmt{ir.Alloc{Name: tmp, Typ: realT}}
	post := []ir.Stmt{ir.Assign{Name: tmp, Idx: nil, Rhs: constI(0)}}
	o := oracle.NewConservativeOracle()
	ok, err := o.FissionLoop(loop, pre, post, false)
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestFissionLoopAcceptsWhenNoAllocationEscapes(t *testing.T) {
	i := sym("i", 1)
	loop := ir.Seq{Iter: i, Lo: constI(0), Hi: constI(8)}
	o := oracle.NewConservativeOracle()
	ok, err := o.FissionLoop(loop, nil, nil, false)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBufferRWDetectsReadAndWrite(t *testing.T) {
	buf := sym("buf", 1)
	body := []ir.Stmt{
		ir.Assign{Name: buf, Idx: []ir.Expr{constI(0)}, Rhs: constI(1)},
		ir.Assign{Name: sym("out", 2), Idx: []ir.Expr{constI(0)}, Rhs: readI(buf, constI(0))},
	}
	o := oracle.NewConservativeOracle()
	read, written, err := o.BufferRW(body, buf, 1)
	require.NoError(t, err)
	assert.True(t, read)
	assert.True(t, written)
}

func TestBufferReduceOnlyRejectsPlainAssign(t *testing.T) {
	buf := sym("buf", 1)
	body := []ir.Stmt{
		ir.Assign{Name: buf, Idx: []ir.Expr{constI(0)}, Rhs: constI(1)},
	}
	o := oracle.NewConservativeOracle()
	ok, err := o.BufferReduceOnly(body, buf, 1)
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestBufferReduceOnlyAcceptsReduceOnlyAccess(t *testing.T) {
	buf := sym("buf", 1)
	body := []ir.Stmt{
		ir.Reduce{Name: buf, Idx: []ir.Expr{constI(0)}, Rhs: constI(1)},
	}
	o := oracle.NewConservativeOracle()
	ok, err := o.BufferReduceOnly(body, buf, 1)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBoundsRejectsOutOfRangeLiteralAccess(t *testing.T) {
	buf := sym("buf", 1)
	alloc := ir.Alloc{Name: buf, Typ: ir.Tensor{Element: realT, Shape: []ir.Expr{constI(4)}}}
	following := []ir.Stmt{ir.Assign{Name: buf, Idx: []ir.Expr{constI(9)}, Rhs: constI(1)}}
	o := oracle.NewConservativeOracle()
	ok, err := o.Bounds(alloc, following)
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestBoundsAcceptsInRangeLiteralAccess(t *testing.T) {
	buf := sym("buf", 1)
	alloc := ir.Alloc{Name: buf, Typ: ir.Tensor{Element: realT, Shape: []ir.Expr{constI(4)}}}
	following := []ir.Stmt{ir.Assign{Name: buf, Idx: []ir.Expr{constI(2)}, Rhs: constI(1)}}
	o := oracle.NewConservativeOracle()
	ok, err := o.Bounds(alloc, following)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBoundsAcceptsScalarAllocUnconditionally(t *testing.T) {
	buf := sym("x", 1)
	alloc := ir.Alloc{Name: buf, Typ: realT}
	o := oracle.NewConservativeOracle()
	ok, err := o.Bounds(alloc, nil)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDeadAfterRejectsWhenBufferIsStillRead(t *testing.T) {
	buf, out := sym("buf", 1), sym("out", 2)
	body := []ir.Stmt{ir.Assign{Name: out, Rhs: readI(buf)}}
	o := oracle.NewConservativeOracle()
	ok, err := o.DeadAfter(body, buf, 0)
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestDeadAfterAcceptsWhenBufferIsNeverRead(t *testing.T) {
	buf := sym("buf", 1)
	o := oracle.NewConservativeOracle()
	ok, err := o.DeadAfter(nil, buf, 0)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIdempotentRejectsAnyReduce(t *testing.T) {
	buf := sym("buf", 1)
	body := []ir.Stmt{ir.Reduce{Name: buf, Idx: []ir.Expr{constI(0)}, Rhs: constI(1)}}
	o := oracle.NewConservativeOracle()
	ok, err := o.Idempotent(body)
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestIdempotentAcceptsPlainAssignment(t *testing.T) {
	buf := sym("buf", 1)
	body := []ir.Stmt{ir.Assign{Name: buf, Idx: []ir.Expr{constI(0)}, Rhs: constI(1)}}
	o := oracle.NewConservativeOracle()
	ok, err := o.Idempotent(body)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAliasingRejectsSameBufferPassedTwice(t *testing.T) {
	buf := sym("buf", 1)
	callee := &ir.Procedure{Name: "f", Args: []ir.Argument{
		{Sym: sym("a", 2), Typ: realT},
		{Sym: sym("b", 3), Typ: realT},
	}}
	proc := &ir.Procedure{
		Name: "p",
		Body: []ir.Stmt{ir.Call{Proc: callee, Args: []ir.Expr{readI(buf), readI(buf)}}},
	}
	o := oracle.NewConservativeOracle()
	ok, err := o.Aliasing(proc)
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestAliasingAcceptsDistinctBuffers(t *testing.T) {
	a, b := sym("a", 1), sym("b", 2)
	callee := &ir.Procedure{Name: "f", Args: []ir.Argument{
		{Sym: sym("x", 3), Typ: realT},
		{Sym: sym("y", 4), Typ: realT},
	}}
	proc := &ir.Procedure{
		Name: "p",
		Body: []ir.Stmt{ir.Call{Proc: callee, Args: []ir.Expr{readI(a), readI(b)}}},
	}
	o := oracle.NewConservativeOracle()
	ok, err := o.Aliasing(proc)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRangeOfAddOfTwoConstants(t *testing.T) {
	env := oracle.Env{}
	iv := oracle.RangeOf(ir.BinOp{Op: ir.OpAdd, Lhs: constI(2), Rhs: constI(3)}, env)
	require.True(t, iv.Known)
	assert.Equal(t, int64(5), iv.Lo)
	assert.Equal(t, int64(6), iv.Hi)
}

func TestRangeOfUnknownReadWithoutEnvEntry(t *testing.T) {
	env := oracle.Env{}
	iv := oracle.RangeOf(readI(sym("n", 1)), env)
	assert.False(t, iv.Known)
}

func TestEnvChildDoesNotMutateParent(t *testing.T) {
	base := oracle.Env{}
	i := sym("i", 1)
	child := base.Child(i, oracle.Interval{Known: true, Lo: 0, Hi: 8})
	assert.Len(t, base, 0, "Child must not mutate the receiver")
	assert.Len(t, child, 1)
}
