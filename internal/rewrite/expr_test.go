package rewrite_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exo-lang/loopsched/internal/cursor"
	"github.com/exo-lang/loopsched/internal/ir"
	"github.com/exo-lang/loopsched/internal/oracle"
	"github.com/exo-lang/loopsched/internal/rewrite"
)

var boolT = ir.Scalar{Kind: ir.ScalarBool}

func TestBindExpressionHoistsSubexpressionAndRewritesOccurrence(t *testing.T) {
	a := sym("a", 1)
	b := sym("b", 2)
	c := sym("c", 3)
	y := sym("y", 4)
	target := ir.BinOp{Op: ir.OpMul, Lhs: readI(a), Rhs: readI(b), Typ: realT}
	proc := &ir.Procedure{
		Name: "p",
		Body: []ir.Stmt{
			ir.Assign{Name: y, Rhs: ir.BinOp{Op: ir.OpAdd, Lhs: target, Rhs: readI(c), Typ: realT}},
		},
	}
	root := ir.NewProgram(proc)
	allocr := ir.NewSymbolAllocator(100)
	cur := cursor.Root(root).Slice(0, 1)

	res, err := rewrite.BindExpression(root, allocr, cur, target, "tmp")
	require.NoError(t, err)
	require.Len(t, res.Root.Proc.Body, 2)

	bound, ok := res.Root.Proc.Body[0].(ir.Assign)
	require.True(t, ok)
	assert.True(t, ir.ExprEqual(bound.Rhs, target))

	use, ok := res.Root.Proc.Body[1].(ir.Assign)
	require.True(t, ok)
	bin, ok := use.Rhs.(ir.BinOp)
	require.True(t, ok)
	rd, ok := bin.Lhs.(ir.Read)
	require.True(t, ok)
	assert.True(t, rd.Sym.Equal(bound.Name))
}

func TestCommuteSwapsOperandsOfCommutativeOp(t *testing.T) {
	a := sym("a", 1)
	b := sym("b", 2)
	y := sym("y", 3)
	proc := &ir.Procedure{
		Name: "p",
		Body: []ir.Stmt{
			ir.Assign{Name: y, Rhs: ir.BinOp{Op: ir.OpAdd, Lhs: readI(a), Rhs: readI(b), Typ: realT}},
		},
	}
	root := ir.NewProgram(proc)
	cur := cursor.Root(root).Slice(0, 1)

	res, err := rewrite.Commute(root, cur)
	require.NoError(t, err)
	a0, ok := res.Root.Proc.Body[0].(ir.Assign)
	require.True(t, ok)
	bin, ok := a0.Rhs.(ir.BinOp)
	require.True(t, ok)
	lhs, ok := bin.Lhs.(ir.Read)
	require.True(t, ok)
	assert.True(t, lhs.Sym.Equal(b))
	rhs, ok := bin.Rhs.(ir.Read)
	require.True(t, ok)
	assert.True(t, rhs.Sym.Equal(a))
}

func TestCommuteRejectsNonCommutativeOperator(t *testing.T) {
	a := sym("a", 1)
	b := sym("b", 2)
	y := sym("y", 3)
	proc := &ir.Procedure{
		Name: "p",
		Body: []ir.Stmt{
			ir.Assign{Name: y, Rhs: ir.BinOp{Op: ir.OpSub, Lhs: readI(a), Rhs: readI(b), Typ: realT}},
		},
	}
	root := ir.NewProgram(proc)
	cur := cursor.Root(root).Slice(0, 1)

	_, err := rewrite.Commute(root, cur)
	assert.Error(t, err)
}

func TestMergeWritesFoldsAssignThenReduceIntoSingleAssign(t *testing.T) {
	x := sym("x", 1)
	y := sym("y", 2)
	i := sym("i", 3)
	a := sym("a", 4)
	b := sym("b", 5)
	proc := &ir.Procedure{
		Name: "p",
		Body: []ir.Stmt{
			ir.Assign{Name: y, Idx: []ir.Expr{readI(i)}, Rhs: readI(a, readI(i))},
			ir.Reduce{Name: y, Idx: []ir.Expr{readI(i)}, Rhs: readI(b, readI(i))},
		},
	}
	root := ir.NewProgram(proc)
	c1 := cursor.Root(root).Slice(0, 1)
	c2 := cursor.Root(root).Slice(1, 2)

	res, err := rewrite.MergeWrites(root, c1, c2)
	require.NoError(t, err)
	require.Len(t, res.Root.Proc.Body, 1)
	merged, ok := res.Root.Proc.Body[0].(ir.Assign)
	require.True(t, ok)
	assert.True(t, merged.Name.Equal(y))
	bin, ok := merged.Rhs.(ir.BinOp)
	require.True(t, ok)
	assert.Equal(t, ir.OpAdd, bin.Op)
	lhs, ok := bin.Lhs.(ir.Read)
	require.True(t, ok)
	assert.True(t, lhs.Sym.Equal(a))
	rhs, ok := bin.Rhs.(ir.Read)
	require.True(t, ok)
	assert.True(t, rhs.Sym.Equal(b))
	_ = x
}

func TestMergeWritesRejectsMismatchedIndices(t *testing.T) {
	y := sym("y", 1)
	i := sym("i", 2)
	j := sym("j", 3)
	a := sym("a", 4)
	proc := &ir.Procedure{
		Name: "p",
		Body: []ir.Stmt{
			ir.Assign{Name: y, Idx: []ir.Expr{readI(i)}, Rhs: readI(a, readI(i))},
			ir.Reduce{Name: y, Idx: []ir.Expr{readI(j)}, Rhs: readI(a, readI(j))},
		},
	}
	root := ir.NewProgram(proc)
	c1 := cursor.Root(root).Slice(0, 1)
	c2 := cursor.Root(root).Slice(1, 2)

	_, err := rewrite.MergeWrites(root, c1, c2)
	assert.Error(t, err)
}

func TestLiftConstantRejectsWhenTargetDependsOnIterator(t *testing.T) {
	s := sym("s", 1)
	x := sym("x", 2)
	i := sym("i", 3)
	proc := &ir.Procedure{
		Name: "p",
		Body: []ir.Stmt{
			ir.Seq{Iter: i, Lo: constI(0), Hi: constI(8), Body: []ir.Stmt{
				ir.Reduce{Name: s, Rhs: ir.BinOp{Op: ir.OpMul, Lhs: readI(i), Rhs: readI(x, readI(i)), Typ: realT}},
			}},
		},
	}
	root := ir.NewProgram(proc)
	allocr := ir.NewSymbolAllocator(100)
	cur := cursor.Root(root).Slice(0, 1)

	_, err := rewrite.LiftConstant(root, allocr, cur, readI(i), "c")
	assert.Error(t, err)
}

func TestSpecializeDuplicatesRangeIntoBothIfArms(t *testing.T) {
	x := sym("x", 1)
	y := sym("y", 2)
	proc := &ir.Procedure{
		Name: "p",
		Body: []ir.Stmt{
			ir.Assign{Name: y, Rhs: readI(x)},
		},
	}
	root := ir.NewProgram(proc)
	allocr := ir.NewSymbolAllocator(100)
	cur := cursor.Root(root).Slice(0, 1)
	cond := ir.Const{Value: true, Typ: boolT}

	res, err := rewrite.Specialize(root, allocr, cur, cond)
	require.NoError(t, err)
	require.Len(t, res.Root.Proc.Body, 1)
	ifStmt, ok := res.Root.Proc.Body[0].(ir.If)
	require.True(t, ok)
	assert.True(t, ir.ExprEqual(ifStmt.Cond, cond))
	require.Len(t, ifStmt.Body, 1)
	require.Len(t, ifStmt.Orelse, 1)
	assert.True(t, ir.StmtEqual(ifStmt.Body[0], proc.Body[0]))
}

func TestAssertIfRejectsUnprovableCondition(t *testing.T) {
	x := sym("x", 1)
	y := sym("y", 2)
	proc := &ir.Procedure{
		Name: "p",
		Body: []ir.Stmt{
			ir.If{
				Cond:   ir.BinOp{Op: ir.OpGt, Lhs: readI(x), Rhs: ir.Const{Value: int64(0), Typ: idxT}, Typ: boolT},
				Body:   []ir.Stmt{ir.Assign{Name: y, Rhs: constI(1)}},
				Orelse: []ir.Stmt{ir.Assign{Name: y, Rhs: constI(0)}},
			},
		},
	}
	root := ir.NewProgram(proc)
	orc := oracle.NewConservativeOracle()
	cur := cursor.Root(root).Slice(0, 1)

	_, err := rewrite.AssertIf(root, orc, cur, true)
	assert.Error(t, err)
}

func TestAddUnsafeGuardWrapsWithoutAnyProof(t *testing.T) {
	x := sym("x", 1)
	y := sym("y", 2)
	proc := &ir.Procedure{
		Name: "p",
		Body: []ir.Stmt{
			ir.Assign{Name: y, Rhs: readI(x)},
		},
	}
	root := ir.NewProgram(proc)
	cur := cursor.Root(root).Slice(0, 1)
	cond := ir.BinOp{Op: ir.OpGt, Lhs: readI(x), Rhs: constI(0), Typ: boolT}

	res, err := rewrite.AddUnsafeGuard(root, cur, cond)
	require.NoError(t, err)
	ifStmt, ok := res.Root.Proc.Body[0].(ir.If)
	require.True(t, ok)
	assert.True(t, ir.ExprEqual(ifStmt.Cond, cond))
	require.Len(t, ifStmt.Body, 1)
	assert.Empty(t, ifStmt.Orelse)
}

func TestInsertPassThenDeletePassRoundTrips(t *testing.T) {
	y := sym("y", 1)
	proc := &ir.Procedure{
		Name: "p",
		Body: []ir.Stmt{
			ir.Assign{Name: y, Rhs: constI(1)},
		},
	}
	root := ir.NewProgram(proc)
	gap := cursor.Root(root).Slice(0, 0)

	res, err := rewrite.InsertPass(root, gap)
	require.NoError(t, err)
	require.Len(t, res.Root.Proc.Body, 2)
	_, ok := res.Root.Proc.Body[0].(ir.Pass)
	require.True(t, ok)

	passCur := cursor.Root(res.Root).Slice(0, 1)
	res2, err := rewrite.DeletePass(res.Root, passCur)
	require.NoError(t, err)
	require.Len(t, res2.Root.Proc.Body, 1)
	_, ok = res2.Root.Proc.Body[0].(ir.Assign)
	require.True(t, ok)
}

func TestDeletePassRejectsNonPassTarget(t *testing.T) {
	y := sym("y", 1)
	proc := &ir.Procedure{Name: "p", Body: []ir.Stmt{ir.Assign{Name: y, Rhs: constI(1)}}}
	root := ir.NewProgram(proc)
	cur := cursor.Root(root).Slice(0, 1)

	_, err := rewrite.DeletePass(root, cur)
	assert.Error(t, err)
}

func TestDeleteConfigWriteRemovesWrittenFields(t *testing.T) {
	y := sym("y", 1)
	proc := &ir.Procedure{
		Name: "p",
		Body: []ir.Stmt{
			ir.WriteConfig{Config: "cfg", Field: "f", Value: constI(1)},
			ir.Assign{Name: y, Rhs: constI(2)},
		},
	}
	root := ir.NewProgram(proc)
	orc := oracle.NewConservativeOracle()
	block := cursor.Root(root).Slice(0, 2)

	res, err := rewrite.DeleteConfigWrite(root, orc, block)
	require.NoError(t, err)
	require.Len(t, res.Root.Proc.Body, 1)
	_, ok := res.Root.Proc.Body[0].(ir.Assign)
	require.True(t, ok)
}

func TestInlineRenamesWholeSymbolArguments(t *testing.T) {
	n := sym("n", 1)
	localY := sym("y", 2)
	q := sym("q", 100)
	callee := &ir.Procedure{
		Name: "callee",
		Args: []ir.Argument{{Sym: n, Typ: realT, Effect: ir.In}},
		Body: []ir.Stmt{ir.Assign{Name: localY, Rhs: readI(n)}},
	}
	proc := &ir.Procedure{
		Name: "p",
		Body: []ir.Stmt{ir.Call{Proc: callee, Args: []ir.Expr{readI(q)}}},
	}
	root := ir.NewProgram(proc)
	allocr := ir.NewSymbolAllocator(200)
	cur := cursor.Root(root).Slice(0, 1)

	res, err := rewrite.Inline(root, allocr, cur)
	require.NoError(t, err)
	require.Len(t, res.Root.Proc.Body, 1)
	assign, ok := res.Root.Proc.Body[0].(ir.Assign)
	require.True(t, ok)
	rd, ok := assign.Rhs.(ir.Read)
	require.True(t, ok)
	assert.True(t, rd.Sym.Equal(q))
}

func TestInlineRejectsArityMismatch(t *testing.T) {
	n := sym("n", 1)
	m := sym("m", 2)
	callee := &ir.Procedure{
		Name: "callee",
		Args: []ir.Argument{{Sym: n, Typ: realT, Effect: ir.In}, {Sym: m, Typ: realT, Effect: ir.In}},
		Body: []ir.Stmt{ir.Pass{}},
	}
	proc := &ir.Procedure{
		Name: "p",
		Body: []ir.Stmt{ir.Call{Proc: callee, Args: []ir.Expr{constI(1)}}},
	}
	root := ir.NewProgram(proc)
	allocr := ir.NewSymbolAllocator(200)
	cur := cursor.Root(root).Slice(0, 1)

	_, err := rewrite.Inline(root, allocr, cur)
	assert.Error(t, err)
}

func TestCallSwapRetargetsToEquivalentProcedure(t *testing.T) {
	n := sym("n", 1)
	oldProc := &ir.Procedure{Name: "old", Args: []ir.Argument{{Sym: n, Typ: realT, Effect: ir.In}}, Body: []ir.Stmt{ir.Pass{}}}
	newN := sym("n2", 2)
	newProc := &ir.Procedure{Name: "new", Args: []ir.Argument{{Sym: newN, Typ: realT, Effect: ir.In}}, Body: []ir.Stmt{ir.Pass{}}}
	q := sym("q", 3)
	proc := &ir.Procedure{
		Name: "p",
		Body: []ir.Stmt{ir.Call{Proc: oldProc, Args: []ir.Expr{readI(q)}}},
	}
	root := ir.NewProgram(proc)
	orc := oracle.NewConservativeOracle()
	cur := cursor.Root(root).Slice(0, 1)

	res, err := rewrite.CallSwap(root, orc, cur, newProc, []ir.Expr{readI(q)})
	require.NoError(t, err)
	call, ok := res.Root.Proc.Body[0].(ir.Call)
	require.True(t, ok)
	assert.Same(t, newProc, call.Proc)
}

func TestCallSwapRejectsArityMismatch(t *testing.T) {
	n := sym("n", 1)
	oldProc := &ir.Procedure{Name: "old", Args: []ir.Argument{{Sym: n, Typ: realT, Effect: ir.In}}, Body: []ir.Stmt{ir.Pass{}}}
	m1 := sym("m1", 2)
	m2 := sym("m2", 3)
	newProc := &ir.Procedure{
		Name: "new",
		Args: []ir.Argument{{Sym: m1, Typ: realT, Effect: ir.In}, {Sym: m2, Typ: realT, Effect: ir.In}},
		Body: []ir.Stmt{ir.Pass{}},
	}
	q := sym("q", 4)
	proc := &ir.Procedure{Name: "p", Body: []ir.Stmt{ir.Call{Proc: oldProc, Args: []ir.Expr{readI(q)}}}}
	root := ir.NewProgram(proc)
	orc := oracle.NewConservativeOracle()
	cur := cursor.Root(root).Slice(0, 1)

	_, err := rewrite.CallSwap(root, orc, cur, newProc, []ir.Expr{readI(q), readI(q)})
	assert.Error(t, err)
}

func TestSetTypeAndMemoryChangesAllocMemSpace(t *testing.T) {
	buf := sym("buf", 1)
	proc := &ir.Procedure{
		Name: "p",
		Body: []ir.Stmt{ir.Alloc{Name: buf, Typ: realT, Mem: ir.DefaultMemSpace}},
	}
	root := ir.NewProgram(proc)
	cur := cursor.Root(root).Slice(0, 1)

	res, err := rewrite.SetTypeAndMemory(root, cur, ir.MemSpace("scratch"))
	require.NoError(t, err)
	alloc, ok := res.Root.Proc.Body[0].(ir.Alloc)
	require.True(t, ok)
	assert.Equal(t, ir.MemSpace("scratch"), alloc.Mem)
}

func TestSetTypeAndMemoryRejectsNonAllocTarget(t *testing.T) {
	y := sym("y", 1)
	proc := &ir.Procedure{Name: "p", Body: []ir.Stmt{ir.Assign{Name: y, Rhs: constI(1)}}}
	root := ir.NewProgram(proc)
	cur := cursor.Root(root).Slice(0, 1)

	_, err := rewrite.SetTypeAndMemory(root, cur, ir.DefaultMemSpace)
	assert.Error(t, err)
}

func TestPartialEvalSpecializesArgumentAndDropsIt(t *testing.T) {
	n := sym("n", 1)
	x := sym("x", 2)
	proc := &ir.Procedure{
		Name: "p",
		Args: []ir.Argument{
			{Sym: n, Typ: idxT, Effect: ir.In},
			{Sym: x, Typ: ir.NewTensor([]ir.Expr{readI(n)}, realT), Effect: ir.In},
		},
		Preconditions: []ir.Expr{
			ir.BinOp{Op: ir.OpEq, Lhs: readI(n), Rhs: constI(8), Typ: boolT},
		},
		Body: []ir.Stmt{ir.Pass{}},
	}
	root := ir.NewProgram(proc)

	res, err := rewrite.PartialEval(root, 0, constI(8))
	require.NoError(t, err)
	require.Len(t, res.Root.Proc.Args, 1)
	assert.True(t, res.Root.Proc.Args[0].Sym.Equal(x))

	require.Len(t, res.Root.Proc.Preconditions, 1)
	eq, ok := res.Root.Proc.Preconditions[0].(ir.BinOp)
	require.True(t, ok)
	lhsConst, ok := eq.Lhs.(ir.Const)
	require.True(t, ok)
	assert.Equal(t, int64(8), lhsConst.Value.(int64))
}

func TestPartialEvalRejectsOutOfRangeIndex(t *testing.T) {
	proc := &ir.Procedure{Name: "p", Body: []ir.Stmt{ir.Pass{}}}
	root := ir.NewProgram(proc)

	_, err := rewrite.PartialEval(root, 3, constI(1))
	assert.Error(t, err)
}

func TestExtractMethodLiftsBlockIntoCallToNewProcedure(t *testing.T) {
	x := sym("x", 1)
	y := sym("y", 2)
	proc := &ir.Procedure{
		Name: "p",
		Body: []ir.Stmt{ir.Assign{Name: y, Rhs: readI(x)}},
	}
	root := ir.NewProgram(proc)
	cur := cursor.Root(root).Slice(0, 1)
	xArg := sym("x_in", 3)
	args := []ir.Argument{{Sym: xArg, Typ: realT, Effect: ir.In}}
	callArgs := []ir.Expr{readI(x)}

	res, err := rewrite.ExtractMethod(root, cur, "my helper", args, callArgs)
	require.NoError(t, err)
	call, ok := res.Root.Proc.Body[0].(ir.Call)
	require.True(t, ok)
	assert.Equal(t, "my_helper", call.Proc.Name)
	require.Len(t, call.Proc.Body, 1)
	assert.True(t, ir.StmtEqual(call.Proc.Body[0], proc.Body[0]))
	require.Len(t, call.Args, 1)
	assert.True(t, ir.ExprEqual(call.Args[0], readI(x)))
}

func TestExtractMethodRejectsArgCallArgMismatch(t *testing.T) {
	y := sym("y", 1)
	proc := &ir.Procedure{Name: "p", Body: []ir.Stmt{ir.Assign{Name: y, Rhs: constI(1)}}}
	root := ir.NewProgram(proc)
	cur := cursor.Root(root).Slice(0, 1)
	xArg := sym("x_in", 2)

	_, err := rewrite.ExtractMethod(root, cur, "helper", []ir.Argument{{Sym: xArg, Typ: realT, Effect: ir.In}}, nil)
	assert.Error(t, err)
}
