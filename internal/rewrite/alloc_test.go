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

// liftAllocProgram builds `for i in [0,8): alloc tmp: real; tmp = x[i]; y[i]
// = tmp`, the shape spec.md §8 scenario 3 (lift-alloc extending a scalar
// temporary's shape by the enclosing loop's extent) exercises.
func liftAllocProgram() (*ir.Program, ir.Symbol, ir.Symbol) {
	x := sym("x", 1)
	y := sym("y", 2)
	i := sym("i", 3)
	tmp := sym("tmp", 4)
	proc := &ir.Procedure{
		Name: "p",
		Args: []ir.Argument{
			{Sym: x, Typ: ir.NewTensor([]ir.Expr{constI(8)}, realT), Effect: ir.In},
			{Sym: y, Typ: ir.NewTensor([]ir.Expr{constI(8)}, realT), Effect: ir.Out},
		},
		Body: []ir.Stmt{
			ir.Seq{Iter: i, Lo: constI(0), Hi: constI(8), Body: []ir.Stmt{
				ir.Alloc{Name: tmp, Typ: realT, Mem: ir.DefaultMemSpace},
				ir.Assign{Name: tmp, Rhs: readI(x, readI(i))},
				ir.Assign{Name: y, Idx: []ir.Expr{readI(i)}, Rhs: readI(tmp)},
			}},
		},
	}
	return ir.NewProgram(proc), tmp, i
}

func TestLiftAllocRowModeExtendsShapeByLoopExtent(t *testing.T) {
	root, tmp, i := liftAllocProgram()
	allocCur := cursor.Root(root)
	body, err := allocCur.Slice(0, 1).Body()
	require.NoError(t, err)
	c := body.Slice(0, 1) // the Alloc statement

	res, err := rewrite.LiftAlloc(root, c, 1, "row", nil)
	require.NoError(t, err)

	loop, ok := res.Root.Proc.Body[1].(ir.Seq)
	require.True(t, ok)

	// the Alloc is now the loop's immediate predecessor at the outer level.
	require.Len(t, res.Root.Proc.Body, 2)
	lifted, ok := res.Root.Proc.Body[0].(ir.Alloc)
	require.True(t, ok)
	assert.True(t, lifted.Name.Equal(tmp))
	tensor, ok := lifted.Typ.(ir.Tensor)
	require.True(t, ok)
	require.Len(t, tensor.Shape, 1)
	assert.Equal(t, int64(8), tensor.Shape[0].(ir.Const).Value.(int64))

	// every remaining reference to tmp within the loop body now carries the
	// loop's iterator as its (new, leading) index.
	assign, ok := loop.Body[0].(ir.Assign)
	require.True(t, ok)
	require.Len(t, assign.Idx, 1)
	read, ok := assign.Idx[0].(ir.Read)
	require.True(t, ok)
	assert.True(t, read.Sym.Equal(i))

	use, ok := loop.Body[1].(ir.Assign)
	require.True(t, ok)
	rd, ok := use.Rhs.(ir.Read)
	require.True(t, ok)
	assert.True(t, rd.Sym.Equal(tmp))
	require.Len(t, rd.Idx, 1)
}

func TestLiftAllocColModeAppendsTrailingDimension(t *testing.T) {
	// a 2D buffer's col-mode lift appends rather than prepends the new
	// dimension, so existing accesses keep their original leading indices.
	x := sym("x", 1)
	i := sym("i", 2)
	j := sym("j", 3)
	tmp := sym("tmp", 4)
	proc := &ir.Procedure{
		Name: "p",
		Body: []ir.Stmt{
			ir.Seq{Iter: i, Lo: constI(0), Hi: constI(4), Body: []ir.Stmt{
				ir.Alloc{Name: tmp, Typ: ir.NewTensor([]ir.Expr{constI(4)}, realT), Mem: ir.DefaultMemSpace},
				ir.Seq{Iter: j, Lo: constI(0), Hi: constI(4), Body: []ir.Stmt{
					ir.Assign{Name: tmp, Idx: []ir.Expr{readI(j)}, Rhs: readI(x, readI(j))},
				}},
			}},
		},
	}
	root := ir.NewProgram(proc)
	body, err := cursor.Root(root).Slice(0, 1).Body()
	require.NoError(t, err)
	c := body.Slice(0, 1)

	res, err := rewrite.LiftAlloc(root, c, 1, "col", nil)
	require.NoError(t, err)
	lifted := res.Root.Proc.Body[0].(ir.Alloc)
	tensor := lifted.Typ.(ir.Tensor)
	require.Len(t, tensor.Shape, 2)
	assert.Equal(t, int64(4), tensor.Shape[0].(ir.Const).Value.(int64))
	assert.Equal(t, int64(4), tensor.Shape[1].(ir.Const).Value.(int64))
}

func TestLiftAllocSizeOverridesExtent(t *testing.T) {
	root, _, _ := liftAllocProgram()
	body, err := cursor.Root(root).Slice(0, 1).Body()
	require.NoError(t, err)
	c := body.Slice(0, 1)

	res, err := rewrite.LiftAlloc(root, c, 1, "row", ir.Const{Value: int64(16), Typ: idxT})
	require.NoError(t, err)
	lifted := res.Root.Proc.Body[0].(ir.Alloc)
	tensor := lifted.Typ.(ir.Tensor)
	assert.Equal(t, int64(16), tensor.Shape[0].(ir.Const).Value.(int64))
}

func TestLiftAllocRejectsExplicitMatchingFree(t *testing.T) {
	x := sym("x", 1)
	i := sym("i", 2)
	tmp := sym("tmp", 3)
	proc := &ir.Procedure{
		Name: "p",
		Body: []ir.Stmt{
			ir.Seq{Iter: i, Lo: constI(0), Hi: constI(8), Body: []ir.Stmt{
				ir.Alloc{Name: tmp, Typ: realT, Mem: ir.DefaultMemSpace},
				ir.Assign{Name: tmp, Rhs: readI(x, readI(i))},
				ir.Free{Name: tmp},
			}},
		},
	}
	root := ir.NewProgram(proc)
	body, err := cursor.Root(root).Slice(0, 1).Body()
	require.NoError(t, err)
	c := body.Slice(0, 1)

	_, err = rewrite.LiftAlloc(root, c, 1, "row", nil)
	assert.Error(t, err)
}

// --- StageMemory: spec.md §8 scenario 6 (accum-zero reduction) ---

// stageMemoryAccumProgram builds `for i in [0,4): acc[i] += x[i]`, a
// reduction over the whole of a 4-element accumulator, addressed via a
// single-dimension interval access spanning it.
func stageMemoryAccumProgram() (*ir.Program, ir.Symbol, ir.Symbol) {
	x := sym("x", 1)
	acc := sym("acc", 2)
	i := sym("i", 3)
	proc := &ir.Procedure{
		Name: "p",
		Args: []ir.Argument{
			{Sym: x, Typ: ir.NewTensor([]ir.Expr{constI(8)}, realT), Effect: ir.In},
			{Sym: acc, Typ: ir.NewTensor([]ir.Expr{constI(4)}, realT), Effect: ir.Out},
		},
		Body: []ir.Stmt{
			ir.Seq{Iter: i, Lo: constI(0), Hi: constI(4), Body: []ir.Stmt{
				ir.Reduce{Name: acc, Idx: []ir.Expr{readI(i)}, Rhs: readI(x, readI(i))},
			}},
		},
	}
	return ir.NewProgram(proc), acc, i
}

func TestStageMemoryAccumZeroStagesAndReducesBack(t *testing.T) {
	root, acc, _ := stageMemoryAccumProgram()
	loopCur := cursor.Root(root).Slice(0, 1)
	body, err := loopCur.Body()
	require.NoError(t, err)
	block := body.Slice(0, 1) // the single Reduce statement

	allocr := ir.NewSymbolAllocator(100)
	orc := oracle.NewConservativeOracle()
	access := []ir.Access{{IsInterval: true, Lo: constI(0), Hi: constI(4)}}

	res, err := rewrite.StageMemory(root, allocr, orc, block, acc, access, "acc_r", ir.DefaultMemSpace, true)
	require.NoError(t, err)

	loop, ok := res.Root.Proc.Body[0].(ir.Seq)
	require.True(t, ok)
	require.Len(t, loop.Body, 5, "expected alloc, zero-fill loop, the reduce, a store-back loop and a free")

	stagedAlloc, ok := loop.Body[0].(ir.Alloc)
	require.True(t, ok)
	assert.False(t, stagedAlloc.Name.Equal(acc), "staging must allocate a fresh buffer distinct from the original")

	last, ok := loop.Body[len(loop.Body)-1].(ir.Free)
	require.True(t, ok)
	assert.True(t, last.Name.Equal(stagedAlloc.Name))

	// the zero-fill prologue wraps an Assign of a literal 0 into the staged
	// buffer, not a Read of the original accumulator.
	zeroLoop, ok := loop.Body[1].(ir.Seq)
	require.True(t, ok)
	zeroAssign, ok := zeroLoop.Body[0].(ir.Assign)
	require.True(t, ok)
	assert.True(t, zeroAssign.Name.Equal(stagedAlloc.Name))
	_, isConst := zeroAssign.Rhs.(ir.Const)
	assert.True(t, isConst, "accum-zero's prologue must zero-fill, not load, the staging buffer")

	// the epilogue reduces the staged value back into the original buffer.
	epilogueLoop, ok := loop.Body[len(loop.Body)-2].(ir.Seq)
	require.True(t, ok)
	epilogueReduce, ok := epilogueLoop.Body[0].(ir.Reduce)
	require.True(t, ok)
	assert.True(t, epilogueReduce.Name.Equal(acc))
}

func TestStageMemoryRejectsAccumZeroOnReadAndWriteBlock(t *testing.T) {
	x := sym("x", 1)
	acc := sym("acc", 2)
	i := sym("i", 3)
	proc := &ir.Procedure{
		Name: "p",
		Body: []ir.Stmt{
			ir.Seq{Iter: i, Lo: constI(0), Hi: constI(4), Body: []ir.Stmt{
				ir.Assign{Name: acc, Idx: []ir.Expr{readI(i)}, Rhs: readI(x, readI(i))},
				ir.Reduce{Name: acc, Idx: []ir.Expr{readI(i)}, Rhs: readI(acc, readI(i))},
			}},
		},
	}
	root := ir.NewProgram(proc)
	body, err := cursor.Root(root).Slice(0, 1).Body()
	require.NoError(t, err)
	block := body.Slice(0, 2)

	allocr := ir.NewSymbolAllocator(100)
	orc := oracle.NewConservativeOracle()
	access := []ir.Access{{IsInterval: true, Lo: constI(0), Hi: constI(4)}}

	_, err = rewrite.StageMemory(root, allocr, orc, block, acc, access, "acc_r", ir.DefaultMemSpace, true)
	assert.Error(t, err)
}

func TestStageMemoryWriteOnlyBlockSkipsLoadPrologue(t *testing.T) {
	buf := sym("buf", 1)
	i := sym("i", 2)
	proc := &ir.Procedure{
		Name: "p",
		Body: []ir.Stmt{
			ir.Seq{Iter: i, Lo: constI(0), Hi: constI(4), Body: []ir.Stmt{
				ir.Assign{Name: buf, Idx: []ir.Expr{readI(i)}, Rhs: constI(0)},
			}},
		},
	}
	root := ir.NewProgram(proc)
	body, err := cursor.Root(root).Slice(0, 1).Body()
	require.NoError(t, err)
	block := body.Slice(0, 1)

	allocr := ir.NewSymbolAllocator(100)
	orc := oracle.NewConservativeOracle()
	access := []ir.Access{{IsInterval: true, Lo: constI(0), Hi: constI(4)}}

	res, err := rewrite.StageMemory(root, allocr, orc, block, buf, access, "buf_s", ir.DefaultMemSpace, false)
	require.NoError(t, err)
	loop := res.Root.Proc.Body[0].(ir.Seq)

	// write-only: no zero-fill/load prologue loop, so the staged write is
	// the statement right after the allocation, followed only by a
	// store-back loop and the free.
	require.Len(t, loop.Body, 4)
	stagedAlloc, ok := loop.Body[0].(ir.Alloc)
	require.True(t, ok)
	write, ok := loop.Body[1].(ir.Assign)
	require.True(t, ok)
	assert.True(t, write.Name.Equal(stagedAlloc.Name))
	storeBack, ok := loop.Body[2].(ir.Seq)
	require.True(t, ok)
	storeAssign, ok := storeBack.Body[0].(ir.Assign)
	require.True(t, ok)
	assert.True(t, storeAssign.Name.Equal(buf))
	_, ok = loop.Body[3].(ir.Free)
	require.True(t, ok)
}

// --- DivideDim / MultiplyDim round-trip ---

func TestDivideDimThenMultiplyDimRestoresShape(t *testing.T) {
	buf := sym("buf", 1)
	proc := &ir.Procedure{
		Name: "p",
		Body: []ir.Stmt{
			ir.Alloc{Name: buf, Typ: ir.NewTensor([]ir.Expr{constI(12)}, realT), Mem: ir.DefaultMemSpace},
			ir.Assign{Name: buf, Idx: []ir.Expr{constI(7)}, Rhs: constI(1)},
		},
	}
	root := ir.NewProgram(proc)
	c := cursor.Root(root).Slice(0, 1)

	divided, err := rewrite.DivideDim(root, c, 0, 4)
	require.NoError(t, err)
	dividedAlloc := divided.Root.Proc.Body[0].(ir.Alloc)
	dividedTensor := dividedAlloc.Typ.(ir.Tensor)
	require.Len(t, dividedTensor.Shape, 2)
	assert.Equal(t, int64(3), dividedTensor.Shape[0].(ir.Const).Value.(int64))
	assert.Equal(t, int64(4), dividedTensor.Shape[1].(ir.Const).Value.(int64))

	dividedAssign := divided.Root.Proc.Body[1].(ir.Assign)
	require.Len(t, dividedAssign.Idx, 2)

	c2 := cursor.Root(divided.Root).Slice(0, 1)
	merged, err := rewrite.MultiplyDim(divided.Root, c2, 0)
	require.NoError(t, err)
	mergedAlloc := merged.Root.Proc.Body[0].(ir.Alloc)
	mergedTensor := mergedAlloc.Typ.(ir.Tensor)
	require.Len(t, mergedTensor.Shape, 1)
	assert.Equal(t, int64(12), mergedTensor.Shape[0].(ir.Const).Value.(int64))

	mergedAssign := merged.Root.Proc.Body[1].(ir.Assign)
	require.Len(t, mergedAssign.Idx, 1)
}
