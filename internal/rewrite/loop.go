package rewrite

import (
	"github.com/exo-lang/loopsched/internal/cursor"
	"github.com/exo-lang/loopsched/internal/ir"
	"github.com/exo-lang/loopsched/internal/oracle"
)

// ReorderAdjacentStmts swaps the statement c addresses with the one
// immediately following it in the same block, grounded on
// original_source/src/exo/LoopIR_scheduling.py's DoReorderStmt.
func ReorderAdjacentStmts(root *ir.Program, orc oracle.Oracle, c cursor.Cursor) (Result, error) {
	s1, err := c.Node()
	if err != nil {
		return Result{}, err
	}
	s2, err := c.Next().Node()
	if err != nil {
		return Result{}, err
	}
	if ok, err := orc.ReorderStmts(s1, s2); !ok {
		return Result{}, err
	}
	pair := cursor.Cursor{Root: root, Container: c.Container, Lo: c.Lo, Hi: c.Hi + 1}
	return cursor.Replace(pair, []ir.Stmt{s2, s1})
}

// SplitLoop rewrites `for i in [0, n): body` into a nest of an outer loop
// over tiles of size factor and an inner loop within each tile, rewriting
// every read of i to `o*factor + l` (original_source's DoSplit). tail
// selects how a non-divisible n is handled (spec.md §4.3):
//   - "perfect": n must be provably divisible by factor (literally or via a
//     procedure precondition); the outer bound is n/factor exactly and no
//     guard or tail loop is added.
//   - "guard": the outer bound is the ceiling tile count and the body is
//     wrapped in `if o*factor+l < n` to mask the final partial tile.
//   - "cut": the outer bound is the floor tile count n/q and a separate
//     tail loop `for l' in [0, n mod q): body[i ↦ (n/q)*q + l']` is
//     appended to cover the remainder.
//   - "cut-and-guard" (also the default for any other value): as "cut", but
//     the tail loop is itself wrapped in `if (n mod q) > 0`.
func SplitLoop(root *ir.Program, alloc *ir.SymbolAllocator, proc *ir.Procedure, c cursor.Cursor, factor int64, tail string) (Result, error) {
	node, err := c.Node()
	if err != nil {
		return Result{}, err
	}
	loop, ok := node.(ir.Seq)
	if !ok {
		return Result{}, unsupported(node.Loc(), "split target is not a loop")
	}
	if loNum, ok := constOf(loop.Lo); !ok || loNum != 0 {
		return Result{}, unsupported(loop.Loc(), "split requires a loop starting at 0")
	}
	if factor <= 1 {
		return Result{}, unsupported(loop.Loc(), "split factor must be greater than 1")
	}

	outerSym := alloc.Fresh(loop.Iter.Name + "o")
	innerSym := alloc.Fresh(loop.Iter.Name + "l")
	newIdx := add(mul(readIdx(outerSym), constIdx(factor)), readIdx(innerSym))
	body := ir.Subst(loop.Body, ir.SubstEnv{loop.Iter.Tag: newIdx})

	var result []ir.Stmt
	switch tail {
	case "perfect":
		outerHi, err := perfectSplitBound(loop, proc, factor)
		if err != nil {
			return Result{}, err
		}
		inner := ir.Seq{Iter: innerSym, Lo: constIdx(0), Hi: constIdx(factor), Body: body}
		outer := ir.Seq{Iter: outerSym, Lo: constIdx(0), Hi: outerHi, Body: []ir.Stmt{inner}}
		result = []ir.Stmt{outer}
	case "guard":
		outerHi := div(add(loop.Hi, constIdx(factor-1)), constIdx(factor))
		guarded := []ir.Stmt{ir.If{Cond: lt(newIdx, loop.Hi), Body: body}}
		inner := ir.Seq{Iter: innerSym, Lo: constIdx(0), Hi: constIdx(factor), Body: guarded}
		outer := ir.Seq{Iter: outerSym, Lo: constIdx(0), Hi: outerHi, Body: []ir.Stmt{inner}}
		result = []ir.Stmt{outer}
	default: // "cut", "cut-and-guard"
		outerHi := div(loop.Hi, constIdx(factor))
		inner := ir.Seq{Iter: innerSym, Lo: constIdx(0), Hi: constIdx(factor), Body: body}
		outer := ir.Seq{Iter: outerSym, Lo: constIdx(0), Hi: outerHi, Body: []ir.Stmt{inner}}

		tailSym := alloc.Fresh(loop.Iter.Name + "t")
		tailCount := mod(loop.Hi, constIdx(factor))
		tailIdx := add(mul(outerHi, constIdx(factor)), readIdx(tailSym))
		tailBody := ir.Subst(loop.Body, ir.SubstEnv{loop.Iter.Tag: tailIdx})
		tailLoop := ir.Seq{Iter: tailSym, Lo: constIdx(0), Hi: tailCount, Body: tailBody}

		var tailStmt ir.Stmt = tailLoop
		if tail != "cut" {
			tailStmt = ir.If{Cond: lt(constIdx(0), tailCount), Body: []ir.Stmt{tailLoop}}
		}
		result = []ir.Stmt{outer, tailStmt}
	}
	c.Root = root
	return cursor.Replace(c, result)
}

func perfectSplitBound(loop ir.Seq, proc *ir.Procedure, factor int64) (ir.Expr, error) {
	if n, isConst := constOf(loop.Hi); isConst {
		if n%factor != 0 {
			return nil, unsupported(loop.Loc(), "loop bound is not divisible by the split factor")
		}
		return constIdx(n / factor), nil
	}
	prover := oracle.PreconditionProver{}
	if prover.ProvesDivisibility(loop.Hi, factor, proc) {
		return div(loop.Hi, constIdx(factor)), nil
	}
	return nil, unsupported(loop.Loc(), "cannot prove the loop bound divides the split factor; use tail=\"guard\"")
}

// PartitionLoop splits `for i in [lo, hi): body` at point into two adjacent
// loops `for i in [lo, point): body` and `for i in [point, hi): body`,
// grounded on DoPartitionLoop. point must provably lie strictly within the
// original range.
func PartitionLoop(root *ir.Program, alloc *ir.SymbolAllocator, orc oracle.Oracle, c cursor.Cursor, point ir.Expr) (Result, error) {
	node, err := c.Node()
	if err != nil {
		return Result{}, err
	}
	loop, ok := node.(ir.Seq)
	if !ok {
		return Result{}, unsupported(node.Loc(), "partition target is not a loop")
	}
	pt := oracle.ProgramPoint{Root: root, Block: []ir.Stmt{loop}, Index: 0}
	if ok, err := orc.IsPositive(sub(point, loop.Lo), pt); !ok {
		return Result{}, err
	}
	if ok, err := orc.IsPositive(sub(loop.Hi, point), pt); !ok {
		return Result{}, err
	}

	s1, s2 := alloc.Fresh(loop.Iter.Name), alloc.Fresh(loop.Iter.Name)
	first := ir.Seq{Iter: s1, Lo: loop.Lo, Hi: point, Body: ir.Subst(loop.Body, ir.SubstEnv{loop.Iter.Tag: readIdx(s1)})}
	second := ir.Seq{Iter: s2, Lo: point, Hi: loop.Hi, Body: ir.Subst(loop.Body, ir.SubstEnv{loop.Iter.Tag: readIdx(s2)})}
	c.Root = root
	return cursor.Replace(c, []ir.Stmt{first, second})
}

// ProductLoop merges `for o in [0,No): for l in [0,Nl): body` (the inner
// loop must be o's sole statement) into a single loop over their product,
// rewriting o to p/Nl and l to p%Nl — the inverse of SplitLoop, grounded on
// DoProductLoop / DoMergeLoopRight.
func ProductLoop(root *ir.Program, alloc *ir.SymbolAllocator, c cursor.Cursor) (Result, error) {
	node, err := c.Node()
	if err != nil {
		return Result{}, err
	}
	outer, ok := node.(ir.Seq)
	if !ok {
		return Result{}, unsupported(node.Loc(), "product-loop target is not a loop")
	}
	if len(outer.Body) != 1 {
		return Result{}, unsupported(outer.Loc(), "product-loop requires the outer loop's sole statement to be a loop")
	}
	inner, ok := outer.Body[0].(ir.Seq)
	if !ok {
		return Result{}, unsupported(outer.Loc(), "product-loop requires the outer loop's sole statement to be a loop")
	}
	if n, ok := constOf(outer.Lo); !ok || n != 0 {
		return Result{}, unsupported(outer.Loc(), "product-loop requires both loops to start at 0")
	}
	if n, ok := constOf(inner.Lo); !ok || n != 0 {
		return Result{}, unsupported(inner.Loc(), "product-loop requires both loops to start at 0")
	}

	p := alloc.Fresh(outer.Iter.Name + "_" + inner.Iter.Name)
	env := ir.SubstEnv{
		outer.Iter.Tag: div(readIdx(p), inner.Hi),
		inner.Iter.Tag: mod(readIdx(p), inner.Hi),
	}
	newLoop := ir.Seq{Iter: p, Lo: constIdx(0), Hi: mul(outer.Hi, inner.Hi), Body: ir.Subst(inner.Body, env)}
	c.Root = root
	return cursor.Replace(c, []ir.Stmt{newLoop})
}

// Unroll replicates a constant-trip-count loop's body once per iteration,
// substituting the literal index and alpha-renaming each copy's binders so
// duplicated allocations/windows stay distinct, grounded on DoUnroll.
func Unroll(root *ir.Program, alloc *ir.SymbolAllocator, c cursor.Cursor) (Result, error) {
	node, err := c.Node()
	if err != nil {
		return Result{}, err
	}
	loop, ok := node.(ir.Seq)
	if !ok {
		return Result{}, unsupported(node.Loc(), "unroll target is not a loop")
	}
	lo, okLo := constOf(loop.Lo)
	hi, okHi := constOf(loop.Hi)
	if !okLo || !okHi {
		return Result{}, unsupported(loop.Loc(), "unroll requires constant loop bounds")
	}
	var out []ir.Stmt
	for k := lo; k < hi; k++ {
		copy := ir.Subst(loop.Body, ir.SubstEnv{loop.Iter.Tag: constIdx(k)})
		out = append(out, ir.AlphaRename(copy, alloc)...)
	}
	c.Root = root
	return cursor.Replace(c, out)
}

// FissionAfter splits a loop's body at idx into a pre-half and post-half,
// producing two loops over the same range that each run one half, grounded
// on DoFissionAfterSimple. The oracle rejects when an allocation from the
// pre-half escapes into the post-half.
func FissionAfter(root *ir.Program, alloc *ir.SymbolAllocator, orc oracle.Oracle, c cursor.Cursor, idx int) (Result, error) {
	node, err := c.Node()
	if err != nil {
		return Result{}, err
	}
	loop, ok := node.(ir.Seq)
	if !ok {
		return Result{}, unsupported(node.Loc(), "fission target is not a loop")
	}
	if idx < 0 || idx > len(loop.Body) {
		return Result{}, unsupported(loop.Loc(), "fission index out of range")
	}
	pre, post := loop.Body[:idx], loop.Body[idx:]
	if ok, err := orc.FissionLoop(loop, pre, post, false); !ok {
		return Result{}, err
	}
	s1, s2 := alloc.Fresh(loop.Iter.Name), alloc.Fresh(loop.Iter.Name)
	loopA := ir.Seq{Iter: s1, Lo: loop.Lo, Hi: loop.Hi, Body: ir.Subst(pre, ir.SubstEnv{loop.Iter.Tag: readIdx(s1)})}
	loopB := ir.Seq{Iter: s2, Lo: loop.Lo, Hi: loop.Hi, Body: ir.Subst(post, ir.SubstEnv{loop.Iter.Tag: readIdx(s2)})}
	c.Root = root
	return cursor.Replace(c, []ir.Stmt{loopA, loopB})
}

// FuseLoops merges two adjacent loops sharing the same bounds into one,
// grounded on DoFuseLoop. Safety reuses FissionLoop in reverse: the fused
// loop's pre/post split (exactly the original two bodies) must itself be a
// legal fission, since fusion only undoes what a fission could have done.
func FuseLoops(root *ir.Program, alloc *ir.SymbolAllocator, orc oracle.Oracle, c1, c2 cursor.Cursor) (Result, error) {
	n1, err := c1.Node()
	if err != nil {
		return Result{}, err
	}
	n2, err := c2.Node()
	if err != nil {
		return Result{}, err
	}
	l1, ok := n1.(ir.Seq)
	if !ok {
		return Result{}, unsupported(n1.Loc(), "fuse-loops target is not a loop")
	}
	l2, ok := n2.(ir.Seq)
	if !ok {
		return Result{}, unsupported(n2.Loc(), "fuse-loops target is not a loop")
	}
	if !ir.ExprEqual(l1.Lo, l2.Lo) || !ir.ExprEqual(l1.Hi, l2.Hi) {
		return Result{}, shapeMismatch(l2.Loc(), "loops being fused do not share bounds")
	}
	merged := alloc.Fresh(l1.Iter.Name)
	pre := ir.Subst(l1.Body, ir.SubstEnv{l1.Iter.Tag: readIdx(merged)})
	post := ir.Subst(l2.Body, ir.SubstEnv{l2.Iter.Tag: readIdx(merged)})
	fused := ir.Seq{Iter: merged, Lo: l1.Lo, Hi: l1.Hi, Body: append(append([]ir.Stmt{}, pre...), post...)}
	if ok, err := orc.FissionLoop(fused, pre, post, false); !ok {
		return Result{}, err
	}
	pair := cursor.Cursor{Root: root, Container: c1.Container, Lo: c1.Lo, Hi: c2.Hi}
	return cursor.Replace(pair, []ir.Stmt{fused})
}

// FuseIfs merges two adjacent If statements sharing the same condition into
// one, grounded on DoFuseIf.
func FuseIfs(root *ir.Program, c1, c2 cursor.Cursor) (Result, error) {
	n1, err := c1.Node()
	if err != nil {
		return Result{}, err
	}
	n2, err := c2.Node()
	if err != nil {
		return Result{}, err
	}
	i1, ok := n1.(ir.If)
	if !ok {
		return Result{}, unsupported(n1.Loc(), "fuse-ifs target is not an if")
	}
	i2, ok := n2.(ir.If)
	if !ok {
		return Result{}, unsupported(n2.Loc(), "fuse-ifs target is not an if")
	}
	if !ir.ExprEqual(i1.Cond, i2.Cond) {
		return Result{}, shapeMismatch(i2.Loc(), "ifs being fused do not share a condition")
	}
	merged := ir.If{
		Cond:   i1.Cond,
		Body:   append(append([]ir.Stmt{}, i1.Body...), i2.Body...),
		Orelse: append(append([]ir.Stmt{}, i1.Orelse...), i2.Orelse...),
	}
	pair := cursor.Cursor{Root: root, Container: c1.Container, Lo: c1.Lo, Hi: c2.Hi}
	return cursor.Replace(pair, []ir.Stmt{merged})
}

// LiftScope exchanges the nesting order of a loop and an if wrapping (or
// wrapped by) it one level, grounded on DoLiftScope's seq-in-if and
// if-in-seq cases. A loop that is the sole body of an if gets lifted above
// it (distributing the if into the loop's body is the *other* direction);
// here LiftScope always moves the inner scope outward.
func LiftScope(root *ir.Program, orc oracle.Oracle, c cursor.Cursor) (Result, error) {
	node, err := c.Node()
	if err != nil {
		return Result{}, err
	}
	switch outer := node.(type) {
	case ir.Seq:
		if len(outer.Body) != 1 {
			return Result{}, unsupported(outer.Loc(), "lift-scope requires a single nested statement")
		}
		inner, ok := outer.Body[0].(ir.If)
		if !ok {
			return Result{}, unsupported(outer.Loc(), "lift-scope requires an if nested in the loop")
		}
		if ir.FreeSymbols([]ir.Stmt{ir.Seq{Lo: inner.Cond, Hi: constIdx(0)}})[outer.Iter.Tag] {
			return Result{}, unsupported(inner.Loc(), "the condition depends on the loop's iterator")
		}
		lifted := ir.If{
			Cond:   inner.Cond,
			Body:   []ir.Stmt{ir.Seq{Iter: outer.Iter, Lo: outer.Lo, Hi: outer.Hi, Body: inner.Body}},
			Orelse: liftedOrelse(outer, inner),
		}
		c.Root = root
		return cursor.Replace(c, []ir.Stmt{lifted})
	case ir.If:
		if len(outer.Orelse) != 0 || len(outer.Body) != 1 {
			return Result{}, unsupported(outer.Loc(), "lift-scope requires a single nested statement and no else arm")
		}
		inner, ok := outer.Body[0].(ir.Seq)
		if !ok {
			return Result{}, unsupported(outer.Loc(), "lift-scope requires a loop nested in the if")
		}
		lifted := ir.Seq{Iter: inner.Iter, Lo: inner.Lo, Hi: inner.Hi, Body: []ir.Stmt{ir.If{Cond: outer.Cond, Body: inner.Body}}}
		c.Root = root
		return cursor.Replace(c, []ir.Stmt{lifted})
	default:
		return Result{}, unsupported(node.Loc(), "lift-scope target is neither a loop nor an if")
	}
}

func liftedOrelse(outer ir.Seq, inner ir.If) []ir.Stmt {
	if len(inner.Orelse) == 0 {
		return nil
	}
	return []ir.Stmt{ir.Seq{Iter: outer.Iter, Lo: outer.Lo, Hi: outer.Hi, Body: inner.Orelse}}
}

// RemoveLoop drops a loop entirely, valid when its body never reads the
// iterator and either runs exactly once or is idempotent (repeating an
// idempotent, iterator-free body any number of times is the same as
// running it once), grounded on DoRemoveLoop.
func RemoveLoop(root *ir.Program, orc oracle.Oracle, c cursor.Cursor) (Result, error) {
	node, err := c.Node()
	if err != nil {
		return Result{}, err
	}
	loop, ok := node.(ir.Seq)
	if !ok {
		return Result{}, unsupported(node.Loc(), "remove-loop target is not a loop")
	}
	if ir.FreeSymbols(loop.Body)[loop.Iter.Tag] {
		return Result{}, unsupported(loop.Loc(), "the loop's iterator is free in its body")
	}
	if lo, okLo := constOf(loop.Lo); okLo {
		if hi, okHi := constOf(loop.Hi); okHi && hi-lo == 1 {
			c.Root = root
			return cursor.Replace(c, loop.Body)
		}
	}
	if ok, err := orc.Idempotent(loop.Body); !ok {
		return Result{}, err
	}
	c.Root = root
	return cursor.Replace(c, loop.Body)
}

// AddLoop wraps a block in a new, trivially-satisfied loop, the inverse of
// RemoveLoop, grounded on DoAddLoop. Legal under the same condition:
// iterator unused by the block and either a unit trip count or an
// idempotent block.
func AddLoop(root *ir.Program, alloc *ir.SymbolAllocator, orc oracle.Oracle, c cursor.Cursor, name string, lo, hi ir.Expr) (Result, error) {
	block, err := c.Block()
	if err != nil {
		return Result{}, err
	}
	unit := false
	if lon, okLo := constOf(lo); okLo {
		if hin, okHi := constOf(hi); okHi && hin-lon == 1 {
			unit = true
		}
	}
	if !unit {
		if ok, err := orc.Idempotent(block); !ok {
			return Result{}, err
		}
	}
	iter := alloc.Fresh(name)
	build := func(inner []ir.Stmt) ir.Stmt { return ir.Seq{Iter: iter, Lo: lo, Hi: hi, Body: inner} }
	c.Root = root
	return cursor.Wrap(c, build, cursor.BodyField)
}

// BoundAndGuard rewrites `for i in [0, e): body`, whose bound e is not a
// compile-time constant, into `for i in [0, constHi): if i < e: body`,
// trading a dynamic bound for a static one further static directives (like
// Unroll) require. Grounded on DoBoundAndGuard. The oracle must prove
// e <= constHi, i.e. that no iteration of the old loop is missing from the
// new, wider one.
func BoundAndGuard(root *ir.Program, orc oracle.Oracle, c cursor.Cursor, constHi int64) (Result, error) {
	node, err := c.Node()
	if err != nil {
		return Result{}, err
	}
	loop, ok := node.(ir.Seq)
	if !ok {
		return Result{}, unsupported(node.Loc(), "bound-and-guard target is not a loop")
	}
	if n, okConst := constOf(loop.Hi); !okConst || n != constHi {
		pt := oracle.ProgramPoint{Root: root, Block: []ir.Stmt{loop}, Index: 0}
		slack := sub(constIdx(constHi+1), loop.Hi) // constHi+1 - Hi >= 1  <=>  Hi <= constHi
		if ok, err := orc.IsPositive(slack, pt); !ok {
			return Result{}, err
		}
	}
	guarded := []ir.Stmt{ir.If{Cond: lt(readIdx(loop.Iter), loop.Hi), Body: loop.Body}}
	newLoop := ir.Seq{Iter: loop.Iter, Lo: loop.Lo, Hi: constIdx(constHi), Body: guarded}
	c.Root = root
	return cursor.Replace(c, []ir.Stmt{newLoop})
}
