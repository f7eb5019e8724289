package rewrite

import (
	"github.com/exo-lang/loopsched/internal/cursor"
	"github.com/exo-lang/loopsched/internal/ir"
	"github.com/exo-lang/loopsched/internal/oracle"
)

// LiftAllocSimple hoists an Alloc out of the loop that immediately encloses
// it by one level, grounded on DoLiftAllocSimple. Legal when the
// allocation's shape does not depend on the loop's iterator and no
// explicit Free inside the loop would otherwise run once per iteration
// against a buffer now allocated only once.
func LiftAllocSimple(root *ir.Program, c cursor.Cursor) (Result, error) {
	node, err := c.Node()
	if err != nil {
		return Result{}, err
	}
	alloc, ok := node.(ir.Alloc)
	if !ok {
		return Result{}, unsupported(node.Loc(), "lift-alloc-simple target is not an allocation")
	}
	parent, err := c.Parent()
	if err != nil {
		return Result{}, err
	}
	parentNode, err := parent.Node()
	if err != nil {
		return Result{}, err
	}
	seq, ok := parentNode.(ir.Seq)
	if !ok {
		return Result{}, unsupported(alloc.Loc(), "lift-alloc-simple requires the allocation's parent to be a loop")
	}
	body, err := parent.Body()
	if err != nil {
		return Result{}, err
	}
	stmts, err := body.Block()
	if err != nil {
		return Result{}, err
	}
	for _, s := range stmts {
		if f, ok := s.(ir.Free); ok && f.Name.Equal(alloc.Name) {
			return Result{}, unsupported(alloc.Loc(), "lift-alloc-simple does not support an explicit matching free inside the loop")
		}
	}
	if ir.FreeSymbols([]ir.Stmt{ir.Alloc{Typ: alloc.Typ}})[seq.Iter.Tag] {
		return Result{}, unsupported(alloc.Loc(), "allocation's shape depends on the enclosing loop's iterator")
	}
	c.Root = root
	return cursor.Move(c, parent.GapBefore())
}

// LiftAlloc moves an allocation outward past levels enclosing loops, unlike
// LiftAllocSimple extending the buffer's shape by each traversed loop's
// extent rather than requiring shape-independence, grounded on DoLiftAlloc
// (original_source/src/exo/LoopIR_scheduling.py). mode selects whether each
// new dimension is prepended ("row", the default) or appended ("col"); size,
// if non-nil, overrides the extent with a compile-time bound in place of the
// loop's own upper bound (spec.md §4.3 "size? overrides the extent").
func LiftAlloc(root *ir.Program, c cursor.Cursor, levels int, mode string, size ir.Expr) (Result, error) {
	forward := cursor.Forwarder(func(cu cursor.Cursor) (cursor.Cursor, error) { return cu, nil })
	current := root
	cur := c
	for i := 0; i < levels; i++ {
		res, err := liftAllocOneLevel(current, cur, mode, size)
		if err != nil {
			return Result{}, err
		}
		current = res.Root
		forward = cursor.Compose(forward, res.Forward)
		// The lifted Alloc now sits at the loop's old index, just before it.
		next, err := cur.Parent()
		if err != nil {
			return Result{}, err
		}
		next.Root = current
		cur = next
	}
	return Result{Root: current, Forward: forward}, nil
}

// liftAllocOneLevel hoists alloc past its immediately enclosing loop,
// extending its shape by that loop's extent and rewriting every access to
// it in the remainder of the loop body to carry the loop's iterator as an
// extra index. size, if non-nil, replaces the loop's own extent in the new
// dimension (e.g. a padded compile-time bound).
func liftAllocOneLevel(root *ir.Program, c cursor.Cursor, mode string, size ir.Expr) (Result, error) {
	node, err := c.Node()
	if err != nil {
		return Result{}, err
	}
	alloc, ok := node.(ir.Alloc)
	if !ok {
		return Result{}, unsupported(node.Loc(), "lift-alloc target is not an allocation")
	}
	parent, err := c.Parent()
	if err != nil {
		return Result{}, err
	}
	parentNode, err := parent.Node()
	if err != nil {
		return Result{}, err
	}
	seq, ok := parentNode.(ir.Seq)
	if !ok {
		return Result{}, unsupported(alloc.Loc(), "lift-alloc requires the allocation's parent to be a loop")
	}
	bodyCur, err := parent.Body()
	if err != nil {
		return Result{}, err
	}
	stmts, err := bodyCur.Block()
	if err != nil {
		return Result{}, err
	}
	for _, s := range stmts {
		if f, ok := s.(ir.Free); ok && f.Name.Equal(alloc.Name) {
			return Result{}, unsupported(alloc.Loc(), "lift-alloc does not support an explicit matching free inside the loop")
		}
	}

	extent := seq.Hi
	if size != nil {
		extent = size
	}
	iterRead := readIdx(seq.Iter)
	var reindex func([]ir.Expr) []ir.Expr
	if mode == "col" {
		reindex = func(idx []ir.Expr) []ir.Expr {
			return append(append([]ir.Expr{}, idx...), iterRead)
		}
	} else {
		reindex = func(idx []ir.Expr) []ir.Expr {
			return append([]ir.Expr{iterRead}, idx...)
		}
	}
	after := append([]ir.Stmt{}, stmts[c.Hi:]...)
	rewritten := rewriteIdxAtDim(after, alloc.Name, -1, reindex)

	shape, elem := tensorShapeOf(alloc.Typ)
	var newShape []ir.Expr
	if mode == "col" {
		newShape = append(append([]ir.Expr{}, shape...), extent)
	} else {
		newShape = append([]ir.Expr{extent}, shape...)
	}
	newAlloc := alloc
	newAlloc.Typ = ir.Tensor{Shape: newShape, Element: elem}

	return compose(root,
		func(r *ir.Program) (Result, error) {
			cc := c
			cc.Root = r
			return cursor.Replace(cc.Slice(cc.Hi, len(stmts)), rewritten)
		},
		func(r *ir.Program) (Result, error) {
			cc := c
			cc.Root = r
			return cursor.Replace(cc, []ir.Stmt{newAlloc})
		},
		func(r *ir.Program) (Result, error) {
			cc := c
			cc.Root = r
			pp, err := cc.Parent()
			if err != nil {
				return Result{}, err
			}
			return cursor.Move(cc, pp.GapBefore())
		},
	)
}

// tensorShapeOf returns an Alloc type's dimensions and scalar element,
// treating a bare Scalar as the zero-dimensional case lift-alloc extends
// from.
func tensorShapeOf(t ir.Type) ([]ir.Expr, ir.Scalar) {
	if tensor, ok := t.(ir.Tensor); ok {
		return tensor.Shape, tensor.Element
	}
	return nil, ir.ElementType(t)
}

// ExpandDim prepends a new leading dimension of extent newExtent to an
// Alloc's tensor, rewriting every access to that buffer within the rest of
// its declaring block to index the new dimension with idx, grounded on
// DoExpandDim.
func ExpandDim(root *ir.Program, c cursor.Cursor, newExtent, idx ir.Expr) (Result, error) {
	node, err := c.Node()
	if err != nil {
		return Result{}, err
	}
	alloc, ok := node.(ir.Alloc)
	if !ok {
		return Result{}, unsupported(node.Loc(), "expand-dim target is not an allocation")
	}
	tensor, ok := alloc.Typ.(ir.Tensor)
	if !ok {
		tensor = ir.Tensor{Element: ir.ElementType(alloc.Typ)}
	}
	newAlloc := alloc
	newAlloc.Typ = ir.Tensor{Shape: append([]ir.Expr{newExtent}, tensor.Shape...), Element: tensor.Element}

	siblings, err := siblingsOf(c)
	if err != nil {
		return Result{}, err
	}
	after := append([]ir.Stmt{}, siblings[c.Hi:]...)
	rewritten := prependIndex(after, alloc.Name, idx)

	full := append([]ir.Stmt{newAlloc}, rewritten...)
	target := cursor.Cursor{Root: root, Container: c.Container, Lo: c.Lo, Hi: c.Lo + 1 + len(after)}
	return cursor.Replace(target, full)
}

// siblingsOf returns the whole block c's container addresses, whether that
// container is a nested If/Seq body or the procedure's top-level body, the
// common first step of every directive that must rewrite the statements
// following a given one within the same scope.
func siblingsOf(c cursor.Cursor) ([]ir.Stmt, error) {
	if len(c.Container) == 0 {
		return cursor.Root(c.Root).Block()
	}
	parent, err := c.Parent()
	if err != nil {
		return nil, err
	}
	body, err := parent.Body()
	if err != nil {
		return nil, err
	}
	return body.Block()
}

// prependIndex rewrites every Assign/Reduce/Read/WindowExpr targeting buf
// within body to carry pre as its new leading index, the rewrite ExpandDim
// needs.
func prependIndex(body []ir.Stmt, buf ir.Symbol, pre ir.Expr) []ir.Stmt {
	out := make([]ir.Stmt, len(body))
	for i, s := range body {
		out[i] = prependIndexStmt(s, buf, pre)
	}
	return out
}

func prependIndexStmt(s ir.Stmt, buf ir.Symbol, pre ir.Expr) ir.Stmt {
	switch v := s.(type) {
	case ir.Assign:
		if v.Name.Equal(buf) {
			v.Idx = append([]ir.Expr{pre}, v.Idx...)
		}
		v.Rhs = prependIndexExpr(v.Rhs, buf, pre)
		return v
	case ir.Reduce:
		if v.Name.Equal(buf) {
			v.Idx = append([]ir.Expr{pre}, v.Idx...)
		}
		v.Rhs = prependIndexExpr(v.Rhs, buf, pre)
		return v
	case ir.WriteConfig:
		v.Value = prependIndexExpr(v.Value, buf, pre)
		return v
	case ir.WindowStmt:
		if v.SrcBuf.Equal(buf) {
			v.Access = append([]ir.Access{{Point: pre}}, v.Access...)
		}
		return v
	case ir.If:
		v.Cond = prependIndexExpr(v.Cond, buf, pre)
		v.Body = prependIndex(v.Body, buf, pre)
		v.Orelse = prependIndex(v.Orelse, buf, pre)
		return v
	case ir.Seq:
		v.Lo = prependIndexExpr(v.Lo, buf, pre)
		v.Hi = prependIndexExpr(v.Hi, buf, pre)
		v.Body = prependIndex(v.Body, buf, pre)
		return v
	case ir.Call:
		for i, a := range v.Args {
			v.Args[i] = prependIndexExpr(a, buf, pre)
		}
		return v
	case ir.Instr:
		v.Body = prependIndexStmt(v.Body, buf, pre)
		return v
	default:
		return s
	}
}

func prependIndexExpr(e ir.Expr, buf ir.Symbol, pre ir.Expr) ir.Expr {
	switch v := e.(type) {
	case ir.Read:
		if v.Sym.Equal(buf) {
			v.Idx = append([]ir.Expr{pre}, v.Idx...)
			return v
		}
		for i, a := range v.Idx {
			v.Idx[i] = prependIndexExpr(a, buf, pre)
		}
		return v
	case ir.BinOp:
		v.Lhs = prependIndexExpr(v.Lhs, buf, pre)
		v.Rhs = prependIndexExpr(v.Rhs, buf, pre)
		return v
	case ir.USub:
		v.Arg = prependIndexExpr(v.Arg, buf, pre)
		return v
	case ir.Select:
		v.Cond = prependIndexExpr(v.Cond, buf, pre)
		v.Body = prependIndexExpr(v.Body, buf, pre)
		return v
	case ir.WindowExpr:
		if v.Sym.Equal(buf) {
			v.Access = append([]ir.Access{{Point: pre}}, v.Access...)
		}
		return v
	default:
		return e
	}
}

// DivideDim splits dimension dim of an Alloc's tensor, of extent k*factor,
// into two adjacent dimensions of extent k and factor, rewriting every
// access at that dimension e into the pair e/factor, e%factor — grounded on
// DoDivideDim.
func DivideDim(root *ir.Program, c cursor.Cursor, dim int, factor int64) (Result, error) {
	node, err := c.Node()
	if err != nil {
		return Result{}, err
	}
	alloc, ok := node.(ir.Alloc)
	if !ok {
		return Result{}, unsupported(node.Loc(), "divide-dim target is not an allocation")
	}
	tensor, ok := alloc.Typ.(ir.Tensor)
	if !ok || dim < 0 || dim >= len(tensor.Shape) {
		return Result{}, unsupported(alloc.Loc(), "divide-dim dimension out of range")
	}
	n, constExtent := constOf(tensor.Shape[dim])
	if !constExtent || n%factor != 0 {
		return Result{}, unsupported(alloc.Loc(), "divide-dim requires a constant extent divisible by the factor")
	}
	newShape := append([]ir.Expr{}, tensor.Shape[:dim]...)
	newShape = append(newShape, constIdx(n/factor), constIdx(factor))
	newShape = append(newShape, tensor.Shape[dim+1:]...)
	newAlloc := alloc
	newAlloc.Typ = ir.Tensor{Shape: newShape, Element: tensor.Element}

	siblings, err := siblingsOf(c)
	if err != nil {
		return Result{}, err
	}
	after := append([]ir.Stmt{}, siblings[c.Hi:]...)
	rewritten := splitIdxAtDim(after, alloc.Name, dim, factor)

	full := append([]ir.Stmt{newAlloc}, rewritten...)
	target := cursor.Cursor{Root: root, Container: c.Container, Lo: c.Lo, Hi: c.Lo + 1 + len(after)}
	return cursor.Replace(target, full)
}

// splitIdxAtDim rewrites every access to buf, replacing the index at dim
// with two indices e/factor, e%factor, used by the (index-rewriting half
// of) DivideDim on the statements that use the reshaped buffer. Exposed
// separately from the Alloc-shape rewrite because callers may choose to
// apply the allocation reshape and the index rewrite as two edits of the
// same directive.
func splitIdxAtDim(body []ir.Stmt, buf ir.Symbol, dim int, factor int64) []ir.Stmt {
	return rewriteIdxAtDim(body, buf, dim, func(idx []ir.Expr) []ir.Expr {
		out := append([]ir.Expr{}, idx[:dim]...)
		out = append(out, div(idx[dim], constIdx(factor)), mod(idx[dim], constIdx(factor)))
		out = append(out, idx[dim+1:]...)
		return out
	})
}

// MultiplyDim merges two adjacent dimensions dim, dim+1 of an Alloc's
// tensor back into one of their product extent, the inverse of DivideDim,
// grounded on DoMergeDim.
func MultiplyDim(root *ir.Program, c cursor.Cursor, dim int) (Result, error) {
	node, err := c.Node()
	if err != nil {
		return Result{}, err
	}
	alloc, ok := node.(ir.Alloc)
	if !ok {
		return Result{}, unsupported(node.Loc(), "multiply-dim target is not an allocation")
	}
	tensor, ok := alloc.Typ.(ir.Tensor)
	if !ok || dim < 0 || dim+1 >= len(tensor.Shape) {
		return Result{}, unsupported(alloc.Loc(), "multiply-dim dimension out of range")
	}
	outer, innerOK1 := constOf(tensor.Shape[dim])
	inner, innerOK2 := constOf(tensor.Shape[dim+1])
	if !innerOK1 || !innerOK2 {
		return Result{}, unsupported(alloc.Loc(), "multiply-dim requires constant extents")
	}
	newShape := append([]ir.Expr{}, tensor.Shape[:dim]...)
	newShape = append(newShape, constIdx(outer*inner))
	newShape = append(newShape, tensor.Shape[dim+2:]...)
	newAlloc := alloc
	newAlloc.Typ = ir.Tensor{Shape: newShape, Element: tensor.Element}

	siblings, err := siblingsOf(c)
	if err != nil {
		return Result{}, err
	}
	after := append([]ir.Stmt{}, siblings[c.Hi:]...)
	rewritten := mergeIdxAtDim(after, alloc.Name, dim, inner)

	full := append([]ir.Stmt{newAlloc}, rewritten...)
	target := cursor.Cursor{Root: root, Container: c.Container, Lo: c.Lo, Hi: c.Lo + 1 + len(after)}
	return cursor.Replace(target, full)
}

// mergeIdxAtDim rewrites every access to buf, replacing the adjacent
// indices at dim, dim+1 with a single index e1*innerExtent + e2 — the
// index-rewriting half of MultiplyDim.
func mergeIdxAtDim(body []ir.Stmt, buf ir.Symbol, dim int, innerExtent int64) []ir.Stmt {
	return rewriteIdxAtDim(body, buf, dim, func(idx []ir.Expr) []ir.Expr {
		out := append([]ir.Expr{}, idx[:dim]...)
		out = append(out, add(mul(idx[dim], constIdx(innerExtent)), idx[dim+1]))
		out = append(out, idx[dim+2:]...)
		return out
	})
}

// RearrangeDim permutes an Alloc's dimensions according to perm (a
// permutation of 0..rank-1) and rewrites every access to it the same way,
// grounded on DoRearrangeDim.
func RearrangeDim(root *ir.Program, c cursor.Cursor, perm []int) (Result, error) {
	node, err := c.Node()
	if err != nil {
		return Result{}, err
	}
	alloc, ok := node.(ir.Alloc)
	if !ok {
		return Result{}, unsupported(node.Loc(), "rearrange-dim target is not an allocation")
	}
	tensor, ok := alloc.Typ.(ir.Tensor)
	if !ok || len(perm) != len(tensor.Shape) {
		return Result{}, unsupported(alloc.Loc(), "rearrange-dim permutation does not match the allocation's rank")
	}
	newShape := make([]ir.Expr, len(perm))
	for i, p := range perm {
		newShape[i] = tensor.Shape[p]
	}
	newAlloc := alloc
	newAlloc.Typ = ir.Tensor{Shape: newShape, Element: tensor.Element}

	siblings, err := siblingsOf(c)
	if err != nil {
		return Result{}, err
	}
	after := append([]ir.Stmt{}, siblings[c.Hi:]...)
	rewritten := permuteIdx(after, alloc.Name, perm)

	full := append([]ir.Stmt{newAlloc}, rewritten...)
	target := cursor.Cursor{Root: root, Container: c.Container, Lo: c.Lo, Hi: c.Lo + 1 + len(after)}
	return cursor.Replace(target, full)
}

func permuteIdx(body []ir.Stmt, buf ir.Symbol, perm []int) []ir.Stmt {
	return rewriteIdxAtDim(body, buf, -1, func(idx []ir.Expr) []ir.Expr {
		if len(idx) != len(perm) {
			return idx
		}
		out := make([]ir.Expr, len(idx))
		for i, p := range perm {
			out[i] = idx[p]
		}
		return out
	})
}

// rewriteIdxAtDim applies reindex to every index list of every
// Assign/Reduce/Read targeting buf, throughout body. dim is not used by the
// traversal; reindex alone decides which indices change.
func rewriteIdxAtDim(body []ir.Stmt, buf ir.Symbol, dim int, reindex func([]ir.Expr) []ir.Expr) []ir.Stmt {
	out := make([]ir.Stmt, len(body))
	for i, s := range body {
		out[i] = rewriteIdxStmt(s, buf, reindex)
	}
	return out
}

func rewriteIdxStmt(s ir.Stmt, buf ir.Symbol, reindex func([]ir.Expr) []ir.Expr) ir.Stmt {
	switch v := s.(type) {
	case ir.Assign:
		if v.Name.Equal(buf) {
			v.Idx = reindex(v.Idx)
		}
		v.Rhs = rewriteIdxExpr(v.Rhs, buf, reindex)
		return v
	case ir.Reduce:
		if v.Name.Equal(buf) {
			v.Idx = reindex(v.Idx)
		}
		v.Rhs = rewriteIdxExpr(v.Rhs, buf, reindex)
		return v
	case ir.WriteConfig:
		v.Value = rewriteIdxExpr(v.Value, buf, reindex)
		return v
	case ir.If:
		v.Cond = rewriteIdxExpr(v.Cond, buf, reindex)
		v.Body = rewriteIdxAtDim(v.Body, buf, -1, reindex)
		v.Orelse = rewriteIdxAtDim(v.Orelse, buf, -1, reindex)
		return v
	case ir.Seq:
		v.Body = rewriteIdxAtDim(v.Body, buf, -1, reindex)
		return v
	case ir.Instr:
		v.Body = rewriteIdxStmt(v.Body, buf, reindex)
		return v
	default:
		return s
	}
}

func rewriteIdxExpr(e ir.Expr, buf ir.Symbol, reindex func([]ir.Expr) []ir.Expr) ir.Expr {
	switch v := e.(type) {
	case ir.Read:
		if v.Sym.Equal(buf) {
			v.Idx = reindex(v.Idx)
			return v
		}
		for i, a := range v.Idx {
			v.Idx[i] = rewriteIdxExpr(a, buf, reindex)
		}
		return v
	case ir.BinOp:
		v.Lhs = rewriteIdxExpr(v.Lhs, buf, reindex)
		v.Rhs = rewriteIdxExpr(v.Rhs, buf, reindex)
		return v
	case ir.USub:
		v.Arg = rewriteIdxExpr(v.Arg, buf, reindex)
		return v
	case ir.Select:
		v.Cond = rewriteIdxExpr(v.Cond, buf, reindex)
		v.Body = rewriteIdxExpr(v.Body, buf, reindex)
		return v
	default:
		return e
	}
}

// UnrollBuffer replicates a buffer's constant-extent dimension dim into
// separate symbols, one per iteration of the loop that indexes it — the
// buffer-side counterpart of Unroll, grounded on DoUnrollBuffer. Given an
// Alloc whose shape's dimension dim is the constant extent n, it produces n
// freshly-named scalar-reduced allocations and rewrites every access whose
// index at dim is the literal k into a read of the k'th copy.
func UnrollBuffer(root *ir.Program, alloc *ir.SymbolAllocator, c cursor.Cursor, dim int) (Result, error) {
	node, err := c.Node()
	if err != nil {
		return Result{}, err
	}
	a, ok := node.(ir.Alloc)
	if !ok {
		return Result{}, unsupported(node.Loc(), "unroll-buffer target is not an allocation")
	}
	tensor, ok := a.Typ.(ir.Tensor)
	if !ok || dim < 0 || dim >= len(tensor.Shape) {
		return Result{}, unsupported(a.Loc(), "unroll-buffer dimension out of range")
	}
	n, constExtent := constOf(tensor.Shape[dim])
	if !constExtent {
		return Result{}, unsupported(a.Loc(), "unroll-buffer requires a constant extent at the chosen dimension")
	}
	remaining := append(append([]ir.Expr{}, tensor.Shape[:dim]...), tensor.Shape[dim+1:]...)
	var allocs []ir.Stmt
	copies := make([]ir.Symbol, n)
	for k := int64(0); k < n; k++ {
		sym := alloc.Fresh(a.Name.Name)
		copies[k] = sym
		var typ ir.Type = ir.Tensor{Shape: remaining, Element: tensor.Element}
		if len(remaining) == 0 {
			typ = tensor.Element
		}
		allocs = append(allocs, ir.Alloc{Name: sym, Typ: typ, Mem: a.Mem})
	}

	siblings, err := siblingsOf(c)
	if err != nil {
		return Result{}, err
	}
	after := append([]ir.Stmt{}, siblings[c.Hi:]...)
	rewritten, err := unrollAccess(after, a.Name, dim, copies)
	if err != nil {
		return Result{}, err
	}

	full := append(allocs, rewritten...)
	target := cursor.Cursor{Root: root, Container: c.Container, Lo: c.Lo, Hi: c.Lo + 1 + len(after)}
	return cursor.Replace(target, full)
}

// unrollAccess rewrites every access to buf within body, requiring a
// literal index at dim so it can redirect the access to the matching copy
// symbol with that dimension dropped entirely — the downstream half of
// UnrollBuffer, grounded on DoUnrollBuffer's requirement that every use of
// an unrolled dimension already has a constant index there (typically
// arranged by first unrolling the loop that walks it).
func unrollAccess(body []ir.Stmt, buf ir.Symbol, dim int, copies []ir.Symbol) ([]ir.Stmt, error) {
	out := make([]ir.Stmt, len(body))
	for i, s := range body {
		r, err := unrollStmt(s, buf, dim, copies)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}

func unrollIdx(idx []ir.Expr, buf ir.Symbol, dim int, copies []ir.Symbol) (ir.Symbol, []ir.Expr, error) {
	k, ok := constOf(idx[dim])
	if !ok || k < 0 || int(k) >= len(copies) {
		return ir.Symbol{}, nil, unsupported(ir.SrcInfo{}, "unroll-buffer requires a literal index at the unrolled dimension for every access to "+buf.Name)
	}
	rest := append(append([]ir.Expr{}, idx[:dim]...), idx[dim+1:]...)
	return copies[k], rest, nil
}

func unrollStmt(s ir.Stmt, buf ir.Symbol, dim int, copies []ir.Symbol) (ir.Stmt, error) {
	switch v := s.(type) {
	case ir.Assign:
		if v.Name.Equal(buf) {
			sym, rest, err := unrollIdx(v.Idx, buf, dim, copies)
			if err != nil {
				return nil, err
			}
			v.Name, v.Idx = sym, rest
		}
		rhs, err := unrollExpr(v.Rhs, buf, dim, copies)
		if err != nil {
			return nil, err
		}
		v.Rhs = rhs
		return v, nil
	case ir.Reduce:
		if v.Name.Equal(buf) {
			sym, rest, err := unrollIdx(v.Idx, buf, dim, copies)
			if err != nil {
				return nil, err
			}
			v.Name, v.Idx = sym, rest
		}
		rhs, err := unrollExpr(v.Rhs, buf, dim, copies)
		if err != nil {
			return nil, err
		}
		v.Rhs = rhs
		return v, nil
	case ir.WriteConfig:
		val, err := unrollExpr(v.Value, buf, dim, copies)
		if err != nil {
			return nil, err
		}
		v.Value = val
		return v, nil
	case ir.If:
		cond, err := unrollExpr(v.Cond, buf, dim, copies)
		if err != nil {
			return nil, err
		}
		body, err := unrollAccess(v.Body, buf, dim, copies)
		if err != nil {
			return nil, err
		}
		orelse, err := unrollAccess(v.Orelse, buf, dim, copies)
		if err != nil {
			return nil, err
		}
		v.Cond, v.Body, v.Orelse = cond, body, orelse
		return v, nil
	case ir.Seq:
		body, err := unrollAccess(v.Body, buf, dim, copies)
		if err != nil {
			return nil, err
		}
		v.Body = body
		return v, nil
	case ir.Instr:
		inner, err := unrollStmt(v.Body, buf, dim, copies)
		if err != nil {
			return nil, err
		}
		v.Body = inner
		return v, nil
	default:
		return s, nil
	}
}

func unrollExpr(e ir.Expr, buf ir.Symbol, dim int, copies []ir.Symbol) (ir.Expr, error) {
	switch v := e.(type) {
	case ir.Read:
		if v.Sym.Equal(buf) {
			sym, rest, err := unrollIdx(v.Idx, buf, dim, copies)
			if err != nil {
				return nil, err
			}
			v.Sym, v.Idx = sym, rest
			return v, nil
		}
		for i, a := range v.Idx {
			r, err := unrollExpr(a, buf, dim, copies)
			if err != nil {
				return nil, err
			}
			v.Idx[i] = r
		}
		return v, nil
	case ir.BinOp:
		lhs, err := unrollExpr(v.Lhs, buf, dim, copies)
		if err != nil {
			return nil, err
		}
		rhs, err := unrollExpr(v.Rhs, buf, dim, copies)
		if err != nil {
			return nil, err
		}
		v.Lhs, v.Rhs = lhs, rhs
		return v, nil
	case ir.USub:
		arg, err := unrollExpr(v.Arg, buf, dim, copies)
		if err != nil {
			return nil, err
		}
		v.Arg = arg
		return v, nil
	case ir.Select:
		cond, err := unrollExpr(v.Cond, buf, dim, copies)
		if err != nil {
			return nil, err
		}
		body, err := unrollExpr(v.Body, buf, dim, copies)
		if err != nil {
			return nil, err
		}
		v.Cond, v.Body = cond, body
		return v, nil
	default:
		return e, nil
	}
}

// StageMemory copies the window of buf that access describes (one entry per
// original dimension, either an Interval or a Point, spec.md §4.3) into a
// freshly-allocated staging buffer at mem before the block c addresses runs
// and back out after, grounded on DoStageMem
// (original_source/src/exo/LoopIR_scheduling.py). A Point dimension
// collapses out of the staged buffer's shape entirely; an Interval keeps a
// dimension of extent hi-lo, offset by lo. When accumZero is set the load
// prologue is replaced by a zero-fill (requiring the oracle's
// BufferReduceOnly) and the store epilogue reduces into buf instead of
// assigning; with accumZero, a block that assigns buf or reads it outside
// a reduction is rejected (spec.md §9 Open Questions — callers fuse
// manually).
func StageMemory(root *ir.Program, allocr *ir.SymbolAllocator, orc oracle.Oracle, c cursor.Cursor, buf ir.Symbol, access []ir.Access, newName string, mem ir.MemSpace, accumZero bool) (Result, error) {
	block, err := c.Block()
	if err != nil {
		return Result{}, err
	}
	rank := len(access)
	read, written, err := orc.BufferRW(block, buf, rank)
	if err != nil {
		return Result{}, err
	}
	if accumZero {
		// BufferReduceOnly already rejects a block that assigns buf outright,
		// or reads it anywhere but inside a reduction; a Reduce's own
		// read-of-the-old-value is exactly what accum-zero replaces with a
		// zero-fill, so it must not trip a read/written check here too.
		if ok, err := orc.BufferReduceOnly(block, buf, rank); !ok {
			return Result{}, err
		}
	}

	staged := allocr.Fresh(newName)
	var shape []ir.Expr
	var loopVars []ir.Symbol
	for _, a := range access {
		if a.IsInterval {
			shape = append(shape, sub(a.Hi, a.Lo))
			loopVars = append(loopVars, allocr.Fresh(buf.Name+"_i"))
		}
	}
	elem := ir.Scalar{Kind: ir.ScalarReal}
	var stagedTyp ir.Type = elem
	if len(shape) > 0 {
		stagedTyp = ir.Tensor{Shape: shape, Element: elem}
	}
	stagedAlloc := ir.Alloc{Name: staged, Typ: stagedTyp, Mem: mem}

	stagedIdx := make([]ir.Expr, len(loopVars))
	for i, v := range loopVars {
		stagedIdx[i] = readIdx(v)
	}
	bufIdx := resolveAccessIdx(stagedIdx, access)

	wrap := func(inner ir.Stmt) []ir.Stmt {
		body := []ir.Stmt{inner}
		for i := len(loopVars) - 1; i >= 0; i-- {
			body = []ir.Stmt{ir.Seq{Iter: loopVars[i], Lo: constIdx(0), Hi: shape[i], Body: body}}
		}
		return body
	}

	var prologue []ir.Stmt
	switch {
	case accumZero:
		prologue = wrap(ir.Assign{Name: staged, Idx: stagedIdx, Rhs: ir.Const{Value: 0.0, Typ: elem}})
	case read:
		prologue = wrap(ir.Assign{Name: staged, Idx: stagedIdx, Rhs: ir.Read{Sym: buf, Idx: bufIdx, Typ: elem}})
	}

	body := stageRenameBlock(block, buf, staged, access)

	var epilogue []ir.Stmt
	switch {
	case accumZero && written:
		epilogue = wrap(ir.Reduce{Name: buf, Idx: bufIdx, Rhs: ir.Read{Sym: staged, Idx: stagedIdx, Typ: elem}})
	case written:
		epilogue = wrap(ir.Assign{Name: buf, Idx: bufIdx, Rhs: ir.Read{Sym: staged, Idx: stagedIdx, Typ: elem}})
	}

	full := append([]ir.Stmt{stagedAlloc}, prologue...)
	full = append(full, body...)
	full = append(full, epilogue...)
	full = append(full, ir.Free{Name: staged})
	c.Root = root
	return cursor.Replace(c, full)
}

// stageRenameBlock renames every access to from within body into to,
// reducing each full-rank index through access the way StageMemory's
// staged buffer expects: an Interval dimension is kept and offset by its
// lo, a Point dimension is dropped. The inverse of resolveAccessIdx.
func stageRenameBlock(body []ir.Stmt, from, to ir.Symbol, access []ir.Access) []ir.Stmt {
	out := make([]ir.Stmt, len(body))
	for i, s := range body {
		out[i] = stageRenameStmt(s, from, to, access)
	}
	return out
}

func stageRenameStmt(s ir.Stmt, from, to ir.Symbol, access []ir.Access) ir.Stmt {
	switch v := s.(type) {
	case ir.Assign:
		if v.Name.Equal(from) {
			v.Name = to
			v.Idx = reduceToWindowIdx(v.Idx, access)
		}
		v.Rhs = stageRenameExpr(v.Rhs, from, to, access)
		return v
	case ir.Reduce:
		if v.Name.Equal(from) {
			v.Name = to
			v.Idx = reduceToWindowIdx(v.Idx, access)
		}
		v.Rhs = stageRenameExpr(v.Rhs, from, to, access)
		return v
	case ir.WriteConfig:
		v.Value = stageRenameExpr(v.Value, from, to, access)
		return v
	case ir.If:
		v.Cond = stageRenameExpr(v.Cond, from, to, access)
		v.Body = stageRenameBlock(v.Body, from, to, access)
		v.Orelse = stageRenameBlock(v.Orelse, from, to, access)
		return v
	case ir.Seq:
		v.Body = stageRenameBlock(v.Body, from, to, access)
		return v
	case ir.Instr:
		v.Body = stageRenameStmt(v.Body, from, to, access)
		return v
	default:
		return s
	}
}

func stageRenameExpr(e ir.Expr, from, to ir.Symbol, access []ir.Access) ir.Expr {
	switch v := e.(type) {
	case ir.Read:
		if v.Sym.Equal(from) {
			return ir.Read{Sym: to, Idx: reduceToWindowIdx(v.Idx, access), Typ: v.Typ}
		}
		for i, a := range v.Idx {
			v.Idx[i] = stageRenameExpr(a, from, to, access)
		}
		return v
	case ir.BinOp:
		v.Lhs = stageRenameExpr(v.Lhs, from, to, access)
		v.Rhs = stageRenameExpr(v.Rhs, from, to, access)
		return v
	case ir.USub:
		v.Arg = stageRenameExpr(v.Arg, from, to, access)
		return v
	case ir.Select:
		v.Cond = stageRenameExpr(v.Cond, from, to, access)
		v.Body = stageRenameExpr(v.Body, from, to, access)
		return v
	default:
		return e
	}
}

// reduceToWindowIdx maps a full-rank index on the original buffer to the
// reduced-rank index on the staged buffer: an Interval dimension keeps its
// position offset by its lower bound, a Point dimension is dropped.
func reduceToWindowIdx(idx []ir.Expr, access []ir.Access) []ir.Expr {
	out := make([]ir.Expr, 0, len(access))
	for i, a := range access {
		if a.IsInterval {
			out = append(out, sub(idx[i], a.Lo))
		}
	}
	return out
}

// BoundAlloc shrinks an Alloc's declared shape to newShape, valid only when
// the oracle proves every subsequent access stays within the tighter
// bound, grounded on DoBoundAlloc.
func BoundAlloc(root *ir.Program, orc oracle.Oracle, c cursor.Cursor, newShape []ir.Expr, following []ir.Stmt) (Result, error) {
	node, err := c.Node()
	if err != nil {
		return Result{}, err
	}
	alloc, ok := node.(ir.Alloc)
	if !ok {
		return Result{}, unsupported(node.Loc(), "bound-alloc target is not an allocation")
	}
	tensor, ok := alloc.Typ.(ir.Tensor)
	if !ok || len(newShape) != len(tensor.Shape) {
		return Result{}, unsupported(alloc.Loc(), "bound-alloc shape rank mismatch")
	}
	shrunk := alloc
	shrunk.Typ = ir.Tensor{Shape: newShape, Element: tensor.Element}
	if ok, err := orc.Bounds(shrunk, following); !ok {
		return Result{}, err
	}
	c.Root = root
	return cursor.Replace(c, []ir.Stmt{shrunk})
}

// DataReuse retargets every access to src within the block c addresses onto
// dst (src's own Alloc statement is left in place), valid when the oracle proves
// dst carries no value still needed by the remainder of its scope (spec.md's
// buffer-aliasing discipline), grounded on DoDataReuse.
func DataReuse(root *ir.Program, orc oracle.Oracle, c cursor.Cursor, src, dst ir.Symbol, dstRank int) (Result, error) {
	block, err := c.Block()
	if err != nil {
		return Result{}, err
	}
	siblings, err := siblingsOf(c)
	if err != nil {
		return Result{}, err
	}
	after := siblings[c.Hi:]
	if ok, err := orc.DeadAfter(after, dst, dstRank); !ok {
		return Result{}, err
	}
	rewritten := ir.RenameBuf(block, src, dst)
	c.Root = root
	return cursor.Replace(c, rewritten)
}

// InlineWindow replaces every read of a WindowStmt-bound symbol within the
// rest of its block with a direct, offset access into the window's source
// buffer, then drops the WindowStmt — grounded on DoInlineWindow, the
// inverse of introducing a window view at all.
func InlineWindow(root *ir.Program, c cursor.Cursor) (Result, error) {
	node, err := c.Node()
	if err != nil {
		return Result{}, err
	}
	win, ok := node.(ir.WindowStmt)
	if !ok {
		return Result{}, unsupported(node.Loc(), "inline-window target is not a window binding")
	}
	siblings, err := siblingsOf(c)
	if err != nil {
		return Result{}, err
	}
	after := append([]ir.Stmt{}, siblings[c.Hi:]...)
	rewritten := inlineWindowAccess(after, win.Name, win.SrcBuf, win.Access)
	target := cursor.Cursor{Root: root, Container: c.Container, Lo: c.Lo, Hi: c.Lo + 1 + len(after)}
	return cursor.Replace(target, rewritten)
}

// inlineWindowAccess rewrites every Read of winSym within body into a
// direct access of srcBuf, offsetting each surviving (interval) dimension
// of the original window by its Lo and fixing each collapsed (point)
// dimension to its Point expression.
func inlineWindowAccess(body []ir.Stmt, winSym, srcBuf ir.Symbol, access []ir.Access) []ir.Stmt {
	out := make([]ir.Stmt, len(body))
	for i, s := range body {
		out[i] = inlineWindowStmt(s, winSym, srcBuf, access)
	}
	return out
}

func resolveAccessIdx(idx []ir.Expr, access []ir.Access) []ir.Expr {
	out := make([]ir.Expr, 0, len(access))
	next := 0
	for _, a := range access {
		if a.IsInterval {
			out = append(out, add(idx[next], a.Lo))
			next++
		} else {
			out = append(out, a.Point)
		}
	}
	return out
}

func inlineWindowStmt(s ir.Stmt, winSym, srcBuf ir.Symbol, access []ir.Access) ir.Stmt {
	switch v := s.(type) {
	case ir.Assign:
		if v.Name.Equal(winSym) {
			v.Name = srcBuf
			v.Idx = resolveAccessIdx(v.Idx, access)
		}
		v.Rhs = inlineWindowExpr(v.Rhs, winSym, srcBuf, access)
		return v
	case ir.Reduce:
		if v.Name.Equal(winSym) {
			v.Name = srcBuf
			v.Idx = resolveAccessIdx(v.Idx, access)
		}
		v.Rhs = inlineWindowExpr(v.Rhs, winSym, srcBuf, access)
		return v
	case ir.WriteConfig:
		v.Value = inlineWindowExpr(v.Value, winSym, srcBuf, access)
		return v
	case ir.If:
		v.Cond = inlineWindowExpr(v.Cond, winSym, srcBuf, access)
		v.Body = inlineWindowAccess(v.Body, winSym, srcBuf, access)
		v.Orelse = inlineWindowAccess(v.Orelse, winSym, srcBuf, access)
		return v
	case ir.Seq:
		v.Body = inlineWindowAccess(v.Body, winSym, srcBuf, access)
		return v
	case ir.Instr:
		v.Body = inlineWindowStmt(v.Body, winSym, srcBuf, access)
		return v
	default:
		return s
	}
}

func inlineWindowExpr(e ir.Expr, winSym, srcBuf ir.Symbol, access []ir.Access) ir.Expr {
	switch v := e.(type) {
	case ir.Read:
		if v.Sym.Equal(winSym) {
			return ir.Read{Sym: srcBuf, Idx: resolveAccessIdx(v.Idx, access), Typ: v.Typ}
		}
		for i, a := range v.Idx {
			v.Idx[i] = inlineWindowExpr(a, winSym, srcBuf, access)
		}
		return v
	case ir.BinOp:
		v.Lhs = inlineWindowExpr(v.Lhs, winSym, srcBuf, access)
		v.Rhs = inlineWindowExpr(v.Rhs, winSym, srcBuf, access)
		return v
	case ir.USub:
		v.Arg = inlineWindowExpr(v.Arg, winSym, srcBuf, access)
		return v
	case ir.Select:
		v.Cond = inlineWindowExpr(v.Cond, winSym, srcBuf, access)
		v.Body = inlineWindowExpr(v.Body, winSym, srcBuf, access)
		return v
	case ir.StrideExpr:
		// The window's k'th dimension is the source dimension of its k'th
		// interval access.
		if v.Sym.Equal(winSym) {
			next := 0
			for d, a := range access {
				if a.IsInterval {
					if next == v.Dim {
						return ir.StrideExpr{Sym: srcBuf, Dim: d}
					}
					next++
				}
			}
		}
		return v
	default:
		return e
	}
}
