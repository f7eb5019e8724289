package ir

// StmtEqual reports deep structural equality of two statements up to bound
// symbol identity (Tag), used by tests asserting "structurally equal up to
// intended local edits" (spec.md §8) and by the normalizer's idempotence
// check (simplify(simplify(P)) == simplify(P)).
func StmtEqual(a, b Stmt) bool {
	switch av := a.(type) {
	case Assign:
		bv, ok := b.(Assign)
		return ok && av.Name.Equal(bv.Name) && exprsEqual(av.Idx, bv.Idx) && ExprEqual(av.Rhs, bv.Rhs)
	case Reduce:
		bv, ok := b.(Reduce)
		return ok && av.Name.Equal(bv.Name) && exprsEqual(av.Idx, bv.Idx) && ExprEqual(av.Rhs, bv.Rhs)
	case WriteConfig:
		bv, ok := b.(WriteConfig)
		return ok && av.Config == bv.Config && av.Field == bv.Field && ExprEqual(av.Value, bv.Value)
	case WindowStmt:
		bv, ok := b.(WindowStmt)
		return ok && av.Name.Equal(bv.Name) && av.SrcBuf.Equal(bv.SrcBuf) && accessEqual(av.Access, bv.Access)
	case If:
		bv, ok := b.(If)
		return ok && ExprEqual(av.Cond, bv.Cond) && blockEqual(av.Body, bv.Body) && blockEqual(av.Orelse, bv.Orelse)
	case Seq:
		bv, ok := b.(Seq)
		return ok && av.Iter.Equal(bv.Iter) && ExprEqual(av.Lo, bv.Lo) && ExprEqual(av.Hi, bv.Hi) && blockEqual(av.Body, bv.Body)
	case Alloc:
		bv, ok := b.(Alloc)
		return ok && av.Name.Equal(bv.Name) && typeEqual(av.Typ, bv.Typ) && av.Mem == bv.Mem
	case Free:
		bv, ok := b.(Free)
		return ok && av.Name.Equal(bv.Name)
	case Call:
		bv, ok := b.(Call)
		return ok && av.Proc == bv.Proc && exprsEqual(av.Args, bv.Args)
	case Pass:
		_, ok := b.(Pass)
		return ok
	case Instr:
		bv, ok := b.(Instr)
		return ok && av.Op == bv.Op && StmtEqual(av.Body, bv.Body)
	default:
		panicInvariant("unknown statement variant %T", a)
		return false
	}
}

func blockEqual(a, b []Stmt) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !StmtEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

// ExprEqual reports deep structural (syntactic) equality of two
// expressions, used as the baseline "equal after normalization" test by the
// conservative oracle's expression-equivalence-in-context query.
func ExprEqual(a, b Expr) bool {
	switch av := a.(type) {
	case Read:
		bv, ok := b.(Read)
		return ok && av.Sym.Equal(bv.Sym) && exprsEqual(av.Idx, bv.Idx)
	case Const:
		bv, ok := b.(Const)
		return ok && av.Value == bv.Value
	case BinOp:
		bv, ok := b.(BinOp)
		return ok && av.Op == bv.Op && ExprEqual(av.Lhs, bv.Lhs) && ExprEqual(av.Rhs, bv.Rhs)
	case USub:
		bv, ok := b.(USub)
		return ok && ExprEqual(av.Arg, bv.Arg)
	case Select:
		bv, ok := b.(Select)
		return ok && ExprEqual(av.Cond, bv.Cond) && ExprEqual(av.Body, bv.Body)
	case WindowExpr:
		bv, ok := b.(WindowExpr)
		return ok && av.Sym.Equal(bv.Sym) && accessEqual(av.Access, bv.Access)
	case StrideExpr:
		bv, ok := b.(StrideExpr)
		return ok && av.Sym.Equal(bv.Sym) && av.Dim == bv.Dim
	case ReadConfig:
		bv, ok := b.(ReadConfig)
		return ok && av.Config == bv.Config && av.Field == bv.Field
	default:
		panicInvariant("unknown expression variant %T", a)
		return false
	}
}

func exprsEqual(a, b []Expr) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !ExprEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

func accessEqual(a, b []Access) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].IsInterval != b[i].IsInterval {
			return false
		}
		if a[i].IsInterval {
			if !ExprEqual(a[i].Lo, b[i].Lo) || !ExprEqual(a[i].Hi, b[i].Hi) {
				return false
			}
		} else if !ExprEqual(a[i].Point, b[i].Point) {
			return false
		}
	}
	return true
}

func typeEqual(a, b Type) bool {
	switch av := a.(type) {
	case Scalar:
		bv, ok := b.(Scalar)
		return ok && av.Kind == bv.Kind
	case Tensor:
		bv, ok := b.(Tensor)
		return ok && av.Element == bv.Element && av.IsWindow == bv.IsWindow && exprsEqual(av.Shape, bv.Shape)
	case Window:
		bv, ok := b.(Window)
		return ok && av.Base == bv.Base && av.SrcBuffer.Equal(bv.SrcBuffer) && accessEqual(av.Access, bv.Access)
	default:
		panicInvariant("unknown type variant %T", a)
		return false
	}
}

// FreeSymbols returns the set of symbols read (not bound) within a
// statement list, used by fission-after's allocation-escape check and by
// remove-loop's "iterator not free in body" precondition.
func FreeSymbols(body []Stmt) map[int64]bool {
	out := map[int64]bool{}
	collectFreeBlock(body, out)
	return out
}

func collectFreeBlock(body []Stmt, out map[int64]bool) {
	// An Alloc or WindowStmt binds its name for the rest of the block, so
	// uses by later siblings are not free either.
	local := map[int64]bool{}
	bound := map[int64]bool{}
	for _, s := range body {
		collectFreeStmt(s, local)
		switch v := s.(type) {
		case Alloc:
			bound[v.Name.Tag] = true
		case WindowStmt:
			bound[v.Name.Tag] = true
		}
	}
	for tag := range local {
		if !bound[tag] {
			out[tag] = true
		}
	}
}

func collectFreeStmt(s Stmt, out map[int64]bool) {
	switch v := s.(type) {
	case Assign:
		out[v.Name.Tag] = true
		collectFreeExprs(v.Idx, out)
		collectFreeExpr(v.Rhs, out)
	case Reduce:
		out[v.Name.Tag] = true
		collectFreeExprs(v.Idx, out)
		collectFreeExpr(v.Rhs, out)
	case WriteConfig:
		collectFreeExpr(v.Value, out)
	case WindowStmt:
		out[v.SrcBuf.Tag] = true
		collectFreeAccess(v.Access, out)
	case If:
		collectFreeExpr(v.Cond, out)
		collectFreeBlock(v.Body, out)
		collectFreeBlock(v.Orelse, out)
	case Seq:
		collectFreeExpr(v.Lo, out)
		collectFreeExpr(v.Hi, out)
		collectFreeBlock(v.Body, out)
		delete(out, v.Iter.Tag)
	case Alloc:
		collectFreeType(v.Typ, out)
		delete(out, v.Name.Tag)
	case Free:
		out[v.Name.Tag] = true
	case Call:
		collectFreeExprs(v.Args, out)
	case Pass:
	case Instr:
		collectFreeStmt(v.Body, out)
	default:
		panicInvariant("unknown statement variant %T", s)
	}
}

func collectFreeExprs(es []Expr, out map[int64]bool) {
	for _, e := range es {
		collectFreeExpr(e, out)
	}
}

func collectFreeAccess(as []Access, out map[int64]bool) {
	for _, a := range as {
		if a.IsInterval {
			collectFreeExpr(a.Lo, out)
			collectFreeExpr(a.Hi, out)
		} else {
			collectFreeExpr(a.Point, out)
		}
	}
}

func collectFreeExpr(e Expr, out map[int64]bool) {
	switch v := e.(type) {
	case Read:
		out[v.Sym.Tag] = true
		collectFreeExprs(v.Idx, out)
	case Const:
	case BinOp:
		collectFreeExpr(v.Lhs, out)
		collectFreeExpr(v.Rhs, out)
	case USub:
		collectFreeExpr(v.Arg, out)
	case Select:
		collectFreeExpr(v.Cond, out)
		collectFreeExpr(v.Body, out)
	case WindowExpr:
		out[v.Sym.Tag] = true
		collectFreeAccess(v.Access, out)
	case StrideExpr:
		out[v.Sym.Tag] = true
	case ReadConfig:
	default:
		panicInvariant("unknown expression variant %T", e)
	}
}

func collectFreeType(t Type, out map[int64]bool) {
	switch v := t.(type) {
	case Scalar:
	case Tensor:
		collectFreeExprs(v.Shape, out)
	case Window:
		out[v.SrcBuffer.Tag] = true
		collectFreeAccess(v.Access, out)
	default:
		panicInvariant("unknown type variant %T", t)
	}
}
