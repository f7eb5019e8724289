package ir

// renameEnv maps old binder symbols to their freshened replacement; it is
// threaded down the tree exactly as kanso's SSA builder threads a
// name→Value environment through a function body (internal/ir/builder.go
// in the teacher).
type renameEnv map[int64]Symbol

func (e renameEnv) lookup(s Symbol) Symbol {
	if fresh, ok := e[s.Tag]; ok {
		return fresh
	}
	return s
}

// clone copies the environment so a nested scope's fresh binders never leak
// to siblings processed afterward.
func (e renameEnv) clone() renameEnv {
	out := make(renameEnv, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// AlphaRename copies a statement block, minting a fresh symbol (via alloc)
// for every binder introduced within it (Seq iterators, Alloc names,
// WindowStmt names) and rewriting every reader through the lookup
// environment. Used by unroll, inline and extract-method wherever a
// subtree is duplicated into a new scope (spec.md §9 "Recursive variants").
func AlphaRename(body []Stmt, alloc *SymbolAllocator) []Stmt {
	return alphaRenameBlock(body, renameEnv{}, alloc)
}

func alphaRenameBlock(body []Stmt, env renameEnv, alloc *SymbolAllocator) []Stmt {
	out := make([]Stmt, len(body))
	// A WindowStmt or Alloc binder introduced mid-block must be visible to
	// later siblings in the same block, so env is threaded forward here
	// rather than cloned per statement.
	for i, s := range body {
		rewritten, nextEnv := alphaRenameStmt(s, env, alloc)
		out[i] = rewritten
		env = nextEnv
	}
	return out
}

func alphaRenameStmt(s Stmt, env renameEnv, alloc *SymbolAllocator) (Stmt, renameEnv) {
	switch v := s.(type) {
	case Assign:
		v.Name = env.lookup(v.Name)
		v.Idx = alphaRenameExprs(v.Idx, env)
		v.Rhs = alphaRenameExpr(v.Rhs, env)
		return v, env
	case Reduce:
		v.Name = env.lookup(v.Name)
		v.Idx = alphaRenameExprs(v.Idx, env)
		v.Rhs = alphaRenameExpr(v.Rhs, env)
		return v, env
	case WriteConfig:
		v.Value = alphaRenameExpr(v.Value, env)
		return v, env
	case WindowStmt:
		fresh := alloc.Fresh(v.Name.Name)
		next := env.clone()
		next[v.Name.Tag] = fresh
		v.Name = fresh
		v.SrcBuf = env.lookup(v.SrcBuf)
		v.Access = alphaRenameAccess(v.Access, env)
		return v, next
	case If:
		v.Cond = alphaRenameExpr(v.Cond, env)
		v.Body = alphaRenameBlock(v.Body, env, alloc)
		v.Orelse = alphaRenameBlock(v.Orelse, env, alloc)
		return v, env
	case Seq:
		v.Lo = alphaRenameExpr(v.Lo, env)
		v.Hi = alphaRenameExpr(v.Hi, env)
		fresh := alloc.Fresh(v.Iter.Name)
		inner := env.clone()
		inner[v.Iter.Tag] = fresh
		v.Iter = fresh
		v.Body = alphaRenameBlock(v.Body, inner, alloc)
		return v, env
	case Alloc:
		fresh := alloc.Fresh(v.Name.Name)
		next := env.clone()
		next[v.Name.Tag] = fresh
		v.Typ = alphaRenameType(v.Typ, env)
		v.Name = fresh
		return v, next
	case Free:
		v.Name = env.lookup(v.Name)
		return v, env
	case Call:
		v.Args = alphaRenameExprs(v.Args, env)
		return v, env
	case Pass:
		return v, env
	case Instr:
		body, _ := alphaRenameStmt(v.Body, env, alloc)
		v.Body = body
		return v, env
	default:
		panicInvariant("unknown statement variant %T", s)
		return nil, env
	}
}

func alphaRenameExprs(es []Expr, env renameEnv) []Expr {
	if es == nil {
		return nil
	}
	out := make([]Expr, len(es))
	for i, e := range es {
		out[i] = alphaRenameExpr(e, env)
	}
	return out
}

func alphaRenameAccess(as []Access, env renameEnv) []Access {
	out := make([]Access, len(as))
	for i, a := range as {
		if a.IsInterval {
			out[i] = Access{IsInterval: true, Lo: alphaRenameExpr(a.Lo, env), Hi: alphaRenameExpr(a.Hi, env)}
		} else {
			out[i] = Access{Point: alphaRenameExpr(a.Point, env)}
		}
	}
	return out
}

func alphaRenameExpr(e Expr, env renameEnv) Expr {
	switch v := e.(type) {
	case Read:
		v.Sym = env.lookup(v.Sym)
		v.Idx = alphaRenameExprs(v.Idx, env)
		return v
	case Const:
		return v
	case BinOp:
		v.Lhs = alphaRenameExpr(v.Lhs, env)
		v.Rhs = alphaRenameExpr(v.Rhs, env)
		return v
	case USub:
		v.Arg = alphaRenameExpr(v.Arg, env)
		return v
	case Select:
		v.Cond = alphaRenameExpr(v.Cond, env)
		v.Body = alphaRenameExpr(v.Body, env)
		return v
	case WindowExpr:
		v.Sym = env.lookup(v.Sym)
		v.Access = alphaRenameAccess(v.Access, env)
		return v
	case StrideExpr:
		v.Sym = env.lookup(v.Sym)
		return v
	case ReadConfig:
		return v
	default:
		panicInvariant("unknown expression variant %T", e)
		return nil
	}
}

func alphaRenameType(t Type, env renameEnv) Type {
	switch v := t.(type) {
	case Scalar:
		return v
	case Tensor:
		v.Shape = alphaRenameExprs(v.Shape, env)
		return v
	case Window:
		v.SrcBuffer = env.lookup(v.SrcBuffer)
		v.Access = alphaRenameAccess(v.Access, env)
		return v
	default:
		panicInvariant("unknown type variant %T", t)
		return nil
	}
}
