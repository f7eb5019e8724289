package ir

// SubstEnv maps a binder's Tag to the expression that should replace every
// Read of it. Rewrites that retarget an iteration variable (split's
// `i ↦ q·o + l`, product-loop's div/mod decomposition, divide-dim's
// coordinate split) all go through this single substitution pass rather
// than hand-rolling a walk each time, mirroring
// original_source/src/exo/LoopIR_scheduling.py's `SubstArgs` helper.
type SubstEnv map[int64]Expr

// Subst rewrites every Read of a symbol bound in env, throughout body,
// stopping at any inner binder that shadows it (Seq iterator, Alloc,
// WindowStmt name) so substitution never crosses a rebinding scope.
func Subst(body []Stmt, env SubstEnv) []Stmt {
	if len(env) == 0 {
		return body
	}
	out := make([]Stmt, len(body))
	for i, s := range body {
		out[i] = substStmt(s, env)
	}
	return out
}

func substStmt(s Stmt, env SubstEnv) Stmt {
	switch v := s.(type) {
	case Assign:
		v.Idx = substExprs(v.Idx, env)
		v.Rhs = substExpr(v.Rhs, env)
		return v
	case Reduce:
		v.Idx = substExprs(v.Idx, env)
		v.Rhs = substExpr(v.Rhs, env)
		return v
	case WriteConfig:
		v.Value = substExpr(v.Value, env)
		return v
	case WindowStmt:
		v.Access = substAccess(v.Access, env)
		return v
	case If:
		v.Cond = substExpr(v.Cond, env)
		v.Body = Subst(v.Body, env)
		v.Orelse = Subst(v.Orelse, env)
		return v
	case Seq:
		v.Lo = substExpr(v.Lo, env)
		v.Hi = substExpr(v.Hi, env)
		inner := env
		if _, shadowed := env[v.Iter.Tag]; shadowed {
			inner = withoutKey(env, v.Iter.Tag)
		}
		v.Body = Subst(v.Body, inner)
		return v
	case Alloc:
		v.Typ = substType(v.Typ, env)
		return v
	case Free:
		return v
	case Call:
		v.Args = substExprs(v.Args, env)
		return v
	case Pass:
		return v
	case Instr:
		v.Body = substStmt(v.Body, env)
		return v
	default:
		panicInvariant("unknown statement variant %T", s)
		return nil
	}
}

func withoutKey(env SubstEnv, tag int64) SubstEnv {
	out := make(SubstEnv, len(env))
	for k, v := range env {
		if k != tag {
			out[k] = v
		}
	}
	return out
}

func substExprs(es []Expr, env SubstEnv) []Expr {
	if es == nil {
		return nil
	}
	out := make([]Expr, len(es))
	for i, e := range es {
		out[i] = substExpr(e, env)
	}
	return out
}

func substAccess(as []Access, env SubstEnv) []Access {
	out := make([]Access, len(as))
	for i, a := range as {
		if a.IsInterval {
			out[i] = Access{IsInterval: true, Lo: substExpr(a.Lo, env), Hi: substExpr(a.Hi, env)}
		} else {
			out[i] = Access{Point: substExpr(a.Point, env)}
		}
	}
	return out
}

func substExpr(e Expr, env SubstEnv) Expr {
	switch v := e.(type) {
	case Read:
		if repl, ok := env[v.Sym.Tag]; ok && len(v.Idx) == 0 {
			return repl
		}
		v.Idx = substExprs(v.Idx, env)
		return v
	case Const:
		return v
	case BinOp:
		v.Lhs = substExpr(v.Lhs, env)
		v.Rhs = substExpr(v.Rhs, env)
		return v
	case USub:
		v.Arg = substExpr(v.Arg, env)
		return v
	case Select:
		v.Cond = substExpr(v.Cond, env)
		v.Body = substExpr(v.Body, env)
		return v
	case WindowExpr:
		v.Access = substAccess(v.Access, env)
		return v
	case StrideExpr:
		return v
	case ReadConfig:
		return v
	default:
		panicInvariant("unknown expression variant %T", e)
		return nil
	}
}

func substType(t Type, env SubstEnv) Type {
	switch v := t.(type) {
	case Scalar:
		return v
	case Tensor:
		v.Shape = substExprs(v.Shape, env)
		return v
	case Window:
		v.Access = substAccess(v.Access, env)
		return v
	default:
		panicInvariant("unknown type variant %T", t)
		return nil
	}
}

// RenameBuf rewrites every Assign/Reduce/Read/WindowStmt.SrcBuf/StrideExpr
// reference to `from` into `to`, used by data-reuse and inline where the
// symbol itself (not just an index expression) is being retargeted.
func RenameBuf(body []Stmt, from, to Symbol) []Stmt {
	out := make([]Stmt, len(body))
	for i, s := range body {
		out[i] = renameBufStmt(s, from, to)
	}
	return out
}

func renameBufStmt(s Stmt, from, to Symbol) Stmt {
	switch v := s.(type) {
	case Assign:
		if v.Name.Equal(from) {
			v.Name = to
		}
		v.Idx = renameBufExprs(v.Idx, from, to)
		v.Rhs = renameBufExpr(v.Rhs, from, to)
		return v
	case Reduce:
		if v.Name.Equal(from) {
			v.Name = to
		}
		v.Idx = renameBufExprs(v.Idx, from, to)
		v.Rhs = renameBufExpr(v.Rhs, from, to)
		return v
	case WriteConfig:
		v.Value = renameBufExpr(v.Value, from, to)
		return v
	case WindowStmt:
		if v.SrcBuf.Equal(from) {
			v.SrcBuf = to
		}
		v.Access = renameBufAccess(v.Access, from, to)
		return v
	case If:
		v.Cond = renameBufExpr(v.Cond, from, to)
		v.Body = RenameBuf(v.Body, from, to)
		v.Orelse = RenameBuf(v.Orelse, from, to)
		return v
	case Seq:
		v.Lo = renameBufExpr(v.Lo, from, to)
		v.Hi = renameBufExpr(v.Hi, from, to)
		v.Body = RenameBuf(v.Body, from, to)
		return v
	case Alloc:
		return v
	case Free:
		if v.Name.Equal(from) {
			v.Name = to
		}
		return v
	case Call:
		v.Args = renameBufExprs(v.Args, from, to)
		return v
	case Pass:
		return v
	case Instr:
		v.Body = renameBufStmt(v.Body, from, to)
		return v
	default:
		panicInvariant("unknown statement variant %T", s)
		return nil
	}
}

func renameBufExprs(es []Expr, from, to Symbol) []Expr {
	if es == nil {
		return nil
	}
	out := make([]Expr, len(es))
	for i, e := range es {
		out[i] = renameBufExpr(e, from, to)
	}
	return out
}

func renameBufAccess(as []Access, from, to Symbol) []Access {
	out := make([]Access, len(as))
	for i, a := range as {
		if a.IsInterval {
			out[i] = Access{IsInterval: true, Lo: renameBufExpr(a.Lo, from, to), Hi: renameBufExpr(a.Hi, from, to)}
		} else {
			out[i] = Access{Point: renameBufExpr(a.Point, from, to)}
		}
	}
	return out
}

func renameBufExpr(e Expr, from, to Symbol) Expr {
	switch v := e.(type) {
	case Read:
		if v.Sym.Equal(from) {
			v.Sym = to
		}
		v.Idx = renameBufExprs(v.Idx, from, to)
		return v
	case Const:
		return v
	case BinOp:
		v.Lhs = renameBufExpr(v.Lhs, from, to)
		v.Rhs = renameBufExpr(v.Rhs, from, to)
		return v
	case USub:
		v.Arg = renameBufExpr(v.Arg, from, to)
		return v
	case Select:
		v.Cond = renameBufExpr(v.Cond, from, to)
		v.Body = renameBufExpr(v.Body, from, to)
		return v
	case WindowExpr:
		if v.Sym.Equal(from) {
			v.Sym = to
		}
		v.Access = renameBufAccess(v.Access, from, to)
		return v
	case StrideExpr:
		if v.Sym.Equal(from) {
			v.Sym = to
		}
		return v
	case ReadConfig:
		return v
	default:
		panicInvariant("unknown expression variant %T", e)
		return nil
	}
}
