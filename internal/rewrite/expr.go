package rewrite

import (
	"github.com/exo-lang/loopsched/internal/cursor"
	"github.com/exo-lang/loopsched/internal/ir"
	"github.com/exo-lang/loopsched/internal/oracle"
	"github.com/iancoleman/strcase"
)

// BindExpression introduces a fresh scalar binder immediately before the
// statement c addresses, holding target's value, and rewrites every
// syntactic occurrence of target within that statement into a Read of the
// new binder — grounded on DoBindExpr.
func BindExpression(root *ir.Program, allocr *ir.SymbolAllocator, c cursor.Cursor, target ir.Expr, name string) (Result, error) {
	node, err := c.Node()
	if err != nil {
		return Result{}, err
	}
	sym := allocr.Fresh(name)
	typ := ir.ElementType(target.ExprType())
	bound := ir.Assign{Name: sym, Rhs: target}
	rewritten := replaceExprStmt(node, target, ir.Read{Sym: sym, Typ: typ})
	return compose(root,
		func(r *ir.Program) (Result, error) {
			cc := c
			cc.Root = r
			return cursor.Insert(cc.GapBefore(), []ir.Stmt{bound})
		},
		func(r *ir.Program) (Result, error) {
			cc := c
			cc.Root = r
			cc.Lo, cc.Hi = cc.Lo+1, cc.Hi+1
			return cursor.Replace(cc, []ir.Stmt{rewritten})
		},
	)
}

func replaceExprStmt(s ir.Stmt, target, repl ir.Expr) ir.Stmt {
	switch v := s.(type) {
	case ir.Assign:
		v.Idx = replaceExprList(v.Idx, target, repl)
		v.Rhs = replaceExprInExpr(v.Rhs, target, repl)
		return v
	case ir.Reduce:
		v.Idx = replaceExprList(v.Idx, target, repl)
		v.Rhs = replaceExprInExpr(v.Rhs, target, repl)
		return v
	case ir.WriteConfig:
		v.Value = replaceExprInExpr(v.Value, target, repl)
		return v
	case ir.If:
		v.Cond = replaceExprInExpr(v.Cond, target, repl)
		return v
	case ir.Seq:
		v.Lo = replaceExprInExpr(v.Lo, target, repl)
		v.Hi = replaceExprInExpr(v.Hi, target, repl)
		return v
	default:
		return s
	}
}

func replaceExprList(es []ir.Expr, target, repl ir.Expr) []ir.Expr {
	out := make([]ir.Expr, len(es))
	for i, e := range es {
		out[i] = replaceExprInExpr(e, target, repl)
	}
	return out
}

func replaceExprInExpr(e, target, repl ir.Expr) ir.Expr {
	if ir.ExprEqual(e, target) {
		return repl
	}
	switch v := e.(type) {
	case ir.BinOp:
		v.Lhs = replaceExprInExpr(v.Lhs, target, repl)
		v.Rhs = replaceExprInExpr(v.Rhs, target, repl)
		return v
	case ir.USub:
		v.Arg = replaceExprInExpr(v.Arg, target, repl)
		return v
	case ir.Select:
		v.Cond = replaceExprInExpr(v.Cond, target, repl)
		v.Body = replaceExprInExpr(v.Body, target, repl)
		return v
	case ir.Read:
		v.Idx = replaceExprList(v.Idx, target, repl)
		return v
	default:
		return e
	}
}

// BindConfig introduces a fresh scalar binder holding a ReadConfig(config,
// field)'s current value, immediately before c, and rewrites every
// occurrence of that config read within c's statement into a Read of the
// new binder — grounded on DoBindConfig.
func BindConfig(root *ir.Program, allocr *ir.SymbolAllocator, c cursor.Cursor, config, field, name string) (Result, error) {
	read := ir.ReadConfig{Config: config, Field: field, Typ: ir.Scalar{Kind: ir.ScalarReal}}
	return BindExpression(root, allocr, c, read, name)
}

// ConfigWrite inserts `config.field = value` at the gap cursor c, grounded
// on DoConfigWrite.
func ConfigWrite(root *ir.Program, c cursor.Cursor, config, field string, value ir.Expr) (Result, error) {
	c.Root = root
	return cursor.Insert(c, []ir.Stmt{ir.WriteConfig{Config: config, Field: field, Value: value}})
}

// Commute swaps the operands of the BinOp at the root of an Assign or
// Reduce statement's right-hand side, valid only when the operator is
// commutative, grounded on DoCommuteExpr.
func Commute(root *ir.Program, c cursor.Cursor) (Result, error) {
	node, err := c.Node()
	if err != nil {
		return Result{}, err
	}
	var rhs ir.Expr
	switch v := node.(type) {
	case ir.Assign:
		rhs = v.Rhs
	case ir.Reduce:
		rhs = v.Rhs
	default:
		return Result{}, unsupported(node.Loc(), "commute target must be an assignment")
	}
	bin, ok := rhs.(ir.BinOp)
	if !ok || !bin.Op.Commutative() {
		return Result{}, unsupported(node.Loc(), "commute requires a commutative binary operator")
	}
	bin.Lhs, bin.Rhs = bin.Rhs, bin.Lhs
	var out ir.Stmt
	switch v := node.(type) {
	case ir.Assign:
		v.Rhs = bin
		out = v
	case ir.Reduce:
		v.Rhs = bin
		out = v
	}
	c.Root = root
	return cursor.Replace(c, []ir.Stmt{out})
}

// MergeWrites folds an Assign immediately followed by a Reduce to the same
// target and index into a single Assign whose right-hand side is the sum,
// grounded on DoMergeWrites.
func MergeWrites(root *ir.Program, c1, c2 cursor.Cursor) (Result, error) {
	n1, err := c1.Node()
	if err != nil {
		return Result{}, err
	}
	n2, err := c2.Node()
	if err != nil {
		return Result{}, err
	}
	a, ok := n1.(ir.Assign)
	if !ok {
		return Result{}, unsupported(n1.Loc(), "merge-writes requires an assignment first")
	}
	if !c1.Container.Equal(c2.Container) || c2.Lo != c1.Hi {
		return Result{}, unsupported(n2.Loc(), "merge-writes requires two adjacent statements in the same block")
	}
	r, ok := n2.(ir.Reduce)
	if !ok || !r.Name.Equal(a.Name) || len(r.Idx) != len(a.Idx) {
		return Result{}, unsupported(n2.Loc(), "merge-writes requires a reduce to the same target immediately after")
	}
	for i := range a.Idx {
		if !ir.ExprEqual(a.Idx[i], r.Idx[i]) {
			return Result{}, unsupported(n2.Loc(), "merge-writes requires identical indices")
		}
	}
	merged := ir.Assign{Name: a.Name, Idx: a.Idx, Rhs: add(a.Rhs, r.Rhs)}
	target := cursor.Cursor{Root: root, Container: c1.Container, Lo: c1.Lo, Hi: c2.Hi}
	return cursor.Replace(target, []ir.Stmt{merged})
}

// LiftConstant hoists a loop-invariant sub-expression target out of the
// loop c addresses, binding it to a fresh scalar computed once before the
// loop and rewriting every occurrence within the body to read that
// binder — grounded on DoLiftConstant (loop-invariant code motion).
func LiftConstant(root *ir.Program, allocr *ir.SymbolAllocator, c cursor.Cursor, target ir.Expr, name string) (Result, error) {
	node, err := c.Node()
	if err != nil {
		return Result{}, err
	}
	loop, ok := node.(ir.Seq)
	if !ok {
		return Result{}, unsupported(node.Loc(), "lift-constant target must be a loop")
	}
	if ir.FreeSymbols([]ir.Stmt{ir.Seq{Lo: target, Hi: constIdx(0)}})[loop.Iter.Tag] {
		return Result{}, unsupported(node.Loc(), "expression depends on the loop's iterator")
	}
	sym := allocr.Fresh(name)
	typ := ir.ElementType(target.ExprType())
	bound := ir.Assign{Name: sym, Rhs: target}
	newLoop := loop
	newLoop.Body = replaceExprInBlock(newLoop.Body, target, ir.Read{Sym: sym, Typ: typ})
	return compose(root,
		func(r *ir.Program) (Result, error) {
			cc := c
			cc.Root = r
			return cursor.Insert(cc.GapBefore(), []ir.Stmt{bound})
		},
		func(r *ir.Program) (Result, error) {
			cc := c
			cc.Root = r
			cc.Lo, cc.Hi = cc.Lo+1, cc.Hi+1
			return cursor.Replace(cc, []ir.Stmt{newLoop})
		},
	)
}

func replaceExprInBlock(body []ir.Stmt, target, repl ir.Expr) []ir.Stmt {
	out := make([]ir.Stmt, len(body))
	for i, s := range body {
		out[i] = replaceExprInStmtDeep(s, target, repl)
	}
	return out
}

func replaceExprInStmtDeep(s ir.Stmt, target, repl ir.Expr) ir.Stmt {
	switch v := s.(type) {
	case ir.Assign:
		v.Idx = replaceExprList(v.Idx, target, repl)
		v.Rhs = replaceExprInExpr(v.Rhs, target, repl)
		return v
	case ir.Reduce:
		v.Idx = replaceExprList(v.Idx, target, repl)
		v.Rhs = replaceExprInExpr(v.Rhs, target, repl)
		return v
	case ir.WriteConfig:
		v.Value = replaceExprInExpr(v.Value, target, repl)
		return v
	case ir.If:
		v.Cond = replaceExprInExpr(v.Cond, target, repl)
		v.Body = replaceExprInBlock(v.Body, target, repl)
		v.Orelse = replaceExprInBlock(v.Orelse, target, repl)
		return v
	case ir.Seq:
		v.Lo = replaceExprInExpr(v.Lo, target, repl)
		v.Hi = replaceExprInExpr(v.Hi, target, repl)
		v.Body = replaceExprInBlock(v.Body, target, repl)
		return v
	case ir.Instr:
		v.Body = replaceExprInStmtDeep(v.Body, target, repl)
		return v
	default:
		return s
	}
}

// Specialize duplicates the range c addresses into both arms of a fresh If
// guarded by cond, so each copy can later be simplified independently under
// the assumption cond is true (the Body arm) or false (the Orelse arm) —
// grounded on DoSpecialize.
func Specialize(root *ir.Program, allocr *ir.SymbolAllocator, c cursor.Cursor, cond ir.Expr) (Result, error) {
	c.Root = root
	return cursor.Wrap(c, func(inner []ir.Stmt) ir.Stmt {
		orelse := ir.AlphaRename(inner, allocr)
		return ir.If{Cond: cond, Body: inner, Orelse: orelse}
	}, cursor.BodyField)
}

// AssertIf collapses an If whose condition the oracle proves always takes
// branch down to just that arm, grounded on DoAssertIf.
func AssertIf(root *ir.Program, orc oracle.Oracle, c cursor.Cursor, branch bool) (Result, error) {
	node, err := c.Node()
	if err != nil {
		return Result{}, err
	}
	ifStmt, ok := node.(ir.If)
	if !ok {
		return Result{}, unsupported(node.Loc(), "assert-if target is not a conditional")
	}
	pt := oracle.ProgramPoint{Root: root, Block: []ir.Stmt{ifStmt}, Index: 0}
	boolConst := ir.Const{Value: branch, Typ: ir.Scalar{Kind: ir.ScalarBool}}
	ok2, err := orc.ExpressionEquivalenceInContext(ifStmt.Cond, pt, boolConst, pt)
	if !ok2 {
		return Result{}, err
	}
	kept := ifStmt.Body
	if !branch {
		kept = ifStmt.Orelse
	}
	c.Root = root
	return cursor.Replace(c, kept)
}

// AddUnsafeGuard wraps the range c addresses in `if cond: ...` without any
// oracle check — an explicit escape hatch for a condition the caller has
// externally established, grounded on DoAddUnsafeGuard. Unlike every other
// directive in this package, this one trusts its caller outright.
func AddUnsafeGuard(root *ir.Program, c cursor.Cursor, cond ir.Expr) (Result, error) {
	c.Root = root
	return cursor.Wrap(c, func(inner []ir.Stmt) ir.Stmt {
		return ir.If{Cond: cond, Body: inner}
	}, cursor.BodyField)
}

// InsertPass inserts a no-op Pass statement at the gap cursor c, used to
// give later edits a stable statement to target, grounded on DoInsertPass.
func InsertPass(root *ir.Program, c cursor.Cursor) (Result, error) {
	c.Root = root
	return cursor.Insert(c, []ir.Stmt{ir.Pass{}})
}

// DeletePass removes a Pass statement, grounded on DoDeletePass.
func DeletePass(root *ir.Program, c cursor.Cursor) (Result, error) {
	node, err := c.Node()
	if err != nil {
		return Result{}, err
	}
	if _, ok := node.(ir.Pass); !ok {
		return Result{}, unsupported(node.Loc(), "delete-pass target is not a pass statement")
	}
	c.Root = root
	return cursor.Delete(c)
}

// DeleteConfigWrite asks the oracle which config fields written within the
// block c addresses are provably dead (never read before being
// overwritten or the block ends) and deletes exactly those writes,
// grounded on DoDeleteConfig.
func DeleteConfigWrite(root *ir.Program, orc oracle.Oracle, c cursor.Cursor) (Result, error) {
	block, err := c.Block()
	if err != nil {
		return Result{}, err
	}
	keys, ok, err := orc.DeleteConfigWrite(block)
	if !ok {
		return Result{}, err
	}
	var kept []ir.Stmt
	for _, s := range block {
		if wc, isWC := s.(ir.WriteConfig); isWC && keys[wc.Config+"."+wc.Field] {
			continue
		}
		kept = append(kept, s)
	}
	c.Root = root
	return cursor.Replace(c, kept)
}

// Inline replaces a Call statement with its callee's body, alpha-renamed to
// fresh symbols and with formal arguments substituted (whole-buffer
// arguments by renaming, scalar-expression arguments by expression
// substitution) — grounded on DoInline.
func Inline(root *ir.Program, allocr *ir.SymbolAllocator, c cursor.Cursor) (Result, error) {
	node, err := c.Node()
	if err != nil {
		return Result{}, err
	}
	call, ok := node.(ir.Call)
	if !ok {
		return Result{}, unsupported(node.Loc(), "inline target is not a call")
	}
	if len(call.Args) != len(call.Proc.Args) {
		return Result{}, shapeMismatch(node.Loc(), "call arity does not match callee signature")
	}
	body := ir.AlphaRename(call.Proc.Body, allocr)
	env := ir.SubstEnv{}
	for i, arg := range call.Proc.Args {
		actual := call.Args[i]
		if r, isRead := actual.(ir.Read); isRead && len(r.Idx) == 0 {
			body = ir.RenameBuf(body, arg.Sym, r.Sym)
			continue
		}
		env[arg.Sym.Tag] = actual
	}
	inlined := ir.Subst(body, env)
	c.Root = root
	return cursor.Replace(c, inlined)
}

// CallSwap retargets a Call at a provably-equivalent replacement
// procedure, valid when the oracle's ExtendEqv accepts the swap given the
// config fields the new callee touches — grounded on DoCallSwap.
func CallSwap(root *ir.Program, orc oracle.Oracle, c cursor.Cursor, newProc *ir.Procedure, newArgs []ir.Expr) (Result, error) {
	node, err := c.Node()
	if err != nil {
		return Result{}, err
	}
	call, ok := node.(ir.Call)
	if !ok {
		return Result{}, unsupported(node.Loc(), "call-swap target is not a call")
	}
	newCall := ir.Call{Proc: newProc, Args: newArgs}
	configKeys, knownDead, err := orc.DeleteConfigWrite(newProc.Body)
	if err != nil || !knownDead {
		configKeys = map[string]bool{}
	}
	ok2, err := orc.ExtendEqv(call, newCall, configKeys)
	if !ok2 {
		return Result{}, err
	}
	c.Root = root
	return cursor.Replace(c, []ir.Stmt{newCall})
}

// SetTypeAndMemory changes an Alloc's declared memory space in place,
// grounded on DoSetTypeAndMemory (the core engine does not model distinct
// numeric precisions, so only the memory half of the teacher's directive
// name applies here).
func SetTypeAndMemory(root *ir.Program, c cursor.Cursor, mem ir.MemSpace) (Result, error) {
	node, err := c.Node()
	if err != nil {
		return Result{}, err
	}
	alloc, ok := node.(ir.Alloc)
	if !ok {
		return Result{}, unsupported(node.Loc(), "set-type-and-memory target is not an allocation")
	}
	alloc.Mem = mem
	c.Root = root
	return cursor.Replace(c, []ir.Stmt{alloc})
}

// PartialEval specializes a procedure's argIdx'th argument to the constant
// value, substituting it throughout the body and dropping it from the
// signature — grounded on DoPartialEval. Operates on the whole procedure
// rather than through a cursor, since changing the signature is not a
// within-body edit; the forwarder is the identity on statement positions,
// since substitution never changes block shape.
func PartialEval(root *ir.Program, argIdx int, value ir.Expr) (Result, error) {
	proc := root.Proc
	if argIdx < 0 || argIdx >= len(proc.Args) {
		return Result{}, unsupported(proc.Src, "partial-eval argument index out of range")
	}
	arg := proc.Args[argIdx]
	env := ir.SubstEnv{arg.Sym.Tag: value}
	newProc := &ir.Procedure{
		Name:          proc.Name,
		Args:          append(append([]ir.Argument{}, proc.Args[:argIdx]...), proc.Args[argIdx+1:]...),
		Preconditions: substExprList(proc.Preconditions, env),
		Body:          ir.Subst(proc.Body, env),
		Instr:         proc.Instr,
		Src:           proc.Src,
	}
	newRoot := root.WithProc(newProc)
	return Result{Root: newRoot, Forward: func(c cursor.Cursor) (cursor.Cursor, error) {
		c.Root = newRoot
		return c, nil
	}}, nil
}

// substExprList substitutes env throughout a bare []Expr (spec.md's
// Preconditions list) by round-tripping each entry through ir.Subst, which
// only walks statement blocks; wrapping each in a throwaway Assign reuses
// that one substitution pass instead of a second expression walker.
func substExprList(es []ir.Expr, env ir.SubstEnv) []ir.Expr {
	wrapped := make([]ir.Stmt, len(es))
	for i, e := range es {
		wrapped[i] = ir.Assign{Rhs: e}
	}
	substituted := ir.Subst(wrapped, env)
	out := make([]ir.Expr, len(substituted))
	for i, s := range substituted {
		out[i] = s.(ir.Assign).Rhs
	}
	return out
}

// ExtractMethod lifts the statement range c addresses into a new
// top-level procedure, replacing it in place with a call to that
// procedure. args/callArgs describe, in lockstep, the free variables of
// the extracted block (formal signature, then actual values at the call
// site) — grounded on DoExtractMethod. The synthesized name is
// snake_cased via strcase the way a human author would name a new
// procedure, since the teacher's naming convention (kanso's surface
// syntax) never synthesizes identifiers of its own.
func ExtractMethod(root *ir.Program, c cursor.Cursor, name string, args []ir.Argument, callArgs []ir.Expr) (Result, error) {
	block, err := c.Block()
	if err != nil {
		return Result{}, err
	}
	if len(args) != len(callArgs) {
		return Result{}, shapeMismatch(ir.SrcInfo{}, "extract-method arg/callArg count mismatch")
	}
	proc := &ir.Procedure{Name: strcase.ToSnake(name), Args: args, Body: append([]ir.Stmt{}, block...)}
	call := ir.Call{Proc: proc, Args: callArgs}
	c.Root = root
	return cursor.Replace(c, []ir.Stmt{call})
}
