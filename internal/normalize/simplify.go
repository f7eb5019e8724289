package normalize

import "github.com/exo-lang/loopsched/internal/ir"

// Simplifier applies the algebraic rewrite set of spec.md §4.4 in a single
// bottom-up pass: constant folding, identity laws, the
// `N%K + K·(N/K) ↦ N` recognition pattern, If-condition-equality
// propagation into the `then` branch, dead-branch and dead-loop dropping.
// Modeled directly on kanso's internal/ir/optimizations.go pass structure
// (ConstantFolding / DeadCodeElimination / CommonSubexpressionElimination):
// a small, independently re-runnable pass object rather than a visitor.
type Simplifier struct{}

// NewSimplifier returns the (stateless) default simplifier.
func NewSimplifier() *Simplifier { return &Simplifier{} }

// Simplify runs the full pass over a statement block. Idempotent up to node
// identity of unchanged subtrees (spec.md §8): Simplify(Simplify(body))
// equals Simplify(body).
func (s *Simplifier) Simplify(body []Stmt) []Stmt {
	return s.simplifyBlock(body, nil)
}

// Stmt is a convenience alias so callers needn't import ir directly for the
// block type this package operates on.
type Stmt = ir.Stmt

func (s *Simplifier) simplifyBlock(body []ir.Stmt, eq map[string]ir.Expr) []ir.Stmt {
	out := make([]ir.Stmt, 0, len(body))
	for _, stmt := range body {
		out = append(out, s.simplifyStmt(stmt, eq)...)
	}
	return out
}

// simplifyStmt returns the statements that should replace stmt in its
// parent block: empty to drop it (a dead branch or a dead loop), more than
// one when a constant-condition If is replaced by its chosen arm's body.
func (s *Simplifier) simplifyStmt(stmt ir.Stmt, eq map[string]ir.Expr) []ir.Stmt {
	switch v := stmt.(type) {
	case ir.Assign:
		v.Idx = s.simplifyExprs(v.Idx, eq)
		v.Rhs = s.SimplifyExpr(v.Rhs, eq)
		return []ir.Stmt{v}
	case ir.Reduce:
		v.Idx = s.simplifyExprs(v.Idx, eq)
		v.Rhs = s.SimplifyExpr(v.Rhs, eq)
		return []ir.Stmt{v}
	case ir.WriteConfig:
		v.Value = s.SimplifyExpr(v.Value, eq)
		return []ir.Stmt{v}
	case ir.WindowStmt:
		v.Access = s.simplifyAccess(v.Access, eq)
		return []ir.Stmt{v}
	case ir.If:
		return s.simplifyIf(v, eq)
	case ir.Seq:
		return s.simplifySeq(v, eq)
	case ir.Alloc:
		return []ir.Stmt{v}
	case ir.Free:
		return []ir.Stmt{v}
	case ir.Call:
		v.Args = s.simplifyExprs(v.Args, eq)
		return []ir.Stmt{v}
	case ir.Pass:
		return []ir.Stmt{v}
	case ir.Instr:
		inner := s.simplifyStmt(v.Body, eq)
		if len(inner) != 1 {
			// An Instr-tagged body must stay a single statement; simplifying
			// its interior never changes statement count for the shapes
			// internal/ir.InstrTemplate recognizes, so this is unreachable
			// for well-formed input.
			return []ir.Stmt{v}
		}
		v.Body = inner[0]
		return []ir.Stmt{v}
	default:
		return []ir.Stmt{stmt}
	}
}

func (s *Simplifier) simplifyIf(v ir.If, eq map[string]ir.Expr) []ir.Stmt {
	cond := s.SimplifyExpr(v.Cond, eq)

	// Drop branches with a constant condition (spec.md §4.4).
	if c, ok := cond.(ir.Const); ok {
		if b, ok := c.Value.(bool); ok {
			if b {
				return s.simplifyBlock(v.Body, eq)
			}
			return s.simplifyBlock(v.Orelse, eq)
		}
	}

	// Propagate `e == c` into the then-branch, and if e is `e'/M == 0`,
	// also propagate the derived fact `e'%M == e'` (spec.md §4.4).
	thenEq := cloneEq(eq)
	if bin, ok := cond.(ir.BinOp); ok && bin.Op == ir.OpEq {
		thenEq[bin.Lhs.String()] = bin.Rhs
		if div, ok := bin.Lhs.(ir.BinOp); ok && div.Op == ir.OpDiv {
			if zero, ok := bin.Rhs.(ir.Const); ok && isZero(zero) {
				modExpr := ir.BinOp{Op: ir.OpMod, Lhs: div.Lhs, Rhs: div.Rhs, Typ: div.Typ}
				thenEq[modExpr.String()] = div.Lhs
			}
		}
	}

	body := s.simplifyBlock(v.Body, thenEq)
	orelse := s.simplifyBlock(v.Orelse, eq)
	v.Cond, v.Body, v.Orelse = cond, body, orelse
	return []ir.Stmt{v}
}

func (s *Simplifier) simplifySeq(v ir.Seq, eq map[string]ir.Expr) []ir.Stmt {
	v.Lo = s.SimplifyExpr(v.Lo, eq)
	v.Hi = s.SimplifyExpr(v.Hi, eq)
	v.Body = s.simplifyBlock(v.Body, eq)

	// Drop loops with lo==hi or an empty body (spec.md §4.4).
	if ir.ExprEqual(v.Lo, v.Hi) || len(v.Body) == 0 {
		return nil
	}
	return []ir.Stmt{v}
}

func (s *Simplifier) simplifyExprs(es []ir.Expr, eq map[string]ir.Expr) []ir.Expr {
	if es == nil {
		return nil
	}
	out := make([]ir.Expr, len(es))
	for i, e := range es {
		out[i] = s.SimplifyExpr(e, eq)
	}
	return out
}

func (s *Simplifier) simplifyAccess(as []ir.Access, eq map[string]ir.Expr) []ir.Access {
	out := make([]ir.Access, len(as))
	for i, a := range as {
		if a.IsInterval {
			out[i] = ir.Access{IsInterval: true, Lo: s.SimplifyExpr(a.Lo, eq), Hi: s.SimplifyExpr(a.Hi, eq)}
		} else {
			out[i] = ir.Access{Point: s.SimplifyExpr(a.Point, eq)}
		}
	}
	return out
}

// SimplifyExpr applies constant folding and the identity/pattern rules of
// spec.md §4.4 to a single expression, consulting eq for any propagated
// `If`-condition equalities in scope.
func (s *Simplifier) SimplifyExpr(e ir.Expr, eq map[string]ir.Expr) ir.Expr {
	if eq != nil {
		if repl, ok := eq[e.String()]; ok {
			return repl
		}
	}
	switch v := e.(type) {
	case ir.Read:
		v.Idx = s.simplifyExprs(v.Idx, eq)
		return v
	case ir.Const:
		return v
	case ir.USub:
		arg := s.SimplifyExpr(v.Arg, eq)
		if c, ok := arg.(ir.Const); ok {
			if n, ok := asInt(c.Value); ok {
				return ir.Const{Value: -n, Typ: c.Typ}
			}
		}
		v.Arg = arg
		return v
	case ir.Select:
		v.Cond = s.SimplifyExpr(v.Cond, eq)
		v.Body = s.SimplifyExpr(v.Body, eq)
		return v
	case ir.WindowExpr:
		v.Access = s.simplifyAccess(v.Access, eq)
		return v
	case ir.BinOp:
		return s.simplifyBinOp(v, eq)
	default:
		return e
	}
}

func (s *Simplifier) simplifyBinOp(v ir.BinOp, eq map[string]ir.Expr) ir.Expr {
	lhs := s.SimplifyExpr(v.Lhs, eq)
	rhs := s.SimplifyExpr(v.Rhs, eq)

	if folded, ok := foldConst(v.Op, lhs, rhs, v.Typ); ok {
		return folded
	}
	if identity, ok := applyIdentity(v.Op, lhs, rhs); ok {
		return s.SimplifyExpr(identity, eq)
	}
	if merged, ok := foldModPlusDiv(v.Op, lhs, rhs); ok {
		return merged
	}
	v.Lhs, v.Rhs = lhs, rhs
	return v
}

func foldConst(op ir.BinOpKind, lhs, rhs ir.Expr, typ ir.Type) (ir.Expr, bool) {
	lc, lok := lhs.(ir.Const)
	rc, rok := rhs.(ir.Const)
	if !lok || !rok {
		return nil, false
	}
	switch op {
	case ir.OpAnd, ir.OpOr:
		lb, lbok := lc.Value.(bool)
		rb, rbok := rc.Value.(bool)
		if !lbok || !rbok {
			return nil, false
		}
		if op == ir.OpAnd {
			return ir.Const{Value: lb && rb, Typ: ir.Scalar{Kind: ir.ScalarBool}}, true
		}
		return ir.Const{Value: lb || rb, Typ: ir.Scalar{Kind: ir.ScalarBool}}, true
	}
	ln, lnok := asInt(lc.Value)
	rn, rnok := asInt(rc.Value)
	if !lnok || !rnok {
		return nil, false
	}
	switch op {
	case ir.OpAdd:
		return ir.Const{Value: ln + rn, Typ: lc.Typ}, true
	case ir.OpSub:
		return ir.Const{Value: ln - rn, Typ: lc.Typ}, true
	case ir.OpMul:
		return ir.Const{Value: ln * rn, Typ: lc.Typ}, true
	case ir.OpDiv:
		if rn == 0 {
			return nil, false
		}
		return ir.Const{Value: floorDiv(ln, rn), Typ: lc.Typ}, true
	case ir.OpMod:
		if rn == 0 {
			return nil, false
		}
		return ir.Const{Value: floorMod(ln, rn), Typ: lc.Typ}, true
	case ir.OpLt:
		return ir.Const{Value: ln < rn, Typ: ir.Scalar{Kind: ir.ScalarBool}}, true
	case ir.OpGt:
		return ir.Const{Value: ln > rn, Typ: ir.Scalar{Kind: ir.ScalarBool}}, true
	case ir.OpLe:
		return ir.Const{Value: ln <= rn, Typ: ir.Scalar{Kind: ir.ScalarBool}}, true
	case ir.OpGe:
		return ir.Const{Value: ln >= rn, Typ: ir.Scalar{Kind: ir.ScalarBool}}, true
	case ir.OpEq:
		return ir.Const{Value: ln == rn, Typ: ir.Scalar{Kind: ir.ScalarBool}}, true
	}
	return nil, false
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func floorMod(a, b int64) int64 {
	m := a % b
	if m != 0 && ((a < 0) != (b < 0)) {
		m += b
	}
	return m
}

// applyIdentity implements `x+0`, `0+x`, `x-0`, `x·1`, `1·x`, `x·0`, `x/1`,
// `x%1 ↦ 0` (spec.md §4.4).
func applyIdentity(op ir.BinOpKind, lhs, rhs ir.Expr) (ir.Expr, bool) {
	switch op {
	case ir.OpAdd:
		if isZero(rhs) {
			return lhs, true
		}
		if isZero(lhs) {
			return rhs, true
		}
	case ir.OpSub:
		if isZero(rhs) {
			return lhs, true
		}
	case ir.OpMul:
		if isOne(rhs) {
			return lhs, true
		}
		if isOne(lhs) {
			return rhs, true
		}
		if isZero(rhs) || isZero(lhs) {
			return ir.Const{Value: int64(0), Typ: ir.Scalar{Kind: ir.ScalarIndex}}, true
		}
	case ir.OpDiv:
		if isOne(rhs) {
			return lhs, true
		}
	case ir.OpMod:
		if isOne(rhs) {
			return ir.Const{Value: int64(0), Typ: ir.Scalar{Kind: ir.ScalarIndex}}, true
		}
	}
	return nil, false
}

// foldModPlusDiv recognizes `N%K + K·(N/K) ↦ N` (and its commuted/reordered
// forms), spec.md §4.4.
func foldModPlusDiv(op ir.BinOpKind, lhs, rhs ir.Expr) (ir.Expr, bool) {
	if op != ir.OpAdd {
		return nil, false
	}
	if n, ok := matchModPlusDiv(lhs, rhs); ok {
		return n, true
	}
	if n, ok := matchModPlusDiv(rhs, lhs); ok {
		return n, true
	}
	return nil, false
}

// matchModPlusDiv checks whether a is `N%K` and b is `K·(N/K)` (or
// `(N/K)·K`), returning N.
func matchModPlusDiv(a, b ir.Expr) (ir.Expr, bool) {
	mod, ok := a.(ir.BinOp)
	if !ok || mod.Op != ir.OpMod {
		return nil, false
	}
	mul, ok := b.(ir.BinOp)
	if !ok || mul.Op != ir.OpMul {
		return nil, false
	}
	var div ir.BinOp
	var divOK bool
	if d, ok := mul.Lhs.(ir.BinOp); ok && d.Op == ir.OpDiv && ir.ExprEqual(mul.Rhs, mod.Rhs) {
		div, divOK = d, true
	} else if d, ok := mul.Rhs.(ir.BinOp); ok && d.Op == ir.OpDiv && ir.ExprEqual(mul.Lhs, mod.Rhs) {
		div, divOK = d, true
	}
	if !divOK {
		return nil, false
	}
	if !ir.ExprEqual(div.Rhs, mod.Rhs) || !ir.ExprEqual(div.Lhs, mod.Lhs) {
		return nil, false
	}
	return mod.Lhs, true
}

func isZero(e ir.Expr) bool {
	c, ok := e.(ir.Const)
	if !ok {
		return false
	}
	n, ok := asInt(c.Value)
	return ok && n == 0
}

func isOne(e ir.Expr) bool {
	c, ok := e.(ir.Const)
	if !ok {
		return false
	}
	n, ok := asInt(c.Value)
	return ok && n == 1
}

func cloneEq(eq map[string]ir.Expr) map[string]ir.Expr {
	out := make(map[string]ir.Expr, len(eq)+1)
	for k, v := range eq {
		out[k] = v
	}
	return out
}
