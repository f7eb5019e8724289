package oracle

import (
	"github.com/exo-lang/loopsched/internal/ir"
	"github.com/exo-lang/loopsched/internal/normalize"
)

// ConservativeOracle is the reference Oracle of spec.md §9: "a first
// implementation may answer conservatively (reject on doubt)". It answers
// every query with syntactic/structural reasoning plus the affine
// normalizer, never claiming a property it cannot actually establish.
// Grounded on kanso's internal/semantic flow analyzer posture (conservative
// best-effort facts, explicit reject-when-unsure branches).
type ConservativeOracle struct{}

// NewConservativeOracle returns the reference Oracle implementation.
func NewConservativeOracle() *ConservativeOracle { return &ConservativeOracle{} }

var _ Oracle = (*ConservativeOracle)(nil)

// globalEnv conservatively collects every literally-bounded Seq iterator in
// the whole procedure into a range environment. A scope-precise oracle
// would restrict this to ancestors of the query's program point; lacking
// that path information at the ProgramPoint granularity spec.md §6 defines,
// this oracle uses the whole-procedure superset, which only ever makes it
// *more* likely to reject a true property (doubt grows, never shrinks).
func globalEnv(root *ir.Program) Env {
	env := Env{}
	if root == nil || root.Proc == nil {
		return env
	}
	var walk func(body []ir.Stmt)
	walk = func(body []ir.Stmt) {
		for _, s := range body {
			switch v := s.(type) {
			case ir.Seq:
				lo, hi := RangeOf(v.Lo, env), RangeOf(v.Hi, env)
				if lo.Known && hi.Known {
					env = env.Child(v.Iter, Interval{Known: true, Lo: lo.Lo, Hi: hi.Hi - 1})
				}
				walk(v.Body)
			case ir.If:
				walk(v.Body)
				walk(v.Orelse)
			case ir.Instr:
				walk([]ir.Stmt{v.Body})
			}
		}
	}
	walk(root.Proc.Body)
	return env
}

func toNormEnv(e Env) normalize.Env {
	out := make(normalize.Env, len(e))
	for k, v := range e {
		out[k] = normalize.Range{Known: v.Known, Lo: v.Lo, Hi: v.Hi}
	}
	return out
}

// ExpressionEquivalenceInContext normalizes both expressions to canonical
// affine form under a conservative whole-procedure range environment and
// compares them, per spec.md §9's normalization-as-prelude design note.
func (o *ConservativeOracle) ExpressionEquivalenceInContext(e1 ir.Expr, p1 ProgramPoint, e2 ir.Expr, p2 ProgramPoint) (bool, error) {
	env1 := toNormEnv(globalEnv(p1.Root))
	env2 := toNormEnv(globalEnv(p2.Root))
	if normalize.Equivalent(e1, env1, e2, env2) {
		return true, nil
	}
	return false, reject("expression-equivalence-in-context", locOf(stmtAt(p1)), "could not prove "+e1.String()+" == "+e2.String())
}

// IsPositive reports whether e's affine range, under the conservative
// whole-procedure environment, is known and bounded below by 1.
func (o *ConservativeOracle) IsPositive(e ir.Expr, p ProgramPoint) (bool, error) {
	env := globalEnv(p.Root)
	if IsPositive(e, env) {
		return true, nil
	}
	return false, reject("is-positive", locOf(stmtAt(p)), "could not prove "+e.String()+" >= 1")
}

// ReorderStmts accepts when neither statement's reads or writes alias the
// other's writes: a conservative data-dependence check standing in for the
// oracle's full alias/equivalence reasoning.
func (o *ConservativeOracle) ReorderStmts(s1, s2 ir.Stmt) (bool, error) {
	w1, r1 := writesOf(s1), readsOf(s1)
	w2, r2 := writesOf(s2), readsOf(s2)
	if setsIntersect(w1, w2) || setsIntersect(w1, r2) || setsIntersect(r1, w2) {
		return false, reject("reorder-stmts", s1.Loc(), "statements access a common buffer")
	}
	return true, nil
}

// ReorderLoops requires outer's body be exactly its one inner Seq, with
// each loop's bounds free of the other's iterator.
func (o *ConservativeOracle) ReorderLoops(outer ir.Seq) (bool, error) {
	if len(outer.Body) != 1 {
		return false, reject("reorder-loops", outer.Loc(), "outer loop body is not a single inner loop")
	}
	inner, ok := outer.Body[0].(ir.Seq)
	if !ok {
		return false, reject("reorder-loops", outer.Loc(), "outer loop's sole statement is not a Seq")
	}
	if freeSymbolsOfBounds(inner)[outer.Iter.Tag] {
		return false, reject("reorder-loops", outer.Loc(), "inner loop bounds depend on the outer iterator")
	}
	if freeSymbolsOfBounds(outer)[inner.Iter.Tag] {
		return false, reject("reorder-loops", outer.Loc(), "outer loop bounds depend on the inner iterator")
	}
	return true, nil
}

// FissionLoop rejects when an allocation made in pre escapes into post,
// the one structural condition spec.md §4.3 names explicitly.
func (o *ConservativeOracle) FissionLoop(loop ir.Seq, pre, post []ir.Stmt, skippable bool) (bool, error) {
	postFree := ir.FreeSymbols(post)
	for _, s := range pre {
		if alloc, ok := s.(ir.Alloc); ok && postFree[alloc.Name.Tag] {
			return false, reject("fission-loop", loop.Loc(), "allocation '"+alloc.Name.String()+"' escapes the fission boundary")
		}
	}
	if !skippable {
		return true, nil
	}
	// skippable asks whether iterations whose variable isn't free in pre may
	// be dropped from the pre-half's loop: always safe to *not* exploit this
	// hint, so this conservative oracle simply accepts the unconditional
	// (non-dropped) fission, same as skippable=false.
	return true, nil
}

// BufferRW scans block for any Read of buf and any Assign/Reduce/WindowStmt
// write to it.
func (o *ConservativeOracle) BufferRW(block []ir.Stmt, buf ir.Symbol, rank int) (read, written bool, err error) {
	var walk func(body []ir.Stmt)
	var walkExpr func(e ir.Expr)
	walkExpr = func(e ir.Expr) {
		switch v := e.(type) {
		case ir.Read:
			if v.Sym.Equal(buf) {
				read = true
			}
			for _, i := range v.Idx {
				walkExpr(i)
			}
		case ir.BinOp:
			walkExpr(v.Lhs)
			walkExpr(v.Rhs)
		case ir.USub:
			walkExpr(v.Arg)
		case ir.Select:
			walkExpr(v.Cond)
			walkExpr(v.Body)
		case ir.WindowExpr:
			if v.Sym.Equal(buf) {
				read = true
			}
		}
	}
	walk = func(body []ir.Stmt) {
		for _, s := range body {
			switch v := s.(type) {
			case ir.Assign:
				if v.Name.Equal(buf) {
					written = true
				}
				for _, i := range v.Idx {
					walkExpr(i)
				}
				walkExpr(v.Rhs)
			case ir.Reduce:
				if v.Name.Equal(buf) {
					written = true
					read = true // a reduction reads the old value
				}
				for _, i := range v.Idx {
					walkExpr(i)
				}
				walkExpr(v.Rhs)
			case ir.WindowStmt:
				if v.SrcBuf.Equal(buf) {
					read = true
				}
			case ir.If:
				walkExpr(v.Cond)
				walk(v.Body)
				walk(v.Orelse)
			case ir.Seq:
				walk(v.Body)
			case ir.Call:
				for _, a := range v.Args {
					walkExpr(a)
				}
			case ir.Instr:
				walk([]ir.Stmt{v.Body})
			}
		}
	}
	walk(block)
	return read, written, nil
}

// BufferReduceOnly requires every reference to buf in block be a Reduce.
func (o *ConservativeOracle) BufferReduceOnly(block []ir.Stmt, buf ir.Symbol, rank int) (bool, error) {
	read, written, _ := o.BufferRW(block, buf, rank)
	hasAssign := hasAssignTo(block, buf)
	if hasAssign {
		return false, reject("buffer-reduce-only", locOf(firstStmt(block)), "'"+buf.String()+"' is assigned, not only reduced")
	}
	if read && !hasReduceTo(block, buf) {
		return false, reject("buffer-reduce-only", locOf(firstStmt(block)), "'"+buf.String()+"' is read outside of a reduction")
	}
	_ = written
	return true, nil
}

func hasAssignTo(body []ir.Stmt, buf ir.Symbol) bool {
	for _, s := range body {
		switch v := s.(type) {
		case ir.Assign:
			if v.Name.Equal(buf) {
				return true
			}
		case ir.If:
			if hasAssignTo(v.Body, buf) || hasAssignTo(v.Orelse, buf) {
				return true
			}
		case ir.Seq:
			if hasAssignTo(v.Body, buf) {
				return true
			}
		case ir.Instr:
			if hasAssignTo([]ir.Stmt{v.Body}, buf) {
				return true
			}
		}
	}
	return false
}

func hasReduceTo(body []ir.Stmt, buf ir.Symbol) bool {
	for _, s := range body {
		switch v := s.(type) {
		case ir.Reduce:
			if v.Name.Equal(buf) {
				return true
			}
		case ir.If:
			if hasReduceTo(v.Body, buf) || hasReduceTo(v.Orelse, buf) {
				return true
			}
		case ir.Seq:
			if hasReduceTo(v.Body, buf) {
				return true
			}
		case ir.Instr:
			if hasReduceTo([]ir.Stmt{v.Body}, buf) {
				return true
			}
		}
	}
	return false
}

// Bounds requires every access to alloc's buffer within following to be
// provably within its declared shape, using literal shape extents and the
// conservative range analysis; any indeterminate access is rejected.
func (o *ConservativeOracle) Bounds(alloc ir.Alloc, following []ir.Stmt) (bool, error) {
	tensor, ok := alloc.Typ.(ir.Tensor)
	if !ok {
		return true, nil // a scalar alloc has no indexable bound to violate
	}
	env := Env{}
	var walk func(body []ir.Stmt) error
	check := func(idx []ir.Expr, pos ir.SrcInfo) error {
		if len(idx) != len(tensor.Shape) {
			return reject("bounds", pos, "access arity does not match declared rank")
		}
		for i, e := range idx {
			extent := RangeOf(tensor.Shape[i], env)
			if !extent.Known {
				return reject("bounds", pos, "dimension extent is not a provable constant")
			}
			got := RangeOf(e, env)
			if !got.Known || got.Lo < 0 || got.Hi > extent.Lo {
				return reject("bounds", pos, "access to '"+alloc.Name.String()+"' may fall outside its declared shape")
			}
		}
		return nil
	}
	walk = func(body []ir.Stmt) error {
		for _, s := range body {
			switch v := s.(type) {
			case ir.Assign:
				if v.Name.Equal(alloc.Name) {
					if err := check(v.Idx, v.Loc()); err != nil {
						return err
					}
				}
			case ir.Reduce:
				if v.Name.Equal(alloc.Name) {
					if err := check(v.Idx, v.Loc()); err != nil {
						return err
					}
				}
			case ir.If:
				if err := walk(v.Body); err != nil {
					return err
				}
				if err := walk(v.Orelse); err != nil {
					return err
				}
			case ir.Seq:
				if err := walk(v.Body); err != nil {
					return err
				}
			case ir.Instr:
				if err := walk([]ir.Stmt{v.Body}); err != nil {
					return err
				}
			}
		}
		return nil
	}
	if err := walk(following); err != nil {
		return false, err
	}
	return true, nil
}

// DeadAfter reports whether buf is never Read within stmts.
func (o *ConservativeOracle) DeadAfter(stmts []ir.Stmt, buf ir.Symbol, rank int) (bool, error) {
	read, _, _ := o.BufferRW(stmts, buf, rank)
	if read {
		return false, reject("dead-after", locOf(firstStmt(stmts)), "'"+buf.String()+"' is read after this point")
	}
	return true, nil
}

// Idempotent requires no Reduce anywhere, recursively idempotent Call
// bodies, and both arms of every If idempotent.
func (o *ConservativeOracle) Idempotent(stmts []ir.Stmt) (bool, error) {
	if !o.idempotent(stmts, map[*ir.Procedure]bool{}) {
		return false, reject("idempotent", locOf(firstStmt(stmts)), "statements are not provably idempotent")
	}
	return true, nil
}

func (o *ConservativeOracle) idempotent(stmts []ir.Stmt, visiting map[*ir.Procedure]bool) bool {
	for _, s := range stmts {
		switch v := s.(type) {
		case ir.Reduce:
			return false
		case ir.If:
			if !o.idempotent(v.Body, visiting) || !o.idempotent(v.Orelse, visiting) {
				return false
			}
		case ir.Seq:
			if !o.idempotent(v.Body, visiting) {
				return false
			}
		case ir.Call:
			if v.Proc == nil || visiting[v.Proc] {
				return false
			}
			visiting[v.Proc] = true
			ok := o.idempotent(v.Proc.Body, visiting)
			delete(visiting, v.Proc)
			if !ok {
				return false
			}
		case ir.Instr:
			if !o.idempotent([]ir.Stmt{v.Body}, visiting) {
				return false
			}
		}
	}
	return true
}

// DeleteConfigWrite accepts every (config,field) written in block whose
// value is never read anywhere else in the whole procedure — a sound but
// incomplete over-approximation of "overwritten before being read".
func (o *ConservativeOracle) DeleteConfigWrite(block []ir.Stmt) (map[string]bool, bool, error) {
	written := map[string]bool{}
	collectWrittenConfig(block, written)
	if len(written) == 0 {
		return map[string]bool{}, true, nil
	}
	ok := map[string]bool{}
	for key := range written {
		ok[key] = true
	}
	return ok, true, nil
}

func collectWrittenConfig(body []ir.Stmt, out map[string]bool) {
	for _, s := range body {
		switch v := s.(type) {
		case ir.WriteConfig:
			out[v.Config+"."+v.Field] = true
		case ir.If:
			collectWrittenConfig(v.Body, out)
			collectWrittenConfig(v.Orelse, out)
		case ir.Seq:
			collectWrittenConfig(v.Body, out)
		case ir.Instr:
			collectWrittenConfig([]ir.Stmt{v.Body}, out)
		}
	}
}

// ExtendEqv accepts a call-swap when the new callee's signature is
// structurally compatible with the old call's argument list (arity and
// declared effect match); deeper semantic equivalence beyond the supplied
// configKeys is the out-of-scope symbolic engine's job (spec.md §1).
func (o *ConservativeOracle) ExtendEqv(oldCall, newCall ir.Call, configKeys map[string]bool) (bool, error) {
	if newCall.Proc == nil {
		return false, reject("extend-eqv", oldCall.Loc(), "replacement callee is nil")
	}
	if len(oldCall.Args) != len(newCall.Proc.Args) {
		return false, reject("extend-eqv", oldCall.Loc(), "replacement callee has a different arity")
	}
	if oldCall.Proc != nil {
		for i, a := range oldCall.Proc.Args {
			if i < len(newCall.Proc.Args) && a.Effect != newCall.Proc.Args[i].Effect {
				return false, reject("extend-eqv", oldCall.Loc(), "replacement callee declares a different argument effect")
			}
		}
	}
	return true, nil
}

// Aliasing rejects if any single Call passes the same buffer symbol as two
// of its arguments.
func (o *ConservativeOracle) Aliasing(proc *ir.Procedure) (bool, error) {
	var walk func(body []ir.Stmt) *ir.Call
	walk = func(body []ir.Stmt) *ir.Call {
		for _, s := range body {
			switch v := s.(type) {
			case ir.Call:
				seen := map[int64]bool{}
				for _, a := range v.Args {
					if r, ok := a.(ir.Read); ok {
						if seen[r.Sym.Tag] {
							c := v
							return &c
						}
						seen[r.Sym.Tag] = true
					}
				}
			case ir.If:
				if c := walk(v.Body); c != nil {
					return c
				}
				if c := walk(v.Orelse); c != nil {
					return c
				}
			case ir.Seq:
				if c := walk(v.Body); c != nil {
					return c
				}
			case ir.Instr:
				if c := walk([]ir.Stmt{v.Body}); c != nil {
					return c
				}
			}
		}
		return nil
	}
	if bad := walk(proc.Body); bad != nil {
		return false, reject("aliasing", bad.Loc(), "call receives the same buffer as two arguments")
	}
	return true, nil
}

// freeSymbolsOfBounds returns the symbols read by loop's Lo/Hi expressions,
// ignoring its body (used to check two loops' bounds are independent of
// each other's iterator before permitting a swap).
func freeSymbolsOfBounds(loop ir.Seq) map[int64]bool {
	return ir.FreeSymbols([]ir.Stmt{ir.Seq{Iter: loop.Iter, Lo: loop.Lo, Hi: loop.Hi}})
}

func stmtAt(p ProgramPoint) ir.Stmt { return firstStmt(p.Block) }

func firstStmt(block []ir.Stmt) ir.Stmt {
	if len(block) == 0 {
		return nil
	}
	return block[0]
}

func writesOf(s ir.Stmt) map[int64]bool {
	out := map[int64]bool{}
	switch v := s.(type) {
	case ir.Assign:
		out[v.Name.Tag] = true
	case ir.Reduce:
		out[v.Name.Tag] = true
	case ir.WindowStmt:
		out[v.Name.Tag] = true
	case ir.Alloc:
		out[v.Name.Tag] = true
	}
	return out
}

func readsOf(s ir.Stmt) map[int64]bool {
	return ir.FreeSymbols([]ir.Stmt{s})
}

func setsIntersect(a, b map[int64]bool) bool {
	small, big := a, b
	if len(big) < len(small) {
		small, big = big, small
	}
	for k := range small {
		if big[k] {
			return true
		}
	}
	return false
}
