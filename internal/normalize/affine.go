// Package normalize implements the index canonicalizer and algebraic
// simplifier of spec.md §4.4: an affine-index canonical form used both as
// standalone directives (`simplify`) and as an internal prelude several
// rewrites (lift-constant, stage-memory, loop fusion) rely on for syntactic
// equality of index expressions (spec.md §9 "Normalization-as-prelude").
//
// Grounded on spec.md §4.4 verbatim and on
// original_source/src/exo/LoopIR_scheduling.py's index-simplification
// helpers (DoSimplify's AffineExpr), organized as a pipeline of independent,
// re-runnable passes the way kanso's internal/ir/optimizations.go structures
// ConstantFolding/DeadCodeElimination.
package normalize

import (
	"fmt"
	"sort"

	"github.com/exo-lang/loopsched/internal/ir"
)

// term is one atom of the canonical form: either a bare scalar symbol, or an
// opaque sub-expression the canonicalizer could not distribute further (a
// Read with indices, a product of two non-constant factors, and so on).
type term struct {
	sym    ir.Symbol
	opaque ir.Expr
}

func (t term) key() string {
	if t.opaque != nil {
		return "~" + t.opaque.String()
	}
	return "$" + t.sym.String()
}

// Affine is the canonical form of spec.md §4.4: `c0 + Σ ci·termi`, integer
// coefficients over a set of atoms, in a representation stable under
// negation, subtraction and scaling.
type Affine struct {
	Const int64
	coefs map[string]int64
	atoms map[string]term
}

func zero() Affine { return Affine{coefs: map[string]int64{}, atoms: map[string]term{}} }

func fromConst(c int64) Affine {
	a := zero()
	a.Const = c
	return a
}

func fromTerm(t term) Affine {
	a := zero()
	a.coefs[t.key()] = 1
	a.atoms[t.key()] = t
	return a
}

func (a Affine) clone() Affine {
	out := Affine{Const: a.Const, coefs: make(map[string]int64, len(a.coefs)), atoms: make(map[string]term, len(a.atoms))}
	for k, v := range a.coefs {
		out.coefs[k] = v
	}
	for k, v := range a.atoms {
		out.atoms[k] = v
	}
	return out
}

func (a Affine) add(b Affine) Affine {
	out := a.clone()
	out.Const += b.Const
	for k, c := range b.coefs {
		out.coefs[k] += c
		out.atoms[k] = b.atoms[k]
		if out.coefs[k] == 0 {
			delete(out.coefs, k)
			delete(out.atoms, k)
		}
	}
	return out
}

func (a Affine) neg() Affine {
	out := a.clone()
	out.Const = -out.Const
	for k := range out.coefs {
		out.coefs[k] = -out.coefs[k]
	}
	return out
}

func (a Affine) scale(k int64) Affine {
	if k == 0 {
		return zero()
	}
	out := a.clone()
	out.Const *= k
	for key := range out.coefs {
		out.coefs[key] *= k
	}
	return out
}

// isConst reports whether the affine form carries no symbolic terms.
func (a Affine) isConst() bool { return len(a.coefs) == 0 }

// coeffOf returns the coefficient an affine form assigns to sym, 0 if absent.
func (a Affine) coeffOf(sym ir.Symbol) int64 {
	return a.coefs[term{sym: sym}.key()]
}

// Equal reports whether two affine forms are the identical linear
// combination: this is the equality test lift-constant, fission-loop and
// fuse-loops all rely on for "same index expression" (spec.md §9).
func (a Affine) Equal(b Affine) bool {
	if a.Const != b.Const || len(a.coefs) != len(b.coefs) {
		return false
	}
	for k, c := range a.coefs {
		if b.coefs[k] != c {
			return false
		}
	}
	return true
}

// allDivisibleBy reports whether every coefficient and the constant term of
// a are multiples of k, the precondition for distributing `/`/`%` over the
// whole affine form (spec.md §4.4).
func allDivisibleBy(a Affine, k int64) bool {
	if a.Const%k != 0 {
		return false
	}
	for _, c := range a.coefs {
		if c%k != 0 {
			return false
		}
	}
	return true
}

// Env supplies a conservative [lo, hi) bound for in-scope symbols, the
// "auxiliary range analysis" spec.md §4.4 calls for when eliding a
// non-divisible remainder under a `/` or `%`. The normalizer owns a minimal
// copy of this analysis (rather than importing internal/oracle, which
// itself builds on this package) so the two range analyses — the oracle's
// and the prelude's — can evolve independently, per spec.md §4.4's
// "Range analysis (external)" being usable by more than one caller.
type Env map[int64]Range

// Range is an inclusive-lower, exclusive-upper bound, or Unknown.
type Range struct {
	Known  bool
	Lo, Hi int64
}

var Unknown = Range{}

func (e Env) bind(sym ir.Symbol, r Range) Env {
	out := make(Env, len(e)+1)
	for k, v := range e {
		out[k] = v
	}
	out[sym.Tag] = r
	return out
}

// rangeOfAffine estimates [lo, hi) for a canonical form given bounds on its
// free symbols; unknown as soon as any contributing term is unbounded.
func rangeOfAffine(a Affine, env Env) Range {
	lo, maxIncl := a.Const, a.Const
	for key, c := range a.coefs {
		t := a.atoms[key]
		var r Range
		if t.opaque != nil {
			r = Unknown
		} else if iv, ok := env[t.sym.Tag]; ok {
			r = iv
		} else {
			r = Unknown
		}
		if !r.Known {
			return Unknown
		}
		termLo, termHi := r.Lo*c, (r.Hi-1)*c
		if termLo > termHi {
			termLo, termHi = termHi, termLo
		}
		lo += termLo
		maxIncl += termHi
	}
	return Range{Known: true, Lo: lo, Hi: maxIncl + 1}
}

// Normalize lowers e into canonical affine form under env, per spec.md
// §4.4: negation/subtraction/scaling distribute into the mapping; `/`/`%`
// by a constant distribute when every coefficient (and the constant) is a
// multiple of the divisor, otherwise the dividend is split into a divisible
// and non-divisible part, the latter bounded via env and elided when its
// magnitude provably stays under the divisor.
func Normalize(e ir.Expr, env Env) Affine {
	switch v := e.(type) {
	case ir.Const:
		if n, ok := asInt(v.Value); ok {
			return fromConst(n)
		}
		return fromTerm(term{opaque: e})
	case ir.Read:
		if len(v.Idx) == 0 {
			return fromTerm(term{sym: v.Sym})
		}
		return fromTerm(term{opaque: e})
	case ir.USub:
		return Normalize(v.Arg, env).neg()
	case ir.BinOp:
		return normalizeBinOp(v, env)
	default:
		return fromTerm(term{opaque: e})
	}
}

func normalizeBinOp(b ir.BinOp, env Env) Affine {
	switch b.Op {
	case ir.OpAdd:
		return Normalize(b.Lhs, env).add(Normalize(b.Rhs, env))
	case ir.OpSub:
		return Normalize(b.Lhs, env).add(Normalize(b.Rhs, env).neg())
	case ir.OpMul:
		l, r := Normalize(b.Lhs, env), Normalize(b.Rhs, env)
		if r.isConst() {
			return l.scale(r.Const)
		}
		if l.isConst() {
			return r.scale(l.Const)
		}
		return fromTerm(term{opaque: b})
	case ir.OpDiv:
		return normalizeDiv(b, env)
	case ir.OpMod:
		return normalizeMod(b, env)
	default:
		return fromTerm(term{opaque: b})
	}
}

func normalizeDiv(b ir.BinOp, env Env) Affine {
	dividend := Normalize(b.Lhs, env)
	k, ok := constOf(b.Rhs)
	if !ok || k <= 1 {
		return fromTerm(term{opaque: b})
	}
	if allDivisibleBy(dividend, k) {
		return dividend.divideExact(k)
	}
	divisible, residual := splitDivisible(dividend, k)
	residualRange := rangeOfAffine(residual, env)
	if residualRange.Known && residualRange.Lo >= 0 && residualRange.Hi <= k {
		// The non-divisible remainder provably can't push the division
		// over a boundary: elide it entirely.
		return divisible.divideExact(k)
	}
	if residualRange.Known && residualRange.Lo >= -(k-1) && residualRange.Hi <= 0 {
		return divisible.divideExact(k).add(fromConst(-1))
	}
	return fromTerm(term{opaque: b})
}

func normalizeMod(b ir.BinOp, env Env) Affine {
	dividend := Normalize(b.Lhs, env)
	k, ok := constOf(b.Rhs)
	if !ok || k <= 1 {
		return fromTerm(term{opaque: b})
	}
	if allDivisibleBy(dividend, k) {
		return fromConst(0)
	}
	divisible, residual := splitDivisible(dividend, k)
	_ = divisible
	residualRange := rangeOfAffine(residual, env)
	if residualRange.Known && residualRange.Lo >= 0 && residualRange.Hi <= k {
		return residual
	}
	return fromTerm(term{opaque: b})
}

// divideExact divides every coefficient and the constant by k, valid only
// when allDivisibleBy(a, k) has already been checked by the caller.
func (a Affine) divideExact(k int64) Affine {
	out := zero()
	out.Const = a.Const / k
	for key, c := range a.coefs {
		out.coefs[key] = c / k
		out.atoms[key] = a.atoms[key]
	}
	return out
}

// splitDivisible partitions a's terms (and constant) into the part whose
// coefficients are all multiples of k and the remainder, per spec.md §4.4
// "attempt to split the dividend into divisible and non-divisible parts".
func splitDivisible(a Affine, k int64) (divisible, residual Affine) {
	divisible, residual = zero(), zero()
	divisible.Const = (a.Const / k) * k
	residual.Const = a.Const - divisible.Const
	for key, c := range a.coefs {
		if c%k == 0 {
			divisible.coefs[key] = c
			divisible.atoms[key] = a.atoms[key]
		} else {
			residual.coefs[key] = c
			residual.atoms[key] = a.atoms[key]
		}
	}
	return divisible, residual
}

func constOf(e ir.Expr) (int64, bool) {
	c, ok := e.(ir.Const)
	if !ok {
		return 0, false
	}
	return asInt(c.Value)
}

func asInt(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}

// Denorm writes an affine form back to IR as the spec's canonical order:
// "the constant followed by ±coeff·sym terms in deterministic order."
// typ is the index/size scalar type stamped on every synthesized node.
func Denorm(a Affine, typ ir.Scalar) ir.Expr {
	return denorm(a, typ)
}

func denorm(a Affine, typ ir.Scalar) ir.Expr {
	keys := make([]string, 0, len(a.coefs))
	for k := range a.coefs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var result ir.Expr
	if a.Const != 0 || len(keys) == 0 {
		result = ir.Const{Value: a.Const, Typ: typ}
	}
	for _, k := range keys {
		c := a.coefs[k]
		t := a.atoms[k]
		var atomExpr ir.Expr
		if t.opaque != nil {
			atomExpr = t.opaque
		} else {
			atomExpr = ir.Read{Sym: t.sym, Typ: typ}
		}
		var term ir.Expr = atomExpr
		if c != 1 {
			absC := c
			if absC < 0 {
				absC = -absC
			}
			term = ir.BinOp{Op: ir.OpMul, Lhs: ir.Const{Value: absC, Typ: typ}, Rhs: atomExpr, Typ: typ}
		}
		if result == nil {
			if c < 0 {
				result = ir.USub{Arg: term}
			} else {
				result = term
			}
			continue
		}
		if c < 0 {
			result = ir.BinOp{Op: ir.OpSub, Lhs: result, Rhs: term, Typ: typ}
		} else {
			result = ir.BinOp{Op: ir.OpAdd, Lhs: result, Rhs: term, Typ: typ}
		}
	}
	return result
}

// Equivalent reports whether two expressions, evaluated at possibly
// different program points but under compatible environments, normalize to
// the identical affine form — the syntactic half of the conservative
// oracle's expression-equivalence-in-context query (spec.md §4.2), and the
// direct implementation of the "uniform pre-pass" spec.md §9 describes.
func Equivalent(e1 ir.Expr, env1 Env, e2 ir.Expr, env2 Env) bool {
	return Normalize(e1, env1).Equal(Normalize(e2, env2))
}

func (a Affine) String() string {
	return fmt.Sprintf("%+d%v", a.Const, a.coefs)
}
