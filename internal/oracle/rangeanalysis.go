package oracle

import "github.com/exo-lang/loopsched/internal/ir"

// Interval is an inclusive-lower, exclusive-upper integer range, or the
// unknown interval when either bound cannot be determined (spec.md §4.4
// "Range analysis (external)... returns an interval or unknown").
type Interval struct {
	Known  bool
	Lo, Hi int64 // meaningful only when Known; half-open [Lo, Hi)
}

// Unknown is the zero-information interval.
var Unknown = Interval{}

// Env maps in-scope symbols to their known interval, threaded down the tree
// by Seq (iterator ranges [lo,hi)) and accumulated by the caller.
type Env map[int64]Interval

// Child returns a copy of e with sym bound to iv, leaving e untouched.
func (e Env) Child(sym ir.Symbol, iv Interval) Env {
	out := make(Env, len(e)+1)
	for k, v := range e {
		out[k] = v
	}
	out[sym.Tag] = iv
	return out
}

// RangeOf estimates the interval of e under env, conservatively returning
// Unknown whenever the shape isn't one this reference analysis recognizes
// (spec.md §9 "a first implementation may answer conservatively").
func RangeOf(e ir.Expr, env Env) Interval {
	switch v := e.(type) {
	case ir.Const:
		n, ok := asInt(v.Value)
		if !ok {
			return Unknown
		}
		return Interval{Known: true, Lo: n, Hi: n + 1}
	case ir.Read:
		if len(v.Idx) > 0 {
			return Unknown
		}
		if iv, ok := env[v.Sym.Tag]; ok {
			return iv
		}
		return Unknown
	case ir.USub:
		inner := RangeOf(v.Arg, env)
		if !inner.Known {
			return Unknown
		}
		return Interval{Known: true, Lo: -(inner.Hi - 1), Hi: -(inner.Lo - 1)}
	case ir.BinOp:
		return rangeOfBinOp(v, env)
	default:
		return Unknown
	}
}

func rangeOfBinOp(b ir.BinOp, env Env) Interval {
	l, r := RangeOf(b.Lhs, env), RangeOf(b.Rhs, env)
	if !l.Known || !r.Known {
		return Unknown
	}
	switch b.Op {
	case ir.OpAdd:
		return Interval{Known: true, Lo: l.Lo + r.Lo, Hi: l.Hi - 1 + r.Hi - 1 + 1}
	case ir.OpSub:
		return Interval{Known: true, Lo: l.Lo - (r.Hi - 1), Hi: (l.Hi - 1) - r.Lo + 1}
	case ir.OpMul:
		if r.Lo == r.Hi-1 && r.Lo >= 0 {
			k := r.Lo
			return Interval{Known: true, Lo: l.Lo * k, Hi: (l.Hi-1)*k + 1}
		}
		return Unknown
	case ir.OpMod:
		if r.Lo == r.Hi-1 && r.Lo > 0 {
			return Interval{Known: true, Lo: 0, Hi: r.Lo}
		}
		return Unknown
	default:
		return Unknown
	}
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

// IsPositive reports whether RangeOf proves e >= 1 under env.
func IsPositive(e ir.Expr, env Env) bool {
	iv := RangeOf(e, env)
	return iv.Known && iv.Lo >= 1
}

// FitsWithin reports whether RangeOf proves 0 <= e < bound under env.
func FitsWithin(e ir.Expr, bound int64, env Env) bool {
	iv := RangeOf(e, env)
	return iv.Known && iv.Lo >= 0 && iv.Hi <= bound
}
