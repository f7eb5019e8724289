package main

import "github.com/exo-lang/loopsched/internal/ir"

// examples is the small built-in library of procedures the CLI/REPL load
// by name. Surface-syntax parsing is out of scope (spec.md §1 describes
// the core only by the interface it consumes), so these are hand-built
// the same way internal/ir's own tests construct trees: directly as
// struct literals, never through a parser.
var examples = map[string]func() *ir.Procedure{
	"copy":   copyProc,
	"matmul": matmulProc,
}

var idx = ir.Scalar{Kind: ir.ScalarIndex}
var real = ir.Scalar{Kind: ir.ScalarReal}

func read(s ir.Symbol, i ...ir.Expr) ir.Read { return ir.Read{Sym: s, Idx: i, Typ: real} }

// copyProc is `for i in 0:n: dst[i] = src[i]`.
func copyProc() *ir.Procedure {
	n := ir.Symbol{Name: "n", Tag: 1}
	src := ir.Symbol{Name: "src", Tag: 2}
	dst := ir.Symbol{Name: "dst", Tag: 3}
	i := ir.Symbol{Name: "i", Tag: 4}

	return &ir.Procedure{
		Name: "copy",
		Args: []ir.Argument{
			{Sym: n, Typ: idx, Effect: ir.In},
			{Sym: src, Typ: ir.NewTensor([]ir.Expr{ir.Read{Sym: n, Typ: idx}}, real), Mem: ir.DefaultMemSpace, Effect: ir.In},
			{Sym: dst, Typ: ir.NewTensor([]ir.Expr{ir.Read{Sym: n, Typ: idx}}, real), Mem: ir.DefaultMemSpace, Effect: ir.Out},
		},
		Body: []ir.Stmt{
			ir.Seq{
				Iter: i,
				Lo:   ir.Const{Value: int64(0), Typ: idx},
				Hi:   read(n),
				Body: []ir.Stmt{
					ir.Assign{Name: dst, Idx: []ir.Expr{read(i)}, Rhs: read(src, read(i))},
				},
			},
		},
	}
}

// matmulProc is the classic triple-nested `for i: for j: for k: c[i,j] +=
// a[i,k]*b[k,j]`, the shape every loop-reshaping directive (split, fuse,
// reorder, unroll) demonstrates most naturally against.
func matmulProc() *ir.Procedure {
	m := ir.Symbol{Name: "M", Tag: 1}
	n := ir.Symbol{Name: "N", Tag: 2}
	k := ir.Symbol{Name: "K", Tag: 3}
	a := ir.Symbol{Name: "a", Tag: 4}
	b := ir.Symbol{Name: "b", Tag: 5}
	c := ir.Symbol{Name: "c", Tag: 6}
	ii := ir.Symbol{Name: "i", Tag: 7}
	jj := ir.Symbol{Name: "j", Tag: 8}
	kk := ir.Symbol{Name: "k", Tag: 9}

	return &ir.Procedure{
		Name: "matmul",
		Args: []ir.Argument{
			{Sym: m, Typ: idx, Effect: ir.In},
			{Sym: n, Typ: idx, Effect: ir.In},
			{Sym: k, Typ: idx, Effect: ir.In},
			{Sym: a, Typ: ir.NewTensor([]ir.Expr{read(m), read(k)}, real), Effect: ir.In},
			{Sym: b, Typ: ir.NewTensor([]ir.Expr{read(k), read(n)}, real), Effect: ir.In},
			{Sym: c, Typ: ir.NewTensor([]ir.Expr{read(m), read(n)}, real), Effect: ir.Out},
		},
		Body: []ir.Stmt{
			ir.Seq{Iter: ii, Lo: ir.Const{Value: int64(0), Typ: idx}, Hi: read(m), Body: []ir.Stmt{
				ir.Seq{Iter: jj, Lo: ir.Const{Value: int64(0), Typ: idx}, Hi: read(n), Body: []ir.Stmt{
					ir.Seq{Iter: kk, Lo: ir.Const{Value: int64(0), Typ: idx}, Hi: read(k), Body: []ir.Stmt{
						ir.Reduce{Name: c, Idx: []ir.Expr{read(ii), read(jj)}, Rhs: ir.BinOp{
							Op: ir.OpMul, Lhs: read(a, read(ii), read(kk)), Rhs: read(b, read(kk), read(jj)), Typ: real,
						}},
					}},
				}},
			}},
		},
	}
}
