package ir

// ScalarKind enumerates the base numeric kinds spec.md §3.1 names. Precision
// and concrete memory-space declarations are left to the (out-of-scope)
// numeric-type front end; the core only needs to distinguish these kinds for
// arity/assignability checks.
type ScalarKind int

const (
	ScalarReal ScalarKind = iota
	ScalarIndex
	ScalarSize
	ScalarBool
)

func (k ScalarKind) String() string {
	switch k {
	case ScalarReal:
		return "real"
	case ScalarIndex:
		return "index"
	case ScalarSize:
		return "size"
	case ScalarBool:
		return "bool"
	default:
		return "?scalar"
	}
}

// Type is the sum described in spec.md §3.1: a scalar, a Tensor, or a
// Window. Implementations are exhaustively switched on by callers; there is
// no visitor indirection since every use site is a single pass over one
// value.
type Type interface {
	isType()
	String() string
}

// Scalar is a bare numeric/boolean type.
type Scalar struct{ Kind ScalarKind }

func (Scalar) isType() {}
func (s Scalar) String() string { return s.Kind.String() }

// Tensor is Tensor(shape, is_window, element) from spec.md §3.1. Element is
// always a Scalar (invariant enforced by NewTensor).
type Tensor struct {
	Shape    []Expr
	IsWindow bool
	Element  Scalar
}

// NewTensor builds a Tensor over a copy of shape. The element parameter is
// typed Scalar, so the scalar-element invariant holds by construction.
func NewTensor(shape []Expr, element Scalar) Tensor {
	return Tensor{Shape: append([]Expr(nil), shape...), Element: element}
}

func (Tensor) isType() {}
func (t Tensor) String() string {
	s := "["
	for i, e := range t.Shape {
		if i > 0 {
			s += ","
		}
		s += e.String()
	}
	return s + "]" + t.Element.String()
}

// Rank returns the tensor's declared dimensionality.
func (t Tensor) Rank() int { return len(t.Shape) }

// Access is one entry of a Window's per-dimension access list: either a
// Point (collapses the dimension) or an Interval (keeps it, offset).
type Access struct {
	IsInterval bool
	Point      Expr // valid when !IsInterval
	Lo, Hi     Expr // valid when IsInterval
}

// Window is Window(base_type, as_tensor_type, src_buffer, access_list) from
// spec.md §3.1. The invariant "access list length equals source rank" is
// enforced by NewWindow.
type Window struct {
	Base      ScalarKind
	AsTensor  Tensor
	SrcBuffer Symbol
	Access    []Access
}

func NewWindow(base ScalarKind, srcBuffer Symbol, srcRank int, access []Access) Window {
	if len(access) != srcRank {
		panicInvariant("window access list length %d does not match source rank %d", len(access), srcRank)
	}
	var shape []Expr
	for _, a := range access {
		if a.IsInterval {
			shape = append(shape, BinOp{Op: OpSub, Lhs: a.Hi, Rhs: a.Lo, Typ: Scalar{Kind: ScalarIndex}})
		}
	}
	return Window{Base: base, AsTensor: NewTensor(shape, Scalar{Kind: base}), SrcBuffer: srcBuffer, Access: append([]Access(nil), access...)}
}

func (Window) isType() {}
func (w Window) String() string { return "window(" + w.SrcBuffer.String() + ")" }

// ElementType returns the scalar element type underlying any Type (a bare
// Scalar is its own element type).
func ElementType(t Type) Scalar {
	switch v := t.(type) {
	case Scalar:
		return v
	case Tensor:
		return v.Element
	case Window:
		return v.AsTensor.Element
	default:
		panicInvariant("unknown type variant %T", t)
		return Scalar{}
	}
}

// RankOf returns the indexing arity of a Type (0 for a Scalar).
func RankOf(t Type) int {
	switch v := t.(type) {
	case Scalar:
		return 0
	case Tensor:
		return v.Rank()
	case Window:
		return len(v.Access)
	default:
		panicInvariant("unknown type variant %T", t)
		return 0
	}
}
