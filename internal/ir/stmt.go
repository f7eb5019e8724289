package ir

// Stmt is the tagged-variant statement sum of spec.md §3.1. Every variant
// carries a SrcInfo (Loc()); blocks are plain []Stmt slices — "Block" and
// "Gap" in the GLOSSARY are cursor-layer concepts over these slices, not IR
// types of their own.
type Stmt interface {
	isStmt()
	Loc() SrcInfo
	String() string
}

type base struct{ Src SrcInfo }

func (b base) Loc() SrcInfo { return b.Src }

// Assign is `name[idx] = rhs`.
type Assign struct {
	base
	Name Symbol
	Idx  []Expr
	Rhs  Expr
}

func (Assign) isStmt() {}
func (a Assign) String() string { return indexed(a.Name, a.Idx) + " = " + a.Rhs.String() }

// Reduce is `name[idx] += rhs`.
type Reduce struct {
	base
	Name Symbol
	Idx  []Expr
	Rhs  Expr
}

func (Reduce) isStmt() {}
func (r Reduce) String() string { return indexed(r.Name, r.Idx) + " += " + r.Rhs.String() }

func indexed(sym Symbol, idx []Expr) string {
	s := sym.String()
	if len(idx) == 0 {
		return s
	}
	s += "["
	for i, e := range idx {
		if i > 0 {
			s += ","
		}
		s += e.String()
	}
	return s + "]"
}

// WriteConfig is `config.field = expr`.
type WriteConfig struct {
	base
	Config, Field string
	Value         Expr
}

func (WriteConfig) isStmt() {}
func (w WriteConfig) String() string { return w.Config + "." + w.Field + " = " + w.Value.String() }

// WindowStmt binds a fresh symbol to a windowed view of a source buffer:
// `name = src.window(access...)`.
type WindowStmt struct {
	base
	Name    Symbol
	SrcBuf  Symbol
	Access  []Access
	Typ     Window
}

func (WindowStmt) isStmt() {}
func (w WindowStmt) String() string { return w.Name.String() + " = " + w.SrcBuf.String() + ".window(...)" }

// If is `if cond: body else: orelse`. Orelse may be empty (no else arm).
type If struct {
	base
	Cond           Expr
	Body, Orelse   []Stmt
}

func (If) isStmt() {}
func (i If) String() string { return "if " + i.Cond.String() + ": ..." }

// Seq is `for iter in [lo, hi): body`, spec.md §3.1/§3.2. Iter is fresh in
// Body.
type Seq struct {
	base
	Iter     Symbol
	Lo, Hi   Expr
	Body     []Stmt
}

func (Seq) isStmt() {}
func (s Seq) String() string {
	return "for " + s.Iter.String() + " in [" + s.Lo.String() + ", " + s.Hi.String() + "): ..."
}

// Alloc declares a new buffer, matched by a Free in the same containing
// block (implicit at end of scope unless explicit).
type Alloc struct {
	base
	Name Symbol
	Typ  Type
	Mem  MemSpace
}

func (Alloc) isStmt() {}
func (a Alloc) String() string { return "alloc " + a.Name.String() + ": " + a.Typ.String() + " @" + string(a.Mem) }

// Free releases an allocation made earlier in the same block.
type Free struct {
	base
	Name Symbol
}

func (Free) isStmt() {}
func (f Free) String() string { return "free " + f.Name.String() }

// Call invokes a sub-procedure. Windows may be passed where tensors are
// expected (spec.md §3.2).
type Call struct {
	base
	Proc *Procedure
	Args []Expr
}

func (Call) isStmt() {}
func (c Call) String() string { return c.Proc.Name + "(...)" }

// Pass is a no-op statement.
type Pass struct{ base }

func (Pass) isStmt() {}
func (Pass) String() string { return "pass" }

// Instr wraps a body statement with a hardware-intrinsic instruction tag.
// Back ends rely on Instr-tagged subtrees matching the instruction's
// structural template (spec.md §6); InstrTemplate.Matches is the core-side
// shape check, which no rewrite currently calls.
type Instr struct {
	base
	Op   string
	Body Stmt
}

func (Instr) isStmt() {}
func (i Instr) String() string { return "instr " + i.Op + ": " + i.Body.String() }

// WithLoc stamps a SrcInfo onto a fresh statement produced by a rewrite. It
// returns its argument unmodified if it already carries a non-generated
// location, so passes never clobber authored locations.
func WithLoc(s Stmt, loc SrcInfo) Stmt {
	if s.Loc().File != "" {
		return s
	}
	switch v := s.(type) {
	case Assign:
		v.Src = loc
		return v
	case Reduce:
		v.Src = loc
		return v
	case WriteConfig:
		v.Src = loc
		return v
	case WindowStmt:
		v.Src = loc
		return v
	case If:
		v.Src = loc
		return v
	case Seq:
		v.Src = loc
		return v
	case Alloc:
		v.Src = loc
		return v
	case Free:
		v.Src = loc
		return v
	case Call:
		v.Src = loc
		return v
	case Pass:
		v.Src = loc
		return v
	case Instr:
		v.Src = loc
		return v
	default:
		panicInvariant("unknown statement variant %T", s)
		return nil
	}
}
