package cursor

import (
	"fmt"

	"github.com/exo-lang/loopsched/internal/ir"
	"github.com/exo-lang/loopsched/internal/serr"
)

// Cursor designates either a single statement (Hi == Lo+1), a contiguous
// block of siblings (Hi > Lo+1), or a gap between siblings including the
// endpoints (Hi == Lo), all within the container named by Container.
type Cursor struct {
	Root      *ir.Program
	Container Path
	Lo, Hi    int
}

// Root returns a cursor addressing the whole top-level body of root's
// procedure, as a block.
func Root(root *ir.Program) Cursor {
	return Cursor{Root: root, Lo: 0, Hi: len(root.Proc.Body)}
}

func (c Cursor) IsGap() bool   { return c.Lo == c.Hi }
func (c Cursor) IsNode() bool  { return c.Hi == c.Lo+1 }
func (c Cursor) IsBlock() bool { return c.Hi > c.Lo+1 }

// resolveContainer walks Root.Proc.Body via Container and returns the
// addressed []ir.Stmt slice.
func (c Cursor) resolveContainer() ([]ir.Stmt, error) {
	block := c.Root.Proc.Body
	for i, step := range c.Container {
		if step.StmtIndex < 0 || step.StmtIndex >= len(block) {
			return nil, serr.NewInvalidCursor(Path(c.Container[:i+1]).String(), "statement index out of range")
		}
		switch v := block[step.StmtIndex].(type) {
		case ir.If:
			switch step.Field {
			case BodyField:
				block = v.Body
			case OrelseField:
				block = v.Orelse
			default:
				return nil, serr.NewInvalidCursor(Path(c.Container[:i+1]).String(), "If has no field "+string(step.Field))
			}
		case ir.Seq:
			if step.Field != BodyField {
				return nil, serr.NewInvalidCursor(Path(c.Container[:i+1]).String(), "Seq has no field "+string(step.Field))
			}
			block = v.Body
		default:
			return nil, serr.NewInvalidCursor(Path(c.Container[:i+1]).String(), "statement has no sub-blocks")
		}
	}
	return block, nil
}

// Validate reports whether c currently resolves against its Root.
func (c Cursor) Validate() error {
	block, err := c.resolveContainer()
	if err != nil {
		return err
	}
	if c.Lo < 0 || c.Hi > len(block) || c.Lo > c.Hi {
		return serr.NewInvalidCursor(c.Container.String(), "range out of bounds")
	}
	return nil
}

// Node returns the single statement this cursor addresses.
func (c Cursor) Node() (ir.Stmt, error) {
	if !c.IsNode() {
		return nil, serr.NewInvalidCursor(c.Container.String(), "cursor does not address a single node")
	}
	block, err := c.resolveContainer()
	if err != nil {
		return nil, err
	}
	if c.Lo < 0 || c.Lo >= len(block) {
		return nil, serr.NewInvalidCursor(c.Container.String(), "node index out of range")
	}
	return block[c.Lo], nil
}

// Block returns the contiguous slice of statements this cursor addresses
// (a single-node cursor returns a length-1 slice).
func (c Cursor) Block() ([]ir.Stmt, error) {
	block, err := c.resolveContainer()
	if err != nil {
		return nil, err
	}
	if c.Lo < 0 || c.Hi > len(block) || c.Lo > c.Hi {
		return nil, serr.NewInvalidCursor(c.Container.String(), "block range out of bounds")
	}
	return block[c.Lo:c.Hi], nil
}

// Parent returns a single-node cursor to the statement whose sub-block is
// this cursor's container.
func (c Cursor) Parent() (Cursor, error) {
	if len(c.Container) == 0 {
		return Cursor{}, serr.NewInvalidCursor("$", "already at the procedure root")
	}
	last := c.Container[len(c.Container)-1]
	return Cursor{Root: c.Root, Container: c.Container[:len(c.Container)-1], Lo: last.StmtIndex, Hi: last.StmtIndex + 1}, nil
}

// Next returns the single-node cursor immediately following this range in
// the same container.
func (c Cursor) Next() Cursor {
	return Cursor{Root: c.Root, Container: c.Container, Lo: c.Hi, Hi: c.Hi + 1}
}

// Prev returns the single-node cursor immediately preceding this range in
// the same container.
func (c Cursor) Prev() Cursor {
	return Cursor{Root: c.Root, Container: c.Container, Lo: c.Lo - 1, Hi: c.Lo}
}

// GapBefore returns the gap cursor immediately before this range.
func (c Cursor) GapBefore() Cursor {
	return Cursor{Root: c.Root, Container: c.Container, Lo: c.Lo, Hi: c.Lo}
}

// GapAfter returns the gap cursor immediately after this range.
func (c Cursor) GapAfter() Cursor {
	return Cursor{Root: c.Root, Container: c.Container, Lo: c.Hi, Hi: c.Hi}
}

// Slice returns a block cursor over [lo, hi) of this cursor's container.
func (c Cursor) Slice(lo, hi int) Cursor {
	return Cursor{Root: c.Root, Container: c.Container, Lo: lo, Hi: hi}
}

// Body descends from a single-node cursor addressing an If or Seq into the
// whole of its body sub-block.
func (c Cursor) Body() (Cursor, error) {
	node, err := c.Node()
	if err != nil {
		return Cursor{}, err
	}
	var n int
	switch v := node.(type) {
	case ir.If:
		n = len(v.Body)
	case ir.Seq:
		n = len(v.Body)
	default:
		return Cursor{}, serr.NewInvalidCursor(c.Container.String(), fmt.Sprintf("%T has no body field", node))
	}
	return Cursor{Root: c.Root, Container: append(c.Container.Clone(), Step{StmtIndex: c.Lo, Field: BodyField}), Lo: 0, Hi: n}, nil
}

// Orelse descends from a single-node cursor addressing an If into the whole
// of its orelse sub-block (possibly empty).
func (c Cursor) Orelse() (Cursor, error) {
	node, err := c.Node()
	if err != nil {
		return Cursor{}, err
	}
	v, ok := node.(ir.If)
	if !ok {
		return Cursor{}, serr.NewInvalidCursor(c.Container.String(), fmt.Sprintf("%T has no orelse field", node))
	}
	return Cursor{Root: c.Root, Container: append(c.Container.Clone(), Step{StmtIndex: c.Lo, Field: OrelseField}), Lo: 0, Hi: len(v.Orelse)}, nil
}

// Cond returns the condition expression of a single-node cursor addressing
// an If (a Seq's bounds come from Bounds); these are read accessors for the
// pattern matcher and oracle queries, not edit targets — expression-level
// rewrites go through whole-statement Replace.
func (c Cursor) Cond() (ir.Expr, error) {
	node, err := c.Node()
	if err != nil {
		return nil, err
	}
	if v, ok := node.(ir.If); ok {
		return v.Cond, nil
	}
	return nil, serr.NewInvalidCursor(c.Container.String(), fmt.Sprintf("%T has no cond field", node))
}

// Bounds returns (lo, hi) of a single-node cursor addressing a Seq.
func (c Cursor) Bounds() (lo, hi ir.Expr, err error) {
	node, err := c.Node()
	if err != nil {
		return nil, nil, err
	}
	v, ok := node.(ir.Seq)
	if !ok {
		return nil, nil, serr.NewInvalidCursor(c.Container.String(), fmt.Sprintf("%T has no loop bounds", node))
	}
	return v.Lo, v.Hi, nil
}
