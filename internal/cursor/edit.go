package cursor

import (
	"github.com/exo-lang/loopsched/internal/ir"
	"github.com/exo-lang/loopsched/internal/serr"
)

// Result bundles the output every atomic edit (and, by extension, every
// directive in internal/rewrite) produces: a new root plus the forwarder
// that transports cursors acquired under the old root (spec.md §4.1).
type Result struct {
	Root    *ir.Program
	Forward Forwarder
}

// Insert inserts stmts at a gap cursor, shifting later siblings in the same
// container (and anything that descends through them) by len(stmts).
func Insert(c Cursor, stmts []ir.Stmt) (Result, error) {
	if !c.IsGap() {
		return Result{}, serr.NewInvalidCursor(c.Container.String(), "insert requires a gap cursor")
	}
	block, err := c.resolveContainer()
	if err != nil {
		return Result{}, err
	}
	newBlock := spliceReplace(block, c.Lo, c.Lo, stmts)
	newRoot := rebuild(c.Root, c.Container, newBlock)
	return Result{Root: newRoot, Forward: shiftForwarder(newRoot, c.Container, c.Lo, len(stmts))}, nil
}

// Delete removes the range a cursor addresses (a node or a block).
func Delete(c Cursor) (Result, error) {
	block, err := c.resolveContainer()
	if err != nil {
		return Result{}, err
	}
	if c.Lo < 0 || c.Hi > len(block) || c.Lo >= c.Hi {
		return Result{}, serr.NewInvalidCursor(c.Container.String(), "delete requires a non-empty range")
	}
	newBlock := spliceReplace(block, c.Lo, c.Hi, nil)
	newRoot := rebuild(c.Root, c.Container, newBlock)
	return Result{Root: newRoot, Forward: rangeForwarder(newRoot, c.Container, c.Lo, c.Hi, 0, nil)}, nil
}

// Replace substitutes the range a cursor addresses with new statements,
// whose count may differ from the original (e.g. fission, split). Internal
// cursors into the replaced range are invalidated, per spec.md §4.1.
func Replace(c Cursor, stmts []ir.Stmt) (Result, error) {
	block, err := c.resolveContainer()
	if err != nil {
		return Result{}, err
	}
	if c.Lo < 0 || c.Hi > len(block) || c.Lo > c.Hi {
		return Result{}, serr.NewInvalidCursor(c.Container.String(), "replace range out of bounds")
	}
	newBlock := spliceReplace(block, c.Lo, c.Hi, stmts)
	newRoot := rebuild(c.Root, c.Container, newBlock)
	return Result{Root: newRoot, Forward: rangeForwarder(newRoot, c.Container, c.Lo, c.Hi, len(stmts), nil)}, nil
}

// WrapBuilder builds the single statement that will enclose a range being
// wrapped, given that range's statements as the body it should embed.
type WrapBuilder func(inner []ir.Stmt) ir.Stmt

// Wrap replaces the range c addresses with one new statement (built by
// build) whose `field` sub-block holds exactly the original statements.
// Cursors into the wrapped range are re-homed one level deeper rather than
// invalidated (spec.md §4.1 "Wrapping a block in a new enclosing statement
// lengthens the path of cursors into that block by one step").
func Wrap(c Cursor, build WrapBuilder, field Field) (Result, error) {
	block, err := c.resolveContainer()
	if err != nil {
		return Result{}, err
	}
	if c.Lo < 0 || c.Hi > len(block) || c.Lo >= c.Hi {
		return Result{}, serr.NewInvalidCursor(c.Container.String(), "wrap requires a non-empty range")
	}
	inner := append([]ir.Stmt(nil), block[c.Lo:c.Hi]...)
	wrapper := build(inner)
	newBlock := spliceReplace(block, c.Lo, c.Hi, []ir.Stmt{wrapper})
	newRoot := rebuild(c.Root, c.Container, newBlock)

	lo, hi, container := c.Lo, c.Hi, c.Container
	rehome := func(ic Cursor) (Cursor, bool, error) {
		rehomed := ic
		rehomed.Container = container.Clone()
		if ic.Container.Equal(container) {
			// The cursor itself is (a sub-range of) the wrapped block.
			rehomed.Container = append(rehomed.Container, Step{StmtIndex: lo, Field: field})
			rehomed.Lo, rehomed.Hi = ic.Lo-lo, ic.Hi-lo
			return rehomed, true, nil
		}
		idx := ic.Container[len(container)].StmtIndex
		if idx < lo || idx >= hi {
			return Cursor{}, false, nil
		}
		rest := ic.Container[len(container)+1:].Clone()
		rehomed.Container = append(append(rehomed.Container, Step{StmtIndex: lo, Field: field}, Step{StmtIndex: idx - lo, Field: ic.Container[len(container)].Field}), rest...)
		return rehomed, true, nil
	}
	return Result{Root: newRoot, Forward: rangeForwarder(newRoot, c.Container, c.Lo, c.Hi, 1, rehome)}, nil
}

// Move relocates the range src addresses to the gap cursor dst, which may
// be in a different container (or the same one). Cursors into the moved
// range are re-homed to track the subtree's new location, per spec.md
// §4.1's "known reparenting" exception.
func Move(src, dst Cursor) (Result, error) {
	if !dst.IsGap() {
		return Result{}, serr.NewInvalidCursor(dst.Container.String(), "move target must be a gap cursor")
	}
	srcBlock, err := src.resolveContainer()
	if err != nil {
		return Result{}, err
	}
	if src.Lo < 0 || src.Hi > len(srcBlock) || src.Lo >= src.Hi {
		return Result{}, serr.NewInvalidCursor(src.Container.String(), "move requires a non-empty source range")
	}
	moved := append([]ir.Stmt(nil), srcBlock[src.Lo:src.Hi]...)

	sameContainer := src.Container.Equal(dst.Container)
	dstGap := dst.Lo
	if sameContainer && dstGap >= src.Hi {
		dstGap -= len(moved)
	}

	afterDelete := spliceReplace(srcBlock, src.Lo, src.Hi, nil)
	var finalBlock []ir.Stmt
	var dstBlock []ir.Stmt
	if sameContainer {
		dstBlock = afterDelete
		finalBlock = spliceReplace(afterDelete, dstGap, dstGap, moved)
	} else {
		// dst is resolved after the deletion, so a dst container that
		// encloses src sees the range already removed.
		afterDel := dst
		afterDel.Root = rebuild(src.Root, src.Container, afterDelete)
		dstBlock, err = afterDel.resolveContainer()
		if err != nil {
			return Result{}, err
		}
		finalBlock = spliceReplace(dstBlock, dstGap, dstGap, moved)
	}

	newRoot := rebuild(src.Root, src.Container, afterDelete)
	if sameContainer {
		newRoot = rebuild(newRoot, src.Container, finalBlock)
	} else {
		newRoot = rebuild(newRoot, dst.Container, finalBlock)
	}

	srcContainer, dstContainer := src.Container, dst.Container
	lo, hi, width := src.Lo, src.Hi, len(moved)

	// deleteShift maps an index in srcContainer through the deletion alone.
	deleteShift := func(idx int) int {
		if idx >= hi {
			return idx - width
		}
		return idx
	}
	// insertShift maps an index already in post-delete dstContainer
	// coordinates through the insertion at dstGap.
	insertShift := func(idx int) int {
		if idx >= dstGap {
			return idx + width
		}
		return idx
	}

	forward := func(c Cursor) (Cursor, error) {
		c.Root = newRoot
		switch {
		case c.Container.Equal(srcContainer) && c.Lo >= lo && c.Hi <= hi:
			// c addresses (a sub-range of) the moved statements.
			rehomed := c
			rehomed.Container = dstContainer.Clone()
			rehomed.Lo, rehomed.Hi = dstGap+(c.Lo-lo), dstGap+(c.Hi-lo)
			return rehomed, nil
		case c.Container.Equal(srcContainer) && (c.Hi <= lo || c.Lo >= hi):
			newLo, newHi := deleteShift(c.Lo), deleteShift(c.Hi)
			if srcContainer.Equal(dstContainer) {
				newLo, newHi = insertShift(newLo), insertShift(newHi)
			}
			c.Lo, c.Hi = newLo, newHi
			return c, nil
		case c.Container.Equal(srcContainer):
			return Cursor{}, invalidCursor(c, "cursor straddles a moved statement range")
		case c.Container.Equal(dstContainer) && !srcContainer.Equal(dstContainer):
			if c.Lo >= dstGap {
				c.Lo += width
			}
			if c.Hi >= dstGap {
				c.Hi += width
			}
			return c, nil
		case len(c.Container) > len(srcContainer) && Path(c.Container[:len(srcContainer)]).Equal(srcContainer):
			idx := c.Container[len(srcContainer)].StmtIndex
			field := c.Container[len(srcContainer)].Field
			rest := c.Container[len(srcContainer)+1:].Clone()
			switch {
			case idx >= lo && idx < hi:
				newPath := append(dstContainer.Clone(), Step{StmtIndex: dstGap + (idx - lo), Field: field})
				c.Container = append(newPath, rest...)
				return c, nil
			default:
				newIdx := deleteShift(idx)
				if srcContainer.Equal(dstContainer) {
					newIdx = insertShift(newIdx)
				}
				newPath := c.Container.Clone()
				newPath[len(srcContainer)].StmtIndex = newIdx
				c.Container = newPath
				return c, nil
			}
		case len(c.Container) > len(dstContainer) && !srcContainer.Equal(dstContainer) && Path(c.Container[:len(dstContainer)]).Equal(dstContainer):
			idx := c.Container[len(dstContainer)].StmtIndex
			if idx >= dstGap {
				newPath := c.Container.Clone()
				newPath[len(dstContainer)].StmtIndex = idx + width
				c.Container = newPath
			}
			return c, nil
		default:
			return c, nil
		}
	}
	return Result{Root: newRoot, Forward: forward}, nil
}
