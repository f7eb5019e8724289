package cursor

import "github.com/exo-lang/loopsched/internal/ir"

// Forwarder maps any cursor valid under the root an edit was applied to, to
// its image under the edit's result (spec.md §4.1). Forwarders are pure
// functions of paths — no IR is inspected — matching the "small records"
// design note in spec.md §9.
type Forwarder func(Cursor) (Cursor, error)

// Compose returns the left-to-right composition of forwarders, the shape
// spec.md §4.1 requires for a directive that performs multiple atomic
// edits: "the returned forward is the left-to-right composition of the
// per-edit forwarders."
func Compose(fs ...Forwarder) Forwarder {
	return func(c Cursor) (Cursor, error) {
		var err error
		for _, f := range fs {
			if f == nil {
				continue
			}
			c, err = f(c)
			if err != nil {
				return Cursor{}, err
			}
		}
		return c, nil
	}
}

// rebind is the trivial forwarder every edit composes first: a cursor whose
// path and range an edit does not touch at all is still stamped onto the
// new root, since the old root is discarded.
func rebind(newRoot *ir.Program) Forwarder {
	return func(c Cursor) (Cursor, error) {
		c.Root = newRoot
		return c, nil
	}
}

// shiftIndex applies an insertion/deletion of delta items at position at to
// a single index idx within the same container: indices at or after the
// edit point shift by delta (spec.md §4.1 "earlier siblings unaffected;
// later siblings shift by the signed change").
func shiftIndex(idx, at, delta int) int {
	if idx >= at {
		return idx + delta
	}
	return idx
}

// shiftForwarder implements Insert's forwarding: every cursor in the same
// container shifts by delta at the insertion point; every cursor that
// descends through a statement in that container at or after the insertion
// point has that step's index shifted too.
func shiftForwarder(newRoot *ir.Program, container Path, at, delta int) Forwarder {
	return func(c Cursor) (Cursor, error) {
		c.Root = newRoot
		if c.Container.Equal(container) {
			c.Lo = shiftIndex(c.Lo, at, delta)
			c.Hi = shiftIndex(c.Hi, at, delta)
			return c, nil
		}
		if len(c.Container) > len(container) && Path(c.Container[:len(container)]).Equal(container) {
			idx := c.Container[len(container)].StmtIndex
			if idx >= at {
				newPath := c.Container.Clone()
				newPath[len(container)].StmtIndex = idx + delta
				c.Container = newPath
			}
		}
		return c, nil
	}
}

// rangeForwarder implements Delete/Replace's forwarding: the container's
// range [lo,hi) collapses to newCount items. Cursors wholly before the
// range are unaffected; wholly after, shift by (newCount - (hi-lo));
// cursors overlapping the range are invalidated unless rehome is non-nil,
// in which case rehome gets a chance to redirect them (used by Move, whose
// moved subtree is a "known reparenting" per spec.md §4.1).
func rangeForwarder(newRoot *ir.Program, container Path, lo, hi, newCount int, rehome func(Cursor) (Cursor, bool, error)) Forwarder {
	delta := newCount - (hi - lo)
	return func(c Cursor) (Cursor, error) {
		c.Root = newRoot
		if c.Container.Equal(container) {
			switch {
			case c.Hi <= lo:
				return c, nil
			case c.Lo >= hi:
				c.Lo += delta
				c.Hi += delta
				return c, nil
			default:
				if rehome != nil {
					if rc, ok, err := rehome(c); err != nil {
						return Cursor{}, err
					} else if ok {
						return rc, nil
					}
				}
				return Cursor{}, invalidCursor(c, "statement range was deleted or replaced")
			}
		}
		if len(c.Container) > len(container) && Path(c.Container[:len(container)]).Equal(container) {
			idx := c.Container[len(container)].StmtIndex
			switch {
			case idx < lo:
				return c, nil
			case idx >= hi:
				newPath := c.Container.Clone()
				newPath[len(container)].StmtIndex = idx + delta
				c.Container = newPath
				return c, nil
			default:
				if rehome != nil {
					if rc, ok, err := rehome(c); err != nil {
						return Cursor{}, err
					} else if ok {
						return rc, nil
					}
				}
				return Cursor{}, invalidCursor(c, "enclosing statement was deleted or replaced")
			}
		}
		return c, nil
	}
}

func invalidCursor(c Cursor, reason string) error {
	return cursorErr(c, reason)
}
