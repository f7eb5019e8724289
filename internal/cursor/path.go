// Package cursor implements the cursor abstraction of spec.md §4.1/§4.2:
// root-relative paths that name a node, a contiguous block of sibling
// statements, or a gap between siblings, plus the atomic edit primitives
// (insert, delete, replace, move, wrap) and the forwarding functions that
// transport other cursors through each edit.
//
// Per spec.md §9's design note, a cursor is represented as a root handle
// plus a small path of (field-tag, index) steps rather than node pointers,
// which is what makes rewriting an immutable tree tractable.
package cursor

import "fmt"

// Field names a statement's child block. Only If and Seq carry named
// sub-blocks; all other statements are leaves for cursor purposes.
type Field string

const (
	BodyField   Field = "body"
	OrelseField Field = "orelse"
)

// Step locates, from the statement at a given index in the current
// container, which of its sub-blocks becomes the next container.
type Step struct {
	StmtIndex int
	Field     Field
}

// Path is a container path: the sequence of Steps walked from a
// procedure's top-level body to reach a particular nested []ir.Stmt block.
// An empty Path denotes the procedure's own body.
type Path []Step

func (p Path) Equal(o Path) bool {
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if p[i] != o[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether prefix is a (non-strict) prefix of p.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix) > len(p) {
		return false
	}
	for i := range prefix {
		if p[i] != prefix[i] {
			return false
		}
	}
	return true
}

// Clone returns an independent copy, since Path backs a slice that edits
// must never mutate in place.
func (p Path) Clone() Path {
	out := make(Path, len(p))
	copy(out, p)
	return out
}

func (p Path) String() string {
	s := "$"
	for _, step := range p {
		s += fmt.Sprintf("[%d].%s", step.StmtIndex, step.Field)
	}
	return s
}
