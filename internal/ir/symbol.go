// Package ir implements the typed loop-nest intermediate representation:
// symbols, types, expressions, statements and procedures, plus the small
// amount of machinery (alpha-renaming, a fresh-symbol allocator, printing)
// that every rewrite in internal/rewrite builds on.
package ir

import "fmt"

// Symbol is a globally unique binder identity. Equality is by Tag, never by
// Name: two symbols may share a human-readable Name (shadowing, copies made
// by unroll/inline) but never a Tag.
type Symbol struct {
	Name string
	Tag  int64
}

// Equal reports whether two symbols name the same binder.
func (s Symbol) Equal(o Symbol) bool { return s.Tag == o.Tag }

func (s Symbol) String() string {
	if s.Tag == 0 {
		return s.Name
	}
	return fmt.Sprintf("%s.%d", s.Name, s.Tag)
}

// SymbolAllocator is the single source of fresh symbols for a scheduling
// session. It must stay globally monotonic (spec §5): two runs seeded with
// the same starting counter produce bit-identical trees.
type SymbolAllocator struct {
	next int64
}

// NewSymbolAllocator returns an allocator seeded so the first symbol minted
// carries tag seed+1.
func NewSymbolAllocator(seed int64) *SymbolAllocator {
	return &SymbolAllocator{next: seed}
}

// Fresh mints a new symbol with the given display name and a tag no other
// symbol minted by this allocator has used.
func (a *SymbolAllocator) Fresh(name string) Symbol {
	a.next++
	return Symbol{Name: name, Tag: a.next}
}

// Seed returns the current counter value, suitable for constructing a
// deterministic child allocator (e.g. one per directive call in tests).
func (a *SymbolAllocator) Seed() int64 { return a.next }
