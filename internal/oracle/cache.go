package oracle

import (
	"fmt"

	"github.com/exo-lang/loopsched/internal/ir"
	"github.com/petermattis/goid"
	deadlock "github.com/sasha-s/go-deadlock"
)

// entry is one memoized query outcome.
type entry struct {
	ok  bool
	err error
}

// CachingOracle memoizes another Oracle's answers, keyed by the producing
// tree's Handle plus a string fingerprint of the query and its arguments. A
// scheduling run re-asks the same equivalence/positivity queries across many
// directive attempts on the same tree (spec.md §8's "apply the same
// directive at several cursors" pattern); this avoids re-deriving an answer
// the oracle already committed to for that exact tree.
//
// Guarded by go-deadlock rather than sync.RWMutex so a lock-order bug
// introduced by a future caller (e.g. a directive that queries the oracle
// from inside a callback already holding this lock) surfaces immediately in
// tests instead of as an intermittent hang.
type CachingOracle struct {
	inner   Oracle
	mu      deadlock.RWMutex
	store   map[string]entry
	inFlight map[string]int64 // key -> goroutine id currently computing it
}

// NewCachingOracle wraps inner with memoization.
func NewCachingOracle(inner Oracle) *CachingOracle {
	return &CachingOracle{inner: inner, store: map[string]entry{}, inFlight: map[string]int64{}}
}

var _ Oracle = (*CachingOracle)(nil)

// lookup memoizes compute() under key. If the calling goroutine is already
// computing this exact key further up its own call stack — a query that
// recurses into itself through directive code, rather than a genuine
// deadlock between two goroutines — it rejects instead of recursing forever.
func (c *CachingOracle) lookup(key string, compute func() (bool, error)) (bool, error) {
	c.mu.RLock()
	if e, ok := c.store[key]; ok {
		c.mu.RUnlock()
		return e.ok, e.err
	}
	c.mu.RUnlock()

	gid := goid.Get()
	c.mu.Lock()
	if owner, busy := c.inFlight[key]; busy && owner == gid {
		c.mu.Unlock()
		return false, reject("oracle-cache", ir.SrcInfo{}, "cyclic self-referential query: "+key)
	}
	c.inFlight[key] = gid
	c.mu.Unlock()

	ok, err := compute()

	c.mu.Lock()
	delete(c.inFlight, key)
	c.store[key] = entry{ok: ok, err: err}
	c.mu.Unlock()
	return ok, err
}

func handleOf(p ProgramPoint) string {
	if p.Root == nil {
		return "<nil>"
	}
	return p.Root.Handle.String()
}

func (c *CachingOracle) ExpressionEquivalenceInContext(e1 ir.Expr, p1 ProgramPoint, e2 ir.Expr, p2 ProgramPoint) (bool, error) {
	key := fmt.Sprintf("eqv:%s:%d:%s:%d:%s:%s", handleOf(p1), p1.Index, handleOf(p2), p2.Index, e1.String(), e2.String())
	return c.lookup(key, func() (bool, error) {
		return c.inner.ExpressionEquivalenceInContext(e1, p1, e2, p2)
	})
}

func (c *CachingOracle) IsPositive(e ir.Expr, p ProgramPoint) (bool, error) {
	key := fmt.Sprintf("pos:%s:%d:%s", handleOf(p), p.Index, e.String())
	return c.lookup(key, func() (bool, error) { return c.inner.IsPositive(e, p) })
}

func (c *CachingOracle) ReorderStmts(s1, s2 ir.Stmt) (bool, error) {
	key := fmt.Sprintf("reorder-stmts:%s:%s", s1.String(), s2.String())
	return c.lookup(key, func() (bool, error) { return c.inner.ReorderStmts(s1, s2) })
}

func (c *CachingOracle) ReorderLoops(outer ir.Seq) (bool, error) {
	key := "reorder-loops:" + outer.String()
	return c.lookup(key, func() (bool, error) { return c.inner.ReorderLoops(outer) })
}

func (c *CachingOracle) FissionLoop(loop ir.Seq, pre, post []ir.Stmt, skippable bool) (bool, error) {
	key := fmt.Sprintf("fission-loop:%s:%d:%d:%v", loop.String(), len(pre), len(post), skippable)
	return c.lookup(key, func() (bool, error) { return c.inner.FissionLoop(loop, pre, post, skippable) })
}

func (c *CachingOracle) BufferRW(block []ir.Stmt, buf ir.Symbol, rank int) (bool, bool, error) {
	// Read/write facts are cheap structural scans and rarely repeated
	// verbatim; delegate directly rather than grow the cache for little gain.
	return c.inner.BufferRW(block, buf, rank)
}

func (c *CachingOracle) BufferReduceOnly(block []ir.Stmt, buf ir.Symbol, rank int) (bool, error) {
	key := fmt.Sprintf("reduce-only:%d:%d:%s", buf.Tag, rank, blockFingerprint(block))
	return c.lookup(key, func() (bool, error) { return c.inner.BufferReduceOnly(block, buf, rank) })
}

func (c *CachingOracle) Bounds(alloc ir.Alloc, following []ir.Stmt) (bool, error) {
	key := fmt.Sprintf("bounds:%d:%s", alloc.Name.Tag, blockFingerprint(following))
	return c.lookup(key, func() (bool, error) { return c.inner.Bounds(alloc, following) })
}

func (c *CachingOracle) DeadAfter(stmts []ir.Stmt, buf ir.Symbol, rank int) (bool, error) {
	key := fmt.Sprintf("dead-after:%d:%d:%s", buf.Tag, rank, blockFingerprint(stmts))
	return c.lookup(key, func() (bool, error) { return c.inner.DeadAfter(stmts, buf, rank) })
}

func (c *CachingOracle) Idempotent(stmts []ir.Stmt) (bool, error) {
	key := "idempotent:" + blockFingerprint(stmts)
	return c.lookup(key, func() (bool, error) { return c.inner.Idempotent(stmts) })
}

func (c *CachingOracle) DeleteConfigWrite(block []ir.Stmt) (map[string]bool, bool, error) {
	// Returns a fresh map to the caller each time; caching the map itself
	// would risk a caller mutating a shared value, so this delegates.
	return c.inner.DeleteConfigWrite(block)
}

func (c *CachingOracle) ExtendEqv(oldCall, newCall ir.Call, configKeys map[string]bool) (bool, error) {
	key := fmt.Sprintf("extend-eqv:%s:%s:%d", oldCall.String(), newCall.String(), len(configKeys))
	return c.lookup(key, func() (bool, error) { return c.inner.ExtendEqv(oldCall, newCall, configKeys) })
}

func (c *CachingOracle) Aliasing(proc *ir.Procedure) (bool, error) {
	key := fmt.Sprintf("aliasing:%p", proc)
	return c.lookup(key, func() (bool, error) { return c.inner.Aliasing(proc) })
}

func blockFingerprint(body []ir.Stmt) string {
	s := ""
	for _, st := range body {
		s += fmt.Sprintf("%#v;", st)
	}
	return s
}
