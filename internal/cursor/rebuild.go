package cursor

import "github.com/exo-lang/loopsched/internal/ir"

// rebuild reconstructs the whole procedure replacing the container named by
// path with newBlock, copying only the statements on the path from root to
// that container (every untouched sibling subtree is shared, unchanged,
// with the old tree — spec.md §3.3 "old nodes are untouched").
func rebuild(root *ir.Program, path Path, newBlock []ir.Stmt) *ir.Program {
	proc := *root.Proc
	proc.Body = rebuildBlock(proc.Body, path, newBlock)
	return root.WithProc(&proc)
}

func rebuildBlock(block []ir.Stmt, path Path, newBlock []ir.Stmt) []ir.Stmt {
	if len(path) == 0 {
		return newBlock
	}
	step := path[0]
	out := append([]ir.Stmt(nil), block...)
	out[step.StmtIndex] = rebuildStmt(out[step.StmtIndex], step.Field, path[1:], newBlock)
	return out
}

func rebuildStmt(stmt ir.Stmt, field Field, rest Path, newBlock []ir.Stmt) ir.Stmt {
	switch v := stmt.(type) {
	case ir.If:
		if field == BodyField {
			v.Body = rebuildBlock(v.Body, rest, newBlock)
		} else {
			v.Orelse = rebuildBlock(v.Orelse, rest, newBlock)
		}
		return v
	case ir.Seq:
		v.Body = rebuildBlock(v.Body, rest, newBlock)
		return v
	default:
		// Unreachable if Container paths are only ever built by this
		// package's own navigation helpers.
		panic("cursor: rebuildStmt on a statement with no sub-blocks")
	}
}

// spliceReplace returns a copy of block with [lo,hi) replaced by repl.
func spliceReplace(block []ir.Stmt, lo, hi int, repl []ir.Stmt) []ir.Stmt {
	out := make([]ir.Stmt, 0, len(block)-(hi-lo)+len(repl))
	out = append(out, block[:lo]...)
	out = append(out, repl...)
	out = append(out, block[hi:]...)
	return out
}
