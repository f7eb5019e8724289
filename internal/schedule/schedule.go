// Package schedule is the shared JSON directive-invocation format and
// dispatch table that cmd/scheduler, repl and internal/lsp all drive the
// rewrite kernel through: one step names a directive, a cursor location
// within the tree, and that directive's arguments.
package schedule

import (
	"encoding/json"
	"fmt"

	"github.com/exo-lang/loopsched/internal/cursor"
	"github.com/exo-lang/loopsched/internal/ir"
	"github.com/exo-lang/loopsched/internal/oracle"
	"github.com/exo-lang/loopsched/internal/pattern"
	"github.com/exo-lang/loopsched/internal/rewrite"
)

// File is the JSON shape a schedule document carries: a starting example
// procedure plus the sequence of directives to apply to it in order.
type File struct {
	Example    string     `json:"example"`
	Directives []Call     `json:"directives"`
}

// Call names one step: which directive, where it targets (a path down to
// the enclosing block plus an index range within it, or a pattern string
// resolved against the current tree), and its directive-specific
// arguments.
type Call struct {
	Op      string          `json:"op"`
	Path    []PathStep      `json:"path,omitempty"`
	At      int             `json:"at,omitempty"`
	At2     *int            `json:"at2,omitempty"`
	Pattern string          `json:"pattern,omitempty"`
	Args    json.RawMessage `json:"args,omitempty"`
}

type PathStep struct {
	Index int    `json:"index"`
	Field string `json:"field"`
}

// KnownOps is the set of directive names Run recognizes, used by
// internal/lsp to flag an unrecognized op before ever attempting to run
// the schedule.
var KnownOps = map[string]bool{
	"reorder-stmts": true, "split-loop": true, "product-loop": true,
	"unroll": true, "fuse-loops": true, "remove-loop": true,
	"lift-scope": true, "lift-alloc-simple": true, "lift-alloc": true,
	"bind-expression": true, "commute": true, "insert-pass": true,
	"delete-pass": true, "inline-window": true,
}

// Resolve turns a Call's location into a cursor.Cursor against root,
// either from its explicit path/at/at2 fields or, if Pattern is set, by
// compiling and matching the pattern (erroring unless it names exactly
// one statement).
func Resolve(root *ir.Program, call Call) (cursor.Cursor, error) {
	if call.Pattern != "" {
		pat, err := pattern.Compile(call.Pattern)
		if err != nil {
			return cursor.Cursor{}, fmt.Errorf("pattern %q: %w", call.Pattern, err)
		}
		matches, err := pattern.FindAll(root, pat)
		if err != nil {
			return cursor.Cursor{}, err
		}
		if len(matches) != 1 {
			return cursor.Cursor{}, fmt.Errorf("pattern %q matched %d statements, want exactly 1", call.Pattern, len(matches))
		}
		return matches[0], nil
	}

	path := make(cursor.Path, len(call.Path))
	for i, s := range call.Path {
		path[i] = cursor.Step{StmtIndex: s.Index, Field: cursor.Field(s.Field)}
	}
	hi := call.At + 1
	if call.At2 != nil {
		hi = *call.At2 + 1
	}
	return cursor.Cursor{Root: root, Container: path, Lo: call.At, Hi: hi}, nil
}

// Run dispatches one Call against root. The registry covers a
// representative slice of the kernel's ~40 directives — every directive
// is a plain exported Go function in internal/rewrite, callable directly
// by any embedding host; this table is only the textual front end for the
// subset exposed as JSON/console commands.
func Run(root *ir.Program, alloc *ir.SymbolAllocator, orc oracle.Oracle, call Call) (rewrite.Result, error) {
	c, err := Resolve(root, call)
	if err != nil {
		return rewrite.Result{}, err
	}

	var args map[string]interface{}
	if len(call.Args) > 0 {
		if err := json.Unmarshal(call.Args, &args); err != nil {
			return rewrite.Result{}, fmt.Errorf("op %s: bad args: %w", call.Op, err)
		}
	}
	str := func(k string) string { s, _ := args[k].(string); return s }
	num := func(k string) int64 { n, _ := args[k].(float64); return int64(n) }

	switch call.Op {
	case "reorder-stmts":
		return rewrite.ReorderAdjacentStmts(root, orc, c)
	case "split-loop":
		tail := str("tail")
		if tail == "" {
			tail = "guard"
		}
		return rewrite.SplitLoop(root, alloc, root.Proc, c, num("factor"), tail)
	case "product-loop":
		return rewrite.ProductLoop(root, alloc, c)
	case "unroll":
		return rewrite.Unroll(root, alloc, c)
	case "fuse-loops":
		c2 := cursor.Cursor{Root: root, Container: c.Container, Lo: int(num("with")), Hi: int(num("with")) + 1}
		return rewrite.FuseLoops(root, alloc, orc, c, c2)
	case "remove-loop":
		return rewrite.RemoveLoop(root, orc, c)
	case "lift-scope":
		return rewrite.LiftScope(root, orc, c)
	case "lift-alloc-simple":
		return rewrite.LiftAllocSimple(root, c)
	case "lift-alloc":
		levels := int(num("levels"))
		if levels == 0 {
			levels = 1
		}
		mode := str("mode")
		if mode == "" {
			mode = "row"
		}
		var size ir.Expr
		if _, ok := args["size"]; ok {
			size = ir.Const{Value: num("size"), Typ: ir.Scalar{Kind: ir.ScalarIndex}}
		}
		return rewrite.LiftAlloc(root, c, levels, mode, size)
	case "bind-expression":
		node, err := c.Node()
		if err != nil {
			return rewrite.Result{}, err
		}
		a, ok := node.(ir.Assign)
		if !ok {
			return rewrite.Result{}, fmt.Errorf("bind-expression target is not an assignment")
		}
		return rewrite.BindExpression(root, alloc, c, a.Rhs, str("name"))
	case "commute":
		return rewrite.Commute(root, c)
	case "insert-pass":
		return rewrite.InsertPass(root, c)
	case "delete-pass":
		return rewrite.DeletePass(root, c)
	case "inline-window":
		return rewrite.InlineWindow(root, c)
	default:
		return rewrite.Result{}, fmt.Errorf("unknown or unregistered directive %q", call.Op)
	}
}
