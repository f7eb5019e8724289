// Package repl is the interactive scheduling console: load an example
// procedure, then apply one directive per prompt, printing the resulting
// tree after every step (no cursor location is printed). Adapted from
// kanso's repl/repl.go read-eval-print loop shape, generalized from
// reading one line of surface syntax per prompt to reading one JSON
// directive invocation per prompt — there is no surface syntax here to
// lex/parse (spec.md §1 keeps that out of scope).
package repl

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/exo-lang/loopsched/internal/ir"
	"github.com/exo-lang/loopsched/internal/oracle"
	"github.com/exo-lang/loopsched/internal/serr"
)

const Prompt = "sched> "

// Dispatch runs one directive, named and shaped exactly like
// cmd/scheduler's JSON schedule entries, against root. The REPL takes it
// as a parameter rather than importing cmd/scheduler directly, since
// main programs are not importable packages.
type Dispatch func(root *ir.Program, alloc *ir.SymbolAllocator, orc oracle.Oracle, raw json.RawMessage) (ir.Program, error)

// Start reads one JSON directive call per line from in until EOF, applying
// each to proc in turn and printing the resulting tree.
func Start(in io.Reader, out io.Writer, proc *ir.Procedure, dispatch Dispatch) {
	root := ir.NewProgram(proc)
	alloc := ir.NewSymbolAllocator(1000)
	orc := oracle.NewCachingOracle(oracle.NewConservativeOracle())

	scanner := bufio.NewScanner(in)
	fmt.Fprint(out, Prompt)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			fmt.Fprint(out, Prompt)
			continue
		}
		if line == "print" {
			fmt.Fprintln(out, ir.Print(root))
			fmt.Fprint(out, Prompt)
			continue
		}

		next, err := dispatch(root, alloc, orc, json.RawMessage(line))
		if err != nil {
			if se, ok := err.(*serr.SchedulingError); ok {
				fmt.Fprint(out, se.Render())
			} else {
				color.New(color.FgRed).Fprintf(out, "error: %s\n", err)
			}
			fmt.Fprint(out, Prompt)
			continue
		}
		root = &next
		fmt.Fprintln(out, ir.Print(root))
		fmt.Fprint(out, Prompt)
	}
}
