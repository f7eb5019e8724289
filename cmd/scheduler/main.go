package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"

	"github.com/exo-lang/loopsched/internal/ir"
	"github.com/exo-lang/loopsched/internal/oracle"
	"github.com/exo-lang/loopsched/internal/schedule"
	"github.com/exo-lang/loopsched/internal/serr"
	"github.com/exo-lang/loopsched/repl"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: scheduler <schedule.json>  |  scheduler repl <example>")
		os.Exit(1)
	}

	if os.Args[1] == "repl" {
		runRepl()
		return
	}
	runSchedule()
}

func runRepl() {
	if len(os.Args) < 3 {
		color.Red("Usage: scheduler repl <example>")
		os.Exit(1)
	}
	build, ok := examples[os.Args[2]]
	if !ok {
		color.Red("unknown example procedure %q", os.Args[2])
		os.Exit(1)
	}
	repl.Start(os.Stdin, os.Stdout, build(), func(root *ir.Program, alloc *ir.SymbolAllocator, orc oracle.Oracle, raw json.RawMessage) (ir.Program, error) {
		var call schedule.Call
		if err := json.Unmarshal(raw, &call); err != nil {
			return ir.Program{}, err
		}
		res, err := schedule.Run(root, alloc, orc, call)
		if err != nil {
			return ir.Program{}, err
		}
		return *res.Root, nil
	})
}

func runSchedule() {
	path := os.Args[1]
	raw, err := os.ReadFile(path)
	if err != nil {
		color.Red("failed to read %s: %s", path, err)
		os.Exit(1)
	}

	var sched schedule.File
	if err := json.Unmarshal(raw, &sched); err != nil {
		color.Red("failed to parse schedule file %s: %s", path, err)
		os.Exit(1)
	}

	build, ok := examples[sched.Example]
	if !ok {
		color.Red("unknown example procedure %q", sched.Example)
		os.Exit(1)
	}

	root := ir.NewProgram(build())
	alloc := ir.NewSymbolAllocator(1000)
	orc := oracle.NewCachingOracle(oracle.NewConservativeOracle())

	for i, call := range sched.Directives {
		res, err := schedule.Run(root, alloc, orc, call)
		if err != nil {
			if se, ok := err.(*serr.SchedulingError); ok {
				fmt.Print(se.Render())
			} else {
				color.Red("step %d (%s): %s", i, call.Op, err)
			}
			os.Exit(1)
		}
		root = res.Root
	}

	fmt.Println(ir.Print(root))
	color.Green("applied %d directive(s) to %q", len(sched.Directives), sched.Example)
}
