package ir

import (
	"fmt"
	"strings"
)

// Printer pretty-prints a Program for REPL/CLI output and for tests that
// want a human-readable assertion rather than a field-by-field one.
type Printer struct {
	indent int
	output strings.Builder
}

func NewPrinter() *Printer { return &Printer{} }

// Print returns the string representation of a Program.
func Print(p *Program) string {
	pr := NewPrinter()
	pr.printProc(p.Proc)
	return pr.output.String()
}

func (p *Printer) writeIndent() {
	for i := 0; i < p.indent; i++ {
		p.output.WriteString("  ")
	}
}

func (p *Printer) writeLine(format string, args ...interface{}) {
	p.writeIndent()
	p.output.WriteString(fmt.Sprintf(format, args...))
	p.output.WriteString("\n")
}

func (p *Printer) printProc(proc *Procedure) {
	args := make([]string, len(proc.Args))
	for i, a := range proc.Args {
		args[i] = fmt.Sprintf("%s: %s (%s)", a.Sym, a.Typ, a.Effect)
	}
	p.writeLine("proc %s(%s):", proc.Name, strings.Join(args, ", "))
	p.indent++
	for _, pre := range proc.Preconditions {
		p.writeLine("assert %s", pre)
	}
	p.printBlock(proc.Body)
	p.indent--
}

func (p *Printer) printBlock(body []Stmt) {
	for _, s := range body {
		p.printStmt(s)
	}
}

func (p *Printer) printStmt(s Stmt) {
	switch v := s.(type) {
	case Assign, Reduce, WriteConfig, WindowStmt, Alloc, Free, Call, Pass:
		p.writeLine("%s", s)
	case If:
		p.writeLine("if %s:", v.Cond)
		p.indent++
		p.printBlock(v.Body)
		p.indent--
		if len(v.Orelse) > 0 {
			p.writeLine("else:")
			p.indent++
			p.printBlock(v.Orelse)
			p.indent--
		}
	case Seq:
		p.writeLine("for %s in [%s, %s):", v.Iter, v.Lo, v.Hi)
		p.indent++
		p.printBlock(v.Body)
		p.indent--
	case Instr:
		p.writeLine("instr %s:", v.Op)
		p.indent++
		p.printStmt(v.Body)
		p.indent--
	default:
		panicInvariant("unknown statement variant %T", s)
	}
}
