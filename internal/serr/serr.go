// Package serr implements the two error taxa of spec.md §7: scheduling
// errors (expected, user-facing) and invalid-cursor errors (programmer
// error). Both render with the teacher's caret-diagnostic style
// (internal/errors.ErrorReporter in kanso), generalized from contract
// type-checking to scheduling.
package serr

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

// Code is one entry of the scheduling/cursor error code ledger, mirroring
// kanso's internal/errors/codes.go E0NNN convention split into two ranges.
type Code string

const (
	// S0NNN: scheduling errors, one per oracle query / directive precondition.
	CodeOracleRejected     Code = "S0001"
	CodeAdjacencyRequired  Code = "S0002"
	CodeBoundsViolation    Code = "S0003"
	CodeDivisibility       Code = "S0004"
	CodeNotIdempotent      Code = "S0005"
	CodeAliasing           Code = "S0006"
	CodeShapeMismatch      Code = "S0007"
	CodePreconditionFailed Code = "S0008"
	CodeUnsupportedForm    Code = "S0009"

	// C0NNN: cursor errors.
	CodeInvalidCursor  Code = "C0001"
	CodeCursorNotFound Code = "C0002"
)

// Position is the minimal location a diagnostic anchors to; it deliberately
// mirrors ir.SrcInfo's fields rather than importing the ir package, keeping
// serr dependency-free of the IR so any component can report through it.
type Position struct {
	File      string
	Line, Col int
}

func (p Position) String() string {
	if p.File == "" {
		return "<generated>"
	}
	return fmt.Sprintf("%s:%d:%d", p.File, p.Line, p.Col)
}

// SchedulingError is "expected the two loops to be fused to come one right
// after the other"-style error: the targeted rewrite is not valid at the
// chosen site. Directives fail atomically and return exactly this type.
type SchedulingError struct {
	Code     Code
	Message  string
	Pos      Position
	Notes    []string
	Help     string
}

func (e *SchedulingError) Error() string {
	if e.Pos.File == "" {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	return fmt.Sprintf("[%s] %s (%s)", e.Code, e.Message, e.Pos)
}

// Render produces the colorized, multi-line diagnostic, generalized from
// kanso's internal/errors.ErrorReporter.FormatError.
func (e *SchedulingError) Render() string {
	var b strings.Builder
	bold := color.New(color.Bold).SprintFunc()
	red := color.New(color.FgRed, color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	b.WriteString(fmt.Sprintf("%s[%s]: %s\n", red("scheduling error"), e.Code, bold(e.Message)))
	b.WriteString(fmt.Sprintf("  %s %s\n", dim("-->"), e.Pos))
	for _, n := range e.Notes {
		b.WriteString(fmt.Sprintf("  %s note: %s\n", dim("="), n))
	}
	if e.Help != "" {
		b.WriteString(fmt.Sprintf("  %s help: %s\n", dim("="), e.Help))
	}
	return b.String()
}

// New constructs a SchedulingError.
func New(code Code, pos Position, format string, args ...interface{}) *SchedulingError {
	return &SchedulingError{Code: code, Message: fmt.Sprintf(format, args...), Pos: pos}
}

// WithNote appends a diagnostic note and returns the receiver for chaining.
func (e *SchedulingError) WithNote(note string) *SchedulingError {
	e.Notes = append(e.Notes, note)
	return e
}

// WithHelp sets the help text and returns the receiver for chaining.
func (e *SchedulingError) WithHelp(help string) *SchedulingError {
	e.Help = help
	return e
}

// InvalidCursorError is raised when a cursor is used after its target was
// deleted or altered without being forwarded (spec.md §7).
type InvalidCursorError struct {
	Path    string
	Reason  string
}

func (e *InvalidCursorError) Error() string {
	return fmt.Sprintf("[%s] invalid cursor at %s: %s", CodeInvalidCursor, e.Path, e.Reason)
}

// Render produces a colorized one-line diagnostic for CLI/REPL output.
func (e *InvalidCursorError) Render() string {
	red := color.New(color.FgRed, color.Bold).SprintFunc()
	return fmt.Sprintf("%s[%s]: cursor at %s failed to resolve: %s\n", red("invalid cursor"), CodeInvalidCursor, e.Path, e.Reason)
}

func NewInvalidCursor(path, reason string) *InvalidCursorError {
	return &InvalidCursorError{Path: path, Reason: reason}
}
