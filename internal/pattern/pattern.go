// Package pattern implements the authoring pattern language of spec.md §6:
// a small surface syntax a human schedule author writes ("x", "x #2",
// "for i in _: _", "buf[_] = _") that compiles down to a search over the
// tree, producing internal/cursor cursors a directive can then be applied
// to. Parsed with participle exactly as the teacher parses its own surface
// language in grammar/parser.go, with a far smaller grammar.
package pattern

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/exo-lang/loopsched/internal/cursor"
	"github.com/exo-lang/loopsched/internal/ir"
	"github.com/exo-lang/loopsched/internal/serr"
)

var patternLexer = lexer.MustStateful(lexer.Rules{
	"Root": {
		{"Ident", `[a-zA-Z_][a-zA-Z0-9_]*`, nil},
		{"Int", `[0-9]+`, nil},
		{"Punct", `[#\[\]=:]`, nil},
		{"Whitespace", `[ \t\r\n]+`, nil},
	},
})

// Pattern is one compiled authoring-syntax expression: exactly one of For,
// Assign or Name is set, optionally narrowed to its k'th match by Ord.
type Pattern struct {
	Pos    lexer.Position
	For    *ForPattern    `(  @@`
	Assign *AssignPattern ` | @@`
	Name   *NamePattern   ` | @@ )`
	Ord    *int           `( "#" @Int )?`
}

// ForPattern is `for iter in _: _`, matching any loop over that iterator
// name regardless of bounds or body.
type ForPattern struct {
	Iter string `"for" @Ident "in" "_" ":" "_"`
}

// AssignPattern is `name[_] = _`, matching any assignment to that target
// name regardless of index or right-hand side.
type AssignPattern struct {
	Name string `@Ident "[" "_" "]" "=" "_"`
}

// NamePattern is a bare identifier, matching any statement that binds or
// targets a symbol of that display name: an allocation, a window binding,
// an assignment/reduction, a call to a procedure of that name, or a loop
// over that iterator.
type NamePattern struct {
	Name string `@Ident`
}

// Compile parses src into a Pattern, ready to be matched against a tree
// with FindAll.
func Compile(src string) (*Pattern, error) {
	parser, err := participle.Build[Pattern](
		participle.Lexer(patternLexer),
		participle.Elide("Whitespace"),
		participle.UseLookahead(5),
	)
	if err != nil {
		return nil, err
	}
	return parser.ParseString("<pattern>", src)
}

// FindAll searches root's whole procedure body for every statement pat
// matches, returning one single-node cursor per match in program order. If
// pat carries an ordinal (`#k`), the result is narrowed to just the k'th
// match (1-indexed), erroring if fewer than k matches exist.
func FindAll(root *ir.Program, pat *Pattern) ([]cursor.Cursor, error) {
	var all []cursor.Cursor
	walk(root, nil, root.Proc.Body, pat, &all)
	if pat.Ord == nil {
		return all, nil
	}
	k := *pat.Ord
	if k < 1 || k > len(all) {
		return nil, serr.New(serr.CodeCursorNotFound, serr.Position{}, "pattern ordinal #%d out of range (%d matches)", k, len(all))
	}
	return []cursor.Cursor{all[k-1]}, nil
}

func walk(root *ir.Program, path cursor.Path, body []ir.Stmt, pat *Pattern, out *[]cursor.Cursor) {
	for i, s := range body {
		if matches(s, pat) {
			*out = append(*out, cursor.Cursor{Root: root, Container: path, Lo: i, Hi: i + 1})
		}
		switch v := s.(type) {
		case ir.If:
			walk(root, append(path.Clone(), cursor.Step{StmtIndex: i, Field: cursor.BodyField}), v.Body, pat, out)
			walk(root, append(path.Clone(), cursor.Step{StmtIndex: i, Field: cursor.OrelseField}), v.Orelse, pat, out)
		case ir.Seq:
			walk(root, append(path.Clone(), cursor.Step{StmtIndex: i, Field: cursor.BodyField}), v.Body, pat, out)
		case ir.Instr:
			walk(root, path, []ir.Stmt{v.Body}, pat, out)
		}
	}
}

func matches(s ir.Stmt, pat *Pattern) bool {
	switch {
	case pat.For != nil:
		v, ok := s.(ir.Seq)
		return ok && v.Iter.Name == pat.For.Iter
	case pat.Assign != nil:
		v, ok := s.(ir.Assign)
		return ok && v.Name.Name == pat.Assign.Name
	case pat.Name != nil:
		return boundName(s) == pat.Name.Name
	default:
		return false
	}
}

// boundName returns the display name a statement introduces or targets, or
// "" for statements NamePattern has no opinion about (If, WriteConfig,
// Free, Pass).
func boundName(s ir.Stmt) string {
	switch v := s.(type) {
	case ir.Alloc:
		return v.Name.Name
	case ir.WindowStmt:
		return v.Name.Name
	case ir.Assign:
		return v.Name.Name
	case ir.Reduce:
		return v.Name.Name
	case ir.Call:
		return v.Proc.Name
	case ir.Seq:
		return v.Iter.Name
	default:
		return ""
	}
}
