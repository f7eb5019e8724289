package pattern_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exo-lang/loopsched/internal/cursor"
	"github.com/exo-lang/loopsched/internal/ir"
	"github.com/exo-lang/loopsched/internal/pattern"
)

var idxT = ir.Scalar{Kind: ir.ScalarIndex}
var realT = ir.Scalar{Kind: ir.ScalarReal}

func sym(name string, tag int64) ir.Symbol { return ir.Symbol{Name: name, Tag: tag} }

func constI(n int64) ir.Const { return ir.Const{Value: n, Typ: idxT} }

func readI(s ir.Symbol, idx ...ir.Expr) ir.Read { return ir.Read{Sym: s, Idx: idx, Typ: realT} }

// twoLoopsProgram builds two sibling loops over "i", the first assigning
// "buf" and the second assigning "out" from it, the shape the pattern tests
// below search across:
// spec.md §6's authoring interface matches statements by pattern text and
// returns cursor blocks a directive can be applied to.
func twoLoopsProgram() *ir.Program {
	i1, i2, buf, out := sym("i", 1), sym("i", 2), sym("buf", 3), sym("out", 4)
	proc := &ir.Procedure{
		Name: "p",
		Body: []ir.Stmt{
			ir.Seq{Iter: i1, Lo: constI(0), Hi: constI(8), Body: []ir.Stmt{
				ir.Assign{Name: buf, Idx: []ir.Expr{readI(i1)}, Rhs: constI(0)},
			}},
			ir.Seq{Iter: i2, Lo: constI(0), Hi: constI(8), Body: []ir.Stmt{
				ir.Assign{Name: out, Idx: []ir.Expr{readI(i2)}, Rhs: readI(buf, readI(i2))},
			}},
		},
	}
	return ir.NewProgram(proc)
}

func TestForPatternMatchesEveryLoopOverThatIterator(t *testing.T) {
	root := twoLoopsProgram()
	pat, err := pattern.Compile("for i in _: _")
	require.NoError(t, err)

	matches, err := pattern.FindAll(root, pat)
	require.NoError(t, err)
	assert.Len(t, matches, 2, "both loops bind an iterator named i")
	for _, c := range matches {
		_, err := c.Node()
		require.NoError(t, err)
	}
}

func TestAssignPatternMatchesTargetName(t *testing.T) {
	root := twoLoopsProgram()
	pat, err := pattern.Compile("out[_] = _")
	require.NoError(t, err)

	matches, err := pattern.FindAll(root, pat)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	node, err := matches[0].Node()
	require.NoError(t, err)
	a, ok := node.(ir.Assign)
	require.True(t, ok)
	assert.Equal(t, "out", a.Name.Name)
}

func TestOrdinalNarrowsToKthMatch(t *testing.T) {
	root := twoLoopsProgram()
	pat, err := pattern.Compile("for i in _: _ #2")
	require.NoError(t, err)

	matches, err := pattern.FindAll(root, pat)
	require.NoError(t, err)
	require.Len(t, matches, 1)

	// The 2nd "for i" loop is the one whose body writes "out".
	body, err := matches[0].Body()
	require.NoError(t, err)
	stmts, err := body.Block()
	require.NoError(t, err)
	require.Len(t, stmts, 1)
	a, ok := stmts[0].(ir.Assign)
	require.True(t, ok)
	assert.Equal(t, "out", a.Name.Name)
}

func TestOrdinalOutOfRangeIsAnError(t *testing.T) {
	root := twoLoopsProgram()
	pat, err := pattern.Compile("for i in _: _ #5")
	require.NoError(t, err)

	_, err = pattern.FindAll(root, pat)
	assert.Error(t, err)
}

func TestNamePatternMatchesAssignmentTarget(t *testing.T) {
	root := twoLoopsProgram()
	pat, err := pattern.Compile("buf")
	require.NoError(t, err)

	matches, err := pattern.FindAll(root, pat)
	require.NoError(t, err)
	require.Len(t, matches, 1, "buf is only ever an assignment target here")
	node, err := matches[0].Node()
	require.NoError(t, err)
	_, ok := node.(ir.Assign)
	assert.True(t, ok)
}

func TestNamePatternWithNoMatchesReturnsEmpty(t *testing.T) {
	root := twoLoopsProgram()
	pat, err := pattern.Compile("nonexistent")
	require.NoError(t, err)

	matches, err := pattern.FindAll(root, pat)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestFindAllDescendsIntoNestedLoopBodies(t *testing.T) {
	root := twoLoopsProgram()
	pat, err := pattern.Compile("out")
	require.NoError(t, err)

	matches, err := pattern.FindAll(root, pat)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	// The match's container path must descend one "body" step into the
	// second loop, not address a top-level statement.
	c := matches[0]
	assert.NotEqual(t, cursor.Path(nil), c.Container)
	assert.Len(t, c.Container, 1)
}
