package serr_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/exo-lang/loopsched/internal/serr"
)

func TestSchedulingErrorMessageWithoutPosition(t *testing.T) {
	err := serr.New(serr.CodeBoundsViolation, serr.Position{}, "access out of range")
	assert.Equal(t, "[S0003] access out of range", err.Error())
}

func TestSchedulingErrorMessageWithPosition(t *testing.T) {
	pos := serr.Position{File: "k.sched", Line: 3, Col: 7}
	err := serr.New(serr.CodeAliasing, pos, "buffer '%s' aliases itself", "buf")
	assert.Equal(t, "[S0006] buffer 'buf' aliases itself (k.sched:3:7)", err.Error())
}

func TestPositionStringFallsBackWhenFileEmpty(t *testing.T) {
	assert.Equal(t, "<generated>", serr.Position{}.String())
}

func TestWithNoteAndWithHelpChainAndAccumulate(t *testing.T) {
	err := serr.New(serr.CodeOracleRejected, serr.Position{}, "could not prove equivalence")
	err = err.WithNote("lhs depends on a free variable").WithNote("try normalizing first").WithHelp("bind the expression before comparing")

	assert.Equal(t, []string{"lhs depends on a free variable", "try normalizing first"}, err.Notes)
	assert.Equal(t, "bind the expression before comparing", err.Help)
}

func TestSchedulingErrorRenderIncludesCodeMessageAndNotes(t *testing.T) {
	pos := serr.Position{File: "k.sched", Line: 1, Col: 1}
	err := serr.New(serr.CodeDivisibility, pos, "tile factor does not divide the trip count").WithNote("trip count is 17").WithHelp("pick a factor that divides 17")

	rendered := err.Render()
	assert.Contains(t, rendered, "S0004")
	assert.Contains(t, rendered, "tile factor does not divide the trip count")
	assert.Contains(t, rendered, "trip count is 17")
	assert.Contains(t, rendered, "pick a factor that divides 17")
}

func TestInvalidCursorErrorMessage(t *testing.T) {
	err := serr.NewInvalidCursor("body[2]", "target statement was deleted")
	assert.Equal(t, "[C0001] invalid cursor at body[2]: target statement was deleted", err.Error())
}

func TestInvalidCursorErrorRenderIncludesPathAndReason(t *testing.T) {
	err := serr.NewInvalidCursor("body[0].body[1]", "container was replaced")
	rendered := err.Render()
	assert.Contains(t, rendered, "body[0].body[1]")
	assert.Contains(t, rendered, "container was replaced")
	assert.Contains(t, rendered, "C0001")
}
