package cursor

import "github.com/exo-lang/loopsched/internal/serr"

func cursorErr(c Cursor, reason string) error {
	return serr.NewInvalidCursor(c.Container.String(), reason)
}
