// Package geometry places the completion popup on the editor grid.
package geometry

import "github.com/ThaneAcheron/veonim/types"

// Input describes the cursor and the candidate list being displayed.
type Input struct {
	CursorRow    int // 0-indexed screen row of the cursor
	CursorCol    int // 0-indexed screen column of the cursor
	ViewportRows int
	BufferColumn int // 1-indexed byte column of the cursor in the buffer
	AnchorColumn int // 0-indexed byte column where the query starts
	Count        int // number of candidates shown
	MaxResults   int
}

// Resolve returns the popup's top-left cell. The popup opens below the cursor
// unless a full-height popup would overflow the viewport, in which case it
// opens above. Its left edge lines up with the start of the query.
func Resolve(in Input) types.Point {
	row := in.CursorRow + 1
	if in.CursorRow+in.MaxResults > in.ViewportRows {
		row = in.CursorRow - in.Count
	}

	// cells between the query start and the cursor
	typed := (in.BufferColumn - 1) - max(0, in.AnchorColumn)
	col := in.CursorCol - max(0, typed)

	return types.Point{Row: max(0, row), Col: max(0, col)}
}
