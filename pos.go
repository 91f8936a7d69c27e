package v7

import (
	"fmt"
	"sort"
	"unicode/utf8"
)

// Location is a 1-based line/column position paired with the 0-based
// byte cursor it was computed from. Errors surfaced to JS code and to
// the CLI carry a Location so they can print a caret line.
type Location struct {
	Line   int
	Column int
	Cursor int
}

func (l Location) String() string {
	return fmt.Sprintf("%d:%d", l.Line, l.Column)
}

// LineIndex allows fast conversion from byte cursor offsets to
// line/column, used by the lexer/parser to report SyntaxError
// positions without rescanning the whole source on every token.
//
// It stores the start byte offset of each line (0-based). Given a
// cursor, it finds the line by binary searching line starts (O(log
// lines)) and computes the column as (runes since lineStart + 1).
type LineIndex struct {
	input     []byte
	lineStart []int
}

func NewLineIndex(input []byte) *LineIndex {
	lineStart := make([]int, 1, 64)
	lineStart[0] = 0
	for i, b := range input {
		if b == '\n' {
			lineStart = append(lineStart, i+1)
		}
	}
	return &LineIndex{input: input, lineStart: lineStart}
}

func (li *LineIndex) LocationAt(cursor int) Location {
	if cursor < 0 {
		cursor = 0
	}
	if cursor > len(li.input) {
		cursor = len(li.input)
	}

	lineIdx := sort.Search(len(li.lineStart), func(i int) bool {
		return li.lineStart[i] > cursor
	}) - 1
	if lineIdx < 0 {
		lineIdx = 0
	}

	lineStart := li.lineStart[lineIdx]
	col := utf8.RuneCount(li.input[lineStart:cursor]) + 1

	return Location{Line: lineIdx + 1, Column: col, Cursor: cursor}
}

// CaretLine renders the source line containing loc with a `^` marker
// under the offending column, used by SyntaxError.Error().
func (li *LineIndex) CaretLine(loc Location) string {
	start := li.lineStart[loc.Line-1]
	end := len(li.input)
	if loc.Line < len(li.lineStart) {
		end = li.lineStart[loc.Line] - 1
	}
	if end < start {
		end = start
	}
	line := string(li.input[start:end])
	caret := ""
	for i := 1; i < loc.Column; i++ {
		caret += " "
	}
	return line + "\n" + caret + "^"
}
