package display

import (
	"strings"

	"github.com/cjeanneret/BraiGo/internal/debug"
)

// Log is an in-memory character grid that logs a row each time it changes.
// It stands in for the panel when no display is wired.
type Log struct {
	rows     [][]byte
	col, row int
}

// NewLog returns a blank grid.
func NewLog(cols, rows int) *Log {
	l := &Log{rows: make([][]byte, rows)}
	for i := range l.rows {
		l.rows[i] = []byte(strings.Repeat(" ", cols))
	}
	return l
}

func (l *Log) SetCursor(col, row int) error {
	l.col, l.row = col, row
	return nil
}

// WriteText writes from the cursor, dropping what overflows the row.
func (l *Log) WriteText(s string) error {
	if l.row < 0 || l.row >= len(l.rows) {
		return nil
	}
	line := l.rows[l.row]
	before := string(line)
	for i := 0; i < len(s) && l.col < len(line); i++ {
		if l.col >= 0 {
			line[l.col] = s[i]
		}
		l.col++
	}
	if after := string(line); after != before {
		debug.Verbose("Panel %d: |%s|", l.row, after)
	}
	return nil
}

// Lines returns the rows of the grid.
func (l *Log) Lines() []string {
	out := make([]string, len(l.rows))
	for i, r := range l.rows {
		out[i] = string(r)
	}
	return out
}
