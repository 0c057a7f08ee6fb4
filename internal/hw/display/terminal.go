package display

import (
	"github.com/nsf/termbox-go"
)

// Terminal draws the panel in the controlling terminal, for running the
// mock build on a desktop.
type Terminal struct {
	col, row int
}

// NewTerminal takes over the terminal. Close gives it back.
func NewTerminal() (*Terminal, error) {
	if err := termbox.Init(); err != nil {
		return nil, err
	}
	termbox.Clear(termbox.ColorDefault, termbox.ColorDefault)
	return &Terminal{}, nil
}

func (t *Terminal) SetCursor(col, row int) error {
	t.col, t.row = col, row
	return nil
}

func (t *Terminal) WriteText(s string) error {
	for i := 0; i < len(s); i++ {
		termbox.SetCell(t.col, t.row, rune(s[i]), termbox.ColorWhite, termbox.ColorBlack)
		t.col++
	}
	return termbox.Flush()
}

func (t *Terminal) Close() error {
	termbox.Close()
	return nil
}
