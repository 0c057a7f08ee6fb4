// Package display renders the actuator status on a small character panel:
// the pending letters on the first line and the state label on the second.
package display

import (
	"fmt"
	"io"

	"github.com/cjeanneret/BraiGo/internal/debug"
)

// Sink is a character display addressed by column and row.
type Sink interface {
	SetCursor(col, row int) error
	WriteText(s string) error
}

// Panel layout of a 16x2 module.
const (
	queueHeader = "Buffer: "
	stateHeader = "State: "
	queueCol    = len(queueHeader)
	stateCol    = len(stateHeader)
)

// Config selects and sizes a display.
type Config struct {
	Type    string // "lcd", "terminal", "log" or "none"
	I2CBus  string // periph bus name, empty for the first bus
	Address uint16 // PCF8574 backpack address
	Cols    int
	Rows    int
}

// Panel writes the two status fields onto a Sink. The headers are written
// once; later refreshes only overwrite the fields.
type Panel struct {
	sink    Sink
	cols    int
	started bool
}

// NewPanel wraps a sink of the given width.
func NewPanel(s Sink, cols int) *Panel {
	return &Panel{sink: s, cols: cols}
}

// Open builds the panel described by cfg.
func Open(cfg Config) (*Panel, error) {
	if cfg.Cols <= 0 {
		cfg.Cols = 16
	}
	if cfg.Rows <= 0 {
		cfg.Rows = 2
	}
	var s Sink
	switch cfg.Type {
	case "lcd":
		lcd, err := OpenLCD(cfg.I2CBus, cfg.Address, cfg.Cols, cfg.Rows)
		if err != nil {
			return nil, err
		}
		s = lcd
	case "terminal":
		term, err := NewTerminal()
		if err != nil {
			return nil, err
		}
		s = term
	case "log", "":
		s = NewLog(cfg.Cols, cfg.Rows)
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("display: unknown type %q", cfg.Type)
	}
	debug.Info("Display: %s %dx%d", cfg.Type, cfg.Cols, cfg.Rows)
	return NewPanel(s, cfg.Cols), nil
}

// Show refreshes the queue text and the state label.
func (p *Panel) Show(queue, label string) error {
	if !p.started {
		if err := p.write(0, 0, queueHeader); err != nil {
			return err
		}
		if err := p.write(0, 1, stateHeader); err != nil {
			return err
		}
		p.started = true
	}
	if err := p.write(queueCol, 0, queue); err != nil {
		return err
	}
	return p.write(stateCol, 1, label)
}

// Close releases the sink when it holds a device.
func (p *Panel) Close() error {
	if c, ok := p.sink.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// write places s at (col, row), clipped to the panel width.
func (p *Panel) write(col, row int, s string) error {
	if room := p.cols - col; room < len(s) {
		if room <= 0 {
			return nil
		}
		s = s[:room]
	}
	if err := p.sink.SetCursor(col, row); err != nil {
		return fmt.Errorf("display: cursor %d,%d: %w", col, row, err)
	}
	if err := p.sink.WriteText(s); err != nil {
		return fmt.Errorf("display: write: %w", err)
	}
	return nil
}
