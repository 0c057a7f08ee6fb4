package display

import (
	"fmt"
	"time"

	"periph.io/x/periph/conn/i2c"
	"periph.io/x/periph/conn/i2c/i2creg"
	"periph.io/x/periph/host"

	"github.com/cjeanneret/BraiGo/internal/debug"
)

// PCF8574 backpack wiring: P0 RS, P1 RW, P2 EN, P3 backlight, P4-P7 D4-D7.
const (
	pinRS        = 0x01
	pinEnable    = 0x04
	pinBacklight = 0x08
)

// HD44780 commands.
const (
	cmdClear        = 0x01
	cmdEntryMode    = 0x06 // increment, no shift
	cmdDisplayOn    = 0x0C // display on, cursor off, blink off
	cmdFunction4Bit = 0x28 // 4-bit bus, 2 lines, 5x8 font
	cmdSetDDRAM     = 0x80
)

var rowOffsets = [4]int{0x00, 0x40, 0x14, 0x54}

// DefaultLCDAddress is the usual address of a PCF8574A backpack.
const DefaultLCDAddress = 0x3F

// txer is the part of an I2C device the LCD needs.
type txer interface {
	Tx(w, r []byte) error
}

// LCD drives an HD44780 character module through a PCF8574 I2C expander in
// 4-bit mode.
type LCD struct {
	dev        txer
	cols, rows int
	sleep      func(time.Duration)
	closer     func() error
}

// OpenLCD initializes periph, opens the I2C bus and sets the module up.
func OpenLCD(busName string, addr uint16, cols, rows int) (*LCD, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("lcd: periph init: %w", err)
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("lcd: open i2c bus %q: %w", busName, err)
	}
	if addr == 0 {
		addr = DefaultLCDAddress
	}
	l, err := newLCD(&i2c.Dev{Bus: bus, Addr: addr}, cols, rows, time.Sleep)
	if err != nil {
		bus.Close()
		return nil, err
	}
	l.closer = bus.Close
	debug.Info("LCD %dx%d on %s at 0x%02X", cols, rows, bus, addr)
	return l, nil
}

func newLCD(dev txer, cols, rows int, sleep func(time.Duration)) (*LCD, error) {
	if rows > len(rowOffsets) {
		return nil, fmt.Errorf("lcd: %d rows not supported", rows)
	}
	l := &LCD{dev: dev, cols: cols, rows: rows, sleep: sleep}
	if err := l.init(); err != nil {
		return nil, fmt.Errorf("lcd: init: %w", err)
	}
	return l, nil
}

// init runs the 4-bit initialization by instruction sequence.
func (l *LCD) init() error {
	l.sleep(50 * time.Millisecond)
	for _, wait := range []time.Duration{4500 * time.Microsecond, 4500 * time.Microsecond, 150 * time.Microsecond} {
		if err := l.nibble(0x30, 0); err != nil {
			return err
		}
		l.sleep(wait)
	}
	if err := l.nibble(0x20, 0); err != nil {
		return err
	}
	for _, cmd := range []byte{cmdFunction4Bit, cmdDisplayOn, cmdClear, cmdEntryMode} {
		if err := l.command(cmd); err != nil {
			return err
		}
	}
	return nil
}

// SetCursor moves the write position.
func (l *LCD) SetCursor(col, row int) error {
	if row < 0 || row >= l.rows || col < 0 || col >= l.cols {
		return fmt.Errorf("lcd: cursor %d,%d outside %dx%d", col, row, l.cols, l.rows)
	}
	return l.command(cmdSetDDRAM | byte(col+rowOffsets[row]))
}

// WriteText writes ASCII characters from the cursor.
func (l *LCD) WriteText(s string) error {
	for i := 0; i < len(s); i++ {
		if err := l.send(s[i], pinRS); err != nil {
			return err
		}
	}
	return nil
}

// Clear blanks the display and homes the cursor.
func (l *LCD) Clear() error {
	return l.command(cmdClear)
}

// Close blanks the screen, turns the backlight off and releases the bus.
func (l *LCD) Close() error {
	err := l.Clear()
	if txErr := l.dev.Tx([]byte{0}, nil); err == nil {
		err = txErr
	}
	if l.closer != nil {
		if cerr := l.closer(); err == nil {
			err = cerr
		}
	}
	return err
}

func (l *LCD) command(cmd byte) error {
	if err := l.send(cmd, 0); err != nil {
		return err
	}
	if cmd == cmdClear {
		l.sleep(2 * time.Millisecond)
	}
	return nil
}

// send writes one byte as two nibbles, high first.
func (l *LCD) send(b byte, mode byte) error {
	if err := l.nibble(b&0xF0, mode); err != nil {
		return err
	}
	return l.nibble(b<<4, mode)
}

// nibble latches the upper four bits of data with a pulse on EN.
func (l *LCD) nibble(data byte, mode byte) error {
	out := data&0xF0 | mode | pinBacklight
	debug.Trace("LCD nibble 0x%02X", out)
	return l.dev.Tx([]byte{out | pinEnable, out}, nil)
}
