package gpio

import (
	"fmt"

	"github.com/cjeanneret/BraiGo/internal/debug"
	"github.com/stianeikeland/go-rpio/v4"
)

// line is the part of rpio.Pin the driver uses.
type line interface {
	Input()
	Output()
	PullUp()
	High()
	Low()
	Read() rpio.State
}

// RPiDriver is the real implementation for Raspberry Pi using go-rpio.
// Coil outputs and active-low inputs share one register map, so the driver
// remembers each pin's mode and refuses to drive a line declared as input.
type RPiDriver struct {
	pins  map[int]line
	modes map[int]PinMode
	open  func(pin int) line
	close func() error
}

// NewRPiRealDriver creates a real GPIO driver for Raspberry Pi.
// Requires running on a Raspberry Pi with access to /dev/gpiomem or as root.
func NewRPiRealDriver() (*RPiDriver, error) {
	debug.Info("Initializing real GPIO driver (go-rpio)")

	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("failed to open GPIO: %w (are you running on a Raspberry Pi?)", err)
	}

	debug.Verbose("GPIO memory mapped successfully")

	return newRPiDriver(func(pin int) line { return rpio.Pin(pin) }, rpio.Close), nil
}

func newRPiDriver(open func(pin int) line, close func() error) *RPiDriver {
	return &RPiDriver{
		pins:  make(map[int]line),
		modes: make(map[int]PinMode),
		open:  open,
		close: close,
	}
}

func (r *RPiDriver) SetupPin(pin int, mode PinMode) error {
	debug.GPIO("SetupPin", pin, mode)

	p, ok := r.pins[pin]
	if !ok {
		p = r.open(pin)
	}

	switch mode {
	case Input:
		p.Input()
	case InputPullUp:
		p.Input()
		p.PullUp()
	case Output:
		// Coils start de-energized.
		p.Output()
		p.Low()
	default:
		return fmt.Errorf("gpio %d: unknown pin mode %d", pin, mode)
	}

	r.pins[pin] = p
	r.modes[pin] = mode
	return nil
}

func (r *RPiDriver) WritePin(pin int, level Level) error {
	debug.GPIO("WritePin", pin, level)

	p, ok := r.pins[pin]
	if !ok {
		if err := r.SetupPin(pin, Output); err != nil {
			return err
		}
		p = r.pins[pin]
	}
	if r.modes[pin] != Output {
		return fmt.Errorf("gpio %d: write to an input line", pin)
	}

	if level == High {
		p.High()
	} else {
		p.Low()
	}

	return nil
}

func (r *RPiDriver) ReadPin(pin int) (Level, error) {
	p, ok := r.pins[pin]
	if !ok {
		// Sensors and buttons are wired active-low with pull-ups.
		if err := r.SetupPin(pin, InputPullUp); err != nil {
			return Low, err
		}
		p = r.pins[pin]
	}

	lvl := Level(p.Read() == rpio.High)
	debug.GPIO("ReadPin", pin, lvl)
	return lvl, nil
}

// Close drops every coil, returns all lines to plain inputs and unmaps
// the GPIO registers.
func (r *RPiDriver) Close() error {
	debug.Trace("GPIO Close (real driver)")

	for pin, p := range r.pins {
		if r.modes[pin] == Output {
			p.Low()
		}
		debug.Verbose("Resetting pin %d to input", pin)
		p.Input()
	}
	r.pins = make(map[int]line)
	r.modes = make(map[int]PinMode)

	if err := r.close(); err != nil {
		return fmt.Errorf("gpio close: %w", err)
	}
	return nil
}
