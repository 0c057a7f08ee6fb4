package cycle

import (
	"context"
	"fmt"
	"time"

	"github.com/cjeanneret/BraiGo/internal/debug"
	"github.com/cjeanneret/BraiGo/internal/hw/adc"
	"github.com/cjeanneret/BraiGo/internal/hw/gpio"
)

// Display receives the queue text and the state label once per print clock.
type Display interface {
	Show(queue, label string) error
}

// Pins maps the inputs of the machine to hardware.
type Pins struct {
	Home       [Axes]int
	Override   int
	Apply      int
	KeyChannel int
}

// LoopConfig holds the pacing of the polling loop.
type LoopConfig struct {
	Pins       Pins
	PrintClock time.Duration // display refresh and keypad read period
	Poll       time.Duration // pause between cycles, zero to spin
	Clock      func() time.Duration
}

// Loop is the single polling loop. Within one cycle inputs are sampled
// before the machine runs, and the machine runs before the motors step.
type Loop struct {
	machine   *Machine
	gpio      gpio.Driver
	adc       adc.Reader
	display   Display
	observers []func(Status)
	cfg       LoopConfig

	lastPrint time.Duration
	cycles    uint64
}

// NewLoop configures the input pins and returns a loop ready to Run.
func NewLoop(m *Machine, g gpio.Driver, a adc.Reader, d Display, cfg LoopConfig) (*Loop, error) {
	inputs := append(cfg.Pins.Home[:], cfg.Pins.Override, cfg.Pins.Apply)
	for _, pin := range inputs {
		if err := g.SetupPin(pin, gpio.InputPullUp); err != nil {
			return nil, fmt.Errorf("setup input pin %d: %w", pin, err)
		}
	}
	if cfg.Clock == nil {
		start := time.Now()
		cfg.Clock = func() time.Duration { return time.Since(start) }
	}
	return &Loop{
		machine: m,
		gpio:    g,
		adc:     a,
		display: d,
		cfg:     cfg,
	}, nil
}

// Observe registers fn to receive the status on every print tick.
// It must be called before Run.
func (l *Loop) Observe(fn func(Status)) {
	l.observers = append(l.observers, fn)
}

// Cycles returns how many cycles ran.
func (l *Loop) Cycles() uint64 { return l.cycles }

// Cycle runs one polling cycle.
func (l *Loop) Cycle() {
	now := l.cfg.Clock()
	printTick := now-l.lastPrint > l.cfg.PrintClock
	if printTick {
		l.lastPrint = now
	}

	in := Inputs{Now: now}
	for i, pin := range l.cfg.Pins.Home {
		in.Home[i] = l.active(pin)
	}
	in.Override = l.active(l.cfg.Pins.Override)
	in.Apply = l.active(l.cfg.Pins.Apply)
	if printTick {
		v, err := l.adc.Read(l.cfg.Pins.KeyChannel)
		if err != nil {
			debug.Error(fmt.Errorf("read keypad: %w", err))
		} else {
			in.Key, in.KeyRead = v, true
		}
	}

	l.machine.Tick(in)

	for _, a := range l.machine.axes {
		a.Run()
	}
	l.cycles++

	if printTick {
		l.publish()
	}
}

// Run cycles until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	debug.Info("Cycle loop started")
	for {
		select {
		case <-ctx.Done():
			debug.Info("Cycle loop stopped after %d cycles", l.cycles)
			return nil
		default:
		}
		l.Cycle()
		if l.cfg.Poll > 0 {
			time.Sleep(l.cfg.Poll)
		}
	}
}

// active reads an active-low input. Read errors count as released.
func (l *Loop) active(pin int) bool {
	lvl, err := l.gpio.ReadPin(pin)
	if err != nil {
		debug.Error(fmt.Errorf("read pin %d: %w", pin, err))
		return false
	}
	return lvl == gpio.Low
}

func (l *Loop) publish() {
	st := l.machine.Status()
	if l.display != nil {
		if err := l.display.Show(st.Queue, st.Label()); err != nil {
			debug.Error(fmt.Errorf("display: %w", err))
		}
	}
	for _, fn := range l.observers {
		fn(st)
	}
}
