package stepper

import (
	"math"
	"time"

	"github.com/cjeanneret/BraiGo/internal/debug"
	"github.com/cjeanneret/BraiGo/internal/hw/gpio"
)

// halfStep is the 4-wire half-step coil sequence.
var halfStep = [8][4]gpio.Level{
	{gpio.High, gpio.Low, gpio.Low, gpio.Low},
	{gpio.High, gpio.High, gpio.Low, gpio.Low},
	{gpio.Low, gpio.High, gpio.Low, gpio.Low},
	{gpio.Low, gpio.High, gpio.High, gpio.Low},
	{gpio.Low, gpio.Low, gpio.High, gpio.Low},
	{gpio.Low, gpio.Low, gpio.High, gpio.High},
	{gpio.Low, gpio.Low, gpio.Low, gpio.High},
	{gpio.High, gpio.Low, gpio.Low, gpio.High},
}

// Config holds the hardware configuration for a stepper motor.
type Config struct {
	Name         string
	Pins         [4]int  // coil pins in sequence order (IN1, IN3, IN2, IN4 on a ULN2003 board)
	MaxSpeed     float64 // steps per second
	Acceleration float64 // steps per second per second
	// Clock returns monotonic time since an arbitrary origin. Defaults to
	// time elapsed since NewStepper.
	Clock func() time.Duration
}

// Stepper is a non-blocking 4-wire stepper. Move only records a target;
// Run must be called every cycle and emits at most one step when one is due,
// following a constant-acceleration speed profile.
type Stepper struct {
	gpio  gpio.Driver
	cfg   Config
	clock func() time.Duration

	current  int
	target   int
	index    int // position in the half-step sequence
	powered  bool
	lastStep time.Duration

	speed        float64 // signed, steps per second
	stepInterval time.Duration
	n            int     // step counter within the current ramp
	c0, cn, cmin float64 // step intervals in microseconds
	forward      bool
}

// NewStepper creates a new stepper motor controller and configures its coil pins.
func NewStepper(g gpio.Driver, cfg Config) *Stepper {
	for _, p := range cfg.Pins {
		_ = g.SetupPin(p, gpio.Output)
	}

	if cfg.MaxSpeed <= 0 {
		cfg.MaxSpeed = 1000
	}
	if cfg.Acceleration <= 0 {
		cfg.Acceleration = 500
	}

	s := &Stepper{
		gpio:    g,
		cfg:     cfg,
		clock:   cfg.Clock,
		forward: true,
	}
	if s.clock == nil {
		start := time.Now()
		s.clock = func() time.Duration { return time.Since(start) }
	}
	s.cmin = 1e6 / cfg.MaxSpeed
	s.c0 = 0.676 * math.Sqrt(2.0/cfg.Acceleration) * 1e6
	return s
}

// Move sets a new target relative to the current position.
func (s *Stepper) Move(relative int) {
	s.MoveTo(s.current + relative)
}

// MoveTo sets a new absolute target.
func (s *Stepper) MoveTo(absolute int) {
	if s.target != absolute {
		s.target = absolute
		s.computeNewSpeed()
	}
}

// DistanceToGo returns the signed number of steps left to the target.
func (s *Stepper) DistanceToGo() int {
	return s.target - s.current
}

// CurrentPosition returns the absolute step counter.
func (s *Stepper) CurrentPosition() int {
	return s.current
}

// TargetPosition returns the absolute target.
func (s *Stepper) TargetPosition() int {
	return s.target
}

// SetCurrentPosition redefines the current position without moving the shaft.
// The motor is considered stopped afterwards.
func (s *Stepper) SetCurrentPosition(position int) {
	s.current = position
	s.target = position
	s.n = 0
	s.stepInterval = 0
	s.speed = 0
}

// Speed returns the current signed speed in steps per second.
func (s *Stepper) Speed() float64 {
	return s.speed
}

// Stop sets a new target so the motor decelerates to rest as fast as the
// acceleration allows.
func (s *Stepper) Stop() {
	if s.speed == 0 {
		s.MoveTo(s.current)
		return
	}
	stepsToStop := int(s.speed*s.speed/(2.0*s.cfg.Acceleration)) + 1
	if s.speed > 0 {
		s.Move(stepsToStop)
	} else {
		s.Move(-stepsToStop)
	}
}

// Run steps the motor once if a step is due and updates the speed profile.
// It returns true while the motor is still moving or has distance to go.
func (s *Stepper) Run() bool {
	if s.runSpeed() {
		s.computeNewSpeed()
	}
	return s.speed != 0 || s.DistanceToGo() != 0
}

// Release de-energizes the coils. Position tracking is kept.
func (s *Stepper) Release() error {
	for _, p := range s.cfg.Pins {
		if err := s.gpio.WritePin(p, gpio.Low); err != nil {
			return err
		}
	}
	s.powered = false
	return nil
}

func (s *Stepper) runSpeed() bool {
	if s.stepInterval == 0 {
		return false
	}
	now := s.clock()
	if now-s.lastStep < s.stepInterval {
		return false
	}
	if s.forward {
		s.current++
		s.index = (s.index + 1) & 7
	} else {
		s.current--
		s.index = (s.index + 7) & 7
	}
	if err := s.output(); err != nil {
		debug.Error(err)
	}
	s.lastStep = now
	return true
}

// computeNewSpeed works out the interval to the next step using the
// Austin approximation of a linear speed ramp.
func (s *Stepper) computeNewSpeed() {
	distanceTo := s.DistanceToGo()
	stepsToStop := int(s.speed * s.speed / (2.0 * s.cfg.Acceleration))

	if distanceTo == 0 && stepsToStop <= 1 {
		s.stepInterval = 0
		s.speed = 0
		s.n = 0
		return
	}

	if distanceTo > 0 {
		if s.n > 0 {
			if stepsToStop >= distanceTo || !s.forward {
				s.n = -stepsToStop
			}
		} else if s.n < 0 {
			if stepsToStop < distanceTo && s.forward {
				s.n = -s.n
			}
		}
	} else if distanceTo < 0 {
		if s.n > 0 {
			if stepsToStop >= -distanceTo || s.forward {
				s.n = -stepsToStop
			}
		} else if s.n < 0 {
			if stepsToStop < -distanceTo && !s.forward {
				s.n = -s.n
			}
		}
	}

	if s.n == 0 {
		s.cn = s.c0
		s.forward = distanceTo > 0
	} else {
		s.cn = s.cn - (2.0*s.cn)/(4.0*float64(s.n)+1)
		s.cn = math.Max(s.cn, s.cmin)
	}
	s.n++
	s.stepInterval = time.Duration(s.cn * float64(time.Microsecond))
	s.speed = 1e6 / s.cn
	if !s.forward {
		s.speed = -s.speed
	}
}

func (s *Stepper) output() error {
	seq := halfStep[s.index]
	for i, p := range s.cfg.Pins {
		if err := s.gpio.WritePin(p, seq[i]); err != nil {
			return err
		}
	}
	if !s.powered {
		debug.Trace("Stepper %s: coils energized", s.cfg.Name)
		s.powered = true
	}
	return nil
}
