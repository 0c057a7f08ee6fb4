// Package motion drives both axes through the two-phase homing sequence
// and keeps their calibration fresh afterwards.
package motion

import (
	"errors"
	"fmt"

	"github.com/cjeanneret/BraiGo/internal/debug"
	"github.com/cjeanneret/BraiGo/internal/logic/axis"
)

// ErrHomingTimeout is returned when an axis used up its seek moves without
// the home sensor changing.
var ErrHomingTimeout = errors.New("homing timeout")

// Phase is the progress of a homing run.
type Phase int

const (
	PhaseIdle       Phase = iota
	PhaseSeekHome         // turning until every axis entered its home zone
	PhaseLeaveHome        // turning until every axis left its home zone
	PhaseCalibrated       // coarse position applied
	PhaseFaulted          // gave up, see Err
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSeekHome:
		return "seek-home"
	case PhaseLeaveHome:
		return "leave-home"
	case PhaseCalibrated:
		return "calibrated"
	case PhaseFaulted:
		return "faulted"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// homing is the per-axis bookkeeping of one homing run.
type homing struct {
	captured bool
	cleared  bool // seen outside the home zone during this run
	initPos  int
	finPos   int
	moves    int
}

// Coordinator sequences the homing of several axes that share one cycle.
// Each axis seeks its own home zone and is halted independently; the phase
// only advances once every axis is done with it.
type Coordinator struct {
	axes      []*axis.Axis
	maxMoves  int
	phase     Phase
	track     []homing
	reference []int // home-zone midpoint in the calibrated frame
	err       error
}

// NewCoordinator creates a coordinator. maxMoves bounds the seek moves an
// axis may issue in one phase.
func NewCoordinator(maxMoves int, axes ...*axis.Axis) *Coordinator {
	return &Coordinator{
		axes:      axes,
		maxMoves:  maxMoves,
		track:     make([]homing, len(axes)),
		reference: make([]int, len(axes)),
	}
}

// Phase returns the current homing phase.
func (c *Coordinator) Phase() Phase { return c.phase }

// Err returns the fault that stopped homing, if any.
func (c *Coordinator) Err() error { return c.err }

// Reference returns the calibrated home-zone midpoint of axis i.
func (c *Coordinator) Reference(i int) int { return c.reference[i] }

// Start begins a fresh homing run. Moves already issued are left running.
func (c *Coordinator) Start() {
	for i := range c.track {
		c.track[i] = homing{}
	}
	c.err = nil
	c.phase = PhaseSeekHome
	debug.Live("Homing: seeking home on %d axes", len(c.axes))
}

// Step advances homing by one cycle. home[i] is the debounced state of the
// home sensor of axis i (true inside the home zone).
func (c *Coordinator) Step(home []bool) (Phase, error) {
	if len(home) != len(c.axes) {
		return c.phase, fmt.Errorf("homing: %d sensor readings for %d axes", len(home), len(c.axes))
	}
	switch c.phase {
	case PhaseSeekHome:
		c.seek(home)
	case PhaseLeaveHome:
		c.leave(home)
	}
	return c.phase, c.err
}

// seek captures the init edge only when an axis enters its home zone during
// this run. An axis that starts inside the zone is first turned out of it.
func (c *Coordinator) seek(home []bool) {
	done := 0
	for i, a := range c.axes {
		t := &c.track[i]
		if !home[i] {
			t.cleared = true
		}
		switch {
		case t.captured:
		case home[i] && t.cleared:
			t.captured = true
			t.initPos = a.Position()
			a.Stop()
			debug.Verbose("Homing: axis %s entered home at %d", a.Name(), t.initPos)
		case a.IsMotionComplete():
			if !c.issue(a, t, a.Ring().HalfRotation()) {
				return
			}
		}
		if t.captured {
			done++
		}
	}
	if done < len(c.axes) {
		return
	}

	for i, a := range c.axes {
		c.track[i].captured = false
		c.track[i].moves = 1
		a.CommandRelativeMove(a.Ring().QuarterRotation())
	}
	c.phase = PhaseLeaveHome
	debug.Live("Homing: all axes home, leaving home zone")
}

func (c *Coordinator) leave(home []bool) {
	done := 0
	for i, a := range c.axes {
		t := &c.track[i]
		switch {
		case t.captured:
		case !home[i]:
			t.captured = true
			t.finPos = a.Position()
			a.Stop()
			debug.Verbose("Homing: axis %s left home at %d", a.Name(), t.finPos)
		case a.IsMotionComplete():
			if !c.issue(a, t, a.Ring().QuarterRotation()) {
				return
			}
		}
		if t.captured {
			done++
		}
	}
	if done < len(c.axes) {
		return
	}

	for i, a := range c.axes {
		t := c.track[i]
		width := t.finPos - t.initPos
		// Steps run after the exit edge (deceleration) stay counted.
		a.SetPosition(width + a.Position() - t.finPos)
		c.reference[i] = width / 2
		debug.Verbose("Homing: axis %s home zone %d steps, position %d", a.Name(), width, a.Position())
	}
	c.phase = PhaseCalibrated
	debug.Info("Homing complete")
}

// issue sends one more seek move unless the axis ran out of moves, in which
// case the run is faulted and every axis is stopped.
func (c *Coordinator) issue(a *axis.Axis, t *homing, steps int) bool {
	if t.moves >= c.maxMoves {
		c.err = fmt.Errorf("axis %s after %d moves in %v: %w", a.Name(), t.moves, c.phase, ErrHomingTimeout)
		c.phase = PhaseFaulted
		for _, other := range c.axes {
			other.Stop()
		}
		debug.Error(c.err)
		return false
	}
	t.moves++
	a.CommandRelativeMove(steps)
	return true
}

// Refresh re-centres each axis on the home-zone midpoint measured from the
// latest recorded edges. Axes whose edge round is unbalanced keep their
// position. It returns how many axes were corrected.
func (c *Coordinator) Refresh() int {
	applied := 0
	for i, a := range c.axes {
		e := a.Edges()
		mid := e.Midpoint()
		offset := c.reference[i] - a.Ring().Wrap(mid) + a.Position() - mid
		if a.ApplyCalibrationMidpoint(offset) {
			applied++
		}
	}
	return applied
}
