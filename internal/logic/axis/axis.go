// Package axis owns one rotary axis: its logical position, the forward-only
// move to a target sector and the home-edge bookkeeping used to recalibrate.
package axis

import (
	"github.com/cjeanneret/BraiGo/internal/debug"
	"github.com/cjeanneret/BraiGo/internal/logic/braille"
	"github.com/cjeanneret/BraiGo/internal/logic/geometry"
)

// Motor is the non-blocking motor primitive driven by an Axis.
// *stepper.Stepper satisfies it.
type Motor interface {
	Move(relative int)
	DistanceToGo() int
	CurrentPosition() int
	SetCurrentPosition(position int)
	Stop()
	Run() bool
}

// Phase selects which home edge is being recorded.
type Phase int

const (
	// PhaseInit is the edge entering the home zone (sensor falls LOW).
	PhaseInit Phase = iota
	// PhaseFinal is the edge leaving the home zone (sensor rises HIGH).
	PhaseFinal
)

func (p Phase) String() string {
	if p == PhaseInit {
		return "init"
	}
	return "final"
}

// EdgeRecord is the last position seen on one kind of home edge. Parity
// toggles on every edge of that kind and is never reset.
type EdgeRecord struct {
	Position int
	Parity   bool
}

// Edges pairs the init and final records of an axis.
type Edges struct {
	Init  EdgeRecord
	Final EdgeRecord
}

// Balanced reports whether both kinds of edge were seen the same number of
// times modulo two. Two edges of one kind in a round cancel out, so such a
// round also reads as balanced.
func (e Edges) Balanced() bool {
	return e.Init.Parity == e.Final.Parity
}

// Midpoint returns the position halfway between the recorded edges.
func (e Edges) Midpoint() int {
	return (e.Final.Position + e.Init.Position) / 2
}

// Axis wraps one motor with ring arithmetic and calibration state.
type Axis struct {
	name  string
	motor Motor
	ring  geometry.Ring
	edges Edges
}

// New creates an axis controller.
func New(name string, m Motor, ring geometry.Ring) *Axis {
	return &Axis{name: name, motor: m, ring: ring}
}

// Name returns the axis label used in logs.
func (a *Axis) Name() string { return a.name }

// Ring returns the step geometry of the axis.
func (a *Axis) Ring() geometry.Ring { return a.ring }

// Position returns the unbounded step counter.
func (a *Axis) Position() int { return a.motor.CurrentPosition() }

// Edges returns a copy of the calibration records.
func (a *Axis) Edges() Edges { return a.edges }

// SetPosition redefines the current position. Recorded edges are shifted by
// the same amount so they stay in the new frame.
func (a *Axis) SetPosition(position int) {
	delta := position - a.motor.CurrentPosition()
	a.motor.SetCurrentPosition(position)
	a.edges.Init.Position += delta
	a.edges.Final.Position += delta
	debug.Verbose("Axis %s: position set to %d (shift %d)", a.name, position, delta)
}

// CommandRelativeMove asks the motor to travel delta steps. It returns at
// once; the motor advances on Run.
func (a *Axis) CommandRelativeMove(delta int) {
	debug.Move(a.name, delta, "relative")
	a.motor.Move(delta)
}

// ResolveTargetMove returns the forward move, under one rotation, that
// brings the axis onto the given sector.
func (a *Axis) ResolveTargetMove(target braille.Sector) int {
	return a.ring.ForwardDistance(a.motor.CurrentPosition(), a.ring.SectorPosition(target))
}

// IsMotionComplete reports whether the motor has no distance left.
func (a *Axis) IsMotionComplete() bool {
	return a.motor.DistanceToGo() == 0
}

// RecordHomeEdge snapshots the current position for the given edge and
// toggles its parity.
func (a *Axis) RecordHomeEdge(phase Phase) {
	pos := a.motor.CurrentPosition()
	rec := &a.edges.Init
	if phase == PhaseFinal {
		rec = &a.edges.Final
	}
	rec.Position = pos
	rec.Parity = !rec.Parity
	debug.Edge(a.name, phase.String(), pos)
}

// ApplyCalibrationMidpoint sets the position to the wrapped midpoint of the
// recorded edges plus targetOffset. When the edge parities differ the round
// is inconclusive: nothing changes and false is returned.
func (a *Axis) ApplyCalibrationMidpoint(targetOffset int) bool {
	if !a.edges.Balanced() {
		debug.Live("Axis %s: unbalanced home edges, calibration skipped", a.name)
		return false
	}
	mid := a.ring.Wrap(a.edges.Midpoint())
	debug.Verbose("Axis %s: midpoint %d (init %d, final %d) offset %d",
		a.name, mid, a.edges.Init.Position, a.edges.Final.Position, targetOffset)
	a.SetPosition(mid + targetOffset)
	return true
}

// Stop decelerates the motor to rest.
func (a *Axis) Stop() {
	a.motor.Stop()
}

// Run advances the motor by at most one step.
func (a *Axis) Run() bool {
	return a.motor.Run()
}
