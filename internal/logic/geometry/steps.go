package geometry

import (
	"github.com/cjeanneret/BraiGo/internal/logic/braille"
)

// Ring converts between sectors and motor steps on an axis that only turns
// forward. Positions are counted in steps; all comparisons are taken modulo
// one rotation.
type Ring struct {
	stepsPerRotation int
	sectorSteps      int
}

// NewRing builds a ring for a motor with the given steps per rotation.
// Sectors are spaced by the rounded eighth of a rotation (255 steps for a
// 2038-step 28BYJ-48 in half-step mode).
func NewRing(stepsPerRotation int) Ring {
	return Ring{
		stepsPerRotation: stepsPerRotation,
		sectorSteps:      (stepsPerRotation + braille.Sectors/2) / braille.Sectors,
	}
}

// StepsPerRotation returns the modulus of the ring.
func (r Ring) StepsPerRotation() int {
	return r.stepsPerRotation
}

// SectorSteps returns the spacing between two adjacent sectors.
func (r Ring) SectorSteps() int {
	return r.sectorSteps
}

// HalfRotation is the seek increment used while looking for the home zone.
func (r Ring) HalfRotation() int {
	return r.stepsPerRotation / 2
}

// QuarterRotation is the increment used to leave the home zone.
func (r Ring) QuarterRotation() int {
	return r.stepsPerRotation / 4
}

// SectorPosition returns the step position of a sector within one rotation.
func (r Ring) SectorPosition(s braille.Sector) int {
	return r.Wrap(int(s) * r.sectorSteps)
}

// Wrap reduces a position to [0, StepsPerRotation).
func (r Ring) Wrap(position int) int {
	m := position % r.stepsPerRotation
	if m < 0 {
		m += r.stepsPerRotation
	}
	return m
}

// ForwardDistance returns the forward travel in [0, StepsPerRotation) that
// brings position onto target. When the target lies behind the current
// position the move wraps around the ring; otherwise it is a plain
// subtraction.
func (r Ring) ForwardDistance(position, target int) int {
	current := r.Wrap(position)
	target = r.Wrap(target)
	if target < current {
		return r.stepsPerRotation - (current - target)
	}
	return target - current
}
