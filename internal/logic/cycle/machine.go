package cycle

import (
	"errors"
	"time"

	"github.com/cjeanneret/BraiGo/internal/debug"
	"github.com/cjeanneret/BraiGo/internal/logic/axis"
	"github.com/cjeanneret/BraiGo/internal/logic/braille"
	"github.com/cjeanneret/BraiGo/internal/logic/debounce"
	"github.com/cjeanneret/BraiGo/internal/logic/keypad"
	"github.com/cjeanneret/BraiGo/internal/logic/motion"
	"github.com/cjeanneret/BraiGo/internal/logic/queue"
)

// Axes is the number of rotary axes of a cell.
const Axes = 2

// Config holds the timing of the input pipeline and the homing bound.
type Config struct {
	SensorDebounce time.Duration
	ButtonDebounce time.Duration
	KeyDebounce    time.Duration
	MaxHomingMoves int
}

// Inputs is one raw sample of every input, taken at Now. Active-low signals
// are already converted: true means the sensor sees home or the button is
// pressed.
type Inputs struct {
	Now      time.Duration
	Home     [Axes]bool
	Override bool
	Apply    bool
	Key      int  // raw keypad sample
	KeyRead  bool // Key was sampled this cycle
}

// Status is what the panel and the web mirror show.
type Status struct {
	State     State
	Queue     string
	Target    braille.Cell
	Positions [Axes]int
	Fault     string
}

// Label returns the fixed-width panel label of the state.
func (s Status) Label() string { return s.State.Label() }

type applyStep int

const (
	applyIssue applyStep = iota
	applyWait
)

// Machine is the main cycle state machine. It owns the input filters and
// sequences homing, command application and recalibration. Tick never
// blocks: motors are only commanded, never waited on.
type Machine struct {
	axes    [Axes]*axis.Axis
	coord   *motion.Coordinator
	queue   *queue.Queue
	decoder *keypad.Decoder

	home     [Axes]debounce.Edge[bool]
	override debounce.Edge[bool]
	apply    *debounce.Filter[bool]
	key      debounce.Edge[braille.Symbol]

	seeded bool // home filters primed from the first sample
	state  State
	step   applyStep
	target braille.Cell
	fault  error
}

// NewMachine creates a machine that starts homing on its first Tick.
func NewMachine(cfg Config, axes [Axes]*axis.Axis, q *queue.Queue, dec *keypad.Decoder) *Machine {
	m := &Machine{
		axes:     axes,
		coord:    motion.NewCoordinator(cfg.MaxHomingMoves, axes[:]...),
		queue:    q,
		decoder:  dec,
		override: debounce.NewEdge(false, cfg.ButtonDebounce),
		apply:    debounce.New(false, cfg.ButtonDebounce),
		key:      debounce.NewEdge(braille.None, cfg.KeyDebounce),
	}
	for i := range m.home {
		m.home[i] = debounce.NewEdge(false, cfg.SensorDebounce)
	}
	m.coord.Start()
	m.state = StateHomingAxis1
	return m
}

// State returns the active state.
func (m *Machine) State() State { return m.state }

// Target returns the cell of the command being applied.
func (m *Machine) Target() braille.Cell { return m.target }

// Fault returns the homing fault, if the machine is in StateHomingFault.
func (m *Machine) Fault() error { return m.fault }

// Queue returns the command queue.
func (m *Machine) Queue() *queue.Queue { return m.queue }

// Axis returns axis i.
func (m *Machine) Axis(i int) *axis.Axis { return m.axes[i] }

// Status returns a snapshot for display.
func (m *Machine) Status() Status {
	st := Status{
		State:  m.state,
		Queue:  m.queue.String(),
		Target: m.target,
	}
	for i, a := range m.axes {
		st.Positions[i] = a.Position()
	}
	if m.fault != nil {
		st.Fault = m.fault.Error()
	}
	return st
}

// Tick runs one cycle of the state machine on a fresh input sample and
// returns the state it ends in.
func (m *Machine) Tick(in Inputs) State {
	if !m.seeded {
		// The sensors read at power-up are the truth, not an edge.
		for i, f := range m.home {
			f.Reset(in.Home[i], in.Now)
		}
		m.seeded = true
	}
	m.trackHomeEdges(in)
	m.readKey(in)

	_, pressed, changed := m.override.Transition(in.Override, in.Now)
	apply, _ := m.apply.Update(in.Apply, in.Now)
	if changed && pressed {
		debug.Info("Override button pressed in %v", m.state)
		m.startHoming()
		return m.state
	}

	switch m.state {
	case StateHomingAxis1, StateHomingAxis2:
		m.stepHoming()

	case StateReady:
		if !apply {
			break
		}
		sym, ok := m.queue.Peek()
		if !ok {
			break
		}
		cell, ok := braille.Lookup(sym)
		if !ok {
			debug.Info("No cell for %v, dropping it", sym)
			m.queue.DequeueAndShift()
			break
		}
		m.target = cell
		m.step = applyIssue
		debug.Live("Applying %v: sectors %d/%d", sym, cell.Axis1, cell.Axis2)
		m.transition(StateApplyingCommand)

	case StateApplyingCommand:
		m.stepApply()

	case StateCommandComplete:
		m.queue.DequeueAndShift()
		m.transition(StateCalibrationApply)

	case StateCalibrationApply:
		n := m.coord.Refresh()
		debug.Verbose("Recalibrated %d of %d axes", n, Axes)
		m.transition(StateReady)

	case StateHomingFault:
		// Waits for the override button.
	}
	return m.state
}

// trackHomeEdges records every debounced home-sensor edge, whatever the
// state: entering home is the init edge, leaving it the final edge.
func (m *Machine) trackHomeEdges(in Inputs) {
	for i, f := range m.home {
		_, home, changed := f.Transition(in.Home[i], in.Now)
		if !changed {
			continue
		}
		if home {
			m.axes[i].RecordHomeEdge(axis.PhaseInit)
		} else {
			m.axes[i].RecordHomeEdge(axis.PhaseFinal)
		}
	}
}

// readKey enqueues a letter each time the debounced keypad symbol changes
// to a key. Holding a key enqueues it once.
func (m *Machine) readKey(in Inputs) {
	if !in.KeyRead {
		return
	}
	sym := m.decoder.Decode(in.Key)
	_, stable, changed := m.key.Transition(sym, in.Now)
	if !changed || stable == braille.None {
		return
	}
	if err := m.queue.Enqueue(stable); err != nil {
		if errors.Is(err, queue.ErrFull) {
			debug.Info("Key %v dropped: queue full", stable)
			return
		}
		debug.Error(err)
		return
	}
	debug.Key(stable.String(), m.queue.Len())
}

func (m *Machine) startHoming() {
	m.fault = nil
	m.coord.Start()
	m.transition(StateHomingAxis1)
}

func (m *Machine) stepHoming() {
	home := make([]bool, Axes)
	for i, f := range m.home {
		home[i] = f.Stable()
	}
	phase, err := m.coord.Step(home)
	if err != nil {
		m.fault = err
		m.transition(StateHomingFault)
		return
	}
	switch phase {
	case motion.PhaseLeaveHome:
		if m.state == StateHomingAxis1 {
			m.transition(StateHomingAxis2)
		}
	case motion.PhaseCalibrated:
		m.transition(StateReady)
	}
}

func (m *Machine) stepApply() {
	switch m.step {
	case applyIssue:
		sectors := [Axes]braille.Sector{m.target.Axis1, m.target.Axis2}
		for i, a := range m.axes {
			a.CommandRelativeMove(a.ResolveTargetMove(sectors[i]))
		}
		m.step = applyWait
	case applyWait:
		for _, a := range m.axes {
			if !a.IsMotionComplete() {
				return
			}
		}
		m.step = applyIssue
		m.transition(StateCommandComplete)
	}
}

func (m *Machine) transition(to State) {
	if m.state == to {
		return
	}
	debug.Transition(m.state.String(), to.String())
	m.state = to
}
