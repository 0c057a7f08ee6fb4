package cycle

import (
	"errors"
	"testing"
	"time"

	"github.com/cjeanneret/BraiGo/internal/logic/axis"
	"github.com/cjeanneret/BraiGo/internal/logic/braille"
	"github.com/cjeanneret/BraiGo/internal/logic/geometry"
	"github.com/cjeanneret/BraiGo/internal/logic/keypad"
	"github.com/cjeanneret/BraiGo/internal/logic/motion"
	"github.com/cjeanneret/BraiGo/internal/logic/queue"
)

// fakeMotor advances one step per Run and stops dead on Stop. shaft counts
// the steps really taken, which SetCurrentPosition does not touch.
type fakeMotor struct {
	pos, target int
	shaft       int
}

func (m *fakeMotor) Move(relative int)        { m.target = m.pos + relative }
func (m *fakeMotor) DistanceToGo() int        { return m.target - m.pos }
func (m *fakeMotor) CurrentPosition() int     { return m.pos }
func (m *fakeMotor) SetCurrentPosition(p int) { m.pos, m.target = p, p }
func (m *fakeMotor) Stop()                    { m.target = m.pos }
func (m *fakeMotor) Run() bool {
	if m.pos < m.target {
		m.pos++
		m.shaft++
	} else if m.pos > m.target {
		m.pos--
		m.shaft--
	}
	return m.pos != m.target
}

const (
	keySampleF    = 510 // inside the F band of the default ladder
	keySampleIdle = 1023
)

var testConfig = Config{
	SensorDebounce: 20 * time.Millisecond,
	ButtonDebounce: 50 * time.Millisecond,
	KeyDebounce:    50 * time.Millisecond,
	MaxHomingMoves: 4,
}

// rig simulates the device: the shaft angle of each axis is its step count
// plus a fixed offset, and the home zone spans [1019, 1528) of a 2038-step
// rotation. One cycle lasts one millisecond.
type rig struct {
	t       *testing.T
	ring    geometry.Ring
	motors  [Axes]*fakeMotor
	shift   [Axes]int
	machine *Machine
	now     time.Duration
	states  []State
}

func newRig(t *testing.T, cfg Config) *rig {
	t.Helper()
	r := &rig{t: t, ring: geometry.NewRing(2038)}
	var axes [Axes]*axis.Axis
	for i := range axes {
		r.motors[i] = &fakeMotor{}
		axes[i] = axis.New(string(rune('1'+i)), r.motors[i], r.ring)
	}
	dec, err := keypad.NewDecoder(keypad.DefaultLadder())
	if err != nil {
		t.Fatalf("NewDecoder: %v", err)
	}
	r.machine = NewMachine(cfg, axes, queue.New(), dec)
	r.states = []State{r.machine.State()}
	return r
}

func (r *rig) home(i int) bool {
	p := r.ring.Wrap(r.motors[i].shaft + r.shift[i])
	return p >= 1019 && p < 1528
}

// tick samples the simulated sensors, runs the machine and the motors.
func (r *rig) tick(in Inputs) State {
	in.Now = r.now
	for i := range in.Home {
		in.Home[i] = r.home(i)
	}
	st := r.machine.Tick(in)
	for _, m := range r.motors {
		m.Run()
	}
	r.now += time.Millisecond
	if st != r.states[len(r.states)-1] {
		r.states = append(r.states, st)
	}
	return st
}

// runUntil ticks with the same inputs until the machine reaches want.
func (r *rig) runUntil(in Inputs, want State, limit int) {
	r.t.Helper()
	for i := 0; i < limit; i++ {
		if r.tick(in) == want {
			return
		}
	}
	r.t.Fatalf("state %v not reached in %d cycles, stuck in %v (history %v)", want, limit, r.machine.State(), r.states)
}

func (r *rig) homeBoth() {
	r.t.Helper()
	r.runUntil(Inputs{}, StateReady, 20000)
}

func TestMachine_HomingScenario(t *testing.T) {
	r := newRig(t, testConfig)
	r.homeBoth()

	want := []State{StateHomingAxis1, StateHomingAxis2, StateReady}
	if len(r.states) != len(want) {
		t.Fatalf("transitions = %v, want %v", r.states, want)
	}
	for i := range want {
		if r.states[i] != want[i] {
			t.Fatalf("transitions = %v, want %v", r.states, want)
		}
	}
	for i := 0; i < Axes; i++ {
		if got := r.machine.Axis(i).Position(); got != 509 {
			t.Errorf("axis %d position = %d, want 509", i+1, got)
		}
		e := r.machine.Axis(i).Edges()
		if !e.Balanced() {
			t.Errorf("axis %d edges unbalanced after homing: %+v", i+1, e)
		}
		if e.Final.Position-e.Init.Position != 509 {
			t.Errorf("axis %d home zone = %d steps, want 509", i+1, e.Final.Position-e.Init.Position)
		}
	}
}

func TestMachine_HomingAxesAtDifferentAngles(t *testing.T) {
	r := newRig(t, testConfig)
	r.shift[1] = 700
	r.homeBoth()

	for i := 0; i < Axes; i++ {
		if got := r.machine.Axis(i).Position(); got != 509 {
			t.Errorf("axis %d position = %d, want 509", i+1, got)
		}
	}
}

func TestMachine_FireScenario(t *testing.T) {
	r := newRig(t, testConfig)
	r.homeBoth()

	q := r.machine.Queue()
	for _, c := range "FIRE" {
		sym, _ := braille.Parse(c)
		if err := q.Enqueue(sym); err != nil {
			t.Fatalf("Enqueue(%c): %v", c, err)
		}
	}

	r.runUntil(Inputs{Apply: true}, StateApplyingCommand, 200)
	if got, want := r.machine.Target(), (braille.Cell{Axis1: 6, Axis2: 4}); got != want {
		t.Errorf("target = %+v, want %+v", got, want)
	}
	r.runUntil(Inputs{}, StateCommandComplete, 5000)
	if q.String() != "FIRE    " {
		t.Errorf("queue before shift = %q", q.String())
	}
	r.runUntil(Inputs{}, StateReady, 10)

	if q.String() != "IRE     " || q.Len() != 3 {
		t.Errorf("queue = %q (len %d), want \"IRE     \"", q.String(), q.Len())
	}
	ring := r.ring
	if got := ring.Wrap(r.machine.Axis(0).Position()); got != ring.SectorPosition(6) {
		t.Errorf("axis 1 at %d, want sector 6 (%d)", got, ring.SectorPosition(6))
	}
	if got := ring.Wrap(r.machine.Axis(1).Position()); got != ring.SectorPosition(4) {
		t.Errorf("axis 2 at %d, want sector 4 (%d)", got, ring.SectorPosition(4))
	}

	tail := r.states[len(r.states)-4:]
	want := []State{StateApplyingCommand, StateCommandComplete, StateCalibrationApply, StateReady}
	for i := range want {
		if tail[i] != want[i] {
			t.Fatalf("transitions %v, want suffix %v", r.states, want)
		}
	}
}

func TestMachine_ApplyNeedsQueuedLetter(t *testing.T) {
	r := newRig(t, testConfig)
	r.homeBoth()
	for i := 0; i < 200; i++ {
		if st := r.tick(Inputs{Apply: true}); st != StateReady {
			t.Fatalf("empty queue left READY for %v", st)
		}
	}
}

func TestMachine_HeldApplyDrainsQueue(t *testing.T) {
	r := newRig(t, testConfig)
	r.homeBoth()
	q := r.machine.Queue()
	for _, c := range "AB" {
		sym, _ := braille.Parse(c)
		_ = q.Enqueue(sym)
	}
	for i := 0; i < 10000 && !q.Empty(); i++ {
		r.tick(Inputs{Apply: true})
	}
	if !q.Empty() {
		t.Fatalf("queue not drained: %q", q.String())
	}
}

func TestMachine_KeypadEnqueuesOncePerPress(t *testing.T) {
	r := newRig(t, testConfig)
	q := r.machine.Queue()

	press := func(sample int, reads int) {
		for i := 0; i < reads; i++ {
			r.now += 100 * time.Millisecond
			r.tick(Inputs{Key: sample, KeyRead: true})
		}
	}
	press(keySampleF, 5)
	if q.String() != "F       " {
		t.Fatalf("queue after holding F = %q", q.String())
	}
	press(keySampleIdle, 3)
	press(keySampleF, 3)
	if q.String() != "FF      " {
		t.Errorf("queue after second press = %q", q.String())
	}
}

func TestMachine_KeypadIgnoresSpike(t *testing.T) {
	r := newRig(t, testConfig)
	q := r.machine.Queue()

	r.now += 100 * time.Millisecond
	r.tick(Inputs{Key: keySampleF, KeyRead: true})
	r.tick(Inputs{Key: keySampleIdle, KeyRead: true})
	r.now += 100 * time.Millisecond
	r.tick(Inputs{Key: keySampleIdle, KeyRead: true})
	if !q.Empty() {
		t.Errorf("single-sample spike was queued: %q", q.String())
	}
}

func TestMachine_KeypadDropsWhenFull(t *testing.T) {
	r := newRig(t, testConfig)
	q := r.machine.Queue()
	for i := 0; i < queue.Capacity; i++ {
		_ = q.Enqueue('Z')
	}
	for i := 0; i < 3; i++ {
		r.now += 100 * time.Millisecond
		r.tick(Inputs{Key: keySampleF, KeyRead: true})
	}
	if q.String() != "ZZZZZZZZ" {
		t.Errorf("full queue changed to %q", q.String())
	}
}

func TestMachine_OverrideRestartsHoming(t *testing.T) {
	r := newRig(t, testConfig)
	r.homeBoth()

	r.runUntil(Inputs{Override: true}, StateHomingAxis1, 100)
	// Releasing and homing again ends at the same calibration.
	r.runUntil(Inputs{}, StateReady, 20000)
	if got := r.machine.Axis(0).Position(); got != 509 {
		t.Errorf("position after re-homing = %d, want 509", got)
	}
}

// frame returns the physical angle at which the counter of axis i reads 0.
func (r *rig) frame(i int) int {
	return r.ring.Wrap(r.motors[i].shaft + r.shift[i] - r.machine.Axis(i).Position())
}

// bootFrames homes a rig booted outside the home zone and returns the
// resulting calibration frames.
func bootFrames(t *testing.T) [Axes]int {
	t.Helper()
	r := newRig(t, testConfig)
	r.homeBoth()
	var f [Axes]int
	for i := range f {
		f[i] = r.frame(i)
	}
	return f
}

// 'A' parks both axes inside their home zones; homing again from there must
// land on the same frame as homing from outside.
func TestMachine_RehomingFromInsideHomeZone(t *testing.T) {
	want := bootFrames(t)
	r := newRig(t, testConfig)
	r.homeBoth()

	_ = r.machine.Queue().Enqueue('A')
	r.runUntil(Inputs{Apply: true}, StateApplyingCommand, 200)
	r.runUntil(Inputs{}, StateReady, 5000)
	for i := 0; i < Axes; i++ {
		if !r.home(i) {
			t.Fatalf("axis %d should rest inside its home zone after 'A'", i+1)
		}
	}

	r.runUntil(Inputs{Override: true}, StateHomingAxis1, 100)
	r.runUntil(Inputs{}, StateReady, 20000)

	for i := 0; i < Axes; i++ {
		if got := r.frame(i); got != want[i] {
			t.Errorf("axis %d frame = %d after re-homing, want %d", i+1, got, want[i])
		}
		if got := r.machine.Axis(i).Position(); got != 509 {
			t.Errorf("axis %d position = %d, want 509", i+1, got)
		}
	}
}

func TestMachine_BootInsideHomeZone(t *testing.T) {
	want := bootFrames(t)
	for _, shift := range []int{1019, 1300, 1520} {
		r := newRig(t, testConfig)
		r.shift = [Axes]int{shift, shift}
		if !r.home(0) {
			t.Fatalf("shift %d: axis should boot inside its home zone", shift)
		}
		r.homeBoth()

		for i := 0; i < Axes; i++ {
			if got := r.frame(i); got != want[i] {
				t.Errorf("shift %d: axis %d frame = %d, want %d", shift, i+1, got, want[i])
			}
			if got := r.machine.Axis(i).Position(); got != 509 {
				t.Errorf("shift %d: axis %d position = %d, want 509", shift, i+1, got)
			}
		}
	}
}

func TestMachine_OverrideDuringCommandKeepsQueue(t *testing.T) {
	r := newRig(t, testConfig)
	r.homeBoth()
	q := r.machine.Queue()
	_ = q.Enqueue('Q')

	r.runUntil(Inputs{Apply: true}, StateApplyingCommand, 200)
	r.runUntil(Inputs{Override: true}, StateHomingAxis1, 100)
	if q.String() != "Q       " {
		t.Errorf("override must not consume the command, queue %q", q.String())
	}
}

func TestMachine_HomingFault(t *testing.T) {
	r := newRig(t, Config{
		SensorDebounce: 20 * time.Millisecond,
		ButtonDebounce: 50 * time.Millisecond,
		KeyDebounce:    50 * time.Millisecond,
		MaxHomingMoves: 2,
	})
	// Sensor 2 is disconnected: it never reads home.
	var in Inputs
	for i := 0; i < 10000 && r.machine.State() != StateHomingFault; i++ {
		in.Now = r.now
		in.Home = [Axes]bool{r.home(0), false}
		r.machine.Tick(in)
		for _, m := range r.motors {
			m.Run()
		}
		r.now += time.Millisecond
	}
	if r.machine.State() != StateHomingFault {
		t.Fatalf("state = %v, want HOMING_FAULT", r.machine.State())
	}
	if !errors.Is(r.machine.Fault(), motion.ErrHomingTimeout) {
		t.Errorf("fault = %v", r.machine.Fault())
	}
	if st := r.machine.Status(); st.Fault == "" || st.Label() != "HOME_FAIL" {
		t.Errorf("status = %+v", st)
	}

	// The fault holds until the override button restarts homing.
	r.tick(Inputs{})
	if r.machine.State() != StateHomingFault {
		t.Fatal("fault cleared without override")
	}
	r.runUntil(Inputs{Override: true}, StateHomingAxis1, 100)
	if r.machine.Fault() != nil {
		t.Errorf("fault not cleared: %v", r.machine.Fault())
	}
}

// A command that ends inside the home zone records an entry without an
// exit; the unbalanced round leaves the position untouched.
func TestMachine_RecalibrationSkippedWhenUnbalanced(t *testing.T) {
	r := newRig(t, testConfig)
	r.homeBoth()

	_ = r.machine.Queue().Enqueue('A')
	r.runUntil(Inputs{Apply: true}, StateApplyingCommand, 200)
	r.runUntil(Inputs{}, StateReady, 5000)

	if r.machine.Axis(0).Edges().Balanced() {
		t.Fatalf("edges should be unbalanced: %+v", r.machine.Axis(0).Edges())
	}
	if got := r.ring.Wrap(r.machine.Axis(0).Position()); got != r.ring.SectorPosition(1) {
		t.Errorf("axis 1 at %d, want sector 1 (%d)", got, r.ring.SectorPosition(1))
	}
}

// Once an exit edge completes the round, the refresh re-centres the axis on
// the home zone and absorbs the steps the counter lost.
func TestMachine_RecalibrationCorrectsDrift(t *testing.T) {
	r := newRig(t, testConfig)
	r.homeBoth()

	// The shaft is now 30 steps ahead of what the counter says.
	r.shift[0] += 30
	q := r.machine.Queue()
	for _, c := range "AB" {
		sym, _ := braille.Parse(c)
		_ = q.Enqueue(sym)
	}
	for i := 0; i < 20000 && !(q.Empty() && r.machine.State() == StateReady); i++ {
		r.tick(Inputs{Apply: true})
	}
	if !q.Empty() || r.machine.State() != StateReady {
		t.Fatalf("commands not applied: queue %q state %v", q.String(), r.machine.State())
	}

	a := r.machine.Axis(0)
	if mid := r.ring.Wrap(a.Edges().Midpoint()); mid != 254 {
		t.Errorf("home midpoint after refresh = %d, want 254", mid)
	}
	want := r.ring.SectorPosition(6) + 30
	if got := r.ring.Wrap(a.Position()); got != want {
		t.Errorf("axis 1 counter = %d, want %d", got, want)
	}
}
