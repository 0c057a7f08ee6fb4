// Package cycle runs the actuator: one polling cycle samples the inputs,
// advances the main state machine, steps the motors and refreshes the
// display.
package cycle

import "fmt"

// State is the active state of the main cycle.
type State int

const (
	StateHomingAxis1 State = iota
	StateHomingAxis2
	StateCalibrationApply
	StateReady
	StateApplyingCommand
	StateCommandComplete
	StateHomingFault
)

var stateNames = map[State]string{
	StateHomingAxis1:      "HOMING_AXIS1",
	StateHomingAxis2:      "HOMING_AXIS2",
	StateCalibrationApply: "CALIBRATION_APPLY",
	StateReady:            "READY",
	StateApplyingCommand:  "APPLYING_COMMAND",
	StateCommandComplete:  "COMMAND_COMPLETE",
	StateHomingFault:      "HOMING_FAULT",
}

// Panel labels are exactly LabelWidth characters so a refresh overwrites the
// previous label completely.
var stateLabels = map[State]string{
	StateHomingAxis1:      "START_HOM",
	StateHomingAxis2:      "CONT_HOME",
	StateCalibrationApply: "CALIBRATE",
	StateReady:            "  READY  ",
	StateApplyingCommand:  "UPDT_CELL",
	StateCommandComplete:  "UPD_CMPLT",
	StateHomingFault:      "HOME_FAIL",
}

// LabelWidth is the width of the state field on the panel.
const LabelWidth = 9

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Label returns the short fixed-width label shown on the panel.
func (s State) Label() string {
	if label, ok := stateLabels[s]; ok {
		return label
	}
	return fmt.Sprintf("%-*.*s", LabelWidth, LabelWidth, s.String())
}

// Homing reports whether s is one of the homing phases.
func (s State) Homing() bool {
	return s == StateHomingAxis1 || s == StateHomingAxis2
}
