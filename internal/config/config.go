package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cjeanneret/BraiGo/internal/logic/braille"
	"github.com/cjeanneret/BraiGo/internal/logic/keypad"
	"github.com/cjeanneret/BraiGo/internal/logic/queue"
)

// MaxConfigFileBytes bounds the size of a configuration file.
const MaxConfigFileBytes = 64 * 1024

// AxisConfig holds the configuration for one rotary axis and its
// 28BYJ-48 motor on a ULN2003 board.
type AxisConfig struct {
	Name             string  `yaml:"name"`
	Pins             [4]int  `yaml:"pins"`               // coil pins (BCM) in IN1, IN3, IN2, IN4 order
	StepsPerRotation int     `yaml:"steps_per_rotation"` // half steps per output shaft turn
	MaxSpeed         float64 `yaml:"max_speed"`          // steps per second
	Acceleration     float64 `yaml:"acceleration"`       // steps per second per second
}

// InputsConfig lists the digital inputs (BCM). All are active LOW with the
// internal pull-up enabled.
type InputsConfig struct {
	Home1Pin    int `yaml:"home1_pin"`
	Home2Pin    int `yaml:"home2_pin"`
	OverridePin int `yaml:"override_pin"` // forces a new homing run
	ApplyPin    int `yaml:"apply_pin"`    // held to apply queued letters
}

// KeypadConfig describes the resistor-ladder keypad and its ADC.
type KeypadConfig struct {
	Channel       int    `yaml:"adc_channel"`     // MCP3008 channel 0-7
	ChipSelect    uint8  `yaml:"spi_chip_select"` // SPI0 CE0 or CE1
	SpiSpeedHz    int    `yaml:"spi_speed_hz"`
	ReferenceOhms int    `yaml:"reference_ohms"`
	StepOhms      int    `yaml:"step_ohms"`
	ADCMax        int    `yaml:"adc_max"`
	Layout        string `yaml:"layout"` // letters by increasing resistance
}

// TimingConfig holds debounce windows and loop pacing.
type TimingConfig struct {
	SensorDebounceMs int `yaml:"sensor_debounce_ms"`
	ButtonDebounceMs int `yaml:"button_debounce_ms"`
	KeyDebounceMs    int `yaml:"key_debounce_ms"`
	PrintClockMs     int `yaml:"print_clock_ms"`   // display refresh and keypad read period
	PollIntervalUs   int `yaml:"poll_interval_us"` // pause between cycles, 0 = spin
}

// HomingConfig bounds the homing search.
type HomingConfig struct {
	MaxMoves int `yaml:"max_moves"` // seek moves per axis and phase before a fault
}

// DisplayConfig selects the status panel.
type DisplayConfig struct {
	Type    string `yaml:"type"` // "lcd", "terminal", "log" or "none"
	I2CBus  string `yaml:"i2c_bus"`
	Address uint16 `yaml:"address"`
	Cols    int    `yaml:"cols"`
	Rows    int    `yaml:"rows"`
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	InitialQueue string `yaml:"initial_queue"` // letters queued at start-up
	DebugLevel   int    `yaml:"debug_level"`   // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO     bool   `yaml:"mock_gpio"`     // use mock GPIO and ADC (true=dev/test, false=real Raspberry Pi)
}

// Config aggregates all application configuration.
type Config struct {
	Axis1    AxisConfig     `yaml:"axis1"`
	Axis2    AxisConfig     `yaml:"axis2"`
	Inputs   InputsConfig   `yaml:"inputs"`
	Keypad   KeypadConfig   `yaml:"keypad"`
	Timing   TimingConfig   `yaml:"timing"`
	Homing   HomingConfig   `yaml:"homing"`
	Display  DisplayConfig  `yaml:"display"`
	Defaults DefaultsConfig `yaml:"defaults"`
}

// ValidateConfigPath accepts only *.yaml files directly inside a configs/
// directory.
func ValidateConfigPath(path string) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	clean := filepath.Clean(path)
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("config path %q: extension must be .yaml", path)
	}
	if filepath.Base(filepath.Dir(clean)) != "configs" {
		return fmt.Errorf("config path %q: file must be in a configs/ directory", path)
	}
	return nil
}

// Load reads a YAML file and returns the configuration with defaults
// applied.
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if info.Size() > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file is %d bytes, limit is %d", info.Size(), MaxConfigFileBytes)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	for i, a := range []*AxisConfig{&c.Axis1, &c.Axis2} {
		if a.Name == "" {
			a.Name = fmt.Sprintf("axis%d", i+1)
		}
		if a.StepsPerRotation <= 0 {
			a.StepsPerRotation = 2038 // 28BYJ-48, half steps
		}
		if a.MaxSpeed <= 0 {
			a.MaxSpeed = 3000
		}
		if a.Acceleration <= 0 {
			a.Acceleration = 1000
		}
	}

	ladder := keypad.DefaultLadder()
	if c.Keypad.ReferenceOhms <= 0 {
		c.Keypad.ReferenceOhms = ladder.ReferenceOhms
	}
	if c.Keypad.StepOhms <= 0 {
		c.Keypad.StepOhms = ladder.StepOhms
	}
	if c.Keypad.ADCMax <= 0 {
		c.Keypad.ADCMax = ladder.ADCMax
	}
	if c.Keypad.Layout == "" {
		c.Keypad.Layout = ladder.Layout
	}
	if c.Keypad.SpiSpeedHz <= 0 {
		c.Keypad.SpiSpeedHz = 1000000
	}

	if c.Timing.SensorDebounceMs <= 0 {
		c.Timing.SensorDebounceMs = 20
	}
	if c.Timing.ButtonDebounceMs <= 0 {
		c.Timing.ButtonDebounceMs = 50
	}
	if c.Timing.KeyDebounceMs <= 0 {
		c.Timing.KeyDebounceMs = 50
	}
	if c.Timing.PrintClockMs <= 0 {
		c.Timing.PrintClockMs = 100
	}
	if c.Timing.PollIntervalUs < 0 {
		c.Timing.PollIntervalUs = 0
	}

	if c.Homing.MaxMoves <= 0 {
		c.Homing.MaxMoves = 4 // two full turns of search
	}

	if c.Display.Type == "" {
		c.Display.Type = "log"
	}
	if c.Display.Address == 0 {
		c.Display.Address = 0x3F
	}
	if c.Display.Cols <= 0 {
		c.Display.Cols = 16
	}
	if c.Display.Rows <= 0 {
		c.Display.Rows = 2
	}
}

// Validate checks ranges and pin assignments.
func (c *Config) Validate() error {
	used := make(map[int]string)
	claim := func(pin int, what string) error {
		if pin <= 0 || pin > 27 {
			return fmt.Errorf("%s: BCM pin %d out of range 1-27", what, pin)
		}
		if other, ok := used[pin]; ok {
			return fmt.Errorf("%s: pin %d already used by %s", what, pin, other)
		}
		used[pin] = what
		return nil
	}

	for _, a := range []AxisConfig{c.Axis1, c.Axis2} {
		for i, p := range a.Pins {
			if err := claim(p, fmt.Sprintf("%s.pins[%d]", a.Name, i)); err != nil {
				return err
			}
		}
		if a.StepsPerRotation < braille.Sectors {
			return fmt.Errorf("%s.steps_per_rotation must be >= %d, got %d", a.Name, braille.Sectors, a.StepsPerRotation)
		}
	}
	for _, in := range []struct {
		pin  int
		name string
	}{
		{c.Inputs.Home1Pin, "inputs.home1_pin"},
		{c.Inputs.Home2Pin, "inputs.home2_pin"},
		{c.Inputs.OverridePin, "inputs.override_pin"},
		{c.Inputs.ApplyPin, "inputs.apply_pin"},
	} {
		if err := claim(in.pin, in.name); err != nil {
			return err
		}
	}

	if c.Keypad.Channel < 0 || c.Keypad.Channel > 7 {
		return fmt.Errorf("keypad.adc_channel must be between 0 and 7, got %d", c.Keypad.Channel)
	}
	if c.Keypad.ChipSelect > 1 {
		return fmt.Errorf("keypad.spi_chip_select must be 0 or 1, got %d", c.Keypad.ChipSelect)
	}
	if _, err := keypad.NewDecoder(c.Ladder()); err != nil {
		return fmt.Errorf("keypad: %w", err)
	}

	if len(c.Defaults.InitialQueue) > queue.Capacity {
		return fmt.Errorf("defaults.initial_queue holds %d letters, capacity is %d", len(c.Defaults.InitialQueue), queue.Capacity)
	}
	for _, r := range c.Defaults.InitialQueue {
		if _, err := braille.Parse(r); err != nil {
			return fmt.Errorf("defaults.initial_queue: %w", err)
		}
	}
	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("defaults.debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}

	switch c.Display.Type {
	case "lcd", "terminal", "log", "none":
	default:
		return fmt.Errorf("display.type %q is not one of lcd, terminal, log, none", c.Display.Type)
	}
	return nil
}

// Ladder returns the keypad circuit for the decoder.
func (c *Config) Ladder() keypad.Ladder {
	return keypad.Ladder{
		ReferenceOhms: c.Keypad.ReferenceOhms,
		StepOhms:      c.Keypad.StepOhms,
		ADCMax:        c.Keypad.ADCMax,
		Layout:        c.Keypad.Layout,
	}
}

// Axes returns both axis configurations in order.
func (c *Config) Axes() [2]AxisConfig {
	return [2]AxisConfig{c.Axis1, c.Axis2}
}

// SensorDebounce returns the home sensor debounce window.
func (c *Config) SensorDebounce() time.Duration {
	return time.Duration(c.Timing.SensorDebounceMs) * time.Millisecond
}

// ButtonDebounce returns the button debounce window.
func (c *Config) ButtonDebounce() time.Duration {
	return time.Duration(c.Timing.ButtonDebounceMs) * time.Millisecond
}

// KeyDebounce returns the keypad debounce window.
func (c *Config) KeyDebounce() time.Duration {
	return time.Duration(c.Timing.KeyDebounceMs) * time.Millisecond
}

// PrintClock returns the display refresh period.
func (c *Config) PrintClock() time.Duration {
	return time.Duration(c.Timing.PrintClockMs) * time.Millisecond
}

// PollInterval returns the pause between two cycles.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Timing.PollIntervalUs) * time.Microsecond
}
