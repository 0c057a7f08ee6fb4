package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/cjeanneret/BraiGo/internal/config"
	"github.com/cjeanneret/BraiGo/internal/debug"
	"github.com/cjeanneret/BraiGo/internal/hw/adc"
	"github.com/cjeanneret/BraiGo/internal/hw/display"
	"github.com/cjeanneret/BraiGo/internal/hw/gpio"
	"github.com/cjeanneret/BraiGo/internal/hw/stepper"
	"github.com/cjeanneret/BraiGo/internal/logic/axis"
	"github.com/cjeanneret/BraiGo/internal/logic/braille"
	"github.com/cjeanneret/BraiGo/internal/logic/cycle"
	"github.com/cjeanneret/BraiGo/internal/logic/geometry"
	"github.com/cjeanneret/BraiGo/internal/logic/keypad"
	"github.com/cjeanneret/BraiGo/internal/logic/queue"
	"github.com/cjeanneret/BraiGo/internal/web"
)

func main() {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start the status mirror on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	debugLevel := flag.Int("debug_level", -1, "override debug level (0-4), -1 keeps the config value")
	mock := flag.Bool("mock", false, "use mock GPIO and ADC")
	displayType := flag.String("display", "", "override display type (lcd, terminal, log, none)")
	initialQueue := flag.String("queue", "", "override the letters queued at start-up; -queue= starts empty")
	flag.Parse()

	ov := cliOverrides{
		DebugLevel: *debugLevel,
		Display:    *displayType,
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "mock":
			ov.Mock = mock
		case "queue":
			ov.Queue = initialQueue
		}
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := config.ValidateConfigPath(*cfgPath); err != nil {
		log.Fatalf("invalid config path: %v", err)
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	// Validate CLI overrides, then re-validate the merged config
	if err := validateCLIOverrides(ov); err != nil {
		log.Fatalf("invalid CLI override: %v", err)
	}
	applyOverrides(cfg, ov)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	// Initialize debug system
	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", debug.Level())

	// Initialize GPIO driver
	debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)
	debug.Step(1, "Initializing GPIO driver")
	gpioDriver, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
	if err != nil {
		log.Fatalf("init GPIO failed: %v", err)
	}
	defer func() {
		if err := gpioDriver.Close(); err != nil {
			log.Printf("closing GPIO driver failed: %v", err)
		}
	}()

	debug.Step(2, "Initializing keypad ADC")
	adcReader, err := adc.NewReader(cfg.Defaults.MockGPIO, cfg.Keypad.ChipSelect, cfg.Keypad.SpiSpeedHz)
	if err != nil {
		log.Fatalf("init ADC failed: %v", err)
	}
	defer func() {
		if err := adcReader.Close(); err != nil {
			log.Printf("closing ADC failed: %v", err)
		}
	}()
	decoder, err := keypad.NewDecoder(cfg.Ladder())
	if err != nil {
		log.Fatalf("build keypad decoder failed: %v", err)
	}

	// Initialize stepper motors and axes
	debug.Step(3, "Initializing axes")
	motors, axes := newAxes(gpioDriver, cfg)
	defer func() {
		for _, m := range motors {
			if err := m.Release(); err != nil {
				log.Printf("releasing motor failed: %v", err)
			}
		}
	}()

	debug.Step(4, "Preparing command queue")
	q := queue.New()
	if err := preloadQueue(q, cfg.Defaults.InitialQueue); err != nil {
		log.Fatalf("preload queue failed: %v", err)
	}
	debug.Value("Initial queue", q.String())

	machine := cycle.NewMachine(cycle.Config{
		SensorDebounce: cfg.SensorDebounce(),
		ButtonDebounce: cfg.ButtonDebounce(),
		KeyDebounce:    cfg.KeyDebounce(),
		MaxHomingMoves: cfg.Homing.MaxMoves,
	}, axes, q, decoder)

	debug.Step(5, "Opening display")
	panel, err := display.Open(display.Config{
		Type:    cfg.Display.Type,
		I2CBus:  cfg.Display.I2CBus,
		Address: cfg.Display.Address,
		Cols:    cfg.Display.Cols,
		Rows:    cfg.Display.Rows,
	})
	if err != nil {
		log.Fatalf("open display failed: %v", err)
	}
	var sink cycle.Display
	if panel != nil {
		sink = panel
		defer func() {
			if err := panel.Close(); err != nil {
				log.Printf("closing display failed: %v", err)
			}
		}()
	}

	loop, err := cycle.NewLoop(machine, gpioDriver, adcReader, sink, cycle.LoopConfig{
		Pins: cycle.Pins{
			Home:       [cycle.Axes]int{cfg.Inputs.Home1Pin, cfg.Inputs.Home2Pin},
			Override:   cfg.Inputs.OverridePin,
			Apply:      cfg.Inputs.ApplyPin,
			KeyChannel: cfg.Keypad.Channel,
		},
		PrintClock: cfg.PrintClock(),
		Poll:       cfg.PollInterval(),
	})
	if err != nil {
		log.Fatalf("init loop failed: %v", err)
	}

	if port := webPort.port(); port > 0 {
		broadcaster := web.NewStatusBroadcaster()
		debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))
		srv, err := web.NewServer(fmt.Sprintf(":%d", port), broadcaster, deviceInfo(cfg))
		if err != nil {
			log.Fatalf("web server: %v", err)
		}
		loop.Observe(func(s cycle.Status) {
			broadcaster.Publish(web.FromStatus(s))
		})
		go func() {
			if err := srv.Run(ctx); err != nil {
				debug.Error(fmt.Errorf("web server: %w", err))
			}
		}()
	}

	debug.Summary("BraiGo running")
	if err := loop.Run(ctx); err != nil {
		log.Printf("loop stopped: %v", err)
	}
	debug.Info("Stopped after %d cycles in state %s", loop.Cycles(), machine.State())
}

// newAxes builds one stepper and axis controller per configured axis.
func newAxes(g gpio.Driver, cfg *config.Config) ([cycle.Axes]*stepper.Stepper, [cycle.Axes]*axis.Axis) {
	var motors [cycle.Axes]*stepper.Stepper
	var axes [cycle.Axes]*axis.Axis
	for i, ac := range cfg.Axes() {
		motors[i] = stepper.NewStepper(g, stepper.Config{
			Name:         ac.Name,
			Pins:         ac.Pins,
			MaxSpeed:     ac.MaxSpeed,
			Acceleration: ac.Acceleration,
		})
		axes[i] = axis.New(ac.Name, motors[i], geometry.NewRing(ac.StepsPerRotation))
		debug.PrintStruct("Axis "+ac.Name, ac)
	}
	return motors, axes
}

// preloadQueue enqueues letters in order.
func preloadQueue(q *queue.Queue, letters string) error {
	for _, r := range letters {
		sym, err := braille.Parse(r)
		if err != nil {
			return err
		}
		if err := q.Enqueue(sym); err != nil {
			return fmt.Errorf("letter %q: %w", r, err)
		}
	}
	return nil
}

// deviceInfo summarises the configuration for the status mirror.
func deviceInfo(cfg *config.Config) web.DeviceInfo {
	info := web.DeviceInfo{
		QueueCapacity: queue.Capacity,
		KeypadLayout:  cfg.Keypad.Layout,
		Display:       cfg.Display.Type,
		PrintClockMs:  cfg.Timing.PrintClockMs,
	}
	for _, ac := range cfg.Axes() {
		ring := geometry.NewRing(ac.StepsPerRotation)
		info.Axes = append(info.Axes, web.AxisInfo{
			Name:             ac.Name,
			StepsPerRotation: ring.StepsPerRotation(),
			SectorSteps:      ring.SectorSteps(),
		})
	}
	return info
}

// cliOverrides holds command-line values that take precedence over the
// config file. Unset values keep the config value.
type cliOverrides struct {
	DebugLevel int     // -1 keeps the config value
	Display    string  // empty keeps the config value
	Queue      *string // nil when -queue was not given
	Mock       *bool   // nil when -mock was not given
}

// validateCLIOverrides checks the overrides that config.Validate cannot
// tell apart from "not set".
func validateCLIOverrides(ov cliOverrides) error {
	if ov.DebugLevel < -1 || ov.DebugLevel > 4 {
		return fmt.Errorf("debug_level must be between 0 and 4, got %d", ov.DebugLevel)
	}
	if ov.Queue != nil {
		for _, r := range *ov.Queue {
			if _, err := braille.Parse(r); err != nil {
				return fmt.Errorf("queue: %w", err)
			}
		}
	}
	return nil
}

// applyOverrides mutates cfg with overrides. Only set values are applied.
func applyOverrides(cfg *config.Config, ov cliOverrides) {
	if ov.DebugLevel >= 0 {
		cfg.Defaults.DebugLevel = ov.DebugLevel
	}
	if ov.Display != "" {
		cfg.Display.Type = ov.Display
	}
	if ov.Queue != nil {
		cfg.Defaults.InitialQueue = *ov.Queue
	}
	if ov.Mock != nil {
		cfg.Defaults.MockGPIO = *ov.Mock
	}
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }
