// Package adc reads the keypad's resistor ladder through an analog-to-digital
// converter. The Pi has no analog inputs, so the ladder sits on an MCP3008
// wired to SPI0.
package adc

import (
	"fmt"
	"sync"

	"github.com/cjeanneret/BraiGo/internal/debug"
)

// MaxValue is the full-scale reading of a 10-bit converter.
const MaxValue = 1023

// Reader returns one raw sample in [0, MaxValue] for a channel.
type Reader interface {
	Read(channel int) (int, error)
	Close() error
}

// NewReader returns an MCP3008 reader, or a Mock when mock is true.
func NewReader(mock bool, chipSelect uint8, speedHz int) (Reader, error) {
	if mock {
		debug.Info("Using MOCK ADC (development mode)")
		return NewMock(), nil
	}
	return NewMCP3008(chipSelect, speedHz)
}

// Mock is an in-memory Reader. Channels idle at full scale, which is what an
// unpressed pulled-up keypad ladder reads.
type Mock struct {
	mu     sync.Mutex
	values map[int]int
}

func NewMock() *Mock {
	return &Mock{values: make(map[int]int)}
}

// Set forces the value returned for a channel.
func (m *Mock) Set(channel, value int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[channel] = value
}

func (m *Mock) Read(channel int) (int, error) {
	if channel < 0 || channel > 7 {
		return 0, fmt.Errorf("adc: channel %d out of range", channel)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[channel]
	if !ok {
		return MaxValue, nil
	}
	return v, nil
}

func (m *Mock) Close() error { return nil }
