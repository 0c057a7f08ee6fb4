package adc

import (
	"fmt"

	"github.com/cjeanneret/BraiGo/internal/debug"
	"github.com/stianeikeland/go-rpio/v4"
)

// MCP3008 is an 8-channel 10-bit SPI converter.
// rpio.Open must have been called (the GPIO driver does it).
type MCP3008 struct {
	exchange func([]byte)
	end      func()
}

// NewMCP3008 claims SPI0 and selects the given chip-select line.
func NewMCP3008(chipSelect uint8, speedHz int) (*MCP3008, error) {
	if err := rpio.SpiBegin(rpio.Spi0); err != nil {
		return nil, fmt.Errorf("spi begin: %w", err)
	}
	if speedHz <= 0 {
		speedHz = 1_000_000
	}
	rpio.SpiSpeed(speedHz)
	rpio.SpiChipSelect(chipSelect)
	debug.Verbose("MCP3008 on SPI0 CE%d at %d Hz", chipSelect, speedHz)

	return &MCP3008{
		exchange: rpio.SpiExchange,
		end:      func() { rpio.SpiEnd(rpio.Spi0) },
	}, nil
}

// Read performs a single-ended conversion on channel 0-7.
func (a *MCP3008) Read(channel int) (int, error) {
	if channel < 0 || channel > 7 {
		return 0, fmt.Errorf("adc: channel %d out of range", channel)
	}
	// Start bit, single-ended + channel in the high nibble, then clock out 10 bits.
	buf := []byte{0x01, byte(0x08|channel) << 4, 0x00}
	if !debug.IsEnabled(debug.LevelTrace) {
		a.exchange(buf)
		return decode(buf), nil
	}
	tx := append([]byte(nil), buf...)
	a.exchange(buf)
	debug.SPI(channel, tx, buf)
	return decode(buf), nil
}

// decode extracts the 10-bit result from the last two bytes of a reply.
func decode(buf []byte) int {
	return int(buf[1]&0x03)<<8 | int(buf[2])
}

func (a *MCP3008) Close() error {
	if a.end != nil {
		a.end()
	}
	return nil
}
