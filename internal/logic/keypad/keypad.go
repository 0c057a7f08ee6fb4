// Package keypad decodes the resistor-ladder keypad. Each key switches a
// different resistance against a fixed reference resistor, so every key
// produces its own voltage band on the ADC.
package keypad

import (
	"fmt"
	"sort"

	"github.com/cjeanneret/BraiGo/internal/logic/braille"
)

// DefaultLayout lists the keys from the lowest ladder resistance upward.
const DefaultLayout = "ZXVTRPNLJHFDBACEGIKMOQSUWY"

// Ladder describes the keypad circuit.
type Ladder struct {
	ReferenceOhms int    // resistor between the ADC input and the supply
	StepOhms      int    // resistance added by each successive key
	ADCMax        int    // full-scale ADC reading (1023 for 10 bits)
	Layout        string // letters ordered by increasing resistance
}

// DefaultLadder is the 10 kΩ / 1 kΩ ladder read by a 10-bit converter.
func DefaultLadder() Ladder {
	return Ladder{
		ReferenceOhms: 10000,
		StepOhms:      1000,
		ADCMax:        1023,
		Layout:        DefaultLayout,
	}
}

// Band is the half-open sample interval (Low, High] mapped to Symbol.
type Band struct {
	Low, High int
	Symbol    braille.Symbol
}

// Decoder maps raw samples to symbols. It holds no per-sample state.
type Decoder struct {
	adcMax int
	bands  []Band
}

// NewDecoder precomputes the sample thresholds for a ladder.
// Key k is accepted while the ladder resistance is below (k + 1/2) steps,
// i.e. sample*Ref < Rk*(ADCMax+1-sample). Samples above the last band form
// the idle gap (no key pressed) and decode to braille.None.
func NewDecoder(l Ladder) (*Decoder, error) {
	if l.ReferenceOhms <= 0 || l.StepOhms <= 0 || l.ADCMax <= 0 {
		return nil, fmt.Errorf("keypad: invalid ladder %+v", l)
	}
	if len(l.Layout) == 0 {
		return nil, fmt.Errorf("keypad: empty layout")
	}

	d := &Decoder{adcMax: l.ADCMax}
	full := int64(l.ADCMax) + 1
	low := -1
	seen := make(map[braille.Symbol]bool)
	for k, r := range l.Layout {
		sym, err := braille.Parse(r)
		if err != nil {
			return nil, fmt.Errorf("keypad: layout: %w", err)
		}
		if seen[sym] {
			return nil, fmt.Errorf("keypad: layout repeats %v", sym)
		}
		seen[sym] = true

		threshold := int64(l.StepOhms)*int64(k) + int64(l.StepOhms)/2
		if threshold <= 0 {
			return nil, fmt.Errorf("keypad: step of %d ohm is too small", l.StepOhms)
		}
		high := int((threshold*full - 1) / (int64(l.ReferenceOhms) + threshold))
		if high > l.ADCMax {
			high = l.ADCMax
		}
		if high <= low {
			return nil, fmt.Errorf("keypad: key %v has an empty band at threshold %d ohm", sym, threshold)
		}
		d.bands = append(d.bands, Band{Low: low, High: high, Symbol: sym})
		low = high
	}
	return d, nil
}

// Decode returns the symbol for a raw sample, or braille.None when the
// sample lies in the idle gap or outside [0, ADCMax].
func (d *Decoder) Decode(sample int) braille.Symbol {
	if sample < 0 || sample > d.adcMax {
		return braille.None
	}
	i := sort.Search(len(d.bands), func(i int) bool { return sample <= d.bands[i].High })
	if i == len(d.bands) {
		return braille.None
	}
	return d.bands[i].Symbol
}

// Bands returns a copy of the band table, lowest first.
func (d *Decoder) Bands() []Band {
	return append([]Band(nil), d.bands...)
}
