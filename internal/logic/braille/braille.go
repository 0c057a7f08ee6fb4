// Package braille holds the alphabet accepted by the actuator and the
// static table that maps each letter to the sector pair forming its cell.
package braille

import "fmt"

// Symbol is one letter of the keypad alphabet. The zero value is None.
type Symbol byte

// None is the "no key" sentinel produced for idle or out-of-range samples.
const None Symbol = 0

// Sectors is the number of evenly spaced target positions per axis.
const Sectors = 8

// Sector addresses one of the Sectors angular positions of an axis (0..7).
type Sector int

// Cell is the pair of sectors that raises the dots of one letter.
type Cell struct {
	Axis1 Sector
	Axis2 Sector
}

var cells = map[Symbol]Cell{
	'A': {1, 0}, 'B': {6, 0}, 'C': {1, 4}, 'D': {1, 3}, 'E': {1, 7},
	'F': {6, 4}, 'G': {6, 3}, 'H': {6, 7}, 'I': {7, 4}, 'J': {7, 3},
	'K': {5, 0}, 'L': {2, 0}, 'M': {5, 4}, 'N': {5, 3}, 'O': {5, 7},
	'P': {2, 4}, 'Q': {2, 3}, 'R': {2, 7}, 'S': {3, 4}, 'T': {3, 3},
	'U': {5, 1}, 'V': {2, 1}, 'W': {7, 2}, 'X': {5, 5}, 'Y': {5, 2},
	'Z': {5, 6},
}

// Valid reports whether s is one of the 26 letters.
func (s Symbol) Valid() bool {
	return s >= 'A' && s <= 'Z'
}

func (s Symbol) String() string {
	if s == None {
		return "none"
	}
	if !s.Valid() {
		return fmt.Sprintf("Symbol(%d)", byte(s))
	}
	return string(rune(s))
}

// Parse converts a letter (either case) to a Symbol.
func Parse(r rune) (Symbol, error) {
	if r >= 'a' && r <= 'z' {
		r -= 'a' - 'A'
	}
	s := Symbol(r)
	if r > 0xFF || !s.Valid() {
		return None, fmt.Errorf("braille: %q is not a letter", r)
	}
	return s, nil
}

// Lookup returns the cell for a letter.
func Lookup(s Symbol) (Cell, bool) {
	c, ok := cells[s]
	return c, ok
}
