// Package queue implements the fixed-capacity FIFO of pending letters.
package queue

import (
	"errors"
	"strings"

	"github.com/cjeanneret/BraiGo/internal/logic/braille"
)

// Capacity is the number of pending letters the queue can hold.
const Capacity = 8

var (
	// ErrFull is returned by Enqueue when all slots are taken. The queue is
	// left unchanged.
	ErrFull = errors.New("queue: full")
	// ErrInvalidSymbol is returned for anything that is not a letter.
	ErrInvalidSymbol = errors.New("queue: invalid symbol")
)

// Queue keeps the oldest pending letter at slot 0. Unused slots hold
// braille.None as an explicit empty marker.
type Queue struct {
	slots  [Capacity]braille.Symbol
	length int
}

// New returns an empty queue.
func New() *Queue {
	return &Queue{}
}

// Enqueue appends a letter at the tail.
func (q *Queue) Enqueue(sym braille.Symbol) error {
	if !sym.Valid() {
		return ErrInvalidSymbol
	}
	if q.length == Capacity {
		return ErrFull
	}
	q.slots[q.length] = sym
	q.length++
	return nil
}

// Peek returns the head without removing it.
func (q *Queue) Peek() (braille.Symbol, bool) {
	if q.length == 0 {
		return braille.None, false
	}
	return q.slots[0], true
}

// DequeueAndShift drops the head, moves every remaining letter one slot
// toward the head and marks the vacated tail slot empty. It is a no-op on an
// empty queue.
func (q *Queue) DequeueAndShift() {
	if q.length == 0 {
		return
	}
	copy(q.slots[:], q.slots[1:])
	q.slots[Capacity-1] = braille.None
	q.length--
}

// Len returns the number of pending letters.
func (q *Queue) Len() int {
	return q.length
}

// Empty reports whether nothing is pending.
func (q *Queue) Empty() bool {
	return q.length == 0
}

// Slots returns a copy of the backing slots, empty markers included.
func (q *Queue) Slots() [Capacity]braille.Symbol {
	return q.slots
}

// String renders every slot, empty slots as spaces, so the text always has
// Capacity characters (the LCD overwrites the previous frame in place).
func (q *Queue) String() string {
	var b strings.Builder
	for _, s := range q.slots {
		if s.Valid() {
			b.WriteByte(byte(s))
		} else {
			b.WriteByte(' ')
		}
	}
	return b.String()
}
