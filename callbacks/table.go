package callbacks

import (
	"fmt"

	"github.com/wanthalf/zyncoder/devices/gpio"
)

// NumPins is the number of GPIO lines on the Raspberry Pi SoC, and so the
// capacity of a Table.
const NumPins = 54

// Unused marks a table slot with no registration.
const Unused = -1

// Callback runs on the dispatch loop each time an edge fires on its pin.
type Callback func() error

// Entry binds a pin to its line and callback.
//
// If Pin is not Unused, Line and Callback are both non-nil.
type Entry struct {
	Pin      int
	Line     gpio.Line
	Callback Callback
}

func (e Entry) Unused() bool {
	return e.Pin == Unused
}

var unusedEntry = Entry{Pin: Unused}

// Table maps pins to their callbacks. It is indexed by pin, never resized, and
// copying a Table yields an independent snapshot. A Table is not safe for
// concurrent use.
type Table struct {
	entries [NumPins]Entry
}

// NewTable returns a table with every entry unused.
func NewTable() *Table {
	t := &Table{}
	t.Init()
	return t
}

// Init resets every entry to unused.
func (t *Table) Init() {
	for i := range t.entries {
		t.entries[i] = unusedEntry
	}
}

func pinOf(line gpio.Line) (int, error) {
	if line == nil {
		return Unused, ErrNilLine
	}
	pin := line.Offset()
	if pin < 0 || pin >= NumPins {
		return Unused, fmt.Errorf("%w: %d", ErrInvalidPin, pin)
	}
	return pin, nil
}

// Register binds callback to line's pin, replacing any existing binding.
func (t *Table) Register(line gpio.Line, callback Callback) error {
	pin, err := pinOf(line)
	if err != nil {
		return err
	}
	if callback == nil {
		return ErrNilCallback
	}
	t.entries[pin] = Entry{Pin: pin, Line: line, Callback: callback}
	return nil
}

// Unregister resets line's pin to unused. Unregistering an unused pin is not
// an error.
func (t *Table) Unregister(line gpio.Line) error {
	pin, err := pinOf(line)
	if err != nil {
		return err
	}
	t.entries[pin] = unusedEntry
	return nil
}

// Entry returns the entry for pin; out of range pins read as unused.
func (t *Table) Entry(pin int) Entry {
	if pin < 0 || pin >= NumPins {
		return unusedEntry
	}
	return t.entries[pin]
}

func (t *Table) set(pin int, e Entry) {
	t.entries[pin] = e
}

// Lookup returns the callback registered for pin.
func (t *Table) Lookup(pin int) (Callback, bool) {
	e := t.Entry(pin)
	if e.Unused() {
		return nil, false
	}
	return e.Callback, true
}

// Lines returns the line of every registered entry in pin order. This is the
// set the dispatch loop waits on.
func (t *Table) Lines() []gpio.Line {
	var lines []gpio.Line
	for _, e := range t.entries {
		if !e.Unused() {
			lines = append(lines, e.Line)
		}
	}
	return lines
}

// Len is the number of registered pins.
func (t *Table) Len() int {
	n := 0
	for _, e := range t.entries {
		if !e.Unused() {
			n++
		}
	}
	return n
}
