// Package gpio supplies edge-configured input lines and reports the edge events
// pending on them.
//
// The dispatch core only depends on the Line and Provider interfaces. Chip is
// the implementation backed by the Linux GPIO character device.
package gpio

import (
	"errors"
	"fmt"
	"time"
)

const (
	// DefaultChip is the gpiochip exposing the Raspberry Pi header lines.
	DefaultChip = "gpiochip0"
	// DefaultConsumer tags every line this module claims.
	DefaultConsumer = "zyncoder"
)

var (
	ErrChipOpen    = errors.New("gpio: can't open chip")
	ErrLineRequest = errors.New("gpio: can't request line")
	ErrNoEvent     = errors.New("gpio: no pending event")
	ErrClosed      = errors.New("gpio: chip closed")
	ErrUnknownLine = errors.New("gpio: line not held by this chip")
)

// Line is an opaque handle to an input line that has been claimed for edge
// detection. It is owned by whoever requested it; holders of a Line must not
// close it.
type Line interface {
	// Offset is the line's offset on its chip, which doubles as the pin number.
	Offset() int
}

// Event is a single edge reported on a line.
type Event struct {
	Pin    int
	Rising bool
	// Timestamp is the kernel's monotonic event time.
	Timestamp time.Duration
	Seqno     uint32
}

func (e Event) String() string {
	edge := "falling"
	if e.Rising {
		edge = "rising"
	}
	return fmt.Sprintf("pin %d %s edge #%d at %s", e.Pin, edge, e.Seqno, e.Timestamp)
}

// Provider waits for and reads edge events on a set of lines.
type Provider interface {
	// WaitEvents blocks until at least one of lines has a pending event or
	// timeout elapses. It returns the lines with pending events in the order
	// they were given, or nil on timeout.
	WaitEvents(lines []Line, timeout time.Duration) ([]Line, error)

	// ReadEvent removes and returns the oldest pending event on line. It must
	// be called once per fired line before the next WaitEvents.
	ReadEvent(line Line) (Event, error)
}

// Pull selects the bias applied to a requested line.
type Pull int

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

// ParsePull accepts "", "none", "up" and "down".
func ParsePull(s string) (Pull, error) {
	switch s {
	case "", "none":
		return PullNone, nil
	case "up":
		return PullUp, nil
	case "down":
		return PullDown, nil
	default:
		return PullNone, fmt.Errorf("gpio: unknown pull %q", s)
	}
}

func (p Pull) String() string {
	switch p {
	case PullUp:
		return "up"
	case PullDown:
		return "down"
	default:
		return "none"
	}
}
