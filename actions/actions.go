// Package actions builds the callbacks bound to GPIO pins.
package actions

import (
	"errors"
	"fmt"
	"sync"

	"github.com/hypebeast/go-osc/osc"
	midi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"github.com/wanthalf/zyncoder/callbacks"
	"github.com/wanthalf/zyncoder/logging"
)

// Log reports every edge on pin.
func Log(pin int) callbacks.Callback {
	log := logging.Get(logging.APP)
	return func() error {
		log.Info("Callback pin", "pin", pin)
		return nil
	}
}

// OscSender is satisfied by *osc.Client.
type OscSender interface {
	Send(packet osc.Packet) error
}

// OSC sends address with the pin number as its only argument on every edge.
func OSC(client OscSender, address string, pin int) callbacks.Callback {
	log := logging.Get(logging.APP)
	return func() error {
		log.Debug("Sending OSC edge message", "address", address, "pin", pin)
		return client.Send(osc.NewMessage(address, int32(pin)))
	}
}

// MIDIToggle flips a control change between 127 and 0 on every edge. Both
// edges are reported, so a momentary button sends 127 when pressed and 0 when
// released as long as it is idle when monitoring starts.
func MIDIToggle(out drivers.Out, channel, controller uint8) callbacks.Callback {
	log := logging.Get(logging.APP)
	var (
		mu sync.Mutex
		on bool
	)
	return func() error {
		mu.Lock()
		on = !on
		value := uint8(0)
		if on {
			value = 127
		}
		mu.Unlock()
		log.Debug("Sending Control Change", "channel", channel, "controller", controller, "value", value)
		return out.Send(midi.ControlChange(channel, controller, value))
	}
}

// Chain runs every callback in order. All callbacks run even if one fails;
// the failures are joined.
func Chain(cbs ...callbacks.Callback) callbacks.Callback {
	return func() error {
		var errs []error
		for i, cb := range cbs {
			if err := cb(); err != nil {
				errs = append(errs, fmt.Errorf("action %d: %w", i, err))
			}
		}
		return errors.Join(errs...)
	}
}
