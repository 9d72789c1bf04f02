// Package binder claims the configured pins and keeps their callbacks
// registered with a Dispatcher as the configuration changes.
package binder

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"gitlab.com/gomidi/midi/v2/drivers"

	"github.com/wanthalf/zyncoder/actions"
	"github.com/wanthalf/zyncoder/callbacks"
	"github.com/wanthalf/zyncoder/config"
	"github.com/wanthalf/zyncoder/devices/gpio"
	"github.com/wanthalf/zyncoder/logging"
)

// LineRequester claims and releases edge-detecting lines. *gpio.Chip
// implements it.
type LineRequester interface {
	RequestEdges(offset int, opts ...gpio.LineOption) (gpio.Line, error)
	Release(line gpio.Line) error
}

// Outputs are the destinations edge actions send to. Either may be nil if no
// pin uses it.
type Outputs struct {
	OSC  actions.OscSender
	MIDI drivers.Out
}

// lineSettings are the parts of a pin's config that need the line re-requested.
type lineSettings struct {
	pull     string
	debounce time.Duration
}

type held struct {
	line     gpio.Line
	settings lineSettings
}

type Binder struct {
	lines LineRequester
	disp  *callbacks.Dispatcher
	out   Outputs
	log   *slog.Logger

	mu   sync.Mutex
	held map[int]held
}

func New(lines LineRequester, disp *callbacks.Dispatcher, out Outputs) *Binder {
	return &Binder{
		lines: lines,
		disp:  disp,
		out:   out,
		log:   logging.Get(logging.APP),
		held:  map[int]held{},
	}
}

// CallbackFor builds the callback running every action configured for pin.
func CallbackFor(pin config.Pin, out Outputs) (callbacks.Callback, error) {
	var cbs []callbacks.Callback
	for _, a := range pin.Actions {
		switch a {
		case config.ActionLog:
			cbs = append(cbs, actions.Log(pin.Pin))
		case config.ActionOSC:
			if out.OSC == nil {
				return nil, fmt.Errorf("pin %d: no OSC client", pin.Pin)
			}
			cbs = append(cbs, actions.OSC(out.OSC, pin.OSCAddress, pin.Pin))
		case config.ActionMIDI:
			if out.MIDI == nil {
				return nil, fmt.Errorf("pin %d: no MIDI out port", pin.Pin)
			}
			cbs = append(cbs, actions.MIDIToggle(out.MIDI, pin.MIDIChannel, pin.MIDIController))
		default:
			return nil, fmt.Errorf("pin %d: unknown action %q", pin.Pin, a)
		}
	}
	if len(cbs) == 1 {
		return cbs[0], nil
	}
	return actions.Chain(cbs...), nil
}

// Apply makes the registered pins match pins. Pins no longer listed are
// unregistered and their lines released. A pin that cannot be claimed is
// logged and skipped; the rest are still bound, and the failures are returned
// together.
func (b *Binder) Apply(pins []config.Pin) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	wanted := map[int]config.Pin{}
	for _, p := range pins {
		wanted[p.Pin] = p
	}
	for _, offset := range b.heldPins() {
		if _, ok := wanted[offset]; !ok {
			b.drop(offset)
		}
	}

	var errs []error
	for _, p := range pins {
		if err := b.bind(p); err != nil {
			b.log.Error("Error while registering pin for events", "pin", p.Pin, "err", err)
			errs = append(errs, err)
			continue
		}
		b.log.Info("Registered pin for events", "pin", p.Pin, "actions", p.Actions)
	}
	return errors.Join(errs...)
}

// Reconfigure applies pins and restarts a running dispatcher so its loop
// waits on a freshly built set.
func (b *Binder) Reconfigure(pins []config.Pin) error {
	err := b.Apply(pins)
	if b.disp.Running() {
		if rerr := b.disp.Restart(); rerr != nil {
			return errors.Join(err, rerr)
		}
	}
	return err
}

// ReleaseAll unregisters every pin and releases its line.
func (b *Binder) ReleaseAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, offset := range b.heldPins() {
		b.drop(offset)
	}
}

// Pins returns the bound pins in ascending order.
func (b *Binder) Pins() []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.heldPins()
}

// must be called with mu held
func (b *Binder) heldPins() []int {
	out := make([]int, 0, len(b.held))
	for offset := range b.held {
		out = append(out, offset)
	}
	slices.Sort(out)
	return out
}

// must be called with mu held
func (b *Binder) bind(p config.Pin) error {
	cb, err := CallbackFor(p, b.out)
	if err != nil {
		if _, ok := b.held[p.Pin]; ok {
			b.drop(p.Pin)
		}
		return err
	}
	settings := lineSettings{pull: p.Pull, debounce: p.Debounce}
	if h, ok := b.held[p.Pin]; ok && h.settings != settings {
		b.drop(p.Pin)
	}
	h, ok := b.held[p.Pin]
	if !ok {
		pull, err := gpio.ParsePull(p.Pull)
		if err != nil {
			return err
		}
		line, err := b.lines.RequestEdges(p.Pin, gpio.WithPull(pull), gpio.WithDebounce(p.Debounce))
		if err != nil {
			return err
		}
		h = held{line: line, settings: settings}
		b.held[p.Pin] = h
	}
	if err := b.disp.Register(h.line, cb); err != nil {
		b.drop(p.Pin)
		return err
	}
	return nil
}

// must be called with mu held
func (b *Binder) drop(offset int) {
	h := b.held[offset]
	delete(b.held, offset)
	if err := b.disp.Unregister(h.line); err != nil {
		b.log.Warn("Failed to unregister pin", "pin", offset, "err", err)
	}
	if err := b.lines.Release(h.line); err != nil {
		b.log.Warn("Failed to release line", "pin", offset, "err", err)
	}
	b.log.Info("Released pin", "pin", offset)
}
