package callbacks

import (
	"fmt"
	"log/slog"

	"github.com/wanthalf/zyncoder/devices/gpio"
)

func (d *Dispatcher) loop(r *run, view Table) {
	log := d.log.With("run", r.id)
	waitSet := view.Lines()

	err := func() error {
		for {
			if r.stopping() {
				return nil
			}
			if d.apply(r, &view) {
				waitSet = view.Lines()
			}

			fired, err := d.provider.WaitEvents(waitSet, d.timeout)
			if err != nil {
				log.Error("Error while processing GPIO events", "err", err)
				return fmt.Errorf("%w: %w", ErrWaitFailed, err)
			}
			if r.stopping() {
				return nil
			}
			if len(fired) == 0 {
				continue
			}

			if d.apply(r, &view) {
				waitSet = view.Lines()
			}
			for _, line := range fired {
				if err := d.dispatch(log, r, &view, line); err != nil && d.fatalCallbacks {
					return err
				}
				if r.stopping() {
					return nil
				}
			}
		}
	}()

	d.mu.Lock()
	restart := false
	if d.current == r {
		d.current = nil
		restart = r.restart && err == nil
	}
	d.lastErr = err
	if err != nil {
		log.Error("Callback loop stopped", "err", err)
	} else {
		log.Info("Callback loop finished")
	}
	if restart {
		d.startLocked()
	}
	d.mu.Unlock()
	close(r.done)
}

// apply drains the run's mailbox into view and reports whether anything changed.
func (d *Dispatcher) apply(r *run, view *Table) bool {
	d.mu.Lock()
	updates := r.mailbox
	r.mailbox = nil
	d.mu.Unlock()
	for _, u := range updates {
		view.set(u.pin, u.entry)
	}
	return len(updates) > 0
}

// dispatch consumes the pending event on line and runs its pin's callback.
func (d *Dispatcher) dispatch(log *slog.Logger, r *run, view *Table, line gpio.Line) error {
	evt, err := d.provider.ReadEvent(line)
	pin := line.Offset()
	if err != nil {
		log.Warn("Failed to read GPIO event", "pin", pin, "err", err)
		return nil
	}
	entry := view.Entry(pin)
	if entry.Unused() {
		log.Debug("Dropping event on unregistered pin", "pin", pin)
		return nil
	}
	log.Debug("Got event", "pin", pin, "rising", evt.Rising, "seqno", evt.Seqno)
	r.inCallback.Store(true)
	err = invoke(entry)
	r.inCallback.Store(false)
	if err != nil {
		log.Error("Callback failed", "pin", pin, "err", err)
		return err
	}
	return nil
}

// invoke runs a callback, converting a panic into an error.
func invoke(e Entry) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: pin %d: panic: %v", ErrCallbackFailed, e.Pin, p)
		}
	}()
	if cbErr := e.Callback(); cbErr != nil {
		return fmt.Errorf("%w: pin %d: %w", ErrCallbackFailed, e.Pin, cbErr)
	}
	return nil
}
