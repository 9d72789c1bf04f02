// Package callbacks runs a callback whenever an edge fires on a registered GPIO
// input.
//
// A Dispatcher owns a fixed table mapping pins to callbacks and a background
// loop that waits on every registered line at once. Callbacks run one at a
// time on the loop's goroutine and receive no event payload.
//
// Registration changes made while the loop runs are queued and picked up at
// the loop's next safe point: before each wait and again before dispatching
// the events a wait returned. A wait is never interrupted, so changes and
// stop requests can take up to one wait timeout to be observed.
package callbacks

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/wanthalf/zyncoder/devices/gpio"
	"github.com/wanthalf/zyncoder/logging"
)

// DefaultWaitTimeout bounds each wait, and therefore how long Stop takes.
const DefaultWaitTimeout = time.Second

type Option func(*Dispatcher)

// WithWaitTimeout overrides DefaultWaitTimeout.
func WithWaitTimeout(d time.Duration) Option {
	return func(disp *Dispatcher) {
		if d > 0 {
			disp.timeout = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(disp *Dispatcher) {
		if l != nil {
			disp.log = l
		}
	}
}

// WithFatalCallbacks makes the first failing callback end the run with
// ErrCallbackFailed instead of being logged and skipped.
func WithFatalCallbacks(fatal bool) Option {
	return func(disp *Dispatcher) {
		disp.fatalCallbacks = fatal
	}
}

// Dispatcher is the registration table plus the lifecycle of the loop that
// serves it.
type Dispatcher struct {
	provider       gpio.Provider
	timeout        time.Duration
	fatalCallbacks bool
	log            *slog.Logger

	mu      sync.Mutex
	table   Table
	current *run
	lastErr error
}

// update replaces the entry at pin in a running loop's view.
type update struct {
	pin   int
	entry Entry
}

// run is one lifetime of the dispatch loop.
type run struct {
	id       string
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	// inCallback is set while the loop goroutine is inside a Callback.
	inCallback atomic.Bool

	// mailbox and restart are guarded by Dispatcher.mu.
	mailbox []update
	restart bool
}

func (r *run) requestStop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

func (r *run) stopping() bool {
	select {
	case <-r.stop:
		return true
	default:
		return false
	}
}

var closedDone = func() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}()

// New returns a Dispatcher with an empty table. A nil provider gives an inert
// Dispatcher: registrations are accepted but Start fails with ErrNotReady.
func New(provider gpio.Provider, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		provider: provider,
		timeout:  DefaultWaitTimeout,
		log:      logging.Get(logging.DISPATCH),
	}
	d.table.Init()
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Ready reports whether the Dispatcher has a provider to wait on.
func (d *Dispatcher) Ready() bool {
	return d.provider != nil
}

// Register binds callback to line's pin, replacing any previous binding for
// that pin. While the loop runs the change applies from its next cycle.
func (d *Dispatcher) Register(line gpio.Line, callback Callback) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.table.Register(line, callback); err != nil {
		return err
	}
	pin := line.Offset()
	d.log.Debug("Registered callback", "pin", pin)
	d.post(pin)
	return nil
}

// Unregister removes the binding for line's pin. The line itself is left
// untouched.
func (d *Dispatcher) Unregister(line gpio.Line) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.table.Unregister(line); err != nil {
		return err
	}
	pin := line.Offset()
	d.log.Debug("Unregistered callback", "pin", pin)
	d.post(pin)
	return nil
}

// post forwards the table entry at pin to the running loop, if any. Must be
// called with mu held.
func (d *Dispatcher) post(pin int) {
	if d.current != nil {
		d.current.mailbox = append(d.current.mailbox, update{pin: pin, entry: d.table.Entry(pin)})
	}
}

// Entry returns the registration for pin.
func (d *Dispatcher) Entry(pin int) Entry {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.table.Entry(pin)
}

// Table returns a snapshot of the registration table.
func (d *Dispatcher) Table() Table {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.table
}

// Start launches the dispatch loop on the lines registered right now.
func (d *Dispatcher) Start() error {
	if d.provider == nil {
		return ErrNotReady
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current != nil {
		return ErrAlreadyRunning
	}
	d.startLocked()
	return nil
}

// must be called with mu held
func (d *Dispatcher) startLocked() {
	r := &run{
		id:   newRunID(),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	d.current = r
	d.lastErr = nil
	view := d.table
	d.log.Info("Callback loop started", "run", r.id, "pins", view.Len(), "timeout", d.timeout)
	go d.loop(r, view)
}

// Stop asks the loop to exit and waits until it has. The wait lasts at most
// one wait timeout plus the duration of an in-flight callback. Stopping a
// stopped Dispatcher does nothing.
//
// Stop must not be called from a Callback; use RequestStop there.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	r := d.current
	if r != nil {
		r.restart = false
	}
	d.mu.Unlock()
	if r == nil {
		return
	}
	r.requestStop()
	<-r.done
}

// RequestStop asks the loop to exit without waiting for it.
func (d *Dispatcher) RequestStop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current != nil {
		d.current.restart = false
		d.current.requestStop()
	}
}

// Restart stops the loop, waiting for it to exit, then starts a new one on
// the current registrations.
//
// While a Callback is running, Restart only marks the run for restart and
// returns nil. The loop exits once the callback returns and a new one starts
// in its place, so Restart is safe to call from a Callback. A later Stop or
// RequestStop cancels a pending restart.
func (d *Dispatcher) Restart() error {
	d.mu.Lock()
	if r := d.current; r != nil && r.inCallback.Load() {
		r.restart = true
		r.requestStop()
		d.mu.Unlock()
		d.log.Debug("Restart deferred until callback returns", "run", r.id)
		return nil
	}
	d.mu.Unlock()
	d.Stop()
	return d.Start()
}

// Running reports whether a loop is running.
func (d *Dispatcher) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current != nil
}

// Done returns a channel closed when the current loop exits. It is already
// closed if no loop is running. A loop replaced by a deferred Restart also
// closes its channel, so check Running after Done fires.
func (d *Dispatcher) Done() <-chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == nil {
		return closedDone
	}
	return d.current.done
}

// Err returns why the most recent loop exited: nil after Stop, otherwise an
// error wrapping ErrWaitFailed or ErrCallbackFailed.
func (d *Dispatcher) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastErr
}

func newRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
