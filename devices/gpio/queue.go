package gpio

import (
	"log/slog"
	"sync"
	"time"

	"github.com/wanthalf/zyncoder/logging"
)

// maxPending bounds the events buffered per line between reads.
const maxPending = 64

// edgeQueue buffers events per pin and wakes every waiter when one arrives.
//
// Waiters snapshot the changed channel under the lock; push closes it and
// installs a fresh one, so concurrent waiters never steal each other's wakeups.
type edgeQueue struct {
	mu      sync.Mutex
	pending map[int][]Event
	changed chan struct{}
	closed  bool
	log     *slog.Logger
}

func newEdgeQueue() *edgeQueue {
	return &edgeQueue{
		pending: map[int][]Event{},
		changed: make(chan struct{}),
		log:     logging.Get(logging.GPIO),
	}
}

func (q *edgeQueue) push(evt Event) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	events := q.pending[evt.Pin]
	if len(events) >= maxPending {
		q.log.Warn("Dropping oldest pending edge event", "pin", evt.Pin, "pending", len(events))
		events = events[1:]
	}
	q.pending[evt.Pin] = append(events, evt)
	q.log.Debug("Edge event queued", "pin", evt.Pin, "rising", evt.Rising, "seqno", evt.Seqno)
	close(q.changed)
	q.changed = make(chan struct{})
}

func (q *edgeQueue) pop(pin int) (Event, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return Event{}, ErrClosed
	}
	events := q.pending[pin]
	if len(events) == 0 {
		return Event{}, ErrNoEvent
	}
	evt := events[0]
	if len(events) == 1 {
		delete(q.pending, pin)
	} else {
		q.pending[pin] = events[1:]
	}
	return evt, nil
}

// discard drops anything pending on pin.
func (q *edgeQueue) discard(pin int) {
	q.mu.Lock()
	delete(q.pending, pin)
	q.mu.Unlock()
}

// fired returns the subset of lines with pending events and the channel that
// will be closed on the next push.
func (q *edgeQueue) fired(lines []Line) ([]Line, <-chan struct{}, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, nil, ErrClosed
	}
	var out []Line
	for _, l := range lines {
		if len(q.pending[l.Offset()]) > 0 {
			out = append(out, l)
		}
	}
	return out, q.changed, nil
}

func (q *edgeQueue) wait(lines []Line, timeout time.Duration) ([]Line, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		out, changed, err := q.fired(lines)
		if err != nil || len(out) > 0 {
			return out, err
		}
		select {
		case <-changed:
		case <-timer.C:
			return nil, nil
		}
	}
}

func (q *edgeQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.pending = map[int][]Event{}
	close(q.changed)
}
