package devicestesting

import (
	"sort"
	"sync"
	"time"

	"github.com/wanthalf/zyncoder/devices/gpio"
)

// MockLine is a line handed out by MockProvider.
type MockLine struct {
	offset int
}

func (l *MockLine) Offset() int {
	return l.offset
}

// MockProvider implements gpio.Provider with simulated edges
type MockProvider struct {
	mu      sync.Mutex
	lines   map[int]*MockLine
	pending map[int][]gpio.Event
	changed chan struct{}
	seqno   uint32

	// For testing error conditions
	waitErr     error
	readErrs    map[int]error
	requestErrs map[int]error

	held     map[int]bool
	requests map[int][]gpio.LineOption

	waits       int
	waiting     int
	maxWaiting  int
	lastWaitSet []int
}

func NewMockProvider() *MockProvider {
	return &MockProvider{
		lines:       map[int]*MockLine{},
		pending:     map[int][]gpio.Event{},
		changed:     make(chan struct{}),
		readErrs:    map[int]error{},
		requestErrs: map[int]error{},
		held:        map[int]bool{},
		requests:    map[int][]gpio.LineOption{},
	}
}

// Line returns the line at offset, creating it on first use. Repeated calls
// return the same handle.
func (p *MockProvider) Line(offset int) *MockLine {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.lines[offset]
	if !ok {
		l = &MockLine{offset: offset}
		p.lines[offset] = l
	}
	return l
}

// RequestEdges claims the line at offset, like gpio.Chip.RequestEdges
func (p *MockProvider) RequestEdges(offset int, opts ...gpio.LineOption) (gpio.Line, error) {
	l := p.Line(offset)
	p.mu.Lock()
	defer p.mu.Unlock()
	if err, ok := p.requestErrs[offset]; ok {
		return nil, err
	}
	if !p.held[offset] {
		p.held[offset] = true
		p.requests[offset] = opts
	}
	return l, nil
}

// Release gives back a line from RequestEdges and drops its pending events
func (p *MockProvider) Release(line gpio.Line) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	offset := line.Offset()
	if !p.held[offset] {
		return gpio.ErrUnknownLine
	}
	delete(p.held, offset)
	delete(p.requests, offset)
	delete(p.pending, offset)
	return nil
}

// SetRequestError makes RequestEdges on offset fail with err; nil clears it.
func (p *MockProvider) SetRequestError(offset int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.requestErrs, offset)
		return
	}
	p.requestErrs[offset] = err
}

// Held returns the offsets currently claimed, in ascending order
func (p *MockProvider) Held() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []int
	for offset := range p.held {
		out = append(out, offset)
	}
	sort.Ints(out)
	return out
}

// RequestOptions returns how many options the held line at offset was requested with
func (p *MockProvider) RequestOptions(offset int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests[offset])
}

// SimulateEdge queues an edge on pin and wakes any waiter
func (p *MockProvider) SimulateEdge(pin int, rising bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seqno++
	p.pending[pin] = append(p.pending[pin], gpio.Event{Pin: pin, Rising: rising, Seqno: p.seqno})
	p.wake()
}

// SetWaitError makes every following WaitEvents fail with err; nil clears it.
func (p *MockProvider) SetWaitError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.waitErr = err
	p.wake()
}

// SetReadError makes ReadEvent on pin fail with err; nil clears it.
func (p *MockProvider) SetReadError(pin int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.readErrs, pin)
		return
	}
	p.readErrs[pin] = err
}

// must be called with mu held
func (p *MockProvider) wake() {
	close(p.changed)
	p.changed = make(chan struct{})
}

func (p *MockProvider) WaitEvents(lines []gpio.Line, timeout time.Duration) ([]gpio.Line, error) {
	p.mu.Lock()
	p.waits++
	p.waiting++
	if p.waiting > p.maxWaiting {
		p.maxWaiting = p.waiting
	}
	p.lastWaitSet = p.lastWaitSet[:0]
	for _, l := range lines {
		p.lastWaitSet = append(p.lastWaitSet, l.Offset())
	}
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.waiting--
		p.mu.Unlock()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		p.mu.Lock()
		if p.waitErr != nil {
			err := p.waitErr
			p.mu.Unlock()
			return nil, err
		}
		var fired []gpio.Line
		for _, l := range lines {
			if len(p.pending[l.Offset()]) > 0 {
				fired = append(fired, l)
			}
		}
		changed := p.changed
		p.mu.Unlock()
		if len(fired) > 0 {
			return fired, nil
		}
		select {
		case <-changed:
		case <-timer.C:
			return nil, nil
		}
	}
}

func (p *MockProvider) ReadEvent(line gpio.Line) (gpio.Event, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pin := line.Offset()
	events := p.pending[pin]
	if len(events) == 0 {
		return gpio.Event{}, gpio.ErrNoEvent
	}
	p.pending[pin] = events[1:]
	if err, ok := p.readErrs[pin]; ok {
		return gpio.Event{}, err
	}
	return events[0], nil
}

// Pending returns how many events on pin have not been read
func (p *MockProvider) Pending(pin int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending[pin])
}

// Waits returns how many times WaitEvents was called
func (p *MockProvider) Waits() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waits
}

// MaxConcurrentWaits returns the largest number of simultaneous WaitEvents calls seen
func (p *MockProvider) MaxConcurrentWaits() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxWaiting
}

// LastWaitSet returns the pins passed to the most recent WaitEvents
func (p *MockProvider) LastWaitSet() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.lastWaitSet...)
}
