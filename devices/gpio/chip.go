package gpio

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"

	"github.com/wanthalf/zyncoder/logging"
)

// Chip is a Provider backed by a GPIO character device.
//
// Lines requested through a Chip report both edges. Events are delivered by
// gpiocdev on its own goroutine and buffered until ReadEvent.
type Chip struct {
	name     string
	consumer string
	c        *gpiocdev.Chip
	queue    *edgeQueue
	log      *slog.Logger

	mu    sync.Mutex
	lines map[int]*gpiocdev.Line
}

// Open opens the named chip, tagging every line it later claims with consumer.
func Open(name, consumer string) (*Chip, error) {
	log := logging.Get(logging.GPIO)
	c, err := gpiocdev.NewChip(name, gpiocdev.WithConsumer(consumer))
	if err != nil {
		log.Error("Can't open GPIO chip", "chip", name, "err", err)
		return nil, fmt.Errorf("%w %s: %w", ErrChipOpen, name, err)
	}
	log.Info("Opened GPIO chip", "chip", name, "lines", c.Lines(), "consumer", consumer)
	return &Chip{
		name:     name,
		consumer: consumer,
		c:        c,
		queue:    newEdgeQueue(),
		log:      log,
		lines:    map[int]*gpiocdev.Line{},
	}, nil
}

func (c *Chip) Name() string {
	return c.name
}

// Lines is the number of lines the chip exposes.
func (c *Chip) Lines() int {
	return c.c.Lines()
}

type lineConfig struct {
	pull     Pull
	debounce time.Duration
}

// LineOption configures a line in RequestEdges.
type LineOption func(*lineConfig)

// WithPull biases the line.
func WithPull(p Pull) LineOption {
	return func(cfg *lineConfig) { cfg.pull = p }
}

// WithDebounce asks the kernel to debounce the line. Zero disables debouncing.
func WithDebounce(period time.Duration) LineOption {
	return func(cfg *lineConfig) { cfg.debounce = period }
}

// RequestEdges claims the line at offset as an input reporting both edges.
// If the line is already held by this chip the held line is returned and opts
// are ignored.
func (c *Chip) RequestEdges(offset int, opts ...LineOption) (Line, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if l, ok := c.lines[offset]; ok {
		return l, nil
	}

	cfg := lineConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	reqOpts := []gpiocdev.LineReqOption{
		gpiocdev.AsInput,
		gpiocdev.WithBothEdges,
		gpiocdev.WithConsumer(c.consumer),
		gpiocdev.WithEventHandler(c.handle),
	}
	switch cfg.pull {
	case PullUp:
		reqOpts = append(reqOpts, gpiocdev.WithPullUp)
	case PullDown:
		reqOpts = append(reqOpts, gpiocdev.WithPullDown)
	}
	if cfg.debounce > 0 {
		reqOpts = append(reqOpts, gpiocdev.WithDebounce(cfg.debounce))
	}

	l, err := c.c.RequestLine(offset, reqOpts...)
	if err != nil {
		c.log.Error("Can't request GPIO line for edge events", "chip", c.name, "pin", offset, "err", err)
		return nil, fmt.Errorf("%w %s:%d: %w", ErrLineRequest, c.name, offset, err)
	}
	c.lines[offset] = l
	c.log.Info("Requested GPIO line for edge events", "pin", offset, "pull", cfg.pull, "debounce", cfg.debounce)
	return l, nil
}

// Release closes a line obtained from RequestEdges and drops its pending events.
func (c *Chip) Release(line Line) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	offset := line.Offset()
	l, ok := c.lines[offset]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownLine, offset)
	}
	delete(c.lines, offset)
	c.queue.discard(offset)
	return l.Close()
}

func (c *Chip) handle(evt gpiocdev.LineEvent) {
	c.queue.push(Event{
		Pin:       evt.Offset,
		Rising:    evt.Type == gpiocdev.LineEventRisingEdge,
		Timestamp: evt.Timestamp,
		Seqno:     evt.LineSeqno,
	})
}

func (c *Chip) WaitEvents(lines []Line, timeout time.Duration) ([]Line, error) {
	return c.queue.wait(lines, timeout)
}

func (c *Chip) ReadEvent(line Line) (Event, error) {
	return c.queue.pop(line.Offset())
}

// Close releases every held line and the chip itself. Pending and future
// waits fail with ErrClosed.
func (c *Chip) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue.close()
	for offset, l := range c.lines {
		if err := l.Close(); err != nil {
			c.log.Warn("Failed to close GPIO line", "pin", offset, "err", err)
		}
	}
	c.lines = map[int]*gpiocdev.Line{}
	return c.c.Close()
}
