package gpio

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type offset int

func (o offset) Offset() int { return int(o) }

func TestEdgeQueueWaitTimesOut(t *testing.T) {
	q := newEdgeQueue()

	start := time.Now()
	fired, err := q.wait([]Line{offset(17)}, 30*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, fired)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestEdgeQueueWaitWithNoLines(t *testing.T) {
	q := newEdgeQueue()
	q.push(Event{Pin: 5})

	fired, err := q.wait(nil, 20*time.Millisecond)
	require.NoError(t, err)
	assert.Nil(t, fired)
}

func TestEdgeQueueReportsFiredLinesInGivenOrder(t *testing.T) {
	q := newEdgeQueue()
	q.push(Event{Pin: 27})
	q.push(Event{Pin: 17})
	q.push(Event{Pin: 6})

	fired, err := q.wait([]Line{offset(5), offset(17), offset(27)}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, []Line{offset(17), offset(27)}, fired)
}

func TestEdgeQueueWakesBlockedWaiters(t *testing.T) {
	q := newEdgeQueue()

	var wg sync.WaitGroup
	results := make([][]Line, 2)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fired, err := q.wait([]Line{offset(17)}, time.Second)
			assert.NoError(t, err)
			results[i] = fired
		}()
	}

	time.Sleep(20 * time.Millisecond)
	q.push(Event{Pin: 17, Rising: true})
	wg.Wait()

	for _, fired := range results {
		assert.Equal(t, []Line{offset(17)}, fired)
	}
}

func TestEdgeQueuePopIsFIFO(t *testing.T) {
	q := newEdgeQueue()
	q.push(Event{Pin: 17, Seqno: 1, Rising: true})
	q.push(Event{Pin: 17, Seqno: 2})

	evt, err := q.pop(17)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), evt.Seqno)
	assert.True(t, evt.Rising)

	evt, err = q.pop(17)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), evt.Seqno)

	_, err = q.pop(17)
	assert.ErrorIs(t, err, ErrNoEvent)
}

func TestEdgeQueueDropsOldestWhenFull(t *testing.T) {
	q := newEdgeQueue()
	for i := 0; i < maxPending+3; i++ {
		q.push(Event{Pin: 4, Seqno: uint32(i)})
	}

	evt, err := q.pop(4)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), evt.Seqno)
}

func TestEdgeQueueDiscard(t *testing.T) {
	q := newEdgeQueue()
	q.push(Event{Pin: 17})
	q.discard(17)

	_, err := q.pop(17)
	assert.ErrorIs(t, err, ErrNoEvent)
}

func TestEdgeQueueCloseFailsWaiters(t *testing.T) {
	q := newEdgeQueue()

	errs := make(chan error, 1)
	go func() {
		_, err := q.wait([]Line{offset(17)}, time.Second)
		errs <- err
	}()

	time.Sleep(20 * time.Millisecond)
	q.close()
	q.close()

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("waiter not released by close")
	}

	q.push(Event{Pin: 17})
	_, err := q.pop(17)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestParsePull(t *testing.T) {
	tests := []struct {
		in      string
		expect  Pull
		wantErr bool
	}{
		{"", PullNone, false},
		{"none", PullNone, false},
		{"up", PullUp, false},
		{"down", PullDown, false},
		{"sideways", PullNone, true},
	}
	for _, tt := range tests {
		p, err := ParsePull(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.in)
			continue
		}
		assert.NoError(t, err, "input %q", tt.in)
		assert.Equal(t, tt.expect, p, "input %q", tt.in)
	}
}

func TestEventString(t *testing.T) {
	evt := Event{Pin: 17, Rising: true, Seqno: 3, Timestamp: 2 * time.Second}
	assert.Equal(t, "pin 17 rising edge #3 at 2s", evt.String())
}
