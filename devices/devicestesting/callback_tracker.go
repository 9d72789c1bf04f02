package devicestesting

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// CallbackTracker helps track and verify callback invocations in tests
type CallbackTracker struct {
	mu    sync.Mutex
	calls int
	t     *testing.T
}

// NewCallbackTracker creates a new CallbackTracker for use in tests
func NewCallbackTracker(t *testing.T) *CallbackTracker {
	return &CallbackTracker{t: t}
}

// WrapCallback wraps an edge callback to track its invocations.
// A nil callback is tracked and reports success.
func WrapCallback(ct *CallbackTracker, callback func() error) func() error {
	return func() error {
		ct.mu.Lock()
		ct.calls++
		ct.mu.Unlock()

		if callback != nil {
			return callback()
		}
		return nil
	}
}

// Callback returns a tracked callback that does nothing else.
func (ct *CallbackTracker) Callback() func() error {
	return WrapCallback(ct, nil)
}

// Calls returns how many times the callback ran.
func (ct *CallbackTracker) Calls() int {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	return ct.calls
}

// AssertCalled asserts that the callback was called exactly n times
func (ct *CallbackTracker) AssertCalled(expectedCalls int, msg ...any) {
	assert.Equal(ct.t, expectedCalls, ct.Calls(), msg...)
}

// AssertCalledOnce asserts that the callback was called exactly once
func (ct *CallbackTracker) AssertCalledOnce(msg ...any) {
	ct.AssertCalled(1, msg...)
}

// AssertNotCalled asserts that the callback was never called
func (ct *CallbackTracker) AssertNotCalled(msg ...any) {
	ct.AssertCalled(0, msg...)
}

// EventuallyCalled waits up to timeout for the callback to have run n times.
func (ct *CallbackTracker) EventuallyCalled(expectedCalls int, timeout time.Duration, msg ...any) bool {
	return assert.Eventually(ct.t, func() bool {
		return ct.Calls() == expectedCalls
	}, timeout, time.Millisecond, msg...)
}

// Reset resets the call counter
func (ct *CallbackTracker) Reset() {
	ct.mu.Lock()
	ct.calls = 0
	ct.mu.Unlock()
}
