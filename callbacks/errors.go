package callbacks

import "errors"

var (
	ErrNilLine     = errors.New("callbacks: nil line")
	ErrNilCallback = errors.New("callbacks: nil callback")
	ErrInvalidPin  = errors.New("callbacks: pin out of range")

	ErrNotReady       = errors.New("callbacks: no line provider")
	ErrAlreadyRunning = errors.New("callbacks: loop already running")

	// ErrWaitFailed ends a run when the provider fails to wait for events.
	ErrWaitFailed = errors.New("callbacks: error while waiting for GPIO events")
	// ErrCallbackFailed wraps an error returned, or a panic raised, by a Callback.
	ErrCallbackFailed = errors.New("callbacks: callback failed")
)
