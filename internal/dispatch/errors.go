package dispatch

import "errors"

// Sentinel kinds for dispatch errors.
var (
	ErrBackpressure = errors.New("dispatch lane full")
	ErrClosed       = errors.New("dispatcher closed")
	ErrSinkTimeout  = errors.New("sink timed out")
	ErrSinkPanic    = errors.New("sink panicked")
)
