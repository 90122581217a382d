package sink

import "errors"

// Sentinel kinds for sink errors.
var (
	ErrUnreachable = errors.New("sink unreachable")
	ErrRejected    = errors.New("sink rejected command")
	ErrNoDevices   = errors.New("sink has no devices")

	// ErrAbandoned is the context cause a caller sets when it stops waiting
	// for a call. It says nothing about the device.
	ErrAbandoned = errors.New("sink call abandoned")
)
