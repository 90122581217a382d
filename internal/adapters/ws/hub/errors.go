package hub

import "errors"

// ErrClosed is returned when registering on a closed hub.
var ErrClosed = errors.New("hub closed")
