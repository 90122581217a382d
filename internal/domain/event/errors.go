package event

import "errors"

// Sentinel kinds for event errors.
var (
	ErrUnknownKind = errors.New("unknown event kind")
)
