package classify

import "errors"

// Sentinel kinds for classification errors.
var (
	ErrUnknownCategory  = errors.New("unknown celebration category")
	ErrUnknownIntensity = errors.New("unknown intensity")
	ErrMissingEventID   = errors.New("missing event id")
)
