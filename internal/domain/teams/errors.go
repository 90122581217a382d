package teams

import "errors"

// Sentinel kinds for team table errors.
var (
	ErrInvalidColor = errors.New("invalid color")
	ErrLoad         = errors.New("load team table failed")
)
