package history

import "errors"

var (
	ErrPathRequired = errors.New("history path is required")
	ErrDropped      = errors.New("history write dropped")
	ErrClosed       = errors.New("history recorder closed")
	ErrUnknownTable = errors.New("unknown history table")
)
