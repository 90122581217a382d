package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrNotStarted     = errors.New("service not started")
	ErrNoSource       = errors.New("no snapshot source configured")
	ErrInvalidContest = errors.New("invalid contest")
	ErrAlreadyTracked = errors.New("contest already tracked")
	ErrNotTracked     = errors.New("contest not tracked")
	ErrInvalidTrigger = errors.New("invalid celebration request")
)
