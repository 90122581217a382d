package client

import "errors"

// ErrExhausted is returned by Run when the backoff runs out of attempts.
var ErrExhausted = errors.New("reconnect attempts exhausted")
