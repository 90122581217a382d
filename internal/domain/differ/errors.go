package differ

import "errors"

// Sentinel kinds for differencer errors.
var (
	// ErrScoreRegression marks a snapshot whose score dropped below the baseline.
	ErrScoreRegression = errors.New("score regression")
	ErrContestMismatch = errors.New("snapshot belongs to another contest")
	ErrEmptyContest    = errors.New("snapshot has no contest id")
)
