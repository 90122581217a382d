package testevents

import "time"

// Runner configuration constants.
const (
	statusOK                = 200
	PercentageMultiplier    = 100
	WorkerChannelMultiplier = 2
	settlePoll              = 50 * time.Millisecond
	subscribeTimeout        = 5 * time.Second
	progressInterval        = time.Second
)

// Submission outcomes.
const (
	outcomeAccepted    = "accepted"
	outcomeDuplicate   = "duplicate"
	outcomeRateLimited = "rate_limited"
	outcomeFailed      = "failed"
)
