package testevents

import "time"

// Config holds configuration for a fire drill.
type Config struct {
	BaseURL   string        // Base URL of the service
	Contest   string        // Contest id stamped on every celebration
	League    string        // League of the generated teams
	NumEvents int           // Number of celebrations to generate
	Workers   int           // Number of concurrent submitters
	Rate      float64       // Client-side requests per second, 0 for unlimited
	Duplicate float64       // Share of celebrations that repeat an earlier one
	Timeout   time.Duration // HTTP request timeout
	Settle    time.Duration // How long to wait for dispatch messages
	LogFile   string        // Log file for test output
	Verbose   bool          // Enable verbose logging
}

// Celebration is one manual trigger request.
type Celebration struct {
	EventType string `json:"event_type"`
	EventID   string `json:"event_id"`
	TeamAbbr  string `json:"team_abbr"`
	League    string `json:"league"`
	ContestID string `json:"contest_id"`
	Intensity string `json:"intensity,omitempty"`
}

// AckResponse represents the response to a trigger.
type AckResponse struct {
	Status    string `json:"status"`
	Duplicate bool   `json:"duplicate"`
	Origin    string `json:"origin"`
}

// Stats holds drill statistics.
type Stats struct {
	Generated   int
	Submitted   int
	Accepted    int
	Duplicate   int
	RateLimited int
	Failed      int

	GameEvents int
	Dispatches int
	Expected   int
	Missing    int
	Unexpected int

	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}
