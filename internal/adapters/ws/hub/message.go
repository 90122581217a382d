package hub

import (
	"encoding/json"
	"time"
)

// MessageType tags every message on the stream.
type MessageType string

const (
	TypeGameEvent MessageType = "game_event"
	TypeDispatch  MessageType = "dispatch"
	TypeStatus    MessageType = "status"
	TypeTracking  MessageType = "tracking"
	TypeHello     MessageType = "hello"
	// TypePing is reserved for liveness pings. Subscribers must keep it out of
	// their event history.
	TypePing MessageType = "ping"
	// TypePong is what subscribers answer a ping with.
	TypePong MessageType = "pong"
)

// Message is one independently parseable unit on the stream.
type Message struct {
	Type    MessageType     `json:"type"`
	Seq     uint64          `json:"seq"`
	TS      time.Time       `json:"ts"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Hello is the payload of the first message every subscriber receives.
type Hello struct {
	SubscriberID   string `json:"subscriber_id"`
	PingIntervalMs int64  `json:"ping_interval_ms"`
}
