package hub

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is the part of *websocket.Conn the hub uses.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	Close() error
}

var _ Conn = (*websocket.Conn)(nil)

// State is a subscriber's position in its lifecycle.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "closed"
	}
}

// Subscriber is a live connection plus its outbound queue. Only the hub
// creates, mutates and destroys subscribers.
type Subscriber struct {
	id   string
	conn Conn

	mu    sync.Mutex
	send  chan []byte
	state atomic.Int32

	lastRead  atomic.Int64
	lastWrite atomic.Int64
}

func newSubscriber(id string, conn Conn, queueSize int, now time.Time) *Subscriber {
	s := &Subscriber{
		id:   id,
		conn: conn,
		send: make(chan []byte, queueSize),
	}
	s.state.Store(int32(StateConnecting))
	s.lastRead.Store(now.UnixNano())
	s.lastWrite.Store(now.UnixNano())
	return s
}

// ID is the subscriber's UUID.
func (s *Subscriber) ID() string { return s.id }

// State reports the lifecycle state.
func (s *Subscriber) State() State { return State(s.state.Load()) }

// enqueue hands data to the write pump. It returns false when the queue is
// full; a subscriber that is no longer open silently receives nothing.
func (s *Subscriber) enqueue(data []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.State() != StateOpen {
		return true
	}
	select {
	case s.send <- data:
		return true
	default:
		return false
	}
}

// beginClose moves an open subscriber to closing and stops its queue.
func (s *Subscriber) beginClose() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.CompareAndSwap(int32(StateOpen), int32(StateClosing)) &&
		!s.state.CompareAndSwap(int32(StateConnecting), int32(StateClosing)) {
		return false
	}
	close(s.send)
	return true
}

func (s *Subscriber) idleSince() time.Time {
	r, w := s.lastRead.Load(), s.lastWrite.Load()
	if w > r {
		r = w
	}
	return time.Unix(0, r)
}
