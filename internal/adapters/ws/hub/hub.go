// Package hub fans stream messages out to every live websocket subscriber.
//
// Delivery is best effort per subscriber: a full queue or a failed write
// removes that subscriber and nobody else notices. The hub never reconnects
// anyone; that is the client's job.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/okian/stadium/pkg/logger"
	"github.com/okian/stadium/pkg/metrics"
)

// Defaults.
const (
	defaultPingInterval = 15 * time.Second
	defaultWatchdog     = 45 * time.Second
	defaultWriteWait    = 10 * time.Second
	defaultQueueSize    = 64
	defaultReadLimit    = 4096
)

// Removal reasons, also used as metric labels.
const (
	reasonQueueFull   = "queue_full"
	reasonWriteError  = "write_error"
	reasonReadError   = "read_error"
	reasonWatchdog    = "watchdog"
	reasonUnregister  = "unregister"
	reasonShutdown    = "shutdown"
	reasonGracePeriod = "close_timeout"
)

// Hub owns the subscriber set.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]*Subscriber
	closed bool

	seq atomic.Uint64

	pingInterval time.Duration
	watchdog     time.Duration
	writeWait    time.Duration
	queueSize    int
	readLimit    int64
	upgrader     websocket.Upgrader
	clock        clockwork.Clock
	logger       logger.Logger

	pumps  sync.WaitGroup
	cancel context.CancelFunc
	loop   chan struct{}
}

// New creates a hub. Call Start to run the ping and watchdog loop.
func New(opts ...Option) *Hub {
	o := options{
		pingInterval: defaultPingInterval,
		watchdog:     defaultWatchdog,
		writeWait:    defaultWriteWait,
		queueSize:    defaultQueueSize,
		readLimit:    defaultReadLimit,
		clock:        clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Get().Named("hub")
	}

	h := &Hub{
		subs:         make(map[string]*Subscriber),
		pingInterval: o.pingInterval,
		watchdog:     o.watchdog,
		writeWait:    o.writeWait,
		queueSize:    o.queueSize,
		readLimit:    o.readLimit,
		clock:        o.clock,
		logger:       o.logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(o.origins),
	}
	metrics.UpdateHubSubscribers(0)
	return h
}

// Start runs the ping and watchdog loop until ctx is done or Close is called.
func (h *Hub) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	h.mu.Lock()
	h.cancel = cancel
	h.loop = make(chan struct{})
	h.mu.Unlock()

	go h.run(ctx)
}

func (h *Hub) run(ctx context.Context) {
	defer close(h.loop)
	ticker := h.clock.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			h.Broadcast(ctx, TypePing, nil)
			h.reap(ctx)
		}
	}
}

// reap disconnects subscribers that have neither read nor written within the
// watchdog interval.
func (h *Hub) reap(ctx context.Context) {
	cutoff := h.clock.Now().Add(-h.watchdog)
	for _, s := range h.snapshot() {
		if s.idleSince().Before(cutoff) {
			h.remove(ctx, s, reasonWatchdog)
		}
	}
}

// Register adds conn as a new subscriber and starts its pumps. The first
// message it receives is a hello carrying its id.
func (h *Hub) Register(ctx context.Context, conn Conn) (*Subscriber, error) {
	s := newSubscriber(uuid.NewString(), conn, h.queueSize, h.clock.Now())
	conn.SetReadLimit(h.readLimit)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return nil, ErrClosed
	}
	h.subs[s.id] = s
	s.state.Store(int32(StateOpen))
	count := len(h.subs)
	h.mu.Unlock()

	metrics.UpdateHubSubscribers(count)
	h.logger.Debug(ctx, "subscriber connected", logger.String("subscriber", s.id), logger.Int("subscribers", count))

	h.pumps.Add(2)
	go h.writePump(ctx, s)
	go h.readPump(ctx, s)

	hello, _, err := h.encode(TypeHello, Hello{SubscriberID: s.id, PingIntervalMs: h.pingInterval.Milliseconds()})
	if err == nil {
		s.enqueue(hello)
	}
	return s, nil
}

// Unregister closes a subscriber gracefully.
func (h *Hub) Unregister(ctx context.Context, s *Subscriber) {
	h.remove(ctx, s, reasonUnregister)
}

// Broadcast sends one message to every open subscriber. It returns the
// sequence number assigned to the message.
func (h *Hub) Broadcast(ctx context.Context, t MessageType, payload any) uint64 {
	data, seq, err := h.encode(t, payload)
	if err != nil {
		h.logger.Error(ctx, "broadcast marshal error", logger.String("type", string(t)), logger.Error(err))
		metrics.RecordErrorByComponent("hub", "marshal")
		return 0
	}
	metrics.RecordHubMessage(string(t))

	for _, s := range h.snapshot() {
		if !s.enqueue(data) {
			h.remove(ctx, s, reasonQueueFull)
		}
	}
	return seq
}

// Count returns the number of live subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Seq returns the last assigned sequence number.
func (h *Hub) Seq() uint64 {
	return h.seq.Load()
}

// Close removes every subscriber and stops the loop. It waits for the pumps
// until ctx is done.
func (h *Hub) Close(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	cancel, loop := h.cancel, h.loop
	h.mu.Unlock()

	if cancel != nil {
		cancel()
		<-loop
	}
	for _, s := range h.snapshot() {
		h.remove(ctx, s, reasonShutdown)
	}

	done := make(chan struct{})
	go func() {
		h.pumps.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("hub close: %w", ctx.Err())
	}
}

// ServeHTTP upgrades the request and registers the connection.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		h.logger.Warn(r.Context(), "websocket upgrade failed", logger.Error(err))
		metrics.RecordErrorByComponent("hub", "upgrade")
		return
	}
	// The request context ends when ServeHTTP returns; pumps must outlive it.
	if _, err := h.Register(context.WithoutCancel(r.Context()), conn); err != nil {
		h.logger.Warn(r.Context(), "subscriber rejected", logger.Error(err))
	}
}

func (h *Hub) encode(t MessageType, payload any) ([]byte, uint64, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, err
		}
		raw = b
	}
	seq := h.seq.Add(1)
	data, err := json.Marshal(Message{Type: t, Seq: seq, TS: h.clock.Now().UTC(), Payload: raw})
	return data, seq, err
}

func (h *Hub) snapshot() []*Subscriber {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Subscriber, 0, len(h.subs))
	for _, s := range h.subs {
		out = append(out, s)
	}
	return out
}

// remove takes s out of the set exactly once. Forced removals close the
// connection at once; graceful ones let the write pump send a close frame.
func (h *Hub) remove(ctx context.Context, s *Subscriber, reason string) {
	h.mu.Lock()
	if _, ok := h.subs[s.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.subs, s.id)
	count := len(h.subs)
	h.mu.Unlock()

	if !s.beginClose() {
		return
	}
	switch reason {
	case reasonUnregister, reasonShutdown:
		// Bound the graceful path in case the peer stops reading.
		h.clock.AfterFunc(h.writeWait, func() {
			if s.State() != StateClosed {
				metrics.RecordHubRemoval(reasonGracePeriod)
				_ = s.conn.Close()
			}
		})
	default:
		_ = s.conn.Close()
	}

	metrics.UpdateHubSubscribers(count)
	metrics.RecordHubRemoval(reason)
	h.logger.Debug(ctx, "subscriber removed",
		logger.String("subscriber", s.id),
		logger.String("reason", reason),
		logger.Int("subscribers", count))
}

func (h *Hub) writePump(ctx context.Context, s *Subscriber) {
	defer func() {
		_ = s.conn.Close()
		s.state.Store(int32(StateClosed))
		h.pumps.Done()
	}()

	for data := range s.send {
		_ = s.conn.SetWriteDeadline(time.Now().Add(h.writeWait))
		if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.remove(ctx, s, reasonWriteError)
			return
		}
		s.lastWrite.Store(h.clock.Now().UnixNano())
	}

	_ = s.conn.SetWriteDeadline(time.Now().Add(h.writeWait))
	_ = s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (h *Hub) readPump(ctx context.Context, s *Subscriber) {
	defer h.pumps.Done()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			h.remove(ctx, s, reasonReadError)
			return
		}
		s.lastRead.Store(h.clock.Now().UnixNano())

		var m Message
		if json.Unmarshal(data, &m) == nil && m.Type == TypePing {
			if pong, _, err := h.encode(TypePong, nil); err == nil {
				s.enqueue(pong)
			}
		}
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
