package client_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/stadium/internal/adapters/ws/client"
	"github.com/okian/stadium/internal/adapters/ws/hub"
	"github.com/okian/stadium/internal/reconnect"
	"github.com/okian/stadium/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

// scriptServer upgrades, sends a ping and two events, then waits for the
// pong before optionally dropping the connection.
type scriptServer struct {
	upgrader websocket.Upgrader
	drop     bool
	pongs    atomic.Int32
	conns    atomic.Int32
	failures atomic.Int32
}

func (s *scriptServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.failures.Load() > 0 {
		s.failures.Add(-1)
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	n := s.conns.Add(1)

	_ = conn.WriteJSON(hub.Message{Type: hub.TypePing, Seq: 1})
	_ = conn.WriteJSON(hub.Message{Type: hub.TypeGameEvent, Seq: uint64(n*10 + 2)})
	_ = conn.WriteJSON(hub.Message{Type: hub.TypeDispatch, Seq: uint64(n*10 + 3)})

	var m hub.Message
	if err := conn.ReadJSON(&m); err == nil && m.Type == hub.TypePong {
		s.pongs.Add(1)
	}
	if s.drop {
		return
	}
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func TestClientStream(t *testing.T) {
	Convey("Given a server that pings and sends two events", t, func() {
		srv := &scriptServer{}
		ts := httptest.NewServer(srv)
		defer ts.Close()

		var mu sync.Mutex
		var handled []hub.MessageType
		c := client.New(wsURL(ts), client.WithHandler(func(m hub.Message) {
			mu.Lock()
			handled = append(handled, m.Type)
			mu.Unlock()
		}))

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- c.Run(ctx) }()

		Convey("Then pings are answered and kept out of the event log", func() {
			So(eventually(func() bool { return len(c.Events()) == 2 }), ShouldBeTrue)
			So(eventually(func() bool { return srv.pongs.Load() == 1 }), ShouldBeTrue)
			So(c.Connected(), ShouldBeTrue)

			events := c.Events()
			So(events[0].Type, ShouldEqual, hub.TypeGameEvent)
			So(events[1].Type, ShouldEqual, hub.TypeDispatch)
			mu.Lock()
			So(handled, ShouldResemble, []hub.MessageType{hub.TypeGameEvent, hub.TypeDispatch})
			mu.Unlock()

			cancel()
			So(<-done, ShouldEqual, context.Canceled)
			So(c.Connected(), ShouldBeFalse)
		})
	})
}

func TestClientReconnect(t *testing.T) {
	Convey("Given a server that drops every connection", t, func() {
		srv := &scriptServer{drop: true}
		ts := httptest.NewServer(srv)
		defer ts.Close()

		c := client.New(wsURL(ts), client.WithBackoff(reconnect.New(
			reconnect.WithBase(10*time.Millisecond),
			reconnect.WithMax(50*time.Millisecond),
		)))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() { _ = c.Run(ctx) }()

		Convey("Then the client reconnects on its own", func() {
			So(eventually(func() bool { return srv.conns.Load() >= 3 }), ShouldBeTrue)
			So(eventually(func() bool { return len(c.Events()) >= 6 }), ShouldBeTrue)
		})
	})

	Convey("Given a server that refuses the first attempts", t, func() {
		srv := &scriptServer{}
		srv.failures.Store(3)
		ts := httptest.NewServer(srv)
		defer ts.Close()

		c := client.New(wsURL(ts), client.WithBackoff(reconnect.New(
			reconnect.WithBase(5*time.Millisecond),
			reconnect.WithMax(20*time.Millisecond),
		)))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() { _ = c.Run(ctx) }()

		Convey("Then a successful connect resets the attempt counter", func() {
			So(eventually(c.Connected), ShouldBeTrue)
			So(c.Attempts(), ShouldEqual, 0)
			So(srv.conns.Load(), ShouldEqual, 1)
		})
	})

	Convey("Given a long backoff after a drop", t, func() {
		srv := &scriptServer{drop: true}
		ts := httptest.NewServer(srv)
		defer ts.Close()

		c := client.New(wsURL(ts), client.WithBackoff(reconnect.New(
			reconnect.WithBase(time.Hour),
			reconnect.WithJitter(0),
		)))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() { _ = c.Run(ctx) }()

		So(eventually(func() bool { return srv.conns.Load() == 1 && !c.Connected() }), ShouldBeTrue)

		Convey("When a manual reconnect is requested", func() {
			c.Reconnect()

			Convey("Then the client retries at once", func() {
				So(eventually(func() bool { return srv.conns.Load() == 2 }), ShouldBeTrue)
				So(eventually(func() bool { return c.Connections() == 2 }), ShouldBeTrue)
			})
		})
	})

	Convey("Given an attempt budget against a dead server", t, func() {
		ts := httptest.NewServer(http.NotFoundHandler())
		url := wsURL(ts)
		ts.Close()

		c := client.New(url, client.WithBackoff(reconnect.New(
			reconnect.WithBase(time.Millisecond),
			reconnect.WithMaxAttempts(2),
		)))
		err := c.Run(context.Background())

		So(errors.Is(err, client.ErrExhausted), ShouldBeTrue)
	})
}

func TestClientAgainstHub(t *testing.T) {
	Convey("Given a real hub with a fast ping", t, func() {
		h := hub.New(hub.WithPingInterval(20 * time.Millisecond))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		h.Start(ctx)
		defer h.Close(context.Background())
		ts := httptest.NewServer(h)
		defer ts.Close()

		c := client.New(wsURL(ts))
		go func() { _ = c.Run(ctx) }()
		So(eventually(func() bool { return h.Count() == 1 }), ShouldBeTrue)

		h.Broadcast(ctx, hub.TypeGameEvent, map[string]int{"delta": 7})
		time.Sleep(80 * time.Millisecond)

		Convey("Then the log holds the hello and the event but no pings", func() {
			So(eventually(func() bool { return len(c.Events()) == 2 }), ShouldBeTrue)
			for _, m := range c.Events() {
				So(m.Type, ShouldNotEqual, hub.TypePing)
			}
			So(c.Events()[0].Type, ShouldEqual, hub.TypeHello)
			So(string(c.Events()[1].Payload), ShouldEqual, `{"delta":7}`)
		})
	})
}
