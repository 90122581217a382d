package service_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/stadium/internal/adapters/feed/replay"
	"github.com/okian/stadium/internal/adapters/ws/hub"
	service "github.com/okian/stadium/internal/app"
	"github.com/okian/stadium/internal/domain/celebration"
	"github.com/okian/stadium/internal/reconnect"
	"github.com/okian/stadium/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type recordingSink struct {
	id    string
	mu    sync.Mutex
	cmds  []celebration.Command
	idles int
}

func (r *recordingSink) ID() string { return r.id }

func (r *recordingSink) Apply(_ context.Context, cmd celebration.Command) error {
	r.mu.Lock()
	r.cmds = append(r.cmds, cmd)
	r.mu.Unlock()
	return nil
}

func (r *recordingSink) ApplyIdle(context.Context) error {
	r.mu.Lock()
	r.idles++
	r.mu.Unlock()
	return nil
}

func (r *recordingSink) categories() []celebration.Category {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]celebration.Category, len(r.cmds))
	for i, c := range r.cmds {
		out[i] = c.Category
	}
	return out
}

func (r *recordingSink) idled() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.idles
}

var (
	bills  = replay.Team{ID: "2", Abbreviation: "BUF", DisplayName: "Buffalo Bills"}
	chiefs = replay.Team{ID: "12", Abbreviation: "KC", DisplayName: "Kansas City Chiefs"}
)

func script(t *testing.T, id string, frames ...replay.Frame) *replay.Source {
	t.Helper()
	src, err := replay.New(replay.Script{Contests: []replay.Contest{{
		ContestID: id,
		Home:      bills,
		Away:      chiefs,
		Frames:    frames,
	}}})
	if err != nil {
		t.Fatalf("replay script: %v", err)
	}
	return src
}

func fastService(opts ...service.Option) *service.Service {
	base := []service.Option{
		service.WithPollInterval(5 * time.Millisecond),
		service.WithBackoff(reconnect.WithBase(2*time.Millisecond), reconnect.WithMax(5*time.Millisecond)),
		service.WithHealthInterval(10 * time.Millisecond),
	}
	return service.New(append(base, opts...)...)
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

// subscriber collects every non-ping message from the hub.
type subscriber struct {
	conn *websocket.Conn
	mu   sync.Mutex
	msgs []hub.Message
}

func subscribe(t *testing.T, svc *service.Service) (*subscriber, func()) {
	t.Helper()
	srv := httptest.NewServer(svc.Hub())
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial hub: %v", err)
	}
	sub := &subscriber{conn: conn}
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var m hub.Message
			if json.Unmarshal(data, &m) != nil || m.Type == hub.TypePing {
				continue
			}
			sub.mu.Lock()
			sub.msgs = append(sub.msgs, m)
			sub.mu.Unlock()
		}
	}()
	if !eventually(func() bool { return len(sub.of(hub.TypeHello)) == 1 }) {
		t.Fatalf("no hello from hub")
	}
	return sub, func() {
		_ = conn.Close()
		srv.Close()
	}
}

func (s *subscriber) of(t hub.MessageType) []hub.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []hub.Message
	for _, m := range s.msgs {
		if m.Type == t {
			out = append(out, m)
		}
	}
	return out
}

type gameEventView struct {
	Kind    string `json:"kind"`
	Command *struct {
		Category  string `json:"category"`
		Intensity string `json:"intensity"`
		Team      struct {
			Abbreviation string `json:"abbreviation"`
		} `json:"team"`
	} `json:"command"`
}

func (s *subscriber) gameEvents() []gameEventView {
	var out []gameEventView
	for _, m := range s.of(hub.TypeGameEvent) {
		var v gameEventView
		if json.Unmarshal(m.Payload, &v) == nil {
			out = append(out, v)
		}
	}
	return out
}
