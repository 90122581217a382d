package testevents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/okian/stadium/internal/adapters/ws/client"
	"github.com/okian/stadium/internal/adapters/ws/hub"
	"github.com/okian/stadium/internal/dispatch"
)

const manualOriginPrefix = "manual|"

// listener counts messages from the hub while the drill runs.
type listener struct {
	mu         sync.Mutex
	hello      bool
	gameEvents int
	dispatched map[string]int

	client *client.Client
	done   chan struct{}
}

func newListener(baseURL string) *listener {
	l := &listener{dispatched: make(map[string]int), done: make(chan struct{})}
	l.client = client.New(wsURL(baseURL), client.WithHandler(l.handle))
	return l
}

func wsURL(baseURL string) string {
	u := strings.TrimSuffix(baseURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws"
}

func (l *listener) handle(m hub.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch m.Type {
	case hub.TypeHello:
		l.hello = true
	case hub.TypeGameEvent:
		l.gameEvents++
	case hub.TypeDispatch:
		var r dispatch.Result
		if err := json.Unmarshal(m.Payload, &r); err != nil || r.Idle || r.Suppressed {
			return
		}
		if id, ok := strings.CutPrefix(r.Command.Origin, manualOriginPrefix); ok {
			l.dispatched[id]++
		}
	}
}

// start connects and waits for the hello message.
func (l *listener) start(ctx context.Context) error {
	go func() {
		defer close(l.done)
		_ = l.client.Run(ctx)
	}()

	deadline := time.Now().Add(subscribeTimeout)
	for time.Now().Before(deadline) {
		l.mu.Lock()
		ok := l.hello
		l.mu.Unlock()
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(settlePoll):
		}
	}
	return fmt.Errorf("no hello within %s", subscribeTimeout)
}

// counts returns the game event total and a copy of the dispatch counts.
func (l *listener) counts() (int, map[string]int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]int, len(l.dispatched))
	for k, v := range l.dispatched {
		out[k] = v
	}
	return l.gameEvents, out
}

// settle waits until every expected id has been dispatched or timeout
// passes.
func (l *listener) settle(ctx context.Context, expected map[string]struct{}, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		_, got := l.counts()
		missing := 0
		for id := range expected {
			if got[id] == 0 {
				missing++
			}
		}
		if missing == 0 {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(settlePoll):
		}
	}
}
