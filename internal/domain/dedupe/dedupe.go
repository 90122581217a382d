// Package dedupe suppresses repeated keys inside a sliding time window.
package dedupe

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Default window configuration.
const (
	defaultWindow  = 30 * time.Second
	defaultMaxSize = 10_000
)

// Deduper records keys to coalesce repeats that arrive within a window.
type Deduper interface {
	// SeenAndRecord atomically checks whether id was recorded within the
	// window and records it if not. Returns true for a repeat.
	SeenAndRecord(ctx context.Context, id string) bool

	// Unrecord forgets id so a later submission is not treated as a repeat.
	// Used when a recorded submission could not be enqueued.
	Unrecord(ctx context.Context, id string)

	// Size reports live (unexpired) entries.
	Size() int64
}

type entry struct {
	id      string
	expires time.Time
}

// windowDeduper keeps entries in insertion order; with a fixed window that
// is also expiry order, so pruning only ever looks at the front.
type windowDeduper struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	window  time.Duration
	maxSize int
	order   *list.List
	index   map[string]*list.Element
}

// NewWindowDeduper creates a time-window deduper with configuration options.
func NewWindowDeduper(opts ...Option) Deduper {
	d := &windowDeduper{
		clock:   clockwork.NewRealClock(),
		window:  defaultWindow,
		maxSize: defaultMaxSize,
		order:   list.New(),
		index:   make(map[string]*list.Element),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *windowDeduper) SeenAndRecord(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.clock.Now()
	d.prune(now)

	if _, ok := d.index[id]; ok {
		return true
	}

	if d.maxSize > 0 && d.order.Len() >= d.maxSize {
		d.remove(d.order.Front())
	}
	d.index[id] = d.order.PushBack(&entry{id: id, expires: now.Add(d.window)})
	return false
}

func (d *windowDeduper) Unrecord(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if el, ok := d.index[id]; ok {
		d.remove(el)
	}
}

func (d *windowDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.prune(d.clock.Now())
	return int64(d.order.Len())
}

// prune drops expired entries. Caller holds d.mu.
func (d *windowDeduper) prune(now time.Time) {
	for el := d.order.Front(); el != nil; el = d.order.Front() {
		if el.Value.(*entry).expires.After(now) {
			return
		}
		d.remove(el)
	}
}

// remove unlinks el. Caller holds d.mu.
func (d *windowDeduper) remove(el *list.Element) {
	e := d.order.Remove(el).(*entry)
	delete(d.index, e.id)
}
