// Package worker runs serial lanes over in-memory queues.
//
// A lane is one goroutine draining one queue, so items on the same lane are
// handled strictly in arrival order. A Pool keys lanes by name and creates
// them on first use. A released lane drains what it already holds, and a lane
// created again for the same key waits for it before handling anything.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/stadium/internal/adapters/mq/queue"
	"github.com/okian/stadium/pkg/logger"
	"github.com/okian/stadium/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultLaneCapacity = 64
	poolShutdownTimeout = 30 * time.Second
)

// Handler processes a single item. It is never called concurrently for the
// same lane.
type Handler[T any] func(ctx context.Context, item T)

// Source defines how workers receive items.
type Source[T any] interface {
	Dequeue() <-chan T
}

// Worker drains a source until it closes or the worker is shut down.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown stops the worker and waits for the item in flight.
	Shutdown(ctx context.Context) error
}

// Lane implements Worker for a single serial queue.
type Lane[T any] struct {
	source  Source[T]
	handler Handler[T]
	name    string

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewLane creates a lane that feeds every item from source to handler.
func NewLane[T any](source Source[T], handler Handler[T], opts ...Option) *Lane[T] {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Get().Named("lane")
	}

	return &Lane[T]{
		source:   source,
		handler:  handler,
		name:     o.name,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   o.logger.With(logger.String("lane", o.name)),
	}
}

// Run starts the lane loop.
func (l *Lane[T]) Run(ctx context.Context) {
	defer close(l.done)

	items := l.source.Dequeue()
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.shutdown:
			return
		case item, ok := <-items:
			if !ok {
				return
			}
			l.process(ctx, item)
		}
	}
}

func (l *Lane[T]) process(ctx context.Context, item T) {
	defer func() {
		if r := recover(); r != nil {
			metrics.RecordErrorByComponent("lane", "panic")
			l.logger.Error(ctx, "lane handler panicked", logger.Any("panic", r))
		}
	}()
	l.handler(ctx, item)
}

// Shutdown signals the lane to stop and waits for it to finish.
func (l *Lane[T]) Shutdown(ctx context.Context) error {
	l.shutdownOnce.Do(func() { close(l.shutdown) })

	select {
	case <-l.done:
		return nil
	case <-ctx.Done():
		l.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Done is closed once Run has returned.
func (l *Lane[T]) Done() <-chan struct{} {
	return l.done
}

type poolLane[T any] struct {
	queue *queue.InMemoryQueue[T]
	lane  *Lane[T]
}

// Pool manages one lane per key.
type Pool[T any] struct {
	handler  Handler[T]
	capacity int
	name     string

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	lanes    map[string]*poolLane[T]
	draining map[string]*poolLane[T]
	closed   bool

	logger logger.Logger
}

// NewPool creates a keyed lane pool. Lanes run under ctx.
func NewPool[T any](ctx context.Context, handler Handler[T], opts ...Option) *Pool[T] {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Get().Named("lane-pool")
	}

	ctx, cancel := context.WithCancel(ctx)
	p := &Pool[T]{
		handler:  handler,
		capacity: o.capacity,
		name:     o.name,
		ctx:      ctx,
		cancel:   cancel,
		lanes:    make(map[string]*poolLane[T]),
		draining: make(map[string]*poolLane[T]),
		logger:   o.logger,
	}
	metrics.UpdateLaneCount(0)
	return p
}

// Submit enqueues item on the lane for key, starting the lane if needed.
func (p *Pool[T]) Submit(ctx context.Context, key string, item T) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return queue.ErrClosed
	}
	pl, ok := p.lanes[key]
	if !ok {
		q := queue.NewInMemoryQueue[T](queue.WithCapacity(p.capacity), queue.WithName(p.name))
		handle := func(ctx context.Context, item T) {
			metrics.RecordQueueDequeue(p.name)
			metrics.UpdateQueueSize(p.name, q.Len())
			p.handler(ctx, item)
		}
		pl = &poolLane[T]{
			queue: q,
			lane:  NewLane[T](q, handle, WithName(key), WithLogger(p.logger)),
		}
		p.lanes[key] = pl
		var prev <-chan struct{}
		if old, ok := p.draining[key]; ok {
			prev = old.lane.Done()
		}
		go p.run(pl, prev)
		metrics.UpdateLaneCount(len(p.lanes))
	}
	p.mu.Unlock()

	return pl.queue.Enqueue(ctx, item)
}

// run starts pl once prev, the released lane it replaces, has finished.
func (p *Pool[T]) run(pl *poolLane[T], prev <-chan struct{}) {
	if prev != nil {
		select {
		case <-prev:
		case <-p.ctx.Done():
		}
	}
	pl.lane.Run(p.ctx)
}

// Release closes the lane for key. Queued items are still handled before the
// lane exits, and a later Submit for key runs only after that.
func (p *Pool[T]) Release(key string) {
	p.mu.Lock()
	pl, ok := p.lanes[key]
	if ok {
		delete(p.lanes, key)
		p.draining[key] = pl
		metrics.UpdateLaneCount(len(p.lanes))
	}
	p.mu.Unlock()

	if !ok {
		return
	}
	_ = pl.queue.Close()
	go func() {
		<-pl.lane.Done()
		p.mu.Lock()
		if p.draining[key] == pl {
			delete(p.draining, key)
		}
		p.mu.Unlock()
	}()
}

// Len returns the number of live lanes.
func (p *Pool[T]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.lanes)
}

// Keys returns the keys of all live lanes.
func (p *Pool[T]) Keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := make([]string, 0, len(p.lanes))
	for k := range p.lanes {
		keys = append(keys, k)
	}
	return keys
}

// Shutdown closes every lane and waits for them to drain.
func (p *Pool[T]) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	lanes := make([]*poolLane[T], 0, len(p.lanes)+len(p.draining))
	for _, pl := range p.lanes {
		lanes = append(lanes, pl)
	}
	for _, pl := range p.draining {
		lanes = append(lanes, pl)
	}
	p.lanes = make(map[string]*poolLane[T])
	p.draining = make(map[string]*poolLane[T])
	p.mu.Unlock()

	for _, pl := range lanes {
		if err := pl.queue.Close(); err != nil {
			p.logger.Error(ctx, "error closing lane queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()
	defer p.cancel()

	for _, pl := range lanes {
		select {
		case <-pl.lane.Done():
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "lane shutdown timed out", logger.String("lane", pl.lane.name))
			metrics.UpdateLaneCount(0)
			return fmt.Errorf("lane shutdown: %w", shutdownCtx.Err())
		}
	}
	metrics.UpdateLaneCount(0)
	return nil
}
