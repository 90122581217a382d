package worker_test

import (
	"context"
	"sync"
	"testing"
	"time"

	queue "github.com/okian/stadium/internal/adapters/mq/queue"
	worker "github.com/okian/stadium/internal/adapters/mq/worker"
	logging "github.com/okian/stadium/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

type recorder struct {
	mu    sync.Mutex
	items map[string][]int
}

func newRecorder() *recorder {
	return &recorder{items: make(map[string][]int)}
}

func (r *recorder) add(key string, v int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[key] = append(r.items[key], v)
}

func (r *recorder) get(key string) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.items[key]...)
}

type item struct {
	key string
	seq int
}

func TestLane(t *testing.T) {
	convey.Convey("Given a lane over an in-memory queue", t, func() {
		_ = logging.Init()

		q := queue.NewInMemoryQueue[int](queue.WithCapacity(16))
		rec := newRecorder()
		lane := worker.NewLane[int](q, func(_ context.Context, v int) {
			if v == 3 {
				panic("boom")
			}
			rec.add("lane", v)
		}, worker.WithName("test"))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go lane.Run(ctx)

		convey.Convey("When items are enqueued and the queue closes", func() {
			for i := 1; i <= 5; i++ {
				convey.So(q.Enqueue(ctx, i), convey.ShouldBeNil)
			}
			_ = q.Close()

			select {
			case <-lane.Done():
			case <-time.After(2 * time.Second):
			}

			convey.Convey("Then items are handled in order and a panic does not stop the lane", func() {
				convey.So(rec.get("lane"), convey.ShouldResemble, []int{1, 2, 4, 5})
			})
		})

		convey.Convey("When the lane is shut down", func() {
			err := lane.Shutdown(context.Background())

			convey.Convey("Then it stops cleanly and a second shutdown is harmless", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(lane.Shutdown(context.Background()), convey.ShouldBeNil)
			})
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a keyed lane pool", t, func() {
		_ = logging.Init()

		rec := newRecorder()
		var inFlight sync.Map
		overlap := false
		var overlapMu sync.Mutex

		pool := worker.NewPool[item](context.Background(), func(_ context.Context, it item) {
			if _, loaded := inFlight.LoadOrStore(it.key, true); loaded {
				overlapMu.Lock()
				overlap = true
				overlapMu.Unlock()
			}
			time.Sleep(time.Millisecond)
			rec.add(it.key, it.seq)
			inFlight.Delete(it.key)
		}, worker.WithCapacity(128), worker.WithName("test-pool"))

		convey.Convey("When items for several keys are submitted", func() {
			ctx := context.Background()
			for i := 0; i < 20; i++ {
				convey.So(pool.Submit(ctx, "a", item{key: "a", seq: i}), convey.ShouldBeNil)
				convey.So(pool.Submit(ctx, "b", item{key: "b", seq: i}), convey.ShouldBeNil)
			}
			convey.So(pool.Len(), convey.ShouldEqual, 2)
			convey.So(pool.Keys(), convey.ShouldHaveLength, 2)

			convey.So(pool.Shutdown(ctx), convey.ShouldBeNil)

			convey.Convey("Then each key sees its items in order without overlap", func() {
				want := make([]int, 20)
				for i := range want {
					want[i] = i
				}
				convey.So(rec.get("a"), convey.ShouldResemble, want)
				convey.So(rec.get("b"), convey.ShouldResemble, want)
				overlapMu.Lock()
				convey.So(overlap, convey.ShouldBeFalse)
				overlapMu.Unlock()
				convey.So(pool.Len(), convey.ShouldEqual, 0)
			})

			convey.Convey("And submitting after shutdown fails", func() {
				convey.So(pool.Submit(ctx, "a", item{key: "a"}), convey.ShouldEqual, queue.ErrClosed)
			})
		})

		convey.Convey("When a lane is released", func() {
			ctx := context.Background()
			convey.So(pool.Submit(ctx, "c", item{key: "c", seq: 1}), convey.ShouldBeNil)
			pool.Release("c")

			deadline := time.Now().Add(2 * time.Second)
			for len(rec.get("c")) == 0 && time.Now().Before(deadline) {
				time.Sleep(time.Millisecond)
			}

			convey.Convey("Then the lane is gone and a new submit recreates it", func() {
				convey.So(pool.Len(), convey.ShouldEqual, 0)
				convey.So(pool.Submit(ctx, "c", item{key: "c", seq: 2}), convey.ShouldBeNil)
				convey.So(pool.Len(), convey.ShouldEqual, 1)
				convey.So(pool.Shutdown(ctx), convey.ShouldBeNil)
				convey.So(rec.get("c"), convey.ShouldResemble, []int{1, 2})
			})
		})

		convey.Convey("When a busy lane is released and its key is reused at once", func() {
			ctx := context.Background()
			for i := 0; i < 5; i++ {
				convey.So(pool.Submit(ctx, "d", item{key: "d", seq: i}), convey.ShouldBeNil)
			}
			pool.Release("d")
			for i := 5; i < 10; i++ {
				convey.So(pool.Submit(ctx, "d", item{key: "d", seq: i}), convey.ShouldBeNil)
			}
			convey.So(pool.Shutdown(ctx), convey.ShouldBeNil)

			convey.Convey("Then the new lane waits for the old one to drain", func() {
				convey.So(rec.get("d"), convey.ShouldResemble, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9})
				overlapMu.Lock()
				convey.So(overlap, convey.ShouldBeFalse)
				overlapMu.Unlock()
			})
		})
	})
}
