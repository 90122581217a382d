package dispatch_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/stadium/internal/adapters/sink/breaker"
	"github.com/okian/stadium/internal/adapters/sink/govee"
	"github.com/okian/stadium/internal/dispatch"
	"github.com/okian/stadium/internal/domain/celebration"
	"github.com/okian/stadium/internal/domain/game"
	"github.com/okian/stadium/internal/domain/teams"
	"github.com/okian/stadium/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	_ = logger.Init()
}

// fakeSink records calls and can be made to hang, fail or sleep.
type fakeSink struct {
	id    string
	delay time.Duration
	hang  bool
	fail  error

	mu      sync.Mutex
	applied []celebration.Command
	idled   int
	active  atomic.Int32
	overlap atomic.Bool
}

func (f *fakeSink) ID() string { return f.id }

func (f *fakeSink) Apply(ctx context.Context, cmd celebration.Command) error {
	if f.active.Add(1) > 1 {
		f.overlap.Store(true)
	}
	defer f.active.Add(-1)

	if f.hang {
		select {}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	f.applied = append(f.applied, cmd)
	f.mu.Unlock()
	return f.fail
}

func (f *fakeSink) ApplyIdle(context.Context) error {
	f.mu.Lock()
	f.idled++
	f.mu.Unlock()
	return f.fail
}

func (f *fakeSink) calls() []celebration.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]celebration.Command(nil), f.applied...)
}

func cmd(contest, origin string, cat celebration.Category) celebration.Command {
	return celebration.Command{
		ContestID: contest,
		Category:  cat,
		Team:      game.TeamScore{ID: "2", Abbreviation: "BUF"},
		Duration:  10 * time.Millisecond,
		Origin:    origin,
	}
}

func TestDispatchIsolation(t *testing.T) {
	Convey("Given three sinks where one hangs and one fails", t, func() {
		good := &fakeSink{id: "good"}
		hung := &fakeSink{id: "hung", hang: true}
		bad := &fakeSink{id: "bad", fail: errors.New("bulb offline")}
		d := dispatch.New([]dispatch.Sink{good, hung, bad}, dispatch.WithGrace(100*time.Millisecond))
		defer d.Close(context.Background())

		Convey("When a command is dispatched", func() {
			start := time.Now()
			r, err := d.Dispatch(context.Background(), cmd("401", "e1", celebration.Touchdown))
			elapsed := time.Since(start)

			Convey("Then every sink has an outcome within the timeout window", func() {
				So(err, ShouldBeNil)
				So(elapsed, ShouldBeLessThan, time.Second)
				So(r.Outcomes, ShouldHaveLength, 3)

				So(r.Outcomes[0].SinkID, ShouldEqual, "good")
				So(r.Outcomes[0].OK, ShouldBeTrue)

				So(r.Outcomes[1].SinkID, ShouldEqual, "hung")
				So(r.Outcomes[1].OK, ShouldBeFalse)
				So(errors.Is(r.Outcomes[1].Err, dispatch.ErrSinkTimeout), ShouldBeTrue)

				So(r.Outcomes[2].OK, ShouldBeFalse)
				So(r.Outcomes[2].Error, ShouldContainSubstring, "bulb offline")
				So(r.Failed(), ShouldEqual, 2)
			})

			Convey("And the next dispatch is not held up by the abandoned call", func() {
				r2, err := d.Dispatch(context.Background(), cmd("401", "e2", celebration.FieldGoal))
				So(err, ShouldBeNil)
				So(r2.Outcomes[0].OK, ShouldBeTrue)
				So(good.calls(), ShouldHaveLength, 2)
			})
		})
	})
}

func TestDispatchDeduplication(t *testing.T) {
	Convey("Given a dispatcher with one sink", t, func() {
		s := &fakeSink{id: "s"}
		d := dispatch.New([]dispatch.Sink{s})
		defer d.Close(context.Background())
		ctx := context.Background()

		Convey("When the same command is submitted twice", func() {
			r1, err1 := d.Dispatch(ctx, cmd("401", "e1", celebration.Touchdown))
			r2, err2 := d.Dispatch(ctx, cmd("401", "e1", celebration.Touchdown))

			Convey("Then sinks are invoked once and the second is suppressed", func() {
				So(err1, ShouldBeNil)
				So(err2, ShouldBeNil)
				So(r1.Suppressed, ShouldBeFalse)
				So(r2.Suppressed, ShouldBeTrue)
				So(r2.Outcomes, ShouldBeEmpty)
				So(s.calls(), ShouldHaveLength, 1)
			})
		})

		Convey("When commands differ only by origin", func() {
			_, _ = d.Dispatch(ctx, cmd("401", "e1", celebration.Touchdown))
			r, _ := d.Dispatch(ctx, cmd("401", "e2", celebration.Touchdown))

			Convey("Then both are dispatched", func() {
				So(r.Suppressed, ShouldBeFalse)
				So(s.calls(), ShouldHaveLength, 2)
			})
		})
	})
}

func TestDispatchOrdering(t *testing.T) {
	Convey("Given a slow sink shared by two contests", t, func() {
		s := &fakeSink{id: "slow", delay: 20 * time.Millisecond}
		d := dispatch.New([]dispatch.Sink{s}, dispatch.WithGrace(time.Second))
		defer d.Close(context.Background())
		ctx := context.Background()

		Convey("When several commands for one contest are submitted", func() {
			var chans []<-chan dispatch.Result
			cats := []celebration.Category{celebration.Touchdown, celebration.ExtraPoint, celebration.Victory}
			for i, c := range cats {
				ch, err := d.Submit(ctx, cmd("401", string(rune('a'+i)), c))
				So(err, ShouldBeNil)
				chans = append(chans, ch)
			}
			for _, ch := range chans {
				<-ch
			}

			Convey("Then they run one at a time in submission order", func() {
				calls := s.calls()
				So(calls, ShouldHaveLength, 3)
				for i, c := range cats {
					So(calls[i].Category, ShouldEqual, c)
				}
				So(s.overlap.Load(), ShouldBeFalse)
			})
		})
	})

	Convey("Given independent contests", t, func() {
		s := &fakeSink{id: "slow", delay: 100 * time.Millisecond}
		d := dispatch.New([]dispatch.Sink{s}, dispatch.WithGrace(time.Second))
		defer d.Close(context.Background())
		ctx := context.Background()

		start := time.Now()
		a, _ := d.Submit(ctx, cmd("401", "401|x", celebration.Touchdown))
		b, _ := d.Submit(ctx, cmd("402", "402|x", celebration.Touchdown))
		<-a
		<-b

		So(time.Since(start), ShouldBeLessThan, 190*time.Millisecond)
		So(d.Lanes(), ShouldEqual, 2)

		d.Release("401")
		So(d.Lanes(), ShouldEqual, 1)
	})
}

func TestDispatchIdleAndManual(t *testing.T) {
	Convey("Given a dispatcher", t, func() {
		s := &fakeSink{id: "s"}
		var observed atomic.Int32
		d := dispatch.New([]dispatch.Sink{s}, dispatch.WithObserver(func(context.Context, dispatch.Result) {
			observed.Add(1)
		}))
		defer d.Close(context.Background())
		ctx := context.Background()

		Convey("When an idle is requested", func() {
			ch, err := d.Idle(ctx, "401")
			So(err, ShouldBeNil)
			r := <-ch

			Convey("Then sinks return to idle and observers see it", func() {
				So(r.Idle, ShouldBeTrue)
				So(r.Outcomes[0].OK, ShouldBeTrue)
				s.mu.Lock()
				So(s.idled, ShouldEqual, 1)
				s.mu.Unlock()
				So(observed.Load(), ShouldEqual, 1)
			})
		})

		Convey("When a command has no contest", func() {
			_, err := d.Dispatch(ctx, cmd("", "manual|1", celebration.Victory))

			Convey("Then it runs on the manual lane", func() {
				So(err, ShouldBeNil)
				So(d.Lanes(), ShouldEqual, 1)
				So(s.calls(), ShouldHaveLength, 1)
			})
		})
	})
}

func TestDispatchBackpressure(t *testing.T) {
	Convey("Given a dispatcher with a one-slot lane and a blocked sink", t, func() {
		release := make(chan struct{})
		s := &blockingSink{release: release, started: make(chan struct{})}
		d := dispatch.New([]dispatch.Sink{s}, dispatch.WithLaneCapacity(1), dispatch.WithGrace(5*time.Second))
		ctx := context.Background()

		first, err := d.Submit(ctx, cmd("401", "1", celebration.Touchdown))
		So(err, ShouldBeNil)
		<-s.started
		_, err = d.Submit(ctx, cmd("401", "2", celebration.Touchdown))
		So(err, ShouldBeNil)

		Convey("When the lane is full", func() {
			_, err := d.Submit(ctx, cmd("401", "3", celebration.Touchdown))

			Convey("Then the submit fails and the key can be retried later", func() {
				So(errors.Is(err, dispatch.ErrBackpressure), ShouldBeTrue)
				close(release)
				<-first
				var retry <-chan dispatch.Result
				for i := 0; i < 100; i++ {
					if retry, err = d.Submit(ctx, cmd("401", "3", celebration.Touchdown)); err == nil {
						break
					}
					time.Sleep(5 * time.Millisecond)
				}
				So(err, ShouldBeNil)
				r := <-retry
				So(r.Suppressed, ShouldBeFalse)
				So(d.Close(ctx), ShouldBeNil)
			})
		})
	})

	Convey("Given a closed dispatcher", t, func() {
		d := dispatch.New(nil)
		So(d.Close(context.Background()), ShouldBeNil)
		_, err := d.Submit(context.Background(), cmd("401", "1", celebration.Touchdown))
		So(errors.Is(err, dispatch.ErrClosed), ShouldBeTrue)
	})
}

type blockingSink struct {
	release chan struct{}
	once    sync.Once
	started chan struct{}
}

func (b *blockingSink) ID() string { return "blocking" }

func (b *blockingSink) Apply(ctx context.Context, _ celebration.Command) error {
	b.once.Do(func() { close(b.started) })
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return nil
}

func (b *blockingSink) ApplyIdle(context.Context) error { return nil }

func TestDispatchUsable(t *testing.T) {
	Convey("Given a breaker-wrapped sink that keeps failing", t, func() {
		bad := &fakeSink{id: "bad", fail: errors.New("down")}
		good := &fakeSink{id: "good"}
		d := dispatch.New([]dispatch.Sink{breaker.Wrap(bad, breaker.WithFailures(1)), good})
		defer d.Close(context.Background())

		So(d.Usable(), ShouldEqual, 2)
		So(d.Sinks(), ShouldResemble, []string{"bad", "good"})

		_, err := d.Dispatch(context.Background(), cmd("401", "1", celebration.Touchdown))
		So(err, ShouldBeNil)

		So(d.Usable(), ShouldEqual, 1)
	})
}

func TestDispatchReleaseKeepsOrder(t *testing.T) {
	Convey("Given a contest whose lane is busy with a long command", t, func() {
		s := &fakeSink{id: "slow", delay: 150 * time.Millisecond}
		d := dispatch.New([]dispatch.Sink{s}, dispatch.WithGrace(time.Second))
		defer d.Close(context.Background())
		ctx := context.Background()

		first, err := d.Submit(ctx, cmd("401", "e1", celebration.Victory))
		So(err, ShouldBeNil)

		Convey("When the lane is released and the contest gets another command", func() {
			d.Release("401")
			second, err := d.Submit(ctx, cmd("401", "e2", celebration.Touchdown))
			So(err, ShouldBeNil)
			<-first
			<-second

			Convey("Then the commands still run one after the other", func() {
				So(s.overlap.Load(), ShouldBeFalse)
				calls := s.calls()
				So(calls, ShouldHaveLength, 2)
				So(calls[0].Origin, ShouldEqual, "e1")
				So(calls[1].Origin, ShouldEqual, "e2")
			})
		})
	})
}

func TestDispatchSlowCloudSink(t *testing.T) {
	Convey("Given a breaker-wrapped govee sink behind a slow API", t, func() {
		var requests atomic.Int32
		api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			requests.Add(1)
			time.Sleep(100 * time.Millisecond)
			w.WriteHeader(http.StatusOK)
		}))
		defer api.Close()

		g := govee.New("key", []govee.Device{{ID: "aa:bb", Model: "H6159"}},
			govee.WithBaseURL(api.URL),
			govee.WithRateLimit(100, 100))
		s := breaker.Wrap(g, breaker.WithFailures(1))
		d := dispatch.New([]dispatch.Sink{s}, dispatch.WithGrace(50*time.Millisecond))
		defer d.Close(context.Background())

		steps := make([]celebration.Step, 6)
		for i := range steps {
			steps[i] = celebration.Step{Color: teams.Color{R: 198, G: 12, B: uint8(i)}, Hold: 20 * time.Millisecond}
		}

		Convey("When celebrations whose round trips outlast their holds are dispatched", func() {
			var results []dispatch.Result
			for i := 0; i < 3; i++ {
				c := cmd("401", "fg"+string(rune('0'+i)), celebration.FieldGoal)
				c.Steps = steps
				c.Duration = celebration.Total(steps)
				r, err := d.Dispatch(context.Background(), c)
				So(err, ShouldBeNil)
				results = append(results, r)
			}

			Convey("Then every call completes and the breaker stays closed", func() {
				for _, r := range results {
					So(r.Outcomes, ShouldHaveLength, 1)
					So(r.Outcomes[0].Error, ShouldBeEmpty)
					So(r.Outcomes[0].Latency, ShouldBeGreaterThan, steps[0].Hold*time.Duration(len(steps)))
				}
				So(int(requests.Load()), ShouldEqual, 3*(len(steps)+3))
				So(d.Usable(), ShouldEqual, 1)
			})
		})
	})
}
