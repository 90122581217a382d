package sink_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/okian/stadium/internal/adapters/sink"
	"github.com/okian/stadium/internal/domain/celebration"
	. "github.com/smartystreets/goconvey/convey"
)

func TestPlay(t *testing.T) {
	Convey("Given a three step sequence", t, func() {
		steps := []celebration.Step{{Hold: time.Second}, {Hold: time.Second}, {Hold: 0}}
		clock := clockwork.NewFakeClock()

		Convey("When it plays to completion", func() {
			shown := 0
			done := make(chan error, 1)
			go func() {
				done <- sink.Play(context.Background(), clock, steps, func(context.Context, celebration.Step) error {
					shown++
					return nil
				})
			}()
			for i := 0; i < 2; i++ {
				So(clock.BlockUntilContext(context.Background(), 1), ShouldBeNil)
				clock.Advance(time.Second)
			}

			So(<-done, ShouldBeNil)
			So(shown, ShouldEqual, 3)
		})

		Convey("When the context ends mid-hold", func() {
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan error, 1)
			go func() {
				done <- sink.Play(ctx, clock, steps, func(context.Context, celebration.Step) error { return nil })
			}()
			So(clock.BlockUntilContext(context.Background(), 1), ShouldBeNil)
			cancel()

			So(errors.Is(<-done, context.Canceled), ShouldBeTrue)
		})

		Convey("When a step fails", func() {
			boom := errors.New("boom")
			err := sink.Play(context.Background(), clock, steps, func(context.Context, celebration.Step) error { return boom })
			So(errors.Is(err, boom), ShouldBeTrue)
		})
	})
}

func TestScale(t *testing.T) {
	Convey("Brightness maps onto a clamped percentage", t, func() {
		So(sink.Scale(1.0, 10), ShouldEqual, 100)
		So(sink.Scale(0.8, 10), ShouldEqual, 80)
		So(sink.Scale(0.6, 10), ShouldEqual, 60)
		So(sink.Scale(0.01, 10), ShouldEqual, 10)
		So(sink.Scale(2, 10), ShouldEqual, 100)
	})
}
