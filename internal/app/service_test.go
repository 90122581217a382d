package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/stadium/internal/adapters/feed"
	"github.com/okian/stadium/internal/adapters/feed/replay"
	service "github.com/okian/stadium/internal/app"
	"github.com/okian/stadium/internal/domain/celebration"
	"github.com/okian/stadium/internal/domain/classify"
)

func TestService_Start(t *testing.T) {
	Convey("Given a service without a source", t, func() {
		svc := service.New()

		Convey("Then it refuses to start", func() {
			So(errors.Is(svc.Start(context.Background()), service.ErrNoSource), ShouldBeTrue)
			So(svc.GetStats()["started"], ShouldEqual, false)
		})
	})

	Convey("Given a service with a source and a sink", t, func() {
		src := script(t, "c1", replay.Frame{Status: "pre"})
		svc := fastService(service.WithSource(src), service.WithSinks(&recordingSink{id: "rec"}))
		ctx := context.Background()

		Convey("When it is started twice", func() {
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)
			Reset(func() { _ = svc.Stop(ctx) })

			Convey("Then it reports healthy stats", func() {
				stats := svc.GetStats()
				So(stats["started"], ShouldEqual, true)
				So(stats["usableSinks"], ShouldEqual, 1)
				So(stats["trackedContests"], ShouldEqual, 0)
				So(svc.Status().State, ShouldEqual, service.StateHealthy)
				So(svc.Status().Reasons, ShouldBeEmpty)
			})
		})

		Convey("When it is stopped without starting", func() {
			So(svc.Stop(ctx), ShouldBeNil)
		})
	})
}

func TestService_Track(t *testing.T) {
	Convey("Given a service", t, func() {
		src := script(t, "c1", replay.Frame{Status: "pre"})
		svc := fastService(service.WithSource(src), service.WithSinks(&recordingSink{id: "rec"}))
		ctx := context.Background()

		Convey("When tracking before start", func() {
			err := svc.Track(ctx, feed.Ref{ContestID: "c1"})
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
		})

		Convey("When started", func() {
			So(svc.Start(ctx), ShouldBeNil)
			Reset(func() { _ = svc.Stop(ctx) })

			Convey("Then bad refs are rejected", func() {
				So(errors.Is(svc.Track(ctx, feed.Ref{ContestID: " "}), service.ErrInvalidContest), ShouldBeTrue)
				So(errors.Is(svc.Track(ctx, feed.Ref{ContestID: "c1", League: "mlb"}), service.ErrInvalidContest), ShouldBeTrue)
			})

			Convey("Then a contest can be tracked once and untracked", func() {
				So(svc.Track(ctx, feed.Ref{ContestID: "c1"}), ShouldBeNil)
				So(errors.Is(svc.Track(ctx, feed.Ref{ContestID: "c1"}), service.ErrAlreadyTracked), ShouldBeTrue)

				So(eventually(func() bool {
					cs := svc.Contests()
					return len(cs) == 1 && cs[0].Polls > 0
				}), ShouldBeTrue)
				cs := svc.Contests()[0]
				So(cs.League, ShouldEqual, "nfl")
				So(cs.Home.Abbreviation, ShouldEqual, "BUF")

				So(svc.Untrack(ctx, "c1"), ShouldBeNil)
				So(svc.Contests(), ShouldBeEmpty)
				So(errors.Is(svc.Untrack(ctx, "c1"), service.ErrNotTracked), ShouldBeTrue)
			})
		})
	})
}

func TestService_Trigger(t *testing.T) {
	Convey("Given a started service with two sinks", t, func() {
		a, b := &recordingSink{id: "a"}, &recordingSink{id: "b"}
		svc := fastService(service.WithSource(script(t, "c1", replay.Frame{})), service.WithSinks(a, b))
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)
		Reset(func() { _ = svc.Stop(ctx) })

		req := classify.ManualRequest{Category: "touchdown", EventID: "drill-1", League: "nfl", TeamAbbr: "buf"}

		Convey("When a manual celebration is triggered and waited for", func() {
			res, err := svc.Trigger(ctx, req, true)
			So(err, ShouldBeNil)

			Convey("Then every sink ran it", func() {
				So(res.Duplicate, ShouldBeFalse)
				So(res.Result, ShouldNotBeNil)
				So(res.Result.Outcomes, ShouldHaveLength, 2)
				So(res.Result.Failed(), ShouldEqual, 0)
				So(res.Command.Manual, ShouldBeTrue)
				So(res.Command.Team.Abbreviation, ShouldEqual, "BUF")
				So(a.categories(), ShouldResemble, []celebration.Category{celebration.Touchdown})
			})

			Convey("And the same request again is a duplicate", func() {
				again, err := svc.Trigger(ctx, req, true)
				So(err, ShouldBeNil)
				So(again.Duplicate, ShouldBeTrue)
				So(b.categories(), ShouldHaveLength, 1)
			})
		})

		Convey("When a request has no event id", func() {
			req.EventID = ""
			first, err := svc.Trigger(ctx, req, false)
			So(err, ShouldBeNil)
			second, err := svc.Trigger(ctx, req, false)
			So(err, ShouldBeNil)

			Convey("Then each one is distinct", func() {
				So(first.Duplicate, ShouldBeFalse)
				So(second.Duplicate, ShouldBeFalse)
				So(first.Command.Origin, ShouldNotEqual, second.Command.Origin)
				So(eventually(func() bool { return len(a.categories()) == 2 }), ShouldBeTrue)
			})
		})

		Convey("When the category is unknown", func() {
			req.Category = "hat-trick"
			_, err := svc.Trigger(ctx, req, false)
			So(errors.Is(err, service.ErrInvalidTrigger), ShouldBeTrue)
			So(errors.Is(err, classify.ErrUnknownCategory), ShouldBeTrue)
		})
	})
}

func TestService_Health(t *testing.T) {
	Convey("Given a service with no sinks", t, func() {
		svc := fastService(service.WithSource(script(t, "c1", replay.Frame{})))
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)
		Reset(func() { _ = svc.Stop(ctx) })

		Convey("Then it is degraded with no_sinks", func() {
			st := svc.Status()
			So(st.Degraded(), ShouldBeTrue)
			So(st.Reasons, ShouldHaveLength, 1)
			So(st.Reasons[0].Signal, ShouldEqual, service.SignalNoSinks)
		})
	})

	Convey("Given a contest whose feed keeps failing", t, func() {
		src := script(t, "c1", replay.Frame{Fail: true})
		svc := fastService(
			service.WithSource(src),
			service.WithSinks(&recordingSink{id: "rec"}),
			service.WithFailureThreshold(2),
		)
		ctx := context.Background()
		So(svc.Start(ctx), ShouldBeNil)
		Reset(func() { _ = svc.Stop(ctx) })
		sub, done := subscribe(t, svc)
		Reset(done)

		So(svc.Track(ctx, feed.Ref{ContestID: "c1"}), ShouldBeNil)

		Convey("Then the feed is reported unreachable", func() {
			So(eventually(func() bool { return svc.Status().Degraded() }), ShouldBeTrue)
			So(svc.Status().Reasons[0].Signal, ShouldEqual, service.SignalFeedUnreachable)
			So(eventually(func() bool { return len(sub.of("status")) > 0 }), ShouldBeTrue)
			So(svc.Contests()[0].Failures, ShouldBeGreaterThanOrEqualTo, 2)
			So(svc.Contests()[0].LastError, ShouldNotBeEmpty)

			Convey("And untracking clears the signal", func() {
				So(svc.Untrack(ctx, "c1"), ShouldBeNil)
				So(svc.Status().State, ShouldEqual, service.StateHealthy)
			})
		})
	})
}

func TestService_StopDrains(t *testing.T) {
	Convey("Given a service that is stopped with a tracked contest", t, func() {
		svc := fastService(service.WithSource(script(t, "c1", replay.Frame{Status: "in", Home: 3})), service.WithSinks(&recordingSink{id: "rec"}))
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		So(svc.Start(ctx), ShouldBeNil)
		So(svc.Track(ctx, feed.Ref{ContestID: "c1"}), ShouldBeNil)

		So(svc.Stop(ctx), ShouldBeNil)

		Convey("Then nothing is tracked and tracking again needs a restart", func() {
			So(svc.Contests(), ShouldBeEmpty)
			So(errors.Is(svc.Track(ctx, feed.Ref{ContestID: "c1"}), service.ErrNotStarted), ShouldBeTrue)
		})
	})
}
