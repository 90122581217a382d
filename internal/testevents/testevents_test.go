package testevents

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/stadium/internal/adapters/feed/replay"
	"github.com/okian/stadium/internal/adapters/http/api"
	"github.com/okian/stadium/internal/adapters/sink/logsink"
	service "github.com/okian/stadium/internal/app"
	"github.com/okian/stadium/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func TestGenerateCelebrations(t *testing.T) {
	convey.Convey("Given a drill config", t, func() {
		config := &Config{Contest: "drill", League: "nfl", NumEvents: 50}
		stats := &Stats{}

		convey.Convey("When no duplicates are requested", func() {
			cs := generateCelebrations(context.Background(), config, stats)

			convey.Convey("Then every celebration is unique and stamped", func() {
				convey.So(cs, convey.ShouldHaveLength, 50)
				convey.So(stats.Generated, convey.ShouldEqual, 50)
				convey.So(uniqueIDs(cs), convey.ShouldHaveLength, 50)
				for _, c := range cs {
					convey.So(c.ContestID, convey.ShouldEqual, "drill")
					convey.So(c.EventType, convey.ShouldNotEqual, "red_zone")
				}
			})
		})

		convey.Convey("When every later celebration is a duplicate", func() {
			config.Duplicate = 1
			cs := generateCelebrations(context.Background(), config, stats)

			convey.Convey("Then they all repeat the first one", func() {
				convey.So(uniqueIDs(cs), convey.ShouldHaveLength, 1)
			})
		})
	})
}

func TestWSURL(t *testing.T) {
	convey.Convey("Given service base URLs", t, func() {
		convey.So(wsURL("http://localhost:9080/"), convey.ShouldEqual, "ws://localhost:9080/ws")
		convey.So(wsURL("https://stadium.example"), convey.ShouldEqual, "wss://stadium.example/ws")
	})
}

func TestVerifyResults(t *testing.T) {
	convey.Convey("Given accepted and dispatched ids", t, func() {
		ctx := context.Background()
		config := &Config{}
		generated := []Celebration{{EventID: "a"}, {EventID: "b"}, {EventID: "c"}}
		accepted := map[string]struct{}{"a": {}, "b": {}}

		convey.Convey("When each accepted id is dispatched once", func() {
			stats := &Stats{}
			err := verifyResults(ctx, config, accepted, generated, map[string]int{"a": 1, "b": 1, "other": 3}, stats)

			convey.Convey("Then verification passes and foreign ids are ignored", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(stats.Expected, convey.ShouldEqual, 2)
				convey.So(stats.Missing, convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When ids are missing, repeated or unexpected", func() {
			stats := &Stats{}
			err := verifyResults(ctx, config, accepted, generated, map[string]int{"a": 2, "c": 1}, stats)

			convey.Convey("Then verification fails with counts", func() {
				convey.So(errors.Is(err, ErrVerification), convey.ShouldBeTrue)
				convey.So(stats.Missing, convey.ShouldEqual, 1)
				convey.So(stats.Unexpected, convey.ShouldEqual, 1)
				convey.So(err.Error(), convey.ShouldContainSubstring, "dispatched more than once")
			})
		})
	})
}

func TestRun(t *testing.T) {
	convey.Convey("Given a running stadium server", t, func() {
		ctx := context.Background()
		src, err := replay.New(replay.Script{})
		convey.So(err, convey.ShouldBeNil)

		svc := service.New(service.WithSource(src), service.WithSinks(logsink.New()))
		convey.So(svc.Start(ctx), convey.ShouldBeNil)

		mux := http.NewServeMux()
		api.NewServer(svc, svc, svc.Hub(), api.WithTriggerRate(10_000, 10_000)).Register(ctx, mux)
		srv := httptest.NewServer(mux)

		defer func() {
			srv.CloseClientConnections()
			stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			_ = svc.Stop(stopCtx)
			srv.Close()
		}()

		convey.Convey("When a drill with duplicates runs", func() {
			stats, err := Run(ctx, &Config{
				BaseURL:   srv.URL,
				Contest:   "drill",
				League:    "nfl",
				NumEvents: 20,
				Workers:   4,
				Duplicate: 0.25,
				Timeout:   5 * time.Second,
				Settle:    5 * time.Second,
			})

			convey.Convey("Then every accepted celebration comes back once", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(stats.Submitted, convey.ShouldEqual, 20)
				convey.So(stats.Failed, convey.ShouldEqual, 0)
				convey.So(stats.Missing, convey.ShouldEqual, 0)
				convey.So(stats.Dispatches, convey.ShouldEqual, stats.Expected)
			})
		})

		convey.Convey("When the service is unreachable", func() {
			_, err := Run(ctx, &Config{BaseURL: "http://127.0.0.1:1", Timeout: time.Second})

			convey.Convey("Then the status check fails", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "status check")
			})
		})
	})
}
