package config_test

import (
	"context"
	"testing"
	"time"

	"github.com/okian/stadium/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.Feed.Source, convey.ShouldEqual, config.SourceESPN)
			convey.So(cfg.Feed.PollInterval, convey.ShouldEqual, 10*time.Second)
			convey.So(cfg.Feed.UntrackOnFinal, convey.ShouldBeTrue)
			convey.So(cfg.Sinks.Wiz.Port, convey.ShouldEqual, 38899)
			convey.So(cfg.Dispatch.Window, convey.ShouldEqual, 30*time.Second)
			convey.So(cfg.Health.FailureThreshold, convey.ShouldEqual, 5)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_AllContests(t *testing.T) {
	convey.Convey("Given contests in both forms", t, func() {
		cfg := config.New(context.Background())
		cfg.Feed.ContestIDs = []string{"college-football:401", "402"}
		cfg.Feed.Contests = nil

		convey.Convey("Then ids are parsed with an optional league", func() {
			refs := cfg.AllContests()
			convey.So(refs, convey.ShouldHaveLength, 2)
			convey.So(refs[0].League, convey.ShouldEqual, "college-football")
			convey.So(refs[0].ContestID, convey.ShouldEqual, "401")
			convey.So(refs[1].League, convey.ShouldEqual, "")
			convey.So(refs[1].ContestID, convey.ShouldEqual, "402")
		})
	})
}
