package replay_test

import (
	"context"
	"errors"
	"testing"

	"github.com/okian/stadium/internal/adapters/feed"
	"github.com/okian/stadium/internal/adapters/feed/replay"
	"github.com/okian/stadium/internal/domain/game"
	. "github.com/smartystreets/goconvey/convey"
)

func TestReplay(t *testing.T) {
	Convey("Given the demo script", t, func() {
		src, err := replay.Load("testdata/demo.yaml")
		So(err, ShouldBeNil)
		ref := feed.Ref{League: game.LeagueNFL, ContestID: "demo-1"}
		ctx := context.Background()

		So(src.Contests(), ShouldHaveLength, 1)
		So(src.Contests()[0].ContestID, ShouldEqual, "demo-1")

		Convey("When every frame is fetched in turn", func() {
			pre, err := src.Fetch(ctx, ref)
			So(err, ShouldBeNil)
			So(pre.Status, ShouldEqual, game.StatusPre)
			So(pre.Situation, ShouldBeNil)
			So(pre.Home.Abbreviation, ShouldEqual, "BUF")

			kick, err := src.Fetch(ctx, ref)
			So(err, ShouldBeNil)
			So(kick.Status, ShouldEqual, game.StatusInProgress)
			So(kick.Possession(), ShouldEqual, "2")

			_, err = src.Fetch(ctx, ref)
			So(errors.Is(err, feed.ErrFetch), ShouldBeTrue)

			rz, _ := src.Fetch(ctx, ref)
			So(rz.RedZoneTeam(), ShouldEqual, "2")

			td, _ := src.Fetch(ctx, ref)
			So(td.Home.Score, ShouldEqual, 7)

			final, _ := src.Fetch(ctx, ref)
			So(final.Status, ShouldEqual, game.StatusFinal)

			Convey("Then the last frame repeats", func() {
				again, err := src.Fetch(ctx, ref)
				So(err, ShouldBeNil)
				So(again.Status, ShouldEqual, game.StatusFinal)
				So(again.Home.Score, ShouldEqual, 24)
			})

			Convey("And a rewind starts over", func() {
				src.Rewind("demo-1")
				first, _ := src.Fetch(ctx, ref)
				So(first.Status, ShouldEqual, game.StatusPre)
			})
		})

		Convey("When an unknown contest is fetched", func() {
			_, err := src.Fetch(ctx, feed.Ref{ContestID: "other"})
			So(errors.Is(err, feed.ErrContestNotFound), ShouldBeTrue)
		})
	})

	Convey("Given a JSON script", t, func() {
		src, err := replay.Parse([]byte(`{"contests":[{"contest_id":"j","home":{"id":"a"},"away":{"id":"b"},"frames":[{"home":3,"away":0,"status":"in-progress"}]}]}`))
		So(err, ShouldBeNil)
		snap, err := src.Fetch(context.Background(), feed.Ref{ContestID: "j"})
		So(err, ShouldBeNil)
		So(snap.League, ShouldEqual, game.LeagueNFL)
		So(snap.Home.Score, ShouldEqual, 3)
	})

	Convey("Given broken scripts", t, func() {
		_, err := replay.Parse([]byte(`contests: [{contest_id: x}]`))
		So(errors.Is(err, replay.ErrInvalidScript), ShouldBeTrue)

		_, err = replay.Parse([]byte(`contests: [{frames: [{home: 1}]}]`))
		So(errors.Is(err, replay.ErrInvalidScript), ShouldBeTrue)

		_, err = replay.Parse([]byte("contests: [\n  bad"))
		So(errors.Is(err, replay.ErrInvalidScript), ShouldBeTrue)

		_, err = replay.Load("testdata/missing.yaml")
		So(err, ShouldNotBeNil)
	})
}
