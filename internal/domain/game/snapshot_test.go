package game_test

import (
	"testing"
	"time"

	"github.com/okian/stadium/internal/domain/game"
	. "github.com/smartystreets/goconvey/convey"
)

func TestRedZoneTeam(t *testing.T) {
	Convey("Given snapshots with red-zone flags", t, func() {
		Convey("When only the boolean is set", func() {
			s := game.Snapshot{Situation: &game.Situation{Possession: "12", RedZone: true}}
			So(s.RedZoneTeam(), ShouldEqual, "12")
		})

		Convey("When the boolean is set without possession", func() {
			s := game.Snapshot{Situation: &game.Situation{RedZone: true}}
			So(s.RedZoneTeam(), ShouldEqual, "")
		})

		Convey("When both teams are flagged", func() {
			s := game.Snapshot{Situation: &game.Situation{Possession: "7", RedZoneTeams: []string{"12", "7"}}}

			Convey("Then the possessing team wins", func() {
				So(s.RedZoneTeam(), ShouldEqual, "7")
			})
		})

		Convey("When both are flagged and neither has the ball", func() {
			s := game.Snapshot{Situation: &game.Situation{Possession: "", RedZoneTeams: []string{"12", "7"}}}
			So(s.RedZoneTeam(), ShouldEqual, "")
		})

		Convey("When there is no situation", func() {
			So(game.Snapshot{}.RedZoneTeam(), ShouldEqual, "")
		})
	})
}

func TestClockRemaining(t *testing.T) {
	Convey("Given game clocks", t, func() {
		cases := map[string]time.Duration{
			"1:45":  105 * time.Second,
			"15:00": 15 * time.Minute,
			"0:00":  0,
			"42.5":  42500 * time.Millisecond,
		}
		for clock, want := range cases {
			got, ok := game.Snapshot{Clock: clock}.ClockRemaining()
			So(ok, ShouldBeTrue)
			So(got, ShouldEqual, want)
		}

		_, ok := game.Snapshot{Clock: "halftime"}.ClockRemaining()
		So(ok, ShouldBeFalse)
		_, ok = game.Snapshot{}.ClockRemaining()
		So(ok, ShouldBeFalse)
	})
}

func TestStatusAndLeader(t *testing.T) {
	Convey("Given feed status strings", t, func() {
		So(game.ParseStatus("post"), ShouldEqual, game.StatusFinal)
		So(game.ParseStatus("in"), ShouldEqual, game.StatusInProgress)
		So(game.ParseStatus("PRE"), ShouldEqual, game.StatusPre)
		So(game.ParseStatus("delayed"), ShouldEqual, game.StatusUnknown)
	})

	Convey("Given a finished contest", t, func() {
		s := game.Snapshot{
			Home: game.TeamScore{ID: "1", Score: 24},
			Away: game.TeamScore{ID: "2", Score: 17},
		}
		leader, ok := s.Leader()
		So(ok, ShouldBeTrue)
		So(leader.ID, ShouldEqual, "1")
		So(s.Margin(), ShouldEqual, 7)

		opp, ok := s.Opponent("1")
		So(ok, ShouldBeTrue)
		So(opp.ID, ShouldEqual, "2")

		s.Away.Score = 24
		_, ok = s.Leader()
		So(ok, ShouldBeFalse)
	})
}
