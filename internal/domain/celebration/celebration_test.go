package celebration_test

import (
	"testing"
	"time"

	"github.com/okian/stadium/internal/domain/celebration"
	"github.com/okian/stadium/internal/domain/game"
	"github.com/okian/stadium/internal/domain/teams"
	. "github.com/smartystreets/goconvey/convey"
)

func TestPattern(t *testing.T) {
	p := teams.Palette{Primary: teams.Color{R: 1}, Secondary: teams.Color{B: 2}}

	Convey("Given category patterns", t, func() {
		Convey("Touchdown runs twelve seconds of alternating flashes", func() {
			steps := celebration.Pattern(celebration.Touchdown, p)
			So(len(steps), ShouldEqual, 30)
			So(celebration.Total(steps), ShouldEqual, 12*time.Second)
			So(steps[0].Color, ShouldResemble, p.Primary)
			So(steps[1].Color, ShouldResemble, p.Secondary)
		})

		Convey("Two-point holds primary then secondary", func() {
			steps := celebration.Pattern(celebration.TwoPoint, p)
			So(steps[3].Color, ShouldResemble, p.Primary)
			So(steps[4].Color, ShouldResemble, p.Secondary)
		})

		Convey("Safety leads with the secondary color", func() {
			So(celebration.Pattern(celebration.Safety, p)[0].Color, ShouldResemble, p.Secondary)
		})

		Convey("Red zone is a single solid frame with no hold", func() {
			steps := celebration.Pattern(celebration.RedZone, p)
			So(len(steps), ShouldEqual, 1)
			So(celebration.Total(steps), ShouldEqual, 0)
		})

		Convey("Every category has a pattern", func() {
			for _, c := range celebration.Categories() {
				So(celebration.Pattern(c, p), ShouldNotBeEmpty)
			}
		})
	})
}

func TestParsing(t *testing.T) {
	Convey("Given category names from callers", t, func() {
		c, ok := celebration.ParseCategory("Field-Goal")
		So(ok, ShouldBeTrue)
		So(c, ShouldEqual, celebration.FieldGoal)

		_, ok = celebration.ParseCategory("sack")
		So(ok, ShouldBeFalse)
	})

	Convey("Given intensities", t, func() {
		So(celebration.Low.Raise(), ShouldEqual, celebration.Medium)
		So(celebration.High.Raise(), ShouldEqual, celebration.High)
		So(celebration.Medium.Brightness(), ShouldEqual, 0.8)
		i, ok := celebration.ParseIntensity("HIGH")
		So(ok, ShouldBeTrue)
		So(i, ShouldEqual, celebration.High)
	})

	Convey("Given a command", t, func() {
		cmd := celebration.Command{Category: celebration.Touchdown, Team: game.TeamScore{ID: "7"}, Origin: "401|score_changed|7|7"}
		So(cmd.DedupeKey(), ShouldEqual, "touchdown|7|401|score_changed|7|7")

		cmd.Team = game.TeamScore{Abbreviation: "DEN"}
		So(cmd.DedupeKey(), ShouldStartWith, "touchdown|DEN|")
	})
}
