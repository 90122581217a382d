// Package celebration defines the command handed to actuator sinks.
package celebration

import (
	"strings"
	"time"

	"github.com/okian/stadium/internal/domain/game"
	"github.com/okian/stadium/internal/domain/teams"
)

// Category is the closed set of celebration kinds.
type Category string

const (
	Touchdown    Category = "touchdown"
	FieldGoal    Category = "field_goal"
	ExtraPoint   Category = "extra_point"
	TwoPoint     Category = "two_point"
	Safety       Category = "safety"
	Turnover     Category = "turnover"
	BigPlay      Category = "big_play"
	Victory      Category = "victory"
	GenericScore Category = "generic_score"
	// RedZone is the ambient, non-flashing state held while a team is in the red zone.
	RedZone Category = "red_zone"
)

// Categories lists every category.
func Categories() []Category {
	return []Category{Touchdown, FieldGoal, ExtraPoint, TwoPoint, Safety, Turnover, BigPlay, Victory, GenericScore, RedZone}
}

// ParseCategory accepts "field_goal", "field-goal" and "FIELD GOAL".
func ParseCategory(s string) (Category, bool) {
	norm := strings.NewReplacer("-", "_", " ", "_").Replace(strings.ToLower(strings.TrimSpace(s)))
	for _, c := range Categories() {
		if string(c) == norm {
			return c, true
		}
	}
	return "", false
}

// Intensity scales brightness.
type Intensity int

const (
	Low Intensity = iota
	Medium
	High
)

func (i Intensity) String() string {
	switch i {
	case Low:
		return "low"
	case Medium:
		return "medium"
	default:
		return "high"
	}
}

// MarshalText renders the intensity name in JSON payloads.
func (i Intensity) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// ParseIntensity maps a name onto Intensity.
func ParseIntensity(s string) (Intensity, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return Low, true
	case "medium":
		return Medium, true
	case "high":
		return High, true
	}
	return Low, false
}

// Raise bumps intensity one level, capped at High.
func (i Intensity) Raise() Intensity {
	if i >= High {
		return High
	}
	return i + 1
}

// Brightness is the fraction of full output a sink should use.
func (i Intensity) Brightness() float64 {
	switch i {
	case Low:
		return 0.6
	case Medium:
		return 0.8
	default:
		return 1.0
	}
}

// Step is one frame of a celebration: show Color for Hold.
type Step struct {
	Color teams.Color   `json:"color"`
	Hold  time.Duration `json:"hold"`
}

// Command is a classified celebration ready for dispatch. It is transient.
type Command struct {
	ContestID string          `json:"contest_id"`
	League    string          `json:"league,omitempty"`
	Category  Category        `json:"category"`
	Team      game.TeamScore  `json:"team"`
	Palette   teams.Palette   `json:"palette"`
	Duration  time.Duration   `json:"duration"`
	Intensity Intensity       `json:"intensity"`
	Steps     []Step          `json:"steps,omitempty"`
	Ambient   bool            `json:"ambient"`
	// Origin is the key of the event, or manual request, that produced the command.
	Origin string `json:"origin"`
	Manual bool   `json:"manual"`
}

// DedupeKey identifies a command by category, team and originating event.
func (c Command) DedupeKey() string {
	team := c.Team.ID
	if team == "" {
		team = c.Team.Abbreviation
	}
	return string(c.Category) + "|" + team + "|" + c.Origin
}

// Pattern returns the flash sequence for a category in a team's colors.
// Timings mirror the stadium light show each category is known for.
func Pattern(cat Category, p teams.Palette) []Step {
	pri, sec := p.Primary, p.Secondary
	alternate := func(n int, hold time.Duration, first, second teams.Color) []Step {
		steps := make([]Step, n)
		for i := range steps {
			c := first
			if i%2 == 1 {
				c = second
			}
			steps[i] = Step{Color: c, Hold: hold}
		}
		return steps
	}

	switch cat {
	case Touchdown:
		return alternate(30, 400*time.Millisecond, pri, sec)
	case FieldGoal:
		return alternate(10, 500*time.Millisecond, pri, sec)
	case ExtraPoint:
		return alternate(5, 500*time.Millisecond, pri, sec)
	case TwoPoint:
		steps := make([]Step, 8)
		for i := range steps {
			c := pri
			if i >= 4 {
				c = sec
			}
			steps[i] = Step{Color: c, Hold: 300 * time.Millisecond}
		}
		return steps
	case Safety:
		return alternate(6, 400*time.Millisecond, sec, pri)
	case Turnover:
		steps := make([]Step, 8)
		for i := range steps {
			c := sec
			if i%3 == 0 {
				c = pri
			}
			steps[i] = Step{Color: c, Hold: 300 * time.Millisecond}
		}
		return steps
	case BigPlay:
		return alternate(6, 400*time.Millisecond, pri, sec)
	case Victory:
		return alternate(60, 300*time.Millisecond, pri, sec)
	case GenericScore:
		return alternate(8, 500*time.Millisecond, pri, sec)
	case RedZone:
		return []Step{{Color: pri}}
	}
	return nil
}

// Total sums the hold time of steps.
func Total(steps []Step) time.Duration {
	var d time.Duration
	for _, s := range steps {
		d += s.Hold
	}
	return d
}
