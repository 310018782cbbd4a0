// Package citizens simulates the city's residents: needs, happiness,
// employment, births, deaths and migration.
package citizens

import (
	"github.com/talgya/mini-city/internal/mathx"
	"github.com/talgya/mini-city/internal/spatial"
)

// Education is a citizen's schooling tier.
type Education uint8

const (
	EducationNone Education = iota
	EducationHighSchool
	EducationCollege
	EducationGraduate
)

var educationNames = [...]string{"none", "high_school", "college", "graduate"}

func (e Education) String() string {
	if int(e) < len(educationNames) {
		return educationNames[e]
	}
	return "unknown"
}

// Activity is what a citizen is doing at a given hour.
type Activity uint8

const (
	Sleeping Activity = iota
	Commuting
	Working
	Shopping
	Leisure
)

var activityNames = [...]string{"sleeping", "commuting", "working", "shopping", "leisure"}

func (a Activity) String() string {
	if int(a) < len(activityNames) {
		return activityNames[a]
	}
	return "unknown"
}

// ActivityAt derives the activity from the hour of day. It is a pure function
// of time and employment, not a stored state machine.
func ActivityAt(hour float64, employed bool) Activity {
	switch {
	case hour >= 22 || hour < 6:
		return Sleeping
	case employed && (hour < 8 || (hour >= 17 && hour < 19)):
		return Commuting
	case employed && hour < 17:
		return Working
	case !employed && hour >= 8 && hour < 12:
		return Shopping
	case hour >= 19 && int(hour)%2 == 0:
		return Shopping
	default:
		return Leisure
	}
}

// Needs is the five-dimensional needs vector. Every value is in [0, 100].
type Needs struct {
	Food          float64 `json:"food"`
	Health        float64 `json:"health"`
	Entertainment float64 `json:"entertainment"`
	Safety        float64 `json:"safety"`
	Employment    float64 `json:"employment"`
}

func (n *Needs) clamp() {
	n.Food = mathx.Percent(n.Food)
	n.Health = mathx.Percent(n.Health)
	n.Entertainment = mathx.Percent(n.Entertainment)
	n.Safety = mathx.Percent(n.Safety)
	n.Employment = mathx.Percent(n.Employment)
}

// Mean is the unweighted average of all five needs.
func (n Needs) Mean() float64 {
	return (n.Food + n.Health + n.Entertainment + n.Safety + n.Employment) / 5
}

// Personality traits, each in [0, 1].
type Personality struct {
	Openness    float64 `json:"openness"`
	Diligence   float64 `json:"diligence"`
	Sociability float64 `json:"sociability"`
	Ambition    float64 `json:"ambition"`
}

// Citizen is one resident.
type Citizen struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Age         float64      `json:"age"`
	HomeID      string       `json:"home_id"`
	Home        spatial.Vec3 `json:"home"`
	JobID       string       `json:"job_id,omitempty"`
	CommuteTime float64      `json:"commute_time,omitempty"` // Game minutes
	Education   Education    `json:"education"`
	Wealth      float64      `json:"wealth"`
	Needs       Needs        `json:"needs"`
	Personality Personality  `json:"personality"`
	Happiness   float64      `json:"happiness"`
	Activity    Activity     `json:"activity"`

	UnhappyDays    int `json:"unhappy_days"`
	UnemployedDays int `json:"unemployed_days"`
}

// Employed reports whether the citizen holds a job.
func (c *Citizen) Employed() bool { return c.JobID != "" }
