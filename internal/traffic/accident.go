package traffic

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/dustin/go-humanize"

	"github.com/talgya/mini-city/internal/entropy"
	"github.com/talgya/mini-city/internal/events"
	"github.com/talgya/mini-city/internal/spatial"
	"github.com/talgya/mini-city/internal/world"
)

// Accident is a collision blocking one or more lanes.
type Accident struct {
	ID                string         `json:"id"`
	RoadID            string         `json:"road_id,omitempty"`
	Position          spatial.Vec3   `json:"position"`
	Severity          world.Severity `json:"severity"`
	Vehicles          []string       `json:"vehicles"`
	LanesBlocked      int            `json:"lanes_blocked"`
	Duration          float64        `json:"duration"`
	Elapsed           float64        `json:"elapsed"`
	Casualties        int            `json:"casualties"`
	Damage            float64        `json:"damage"`
	EmergencyRequired bool           `json:"emergency_required"`
	Responded         bool           `json:"responded"`
}

// Remaining returns the time until the accident clears.
func (a Accident) Remaining() float64 { return math.Max(0, a.Duration-a.Elapsed) }

// AccidentConfig tunes accident generation and clearance.
type AccidentConfig struct {
	BaseRate        float64    `json:"base_rate"`
	Radius          float64    `json:"radius"` // Max gap between the two involved vehicles
	SeverityWeights [3]float64 `json:"severity_weights"`
	Durations       [3]float64 `json:"durations"`
	MaxCasualties   [3]int     `json:"max_casualties"`
	Damage          [3]float64 `json:"damage"`
	ArrivalDistance float64    `json:"arrival_distance"`
	DispatchRange   float64    `json:"dispatch_range"` // Used when the accident road is unknown
}

// DefaultAccidentConfig returns the stock accident tuning.
func DefaultAccidentConfig() AccidentConfig {
	return AccidentConfig{
		BaseRate:        0.01,
		Radius:          20,
		SeverityWeights: [3]float64{0.6, 0.3, 0.1},
		Durations:       [3]float64{120, 300, 600},
		MaxCasualties:   [3]int{0, 2, 6},
		Damage:          [3]float64{5_000, 25_000, 90_000},
		ArrivalDistance: 5,
		DispatchRange:   150,
	}
}

// accidentProbability is the per-tick chance of a collision.
func (s *System) accidentProbability(dt, congestion, hour, weatherMod float64) float64 {
	return s.cfg.Accidents.BaseRate * dt *
		(1 + congestion/100) *
		(float64(len(s.vehicles)) / 100) *
		s.rushMultiplier(hour) *
		weatherMod
}

// maybeCrash runs the per-tick Bernoulli trial and, on success, replaces two
// nearby same-lane vehicles with an accident.
func (s *System) maybeCrash(p float64) {
	if !entropy.Chance(s.rng, p) {
		return
	}

	var candidates []*Vehicle
	var weights []float64
	for _, v := range s.vehicles {
		if v.Class == Emergency {
			continue
		}
		candidates = append(candidates, v)
		weights = append(weights, 1+v.AccidentRisk)
	}
	if len(candidates) < 2 {
		return
	}
	a := candidates[entropy.Pick(s.rng, weights)]
	other, _, ok := s.index.Nearest(a.Position, s.cfg.Accidents.Radius, func(it spatial.Item) bool {
		o := s.byID[it.ID]
		return o != nil && o != a && o.Class != Emergency && o.Lane == a.Lane
	})
	if !ok {
		return
	}
	b := s.byID[other.ID]
	s.crash(a, b)
}

func (s *System) crash(a, b *Vehicle) *Accident {
	cfg := s.cfg.Accidents
	sev := world.Severity(entropy.Pick(s.rng, cfg.SeverityWeights[:]))
	lanes := max(a.Lanes, 1)

	acc := &Accident{
		ID:                s.alloc.Next("acc"),
		RoadID:            a.RoadID,
		Position:          spatial.Lerp(a.Position, b.Position, 0.5),
		Severity:          sev,
		Vehicles:          []string{a.ID, b.ID},
		LanesBlocked:      sev.LanesBlocked(lanes),
		Duration:          cfg.Durations[sev],
		Casualties:        s.rng.Intn(cfg.MaxCasualties[sev] + 1),
		Damage:            cfg.Damage[sev] * (0.5 + s.rng.Float64()),
		EmergencyRequired: sev >= world.Moderate,
	}
	s.remove(a.ID)
	s.remove(b.ID)
	s.accidents = append(s.accidents, acc)

	s.totalAccidents++
	s.casualties += acc.Casualties
	s.damage += acc.Damage

	s.rec.Record(s.now, events.CategoryTraffic, fmt.Sprintf("%s accident, %d lane(s) blocked, %d casualties, $%s damage",
		sev, acc.LanesBlocked, acc.Casualties, humanize.Commaf(math.Round(acc.Damage))))
	slog.Debug("accident", "id", acc.ID, "severity", sev.String(), "road", acc.RoadID)

	if acc.EmergencyRequired {
		s.dispatch(acc)
	}
	return acc
}

// dispatch sends an emergency vehicle from the far end of the accident's road.
func (s *System) dispatch(acc *Accident) {
	start := acc.Position.Add(spatial.Vec3{X: s.cfg.Accidents.DispatchRange})
	if r, ok := s.roads[acc.RoadID]; ok {
		start = r.Start
		if r.End.DistSq(acc.Position) > r.Start.DistSq(acc.Position) {
			start = r.End
		}
	}
	id, res := s.spawn(Emergency, []spatial.Vec3{start, acc.Position}, 0, s.roads[acc.RoadID])
	if !res.OK {
		slog.Debug("emergency dispatch failed", "accident", acc.ID, "reason", res.Message)
		return
	}
	s.byID[id].Target = acc.ID
}

// updateAccidents ages accidents and drops cleared ones.
func (s *System) updateAccidents(dt float64) {
	kept := s.accidents[:0]
	for _, a := range s.accidents {
		a.Elapsed += dt
		if a.Elapsed >= a.Duration {
			s.rec.Record(s.now, events.CategoryTraffic, fmt.Sprintf("%s accident cleared", a.Severity))
			continue
		}
		kept = append(kept, a)
	}
	s.accidents = kept
}

// respond halves the remaining clearance time of the target accident.
func (s *System) respond(v *Vehicle) {
	for _, a := range s.accidents {
		if a.ID != v.Target || a.Responded {
			continue
		}
		if v.Position.Dist(a.Position) > s.cfg.Accidents.ArrivalDistance {
			return
		}
		a.Duration = a.Elapsed + a.Remaining()/2
		a.Responded = true
		slog.Debug("emergency arrived", "accident", a.ID, "remaining", a.Remaining())
		return
	}
}
