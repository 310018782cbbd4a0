// Package disaster generates hazards on the road network, dispatches
// emergency responders and reports blocked lanes back to traffic.
package disaster

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/talgya/mini-city/internal/entropy"
	"github.com/talgya/mini-city/internal/events"
	"github.com/talgya/mini-city/internal/ids"
	"github.com/talgya/mini-city/internal/result"
	"github.com/talgya/mini-city/internal/spatial"
	"github.com/talgya/mini-city/internal/world"
)

// Type is a kind of disaster.
type Type uint8

const (
	Fire Type = iota
	Flood
	ChemicalSpill
	RoadCollapse
)

var typeNames = [...]string{"fire", "flood", "chemical_spill", "road_collapse"}

// Types lists every disaster type in roll order.
var Types = []Type{Fire, Flood, ChemicalSpill, RoadCollapse}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "unknown"
}

// ParseType maps a name like "flood" to its type.
func ParseType(s string) (Type, bool) {
	for i, n := range typeNames {
		if n == s {
			return Type(i), true
		}
	}
	return 0, false
}

// ResponderKind is an emergency vehicle type.
type ResponderKind uint8

const (
	FireTruck ResponderKind = iota
	Ambulance
	Police
	Rescue
)

var responderNames = [...]string{"fire_truck", "ambulance", "police", "rescue"}

func (k ResponderKind) String() string {
	if int(k) < len(responderNames) {
		return responderNames[k]
	}
	return "unknown"
}

// Dispatch returns the responders sent to a disaster of type t.
func Dispatch(t Type) []ResponderKind {
	switch t {
	case Fire:
		return []ResponderKind{FireTruck, Ambulance}
	case Flood:
		return []ResponderKind{Rescue, Police}
	case ChemicalSpill:
		return []ResponderKind{FireTruck, Police}
	case RoadCollapse:
		return []ResponderKind{Police, Ambulance}
	}
	return nil
}

// Disaster is an active or resolved hazard.
type Disaster struct {
	ID           string         `json:"id"`
	Type         Type           `json:"type"`
	Severity     world.Severity `json:"severity"`
	RoadID       string         `json:"road_id"`
	Position     spatial.Vec3   `json:"position"`
	LanesBlocked int            `json:"lanes_blocked"`
	Duration     float64        `json:"duration"`
	Elapsed      float64        `json:"elapsed"`
	Dispatched   int            `json:"dispatched"`
	Arrived      int            `json:"arrived"`
	StartedAt    float64        `json:"started_at"`
	ResolvedAt   float64        `json:"resolved_at,omitempty"`
}

// Remaining returns the time left before the disaster resolves.
func (d Disaster) Remaining() float64 { return math.Max(0, d.Duration-d.Elapsed) }

// Responder is an emergency vehicle heading to a disaster.
type Responder struct {
	ID         string        `json:"id"`
	Kind       ResponderKind `json:"kind"`
	DisasterID string        `json:"disaster_id"`
	Position   spatial.Vec3  `json:"position"`
}

// Hazard is the view of an active disaster that traffic reacts to.
type Hazard struct {
	ID           string       `json:"id"`
	RoadID       string       `json:"road_id"`
	Position     spatial.Vec3 `json:"position"`
	LanesBlocked int          `json:"lanes_blocked"`
}

// Config holds disaster tuning.
type Config struct {
	// BaseRates is the per-road, per-time-unit probability of each type.
	BaseRates        map[string]float64 `json:"base_rates"`
	SeverityWeights  [3]float64         `json:"severity_weights"`
	Durations        [3]float64         `json:"durations"` // By severity
	ResponderSpeed   float64            `json:"responder_speed"`
	SpawnDistance    float64            `json:"spawn_distance"`
	ArrivalDistance  float64            `json:"arrival_distance"`
	ArrivalReduction float64            `json:"arrival_reduction"` // Fraction of remaining time cut per arrival
	HistoryCap       int                `json:"history_cap"`
	MaxActive        int                `json:"max_active"`
}

// DefaultConfig returns the stock disaster tuning.
func DefaultConfig() Config {
	return Config{
		BaseRates: map[string]float64{
			Fire.String():          0.000004,
			Flood.String():         0.000001,
			ChemicalSpill.String(): 0.000002,
			RoadCollapse.String():  0.000001,
		},
		SeverityWeights:  [3]float64{0.6, 0.3, 0.1},
		Durations:        [3]float64{180, 420, 900},
		ResponderSpeed:   15,
		SpawnDistance:    300,
		ArrivalDistance:  5,
		ArrivalReduction: 0.1,
		HistoryCap:       50,
		MaxActive:        5,
	}
}

// Stats is the per-tick snapshot.
type Stats struct {
	Active       int            `json:"active"`
	Resolved     int            `json:"resolved"`
	EnRoute      int            `json:"en_route"`
	BySeverity   map[string]int `json:"by_severity"`
	LanesBlocked int            `json:"lanes_blocked"`
}

// System owns disasters and their responders.
type System struct {
	cfg   Config
	rng   entropy.Source
	alloc ids.Allocator

	active     []*Disaster
	history    []Disaster
	responders []*Responder
	resolved   int

	now float64
	rec events.Recorder
}

// NewSystem creates an empty disaster system.
func NewSystem(cfg Config, rng entropy.Source, alloc ids.Allocator) *System {
	if cfg.HistoryCap <= 0 {
		cfg.HistoryCap = 50
	}
	return &System{cfg: cfg, rng: rng, alloc: alloc}
}

// Update advances disasters and responders by dt and may start new disasters
// on the given roads.
func (s *System) Update(dt, now float64, roads []world.Road) Stats {
	s.now = now
	for _, d := range s.active {
		d.Elapsed += dt
	}
	s.moveResponders(dt)
	s.resolveExpired()
	s.roll(dt, roads)
	return s.Stats()
}

func (s *System) moveResponders(dt float64) {
	kept := s.responders[:0]
	for _, r := range s.responders {
		d := s.find(r.DisasterID)
		if d == nil {
			// Target already resolved.
			continue
		}
		step := s.cfg.ResponderSpeed * dt
		to := d.Position.Sub(r.Position)
		if dist := to.Len(); dist <= step {
			r.Position = d.Position
		} else {
			r.Position = r.Position.Add(to.Normalize().Scale(step))
		}
		if r.Position.Dist(d.Position) < s.cfg.ArrivalDistance || r.Position == d.Position {
			d.Arrived++
			d.Duration -= d.Remaining() * s.cfg.ArrivalReduction
			slog.Debug("responder arrived", "disaster", d.ID, "kind", r.Kind.String(), "remaining", d.Remaining())
			continue
		}
		kept = append(kept, r)
	}
	s.responders = kept
}

func (s *System) resolveExpired() {
	kept := s.active[:0]
	for _, d := range s.active {
		if d.Elapsed < d.Duration {
			kept = append(kept, d)
			continue
		}
		d.ResolvedAt = s.now
		s.resolved++
		s.history = append(s.history, *d)
		if len(s.history) > s.cfg.HistoryCap {
			s.history = s.history[len(s.history)-s.cfg.HistoryCap:]
		}
		s.rec.Record(s.now, events.CategoryDisaster, fmt.Sprintf("%s %s on %s resolved", d.Severity, d.Type, d.RoadID))
	}
	s.active = kept
}

func (s *System) roll(dt float64, roads []world.Road) {
	if len(roads) == 0 {
		return
	}
	for _, t := range Types {
		if s.cfg.MaxActive > 0 && len(s.active) >= s.cfg.MaxActive {
			return
		}
		p := s.cfg.BaseRates[t.String()] * float64(len(roads)) * dt
		if !entropy.Chance(s.rng, p) {
			continue
		}
		road := roads[s.rng.Intn(len(roads))]
		sev := world.Severity(entropy.Pick(s.rng, s.cfg.SeverityWeights[:]))
		s.start(t, road, sev, road.PointAt(s.rng.Float64()))
	}
}

// Trigger starts a disaster at the midpoint of road.
func (s *System) Trigger(t Type, road world.Road, sev world.Severity) (string, result.Result) {
	if int(t) >= len(typeNames) {
		return "", result.Fail("unknown disaster type %d", t)
	}
	if sev > world.Severe {
		return "", result.Fail("unknown severity %d", sev)
	}
	d := s.start(t, road, sev, road.PointAt(0.5))
	return d.ID, result.Ok("%s %s started on %s", sev, t, road.ID)
}

func (s *System) start(t Type, road world.Road, sev world.Severity, pos spatial.Vec3) *Disaster {
	d := &Disaster{
		ID:           s.alloc.Next("dis"),
		Type:         t,
		Severity:     sev,
		RoadID:       road.ID,
		Position:     pos,
		LanesBlocked: sev.LanesBlocked(road.Lanes),
		Duration:     s.cfg.Durations[sev],
		StartedAt:    s.now,
	}
	s.active = append(s.active, d)

	for _, kind := range Dispatch(t) {
		angle := s.rng.Float64() * 2 * math.Pi
		offset := spatial.Vec3{X: math.Cos(angle), Z: math.Sin(angle)}.Scale(s.cfg.SpawnDistance)
		s.responders = append(s.responders, &Responder{
			ID:         s.alloc.Next("resp"),
			Kind:       kind,
			DisasterID: d.ID,
			Position:   pos.Add(offset),
		})
		d.Dispatched++
	}

	s.rec.Record(s.now, events.CategoryDisaster,
		fmt.Sprintf("%s %s on %s, %d lane(s) closed", sev, t, road.ID, d.LanesBlocked))
	slog.Debug("disaster started", "id", d.ID, "type", t.String(), "severity", sev.String(), "road", road.ID)
	return d
}

func (s *System) find(id string) *Disaster {
	for _, d := range s.active {
		if d.ID == id {
			return d
		}
	}
	return nil
}

// Active returns copies of the live disasters.
func (s *System) Active() []Disaster {
	out := make([]Disaster, len(s.active))
	for i, d := range s.active {
		out[i] = *d
	}
	return out
}

// History returns the most recently resolved disasters, oldest first.
func (s *System) History() []Disaster {
	return append([]Disaster(nil), s.history...)
}

// Responders returns copies of responders still en route.
func (s *System) Responders() []Responder {
	out := make([]Responder, len(s.responders))
	for i, r := range s.responders {
		out[i] = *r
	}
	return out
}

// Hazards returns the blocked-lane view of active disasters.
func (s *System) Hazards() []Hazard {
	out := make([]Hazard, len(s.active))
	for i, d := range s.active {
		out[i] = Hazard{ID: d.ID, RoadID: d.RoadID, Position: d.Position, LanesBlocked: d.LanesBlocked}
	}
	return out
}

// Stats returns the current snapshot.
func (s *System) Stats() Stats {
	st := Stats{
		Active:     len(s.active),
		Resolved:   s.resolved,
		EnRoute:    len(s.responders),
		BySeverity: map[string]int{},
	}
	for _, d := range s.active {
		st.BySeverity[d.Severity.String()]++
		st.LanesBlocked += d.LanesBlocked
	}
	return st
}

// DrainEvents returns disaster events since the last drain.
func (s *System) DrainEvents() []events.Event { return s.rec.Drain() }
