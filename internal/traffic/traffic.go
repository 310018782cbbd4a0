// Package traffic simulates vehicles on the road network: car following,
// lane changes, signal compliance, accidents and emergency response.
package traffic

import (
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/talgya/mini-city/internal/entropy"
	"github.com/talgya/mini-city/internal/events"
	"github.com/talgya/mini-city/internal/ids"
	"github.com/talgya/mini-city/internal/mathx"
	"github.com/talgya/mini-city/internal/result"
	"github.com/talgya/mini-city/internal/spatial"
	"github.com/talgya/mini-city/internal/world"
)

// Config holds traffic tuning. Probabilistic thresholds live here so they can
// be adjusted without touching the behaviour model.
type Config struct {
	Classes map[string]ClassSpec `json:"classes"`

	SensorRadius      float64 `json:"sensor_radius"`
	SignalLookahead   float64 `json:"signal_lookahead"`
	StopRange         float64 `json:"stop_range"`
	StopGap           float64 `json:"stop_gap"`
	YellowCommit      float64 `json:"yellow_commit"` // Closer than this, drive through yellow
	LaneWidth         float64 `json:"lane_width"`    // Lateral tolerance for "in my path"
	HazardSlowRange   float64 `json:"hazard_slow_range"`
	HazardSlowFactor  float64 `json:"hazard_slow_factor"`
	WaypointTolerance float64 `json:"waypoint_tolerance"`

	LaneChangeChance     float64 `json:"lane_change_chance"`
	LaneChangeSlowRatio  float64 `json:"lane_change_slow_ratio"`
	LaneChangeCompletion float64 `json:"lane_change_completion"`

	PatienceDecay    float64 `json:"patience_decay"`
	PatienceRecovery float64 `json:"patience_recovery"`
	AggressionGain   float64 `json:"aggression_gain"`
	RiskGain         float64 `json:"risk_gain"`
	RiskDecay        float64 `json:"risk_decay"`

	YieldRadius      float64 `json:"yield_radius"`
	YieldSpeedFactor float64 `json:"yield_speed_factor"`

	RushHours      [][2]float64 `json:"rush_hours"`
	RushMultiplier float64      `json:"rush_multiplier"`

	SpawnRate    float64    `json:"spawn_rate"`
	MaxVehicles  int        `json:"max_vehicles"`
	SpawnWeights [3]float64 `json:"spawn_weights"` // Car, truck, bus
	DefaultLanes int        `json:"default_lanes"`

	PatienceRange       [2]float64 `json:"patience_range"`
	AggressivenessRange [2]float64 `json:"aggressiveness_range"`
	SkillRange          [2]float64 `json:"skill_range"`
	FollowDistanceRange [2]float64 `json:"follow_distance_range"`

	Signals   SignalConfig   `json:"signals"`
	Accidents AccidentConfig `json:"accidents"`
}

// DefaultConfig returns the stock traffic tuning.
func DefaultConfig() Config {
	return Config{
		Classes: map[string]ClassSpec{
			Car.String():       {MaxSpeed: 14, Acceleration: 3},
			Truck.String():     {MaxSpeed: 10, Acceleration: 1.5},
			Bus.String():       {MaxSpeed: 11, Acceleration: 1.8},
			Emergency.String(): {MaxSpeed: 20, Acceleration: 4},
		},
		SensorRadius:         30,
		SignalLookahead:      40,
		StopRange:            25,
		StopGap:              2,
		YellowCommit:         5,
		LaneWidth:            6,
		HazardSlowRange:      60,
		HazardSlowFactor:     0.3,
		WaypointTolerance:    1,
		LaneChangeChance:     0.02,
		LaneChangeSlowRatio:  0.8,
		LaneChangeCompletion: 0.3,
		PatienceDecay:        2,
		PatienceRecovery:     1,
		AggressionGain:       0.01,
		RiskGain:             1,
		RiskDecay:            0.2,
		YieldRadius:          25,
		YieldSpeedFactor:     0.5,
		RushHours:            [][2]float64{{7, 9}, {17, 19}},
		RushMultiplier:       2,
		SpawnRate:            0.3,
		MaxVehicles:          200,
		SpawnWeights:         [3]float64{0.8, 0.12, 0.08},
		DefaultLanes:         2,
		PatienceRange:        [2]float64{50, 100},
		AggressivenessRange:  [2]float64{0.1, 0.6},
		SkillRange:           [2]float64{0.5, 1},
		FollowDistanceRange:  [2]float64{8, 15},
		Signals:              DefaultSignalConfig(),
		Accidents:            DefaultAccidentConfig(),
	}
}

// Hazard is an obstruction traffic must slow for, such as a disaster site.
type Hazard struct {
	ID           string       `json:"id"`
	RoadID       string       `json:"road_id"`
	Position     spatial.Vec3 `json:"position"`
	LanesBlocked int          `json:"lanes_blocked"`
}

// Environment is what traffic reads from the subsystems that run before it.
// Zero multipliers are treated as neutral.
type Environment struct {
	Hour                   float64
	WeatherSpeed           float64
	WeatherAccident        float64
	PolicySpeed            float64
	PolicyCongestionRelief float64 // Percent
	Hazards                []Hazard
}

// Stats is the per-tick snapshot.
type Stats struct {
	Vehicles        int     `json:"vehicles"`
	Emergency       int     `json:"emergency"`
	AverageSpeed    float64 `json:"average_speed"`
	Congestion      float64 `json:"congestion"` // Percent
	ActiveAccidents int     `json:"active_accidents"`
	TotalAccidents  int     `json:"total_accidents"`
	Casualties      int     `json:"casualties"`
	EconomicDamage  float64 `json:"economic_damage"`
	Completed       int     `json:"completed"`
	Spawned         int     `json:"spawned"`
	Signals         int     `json:"signals"`
}

// System owns every vehicle, signal and accident.
type System struct {
	cfg   Config
	rng   entropy.Source
	alloc ids.Allocator
	index spatial.Index

	vehicles  []*Vehicle
	byID      map[string]*Vehicle
	signals   []*Signal
	accidents []*Accident
	roads     map[string]world.Road
	roadList  []world.Road

	totalAccidents int
	casualties     int
	damage         float64
	completed      int
	spawned        int
	congestion     float64

	now   float64
	stats Stats
	rec   events.Recorder
}

// NewSystem creates an empty traffic system. idx answers nearest-in-radius
// queries over vehicle positions; nil uses a uniform grid.
func NewSystem(cfg Config, rng entropy.Source, alloc ids.Allocator, idx spatial.Index) *System {
	if idx == nil {
		idx = spatial.NewGrid(cfg.SensorRadius)
	}
	return &System{
		cfg:   cfg,
		rng:   rng,
		alloc: alloc,
		index: idx,
		byID:  make(map[string]*Vehicle),
		roads: make(map[string]world.Road),
	}
}

// SetRoads replaces the road network used for spawning and dispatch.
func (s *System) SetRoads(roads []world.Road) {
	s.roadList = append([]world.Road(nil), roads...)
	s.roads = make(map[string]world.Road, len(roads))
	for _, r := range roads {
		s.roads[r.ID] = r
	}
}

// AddSignal installs a traffic light and returns its ID.
func (s *System) AddSignal(pos spatial.Vec3, red, green, yellow float64, adaptive bool) (string, result.Result) {
	if red <= 0 || green <= 0 || yellow <= 0 {
		return "", result.Fail("signal durations must be positive")
	}
	sig := &Signal{
		ID:        s.alloc.Next("sig"),
		Position:  pos,
		Red:       red,
		Green:     green,
		Yellow:    yellow,
		Adaptive:  adaptive,
		BaseGreen: green,
	}
	s.signals = append(s.signals, sig)
	return sig.ID, result.Ok("signal %s installed", sig.ID)
}

// Spawn places a vehicle at the first waypoint of path.
func (s *System) Spawn(class Class, path []spatial.Vec3, lane int) (string, result.Result) {
	return s.spawn(class, path, lane, world.Road{})
}

// SpawnOnRoad spawns a vehicle driving the length of a road in a random
// direction and lane.
func (s *System) SpawnOnRoad(roadID string, class Class) (string, result.Result) {
	r, ok := s.roads[roadID]
	if !ok {
		return "", result.Fail("unknown road %q", roadID)
	}
	path := []spatial.Vec3{r.Start, r.End}
	if s.rng.Intn(2) == 1 {
		path[0], path[1] = path[1], path[0]
	}
	return s.spawn(class, path, s.rng.Intn(max(r.Lanes, 1)), r)
}

func (s *System) spawn(class Class, path []spatial.Vec3, lane int, road world.Road) (string, result.Result) {
	spec, ok := s.cfg.Classes[class.String()]
	if !ok {
		return "", result.Fail("unknown vehicle class %d", class)
	}
	if len(path) < 2 {
		return "", result.Fail("path needs at least two waypoints")
	}
	if lane < 0 {
		return "", result.Fail("invalid lane %d", lane)
	}
	if class != Emergency && s.cfg.MaxVehicles > 0 && len(s.vehicles) >= s.cfg.MaxVehicles {
		return "", result.Fail("vehicle limit of %d reached", s.cfg.MaxVehicles)
	}

	lanes := road.Lanes
	if lanes < 1 {
		lanes = max(s.cfg.DefaultLanes, lane+1)
	}
	if lane >= lanes {
		lane = lanes - 1
	}
	maxSpeed := spec.MaxSpeed
	if road.SpeedLimit > 0 && class != Emergency {
		maxSpeed = math.Min(maxSpeed, road.SpeedLimit)
	}

	v := &Vehicle{
		ID:             s.alloc.Next("veh"),
		Class:          class,
		RoadID:         road.ID,
		Position:       path[0],
		Path:           append([]spatial.Vec3(nil), path...),
		Cursor:         1,
		MaxSpeed:       maxSpeed,
		Acceleration:   spec.Acceleration,
		Patience:       entropy.Range(s.rng, s.cfg.PatienceRange[0], s.cfg.PatienceRange[1]),
		Aggressiveness: entropy.Range(s.rng, s.cfg.AggressivenessRange[0], s.cfg.AggressivenessRange[1]),
		Skill:          entropy.Range(s.rng, s.cfg.SkillRange[0], s.cfg.SkillRange[1]),
		FollowDistance: entropy.Range(s.rng, s.cfg.FollowDistanceRange[0], s.cfg.FollowDistanceRange[1]),
		Lane:           lane,
		DesiredLane:    lane,
		Lanes:          lanes,
	}
	s.vehicles = append(s.vehicles, v)
	s.byID[v.ID] = v
	s.spawned++
	return v.ID, result.Ok("%s %s spawned", class, v.ID)
}

func (s *System) remove(id string) {
	if _, ok := s.byID[id]; !ok {
		return
	}
	delete(s.byID, id)
	for i, v := range s.vehicles {
		if v.ID == id {
			s.vehicles = append(s.vehicles[:i], s.vehicles[i+1:]...)
			return
		}
	}
}

func (s *System) rushMultiplier(hour float64) float64 {
	for _, r := range s.cfg.RushHours {
		if hour >= r[0] && hour < r[1] {
			return s.cfg.RushMultiplier
		}
	}
	return 1
}

// Update advances the network by dt.
func (s *System) Update(dt, now float64, env Environment) Stats {
	s.now = now
	weatherSpeed := orOne(env.WeatherSpeed)
	policySpeed := orOne(env.PolicySpeed)

	s.rebuildIndex()
	s.updateSignals(dt)
	s.updateAccidents(dt)
	hazards := s.hazards(env.Hazards)

	for _, v := range s.vehicles {
		s.drive(v, dt, weatherSpeed*policySpeed, hazards)
	}
	s.yieldToEmergency()

	var done []string
	for _, v := range s.vehicles {
		finished := v.advance(dt, s.cfg.WaypointTolerance)
		if v.Class == Emergency && v.Target != "" {
			s.respond(v)
		}
		if finished {
			done = append(done, v.ID)
		}
	}
	for _, id := range done {
		s.remove(id)
		s.completed++
	}

	s.rebuildIndex()
	s.congestion = s.measureCongestion()
	relief := mathx.Percent(env.PolicyCongestionRelief)
	effective := s.congestion * (1 - relief/100)
	s.maybeCrash(s.accidentProbability(dt, effective, env.Hour, orOne(env.WeatherAccident)))
	s.autoSpawn(dt, env.Hour)

	s.stats = s.snapshot()
	return s.stats
}

func (s *System) rebuildIndex() {
	items := make([]spatial.Item, len(s.vehicles))
	for i, v := range s.vehicles {
		items[i] = spatial.Item{ID: v.ID, Pos: v.Position}
	}
	s.index.Rebuild(items)
}

func (s *System) updateSignals(dt float64) {
	for _, sig := range s.signals {
		sig.tick(dt)
		if !sig.Adaptive {
			continue
		}
		sig.sinceAdapt += dt
		if sig.sinceAdapt < s.cfg.Signals.AdaptInterval {
			continue
		}
		sig.sinceAdapt = 0
		queue := 0
		s.index.Within(sig.Position, s.cfg.Signals.QueueRadius, func(it spatial.Item, _ float64) {
			if v := s.byID[it.ID]; v != nil && v.Stopped() {
				queue++
			}
		})
		sig.observe(queue, s.cfg.Signals)
	}
}

// hazards merges external obstructions with live accidents.
func (s *System) hazards(external []Hazard) []Hazard {
	out := append([]Hazard(nil), external...)
	for _, a := range s.accidents {
		out = append(out, Hazard{ID: a.ID, RoadID: a.RoadID, Position: a.Position, LanesBlocked: a.LanesBlocked})
	}
	return out
}

// drive computes the target speed for one vehicle and eases toward it.
func (s *System) drive(v *Vehicle, dt, speedMod float64, hazards []Hazard) {
	cfg := s.cfg
	maxSpeed := v.MaxSpeed * speedMod
	target := maxSpeed
	brake := 2 * v.Acceleration

	if v.ChangingLane && entropy.Chance(s.rng, cfg.LaneChangeCompletion) {
		v.Lane = v.DesiredLane
		v.ChangingLane = false
	}

	// Car following.
	heading := v.Heading()
	leader, gap, hasLeader := s.leader(v, heading)
	if hasLeader {
		// Never close faster than the gap allows stopping behind the leader.
		target = math.Min(target, leader.Speed+stoppingSpeed(brake, gap-cfg.StopGap))
		switch {
		case gap < v.FollowDistance/2:
			target = math.Min(target, leader.Speed*0.5)
			v.AccidentRisk += cfg.RiskGain * (1.5 - v.Skill) * dt
		case gap < v.FollowDistance:
			target = math.Min(target, leader.Speed)
		default:
			v.AccidentRisk -= cfg.RiskDecay * dt
		}
	} else {
		v.AccidentRisk -= cfg.RiskDecay * dt
	}
	v.AccidentRisk = mathx.Percent(v.AccidentRisk)

	if v.Class != Emergency {
		if d, ok := s.redLightAhead(v); ok {
			target = math.Min(target, stoppingSpeed(brake, d-cfg.StopGap))
		}
		for _, h := range hazards {
			along, lateral := v.ahead(h.Position)
			if along <= 0 || along > cfg.HazardSlowRange || lateral > cfg.LaneWidth {
				continue
			}
			target = math.Min(target, cfg.HazardSlowFactor*maxSpeed)
			if v.Lane < h.LanesBlocked && along <= cfg.StopRange {
				if h.LanesBlocked < v.Lanes {
					v.requestLaneChange(h.LanesBlocked)
				} else {
					target = math.Min(target, stoppingSpeed(brake, along-cfg.StopGap))
				}
			}
		}
	}

	step := v.Acceleration * dt
	if v.Speed > target {
		step = brake * dt
	}
	v.Speed = mathx.Approach(v.Speed, target, step)
	v.Speed = mathx.Clamp(v.Speed, 0, maxSpeed)

	// Lane change when stuck behind a slower vehicle.
	if hasLeader && leader.Speed < v.Speed*cfg.LaneChangeSlowRatio &&
		entropy.Chance(s.rng, cfg.LaneChangeChance) && v.Aggressiveness > s.rng.Float64() {
		v.requestLaneChange(-1)
	}

	if v.Stopped() {
		v.StoppedTime += dt
		v.Patience -= cfg.PatienceDecay * dt
		if v.Patience <= 0 {
			v.Aggressiveness += cfg.AggressionGain * dt
		}
	} else {
		v.Patience += cfg.PatienceRecovery * dt
	}
	v.Patience = mathx.Percent(v.Patience)
	v.Aggressiveness = mathx.Clamp(v.Aggressiveness, 0, 1)
}

// stoppingSpeed is the fastest speed from which the vehicle can still stop
// within dist at the given deceleration.
func stoppingSpeed(brake, dist float64) float64 {
	return math.Sqrt(2 * brake * math.Max(0, dist))
}

// leader finds the nearest vehicle ahead in the same lane and direction.
func (s *System) leader(v *Vehicle, heading spatial.Vec3) (*Vehicle, float64, bool) {
	it, dist, ok := s.index.Nearest(v.Position, s.cfg.SensorRadius, func(it spatial.Item) bool {
		o := s.byID[it.ID]
		if o == nil || o == v || o.Lane != v.Lane {
			return false
		}
		along, lateral := v.ahead(o.Position)
		return along > 0 && lateral <= s.cfg.LaneWidth && o.Heading().Dot(heading) > 0.5
	})
	if !ok {
		return nil, 0, false
	}
	o := s.byID[it.ID]
	if o == nil {
		return nil, 0, false
	}
	return o, dist, true
}

// redLightAhead returns the distance to the nearest signal in the vehicle's
// path that it must stop for.
func (s *System) redLightAhead(v *Vehicle) (float64, bool) {
	best, found := math.Inf(1), false
	for _, sig := range s.signals {
		along, lateral := v.ahead(sig.Position)
		if along <= 0 || along > s.cfg.SignalLookahead || lateral > s.cfg.LaneWidth {
			continue
		}
		switch sig.Color() {
		case Green:
			continue
		case Yellow:
			if along <= s.cfg.YellowCommit {
				continue
			}
		}
		if along <= s.cfg.StopRange && along < best {
			best, found = along, true
		}
	}
	return best, found
}

// yieldToEmergency makes vehicles near an emergency vehicle pull aside and slow.
func (s *System) yieldToEmergency() {
	for _, e := range s.vehicles {
		if e.Class != Emergency {
			continue
		}
		s.index.Within(e.Position, s.cfg.YieldRadius, func(it spatial.Item, _ float64) {
			v := s.byID[it.ID]
			if v == nil || v.Class == Emergency {
				return
			}
			v.requestLaneChange(-1)
			v.Speed *= s.cfg.YieldSpeedFactor
		})
	}
}

func (s *System) autoSpawn(dt, hour float64) {
	if len(s.roadList) == 0 || s.cfg.SpawnRate <= 0 {
		return
	}
	if !entropy.Chance(s.rng, s.cfg.SpawnRate*dt*s.rushMultiplier(hour)) {
		return
	}
	road := s.roadList[s.rng.Intn(len(s.roadList))]
	class := Class(entropy.Pick(s.rng, s.cfg.SpawnWeights[:]))
	if _, res := s.SpawnOnRoad(road.ID, class); !res.OK {
		slog.Debug("spawn skipped", "reason", res.Message)
	}
}

// measureCongestion is the mean shortfall from free-flow speed, in percent.
func (s *System) measureCongestion() float64 {
	if len(s.vehicles) == 0 {
		return 0
	}
	ratios := make([]float64, 0, len(s.vehicles))
	for _, v := range s.vehicles {
		if v.MaxSpeed <= 0 {
			continue
		}
		ratios = append(ratios, 1-v.Speed/v.MaxSpeed)
	}
	if len(ratios) == 0 {
		return 0
	}
	return mathx.Percent(stat.Mean(ratios, nil) * 100)
}

func (s *System) snapshot() Stats {
	st := Stats{
		Vehicles:        len(s.vehicles),
		Congestion:      s.congestion,
		ActiveAccidents: len(s.accidents),
		TotalAccidents:  s.totalAccidents,
		Casualties:      s.casualties,
		EconomicDamage:  s.damage,
		Completed:       s.completed,
		Spawned:         s.spawned,
		Signals:         len(s.signals),
	}
	if len(s.vehicles) > 0 {
		speeds := make([]float64, len(s.vehicles))
		for i, v := range s.vehicles {
			speeds[i] = v.Speed
			if v.Class == Emergency {
				st.Emergency++
			}
		}
		st.AverageSpeed = stat.Mean(speeds, nil)
	}
	return st
}

// Vehicle returns a copy of a live vehicle.
func (s *System) Vehicle(id string) (Vehicle, bool) {
	v, ok := s.byID[id]
	if !ok {
		return Vehicle{}, false
	}
	return *v, true
}

// Vehicles returns copies of every live vehicle.
func (s *System) Vehicles() []Vehicle {
	out := make([]Vehicle, len(s.vehicles))
	for i, v := range s.vehicles {
		out[i] = *v
	}
	return out
}

// Signals returns copies of every signal.
func (s *System) Signals() []Signal {
	out := make([]Signal, len(s.signals))
	for i, sig := range s.signals {
		out[i] = *sig
	}
	return out
}

// Accidents returns copies of live accidents.
func (s *System) Accidents() []Accident {
	out := make([]Accident, len(s.accidents))
	for i, a := range s.accidents {
		out[i] = *a
	}
	return out
}

// Stats returns the last snapshot.
func (s *System) Stats() Stats { return s.stats }

// DrainEvents returns traffic events since the last drain.
func (s *System) DrainEvents() []events.Event { return s.rec.Drain() }

func (s *System) String() string {
	return fmt.Sprintf("traffic: %d vehicles, %d signals, %d accidents", len(s.vehicles), len(s.signals), len(s.accidents))
}

func orOne(v float64) float64 {
	if v == 0 {
		return 1
	}
	return v
}
