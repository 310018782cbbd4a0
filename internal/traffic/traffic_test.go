package traffic

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/mini-city/internal/entropy"
	"github.com/talgya/mini-city/internal/ids"
	"github.com/talgya/mini-city/internal/spatial"
	"github.com/talgya/mini-city/internal/world"
)

func quietConfig() Config {
	cfg := DefaultConfig()
	cfg.SpawnRate = 0
	cfg.LaneChangeChance = 0
	cfg.Accidents.BaseRate = 0
	return cfg
}

func newTestSystem(cfg Config) *System {
	return NewSystem(cfg, entropy.New(42), ids.NewSequential(), nil)
}

var straight = []spatial.Vec3{{}, {X: 200}}

func run(s *System, ticks int, dt float64, env Environment, each func()) {
	for i := 0; i < ticks; i++ {
		s.Update(dt, float64(i)*dt, env)
		if each != nil {
			each()
		}
	}
}

func TestVehicleStopsBeforeRedLight(t *testing.T) {
	s := newTestSystem(quietConfig())
	_, res := s.AddSignal(spatial.Vec3{X: 100}, 1e9, 10, 3, false)
	require.True(t, res.OK)
	id, res := s.Spawn(Car, straight, 0)
	require.True(t, res.OK, res.Message)

	run(s, 1000, 0.1, Environment{}, func() {
		v, ok := s.Vehicle(id)
		require.True(t, ok)
		require.Less(t, v.Position.X, 100.0, "vehicle crossed the stop line")
	})

	v, _ := s.Vehicle(id)
	assert.InDelta(t, 0, v.Speed, 0.5)
	assert.Greater(t, v.Position.X, 90.0)
	assert.Greater(t, v.StoppedTime, 0.0)
}

func TestGreenLightDoesNotStopTraffic(t *testing.T) {
	s := newTestSystem(quietConfig())
	s.AddSignal(spatial.Vec3{X: 100}, 1, 1e9, 1, false)
	s.Update(1, 0, Environment{}) // Past red into green.
	s.Spawn(Car, straight, 0)

	run(s, 400, 0.1, Environment{}, nil)
	assert.Equal(t, 1, s.Stats().Completed)
}

func TestSignalDwellTimesOverOneCycle(t *testing.T) {
	sig := &Signal{Red: 30, Green: 25, Yellow: 5, BaseGreen: 25}
	spent := map[Color]float64{}
	const dt = 0.5
	for i := 0; i < int(sig.Cycle()/dt); i++ {
		c := sig.Color()
		require.Contains(t, []Color{Red, Green, Yellow}, c)
		spent[c] += dt
		sig.tick(dt)
	}
	for _, c := range []Color{Red, Green, Yellow} {
		assert.Equal(t, sig.timeIn(c), spent[c], c.String())
	}
	assert.Zero(t, sig.Timer)
}

func TestAdaptiveGreenAppliesAtCycleBoundary(t *testing.T) {
	cfg := DefaultSignalConfig()
	sig := &Signal{Red: 30, Green: 30, Yellow: 5, BaseGreen: 30, Adaptive: true}

	sig.observe(100, cfg)
	assert.Equal(t, 60.0, sig.PendingGreen, "clamped to the maximum")
	assert.Equal(t, 30.0, sig.Green, "running cycle keeps its dwell times")

	sig.Timer = 64
	sig.tick(2)
	assert.Equal(t, 60.0, sig.Green)
	assert.InDelta(t, 1, sig.Timer, 1e-9)
	assert.Zero(t, sig.PendingGreen)

	for i := 0; i < 60; i++ {
		sig.observe(0, cfg)
	}
	assert.InDelta(t, 30, sig.PendingGreen, 0.01)

	short := &Signal{Red: 30, Green: 5, Yellow: 5, BaseGreen: 5, Adaptive: true}
	short.observe(0, cfg)
	assert.Equal(t, 20.0, short.PendingGreen, "clamped to the minimum")
}

func TestAdaptiveSignalSamplesQueue(t *testing.T) {
	s := newTestSystem(quietConfig())
	s.AddSignal(spatial.Vec3{X: 100}, 1e9, 10, 3, true)
	s.Spawn(Car, straight, 0)

	run(s, 400, 0.1, Environment{}, nil)
	sig := s.Signals()[0]
	assert.Greater(t, sig.QueueEstimate, 0.0)
	assert.Equal(t, 20.0, sig.PendingGreen)
	assert.Equal(t, Red, sig.Color())
}

func TestFollowerStopsBehindStationaryLeader(t *testing.T) {
	s := newTestSystem(quietConfig())
	leaderID, _ := s.Spawn(Car, []spatial.Vec3{{X: 60}, {X: 200}}, 0)
	s.byID[leaderID].MaxSpeed = 0
	followerID, _ := s.Spawn(Car, straight, 0)

	run(s, 600, 0.1, Environment{}, func() {
		l, _ := s.Vehicle(leaderID)
		f, _ := s.Vehicle(followerID)
		require.Less(t, f.Position.X, l.Position.X)
	})
	f, _ := s.Vehicle(followerID)
	assert.InDelta(t, 0, f.Speed, 0.5)
}

func TestAggressiveDriverOvertakesSlowLeader(t *testing.T) {
	cfg := quietConfig()
	cfg.LaneChangeChance = 1
	s := newTestSystem(cfg)
	leaderID, _ := s.Spawn(Truck, []spatial.Vec3{{X: 40}, {X: 400}}, 0)
	s.byID[leaderID].MaxSpeed = 3
	followerID, _ := s.Spawn(Car, []spatial.Vec3{{}, {X: 400}}, 0)
	s.byID[followerID].Aggressiveness = 1

	requested := false
	run(s, 200, 0.1, Environment{}, func() {
		if f, ok := s.Vehicle(followerID); ok && f.DesiredLane == 1 {
			requested = true
		}
	})
	assert.True(t, requested, "fast follower never tried to pass")
	l, _ := s.Vehicle(leaderID)
	assert.Zero(t, l.DesiredLane, "the leader has nobody to pass")
}

func TestTimidDriverStaysBehindSlowLeader(t *testing.T) {
	cfg := quietConfig()
	cfg.LaneChangeChance = 1
	s := newTestSystem(cfg)
	leaderID, _ := s.Spawn(Truck, []spatial.Vec3{{X: 40}, {X: 400}}, 0)
	s.byID[leaderID].MaxSpeed = 3
	followerID, _ := s.Spawn(Car, []spatial.Vec3{{}, {X: 400}}, 0)
	s.byID[followerID].Aggressiveness = 0

	run(s, 200, 0.1, Environment{}, func() {
		f, _ := s.Vehicle(followerID)
		require.Zero(t, f.DesiredLane)
	})
}

func TestWaitingAtRedLightWearsPatienceIntoAggression(t *testing.T) {
	s := newTestSystem(quietConfig())
	s.AddSignal(spatial.Vec3{X: 100}, 1e9, 10, 3, false)
	id, _ := s.Spawn(Car, straight, 0)
	v := s.byID[id]
	v.Patience = 1
	v.Aggressiveness = 0.2

	run(s, 1000, 0.1, Environment{}, nil)
	got, ok := s.Vehicle(id)
	require.True(t, ok)
	assert.Greater(t, got.StoppedTime, 30.0)
	assert.Zero(t, got.Patience)
	assert.Greater(t, got.Aggressiveness, 0.5)
}

func TestPatientDriverKeepsTemper(t *testing.T) {
	s := newTestSystem(quietConfig())
	id, _ := s.Spawn(Car, straight, 0)
	v := s.byID[id]
	v.Patience = 80
	v.Aggressiveness = 0.2

	run(s, 100, 0.1, Environment{}, nil)
	got, _ := s.Vehicle(id)
	assert.Equal(t, 0.2, got.Aggressiveness)
	assert.Greater(t, got.Patience, 80.0, "moving restores patience")
}

func TestWeatherSpeedCapsCruise(t *testing.T) {
	cruise := func(env Environment) float64 {
		s := newTestSystem(quietConfig())
		id, _ := s.Spawn(Car, []spatial.Vec3{{}, {X: 1000}}, 0)
		run(s, 100, 0.1, env, nil)
		v, _ := s.Vehicle(id)
		return v.Speed
	}
	assert.InDelta(t, 14, cruise(Environment{}), 1e-9)
	assert.InDelta(t, 14*0.55, cruise(Environment{WeatherSpeed: 0.55}), 1e-9)
	assert.InDelta(t, 14*0.55*0.8, cruise(Environment{WeatherSpeed: 0.55, PolicySpeed: 0.8}), 1e-9)
}

func TestVehicleRemovedAtPathEnd(t *testing.T) {
	s := newTestSystem(quietConfig())
	s.Spawn(Truck, []spatial.Vec3{{}, {X: 20}, {X: 20, Z: 20}}, 0)

	run(s, 300, 0.1, Environment{}, nil)
	st := s.Stats()
	assert.Zero(t, st.Vehicles)
	assert.Equal(t, 1, st.Completed)
}

func TestAccidentBlocksLanesAndDispatchesEmergency(t *testing.T) {
	cfg := quietConfig()
	cfg.Accidents.BaseRate = 1e6
	cfg.Accidents.SeverityWeights = [3]float64{0, 0, 1}
	s := newTestSystem(cfg)

	path := []spatial.Vec3{{X: 100}, {X: 400}}
	s.Spawn(Car, path, 0)
	s.Spawn(Car, []spatial.Vec3{{X: 110}, {X: 400}}, 0)

	st := s.Update(0.1, 0, Environment{Hour: 12})
	require.Equal(t, 1, st.TotalAccidents)
	assert.Equal(t, 1, st.Emergency)
	assert.Equal(t, 1, st.Vehicles)

	acc := s.Accidents()[0]
	assert.Equal(t, world.Severe, acc.Severity)
	assert.Equal(t, 2, acc.LanesBlocked)
	assert.Len(t, acc.Vehicles, 2)
	assert.True(t, acc.EmergencyRequired)
	assert.NotEmpty(t, s.DrainEvents())

	responded := false
	run(s, 300, 0.1, Environment{Hour: 12}, func() {
		for _, a := range s.Accidents() {
			if a.Responded {
				responded = true
				assert.Less(t, a.Duration, cfg.Accidents.Durations[world.Severe])
			}
		}
	})
	assert.True(t, responded)
	assert.Zero(t, s.Stats().Emergency)
}

func TestAccidentLanesClampedToRoad(t *testing.T) {
	cfg := quietConfig()
	cfg.Accidents.SeverityWeights = [3]float64{0, 1, 0}
	s := newTestSystem(cfg)
	s.SetRoads([]world.Road{{ID: "road_1", End: spatial.Vec3{X: 300}, Lanes: 1, SpeedLimit: 12}})

	a, res := s.SpawnOnRoad("road_1", Car)
	require.True(t, res.OK)
	b, _ := s.SpawnOnRoad("road_1", Car)
	acc := s.crash(s.byID[a], s.byID[b])
	assert.Equal(t, 1, acc.LanesBlocked)
	assert.Equal(t, "road_1", acc.RoadID)
}

func TestEmergencyVehiclesMakeTrafficYield(t *testing.T) {
	s := newTestSystem(quietConfig())
	carID, _ := s.Spawn(Car, straight, 0)
	s.Spawn(Emergency, []spatial.Vec3{{X: -10}, {X: 300}}, 0)

	s.Update(0.1, 0, Environment{})
	car, _ := s.Vehicle(carID)
	assert.Equal(t, 1, car.DesiredLane)
	assert.True(t, car.ChangingLane)
	assert.InDelta(t, 0.15, car.Speed, 1e-9)
}

func TestHazardAcrossAllLanesStopsTraffic(t *testing.T) {
	s := newTestSystem(quietConfig())
	id, _ := s.Spawn(Car, straight, 0)
	env := Environment{Hazards: []Hazard{{ID: "dis_1", Position: spatial.Vec3{X: 100}, LanesBlocked: 2}}}

	run(s, 800, 0.1, env, func() {
		v, _ := s.Vehicle(id)
		require.Less(t, v.Position.X, 100.0)
	})
	v, _ := s.Vehicle(id)
	assert.InDelta(t, 0, v.Speed, 0.5)
}

func TestPartialHazardTriggersLaneChange(t *testing.T) {
	s := newTestSystem(quietConfig())
	id, _ := s.Spawn(Car, straight, 0)
	env := Environment{Hazards: []Hazard{{ID: "dis_1", Position: spatial.Vec3{X: 100}, LanesBlocked: 1}}}

	changed := false
	run(s, 300, 0.1, env, func() {
		if v, ok := s.Vehicle(id); ok && v.DesiredLane == 1 {
			changed = true
		}
	})
	assert.True(t, changed)
}

func TestRushHourDoublesAccidentProbability(t *testing.T) {
	s := newTestSystem(quietConfig())
	s.cfg.Accidents.BaseRate = 0.01
	for i := 0; i < 10; i++ {
		s.Spawn(Car, straight, 0)
	}
	calm := s.accidentProbability(1, 50, 12, 1)
	rush := s.accidentProbability(1, 50, 8, 1)
	assert.InDelta(t, 2*calm, rush, 1e-12)
	assert.InDelta(t, 0.01*1.5*0.1, calm, 1e-12)
}

func TestSpawnValidation(t *testing.T) {
	cfg := quietConfig()
	cfg.MaxVehicles = 1
	s := newTestSystem(cfg)

	_, res := s.Spawn(Car, straight[:1], 0)
	assert.False(t, res.OK)
	_, res = s.Spawn(Car, straight, -1)
	assert.False(t, res.OK)
	_, res = s.SpawnOnRoad("nowhere", Car)
	assert.False(t, res.OK)

	_, res = s.Spawn(Bus, straight, 0)
	require.True(t, res.OK)
	_, res = s.Spawn(Car, straight, 0)
	assert.False(t, res.OK)
	_, res = s.Spawn(Emergency, straight, 0)
	assert.True(t, res.OK, "emergency vehicles bypass the limit")
}

func TestEmptyNetworkYieldsZeroStats(t *testing.T) {
	s := NewSystem(DefaultConfig(), entropy.New(1), ids.NewSequential(), spatial.NewLinear())
	st := s.Update(1, 0, Environment{})
	assert.Equal(t, Stats{}, st)
}

// timeIn returns how long the signal spends in colour c per cycle.
func (s *Signal) timeIn(c Color) float64 {
	switch c {
	case Red:
		return s.Red
	case Green:
		return s.Green
	case Yellow:
		return s.Yellow
	}
	return math.NaN()
}
