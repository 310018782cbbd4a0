// Simulation ties together all city systems and runs them each tick.
package engine

import (
	"log/slog"
	"math"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/talgya/mini-city/internal/citizens"
	"github.com/talgya/mini-city/internal/config"
	"github.com/talgya/mini-city/internal/disaster"
	"github.com/talgya/mini-city/internal/economy"
	"github.com/talgya/mini-city/internal/entropy"
	"github.com/talgya/mini-city/internal/events"
	"github.com/talgya/mini-city/internal/ids"
	"github.com/talgya/mini-city/internal/policy"
	"github.com/talgya/mini-city/internal/resources"
	"github.com/talgya/mini-city/internal/spatial"
	"github.com/talgya/mini-city/internal/traffic"
	"github.com/talgya/mini-city/internal/weather"
	"github.com/talgya/mini-city/internal/world"
)

// Per-subsystem offsets into the master seed.
const (
	seedWeather int64 = iota + 1
	seedNoise
	seedDisaster
	seedTraffic
	seedCitizens
	seedEconomy
)

// Snapshot merges every subsystem's statistics after one step.
type Snapshot struct {
	Tick      uint64          `json:"tick"`
	Time      float64         `json:"time"` // Game minutes since start
	Day       int             `json:"day"`
	Clock     string          `json:"clock"`
	Weather   weather.Stats   `json:"weather"`
	Resources resources.Stats `json:"resources"`
	Policy    policy.Stats    `json:"policy"`
	Disasters disaster.Stats  `json:"disasters"`
	Traffic   traffic.Stats   `json:"traffic"`
	Citizens  citizens.Stats  `json:"citizens"`
	Economy   economy.Stats   `json:"economy"`

	DayEnded bool           `json:"-"` // A daily update ran during this step
	Events   []events.Event `json:"-"` // Events raised during this step
}

// Simulation owns one instance of every subsystem and the city map.
// All methods are safe for concurrent use.
type Simulation struct {
	mu    sync.Mutex
	cfg   config.Tuning
	alloc ids.Allocator
	city  *world.Map

	weather   *weather.Clock
	grid      *resources.Grid
	policies  *policy.Ledger
	disasters *disaster.System
	traffic   *traffic.System
	citizens  *citizens.Simulation
	economy   *economy.Economy

	log        *events.Log
	pending    []events.Event
	tick       uint64
	tripsAtDay int
	last       Snapshot
}

// NewSimulation wires every subsystem around a city map. Nothing is built:
// see Bootstrap for a populated city.
func NewSimulation(cfg *config.Tuning, city *world.Map, alloc ids.Allocator) *Simulation {
	seed := cfg.Sim.Seed
	if seed == 0 {
		seed = entropy.CryptoSeed()
	}

	var idx spatial.Index
	if cfg.Sim.SpatialIndex == "linear" {
		idx = spatial.NewLinear()
	}

	s := &Simulation{
		cfg:       *cfg,
		alloc:     alloc,
		city:      city,
		weather:   weather.NewClock(cfg.Weather, entropy.New(seed+seedWeather), seed+seedNoise),
		grid:      resources.NewGrid(cfg.Resources, alloc),
		policies:  policy.NewLedger(cfg.Policy),
		disasters: disaster.NewSystem(cfg.Disaster, entropy.New(seed+seedDisaster), alloc),
		traffic:   traffic.NewSystem(cfg.Traffic, entropy.New(seed+seedTraffic), alloc, idx),
		citizens:  citizens.NewSimulation(cfg.Citizens, entropy.New(seed+seedCitizens), alloc),
		economy:   economy.New(cfg.Economy, entropy.New(seed+seedEconomy), alloc),
		log:       events.NewLog(cfg.Sim.EventLogCap),
	}
	s.traffic.SetRoads(city.Roads())
	s.last = s.snapshot(weather.Stats{}, false, nil)
	return s
}

// Step advances every subsystem by dt time units in the fixed order weather,
// resources, policy, disasters, traffic, then the daily citizen and economy
// updates when the game day rolls over.
func (s *Simulation) Step(dt float64) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tick++
	prevDay := s.weather.Day()
	prevHour := int(s.weather.Hour())

	w := s.weather.Update(dt)
	now := s.weather.Minutes()

	// Policy runs after resources, so the grid sees last tick's reduction.
	s.grid.SetPollutionReduction(s.policies.Effects().PollutionReduction)
	res := s.grid.Update(now)

	pol := s.policies.Update(now)
	dis := s.disasters.Update(dt, now, s.city.Roads())
	tr := s.traffic.Update(dt, now, traffic.Environment{
		Hour:                   w.Hour,
		WeatherSpeed:           w.Effects.SpeedMultiplier,
		WeatherAccident:        w.Effects.AccidentMultiplier,
		PolicySpeed:            pol.Effects.SpeedMultiplier,
		PolicyCongestionRelief: pol.Effects.CongestionReduction,
		Hazards:                trafficHazards(s.disasters.Hazards()),
	})

	if int(w.Hour) != prevHour {
		s.citizens.RefreshActivities(w.Hour)
	}

	dayEnded := w.Day > prevDay
	for d := prevDay; d < w.Day; d++ {
		s.endDay(now, w.Hour, res, pol, dis, tr)
	}

	evs := append(s.pending, s.collectEvents()...)
	s.pending = nil
	s.last = s.snapshot(w, dayEnded, evs)
	return s.last
}

// endDay runs the daily citizen and economy updates and reconciles
// headcounts between them.
func (s *Simulation) endDay(now, hour float64, res resources.Stats, pol policy.Stats, dis disaster.Stats, tr traffic.Stats) {
	crep := s.citizens.DailyUpdate(citizens.Input{
		Now:            now,
		Hour:           hour,
		Buildings:      s.city.Buildings(),
		Openings:       s.economy.Openings(),
		HappinessBonus: pol.Effects.HappinessBonus,
		Shortages:      shortages(res),
		Disasters:      dis.Active,
	})
	// Hires first: a citizen hired and let go on the same day appears in both.
	for building, n := range crep.Hires {
		for i := 0; i < n; i++ {
			if r := s.economy.HireAt(building); !r.OK {
				slog.Warn("hire rejected", "building", building, "reason", r.Message)
			}
		}
	}
	for building, n := range crep.Departures {
		for i := 0; i < n; i++ {
			s.economy.FireAt(building)
		}
	}

	trips := tr.Completed - s.tripsAtDay
	s.tripsAtDay = tr.Completed
	erep := s.economy.DailyUpdate(economy.Input{
		Now:              now,
		Population:       crep.Stats.Population,
		AverageHappiness: crep.Stats.AverageHappiness,
		UnemploymentRate: crep.Stats.UnemploymentRate,
		Trips:            trips,
		TollMultiplier:   pol.Effects.TollRevenueMultiplier,
		RevenueBonus:     pol.Effects.RevenueBonus,
		RecurringCosts:   pol.RecurringCost,
	})
	for _, c := range erep.Closed {
		s.citizens.LayOff(c.BuildingID)
	}

	st := erep.Stats
	slog.Info("daily report",
		"day", s.weather.Day(),
		"time", SimTime(now),
		"population", crep.Stats.Population,
		"happiness", humanize.FtoaWithDigits(crep.Stats.AverageHappiness, 1),
		"unemployment", humanize.FtoaWithDigits(crep.Stats.UnemploymentRate, 1),
		"funds", humanize.Commaf(math.Round(st.Funds)),
		"gdp", humanize.Commaf(math.Round(st.GDP)),
		"businesses", st.Businesses,
		"bankruptcies", len(erep.Closed),
		"congestion", humanize.FtoaWithDigits(tr.Congestion, 1),
		"accidents", tr.TotalAccidents,
		"disasters", dis.Active,
		"pollution", humanize.FtoaWithDigits(res.Pollution, 1),
	)
}

func (s *Simulation) collectEvents() []events.Event {
	var evs []events.Event
	evs = append(evs, s.weather.DrainEvents()...)
	evs = append(evs, s.grid.DrainEvents()...)
	evs = append(evs, s.policies.DrainEvents()...)
	evs = append(evs, s.disasters.DrainEvents()...)
	evs = append(evs, s.traffic.DrainEvents()...)
	evs = append(evs, s.citizens.DrainEvents()...)
	evs = append(evs, s.economy.DrainEvents()...)
	s.log.Add(evs...)
	return evs
}

func (s *Simulation) snapshot(w weather.Stats, dayEnded bool, evs []events.Event) Snapshot {
	if w.TimeOfDay == "" {
		w = s.weather.Stats()
	}
	now := s.weather.Minutes()
	return Snapshot{
		Tick:      s.tick,
		Time:      now,
		Day:       w.Day,
		Clock:     SimTime(now),
		Weather:   w,
		Resources: s.grid.Stats(),
		Policy:    s.policies.Stats(),
		Disasters: s.disasters.Stats(),
		Traffic:   s.traffic.Stats(),
		Citizens:  s.citizens.Stats(),
		Economy:   s.economy.Stats(),
		DayEnded:  dayEnded,
		Events:    evs,
	}
}

// refresh recomputes the cached snapshot after a mutation between steps.
// Events the mutation raised are reported with the next step.
func (s *Simulation) refresh() {
	s.pending = append(s.pending, s.collectEvents()...)
	s.last = s.snapshot(s.last.Weather, false, nil)
}

func shortages(res resources.Stats) int {
	n := 0
	for _, short := range []bool{res.PowerShortage, res.WaterShortage, res.WasteShortage} {
		if short {
			n++
		}
	}
	return n
}

func trafficHazards(hs []disaster.Hazard) []traffic.Hazard {
	if len(hs) == 0 {
		return nil
	}
	out := make([]traffic.Hazard, len(hs))
	for i, h := range hs {
		out[i] = traffic.Hazard{ID: h.ID, RoadID: h.RoadID, Position: h.Position, LanesBlocked: h.LanesBlocked}
	}
	return out
}

// Snapshot returns the statistics after the most recent step or mutation.
func (s *Simulation) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.last
	snap.Events = nil
	return snap
}

// RecentEvents returns the newest n events, oldest first.
func (s *Simulation) RecentEvents(n int) []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.log.Recent(n)
}

// Policies returns the policy catalog with activation state.
func (s *Simulation) Policies() []policy.Policy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.policies.Policies()
}

// Businesses returns every open business.
func (s *Simulation) Businesses() []economy.Business {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.economy.Businesses()
}

// Loans returns outstanding loans.
func (s *Simulation) Loans() []economy.Loan {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.economy.Loans()
}

// Bonds returns outstanding bonds.
func (s *Simulation) Bonds() []economy.Bond {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.economy.Bonds()
}

// Goods returns the goods market.
func (s *Simulation) Goods() []economy.Good {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.economy.Goods()
}

// Disasters returns active disasters.
func (s *Simulation) Disasters() []disaster.Disaster {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disasters.Active()
}

// Accidents returns active traffic accidents.
func (s *Simulation) Accidents() []traffic.Accident {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.traffic.Accidents()
}

// Citizen looks up one resident.
func (s *Simulation) Citizen(id string) (citizens.Citizen, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.citizens.Citizen(id)
}

// Buildings returns every constructed building.
func (s *Simulation) Buildings() []world.Building {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.city.Buildings()
}

// Roads returns the road network.
func (s *Simulation) Roads() []world.Road {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.city.Roads()
}

// SetWeather forces the weather for duration game minutes.
func (s *Simulation) SetWeather(cond weather.Condition, intensity, duration float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.weather.Set(cond, intensity, duration)
	s.last.Weather = s.weather.Stats()
}
