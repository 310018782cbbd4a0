package citizens

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/talgya/mini-city/internal/entropy"
	"github.com/talgya/mini-city/internal/events"
	"github.com/talgya/mini-city/internal/ids"
	"github.com/talgya/mini-city/internal/mathx"
	"github.com/talgya/mini-city/internal/result"
	"github.com/talgya/mini-city/internal/world"
)

// Config holds citizen tuning.
type Config struct {
	MinHappiness  float64 `json:"min_happiness"`
	MigrationDays int     `json:"migration_days"`

	FoodDecay          float64 `json:"food_decay"`
	UnfedFoodLoss      float64 `json:"unfed_food_loss"` // Extra loss when living costs go unpaid
	EntertainmentDecay float64 `json:"entertainment_decay"`
	HealthDecay        float64 `json:"health_decay"`
	HungerHealthLoss   float64 `json:"hunger_health_loss"` // Extra loss while food < 20
	FedHealthGain      float64 `json:"fed_health_gain"`    // Gain while food > 50
	EmploymentDecay    float64 `json:"employment_decay"`   // Per unemployed day
	JoblessStress      float64 `json:"jobless_stress"`     // Health and entertainment loss per unemployed day

	LivingCost  float64    `json:"living_cost"`
	LivingFood  float64    `json:"living_food"`
	LeisureCost float64    `json:"leisure_cost"`
	LeisureGain float64    `json:"leisure_gain"`
	Salaries    [4]float64 `json:"salaries"` // Per day, by education tier

	SafetyBase      float64 `json:"safety_base"`
	DisasterPenalty float64 `json:"disaster_penalty"`
	ShortagePenalty float64 `json:"shortage_penalty"`
	SafetyDrift     float64 `json:"safety_drift"`

	WorkingAge     [2]float64 `json:"working_age"`
	FertileAge     [2]float64 `json:"fertile_age"`
	BirthRate      float64    `json:"birth_rate"`
	DeathBase      float64    `json:"death_base"`
	DeathAgeFactor float64    `json:"death_age_factor"` // Added per year past DeathAgeStart
	DeathAgeStart  float64    `json:"death_age_start"`

	JobSearchChance float64 `json:"job_search_chance"`
	JobLossChance   float64 `json:"job_loss_chance"`
	CommuteSpeed    float64 `json:"commute_speed"` // World units per game minute

	EducationWeights [4]float64 `json:"education_weights"`
	WealthRange      [2]float64 `json:"wealth_range"`
}

// DefaultConfig returns the stock citizen tuning.
func DefaultConfig() Config {
	return Config{
		MinHappiness:       40,
		MigrationDays:      30,
		FoodDecay:          5,
		UnfedFoodLoss:      3,
		EntertainmentDecay: 5,
		HealthDecay:        2,
		HungerHealthLoss:   3,
		FedHealthGain:      2,
		EmploymentDecay:    50,
		JoblessStress:      8,
		LivingCost:         20,
		LivingFood:         6,
		LeisureCost:        15,
		LeisureGain:        6,
		Salaries:           [4]float64{60, 90, 140, 200},
		SafetyBase:         70,
		DisasterPenalty:    5,
		ShortagePenalty:    5,
		SafetyDrift:        0.1,
		WorkingAge:         [2]float64{18, 65},
		FertileAge:         [2]float64{20, 40},
		BirthRate:          0.0008,
		DeathBase:          0.00002,
		DeathAgeFactor:     0.0001,
		DeathAgeStart:      65,
		JobSearchChance:    0.7,
		JobLossChance:      0.002,
		CommuteSpeed:       20,
		EducationWeights:   [4]float64{0.15, 0.4, 0.3, 0.15},
		WealthRange:        [2]float64{200, 1000},
	}
}

// Input is the read-only view of the city passed to the daily update.
type Input struct {
	Now            float64 // Game minutes, for event timestamps
	Hour           float64
	Buildings      []world.Building
	Openings       map[string]int // Job openings by building ID
	HappinessBonus float64
	Shortages      int
	Disasters      int
}

// Report is the outcome of one daily update.
type Report struct {
	Stats Stats
	// Hires and Departures count job changes per workplace building so the
	// economy can adjust headcounts.
	Hires      map[string]int
	Departures map[string]int
}

// Stats is the population snapshot.
type Stats struct {
	Population       int     `json:"population"`
	AverageHappiness float64 `json:"average_happiness"`
	Employed         int     `json:"employed"`
	Unemployed       int     `json:"unemployed"`
	UnemploymentRate float64 `json:"unemployment_rate"` // Percent of the working-age population
	Births           int     `json:"births"`
	Deaths           int     `json:"deaths"`
	Migrations       int     `json:"migrations"`
	Departures       int     `json:"departures"`
	AverageAge       float64 `json:"average_age"`
	AverageWealth    float64 `json:"average_wealth"`
}

// Simulation owns every citizen.
type Simulation struct {
	cfg      Config
	rng      entropy.Source
	spawner  spawner
	citizens []*Citizen
	byID     map[string]*Citizen

	births, deaths, migrations, departures int

	day int
	now float64
	rec events.Recorder
}

// NewSimulation creates an empty population.
func NewSimulation(cfg Config, rng entropy.Source, alloc ids.Allocator) *Simulation {
	s := &Simulation{cfg: cfg, rng: rng, byID: make(map[string]*Citizen)}
	s.spawner = spawner{rng: rng, alloc: alloc, cfg: &s.cfg}
	return s
}

// SpawnCitizens moves count new residents into a home and returns their IDs.
func (s *Simulation) SpawnCitizens(home world.Building, count int) []string {
	out := make([]string, 0, count)
	for i := 0; i < count; i++ {
		c := s.spawner.adult(home.ID, home.Position)
		s.add(c)
		out = append(out, c.ID)
	}
	if count > 0 {
		slog.Debug("citizens moved in", "home", home.ID, "count", count)
	}
	return out
}

func (s *Simulation) add(c *Citizen) {
	s.citizens = append(s.citizens, c)
	s.byID[c.ID] = c
}

// LeaveCity removes a citizen at the player's or a script's request.
func (s *Simulation) LeaveCity(id string) result.Result {
	c, ok := s.byID[id]
	if !ok {
		return result.Fail("unknown citizen %q", id)
	}
	s.departures++
	s.removeIDs(map[string]bool{id: true})
	s.rec.Record(s.now, events.CategoryCitizen, fmt.Sprintf("%s left the city", c.Name))
	return result.Ok("%s left the city", c.Name)
}

// LayOff unemploys every citizen working at building jobID and returns how
// many lost their job.
func (s *Simulation) LayOff(jobID string) int {
	laid := 0
	for _, c := range s.citizens {
		if c.JobID == jobID {
			c.JobID, c.CommuteTime = "", 0
			laid++
		}
	}
	return laid
}

// Evict moves every resident of home out of the city and returns how many
// left.
func (s *Simulation) Evict(homeID string) int {
	drop := make(map[string]bool)
	for _, c := range s.citizens {
		if c.HomeID == homeID {
			drop[c.ID] = true
		}
	}
	s.departures += len(drop)
	s.removeIDs(drop)
	if len(drop) > 0 {
		s.rec.Record(s.now, events.CategoryCitizen, fmt.Sprintf("%d residents of %s left the city", len(drop), homeID))
	}
	return len(drop)
}

// Assign gives a job at workplace to the unemployed working-age citizen living
// nearest to it.
func (s *Simulation) Assign(workplace world.Building) (string, bool) {
	var best *Citizen
	for _, c := range s.citizens {
		if c.Employed() || !s.workingAge(c) {
			continue
		}
		if best == nil || workplace.Position.DistSq(c.Home) < workplace.Position.DistSq(best.Home) {
			best = c
		}
	}
	if best == nil {
		return "", false
	}
	best.JobID = workplace.ID
	best.CommuteTime = workplace.Position.Dist(best.Home) / s.cfg.CommuteSpeed
	return best.ID, true
}

// Dismiss unemploys one citizen working at building jobID.
func (s *Simulation) Dismiss(jobID string) (string, bool) {
	for _, c := range s.citizens {
		if c.JobID == jobID {
			c.JobID, c.CommuteTime = "", 0
			return c.ID, true
		}
	}
	return "", false
}

func (s *Simulation) workingAge(c *Citizen) bool {
	return c.Age >= s.cfg.WorkingAge[0] && c.Age <= s.cfg.WorkingAge[1]
}

// DailyUpdate runs one day of births, deaths, job seeking, needs and migration.
func (s *Simulation) DailyUpdate(in Input) Report {
	s.day++
	s.now = in.Now
	rep := Report{Hires: map[string]int{}, Departures: map[string]int{}}
	now := in.Now

	s.lifecycle(now, rep.Departures)
	s.seekJobs(in, rep.Hires)

	gone := map[string]bool{}
	for _, c := range s.citizens {
		if c.Employed() && entropy.Chance(s.rng, s.cfg.JobLossChance*(1.5-c.Personality.Diligence)) {
			rep.Departures[c.JobID]++
			c.JobID, c.CommuteTime = "", 0
		}
		s.updateNeeds(c, in)
		c.Activity = ActivityAt(in.Hour, c.Employed())

		if c.Happiness < s.cfg.MinHappiness {
			c.UnhappyDays++
		} else {
			c.UnhappyDays = 0
		}
		if c.UnhappyDays > s.cfg.MigrationDays {
			gone[c.ID] = true
			if c.Employed() {
				rep.Departures[c.JobID]++
			}
			s.migrations++
			s.rec.Record(now, events.CategoryCitizen, fmt.Sprintf("%s moved away after %d unhappy days", c.Name, c.UnhappyDays))
		}
	}
	if len(gone) > 0 {
		slog.Debug("citizens migrated", "count", len(gone), "day", s.day)
		s.removeIDs(gone)
	}

	rep.Stats = s.computeStats()
	return rep
}

// lifecycle ages everyone and applies births and deaths.
func (s *Simulation) lifecycle(now float64, departures map[string]int) {
	dead := map[string]bool{}
	var born []*Citizen
	for _, c := range s.citizens {
		c.Age += 1.0 / 365
		p := s.cfg.DeathBase + math.Max(0, c.Age-s.cfg.DeathAgeStart)*s.cfg.DeathAgeFactor
		if entropy.Chance(s.rng, p) {
			dead[c.ID] = true
			if c.Employed() {
				departures[c.JobID]++
			}
			s.deaths++
			s.rec.Record(now, events.CategoryCitizen, fmt.Sprintf("%s died aged %.0f", c.Name, c.Age))
			continue
		}
		if c.Age >= s.cfg.FertileAge[0] && c.Age <= s.cfg.FertileAge[1] && entropy.Chance(s.rng, s.cfg.BirthRate) {
			born = append(born, s.spawner.child(c))
		}
	}
	s.removeIDs(dead)
	for _, c := range born {
		s.add(c)
		s.births++
	}
}

// seekJobs gives unemployed working-age citizens a chance at the nearest
// opening, preferring commercial work for the college educated.
func (s *Simulation) seekJobs(in Input, hires map[string]int) {
	if len(in.Openings) == 0 {
		return
	}
	open := make(map[string]int, len(in.Openings))
	for id, n := range in.Openings {
		open[id] = n
	}
	var workplaces []world.Building
	for _, b := range in.Buildings {
		if b.Type.Employs() && open[b.ID] > 0 {
			workplaces = append(workplaces, b)
		}
	}
	if len(workplaces) == 0 {
		return
	}

	for _, c := range s.citizens {
		if c.Employed() || !s.workingAge(c) {
			continue
		}
		if !entropy.Chance(s.rng, s.cfg.JobSearchChance*(0.5+c.Personality.Ambition)) {
			continue
		}
		prefer := world.ClassIndustrial
		if c.Education >= EducationCollege {
			prefer = world.ClassCommercial
		}
		sort.SliceStable(workplaces, func(i, j int) bool {
			pi, pj := workplaces[i].Class() == prefer, workplaces[j].Class() == prefer
			if pi != pj {
				return pi
			}
			return workplaces[i].Position.DistSq(c.Home) < workplaces[j].Position.DistSq(c.Home)
		})
		for _, b := range workplaces {
			if open[b.ID] <= 0 {
				continue
			}
			open[b.ID]--
			hires[b.ID]++
			c.JobID = b.ID
			c.CommuteTime = b.Position.Dist(c.Home) / s.cfg.CommuteSpeed
			break
		}
	}
}

func (s *Simulation) updateNeeds(c *Citizen, in Input) {
	cfg := s.cfg
	n := &c.Needs

	jobless := false
	switch {
	case c.Employed():
		c.Wealth += cfg.Salaries[c.Education]
		c.UnemployedDays = 0
		n.Employment = 100
	case s.workingAge(c):
		jobless = true
		c.UnemployedDays++
		n.Employment = math.Max(0, 100-float64(c.UnemployedDays)*cfg.EmploymentDecay)
		n.Health -= cfg.JoblessStress
		n.Entertainment -= cfg.JoblessStress
	default:
		// Outside the workforce.
		c.UnemployedDays = 0
		n.Employment = 100
	}

	n.Food -= cfg.FoodDecay
	n.Entertainment -= cfg.EntertainmentDecay * (1.25 - 0.5*c.Personality.Sociability)
	n.Health -= cfg.HealthDecay
	if c.Wealth >= cfg.LivingCost {
		c.Wealth -= cfg.LivingCost
		n.Food += cfg.LivingFood
	} else {
		n.Food -= cfg.UnfedFoodLoss
	}
	// Jobless workers keep their savings for food.
	if !jobless && n.Entertainment < 60 && c.Wealth >= cfg.LeisureCost {
		c.Wealth -= cfg.LeisureCost
		n.Entertainment += cfg.LeisureGain
	}
	if n.Food < 20 {
		n.Health -= cfg.HungerHealthLoss
	} else if n.Food > 50 {
		n.Health += cfg.FedHealthGain
	}

	target := cfg.SafetyBase - cfg.DisasterPenalty*float64(in.Disasters) - cfg.ShortagePenalty*float64(in.Shortages)
	n.Safety += (target - n.Safety) * cfg.SafetyDrift

	n.clamp()
	c.Wealth = math.Max(0, c.Wealth)
	c.Happiness = mathx.Percent(n.Mean() + in.HappinessBonus)
}

func (s *Simulation) removeIDs(drop map[string]bool) {
	if len(drop) == 0 {
		return
	}
	kept := s.citizens[:0]
	for _, c := range s.citizens {
		if drop[c.ID] {
			delete(s.byID, c.ID)
			continue
		}
		kept = append(kept, c)
	}
	for i := len(kept); i < len(s.citizens); i++ {
		s.citizens[i] = nil
	}
	s.citizens = kept
}

// RefreshActivities re-derives every citizen's activity for the hour.
func (s *Simulation) RefreshActivities(hour float64) {
	for _, c := range s.citizens {
		c.Activity = ActivityAt(hour, c.Employed())
	}
}

func (s *Simulation) computeStats() Stats {
	st := Stats{
		Population: len(s.citizens),
		Births:     s.births,
		Deaths:     s.deaths,
		Migrations: s.migrations,
		Departures: s.departures,
	}
	if len(s.citizens) == 0 {
		return st
	}
	happiness := make([]float64, len(s.citizens))
	ages := make([]float64, len(s.citizens))
	wealth := make([]float64, len(s.citizens))
	workforce := 0
	for i, c := range s.citizens {
		happiness[i], ages[i], wealth[i] = c.Happiness, c.Age, c.Wealth
		if c.Employed() {
			st.Employed++
			workforce++
		} else if s.workingAge(c) {
			st.Unemployed++
			workforce++
		}
	}
	st.AverageHappiness = stat.Mean(happiness, nil)
	st.AverageAge = stat.Mean(ages, nil)
	st.AverageWealth = stat.Mean(wealth, nil)
	if workforce > 0 {
		st.UnemploymentRate = mathx.Percent(float64(st.Unemployed) / float64(workforce) * 100)
	}
	return st
}

// Citizen returns a copy of one citizen.
func (s *Simulation) Citizen(id string) (Citizen, bool) {
	c, ok := s.byID[id]
	if !ok {
		return Citizen{}, false
	}
	return *c, true
}

// Citizens returns copies of every citizen.
func (s *Simulation) Citizens() []Citizen {
	out := make([]Citizen, len(s.citizens))
	for i, c := range s.citizens {
		out[i] = *c
	}
	return out
}

// Population returns the number of residents.
func (s *Simulation) Population() int { return len(s.citizens) }

// Stats returns the current population snapshot.
func (s *Simulation) Stats() Stats { return s.computeStats() }

// DrainEvents returns citizen events since the last drain.
func (s *Simulation) DrainEvents() []events.Event { return s.rec.Drain() }
