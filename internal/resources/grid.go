// Package resources tracks power, water and waste supply against per-building
// demand, and derives coverage, shortage flags and pollution.
package resources

import (
	"fmt"
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/talgya/mini-city/internal/events"
	"github.com/talgya/mini-city/internal/ids"
	"github.com/talgya/mini-city/internal/mathx"
	"github.com/talgya/mini-city/internal/result"
	"github.com/talgya/mini-city/internal/spatial"
	"github.com/talgya/mini-city/internal/world"
)

// AllocationPolicy decides which plants serve demand first.
type AllocationPolicy string

const (
	// RegistrationOrder fills plants in the order they were built.
	RegistrationOrder AllocationPolicy = "registration_order"
	// CleanestFirst fills the lowest-pollution plants first.
	CleanestFirst AllocationPolicy = "cleanest_first"
)

// Demand is a building's draw on each resource.
type Demand struct {
	Power float64 `json:"power"`
	Water float64 `json:"water"`
	Waste float64 `json:"waste"`
}

// Config holds demand tables and the allocation policy.
type Config struct {
	ClassBase   map[string]Demand  `json:"class_base"`  // Keyed by building class name
	Multipliers map[string]float64 `json:"multipliers"` // Keyed by building type name
	Allocation  AllocationPolicy   `json:"allocation"`
}

// DefaultConfig returns the stock demand tables.
func DefaultConfig() Config {
	return Config{
		ClassBase: map[string]Demand{
			world.ClassResidential.String(): {Power: 5, Water: 3, Waste: 2},
			world.ClassCommercial.String():  {Power: 15, Water: 8, Waste: 5},
			world.ClassIndustrial.String():  {Power: 40, Water: 20, Waste: 15},
		},
		Multipliers: map[string]float64{
			world.House.String():     1,
			world.Apartment.String(): 3,
			world.Highrise.String():  6,
			world.Shop.String():      1,
			world.Office.String():    2,
			world.Mall.String():      4,
			world.Workshop.String():  1,
			world.Factory.String():   2.5,
			world.Warehouse.String(): 0.8,
		},
		Allocation: RegistrationOrder,
	}
}

// DemandFor looks up the demand of a building type.
func (c Config) DemandFor(t world.BuildingType) Demand {
	base := c.ClassBase[t.Class().String()]
	mult, ok := c.Multipliers[t.String()]
	if !ok {
		mult = 1
	}
	return Demand{Power: base.Power * mult, Water: base.Water * mult, Waste: base.Waste * mult}
}

type consumer struct {
	id       string
	position spatial.Vec3
	demand   Demand

	waterCovered bool
	wasteCovered bool
}

// Stats is the per-tick snapshot.
type Stats struct {
	Buildings int `json:"buildings"`

	PowerDemand   float64 `json:"power_demand"`
	PowerCapacity float64 `json:"power_capacity"`
	PowerProduced float64 `json:"power_produced"`
	PowerSurplus  float64 `json:"power_surplus"`
	PowerShortage bool    `json:"power_shortage"`
	PowerCoverage float64 `json:"power_coverage"`

	WaterDemand   float64 `json:"water_demand"`
	WaterCapacity float64 `json:"water_capacity"`
	WaterSurplus  float64 `json:"water_surplus"`
	WaterShortage bool    `json:"water_shortage"`
	WaterCoverage float64 `json:"water_coverage"`

	WasteDemand   float64 `json:"waste_demand"`
	WasteCapacity float64 `json:"waste_capacity"`
	WasteSurplus  float64 `json:"waste_surplus"`
	WasteShortage bool    `json:"waste_shortage"`
	WasteCoverage float64 `json:"waste_coverage"`

	Pollution       float64 `json:"pollution"`
	PowerPlants     int     `json:"power_plants"`
	WaterFacilities int     `json:"water_facilities"`
	WasteFacilities int     `json:"waste_facilities"`
}

// Grid owns utility facilities and the per-building demand registry.
type Grid struct {
	cfg   Config
	alloc ids.Allocator

	consumers []*consumer
	byID      map[string]*consumer

	plants []*PowerPlant
	water  []*WaterFacility
	waste  []*WasteFacility

	pollutionReduction float64
	stats              Stats
	rec                events.Recorder
	now                float64
}

// NewGrid creates an empty grid.
func NewGrid(cfg Config, alloc ids.Allocator) *Grid {
	if cfg.ClassBase == nil {
		cfg = DefaultConfig()
	}
	if cfg.Allocation == "" {
		cfg.Allocation = RegistrationOrder
	}
	return &Grid{cfg: cfg, alloc: alloc, byID: make(map[string]*consumer)}
}

// Register records a building's demand from the type table.
func (g *Grid) Register(b world.Building) {
	g.RegisterDemand(b.ID, b.Position, g.cfg.DemandFor(b.Type))
}

// RegisterDemand records an explicit demand. Re-registering replaces it.
func (g *Grid) RegisterDemand(id string, pos spatial.Vec3, d Demand) {
	if c, ok := g.byID[id]; ok {
		c.position, c.demand = pos, d
		return
	}
	c := &consumer{id: id, position: pos, demand: d}
	g.consumers = append(g.consumers, c)
	g.byID[id] = c
}

// Unregister drops a building. Unknown IDs are ignored.
func (g *Grid) Unregister(id string) {
	if _, ok := g.byID[id]; !ok {
		return
	}
	delete(g.byID, id)
	for i, c := range g.consumers {
		if c.id == id {
			g.consumers = append(g.consumers[:i], g.consumers[i+1:]...)
			break
		}
	}
}

// BuildPowerPlant constructs a catalog plant.
func (g *Grid) BuildPowerPlant(t PowerType, pos spatial.Vec3) (string, result.Result) {
	spec, ok := PowerSpecFor(t)
	if !ok {
		return "", result.Fail("unknown power plant type %d", t)
	}
	id := g.AddPowerPlant(PowerPlant{
		Type:       t,
		Position:   pos,
		Capacity:   spec.Capacity,
		Pollution:  spec.Pollution,
		Efficiency: spec.Efficiency,
	})
	return id, result.Ok("%s power plant built", spec.Name)
}

// AddPowerPlant registers a plant with explicit parameters and returns its ID.
func (g *Grid) AddPowerPlant(p PowerPlant) string {
	p.ID = g.alloc.Next("pwr")
	g.plants = append(g.plants, &p)
	g.rec.Record(g.now, events.CategoryResource, fmt.Sprintf("%s plant online (%.0f capacity)", p.Type, p.Capacity))
	return p.ID
}

// BuildWaterFacility constructs a catalog water facility.
func (g *Grid) BuildWaterFacility(t WaterType, pos spatial.Vec3) (string, result.Result) {
	spec, ok := WaterSpecFor(t)
	if !ok {
		return "", result.Fail("unknown water facility type %d", t)
	}
	f := &WaterFacility{
		ID:        g.alloc.Next("wtr"),
		Type:      t,
		Position:  pos,
		Capacity:  spec.Capacity,
		Radius:    spec.Radius,
		Pollution: spec.Pollution,
	}
	g.water = append(g.water, f)
	return f.ID, result.Ok("%s water facility built", spec.Name)
}

// BuildWasteFacility constructs a catalog waste facility.
func (g *Grid) BuildWasteFacility(t WasteType, pos spatial.Vec3) (string, result.Result) {
	spec, ok := WasteSpecFor(t)
	if !ok {
		return "", result.Fail("unknown waste facility type %d", t)
	}
	f := &WasteFacility{
		ID:        g.alloc.Next("wst"),
		Type:      t,
		Position:  pos,
		Capacity:  spec.Capacity,
		Radius:    spec.Radius,
		Pollution: spec.Pollution,
	}
	g.waste = append(g.waste, f)
	return f.ID, result.Ok("%s waste facility built", spec.Name)
}

// Demolish removes any facility by ID.
func (g *Grid) Demolish(id string) result.Result {
	for i, p := range g.plants {
		if p.ID == id {
			g.plants = append(g.plants[:i], g.plants[i+1:]...)
			return result.Ok("power plant %s demolished", id)
		}
	}
	for i, f := range g.water {
		if f.ID == id {
			g.water = append(g.water[:i], g.water[i+1:]...)
			return result.Ok("water facility %s demolished", id)
		}
	}
	for i, f := range g.waste {
		if f.ID == id {
			g.waste = append(g.waste[:i], g.waste[i+1:]...)
			return result.Ok("waste facility %s demolished", id)
		}
	}
	return result.Fail("no facility %s", id)
}

// SetPollutionReduction applies a policy reduction in percent.
func (g *Grid) SetPollutionReduction(pct float64) {
	g.pollutionReduction = mathx.Percent(pct)
}

// Update recomputes supply, allocation, coverage and pollution.
func (g *Grid) Update(now float64) Stats {
	g.now = now
	var st Stats
	st.Buildings = len(g.consumers)
	st.PowerPlants = len(g.plants)
	st.WaterFacilities = len(g.water)
	st.WasteFacilities = len(g.waste)

	for _, c := range g.consumers {
		st.PowerDemand += c.demand.Power
		st.WaterDemand += c.demand.Water
		st.WasteDemand += c.demand.Waste
	}

	st.PowerProduced, st.PowerCapacity = g.allocatePower(st.PowerDemand)
	for _, f := range g.water {
		st.WaterCapacity += f.Capacity
	}
	for _, f := range g.waste {
		st.WasteCapacity += f.Capacity
	}

	st.PowerSurplus = st.PowerCapacity - st.PowerDemand
	st.WaterSurplus = st.WaterCapacity - st.WaterDemand
	st.WasteSurplus = st.WasteCapacity - st.WasteDemand
	st.PowerShortage = st.PowerSurplus < 0
	st.WaterShortage = st.WaterSurplus < 0
	st.WasteShortage = st.WasteSurplus < 0

	if len(g.consumers) > 0 {
		if st.PowerDemand > 0 {
			st.PowerCoverage = mathx.Percent(st.PowerCapacity / st.PowerDemand * 100)
		} else {
			st.PowerCoverage = 100
		}
		waterCovered, wasteCovered := g.computeCoverage()
		st.WaterCoverage = mathx.Percent(float64(waterCovered) / float64(len(g.consumers)) * 100)
		st.WasteCoverage = mathx.Percent(float64(wasteCovered) / float64(len(g.consumers)) * 100)
	}

	st.Pollution = g.pollution()

	if st.PowerShortage && !g.stats.PowerShortage {
		g.rec.Record(now, events.CategoryResource, fmt.Sprintf("power shortage: demand %.0f exceeds capacity %.0f", st.PowerDemand, st.PowerCapacity))
		slog.Debug("power shortage", "demand", st.PowerDemand, "capacity", st.PowerCapacity)
	}
	if st.WaterShortage && !g.stats.WaterShortage {
		g.rec.Record(now, events.CategoryResource, "water shortage")
	}

	g.stats = st
	return st
}

// allocatePower fills plants greedily until demand is met or capacity runs out.
// The order is explicit policy, not an accident of storage.
func (g *Grid) allocatePower(demand float64) (produced, capacity float64) {
	order := make([]*PowerPlant, len(g.plants))
	copy(order, g.plants)
	if g.cfg.Allocation == CleanestFirst {
		sort.SliceStable(order, func(i, j int) bool { return order[i].Pollution < order[j].Pollution })
	}

	remaining := demand
	for _, p := range order {
		capacity += p.Capacity
		allocated := 0.0
		if remaining > 0 {
			allocated = min(remaining, p.Capacity)
			remaining -= allocated
		}
		p.Output = allocated * p.Efficiency
		if p.Capacity > 0 {
			p.Utilization = allocated / p.Capacity
		} else {
			p.Utilization = 0
		}
		produced += p.Output
	}
	return produced, capacity
}

// computeCoverage marks each building covered when at least one facility of
// the kind has it in range. The first match wins.
func (g *Grid) computeCoverage() (water, waste int) {
	for _, c := range g.consumers {
		c.waterCovered, c.wasteCovered = false, false
		for _, f := range g.water {
			if c.position.Dist(f.Position) <= f.Radius {
				c.waterCovered = true
				break
			}
		}
		for _, f := range g.waste {
			if c.position.Dist(f.Position) <= f.Radius {
				c.wasteCovered = true
				break
			}
		}
		if c.waterCovered {
			water++
		}
		if c.wasteCovered {
			waste++
		}
	}
	return water, waste
}

// pollution is the capacity-weighted mean of utilization-scaled plant
// pollution, pooled with raw water and waste facility pollution over the
// facility count.
func (g *Grid) pollution() float64 {
	n := len(g.plants) + len(g.water) + len(g.waste)
	if n == 0 {
		return 0
	}

	total := 0.0
	if len(g.plants) > 0 {
		values := make([]float64, len(g.plants))
		weights := make([]float64, len(g.plants))
		weightSum := 0.0
		for i, p := range g.plants {
			values[i] = p.Pollution * p.Utilization
			weights[i] = p.Capacity
			weightSum += p.Capacity
		}
		if weightSum == 0 {
			weights = nil
		}
		total += stat.Mean(values, weights) * float64(len(g.plants))
	}
	for _, f := range g.water {
		total += f.Pollution
	}
	for _, f := range g.waste {
		total += f.Pollution
	}

	avg := total / float64(n)
	return mathx.Percent(avg * (1 - g.pollutionReduction/100))
}

// Covered reports the coverage flags of a building.
func (g *Grid) Covered(id string) (water, waste bool) {
	c, ok := g.byID[id]
	if !ok {
		return false, false
	}
	return c.waterCovered, c.wasteCovered
}

// PowerPlants returns copies of the plants.
func (g *Grid) PowerPlants() []PowerPlant {
	out := make([]PowerPlant, len(g.plants))
	for i, p := range g.plants {
		out[i] = *p
	}
	return out
}

// WaterFacilities returns copies of the water facilities.
func (g *Grid) WaterFacilities() []WaterFacility {
	out := make([]WaterFacility, len(g.water))
	for i, f := range g.water {
		out[i] = *f
	}
	return out
}

// WasteFacilities returns copies of the waste facilities.
func (g *Grid) WasteFacilities() []WasteFacility {
	out := make([]WasteFacility, len(g.waste))
	for i, f := range g.waste {
		out[i] = *f
	}
	return out
}

// Stats returns the last snapshot.
func (g *Grid) Stats() Stats { return g.stats }

// DrainEvents returns resource events since the last drain.
func (g *Grid) DrainEvents() []events.Event { return g.rec.Drain() }
