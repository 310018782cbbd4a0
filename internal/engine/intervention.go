package engine

import (
	"log/slog"
	"math"

	"github.com/dustin/go-humanize"

	"github.com/talgya/mini-city/internal/disaster"
	"github.com/talgya/mini-city/internal/resources"
	"github.com/talgya/mini-city/internal/result"
	"github.com/talgya/mini-city/internal/spatial"
	"github.com/talgya/mini-city/internal/traffic"
	"github.com/talgya/mini-city/internal/world"
)

// constructionCost scales a base price by the active policies.
func (s *Simulation) constructionCost(base float64) float64 {
	mult := s.policies.Effects().ConstructionCostMultiplier
	if mult == 0 {
		mult = 1
	}
	return base * mult
}

// ConstructBuilding pays for and places a building, moving in residents or
// opening a business as its type dictates.
func (s *Simulation) ConstructBuilding(t world.BuildingType, pos spatial.Vec3) (string, result.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cost := s.constructionCost(t.ConstructionCost())
	if r := s.economy.Spend(cost, t.String()); !r.OK {
		return "", r
	}
	b := s.place(t, pos)
	s.refresh()
	return b.ID, result.Ok("%s %s built for $%s", t, b.ID, humanize.Commaf(math.Round(cost)))
}

// place registers a new building with every subsystem that tracks it. It
// does not charge for it.
func (s *Simulation) place(t world.BuildingType, pos spatial.Vec3) world.Building {
	b := world.Building{ID: s.alloc.Next("bld"), Type: t, Position: pos}
	s.city.AddBuilding(b)
	s.grid.Register(b)

	if n := t.Households() * s.cfg.Sim.ResidentsPerHousehold; n > 0 {
		s.citizens.SpawnCitizens(b, n)
	}
	if t.Employs() {
		s.economy.OpenBusiness(b)
	}
	slog.Debug("building placed", "id", b.ID, "type", t, "x", pos.X, "z", pos.Z)
	return b
}

// BuildPowerPlant pays for and builds a plant of the named type.
func (s *Simulation) BuildPowerPlant(kind string, pos spatial.Vec3) (string, result.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := resources.ParsePowerType(kind)
	if !ok {
		return "", result.Fail("unknown power plant type %q", kind)
	}
	spec, _ := resources.PowerSpecFor(t)
	if r := s.economy.Spend(s.constructionCost(spec.Cost), spec.Name+" power plant"); !r.OK {
		return "", r
	}
	id, r := s.grid.BuildPowerPlant(t, pos)
	s.refresh()
	return id, r
}

// BuildWaterFacility pays for and builds a water facility of the named type.
func (s *Simulation) BuildWaterFacility(kind string, pos spatial.Vec3) (string, result.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := resources.ParseWaterType(kind)
	if !ok {
		return "", result.Fail("unknown water facility type %q", kind)
	}
	spec, _ := resources.WaterSpecFor(t)
	if r := s.economy.Spend(s.constructionCost(spec.Cost), spec.Name+" water facility"); !r.OK {
		return "", r
	}
	id, r := s.grid.BuildWaterFacility(t, pos)
	s.refresh()
	return id, r
}

// BuildWasteFacility pays for and builds a waste facility of the named type.
func (s *Simulation) BuildWasteFacility(kind string, pos spatial.Vec3) (string, result.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := resources.ParseWasteType(kind)
	if !ok {
		return "", result.Fail("unknown waste facility type %q", kind)
	}
	spec, _ := resources.WasteSpecFor(t)
	if r := s.economy.Spend(s.constructionCost(spec.Cost), spec.Name+" waste facility"); !r.OK {
		return "", r
	}
	id, r := s.grid.BuildWasteFacility(t, pos)
	s.refresh()
	return id, r
}

// DemolishBuilding tears down a building. Its residents leave the city and
// its business closes, putting its workers out of a job.
func (s *Simulation) DemolishBuilding(id string) result.Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.city.Building(id)
	if !ok {
		return result.Fail("unknown building %q", id)
	}
	// Residents working elsewhere free their positions.
	for _, c := range s.citizens.Citizens() {
		if c.HomeID == id && c.JobID != "" && c.JobID != id {
			s.economy.FireAt(c.JobID)
		}
	}
	evicted := s.citizens.Evict(id)
	laid := 0
	if _, ok := s.economy.CloseAt(id); ok {
		laid = s.citizens.LayOff(id)
	}
	s.grid.Unregister(id)
	s.city.RemoveBuilding(id)
	slog.Debug("building demolished", "id", id, "type", b.Type, "evicted", evicted, "laid_off", laid)
	s.refresh()
	return result.Ok("%s %s demolished: %d residents left, %d jobs lost", b.Type, id, evicted, laid)
}

// DemolishFacility removes a utility facility. Nothing is refunded.
func (s *Simulation) DemolishFacility(id string) result.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.grid.Demolish(id)
	s.refresh()
	return r
}

// EnactPolicy activates a policy and pays its implementation cost.
func (s *Simulation) EnactPolicy(id string) result.Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	cost, r := s.policies.Enact(id, s.economy.Funds())
	if !r.OK {
		return r
	}
	s.economy.Spend(cost, "policy "+id)
	s.refresh()
	return r
}

// RepealPolicy deactivates a policy.
func (s *Simulation) RepealPolicy(id string) result.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.policies.Repeal(id)
	s.refresh()
	return r
}

// AdjustPolicySupport nudges public support for a policy.
func (s *Simulation) AdjustPolicySupport(id string, delta float64) result.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.policies.AdjustSupport(id, delta)
	s.refresh()
	return r
}

// TakeLoan borrows from the bank.
func (s *Simulation) TakeLoan(amount, annualRate float64, months int) result.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.economy.TakeLoan(amount, annualRate, months)
	s.refresh()
	return r
}

// IssueBond sells a city bond.
func (s *Simulation) IssueBond(amount, annualRate float64, months int) result.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.economy.IssueBond(amount, annualRate, months)
	s.refresh()
	return r
}

// SetTaxRate changes the business tax rate.
func (s *Simulation) SetTaxRate(rate float64) result.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.economy.SetTaxRate(rate)
	s.refresh()
	return r
}

// Hire gives a job at a business to the nearest unemployed working-age
// resident.
func (s *Simulation) Hire(businessID string) result.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	biz, ok := s.economy.Business(businessID)
	if !ok {
		return result.Fail("unknown business %q", businessID)
	}
	if biz.Openings() == 0 {
		return result.Fail("%s has no remaining capacity (%d/%d)", biz.ID, biz.Employees, biz.Capacity)
	}
	b, ok := s.city.Building(biz.BuildingID)
	if !ok {
		return result.Fail("%s has no building", biz.ID)
	}
	citizen, ok := s.citizens.Assign(b)
	if !ok {
		return result.Fail("no unemployed resident can work at %s", biz.ID)
	}
	r := s.economy.Hire(businessID)
	slog.Debug("admin hire", "business", biz.ID, "citizen", citizen)
	s.refresh()
	return r
}

// Fire lets one employee of a business go.
func (s *Simulation) Fire(businessID string) result.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	biz, ok := s.economy.Business(businessID)
	if !ok {
		return result.Fail("unknown business %q", businessID)
	}
	r := s.economy.Fire(businessID)
	if !r.OK {
		return r
	}
	if citizen, ok := s.citizens.Dismiss(biz.BuildingID); ok {
		slog.Debug("admin fire", "business", biz.ID, "citizen", citizen)
	}
	s.refresh()
	return r
}

// SpawnVehicle puts a vehicle of the named class on a road.
func (s *Simulation) SpawnVehicle(class, roadID string) (string, result.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := traffic.ParseClass(class)
	if !ok {
		return "", result.Fail("unknown vehicle class %q", class)
	}
	id, r := s.traffic.SpawnOnRoad(roadID, c)
	s.refresh()
	return id, r
}

// TriggerDisaster starts a disaster on a road.
func (s *Simulation) TriggerDisaster(kind, roadID, severity string) (string, result.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := disaster.ParseType(kind)
	if !ok {
		return "", result.Fail("unknown disaster type %q", kind)
	}
	sev, ok := world.ParseSeverity(severity)
	if !ok {
		return "", result.Fail("unknown severity %q", severity)
	}
	road, ok := s.city.Road(roadID)
	if !ok {
		return "", result.Fail("unknown road %q", roadID)
	}
	id, r := s.disasters.Trigger(t, road, sev)
	s.refresh()
	return id, r
}

// LeaveCity removes a citizen and frees their job.
func (s *Simulation) LeaveCity(citizenID string) result.Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.citizens.Citizen(citizenID)
	if !ok {
		return result.Fail("unknown citizen %q", citizenID)
	}
	r := s.citizens.LeaveCity(citizenID)
	if r.OK && c.JobID != "" {
		s.economy.FireAt(c.JobID)
	}
	s.refresh()
	return r
}
