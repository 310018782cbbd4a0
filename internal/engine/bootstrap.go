package engine

import (
	"log/slog"

	"github.com/talgya/mini-city/internal/config"
	"github.com/talgya/mini-city/internal/ids"
	"github.com/talgya/mini-city/internal/resources"
	"github.com/talgya/mini-city/internal/spatial"
	"github.com/talgya/mini-city/internal/world"
)

// Signal phase lengths for generated intersections, in time units.
const (
	signalRed    = 30
	signalGreen  = 30
	signalYellow = 4
)

// Bootstrap generates a city, constructs every planned lot free of charge,
// builds the starter utilities and signals the avenue intersections.
func Bootstrap(cfg *config.Tuning, alloc ids.Allocator) *Simulation {
	gen := cfg.World
	if gen.Seed == 0 {
		gen.Seed = cfg.Sim.Seed
	}
	city, lots := world.Generate(gen, alloc)
	s := NewSimulation(cfg, city, alloc)

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, lot := range lots {
		s.place(lot.Type, lot.Position)
	}

	centre := spatial.Vec3{X: city.Width / 2, Z: city.Depth / 2}
	for i, name := range cfg.Sim.StarterPower {
		if t, ok := resources.ParsePowerType(name); ok {
			s.grid.BuildPowerPlant(t, centre.Add(spatial.Vec3{X: float64(i) * 20}))
		}
	}
	for _, name := range cfg.Sim.StarterWater {
		if t, ok := resources.ParseWaterType(name); ok {
			s.grid.BuildWaterFacility(t, centre)
		}
	}
	for _, name := range cfg.Sim.StarterWaste {
		if t, ok := resources.ParseWasteType(name); ok {
			s.grid.BuildWasteFacility(t, centre)
		}
	}

	signals := 0
	step := gen.BlockSize * float64(max(gen.AvenueEvery, 1))
	for x := 0.0; step > 0 && x <= city.Width; x += step {
		for z := 0.0; z <= city.Depth; z += step {
			if _, r := s.traffic.AddSignal(spatial.Vec3{X: x, Z: z}, signalRed, signalGreen, signalYellow, cfg.Sim.AdaptiveSignals); r.OK {
				signals++
			}
		}
	}

	s.refresh()
	slog.Info("city bootstrapped",
		"roads", len(city.Roads()),
		"buildings", len(lots),
		"population", s.citizens.Population(),
		"businesses", len(s.economy.Businesses()),
		"signals", signals,
	)
	return s
}
