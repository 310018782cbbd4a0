// Package config aggregates every subsystem's tuning into one document that
// can be loaded from JSON over the built-in defaults.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/talgya/mini-city/internal/citizens"
	"github.com/talgya/mini-city/internal/disaster"
	"github.com/talgya/mini-city/internal/economy"
	"github.com/talgya/mini-city/internal/policy"
	"github.com/talgya/mini-city/internal/resources"
	"github.com/talgya/mini-city/internal/traffic"
	"github.com/talgya/mini-city/internal/weather"
	"github.com/talgya/mini-city/internal/world"
)

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Sim holds driver settings that belong to no single subsystem.
type Sim struct {
	Seed                  int64    `json:"seed"`          // 0 = random
	TimeStep              float64  `json:"time_step"`     // Time units per tick
	TickInterval          string   `json:"tick_interval"` // Wall-clock duration string like "100ms"
	Speed                 float64  `json:"speed"`
	EventLogCap           int      `json:"event_log_cap"`
	ResidentsPerHousehold int      `json:"residents_per_household"`
	SpatialIndex          string   `json:"spatial_index"` // "grid" or "linear"
	StarterPower          []string `json:"starter_power"` // Plant types built free at startup
	StarterWater          []string `json:"starter_water"`
	StarterWaste          []string `json:"starter_waste"`
	AdaptiveSignals       bool     `json:"adaptive_signals"`
}

// Tuning is the whole simulation configuration.
type Tuning struct {
	Sim       Sim              `json:"sim"`
	World     world.GenConfig  `json:"world"`
	Weather   weather.Config   `json:"weather"`
	Resources resources.Config `json:"resources"`
	Policy    policy.Config    `json:"policy"`
	Disaster  disaster.Config  `json:"disaster"`
	Traffic   traffic.Config   `json:"traffic"`
	Citizens  citizens.Config  `json:"citizens"`
	Economy   economy.Config   `json:"economy"`
}

// Default returns the stock tuning of every subsystem.
func Default() *Tuning {
	return &Tuning{
		Sim: Sim{
			TimeStep:              1,
			TickInterval:          "100ms",
			Speed:                 1,
			EventLogCap:           1000,
			ResidentsPerHousehold: 3,
			SpatialIndex:          "grid",
			StarterPower:          []string{"coal", "solar"},
			StarterWater:          []string{"treatment"},
			StarterWaste:          []string{"landfill"},
			AdaptiveSignals:       true,
		},
		World:     world.DefaultGenConfig(),
		Weather:   weather.DefaultConfig(),
		Resources: resources.DefaultConfig(),
		Policy:    policy.DefaultConfig(),
		Disaster:  disaster.DefaultConfig(),
		Traffic:   traffic.DefaultConfig(),
		Citizens:  citizens.DefaultConfig(),
		Economy:   economy.DefaultConfig(),
	}
}

// Load reads a JSON tuning file over the defaults, so a file only needs the
// keys it changes.
func Load(path string) (*Tuning, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate rejects settings no subsystem can run with.
func (t *Tuning) Validate() error {
	if t.Sim.TimeStep <= 0 {
		return fmt.Errorf("sim.time_step must be positive, got %g", t.Sim.TimeStep)
	}
	if _, err := time.ParseDuration(t.Sim.TickInterval); err != nil {
		return fmt.Errorf("invalid sim.tick_interval %q: %w", t.Sim.TickInterval, err)
	}
	if t.Sim.Speed < 0 {
		return fmt.Errorf("sim.speed must be non-negative, got %g", t.Sim.Speed)
	}
	if t.Sim.ResidentsPerHousehold < 1 {
		return fmt.Errorf("sim.residents_per_household must be at least 1, got %d", t.Sim.ResidentsPerHousehold)
	}
	switch t.Sim.SpatialIndex {
	case "grid", "linear":
	default:
		return fmt.Errorf("sim.spatial_index must be grid or linear, got %q", t.Sim.SpatialIndex)
	}
	for _, name := range t.Sim.StarterPower {
		if _, ok := resources.ParsePowerType(name); !ok {
			return fmt.Errorf("unknown starter power plant %q", name)
		}
	}
	for _, name := range t.Sim.StarterWater {
		if _, ok := resources.ParseWaterType(name); !ok {
			return fmt.Errorf("unknown starter water facility %q", name)
		}
	}
	for _, name := range t.Sim.StarterWaste {
		if _, ok := resources.ParseWasteType(name); !ok {
			return fmt.Errorf("unknown starter waste facility %q", name)
		}
	}

	if t.World.Blocks < 1 || t.World.BlockSize <= 0 {
		return errors.New("world needs at least one block of positive size")
	}

	weights := 0.0
	for _, c := range t.Weather.Conditions {
		if c.Weight < 0 || c.MinDuration > c.MaxDuration {
			return fmt.Errorf("weather condition %s is malformed", c.Condition)
		}
		weights += c.Weight
	}
	if weights <= 0 {
		return errors.New("weather conditions need a positive total weight")
	}

	switch t.Resources.Allocation {
	case resources.RegistrationOrder, resources.CleanestFirst:
	default:
		return fmt.Errorf("unknown power allocation policy %q", t.Resources.Allocation)
	}

	seen := make(map[string]bool, len(t.Policy.Catalog))
	for _, p := range t.Policy.Catalog {
		if p.ID == "" || seen[p.ID] {
			return fmt.Errorf("policy catalog has a missing or duplicate id %q", p.ID)
		}
		seen[p.ID] = true
	}

	for name, rate := range t.Disaster.BaseRates {
		if _, ok := disaster.ParseType(name); !ok {
			return fmt.Errorf("unknown disaster type %q", name)
		}
		if rate < 0 {
			return fmt.Errorf("disaster rate for %s must be non-negative", name)
		}
	}

	if t.Traffic.MaxVehicles < 0 {
		return fmt.Errorf("traffic.max_vehicles must be non-negative, got %d", t.Traffic.MaxVehicles)
	}
	if t.Traffic.Signals.MinGreen > t.Traffic.Signals.MaxGreen {
		return errors.New("traffic signal min_green exceeds max_green")
	}

	if t.Citizens.WorkingAge[0] > t.Citizens.WorkingAge[1] {
		return errors.New("citizens.working_age bounds are reversed")
	}

	if t.Economy.TaxRate < 0 || t.Economy.TaxRate > t.Economy.MaxTaxRate {
		return fmt.Errorf("economy.tax_rate %g outside [0, %g]", t.Economy.TaxRate, t.Economy.MaxTaxRate)
	}
	if t.Economy.DaysPerMonth < 1 {
		return errors.New("economy.days_per_month must be at least 1")
	}
	return nil
}

// TickDuration is the wall-clock interval between ticks at speed 1.
func (t *Tuning) TickDuration() time.Duration {
	d, err := time.ParseDuration(t.Sim.TickInterval)
	if err != nil || d <= 0 {
		return 100 * time.Millisecond
	}
	return d
}
