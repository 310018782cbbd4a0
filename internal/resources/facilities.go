// Facility catalogs: capacity, pollution, efficiency, service radius and price
// for every constructible utility.
package resources

import (
	"strings"

	"github.com/talgya/mini-city/internal/spatial"
)

// PowerType is a kind of power plant.
type PowerType uint8

const (
	Coal PowerType = iota
	Gas
	Solar
	Wind
	Nuclear
)

// WaterType is a kind of water facility.
type WaterType uint8

const (
	Pump WaterType = iota
	Treatment
)

// WasteType is a kind of waste facility.
type WasteType uint8

const (
	Landfill WasteType = iota
	Recycling
	Incinerator
)

// PowerSpec is the catalog entry for a plant type.
type PowerSpec struct {
	Name       string
	Capacity   float64
	Pollution  float64 // 0..100 at full utilization
	Efficiency float64 // Fraction of allocated capacity actually delivered
	Cost       float64
}

// FacilitySpec is the catalog entry for a water or waste facility.
type FacilitySpec struct {
	Name      string
	Capacity  float64
	Radius    float64
	Pollution float64
	Cost      float64
}

var powerCatalog = map[PowerType]PowerSpec{
	Coal:    {Name: "coal", Capacity: 500, Pollution: 80, Efficiency: 0.85, Cost: 150_000},
	Gas:     {Name: "gas", Capacity: 400, Pollution: 50, Efficiency: 0.90, Cost: 120_000},
	Solar:   {Name: "solar", Capacity: 150, Pollution: 0, Efficiency: 0.70, Cost: 100_000},
	Wind:    {Name: "wind", Capacity: 200, Pollution: 0, Efficiency: 0.60, Cost: 90_000},
	Nuclear: {Name: "nuclear", Capacity: 1500, Pollution: 10, Efficiency: 0.95, Cost: 600_000},
}

var waterCatalog = map[WaterType]FacilitySpec{
	Pump:      {Name: "pump", Capacity: 200, Radius: 150, Pollution: 0, Cost: 40_000},
	Treatment: {Name: "treatment", Capacity: 600, Radius: 300, Pollution: 5, Cost: 150_000},
}

var wasteCatalog = map[WasteType]FacilitySpec{
	Landfill:    {Name: "landfill", Capacity: 150, Radius: 200, Pollution: 40, Cost: 30_000},
	Recycling:   {Name: "recycling", Capacity: 100, Radius: 150, Pollution: 10, Cost: 60_000},
	Incinerator: {Name: "incinerator", Capacity: 250, Radius: 250, Pollution: 60, Cost: 110_000},
}

// PowerSpecFor returns the catalog entry for t.
func PowerSpecFor(t PowerType) (PowerSpec, bool) {
	s, ok := powerCatalog[t]
	return s, ok
}

// WaterSpecFor returns the catalog entry for t.
func WaterSpecFor(t WaterType) (FacilitySpec, bool) {
	s, ok := waterCatalog[t]
	return s, ok
}

// WasteSpecFor returns the catalog entry for t.
func WasteSpecFor(t WasteType) (FacilitySpec, bool) {
	s, ok := wasteCatalog[t]
	return s, ok
}

func (t PowerType) String() string { return powerCatalog[t].Name }
func (t WaterType) String() string { return waterCatalog[t].Name }
func (t WasteType) String() string { return wasteCatalog[t].Name }

// ParsePowerType maps a catalog name to its type.
func ParsePowerType(s string) (PowerType, bool) {
	for t, spec := range powerCatalog {
		if spec.Name == strings.ToLower(s) {
			return t, true
		}
	}
	return 0, false
}

// ParseWaterType maps a catalog name to its type.
func ParseWaterType(s string) (WaterType, bool) {
	for t, spec := range waterCatalog {
		if spec.Name == strings.ToLower(s) {
			return t, true
		}
	}
	return 0, false
}

// ParseWasteType maps a catalog name to its type.
func ParseWasteType(s string) (WasteType, bool) {
	for t, spec := range wasteCatalog {
		if spec.Name == strings.ToLower(s) {
			return t, true
		}
	}
	return 0, false
}

// PowerPlant is a built plant.
type PowerPlant struct {
	ID          string       `json:"id"`
	Type        PowerType    `json:"type"`
	Position    spatial.Vec3 `json:"position"`
	Capacity    float64      `json:"capacity"`
	Pollution   float64      `json:"pollution"`
	Efficiency  float64      `json:"efficiency"`
	Output      float64      `json:"output"`      // Delivered this tick
	Utilization float64      `json:"utilization"` // Allocated / capacity
}

// WaterFacility is a built water facility.
type WaterFacility struct {
	ID        string       `json:"id"`
	Type      WaterType    `json:"type"`
	Position  spatial.Vec3 `json:"position"`
	Capacity  float64      `json:"capacity"`
	Radius    float64      `json:"radius"`
	Pollution float64      `json:"pollution"`
}

// WasteFacility is a built waste facility.
type WasteFacility struct {
	ID        string       `json:"id"`
	Type      WasteType    `json:"type"`
	Position  spatial.Vec3 `json:"position"`
	Capacity  float64      `json:"capacity"`
	Radius    float64      `json:"radius"`
	Pollution float64      `json:"pollution"`
}
