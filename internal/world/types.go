// Package world holds the city's building registry and road network, the
// shared spatial layout every subsystem reads snapshots of.
package world

import (
	"strings"

	"github.com/talgya/mini-city/internal/spatial"
)

// BuildingClass groups building types for demand and zoning rules.
type BuildingClass uint8

const (
	ClassResidential BuildingClass = iota
	ClassCommercial
	ClassIndustrial
)

func (c BuildingClass) String() string {
	switch c {
	case ClassResidential:
		return "residential"
	case ClassCommercial:
		return "commercial"
	case ClassIndustrial:
		return "industrial"
	default:
		return "unknown"
	}
}

// BuildingType is a concrete constructible building.
type BuildingType uint8

const (
	House BuildingType = iota
	Apartment
	Highrise
	Shop
	Office
	Mall
	Workshop
	Factory
	Warehouse
)

var buildingTypeNames = [...]string{
	House:     "house",
	Apartment: "apartment",
	Highrise:  "highrise",
	Shop:      "shop",
	Office:    "office",
	Mall:      "mall",
	Workshop:  "workshop",
	Factory:   "factory",
	Warehouse: "warehouse",
}

func (t BuildingType) String() string {
	if int(t) < len(buildingTypeNames) {
		return buildingTypeNames[t]
	}
	return "unknown"
}

// ParseBuildingType maps a name like "apartment" to its type.
func ParseBuildingType(s string) (BuildingType, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range buildingTypeNames {
		if name == s {
			return BuildingType(i), true
		}
	}
	return 0, false
}

// Class returns the zoning class of the type.
func (t BuildingType) Class() BuildingClass {
	switch t {
	case House, Apartment, Highrise:
		return ClassResidential
	case Shop, Office, Mall:
		return ClassCommercial
	default:
		return ClassIndustrial
	}
}

// Employs reports whether the building hosts a business.
func (t BuildingType) Employs() bool {
	return t.Class() != ClassResidential
}

// Households is the number of households that move in when the building is
// constructed.
func (t BuildingType) Households() int {
	switch t {
	case House:
		return 4
	case Apartment:
		return 12
	case Highrise:
		return 30
	default:
		return 0
	}
}

// JobCapacity is the maximum headcount of a business in the building.
func (t BuildingType) JobCapacity() int {
	switch t {
	case Shop:
		return 10
	case Office:
		return 40
	case Mall:
		return 60
	case Workshop:
		return 15
	case Factory:
		return 80
	case Warehouse:
		return 25
	default:
		return 0
	}
}

// ConstructionCost is the base price before policy multipliers.
func (t BuildingType) ConstructionCost() float64 {
	switch t {
	case House:
		return 8_000
	case Apartment:
		return 30_000
	case Highrise:
		return 90_000
	case Shop:
		return 12_000
	case Office:
		return 45_000
	case Mall:
		return 80_000
	case Workshop:
		return 15_000
	case Factory:
		return 60_000
	case Warehouse:
		return 20_000
	default:
		return 0
	}
}

// Building is a constructed building.
type Building struct {
	ID       string       `json:"id"`
	Type     BuildingType `json:"type"`
	Position spatial.Vec3 `json:"position"`
}

// Class is shorthand for b.Type.Class().
func (b Building) Class() BuildingClass { return b.Type.Class() }

// Road is a straight multi-lane segment. Traffic flows from Start to End and back.
type Road struct {
	ID         string       `json:"id"`
	Start      spatial.Vec3 `json:"start"`
	End        spatial.Vec3 `json:"end"`
	Lanes      int          `json:"lanes"`
	SpeedLimit float64      `json:"speed_limit"` // World units per time unit
}

// Length returns the road length.
func (r Road) Length() float64 { return r.Start.Dist(r.End) }

// PointAt returns the point a fraction t along the road.
func (r Road) PointAt(t float64) spatial.Vec3 { return spatial.Lerp(r.Start, r.End, t) }

// Lot is a planned building site produced by generation.
type Lot struct {
	Type     BuildingType `json:"type"`
	Position spatial.Vec3 `json:"position"`
}

// Severity grades accidents and disasters.
type Severity uint8

const (
	Minor Severity = iota
	Moderate
	Severe
)

var severityNames = [...]string{"minor", "moderate", "severe"}

func (s Severity) String() string {
	if int(s) < len(severityNames) {
		return severityNames[s]
	}
	return "unknown"
}

// ParseSeverity maps "minor", "moderate" or "severe" to a severity.
func ParseSeverity(s string) (Severity, bool) {
	for i, n := range severityNames {
		if n == s {
			return Severity(i), true
		}
	}
	return 0, false
}

// LanesBlocked returns how many of a road's lanes an incident of this severity
// closes: one, two, or all of them. Never more than the road has.
func (s Severity) LanesBlocked(roadLanes int) int {
	if roadLanes < 1 {
		roadLanes = 1
	}
	n := roadLanes
	switch s {
	case Minor:
		n = 1
	case Moderate:
		n = 2
	}
	if n > roadLanes {
		n = roadLanes
	}
	return n
}
