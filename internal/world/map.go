package world

import (
	"fmt"

	"github.com/talgya/mini-city/internal/spatial"
)

// Map holds the city's roads and constructed buildings.
type Map struct {
	Width float64 `json:"width"`
	Depth float64 `json:"depth"`

	roads     []Road
	roadIndex map[string]int

	buildings     []Building
	buildingIndex map[string]int
}

// NewMap creates an empty map of the given extent.
func NewMap(width, depth float64) *Map {
	return &Map{
		Width:         width,
		Depth:         depth,
		roadIndex:     make(map[string]int),
		buildingIndex: make(map[string]int),
	}
}

// AddRoad registers a road. Lanes below one are raised to one.
func (m *Map) AddRoad(r Road) {
	if r.Lanes < 1 {
		r.Lanes = 1
	}
	m.roadIndex[r.ID] = len(m.roads)
	m.roads = append(m.roads, r)
}

// Road looks up a road by ID.
func (m *Map) Road(id string) (Road, bool) {
	i, ok := m.roadIndex[id]
	if !ok {
		return Road{}, false
	}
	return m.roads[i], true
}

// Roads returns a copy of the road network.
func (m *Map) Roads() []Road {
	return append([]Road(nil), m.roads...)
}

// AddBuilding registers a constructed building.
func (m *Map) AddBuilding(b Building) {
	m.buildingIndex[b.ID] = len(m.buildings)
	m.buildings = append(m.buildings, b)
}

// RemoveBuilding deletes a building. Returns false if it was not registered.
func (m *Map) RemoveBuilding(id string) bool {
	i, ok := m.buildingIndex[id]
	if !ok {
		return false
	}
	last := len(m.buildings) - 1
	m.buildings[i] = m.buildings[last]
	m.buildingIndex[m.buildings[i].ID] = i
	m.buildings = m.buildings[:last]
	delete(m.buildingIndex, id)
	return true
}

// Building looks up a building by ID.
func (m *Map) Building(id string) (Building, bool) {
	i, ok := m.buildingIndex[id]
	if !ok {
		return Building{}, false
	}
	return m.buildings[i], true
}

// Buildings returns a copy of the registry.
func (m *Map) Buildings() []Building {
	return append([]Building(nil), m.buildings...)
}

// NearestRoad returns the road whose midpoint is closest to p.
func (m *Map) NearestRoad(p spatial.Vec3) (Road, bool) {
	best, bestDist := -1, 0.0
	for i, r := range m.roads {
		d := r.PointAt(0.5).DistSq(p)
		if best < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return Road{}, false
	}
	return m.roads[best], true
}

// String returns a summary of the map.
func (m *Map) String() string {
	return fmt.Sprintf("Map(%.0fx%.0f, roads=%d, buildings=%d)", m.Width, m.Depth, len(m.roads), len(m.buildings))
}
