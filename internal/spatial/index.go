// Nearest-in-radius queries. Subsystems depend on Index only, so a linear scan
// and a bucketed grid are interchangeable.
package spatial

import "math"

// Item is anything with an identity and a position.
type Item struct {
	ID  string
	Pos Vec3
}

// Index answers radius queries over a set of items rebuilt once per tick.
type Index interface {
	Rebuild(items []Item)
	// Within calls fn for every item within radius of origin.
	Within(origin Vec3, radius float64, fn func(it Item, dist float64))
	// Nearest returns the closest accepted item within radius.
	Nearest(origin Vec3, radius float64, accept func(Item) bool) (Item, float64, bool)
}

// Linear scans every item. Fine at modest scale.
type Linear struct {
	items []Item
}

// NewLinear creates an empty linear index.
func NewLinear() *Linear { return &Linear{} }

func (l *Linear) Rebuild(items []Item) {
	l.items = append(l.items[:0], items...)
}

func (l *Linear) Within(origin Vec3, radius float64, fn func(Item, float64)) {
	r2 := radius * radius
	for _, it := range l.items {
		if d2 := it.Pos.DistSq(origin); d2 <= r2 {
			fn(it, math.Sqrt(d2))
		}
	}
}

func (l *Linear) Nearest(origin Vec3, radius float64, accept func(Item) bool) (Item, float64, bool) {
	return nearest(l, origin, radius, accept)
}

// Grid buckets items into square cells on the X/Z plane.
type Grid struct {
	cellSize float64
	cells    map[[2]int][]Item
}

// NewGrid creates a grid index. Cell size should be close to the typical query radius.
func NewGrid(cellSize float64) *Grid {
	if cellSize <= 0 {
		cellSize = 32
	}
	return &Grid{cellSize: cellSize, cells: make(map[[2]int][]Item)}
}

func (g *Grid) cellOf(p Vec3) [2]int {
	return [2]int{int(math.Floor(p.X / g.cellSize)), int(math.Floor(p.Z / g.cellSize))}
}

func (g *Grid) Rebuild(items []Item) {
	for k, v := range g.cells {
		g.cells[k] = v[:0]
	}
	for _, it := range items {
		c := g.cellOf(it.Pos)
		g.cells[c] = append(g.cells[c], it)
	}
}

func (g *Grid) Within(origin Vec3, radius float64, fn func(Item, float64)) {
	lo := g.cellOf(Vec3{X: origin.X - radius, Z: origin.Z - radius})
	hi := g.cellOf(Vec3{X: origin.X + radius, Z: origin.Z + radius})
	r2 := radius * radius
	for cz := lo[1]; cz <= hi[1]; cz++ {
		for cx := lo[0]; cx <= hi[0]; cx++ {
			for _, it := range g.cells[[2]int{cx, cz}] {
				if d2 := it.Pos.DistSq(origin); d2 <= r2 {
					fn(it, math.Sqrt(d2))
				}
			}
		}
	}
}

func (g *Grid) Nearest(origin Vec3, radius float64, accept func(Item) bool) (Item, float64, bool) {
	return nearest(g, origin, radius, accept)
}

func nearest(idx Index, origin Vec3, radius float64, accept func(Item) bool) (Item, float64, bool) {
	var best Item
	bestDist := math.Inf(1)
	found := false
	idx.Within(origin, radius, func(it Item, d float64) {
		if accept != nil && !accept(it) {
			return
		}
		if d < bestDist {
			best, bestDist, found = it, d, true
		}
	})
	return best, bestDist, found
}
