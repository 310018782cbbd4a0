// City generation using layered simplex noise.
// Lays out a grid road network and zones each block from a density field.
package world

import (
	"math/rand"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/mini-city/internal/ids"
	"github.com/talgya/mini-city/internal/spatial"
)

// GenConfig holds city generation parameters.
type GenConfig struct {
	Blocks        int     `json:"blocks"`     // Blocks per side
	BlockSize     float64 `json:"block_size"` // Distance between parallel roads
	AvenueEvery   int     `json:"avenue_every"`
	StreetSpeed   float64 `json:"street_speed"`
	AvenueSpeed   float64 `json:"avenue_speed"`
	LotsPerBlock  int     `json:"lots_per_block"`
	Seed          int64   `json:"seed"`           // 0 = random
	IndustrialCut float64 `json:"industrial_cut"` // Density below this zones industrial
	CommercialCut float64 `json:"commercial_cut"` // Density above this zones commercial
}

// DefaultGenConfig returns a reasonable starting configuration.
func DefaultGenConfig() GenConfig {
	return GenConfig{
		Blocks:        6,
		BlockSize:     120,
		AvenueEvery:   3,
		StreetSpeed:   11,
		AvenueSpeed:   15,
		LotsPerBlock:  2,
		IndustrialCut: -0.25,
		CommercialCut: 0.2,
	}
}

// SmallTestConfig returns a tiny city for rapid iteration.
func SmallTestConfig() GenConfig {
	cfg := DefaultGenConfig()
	cfg.Blocks = 2
	cfg.Seed = 42
	return cfg
}

// Generate creates the road network and the planned lots. Lots are not
// constructed: the caller builds them so every subsystem registers them.
func Generate(cfg GenConfig, alloc ids.Allocator) (*Map, []Lot) {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}
	if cfg.Blocks < 1 {
		cfg.Blocks = 1
	}
	if cfg.AvenueEvery < 1 {
		cfg.AvenueEvery = 1
	}

	densityNoise := opensimplex.NewNormalized(seed)
	typeNoise := opensimplex.NewNormalized(seed + 1)
	rng := rand.New(rand.NewSource(seed + 2))

	extent := float64(cfg.Blocks) * cfg.BlockSize
	m := NewMap(extent, extent)

	for i := 0; i <= cfg.Blocks; i++ {
		offset := float64(i) * cfg.BlockSize
		lanes, speed := 2, cfg.StreetSpeed
		if i%cfg.AvenueEvery == 0 {
			lanes, speed = 4, cfg.AvenueSpeed
		}
		// East-west road.
		m.AddRoad(Road{
			ID:         alloc.Next("road"),
			Start:      spatial.Vec3{X: 0, Z: offset},
			End:        spatial.Vec3{X: extent, Z: offset},
			Lanes:      lanes,
			SpeedLimit: speed,
		})
		// North-south road.
		m.AddRoad(Road{
			ID:         alloc.Next("road"),
			Start:      spatial.Vec3{X: offset, Z: 0},
			End:        spatial.Vec3{X: offset, Z: extent},
			Lanes:      lanes,
			SpeedLimit: speed,
		})
	}

	var lots []Lot
	for bx := 0; bx < cfg.Blocks; bx++ {
		for bz := 0; bz < cfg.Blocks; bz++ {
			for n := 0; n < cfg.LotsPerBlock; n++ {
				x := (float64(bx) + 0.2 + rng.Float64()*0.6) * cfg.BlockSize
				z := (float64(bz) + 0.2 + rng.Float64()*0.6) * cfg.BlockSize

				// Normalized noise is 0..1; recentre to -1..1 for zoning cuts.
				density := octaveNoise(densityNoise, x, z, 3, 0.004, 0.5)*2 - 1
				size := octaveNoise(typeNoise, x, z, 2, 0.01, 0.5)

				lots = append(lots, Lot{
					Type:     zoneLot(density, size, cfg),
					Position: spatial.Vec3{X: x, Z: z},
				})
			}
		}
	}

	return m, lots
}

// zoneLot picks a building type from the density field and a size sample.
func zoneLot(density, size float64, cfg GenConfig) BuildingType {
	switch {
	case density < cfg.IndustrialCut:
		if size < 0.35 {
			return Workshop
		} else if size < 0.7 {
			return Warehouse
		}
		return Factory
	case density > cfg.CommercialCut:
		if size < 0.45 {
			return Shop
		} else if size < 0.8 {
			return Office
		}
		return Mall
	default:
		if size < 0.5 {
			return House
		} else if size < 0.85 {
			return Apartment
		}
		return Highrise
	}
}

func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}
