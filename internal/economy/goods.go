// Package economy runs the city's businesses, goods market, treasury,
// loans and bonds.
package economy

import (
	"gonum.org/v1/gonum/stat"

	"github.com/talgya/mini-city/internal/entropy"
	"github.com/talgya/mini-city/internal/mathx"
)

// GoodType is a traded goods category.
type GoodType uint8

const (
	GoodFood GoodType = iota
	GoodElectronics
	GoodClothing
	GoodFurniture
	GoodFuel
	GoodMaterials
)

var goodNames = [...]string{"food", "electronics", "clothing", "furniture", "fuel", "materials"}

func (g GoodType) String() string {
	if int(g) < len(goodNames) {
		return goodNames[g]
	}
	return "unknown"
}

// Good is the supply/demand state of one goods category.
type Good struct {
	Type      GoodType `json:"type"`
	BasePrice float64  `json:"base_price"`
	Price     float64  `json:"price"`
	Demand    float64  `json:"demand"`
	Supply    float64  `json:"supply"`
}

// GoodsConfig tunes the goods market.
type GoodsConfig struct {
	BasePrices        map[string]float64 `json:"base_prices"`
	SupplyConvergence float64            `json:"supply_convergence"` // Fraction of the gap closed per update
	DemandNoise       float64            `json:"demand_noise"`       // Max relative step of the demand walk
	DemandBounds      [2]float64         `json:"demand_bounds"`
	PriceSensitivity  float64            `json:"price_sensitivity"`
	PriceDrift        float64            `json:"price_drift"`
	PriceBounds       [2]float64         `json:"price_bounds"` // Multiples of base price
}

// DefaultGoodsConfig returns the stock market tuning.
func DefaultGoodsConfig() GoodsConfig {
	return GoodsConfig{
		BasePrices: map[string]float64{
			GoodFood.String():        5,
			GoodElectronics.String(): 200,
			GoodClothing.String():    40,
			GoodFurniture.String():   150,
			GoodFuel.String():        3,
			GoodMaterials.String():   25,
		},
		SupplyConvergence: 0.1,
		DemandNoise:       0.05,
		DemandBounds:      [2]float64{10, 1000},
		PriceSensitivity:  0.5,
		PriceDrift:        0.2,
		PriceBounds:       [2]float64{0.5, 2},
	}
}

// Market holds every good's state.
type Market struct {
	cfg   GoodsConfig
	goods []*Good
}

// NewMarket creates a market with every good balanced at its base price.
func NewMarket(cfg GoodsConfig) *Market {
	m := &Market{cfg: cfg}
	for i := range goodNames {
		g := GoodType(i)
		base, ok := cfg.BasePrices[g.String()]
		if !ok || base <= 0 {
			continue
		}
		m.goods = append(m.goods, &Good{Type: g, BasePrice: base, Price: base, Demand: 100, Supply: 100})
	}
	return m
}

// Update moves demand by a bounded random walk, converges supply toward demand
// and drifts each price toward the level the imbalance implies.
func (m *Market) Update(rng entropy.Source) {
	cfg := m.cfg
	for _, g := range m.goods {
		g.Demand *= 1 + entropy.Range(rng, -cfg.DemandNoise, cfg.DemandNoise)
		g.Demand = mathx.Clamp(g.Demand, cfg.DemandBounds[0], cfg.DemandBounds[1])
		g.Supply += (g.Demand - g.Supply) * cfg.SupplyConvergence
		g.Price = g.resolvePrice(cfg)
	}
}

// resolvePrice steps the price toward base × (1 + sensitivity × imbalance),
// bounded by a floor and ceiling around the base price.
func (g *Good) resolvePrice(cfg GoodsConfig) float64 {
	imbalance := (g.Demand - g.Supply) / max(g.Demand, 1)
	target := g.BasePrice * (1 + cfg.PriceSensitivity*imbalance)
	price := g.Price + (target-g.Price)*cfg.PriceDrift
	return mathx.Clamp(price, g.BasePrice*cfg.PriceBounds[0], g.BasePrice*cfg.PriceBounds[1])
}

// PriceIndex is the mean price relative to base, where 100 means every good
// trades at its base price.
func (m *Market) PriceIndex() float64 {
	if len(m.goods) == 0 {
		return 100
	}
	rel := make([]float64, len(m.goods))
	for i, g := range m.goods {
		rel[i] = g.Price / g.BasePrice * 100
	}
	return stat.Mean(rel, nil)
}

// Goods returns copies of every good.
func (m *Market) Goods() []Good {
	out := make([]Good, len(m.goods))
	for i, g := range m.goods {
		out[i] = *g
	}
	return out
}
