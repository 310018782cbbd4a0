package economy

import (
	"math"

	"github.com/talgya/mini-city/internal/mathx"
	"github.com/talgya/mini-city/internal/world"
)

// Category is a line of business.
type Category uint8

const (
	Retail Category = iota
	Service
	Manufacturing
	Tech
)

var categoryNames = [...]string{"retail", "service", "manufacturing", "tech"}

func (c Category) String() string {
	if int(c) < len(categoryNames) {
		return categoryNames[c]
	}
	return "unknown"
}

// CategorySpec is the cost structure of a category.
type CategorySpec struct {
	RevenuePerEmployee float64 `json:"revenue_per_employee"` // Per day at price ratio 1
	Salary             float64 `json:"salary"`               // Per employee per day
	Overhead           float64 `json:"overhead"`             // Per day
}

// Business is an employer occupying a commercial or industrial building.
type Business struct {
	ID         string   `json:"id"`
	BuildingID string   `json:"building_id"`
	Category   Category `json:"category"`
	Employees  int      `json:"employees"`
	Capacity   int      `json:"capacity"`

	Revenue    float64 `json:"revenue"`
	Expenses   float64 `json:"expenses"`
	Profit     float64 `json:"profit"`
	TaxPaid    float64 `json:"tax_paid"`
	StockValue float64 `json:"stock_value"`
	Demand     float64 `json:"demand"`
	Supply     float64 `json:"supply"`
	Health     float64 `json:"health"` // 0..100, closes below the threshold
}

// Openings returns unfilled positions.
func (b *Business) Openings() int { return b.Capacity - b.Employees }

// categoryFor picks the line of business for a building type. Offices split
// between service and tech.
func categoryFor(t world.BuildingType, coin func() bool) (Category, bool) {
	switch t {
	case world.Shop, world.Mall:
		return Retail, true
	case world.Office:
		if coin() {
			return Tech, true
		}
		return Service, true
	case world.Workshop, world.Factory, world.Warehouse:
		return Manufacturing, true
	}
	return 0, false
}

// market is the city-wide state every business sees on a given day.
type market struct {
	population int
	happiness  float64
	taxRate    float64
}

// operate runs one business day and returns tax owed.
func (b *Business) operate(m market, spec CategorySpec, cfg Config) float64 {
	mult := mathx.Clamp(m.happiness/cfg.HappinessPivot, 0.5, 1.5)
	b.Demand = float64(m.population) * cfg.DemandPerCapita * mult
	b.Supply = 0
	if b.Capacity > 0 {
		b.Supply = float64(b.Employees) / float64(b.Capacity) * 100
	}

	ratio := cfg.PriceRatioBounds[1]
	if b.Supply > 0 {
		ratio = mathx.Clamp(b.Demand/b.Supply, cfg.PriceRatioBounds[0], cfg.PriceRatioBounds[1])
	}

	b.Revenue = float64(b.Employees) * spec.RevenuePerEmployee * ratio
	b.Expenses = float64(b.Employees)*spec.Salary + spec.Overhead
	b.Profit = b.Revenue - b.Expenses

	if b.Profit < 0 {
		b.Health -= cfg.HealthLoss
	} else {
		b.Health += cfg.HealthGain
	}
	b.Health = mathx.Percent(b.Health)

	b.StockValue = math.Max(1, b.StockValue*(1+b.Profit/cfg.StockNormalizer))

	b.TaxPaid = 0
	if b.Profit > 0 {
		b.TaxPaid = b.Profit * m.taxRate
	}
	return b.TaxPaid
}
