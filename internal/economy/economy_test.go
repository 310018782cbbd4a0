package economy

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/mini-city/internal/entropy"
	"github.com/talgya/mini-city/internal/ids"
	"github.com/talgya/mini-city/internal/world"
)

func newTestEconomy(cfg Config) *Economy {
	return New(cfg, entropy.New(5), ids.NewSequential())
}

var shop = world.Building{ID: "bld_1", Type: world.Shop}

func TestHireAtCapacityFailsWithoutMutation(t *testing.T) {
	e := newTestEconomy(DefaultConfig())
	id, ok := e.OpenBusiness(shop)
	require.True(t, ok)

	for i := 0; i < world.Shop.JobCapacity(); i++ {
		require.True(t, e.Hire(id).OK)
	}
	res := e.HireAt(shop.ID)
	assert.False(t, res.OK)
	assert.Contains(t, res.Message, "no remaining capacity")
	b, _ := e.BusinessAt(shop.ID)
	assert.Equal(t, b.Capacity, b.Employees)
	assert.Empty(t, e.Openings())

	for i := 0; i < b.Capacity; i++ {
		require.True(t, e.FireAt(shop.ID).OK)
	}
	assert.False(t, e.Fire(id).OK)
	assert.Equal(t, map[string]int{"bld_1": 10}, e.Openings())
}

func TestOpenBusinessOnlyForWorkplaces(t *testing.T) {
	e := newTestEconomy(DefaultConfig())
	_, ok := e.OpenBusiness(world.Building{ID: "bld_1", Type: world.House})
	assert.False(t, ok)

	_, ok = e.OpenBusiness(world.Building{ID: "bld_2", Type: world.Factory})
	require.True(t, ok)
	_, ok = e.OpenBusiness(world.Building{ID: "bld_2", Type: world.Factory})
	assert.False(t, ok, "one business per building")

	b, _ := e.BusinessAt("bld_2")
	assert.Equal(t, Manufacturing, b.Category)
	assert.Equal(t, 80, b.Capacity)
}

func TestProfitableDay(t *testing.T) {
	e := newTestEconomy(DefaultConfig())
	id, _ := e.OpenBusiness(shop)
	for i := 0; i < 10; i++ {
		e.Hire(id)
	}
	before := e.Funds()

	rep := e.DailyUpdate(Input{Population: 1000, AverageHappiness: 50})
	b, _ := e.BusinessAt(shop.ID)
	assert.InDelta(t, 200, b.Demand, 1e-9)
	assert.InDelta(t, 100, b.Supply, 1e-9)
	assert.InDelta(t, 2400, b.Revenue, 1e-9)
	assert.InDelta(t, 900, b.Expenses, 1e-9)
	assert.InDelta(t, 1500, b.Profit, 1e-9)
	assert.InDelta(t, 72, b.Health, 1e-9)
	assert.InDelta(t, 100.15, b.StockValue, 1e-9)
	assert.InDelta(t, 150, rep.Stats.TaxRevenue, 1e-9)
	assert.InDelta(t, before+150, e.Funds(), 1e-9)
	assert.InDelta(t, 2400, rep.Stats.GDP, 1e-9)
}

func TestIdleBusinessGoesBankrupt(t *testing.T) {
	e := newTestEconomy(DefaultConfig())
	e.OpenBusiness(shop)

	for day := 1; day <= 12; day++ {
		rep := e.DailyUpdate(Input{})
		require.Empty(t, rep.Closed, "day %d", day)
	}
	b, _ := e.BusinessAt(shop.ID)
	assert.InDelta(t, 10, b.Health, 1e-9)

	rep := e.DailyUpdate(Input{})
	require.Len(t, rep.Closed, 1)
	assert.Equal(t, shop.ID, rep.Closed[0].BuildingID)
	assert.Equal(t, 1, rep.Stats.Bankruptcies)
	assert.Zero(t, rep.Stats.Businesses)
	assert.False(t, e.HireAt(shop.ID).OK)
	assert.NotEmpty(t, e.DrainEvents())
}

func TestStockValueIsFlooredAtOne(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StockNormalizer = 100
	e := newTestEconomy(cfg)
	e.OpenBusiness(shop)
	e.DailyUpdate(Input{})
	b, _ := e.BusinessAt(shop.ID)
	assert.Equal(t, 1.0, b.StockValue)
}

func TestLoanAmortization(t *testing.T) {
	e := newTestEconomy(DefaultConfig())
	start := e.Funds()
	res := e.TakeLoan(120_000, 0.06, 12)
	require.True(t, res.OK, res.Message)
	assert.InDelta(t, start+120_000, e.Funds(), 1e-6)

	l := e.Loans()[0]
	assert.InDelta(t, 10_327.97, l.Payment, 0.01)

	// Sum of scheduled payments equals principal plus the interest the
	// schedule accrues.
	interest, balance := 0.0, l.Principal
	for i := 0; i < l.TermMonths; i++ {
		accrued := balance * l.AnnualRate / 12
		interest += accrued
		balance -= l.Payment - accrued
	}
	assert.InDelta(t, l.Principal+interest, l.RemainingPayments(), 1e-6)
	assert.InDelta(t, 0, balance, 1e-6)

	prev := l.RemainingMonths
	for month := 1; month <= 12; month++ {
		e.ProcessMonth()
		loans := e.Loans()
		if month < 12 {
			require.Len(t, loans, 1, "month %d", month)
			assert.Less(t, loans[0].RemainingMonths, prev)
			prev = loans[0].RemainingMonths
		} else {
			assert.Empty(t, loans)
		}
	}
	assert.InDelta(t, start+120_000-12*l.Payment, e.Funds(), 1e-6)
	assert.Zero(t, e.Debt())
}

func TestZeroRateLoan(t *testing.T) {
	assert.InDelta(t, 100, MonthlyPayment(1200, 0, 12), 1e-9)
	assert.Zero(t, MonthlyPayment(1200, 0.05, 0))
}

func TestBondCouponsAndMaturity(t *testing.T) {
	e := newTestEconomy(DefaultConfig())
	start := e.Funds()
	require.True(t, e.IssueBond(12_000, 0.12, 3).OK)
	assert.InDelta(t, 12_000, e.Debt(), 1e-9)

	for i := 0; i < 3; i++ {
		e.ProcessMonth()
	}
	assert.Empty(t, e.Bonds())
	assert.InDelta(t, start-3*120, e.Funds(), 1e-9)
}

func TestBorrowingLimits(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxDebt = 100_000
	e := newTestEconomy(cfg)

	assert.False(t, e.TakeLoan(-5, 0.05, 12).OK)
	assert.False(t, e.TakeLoan(1000, 0.9, 12).OK)
	assert.False(t, e.TakeLoan(1000, 0.05, 0).OK)
	require.True(t, e.TakeLoan(60_000, 0.05, 12).OK)
	res := e.IssueBond(50_000, 0.05, 12)
	assert.False(t, res.OK)
	assert.Contains(t, res.Message, "debt limit")
}

func TestMonthlyServicingRunsFromDailyUpdate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DaysPerMonth = 2
	e := newTestEconomy(cfg)
	e.TakeLoan(1000, 0, 2)

	e.DailyUpdate(Input{})
	assert.Len(t, e.Loans(), 1)
	assert.Equal(t, 2, e.Loans()[0].RemainingMonths)
	e.DailyUpdate(Input{})
	assert.Equal(t, 1, e.Loans()[0].RemainingMonths)
}

func TestTaxRateBounds(t *testing.T) {
	e := newTestEconomy(DefaultConfig())
	assert.False(t, e.SetTaxRate(0.6).OK)
	assert.False(t, e.SetTaxRate(-0.1).OK)
	assert.False(t, e.SetTaxRate(math.NaN()).OK)
	assert.True(t, e.SetTaxRate(0.25).OK)
	assert.Equal(t, 0.25, e.Stats().TaxRate)
}

func TestSpendAndPolicyCashflow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StartingFunds = 1000
	e := newTestEconomy(cfg)

	assert.False(t, e.Spend(5000, "stadium").OK)
	assert.Equal(t, 1000.0, e.Funds())
	assert.True(t, e.Spend(400, "park").OK)

	e.DailyUpdate(Input{Trips: 100, TollMultiplier: 1.5, RevenueBonus: 800, RecurringCosts: 100})
	assert.InDelta(t, 600+75+800-100, e.Funds(), 1e-9)
	assert.InDelta(t, 75, e.Stats().TollRevenue, 1e-9)
}

func TestGrowthNeedsFullLagWindow(t *testing.T) {
	r := rolling{cap: 365}
	for i := 0; i < 30; i++ {
		r.push(100)
	}
	assert.Zero(t, r.change(30), "30 samples is one short of a comparison")
	r.push(150)
	assert.InDelta(t, 50, r.change(30), 1e-9)

	z := rolling{cap: 365}
	for i := 0; i < 31; i++ {
		z.push(0)
	}
	assert.Zero(t, z.change(30))

	capped := rolling{cap: 5}
	for i := 0; i < 20; i++ {
		capped.push(float64(i))
	}
	assert.Len(t, capped.samples, 5)
	assert.Equal(t, 19.0, capped.last())
}

func TestGoodsConvergeAndStayBounded(t *testing.T) {
	cfg := DefaultGoodsConfig()
	cfg.DemandNoise = 0
	m := NewMarket(cfg)
	require.Len(t, m.Goods(), 6)
	m.goods[0].Supply = 50

	m.Update(entropy.New(1))
	food := m.Goods()[0]
	assert.InDelta(t, 55, food.Supply, 1e-9)
	assert.InDelta(t, 5*1.045, food.Price, 1e-9)

	noisy := NewMarket(DefaultGoodsConfig())
	rng := entropy.New(2)
	for i := 0; i < 1000; i++ {
		noisy.Update(rng)
	}
	for _, g := range noisy.Goods() {
		assert.GreaterOrEqual(t, g.Price, g.BasePrice*0.5)
		assert.LessOrEqual(t, g.Price, g.BasePrice*2)
		assert.GreaterOrEqual(t, g.Demand, 10.0)
	}
	assert.Greater(t, noisy.PriceIndex(), 0.0)
}
