package economy

import (
	"fmt"
	"log/slog"
	"math"
	"slices"

	"github.com/dustin/go-humanize"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/talgya/mini-city/internal/entropy"
	"github.com/talgya/mini-city/internal/events"
	"github.com/talgya/mini-city/internal/ids"
	"github.com/talgya/mini-city/internal/result"
	"github.com/talgya/mini-city/internal/world"
)

// Config holds economy tuning.
type Config struct {
	StartingFunds float64 `json:"starting_funds"`
	TaxRate       float64 `json:"tax_rate"`
	MaxTaxRate    float64 `json:"max_tax_rate"`

	Categories       map[string]CategorySpec `json:"categories"`
	DemandPerCapita  float64                 `json:"demand_per_capita"`
	HappinessPivot   float64                 `json:"happiness_pivot"` // Happiness giving a 1x demand multiplier
	PriceRatioBounds [2]float64              `json:"price_ratio_bounds"`

	StartingHealth   float64 `json:"starting_health"`
	HealthLoss       float64 `json:"health_loss"`
	HealthGain       float64 `json:"health_gain"`
	ClosureThreshold float64 `json:"closure_threshold"`
	StartingStock    float64 `json:"starting_stock"`
	StockNormalizer  float64 `json:"stock_normalizer"`

	DaysPerMonth  int     `json:"days_per_month"`
	MaxDebt       float64 `json:"max_debt"`
	MaxRate       float64 `json:"max_rate"`
	MaxTermMonths int     `json:"max_term_months"`

	TollPerTrip float64 `json:"toll_per_trip"`
	HistoryCap  int     `json:"history_cap"`
	GrowthLag   int     `json:"growth_lag"`

	Goods GoodsConfig `json:"goods"`
}

// DefaultConfig returns the stock economy tuning.
func DefaultConfig() Config {
	return Config{
		StartingFunds: 250_000,
		TaxRate:       0.1,
		MaxTaxRate:    0.5,
		Categories: map[string]CategorySpec{
			Retail.String():        {RevenuePerEmployee: 120, Salary: 70, Overhead: 200},
			Service.String():       {RevenuePerEmployee: 150, Salary: 90, Overhead: 250},
			Manufacturing.String(): {RevenuePerEmployee: 140, Salary: 85, Overhead: 400},
			Tech.String():          {RevenuePerEmployee: 220, Salary: 130, Overhead: 300},
		},
		DemandPerCapita:  0.2,
		HappinessPivot:   50,
		PriceRatioBounds: [2]float64{0.5, 2},
		StartingHealth:   70,
		HealthLoss:       5,
		HealthGain:       2,
		ClosureThreshold: 10,
		StartingStock:    100,
		StockNormalizer:  1_000_000,
		DaysPerMonth:     30,
		MaxDebt:          1_000_000,
		MaxRate:          0.5,
		MaxTermMonths:    360,
		TollPerTrip:      0.5,
		HistoryCap:       365,
		GrowthLag:        30,
		Goods:            DefaultGoodsConfig(),
	}
}

// Input is the city-wide state the daily update reads.
type Input struct {
	Now              float64 // Game minutes
	Population       int
	AverageHappiness float64
	UnemploymentRate float64
	Trips            int     // Completed vehicle trips since the last update
	TollMultiplier   float64 // Zero is neutral
	RevenueBonus     float64
	RecurringCosts   float64 // Policy upkeep charged today
}

// Closure is a business that went bankrupt, with the jobs it took with it.
type Closure struct {
	BusinessID string `json:"business_id"`
	BuildingID string `json:"building_id"`
	Employees  int    `json:"employees"`
}

// Report is the outcome of one daily update.
type Report struct {
	Stats  Stats
	Closed []Closure
}

// Stats is the economy snapshot.
type Stats struct {
	Funds         float64 `json:"funds"`
	GDP           float64 `json:"gdp"`
	GrowthRate    float64 `json:"growth_rate"` // Percent
	Inflation     float64 `json:"inflation"`   // Percent
	PriceIndex    float64 `json:"price_index"`
	Businesses    int     `json:"businesses"`
	Bankruptcies  int     `json:"bankruptcies"`
	Employees     int     `json:"employees"`
	JobOpenings   int     `json:"job_openings"`
	AverageHealth float64 `json:"average_health"`
	AverageStock  float64 `json:"average_stock"`
	TaxRevenue    float64 `json:"tax_revenue"`
	TollRevenue   float64 `json:"toll_revenue"`
	Debt          float64 `json:"debt"`
	Loans         int     `json:"loans"`
	Bonds         int     `json:"bonds"`
	TaxRate       float64 `json:"tax_rate"`
}

// Economy owns the treasury, businesses, the goods market and city debt.
type Economy struct {
	cfg   Config
	rng   entropy.Source
	alloc ids.Allocator

	funds   float64
	taxRate float64

	businesses []*Business
	byID       map[string]*Business
	byBuilding map[string]*Business
	market     *Market
	loans      []*Loan
	bonds      []*Bond

	gdp          rolling
	prices       rolling
	bankruptcies int
	taxRevenue   float64
	tollRevenue  float64

	day int
	now float64
	rec events.Recorder
}

// New creates an economy holding the configured starting funds.
func New(cfg Config, rng entropy.Source, alloc ids.Allocator) *Economy {
	if cfg.HistoryCap <= 0 {
		cfg.HistoryCap = 365
	}
	if cfg.DaysPerMonth <= 0 {
		cfg.DaysPerMonth = 30
	}
	e := &Economy{
		cfg:        cfg,
		rng:        rng,
		alloc:      alloc,
		funds:      cfg.StartingFunds,
		taxRate:    cfg.TaxRate,
		byID:       make(map[string]*Business),
		byBuilding: make(map[string]*Business),
		market:     NewMarket(cfg.Goods),
		gdp:        rolling{cap: cfg.HistoryCap},
		prices:     rolling{cap: cfg.HistoryCap},
	}
	return e
}

// OpenBusiness creates the business for a newly built commercial or
// industrial building. Other building types are ignored.
func (e *Economy) OpenBusiness(b world.Building) (string, bool) {
	cat, ok := categoryFor(b.Type, func() bool { return e.rng.Intn(2) == 0 })
	if !ok {
		return "", false
	}
	if _, dup := e.byBuilding[b.ID]; dup {
		return "", false
	}
	biz := &Business{
		ID:         e.alloc.Next("biz"),
		BuildingID: b.ID,
		Category:   cat,
		Capacity:   b.Type.JobCapacity(),
		StockValue: e.cfg.StartingStock,
		Health:     e.cfg.StartingHealth,
	}
	e.businesses = append(e.businesses, biz)
	e.byID[biz.ID] = biz
	e.byBuilding[b.ID] = biz
	return biz.ID, true
}

// Hire adds one employee. A business at capacity is left unchanged.
func (e *Economy) Hire(businessID string) result.Result {
	b, ok := e.byID[businessID]
	if !ok {
		return result.Fail("unknown business %q", businessID)
	}
	if b.Employees >= b.Capacity {
		return result.Fail("%s has no remaining capacity (%d/%d)", b.ID, b.Employees, b.Capacity)
	}
	b.Employees++
	return result.Ok("hired at %s (%d/%d)", b.ID, b.Employees, b.Capacity)
}

// Fire removes one employee.
func (e *Economy) Fire(businessID string) result.Result {
	b, ok := e.byID[businessID]
	if !ok {
		return result.Fail("unknown business %q", businessID)
	}
	if b.Employees == 0 {
		return result.Fail("%s has no employees", b.ID)
	}
	b.Employees--
	return result.Ok("fired at %s (%d/%d)", b.ID, b.Employees, b.Capacity)
}

// HireAt hires at the business occupying a building.
func (e *Economy) HireAt(buildingID string) result.Result {
	b, ok := e.byBuilding[buildingID]
	if !ok {
		return result.Fail("no business at %q", buildingID)
	}
	return e.Hire(b.ID)
}

// FireAt fires at the business occupying a building.
func (e *Economy) FireAt(buildingID string) result.Result {
	b, ok := e.byBuilding[buildingID]
	if !ok {
		return result.Fail("no business at %q", buildingID)
	}
	return e.Fire(b.ID)
}

// CloseAt shuts the business occupying a building without counting a
// bankruptcy.
func (e *Economy) CloseAt(buildingID string) (Closure, bool) {
	b, ok := e.byBuilding[buildingID]
	if !ok {
		return Closure{}, false
	}
	delete(e.byID, b.ID)
	delete(e.byBuilding, buildingID)
	e.businesses = slices.DeleteFunc(e.businesses, func(x *Business) bool { return x == b })
	e.rec.Record(e.now, events.CategoryEconomy, fmt.Sprintf("%s business %s closed, %d jobs lost", b.Category, b.ID, b.Employees))
	return Closure{BusinessID: b.ID, BuildingID: buildingID, Employees: b.Employees}, true
}

// Business returns a copy of one business.
func (e *Economy) Business(id string) (Business, bool) {
	b, ok := e.byID[id]
	if !ok {
		return Business{}, false
	}
	return *b, true
}

// BusinessAt returns the business occupying a building.
func (e *Economy) BusinessAt(buildingID string) (Business, bool) {
	b, ok := e.byBuilding[buildingID]
	if !ok {
		return Business{}, false
	}
	return *b, true
}

// Openings maps each workplace building to its unfilled positions.
func (e *Economy) Openings() map[string]int {
	out := make(map[string]int, len(e.businesses))
	for _, b := range e.businesses {
		if n := b.Openings(); n > 0 {
			out[b.BuildingID] = n
		}
	}
	return out
}

// SetTaxRate changes the business tax rate.
func (e *Economy) SetTaxRate(rate float64) result.Result {
	if rate < 0 || rate > e.cfg.MaxTaxRate || math.IsNaN(rate) {
		return result.Fail("tax rate %.2f outside [0, %.2f]", rate, e.cfg.MaxTaxRate)
	}
	e.taxRate = rate
	return result.Ok("tax rate set to %.0f%%", rate*100)
}

// Funds returns the treasury balance.
func (e *Economy) Funds() float64 { return e.funds }

// Spend debits the treasury if it can afford amount.
func (e *Economy) Spend(amount float64, what string) result.Result {
	if amount < 0 {
		return result.Fail("negative amount")
	}
	if amount > e.funds {
		return result.Fail("insufficient funds for %s: need $%s, have $%s",
			what, humanize.Commaf(math.Round(amount)), humanize.Commaf(math.Round(e.funds)))
	}
	e.funds -= amount
	return result.Ok("spent $%s on %s", humanize.Commaf(math.Round(amount)), what)
}

// Deposit credits the treasury.
func (e *Economy) Deposit(amount float64) {
	if amount > 0 {
		e.funds += amount
	}
}

// charge debits unconditionally. Obligations may overdraw the treasury.
func (e *Economy) charge(amount float64, what string) {
	if amount <= 0 {
		return
	}
	before := e.funds
	e.funds -= amount
	if before >= 0 && e.funds < 0 {
		e.rec.Record(e.now, events.CategoryEconomy, fmt.Sprintf("treasury overdrawn paying %s", what))
		slog.Warn("treasury overdrawn", "for", what, "funds", e.funds)
	}
}

// Debt is outstanding loan balances plus bond principal.
func (e *Economy) Debt() float64 {
	d := 0.0
	for _, l := range e.loans {
		d += l.Balance
	}
	for _, b := range e.bonds {
		d += b.Principal
	}
	return d
}

func (e *Economy) checkBorrowing(amount, annualRate float64, months int) (result.Result, bool) {
	switch {
	case amount <= 0:
		return result.Fail("amount must be positive"), false
	case annualRate < 0 || annualRate > e.cfg.MaxRate:
		return result.Fail("rate %.2f outside [0, %.2f]", annualRate, e.cfg.MaxRate), false
	case months <= 0 || months > e.cfg.MaxTermMonths:
		return result.Fail("term must be 1-%d months", e.cfg.MaxTermMonths), false
	case e.Debt()+amount > e.cfg.MaxDebt:
		return result.Fail("debt limit of $%s exceeded", humanize.Commaf(e.cfg.MaxDebt)), false
	}
	return result.Result{}, true
}

// TakeLoan borrows amount, repaid in equal monthly installments.
func (e *Economy) TakeLoan(amount, annualRate float64, months int) result.Result {
	if res, ok := e.checkBorrowing(amount, annualRate, months); !ok {
		return res
	}
	l := &Loan{
		ID:              e.alloc.Next("loan"),
		Principal:       amount,
		AnnualRate:      annualRate,
		TermMonths:      months,
		RemainingMonths: months,
		Payment:         MonthlyPayment(amount, annualRate, months),
		Balance:         amount,
	}
	e.loans = append(e.loans, l)
	e.funds += amount
	e.rec.Record(e.now, events.CategoryEconomy, fmt.Sprintf("loan of $%s taken", humanize.Commaf(amount)))
	return result.Ok("loan %s: $%s over %d months at $%s/month",
		l.ID, humanize.Commaf(amount), months, humanize.Commaf(math.Round(l.Payment*100)/100))
}

// IssueBond raises amount, paying a monthly coupon and the principal at maturity.
func (e *Economy) IssueBond(amount, annualRate float64, months int) result.Result {
	if res, ok := e.checkBorrowing(amount, annualRate, months); !ok {
		return res
	}
	b := &Bond{
		ID:              e.alloc.Next("bond"),
		Principal:       amount,
		AnnualRate:      annualRate,
		TermMonths:      months,
		RemainingMonths: months,
	}
	e.bonds = append(e.bonds, b)
	e.funds += amount
	e.rec.Record(e.now, events.CategoryEconomy, fmt.Sprintf("bond of $%s issued", humanize.Commaf(amount)))
	return result.Ok("bond %s: $%s for %d months", b.ID, humanize.Commaf(amount), months)
}

// ProcessMonth services every loan and bond once.
func (e *Economy) ProcessMonth() {
	keptLoans := e.loans[:0]
	for _, l := range e.loans {
		e.charge(l.Payment, "loan "+l.ID)
		if l.pay() {
			e.rec.Record(e.now, events.CategoryEconomy, fmt.Sprintf("loan %s paid off", l.ID))
			continue
		}
		keptLoans = append(keptLoans, l)
	}
	e.loans = keptLoans

	keptBonds := e.bonds[:0]
	for _, b := range e.bonds {
		e.charge(b.Coupon(), "bond "+b.ID)
		b.RemainingMonths--
		if b.RemainingMonths <= 0 {
			e.charge(b.Principal, "bond "+b.ID+" principal")
			e.rec.Record(e.now, events.CategoryEconomy, fmt.Sprintf("bond %s matured", b.ID))
			continue
		}
		keptBonds = append(keptBonds, b)
	}
	e.bonds = keptBonds
}

// DailyUpdate runs every business for a day, moves the goods market,
// collects taxes and tolls, and services debt at month end.
func (e *Economy) DailyUpdate(in Input) Report {
	e.day++
	e.now = in.Now
	var rep Report

	m := market{population: in.Population, happiness: in.AverageHappiness, taxRate: e.taxRate}
	revenues := make([]float64, 0, len(e.businesses))
	e.taxRevenue = 0
	kept := e.businesses[:0]
	for _, b := range e.businesses {
		spec := e.cfg.Categories[b.Category.String()]
		e.taxRevenue += b.operate(m, spec, e.cfg)
		revenues = append(revenues, b.Revenue)
		if b.Health < e.cfg.ClosureThreshold {
			e.close(b, &rep)
			continue
		}
		kept = append(kept, b)
	}
	e.businesses = kept
	e.funds += e.taxRevenue

	e.tollRevenue = float64(in.Trips) * e.cfg.TollPerTrip * orOne(in.TollMultiplier)
	e.funds += e.tollRevenue
	if in.RevenueBonus >= 0 {
		e.funds += in.RevenueBonus
	} else {
		e.charge(-in.RevenueBonus, "policy revenue loss")
	}
	e.charge(in.RecurringCosts, "policy upkeep")

	e.market.Update(e.rng)
	e.gdp.push(floats.Sum(revenues))
	e.prices.push(e.market.PriceIndex())

	if e.day%e.cfg.DaysPerMonth == 0 {
		e.ProcessMonth()
	}

	rep.Stats = e.snapshot()
	return rep
}

func (e *Economy) close(b *Business, rep *Report) {
	e.bankruptcies++
	delete(e.byID, b.ID)
	delete(e.byBuilding, b.BuildingID)
	rep.Closed = append(rep.Closed, Closure{BusinessID: b.ID, BuildingID: b.BuildingID, Employees: b.Employees})
	e.rec.Record(e.now, events.CategoryEconomy, fmt.Sprintf("%s business %s went bankrupt, %d jobs lost", b.Category, b.ID, b.Employees))
	slog.Debug("bankruptcy", "business", b.ID, "building", b.BuildingID, "employees", b.Employees)
}

func (e *Economy) snapshot() Stats {
	st := Stats{
		Funds:        e.funds,
		GDP:          e.gdp.last(),
		GrowthRate:   e.gdp.change(e.cfg.GrowthLag),
		Inflation:    e.prices.change(e.cfg.GrowthLag),
		PriceIndex:   e.market.PriceIndex(),
		Businesses:   len(e.businesses),
		Bankruptcies: e.bankruptcies,
		TaxRevenue:   e.taxRevenue,
		TollRevenue:  e.tollRevenue,
		Debt:         e.Debt(),
		Loans:        len(e.loans),
		Bonds:        len(e.bonds),
		TaxRate:      e.taxRate,
	}
	if len(e.businesses) > 0 {
		health := make([]float64, len(e.businesses))
		stock := make([]float64, len(e.businesses))
		for i, b := range e.businesses {
			health[i], stock[i] = b.Health, b.StockValue
			st.Employees += b.Employees
			st.JobOpenings += b.Openings()
		}
		st.AverageHealth = stat.Mean(health, nil)
		st.AverageStock = stat.Mean(stock, nil)
	}
	return st
}

// Businesses returns copies of every open business.
func (e *Economy) Businesses() []Business {
	out := make([]Business, len(e.businesses))
	for i, b := range e.businesses {
		out[i] = *b
	}
	return out
}

// Loans returns copies of outstanding loans.
func (e *Economy) Loans() []Loan {
	out := make([]Loan, len(e.loans))
	for i, l := range e.loans {
		out[i] = *l
	}
	return out
}

// Bonds returns copies of outstanding bonds.
func (e *Economy) Bonds() []Bond {
	out := make([]Bond, len(e.bonds))
	for i, b := range e.bonds {
		out[i] = *b
	}
	return out
}

// Goods returns the goods market state.
func (e *Economy) Goods() []Good { return e.market.Goods() }

// Stats returns the current snapshot.
func (e *Economy) Stats() Stats { return e.snapshot() }

// DrainEvents returns economy events since the last drain.
func (e *Economy) DrainEvents() []events.Event { return e.rec.Drain() }

func orOne(v float64) float64 {
	if v == 0 {
		return 1
	}
	return v
}
