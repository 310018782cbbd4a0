// Package policy holds the city's enacted policies and folds their effects
// into one vector consumed by traffic, economy and citizens.
package policy

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/dustin/go-humanize"

	"github.com/talgya/mini-city/internal/events"
	"github.com/talgya/mini-city/internal/mathx"
	"github.com/talgya/mini-city/internal/result"
)

// Effects is the numeric impact of a policy, or of all active policies combined.
// Multipliers compose by product; the remaining fields are additive deltas.
type Effects struct {
	SpeedMultiplier            float64 `json:"speed_multiplier"`
	TollRevenueMultiplier      float64 `json:"toll_revenue_multiplier"`
	ConstructionCostMultiplier float64 `json:"construction_cost_multiplier"`

	PollutionReduction  float64 `json:"pollution_reduction"`  // Percent
	HappinessBonus      float64 `json:"happiness_bonus"`      // Points
	CongestionReduction float64 `json:"congestion_reduction"` // Percent
	RevenueBonus        float64 `json:"revenue_bonus"`        // Funds per day
}

// Neutral returns the identity effects vector.
func Neutral() Effects {
	return Effects{SpeedMultiplier: 1, TollRevenueMultiplier: 1, ConstructionCostMultiplier: 1}
}

// Combine folds o into e.
func (e Effects) Combine(o Effects) Effects {
	return Effects{
		SpeedMultiplier:            e.SpeedMultiplier * orOne(o.SpeedMultiplier),
		TollRevenueMultiplier:      e.TollRevenueMultiplier * orOne(o.TollRevenueMultiplier),
		ConstructionCostMultiplier: e.ConstructionCostMultiplier * orOne(o.ConstructionCostMultiplier),
		PollutionReduction:         e.PollutionReduction + o.PollutionReduction,
		HappinessBonus:             e.HappinessBonus + o.HappinessBonus,
		CongestionReduction:        e.CongestionReduction + o.CongestionReduction,
		RevenueBonus:               e.RevenueBonus + o.RevenueBonus,
	}
}

// orOne treats an unset multiplier as neutral.
func orOne(v float64) float64 {
	if v == 0 {
		return 1
	}
	return v
}

// Policy is one enactable city policy.
type Policy struct {
	ID                 string  `json:"id"`
	Name               string  `json:"name"`
	ImplementationCost float64 `json:"implementation_cost"`
	RecurringCost      float64 `json:"recurring_cost"` // Per day
	Effects            Effects `json:"effects"`
	PublicSupport      float64 `json:"public_support"` // 0..100
	MinSupport         float64 `json:"min_support"`
	Active             bool    `json:"active"`
	EnactedAt          float64 `json:"enacted_at,omitempty"`
}

// Config holds the policy catalog.
type Config struct {
	Catalog []Policy `json:"catalog"`
}

// DefaultConfig returns the stock catalog.
func DefaultConfig() Config {
	return Config{Catalog: []Policy{
		{ID: "speed_limit_reduction", Name: "Speed Limit Reduction", ImplementationCost: 5_000, RecurringCost: 100,
			Effects: Effects{SpeedMultiplier: 0.85, PollutionReduction: 3, HappinessBonus: -1}, PublicSupport: 55, MinSupport: 30},
		{ID: "congestion_charge", Name: "Congestion Charge", ImplementationCost: 20_000, RecurringCost: 200,
			Effects: Effects{CongestionReduction: 15, RevenueBonus: 800, HappinessBonus: -3}, PublicSupport: 40, MinSupport: 30},
		{ID: "public_transit_subsidy", Name: "Public Transit Subsidy", ImplementationCost: 50_000, RecurringCost: 1_500,
			Effects: Effects{CongestionReduction: 20, PollutionReduction: 10, HappinessBonus: 4}, PublicSupport: 70, MinSupport: 35},
		{ID: "green_energy_mandate", Name: "Green Energy Mandate", ImplementationCost: 75_000, RecurringCost: 500,
			Effects: Effects{PollutionReduction: 25, ConstructionCostMultiplier: 1.15}, PublicSupport: 60, MinSupport: 40},
		{ID: "toll_roads", Name: "Toll Roads", ImplementationCost: 30_000, RecurringCost: 300,
			Effects: Effects{TollRevenueMultiplier: 1.5, CongestionReduction: 5, HappinessBonus: -2}, PublicSupport: 35, MinSupport: 25},
		{ID: "education_funding", Name: "Education Funding", ImplementationCost: 60_000, RecurringCost: 2_000,
			Effects: Effects{HappinessBonus: 6}, PublicSupport: 75, MinSupport: 40},
		{ID: "car_free_sundays", Name: "Car-Free Sundays", ImplementationCost: 10_000, RecurringCost: 100,
			Effects: Effects{SpeedMultiplier: 0.9, CongestionReduction: 8, PollutionReduction: 6, HappinessBonus: 1}, PublicSupport: 45, MinSupport: 35},
		{ID: "business_tax_relief", Name: "Business Tax Relief", ImplementationCost: 15_000, RecurringCost: 1_000,
			Effects: Effects{ConstructionCostMultiplier: 0.95, RevenueBonus: -500, HappinessBonus: 2}, PublicSupport: 50, MinSupport: 30},
	}}
}

// Stats is the per-tick snapshot.
type Stats struct {
	Active        []string `json:"active"`
	ActiveCount   int      `json:"active_count"`
	RecurringCost float64  `json:"recurring_cost"`
	Effects       Effects  `json:"effects"`
}

// Ledger owns the catalog and the active set.
type Ledger struct {
	policies map[string]*Policy
	order    []string
	effects  Effects
	now      float64
	rec      events.Recorder
}

// NewLedger creates a ledger with the given catalog. Nothing starts active.
func NewLedger(cfg Config) *Ledger {
	l := &Ledger{policies: make(map[string]*Policy), effects: Neutral()}
	for _, p := range cfg.Catalog {
		p := p
		p.Active = false
		p.PublicSupport = mathx.Percent(p.PublicSupport)
		l.policies[p.ID] = &p
		l.order = append(l.order, p.ID)
	}
	return l
}

// Enact activates a policy. It returns the one-time cost the caller must debit.
func (l *Ledger) Enact(id string, funds float64) (float64, result.Result) {
	p, ok := l.policies[id]
	if !ok {
		return 0, result.Fail("unknown policy %q", id)
	}
	if p.Active {
		return 0, result.Fail("%s is already active", p.Name)
	}
	if funds < p.ImplementationCost {
		return 0, result.Fail("insufficient funds for %s: need $%s, have $%s",
			p.Name, humanize.Commaf(p.ImplementationCost), humanize.Commaf(funds))
	}
	if p.PublicSupport < p.MinSupport {
		return 0, result.Fail("public support for %s too low (%.0f%% < %.0f%%)", p.Name, p.PublicSupport, p.MinSupport)
	}

	p.Active = true
	p.EnactedAt = l.now
	l.recompute()
	l.rec.Record(l.now, events.CategoryPolicy, fmt.Sprintf("%s enacted", p.Name))
	slog.Debug("policy enacted", "policy", p.ID, "cost", p.ImplementationCost)
	return p.ImplementationCost, result.Ok("%s enacted for $%s", p.Name, humanize.Commaf(p.ImplementationCost))
}

// Repeal deactivates a policy.
func (l *Ledger) Repeal(id string) result.Result {
	p, ok := l.policies[id]
	if !ok {
		return result.Fail("unknown policy %q", id)
	}
	if !p.Active {
		return result.Fail("%s is not active", p.Name)
	}
	l.deactivate(p, "repealed")
	return result.Ok("%s repealed", p.Name)
}

// AdjustSupport nudges public support. An active policy that falls below its
// minimum support is repealed automatically.
func (l *Ledger) AdjustSupport(id string, delta float64) result.Result {
	p, ok := l.policies[id]
	if !ok {
		return result.Fail("unknown policy %q", id)
	}
	p.PublicSupport = mathx.Percent(p.PublicSupport + delta)
	if p.Active && p.PublicSupport < p.MinSupport {
		l.deactivate(p, "repealed after losing public support")
		return result.Ok("support for %s fell to %.0f%%; policy repealed", p.Name, p.PublicSupport)
	}
	return result.Ok("support for %s now %.0f%%", p.Name, p.PublicSupport)
}

func (l *Ledger) deactivate(p *Policy, why string) {
	p.Active = false
	p.EnactedAt = 0
	l.recompute()
	l.rec.Record(l.now, events.CategoryPolicy, fmt.Sprintf("%s %s", p.Name, why))
	slog.Debug("policy deactivated", "policy", p.ID, "reason", why)
}

func (l *Ledger) recompute() {
	e := Neutral()
	for _, id := range l.order {
		if p := l.policies[id]; p.Active {
			e = e.Combine(p.Effects)
		}
	}
	l.effects = e
}

// Update refreshes the snapshot.
func (l *Ledger) Update(now float64) Stats {
	l.now = now
	return l.Stats()
}

// Effects returns the combined effects of active policies.
func (l *Ledger) Effects() Effects { return l.effects }

// IsActive reports whether a policy is enacted.
func (l *Ledger) IsActive(id string) bool {
	p, ok := l.policies[id]
	return ok && p.Active
}

// Policies returns copies of every policy in catalog order.
func (l *Ledger) Policies() []Policy {
	out := make([]Policy, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, *l.policies[id])
	}
	return out
}

// Stats returns the current snapshot.
func (l *Ledger) Stats() Stats {
	st := Stats{Effects: l.effects}
	for _, id := range l.order {
		p := l.policies[id]
		if !p.Active {
			continue
		}
		st.Active = append(st.Active, p.ID)
		st.RecurringCost += p.RecurringCost
	}
	sort.Strings(st.Active)
	st.ActiveCount = len(st.Active)
	return st
}

// DrainEvents returns policy events since the last drain.
func (l *Ledger) DrainEvents() []events.Event { return l.rec.Drain() }
