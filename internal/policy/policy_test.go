package policy

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLedger() *Ledger {
	return NewLedger(Config{Catalog: []Policy{
		{ID: "slow", Name: "Slow Streets", ImplementationCost: 1000, RecurringCost: 10,
			Effects: Effects{SpeedMultiplier: 0.8, HappinessBonus: 2, PollutionReduction: 5}, PublicSupport: 60, MinSupport: 30},
		{ID: "tolls", Name: "Tolls", ImplementationCost: 500, RecurringCost: 5,
			Effects: Effects{SpeedMultiplier: 0.9, TollRevenueMultiplier: 1.5, CongestionReduction: 10, HappinessBonus: -1}, PublicSupport: 50, MinSupport: 40},
		{ID: "unpopular", Name: "Unpopular", ImplementationCost: 10, PublicSupport: 10, MinSupport: 30},
	}})
}

func TestEnactCombinesEffects(t *testing.T) {
	l := testLedger()
	cost, res := l.Enact("slow", 5000)
	require.True(t, res.OK, res.Message)
	assert.Equal(t, 1000.0, cost)
	_, res = l.Enact("tolls", 5000)
	require.True(t, res.OK, res.Message)

	want := Effects{
		SpeedMultiplier:            0.8 * 0.9,
		TollRevenueMultiplier:      1.5,
		ConstructionCostMultiplier: 1,
		PollutionReduction:         5,
		HappinessBonus:             1,
		CongestionReduction:        10,
	}
	if diff := cmp.Diff(want, l.Effects()); diff != "" {
		t.Errorf("effects mismatch (-want +got):\n%s", diff)
	}

	st := l.Update(0)
	assert.Equal(t, []string{"slow", "tolls"}, st.Active)
	assert.Equal(t, 15.0, st.RecurringCost)
}

func TestEnactInsufficientFundsLeavesActiveSetUnchanged(t *testing.T) {
	l := testLedger()
	cost, res := l.Enact("slow", 999)
	assert.False(t, res.OK)
	assert.Zero(t, cost)
	assert.Contains(t, res.Message, "insufficient funds")
	assert.Empty(t, l.Stats().Active)
	assert.Equal(t, Neutral(), l.Effects())
}

func TestEnactGates(t *testing.T) {
	l := testLedger()
	_, res := l.Enact("missing", 1e9)
	assert.False(t, res.OK)

	_, res = l.Enact("unpopular", 1e9)
	assert.False(t, res.OK)
	assert.Contains(t, res.Message, "support")

	_, res = l.Enact("slow", 1e9)
	require.True(t, res.OK)
	_, res = l.Enact("slow", 1e9)
	assert.False(t, res.OK)
	assert.Contains(t, res.Message, "already active")
}

func TestRepeal(t *testing.T) {
	l := testLedger()
	assert.False(t, l.Repeal("slow").OK)
	l.Enact("slow", 1e9)
	assert.True(t, l.Repeal("slow").OK)
	assert.False(t, l.IsActive("slow"))
	assert.Equal(t, Neutral(), l.Effects())
}

func TestSupportDropAutoRepeals(t *testing.T) {
	l := testLedger()
	l.Enact("tolls", 1e9)

	res := l.AdjustSupport("tolls", -5)
	assert.True(t, res.OK)
	assert.True(t, l.IsActive("tolls"))

	l.AdjustSupport("tolls", -10)
	assert.False(t, l.IsActive("tolls"))
	assert.NotEmpty(t, l.DrainEvents())

	l.AdjustSupport("tolls", -500)
	for _, p := range l.Policies() {
		assert.GreaterOrEqual(t, p.PublicSupport, 0.0)
		assert.LessOrEqual(t, p.PublicSupport, 100.0)
	}
}

func TestDefaultCatalogIsEnactable(t *testing.T) {
	l := NewLedger(DefaultConfig())
	for _, p := range l.Policies() {
		_, res := l.Enact(p.ID, 1e9)
		assert.True(t, res.OK, "%s: %s", p.ID, res.Message)
	}
	e := l.Effects()
	assert.Less(t, e.SpeedMultiplier, 1.0)
	assert.Greater(t, e.PollutionReduction, 0.0)
}
