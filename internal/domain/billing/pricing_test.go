package billing

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func monthlyPlan() *Plan {
	return &Plan{
		ID:               "standard",
		Name:             "Standard",
		BillingCycle:     BillingCycleMonthly,
		BasePrice:        1000,
		BaseBedCount:     10,
		TopUpPricePerBed: 150,
		BranchCount:      1,
		Active:           true,
	}
}

func TestCalculateCost_MonthlyTopUp(t *testing.T) {
	// 13 beds on a 10-bed base at 150 per extra bed.
	out, err := CalculateCost(monthlyPlan(), 13, 1)
	require.NoError(t, err)

	assert.Equal(t, 3, out.ExtraBeds)
	assert.Equal(t, 450.0, out.TopUpCost)
	assert.Equal(t, 1450.0, out.TotalMonthly)
	assert.Equal(t, 0.0, out.SavingsAnnual)
	assert.Equal(t, 1450.0*12, out.TotalAnnual)
}

func TestCalculateCost_AnnualDiscount(t *testing.T) {
	plan := monthlyPlan()
	plan.BillingCycle = BillingCycleAnnual
	plan.AnnualDiscountPercent = 10

	out, err := CalculateCost(plan, 10, 1)
	require.NoError(t, err)

	assert.Equal(t, 10800.0, out.TotalAnnual)
	assert.Equal(t, 900.0, out.EffectiveMonthly)
	assert.Equal(t, 1200.0, out.SavingsAnnual)
}

func TestCalculateCost_WithinBaseIsFree(t *testing.T) {
	plan := monthlyPlan()
	for beds := 0; beds <= plan.BaseBedCount; beds++ {
		out, err := CalculateCost(plan, beds, 1)
		require.NoError(t, err)
		assert.Zero(t, out.ExtraBeds)
		assert.Zero(t, out.TopUpCost)
		assert.Equal(t, plan.BasePrice, out.TotalMonthly)
	}
}

func TestCalculateCost_TopUpExact(t *testing.T) {
	// No rounding drift across random integer inputs.
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 10000; i++ {
		plan := monthlyPlan()
		plan.BaseBedCount = 1 + rng.Intn(200)
		plan.TopUpPricePerBed = float64(rng.Intn(5000))
		requested := plan.BaseBedCount + rng.Intn(500)

		out, err := CalculateCost(plan, requested, 1)
		require.NoError(t, err)

		extra := requested - plan.BaseBedCount
		assert.Equal(t, extra, out.ExtraBeds)
		assert.Equal(t, float64(extra)*plan.TopUpPricePerBed, out.TopUpCost)
	}
}

func TestCalculateCost_SingleBranchPlanIgnoresBranches(t *testing.T) {
	plan := monthlyPlan()
	plan.AllowMultipleBranches = false
	plan.CostPerBranch = 500

	for _, branches := range []int{0, 1, 2, 10, 100} {
		out, err := CalculateCost(plan, 10, branches)
		require.NoError(t, err)
		assert.Zero(t, out.ExtraBranches)
		assert.Zero(t, out.BranchCost)
	}
}

func TestCalculateCost_MultiBranch(t *testing.T) {
	plan := monthlyPlan()
	plan.AllowMultipleBranches = true
	plan.BranchCount = 5
	plan.CostPerBranch = 300

	out, err := CalculateCost(plan, 10, 3)
	require.NoError(t, err)

	// First branch included in base price.
	assert.Equal(t, 2, out.ExtraBranches)
	assert.Equal(t, 600.0, out.BranchCost)
	assert.Equal(t, 1600.0, out.TotalMonthly)
}

func TestCalculateCost_DiscountRelation(t *testing.T) {
	for _, discount := range []float64{0, 5, 10, 25, 50, 100} {
		base := monthlyPlan()
		base.BillingCycle = BillingCycleAnnual

		discounted := monthlyPlan()
		discounted.BillingCycle = BillingCycleAnnual
		discounted.AnnualDiscountPercent = discount

		plain, err := CalculateCost(base, 17, 1)
		require.NoError(t, err)
		withDiscount, err := CalculateCost(discounted, 17, 1)
		require.NoError(t, err)

		expected := plain.TotalAnnual * (1 - discount/100)
		assert.InDelta(t, expected, withDiscount.TotalAnnual, 1e-9)
	}
}

func TestCalculateCost_InvalidInput(t *testing.T) {
	t.Run("negative beds", func(t *testing.T) {
		_, err := CalculateCost(monthlyPlan(), -1, 1)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("negative branches", func(t *testing.T) {
		_, err := CalculateCost(monthlyPlan(), 10, -1)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("nil plan", func(t *testing.T) {
		_, err := CalculateCost(nil, 10, 1)
		assert.ErrorIs(t, err, ErrInvalidArgument)
	})

	t.Run("malformed plan", func(t *testing.T) {
		plan := monthlyPlan()
		plan.BaseBedCount = 0
		_, err := CalculateCost(plan, 10, 1)
		assert.ErrorIs(t, err, ErrInvalidPlan)
	})
}

func TestCalculateCost_Deterministic(t *testing.T) {
	plan := monthlyPlan()
	plan.BillingCycle = BillingCycleAnnual
	plan.AnnualDiscountPercent = 12.5

	first, err := CalculateCost(plan, 42, 1)
	require.NoError(t, err)
	second, err := CalculateCost(plan, 42, 1)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.False(t, math.IsNaN(first.EffectiveMonthly))
}

func TestPlanValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Plan)
	}{
		{"missing id", func(p *Plan) { p.ID = "" }},
		{"bad cycle", func(p *Plan) { p.BillingCycle = "weekly" }},
		{"negative base price", func(p *Plan) { p.BasePrice = -1 }},
		{"zero base beds", func(p *Plan) { p.BaseBedCount = 0 }},
		{"negative top-up", func(p *Plan) { p.TopUpPricePerBed = -5 }},
		{"cap below base", func(p *Plan) { cap := 5; p.MaxBedsAllowed = &cap }},
		{"zero branches", func(p *Plan) { p.BranchCount = 0 }},
		{"negative branch cost", func(p *Plan) { p.CostPerBranch = -1 }},
		{"discount over 100", func(p *Plan) { p.AnnualDiscountPercent = 101 }},
		{"negative trial", func(p *Plan) { p.TrialPeriodDays = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := monthlyPlan()
			tt.mutate(plan)
			assert.ErrorIs(t, plan.Validate(), ErrInvalidPlan)
		})
	}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, monthlyPlan().Validate())
	})
}
