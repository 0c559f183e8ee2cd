package billing

import "fmt"

// CostBreakdown is the itemized price of running a plan at a given bed and
// branch count. All amounts are plain currency units; rounding and formatting
// are presentation concerns.
type CostBreakdown struct {
	ExtraBeds        int     `json:"extra_beds"`
	TopUpCost        float64 `json:"top_up_cost"`
	ExtraBranches    int     `json:"extra_branches"`
	BranchCost       float64 `json:"branch_cost"`
	TotalMonthly     float64 `json:"total_monthly"`
	TotalAnnual      float64 `json:"total_annual"`
	EffectiveMonthly float64 `json:"effective_monthly"`
	SavingsAnnual    float64 `json:"savings_annual"`
}

// CalculateCost computes the itemized cost of a plan at the requested bed and
// branch counts. Pure function: same inputs always produce the same output.
//
// The first branch is always included in the base price. Branch top-ups are
// priced only when the plan allows multiple branches; otherwise the branch
// line items are forced to zero regardless of the requested count.
func CalculateCost(plan *Plan, requestedBeds, requestedBranches int) (*CostBreakdown, error) {
	if plan == nil {
		return nil, fmt.Errorf("%w: plan is required", ErrInvalidArgument)
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	if requestedBeds < 0 {
		return nil, fmt.Errorf("%w: requested bed count must not be negative", ErrInvalidArgument)
	}
	if requestedBranches < 0 {
		return nil, fmt.Errorf("%w: requested branch count must not be negative", ErrInvalidArgument)
	}

	out := &CostBreakdown{}

	if requestedBeds > plan.BaseBedCount {
		out.ExtraBeds = requestedBeds - plan.BaseBedCount
		out.TopUpCost = float64(out.ExtraBeds) * plan.TopUpPricePerBed
	}

	if plan.AllowMultipleBranches && requestedBranches > 1 {
		out.ExtraBranches = requestedBranches - 1
		out.BranchCost = float64(out.ExtraBranches) * plan.CostPerBranch
	}

	out.TotalMonthly = plan.BasePrice + out.TopUpCost + out.BranchCost
	out.TotalAnnual = out.TotalMonthly * 12

	if plan.BillingCycle == BillingCycleAnnual && plan.AnnualDiscountPercent > 0 {
		out.SavingsAnnual = out.TotalAnnual * plan.AnnualDiscountPercent / 100
		out.TotalAnnual -= out.SavingsAnnual
	}

	out.EffectiveMonthly = out.TotalAnnual / 12

	return out, nil
}
