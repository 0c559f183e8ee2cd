package app

import "github.com/steyzi/server/internal/domain/billing"

// defaultPlans is the plan catalog seeded on first start. Rows already
// present in the database are never overwritten, so operator edits stick.
func defaultPlans() []*billing.Plan {
	maxStarterBeds := 25
	maxStandardBeds := 120

	return []*billing.Plan{
		{
			ID:               "starter",
			Name:             "Starter",
			Description:      "Single-branch hostels getting off the ground",
			BillingCycle:     billing.BillingCycleMonthly,
			BasePrice:        499,
			BaseBedCount:     10,
			TopUpPricePerBed: 60,
			MaxBedsAllowed:   &maxStarterBeds,
			BranchCount:      1,
			TrialPeriodDays:  14,
			Features: []string{
				"resident_management",
				"rent_collection",
			},
			Active:       true,
			DisplayOrder: 1,
		},
		{
			ID:                    "standard",
			Name:                  "Standard",
			Description:           "Growing operators with one or two locations",
			BillingCycle:          billing.BillingCycleMonthly,
			BasePrice:             1499,
			BaseBedCount:          40,
			TopUpPricePerBed:      45,
			MaxBedsAllowed:        &maxStandardBeds,
			AllowMultipleBranches: true,
			BranchCount:           3,
			CostPerBranch:         499,
			TrialPeriodDays:       14,
			Features: []string{
				"resident_management",
				"rent_collection",
				"bulk_upload",
				"reports",
			},
			Active:       true,
			DisplayOrder: 2,
		},
		{
			ID:                    "premium",
			Name:                  "Premium",
			Description:           "Multi-branch chains, billed annually",
			BillingCycle:          billing.BillingCycleAnnual,
			BasePrice:             3999,
			BaseBedCount:          100,
			TopUpPricePerBed:      35,
			AllowMultipleBranches: true,
			BranchCount:           10,
			CostPerBranch:         399,
			AnnualDiscountPercent: 15,
			Features: []string{
				"resident_management",
				"rent_collection",
				"bulk_upload",
				"reports",
				"priority_support",
			},
			Active:       true,
			DisplayOrder: 3,
		},
	}
}
