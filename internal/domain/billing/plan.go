package billing

import "fmt"

// Plan describes the pricing rules of a subscription plan.
// Plan is a value object - it carries configuration and validation only;
// cost computation lives in pricing.go.
type Plan struct {
	ID           string
	Name         string
	Description  string
	BillingCycle BillingCycle

	// Bed pricing
	BasePrice        float64 // includes BaseBedCount beds and the first branch
	BaseBedCount     int
	TopUpPricePerBed float64
	MaxBedsAllowed   *int // nil = unlimited

	// Branch pricing
	AllowMultipleBranches bool
	BranchCount           int // maximum branches purchasable on this plan
	CostPerBranch         float64

	AnnualDiscountPercent float64 // applies only when BillingCycle is annual
	TrialPeriodDays       int

	Features     []string
	Active       bool
	DisplayOrder int
}

// Validate checks the plan configuration. A malformed plan is an operator
// configuration error, never shown to end users.
func (p *Plan) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("%w: missing plan id", ErrInvalidPlan)
	}
	if !p.BillingCycle.IsValid() {
		return fmt.Errorf("%w: unknown billing cycle %q", ErrInvalidPlan, p.BillingCycle)
	}
	if p.BasePrice < 0 {
		return fmt.Errorf("%w: base price must not be negative", ErrInvalidPlan)
	}
	if p.BaseBedCount < 1 {
		return fmt.Errorf("%w: base bed count must be at least 1", ErrInvalidPlan)
	}
	if p.TopUpPricePerBed < 0 {
		return fmt.Errorf("%w: top-up price must not be negative", ErrInvalidPlan)
	}
	if p.MaxBedsAllowed != nil && *p.MaxBedsAllowed < p.BaseBedCount {
		return fmt.Errorf("%w: max beds %d below base bed count %d", ErrInvalidPlan, *p.MaxBedsAllowed, p.BaseBedCount)
	}
	if p.BranchCount < 1 {
		return fmt.Errorf("%w: branch count must be at least 1", ErrInvalidPlan)
	}
	if p.CostPerBranch < 0 {
		return fmt.Errorf("%w: branch cost must not be negative", ErrInvalidPlan)
	}
	if p.AnnualDiscountPercent < 0 || p.AnnualDiscountPercent > 100 {
		return fmt.Errorf("%w: annual discount must be between 0 and 100", ErrInvalidPlan)
	}
	if p.TrialPeriodDays < 0 {
		return fmt.Errorf("%w: trial period must not be negative", ErrInvalidPlan)
	}
	return nil
}

// IsUnlimitedBeds returns true if the plan has no bed cap.
func (p *Plan) IsUnlimitedBeds() bool {
	return p.MaxBedsAllowed == nil
}

// IsFree returns true if the plan carries no charge at all.
func (p *Plan) IsFree() bool {
	return p.BasePrice == 0 && p.TopUpPricePerBed == 0 && p.CostPerBranch == 0
}

// HasTrial returns true if the plan starts with a trial period.
func (p *Plan) HasTrial() bool {
	return p.TrialPeriodDays > 0
}
