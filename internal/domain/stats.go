package domain

import "github.com/shopspring/decimal"

// Stats aggregates flip performance over an interval. All money values are
// integer gp; ROI is the only ratio and is display-only.
type Stats struct {
	Profit    int64
	TaxPaid   int64
	FlipsMade int
	// ROI is profit divided by total capital deployed.
	ROI decimal.Decimal
}

// ComputeROI derives the ROI ratio from profit and capital deployed.
func ComputeROI(profit, capitalDeployed int64) decimal.Decimal {
	if capitalDeployed == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(profit).Div(decimal.NewFromInt(capitalDeployed))
}
