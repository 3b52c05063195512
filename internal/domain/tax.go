package domain

// Sales tax applied by the exchange on the sell side: a fixed percentage per
// unit, rounded down, capped at an absolute amount per unit. A small set of
// low-value utility items is exempt.
const (
	taxRateNumerator   = 2
	taxRateDenominator = 100
	// MaxTaxPerItem caps the absolute tax charged per unit sold.
	MaxTaxPerItem int64 = 5_000_000
)

var taxExemptItems = map[int]struct{}{
	233:   {}, // pestle and mortar
	952:   {}, // spade
	1733:  {}, // needle
	1735:  {}, // shears
	1755:  {}, // chisel
	1785:  {}, // glassblowing pipe
	2347:  {}, // hammer
	5325:  {}, // gardening trowel
	5329:  {}, // secateurs
	5331:  {}, // watering can
	5341:  {}, // rake
	5343:  {}, // seed dibber
	8794:  {}, // saw
	13190: {}, // bond
}

// IsTaxExempt reports whether sales of the item are exempt from the exchange tax.
func IsTaxExempt(itemID int) bool {
	_, ok := taxExemptItems[itemID]
	return ok
}

// TaxPerItem returns the tax charged for selling one unit of the item at the
// given price.
func TaxPerItem(itemID int, price int64) int64 {
	if IsTaxExempt(itemID) {
		return 0
	}
	tax := price * taxRateNumerator / taxRateDenominator
	if tax > MaxTaxPerItem {
		return MaxTaxPerItem
	}
	return tax
}

// SaleTax returns the total tax charged for selling quantity units at the
// given price.
func SaleTax(itemID int, price int64, quantity int) int64 {
	return TaxPerItem(itemID, price) * int64(quantity)
}

// PostTaxProceeds returns the gp actually credited for gross sale proceeds.
func PostTaxProceeds(itemID int, price int64, quantity int, grossProceeds int64) int64 {
	return grossProceeds - SaleTax(itemID, price, quantity)
}
