package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTaxPerItem(t *testing.T) {
	tests := []struct {
		name     string
		itemID   int
		price    int64
		expected int64
	}{
		{
			name:     "regular item pays two percent floored",
			itemID:   100,
			price:    151,
			expected: 3, // floor(151 * 0.02)
		},
		{
			name:     "cheap item rounds to zero",
			itemID:   100,
			price:    49,
			expected: 0,
		},
		{
			name:     "tax capped per unit",
			itemID:   100,
			price:    1_000_000_000,
			expected: MaxTaxPerItem,
		},
		{
			name:     "bond is exempt",
			itemID:   13190,
			price:    10_000_000,
			expected: 0,
		},
		{
			name:     "hammer is exempt",
			itemID:   2347,
			price:    500,
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, TaxPerItem(tt.itemID, tt.price))
		})
	}
}

func TestSaleTax(t *testing.T) {
	assert.Equal(t, int64(10), SaleTax(100, 120, 5))
	assert.Equal(t, int64(0), SaleTax(13190, 120, 5))
}

func TestFlipProfit(t *testing.T) {
	flip := Flip{
		OpenedQuantity:  10,
		ClosedQuantity:  10,
		Spent:           1000,
		ReceivedPostTax: 1180,
	}
	assert.Equal(t, int64(180), flip.Profit())

	partial := Flip{
		OpenedQuantity:  10,
		ClosedQuantity:  5,
		Spent:           1000,
		ReceivedPostTax: 590,
	}
	// cost basis of the matched half is 500
	assert.Equal(t, int64(90), partial.Profit())

	unstarted := Flip{OpenedQuantity: 10, Spent: 1000}
	assert.Equal(t, int64(0), unstarted.Profit())
}

func TestFlipLastActivity(t *testing.T) {
	opened := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	closed := opened.Add(time.Hour)

	flip := Flip{OpenedTime: opened, ClosedTime: closed}
	assert.Equal(t, closed, flip.LastActivity())

	openOnly := Flip{OpenedTime: opened}
	assert.Equal(t, opened, openOnly.LastActivity())
}

func TestSideJSONRoundTrip(t *testing.T) {
	for _, side := range []Side{SideBuy, SideSell} {
		raw, err := side.MarshalJSON()
		assert.NoError(t, err)

		var decoded Side
		assert.NoError(t, decoded.UnmarshalJSON(raw))
		assert.Equal(t, side, decoded)
	}

	var bad Side
	assert.Error(t, bad.UnmarshalJSON([]byte(`"hold"`)))
}

func TestSnapshotEqual(t *testing.T) {
	a := OfferSnapshot{State: OfferStateBuying, ItemID: 100, Price: 50, TotalQuantity: 10}
	b := a
	assert.True(t, a.Equal(b))

	b.SuggestedPriceUsed = true
	assert.False(t, a.Equal(b))
}
