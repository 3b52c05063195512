// Package domain defines the core data structures of the flip tracker.
package domain

// OfferState represents the exchange's reported state for one order slot.
type OfferState int

const (
	OfferStateEmpty OfferState = iota
	OfferStateBuying
	OfferStateBought
	OfferStateSelling
	OfferStateSold
	OfferStateCancelledBuy
	OfferStateCancelledSell
)

const (
	offerStateStringEmpty         = "empty"
	offerStateStringBuying        = "buying"
	offerStateStringBought        = "bought"
	offerStateStringSelling       = "selling"
	offerStateStringSold          = "sold"
	offerStateStringCancelledBuy  = "cancelled_buy"
	offerStateStringCancelledSell = "cancelled_sell"
)

// String returns the string representation of the offer state.
func (s OfferState) String() string {
	switch s {
	case OfferStateEmpty:
		return offerStateStringEmpty
	case OfferStateBuying:
		return offerStateStringBuying
	case OfferStateBought:
		return offerStateStringBought
	case OfferStateSelling:
		return offerStateStringSelling
	case OfferStateSold:
		return offerStateStringSold
	case OfferStateCancelledBuy:
		return offerStateStringCancelledBuy
	case OfferStateCancelledSell:
		return offerStateStringCancelledSell
	default:
		return "unknown"
	}
}

// IsBuy reports whether the state belongs to the buy side of the book.
func (s OfferState) IsBuy() bool {
	return s == OfferStateBuying || s == OfferStateBought || s == OfferStateCancelledBuy
}

// IsSell reports whether the state belongs to the sell side of the book.
func (s OfferState) IsSell() bool {
	return s == OfferStateSelling || s == OfferStateSold || s == OfferStateCancelledSell
}

// IsCancelled reports whether the offer was cancelled by the player.
func (s OfferState) IsCancelled() bool {
	return s == OfferStateCancelledBuy || s == OfferStateCancelledSell
}

// OfferSnapshot is the exchange's view of one slot at one poll instant.
// Money values are integer gp.
type OfferSnapshot struct {
	State              OfferState `json:"state"`
	ItemID             int        `json:"item_id"`
	Price              int64      `json:"price"`
	TotalQuantity      int        `json:"total_quantity"`
	QuantityTransacted int        `json:"quantity_transacted"`
	AmountSpent        int64      `json:"amount_spent"`
	SuggestedPriceUsed bool       `json:"suggested_price_used"`
}

// Equal reports whether two snapshots match on every field.
func (s OfferSnapshot) Equal(other OfferSnapshot) bool {
	return s == other
}

// IsEmpty reports whether the slot holds no offer.
func (s OfferSnapshot) IsEmpty() bool {
	return s.State == OfferStateEmpty
}

// RemainingQuantity returns the unfilled part of the offer.
func (s OfferSnapshot) RemainingQuantity() int {
	if s.TotalQuantity < s.QuantityTransacted {
		return 0
	}
	return s.TotalQuantity - s.QuantityTransacted
}
