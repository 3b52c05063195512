package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Side is the direction of an inferred fill.
type Side int

const (
	SideBuy Side = iota
	SideSell
)

const (
	sideStringBuy  = "buy"
	sideStringSell = "sell"
)

// String returns the string representation of the side.
func (s Side) String() string {
	switch s {
	case SideBuy:
		return sideStringBuy
	case SideSell:
		return sideStringSell
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the side as its string form for a stable wire format.
func (s Side) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes the string form of the side.
func (s *Side) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw {
	case sideStringBuy:
		*s = SideBuy
	case sideStringSell:
		*s = SideSell
	default:
		return fmt.Errorf("unknown transaction side %q", raw)
	}
	return nil
}

// SideFromState derives the fill direction from the offer state that produced it.
func SideFromState(state OfferState) Side {
	if state.IsSell() {
		return SideSell
	}
	return SideBuy
}

// Transaction is one inferred fill delta. It is immutable after creation and
// delivered at-least-once: duplicates share the same ID and must be merged
// idempotently downstream.
type Transaction struct {
	ID                 string    `json:"id"`
	AccountID          string    `json:"account_id"`
	Side               Side      `json:"side"`
	ItemID             int       `json:"item_id"`
	Price              int64     `json:"price"`
	Quantity           int       `json:"quantity"`
	AmountSpent        int64     `json:"amount_spent"`
	Slot               int       `json:"slot"`
	Timestamp          time.Time `json:"timestamp"`
	TotalOfferQuantity int       `json:"total_offer_quantity"`
	LoginBurst         bool      `json:"login_burst"`
	Consistent         bool      `json:"consistent"`
}

// String returns a human-readable string representation.
func (t *Transaction) String() string {
	return fmt.Sprintf("%s item=%d qty=%d price=%d spent=%d slot=%d",
		t.Side.String(), t.ItemID, t.Quantity, t.Price, t.AmountSpent, t.Slot)
}
