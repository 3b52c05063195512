package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// FlipStatus is the lifecycle stage of a flip.
type FlipStatus int

const (
	// FlipStatusOpening means the opening buy offer is still filling.
	FlipStatusOpening FlipStatus = iota
	// FlipStatusOpen means the position is fully opened and not yet selling.
	FlipStatusOpen
	// FlipStatusClosing means part of the position has been sold.
	FlipStatusClosing
	// FlipStatusClosed means the position is flat and the flip is archived.
	FlipStatusClosed
)

const (
	flipStatusStringOpening = "opening"
	flipStatusStringOpen    = "open"
	flipStatusStringClosing = "closing"
	flipStatusStringClosed  = "closed"
)

// String returns the string representation of the status.
func (s FlipStatus) String() string {
	switch s {
	case FlipStatusOpening:
		return flipStatusStringOpening
	case FlipStatusOpen:
		return flipStatusStringOpen
	case FlipStatusClosing:
		return flipStatusStringClosing
	case FlipStatusClosed:
		return flipStatusStringClosed
	default:
		return "unknown"
	}
}

// MarshalJSON encodes the status as its string form.
func (s FlipStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes the string form of the status.
func (s *FlipStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch raw {
	case flipStatusStringOpening:
		*s = FlipStatusOpening
	case flipStatusStringOpen:
		*s = FlipStatusOpen
	case flipStatusStringClosing:
		*s = FlipStatusClosing
	case flipStatusStringClosed:
		*s = FlipStatusClosed
	default:
		return fmt.Errorf("unknown flip status %q", raw)
	}
	return nil
}

// Flip is a matched round-trip position in one item. While active it is keyed
// by item id; once acknowledged by the server the server-assigned id is
// canonical. Invariant: ClosedQuantity <= OpenedQuantity.
type Flip struct {
	ID              string     `json:"id"`
	AccountID       string     `json:"account_id"`
	ItemID          int        `json:"item_id"`
	OpenedQuantity  int        `json:"opened_quantity"`
	ClosedQuantity  int        `json:"closed_quantity"`
	Spent           int64      `json:"spent"`
	ReceivedPostTax int64      `json:"received_post_tax"`
	TaxPaid         int64      `json:"tax_paid"`
	OpenedTime      time.Time  `json:"opened_time"`
	ClosedTime      time.Time  `json:"closed_time"`
	Status          FlipStatus `json:"status"`
}

// Profit returns realized profit: post-tax proceeds minus the cost basis of
// the matched quantity. Zero until something has been sold.
func (f *Flip) Profit() int64 {
	if f.ClosedQuantity == 0 || f.OpenedQuantity == 0 {
		return 0
	}
	costBasis := f.Spent * int64(f.ClosedQuantity) / int64(f.OpenedQuantity)
	return f.ReceivedPostTax - costBasis
}

// IsClosed reports whether the position is flat.
func (f *Flip) IsClosed() bool {
	return f.OpenedQuantity > 0 && f.ClosedQuantity == f.OpenedQuantity
}

// RemainingQuantity returns the still-open part of the position.
func (f *Flip) RemainingQuantity() int {
	if f.ClosedQuantity > f.OpenedQuantity {
		return 0
	}
	return f.OpenedQuantity - f.ClosedQuantity
}

// LastActivity returns the time of the most recent transaction applied to the
// flip, used for display ordering.
func (f *Flip) LastActivity() time.Time {
	if f.ClosedTime.After(f.OpenedTime) {
		return f.ClosedTime
	}
	return f.OpenedTime
}
