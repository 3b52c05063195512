package domain

// UncollectedDelta is the running tally of items and gp owed to the player by
// one slot's collection box.
type UncollectedDelta struct {
	ItemQuantity int   `json:"item_quantity"`
	Gp           int64 `json:"gp"`
}

// Add accumulates another delta into this one.
func (u *UncollectedDelta) Add(other UncollectedDelta) {
	u.ItemQuantity += other.ItemQuantity
	u.Gp += other.Gp
}

// Clear zeroes the tally.
func (u *UncollectedDelta) Clear() {
	u.ItemQuantity = 0
	u.Gp = 0
}

// IsZero reports whether nothing is owed.
func (u UncollectedDelta) IsZero() bool {
	return u.ItemQuantity == 0 && u.Gp == 0
}
