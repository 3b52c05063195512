// Package slotfilter suppresses duplicate and bootstrap-noise offer snapshots
// before they reach the diff engine. The host polls slot state, so the same
// unchanged snapshot is redelivered many times, and on login/world-hop it
// emits a spurious empty snapshot for every slot before real state is known.
package slotfilter

import "github.com/vadiminshakov/fliptrack/internal/domain"

// SlotCount is the number of concurrent order slots on the exchange interface.
const SlotCount = 8

// Filter is the per-slot event filter.
type Filter struct {
	lastAccepted  *domain.OfferSnapshot
	bootstrapSeen bool
}

// ShouldProcess reports whether the snapshot represents a real state change.
// The first empty snapshot after a reset is swallowed as bootstrap noise;
// exact repeats of the last-accepted snapshot are swallowed as duplicates.
func (f *Filter) ShouldProcess(snap domain.OfferSnapshot) bool {
	if !f.bootstrapSeen && snap.IsEmpty() {
		f.bootstrapSeen = true
		return false
	}
	if f.lastAccepted != nil && snap.Equal(*f.lastAccepted) {
		return false
	}

	accepted := snap
	f.lastAccepted = &accepted
	f.bootstrapSeen = true
	return true
}

// OnAccountSwitch re-arms the bootstrap empty-suppression. Called on logout
// and world-hop.
func (f *Filter) OnAccountSwitch() {
	f.bootstrapSeen = false
	f.lastAccepted = nil
}

// OnConfirmedLogin marks the bootstrap event as seen without waiting for it.
// Called when the game is already logged in at startup, since the spurious
// empty event will never arrive retroactively.
func (f *Filter) OnConfirmedLogin() {
	f.bootstrapSeen = true
}

// Bank holds the fixed set of per-slot filters for one exchange interface.
type Bank struct {
	filters [SlotCount]Filter
}

// NewBank creates a bank of freshly-reset filters.
func NewBank() *Bank {
	return &Bank{}
}

// Filter returns the filter for the given slot, or nil for an out-of-range slot.
func (b *Bank) Filter(slot int) *Filter {
	if slot < 0 || slot >= SlotCount {
		return nil
	}
	return &b.filters[slot]
}

// OnAccountSwitch resets every slot filter.
func (b *Bank) OnAccountSwitch() {
	for i := range b.filters {
		b.filters[i].OnAccountSwitch()
	}
}

// OnConfirmedLogin marks every slot filter's bootstrap event as seen.
func (b *Bank) OnConfirmedLogin() {
	for i := range b.filters {
		b.filters[i].OnConfirmedLogin()
	}
}
