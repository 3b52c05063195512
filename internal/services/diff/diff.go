// Package diff turns consecutive offer snapshots into inferred transactions
// and uncollected-item/gold deltas.
package diff

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/fliptrack/internal/domain"
	"github.com/vadiminshakov/fliptrack/internal/storage/offers"
)

// loginBurstTicks is the window after login during which offer state is
// unreliable and inferred transactions are flagged.
const loginBurstTicks = 2

// Result is the outcome of diffing one snapshot against the slot's previous one.
type Result struct {
	// Transaction is the inferred fill, nil when the transition carried none.
	Transaction *domain.Transaction
	// Uncollected is the slot's running owed tally after this transition.
	Uncollected domain.UncollectedDelta
	// Consistent is false for transitions that violate the consistency rule.
	Consistent bool
	// SlotFreed is true when the slot just became empty.
	SlotFreed bool
}

// Engine infers discrete buy/sell transactions from snapshot pairs. Diffing
// itself is pure; the engine's only side effects are persisting the current
// snapshot as the new "previous" and keeping the per-slot uncollected tally.
type Engine struct {
	offers *offers.Store
	logger *zap.Logger

	mu          sync.Mutex
	uncollected map[string]*domain.UncollectedDelta
}

// New creates a diff engine backed by the given offer store.
func New(store *offers.Store, logger *zap.Logger) *Engine {
	return &Engine{
		offers:      store,
		logger:      logger,
		uncollected: make(map[string]*domain.UncollectedDelta),
	}
}

// Process diffs the current snapshot against the stored previous one for the
// slot. Duplicates are filtered upstream, so every call represents a real
// state change. A missing previous snapshot is a valid first observation, not
// an error.
func (e *Engine) Process(accountID string, slot int, current domain.OfferSnapshot, ticksSinceLogin int) (Result, error) {
	prev, err := e.offers.Last(accountID, slot)
	if err != nil {
		return Result{}, errors.Wrap(err, "load previous snapshot")
	}

	consistent := isConsistent(prev, current)
	if !consistent {
		e.logger.Warn("inconsistent offer transition",
			zap.Int("slot", slot),
			zap.Any("previous", prev),
			zap.Any("current", current))
	}

	newOffer := isNewOffer(prev, current)

	baseQty, baseSpent := 0, int64(0)
	if !newOffer && prev != nil {
		baseQty = prev.QuantityTransacted
		baseSpent = prev.AmountSpent
	}
	deltaQty := current.QuantityTransacted - baseQty
	deltaSpent := current.AmountSpent - baseSpent

	var tx *domain.Transaction
	if deltaQty > 0 && deltaSpent > 0 {
		tx = &domain.Transaction{
			ID:                 uuid.New().String(),
			AccountID:          accountID,
			Side:               domain.SideFromState(current.State),
			ItemID:             current.ItemID,
			Price:              current.Price,
			Quantity:           deltaQty,
			AmountSpent:        deltaSpent,
			Slot:               slot,
			Timestamp:          time.Now().UTC(),
			TotalOfferQuantity: current.TotalQuantity,
			LoginBurst:         ticksSinceLogin <= loginBurstTicks,
			Consistent:         consistent,
		}
	}

	e.mu.Lock()
	tally := e.tallyLocked(accountID, slot)
	if consistent {
		updateUncollected(tally, current, deltaQty)
	}
	owed := *tally
	e.mu.Unlock()

	if err := e.offers.Put(accountID, slot, current); err != nil {
		// the diff result is still valid; the next diff just reuses an older previous
		e.logger.Error("persist offer snapshot", zap.Int("slot", slot), zap.Error(err))
	}

	return Result{
		Transaction: tx,
		Uncollected: owed,
		Consistent:  consistent,
		SlotFreed:   current.IsEmpty() && prev != nil && !prev.IsEmpty(),
	}, nil
}

// OnCollection clears the slot's owed tally after a confirmed collection.
func (e *Engine) OnCollection(accountID string, slot int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tallyLocked(accountID, slot).Clear()
}

// Uncollected returns the current owed tally for the slot.
func (e *Engine) Uncollected(accountID string, slot int) domain.UncollectedDelta {
	e.mu.Lock()
	defer e.mu.Unlock()
	return *e.tallyLocked(accountID, slot)
}

func (e *Engine) tallyLocked(accountID string, slot int) *domain.UncollectedDelta {
	key := fmt.Sprintf("%s|%d", accountID, slot)
	tally, ok := e.uncollected[key]
	if !ok {
		tally = &domain.UncollectedDelta{}
		e.uncollected[key] = tally
	}
	return tally
}

// updateUncollected applies one consistent transition to the slot's owed
// tally. An empty snapshot force-clears the tally instead of accumulating, to
// guard against the race between the collection action and the diff pipeline.
func updateUncollected(tally *domain.UncollectedDelta, current domain.OfferSnapshot, deltaQty int) {
	switch current.State {
	case domain.OfferStateBuying, domain.OfferStateBought:
		if deltaQty > 0 {
			tally.ItemQuantity += deltaQty
		}
	case domain.OfferStateSelling, domain.OfferStateSold:
		if deltaQty > 0 {
			tally.Gp += int64(deltaQty) * current.Price
		}
	case domain.OfferStateCancelledBuy:
		tally.Gp += int64(current.RemainingQuantity()) * current.Price
	case domain.OfferStateCancelledSell:
		tally.ItemQuantity += current.RemainingQuantity()
	case domain.OfferStateEmpty:
		tally.Clear()
	}
}

// isConsistent implements the permissive consistency predicate: a transition
// passes if it clears a slot, fills a previously-empty one without jumping
// straight to a cancellation, or agrees with the previous snapshot on at
// least one of state, item, price and total quantity. A first-ever
// observation is flagged inconsistent by definition.
func isConsistent(prev *domain.OfferSnapshot, current domain.OfferSnapshot) bool {
	if current.IsEmpty() {
		return true
	}
	if prev == nil {
		return false
	}
	if prev.IsEmpty() && !current.State.IsCancelled() {
		return true
	}
	return prev.State == current.State ||
		prev.ItemID == current.ItemID ||
		prev.Price == current.Price ||
		prev.TotalQuantity == current.TotalQuantity
}

// isNewOffer reports whether the current snapshot belongs to a different offer
// than the previous one, i.e. the fill counters restarted from zero. A state
// change along the natural progression of one offer (buying to bought, selling
// to sold, either to its own cancellation) is the same offer; any other state
// change, a changed item/price/total, or a decreased counter means the slot
// was reused.
func isNewOffer(prev *domain.OfferSnapshot, current domain.OfferSnapshot) bool {
	if prev == nil {
		return true
	}
	if !sameOfferProgression(prev.State, current.State) {
		return true
	}
	if prev.ItemID != current.ItemID ||
		prev.Price != current.Price ||
		prev.TotalQuantity != current.TotalQuantity {
		return true
	}
	return current.QuantityTransacted < prev.QuantityTransacted ||
		current.AmountSpent < prev.AmountSpent
}

func sameOfferProgression(prev, current domain.OfferState) bool {
	if prev == current {
		return true
	}
	switch prev {
	case domain.OfferStateBuying:
		return current == domain.OfferStateBought || current == domain.OfferStateCancelledBuy
	case domain.OfferStateSelling:
		return current == domain.OfferStateSold || current == domain.OfferStateCancelledSell
	}
	return false
}
