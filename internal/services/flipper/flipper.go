// Package flipper matches opposite-side transactions per item into round-trip
// flips and keeps profit, tax and interval statistics.
package flipper

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vadiminshakov/fliptrack/internal/domain"
	"github.com/vadiminshakov/fliptrack/internal/storage/flips"
)

// localIDPrefix marks flips opened locally and not yet acknowledged by the
// server. Once the server returns its own record for the item, the
// provisional flip is superseded.
const localIDPrefix = "local-"

// Engine owns in-memory flip state. The server's flip records are the
// long-term source of truth; local state is a write-ahead cache seeded from
// and reconciled with them.
type Engine struct {
	logger  *zap.Logger
	archive *flips.WALStore

	mu        sync.Mutex
	active    map[string]*domain.Flip
	completed []*domain.Flip
	byID      map[string]int
	seenTx    map[string]struct{}
}

// New creates a flip engine, restoring archived flips from the WAL store.
// A nil archive keeps everything in memory only.
func New(archive *flips.WALStore, logger *zap.Logger) (*Engine, error) {
	e := &Engine{
		logger:  logger,
		archive: archive,
		active:  make(map[string]*domain.Flip),
		byID:    make(map[string]int),
		seenTx:  make(map[string]struct{}),
	}

	if archive != nil {
		restored, err := archive.Load()
		if err != nil {
			return nil, err
		}
		for _, flip := range restored {
			f := flip
			e.byID[f.ID] = len(e.completed)
			e.completed = append(e.completed, &f)
		}
	}

	return e, nil
}

func activeKey(accountID string, itemID int) string {
	return fmt.Sprintf("%s|%d", accountID, itemID)
}

// Apply folds one transaction into flip state and returns the realized profit
// it produced (always zero for buys). Re-delivery of an already-applied
// transaction id is a no-op, as required by the at-least-once pipeline.
func (e *Engine) Apply(tx domain.Transaction) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.seenTx[tx.ID]; ok {
		return 0
	}
	e.seenTx[tx.ID] = struct{}{}

	switch tx.Side {
	case domain.SideBuy:
		e.applyBuyLocked(tx)
		return 0
	case domain.SideSell:
		return e.applySellLocked(tx)
	}
	return 0
}

func (e *Engine) applyBuyLocked(tx domain.Transaction) {
	key := activeKey(tx.AccountID, tx.ItemID)
	flip, ok := e.active[key]
	if !ok {
		flip = &domain.Flip{
			ID:         localIDPrefix + uuid.New().String(),
			AccountID:  tx.AccountID,
			ItemID:     tx.ItemID,
			OpenedTime: tx.Timestamp,
			Status:     domain.FlipStatusOpening,
		}
		e.active[key] = flip
	}

	flip.OpenedQuantity += tx.Quantity
	flip.Spent += tx.AmountSpent
	if flip.Status == domain.FlipStatusOpening && flip.OpenedQuantity >= tx.TotalOfferQuantity {
		flip.Status = domain.FlipStatusOpen
	}
}

func (e *Engine) applySellLocked(tx domain.Transaction) int64 {
	key := activeKey(tx.AccountID, tx.ItemID)
	flip, ok := e.active[key]
	if !ok {
		e.logger.Warn("sell with no active flip, leaving to server reconciliation",
			zap.Int("item", tx.ItemID), zap.String("tx", tx.ID))
		return 0
	}

	matched := flip.RemainingQuantity()
	if matched > tx.Quantity {
		matched = tx.Quantity
	}
	if matched == 0 {
		e.logger.Warn("sell against a flat position",
			zap.Int("item", tx.ItemID), zap.String("tx", tx.ID))
		return 0
	}

	gross := tx.AmountSpent
	if matched < tx.Quantity {
		gross = tx.AmountSpent * int64(matched) / int64(tx.Quantity)
	}
	tax := domain.SaleTax(tx.ItemID, tx.Price, matched)
	received := gross - tax
	costBasis := flip.Spent * int64(matched) / int64(flip.OpenedQuantity)

	flip.ClosedQuantity += matched
	flip.ReceivedPostTax += received
	flip.TaxPaid += tax
	flip.ClosedTime = tx.Timestamp
	flip.Status = domain.FlipStatusClosing

	if flip.IsClosed() {
		flip.Status = domain.FlipStatusClosed
		delete(e.active, key)
		e.archiveLocked(flip)
	}

	return received - costBasis
}

// archiveLocked moves a closed flip to the completed list. A flip that closed
// without a single sell is discarded so immediately-cancelled zero-fill
// offers never pollute history.
func (e *Engine) archiveLocked(flip *domain.Flip) {
	if flip.ClosedQuantity == 0 {
		return
	}

	e.upsertCompletedLocked(flip)
	if e.archive != nil {
		if err := e.archive.Save(*flip); err != nil {
			e.logger.Error("archive flip", zap.String("flip", flip.ID), zap.Error(err))
		}
	}
}

func (e *Engine) upsertCompletedLocked(flip *domain.Flip) {
	if pos, ok := e.byID[flip.ID]; ok {
		e.completed[pos] = flip
		return
	}
	e.byID[flip.ID] = len(e.completed)
	e.completed = append(e.completed, flip)
}

// MergeFlips applies the server's canonical flip records. Server data wins on
// conflict; locally-opened flips not yet acknowledged stay visible until a
// server record for the same item supersedes them. Merging the same payload
// twice yields the same state.
func (e *Engine) MergeFlips(serverFlips []domain.Flip) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, sf := range serverFlips {
		flip := sf
		key := activeKey(flip.AccountID, flip.ItemID)

		if flip.IsClosed() || flip.Status == domain.FlipStatusClosed {
			flip.Status = domain.FlipStatusClosed
			e.upsertCompletedLocked(&flip)
			if e.archive != nil {
				if err := e.archive.Save(flip); err != nil {
					e.logger.Error("archive flip", zap.String("flip", flip.ID), zap.Error(err))
				}
			}
			if a, ok := e.active[key]; ok && (a.ID == flip.ID || isLocalID(a.ID)) {
				delete(e.active, key)
			}
			e.dropProvisionalCompletedLocked(flip.AccountID, flip.ItemID, flip.ID)
			continue
		}

		// an open server flip replaces whatever we tracked for the item
		e.active[key] = &flip
	}
}

// dropProvisionalCompletedLocked removes locally-archived provisional flips
// for the item once the server delivers its own closed record for it.
func (e *Engine) dropProvisionalCompletedLocked(accountID string, itemID int, serverID string) {
	kept := e.completed[:0]
	for _, f := range e.completed {
		if isLocalID(f.ID) && f.AccountID == accountID && f.ItemID == itemID && f.ID != serverID {
			delete(e.byID, f.ID)
			continue
		}
		kept = append(kept, f)
	}
	e.completed = kept
	for i, f := range e.completed {
		e.byID[f.ID] = i
	}
}

func isLocalID(id string) bool {
	return strings.HasPrefix(id, localIDPrefix)
}

// Flips returns a copy of every tracked flip, completed first, then active.
func (e *Engine) Flips() []domain.Flip {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]domain.Flip, 0, len(e.completed)+len(e.active))
	for _, f := range e.completed {
		out = append(out, *f)
	}
	for _, f := range e.active {
		out = append(out, *f)
	}
	return out
}

// ActiveFlip returns the in-progress flip for the item, if any.
func (e *Engine) ActiveFlip(accountID string, itemID int) (domain.Flip, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	f, ok := e.active[activeKey(accountID, itemID)]
	if !ok {
		return domain.Flip{}, false
	}
	return *f, true
}
