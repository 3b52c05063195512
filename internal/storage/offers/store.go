// Package offers persists the last-accepted offer snapshot per account and
// slot, the "previous" side of every diff.
package offers

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/fliptrack/internal/domain"
	"github.com/vadiminshakov/fliptrack/internal/storage/kv"
)

// Store caches the last-accepted snapshot per (account, slot) and last-viewed
// price metadata per item.
type Store struct {
	kv     kv.Store
	logger *zap.Logger
}

// New creates an offer store on top of the given KV capability.
func New(store kv.Store, logger *zap.Logger) *Store {
	return &Store{kv: store, logger: logger}
}

func slotKey(accountID string, slot int) string {
	return kv.AccountKey(accountID, fmt.Sprintf("offer_%d", slot))
}

func priceKey(accountID string, itemID int) string {
	return kv.AccountKey(accountID, fmt.Sprintf("viewed_price_%d", itemID))
}

// Last returns the last-accepted snapshot for the slot, or nil if none was
// recorded. A corrupt record degrades to absent rather than failing startup.
func (s *Store) Last(accountID string, slot int) (*domain.OfferSnapshot, error) {
	raw, ok, err := s.kv.Get(slotKey(accountID, slot))
	if err != nil {
		return nil, errors.Wrap(err, "load last offer snapshot")
	}
	if !ok {
		return nil, nil
	}

	var snap domain.OfferSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		s.logger.Error("corrupt offer snapshot record, treating as absent",
			zap.Int("slot", slot), zap.Error(err))
		return nil, nil
	}
	return &snap, nil
}

// Put records the snapshot as the new "previous" for the slot.
func (s *Store) Put(accountID string, slot int, snap domain.OfferSnapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return errors.Wrap(err, "marshal offer snapshot")
	}
	return s.kv.Set(slotKey(accountID, slot), raw)
}

// LastViewedPrice returns the price the player last viewed for the item.
func (s *Store) LastViewedPrice(accountID string, itemID int) (int64, bool) {
	raw, ok, err := s.kv.Get(priceKey(accountID, itemID))
	if err != nil || !ok {
		return 0, false
	}
	var price int64
	if err := json.Unmarshal(raw, &price); err != nil {
		return 0, false
	}
	return price, true
}

// SetLastViewedPrice records the price the player last viewed for the item.
func (s *Store) SetLastViewedPrice(accountID string, itemID int, price int64) error {
	raw, err := json.Marshal(price)
	if err != nil {
		return errors.Wrap(err, "marshal viewed price")
	}
	return s.kv.Set(priceKey(accountID, itemID), raw)
}
