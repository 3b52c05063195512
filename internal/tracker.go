// Package internal wires the snapshot pipeline: slot filters, diff engine,
// ledger and flip engine behind the game-loop event surface.
package internal

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/fliptrack/internal/clients"
	"github.com/vadiminshakov/fliptrack/internal/domain"
	"github.com/vadiminshakov/fliptrack/internal/services/diff"
	"github.com/vadiminshakov/fliptrack/internal/services/flipper"
	"github.com/vadiminshakov/fliptrack/internal/services/ledger"
	"github.com/vadiminshakov/fliptrack/internal/services/slotfilter"
	"github.com/vadiminshakov/fliptrack/internal/storage/flips"
	"github.com/vadiminshakov/fliptrack/internal/storage/kv"
	"github.com/vadiminshakov/fliptrack/internal/storage/offers"
	"github.com/vadiminshakov/fliptrack/pkg/retrier"
)

// Tracker consumes the host's game-loop events and drives the inference
// pipeline. Event handlers run on the host's frame loop: they never block on
// network I/O and never let a panic escape into the host's event dispatch.
type Tracker struct {
	logger  *zap.Logger
	store   kv.Store
	backend clients.Backend
	flipper *flipper.Engine
	offers  *offers.Store
	diff    *diff.Engine
	filters *slotfilter.Bank

	mu              sync.Mutex
	accountID       string
	ledger          *ledger.Ledger
	ticksSinceLogin int

	// SuggestionNeeded fires when a slot becomes free and a new offer could
	// be placed. Consumed by the UI layer.
	SuggestionNeeded func(slot int)
	// AuthFailure fires when the server rejects credentials; the caller is
	// expected to force re-login.
	AuthFailure func()
}

// NewTracker builds the pipeline on top of the given capabilities.
func NewTracker(store kv.Store, backend clients.Backend, archive *flips.WALStore, logger *zap.Logger) (*Tracker, error) {
	flipEngine, err := flipper.New(archive, logger)
	if err != nil {
		return nil, errors.Wrap(err, "restore flip engine")
	}

	offerStore := offers.New(store, logger)

	return &Tracker{
		logger:  logger,
		store:   store,
		backend: backend,
		flipper: flipEngine,
		offers:  offerStore,
		diff:    diff.New(offerStore, logger),
		filters: slotfilter.NewBank(),
	}, nil
}

// Flipper exposes the flip engine for the UI layer (stats, flip pages).
func (t *Tracker) Flipper() *flipper.Engine {
	return t.flipper
}

// Offers exposes the offer store (last-viewed-price metadata).
func (t *Tracker) Offers() *offers.Store {
	return t.offers
}

// OnAccountChanged switches the active account: cancels the old account's
// sync scheduling, resets the slot filters and builds a fresh ledger that
// recovers the account's persisted queue. Flip state is seeded from the
// server off the game-loop thread.
func (t *Tracker) OnAccountChanged(accountID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.ledger != nil {
		t.ledger.CancelOngoingSync()
		t.ledger = nil
	}
	t.filters.OnAccountSwitch()
	t.accountID = accountID
	if accountID == "" {
		return nil
	}

	led, err := ledger.New(accountID, t.store, t.backend, t.flipper, t.logger)
	if err != nil {
		return errors.Wrapf(err, "create ledger for account %s", accountID)
	}
	led.SetOnAuthFailure(func() {
		if t.AuthFailure != nil {
			t.AuthFailure()
		}
	})
	t.ledger = led

	go t.seedFlips(accountID, led)
	return nil
}

// seedFlips loads the server's canonical flip records, then replays the
// recovered pending queue on top so unacknowledged local fills stay visible.
func (t *Tracker) seedFlips(accountID string, led *ledger.Ledger) {
	defer t.recoverPanic("seedFlips")

	serverFlips, err := retrier.DoWithData(retrier.New(), context.Background(),
		func(ctx context.Context) ([]domain.Flip, error) {
			return t.backend.LoadFlips(ctx, accountID)
		})
	if err != nil {
		t.logger.Warn("initial flip load failed, starting from local state",
			zap.String("account", accountID), zap.Error(err))
	} else {
		t.flipper.MergeFlips(serverFlips)
	}

	led.ReplayPending()
}

// OnOfferSnapshot consumes one polled slot snapshot. Runs on the game loop.
func (t *Tracker) OnOfferSnapshot(slot int, snap domain.OfferSnapshot) {
	defer t.recoverPanic("OnOfferSnapshot")

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.accountID == "" || t.ledger == nil {
		return
	}

	filter := t.filters.Filter(slot)
	if filter == nil {
		t.logger.Warn("snapshot for out-of-range slot dropped", zap.Int("slot", slot))
		return
	}
	if !filter.ShouldProcess(snap) {
		return
	}

	res, err := t.diff.Process(t.accountID, slot, snap, t.ticksSinceLogin)
	if err != nil {
		t.logger.Error("diff failed", zap.Int("slot", slot), zap.Error(err))
		return
	}

	if res.Transaction != nil {
		profit := t.ledger.AddTransaction(*res.Transaction)
		t.logger.Info("transaction inferred",
			zap.Int("slot", slot),
			zap.Stringer("tx", res.Transaction),
			zap.Int64("estimated_profit", profit),
			zap.Bool("consistent", res.Consistent))
	}

	if res.SlotFreed && t.SuggestionNeeded != nil {
		t.SuggestionNeeded(slot)
	}
}

// OnTick advances the game clock by one tick.
func (t *Tracker) OnTick() {
	t.mu.Lock()
	t.ticksSinceLogin++
	t.mu.Unlock()
}

// OnLogin resets the login-burst window. When the game state is already
// logged in at startup, the bootstrap empty events will never arrive, so the
// filters are armed directly.
func (t *Tracker) OnLogin(alreadyLoggedIn bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ticksSinceLogin = 0
	if alreadyLoggedIn {
		t.filters.OnConfirmedLogin()
	}
}

// OnLogout re-arms the slot filters for the next session.
func (t *Tracker) OnLogout() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.filters.OnAccountSwitch()
}

// OnWorldHop re-arms the slot filters and restarts the login-burst window.
func (t *Tracker) OnWorldHop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ticksSinceLogin = 0
	t.filters.OnAccountSwitch()
}

// OnCollection clears the uncollected tally for the slot after the player
// collected its contents.
func (t *Tracker) OnCollection(slot int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.accountID == "" {
		return
	}
	t.diff.OnCollection(t.accountID, slot)
}

// Uncollected returns what the collection box currently owes for the slot.
func (t *Tracker) Uncollected(slot int) domain.UncollectedDelta {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.accountID == "" {
		return domain.UncollectedDelta{}
	}
	return t.diff.Uncollected(t.accountID, slot)
}

// Pending returns the active account's not-yet-acknowledged transactions.
func (t *Tracker) Pending() []domain.Transaction {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ledger == nil {
		return nil
	}
	return t.ledger.Pending()
}

// Close cancels background sync scheduling.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ledger != nil {
		t.ledger.CancelOngoingSync()
	}
}

// recoverPanic keeps a panic in pipeline code from crashing the host's event
// dispatch.
func (t *Tracker) recoverPanic(where string) {
	if r := recover(); r != nil {
		t.logger.Error("recovered panic", zap.String("where", where), zap.Any("panic", r))
	}
}
