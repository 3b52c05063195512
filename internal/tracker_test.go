package internal

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/fliptrack/internal/domain"
	"github.com/vadiminshakov/fliptrack/internal/storage/kv"
)

type stubBackend struct {
	mu      sync.Mutex
	batches [][]domain.Transaction
}

func (s *stubBackend) SendTransactions(_ context.Context, batch []domain.Transaction, _ string) ([]domain.Flip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make([]domain.Transaction, len(batch))
	copy(copied, batch)
	s.batches = append(s.batches, copied)
	return nil, nil
}

func (s *stubBackend) transactions() []domain.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Transaction
	for _, b := range s.batches {
		out = append(out, b...)
	}
	return out
}

func (s *stubBackend) LoadFlips(context.Context, string) ([]domain.Flip, error) { return nil, nil }
func (s *stubBackend) DeleteFlip(context.Context, string, string) error         { return nil }
func (s *stubBackend) DeleteTransaction(context.Context, string, string) error  { return nil }
func (s *stubBackend) OrphanTransaction(context.Context, string, string) error  { return nil }

func newTestTracker(t *testing.T) (*Tracker, *stubBackend) {
	t.Helper()
	backend := &stubBackend{}
	tracker, err := NewTracker(kv.NewMemStore(), backend, nil, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(tracker.Close)

	require.NoError(t, tracker.OnAccountChanged("acc"))
	tracker.OnLogin(true)
	return tracker, backend
}

func TestTrackerInfersAndSyncsTransactions(t *testing.T) {
	tracker, backend := newTestTracker(t)

	placed := domain.OfferSnapshot{
		State: domain.OfferStateBuying, ItemID: 100, Price: 50, TotalQuantity: 10,
	}
	tracker.OnOfferSnapshot(0, placed)

	for i := 0; i < 5; i++ {
		tracker.OnTick()
	}

	filled := placed
	filled.QuantityTransacted = 4
	filled.AmountSpent = 200
	tracker.OnOfferSnapshot(0, filled)
	tracker.OnOfferSnapshot(0, filled) // polled redelivery

	require.Eventually(t, func() bool {
		return len(tracker.Pending()) == 0
	}, 5*time.Second, 10*time.Millisecond)

	sent := backend.transactions()
	require.Len(t, sent, 1, "duplicate snapshots infer no extra transaction")
	tx := sent[0]
	assert.Equal(t, domain.SideBuy, tx.Side)
	assert.Equal(t, 4, tx.Quantity)
	assert.Equal(t, int64(200), tx.AmountSpent)
	assert.False(t, tx.LoginBurst, "past the login burst window")

	active, ok := tracker.Flipper().ActiveFlip("acc", 100)
	require.True(t, ok, "the buy opened a flip")
	assert.Equal(t, 4, active.OpenedQuantity)
}

func TestTrackerFiresSuggestionOnFreedSlot(t *testing.T) {
	tracker, _ := newTestTracker(t)

	freed := make(chan int, 1)
	tracker.SuggestionNeeded = func(slot int) { freed <- slot }

	selling := domain.OfferSnapshot{
		State: domain.OfferStateSelling, ItemID: 7, Price: 100, TotalQuantity: 5,
		QuantityTransacted: 3, AmountSpent: 300,
	}
	tracker.OnOfferSnapshot(2, selling)
	tracker.OnOfferSnapshot(2, domain.OfferSnapshot{State: domain.OfferStateEmpty})

	select {
	case slot := <-freed:
		assert.Equal(t, 2, slot)
	default:
		t.Fatal("slot-freed suggestion never fired")
	}

	assert.True(t, tracker.Uncollected(2).IsZero(), "empty snapshot cleared the owed tally")
}

func TestTrackerIgnoresEventsWithoutAccount(t *testing.T) {
	backend := &stubBackend{}
	tracker, err := NewTracker(kv.NewMemStore(), backend, nil, zap.NewNop())
	require.NoError(t, err)
	defer tracker.Close()

	tracker.OnOfferSnapshot(0, domain.OfferSnapshot{
		State: domain.OfferStateBuying, ItemID: 1, Price: 1, TotalQuantity: 1,
		QuantityTransacted: 1, AmountSpent: 1,
	})

	assert.Empty(t, tracker.Pending())
}

func TestTrackerDropsOutOfRangeSlot(t *testing.T) {
	tracker, _ := newTestTracker(t)

	tracker.OnOfferSnapshot(99, domain.OfferSnapshot{
		State: domain.OfferStateBuying, ItemID: 1, Price: 1, TotalQuantity: 1,
		QuantityTransacted: 1, AmountSpent: 1,
	})

	assert.Empty(t, tracker.Pending())
}

func TestTrackerWorldHopRearmsBootstrapSuppression(t *testing.T) {
	tracker, backend := newTestTracker(t)

	tracker.OnWorldHop()

	// the spurious empty burst on hop must not reach the diff engine
	tracker.OnOfferSnapshot(0, domain.OfferSnapshot{State: domain.OfferStateEmpty})

	buying := domain.OfferSnapshot{
		State: domain.OfferStateBuying, ItemID: 100, Price: 50, TotalQuantity: 10,
		QuantityTransacted: 2, AmountSpent: 100,
	}
	tracker.OnOfferSnapshot(0, buying)

	require.Eventually(t, func() bool {
		return len(tracker.Pending()) == 0
	}, 5*time.Second, 10*time.Millisecond)

	sent := backend.transactions()
	require.Len(t, sent, 1)
	assert.True(t, sent[0].LoginBurst, "fills right after a hop carry the burst flag")
}
