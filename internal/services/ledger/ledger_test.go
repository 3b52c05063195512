package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/fliptrack/internal/clients"
	"github.com/vadiminshakov/fliptrack/internal/domain"
	"github.com/vadiminshakov/fliptrack/internal/storage/kv"
)

const testAccount = "acc"

type fakeBackend struct {
	mu       sync.Mutex
	batches  [][]domain.Transaction
	failures int
	err      error
	flips    []domain.Flip
}

func (f *fakeBackend) SendTransactions(_ context.Context, batch []domain.Transaction, _ string) ([]domain.Flip, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("connection refused")
	}
	copied := make([]domain.Transaction, len(batch))
	copy(copied, batch)
	f.batches = append(f.batches, copied)
	return f.flips, nil
}

func (f *fakeBackend) sentBatches() [][]domain.Transaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]domain.Transaction, len(f.batches))
	copy(out, f.batches)
	return out
}

func (f *fakeBackend) LoadFlips(context.Context, string) ([]domain.Flip, error) { return nil, nil }
func (f *fakeBackend) DeleteFlip(context.Context, string, string) error         { return nil }
func (f *fakeBackend) DeleteTransaction(context.Context, string, string) error  { return nil }
func (f *fakeBackend) OrphanTransaction(context.Context, string, string) error  { return nil }

type fakeSink struct {
	mu      sync.Mutex
	applied []string
	merges  int
}

func (f *fakeSink) Apply(tx domain.Transaction) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, tx.ID)
	if tx.Side == domain.SideSell {
		return 7
	}
	return 0
}

func (f *fakeSink) MergeFlips([]domain.Flip) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.merges++
}

func (f *fakeSink) mergeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.merges
}

func testTx(id string, side domain.Side) domain.Transaction {
	return domain.Transaction{
		ID: id, AccountID: testAccount, Side: side,
		ItemID: 42, Price: 100, Quantity: 1, AmountSpent: 100,
		Timestamp: time.Now().UTC(), TotalOfferQuantity: 1, Consistent: true,
	}
}

func TestAddTransactionSurvivesRestart(t *testing.T) {
	store := kv.NewMemStore()
	backend := &fakeBackend{err: errors.New("server down")}

	led, err := New(testAccount, store, backend, &fakeSink{}, zap.NewNop())
	require.NoError(t, err)

	led.AddTransaction(testTx("tx-1", domain.SideBuy))
	led.CancelOngoingSync()

	// simulate a process restart: a fresh ledger on the same store
	reborn, err := New(testAccount, store, backend, &fakeSink{}, zap.NewNop())
	require.NoError(t, err)
	defer reborn.CancelOngoingSync()

	pending := reborn.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, "tx-1", pending[0].ID)
}

func TestSyncDrainsQueueAndMergesFlips(t *testing.T) {
	store := kv.NewMemStore()
	backend := &fakeBackend{flips: []domain.Flip{{ID: "srv-1", AccountID: testAccount, ItemID: 42}}}
	sink := &fakeSink{}

	led, err := New(testAccount, store, backend, sink, zap.NewNop())
	require.NoError(t, err)
	defer led.CancelOngoingSync()

	led.AddTransaction(testTx("tx-1", domain.SideBuy))
	led.AddTransaction(testTx("tx-2", domain.SideSell))

	require.Eventually(t, func() bool {
		return len(led.Pending()) == 0
	}, 5*time.Second, 10*time.Millisecond, "queue drains after a successful sync")

	assert.Positive(t, sink.mergeCount(), "server flip updates reach the flip engine")

	batches := backend.sentBatches()
	require.NotEmpty(t, batches)
	assert.Equal(t, "tx-1", batches[0][0].ID, "queue order is preserved on the wire")
}

func TestSyncRetriesTransientFailures(t *testing.T) {
	store := kv.NewMemStore()
	backend := &fakeBackend{failures: 2}
	sink := &fakeSink{}

	led, err := New(testAccount, store, backend, sink, zap.NewNop())
	require.NoError(t, err)
	defer led.CancelOngoingSync()

	led.AddTransaction(testTx("tx-1", domain.SideBuy))

	require.Eventually(t, func() bool {
		return len(led.Pending()) == 0
	}, 10*time.Second, 10*time.Millisecond, "queue drains once the server recovers")
}

func TestAuthFailureIsNotRetried(t *testing.T) {
	store := kv.NewMemStore()
	backend := &fakeBackend{err: clients.ErrUnauthorized}
	sink := &fakeSink{}

	led, err := New(testAccount, store, backend, sink, zap.NewNop())
	require.NoError(t, err)
	defer led.CancelOngoingSync()

	authFailed := make(chan struct{}, 1)
	led.SetOnAuthFailure(func() {
		select {
		case authFailed <- struct{}{}:
		default:
		}
	})

	led.AddTransaction(testTx("tx-1", domain.SideBuy))

	select {
	case <-authFailed:
	case <-time.After(5 * time.Second):
		t.Fatal("auth failure was never surfaced")
	}

	assert.Len(t, led.Pending(), 1, "pending transactions stay queued until re-login")
}

func TestAddTransactionReturnsEstimatedProfit(t *testing.T) {
	store := kv.NewMemStore()
	backend := &fakeBackend{err: errors.New("offline")}
	sink := &fakeSink{}

	led, err := New(testAccount, store, backend, sink, zap.NewNop())
	require.NoError(t, err)
	defer led.CancelOngoingSync()

	assert.Equal(t, int64(0), led.AddTransaction(testTx("tx-1", domain.SideBuy)))
	assert.Equal(t, int64(7), led.AddTransaction(testTx("tx-2", domain.SideSell)))
}

func TestReplayPendingFeedsSink(t *testing.T) {
	store := kv.NewMemStore()
	failing := &fakeBackend{err: errors.New("offline")}

	led, err := New(testAccount, store, failing, &fakeSink{}, zap.NewNop())
	require.NoError(t, err)
	led.AddTransaction(testTx("tx-1", domain.SideBuy))
	led.CancelOngoingSync()

	sink := &fakeSink{}
	reborn, err := New(testAccount, store, failing, sink, zap.NewNop())
	require.NoError(t, err)
	defer reborn.CancelOngoingSync()

	reborn.ReplayPending()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, []string{"tx-1"}, sink.applied)
}
