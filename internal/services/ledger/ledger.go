// Package ledger guarantees that no locally-observed transaction is lost
// before the server acknowledges it, while tolerating the server being
// unreachable indefinitely.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/gopkg/util/gopool"
	"github.com/jpillora/backoff"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/fliptrack/internal/clients"
	"github.com/vadiminshakov/fliptrack/internal/domain"
	"github.com/vadiminshakov/fliptrack/internal/storage/kv"
)

const (
	pendingKeySuffix = "pending_transactions"
	syncTimeout      = 30 * time.Second
	syncWorkers      = 4

	backoffMin = 1 * time.Second
	backoffMax = 30 * time.Second
)

// FlipSink is the part of the flip engine the ledger feeds.
type FlipSink interface {
	Apply(tx domain.Transaction) int64
	MergeFlips(serverFlips []domain.Flip)
}

// Ledger is the durable pending-transaction queue for one account and the
// owner of its background synchronization loop.
type Ledger struct {
	accountID string
	store     kv.Store
	backend   clients.Backend
	flips     FlipSink
	logger    *zap.Logger
	pool      gopool.Pool
	retry     *backoff.Backoff

	mu            sync.Mutex
	pending       []domain.Transaction
	syncScheduled bool
	retryTimer    *time.Timer
	failures      int

	cancelled atomic.Bool

	onAuthFailure func()
}

// New creates a ledger for the account, recovers any previously-persisted
// pending queue and, if it is non-empty, immediately schedules a sync. This
// is how transactions survive a restart while the server was unreachable.
func New(accountID string, store kv.Store, backend clients.Backend, flips FlipSink, logger *zap.Logger) (*Ledger, error) {
	l := &Ledger{
		accountID: accountID,
		store:     store,
		backend:   backend,
		flips:     flips,
		logger:    logger.With(zap.String("account", accountID)),
		pool:      gopool.NewPool("fliptrack-sync", syncWorkers, gopool.NewConfig()),
		retry: &backoff.Backoff{
			Min:    backoffMin,
			Max:    backoffMax,
			Factor: 2,
		},
	}

	if err := l.loadPending(); err != nil {
		return nil, err
	}
	if len(l.pending) > 0 {
		l.logger.Info("recovered pending transactions", zap.Int("count", len(l.pending)))
		l.scheduleSync()
	}

	return l, nil
}

// SetOnAuthFailure registers the callback fired when the server returns 401.
// Pending transactions stay queued and flush once re-authenticated.
func (l *Ledger) SetOnAuthFailure(f func()) {
	l.onAuthFailure = f
}

// AddTransaction appends the transaction to the pending queue, persists the
// queue synchronously, folds the transaction into local flip state and
// schedules an asynchronous sync. Returns the locally-estimated realized
// profit (zero for buys). Never blocks on network I/O.
func (l *Ledger) AddTransaction(tx domain.Transaction) int64 {
	l.mu.Lock()
	l.pending = append(l.pending, tx)
	if err := l.persistLocked(); err != nil {
		l.logger.Error("persist pending queue", zap.Error(err))
	}
	l.mu.Unlock()

	profit := l.flips.Apply(tx)
	l.scheduleSync()
	return profit
}

// Pending returns a copy of the not-yet-acknowledged queue.
func (l *Ledger) Pending() []domain.Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.Transaction, len(l.pending))
	copy(out, l.pending)
	return out
}

// ReplayPending re-applies the recovered queue to the flip sink. Safe to call
// any time: the sink merges repeated transaction ids as no-ops.
func (l *Ledger) ReplayPending() {
	for _, tx := range l.Pending() {
		l.flips.Apply(tx)
	}
}

// CancelOngoingSync stops future retry scheduling. An in-flight call is
// allowed to complete but its result is discarded. The persisted queue is
// untouched, so nothing is lost.
func (l *Ledger) CancelOngoingSync() {
	l.cancelled.Store(true)
	l.mu.Lock()
	if l.retryTimer != nil {
		l.retryTimer.Stop()
		l.retryTimer = nil
	}
	l.mu.Unlock()
}

// scheduleSync starts a sync attempt unless one is already scheduled.
func (l *Ledger) scheduleSync() {
	if l.cancelled.Load() {
		return
	}

	l.mu.Lock()
	if l.syncScheduled || len(l.pending) == 0 {
		l.mu.Unlock()
		return
	}
	l.syncScheduled = true
	l.mu.Unlock()

	l.pool.Go(l.syncOnce)
}

// syncOnce sends the entire pending queue in one batch, in queue order.
func (l *Ledger) syncOnce() {
	l.mu.Lock()
	batch := make([]domain.Transaction, len(l.pending))
	copy(batch, l.pending)
	l.mu.Unlock()

	if len(batch) == 0 {
		l.finishSync()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), syncTimeout)
	defer cancel()

	serverFlips, err := l.backend.SendTransactions(ctx, batch, l.accountID)
	if l.cancelled.Load() {
		// account changed while the call was in flight
		l.finishSync()
		return
	}
	if err != nil {
		l.handleSyncFailure(err)
		return
	}

	l.mu.Lock()
	sent := make(map[string]struct{}, len(batch))
	for _, tx := range batch {
		sent[tx.ID] = struct{}{}
	}
	remaining := l.pending[:0]
	for _, tx := range l.pending {
		if _, ok := sent[tx.ID]; !ok {
			remaining = append(remaining, tx)
		}
	}
	l.pending = remaining
	if err := l.persistLocked(); err != nil {
		l.logger.Error("persist pending queue", zap.Error(err))
	}
	l.failures = 0
	more := len(l.pending) > 0
	l.syncScheduled = false
	l.mu.Unlock()

	l.retry.Reset()
	l.flips.MergeFlips(serverFlips)
	l.logger.Debug("synced transactions", zap.Int("count", len(batch)))

	if more {
		l.scheduleSync()
	}
}

func (l *Ledger) finishSync() {
	l.mu.Lock()
	l.syncScheduled = false
	l.mu.Unlock()
}

// handleSyncFailure converts a failed attempt into a retry schedule. The
// first retry is immediate; subsequent ones back off up to a ceiling. A 401
// is not retried: pending items stay queued until re-login.
func (l *Ledger) handleSyncFailure(err error) {
	if errors.Is(err, clients.ErrUnauthorized) {
		l.logger.Warn("backend rejected credentials, pausing sync until re-login")
		l.finishSync()
		if l.onAuthFailure != nil {
			l.onAuthFailure()
		}
		return
	}

	l.mu.Lock()
	l.failures++
	var delay time.Duration
	if l.failures > 1 {
		delay = l.retry.Duration()
	}
	l.retryTimer = time.AfterFunc(delay, func() {
		if l.cancelled.Load() {
			return
		}
		l.pool.Go(l.syncOnce)
	})
	l.mu.Unlock()

	l.logger.Warn("transaction sync failed, will retry",
		zap.Duration("delay", delay), zap.Error(err))
}

func (l *Ledger) pendingKey() string {
	return kv.AccountKey(l.accountID, pendingKeySuffix)
}

// persistLocked writes the queue as one JSON record per line, replacing the
// previous value atomically.
func (l *Ledger) persistLocked() error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, tx := range l.pending {
		if err := enc.Encode(tx); err != nil {
			return errors.Wrap(err, "encode pending transaction")
		}
	}
	return l.store.Set(l.pendingKey(), buf.Bytes())
}

// loadPending recovers the persisted queue. A corrupt record is skipped and
// logged loudly rather than failing startup.
func (l *Ledger) loadPending() error {
	raw, ok, err := l.store.Get(l.pendingKey())
	if err != nil {
		return errors.Wrap(err, "load pending queue")
	}
	if !ok {
		return nil
	}

	for _, line := range bytes.Split(raw, []byte("\n")) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var tx domain.Transaction
		if err := json.Unmarshal(line, &tx); err != nil {
			l.logger.Error("corrupt pending transaction record dropped", zap.Error(err))
			continue
		}
		l.pending = append(l.pending, tx)
	}
	return nil
}
