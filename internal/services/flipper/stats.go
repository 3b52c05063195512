package flipper

import (
	"sort"
	"time"

	"github.com/vadiminshakov/fliptrack/internal/domain"
)

// CalculateStats reduces every flip with realized profit closed at or after
// the interval start into aggregate statistics. An empty accountID matches
// all accounts.
func (e *Engine) CalculateStats(intervalStart time.Time, accountID string) domain.Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	var stats domain.Stats
	var capitalDeployed int64

	collect := func(f *domain.Flip) {
		if accountID != "" && f.AccountID != accountID {
			return
		}
		if f.ClosedQuantity == 0 || f.ClosedTime.Before(intervalStart) {
			return
		}
		stats.Profit += f.Profit()
		stats.TaxPaid += f.TaxPaid
		stats.FlipsMade++
		capitalDeployed += f.Spent
	}

	for _, f := range e.completed {
		collect(f)
	}
	for _, f := range e.active {
		collect(f)
	}

	stats.ROI = domain.ComputeROI(stats.Profit, capitalDeployed)
	return stats
}

// GetPageFlips returns one display page of flips in reverse-chronological
// order of last activity, excluding flips with no realized profit. Exact
// timestamp ties break by flip id so pagination is stable. Pages are
// 1-based; an out-of-range page is empty.
func (e *Engine) GetPageFlips(page, pageSize int, accountID string) []domain.Flip {
	if page < 1 || pageSize < 1 {
		return nil
	}

	e.mu.Lock()
	all := make([]domain.Flip, 0, len(e.completed)+len(e.active))
	for _, f := range e.completed {
		all = append(all, *f)
	}
	for _, f := range e.active {
		all = append(all, *f)
	}
	e.mu.Unlock()

	visible := all[:0]
	for _, f := range all {
		if accountID != "" && f.AccountID != accountID {
			continue
		}
		if f.Profit() == 0 {
			continue
		}
		visible = append(visible, f)
	}

	sort.Slice(visible, func(i, j int) bool {
		ti, tj := visible[i].LastActivity(), visible[j].LastActivity()
		if ti.Equal(tj) {
			return visible[i].ID < visible[j].ID
		}
		return ti.After(tj)
	})

	start := (page - 1) * pageSize
	if start >= len(visible) {
		return nil
	}
	end := start + pageSize
	if end > len(visible) {
		end = len(visible)
	}

	out := make([]domain.Flip, end-start)
	copy(out, visible[start:end])
	return out
}
