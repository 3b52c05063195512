// Package flips archives completed flips in a local WAL so history survives
// restarts while the server is unreachable.
package flips

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"

	"github.com/vadiminshakov/fliptrack/internal/domain"
)

const (
	segmentLimit = 1000
	maxSegments  = 100

	flipKeyPrefix = "flip_"
)

// WALStore persists archived flips in a WAL.
type WALStore struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

// NewWALStore initializes a WAL-backed flip archive in the given directory.
func NewWALStore(dir string) (*WALStore, error) {
	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "flip_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init flip WAL")
	}

	return &WALStore{wal: wal}, nil
}

// Save appends the flip to the archive. Re-saving the same flip id supersedes
// the earlier record on load.
func (s *WALStore) Save(flip domain.Flip) error {
	if s == nil || s.wal == nil {
		return errors.New("flip store is not initialized")
	}
	if flip.ID == "" {
		return errors.New("flip id is required")
	}

	payload, err := json.Marshal(flip)
	if err != nil {
		return errors.Wrap(err, "marshal flip")
	}

	key := fmt.Sprintf("%s%s", flipKeyPrefix, flip.ID)

	s.mu.Lock()
	defer s.mu.Unlock()

	nextIndex := s.wal.CurrentIndex() + 1
	return s.wal.Write(nextIndex, key, payload)
}

// Load returns all archived flips, last record per id winning, in write order.
// Undecodable records are skipped rather than failing startup.
func (s *WALStore) Load() ([]domain.Flip, error) {
	if s == nil || s.wal == nil {
		return nil, errors.New("flip store is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	byID := make(map[string]int)
	var out []domain.Flip
	for msg := range s.wal.Iterator() {
		if !strings.HasPrefix(msg.Key, flipKeyPrefix) {
			continue
		}
		var flip domain.Flip
		if err := json.Unmarshal(msg.Value, &flip); err != nil {
			continue
		}
		if pos, ok := byID[flip.ID]; ok {
			out[pos] = flip
			continue
		}
		byID[flip.ID] = len(out)
		out = append(out, flip)
	}

	return out, nil
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errors.New("flip store is not initialized")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.wal.Close()
}
