// Package feed replays recorded offer snapshots into the tracker, for dry
// runs and pipeline diagnostics without a live game client.
package feed

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/fliptrack/internal/domain"
)

// Event is one recorded snapshot observation.
type Event struct {
	Tick     int                  `json:"tick"`
	Slot     int                  `json:"slot"`
	Snapshot domain.OfferSnapshot `json:"snapshot"`
}

// Sink is the part of the tracker the feed drives.
type Sink interface {
	OnTick()
	OnOfferSnapshot(slot int, snap domain.OfferSnapshot)
}

// Replay streams a JSONL event file into the sink, advancing the sink's tick
// clock to each event's tick. tickInterval throttles playback; zero replays
// as fast as possible. Undecodable lines are skipped and logged.
func Replay(ctx context.Context, path string, sink Sink, tickInterval time.Duration, logger *zap.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open replay file %s", path)
	}
	defer f.Close()

	currentTick := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var event Event
		if err := json.Unmarshal(line, &event); err != nil {
			logger.Warn("skipping undecodable replay record", zap.Error(err))
			continue
		}

		for currentTick < event.Tick {
			currentTick++
			sink.OnTick()
			if tickInterval > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(tickInterval):
				}
			}
		}

		sink.OnOfferSnapshot(event.Slot, event.Snapshot)
	}

	return errors.Wrap(scanner.Err(), "read replay file")
}
