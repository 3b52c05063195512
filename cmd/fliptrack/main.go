// Command fliptrack watches a game account's exchange slots and keeps a
// durable, server-synchronized ledger of inferred buys, sells and flips.
//
// Usage:
//
//	fliptrack --config config.yaml
//	fliptrack --backend https://server.example --account myaccount
//
// Required environment variable:
//
//	FLIPTRACK_API_TOKEN — bearer token for the flip-tracking server
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"github.com/vadiminshakov/fliptrack/config"
	"github.com/vadiminshakov/fliptrack/internal"
	"github.com/vadiminshakov/fliptrack/internal/clients"
	"github.com/vadiminshakov/fliptrack/internal/services/feed"
	"github.com/vadiminshakov/fliptrack/internal/storage/flips"
	"github.com/vadiminshakov/fliptrack/internal/storage/kv"
)

func main() {
	cfg, err := config.Get()
	if err != nil {
		log.Fatal(err)
	}

	token := os.Getenv("FLIPTRACK_API_TOKEN")
	if token == "" {
		log.Fatal("FLIPTRACK_API_TOKEN environment variable must be set")
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	store, err := kv.Open(filepath.Join(cfg.DataDir, "kv"))
	if err != nil {
		logger.Fatal("open kv store", zap.Error(err))
	}
	defer store.Close()

	archive, err := flips.NewWALStore(filepath.Join(cfg.DataDir, "flips"))
	if err != nil {
		logger.Fatal("open flip archive", zap.Error(err))
	}
	defer archive.Close()

	backend := clients.NewServerClient(cfg.BackendURL, token, logger)

	tracker, err := internal.NewTracker(store, backend, archive, logger)
	if err != nil {
		logger.Fatal("build tracker", zap.Error(err))
	}
	defer tracker.Close()

	tracker.SuggestionNeeded = func(slot int) {
		logger.Info("slot freed, suggestion needed", zap.Int("slot", slot))
	}
	tracker.AuthFailure = func() {
		logger.Warn("backend authentication failed, re-login required")
	}

	if err := tracker.OnAccountChanged(cfg.AccountID); err != nil {
		logger.Fatal("switch account", zap.Error(err))
	}
	tracker.OnLogin(true)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.ReplayFile != "" {
		if err := feed.Replay(ctx, cfg.ReplayFile, tracker, cfg.ReplayTickInterval, logger); err != nil && ctx.Err() == nil {
			logger.Fatal("replay feed", zap.Error(err))
		}
		logger.Info("replay finished",
			zap.Int("pending", len(tracker.Pending())),
		)
		return
	}

	logger.Info("tracker running, waiting for game events")
	<-ctx.Done()
}
