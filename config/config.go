package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const defaultDataDir = "./data"

// Config holds the tracker's runtime settings.
type Config struct {
	// BackendURL is the base URL of the remote flip-tracking server.
	BackendURL string
	// AccountID identifies the active game account.
	AccountID string
	// DataDir is the root directory for local persistence (kv store, flip WAL).
	DataDir string
	// ReplayFile, when set, replays a recorded JSONL snapshot feed instead of
	// waiting for a live game client.
	ReplayFile string
	// ReplayTickInterval throttles replay playback; zero replays at full speed.
	ReplayTickInterval time.Duration
}

type configTmp struct {
	BackendURL         string        `yaml:"backend_url"`
	AccountID          string        `yaml:"account_id"`
	DataDir            string        `yaml:"data_dir,omitempty"`
	ReplayFile         string        `yaml:"replay_file,omitempty"`
	ReplayTickInterval time.Duration `yaml:"replay_tick_interval,omitempty"`
}

// Get loads configuration from a yaml file when --config is given, otherwise
// from individual flags.
func Get() (Config, error) {
	configPath := flag.String("config", "", "path to yaml config")
	backendURL := flag.String("backend", "", "base URL of the flip-tracking server")
	accountID := flag.String("account", "", "active game account id")
	dataDir := flag.String("datadir", defaultDataDir, "directory for local persistence")
	replayFile := flag.String("replay", "", "JSONL snapshot feed to replay")
	replayTick := flag.Duration("replaytick", 0, "replay tick interval, 0 for full speed")
	flag.Parse()

	if *configPath != "" {
		return getYaml(*configPath)
	}

	cfg := Config{
		BackendURL:         *backendURL,
		AccountID:          *accountID,
		DataDir:            *dataDir,
		ReplayFile:         *replayFile,
		ReplayTickInterval: *replayTick,
	}
	return cfg, validate(cfg)
}

func getYaml(path string) (Config, error) {
	f, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var tmp configTmp
	if err := yaml.Unmarshal(f, &tmp); err != nil {
		return Config{}, err
	}

	cfg := Config{
		BackendURL:         tmp.BackendURL,
		AccountID:          tmp.AccountID,
		DataDir:            tmp.DataDir,
		ReplayFile:         tmp.ReplayFile,
		ReplayTickInterval: tmp.ReplayTickInterval,
	}
	if cfg.DataDir == "" {
		cfg.DataDir = defaultDataDir
	}
	return cfg, validate(cfg)
}

func validate(cfg Config) error {
	if cfg.BackendURL == "" {
		return fmt.Errorf("backend URL is required")
	}
	if cfg.AccountID == "" {
		return fmt.Errorf("account id is required")
	}
	return nil
}
