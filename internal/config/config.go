// Package config loads the engine's runtime configuration from environment
// variables, following the teacher's apoc.LoadFromEnv pattern of plain
// CHITTA_-prefixed env vars with parsed defaults, plus an optional YAML
// file that sets the top-level db_path, socket_path and embed_model_path
// fields (env vars override it; storage, dynamics and retrieval settings
// are not read from YAML).
//
// Environment Variables:
//
//	CHITTA_DB_PATH                    - base path for warm/cold storage (default: ./data)
//	CHITTA_HOT_CAPACITY               - max hot-tier node count (default: 10000)
//	CHITTA_HOT_AGE                    - age before a node demotes hot->warm (default: 24h)
//	CHITTA_WARM_AGE                   - age before a node demotes warm->cold (default: 168h)
//	CHITTA_DECAY_INTERVAL             - minimum time between decay passes (default: 1h)
//	CHITTA_COHERENCE_INTERVAL         - minimum time between coherence recomputes (default: 5m)
//	CHITTA_EMERGENCY_COHERENCE_THRESHOLD - tau floor that triggers emergency prune (default: 0.3)
//	CHITTA_PRUNE_DEAD_THRESHOLD       - confidence floor for the always-on prune (default: 0.05)
//	CHITTA_SOCKET_PATH                - unix domain socket path for the RPC server (default: ./chitta.sock)
//	CHITTA_EMBED_MODEL_PATH           - path to the ONNX embedding model (empty disables it, falling back to ZeroEmbedder)
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chitta-project/chitta/internal/dynamics"
	"github.com/chitta-project/chitta/internal/retrieval"
	"github.com/chitta-project/chitta/internal/storage"
)

// Config is the top-level configuration for a running chittad instance.
type Config struct {
	DBPath         string `yaml:"db_path"`
	SocketPath     string `yaml:"socket_path"`
	EmbedModelPath string `yaml:"embed_model_path"`

	Storage   storage.Config   `yaml:"-"`
	Dynamics  dynamics.Config  `yaml:"-"`
	Retrieval retrieval.Config `yaml:"-"`
}

// Default returns the spec's default configuration.
func Default() Config {
	return Config{
		DBPath:     "./data",
		SocketPath: "./chitta.sock",
		Storage:    storage.DefaultConfig("./data"),
		Dynamics:   dynamics.DefaultConfig(),
		Retrieval:  retrieval.DefaultConfig(),
	}
}

// LoadFromEnv loads configuration from CHITTA_-prefixed environment
// variables, falling back to spec defaults for anything unset.
func LoadFromEnv() Config {
	cfg := Default()

	if v := os.Getenv("CHITTA_DB_PATH"); v != "" {
		cfg.DBPath = v
		cfg.Storage.BasePath = v
	}
	if v := os.Getenv("CHITTA_SOCKET_PATH"); v != "" {
		cfg.SocketPath = v
	}
	if v := os.Getenv("CHITTA_EMBED_MODEL_PATH"); v != "" {
		cfg.EmbedModelPath = v
	}

	if v, ok := parseInt("CHITTA_HOT_CAPACITY"); ok {
		cfg.Storage.HotCapacity = v
	}
	if v, ok := parseDuration("CHITTA_HOT_AGE"); ok {
		cfg.Storage.HotAge = v
	}
	if v, ok := parseDuration("CHITTA_WARM_AGE"); ok {
		cfg.Storage.WarmAge = v
	}
	if v, ok := parseDuration("CHITTA_DECAY_INTERVAL"); ok {
		cfg.Dynamics.DecayInterval = v
	}
	if v, ok := parseDuration("CHITTA_COHERENCE_INTERVAL"); ok {
		cfg.Dynamics.CoherenceInterval = v
	}
	if v, ok := parseFloat("CHITTA_EMERGENCY_COHERENCE_THRESHOLD"); ok {
		cfg.Dynamics.EmergencyCoherenceThreshold = v
	}
	if v, ok := parseFloat("CHITTA_PRUNE_DEAD_THRESHOLD"); ok {
		cfg.Dynamics.PruneDeadThreshold = v
	}

	return cfg
}

// LoadFromFileOrEnv reads a YAML override file (if path is non-empty and the
// file exists) for the top-level fields, then applies environment variables
// on top — env vars always win, matching the teacher's LoadFromEnvOrFile
// precedence.
func LoadFromFileOrEnv(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if data, err := os.ReadFile(path); err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, err
			}
			cfg.Storage.BasePath = cfg.DBPath
		}
	}

	env := LoadFromEnv()
	if os.Getenv("CHITTA_DB_PATH") != "" {
		cfg.DBPath = env.DBPath
		cfg.Storage.BasePath = env.Storage.BasePath
	}
	if os.Getenv("CHITTA_SOCKET_PATH") != "" {
		cfg.SocketPath = env.SocketPath
	}
	if os.Getenv("CHITTA_EMBED_MODEL_PATH") != "" {
		cfg.EmbedModelPath = env.EmbedModelPath
	}
	if os.Getenv("CHITTA_HOT_CAPACITY") != "" {
		cfg.Storage.HotCapacity = env.Storage.HotCapacity
	}
	if os.Getenv("CHITTA_HOT_AGE") != "" {
		cfg.Storage.HotAge = env.Storage.HotAge
	}
	if os.Getenv("CHITTA_WARM_AGE") != "" {
		cfg.Storage.WarmAge = env.Storage.WarmAge
	}
	if os.Getenv("CHITTA_DECAY_INTERVAL") != "" {
		cfg.Dynamics.DecayInterval = env.Dynamics.DecayInterval
	}
	if os.Getenv("CHITTA_COHERENCE_INTERVAL") != "" {
		cfg.Dynamics.CoherenceInterval = env.Dynamics.CoherenceInterval
	}
	if os.Getenv("CHITTA_EMERGENCY_COHERENCE_THRESHOLD") != "" {
		cfg.Dynamics.EmergencyCoherenceThreshold = env.Dynamics.EmergencyCoherenceThreshold
	}
	if os.Getenv("CHITTA_PRUNE_DEAD_THRESHOLD") != "" {
		cfg.Dynamics.PruneDeadThreshold = env.Dynamics.PruneDeadThreshold
	}

	return cfg, nil
}

func parseInt(key string) (int, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func parseFloat(key string) (float64, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func parseDuration(key string) (time.Duration, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, false
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, false
	}
	return d, true
}
