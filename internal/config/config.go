// Package config loads worker configuration from a YAML file merged with
// environment variables (prefix TRANSFORMER__, delimiter __).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "TRANSFORMER__"

// Result destinations for converted batches.
const (
	DestObjectStore = "object-store"
	DestTopic       = "topic"
	DestLocal       = "local"
)

type Config struct {
	Logging LoggingConfig `koanf:"logging"`
	Queue   QueueConfig   `koanf:"queue"`
	Runner  RunnerConfig  `koanf:"runner"`
	Result  ResultConfig  `koanf:"result"`
	Storage StorageConfig `koanf:"storage"`
	Metrics MetricsConfig `koanf:"metrics"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // "json" | "text"
}

type QueueConfig struct {
	Brokers         []string `koanf:"brokers"`
	Topic           string   `koanf:"topic"`
	GroupID         string   `koanf:"group_id"`
	Version         string   `koanf:"version"`
	StartFrom       string   `koanf:"start_from"` // oldest|newest
	DeadLetterTopic string   `koanf:"dead_letter_topic"`
}

type RunnerConfig struct {
	Program string `koanf:"program"` // e.g. "bash"
	Script  string `koanf:"script"`  // e.g. "/generated/runner.sh"
	Workdir string `koanf:"workdir"`
	LogPath string `koanf:"log_path"` // log artifact, overwritten per invocation
}

type ResultConfig struct {
	// Destination selects where converted batches go:
	// "object-store", "topic", or "local" (skip conversion, keep the
	// output artifact in the scratch dir).
	Destination string `koanf:"destination"`
	ScratchDir  string `koanf:"scratch_dir"`
}

type StorageConfig struct {
	Backend    string `koanf:"backend"` // "local" | "gcs" | "s3"
	LocalDir   string `koanf:"local_dir"`
	Bucket     string `koanf:"bucket"`
	Prefix     string `koanf:"prefix"`
	S3Endpoint string `koanf:"s3_endpoint"` // custom endpoint for B2/MinIO/R2
	S3Region   string `koanf:"s3_region"`
	Compress   bool   `koanf:"compress"` // zstd-compress uploaded artifacts
}

type MetricsConfig struct {
	Enabled bool   `koanf:"enabled"`
	Address string `koanf:"address"`
}

// Load merges the YAML file at path (if present) with env-var overrides and
// applies defaults. A missing file is not an error so that fully env-driven
// deployments work.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil &&
			!errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
	}), nil); err != nil {
		return Config{}, fmt.Errorf("load env overrides: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	return cfg, cfg.validate()
}

func applyDefaults(c *Config) {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Queue.StartFrom == "" {
		c.Queue.StartFrom = "oldest"
	}
	if c.Queue.Version == "" {
		c.Queue.Version = "3.6.0"
	}
	if c.Queue.GroupID == "" {
		c.Queue.GroupID = "transform-worker"
	}
	if c.Queue.DeadLetterTopic == "" {
		c.Queue.DeadLetterTopic = "transformation_failures"
	}
	if c.Runner.Program == "" {
		c.Runner.Program = "bash"
	}
	if c.Runner.Script == "" {
		c.Runner.Script = "/generated/runner.sh"
	}
	if c.Runner.LogPath == "" {
		c.Runner.LogPath = "log.txt"
	}
	if c.Result.Destination == "" {
		c.Result.Destination = DestObjectStore
	}
	if c.Result.ScratchDir == "" {
		c.Result.ScratchDir = "/tmp/transform-worker"
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = "local"
	}
	if c.Storage.LocalDir == "" {
		c.Storage.LocalDir = "./data"
	}
	if c.Metrics.Address == "" {
		c.Metrics.Address = ":9090"
	}
}

func (c Config) validate() error {
	switch c.Result.Destination {
	case DestObjectStore, DestTopic, DestLocal:
	default:
		return fmt.Errorf("unknown result destination %q", c.Result.Destination)
	}
	switch c.Storage.Backend {
	case "local", "gcs", "s3":
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	return nil
}
