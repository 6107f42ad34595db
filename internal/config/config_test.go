package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_FileAndDefaults(t *testing.T) {
	path := writeConfig(t, `
queue:
  brokers: ["kafka-1:9092", "kafka-2:9092"]
  topic: transform_requests
runner:
  script: /opt/runner.sh
result:
  destination: topic
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if len(cfg.Queue.Brokers) != 2 || cfg.Queue.Brokers[0] != "kafka-1:9092" {
		t.Errorf("brokers = %v", cfg.Queue.Brokers)
	}
	if cfg.Queue.Topic != "transform_requests" {
		t.Errorf("topic = %q", cfg.Queue.Topic)
	}
	if cfg.Runner.Script != "/opt/runner.sh" {
		t.Errorf("script = %q", cfg.Runner.Script)
	}
	if cfg.Result.Destination != DestTopic {
		t.Errorf("destination = %q", cfg.Result.Destination)
	}

	// Defaults
	if cfg.Queue.DeadLetterTopic != "transformation_failures" {
		t.Errorf("dead letter topic = %q", cfg.Queue.DeadLetterTopic)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("log level = %q", cfg.Logging.Level)
	}
	if cfg.Runner.LogPath != "log.txt" {
		t.Errorf("log path = %q", cfg.Runner.LogPath)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	path := writeConfig(t, `
queue:
  topic: from_file
`)
	t.Setenv("TRANSFORMER__QUEUE__TOPIC", "from_env")
	t.Setenv("TRANSFORMER__STORAGE__BUCKET", "transforms")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Queue.Topic != "from_env" {
		t.Errorf("topic = %q, want env override", cfg.Queue.Topic)
	}
	if cfg.Storage.Bucket != "transforms" {
		t.Errorf("bucket = %q", cfg.Storage.Bucket)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Result.Destination != DestObjectStore {
		t.Errorf("destination = %q", cfg.Result.Destination)
	}
}

func TestLoad_RejectsUnknownDestination(t *testing.T) {
	path := writeConfig(t, `
result:
  destination: carrier-pigeon
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown destination")
	}
}
