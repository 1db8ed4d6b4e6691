package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JakeFAU/hnmirror/internal/hn"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HN.Timeout != 2500*time.Millisecond || cfg.HN.MaxRetries != 3 {
		t.Fatalf("unexpected client defaults: %+v", cfg.HN)
	}
	if cfg.HN.BackoffInitial != 200*time.Millisecond || cfg.HN.BackoffMax != 2*time.Second {
		t.Fatalf("unexpected backoff defaults: %+v", cfg.HN)
	}
	if cfg.Gates.RootCapacity != 250 || cfg.Gates.ChildCapacity != 500 {
		t.Fatalf("unexpected gate defaults: %+v", cfg.Gates)
	}
	if cfg.Scheduler.FetchInterval != 30*time.Minute || cfg.Scheduler.PollInterval != time.Minute {
		t.Fatalf("unexpected scheduler defaults: %+v", cfg.Scheduler)
	}
	if cfg.Scheduler.MaxStories != 500 || cfg.Persist.BatchSize != 1000 {
		t.Fatalf("unexpected size defaults")
	}
	cats, err := cfg.Categories()
	if err != nil || len(cats) != 6 || cats[0] != hn.CategoryTop {
		t.Fatalf("expected all six categories, got %v (%v)", cats, err)
	}
	if cfg.DB.Driver != DriverSQLite {
		t.Fatalf("expected sqlite default driver, got %q", cfg.DB.Driver)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
logging:
  development: true
  level: debug
hn:
  base_url: http://localhost:9999/v0
  timeout: 5s
  max_retries: 1
  requests_per_second: 50
  burst: 10
gates:
  root_capacity: 8
  child_capacity: 16
  root_queue_depth: 1000
scheduler:
  categories: [ask, show]
  fetch_interval: 10m
  max_stories: 30
persist:
  batch_size: 200
db:
  driver: postgres
  dsn: postgres://u:p@localhost:5432/hn
  max_conns: 4
archive:
  provider: gcs
  gcs_bucket: hn-forests
notify:
  provider: pubsub
  project_id: proj
  topic: cycles
server:
  port: 9090
telemetry:
  enabled: true
  sample_ratio: 0.25
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Logging.Development || cfg.Logging.Level != "debug" {
		t.Fatalf("expected logging overrides: %+v", cfg.Logging)
	}
	if cfg.HN.Timeout != 5*time.Second || cfg.HN.MaxRetries != 1 || cfg.HN.Burst != 10 {
		t.Fatalf("expected client overrides: %+v", cfg.HN)
	}
	if cfg.Gates.RootQueueDepth != 1000 || cfg.Gates.RootCapacity != 8 {
		t.Fatalf("expected gate overrides: %+v", cfg.Gates)
	}
	cats, err := cfg.Categories()
	if err != nil || len(cats) != 2 || cats[1] != hn.CategoryShow {
		t.Fatalf("expected [ask show], got %v", cats)
	}
	if cfg.DB.Driver != DriverPostgres || cfg.DB.MaxConns != 4 {
		t.Fatalf("expected db overrides: %+v", cfg.DB)
	}
	if cfg.Archive.GCSBucket != "hn-forests" || cfg.Notify.Topic != "cycles" {
		t.Fatalf("expected provider overrides")
	}
	if cfg.Telemetry.SampleRatio != 0.25 || cfg.Telemetry.ServiceName != "hnmirror" {
		t.Fatalf("expected telemetry overrides: %+v", cfg.Telemetry)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("HNMIRROR_SCHEDULER_MAX_STORIES", "42")
	t.Setenv("HNMIRROR_DB_DSN", "file:test.db")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Scheduler.MaxStories != 42 {
		t.Fatalf("expected env override for max_stories, got %d", cfg.Scheduler.MaxStories)
	}
	if cfg.DB.DSN != "file:test.db" {
		t.Fatalf("expected env override for dsn, got %q", cfg.DB.DSN)
	}
}

func TestLoadEnvOnlyProviders(t *testing.T) {
	t.Setenv("HNMIRROR_ARCHIVE_PROVIDER", "gcs")
	t.Setenv("HNMIRROR_ARCHIVE_GCS_BUCKET", "hn-forests")
	t.Setenv("HNMIRROR_NOTIFY_PROVIDER", "pubsub")
	t.Setenv("HNMIRROR_NOTIFY_PROJECT_ID", "proj")
	t.Setenv("HNMIRROR_NOTIFY_TOPIC", "cycles")
	t.Setenv("HNMIRROR_TELEMETRY_PROJECT_ID", "trace-proj")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Archive.GCSBucket != "hn-forests" {
		t.Fatalf("expected env override for gcs_bucket, got %q", cfg.Archive.GCSBucket)
	}
	if cfg.Notify.ProjectID != "proj" || cfg.Notify.Topic != "cycles" {
		t.Fatalf("expected env overrides for notify, got %+v", cfg.Notify)
	}
	if cfg.Telemetry.ProjectID != "trace-proj" {
		t.Fatalf("expected env override for telemetry project, got %q", cfg.Telemetry.ProjectID)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "timeout", mutate: func(c *Config) { c.HN.Timeout = 0 }, want: "hn.timeout"},
		{name: "gate capacity", mutate: func(c *Config) { c.Gates.ChildCapacity = 0 }, want: "gates.root_capacity"},
		{name: "child queue depth", mutate: func(c *Config) { c.Gates.ChildQueueDepth = 10 }, want: "gates.child_queue_depth"},
		{name: "fetch interval", mutate: func(c *Config) { c.Scheduler.FetchInterval = 0 }, want: "scheduler.fetch_interval"},
		{name: "unknown category", mutate: func(c *Config) { c.Scheduler.Categories = []string{"front"} }, want: "scheduler.categories"},
		{name: "batch size", mutate: func(c *Config) { c.Persist.BatchSize = 0 }, want: "persist.batch_size"},
		{name: "driver", mutate: func(c *Config) { c.DB.Driver = "mysql" }, want: "db.driver"},
		{name: "gcs bucket", mutate: func(c *Config) { c.Archive.Provider = ProviderGCS }, want: "archive.gcs_bucket"},
		{name: "pubsub topic", mutate: func(c *Config) { c.Notify.Provider = ProviderPubSub }, want: "notify.project_id"},
		{name: "port", mutate: func(c *Config) { c.Server.Port = 0 }, want: "server.port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			cfg.Scheduler.Categories = append([]string(nil), base.Scheduler.Categories...)
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
