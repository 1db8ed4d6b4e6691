// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/hnmirror/internal/hn"
)

// EnvPrefix prefixes every environment override, e.g. HNMIRROR_DB_DSN.
const EnvPrefix = "HNMIRROR"

// Storage and provider names accepted by the config.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	ProviderNone   = "none"
	ProviderLocal  = "local"
	ProviderGCS    = "gcs"
	ProviderMemory = "memory"
	ProviderPubSub = "pubsub"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging"`
	HN        HNConfig        `mapstructure:"hn"`
	Gates     GatesConfig     `mapstructure:"gates"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Persist   PersistConfig   `mapstructure:"persist"`
	DB        DBConfig        `mapstructure:"db"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Server    ServerConfig    `mapstructure:"server"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// HNConfig configures the remote API client.
type HNConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxRetries        int           `mapstructure:"max_retries"`
	BackoffInitial    time.Duration `mapstructure:"backoff_initial"`
	BackoffMax        time.Duration `mapstructure:"backoff_max"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	UserAgent         string        `mapstructure:"user_agent"`
}

// GatesConfig sizes the root and child gates. A zero queue depth leaves the queue unbounded.
// The child queue must stay unbounded: a full child queue fails one fetch, and one failed
// fetch discards the whole story tree it belongs to.
type GatesConfig struct {
	RootCapacity    int `mapstructure:"root_capacity"`
	RootQueueDepth  int `mapstructure:"root_queue_depth"`
	ChildCapacity   int `mapstructure:"child_capacity"`
	ChildQueueDepth int `mapstructure:"child_queue_depth"`
}

// SchedulerConfig governs the crawl loop.
type SchedulerConfig struct {
	Categories    []string      `mapstructure:"categories"`
	FetchInterval time.Duration `mapstructure:"fetch_interval"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	MaxStories    int           `mapstructure:"max_stories"`
}

// PersistConfig controls write batching.
type PersistConfig struct {
	BatchSize int `mapstructure:"batch_size"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// ArchiveConfig selects where fetched forests are written.
type ArchiveConfig struct {
	Provider  string `mapstructure:"provider"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// NotifyConfig holds metadata for cycle notifications.
type NotifyConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// ServerConfig controls the admin HTTP server.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// TelemetryConfig controls OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	ServiceName string  `mapstructure:"service_name"`
	ProjectID   string  `mapstructure:"project_id"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("hn.base_url", hn.DefaultBaseURL)
	v.SetDefault("hn.timeout", "2500ms")
	v.SetDefault("hn.max_retries", 3)
	v.SetDefault("hn.backoff_initial", "200ms")
	v.SetDefault("hn.backoff_max", "2s")
	v.SetDefault("hn.requests_per_second", 0)
	v.SetDefault("hn.burst", 0)
	v.SetDefault("hn.user_agent", "hnmirror/1.0")
	v.SetDefault("gates.root_capacity", 250)
	v.SetDefault("gates.root_queue_depth", 0)
	v.SetDefault("gates.child_capacity", 500)
	v.SetDefault("gates.child_queue_depth", 0)
	v.SetDefault("scheduler.categories", []string{"top", "new", "best", "ask", "show", "job"})
	v.SetDefault("scheduler.fetch_interval", "30m")
	v.SetDefault("scheduler.poll_interval", "1m")
	v.SetDefault("scheduler.max_stories", 500)
	v.SetDefault("persist.batch_size", 1000)
	v.SetDefault("db.driver", DriverSQLite)
	v.SetDefault("db.dsn", "hnmirror.db")
	v.SetDefault("db.max_conns", 10)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.max_conn_lifetime", "30m")
	v.SetDefault("archive.provider", ProviderNone)
	v.SetDefault("archive.base_dir", "data/archive")
	v.SetDefault("archive.prefix", "forests")
	v.SetDefault("archive.gcs_bucket", "")
	v.SetDefault("notify.provider", ProviderNone)
	v.SetDefault("notify.project_id", "")
	v.SetDefault("notify.topic", "")
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.port", 8080)
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "hnmirror")
	v.SetDefault("telemetry.project_id", "")
	v.SetDefault("telemetry.sample_ratio", 1.0)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.HN.Timeout <= 0 {
		return fmt.Errorf("hn.timeout must be > 0")
	}
	if c.HN.MaxRetries < 0 {
		return fmt.Errorf("hn.max_retries must be >= 0")
	}
	if c.Gates.RootCapacity <= 0 || c.Gates.ChildCapacity <= 0 {
		return fmt.Errorf("gates.root_capacity and gates.child_capacity must be > 0")
	}
	if c.Gates.ChildQueueDepth != 0 {
		return fmt.Errorf("gates.child_queue_depth must be 0 (unbounded)")
	}
	if c.Scheduler.FetchInterval <= 0 {
		return fmt.Errorf("scheduler.fetch_interval must be > 0")
	}
	if c.Scheduler.MaxStories <= 0 {
		return fmt.Errorf("scheduler.max_stories must be > 0")
	}
	if _, err := c.Categories(); err != nil {
		return fmt.Errorf("scheduler.categories: %w", err)
	}
	if c.Persist.BatchSize <= 0 {
		return fmt.Errorf("persist.batch_size must be > 0")
	}
	switch c.DB.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("db.driver must be %q or %q", DriverPostgres, DriverSQLite)
	}
	if c.DB.DSN == "" {
		return fmt.Errorf("db.dsn is required")
	}
	switch c.Archive.Provider {
	case ProviderNone, "":
	case ProviderLocal:
		if c.Archive.BaseDir == "" {
			return fmt.Errorf("archive.base_dir must be set when archive.provider is local")
		}
	case ProviderGCS:
		if c.Archive.GCSBucket == "" {
			return fmt.Errorf("archive.gcs_bucket must be set when archive.provider is gcs")
		}
	default:
		return fmt.Errorf("unknown archive.provider %q", c.Archive.Provider)
	}
	switch c.Notify.Provider {
	case ProviderNone, ProviderMemory, "":
	case ProviderPubSub:
		if c.Notify.ProjectID == "" || c.Notify.Topic == "" {
			return fmt.Errorf("notify.project_id and notify.topic must be set when notify.provider is pubsub")
		}
	default:
		return fmt.Errorf("unknown notify.provider %q", c.Notify.Provider)
	}
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	return nil
}

// Categories parses the configured category names, in order.
func (c Config) Categories() ([]hn.Category, error) {
	out := make([]hn.Category, 0, len(c.Scheduler.Categories))
	for _, name := range c.Scheduler.Categories {
		cat, err := hn.ParseCategory(name)
		if err != nil {
			return nil, err
		}
		out = append(out, cat)
	}
	return out, nil
}
