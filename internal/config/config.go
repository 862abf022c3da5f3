// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendLocal    = "local"
	BackendGCS      = "gcs"
	BackendPostgres = "postgres"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	ContentStore  ContentStoreConfig  `mapstructure:"content_store"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Crawl         CrawlConfig         `mapstructure:"crawl"`
	Vocabulary    VocabularyConfig    `mapstructure:"vocabulary"`
	Tagging       TaggingConfig       `mapstructure:"tagging"`
	Archive       ArchiveConfig       `mapstructure:"archive"`
	Ledger        LedgerConfig        `mapstructure:"ledger"`
	PubSub        PubSubConfig        `mapstructure:"pubsub"`
	Progress      ProgressConfig      `mapstructure:"progress"`
	Server        ServerConfig        `mapstructure:"server"`
	Logging       LoggingConfig       `mapstructure:"logging"`
}

// ContentStoreConfig locates the content-store export.
type ContentStoreConfig struct {
	SnapshotPath  string `mapstructure:"snapshot_path"`
	DefaultLocale string `mapstructure:"default_locale"`
	PageSize      int    `mapstructure:"page_size"`
}

// ElasticsearchConfig configures the search cluster client.
type ElasticsearchConfig struct {
	Addresses       []string `mapstructure:"addresses"`
	Username        string   `mapstructure:"username"`
	Password        string   `mapstructure:"password"`
	Refresh         string   `mapstructure:"refresh"`
	RetryOnConflict int      `mapstructure:"retry_on_conflict"`
	// MaxRequestsPerSecond throttles bulk and update requests per index; 0 disables.
	MaxRequestsPerSecond float64 `mapstructure:"max_requests_per_second"`
	Burst                int     `mapstructure:"burst"`
	// DryRun writes to an in-memory index instead of the cluster.
	DryRun bool `mapstructure:"dry_run"`
}

// ContentTypeConfig describes one crawled content type.
type ContentTypeConfig struct {
	ID       string `mapstructure:"id"`
	Index    string `mapstructure:"index"`
	Type     string `mapstructure:"type"`
	Priority int    `mapstructure:"priority"`
}

// CrawlConfig lists the content types to crawl.
type CrawlConfig struct {
	ContentTypes []ContentTypeConfig `mapstructure:"content_types"`
	DeleteIndex  bool                `mapstructure:"delete_index"`
}

// VocabularyConfig lists the vocabulary content types.
type VocabularyConfig struct {
	IDs       []string `mapstructure:"ids"`
	CountryID string   `mapstructure:"country_id"`
}

// TaggingConfig controls back-reference tag updates.
type TaggingConfig struct {
	Targets             []string `mapstructure:"targets"`
	Concurrency         int      `mapstructure:"concurrency"`
	Buffer              int      `mapstructure:"buffer"`
	ReplayMissing       bool     `mapstructure:"replay_missing"`
	DrainTimeoutSeconds int      `mapstructure:"drain_timeout_seconds"`
}

// ArchiveConfig selects where generated mappings are archived.
type ArchiveConfig struct {
	Backend string `mapstructure:"backend"`
	Dir     string `mapstructure:"dir"`
	Bucket  string `mapstructure:"bucket"`
	Prefix  string `mapstructure:"prefix"`
}

// LedgerConfig selects the crawl-run ledger.
type LedgerConfig struct {
	Backend  string `mapstructure:"backend"`
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	Migrate  bool   `mapstructure:"migrate"`
}

// PubSubConfig holds metadata for completion notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ProgressConfig tunes the progress event hub.
type ProgressConfig struct {
	BufferSize     int `mapstructure:"buffer_size"`
	MaxBatchEvents int `mapstructure:"max_batch_events"`
	MaxBatchWaitMs int `mapstructure:"max_batch_wait_ms"`
}

// ServerConfig controls the ops HTTP server.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
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
	v.SetDefault("content_store.default_locale", "en-GB")
	v.SetDefault("content_store.page_size", 100)
	v.SetDefault("elasticsearch.addresses", []string{"http://localhost:9200"})
	v.SetDefault("elasticsearch.refresh", "false")
	v.SetDefault("elasticsearch.retry_on_conflict", 3)
	v.SetDefault("elasticsearch.max_requests_per_second", 0)
	v.SetDefault("elasticsearch.burst", 8)
	v.SetDefault("crawl.delete_index", false)
	v.SetDefault("tagging.concurrency", 4)
	v.SetDefault("tagging.buffer", 256)
	v.SetDefault("tagging.replay_missing", false)
	v.SetDefault("tagging.drain_timeout_seconds", 30)
	v.SetDefault("archive.backend", BackendMemory)
	v.SetDefault("archive.prefix", "mappings")
	v.SetDefault("ledger.backend", BackendMemory)
	v.SetDefault("ledger.max_conns", 4)
	v.SetDefault("ledger.migrate", true)
	v.SetDefault("progress.buffer_size", 4096)
	v.SetDefault("progress.max_batch_events", 1000)
	v.SetDefault("progress.max_batch_wait_ms", 500)
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.ContentStore.SnapshotPath == "" {
		return errors.New("content_store.snapshot_path must be set")
	}
	if c.ContentStore.PageSize <= 0 {
		return errors.New("content_store.page_size must be > 0")
	}
	if !c.Elasticsearch.DryRun && len(c.Elasticsearch.Addresses) == 0 {
		return errors.New("elasticsearch.addresses must not be empty")
	}
	if c.Elasticsearch.MaxRequestsPerSecond < 0 {
		return errors.New("elasticsearch.max_requests_per_second must be >= 0")
	}
	if err := c.Crawl.validate(); err != nil {
		return err
	}
	if id := c.Vocabulary.CountryID; id != "" && !slices.Contains(c.Vocabulary.IDs, id) {
		return fmt.Errorf("vocabulary.country_id %q must be listed in vocabulary.ids", id)
	}
	for _, target := range c.Tagging.Targets {
		if !c.Crawl.has(target) {
			return fmt.Errorf("tagging.targets: %q is not a crawled content type", target)
		}
	}
	if c.Tagging.Concurrency <= 0 {
		return errors.New("tagging.concurrency must be > 0")
	}
	switch c.Archive.Backend {
	case BackendMemory:
	case BackendLocal:
		if c.Archive.Dir == "" {
			return errors.New("archive.dir must be set for the local backend")
		}
	case BackendGCS:
		if c.Archive.Bucket == "" {
			return errors.New("archive.bucket must be set for the gcs backend")
		}
	default:
		return fmt.Errorf("archive.backend %q is not supported", c.Archive.Backend)
	}
	switch c.Ledger.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Ledger.DSN == "" {
			return errors.New("ledger.dsn must be set for the postgres backend")
		}
	default:
		return fmt.Errorf("ledger.backend %q is not supported", c.Ledger.Backend)
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return errors.New("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	if c.Server.Enabled && c.Server.Port <= 0 {
		return errors.New("server.port must be > 0")
	}
	return nil
}

func (c CrawlConfig) validate() error {
	if len(c.ContentTypes) == 0 {
		return errors.New("crawl.content_types must not be empty")
	}
	seen := make(map[string]struct{}, len(c.ContentTypes))
	for i, ct := range c.ContentTypes {
		if ct.ID == "" {
			return fmt.Errorf("crawl.content_types[%d].id must be set", i)
		}
		if ct.Index == "" {
			return fmt.Errorf("crawl.content_types[%d].index must be set", i)
		}
		if _, dup := seen[ct.ID]; dup {
			return fmt.Errorf("crawl.content_types: duplicate id %q", ct.ID)
		}
		seen[ct.ID] = struct{}{}
	}
	return nil
}

func (c CrawlConfig) has(id string) bool {
	for _, ct := range c.ContentTypes {
		if ct.ID == id {
			return true
		}
	}
	return false
}

// TagDrainTimeout is how long a run waits for queued tag updates.
func (c Config) TagDrainTimeout() time.Duration {
	return time.Duration(c.Tagging.DrainTimeoutSeconds) * time.Second
}

// ProgressBatchWait is the progress hub's maximum batch delay.
func (c Config) ProgressBatchWait() time.Duration {
	return time.Duration(c.Progress.MaxBatchWaitMs) * time.Millisecond
}
