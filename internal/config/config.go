// Package config loads and validates pipeline configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/carelane/content-pipeline/internal/chunk"
	"github.com/carelane/content-pipeline/internal/extract"
	"github.com/carelane/content-pipeline/internal/normalize"
	"github.com/carelane/content-pipeline/internal/pipeline"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Service   ServiceConfig     `mapstructure:"service"`
	HTTP      HTTPConfig        `mapstructure:"http"`
	Pipeline  PipelineConfig    `mapstructure:"pipeline"`
	Normalize normalize.Options `mapstructure:"normalize"`
	Fetch     FetchConfig       `mapstructure:"fetch"`
	Store     StoreConfig       `mapstructure:"store"`
	Snapshots SnapshotConfig    `mapstructure:"snapshots"`
	Publisher PublisherConfig   `mapstructure:"publisher"`
	Workers   WorkerConfig      `mapstructure:"workers"`
	Audit     AuditConfig       `mapstructure:"audit"`
}

// ServiceConfig names the deployment and toggles development logging.
type ServiceConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	Development bool   `mapstructure:"development"`
}

// HTTPConfig controls the API server.
type HTTPConfig struct {
	Addr                  string `mapstructure:"addr"`
	ReadTimeoutSeconds    int    `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds   int    `mapstructure:"write_timeout_seconds"`
	RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds"`
}

// PipelineConfig tunes the extraction and chunking stages plus the tracking
// record expiry.
type PipelineConfig struct {
	Chunk          chunk.Config   `mapstructure:"chunk"`
	Extract        extract.Config `mapstructure:"extract"`
	RecordTTLHours int            `mapstructure:"record_ttl_hours"`
}

// FetchConfig governs plain and rendered document fetching.
type FetchConfig struct {
	UserAgent      string          `mapstructure:"user_agent"`
	TimeoutSeconds int             `mapstructure:"timeout_seconds"`
	IgnoreRobots   bool            `mapstructure:"ignore_robots"`
	RateLimit      RateLimitConfig `mapstructure:"rate_limit"`
	Headless       HeadlessConfig  `mapstructure:"headless"`
}

// RateLimitConfig throttles outbound fetches per source host.
type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps"`
	Burst   int     `mapstructure:"burst"`
}

// HeadlessConfig configures the chromedp rendering fetcher and the
// promotion heuristic that decides when a probe needs rendering.
type HeadlessConfig struct {
	Enabled            bool `mapstructure:"enabled"`
	MaxParallel        int  `mapstructure:"max_parallel"`
	NavTimeoutSeconds  int  `mapstructure:"nav_timeout_seconds"`
	PromotionThreshold int  `mapstructure:"promotion_threshold"`
}

// StoreConfig selects the tracking-store backend.
type StoreConfig struct {
	Provider string `mapstructure:"provider"`
	DSN      string `mapstructure:"dsn"`
}

// SnapshotConfig selects where normalized snapshots are archived.
type SnapshotConfig struct {
	Provider string `mapstructure:"provider"`
	Bucket   string `mapstructure:"bucket"`
	Prefix   string `mapstructure:"prefix"`
	Dir      string `mapstructure:"dir"`
}

// PublisherConfig selects the chunk sink.
type PublisherConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
	Dir       string `mapstructure:"dir"`
}

// WorkerConfig sizes the dispatcher pool and its queue.
type WorkerConfig struct {
	Count     int `mapstructure:"count"`
	QueueSize int `mapstructure:"queue_size"`
}

// AuditConfig tunes the audit event hub.
type AuditConfig struct {
	BufferSize      int `mapstructure:"buffer_size"`
	BatchSize       int `mapstructure:"batch_size"`
	FlushIntervalMs int `mapstructure:"flush_interval_ms"`
	SinkTimeoutMs   int `mapstructure:"sink_timeout_ms"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PIPELINE")
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
	v.SetDefault("service.name", "content-pipeline")
	v.SetDefault("service.environment", "development")
	v.SetDefault("service.development", true)

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout_seconds", 10)
	v.SetDefault("http.write_timeout_seconds", 30)
	v.SetDefault("http.request_timeout_seconds", 60)

	v.SetDefault("pipeline.record_ttl_hours", 168)
	v.SetDefault("pipeline.chunk.strategy", string(pipeline.StrategyHybrid))
	v.SetDefault("pipeline.chunk.target_token_count", 750)
	v.SetDefault("pipeline.chunk.max_token_count", 1000)
	v.SetDefault("pipeline.chunk.min_token_count", 100)
	v.SetDefault("pipeline.chunk.overlap_tokens", 50)
	v.SetDefault("pipeline.chunk.quality_threshold", 0.4)
	v.SetDefault("pipeline.chunk.max_facts_per_chunk", 10)
	v.SetDefault("pipeline.extract.min_section_length", 40)
	v.SetDefault("pipeline.extract.max_key_terms", 20)
	v.SetDefault("pipeline.extract.fact_confidence_threshold", 0.5)
	v.SetDefault("pipeline.extract.min_fact_words", 5)
	v.SetDefault("pipeline.extract.max_fact_words", 60)

	v.SetDefault("normalize.strip_markup", true)
	v.SetDefault("normalize.strip_timestamps", true)
	v.SetDefault("normalize.strip_ads", true)
	v.SetDefault("normalize.canonicalize_urls", true)
	v.SetDefault("normalize.collapse_whitespace", true)
	v.SetDefault("normalize.lowercase", true)

	v.SetDefault("fetch.user_agent", "carelane-content-bot/1.0")
	v.SetDefault("fetch.timeout_seconds", 15)
	v.SetDefault("fetch.ignore_robots", false)
	v.SetDefault("fetch.rate_limit.enabled", false)
	v.SetDefault("fetch.rate_limit.rps", 1)
	v.SetDefault("fetch.rate_limit.burst", 2)
	v.SetDefault("fetch.headless.enabled", false)
	v.SetDefault("fetch.headless.max_parallel", 1)
	v.SetDefault("fetch.headless.nav_timeout_seconds", 25)
	v.SetDefault("fetch.headless.promotion_threshold", 2048)

	v.SetDefault("store.provider", "memory")
	v.SetDefault("snapshots.provider", "memory")
	v.SetDefault("snapshots.prefix", "snapshots")
	v.SetDefault("snapshots.dir", "snapshots")
	v.SetDefault("publisher.provider", "memory")
	v.SetDefault("publisher.dir", "chunks")

	v.SetDefault("workers.count", 4)
	v.SetDefault("workers.queue_size", 64)

	v.SetDefault("audit.buffer_size", 64)
	v.SetDefault("audit.batch_size", 8)
	v.SetDefault("audit.flush_interval_ms", 1000)
	v.SetDefault("audit.sink_timeout_ms", 2000)
}

var validStrategies = map[pipeline.Strategy]bool{
	pipeline.StrategySemantic:     true,
	pipeline.StrategyHierarchical: true,
	pipeline.StrategyFactual:      true,
	pipeline.StrategyHybrid:       true,
	pipeline.StrategyFixedSize:    true,
	pipeline.StrategySentence:     true,
	pipeline.StrategyParagraph:    true,
}

// Validate enforces required values and reasonable limits. All violations
// are reported together.
func (c Config) Validate() error {
	var errs []error

	if c.HTTP.Addr == "" {
		errs = append(errs, fmt.Errorf("http.addr must be set"))
	}
	if c.HTTP.RequestTimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("http.request_timeout_seconds must be > 0"))
	}
	ch := c.Pipeline.Chunk
	if !validStrategies[ch.Strategy] {
		errs = append(errs, fmt.Errorf("pipeline.chunk.strategy %q is not a known strategy", ch.Strategy))
	}
	if ch.MinTokenCount <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.chunk.min_token_count must be > 0"))
	}
	if ch.MinTokenCount > ch.TargetTokenCount || ch.TargetTokenCount > ch.MaxTokenCount {
		errs = append(errs, fmt.Errorf("pipeline.chunk token bounds must satisfy min <= target <= max"))
	}
	if ch.OverlapTokens < 0 {
		errs = append(errs, fmt.Errorf("pipeline.chunk.overlap_tokens must be >= 0"))
	}
	if ch.QualityThreshold < 0 || ch.QualityThreshold > 1 {
		errs = append(errs, fmt.Errorf("pipeline.chunk.quality_threshold must be within [0, 1]"))
	}
	if ch.MaxFactsPerChunk <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.chunk.max_facts_per_chunk must be > 0"))
	}
	ex := c.Pipeline.Extract
	if ex.FactConfidenceThreshold < 0 || ex.FactConfidenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("pipeline.extract.fact_confidence_threshold must be within [0, 1]"))
	}
	if ex.MinFactWords <= 0 || ex.MinFactWords > ex.MaxFactWords {
		errs = append(errs, fmt.Errorf("pipeline.extract fact word band must satisfy 0 < min <= max"))
	}
	if c.Pipeline.RecordTTLHours <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.record_ttl_hours must be > 0"))
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("fetch.timeout_seconds must be > 0"))
	}
	if c.Fetch.RateLimit.Enabled && c.Fetch.RateLimit.RPS <= 0 {
		errs = append(errs, fmt.Errorf("fetch.rate_limit.rps must be > 0 when rate limiting is enabled"))
	}
	if c.Fetch.Headless.Enabled && c.Fetch.Headless.MaxParallel <= 0 {
		errs = append(errs, fmt.Errorf("fetch.headless.max_parallel must be > 0 when headless is enabled"))
	}
	switch c.Store.Provider {
	case "postgres":
		if c.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("store.dsn must be set for the postgres provider"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("store.provider %q is not one of postgres, memory", c.Store.Provider))
	}
	switch c.Snapshots.Provider {
	case "gcs":
		if c.Snapshots.Bucket == "" {
			errs = append(errs, fmt.Errorf("snapshots.bucket must be set for the gcs provider"))
		}
	case "local":
		if c.Snapshots.Dir == "" {
			errs = append(errs, fmt.Errorf("snapshots.dir must be set for the local provider"))
		}
	case "memory", "none":
	default:
		errs = append(errs, fmt.Errorf("snapshots.provider %q is not one of gcs, local, memory, none", c.Snapshots.Provider))
	}
	switch c.Publisher.Provider {
	case "pubsub":
		if c.Publisher.ProjectID == "" || c.Publisher.Topic == "" {
			errs = append(errs, fmt.Errorf("publisher.project_id and publisher.topic must be set for the pubsub provider"))
		}
	case "file":
		if c.Publisher.Dir == "" {
			errs = append(errs, fmt.Errorf("publisher.dir must be set for the file provider"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("publisher.provider %q is not one of pubsub, file, memory", c.Publisher.Provider))
	}
	if c.Workers.Count <= 0 {
		errs = append(errs, fmt.Errorf("workers.count must be > 0"))
	}
	if c.Workers.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("workers.queue_size must be > 0"))
	}
	if c.Audit.BufferSize <= 0 || c.Audit.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("audit.buffer_size and audit.batch_size must be > 0"))
	}

	return errors.Join(errs...)
}

// RecordTTL is the tracking-record expiry window.
func (c PipelineConfig) RecordTTL() time.Duration {
	return time.Duration(c.RecordTTLHours) * time.Hour
}

// Timeout is the per-fetch budget.
func (c FetchConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// NavTimeout is the headless navigation budget.
func (c HeadlessConfig) NavTimeout() time.Duration {
	return time.Duration(c.NavTimeoutSeconds) * time.Second
}

// ReadTimeout is the server read budget.
func (c HTTPConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutSeconds) * time.Second
}

// WriteTimeout is the server write budget.
func (c HTTPConfig) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutSeconds) * time.Second
}

// RequestTimeout bounds a single API request.
func (c HTTPConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// FlushInterval is the audit hub flush cadence.
func (c AuditConfig) FlushInterval() time.Duration {
	return time.Duration(c.FlushIntervalMs) * time.Millisecond
}

// SinkTimeout bounds a single audit sink delivery.
func (c AuditConfig) SinkTimeout() time.Duration {
	return time.Duration(c.SinkTimeoutMs) * time.Millisecond
}
