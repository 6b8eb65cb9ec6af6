// Package config loads and validates aggregator configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultFeedList is read when neither a flag nor config names a feed list.
const DefaultFeedList = "small-feed.xml"

// Blob providers for the snapshot export.
const (
	BlobNone  = "none"
	BlobLocal = "local"
	BlobGCS   = "gcs"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Crawler CrawlerConfig `mapstructure:"crawler"`
	Query   QueryConfig   `mapstructure:"query"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	Export  ExportConfig  `mapstructure:"export"`
}

// CrawlerConfig governs the feed and article pools and their fetches.
type CrawlerConfig struct {
	FeedListURI        string        `mapstructure:"feed_list_uri"`
	FeedConcurrency    int           `mapstructure:"feed_concurrency"`
	ArticleConcurrency int           `mapstructure:"article_concurrency"`
	FetchTimeout       time.Duration `mapstructure:"fetch_timeout"`
	UserAgent          string        `mapstructure:"user_agent"`
	RespectRobots      bool          `mapstructure:"respect_robots"`
	PerHostRPS         float64       `mapstructure:"per_host_rps"`
	PerHostBurst       int           `mapstructure:"per_host_burst"`
	// MaxRetries re-attempts failed network fetches; 0 disables retries.
	MaxRetries     int      `mapstructure:"max_retries"`
	BlockedDomains []string `mapstructure:"blocked_domains"`
}

// QueryConfig shapes search output.
type QueryConfig struct {
	MaxResults    int `mapstructure:"max_results"`
	TruncateWidth int `mapstructure:"truncate_width"`
}

// ServerConfig controls the HTTP query surface.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig selects the zap encoder and level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// ExportConfig names the optional post-crawl targets.
type ExportConfig struct {
	Blob     BlobConfig     `mapstructure:"blob"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Timeout  time.Duration  `mapstructure:"timeout"`
}

// BlobConfig selects where the index snapshot goes.
type BlobConfig struct {
	Provider  string `mapstructure:"provider"`
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// PostgresConfig enables run tracking and posting export when DSN is set.
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// PubSubConfig enables the completion notification when both fields are set.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// Load builds a Config from disk/environment. Environment variables use the
// NEWS prefix, e.g. NEWS_CRAWLER_FEED_CONCURRENCY.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("NEWS")
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
	v.SetDefault("crawler.feed_list_uri", DefaultFeedList)
	v.SetDefault("crawler.feed_concurrency", 6)
	v.SetDefault("crawler.article_concurrency", 24)
	v.SetDefault("crawler.fetch_timeout", "30s")
	v.SetDefault("crawler.user_agent", "news-aggregator/1.0")
	v.SetDefault("crawler.respect_robots", false)
	v.SetDefault("crawler.per_host_rps", 0)
	v.SetDefault("crawler.per_host_burst", 1)
	v.SetDefault("crawler.max_retries", 2)
	v.SetDefault("crawler.blocked_domains", []string{})
	v.SetDefault("query.max_results", 15)
	v.SetDefault("query.truncate_width", 70)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("export.blob.provider", BlobNone)
	v.SetDefault("export.blob.local_dir", "data/snapshots")
	v.SetDefault("export.postgres.table", "postings")
	v.SetDefault("export.postgres.max_conns", 4)
	v.SetDefault("export.timeout", "30s")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	var errs []error
	if c.Crawler.FeedConcurrency <= 0 {
		errs = append(errs, errors.New("crawler.feed_concurrency must be > 0"))
	}
	if c.Crawler.ArticleConcurrency <= 0 {
		errs = append(errs, errors.New("crawler.article_concurrency must be > 0"))
	}
	if c.Crawler.FetchTimeout < 0 {
		errs = append(errs, errors.New("crawler.fetch_timeout must be >= 0"))
	}
	if c.Crawler.PerHostRPS < 0 {
		errs = append(errs, errors.New("crawler.per_host_rps must be >= 0"))
	}
	if c.Crawler.MaxRetries < 0 {
		errs = append(errs, errors.New("crawler.max_retries must be >= 0"))
	}
	if c.Query.MaxResults <= 0 {
		errs = append(errs, errors.New("query.max_results must be > 0"))
	}
	if c.Query.TruncateWidth <= 3 {
		errs = append(errs, errors.New("query.truncate_width must be > 3"))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, errors.New("server.port must be in 1..65535"))
	}
	switch c.Export.Blob.Provider {
	case "", BlobNone:
	case BlobLocal:
		if c.Export.Blob.LocalDir == "" {
			errs = append(errs, errors.New("export.blob.local_dir is required for the local provider"))
		}
	case BlobGCS:
		if c.Export.Blob.GCSBucket == "" {
			errs = append(errs, errors.New("export.blob.gcs_bucket is required for the gcs provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("export.blob.provider %q is not one of none, local, gcs", c.Export.Blob.Provider))
	}
	if (c.Export.PubSub.ProjectID == "") != (c.Export.PubSub.Topic == "") {
		errs = append(errs, errors.New("export.pubsub.project_id and export.pubsub.topic must be set together"))
	}
	return errors.Join(errs...)
}
