// Package app initializes and holds long-lived services for the CLI commands,
// acting as a dependency injection container: the fetch stack, the run
// repository, the export targets and the progress sinks.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/news-aggregator/internal/clock/system"
	"github.com/JakeFAU/news-aggregator/internal/config"
	"github.com/JakeFAU/news-aggregator/internal/document"
	"github.com/JakeFAU/news-aggregator/internal/export"
	"github.com/JakeFAU/news-aggregator/internal/fetcher"
	collyfetcher "github.com/JakeFAU/news-aggregator/internal/fetcher/colly"
	"github.com/JakeFAU/news-aggregator/internal/id/uuid"
	"github.com/JakeFAU/news-aggregator/internal/index"
	"github.com/JakeFAU/news-aggregator/internal/pipeline"
	"github.com/JakeFAU/news-aggregator/internal/policy/blocklist"
	"github.com/JakeFAU/news-aggregator/internal/policy/ratelimit"
	"github.com/JakeFAU/news-aggregator/internal/policy/retry"
	"github.com/JakeFAU/news-aggregator/internal/progress"
	"github.com/JakeFAU/news-aggregator/internal/progress/sinks"
	"github.com/JakeFAU/news-aggregator/internal/publisher/pubsub"
	"github.com/JakeFAU/news-aggregator/internal/rss"
	"github.com/JakeFAU/news-aggregator/internal/storage"
	"github.com/JakeFAU/news-aggregator/internal/storage/gcs"
	"github.com/JakeFAU/news-aggregator/internal/storage/local"
	"github.com/JakeFAU/news-aggregator/internal/storage/memory"
	"github.com/JakeFAU/news-aggregator/internal/storage/postgres"
	"github.com/JakeFAU/news-aggregator/internal/store"
)

const progressCloseTimeout = 10 * time.Second

// Options configures New.
type Options struct {
	Config config.Config
	Logger *zap.Logger
	// Verbose attaches a log sink to the progress hub.
	Verbose bool
	// Registerer receives the progress collectors. Nil uses the default
	// registry served on /metrics.
	Registerer prometheus.Registerer
	// Fetcher overrides the colly fetcher for http(s) locations.
	Fetcher fetcher.Fetcher
}

// App holds the shared services of one process.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	verbose  bool
	loader   *fetcher.Loader
	limiter  *ratelimit.Limiter
	runs     store.RunRepository
	exporter *export.Exporter
	promSink *sinks.PrometheusSink
	closers  []func() error
}

// New creates the App from configuration. It fails fast when a configured
// backend cannot be reached.
func New(ctx context.Context, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := opts.Config
	a := &App{cfg: cfg, logger: logger, verbose: opts.Verbose}

	a.loader = fetcher.NewLoader(NetworkFetcher(cfg.Crawler, opts.Fetcher, logger))
	a.limiter = ratelimit.New(ratelimit.Config{
		DefaultRPS:   cfg.Crawler.PerHostRPS,
		DefaultBurst: cfg.Crawler.PerHostBurst,
	})

	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	promSink, err := sinks.NewPrometheusSink(reg)
	if err != nil {
		return nil, fmt.Errorf("register progress metrics: %w", err)
	}
	a.promSink = promSink

	if err := a.initExport(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// NetworkFetcher builds the http(s) fetch chain: blocklist, then retries,
// then base. A nil base uses the colly fetcher.
func NetworkFetcher(cfg config.CrawlerConfig, base fetcher.Fetcher, logger *zap.Logger) fetcher.Fetcher {
	if base == nil {
		base = collyfetcher.New(collyfetcher.Config{
			UserAgent:     cfg.UserAgent,
			RespectRobots: cfg.RespectRobots,
			Timeout:       cfg.FetchTimeout,
		})
	}
	f := base
	if cfg.MaxRetries > 0 {
		f = retry.Wrap(f, retry.NewPolicy(retry.Config{MaxAttempts: cfg.MaxRetries + 1}), logger.Named("retry"))
	}
	return blocklist.Wrap(f, blocklist.New(cfg.BlockedDomains))
}

func (a *App) initExport(ctx context.Context) error {
	ex := a.cfg.Export
	exportOpts := []export.Option{
		export.WithLogger(a.logger.Named("export")),
		export.WithTimeout(ex.Timeout),
	}

	if ex.Postgres.DSN != "" {
		a.logger.Info("connecting to postgres")
		pool, err := postgres.Connect(ctx, postgres.Config{DSN: ex.Postgres.DSN, MaxConns: ex.Postgres.MaxConns})
		if err != nil {
			return fmt.Errorf("init postgres: %w", err)
		}
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		postings, err := postgres.NewPostingStore(pool, ex.Postgres.Table)
		if err != nil {
			return fmt.Errorf("init posting store: %w", err)
		}
		a.runs = postgres.NewRunStore(pool)
		exportOpts = append(exportOpts, export.WithPostingSink(postings))
	} else {
		a.runs = memory.NewRunStore()
	}

	blob, err := a.openBlobStore(ctx, ex.Blob)
	if err != nil {
		return err
	}
	if blob != nil {
		exportOpts = append(exportOpts, export.WithBlobStore(blob))
	}

	if ex.PubSub.ProjectID != "" {
		a.logger.Info("connecting to pubsub", zap.String("topic", ex.PubSub.Topic))
		pub, err := pubsub.Dial(ctx, ex.PubSub.ProjectID, ex.PubSub.Topic)
		if err != nil {
			return fmt.Errorf("init pubsub: %w", err)
		}
		a.closers = append(a.closers, pub.Close)
		exportOpts = append(exportOpts, export.WithPublisher(pub, ex.PubSub.Topic))
	}

	a.exporter = export.New(exportOpts...)
	return nil
}

func (a *App) openBlobStore(ctx context.Context, cfg config.BlobConfig) (storage.BlobStore, error) {
	switch cfg.Provider {
	case config.BlobLocal:
		a.logger.Info("using local snapshot store", zap.String("dir", cfg.LocalDir))
		blob, err := local.New(local.Config{BaseDir: cfg.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("init local blob store: %w", err)
		}
		return blob, nil
	case config.BlobGCS:
		a.logger.Info("using gcs snapshot store", zap.String("bucket", cfg.GCSBucket))
		blob, err := gcs.Dial(ctx, gcs.Config{Bucket: cfg.GCSBucket, Prefix: cfg.Prefix})
		if err != nil {
			return nil, fmt.Errorf("init gcs blob store: %w", err)
		}
		a.closers = append(a.closers, blob.Close)
		return blob, nil
	default:
		return nil, nil
	}
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Runs returns the run repository, Postgres-backed when configured.
func (a *App) Runs() store.RunRepository { return a.runs }

// Loader returns the location loader shared by feeds and documents.
func (a *App) Loader() *fetcher.Loader { return a.loader }

// Documents returns a rate-limited document parser.
func (a *App) Documents() *document.Parser {
	return document.NewParser(a.loader, document.WithLimiter(a.limiter))
}

// Crawl runs the pipeline over feedListURI into a fresh index, seals it and
// exports the result. A fatal feed-list failure returns the error wrapping
// news.ErrFeedListRetrieval and skips the export.
func (a *App) Crawl(ctx context.Context, feedListURI string) (*index.Index, pipeline.Summary, error) {
	idx := index.New()
	parser := rss.NewParser(a.loader, rss.WithLogger(a.logger.Named("rss")))

	hubSinks := []progress.Sink{a.promSink, sinks.NewStoreSink(a.runs, a.logger.Named("runs"))}
	if a.verbose {
		hubSinks = append(hubSinks, sinks.NewLogSink(a.logger.Named("progress")))
	}
	hub := progress.NewHub(progress.Config{Logger: a.logger.Named("progress")}, hubSinks...)

	p, err := pipeline.New(
		pipeline.Config{
			FeedConcurrency:    a.cfg.Crawler.FeedConcurrency,
			ArticleConcurrency: a.cfg.Crawler.ArticleConcurrency,
			FetchTimeout:       a.cfg.Crawler.FetchTimeout,
		},
		pipeline.Collaborators{FeedList: parser, Feed: parser, Document: a.Documents()},
		idx,
		pipeline.WithLogger(a.logger.Named("pipeline")),
		pipeline.WithEmitter(hub),
		pipeline.WithClock(system.New()),
		pipeline.WithIDGenerator(uuid.New()),
	)
	if err != nil {
		return nil, pipeline.Summary{}, fmt.Errorf("build pipeline: %w", err)
	}

	summary, runErr := p.Run(ctx, feedListURI)

	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), progressCloseTimeout)
	defer cancel()
	if err := hub.Close(closeCtx); err != nil {
		a.logger.Warn("progress hub close failed", zap.Error(err))
	}
	if runErr != nil {
		return nil, summary, runErr
	}

	a.logger.Info("crawl finished",
		zap.String("run_id", summary.RunID.String()),
		zap.Int("feeds", summary.Feeds),
		zap.Int("articles_indexed", summary.ArticlesIndexed),
		zap.Int("tokens", idx.Len()),
		zap.Duration("duration", summary.Duration),
	)
	if a.exporter.Enabled() {
		a.exporter.Export(ctx, summary, idx)
	}
	return idx, summary, nil
}

// Close shuts down every opened backend.
func (a *App) Close() {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("error closing application services", zap.Error(err))
	}
}
