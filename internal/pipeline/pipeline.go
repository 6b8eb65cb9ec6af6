// Package pipeline drives a crawl: the feed list fans out to a feed pool, each
// feed fans out to its own article pool, and every article's tokens land in
// the shared index. Feed and article failures are isolated; only an
// unreadable feed list fails the run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/news-aggregator/internal/index"
	"github.com/JakeFAU/news-aggregator/internal/news"
	"github.com/JakeFAU/news-aggregator/internal/pool"
	"github.com/JakeFAU/news-aggregator/internal/progress"
)

// Default pool capacities.
const (
	DefaultFeedConcurrency    = 6
	DefaultArticleConcurrency = 24
)

// Config sizes the pools and bounds collaborator calls.
type Config struct {
	// FeedConcurrency caps feeds processed at once.
	FeedConcurrency int
	// ArticleConcurrency caps articles processed at once per feed.
	ArticleConcurrency int
	// FetchTimeout bounds each collaborator call; zero means no bound.
	FetchTimeout time.Duration
}

// Collaborators retrieve and parse the crawl's documents.
type Collaborators struct {
	FeedList news.FeedListParser
	Feed     news.FeedParser
	Document news.DocumentParser
}

// Clock stamps events.
type Clock interface {
	Now() time.Time
}

// IDGenerator issues run IDs.
type IDGenerator interface {
	NewRunID() (uuid.UUID, error)
}

// Sealer is implemented by writers that can be closed for writing.
type Sealer interface {
	Seal()
}

// Summary reports a run's outcome. Articles counts distinct article URLs
// scheduled; repeats across feeds are counted in ArticlesDuplicate instead.
type Summary struct {
	RunID             uuid.UUID     `json:"run_id"`
	FeedList          string        `json:"feed_list"`
	StartedAt         time.Time     `json:"started_at"`
	Feeds             int           `json:"feeds"`
	FeedsFailed       int           `json:"feeds_failed"`
	Articles          int           `json:"articles"`
	ArticlesIndexed   int           `json:"articles_indexed"`
	ArticlesFailed    int           `json:"articles_failed"`
	ArticlesDuplicate int           `json:"articles_duplicate"`
	Duration          time.Duration `json:"duration"`
}

// Pipeline runs crawls into one index.Writer.
type Pipeline struct {
	cfg     Config
	collab  Collaborators
	index   index.Writer
	logger  *zap.Logger
	emitter progress.Emitter
	clock   Clock
	ids     IDGenerator
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithEmitter sends progress events to e.
func WithEmitter(e progress.Emitter) Option {
	return func(p *Pipeline) {
		if e != nil {
			p.emitter = e
		}
	}
}

// WithClock overrides the event clock.
func WithClock(c Clock) Option {
	return func(p *Pipeline) {
		if c != nil {
			p.clock = c
		}
	}
}

// WithIDGenerator overrides run ID generation.
func WithIDGenerator(g IDGenerator) Option {
	return func(p *Pipeline) {
		if g != nil {
			p.ids = g
		}
	}
}

// New validates cfg and collaborators. Non-positive capacities fall back to
// the defaults.
func New(cfg Config, collab Collaborators, idx index.Writer, opts ...Option) (*Pipeline, error) {
	if collab.FeedList == nil || collab.Feed == nil || collab.Document == nil {
		return nil, errors.New("pipeline: feed list, feed and document collaborators are required")
	}
	if idx == nil {
		return nil, errors.New("pipeline: index writer is required")
	}
	if cfg.FeedConcurrency <= 0 {
		cfg.FeedConcurrency = DefaultFeedConcurrency
	}
	if cfg.ArticleConcurrency <= 0 {
		cfg.ArticleConcurrency = DefaultArticleConcurrency
	}
	p := &Pipeline{
		cfg:     cfg,
		collab:  collab,
		index:   idx,
		logger:  zap.NewNop(),
		emitter: progress.Discard,
		clock:   wallClock{},
		ids:     randomIDs{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// run holds the per-crawl state shared by feed and article tasks.
type run struct {
	id     uuid.UUID
	logger *zap.Logger

	seenMu sync.Mutex
	seen   map[string]struct{}

	feedsFailed       atomic.Int64
	articles          atomic.Int64
	articlesIndexed   atomic.Int64
	articlesFailed    atomic.Int64
	articlesDuplicate atomic.Int64
}

// claim reports whether url is new to this run.
func (r *run) claim(url string) bool {
	r.seenMu.Lock()
	defer r.seenMu.Unlock()
	if _, ok := r.seen[url]; ok {
		return false
	}
	r.seen[url] = struct{}{}
	return true
}

// Run crawls every feed named by feedListURI and returns once every feed and
// article task has finished. The returned error is non-nil only when the feed
// list itself could not be read; it then wraps news.ErrFeedListRetrieval and
// nothing was crawled.
func (p *Pipeline) Run(ctx context.Context, feedListURI string) (Summary, error) {
	id, err := p.ids.NewRunID()
	if err != nil {
		return Summary{}, fmt.Errorf("start run: %w", err)
	}
	r := &run{
		id:     id,
		logger: p.logger.With(zap.String("run_id", id.String())),
		seen:   make(map[string]struct{}),
	}
	startedAt := p.clock.Now()
	summary := Summary{RunID: id, FeedList: feedListURI, StartedAt: startedAt}
	p.emit(progress.Event{RunID: id, Stage: progress.StageRunStart, URL: feedListURI})

	feeds, err := withTimeout(ctx, p.cfg.FetchTimeout, func(ctx context.Context) (map[string]string, error) {
		return p.collab.FeedList.ParseFeedList(ctx, feedListURI)
	})
	if err != nil {
		if !errors.Is(err, news.ErrFeedListRetrieval) {
			err = fmt.Errorf("%w: %w", news.ErrFeedListRetrieval, err)
		}
		r.logger.Error("feed list retrieval failed", zap.String("feed_uri", feedListURI), zap.Error(err))
		summary.Duration = p.clock.Now().Sub(startedAt)
		p.emit(progress.Event{RunID: id, Stage: progress.StageRunError, Dur: summary.Duration, Note: err.Error()})
		return summary, err
	}
	r.logger.Info("feed list loaded", zap.String("feed_uri", feedListURI), zap.Int("feeds", len(feeds)))

	feedPool, err := pool.New(pool.Config{Name: "feeds", Capacity: p.cfg.FeedConcurrency, Logger: p.logger})
	if err != nil {
		return summary, fmt.Errorf("create feed pool: %w", err)
	}
	defer feedPool.Close()

	names := make([]string, 0, len(feeds))
	for name := range feeds {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		uri := feeds[name]
		if err := feedPool.Schedule(func() { p.processFeed(ctx, r, name, uri) }); err != nil {
			r.feedsFailed.Add(1)
			r.logger.Error("schedule feed failed", zap.String("feed", name), zap.Error(err))
		}
	}
	feedPool.Wait()

	if s, ok := p.index.(Sealer); ok {
		s.Seal()
	}

	summary.Feeds = len(feeds)
	summary.FeedsFailed = int(r.feedsFailed.Load())
	summary.Articles = int(r.articles.Load())
	summary.ArticlesIndexed = int(r.articlesIndexed.Load())
	summary.ArticlesFailed = int(r.articlesFailed.Load())
	summary.ArticlesDuplicate = int(r.articlesDuplicate.Load())
	summary.Duration = p.clock.Now().Sub(startedAt)

	p.emit(progress.Event{RunID: id, Stage: progress.StageRunDone, Dur: summary.Duration})
	r.logger.Info("crawl finished",
		zap.Int("feeds", summary.Feeds),
		zap.Int("feeds_failed", summary.FeedsFailed),
		zap.Int("articles", summary.Articles),
		zap.Int("articles_indexed", summary.ArticlesIndexed),
		zap.Int("articles_failed", summary.ArticlesFailed),
		zap.Int("articles_duplicate", summary.ArticlesDuplicate),
		zap.Duration("duration", summary.Duration),
	)
	return summary, nil
}

// processFeed parses one feed and indexes its articles through a pool owned
// by this task. It returns only after that pool has drained.
func (p *Pipeline) processFeed(ctx context.Context, r *run, name, uri string) {
	logger := r.logger.With(zap.String("feed", name), zap.String("feed_uri", uri))
	start := p.clock.Now()
	p.emit(progress.Event{RunID: r.id, Stage: progress.StageFeedStart, Feed: name, URL: uri})

	articles, err := withTimeout(ctx, p.cfg.FetchTimeout, func(ctx context.Context) ([]news.Article, error) {
		return p.collab.Feed.ParseFeed(ctx, uri)
	})
	if err != nil {
		r.feedsFailed.Add(1)
		logger.Warn("feed retrieval failed", zap.Error(err))
		p.emit(progress.Event{
			RunID: r.id, Stage: progress.StageFeedError, Feed: name, URL: uri,
			Dur: p.clock.Now().Sub(start), Note: err.Error(),
		})
		return
	}
	p.emit(progress.Event{
		RunID: r.id, Stage: progress.StageFeedDone, Feed: name, URL: uri,
		Articles: len(articles), Dur: p.clock.Now().Sub(start),
	})
	logger.Debug("feed parsed", zap.Int("articles", len(articles)))
	if len(articles) == 0 {
		return
	}

	articlePool, err := pool.New(pool.Config{Name: "articles", Capacity: p.cfg.ArticleConcurrency, Logger: logger})
	if err != nil {
		r.feedsFailed.Add(1)
		logger.Error("create article pool failed", zap.Error(err))
		return
	}
	defer articlePool.Close()

	for _, article := range articles {
		if article.URL == "" {
			r.articlesFailed.Add(1)
			logger.Warn("article without url skipped", zap.String("title", article.Title))
			continue
		}
		if !r.claim(article.URL) {
			r.articlesDuplicate.Add(1)
			logger.Debug("duplicate article skipped", zap.String("url", article.URL))
			p.emit(progress.Event{RunID: r.id, Stage: progress.StageArticleDuplicate, Feed: name, URL: article.URL})
			continue
		}
		r.articles.Add(1)
		if err := articlePool.Schedule(func() { p.processArticle(ctx, r, logger, name, article) }); err != nil {
			r.articlesFailed.Add(1)
			logger.Error("schedule article failed", zap.String("url", article.URL), zap.Error(err))
		}
	}
	articlePool.Wait()
}

// processArticle tokenizes one article and adds it to the index.
func (p *Pipeline) processArticle(ctx context.Context, r *run, logger *zap.Logger, feed string, article news.Article) {
	start := p.clock.Now()
	tokens, err := withTimeout(ctx, p.cfg.FetchTimeout, func(ctx context.Context) ([]string, error) {
		return p.collab.Document.Tokens(ctx, article.URL)
	})
	if err == nil {
		err = p.index.Add(article, tokens)
	}
	dur := p.clock.Now().Sub(start)
	if err != nil {
		r.articlesFailed.Add(1)
		logger.Warn("article skipped", zap.String("url", article.URL), zap.Error(err))
		p.emit(progress.Event{
			RunID: r.id, Stage: progress.StageArticleError, Feed: feed, URL: article.URL,
			Dur: dur, Note: err.Error(),
		})
		return
	}
	r.articlesIndexed.Add(1)
	p.emit(progress.Event{
		RunID: r.id, Stage: progress.StageArticleDone, Feed: feed, URL: article.URL,
		Tokens: len(tokens), Dur: dur,
	})
}

func (p *Pipeline) emit(evt progress.Event) {
	if evt.TS.IsZero() {
		evt.TS = p.clock.Now()
	}
	if evt.Dur < 0 {
		evt.Dur = 0
	}
	p.emitter.Emit(evt)
}

// withTimeout runs fn under ctx bounded by timeout when timeout > 0.
func withTimeout[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if err := ctx.Err(); err != nil {
		var zero T
		return zero, err
	}
	if timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(ctx)
}

type wallClock struct{}

func (wallClock) Now() time.Time { return time.Now().UTC() }

type randomIDs struct{}

func (randomIDs) NewRunID() (uuid.UUID, error) { return uuid.NewV7() }
