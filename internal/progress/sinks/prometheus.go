package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/news-aggregator/internal/progress"
)

// PrometheusSink turns crawl events into run, feed and article collectors.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runsActive    prometheus.Gauge
	runDuration   *prometheus.HistogramVec

	feeds          *prometheus.CounterVec
	articles       *prometheus.CounterVec
	articleTokens  prometheus.Histogram
	articleLatency *prometheus.HistogramVec

	mu     sync.Mutex
	active map[uuid.UUID]struct{}
}

// NewPrometheusSink registers its collectors with reg, or the default
// registerer when reg is nil.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "news_runs_started_total",
			Help: "Crawl runs started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "news_runs_completed_total",
			Help: "Crawl runs finished, by result.",
		}, []string{"result"}),
		runsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "news_runs_active",
			Help: "Crawl runs in progress.",
		}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "news_run_duration_seconds",
			Help:    "Wall time per crawl run.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"result"}),
		feeds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "news_feeds_total",
			Help: "Feeds processed, by result.",
		}, []string{"result"}),
		articles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "news_articles_total",
			Help: "Articles processed, by result.",
		}, []string{"result"}),
		articleTokens: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "news_article_tokens",
			Help:    "Tokens indexed per article.",
			Buckets: prometheus.ExponentialBuckets(16, 4, 7),
		}),
		articleLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "news_article_duration_seconds",
			Help:    "Fetch and tokenize time per article, by result.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"result"}),
		active: make(map[uuid.UUID]struct{}),
	}
	for _, c := range []prometheus.Collector{
		s.runsStarted, s.runsCompleted, s.runsActive, s.runDuration,
		s.feeds, s.articles, s.articleTokens, s.articleLatency,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates collectors from the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			s.runsStarted.Inc()
			if s.track(evt.RunID, true) {
				s.runsActive.Inc()
			}
		case progress.StageRunDone:
			s.finishRun(evt, "success")
		case progress.StageRunError:
			s.finishRun(evt, "error")
		case progress.StageFeedDone:
			s.feeds.WithLabelValues("ok").Inc()
		case progress.StageFeedError:
			s.feeds.WithLabelValues("error").Inc()
		case progress.StageArticleDone:
			s.articles.WithLabelValues("indexed").Inc()
			s.articleTokens.Observe(float64(evt.Tokens))
			s.observeArticle(evt, "indexed")
		case progress.StageArticleError:
			s.articles.WithLabelValues("error").Inc()
			s.observeArticle(evt, "error")
		case progress.StageArticleDuplicate:
			s.articles.WithLabelValues("duplicate").Inc()
		}
	}
	return nil
}

func (s *PrometheusSink) finishRun(evt progress.Event, result string) {
	s.runsCompleted.WithLabelValues(result).Inc()
	if evt.Dur > 0 {
		s.runDuration.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
	if s.track(evt.RunID, false) {
		s.runsActive.Dec()
	}
}

func (s *PrometheusSink) observeArticle(evt progress.Event, result string) {
	if evt.Dur > 0 {
		s.articleLatency.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
}

// track adds or removes id from the active set and reports whether it changed.
func (s *PrometheusSink) track(id uuid.UUID, start bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[id]
	switch {
	case start && !ok:
		s.active[id] = struct{}{}
		return true
	case !start && ok:
		delete(s.active, id)
		return true
	}
	return false
}

// Close is a no-op.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
