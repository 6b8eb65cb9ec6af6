// Package export ships a finished crawl out of the process: the index
// snapshot to a blob store, the postings to Postgres, and a completion
// notification to a publisher. Every target is optional and failures are
// logged, never returned.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/news-aggregator/internal/hash/sha256"
	"github.com/JakeFAU/news-aggregator/internal/index"
	"github.com/JakeFAU/news-aggregator/internal/pipeline"
	"github.com/JakeFAU/news-aggregator/internal/storage"
)

const snapshotContentType = "application/json"

// SnapshotSource is the index view an export reads.
type SnapshotSource interface {
	Snapshot() []index.Posting
	Len() int
	Articles() int
}

// PostingSink bulk-stores postings for a run.
type PostingSink interface {
	StorePostings(ctx context.Context, runID uuid.UUID, postings []index.Posting) (int64, error)
}

// Publisher announces a finished run.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Snapshot is the JSON document written to the blob store.
type Snapshot struct {
	RunID    uuid.UUID        `json:"run_id"`
	Summary  pipeline.Summary `json:"summary"`
	Tokens   int              `json:"tokens"`
	Articles int              `json:"articles"`
	Postings []index.Posting  `json:"postings"`
}

// Notification is the payload published after an export.
type Notification struct {
	RunID          uuid.UUID        `json:"run_id"`
	Summary        pipeline.Summary `json:"summary"`
	SnapshotURI    string           `json:"snapshot_uri,omitempty"`
	SnapshotDigest string           `json:"snapshot_digest,omitempty"`
	PostingsStored int64            `json:"postings_stored"`
}

// Report tells the caller what each target accepted.
type Report struct {
	SnapshotURI    string
	SnapshotDigest string
	PostingsStored int64
	MessageID      string
	Failures       int
}

// Exporter fans a run out to the configured targets.
type Exporter struct {
	blob     storage.BlobStore
	postings PostingSink
	pub      Publisher
	topic    string
	timeout  time.Duration
	hasher   *sha256.Hasher
	logger   *zap.Logger
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithBlobStore uploads the snapshot to b.
func WithBlobStore(b storage.BlobStore) Option {
	return func(e *Exporter) { e.blob = b }
}

// WithPostingSink stores postings through s.
func WithPostingSink(s PostingSink) Option {
	return func(e *Exporter) { e.postings = s }
}

// WithPublisher publishes the notification to topic. An empty topic defers to
// the publisher's default.
func WithPublisher(p Publisher, topic string) Option {
	return func(e *Exporter) {
		e.pub = p
		e.topic = topic
	}
}

// WithTimeout bounds each target call.
func WithTimeout(d time.Duration) Option {
	return func(e *Exporter) { e.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Exporter) {
		if l != nil {
			e.logger = l
		}
	}
}

// New builds an Exporter. With no targets Export does nothing.
func New(opts ...Option) *Exporter {
	e := &Exporter{
		timeout: 30 * time.Second,
		hasher:  sha256.New(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Enabled reports whether any target is configured.
func (e *Exporter) Enabled() bool {
	return e.blob != nil || e.postings != nil || e.pub != nil
}

// SnapshotPath is the object path of a run's snapshot.
func SnapshotPath(runID uuid.UUID) string {
	return path.Join("runs", runID.String(), "index.json")
}

// Export sends the run to every configured target in order: snapshot,
// postings, notification. The notification goes out even when an earlier
// target failed.
func (e *Exporter) Export(ctx context.Context, summary pipeline.Summary, src SnapshotSource) Report {
	var report Report
	if !e.Enabled() {
		return report
	}
	logger := e.logger.With(zap.String("run_id", summary.RunID.String()))
	postings := src.Snapshot()

	if e.blob != nil {
		uri, digest, err := e.uploadSnapshot(ctx, summary, src, postings)
		if err != nil {
			report.Failures++
			logger.Warn("snapshot upload failed", zap.Error(err))
		} else {
			report.SnapshotURI, report.SnapshotDigest = uri, digest
			logger.Info("snapshot uploaded", zap.String("uri", uri), zap.String("digest", digest))
		}
	}

	if e.postings != nil {
		n, err := callWithTimeout(ctx, e.timeout, func(ctx context.Context) (int64, error) {
			return e.postings.StorePostings(ctx, summary.RunID, postings)
		})
		if err != nil {
			report.Failures++
			logger.Warn("posting export failed", zap.Error(err))
		} else {
			report.PostingsStored = n
			logger.Info("postings stored", zap.Int64("rows", n))
		}
	}

	if e.pub != nil {
		note := Notification{
			RunID:          summary.RunID,
			Summary:        summary,
			SnapshotURI:    report.SnapshotURI,
			SnapshotDigest: report.SnapshotDigest,
			PostingsStored: report.PostingsStored,
		}
		id, err := callWithTimeout(ctx, e.timeout, func(ctx context.Context) (string, error) {
			return e.pub.Publish(ctx, e.topic, note)
		})
		if err != nil {
			report.Failures++
			logger.Warn("run notification failed", zap.Error(err))
		} else {
			report.MessageID = id
			logger.Info("run notification published", zap.String("message_id", id))
		}
	}
	return report
}

func (e *Exporter) uploadSnapshot(
	ctx context.Context,
	summary pipeline.Summary,
	src SnapshotSource,
	postings []index.Posting,
) (string, string, error) {
	body, err := json.Marshal(Snapshot{
		RunID:    summary.RunID,
		Summary:  summary,
		Tokens:   src.Len(),
		Articles: src.Articles(),
		Postings: postings,
	})
	if err != nil {
		return "", "", fmt.Errorf("marshal snapshot: %w", err)
	}
	uri, err := callWithTimeout(ctx, e.timeout, func(ctx context.Context) (string, error) {
		return e.blob.PutObject(ctx, SnapshotPath(summary.RunID), snapshotContentType, bytes.NewReader(body))
	})
	if err != nil {
		return "", "", fmt.Errorf("put snapshot: %w", err)
	}
	return uri, e.hasher.Prefixed(body), nil
}

func callWithTimeout[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return fn(ctx)
}
