package export

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/news-aggregator/internal/hash/sha256"
	"github.com/JakeFAU/news-aggregator/internal/index"
	"github.com/JakeFAU/news-aggregator/internal/news"
	"github.com/JakeFAU/news-aggregator/internal/pipeline"
	pubmemory "github.com/JakeFAU/news-aggregator/internal/publisher/memory"
	"github.com/JakeFAU/news-aggregator/internal/storage/memory"
)

func sealedIndex(t *testing.T) *index.Index {
	t.Helper()
	idx := index.New()
	require.NoError(t, idx.Add(news.Article{URL: "https://n.example/a", Title: "A"}, []string{"go", "news"}))
	require.NoError(t, idx.Add(news.Article{URL: "https://n.example/b", Title: "B"}, []string{"go"}))
	idx.Seal()
	return idx
}

type recordingSink struct {
	runID    uuid.UUID
	postings []index.Posting
	err      error
}

func (s *recordingSink) StorePostings(_ context.Context, runID uuid.UUID, postings []index.Posting) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.runID = runID
	s.postings = postings
	return int64(len(postings)), nil
}

// TestExportAllTargets uploads, stores and notifies with consistent data.
func TestExportAllTargets(t *testing.T) {
	t.Parallel()

	idx := sealedIndex(t)
	blobs := memory.NewBlobStore()
	sink := &recordingSink{}
	pub := pubmemory.New()
	summary := pipeline.Summary{RunID: uuid.New(), Feeds: 1, Articles: 2, ArticlesIndexed: 2}

	exp := New(WithBlobStore(blobs), WithPostingSink(sink), WithPublisher(pub, "runs"))
	require.True(t, exp.Enabled())
	report := exp.Export(context.Background(), summary, idx)

	require.Zero(t, report.Failures)
	path := SnapshotPath(summary.RunID)
	require.Equal(t, "memory://"+path, report.SnapshotURI)
	body, contentType, ok := blobs.Object(path)
	require.True(t, ok)
	require.Equal(t, "application/json", contentType)
	require.Equal(t, sha256.New().Prefixed(body), report.SnapshotDigest)

	var snap Snapshot
	require.NoError(t, json.Unmarshal(body, &snap))
	require.Equal(t, summary.RunID, snap.RunID)
	require.Equal(t, 2, snap.Tokens)
	require.Equal(t, 2, snap.Articles)
	require.Len(t, snap.Postings, 3)

	require.Equal(t, summary.RunID, sink.runID)
	require.Equal(t, int64(3), report.PostingsStored)

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "runs", msgs[0].Topic)
	note, ok := msgs[0].Payload.(Notification)
	require.True(t, ok)
	require.Equal(t, report.SnapshotURI, note.SnapshotURI)
	require.Equal(t, int64(3), note.PostingsStored)
	require.Equal(t, "memory-1", report.MessageID)
}

// TestExportFailuresAreLogged keeps going past failing targets.
func TestExportFailuresAreLogged(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.WarnLevel)
	pub := pubmemory.New()
	pub.FailWith(errors.New("broker down"))
	exp := New(
		WithPostingSink(&recordingSink{err: errors.New("copy failed")}),
		WithPublisher(pub, ""),
		WithLogger(zap.New(core)),
	)

	report := exp.Export(context.Background(), pipeline.Summary{RunID: uuid.New()}, sealedIndex(t))
	require.Equal(t, 2, report.Failures)
	require.Empty(t, report.SnapshotURI)
	require.Equal(t, 1, logs.FilterMessage("posting export failed").Len())
	require.Equal(t, 1, logs.FilterMessage("run notification failed").Len())
}

// TestExportDisabled does nothing without targets.
func TestExportDisabled(t *testing.T) {
	t.Parallel()

	exp := New()
	require.False(t, exp.Enabled())
	require.Equal(t, Report{}, exp.Export(context.Background(), pipeline.Summary{}, sealedIndex(t)))
}
