package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/news-aggregator/internal/config"
	"github.com/JakeFAU/news-aggregator/internal/export"
	"github.com/JakeFAU/news-aggregator/internal/fetcher"
	"github.com/JakeFAU/news-aggregator/internal/news"
	"github.com/JakeFAU/news-aggregator/internal/policy/blocklist"
	"github.com/JakeFAU/news-aggregator/internal/store"
)

// writeCorpus lays out a feed list, one feed and two articles on disk.
func writeCorpus(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	write := func(name, body string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
		return path
	}
	a := write("a.html", `<html><body><p>Go gophers go</p></body></html>`)
	b := write("b.html", `<html><body><p>Rust and Go</p><script>var hidden</script></body></html>`)
	feed := write("feed.xml", `<rss><channel><title>Tech</title>
<item><title>Gophers</title><link>`+a+`</link></item>
<item><title>Crabs</title><link>`+b+`</link></item>
</channel></rss>`)
	return write("list.xml", `<opml><body><outline title="Tech" xmlUrl="`+feed+`"/></body></opml>`)
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Crawler: config.CrawlerConfig{
			FeedConcurrency:    2,
			ArticleConcurrency: 2,
			FetchTimeout:       5 * time.Second,
		},
		Query:  config.QueryConfig{MaxResults: 15, TruncateWidth: 70},
		Server: config.ServerConfig{Port: 8080},
		Export: config.ExportConfig{
			Blob: config.BlobConfig{Provider: config.BlobLocal, LocalDir: t.TempDir()},
		},
	}
}

// TestAppCrawlIndexesAndExports crawls local files, records the run and
// writes the snapshot.
func TestAppCrawlIndexesAndExports(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	a, err := New(context.Background(), Options{
		Config:     cfg,
		Logger:     zap.NewNop(),
		Verbose:    true,
		Registerer: prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	t.Cleanup(a.Close)

	idx, summary, err := a.Crawl(context.Background(), writeCorpus(t))
	require.NoError(t, err)
	require.True(t, idx.Sealed())
	require.Equal(t, 1, summary.Feeds)
	require.Equal(t, 2, summary.ArticlesIndexed)

	matches := idx.Query("go")
	require.Len(t, matches, 2)
	require.Equal(t, "Gophers", matches[0].Article.Title)
	require.Equal(t, 2, matches[0].Count)
	require.Empty(t, idx.Query("hidden"))

	run, err := a.Runs().GetRun(context.Background(), summary.RunID)
	require.NoError(t, err)
	require.Equal(t, store.RunSuccess, run.Status)

	snapshot := filepath.Join(cfg.Export.Blob.LocalDir, export.SnapshotPath(summary.RunID))
	_, err = os.Stat(snapshot)
	require.NoError(t, err)
}

// TestAppCrawlFeedListFailure surfaces the fatal category error.
func TestAppCrawlFeedListFailure(t *testing.T) {
	t.Parallel()

	a, err := New(context.Background(), Options{Config: testConfig(t), Registerer: prometheus.NewRegistry()})
	require.NoError(t, err)
	t.Cleanup(a.Close)

	idx, _, err := a.Crawl(context.Background(), filepath.Join(t.TempDir(), "missing.xml"))
	require.Nil(t, idx)
	require.True(t, errors.Is(err, news.ErrFeedListRetrieval))
}

// TestNewRejectsDuplicateRegistration fails when collectors already exist.
func TestNewRejectsDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	a, err := New(context.Background(), Options{Config: testConfig(t), Registerer: reg})
	require.NoError(t, err)
	t.Cleanup(a.Close)

	_, err = New(context.Background(), Options{Config: testConfig(t), Registerer: reg})
	require.ErrorContains(t, err, "register progress metrics")
}

type stubFetcher struct{ calls int }

func (f *stubFetcher) Fetch(_ context.Context, req fetcher.Request) (fetcher.Response, error) {
	f.calls++
	return fetcher.Response{URL: req.URL, StatusCode: 200}, nil
}

// TestNetworkFetcherBlocksHosts applies the blocklist ahead of the base.
func TestNetworkFetcherBlocksHosts(t *testing.T) {
	t.Parallel()

	base := &stubFetcher{}
	f := NetworkFetcher(config.CrawlerConfig{MaxRetries: 1, BlockedDomains: []string{"*.ads.example"}}, base, zap.NewNop())

	_, err := f.Fetch(context.Background(), fetcher.Request{URL: "https://x.ads.example/a"})
	require.ErrorIs(t, err, blocklist.ErrBlocked)
	require.Zero(t, base.calls)

	_, err = f.Fetch(context.Background(), fetcher.Request{URL: "https://news.example/a"})
	require.NoError(t, err)
	require.Equal(t, 1, base.calls)
}
