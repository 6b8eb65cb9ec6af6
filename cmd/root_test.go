package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testDeps() deps {
	return deps{registerer: prometheus.NewRegistry(), logger: zap.NewNop()}
}

// writeCorpus lays out a feed list, one feed and two articles on disk and
// returns the feed list path.
func writeCorpus(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	write := func(name, body string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
		return path
	}
	a := write("a.html", `<html><body><h1>Go go gophers</h1></body></html>`)
	b := write("b.html", `<html><body><p>Rust meets Go</p></body></html>`)
	feed := write("feed.xml", `<rss><channel>
<item><title>Gophers</title><link>`+a+`</link></item>
<item><title>Crabs</title><link>`+b+`</link></item>
</channel></rss>`)
	return write("list.xml", `<opml><body><outline title="Tech" xmlUrl="`+feed+`"/></body></opml>`)
}

func execute(t *testing.T, stdin string, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), testDeps(), args, strings.NewReader(stdin), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

// TestRootCrawlsThenPrompts answers terms from the crawled index and quits
// on an empty line.
func TestRootCrawlsThenPrompts(t *testing.T) {
	t.Parallel()

	code, out, errOut := execute(t, "GO\nzebra\n\n", "--url", writeCorpus(t))
	require.Equal(t, exitOK, code, errOut)
	require.Contains(t, out, "That term appears in 2 articles.  Here they are:\n")
	require.Contains(t, out, "   1.) \"Gophers\" [appears 2 times].\n")
	require.Contains(t, out, "   2.) \"Crabs\" [appears 1 time].\n")
	require.Contains(t, out, "Ah, we didn't find the term \"zebra\". Try again.\n")
	require.Equal(t, 3, strings.Count(out, "Enter a search term [or just hit <enter> to quit]: "))
}

// TestRootFeedListFailure aborts before the prompt with status 1.
func TestRootFeedListFailure(t *testing.T) {
	t.Parallel()

	missing := filepath.Join(t.TempDir(), "nope.xml")
	code, out, errOut := execute(t, "go\n", "--quiet", "--url", missing)
	require.Equal(t, exitError, code)
	require.Empty(t, out)
	require.Contains(t, errOut, "Ran into trouble while pulling full RSS feed list from \""+missing+"\".\nAborting....\n")
}

// TestRootUsageErrors rejects positional arguments and unknown flags.
func TestRootUsageErrors(t *testing.T) {
	t.Parallel()

	code, _, errOut := execute(t, "", "extra")
	require.Equal(t, exitError, code)
	require.Equal(t, "Error: Too many arguments\nUsage: news-aggregator [--verbose] [--quiet] [--url <feed-file>]\n", errOut)

	code, _, errOut = execute(t, "", "--loud")
	require.Equal(t, exitError, code)
	require.Contains(t, errOut, "Error: Unrecognized flag.\n")
}

// TestVerbosityLastFlagWins mirrors getopt ordering between --verbose and
// --quiet.
func TestVerbosityLastFlagWins(t *testing.T) {
	t.Parallel()

	cases := []struct {
		args []string
		want string
	}{
		{nil, ""},
		{[]string{"--verbose"}, "debug"},
		{[]string{"--quiet"}, "warn"},
		{[]string{"--verbose", "--quiet"}, "warn"},
		{[]string{"--quiet", "--verbose"}, "debug"},
		{[]string{"--verbose", "--verbose=false"}, ""},
	}
	for _, tc := range cases {
		var level string
		fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
		fs.VarPF(&verbosity{target: &level, level: "debug"}, "verbose", "", "").NoOptDefVal = "true"
		fs.VarPF(&verbosity{target: &level, level: "warn"}, "quiet", "", "").NoOptDefVal = "true"
		require.NoError(t, fs.Parse(tc.args))
		require.Equal(t, tc.want, level, "args %v", tc.args)
	}
}
