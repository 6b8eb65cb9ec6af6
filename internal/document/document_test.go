package document

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/news-aggregator/internal/news"
)

type stubLoader struct {
	pages map[string]string
	err   error
}

func (s stubLoader) Load(_ context.Context, uri string) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	page, ok := s.pages[uri]
	if !ok {
		return nil, errors.New("not found")
	}
	return []byte(page), nil
}

type countingLimiter struct {
	calls []string
	err   error
}

func (c *countingLimiter) Wait(_ context.Context, rawURL string) error {
	c.calls = append(c.calls, rawURL)
	return c.err
}

const page = `<!doctype html>
<html>
  <head><title>Ignored Title</title><style>body { color: red }</style></head>
  <body>
    <h1>Go 1.25 Released</h1>
    <script>var hidden = "tokens";</script>
    <p>Gophers, rejoice! The <b>GO</b> team shipped it.</p>
    <noscript>enable javascript</noscript>
  </body>
</html>`

// TestTokenizeVisibleText keeps body text and drops scripts and styles.
func TestTokenizeVisibleText(t *testing.T) {
	t.Parallel()

	tokens, err := Tokenize([]byte(page))
	require.NoError(t, err)
	require.Equal(t, []string{
		"go", "1", "25", "released",
		"gophers", "rejoice", "the", "go", "team", "shipped", "it",
	}, tokens)
}

// TestSplit covers punctuation, unicode letters and empty input.
func TestSplit(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want []string
	}{
		{name: "empty", in: "", want: []string{}},
		{name: "punctuation only", in: " -- !! ", want: []string{}},
		{name: "mixed", in: "Hello, World! e-mail", want: []string{"hello", "world", "e", "mail"}},
		{name: "unicode", in: "Café ÜBER", want: []string{"café", "über"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, Split(tc.in))
		})
	}
}

// TestParserTokensUsesLimiter rate limits before loading.
func TestParserTokensUsesLimiter(t *testing.T) {
	t.Parallel()

	limiter := &countingLimiter{}
	p := NewParser(stubLoader{pages: map[string]string{"https://a.example/1": "<p>one two</p>"}}, WithLimiter(limiter))

	tokens, err := p.Tokens(context.Background(), "https://a.example/1")
	require.NoError(t, err)
	require.Equal(t, []string{"one", "two"}, tokens)
	require.Equal(t, []string{"https://a.example/1"}, limiter.calls)
}

// TestParserTokensFailures wraps the document sentinel.
func TestParserTokensFailures(t *testing.T) {
	t.Parallel()

	loadErr := errors.New("connection reset")
	_, err := NewParser(stubLoader{err: loadErr}).Tokens(context.Background(), "https://a.example/1")
	require.ErrorIs(t, err, news.ErrDocumentRetrieval)
	require.ErrorIs(t, err, loadErr)

	waitErr := context.Canceled
	_, err = NewParser(stubLoader{}, WithLimiter(&countingLimiter{err: waitErr})).
		Tokens(context.Background(), "https://a.example/1")
	require.ErrorIs(t, err, news.ErrDocumentRetrieval)
	require.ErrorIs(t, err, context.Canceled)
}
