// Package document implements the article collaborator: it loads an HTML
// page and reduces its visible text to a stream of lowercase tokens.
package document

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/net/html"

	"github.com/JakeFAU/news-aggregator/internal/news"
)

// Loader resolves a location to raw bytes.
type Loader interface {
	Load(ctx context.Context, uri string) ([]byte, error)
}

// Limiter delays a request until its host may be contacted again.
type Limiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Parser satisfies news.DocumentParser.
type Parser struct {
	loader  Loader
	limiter Limiter
}

// Option customizes a Parser.
type Option func(*Parser)

// WithLimiter applies per-host politeness to every load.
func WithLimiter(l Limiter) Option {
	return func(p *Parser) {
		p.limiter = l
	}
}

// NewParser builds a Parser reading pages through loader.
func NewParser(loader Loader, opts ...Option) *Parser {
	p := &Parser{loader: loader}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Tokens returns the page's tokens in document order. Failures wrap
// news.ErrDocumentRetrieval.
func (p *Parser) Tokens(ctx context.Context, url string) ([]string, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx, url); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", news.ErrDocumentRetrieval, url, err)
		}
	}
	body, err := p.loader.Load(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: load %s: %w", news.ErrDocumentRetrieval, url, err)
	}
	tokens, err := Tokenize(body)
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", news.ErrDocumentRetrieval, url, err)
	}
	return tokens, nil
}

// skipped elements carry no reader-visible text.
var skipped = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"head":     true,
}

// Tokenize extracts the visible text of an HTML document and splits it into
// lowercase runs of letters and digits.
func Tokenize(body []byte) ([]string, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var tokens []string
	var walker func(*html.Node)
	walker = func(n *html.Node) {
		if n.Type == html.ElementNode && skipped[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			tokens = append(tokens, Split(n.Data)...)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walker(c)
		}
	}
	walker(doc)
	return tokens, nil
}

// Split breaks text on anything that is not a letter or digit.
func Split(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for i, f := range fields {
		fields[i] = strings.ToLower(f)
	}
	return fields
}
