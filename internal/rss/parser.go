// Package rss implements the feed-list and feed collaborators on top of
// xmlquery. Feed lists may be OPML (outline elements carrying xmlUrl) or an
// RSS document whose items name and link to feeds. Feeds may be RSS 2.0,
// RSS 1.0 (RDF), or Atom.
package rss

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/antchfx/xmlquery"
	"go.uber.org/zap"

	"github.com/JakeFAU/news-aggregator/internal/news"
)

// Loader resolves a location to raw bytes.
type Loader interface {
	Load(ctx context.Context, uri string) ([]byte, error)
}

const (
	outlineExpr = "//*[local-name()='outline'][@xmlUrl]"
	itemExpr    = "//*[local-name()='item']"
	entryExpr   = "//*[local-name()='entry']"
	titleExpr   = "*[local-name()='title']"
	linkExpr    = "*[local-name()='link']"
)

// Parser satisfies news.FeedListParser and news.FeedParser.
type Parser struct {
	loader Loader
	logger *zap.Logger
}

// Option customizes a Parser.
type Option func(*Parser)

// WithLogger reports feed-list anomalies such as renamed duplicate titles.
func WithLogger(l *zap.Logger) Option {
	return func(p *Parser) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewParser builds a Parser reading documents through loader.
func NewParser(loader Loader, opts ...Option) *Parser {
	p := &Parser{loader: loader, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ParseFeedList returns feed name -> feed URI. Failures wrap
// news.ErrFeedListRetrieval.
func (p *Parser) ParseFeedList(ctx context.Context, uri string) (map[string]string, error) {
	doc, err := p.load(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", news.ErrFeedListRetrieval, err)
	}
	feeds, err := p.feedsFromDocument(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", news.ErrFeedListRetrieval, uri, err)
	}
	return feeds, nil
}

// ParseFeed returns the feed's articles in document order. Failures wrap
// news.ErrFeedRetrieval.
func (p *Parser) ParseFeed(ctx context.Context, uri string) ([]news.Article, error) {
	doc, err := p.load(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", news.ErrFeedRetrieval, err)
	}
	articles, err := articlesFromDocument(doc, uri)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", news.ErrFeedRetrieval, uri, err)
	}
	return articles, nil
}

func (p *Parser) load(ctx context.Context, uri string) (*xmlquery.Node, error) {
	data, err := p.loader.Load(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", uri, err)
	}
	doc, err := xmlquery.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", uri, err)
	}
	return doc, nil
}

// addFeed records link under name. A name already taken by another link is
// qualified with the link so neither feed is lost; a repeated (name, link)
// pair is kept once.
func (p *Parser) addFeed(feeds map[string]string, name, link string) {
	existing, taken := feeds[name]
	if !taken {
		feeds[name] = link
		return
	}
	if existing == link {
		return
	}
	qualified := fmt.Sprintf("%s (%s)", name, link)
	p.logger.Warn("feed title already in use; qualifying with its link",
		zap.String("feed", name),
		zap.String("feed_uri", link),
		zap.String("existing_uri", existing),
	)
	feeds[qualified] = link
}

func (p *Parser) feedsFromDocument(doc *xmlquery.Node) (map[string]string, error) {
	feeds := make(map[string]string)
	outlines, err := xmlquery.QueryAll(doc, outlineExpr)
	if err != nil {
		return nil, fmt.Errorf("query outlines: %w", err)
	}
	for _, o := range outlines {
		link := strings.TrimSpace(o.SelectAttr("xmlUrl"))
		name := firstNonEmpty(o.SelectAttr("title"), o.SelectAttr("text"), link)
		if link != "" {
			p.addFeed(feeds, name, link)
		}
	}
	items, err := xmlquery.QueryAll(doc, itemExpr)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	for _, item := range items {
		link := childText(item, linkExpr)
		name := firstNonEmpty(childText(item, titleExpr), link)
		if link != "" {
			p.addFeed(feeds, name, link)
		}
	}
	return feeds, nil
}

func articlesFromDocument(doc *xmlquery.Node, feedURI string) ([]news.Article, error) {
	var articles []news.Article
	items, err := xmlquery.QueryAll(doc, itemExpr)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	for _, item := range items {
		link := resolve(feedURI, childText(item, linkExpr))
		if link == "" {
			continue
		}
		articles = append(articles, news.Article{URL: link, Title: childText(item, titleExpr)})
	}
	entries, err := xmlquery.QueryAll(doc, entryExpr)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	for _, entry := range entries {
		link := resolve(feedURI, atomLink(entry))
		if link == "" {
			continue
		}
		articles = append(articles, news.Article{URL: link, Title: childText(entry, titleExpr)})
	}
	return articles, nil
}

// atomLink prefers the alternate link, which is also the default relation.
func atomLink(entry *xmlquery.Node) string {
	links, err := xmlquery.QueryAll(entry, linkExpr)
	if err != nil {
		return ""
	}
	fallback := ""
	for _, l := range links {
		href := strings.TrimSpace(l.SelectAttr("href"))
		if href == "" {
			continue
		}
		switch l.SelectAttr("rel") {
		case "", "alternate":
			return href
		}
		if fallback == "" {
			fallback = href
		}
	}
	return fallback
}

func childText(n *xmlquery.Node, expr string) string {
	child, err := xmlquery.Query(n, expr)
	if err != nil || child == nil {
		return ""
	}
	return strings.TrimSpace(child.InnerText())
}

// resolve makes link absolute against an http(s) feed location.
func resolve(base, link string) string {
	if link == "" {
		return ""
	}
	ref, err := url.Parse(link)
	if err != nil {
		return ""
	}
	if ref.IsAbs() {
		return ref.String()
	}
	b, err := url.Parse(base)
	if err != nil || (b.Scheme != "http" && b.Scheme != "https") {
		return link
	}
	return b.ResolveReference(ref).String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
