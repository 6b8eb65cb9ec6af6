// Package index implements the shared inverted index built during a crawl:
// token -> article -> occurrence count. Writers add each article's token
// stream once under a single exclusive lock; after Seal the index is
// read-only and serves queries.
package index

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/JakeFAU/news-aggregator/internal/news"
)

var (
	// ErrDuplicateArticle is returned when an article URL was already added.
	ErrDuplicateArticle = errors.New("article already indexed")
	// ErrSealed is returned by Add once the crawl phase has ended.
	ErrSealed = errors.New("index sealed")
)

// Writer is the crawl-phase view of the index.
type Writer interface {
	Add(article news.Article, tokens []string) error
}

// Reader is the query-phase view of the index.
type Reader interface {
	Query(term string) []Match
}

// Match pairs an article with how often the queried token appears in it.
type Match struct {
	Article news.Article `json:"article"`
	Count   int          `json:"count"`
}

// Posting is one (token, article, count) row of a snapshot.
type Posting struct {
	Token string `json:"token"`
	URL   string `json:"url"`
	Title string `json:"title"`
	Count int    `json:"count"`
}

// Index is safe for concurrent Add calls and concurrent queries.
type Index struct {
	mu       sync.RWMutex
	postings map[string]map[string]int // token -> article URL -> count
	articles map[string]news.Article   // article URL -> article
	sealed   bool
}

// New returns an empty, writable Index.
func New() *Index {
	return &Index{
		postings: make(map[string]map[string]int),
		articles: make(map[string]news.Article),
	}
}

// Normalize maps a raw token or search term onto its indexed form.
func Normalize(token string) string {
	return strings.ToLower(strings.TrimSpace(token))
}

// Add counts every token of the article's stream. An article may be added at
// most once; a repeat returns ErrDuplicateArticle and leaves counts untouched.
func (i *Index) Add(article news.Article, tokens []string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.sealed {
		return ErrSealed
	}
	if _, ok := i.articles[article.URL]; ok {
		return ErrDuplicateArticle
	}
	i.articles[article.URL] = article
	for _, raw := range tokens {
		token := Normalize(raw)
		if token == "" {
			continue
		}
		counts, ok := i.postings[token]
		if !ok {
			counts = make(map[string]int)
			i.postings[token] = counts
		}
		counts[article.URL]++
	}
	return nil
}

// Seal ends the crawl phase. Subsequent Add calls fail with ErrSealed.
func (i *Index) Seal() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.sealed = true
}

// Sealed reports whether Seal has been called.
func (i *Index) Sealed() bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.sealed
}

// Query returns every article containing term, most occurrences first. Ties
// are broken by title and then URL so results are stable.
func (i *Index) Query(term string) []Match {
	i.mu.RLock()
	defer i.mu.RUnlock()
	counts := i.postings[Normalize(term)]
	matches := make([]Match, 0, len(counts))
	for url, count := range counts {
		if count <= 0 {
			continue
		}
		matches = append(matches, Match{Article: i.articles[url], Count: count})
	}
	sort.Slice(matches, func(a, b int) bool {
		if matches[a].Count != matches[b].Count {
			return matches[a].Count > matches[b].Count
		}
		if matches[a].Article.Title != matches[b].Article.Title {
			return matches[a].Article.Title < matches[b].Article.Title
		}
		return matches[a].Article.URL < matches[b].Article.URL
	})
	return matches
}

// Len reports the number of distinct tokens.
func (i *Index) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.postings)
}

// Articles reports the number of indexed articles.
func (i *Index) Articles() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.articles)
}

// Snapshot flattens the index into postings ordered by token, then URL.
func (i *Index) Snapshot() []Posting {
	i.mu.RLock()
	defer i.mu.RUnlock()
	out := make([]Posting, 0, len(i.postings))
	for token, counts := range i.postings {
		for url, count := range counts {
			out = append(out, Posting{
				Token: token,
				URL:   url,
				Title: i.articles[url].Title,
				Count: count,
			})
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Token != out[b].Token {
			return out[a].Token < out[b].Token
		}
		return out[a].URL < out[b].URL
	})
	return out
}
