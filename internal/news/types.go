package news

import (
	"context"
	"errors"
)

// Article identifies a news item. URL is the identity; Title is display-only.
type Article struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// Retrieval failure categories. Collaborators wrap their underlying cause with
// one of these so callers can classify failures with errors.Is.
var (
	ErrFeedListRetrieval = errors.New("feed list retrieval failed")
	ErrFeedRetrieval     = errors.New("feed retrieval failed")
	ErrDocumentRetrieval = errors.New("document retrieval failed")
)

// FeedListParser resolves a feed-list location into feed name -> feed URI.
type FeedListParser interface {
	ParseFeedList(ctx context.Context, uri string) (map[string]string, error)
}

// FeedParser resolves a feed URI into its ordered article descriptors.
type FeedParser interface {
	ParseFeed(ctx context.Context, uri string) ([]Article, error)
}

// DocumentParser fetches an article and returns its normalized token stream.
type DocumentParser interface {
	Tokens(ctx context.Context, url string) ([]string, error)
}
