// Package fetcher defines the document retrieval contract shared by the feed
// and article collaborators, and a Loader that serves local files directly
// and hands http(s) locations to a network Fetcher.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// Request captures everything needed to fetch a URL.
type Request struct {
	URL     string
	Headers http.Header
}

// Response is the result returned by a Fetcher implementation.
type Response struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request Request) (Response, error)
}

// ErrNoFetcher is returned when a remote location is requested from a Loader
// built without a network Fetcher.
var ErrNoFetcher = errors.New("no network fetcher configured")

// Loader resolves a location to its raw bytes. Plain paths and file:// URIs
// are read from disk; http and https URIs go through the Fetcher.
type Loader struct {
	fetcher Fetcher
}

// NewLoader builds a Loader. fetcher may be nil when only local files are used.
func NewLoader(fetcher Fetcher) *Loader {
	return &Loader{fetcher: fetcher}
}

// Load returns the content stored at uri.
func (l *Loader) Load(ctx context.Context, uri string) ([]byte, error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return nil, errors.New("empty location")
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("load %s: %w", uri, err)
	}
	u, err := url.Parse(uri)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// No scheme (or a drive letter): a filesystem path.
		return readFile(uri)
	}
	switch strings.ToLower(u.Scheme) {
	case "file":
		return readFile(u.Path)
	case "http", "https":
		if l.fetcher == nil {
			return nil, ErrNoFetcher
		}
		resp, err := l.fetcher.Fetch(ctx, Request{URL: uri})
		if err != nil {
			return nil, err
		}
		return resp.Body, nil
	default:
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path) //nolint:gosec // locations come from the operator's feed list
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return data, nil
}
