// Package blocklist refuses fetches to configured hosts.
package blocklist

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/JakeFAU/news-aggregator/internal/fetcher"
)

// ErrBlocked is returned for URLs whose host is on the list.
var ErrBlocked = errors.New("host is blocked")

// List matches exact hosts and "*.suffix" or ".suffix" wildcards.
type List struct {
	exact    map[string]struct{}
	suffixes []string
}

// New parses patterns. It returns nil when no pattern survives trimming; a
// nil List blocks nothing.
func New(patterns []string) *List {
	l := &List{exact: make(map[string]struct{})}
	for _, raw := range patterns {
		value := strings.TrimSpace(strings.ToLower(raw))
		switch {
		case value == "":
		case strings.HasPrefix(value, "*."):
			l.addSuffix(strings.TrimPrefix(value, "*."))
		case strings.HasPrefix(value, "."):
			l.addSuffix(strings.TrimPrefix(value, "."))
		default:
			l.exact[value] = struct{}{}
		}
	}
	if len(l.exact) == 0 && len(l.suffixes) == 0 {
		return nil
	}
	return l
}

func (l *List) addSuffix(suffix string) {
	if suffix != "" && !slices.Contains(l.suffixes, suffix) {
		l.suffixes = append(l.suffixes, suffix)
	}
}

// IsBlocked reports whether host matches the list.
func (l *List) IsBlocked(host string) bool {
	if l == nil {
		return false
	}
	host = strings.TrimSpace(strings.ToLower(host))
	if host == "" {
		return false
	}
	if _, ok := l.exact[host]; ok {
		return true
	}
	for _, suffix := range l.suffixes {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}

// Fetcher rejects blocked hosts before delegating.
type Fetcher struct {
	next fetcher.Fetcher
	list *List
}

// Wrap decorates next. With a nil list it returns next unchanged.
func Wrap(next fetcher.Fetcher, list *List) fetcher.Fetcher {
	if list == nil {
		return next
	}
	return &Fetcher{next: next, list: list}
}

// Fetch fails with ErrBlocked for listed hosts.
func (f *Fetcher) Fetch(ctx context.Context, request fetcher.Request) (fetcher.Response, error) {
	u, err := url.Parse(request.URL)
	if err != nil {
		return fetcher.Response{}, fmt.Errorf("parse %s: %w", request.URL, err)
	}
	if f.list.IsBlocked(u.Hostname()) {
		return fetcher.Response{}, fmt.Errorf("%w: %s", ErrBlocked, u.Hostname())
	}
	return f.next.Fetch(ctx, request)
}
