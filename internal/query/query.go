// Package query answers search terms against a finished index, both as a
// value (Search) and as the line-oriented terminal prompt (Prompt).
package query

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/JakeFAU/news-aggregator/internal/index"
)

// Defaults for display.
const (
	DefaultMaxResults    = 15
	DefaultTruncateWidth = 70
)

// Result is the answer to one search term.
type Result struct {
	Term string `json:"term"`
	// Total counts every matching article, including those cut by the limit.
	Total   int           `json:"total"`
	Matches []index.Match `json:"matches"`
}

// Search looks up term and keeps at most limit matches, most frequent first.
// A non-positive limit keeps all of them.
func Search(r index.Reader, term string, limit int) Result {
	term = strings.TrimSpace(term)
	res := Result{Term: term, Matches: []index.Match{}}
	if term == "" {
		return res
	}
	matches := r.Query(term)
	res.Total = len(matches)
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	res.Matches = append(res.Matches, matches...)
	return res
}

// Truncate shortens s to width runes, ending in "..." when cut.
func Truncate(s string, width int) string {
	if width <= 0 || utf8.RuneCountInString(s) <= width {
		return s
	}
	if width <= 3 {
		return strings.Repeat(".", width)
	}
	runes := []rune(s)
	return string(runes[:width-3]) + "..."
}

// Prompt is the interactive search loop run after a crawl.
type Prompt struct {
	Index         index.Reader
	MaxResults    int
	TruncateWidth int
}

const promptText = "Enter a search term [or just hit <enter> to quit]: "

// maxTermLine bounds one line of prompt input.
const maxTermLine = 1 << 20

// Run reads terms from in until an empty line or end of input, writing
// results to out.
func (p Prompt) Run(in io.Reader, out io.Writer) error {
	if p.Index == nil {
		return errors.New("prompt: index is required")
	}
	maxResults := p.MaxResults
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	width := p.TruncateWidth
	if width <= 0 {
		width = DefaultTruncateWidth
	}

	w := bufio.NewWriter(out)
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxTermLine)
	for {
		if _, err := w.WriteString(promptText); err != nil {
			return fmt.Errorf("write prompt: %w", err)
		}
		if err := w.Flush(); err != nil {
			return fmt.Errorf("write prompt: %w", err)
		}
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("read term: %w", err)
			}
			return nil
		}
		term := strings.TrimSpace(scanner.Text())
		if term == "" {
			return nil
		}
		writeResult(w, Search(p.Index, term, maxResults), maxResults, width)
	}
}

func writeResult(w io.Writer, res Result, maxResults, width int) {
	if res.Total == 0 {
		fmt.Fprintf(w, "Ah, we didn't find the term \"%s\". Try again.\n", res.Term)
		return
	}
	fmt.Fprintf(w, "That term appears in %d article%s.  ", res.Total, plural(res.Total, "s"))
	switch {
	case res.Total > maxResults:
		fmt.Fprintf(w, "Here are the top %d of them:\n", maxResults)
	case res.Total > 1:
		fmt.Fprintln(w, "Here they are:")
	default:
		fmt.Fprintln(w, "Here it is:")
	}
	for i, m := range res.Matches {
		times := "time"
		if m.Count != 1 {
			times = "times"
		}
		fmt.Fprintf(w, "  %2d.) \"%s\" [appears %d %s].\n", i+1, Truncate(m.Article.Title, width), m.Count, times)
		fmt.Fprintf(w, "       \"%s\"\n", Truncate(m.Article.URL, width))
	}
}

func plural(n int, suffix string) string {
	if n == 1 {
		return ""
	}
	return suffix
}
