// Package news defines the article type shared by the crawl pipeline, the
// index, and the query surfaces, plus the contracts the pipeline expects from
// the feed-list, feed, and document collaborators.
package news
