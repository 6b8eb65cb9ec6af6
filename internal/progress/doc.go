// Package progress carries crawl progress events from pipeline workers to
// pluggable sinks. Workers emit through a non-blocking Hub that batches events
// on a background goroutine, so a slow sink never stalls a crawl.
package progress
