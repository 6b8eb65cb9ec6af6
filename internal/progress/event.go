package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage names the crawl milestone an Event records.
type Stage string

// Crawl milestones.
const (
	StageRunStart         Stage = "RUN_START"
	StageRunDone          Stage = "RUN_DONE"
	StageRunError         Stage = "RUN_ERROR"
	StageFeedStart        Stage = "FEED_START"
	StageFeedDone         Stage = "FEED_DONE"
	StageFeedError        Stage = "FEED_ERROR"
	StageArticleDone      Stage = "ARTICLE_DONE"
	StageArticleError     Stage = "ARTICLE_ERROR"
	StageArticleDuplicate Stage = "ARTICLE_DUPLICATE"
)

// Event is one crawl milestone.
type Event struct {
	// RunID identifies the crawl run.
	RunID uuid.UUID
	// TS is the UTC time the event was recorded.
	TS time.Time
	Stage Stage
	// Feed is the feed name for feed and article stages.
	Feed string
	// URL is the feed or article location.
	URL string
	// Articles counts articles found in a feed (FEED_DONE).
	Articles int
	// Tokens counts tokens indexed for an article (ARTICLE_DONE).
	Tokens int
	Dur    time.Duration
	// Note holds short error text.
	Note string
}

// Validate rejects events sinks cannot attribute.
func (e Event) Validate() error {
	if e.RunID == uuid.Nil {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError:
	case StageFeedStart, StageFeedDone, StageFeedError:
		if e.Feed == "" {
			return fmt.Errorf("%s requires feed", e.Stage)
		}
	case StageArticleDone, StageArticleError, StageArticleDuplicate:
		if e.URL == "" {
			return fmt.Errorf("%s requires url", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	if e.Articles < 0 || e.Tokens < 0 {
		return errors.New("counts must be >= 0")
	}
	return nil
}

// IsError reports whether the stage records a failure.
func (s Stage) IsError() bool {
	switch s {
	case StageRunError, StageFeedError, StageArticleError:
		return true
	default:
		return false
	}
}
