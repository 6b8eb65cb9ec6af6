package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested run does not exist.
var ErrNotFound = errors.New("run not found")

// RunStatus is the lifecycle state of a crawl run.
type RunStatus string

// Run statuses.
const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// Run is one crawl of a feed list.
type Run struct {
	ID         uuid.UUID
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     RunStatus
	// ErrorMessage is set when the feed list itself could not be read.
	ErrorMessage *string
}

// FeedStats aggregates article outcomes for one feed of a run.
type FeedStats struct {
	RunID      uuid.UUID
	Feed       string
	LastUpdate time.Time
	// Failed is true when the feed document itself could not be read.
	Failed     bool
	Articles   int64
	Indexed    int64
	Errors     int64
	Duplicates int64
	Tokens     int64
}

// FeedDelta is an increment applied to a FeedStats row.
type FeedDelta struct {
	Failed     bool
	Articles   int64
	Indexed    int64
	Errors     int64
	Duplicates int64
	Tokens     int64
}

// RunRepository persists run progress.
type RunRepository interface {
	// StartRun records a run as running. Repeating it is harmless.
	StartRun(ctx context.Context, runID uuid.UUID, startedAt time.Time) error
	// FinishRun marks the run done with status and an optional error.
	FinishRun(ctx context.Context, runID uuid.UUID, finishedAt time.Time, status RunStatus, errMsg *string) error
	// AddFeedStats applies delta to the (run, feed) row, creating it if needed.
	AddFeedStats(ctx context.Context, runID uuid.UUID, feed string, delta FeedDelta, at time.Time) error

	// GetRun loads one run or returns ErrNotFound.
	GetRun(ctx context.Context, runID uuid.UUID) (Run, error)
	// ListRuns returns runs newest first, optionally filtered by status.
	ListRuns(ctx context.Context, status *RunStatus, limit, offset int) ([]Run, error)
	// ListRunFeeds returns feed stats for one run ordered by feed name.
	ListRunFeeds(ctx context.Context, runID uuid.UUID, limit, offset int) ([]FeedStats, error)
}
