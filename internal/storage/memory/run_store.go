package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/news-aggregator/internal/store"
)

type feedKey struct {
	run  uuid.UUID
	feed string
}

// RunStore implements store.RunRepository in memory.
type RunStore struct {
	mu    sync.RWMutex
	runs  map[uuid.UUID]store.Run
	feeds map[feedKey]store.FeedStats
}

// NewRunStore returns an empty RunStore.
func NewRunStore() *RunStore {
	return &RunStore{
		runs:  make(map[uuid.UUID]store.Run),
		feeds: make(map[feedKey]store.FeedStats),
	}
}

var _ store.RunRepository = (*RunStore)(nil)

// StartRun records the run as running unless it already exists.
func (s *RunStore) StartRun(_ context.Context, runID uuid.UUID, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[runID]; ok {
		return nil
	}
	s.runs[runID] = store.Run{ID: runID, StartedAt: startedAt.UTC(), Status: store.RunRunning}
	return nil
}

// FinishRun marks a run done.
func (s *RunStore) FinishRun(
	_ context.Context,
	runID uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	errMsg *string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return store.ErrNotFound
	}
	finished := finishedAt.UTC()
	run.FinishedAt = &finished
	run.Status = status
	if errMsg != nil {
		msg := *errMsg
		run.ErrorMessage = &msg
	}
	s.runs[runID] = run
	return nil
}

// AddFeedStats accumulates delta into the (run, feed) row.
func (s *RunStore) AddFeedStats(
	_ context.Context,
	runID uuid.UUID,
	feed string,
	delta store.FeedDelta,
	at time.Time,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := feedKey{run: runID, feed: feed}
	stats, ok := s.feeds[key]
	if !ok {
		stats = store.FeedStats{RunID: runID, Feed: feed}
	}
	stats.Failed = stats.Failed || delta.Failed
	stats.Articles += delta.Articles
	stats.Indexed += delta.Indexed
	stats.Errors += delta.Errors
	stats.Duplicates += delta.Duplicates
	stats.Tokens += delta.Tokens
	if at.After(stats.LastUpdate) {
		stats.LastUpdate = at.UTC()
	}
	s.feeds[key] = stats
	return nil
}

// GetRun returns the run or store.ErrNotFound.
func (s *RunStore) GetRun(_ context.Context, runID uuid.UUID) (store.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[runID]
	if !ok {
		return store.Run{}, store.ErrNotFound
	}
	return run, nil
}

// ListRuns returns runs newest first.
func (s *RunStore) ListRuns(_ context.Context, status *store.RunStatus, limit, offset int) ([]store.Run, error) {
	s.mu.RLock()
	runs := make([]store.Run, 0, len(s.runs))
	for _, run := range s.runs {
		if status != nil && run.Status != *status {
			continue
		}
		runs = append(runs, run)
	}
	s.mu.RUnlock()
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	return page(runs, limit, offset), nil
}

// ListRunFeeds returns the run's feed rows ordered by feed name.
func (s *RunStore) ListRunFeeds(_ context.Context, runID uuid.UUID, limit, offset int) ([]store.FeedStats, error) {
	s.mu.RLock()
	var rows []store.FeedStats
	for key, stats := range s.feeds {
		if key.run == runID {
			rows = append(rows, stats)
		}
	}
	s.mu.RUnlock()
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].Feed < rows[j].Feed
	})
	return page(rows, limit, offset), nil
}

func page[T any](rows []T, limit, offset int) []T {
	if offset >= len(rows) {
		return []T{}
	}
	rows = rows[offset:]
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}
