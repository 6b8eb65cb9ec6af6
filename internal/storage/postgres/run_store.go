package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/news-aggregator/internal/store"
)

// RunStore implements store.RunRepository over the runs and run_feeds tables.
type RunStore struct {
	db DB
}

var _ store.RunRepository = (*RunStore)(nil)

// NewRunStore wraps db.
func NewRunStore(db DB) *RunStore {
	return &RunStore{db: db}
}

// StartRun inserts the run as running; a repeat is ignored.
func (s *RunStore) StartRun(ctx context.Context, runID uuid.UUID, startedAt time.Time) error {
	const query = `
		INSERT INTO runs (id, started_at, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING;`
	if _, err := s.db.Exec(ctx, query, runID, startedAt, string(store.RunRunning)); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// FinishRun stamps the outcome of a run.
func (s *RunStore) FinishRun(
	ctx context.Context,
	runID uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	errMsg *string,
) error {
	const query = `
		UPDATE runs
		SET finished_at = $1, status = $2, error_message = $3
		WHERE id = $4;`
	tag, err := s.db.Exec(ctx, query, finishedAt, string(status), errMsg, runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// AddFeedStats upserts the (run, feed) row, adding delta to its counters.
func (s *RunStore) AddFeedStats(
	ctx context.Context,
	runID uuid.UUID,
	feed string,
	delta store.FeedDelta,
	at time.Time,
) error {
	const query = `
		INSERT INTO run_feeds (run_id, feed, last_update, failed, articles, indexed, errors, duplicates, tokens)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (run_id, feed) DO UPDATE SET
			last_update = GREATEST(run_feeds.last_update, EXCLUDED.last_update),
			failed = run_feeds.failed OR EXCLUDED.failed,
			articles = run_feeds.articles + EXCLUDED.articles,
			indexed = run_feeds.indexed + EXCLUDED.indexed,
			errors = run_feeds.errors + EXCLUDED.errors,
			duplicates = run_feeds.duplicates + EXCLUDED.duplicates,
			tokens = run_feeds.tokens + EXCLUDED.tokens;`
	_, err := s.db.Exec(ctx, query,
		runID, feed, at, delta.Failed,
		delta.Articles, delta.Indexed, delta.Errors, delta.Duplicates, delta.Tokens,
	)
	if err != nil {
		return fmt.Errorf("upsert feed stats: %w", err)
	}
	return nil
}

// GetRun loads one run.
func (s *RunStore) GetRun(ctx context.Context, runID uuid.UUID) (store.Run, error) {
	const query = `
		SELECT id, started_at, finished_at, status, error_message
		FROM runs
		WHERE id = $1;`
	var (
		run    store.Run
		status string
	)
	err := s.db.QueryRow(ctx, query, runID).Scan(
		&run.ID,
		&run.StartedAt,
		&run.FinishedAt,
		&status,
		&run.ErrorMessage,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Run{}, store.ErrNotFound
		}
		return store.Run{}, fmt.Errorf("get run: %w", err)
	}
	run.Status = store.RunStatus(status)
	return run, nil
}

// ListRuns returns runs newest first.
func (s *RunStore) ListRuns(ctx context.Context, status *store.RunStatus, limit, offset int) ([]store.Run, error) {
	const query = `
		SELECT id, started_at, finished_at, status, error_message
		FROM runs
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3;`
	var filter *string
	if status != nil {
		v := string(*status)
		filter = &v
	}
	rows, err := s.db.Query(ctx, query, filter, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := []store.Run{}
	for rows.Next() {
		var (
			run    store.Run
			status string
		)
		if err := rows.Scan(&run.ID, &run.StartedAt, &run.FinishedAt, &status, &run.ErrorMessage); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		run.Status = store.RunStatus(status)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ListRunFeeds returns feed rows for a run ordered by feed name.
func (s *RunStore) ListRunFeeds(ctx context.Context, runID uuid.UUID, limit, offset int) ([]store.FeedStats, error) {
	const query = `
		SELECT run_id, feed, last_update, failed, articles, indexed, errors, duplicates, tokens
		FROM run_feeds
		WHERE run_id = $1
		ORDER BY feed
		LIMIT $2 OFFSET $3;`
	rows, err := s.db.Query(ctx, query, runID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list run feeds: %w", err)
	}
	defer rows.Close()

	feeds := []store.FeedStats{}
	for rows.Next() {
		var f store.FeedStats
		if err := rows.Scan(
			&f.RunID, &f.Feed, &f.LastUpdate, &f.Failed,
			&f.Articles, &f.Indexed, &f.Errors, &f.Duplicates, &f.Tokens,
		); err != nil {
			return nil, fmt.Errorf("scan feed stats: %w", err)
		}
		feeds = append(feeds, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate feed stats: %w", err)
	}
	return feeds, nil
}

// Close releases the pool.
func (s *RunStore) Close() {
	s.db.Close()
}
