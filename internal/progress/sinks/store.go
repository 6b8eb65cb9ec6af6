package sinks

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/news-aggregator/internal/progress"
	"github.com/JakeFAU/news-aggregator/internal/store"
)

// StoreSink writes run lifecycle and per-feed counters to a
// store.RunRepository. Article events are folded into one delta per feed and
// batch to limit writes.
type StoreSink struct {
	repo   store.RunRepository
	logger *zap.Logger
}

// NewStoreSink wraps repo.
func NewStoreSink(repo store.RunRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

type feedKey struct {
	run  uuid.UUID
	feed string
}

type pendingDelta struct {
	delta store.FeedDelta
	at    time.Time
}

// Consume applies the batch. Run starts are written before feed rows and run
// completions after them.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	deltas := make(map[feedKey]*pendingDelta)
	var finishes []progress.Event

	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			if err := s.repo.StartRun(ctx, evt.RunID, evt.TS); err != nil {
				return fmt.Errorf("start run: %w", err)
			}
		case progress.StageRunDone, progress.StageRunError:
			finishes = append(finishes, evt)
		default:
			accumulate(deltas, evt)
		}
	}

	keys := make([]feedKey, 0, len(deltas))
	for k := range deltas {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].feed < keys[j].feed })
	for _, k := range keys {
		d := deltas[k]
		if err := s.repo.AddFeedStats(ctx, k.run, k.feed, d.delta, d.at); err != nil {
			return fmt.Errorf("add feed stats: %w", err)
		}
	}

	for _, evt := range finishes {
		status := store.RunSuccess
		var note *string
		if evt.Stage == progress.StageRunError {
			status = store.RunError
			if evt.Note != "" {
				msg := evt.Note
				note = &msg
			}
		}
		if err := s.repo.FinishRun(ctx, evt.RunID, evt.TS, status, note); err != nil {
			return fmt.Errorf("finish run: %w", err)
		}
	}
	return nil
}

func accumulate(deltas map[feedKey]*pendingDelta, evt progress.Event) {
	if evt.Feed == "" {
		return
	}
	key := feedKey{run: evt.RunID, feed: evt.Feed}
	d := deltas[key]
	if d == nil {
		d = &pendingDelta{}
		deltas[key] = d
	}
	switch evt.Stage {
	case progress.StageFeedDone:
		d.delta.Articles += int64(evt.Articles)
	case progress.StageFeedError:
		d.delta.Failed = true
	case progress.StageArticleDone:
		d.delta.Indexed++
		d.delta.Tokens += int64(evt.Tokens)
	case progress.StageArticleError:
		d.delta.Errors++
	case progress.StageArticleDuplicate:
		d.delta.Duplicates++
	}
	if evt.TS.After(d.at) {
		d.at = evt.TS
	}
}

// Close is a no-op.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
