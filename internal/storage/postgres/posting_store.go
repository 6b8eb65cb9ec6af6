package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/news-aggregator/internal/index"
)

var postingColumns = []string{"run_id", "token", "url", "title", "count"}

// PostingStore bulk-loads index postings with COPY.
type PostingStore struct {
	db    DB
	table string
}

// NewPostingStore writes into table, "postings" when empty.
func NewPostingStore(db DB, table string) (*PostingStore, error) {
	if db == nil {
		return nil, fmt.Errorf("db is required")
	}
	if table == "" {
		table = "postings"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &PostingStore{db: db, table: table}, nil
}

// StorePostings copies every posting of a run and returns the rows written.
func (s *PostingStore) StorePostings(ctx context.Context, runID uuid.UUID, postings []index.Posting) (int64, error) {
	if len(postings) == 0 {
		return 0, nil
	}
	src := pgx.CopyFromSlice(len(postings), func(i int) ([]any, error) {
		p := postings[i]
		return []any{runID, p.Token, p.URL, p.Title, p.Count}, nil
	})
	n, err := s.db.CopyFrom(ctx, pgx.Identifier{s.table}, postingColumns, src)
	if err != nil {
		return n, fmt.Errorf("copy postings: %w", err)
	}
	return n, nil
}

// Close releases the pool.
func (s *PostingStore) Close() {
	if s == nil || s.db == nil {
		return
	}
	s.db.Close()
}
