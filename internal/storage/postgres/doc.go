// Package postgres persists run progress and index postings in Postgres
// through a pgx connection pool.
//
// The stores expect the following tables (the posting table name is
// configurable through export.postgres.table):
//
//	CREATE TABLE runs (
//		id            UUID PRIMARY KEY,
//		started_at    TIMESTAMPTZ NOT NULL,
//		finished_at   TIMESTAMPTZ,
//		status        TEXT NOT NULL,
//		error_message TEXT
//	);
//
//	CREATE TABLE run_feeds (
//		run_id      UUID NOT NULL REFERENCES runs (id),
//		feed        TEXT NOT NULL,
//		last_update TIMESTAMPTZ NOT NULL,
//		failed      BOOLEAN NOT NULL DEFAULT FALSE,
//		articles    BIGINT NOT NULL DEFAULT 0,
//		indexed     BIGINT NOT NULL DEFAULT 0,
//		errors      BIGINT NOT NULL DEFAULT 0,
//		duplicates  BIGINT NOT NULL DEFAULT 0,
//		tokens      BIGINT NOT NULL DEFAULT 0,
//		PRIMARY KEY (run_id, feed)
//	);
//
//	CREATE TABLE postings (
//		run_id UUID NOT NULL,
//		token  TEXT NOT NULL,
//		url    TEXT NOT NULL,
//		title  TEXT NOT NULL,
//		count  INTEGER NOT NULL,
//		PRIMARY KEY (run_id, token, url)
//	);
package postgres
