// Package cache provides a SQLite-backed cache of rewriting-oracle
// results. Re-running a pass after a crash or cancellation hits the cache
// instead of re-invoking the oracle for spans it already rewrote.
//
// Results are keyed by (BLAKE3 of the input text, category, policy level):
// the oracle is not assumed idempotent across policy levels, so the level
// is part of the key.
package cache

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver

	"github.com/softcover/bowdler/core/errors"
	"github.com/softcover/bowdler/core/manuscript"
	"github.com/softcover/bowdler/core/workflow"
)

const schema = `
CREATE TABLE IF NOT EXISTS rewrites (
	text_hash  TEXT    NOT NULL,
	category   TEXT    NOT NULL,
	level      INTEGER NOT NULL,
	result     TEXT    NOT NULL,
	created_at TEXT    NOT NULL,
	PRIMARY KEY (text_hash, category, level)
);`

// RewriteCache stores oracle results in a SQLite database.
type RewriteCache struct {
	db *sql.DB
}

// Open opens or creates a cache database at path.
func Open(path string) (*RewriteCache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.NewIO("open", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "creating rewrite cache schema")
	}
	return &RewriteCache{db: db}, nil
}

// Close releases the database handle.
func (c *RewriteCache) Close() error {
	return c.db.Close()
}

// Get looks up a cached result.
func (c *RewriteCache) Get(textHash string, cat manuscript.Category, level manuscript.Level) (result string, ok bool, err error) {
	row := c.db.QueryRow(
		`SELECT result FROM rewrites WHERE text_hash = ? AND category = ? AND level = ?`,
		textHash, string(cat), int(level))
	switch err := row.Scan(&result); err {
	case nil:
		return result, true, nil
	case sql.ErrNoRows:
		return "", false, nil
	default:
		return "", false, errors.Wrap(err, "querying rewrite cache")
	}
}

// Put stores a result, replacing any previous entry for the same key.
func (c *RewriteCache) Put(textHash string, cat manuscript.Category, level manuscript.Level, result string) error {
	_, err := c.db.Exec(
		`INSERT OR REPLACE INTO rewrites (text_hash, category, level, result, created_at) VALUES (?, ?, ?, ?, ?)`,
		textHash, string(cat), int(level), result, time.Now().UTC().Format(time.RFC3339))
	return errors.Wrap(err, "storing rewrite cache entry")
}

// Wrap decorates a rewriter with read-through caching. Cache errors fall
// back to the underlying oracle; only oracle successes are stored.
func (c *RewriteCache) Wrap(next workflow.Rewriter) workflow.Rewriter {
	return workflow.RewriterFunc(func(ctx context.Context, req workflow.Request) (string, error) {
		key := manuscript.TextHash(req.Text)
		if cached, ok, err := c.Get(key, req.Category, req.Level); err == nil && ok {
			return cached, nil
		}
		result, err := next.Rewrite(ctx, req)
		if err != nil {
			return "", err
		}
		if err := c.Put(key, req.Category, req.Level, result); err != nil {
			// A write failure only costs a future cache hit.
			return result, nil
		}
		return result, nil
	})
}
