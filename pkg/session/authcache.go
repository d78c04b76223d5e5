package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/cgedge/slipfill/pkg/core"
	_ "modernc.org/sqlite"
)

// AuthCache remembers when an authentication check last succeeded.
// Staleness is decided by the Session, not the cache.
type AuthCache interface {
	Get(ctx context.Context) (time.Time, bool, error)
	Set(ctx context.Context, at time.Time) error
}

// MemoryCache keeps the stamp for the lifetime of the process.
type MemoryCache struct {
	mu sync.Mutex
	at time.Time
	ok bool
}

// NewMemoryCache creates an empty in-memory cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{}
}

// Get returns the last stamp.
func (c *MemoryCache) Get(ctx context.Context) (time.Time, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.at, c.ok, nil
}

// Set records a stamp.
func (c *MemoryCache) Set(ctx context.Context, at time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.at, c.ok = at, true
	return nil
}

// Schema for the auth_cache table.
const Schema = `
CREATE TABLE IF NOT EXISTS auth_cache (
	site       TEXT PRIMARY KEY,
	authed_at  INTEGER NOT NULL
);
`

// SQLiteCache persists stamps across runs, one row per site.
type SQLiteCache struct {
	db   *sql.DB
	site string
}

// OpenSQLiteCache opens (creating if needed) the cache database at path.
// site keys the row, so one file can serve several targets.
func OpenSQLiteCache(ctx context.Context, path, site string) (*SQLiteCache, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("auth cache dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open auth cache: %w", err)
	}
	// One writer; the in-memory database only exists on its own connection.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init auth cache: %w", err)
	}
	return &SQLiteCache{db: db, site: site}, nil
}

// Get returns the stamp stored for the site.
func (c *SQLiteCache) Get(ctx context.Context) (time.Time, bool, error) {
	var ms int64
	err := c.db.QueryRowContext(ctx,
		`SELECT authed_at FROM auth_cache WHERE site = ?`, c.site).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.UnixMilli(ms), true, nil
}

// Set upserts the stamp for the site.
func (c *SQLiteCache) Set(ctx context.Context, at time.Time) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO auth_cache (site, authed_at) VALUES (?, ?)
		ON CONFLICT(site) DO UPDATE SET authed_at = excluded.authed_at
	`, c.site, at.UnixMilli())
	return err
}

// Close closes the database.
func (c *SQLiteCache) Close() error {
	return c.db.Close()
}

// Page storage keys shared with the in-page variant.
const (
	KeyAuthedAt = "ppAuthedAt"
	KeySlip     = "ppSlip"
)

// PageCache keeps the stamp in the page origin's own storage, which is what
// an attached browser already carries between runs.
type PageCache struct {
	Page core.Page
}

// Get reads the stamp from page storage.
func (c PageCache) Get(ctx context.Context) (time.Time, bool, error) {
	raw, ok, err := c.Page.GetItem(ctx, KeyAuthedAt)
	if err != nil || !ok {
		return time.Time{}, false, err
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ms), true, nil
}

// Set writes the stamp to page storage.
func (c PageCache) Set(ctx context.Context, at time.Time) error {
	return c.Page.SetItem(ctx, KeyAuthedAt, strconv.FormatInt(at.UnixMilli(), 10))
}
