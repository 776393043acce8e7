package sqlite

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/text/cases"
	_ "modernc.org/sqlite"

	"github.com/pario-ai/tandem/pkg/models"
)

// DefaultTTL is how long an entry stays valid when no TTL is configured.
const DefaultTTL = 24 * time.Hour

// Cache is a fingerprint-addressed response cache backed by SQLite.
// Reads are lazy about expiry: rows past expires_at are simply not returned.
type Cache struct {
	db     *sql.DB
	ttl    time.Duration
	now    func() time.Time
	hits   atomic.Int64
	misses atomic.Int64
}

const createCacheTable = `
CREATE TABLE IF NOT EXISTS response_cache (
	scope_key TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	context_tag TEXT NOT NULL,
	response_text TEXT NOT NULL,
	score INTEGER NOT NULL,
	rationale TEXT NOT NULL DEFAULT '',
	sentiment TEXT NOT NULL,
	emotional_state TEXT NOT NULL,
	model_used TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL,
	PRIMARY KEY (scope_key, fingerprint)
);
CREATE INDEX IF NOT EXISTS idx_response_cache_expiry ON response_cache(expires_at);
`

// New creates a Cache with the given database path and TTL.
func New(dbPath string, ttl time.Duration) (*Cache, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	if _, err := db.Exec(createCacheTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}

	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{db: db, ttl: ttl, now: time.Now}, nil
}

// SetClock overrides the time source. Intended for tests.
func (c *Cache) SetClock(now func() time.Time) {
	c.now = now
}

// TTL returns the configured entry lifetime.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Fingerprint computes a SHA-256 digest of the normalized prompt, the
// context tag, the operation mode and the cache format version. Prompt and
// tag are trimmed and case-folded, so neither surrounding whitespace nor
// letter case changes the result. Each extra part, such as a caller
// instruction that replaces the system prompt, is mixed in verbatim.
func Fingerprint(prompt, contextTag, mode, version string, extra ...string) string {
	fold := cases.Fold()
	h := sha256.New()
	parts := append([]string{
		fold.String(strings.TrimSpace(prompt)),
		fold.String(strings.TrimSpace(contextTag)),
		mode,
		version,
	}, extra...)
	for _, part := range parts {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// Get returns the live entry stored under (scopeKey, fingerprint). Missing,
// expired and unreadable entries all report a miss; storage errors are
// logged rather than returned. Get never writes to the store; it only bumps
// the in-memory hit and miss counters reported by Stats.
func (c *Cache) Get(ctx context.Context, scopeKey, fingerprint string) (*models.CacheEntry, bool) {
	var (
		e                    models.CacheEntry
		sentiment            string
		createdAt, expiresAt int64
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT fingerprint, context_tag, response_text, score, rationale, sentiment, emotional_state, model_used, created_at, expires_at
		 FROM response_cache WHERE scope_key = ? AND fingerprint = ? AND expires_at > ?`,
		scopeKey, fingerprint, c.now().UnixNano(),
	).Scan(&e.Fingerprint, &e.ContextTag, &e.ResponseText, &e.Score, &e.Rationale,
		&sentiment, &e.EmotionalState, &e.ModelUsed, &createdAt, &expiresAt)

	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			log.Warn("cache: get failed", "scope", scopeKey, "err", err)
		}
		c.misses.Add(1)
		return nil, false
	}

	e.Sentiment = models.ParseSentiment(sentiment)
	e.CreatedAt = time.Unix(0, createdAt).UTC()
	e.ExpiresAt = time.Unix(0, expiresAt).UTC()
	c.hits.Add(1)
	return &e, true
}

// Put stores entry under scopeKey, stamping CreatedAt and ExpiresAt from
// the cache clock. An expired row with the same key is replaced.
func (c *Cache) Put(ctx context.Context, scopeKey string, entry models.CacheEntry) error {
	now := c.now()
	_, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO response_cache
		 (scope_key, fingerprint, context_tag, response_text, score, rationale, sentiment, emotional_state, model_used, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		scopeKey, entry.Fingerprint, entry.ContextTag, entry.ResponseText, entry.Score, entry.Rationale,
		string(entry.Sentiment), entry.EmotionalState, entry.ModelUsed,
		now.UnixNano(), now.Add(c.ttl).UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// Invalidate removes a single entry.
func (c *Cache) Invalidate(ctx context.Context, scopeKey, fingerprint string) error {
	_, err := c.db.ExecContext(ctx,
		`DELETE FROM response_cache WHERE scope_key = ? AND fingerprint = ?`,
		scopeKey, fingerprint,
	)
	if err != nil {
		return fmt.Errorf("cache invalidate: %w", err)
	}
	return nil
}

// DeleteScope removes every entry belonging to scopeKey, for use when the
// owning contact is deleted.
func (c *Cache) DeleteScope(ctx context.Context, scopeKey string) (int64, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM response_cache WHERE scope_key = ?`, scopeKey)
	if err != nil {
		return 0, fmt.Errorf("cache delete scope: %w", err)
	}
	return res.RowsAffected()
}

// Purge removes expired entries and reports how many were deleted.
func (c *Cache) Purge(ctx context.Context) (int64, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM response_cache WHERE expires_at <= ?`, c.now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("cache purge: %w", err)
	}
	return res.RowsAffected()
}

// Clear removes all entries.
func (c *Cache) Clear(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM response_cache`); err != nil {
		return fmt.Errorf("cache clear: %w", err)
	}
	return nil
}

// Stats returns cache performance metrics.
func (c *Cache) Stats(ctx context.Context) (models.CacheStats, error) {
	var count, expired int64
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN expires_at <= ? THEN 1 ELSE 0 END), 0) FROM response_cache`,
		c.now().UnixNano(),
	).Scan(&count, &expired)
	if err != nil {
		return models.CacheStats{}, fmt.Errorf("cache stats: %w", err)
	}
	return models.CacheStats{
		Entries: count,
		Expired: expired,
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}, nil
}

// Close releases the database connection.
func (c *Cache) Close() error {
	return c.db.Close()
}
