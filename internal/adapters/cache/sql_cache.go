package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mikey/mail-trust-filter/internal/core"
	"go.uber.org/zap"
)

// sqlCache holds the queries shared by the SQLite and MySQL backends.
// Timestamps are stored as unix milliseconds.
type sqlCache struct {
	db      *sql.DB
	name    string
	logger  *zap.Logger
	cleanup *cleanupTask
	now     func() time.Time
}

func newSQLCache(db *sql.DB, name string, logger *zap.Logger, cleanupFreq time.Duration) *sqlCache {
	c := &sqlCache{
		db:      db,
		name:    name,
		logger:  logger,
		cleanup: newCleanupTask(cleanupFreq, logger),
		now:     time.Now,
	}

	// Start background cleanup
	c.cleanup.start(c.Cleanup)

	return c
}

// Get retrieves a cached entry for a message
func (c *sqlCache) Get(ctx context.Context, key string) (*core.CacheEntry, error) {
	var verdict []byte
	var cachedAt, expiresAt int64

	err := c.db.QueryRowContext(ctx, `
		SELECT verdict, cached_at, expires_at
		FROM verdict_cache
		WHERE cache_key = ?
	`, key).Scan(&verdict, &cachedAt, &expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to query %s cache: %w", c.name, err)
	}

	if c.now().UnixMilli() >= expiresAt {
		return nil, ErrExpired
	}

	v, err := core.DecodeVerdict(verdict)
	if err != nil {
		return nil, fmt.Errorf("failed to decode cached verdict: %w", err)
	}

	return &core.CacheEntry{
		Key:       key,
		Verdict:   v,
		CachedAt:  time.UnixMilli(cachedAt),
		ExpiresAt: time.UnixMilli(expiresAt),
	}, nil
}

// Set stores a cache entry
func (c *sqlCache) Set(ctx context.Context, entry *core.CacheEntry) error {
	verdict, err := core.EncodeVerdict(entry.Verdict)
	if err != nil {
		return fmt.Errorf("failed to encode verdict: %w", err)
	}

	_, err = c.db.ExecContext(ctx, `
		REPLACE INTO verdict_cache (cache_key, verdict, trust_score, threat_level, cached_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, entry.Key, verdict, entry.Verdict.TrustScore, string(entry.Verdict.ThreatLevel),
		entry.CachedAt.UnixMilli(), entry.ExpiresAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert %s cache entry: %w", c.name, err)
	}

	return nil
}

// Delete removes a cache entry
func (c *sqlCache) Delete(ctx context.Context, key string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM verdict_cache WHERE cache_key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// Cleanup removes expired entries
func (c *sqlCache) Cleanup(ctx context.Context) error {
	result, err := c.db.ExecContext(ctx, `DELETE FROM verdict_cache WHERE expires_at <= ?`, c.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to clean up expired entries: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		c.logger.Warn("Failed to get rows affected during cleanup", zap.Error(err))
	} else {
		c.logger.Debug("Cleaned up expired cache entries",
			zap.String("backend", c.name),
			zap.Int64("expired_count", rowsAffected))
	}

	return nil
}

// Stop stops the background cleanup task and closes the database connection
func (c *sqlCache) Stop() {
	c.cleanup.stop()
	if err := c.db.Close(); err != nil {
		c.logger.Error("Failed to close cache database", zap.String("backend", c.name), zap.Error(err))
	}
}
