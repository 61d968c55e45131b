// Package resultcache remembers finished conversions in Redis so a repeated
// request for the same URL and kind can reuse an output that is still on disk.
package resultcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"mediaconv/internal/config"
	"mediaconv/internal/logging"
	"mediaconv/internal/workspace"
)

// Entry is what the cache remembers about a finished conversion.
type Entry struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	FileName string    `json:"file_name"`
	StoredAt time.Time `json:"stored_at"`
}

// Cache is a Redis-backed result cache. A nil or disabled cache misses every
// lookup and drops every store.
type Cache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// New builds a cache from configuration. It returns a disabled cache when the
// section is off. ttl bounds entry lifetime and should match output retention.
func New(cfg config.Cache, ttl time.Duration, logger *slog.Logger) *Cache {
	if !cfg.Enabled || strings.TrimSpace(cfg.RedisAddr) == "" {
		return &Cache{logger: logging.NewComponentLogger(logger, "resultcache")}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return NewWithClient(client, cfg.KeyPrefix, ttl, logger)
}

// NewWithClient wraps an existing Redis client.
func NewWithClient(client *redis.Client, prefix string, ttl time.Duration, logger *slog.Logger) *Cache {
	return &Cache{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: logging.NewComponentLogger(logger, "resultcache"),
	}
}

// Enabled reports whether lookups reach Redis.
func (c *Cache) Enabled() bool {
	return c != nil && c.client != nil
}

// Key returns the Redis key for a source URL and kind.
func (c *Cache) Key(kind workspace.Kind, sourceURL string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(sourceURL)))
	prefix := ""
	if c != nil {
		prefix = c.prefix
	}
	return fmt.Sprintf("%sresult:%s:%s", prefix, kind, hex.EncodeToString(sum[:]))
}

// Ping checks connectivity.
func (c *Cache) Ping(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}
	return c.client.Ping(ctx).Err()
}

// Lookup returns the cached entry for sourceURL, if any. Redis failures are
// logged and reported as a miss.
func (c *Cache) Lookup(ctx context.Context, kind workspace.Kind, sourceURL string) (Entry, bool) {
	if !c.Enabled() {
		return Entry{}, false
	}
	key := c.Key(kind, sourceURL)
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.warn(ctx, "cache lookup failed", "cache_lookup_failed", key, err)
		}
		return Entry{}, false
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil || entry.FileName == "" {
		c.Forget(ctx, kind, sourceURL)
		return Entry{}, false
	}
	return entry, true
}

// Store records entry for sourceURL with the configured TTL.
func (c *Cache) Store(ctx context.Context, kind workspace.Kind, sourceURL string, entry Entry) {
	if !c.Enabled() {
		return
	}
	if entry.StoredAt.IsZero() {
		entry.StoredAt = time.Now()
	}
	key := c.Key(kind, sourceURL)
	data, err := json.Marshal(entry)
	if err != nil {
		c.warn(ctx, "cache encode failed", "cache_store_failed", key, err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.warn(ctx, "cache store failed", "cache_store_failed", key, err)
	}
}

// Forget removes the entry for sourceURL.
func (c *Cache) Forget(ctx context.Context, kind workspace.Kind, sourceURL string) {
	if !c.Enabled() {
		return
	}
	key := c.Key(kind, sourceURL)
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.warn(ctx, "cache delete failed", "cache_delete_failed", key, err)
	}
}

// Close releases the Redis connection pool.
func (c *Cache) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.client.Close()
}

func (c *Cache) warn(ctx context.Context, msg, event, key string, err error) {
	logging.WarnWithContext(logging.WithContext(ctx, c.logger), msg, event,
		logging.String("key", key),
		logging.Error(err),
		logging.String(logging.FieldImpact, "conversion runs without cache"),
	)
}
