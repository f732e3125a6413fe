// Package cache memoizes aggregated search results for a bounded time.
//
// Entries are keyed by a fingerprint of the normalized keyword and result
// limit. Staleness is judged only by creation time against the TTL; expired
// entries are never deleted, just overwritten by the next write for the
// same fingerprint.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hession/dealscout/internal/product"
	"go.uber.org/zap"
)

// DefaultTTL matches the window over which listings usually change.
const DefaultTTL = 24 * time.Hour

// Entry is one persisted aggregation result. It is never modified after
// it has been written.
type Entry struct {
	Fingerprint string                 `json:"fingerprint"`
	Keyword     string                 `json:"keyword"`
	MaxResults  int                    `json:"max_results"`
	CreatedAt   time.Time              `json:"created_at"`
	Results     []product.SearchResult `json:"results"`
}

// Store persists entries by fingerprint. Implementations must be safe for
// concurrent use and must make each Put visible atomically.
type Store interface {
	// Get returns the stored entry regardless of age.
	Get(ctx context.Context, fingerprint string) (*Entry, error)
	// Put replaces any entry stored under entry.Fingerprint.
	Put(ctx context.Context, entry *Entry) error
	Close() error
}

// ErrNotFound is returned by stores when no entry exists.
var ErrNotFound = errors.New("cache entry not found")

// NormalizeKeyword lower-cases, trims and collapses inner whitespace.
func NormalizeKeyword(keyword string) string {
	return strings.Join(strings.Fields(strings.ToLower(keyword)), " ")
}

// Fingerprint derives the cache key for a keyword and result limit.
func Fingerprint(keyword string, maxResults int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s_%d", NormalizeKeyword(keyword), maxResults)))
	return hex.EncodeToString(sum[:])
}

// Stats counts cache outcomes since the Cache was created.
type Stats struct {
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	Expired       int64 `json:"expired"`
	ReadFailures  int64 `json:"read_failures"`
	Writes        int64 `json:"writes"`
	WriteFailures int64 `json:"write_failures"`
}

// Cache applies the TTL policy on top of a Store and absorbs storage
// failures: a failed read is a miss, a failed write is logged.
type Cache struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
	log   *zap.Logger

	hits, misses, expired, readFailures, writes, writeFailures atomic.Int64
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithLogger sets the logger used for read and write failures.
func WithLogger(log *zap.Logger) Option {
	return func(c *Cache) {
		if log != nil {
			c.log = log
		}
	}
}

// New wraps store with the given TTL. A non-positive TTL uses DefaultTTL.
func New(store Store, ttl time.Duration, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		store: store,
		ttl:   ttl,
		now:   time.Now,
		log:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the configured freshness window.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Get returns the cached results for fingerprint if present and fresh.
func (c *Cache) Get(ctx context.Context, fingerprint string) ([]product.SearchResult, bool) {
	entry, ok := c.Lookup(ctx, fingerprint)
	if !ok {
		return nil, false
	}
	return entry.Results, true
}

// Lookup is Get returning the whole entry.
func (c *Cache) Lookup(ctx context.Context, fingerprint string) (*Entry, bool) {
	entry, err := c.store.Get(ctx, fingerprint)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.misses.Add(1)
		} else {
			c.readFailures.Add(1)
			c.log.Warn("cache read failed, treating as miss",
				zap.String("fingerprint", fingerprint), zap.Error(err))
		}
		return nil, false
	}

	age := c.now().Sub(entry.CreatedAt)
	if age > c.ttl {
		c.expired.Add(1)
		c.log.Debug("cache entry expired",
			zap.String("keyword", entry.Keyword), zap.Duration("age", age))
		return nil, false
	}

	c.hits.Add(1)
	c.log.Debug("cache hit",
		zap.String("keyword", entry.Keyword),
		zap.Int("results", len(entry.Results)),
		zap.Duration("age", age))
	return entry, true
}

// Put stores results under fingerprint stamped with the current time.
// Failures are logged and reported but callers may ignore them.
func (c *Cache) Put(ctx context.Context, fingerprint, keyword string, maxResults int, results []product.SearchResult) error {
	entry := &Entry{
		Fingerprint: fingerprint,
		Keyword:     keyword,
		MaxResults:  maxResults,
		CreatedAt:   c.now().UTC(),
		Results:     results,
	}
	if err := c.store.Put(ctx, entry); err != nil {
		c.writeFailures.Add(1)
		c.log.Warn("cache write failed",
			zap.String("keyword", keyword), zap.Error(err))
		return err
	}
	c.writes.Add(1)
	c.log.Debug("cached results",
		zap.String("keyword", keyword), zap.Int("results", len(results)))
	return nil
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Expired:       c.expired.Load(),
		ReadFailures:  c.readFailures.Load(),
		Writes:        c.writes.Load(),
		WriteFailures: c.writeFailures.Load(),
	}
}

// Close releases the underlying store.
func (c *Cache) Close() error {
	return c.store.Close()
}
