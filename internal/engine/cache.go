package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/timvw/shotlens/internal/model"
	slotel "github.com/timvw/shotlens/internal/otel"
	"github.com/timvw/shotlens/internal/pattern"
)

// DefaultCacheSize is the number of documents whose patterns are retained.
const DefaultCacheSize = 256

// PatternCache memoizes matcher output per document, keyed by URI.
//
// An entry is valid only for the exact version and content it was computed
// from; anything else is a miss and triggers a fresh scan. Clients restart
// versions when a document is reopened, so the version alone does not
// identify a buffer. Entries never move backwards: a result computed for an
// older version is handed to its caller but does not replace a newer entry.
// Capacity is bounded by an LRU, so eviction only ever costs a re-scan.
type PatternCache struct {
	mu      sync.Mutex
	entries *lru.Cache[string, *cacheEntry]
	group   singleflight.Group
	analyze func(string) []model.Pattern
	metrics *slotel.Metrics
}

type cacheEntry struct {
	version     int
	contentHash string
	patterns    []model.Pattern
	createdAt time.Time
}

// NewPatternCache creates a cache holding up to size documents. A size of
// 0 or less uses DefaultCacheSize. Metrics may be nil.
func NewPatternCache(size int, metrics *slotel.Metrics) (*PatternCache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	entries, err := lru.New[string, *cacheEntry](size)
	if err != nil {
		return nil, err
	}
	return &PatternCache{
		entries: entries,
		analyze: pattern.Analyze,
		metrics: metrics,
	}, nil
}

// Get returns the patterns for uri at version, scanning text on a miss.
// The returned slice is shared with other callers and must not be modified.
func (c *PatternCache) Get(ctx context.Context, uri string, version int, text string) []model.Pattern {
	hash := hashContent(text)
	if patterns, ok := c.lookup(uri, version, hash); ok {
		c.metrics.RecordCacheHit(ctx)
		return patterns
	}
	c.metrics.RecordCacheMiss(ctx)

	key := uri + "@" + strconv.Itoa(version) + "#" + hash
	v, _, _ := c.group.Do(key, func() (any, error) {
		if patterns, ok := c.lookup(uri, version, hash); ok {
			return patterns, nil
		}
		patterns := c.analyze(text)
		c.store(uri, version, hash, patterns)
		return patterns, nil
	})
	return v.([]model.Pattern)
}

// Lookup returns the cached patterns for uri when the entry matches version.
func (c *PatternCache) Lookup(uri string, version int) ([]model.Pattern, bool) {
	return c.lookup(uri, version, "")
}

// lookup matches on version, and on content too unless hash is empty.
func (c *PatternCache) lookup(uri string, version int, hash string) ([]model.Pattern, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries.Get(uri)
	if !ok || entry.version != version {
		return nil, false
	}
	if hash != "" && entry.contentHash != hash {
		return nil, false
	}
	return entry.patterns, true
}

func (c *PatternCache) store(uri string, version int, hash string, patterns []model.Pattern) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries.Peek(uri); ok && existing.version > version {
		return
	}
	c.entries.Add(uri, &cacheEntry{
		version:     version,
		contentHash: hash,
		patterns:    patterns,
		createdAt:   time.Now(),
	})
}

// Forget removes the entry for uri only if it was computed from exactly
// version and text. A scan that raced with a close stores patterns for a
// buffer that no longer exists; Forget drops them without touching an
// entry a reopened document has since stored.
func (c *PatternCache) Forget(uri string, version int, text string) {
	hash := hashContent(text)
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries.Peek(uri); ok && entry.version == version && entry.contentHash == hash {
		c.entries.Remove(uri)
	}
}

// Evict removes the entry for uri.
func (c *PatternCache) Evict(uri string) {
	c.mu.Lock()
	c.entries.Remove(uri)
	c.mu.Unlock()
}

// Purge removes every entry.
func (c *PatternCache) Purge() {
	c.mu.Lock()
	c.entries.Purge()
	c.mu.Unlock()
}

// Len returns the number of cached documents.
func (c *PatternCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

func hashContent(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}
