package cache

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/wafscan/wafscan/internal/metrics"
)

// DefaultTTL is used when an entry is stored without an explicit ttl.
const DefaultTTL = 30 * time.Minute

// Options configure a QueryCache.
type Options struct {
	// DefaultTTL applies to Set calls with ttl <= 0.
	DefaultTTL time.Duration
	// MaxEntries bounds the cache with least-recently-used eviction. Zero
	// disables the bound; entries then only leave by expiry.
	MaxEntries int
	Now        func() time.Time
}

// Entry is a cached query result.
type Entry struct {
	Key       string
	Value     any
	CreatedAt time.Time
	TTL       time.Duration
}

func (e Entry) expired(now time.Time) bool {
	return now.Sub(e.CreatedAt) > e.TTL
}

// QueryCache is a concurrency-safe TTL cache shared by every scan worker.
type QueryCache struct {
	defaultTTL time.Duration
	maxEntries int
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]*list.Element
	lru     *list.List // front is most recently used
}

func New(opts Options) *QueryCache {
	ttl := opts.DefaultTTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	maxEntries := max(opts.MaxEntries, 0)
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &QueryCache{
		defaultTTL: ttl,
		maxEntries: maxEntries,
		now:        now,
		entries:    make(map[string]*list.Element),
		lru:        list.New(),
	}
}

// Get returns the value stored under key unless it is absent or expired.
// Expired entries are dropped on access.
func (c *QueryCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		metrics.QueryCacheRequestsTotal.WithLabelValues("miss").Inc()
		return nil, false
	}
	entry := el.Value.(*Entry)
	if entry.expired(c.now()) {
		c.removeLocked(el)
		metrics.QueryCacheEvictionsTotal.WithLabelValues("expired").Inc()
		metrics.QueryCacheRequestsTotal.WithLabelValues("miss").Inc()
		return nil, false
	}
	c.lru.MoveToFront(el)
	metrics.QueryCacheRequestsTotal.WithLabelValues("hit").Inc()
	return entry.Value, true
}

// Set stores value under key, replacing any previous entry.
func (c *QueryCache) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry := &Entry{Key: key, Value: value, CreatedAt: c.now(), TTL: ttl}
	if el, ok := c.entries[key]; ok {
		el.Value = entry
		c.lru.MoveToFront(el)
		return
	}
	c.entries[key] = c.lru.PushFront(entry)
	metrics.QueryCacheEntries.Set(float64(len(c.entries)))

	if c.maxEntries > 0 {
		for len(c.entries) > c.maxEntries {
			oldest := c.lru.Back()
			if oldest == nil {
				break
			}
			c.removeLocked(oldest)
			metrics.QueryCacheEvictionsTotal.WithLabelValues("lru").Inc()
		}
	}
}

// InvalidateAll drops every entry.
func (c *QueryCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.entries)
	c.entries = make(map[string]*list.Element)
	c.lru.Init()
	metrics.QueryCacheEntries.Set(0)
	if n > 0 {
		metrics.QueryCacheEvictionsTotal.WithLabelValues("invalidate").Add(float64(n))
	}
}

// Len returns the number of stored entries, expired ones included.
func (c *QueryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// DefaultEntryTTL reports the ttl applied when Set gets none.
func (c *QueryCache) DefaultEntryTTL() time.Duration {
	return c.defaultTTL
}

func (c *QueryCache) removeLocked(el *list.Element) {
	entry := c.lru.Remove(el).(*Entry)
	delete(c.entries, entry.Key)
	metrics.QueryCacheEntries.Set(float64(len(c.entries)))
}

// Key derives the cache key for query against subscriptionID. Runs of
// whitespace in the query are collapsed and the subscription id is
// case-folded, so cosmetic differences share an entry.
func Key(query, subscriptionID string) string {
	normalized := strings.Join(strings.Fields(query), " ")
	sub := strings.ToLower(strings.TrimSpace(subscriptionID))

	h := sha256.New()
	h.Write([]byte(normalized))
	h.Write([]byte{0})
	h.Write([]byte(sub))
	return hex.EncodeToString(h.Sum(nil))
}
