package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/wafscan/wafscan/internal/cache"
	"github.com/wafscan/wafscan/internal/checks"
	"github.com/wafscan/wafscan/internal/metrics"
	"golang.org/x/sync/singleflight"
)

// Source answers inventory queries for one subscription at a time.
type Source interface {
	Name() string
	Query(ctx context.Context, query, subscriptionID string) ([]checks.Row, error)
}

// PersistentStore is an optional second cache tier that outlives the process.
type PersistentStore interface {
	Load(ctx context.Context, key string) ([]byte, bool, error)
	Save(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Client routes queries through the query cache before reaching the source.
// Concurrent misses for the same key share one source call.
type Client struct {
	source Source
	cache  *cache.QueryCache
	store  PersistentStore
	ttl    time.Duration
	logger *slog.Logger

	group singleflight.Group
}

type ClientOptions struct {
	Cache  *cache.QueryCache
	Store  PersistentStore
	TTL    time.Duration
	Logger *slog.Logger
}

func NewClient(source Source, opts ClientOptions) (*Client, error) {
	if source == nil {
		return nil, errors.New("inventory source is nil")
	}
	c := opts.Cache
	if c == nil {
		c = cache.New(cache.Options{DefaultTTL: opts.TTL})
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = c.DefaultEntryTTL()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		source: source,
		cache:  c,
		store:  opts.Store,
		ttl:    ttl,
		logger: logger,
	}, nil
}

// Cache exposes the in-memory tier, e.g. to invalidate between runs.
func (c *Client) Cache() *cache.QueryCache {
	return c.cache
}

// Scope returns the capability handed to evaluators for subscriptionID.
func (c *Client) Scope(subscriptionID string) checks.Capability {
	return scoped{client: c, subscriptionID: strings.TrimSpace(subscriptionID)}
}

// Query returns the rows for query against subscriptionID. The returned slice
// is owned by the caller; the rows themselves are shared and must be treated
// as read-only.
func (c *Client) Query(ctx context.Context, query, subscriptionID string) ([]checks.Row, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("inventory query is empty")
	}
	key := cache.Key(query, subscriptionID)

	if v, ok := c.cache.Get(key); ok {
		if rows, ok := v.([]checks.Row); ok {
			return slices.Clone(rows), nil
		}
	}

	// One retry covers the case where the shared call was started by a
	// worker whose own context ended while ours is still live.
	for attempt := 0; ; attempt++ {
		ch := c.group.DoChan(key, func() (any, error) {
			return c.load(ctx, key, query, subscriptionID)
		})

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res := <-ch:
			if res.Err != nil {
				if attempt == 0 && ctx.Err() == nil && isContextErr(res.Err) {
					c.group.Forget(key)
					continue
				}
				return nil, res.Err
			}
			return slices.Clone(res.Val.([]checks.Row)), nil
		}
	}
}

func (c *Client) load(ctx context.Context, key, query, subscriptionID string) ([]checks.Row, error) {
	if v, ok := c.cache.Get(key); ok {
		if rows, ok := v.([]checks.Row); ok {
			return rows, nil
		}
	}

	if c.store != nil {
		raw, ok, err := c.store.Load(ctx, key)
		switch {
		case err != nil:
			c.logger.Warn("persistent query cache load failed", "err", err)
		case ok:
			var rows []checks.Row
			if err := json.Unmarshal(raw, &rows); err == nil {
				c.cache.Set(key, rows, c.ttl)
				return rows, nil
			}
			c.logger.Warn("persistent query cache entry is not decodable", "key", key)
		}
	}

	sourceName := c.source.Name()
	start := time.Now()
	rows, err := c.source.Query(ctx, query, subscriptionID)
	metrics.InventoryQueryDuration.WithLabelValues(sourceName).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.InventoryQueriesTotal.WithLabelValues(sourceName, outcomeLabel(err)).Inc()
		return nil, err
	}
	metrics.InventoryQueriesTotal.WithLabelValues(sourceName, "success").Inc()
	if rows == nil {
		rows = []checks.Row{}
	}

	c.cache.Set(key, rows, c.ttl)
	if c.store != nil {
		if raw, err := json.Marshal(rows); err == nil {
			if err := c.store.Save(ctx, key, raw, c.ttl); err != nil {
				c.logger.Warn("persistent query cache save failed", "err", err)
			}
		}
	}
	return rows, nil
}

func outcomeLabel(err error) string {
	switch {
	case checks.IsTransient(err):
		return "transient"
	case checks.IsPermission(err):
		return "permission"
	case isContextErr(err):
		return "canceled"
	default:
		return "error"
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

type scoped struct {
	client         *Client
	subscriptionID string
}

func (s scoped) SubscriptionID() string {
	return s.subscriptionID
}

func (s scoped) QueryInventory(ctx context.Context, query string) ([]checks.Row, error) {
	return s.client.Query(ctx, query, s.subscriptionID)
}
