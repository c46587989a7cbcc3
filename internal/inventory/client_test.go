package inventory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wafscan/wafscan/internal/cache"
	"github.com/wafscan/wafscan/internal/checks"
)

type countingSource struct {
	calls   atomic.Int32
	rows    []checks.Row
	err     error
	release chan struct{}
}

func (s *countingSource) Name() string { return "counting" }

func (s *countingSource) Query(ctx context.Context, query, subscriptionID string) ([]checks.Row, error) {
	_, _ = query, subscriptionID
	s.calls.Add(1)
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.rows, nil
}

type memStore struct {
	mu    sync.Mutex
	data  map[string][]byte
	saves int
}

func (m *memStore) Load(ctx context.Context, key string) ([]byte, bool, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memStore) Save(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, _ = ctx, ttl
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = make(map[string][]byte)
	}
	m.data[key] = value
	m.saves++
	return nil
}

func TestClientQuery_CachesResults(t *testing.T) {
	t.Parallel()

	src := &countingSource{rows: []checks.Row{{"id": "a"}}}
	client, err := NewClient(src, ClientOptions{})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	capability := client.Scope("sub-1")
	for range 3 {
		rows, err := capability.QueryInventory(context.Background(), "SELECT  id")
		if err != nil {
			t.Fatalf("QueryInventory() error = %v", err)
		}
		if len(rows) != 1 {
			t.Fatalf("len(rows) = %d, want 1", len(rows))
		}
	}
	if got := src.calls.Load(); got != 1 {
		t.Fatalf("source calls = %d, want 1", got)
	}

	if _, err := client.Query(context.Background(), "SELECT id", "sub-2"); err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if got := src.calls.Load(); got != 2 {
		t.Fatalf("source calls = %d, want 2 for a different subscription", got)
	}
}

func TestClientQuery_CoalescesConcurrentMisses(t *testing.T) {
	t.Parallel()

	src := &countingSource{rows: []checks.Row{{"id": "a"}}, release: make(chan struct{})}
	client, _ := NewClient(src, ClientOptions{})

	const waiters = 8
	var wg sync.WaitGroup
	errs := make(chan error, waiters)
	for range waiters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := client.Query(context.Background(), "SELECT id", "sub-1")
			errs <- err
		}()
	}

	deadline := time.After(2 * time.Second)
	for src.calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatalf("source never called")
		case <-time.After(time.Millisecond):
		}
	}
	time.Sleep(20 * time.Millisecond)
	close(src.release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("Query() error = %v", err)
		}
	}
	if got := src.calls.Load(); got != 1 {
		t.Fatalf("source calls = %d, want 1", got)
	}
}

func TestClientQuery_ErrorsAreNotCached(t *testing.T) {
	t.Parallel()

	src := &countingSource{err: checks.Transient(errors.New("throttled"))}
	client, _ := NewClient(src, ClientOptions{})

	for range 2 {
		_, err := client.Query(context.Background(), "SELECT id", "sub-1")
		if !checks.IsTransient(err) {
			t.Fatalf("Query() error = %v, want transient", err)
		}
	}
	if got := src.calls.Load(); got != 2 {
		t.Fatalf("source calls = %d, want 2", got)
	}
}

func TestClientQuery_PersistentTier(t *testing.T) {
	t.Parallel()

	store := &memStore{}
	src := &countingSource{rows: []checks.Row{{"id": "a"}}}

	first, _ := NewClient(src, ClientOptions{Store: store})
	if _, err := first.Query(context.Background(), "SELECT id", "sub-1"); err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if store.saves != 1 {
		t.Fatalf("store saves = %d, want 1", store.saves)
	}

	// A fresh client models a new process with an empty memory tier.
	second, _ := NewClient(src, ClientOptions{Store: store})
	rows, err := second.Query(context.Background(), "SELECT id", "sub-1")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(rows) != 1 || rows[0]["id"] != "a" {
		t.Fatalf("Query() = %v, want persisted row", rows)
	}
	if got := src.calls.Load(); got != 1 {
		t.Fatalf("source calls = %d, want 1", got)
	}
}

func TestClientQuery_SharedCacheAndInvalidate(t *testing.T) {
	t.Parallel()

	shared := cache.New(cache.Options{})
	src := &countingSource{rows: []checks.Row{}}
	client, _ := NewClient(src, ClientOptions{Cache: shared})

	_, _ = client.Query(context.Background(), "SELECT id", "sub-1")
	if shared.Len() != 1 {
		t.Fatalf("cache Len() = %d, want 1", shared.Len())
	}
	client.Cache().InvalidateAll()
	_, _ = client.Query(context.Background(), "SELECT id", "sub-1")
	if got := src.calls.Load(); got != 2 {
		t.Fatalf("source calls = %d, want 2 after invalidate", got)
	}
}

func TestClientQuery_RejectsEmptyQuery(t *testing.T) {
	t.Parallel()

	client, _ := NewClient(&countingSource{}, ClientOptions{})
	if _, err := client.Query(context.Background(), "  ", "sub-1"); err == nil {
		t.Fatalf("Query() error = nil, want non-nil")
	}
	if _, err := NewClient(nil, ClientOptions{}); err == nil {
		t.Fatalf("NewClient(nil) error = nil, want non-nil")
	}
}

func TestScope_SubscriptionID(t *testing.T) {
	t.Parallel()

	client, _ := NewClient(&countingSource{}, ClientOptions{})
	if got := client.Scope(" sub-9 ").SubscriptionID(); got != "sub-9" {
		t.Fatalf("SubscriptionID() = %q, want sub-9", got)
	}
}
