package pgstore

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type fakeRow struct {
	value      []byte
	createdAt  time.Time
	ttlSeconds int64
	err        error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*[]byte) = r.value
	*dest[1].(*time.Time) = r.createdAt
	*dest[2].(*int64) = r.ttlSeconds
	return nil
}

type execCall struct {
	sql  string
	args []any
}

type fakeDB struct {
	row   fakeRow
	execs []execCall
	tag   string
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	_, _, _ = ctx, sql, args
	return f.row
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	_ = ctx
	f.execs = append(f.execs, execCall{sql: sql, args: args})
	return pgconn.NewCommandTag(f.tag), nil
}

func TestStoreLoad_Hit(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	db := &fakeDB{row: fakeRow{value: []byte(`[{"id":"a"}]`), createdAt: now.Add(-10 * time.Minute), ttlSeconds: 1800}}
	s := &Store{db: db, now: func() time.Time { return now }}

	got, ok, err := s.Load(context.Background(), "k")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !ok || string(got) != `[{"id":"a"}]` {
		t.Fatalf("Load() = %q, %v, want payload, true", got, ok)
	}
	if len(db.execs) != 0 {
		t.Fatalf("execs = %d, want 0", len(db.execs))
	}
}

func TestStoreLoad_ExpiredRowIsDeleted(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	db := &fakeDB{row: fakeRow{value: []byte(`[]`), createdAt: now.Add(-31 * time.Minute), ttlSeconds: 1800}}
	s := &Store{db: db, now: func() time.Time { return now }}

	_, ok, err := s.Load(context.Background(), "k")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if ok {
		t.Fatalf("Load() found = true, want false for expired row")
	}
	if len(db.execs) != 1 || db.execs[0].sql != deleteEntrySQL {
		t.Fatalf("execs = %+v, want single delete", db.execs)
	}
}

func TestStoreLoad_NoRows(t *testing.T) {
	t.Parallel()

	s := &Store{db: &fakeDB{row: fakeRow{err: pgx.ErrNoRows}}, now: time.Now}
	_, ok, err := s.Load(context.Background(), "k")
	if err != nil || ok {
		t.Fatalf("Load() = _, %v, %v, want false, nil", ok, err)
	}

	boom := errors.New("boom")
	s = &Store{db: &fakeDB{row: fakeRow{err: boom}}, now: time.Now}
	if _, _, err := s.Load(context.Background(), "k"); !errors.Is(err, boom) {
		t.Fatalf("Load() error = %v, want boom", err)
	}
}

func TestStoreSave_RoundsTTLUp(t *testing.T) {
	t.Parallel()

	db := &fakeDB{}
	s := &Store{db: db, now: time.Now}
	if err := s.Save(context.Background(), "k", []byte(`[]`), 1500*time.Millisecond); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if len(db.execs) != 1 || !strings.HasPrefix(db.execs[0].sql, "INSERT INTO query_cache") {
		t.Fatalf("execs = %+v, want one upsert", db.execs)
	}
	if got := db.execs[0].args[3]; got != int64(2) {
		t.Fatalf("ttl_seconds = %v, want 2", got)
	}

	if err := s.Save(context.Background(), "k", nil, 0); err == nil {
		t.Fatalf("Save(ttl=0) error = nil, want non-nil")
	}
}

func TestStorePurgeExpired(t *testing.T) {
	t.Parallel()

	db := &fakeDB{tag: "DELETE 3"}
	s := &Store{db: db, now: time.Now}
	n, err := s.PurgeExpired(context.Background())
	if err != nil {
		t.Fatalf("PurgeExpired() error = %v", err)
	}
	if n != 3 {
		t.Fatalf("PurgeExpired() = %d, want 3", n)
	}
}

func TestMigrationsEmbedded(t *testing.T) {
	t.Parallel()

	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len(migrations) = %d, want 2 (up and down)", len(entries))
	}
}
