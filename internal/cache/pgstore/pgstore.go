// Package pgstore persists query cache entries in Postgres so that repeated
// scans can reuse inventory results across process runs. It is opt-in and
// carries no correctness guarantees beyond the ttl check on load.
package pgstore

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store reads and writes the query_cache table.
type Store struct {
	db  querier
	now func() time.Time
}

func New(pool *pgxpool.Pool) (*Store, error) {
	if pool == nil {
		return nil, errors.New("pgstore: pool is nil")
	}
	return &Store{db: pool, now: time.Now}, nil
}

// Open connects to databaseURL. The caller owns the returned pool.
func Open(ctx context.Context, databaseURL string) (*Store, *pgxpool.Pool, error) {
	databaseURL = strings.TrimSpace(databaseURL)
	if databaseURL == "" {
		return nil, nil, errors.New("pgstore: database url is required")
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("pgstore: ping: %w", err)
	}
	s, err := New(pool)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return s, pool, nil
}

const (
	selectEntrySQL = `SELECT value, created_at, ttl_seconds FROM query_cache WHERE key = $1`
	upsertEntrySQL = `INSERT INTO query_cache (key, value, created_at, ttl_seconds)
VALUES ($1, $2, $3, $4)
ON CONFLICT (key) DO UPDATE
SET value = EXCLUDED.value, created_at = EXCLUDED.created_at, ttl_seconds = EXCLUDED.ttl_seconds`
	deleteEntrySQL   = `DELETE FROM query_cache WHERE key = $1`
	deleteExpiredSQL = `DELETE FROM query_cache WHERE created_at + make_interval(secs => ttl_seconds) < $1`
	deleteAllSQL     = `DELETE FROM query_cache`
)

// Load returns the stored payload for key if it has not expired. Expired rows
// are deleted on the way out.
func (s *Store) Load(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		value      []byte
		createdAt  time.Time
		ttlSeconds int64
	)
	err := s.db.QueryRow(ctx, selectEntrySQL, key).Scan(&value, &createdAt, &ttlSeconds)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	ttl := time.Duration(ttlSeconds) * time.Second
	if s.now().Sub(createdAt) > ttl {
		if _, err := s.db.Exec(ctx, deleteEntrySQL, key); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}
	return value, true, nil
}

// Save upserts value under key.
func (s *Store) Save(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("pgstore: ttl must be positive, got %s", ttl)
	}
	seconds := int64(math.Ceil(ttl.Seconds()))
	_, err := s.db.Exec(ctx, upsertEntrySQL, key, value, s.now().UTC(), seconds)
	return err
}

// PurgeExpired deletes expired rows and returns how many were removed.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx, deleteExpiredSQL, s.now().UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Clear deletes every row.
func (s *Store) Clear(ctx context.Context) error {
	_, err := s.db.Exec(ctx, deleteAllSQL)
	return err
}

// Migrate applies the embedded schema to databaseURL. It reports whether any
// migration ran.
func Migrate(databaseURL string) (bool, error) {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return false, err
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return false, err
	}
	defer func() {
		_, _ = m.Close()
	}()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
