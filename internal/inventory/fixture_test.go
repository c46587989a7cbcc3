package inventory

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/wafscan/wafscan/internal/checks"
)

const fixtureYAML = `
queries:
  - subscription: "*"
    query: |
      SELECT resourceId
      WHERE resourceType = 'AWS::EC2::Volume'
    rows:
      - resourceId: vol-1
        encrypted: false
  - subscription: prod
    query: SELECT resourceId WHERE resourceType = 'AWS::EC2::Volume'
    rows:
      - resourceId: vol-prod
        encrypted: true
  - query: SELECT throttled
    error: transient
  - query: SELECT denied
    error: permission
  - query: SELECT broken
    error: backend exploded
`

func writeFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "inventory.yaml")
	if err := os.WriteFile(path, []byte(fixtureYAML), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestFixtureSource_Query(t *testing.T) {
	t.Parallel()

	src, err := LoadFixtureFile(writeFixture(t))
	if err != nil {
		t.Fatalf("LoadFixtureFile() error = %v", err)
	}
	q := "SELECT resourceId WHERE resourceType = 'AWS::EC2::Volume'"

	rows, err := src.Query(context.Background(), q, "dev")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(rows) != 1 || rows[0]["resourceId"] != "vol-1" {
		t.Fatalf("Query(dev) = %v, want wildcard rows", rows)
	}

	rows, err = src.Query(context.Background(), q, "PROD")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(rows) != 1 || rows[0]["resourceId"] != "vol-prod" {
		t.Fatalf("Query(prod) = %v, want subscription rows", rows)
	}

	rows, err = src.Query(context.Background(), "SELECT unknown", "dev")
	if err != nil || rows == nil || len(rows) != 0 {
		t.Fatalf("Query(unknown) = %v, %v, want empty rows", rows, err)
	}
}

func TestFixtureSource_SimulatedErrors(t *testing.T) {
	t.Parallel()

	src, err := LoadFixtureFile(writeFixture(t))
	if err != nil {
		t.Fatalf("LoadFixtureFile() error = %v", err)
	}

	if _, err := src.Query(context.Background(), "SELECT throttled", "a"); !checks.IsTransient(err) {
		t.Fatalf("Query(throttled) error = %v, want transient", err)
	}
	if _, err := src.Query(context.Background(), "SELECT denied", "a"); !checks.IsPermission(err) {
		t.Fatalf("Query(denied) error = %v, want permission", err)
	}
	_, err = src.Query(context.Background(), "SELECT broken", "a")
	if err == nil || checks.IsTransient(err) || checks.IsPermission(err) {
		t.Fatalf("Query(broken) error = %v, want plain error", err)
	}
}

func TestFixtureSource_CancelledContext(t *testing.T) {
	t.Parallel()

	src := NewFixtureSource(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := src.Query(ctx, "SELECT a", "x"); err == nil {
		t.Fatalf("Query() error = nil, want context error")
	}
}

func TestLoadFixtureFile_Errors(t *testing.T) {
	t.Parallel()

	if _, err := LoadFixtureFile(""); err == nil {
		t.Fatalf("LoadFixtureFile(\"\") error = nil, want non-nil")
	}
	if _, err := LoadFixtureFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("LoadFixtureFile(missing) error = nil, want non-nil")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("queries:\n  - rows: []\n"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := LoadFixtureFile(path); err == nil {
		t.Fatalf("LoadFixtureFile(no query) error = nil, want non-nil")
	}
}
