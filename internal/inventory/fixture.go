package inventory

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/wafscan/wafscan/internal/checks"
	"gopkg.in/yaml.v3"
)

// FixtureEntry binds a canned answer to a query. Subscription "*" (or empty)
// matches every subscription; a specific subscription wins over the wildcard.
// Error simulates a failing backend: "transient", "permission", or any other
// text for a plain failure.
type FixtureEntry struct {
	Subscription string           `yaml:"subscription" json:"subscription"`
	Query        string           `yaml:"query" json:"query"`
	Rows         []map[string]any `yaml:"rows" json:"rows"`
	Error        string           `yaml:"error,omitempty" json:"error,omitempty"`
}

type fixtureFile struct {
	Queries []FixtureEntry `yaml:"queries" json:"queries"`
}

type fixtureKey struct {
	subscription string
	query        string
}

// FixtureSource answers queries from a static file, for offline runs and
// tests. Unknown queries return no rows.
type FixtureSource struct {
	entries map[fixtureKey]FixtureEntry
}

// NewFixtureSource indexes entries. Later entries replace earlier ones with
// the same subscription and query.
func NewFixtureSource(entries []FixtureEntry) *FixtureSource {
	idx := make(map[fixtureKey]FixtureEntry, len(entries))
	for _, e := range entries {
		idx[fixtureKeyFor(e.Subscription, e.Query)] = e
	}
	return &FixtureSource{entries: idx}
}

// LoadFixtureFile reads a YAML or JSON fixture file. JSON parses as YAML.
func LoadFixtureFile(path string) (*FixtureSource, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("inventory fixture path is required")
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read inventory fixture: %w", err)
	}
	var f fixtureFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse inventory fixture %s: %w", path, err)
	}
	for i, e := range f.Queries {
		if strings.TrimSpace(e.Query) == "" {
			return nil, fmt.Errorf("inventory fixture %s: entry %d has no query", path, i)
		}
	}
	return NewFixtureSource(f.Queries), nil
}

func (s *FixtureSource) Name() string { return "fixture" }

func (s *FixtureSource) Query(ctx context.Context, query, subscriptionID string) ([]checks.Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entry, ok := s.entries[fixtureKeyFor(subscriptionID, query)]
	if !ok {
		entry, ok = s.entries[fixtureKeyFor("*", query)]
	}
	if !ok {
		return []checks.Row{}, nil
	}

	switch strings.ToLower(strings.TrimSpace(entry.Error)) {
	case "":
	case "transient":
		return nil, checks.Transient(errors.New("fixture: simulated throttling"))
	case "permission":
		return nil, checks.Permission(errors.New("fixture: simulated access denied"))
	default:
		return nil, fmt.Errorf("fixture: %s", entry.Error)
	}

	rows := make([]checks.Row, 0, len(entry.Rows))
	for _, r := range entry.Rows {
		rows = append(rows, checks.Row(r))
	}
	return rows, nil
}

func fixtureKeyFor(subscription, query string) fixtureKey {
	sub := strings.ToLower(strings.TrimSpace(subscription))
	if sub == "" {
		sub = "*"
	}
	return fixtureKey{subscription: sub, query: strings.Join(strings.Fields(query), " ")}
}
