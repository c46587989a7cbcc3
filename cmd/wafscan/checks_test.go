package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestRunChecks_JSONFiltered(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	opts := checksOptions{format: formatJSON, filter: filterFlags{pillars: []string{"security"}}}
	if err := runChecks(opts, &out); err != nil {
		t.Fatalf("runChecks() error = %v", err)
	}

	var got []checkListing
	if err := json.Unmarshal(out.Bytes(), &got); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if len(got) == 0 {
		t.Fatalf("runChecks() listed no security checks")
	}
	for _, c := range got {
		if c.Pillar != "security" {
			t.Fatalf("listed %s in pillar %s, want only security", c.ID, c.Pillar)
		}
	}
}

func TestRunChecks_Table(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	opts := checksOptions{format: formatTable, filter: filterFlags{checks: []string{"co01"}}}
	if err := runChecks(opts, &out); err != nil {
		t.Fatalf("runChecks() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "ID") || !strings.HasPrefix(lines[1], "CO01") {
		t.Fatalf("output = %q, want header and CO01", out.String())
	}
}
