package results

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Report is the envelope written for a scan run. Exporters read it back.
type Report struct {
	RunID          string        `json:"runId"`
	GeneratedAt    time.Time     `json:"generatedAt"`
	Subscriptions  []string      `json:"subscriptions"`
	CallerIdentity string        `json:"callerIdentity,omitempty"`
	Results        []CheckResult `json:"results"`
	Summary        ScanSummary   `json:"summary"`
}

// NewReport builds an envelope with a fresh run id and a summary computed
// from list.
func NewReport(subscriptions []string, list []CheckResult, generatedAt time.Time) Report {
	if list == nil {
		list = []CheckResult{}
	}
	if subscriptions == nil {
		subscriptions = []string{}
	}
	return Report{
		RunID:         uuid.NewString(),
		GeneratedAt:   generatedAt.UTC(),
		Subscriptions: subscriptions,
		Results:       list,
		Summary:       Summarize(list),
	}
}

// FileName is the conventional name for a single-subscription report. Bytes
// outside [A-Za-z0-9._-] become underscores and leading dots are dropped, so
// the name never leaves the output directory.
func FileName(subscriptionID string, at time.Time) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, strings.TrimSpace(subscriptionID))
	name = strings.TrimLeft(name, ".")
	if name == "" {
		name = "scan"
	}
	return fmt.Sprintf("%s-%s.json", name, at.UTC().Format("20060102-150405"))
}

func WriteReport(path string, r Report) error {
	if path == "" {
		return errors.New("output path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// ReadReport loads a report envelope. A bare JSON array of results is also
// accepted; its summary is recomputed.
func ReadReport(path string) (Report, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return Report{}, err
	}
	return DecodeReport(buf)
}

func DecodeReport(buf []byte) (Report, error) {
	trimmed := bytes.TrimSpace(buf)
	if len(trimmed) == 0 {
		return Report{}, errors.New("report is empty")
	}

	if trimmed[0] == '[' {
		var list []CheckResult
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return Report{}, fmt.Errorf("decode result list: %w", err)
		}
		if err := normalizeStatuses(list); err != nil {
			return Report{}, err
		}
		return Report{Results: list, Summary: Summarize(list)}, nil
	}

	var r Report
	if err := json.Unmarshal(trimmed, &r); err != nil {
		return Report{}, fmt.Errorf("decode report: %w", err)
	}
	if err := normalizeStatuses(r.Results); err != nil {
		return Report{}, err
	}
	r.Summary = Summarize(r.Results)
	return r, nil
}

func normalizeStatuses(list []CheckResult) error {
	var errs []error
	for i := range list {
		s, err := ParseStatus(string(list[i].Status))
		if err != nil {
			errs = append(errs, fmt.Errorf("result %d (%s): %w", i, list[i].CheckID, err))
			continue
		}
		list[i].Status = s
	}
	return errors.Join(errs...)
}
