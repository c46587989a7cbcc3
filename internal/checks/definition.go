package checks

import (
	"context"
	"regexp"
	"slices"
	"strings"

	"github.com/wafscan/wafscan/internal/results"
)

// Row is one record returned by an inventory query.
type Row map[string]any

// Capability is what an evaluator may use while it runs. It is bound to a
// single subscription and routes queries through the shared query cache.
type Capability interface {
	SubscriptionID() string
	QueryInventory(ctx context.Context, query string) ([]Row, error)
}

// Evaluator runs one check against one subscription. Implementations must be
// read-only with respect to the inspected environment: the executor may
// abandon them on timeout and retry them on transient failures.
type Evaluator interface {
	Evaluate(ctx context.Context, subscriptionID string, cap Capability) ([]results.CheckResult, error)
}

// EvaluatorFunc adapts a function to Evaluator.
type EvaluatorFunc func(ctx context.Context, subscriptionID string, cap Capability) ([]results.CheckResult, error)

func (f EvaluatorFunc) Evaluate(ctx context.Context, subscriptionID string, cap Capability) ([]results.CheckResult, error) {
	return f(ctx, subscriptionID, cap)
}

type Effort string

const (
	EffortHigh   Effort = "High"
	EffortMedium Effort = "Medium"
	EffortLow    Effort = "Low"
)

func (e Effort) Valid() bool {
	switch e {
	case EffortHigh, EffortMedium, EffortLow:
		return true
	default:
		return false
	}
}

var idPattern = regexp.MustCompile(`^[A-Z]{2}\d{2}$`)

// Definition is the static description of a check plus its evaluator.
type Definition struct {
	ID                string
	Pillar            results.Pillar
	Title             string
	Description       string
	Severity          results.Severity
	RemediationEffort Effort
	Tags              []string
	DocumentationURL  string
	Evaluator         Evaluator
}

// HasTag reports whether the definition carries tag, case-insensitively.
func (d Definition) HasTag(tag string) bool {
	return slices.ContainsFunc(d.Tags, func(t string) bool {
		return strings.EqualFold(t, strings.TrimSpace(tag))
	})
}

func (d Definition) validate() error {
	var missing []string
	if strings.TrimSpace(d.ID) == "" {
		missing = append(missing, "id")
	}
	if d.Pillar == "" {
		missing = append(missing, "pillar")
	}
	if strings.TrimSpace(d.Title) == "" {
		missing = append(missing, "title")
	}
	if d.Evaluator == nil {
		missing = append(missing, "evaluator")
	}
	if len(missing) > 0 {
		return &InvalidDefinitionError{ID: d.ID, Reason: "missing " + strings.Join(missing, ", ")}
	}

	if !idPattern.MatchString(d.ID) {
		return &InvalidDefinitionError{ID: d.ID, Reason: "id must match [A-Z]{2}\\d{2}"}
	}
	if !d.Pillar.Valid() {
		return &InvalidDefinitionError{ID: d.ID, Reason: "unknown pillar " + string(d.Pillar)}
	}
	if d.Severity != "" && !d.Severity.Valid() {
		return &InvalidDefinitionError{ID: d.ID, Reason: "unknown severity " + string(d.Severity)}
	}
	if d.RemediationEffort != "" && !d.RemediationEffort.Valid() {
		return &InvalidDefinitionError{ID: d.ID, Reason: "unknown remediation effort " + string(d.RemediationEffort)}
	}
	return nil
}

// clone copies the tag set so registry entries never alias caller slices.
func (d Definition) clone() Definition {
	d.Tags = slices.Clone(d.Tags)
	return d
}
