package results

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

// Status is the verdict of a single check evaluation.
type Status string

const (
	StatusPass          Status = "Pass"
	StatusFail          Status = "Fail"
	StatusWarning       Status = "Warning"
	StatusNotApplicable Status = "NotApplicable"
	StatusError         Status = "Error"
	StatusTimeout       Status = "Timeout"
	StatusCancelled     Status = "Cancelled"
)

var allStatuses = []Status{
	StatusPass,
	StatusFail,
	StatusWarning,
	StatusNotApplicable,
	StatusError,
	StatusTimeout,
	StatusCancelled,
}

// ParseStatus accepts the canonical spelling case-insensitively, plus the
// snake_case forms used by older report files.
func ParseStatus(v string) (Status, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(v)), "_", "")
	for _, s := range allStatuses {
		if strings.ToLower(string(s)) == norm {
			return s, nil
		}
	}
	if norm == "canceled" {
		return StatusCancelled, nil
	}
	return "", fmt.Errorf("unknown status %q", v)
}

// Terminal reports whether s is a final verdict. Every status is terminal;
// an empty status is not.
func (s Status) Terminal() bool {
	return slices.Contains(allStatuses, s)
}

// Healthy is true for statuses that count as compliant in a baseline.
func (s Status) Healthy() bool {
	return s == StatusPass || s == StatusNotApplicable
}

// Scored reports whether the status contributes to the compliance denominator.
func (s Status) Scored() bool {
	switch s {
	case StatusPass, StatusWarning, StatusFail:
		return true
	default:
		return false
	}
}

// Weight is the score contribution of a scored status.
func (s Status) Weight() float64 {
	switch s {
	case StatusPass:
		return 100
	case StatusWarning:
		return 60
	default:
		return 0
	}
}

// rank orders statuses from best to worst when several results share a key.
func (s Status) rank() int {
	switch s {
	case StatusNotApplicable:
		return 0
	case StatusPass:
		return 1
	case StatusCancelled:
		return 2
	case StatusTimeout:
		return 3
	case StatusError:
		return 4
	case StatusWarning:
		return 5
	case StatusFail:
		return 6
	default:
		return -1
	}
}

type Severity string

const (
	SeverityCritical Severity = "Critical"
	SeverityHigh     Severity = "High"
	SeverityMedium   Severity = "Medium"
	SeverityLow      Severity = "Low"
)

var severityOrder = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}

func ParseSeverity(v string) (Severity, error) {
	for _, s := range severityOrder {
		if strings.EqualFold(string(s), strings.TrimSpace(v)) {
			return s, nil
		}
	}
	return "", fmt.Errorf("unknown severity %q", v)
}

func (s Severity) Valid() bool {
	return slices.Contains(severityOrder, s)
}

// Pillar is a top-level best-practice category.
type Pillar string

const (
	PillarReliability Pillar = "reliability"
	PillarSecurity    Pillar = "security"
	PillarCost        Pillar = "cost"
	PillarOperations  Pillar = "operations"
	PillarPerformance Pillar = "performance"
)

// Pillars lists the known pillars in display order.
var Pillars = []Pillar{
	PillarReliability,
	PillarSecurity,
	PillarCost,
	PillarOperations,
	PillarPerformance,
}

func ParsePillar(v string) (Pillar, error) {
	p := Pillar(strings.ToLower(strings.TrimSpace(v)))
	switch p {
	case "costoptimization", "cost_optimization", "cost-optimization":
		return PillarCost, nil
	case "operationalexcellence", "operational_excellence", "operational-excellence":
		return PillarOperations, nil
	case "performanceefficiency", "performance_efficiency", "performance-efficiency":
		return PillarPerformance, nil
	}
	if slices.Contains(Pillars, p) {
		return p, nil
	}
	return "", fmt.Errorf("unknown pillar %q", v)
}

func (p Pillar) Valid() bool {
	return slices.Contains(Pillars, p)
}

func pillarIndex(p Pillar) int {
	if i := slices.Index(Pillars, p); i >= 0 {
		return i
	}
	return len(Pillars)
}

// CheckResult is the outcome of one evaluation of one check against one
// subscription. Values are treated as immutable once built; use New to copy
// caller-owned slices and maps.
type CheckResult struct {
	CheckID           string            `json:"checkId"`
	SubscriptionID    string            `json:"subscriptionId"`
	Pillar            Pillar            `json:"pillar,omitempty"`
	Status            Status            `json:"status"`
	Severity          Severity          `json:"severity,omitempty"`
	Message           string            `json:"message"`
	AffectedResources []string          `json:"affectedResources"`
	Recommendation    string            `json:"recommendation,omitempty"`
	RemediationScript string            `json:"remediationScript,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	Attempts          int               `json:"attempts,omitempty"`
	Duration          time.Duration     `json:"duration,omitempty"`
	Timestamp         time.Time         `json:"timestamp"`
}

// New returns a copy of r that shares no backing storage with the caller.
func New(r CheckResult) CheckResult {
	r.AffectedResources = slices.Clone(r.AffectedResources)
	if r.AffectedResources == nil {
		r.AffectedResources = []string{}
	}
	if r.Metadata != nil {
		r.Metadata = maps.Clone(r.Metadata)
	}
	return r
}

// Key identifies a result within a result set.
type Key struct {
	SubscriptionID string
	CheckID        string
}

func (r CheckResult) Key() Key {
	return Key{
		SubscriptionID: strings.ToLower(strings.TrimSpace(r.SubscriptionID)),
		CheckID:        strings.ToUpper(strings.TrimSpace(r.CheckID)),
	}
}

func (k Key) String() string {
	return k.SubscriptionID + "/" + k.CheckID
}

func compareKeys(a, b Key) int {
	if c := strings.Compare(a.SubscriptionID, b.SubscriptionID); c != 0 {
		return c
	}
	return strings.Compare(a.CheckID, b.CheckID)
}
