package catalog

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/wafscan/wafscan/internal/checks"
	"github.com/wafscan/wafscan/internal/results"
)

// QueryCheck grades every row of one inventory query. Rows for which
// Compliant returns false are reported as affected resources.
type QueryCheck struct {
	Query string
	// Resource is the plural noun used in messages, e.g. "EBS volumes".
	Resource  string
	Compliant func(checks.Row) bool
	// Violation is the status for non-compliant rows: Fail or Warning.
	Violation         results.Status
	Recommendation    string
	RemediationScript string
}

func (q QueryCheck) Evaluate(ctx context.Context, _ string, capability checks.Capability) ([]results.CheckResult, error) {
	rows, err := capability.QueryInventory(ctx, q.Query)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []results.CheckResult{{
			Status:  results.StatusNotApplicable,
			Message: fmt.Sprintf("No %s found.", q.Resource),
		}}, nil
	}

	var affected []string
	for _, row := range rows {
		if q.Compliant(row) {
			continue
		}
		affected = append(affected, resourceID(row))
	}

	metadata := map[string]string{
		"evaluated":    strconv.Itoa(len(rows)),
		"nonCompliant": strconv.Itoa(len(affected)),
	}
	if len(affected) == 0 {
		return []results.CheckResult{{
			Status:   results.StatusPass,
			Message:  fmt.Sprintf("All %d %s are compliant.", len(rows), q.Resource),
			Metadata: metadata,
		}}, nil
	}

	status := q.Violation
	if status == "" {
		status = results.StatusFail
	}
	return []results.CheckResult{{
		Status:            status,
		Message:           fmt.Sprintf("%d of %d %s are not compliant.", len(affected), len(rows), q.Resource),
		AffectedResources: affected,
		Recommendation:    q.Recommendation,
		RemediationScript: strings.TrimSpace(q.RemediationScript),
		Metadata:          metadata,
	}}, nil
}

func resourceID(row checks.Row) string {
	for _, key := range []string{"arn", "resourceId", "resourceName"} {
		if v := row.Text(key); v != "" {
			return v
		}
	}
	return "unknown"
}
