package results

import (
	"math"
	"slices"
	"strings"
	"time"
)

// PillarSummary is the rollup for one pillar.
type PillarSummary struct {
	Pillar          Pillar  `json:"pillar"`
	Passed          int     `json:"passed"`
	Failed          int     `json:"failed"`
	Warnings        int     `json:"warnings"`
	NotApplicable   int     `json:"notApplicable"`
	Errors          int     `json:"errors"`
	Total           int     `json:"total"`
	Scored          int     `json:"scored"`
	ComplianceScore float64 `json:"complianceScore"`
}

// ScanSummary is derived from a result list and nothing else.
type ScanSummary struct {
	TotalChecks      int              `json:"totalChecks"`
	Passed           int              `json:"passed"`
	Failed           int              `json:"failed"`
	Warnings         int              `json:"warnings"`
	NotApplicable    int              `json:"notApplicable"`
	Errors           int              `json:"errors"`
	Timeouts         int              `json:"timeouts"`
	Cancelled        int              `json:"cancelled"`
	ComplianceScore  float64          `json:"complianceScore"`
	ByPillar         []PillarSummary  `json:"byPillar"`
	FailedBySeverity map[Severity]int `json:"failedBySeverity"`
	Duration         time.Duration    `json:"duration"`
}

// Summarize computes counts and scores for results.
//
// Pass weighs 100, Warning 60 and Fail 0. NotApplicable, Error, Timeout and
// Cancelled results are counted but never enter a denominator. A pillar score
// is the mean weight of its scored results; the overall score is the mean of
// the pillar scores that have at least one scored result, so small pillars
// carry the same weight as large ones. The output does not depend on input
// order.
func Summarize(results []CheckResult) ScanSummary {
	out := ScanSummary{
		TotalChecks:      len(results),
		ByPillar:         []PillarSummary{},
		FailedBySeverity: map[Severity]int{},
	}

	type acc struct {
		summary PillarSummary
		weight  float64
	}
	byPillar := make(map[Pillar]*acc)

	var (
		first time.Time
		last  time.Time
	)
	for _, r := range results {
		p := r.Pillar
		if p == "" {
			p = "unassigned"
		}
		a, ok := byPillar[p]
		if !ok {
			a = &acc{summary: PillarSummary{Pillar: p}}
			byPillar[p] = a
		}
		a.summary.Total++

		switch r.Status {
		case StatusPass:
			out.Passed++
			a.summary.Passed++
		case StatusFail:
			out.Failed++
			a.summary.Failed++
			if r.Severity != "" {
				out.FailedBySeverity[r.Severity]++
			}
		case StatusWarning:
			out.Warnings++
			a.summary.Warnings++
		case StatusNotApplicable:
			out.NotApplicable++
			a.summary.NotApplicable++
		case StatusTimeout:
			out.Errors++
			out.Timeouts++
			a.summary.Errors++
		case StatusCancelled:
			out.Errors++
			out.Cancelled++
			a.summary.Errors++
		default:
			out.Errors++
			a.summary.Errors++
		}
		if r.Status.Scored() {
			a.summary.Scored++
			a.weight += r.Status.Weight()
		}

		if !r.Timestamp.IsZero() {
			start := r.Timestamp.Add(-r.Duration)
			if first.IsZero() || start.Before(first) {
				first = start
			}
			if last.IsZero() || r.Timestamp.After(last) {
				last = r.Timestamp
			}
		}
	}

	for _, a := range byPillar {
		if a.summary.Scored > 0 {
			a.summary.ComplianceScore = round2(a.weight / float64(a.summary.Scored))
		}
		out.ByPillar = append(out.ByPillar, a.summary)
	}
	slices.SortFunc(out.ByPillar, func(a, b PillarSummary) int {
		if c := pillarIndex(a.Pillar) - pillarIndex(b.Pillar); c != 0 {
			return c
		}
		return strings.Compare(string(a.Pillar), string(b.Pillar))
	})

	// Unrounded pillar means, summed in pillar order so the result is stable
	// across input orders. Rounding happens once, on the overall score.
	var (
		pillarScoreSum float64
		scoredPillars  int
	)
	for _, ps := range out.ByPillar {
		if ps.Scored > 0 {
			pillarScoreSum += byPillar[ps.Pillar].weight / float64(ps.Scored)
			scoredPillars++
		}
	}

	if scoredPillars > 0 {
		out.ComplianceScore = round2(pillarScoreSum / float64(scoredPillars))
	}
	if !first.IsZero() && last.After(first) {
		out.Duration = last.Sub(first)
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
