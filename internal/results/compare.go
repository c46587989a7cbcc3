package results

import (
	"slices"
	"strings"
)

// Change is one keyed entry of a baseline diff. Baseline is empty for added
// keys and Current is empty for removed keys.
type Change struct {
	SubscriptionID string `json:"subscriptionId"`
	CheckID        string `json:"checkId"`
	Baseline       Status `json:"baselineStatus,omitempty"`
	Current        Status `json:"currentStatus,omitempty"`
}

type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
	Flat Direction = "flat"
)

type Trend struct {
	From      float64   `json:"from"`
	To        float64   `json:"to"`
	Delta     float64   `json:"delta"`
	Direction Direction `json:"direction"`
}

// BaselineDiff classifies every (subscription, check) key seen on either side.
//
// Added and Removed keys are reported but never counted as regressions or
// improvements: a check that appears for the first time has no prior state to
// regress from.
type BaselineDiff struct {
	NewFailures  []Change `json:"newFailures"`
	Improvements []Change `json:"improvements"`
	Unchanged    []Change `json:"unchanged"`
	Added        []Change `json:"added"`
	Removed      []Change `json:"removed"`
	ScoreTrend   Trend    `json:"scoreTrend"`
}

// HasRegressions reports whether any previously healthy check now fails.
func (d BaselineDiff) HasRegressions() bool {
	return len(d.NewFailures) > 0
}

// Compare diffs current against baseline keyed by (subscriptionId, checkId).
//
// A key whose baseline status was Pass or NotApplicable and whose current
// status is Fail is a new failure; Fail to Pass is an improvement; anything
// else present on both sides is unchanged. When several results share a key
// the worst status represents it. Output slices are sorted by key.
func Compare(current, baseline []CheckResult) BaselineDiff {
	cur := collapse(current)
	base := collapse(baseline)

	diff := BaselineDiff{
		NewFailures:  []Change{},
		Improvements: []Change{},
		Unchanged:    []Change{},
		Added:        []Change{},
		Removed:      []Change{},
	}

	for key, c := range cur {
		b, ok := base[key]
		if !ok {
			diff.Added = append(diff.Added, Change{SubscriptionID: c.subscriptionID, CheckID: c.checkID, Current: c.status})
			continue
		}
		change := Change{SubscriptionID: c.subscriptionID, CheckID: c.checkID, Baseline: b.status, Current: c.status}
		switch {
		case b.status.Healthy() && c.status == StatusFail:
			diff.NewFailures = append(diff.NewFailures, change)
		case b.status == StatusFail && c.status == StatusPass:
			diff.Improvements = append(diff.Improvements, change)
		default:
			diff.Unchanged = append(diff.Unchanged, change)
		}
	}
	for key, b := range base {
		if _, ok := cur[key]; ok {
			continue
		}
		diff.Removed = append(diff.Removed, Change{SubscriptionID: b.subscriptionID, CheckID: b.checkID, Baseline: b.status})
	}

	for _, list := range [][]Change{diff.NewFailures, diff.Improvements, diff.Unchanged, diff.Added, diff.Removed} {
		slices.SortFunc(list, func(a, b Change) int {
			return compareKeys(changeKey(a), changeKey(b))
		})
	}

	diff.ScoreTrend = computeTrend(Summarize(baseline).ComplianceScore, Summarize(current).ComplianceScore)
	return diff
}

type keyed struct {
	subscriptionID string
	checkID        string
	status         Status
}

// collapse keeps the worst status per key along with the ids as the results
// spelled them. Among equally bad results whose ids differ only in case, the
// lexically smallest spelling wins so the output does not depend on order.
func collapse(list []CheckResult) map[Key]keyed {
	out := make(map[Key]keyed, len(list))
	for _, r := range list {
		k := r.Key()
		candidate := keyed{
			subscriptionID: strings.TrimSpace(r.SubscriptionID),
			checkID:        strings.TrimSpace(r.CheckID),
			status:         r.Status,
		}
		existing, ok := out[k]
		if ok {
			switch rank := r.Status.rank(); {
			case existing.status.rank() > rank:
				continue
			case existing.status.rank() == rank && existing.spelling() <= candidate.spelling():
				continue
			}
		}
		out[k] = candidate
	}
	return out
}

func (k keyed) spelling() string {
	return k.subscriptionID + "/" + k.checkID
}

func changeKey(c Change) Key {
	return CheckResult{SubscriptionID: c.SubscriptionID, CheckID: c.CheckID}.Key()
}

func computeTrend(prev, curr float64) Trend {
	d := curr - prev

	dir := Flat
	if d > 0.00001 {
		dir = Up
	} else if d < -0.00001 {
		dir = Down
	}

	return Trend{
		From:      round2(prev),
		To:        round2(curr),
		Delta:     round2(d),
		Direction: dir,
	}
}
