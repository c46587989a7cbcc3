package scan

import (
	"log/slog"
	"sync"
	"time"
)

const (
	defaultProgressInterval    = 5 * time.Second
	defaultProgressPercentStep = int64(10)
)

type progressState struct {
	lastLoggedAt      time.Time
	lastLoggedPercent int64
}

// LogReporter writes scan events to slog. Evaluate progress is throttled by
// time and percent step; retries, errors, and completion always log.
type LogReporter struct {
	Logger              *slog.Logger
	ProgressInterval    time.Duration
	ProgressPercentStep int64

	mu    sync.Mutex
	state map[string]progressState
}

func (r *LogReporter) Report(e Event) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := e.At
	if now.IsZero() {
		now = time.Now()
	}

	attrs := []any{"stage", e.Stage}
	if e.SubscriptionID != "" {
		attrs = append(attrs, "subscription_id", e.SubscriptionID)
	}
	if e.CheckID != "" {
		attrs = append(attrs, "check_id", e.CheckID)
	}
	if e.Attempt > 0 {
		attrs = append(attrs, "attempt", e.Attempt)
	}
	if e.Current != 0 || e.Total != 0 {
		attrs = append(attrs, "current", e.Current, "total", e.Total)
	}

	message := e.Message
	if e.Err != nil {
		if message == "" {
			message = e.Stage + " failed"
		}
		attrs = append(attrs, "err", e.Err)
		if e.Stage == StageRetry {
			logger.Warn(message, attrs...)
			return
		}
		logger.Error(message, attrs...)
		return
	}
	if message == "" {
		if !e.Done {
			return
		}
		message = "scan complete"
	}
	if !r.shouldLog(now, e) {
		return
	}
	logger.Info(message, attrs...)
}

func (r *LogReporter) shouldLog(now time.Time, e Event) bool {
	if e.Done || e.Total <= 1 || e.Current <= 0 || e.Current >= e.Total {
		r.record(now, e)
		return true
	}

	interval := r.ProgressInterval
	if interval <= 0 {
		interval = defaultProgressInterval
	}
	step := r.ProgressPercentStep
	if step <= 0 {
		step = defaultProgressPercentStep
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == nil {
		r.state = make(map[string]progressState)
	}
	state := r.state[e.Stage]
	percent := progressPercent(e.Current, e.Total)
	if !state.lastLoggedAt.IsZero() && now.Sub(state.lastLoggedAt) < interval && percent < state.lastLoggedPercent+step {
		return false
	}
	r.state[e.Stage] = progressState{lastLoggedAt: now, lastLoggedPercent: (percent / step) * step}
	return true
}

func (r *LogReporter) record(now time.Time, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == nil {
		r.state = make(map[string]progressState)
	}
	r.state[e.Stage] = progressState{lastLoggedAt: now, lastLoggedPercent: progressPercent(e.Current, e.Total)}
}

func progressPercent(current, total int64) int64 {
	switch {
	case total <= 0 || current <= 0:
		return 0
	case current >= total:
		return 100
	default:
		return (current * 100) / total
	}
}
