package scan

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type countingHandler struct {
	mu     sync.Mutex
	count  int
	levels []slog.Level
}

func (h *countingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *countingHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	h.count++
	h.levels = append(h.levels, r.Level)
	h.mu.Unlock()
	return nil
}

func (h *countingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *countingHandler) WithGroup(string) slog.Handler      { return h }

func (h *countingHandler) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

func TestLogReporterThrottlesProgress(t *testing.T) {
	t.Parallel()

	handler := &countingHandler{}
	reporter := &LogReporter{
		Logger:              slog.New(handler),
		ProgressInterval:    time.Hour,
		ProgressPercentStep: 5,
	}

	const total = 1000
	reporter.Report(Event{Stage: StageEvaluate, Current: 0, Total: total, Message: "scan progress"})
	for i := int64(1); i < total; i++ {
		reporter.Report(Event{Stage: StageEvaluate, Current: i, Total: total, Message: "scan progress"})
	}
	reporter.Report(Event{Stage: StageEvaluate, Current: total, Total: total, Message: "scan progress"})

	expected := 2 + int(int64(99)/reporter.ProgressPercentStep)
	if got := handler.Count(); got != expected {
		t.Fatalf("expected %d logs, got %d", expected, got)
	}
}

func TestLogReporterAlwaysLogsErrorsAndRetries(t *testing.T) {
	t.Parallel()

	handler := &countingHandler{}
	reporter := &LogReporter{Logger: slog.New(handler)}
	reporter.Report(Event{Stage: StageScan, Err: errors.New("boom")})
	reporter.Report(Event{Stage: StageRetry, CheckID: "SE01", Attempt: 2, Err: errors.New("throttled")})

	if got := handler.Count(); got != 2 {
		t.Fatalf("expected 2 logs, got %d", got)
	}
	if handler.levels[0] != slog.LevelError || handler.levels[1] != slog.LevelWarn {
		t.Fatalf("levels = %v, want [ERROR WARN]", handler.levels)
	}
}

func TestLogReporterSkipsSilentEvents(t *testing.T) {
	t.Parallel()

	handler := &countingHandler{}
	reporter := &LogReporter{Logger: slog.New(handler)}
	reporter.Report(Event{Stage: StageEvaluate})
	reporter.Report(Event{Stage: StageScan, Done: true})

	if got := handler.Count(); got != 1 {
		t.Fatalf("expected 1 log, got %d", got)
	}
}
