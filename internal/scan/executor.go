// Package scan evaluates checks against subscriptions with a bounded worker
// pool. Every (subscription, check) pair is one work unit and resolves to at
// least one terminal result, whatever the evaluator does.
package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/wafscan/wafscan/internal/checks"
	"github.com/wafscan/wafscan/internal/metrics"
	"github.com/wafscan/wafscan/internal/results"
	"golang.org/x/sync/errgroup"
)

// CapabilityProvider hands out the per-subscription capability evaluators
// query through. inventory.Client implements it.
type CapabilityProvider interface {
	Scope(subscriptionID string) checks.Capability
}

type Executor struct {
	capabilities CapabilityProvider
	cfg          Config
	reporter     Reporter
	logger       *slog.Logger
	now          func() time.Time
}

func NewExecutor(capabilities CapabilityProvider, cfg Config) (*Executor, error) {
	if capabilities == nil {
		return nil, errors.New("capability provider is nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Executor{
		capabilities: capabilities,
		cfg:          cfg.withDefaults(),
		logger:       slog.Default(),
		now:          time.Now,
	}, nil
}

func (e *Executor) SetReporter(r Reporter) {
	e.reporter = r
}

func (e *Executor) SetLogger(l *slog.Logger) {
	if l != nil {
		e.logger = l
	}
}

// Config returns the effective configuration, defaults applied.
func (e *Executor) Config() Config {
	return e.cfg
}

func (e *Executor) report(ev Event) {
	if e.reporter == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = e.now()
	}
	e.reporter.Report(ev)
}

type workUnit struct {
	subscriptionID string
	def            checks.Definition
}

// Scan lists the definitions matching filter and runs them.
func (e *Executor) Scan(ctx context.Context, reg *checks.Registry, subscriptions []string, filter checks.Filter) ([]results.CheckResult, error) {
	if reg == nil {
		return nil, errors.New("check registry is nil")
	}
	subs := normalizeSubscriptions(subscriptions)
	if len(subs) == 0 {
		return nil, errors.New("at least one subscription is required")
	}
	return e.Run(ctx, subs, reg.List(filter)), nil
}

// Run evaluates every definition against every subscription. The returned
// list holds at least one result per work unit, in the order units
// completed. Cancelling ctx resolves outstanding units as Cancelled.
func (e *Executor) Run(ctx context.Context, subscriptions []string, defs []checks.Definition) []results.CheckResult {
	subs := normalizeSubscriptions(subscriptions)
	units := make([]workUnit, 0, len(subs)*len(defs))
	for _, sub := range subs {
		for _, def := range defs {
			units = append(units, workUnit{subscriptionID: sub, def: def})
		}
	}
	if len(units) == 0 {
		return []results.CheckResult{}
	}

	start := e.now()
	total := int64(len(units))
	workers := normalizeWorkers(e.cfg.MaxParallelism, len(units))
	e.report(Event{Stage: StageScan, Total: total, Message: "scan started"})
	e.logger.Info("scan started",
		"subscriptions", len(subs),
		"checks", len(defs),
		"work_units", total,
		"max_parallelism", workers,
	)

	jobs := make(chan workUnit, len(units))
	outcomes := make(chan []results.CheckResult, len(units))
	var done atomic.Int64

	var g errgroup.Group
	for range workers {
		g.Go(func() error {
			for u := range jobs {
				list := e.runUnit(ctx, u)
				outcomes <- list

				n := done.Add(1)
				e.report(Event{
					Stage:          StageEvaluate,
					SubscriptionID: u.subscriptionID,
					CheckID:        u.def.ID,
					Current:        n,
					Total:          total,
					Message:        "scan progress",
				})
			}
			return nil
		})
	}

	for _, u := range units {
		jobs <- u
	}
	close(jobs)
	_ = g.Wait()
	close(outcomes)

	out := make([]results.CheckResult, 0, len(units))
	for list := range outcomes {
		out = append(out, list...)
	}

	elapsed := e.now().Sub(start)
	metrics.ScanDuration.Observe(elapsed.Seconds())
	e.report(Event{Stage: StageScan, Current: total, Total: total, Done: true, Err: ctx.Err()})
	e.logger.Info("scan finished", "work_units", total, "results", len(out), "duration", elapsed)
	return out
}

// runUnit resolves one work unit. It never returns an empty list.
func (e *Executor) runUnit(ctx context.Context, u workUnit) []results.CheckResult {
	start := e.now()
	if ctx.Err() != nil {
		return e.finish(u, start, e.failure(u, results.StatusCancelled, "scan cancelled before the check started", 0, errorMetadata(errorTypeCancelled, ctx.Err())))
	}

	metrics.ScanWorkUnitsInFlight.Inc()
	defer metrics.ScanWorkUnitsInFlight.Dec()

	unitCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()
	capability := e.capabilities.Scope(u.subscriptionID)

	var (
		lastErr  error
		attempts int
	)
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := backoffDelay(e.cfg.BaseDelay, attempt-1, e.cfg.MaxDelay)
			metrics.CheckRetriesTotal.WithLabelValues(string(u.def.Pillar)).Inc()
			e.report(Event{
				Stage:          StageRetry,
				SubscriptionID: u.subscriptionID,
				CheckID:        u.def.ID,
				Attempt:        attempt,
				Message:        "retrying check after transient error",
				Err:            lastErr,
			})
			e.logger.Debug("retrying check",
				"check_id", u.def.ID,
				"subscription_id", u.subscriptionID,
				"attempt", attempt,
				"max_attempts", e.cfg.MaxAttempts,
				"retry_delay", delay,
			)
			if err := sleepWithContext(unitCtx, delay); err != nil {
				return e.finish(u, start, e.interrupted(ctx, u, attempts, lastErr))
			}
		}

		attempts = attempt
		list, err := e.evaluate(unitCtx, u, capability)
		if err == nil {
			return e.finish(u, start, e.stamp(u, list, attempts))
		}
		lastErr = err

		if unitCtx.Err() != nil {
			return e.finish(u, start, e.interrupted(ctx, u, attempts, err))
		}
		var pe *panicError
		if errors.As(err, &pe) {
			r := e.failure(u, results.StatusError, fmt.Sprintf("check panicked: %v", pe.value), attempts, map[string]string{
				"errorType": "panic",
				"error":     fmt.Sprint(pe.value),
				"trace":     string(pe.stack),
			})
			e.logger.Error("check panicked", "check_id", u.def.ID, "subscription_id", u.subscriptionID, "panic", pe.value)
			return e.finish(u, start, r)
		}
		if !isRetryable(err) {
			break
		}
	}

	message := fmt.Sprintf("check failed: %v", lastErr)
	if isRetryable(lastErr) {
		message = fmt.Sprintf("check failed after %d attempts: %v", attempts, lastErr)
	}
	e.logger.Warn("check evaluation failed",
		"check_id", u.def.ID,
		"subscription_id", u.subscriptionID,
		"attempts", attempts,
		"err", lastErr,
	)
	return e.finish(u, start, e.failure(u, results.StatusError, message, attempts, errorMetadata(errorType(lastErr), lastErr)))
}

type evalOutcome struct {
	list []results.CheckResult
	err  error
}

type panicError struct {
	value any
	stack []byte
}

func (p *panicError) Error() string {
	return fmt.Sprintf("panic: %v", p.value)
}

// evaluate runs the evaluator in its own goroutine so that a unit whose
// deadline passes can be abandoned without waiting for it.
func (e *Executor) evaluate(ctx context.Context, u workUnit, capability checks.Capability) ([]results.CheckResult, error) {
	ch := make(chan evalOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- evalOutcome{err: &panicError{value: r, stack: debug.Stack()}}
			}
		}()
		list, err := u.def.Evaluator.Evaluate(ctx, u.subscriptionID, capability)
		ch <- evalOutcome{list: list, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case out := <-ch:
		return out.list, out.err
	}
}

// interrupted distinguishes scan cancellation from the unit's own deadline.
func (e *Executor) interrupted(ctx context.Context, u workUnit, attempts int, cause error) []results.CheckResult {
	if ctx.Err() != nil {
		return e.failure(u, results.StatusCancelled, "scan cancelled while the check was running", attempts, errorMetadata(errorTypeCancelled, cause))
	}
	return e.failure(u, results.StatusTimeout, fmt.Sprintf("check did not complete within %s", e.cfg.Timeout), attempts, errorMetadata(errorTypeTimeout, cause))
}

func (e *Executor) failure(u workUnit, status results.Status, message string, attempts int, metadata map[string]string) []results.CheckResult {
	r := results.CheckResult{
		Status:   status,
		Message:  message,
		Attempts: attempts,
		Metadata: metadata,
	}
	return e.stamp(u, []results.CheckResult{r}, attempts)
}

func errorMetadata(kind string, cause error) map[string]string {
	m := map[string]string{"errorType": kind}
	if cause != nil {
		m["error"] = cause.Error()
	}
	return m
}

// stamp fills the fields the executor owns. An evaluator that found nothing
// to inspect yields a single NotApplicable result.
func (e *Executor) stamp(u workUnit, list []results.CheckResult, attempts int) []results.CheckResult {
	if len(list) == 0 {
		list = []results.CheckResult{{
			Status:  results.StatusNotApplicable,
			Message: "no applicable resources found",
		}}
	}

	now := e.now().UTC()
	out := make([]results.CheckResult, 0, len(list))
	for _, r := range list {
		r = results.New(r)
		r.CheckID = u.def.ID
		r.SubscriptionID = u.subscriptionID
		r.Pillar = u.def.Pillar
		r.Severity = u.def.Severity
		r.Attempts = attempts
		r.Timestamp = now
		if !r.Status.Terminal() {
			r.Message = strings.TrimSpace("evaluator returned invalid status " + strconv.Quote(string(r.Status)) + ". " + r.Message)
			r.Status = results.StatusError
		}
		out = append(out, r)
	}
	return out
}

func (e *Executor) finish(u workUnit, start time.Time, list []results.CheckResult) []results.CheckResult {
	elapsed := e.now().Sub(start)
	pillar := string(u.def.Pillar)
	metrics.CheckEvaluationDuration.WithLabelValues(pillar).Observe(elapsed.Seconds())
	for i := range list {
		list[i].Duration = elapsed
		metrics.CheckEvaluationsTotal.WithLabelValues(pillar, string(list[i].Status)).Inc()
	}
	return list
}

func normalizeSubscriptions(subs []string) []string {
	seen := make(map[string]struct{}, len(subs))
	out := make([]string, 0, len(subs))
	for _, s := range subs {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		k := strings.ToLower(s)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, s)
	}
	return out
}

// normalizeWorkers keeps the worker count between 1 and the unit count.
func normalizeWorkers(workers, units int) int {
	return max(1, min(workers, units))
}
