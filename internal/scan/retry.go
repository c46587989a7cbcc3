package scan

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/wafscan/wafscan/internal/checks"
)

// backoffDelay returns the wait before retry number n (1-based): base, then
// doubling, capped at maxDelay.
func backoffDelay(base time.Duration, n int, maxDelay time.Duration) time.Duration {
	if n <= 0 || base <= 0 {
		return 0
	}

	delay := base
	for i := 1; i < n; i++ {
		if maxDelay > 0 && delay > maxDelay/2 {
			delay = maxDelay
			break
		}
		delay *= 2
	}
	if maxDelay > 0 && delay > maxDelay {
		return maxDelay
	}
	return delay
}

// isRetryable reports whether err is worth another attempt. The caller must
// already have ruled out the unit's own deadline and scan cancellation.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if checks.IsPermission(err) {
		return false
	}
	if checks.IsTransient(err) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var statusErr interface {
		HTTPStatusCode() int
	}
	if errors.As(err, &statusErr) {
		code := statusErr.HTTPStatusCode()
		return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
	}

	if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
		return true
	}
	var timeoutErr interface {
		Timeout() bool
	}
	return errors.As(err, &timeoutErr) && timeoutErr.Timeout()
}

const (
	errorTypeTimeout   = "timeout"
	errorTypeCancelled = "cancelled"
)

func errorType(err error) string {
	switch {
	case checks.IsPermission(err):
		return "permission"
	case isRetryable(err):
		return "transient"
	default:
		return "error"
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
