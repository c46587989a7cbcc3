package scan

import "time"

const (
	StageScan     = "scan"
	StageEvaluate = "evaluate"
	StageRetry    = "retry"
)

// Event is a progress notification emitted while a scan runs.
type Event struct {
	Stage          string
	SubscriptionID string
	CheckID        string
	Current        int64
	Total          int64
	Attempt        int
	Message        string
	Done           bool
	Err            error
	At             time.Time
}

type Reporter interface {
	Report(Event)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(Event)

func (f ReporterFunc) Report(e Event) { f(e) }
