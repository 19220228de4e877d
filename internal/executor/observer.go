package executor

import "time"

// Outcome labels reported to an Observer when an execution finishes. Failed
// executions report their Kind instead.
const (
	OutcomeSuccess   = "success"
	OutcomeInternal  = "internal_error"
	OutcomeCancelled = "cancelled"
)

// Step names reported to an Observer.
const (
	StepCompile = "compile"
	StepRun     = "run"
)

// Observer receives execution lifecycle events. Implementations must be safe
// for concurrent use.
type Observer interface {
	ExecutionStarted(language string)
	ExecutionFinished(language, outcome string, total time.Duration)
	StepFinished(language, step string, elapsed time.Duration, ok bool)
}

// NoopObserver discards every event.
type NoopObserver struct{}

func (NoopObserver) ExecutionStarted(string) {}

func (NoopObserver) ExecutionFinished(string, string, time.Duration) {}

func (NoopObserver) StepFinished(string, string, time.Duration, bool) {}
