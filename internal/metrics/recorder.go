// Package metrics provides observability hooks for the generation
// pipeline. Components receive a Recorder by injection; NoopRecorder is
// the default so callers never need nil checks.
package metrics

import "time"

// OutcomeLabel enumerates terminal job outcomes for counters.
type OutcomeLabel string

const (
	OutcomeSuccess   OutcomeLabel = "success"
	OutcomeFailed    OutcomeLabel = "failed"
	OutcomeAbandoned OutcomeLabel = "abandoned"
)

// Recorder defines observability hooks for generation job metrics.
// Implementations may forward to Prometheus, OpenTelemetry, etc.
type Recorder interface {
	ObserveGenerationDuration(d time.Duration, outcome OutcomeLabel)
	IncJobOutcome(outcome OutcomeLabel)
	IncRetry()
	IncRetryExhausted()
	SetQueueDepth(n int)
	SetActiveJobs(n int)
	SetKnownFiles(n int)
	IncEventsDropped()
}

// NoopRecorder is a Recorder that does nothing (default when metrics
// are not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveGenerationDuration(time.Duration, OutcomeLabel) {}
func (NoopRecorder) IncJobOutcome(OutcomeLabel)                            {}
func (NoopRecorder) IncRetry()                                             {}
func (NoopRecorder) IncRetryExhausted()                                    {}
func (NoopRecorder) SetQueueDepth(int)                                     {}
func (NoopRecorder) SetActiveJobs(int)                                     {}
func (NoopRecorder) SetKnownFiles(int)                                     {}
func (NoopRecorder) IncEventsDropped()                                     {}
