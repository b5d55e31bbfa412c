// Package metrics defines observability hooks for run and task metrics.
package metrics

import "time"

// Recorder defines observability hooks for run and task metrics.
// Implementations may forward to Prometheus, OpenTelemetry, etc.
type Recorder interface {
	ObserveTaskDuration(d time.Duration, success bool)
	IncTaskOutcome(status string) // succeeded|failed
	ObserveRunDuration(d time.Duration)
	IncRunOutcome(outcome string) // clean|partial|aborted
	SetConcurrency(n int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics are
// not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveTaskDuration(time.Duration, bool) {}
func (NoopRecorder) IncTaskOutcome(string)                   {}
func (NoopRecorder) ObserveRunDuration(time.Duration)        {}
func (NoopRecorder) IncRunOutcome(string)                    {}
func (NoopRecorder) SetConcurrency(int)                      {}
