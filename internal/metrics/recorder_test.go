package metrics

import (
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusRecorderCounts(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)

	pr.IncTaskOutcome("succeeded")
	pr.IncTaskOutcome("succeeded")
	pr.IncTaskOutcome("failed")
	pr.IncRunOutcome("partial")
	pr.SetConcurrency(4)
	pr.ObserveTaskDuration(120*time.Millisecond, true)
	pr.ObserveRunDuration(2 * time.Second)

	if got := testutil.ToFloat64(pr.taskOutcomes.WithLabelValues("succeeded")); got != 2 {
		t.Errorf("succeeded counter = %v, want 2", got)
	}
	if got := testutil.ToFloat64(pr.taskOutcomes.WithLabelValues("failed")); got != 1 {
		t.Errorf("failed counter = %v, want 1", got)
	}
	if got := testutil.ToFloat64(pr.concurrency); got != 4 {
		t.Errorf("concurrency gauge = %v, want 4", got)
	}
}

func TestNoopRecorderIsSafe(t *testing.T) {
	var r Recorder = NoopRecorder{}
	r.ObserveTaskDuration(time.Second, false)
	r.IncTaskOutcome("failed")
	r.ObserveRunDuration(time.Second)
	r.IncRunOutcome("clean")
	r.SetConcurrency(1)
}
