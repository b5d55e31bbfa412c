package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	taskDuration *prom.HistogramVec
	taskOutcomes *prom.CounterVec
	runDuration  prom.Histogram
	runOutcomes  *prom.CounterVec
	concurrency  prom.Gauge
}

// NewPrometheusRecorder constructs and registers the metrics on reg (a new
// registry when nil).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		taskDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "reportbal",
			Name:      "task_duration_seconds",
			Help:      "Duration of individual report build tasks",
			Buckets:   prom.DefBuckets,
		}, []string{"result"}),
		taskOutcomes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "reportbal",
			Name:      "task_outcomes_total",
			Help:      "Task outcomes by terminal status",
		}, []string{"status"}),
		runDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: "reportbal",
			Name:      "run_duration_seconds",
			Help:      "Total run duration",
			Buckets:   prom.DefBuckets,
		}),
		runOutcomes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "reportbal",
			Name:      "run_outcomes_total",
			Help:      "Run outcomes by final status",
		}, []string{"outcome"}),
		concurrency: prom.NewGauge(prom.GaugeOpts{
			Namespace: "reportbal",
			Name:      "scheduler_concurrency",
			Help:      "Worker count used by the last scheduled run",
		}),
	}
	reg.MustRegister(pr.taskDuration, pr.taskOutcomes, pr.runDuration, pr.runOutcomes, pr.concurrency)
	return pr
}

func (pr *PrometheusRecorder) ObserveTaskDuration(d time.Duration, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	pr.taskDuration.WithLabelValues(result).Observe(d.Seconds())
}

func (pr *PrometheusRecorder) IncTaskOutcome(status string) {
	pr.taskOutcomes.WithLabelValues(status).Inc()
}

func (pr *PrometheusRecorder) ObserveRunDuration(d time.Duration) {
	pr.runDuration.Observe(d.Seconds())
}

func (pr *PrometheusRecorder) IncRunOutcome(outcome string) {
	pr.runOutcomes.WithLabelValues(outcome).Inc()
}

func (pr *PrometheusRecorder) SetConcurrency(n int) {
	pr.concurrency.Set(float64(n))
}
