// Package jobmetrics instruments asynq task handlers.
package jobmetrics

import (
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
)

// Task outcomes. A retry outcome means asynq will run the task again; a
// skipped task was dropped as unprocessable.
const (
	OutcomeSuccess = "success"
	OutcomeRetry   = "retry"
	OutcomeSkipped = "skipped"
)

// Metrics counts task runs by type and outcome.
type Metrics struct {
	runs     *prometheus.CounterVec
	failures *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics registers the collectors on registerer, or on the default
// registerer when nil.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "console_jobs_total",
			Help: "Task executions by task type and outcome.",
		}, []string{"job", "outcome"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "console_jobs_failures_total",
			Help: "Task executions that returned an error.",
		}, []string{"job"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "console_job_duration_seconds",
			Help:    "Task execution time in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
	}
	registerer.MustRegister(m.runs, m.failures, m.duration)
	return m
}

// Run measures one execution of a task.
type Run struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track starts measuring a run of job. A nil Metrics yields a no-op Run.
func (m *Metrics) Track(job string) *Run {
	return &Run{metrics: m, job: job, start: time.Now()}
}

// End records the outcome of err and returns it unchanged.
func (r *Run) End(err error) error {
	if r == nil || r.metrics == nil {
		return err
	}
	outcome := Outcome(err)
	if err != nil {
		r.metrics.failures.WithLabelValues(r.job).Inc()
	}
	r.metrics.runs.WithLabelValues(r.job, outcome).Inc()
	r.metrics.duration.WithLabelValues(r.job).Observe(time.Since(r.start).Seconds())
	return err
}

// Outcome classifies a handler result the way asynq will treat it.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, asynq.SkipRetry):
		return OutcomeSkipped
	default:
		return OutcomeRetry
	}
}
