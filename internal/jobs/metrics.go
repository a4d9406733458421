// Package jobmetrics instruments background job runs.
package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	statusSuccess = "success"
	statusFailure = "failure"
)

// Metrics holds the job collectors.
type Metrics struct {
	runs     *prometheus.CounterVec
	inFlight *prometheus.GaugeVec
	affected *prometheus.CounterVec
	skipped  *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the collectors on registerer, or once on the default
// registerer when it is nil.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer != nil {
		return register(registerer)
	}
	defaultOnce.Do(func() { defaultMetrics = register(prometheus.DefaultRegisterer) })
	return defaultMetrics
}

func register(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "console_jobs_total",
			Help: "Finished job runs by job and status.",
		}, []string{"job", "status"}),
		inFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "console_jobs_in_flight",
			Help: "Job runs currently executing.",
		}, []string{"job"}),
		affected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "console_jobs_rows_affected_total",
			Help: "Rows changed by job runs.",
		}, []string{"job"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "console_jobs_skipped_total",
			Help: "Work items a job run passed over.",
		}, []string{"job"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "console_job_duration_seconds",
			Help:    "Job run duration.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
		}, []string{"job"}),
	}
	registerer.MustRegister(m.runs, m.inFlight, m.affected, m.skipped, m.duration)
	return m
}

// Tracker instruments one run. A Tracker from nil Metrics records nothing.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track starts timing a run of job.
func (m *Metrics) Track(job string) *Tracker {
	t := &Tracker{metrics: m, job: job, start: time.Now()}
	if t.live() {
		m.inFlight.WithLabelValues(job).Inc()
	}
	return t
}

func (t *Tracker) live() bool {
	return t != nil && t.metrics != nil && t.job != ""
}

// Affected adds n changed rows.
func (t *Tracker) Affected(n int64) {
	if t.live() && n > 0 {
		t.metrics.affected.WithLabelValues(t.job).Add(float64(n))
	}
}

// Skipped counts one passed-over work item.
func (t *Tracker) Skipped() {
	if t.live() {
		t.metrics.skipped.WithLabelValues(t.job).Inc()
	}
}

// End records the outcome and returns err unchanged.
func (t *Tracker) End(err error) error {
	if !t.live() {
		return err
	}
	status := statusSuccess
	if err != nil {
		status = statusFailure
	}
	t.metrics.inFlight.WithLabelValues(t.job).Dec()
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}
