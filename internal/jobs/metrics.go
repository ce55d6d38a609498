package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the worker's collectors: per-job run accounting plus the
// ledger integrity gauges the alerting rules watch.
type Metrics struct {
	runs        *prometheus.CounterVec
	failures    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
	imbalance   prometheus.Gauge
	drift       prometheus.Gauge
	checkedAt   prometheus.Gauge
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker times one job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End records the run and hands err back unchanged.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	outcome := "ok"
	if err != nil {
		outcome = "failed"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	} else {
		t.metrics.lastSuccess.WithLabelValues(t.job).SetToCurrentTime()
	}
	t.metrics.runs.WithLabelValues(t.job, outcome).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// SetIntegrity publishes the standing ledger alert. Both gauges drop to zero
// once the ledger is corrected.
func (m *Metrics) SetIntegrity(imbalance float64, driftedAccounts int, checkedAt time.Time) {
	if m == nil {
		return
	}
	m.imbalance.Set(imbalance)
	m.drift.Set(float64(driftedAccounts))
	m.checkedAt.Set(float64(checkedAt.Unix()))
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gl_jobs_total",
		Help: "Job runs by job and outcome.",
	}, []string{"job", "outcome"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gl_jobs_failures_total",
		Help: "Failed job runs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gl_job_duration_seconds",
		Help:    "Job run duration.",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
	}, []string{"job"})
	lastSuccess := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gl_job_last_success_timestamp_seconds",
		Help: "Unix time of the last successful run per job.",
	}, []string{"job"})
	imbalance := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gl_ledger_imbalance",
		Help: "Absolute difference between total debits and total credits across the ledger.",
	})
	drift := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gl_balance_drift_accounts",
		Help: "Accounts whose cached balance differs from the balance derived from lines.",
	})
	checkedAt := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gl_integrity_checked_timestamp_seconds",
		Help: "Unix time of the integrity report behind the ledger gauges.",
	})
	registerer.MustRegister(runs, failures, duration, lastSuccess, imbalance, drift, checkedAt)
	return &Metrics{
		runs:        runs,
		failures:    failures,
		duration:    duration,
		lastSuccess: lastSuccess,
		imbalance:   imbalance,
		drift:       drift,
		checkedAt:   checkedAt,
	}
}
