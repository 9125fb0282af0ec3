package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	SchedulerJobBackfill  = "etl_backfill"
	SchedulerJobDetection = "detection"
)

const (
	SchedulerOutcomeOK      = "ok"
	SchedulerOutcomeError   = "error"
	SchedulerOutcomeSkipped = "skipped"
	SchedulerOutcomeTimeout = "timeout"
)

// SchedulerMetrics captures background job health signals.
type SchedulerMetrics struct {
	jobRuns        *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	jobTimeouts    *prometheus.CounterVec
	batchProcessed *prometheus.CounterVec
	ticksSkipped   *prometheus.CounterVec
}

var (
	schedulerMetricsOnce sync.Once
	schedulerMetrics     *SchedulerMetrics
)

// Scheduler returns the singleton scheduler metrics registry.
func Scheduler() *SchedulerMetrics {
	return SchedulerWithConfig(Config{})
}

// SchedulerWithConfig returns the singleton scheduler metrics registry using config labels.
func SchedulerWithConfig(cfg Config) *SchedulerMetrics {
	schedulerMetricsOnce.Do(func() {
		schedulerMetrics = newSchedulerMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return schedulerMetrics
}

// ResetSchedulerMetricsForTest resets the scheduler metrics singleton for tests.
func ResetSchedulerMetricsForTest() {
	schedulerMetricsOnce = sync.Once{}
	schedulerMetrics = nil
}

func newSchedulerMetrics(registerer prometheus.Registerer, cfg Config) *SchedulerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "roamsight"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service":     serviceName,
		"environment": environment,
	}

	m := &SchedulerMetrics{
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "roamsight_scheduler_job_runs_total",
			Help:        "Scheduler job runs by job and outcome.",
			ConstLabels: constLabels,
		}, []string{"job", "outcome"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "roamsight_scheduler_job_duration_seconds",
			Help:        "Scheduler job wall time.",
			ConstLabels: constLabels,
			Buckets:     prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"job"}),
		jobTimeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "roamsight_scheduler_job_timeouts_total",
			Help:        "Scheduler jobs cut short by their deadline.",
			ConstLabels: constLabels,
		}, []string{"job"}),
		batchProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "roamsight_scheduler_batch_processed_total",
			Help:        "Items processed per scheduler job.",
			ConstLabels: constLabels,
		}, []string{"job"}),
		ticksSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "roamsight_scheduler_ticks_skipped_total",
			Help:        "Ticks skipped because the previous run was still in flight.",
			ConstLabels: constLabels,
		}, []string{"job"}),
	}

	for _, c := range []prometheus.Collector{
		m.jobRuns, m.jobDuration, m.jobTimeouts, m.batchProcessed, m.ticksSkipped,
	} {
		if err := registerer.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				panic(err)
			}
		}
	}
	return m
}

// ObserveJob records one finished job run.
func (m *SchedulerMetrics) ObserveJob(job, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job, outcome).Inc()
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
	if outcome == SchedulerOutcomeTimeout {
		m.jobTimeouts.WithLabelValues(job).Inc()
	}
}

// AddBatchProcessed records items handled by a job run.
func (m *SchedulerMetrics) AddBatchProcessed(job string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.batchProcessed.WithLabelValues(job).Add(float64(n))
}

// TickSkipped records an overlapping tick that was dropped.
func (m *SchedulerMetrics) TickSkipped(job string) {
	if m == nil {
		return
	}
	m.ticksSkipped.WithLabelValues(job).Inc()
}

// OutcomeForError maps a job error to an outcome label.
func OutcomeForError(err error) string {
	switch {
	case err == nil:
		return SchedulerOutcomeOK
	case errors.Is(err, context.DeadlineExceeded):
		return SchedulerOutcomeTimeout
	default:
		return SchedulerOutcomeError
	}
}
