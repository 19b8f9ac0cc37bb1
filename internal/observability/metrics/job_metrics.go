package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	JobErrorTypeDeadlineExceeded = "deadline_exceeded"
	JobErrorTypeModel            = "model"
	JobErrorTypeParse            = "parse"
	JobErrorTypeDB               = "db"
	JobErrorTypeUnknown          = "unknown"
)

// JobMetrics captures AI job queue health signals.
type JobMetrics struct {
	jobRuns     *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
	jobErrors   *prometheus.CounterVec
	queueWait   *prometheus.HistogramVec
	pushEvents  *prometheus.CounterVec
}

var (
	jobMetricsOnce sync.Once
	jobMetrics     *JobMetrics
)

// Jobs returns the singleton job metrics registry.
func Jobs() *JobMetrics {
	return JobsWithConfig(Config{})
}

// JobsWithConfig returns the singleton job metrics registry using config labels.
func JobsWithConfig(cfg Config) *JobMetrics {
	jobMetricsOnce.Do(func() {
		jobMetrics = newJobMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return jobMetrics
}

// ResetJobMetricsForTest resets the job metrics singleton for tests.
func ResetJobMetricsForTest() {
	jobMetricsOnce = sync.Once{}
	jobMetrics = nil
}

func newJobMetrics(registerer prometheus.Registerer, cfg Config) *JobMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "pulseform"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "pulseform_ai_job_runs_total",
		Help:        "AI job runs by operation and terminal status.",
		ConstLabels: constLabels,
	}, []string{"operation", "status"})
	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "pulseform_ai_job_duration_seconds",
		Help:        "AI job latency from claim to terminal state.",
		Buckets:     []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60, 120, 180, 300},
		ConstLabels: constLabels,
	}, []string{"operation"})
	jobErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "pulseform_ai_job_errors_total",
		Help:        "AI job errors by low-cardinality type.",
		ConstLabels: constLabels,
	}, []string{"operation", "error_type"})
	queueWait := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "pulseform_ai_job_queue_wait_seconds",
		Help:        "Time jobs spend queued before a worker claims them.",
		Buckets:     []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
		ConstLabels: constLabels,
	}, []string{"operation"})
	pushEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "pulseform_push_events_total",
		Help:        "Progress events published to user streams.",
		ConstLabels: constLabels,
	}, []string{"status"})

	registerer.MustRegister(jobRuns, jobDuration, jobErrors, queueWait, pushEvents)

	return &JobMetrics{
		jobRuns:     jobRuns,
		jobDuration: jobDuration,
		jobErrors:   jobErrors,
		queueWait:   queueWait,
		pushEvents:  pushEvents,
	}
}

// IncJobRun increments the run counter for an operation and terminal status.
func (m *JobMetrics) IncJobRun(operation, status string) {
	if m == nil || m.jobRuns == nil {
		return
	}
	m.jobRuns.WithLabelValues(operation, status).Inc()
}

// ObserveJobDuration records job latency in seconds.
func (m *JobMetrics) ObserveJobDuration(operation string, duration time.Duration) {
	if m == nil || m.jobDuration == nil {
		return
	}
	m.jobDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// IncJobError increments the job error counter with classification.
func (m *JobMetrics) IncJobError(operation string, err error) {
	if m == nil || m.jobErrors == nil || err == nil {
		return
	}
	m.jobErrors.WithLabelValues(operation, ClassifyJobError(err)).Inc()
}

// ObserveQueueWait records how long the job sat queued.
func (m *JobMetrics) ObserveQueueWait(operation string, duration time.Duration) {
	if m == nil || m.queueWait == nil {
		return
	}
	if duration < 0 {
		duration = 0
	}
	m.queueWait.WithLabelValues(operation).Observe(duration.Seconds())
}

// IncPushEvent increments the progress event counter by status.
func (m *JobMetrics) IncPushEvent(status string) {
	if m == nil || m.pushEvents == nil {
		return
	}
	m.pushEvents.WithLabelValues(status).Inc()
}

// ClassifyJobError maps job errors to low-cardinality types.
func ClassifyJobError(err error) string {
	if err == nil {
		return JobErrorTypeUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return JobErrorTypeDeadlineExceeded
	}
	msg := err.Error()
	switch {
	case strings.HasPrefix(msg, "model_"):
		return JobErrorTypeModel
	case strings.HasPrefix(msg, "parse_failure"), strings.HasPrefix(msg, "schema_violation"):
		return JobErrorTypeParse
	case isDBError(err):
		return JobErrorTypeDB
	default:
		return JobErrorTypeUnknown
	}
}

func isDBError(err error) bool {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	return errors.Is(err, gorm.ErrInvalidDB) ||
		errors.Is(err, gorm.ErrInvalidTransaction) ||
		errors.Is(err, gorm.ErrMissingWhereClause) ||
		errors.Is(err, gorm.ErrDuplicatedKey)
}
