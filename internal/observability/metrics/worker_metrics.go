package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	WorkerReasonDeadlineExceeded     = "deadline_exceeded"
	WorkerReasonDBLockTimeout        = "db_lock_timeout"
	WorkerReasonSerializationFailure = "serialization_failure"
	WorkerReasonUniqueViolation      = "unique_violation"
	WorkerReasonLockContended        = "lock_contended"
	WorkerReasonNotFound             = "not_found"
	WorkerReasonUnknown              = "unknown"
)

// ErrLockContended marks work abandoned while another runner held its lock.
var ErrLockContended = errors.New("lock_contended")

// WorkerMetrics captures population worker health for freshness alerts.
type WorkerMetrics struct {
	batches    *prometheus.CounterVec
	processed  *prometheus.CounterVec
	failures   *prometheus.CounterVec
	duration   prometheus.Observer
	runLoopLag prometheus.Observer
	backlog    prometheus.Gauge
}

var (
	workerMetricsOnce sync.Once
	workerMetrics     *WorkerMetrics
)

// Worker returns the singleton worker metrics registry.
func Worker() *WorkerMetrics {
	return WorkerWithConfig(Config{})
}

// WorkerWithConfig returns the singleton worker metrics registry using config labels.
func WorkerWithConfig(cfg Config) *WorkerMetrics {
	workerMetricsOnce.Do(func() {
		workerMetrics = NewWorkerMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return workerMetrics
}

// NewWorkerMetrics registers worker collectors on registerer.
func NewWorkerMetrics(registerer prometheus.Registerer, cfg Config) *WorkerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "formmetrics"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	batches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "formmetrics_worker_batches_total",
		Help:        "Population worker batches by outcome.",
		ConstLabels: constLabels,
	}, []string{"outcome"})
	processed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "formmetrics_worker_submissions_total",
		Help:        "Submissions handled by the population worker.",
		ConstLabels: constLabels,
	}, []string{"status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "formmetrics_worker_failures_total",
		Help:        "Population worker failures by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"reason"})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "formmetrics_worker_batch_duration_seconds",
		Help:        "Population worker batch latency.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		ConstLabels: constLabels,
	})
	runLoopLag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "formmetrics_worker_runloop_lag_seconds",
		Help:        "Population worker run loop lag beyond the poll interval.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		ConstLabels: constLabels,
	})
	backlog := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "formmetrics_worker_last_batch_size",
		Help:        "Candidates picked up by the most recent worker batch.",
		ConstLabels: constLabels,
	})

	registerer.MustRegister(batches, processed, failures, duration, runLoopLag, backlog)

	return &WorkerMetrics{
		batches:    batches,
		processed:  processed,
		failures:   failures,
		duration:   duration,
		runLoopLag: runLoopLag,
		backlog:    backlog,
	}
}

// ObserveBatch records a finished batch with its candidate count.
func (m *WorkerMetrics) ObserveBatch(candidates int, duration time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case candidates == 0:
		outcome = "empty"
	}
	m.batches.WithLabelValues(outcome).Inc()
	m.duration.Observe(duration.Seconds())
	m.backlog.Set(float64(candidates))
}

// IncProcessed counts one submission handled with the given run status.
func (m *WorkerMetrics) IncProcessed(status string) {
	if m == nil {
		return
	}
	m.processed.WithLabelValues(status).Inc()
}

// IncFailure counts a failed submission classified by reason.
func (m *WorkerMetrics) IncFailure(err error) {
	if m == nil || err == nil {
		return
	}
	m.failures.WithLabelValues(ClassifyWorkerReason(err)).Inc()
}

// ObserveRunLoopLag records lag between the scheduled tick and actual run start.
func (m *WorkerMetrics) ObserveRunLoopLag(duration time.Duration) {
	if m == nil {
		return
	}
	if duration < 0 {
		duration = 0
	}
	m.runLoopLag.Observe(duration.Seconds())
}

// ClassifyWorkerReason maps worker errors to low-cardinality reasons.
func ClassifyWorkerReason(err error) string {
	switch {
	case err == nil:
		return WorkerReasonUnknown
	case errors.Is(err, ErrLockContended):
		return WorkerReasonLockContended
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return WorkerReasonDeadlineExceeded
	case errors.Is(err, gorm.ErrRecordNotFound):
		return WorkerReasonNotFound
	case hasPGCode(err, "55P03"):
		return WorkerReasonDBLockTimeout
	case hasPGCode(err, "40001"):
		return WorkerReasonSerializationFailure
	case errors.Is(err, gorm.ErrDuplicatedKey), hasPGCode(err, "23505"):
		return WorkerReasonUniqueViolation
	default:
		return WorkerReasonUnknown
	}
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}
