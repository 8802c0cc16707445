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
	RefreshResultSuccess = "success"
	RefreshResultError   = "error"
)

const (
	RefreshReasonDeadlineExceeded     = "deadline_exceeded"
	RefreshReasonCanceled             = "canceled"
	RefreshReasonLockTimeout          = "lock_timeout"
	RefreshReasonSerializationFailure = "serialization_failure"
	RefreshReasonUniqueViolation      = "unique_violation"
	RefreshReasonValidation           = "validation"
	RefreshReasonUnknown              = "unknown"
)

// ErrValidation marks errors the refresh metrics should count as caller mistakes.
// Domain packages wrap their validation sentinels with it through IsValidation.
var ErrValidation = errors.New("validation")

// RefreshMetrics tracks segment membership refreshes.
type RefreshMetrics struct {
	runs       *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	errors     *prometheus.CounterVec
	members    *prometheus.HistogramVec
	iterations prometheus.Histogram
}

var (
	refreshMetricsOnce sync.Once
	refreshMetrics     *RefreshMetrics
)

// Refresh returns the process-wide refresh metrics registered on the default registry.
func Refresh() *RefreshMetrics {
	return RefreshWithConfig(Config{})
}

// RefreshWithConfig returns the process-wide refresh metrics using config labels.
func RefreshWithConfig(cfg Config) *RefreshMetrics {
	refreshMetricsOnce.Do(func() {
		refreshMetrics = NewRefreshMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return refreshMetrics
}

// NewRefreshMetrics registers refresh collectors on registerer.
func NewRefreshMetrics(registerer prometheus.Registerer, cfg Config) *RefreshMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "segmentation"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	m := &RefreshMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "segmentation_refresh_runs_total",
			Help:        "Segment membership refreshes by segment type and result.",
			ConstLabels: constLabels,
		}, []string{"segment_type", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "segmentation_refresh_duration_seconds",
			Help:        "Wall time of a membership refresh, lock wait included.",
			Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			ConstLabels: constLabels,
		}, []string{"segment_type"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "segmentation_refresh_errors_total",
			Help:        "Failed membership refreshes by classified reason.",
			ConstLabels: constLabels,
		}, []string{"segment_type", "reason"}),
		members: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "segmentation_refresh_members",
			Help:        "Member count written by a refresh.",
			Buckets:     prometheus.ExponentialBuckets(1, 4, 10),
			ConstLabels: constLabels,
		}, []string{"segment_type"}),
		iterations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "segmentation_kmeans_iterations",
			Help:        "Lloyd iterations until k-means converged or hit the cap.",
			Buckets:     []float64{1, 2, 5, 10, 20, 50, 100, 250},
			ConstLabels: constLabels,
		}),
	}

	for _, c := range []prometheus.Collector{m.runs, m.duration, m.errors, m.members, m.iterations} {
		if err := registerer.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				panic(err)
			}
		}
	}
	return m
}

// ObserveRefresh records the outcome of one refresh.
func (m *RefreshMetrics) ObserveRefresh(segmentType string, members int, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(segmentType).Observe(elapsed.Seconds())
	if err != nil {
		m.runs.WithLabelValues(segmentType, RefreshResultError).Inc()
		m.errors.WithLabelValues(segmentType, ClassifyRefreshError(err)).Inc()
		return
	}
	m.runs.WithLabelValues(segmentType, RefreshResultSuccess).Inc()
	m.members.WithLabelValues(segmentType).Observe(float64(members))
}

func (m *RefreshMetrics) ObserveIterations(n int) {
	if m == nil {
		return
	}
	m.iterations.Observe(float64(n))
}

// ClassifyRefreshError maps a refresh failure onto a bounded reason label.
func ClassifyRefreshError(err error) string {
	if err == nil {
		return RefreshReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return RefreshReasonDeadlineExceeded
	}
	if errors.Is(err, context.Canceled) {
		return RefreshReasonCanceled
	}
	if errors.Is(err, ErrValidation) {
		return RefreshReasonValidation
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return RefreshReasonUniqueViolation
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03":
			return RefreshReasonLockTimeout
		case "40001":
			return RefreshReasonSerializationFailure
		case "23505":
			return RefreshReasonUniqueViolation
		}
	}
	return RefreshReasonUnknown
}
