package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestClassifyRefreshError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: RefreshReasonDeadlineExceeded},
		{name: "canceled", err: fmt.Errorf("load: %w", context.Canceled), want: RefreshReasonCanceled},
		{name: "validation", err: fmt.Errorf("bad rule: %w", ErrValidation), want: RefreshReasonValidation},
		{name: "lock_timeout", err: &pgconn.PgError{Code: "55P03"}, want: RefreshReasonLockTimeout},
		{name: "serialization", err: &pgconn.PgError{Code: "40001"}, want: RefreshReasonSerializationFailure},
		{name: "unique", err: gorm.ErrDuplicatedKey, want: RefreshReasonUniqueViolation},
		{name: "unknown", err: errors.New("boom"), want: RefreshReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyRefreshError(tc.err))
		})
	}
}

func TestObserveRefresh(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewRefreshMetrics(registry, Config{ServiceName: "segmentation", Environment: "test"})

	m.ObserveRefresh("rule-based", 12, 20*time.Millisecond, nil)
	m.ObserveRefresh("rule-based", 0, time.Millisecond, errors.New("boom"))
	m.ObserveRefresh("ml-clustering", 3, time.Millisecond, nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("rule-based", RefreshResultSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("rule-based", RefreshResultError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errors.WithLabelValues("rule-based", RefreshReasonUnknown)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("ml-clustering", RefreshResultSuccess)))
}

func TestNewRefreshMetricsToleratesDoubleRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()
	NewRefreshMetrics(registry, Config{})
	assert.NotPanics(t, func() { NewRefreshMetrics(registry, Config{}) })
}
