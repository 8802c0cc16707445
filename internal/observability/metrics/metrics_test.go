package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("org_id", "123"),
		attribute.String("segment_type", "rule-based"),
		attribute.String("customer_id", "456"),
	)
	require.Len(t, attrs, 1)
	assert.Equal(t, attribute.Key("segment_type"), attrs[0].Key)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordSegmentCreated(context.Background(), "manual")
	m.RecordMembersWritten(context.Background(), "manual", 3)
}

func TestNewOnNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "segmentation"}, noop.NewMeterProvider())
	require.NoError(t, err)
	m.RecordSegmentCreated(context.Background(), "ml-clustering")
	m.RecordAnalyticsRun(context.Background(), "computed")
}
