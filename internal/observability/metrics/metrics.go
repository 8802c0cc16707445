package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes segmentation domain counters over OTLP.
type Metrics struct {
	segmentsCreated metric.Int64Counter
	segmentsDeleted metric.Int64Counter
	membersWritten  metric.Int64Counter
	analyticsRuns   metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(15*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New creates the domain instruments on the given provider.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "segmentation"
	}
	meter := provider.Meter(name)

	segmentsCreated, err := meter.Int64Counter("segmentation_segments_created_total")
	if err != nil {
		return nil, err
	}
	segmentsDeleted, err := meter.Int64Counter("segmentation_segments_deleted_total")
	if err != nil {
		return nil, err
	}
	membersWritten, err := meter.Int64Counter("segmentation_members_written_total")
	if err != nil {
		return nil, err
	}
	analyticsRuns, err := meter.Int64Counter("segmentation_analytics_runs_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		segmentsCreated: segmentsCreated,
		segmentsDeleted: segmentsDeleted,
		membersWritten:  membersWritten,
		analyticsRuns:   analyticsRuns,
	}, nil
}

func (m *Metrics) RecordSegmentCreated(ctx context.Context, segmentType string) {
	if m == nil {
		return
	}
	m.segmentsCreated.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("segment_type", segmentType))...))
}

func (m *Metrics) RecordSegmentDeleted(ctx context.Context, segmentType string) {
	if m == nil {
		return
	}
	m.segmentsDeleted.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("segment_type", segmentType))...))
}

func (m *Metrics) RecordMembersWritten(ctx context.Context, segmentType string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.membersWritten.Add(ctx, int64(count), metric.WithAttributes(FilterAttributes(attribute.String("segment_type", segmentType))...))
}

func (m *Metrics) RecordAnalyticsRun(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.analyticsRuns.Add(ctx, 1, metric.WithAttributes(FilterAttributes(attribute.String("outcome", outcome))...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

// org_id is deliberately absent: one series per tenant would not scale.
var allowedLabelKeys = map[attribute.Key]struct{}{
	"segment_type": {},
	"ml_type":      {},
	"outcome":      {},
	"reason":       {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
