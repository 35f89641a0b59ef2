package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("status", "Success"),
		attribute.String("submission_id", "456"),
		attribute.String("mapping_type", "Direct"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	if attrs[0].Key != "status" && attrs[1].Key != "status" {
		t.Fatalf("expected status to be retained")
	}
	if attrs[0].Key != "mapping_type" && attrs[1].Key != "mapping_type" {
		t.Fatalf("expected mapping_type to be retained")
	}
}

func TestRecordMappingOutcome(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := New(Config{ServiceName: "formmetrics"}, provider)
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordMappingOutcome(ctx, "Direct", "Success")
	m.RecordMappingOutcome(ctx, "Direct", "Success")
	m.RecordRun(ctx, "api", "completed", 20*time.Millisecond)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	var outcomes int64
	for _, scope := range rm.ScopeMetrics {
		for _, item := range scope.Metrics {
			if item.Name != "formmetrics_population_mappings_total" {
				continue
			}
			sum, ok := item.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, point := range sum.DataPoints {
				outcomes += point.Value
			}
		}
	}
	require.Equal(t, int64(2), outcomes)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordRun(context.Background(), "api", "completed", time.Second)
	m.RecordMappingOutcome(context.Background(), "Direct", "Failed")
	m.RecordLockWait(context.Background(), time.Second, false)
}

func TestRecordLockWait(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := New(Config{}, provider)
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordLockWait(ctx, 5*time.Millisecond, true)
	m.RecordLockWait(ctx, time.Second, false)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	var observations uint64
	for _, scope := range rm.ScopeMetrics {
		for _, item := range scope.Metrics {
			if item.Name != "formmetrics_population_lock_wait_seconds" {
				continue
			}
			hist, ok := item.Data.(metricdata.Histogram[float64])
			require.True(t, ok)
			require.Len(t, hist.DataPoints, 2)
			for _, point := range hist.DataPoints {
				observations += point.Count
			}
		}
	}
	require.Equal(t, uint64(2), observations)
}
