package metrics

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const exportInterval = 10 * time.Second

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

func (c Config) serviceName() string {
	if name := strings.TrimSpace(c.ServiceName); name != "" {
		return name
	}
	return "formmetrics"
}

// Metrics holds the OTel instruments of the population engine. A nil
// *Metrics records nothing.
type Metrics struct {
	runs            metric.Int64Counter
	runDuration     metric.Float64Histogram
	mappingOutcomes metric.Int64Counter
	lockWait        metric.Float64Histogram
}

// NewProvider installs the global meter provider. Disabled configs get a
// noop provider so instruments stay valid.
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
	res := resource.NewWithAttributes(semconv.SchemaURL,
		semconv.ServiceName(cfg.serviceName()),
		semconv.DeploymentEnvironment(cfg.Environment),
	)
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(exportInterval))),
	)
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.StopHook(provider.Shutdown))
	}
	if log != nil {
		log.Info("otel metrics exporting",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}
	return provider, nil
}

// New registers the engine instruments on provider.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter(cfg.serviceName())
	m := &Metrics{}
	var err error

	if m.runs, err = meter.Int64Counter("formmetrics_population_runs_total",
		metric.WithDescription("Population runs by trigger and final status.")); err != nil {
		return nil, fmt.Errorf("runs counter: %w", err)
	}
	if m.runDuration, err = meter.Float64Histogram("formmetrics_population_run_duration_seconds",
		metric.WithDescription("Wall time of one submission population run."),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("run duration histogram: %w", err)
	}
	if m.mappingOutcomes, err = meter.Int64Counter("formmetrics_population_mappings_total",
		metric.WithDescription("Mapping evaluations by status and mapping type.")); err != nil {
		return nil, fmt.Errorf("mappings counter: %w", err)
	}
	if m.lockWait, err = meter.Float64Histogram("formmetrics_population_lock_wait_seconds",
		metric.WithDescription("Time spent waiting for the per-submission lock."),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("lock wait histogram: %w", err)
	}
	return m, nil
}

// RecordRun counts a finished population run and its duration.
func (m *Metrics) RecordRun(ctx context.Context, trigger, status string, duration time.Duration) {
	if m == nil {
		return
	}
	opt := metric.WithAttributes(FilterAttributes(
		attribute.String("trigger", strings.TrimSpace(trigger)),
		attribute.String("status", strings.TrimSpace(status)),
	)...)
	m.runs.Add(ctx, 1, opt)
	m.runDuration.Record(ctx, duration.Seconds(), opt)
}

// RecordMappingOutcome counts one audit record written by the engine.
func (m *Metrics) RecordMappingOutcome(ctx context.Context, mappingType, status string) {
	if m == nil {
		return
	}
	m.mappingOutcomes.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("mapping_type", strings.TrimSpace(mappingType)),
		attribute.String("status", strings.TrimSpace(status)),
	)...))
}

// RecordLockWait observes how long a run waited for its submission lock.
func (m *Metrics) RecordLockWait(ctx context.Context, wait time.Duration, acquired bool) {
	if m == nil {
		return
	}
	m.lockWait.Record(ctx, wait.Seconds(), metric.WithAttributes(FilterAttributes(
		attribute.String("acquired", strconv.FormatBool(acquired)),
	)...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	ctx := context.Background()
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "http", "http/protobuf":
		var opts []otlpmetrichttp.Option
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(ctx, opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(ctx, opts...)
	}
	return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
}

// allowedLabelKeys keeps ids such as submission or metric ids off metrics.
var allowedLabelKeys = map[attribute.Key]bool{
	"trigger":      true,
	"status":       true,
	"mapping_type": true,
	"acquired":     true,
	"endpoint":     true,
	"status_code":  true,
	"reason":       true,
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if allowedLabelKeys[attr.Key] {
			filtered = append(filtered, attr)
		}
	}
	return filtered
}
