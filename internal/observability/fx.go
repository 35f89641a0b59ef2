package observability

import (
	"github.com/smallbiznis/formmetrics/internal/observability/logger"
	"github.com/smallbiznis/formmetrics/internal/observability/metrics"
	"github.com/smallbiznis/formmetrics/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(
		LoadConfig,
		Config.Logger,
		Config.Tracing,
		Config.Metrics,
		Config.Gorm,
	),
	fx.Provide(
		logger.New,
		tracing.NewProvider,
		metrics.NewProvider,
		metrics.New,
		metrics.NewHTTPMetrics,
		metrics.WorkerWithConfig,
	),
	// The tracer provider has no consumers but must be built to register globally.
	fx.Invoke(func(*sdktrace.TracerProvider) {}),
)
