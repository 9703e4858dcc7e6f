package observability

import (
	"github.com/smallbiznis/classbill/internal/observability/metrics"
	"github.com/smallbiznis/classbill/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(
		NewTracingConfig,
		tracing.NewProvider,
		metrics.New,
	),
	// Force provider construction; nothing takes it as a dependency, the
	// middleware reads the otel global it installs.
	fx.Invoke(func(*sdktrace.TracerProvider) {}),
)
