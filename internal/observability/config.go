package observability

import (
	"os"
	"strconv"
	"strings"

	"github.com/smallbiznis/classbill/internal/config"
	"github.com/smallbiznis/classbill/internal/observability/tracing"
)

// NewTracingConfig builds the tracing config from the app config plus
// OTEL_* environment overrides.
func NewTracingConfig(cfg config.Config) tracing.Config {
	enabled, _ := strconv.ParseBool(os.Getenv("OTEL_TRACES_ENABLED"))

	endpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	if endpoint == "" {
		endpoint = "localhost:4317"
	}

	ratio := 0.1
	if raw := strings.TrimSpace(os.Getenv("OTEL_TRACES_SAMPLER_RATIO")); raw != "" {
		if parsed, err := strconv.ParseFloat(raw, 64); err == nil {
			ratio = parsed
		}
	}

	return tracing.Config{
		Enabled:          enabled,
		ServiceName:      cfg.AppName,
		ServiceVersion:   cfg.AppVersion,
		Environment:      cfg.Environment,
		ExporterEndpoint: endpoint,
		SamplingRatio:    ratio,
	}
}
