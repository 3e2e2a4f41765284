package hedge

import (
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// scope is the instrumentation scope name for OpenTelemetry.
const scope = "github.com/kroma-labs/readhedge/hedge"

// config holds Decider settings.
type config struct {
	// TracerProvider is the tracer provider to use.
	// If not set, uses the global provider via otel.GetTracerProvider().
	TracerProvider trace.TracerProvider

	// MeterProvider is the meter provider to use.
	// If not set, uses the global provider via otel.GetMeterProvider().
	MeterProvider metric.MeterProvider

	// Logger receives a debug event per decision.
	// Default: zerolog.Nop()
	Logger zerolog.Logger
}

func newConfig(opts ...Option) *config {
	cfg := &config{
		TracerProvider: otel.GetTracerProvider(),
		MeterProvider:  otel.GetMeterProvider(),
		Logger:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = otel.GetTracerProvider()
	}
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = otel.GetMeterProvider()
	}
	return cfg
}

// Option configures a Decider.
type Option func(*config)

// WithTracerProvider sets the tracer provider for decision spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *config) {
		c.TracerProvider = tp
	}
}

// WithMeterProvider sets the meter provider for decision metrics.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *config) {
		c.MeterProvider = mp
	}
}

// WithLogger sets the logger for per-decision debug events.
func WithLogger(l zerolog.Logger) Option {
	return func(c *config) {
		c.Logger = l
	}
}
