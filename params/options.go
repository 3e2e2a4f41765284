package params

import (
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// scope is the instrumentation scope name for OpenTelemetry.
const scope = "github.com/kroma-labs/readhedge/params"

// config holds Store construction settings.
type config struct {
	// Defaults are the values the store starts with and Reset restores.
	Defaults Parameters

	// Logger receives one event per accepted or rejected change.
	// Default: zerolog.Nop()
	Logger zerolog.Logger

	// MeterProvider is the meter provider to use.
	// If not set, uses the global provider via otel.GetMeterProvider().
	MeterProvider metric.MeterProvider
}

func newConfig(opts ...Option) *config {
	cfg := &config{
		Defaults:      DefaultParameters(),
		Logger:        zerolog.Nop(),
		MeterProvider: otel.GetMeterProvider(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = otel.GetMeterProvider()
	}
	return cfg
}

// Option configures a Store.
type Option func(*config)

// WithDefaults replaces the registered defaults. They are validated by NewStore.
//
// Example:
//
//	store, err := params.NewStore(params.WithDefaults(params.Parameters{
//	    ReadHedgingMode:         params.HedgingOff,
//	    MaxTimeMSForHedgedReads: 25,
//	}))
func WithDefaults(p Parameters) Option {
	return func(c *config) {
		c.Defaults = p
	}
}

// WithLogger sets the logger used for parameter change events.
func WithLogger(l zerolog.Logger) Option {
	return func(c *config) {
		c.Logger = l
	}
}

// WithMeterProvider sets the meter provider for store metrics.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *config) {
		c.MeterProvider = mp
	}
}
