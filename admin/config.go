package admin

import (
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// Config holds the admin server configuration.
//
// Use DefaultConfig() and override fields as needed:
//
//	cfg := admin.DefaultConfig()
//	cfg.Addr = ":9191"
type Config struct {
	// Addr is the TCP address to listen on.
	// Default: ":9090"
	Addr string

	// ServiceName identifies the process in logs, metrics and health output.
	// Default: "readhedge-admin"
	ServiceName string

	// Version is reported by the health endpoints.
	Version string

	// ReadTimeout bounds reading an entire request.
	// Default: 5s
	ReadTimeout time.Duration

	// ReadHeaderTimeout bounds reading request headers.
	// Default: 2s
	ReadHeaderTimeout time.Duration

	// WriteTimeout bounds writing a response.
	// Default: 10s
	WriteTimeout time.Duration

	// IdleTimeout bounds keep-alive idle time.
	// Default: 60s
	IdleTimeout time.Duration

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 10s
	ShutdownTimeout time.Duration

	// MaxBodyBytes caps request bodies on /v1 routes.
	// Default: 64KB
	MaxBodyBytes int64

	// Logger receives lifecycle and request logs.
	// Default: a timestamped stdout logger
	Logger zerolog.Logger

	// SkipLogPaths are not request-logged.
	// Default: /livez, /readyz, /metrics
	SkipLogPaths []string

	// MeterProvider records request metrics. If nil, the global provider is used.
	MeterProvider metric.MeterProvider

	// TracerProvider creates request spans. If nil, the global provider is used.
	TracerProvider trace.TracerProvider

	// Propagator extracts caller trace context. If nil, the global one is used.
	Propagator propagation.TextMapPropagator

	// Registry is exposed on /metrics and receives the parameter gauges.
	// If nil, a new registry with Go and process collectors is created.
	Registry *prometheus.Registry

	// RateLimit throttles /v1 routes. Nil disables rate limiting.
	RateLimit *RateLimitConfig
}

// RateLimitConfig configures the token bucket in front of /v1 routes.
type RateLimitConfig struct {
	// Limit is the sustained rate in requests per second.
	Limit rate.Limit

	// Burst is the token bucket capacity.
	Burst int
}

// DefaultConfig returns a configuration suited to an internal admin port.
func DefaultConfig() Config {
	return Config{
		Addr:              ":9090",
		ServiceName:       "readhedge-admin",
		Version:           "0.0.0",
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		ShutdownTimeout:   10 * time.Second,
		MaxBodyBytes:      64 << 10,
		Logger:            zerolog.New(os.Stdout).With().Timestamp().Logger(),
		SkipLogPaths:      []string{"/livez", "/readyz", "/metrics"},
		RateLimit: &RateLimitConfig{
			Limit: 50,
			Burst: 100,
		},
	}
}

// Option configures the server.
type Option func(*Config)

// WithConfig applies all settings from cfg.
func WithConfig(cfg Config) Option {
	return func(c *Config) {
		*c = cfg
	}
}

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(c *Config) {
		c.Addr = addr
	}
}

// WithServiceName sets the service name.
func WithServiceName(name string) Option {
	return func(c *Config) {
		c.ServiceName = name
	}
}

// WithVersion sets the version reported by health endpoints.
func WithVersion(version string) Option {
	return func(c *Config) {
		c.Version = version
	}
}

// WithLogger sets the server logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithMeterProvider sets the meter provider for request metrics.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *Config) {
		c.MeterProvider = mp
	}
}

// WithTracerProvider sets the tracer provider for request spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Config) {
		c.TracerProvider = tp
	}
}

// WithPropagator sets the propagator used to continue caller traces.
func WithPropagator(p propagation.TextMapPropagator) Option {
	return func(c *Config) {
		c.Propagator = p
	}
}

// WithRegistry sets the Prometheus registry served on /metrics.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(c *Config) {
		c.Registry = reg
	}
}

// WithRateLimit throttles /v1 routes.
func WithRateLimit(limit rate.Limit, burst int) Option {
	return func(c *Config) {
		c.RateLimit = &RateLimitConfig{Limit: limit, Burst: burst}
	}
}

// WithoutRateLimit disables /v1 throttling.
func WithoutRateLimit() Option {
	return func(c *Config) {
		c.RateLimit = nil
	}
}

// WithShutdownTimeout bounds graceful shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.ShutdownTimeout = d
	}
}
