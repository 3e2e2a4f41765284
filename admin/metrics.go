package admin

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kroma-labs/readhedge/params"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const scope = "github.com/kroma-labs/readhedge/admin"

// requestMetrics records per-route HTTP metrics through OpenTelemetry.
type requestMetrics struct {
	serviceName    string
	duration       metric.Float64Histogram
	activeRequests metric.Int64UpDownCounter
	requests       metric.Int64Counter
}

func newRequestMetrics(meter metric.Meter, serviceName string) (*requestMetrics, error) {
	duration, err := meter.Float64Histogram(
		"http.server.request.duration",
		metric.WithDescription("Duration of admin HTTP requests"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1),
	)
	if err != nil {
		return nil, err
	}

	activeRequests, err := meter.Int64UpDownCounter(
		"http.server.active_requests",
		metric.WithDescription("Number of in-flight admin HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	requests, err := meter.Int64Counter(
		"http.server.request.total",
		metric.WithDescription("Total number of admin HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	return &requestMetrics{
		serviceName:    serviceName,
		duration:       duration,
		activeRequests: activeRequests,
		requests:       requests,
	}, nil
}

// middleware labels requests with the matched chi route pattern so that
// parameter names do not explode cardinality.
func (m *requestMetrics) middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			base := metric.WithAttributes(
				attribute.String("service.name", m.serviceName),
				attribute.String("http.request.method", r.Method),
			)
			m.activeRequests.Add(r.Context(), 1, base)
			defer m.activeRequests.Add(r.Context(), -1, base)

			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			attrs := metric.WithAttributes(
				attribute.String("service.name", m.serviceName),
				attribute.String("http.request.method", r.Method),
				attribute.String("http.route", route),
				attribute.Int("http.response.status_code", rec.status),
			)
			m.duration.Record(r.Context(), time.Since(start).Seconds(), attrs)
			m.requests.Add(r.Context(), 1, attrs)
		})
	}
}

// parameterCollector exposes the current parameters and admin-driven changes
// on the Prometheus registry.
type parameterCollector struct {
	changes *prometheus.CounterVec
}

func registerParameterCollector(reg prometheus.Registerer, store *params.Store) (*parameterCollector, error) {
	hedging := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "readhedge",
		Name:      "read_hedging_enabled",
		Help:      "1 when readHedgingMode is on, 0 when off.",
	}, func() float64 {
		if store.Snapshot().HedgingEnabled() {
			return 1
		}
		return 0
	})

	maxTime := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "readhedge",
		Name:      "max_time_ms_for_hedged_reads",
		Help:      "Current maxTimeMSForHedgedReads.",
	}, func() float64 {
		return float64(store.Snapshot().MaxTimeMSForHedgedReads)
	})

	changes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "readhedge",
		Subsystem: "admin",
		Name:      "parameter_changes_total",
		Help:      "Parameter changes requested through the admin API.",
	}, []string{"parameter", "outcome"})

	for _, c := range []prometheus.Collector{hedging, maxTime, changes} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("admin: register collector: %w", err)
		}
	}
	return &parameterCollector{changes: changes}, nil
}

func (c *parameterCollector) observe(parameter, outcome string) {
	c.changes.WithLabelValues(parameter, outcome).Inc()
}

func newDefaultRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}
