package admin

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/kroma-labs/readhedge/hedge"
	"github.com/kroma-labs/readhedge/params"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
)

// Server is the admin HTTP server.
type Server struct {
	config     Config
	logger     zerolog.Logger
	health     *Health
	handler    http.Handler
	httpServer *http.Server
}

// New builds the admin server around store and decider.
func New(store *params.Store, decider *hedge.Decider, opts ...Option) (*Server, error) {
	if store == nil {
		return nil, errors.New("admin: parameter store is required")
	}
	if decider == nil {
		return nil, errors.New("admin: decider is required")
	}

	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.MeterProvider == nil {
		cfg.MeterProvider = otel.GetMeterProvider()
	}
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = otel.GetTracerProvider()
	}
	if cfg.Propagator == nil {
		cfg.Propagator = otel.GetTextMapPropagator()
	}
	if cfg.Registry == nil {
		cfg.Registry = newDefaultRegistry()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}

	logger := cfg.Logger.With().Str("component", "admin").Logger()

	reqMetrics, err := newRequestMetrics(cfg.MeterProvider.Meter(scope), cfg.ServiceName)
	if err != nil {
		return nil, fmt.Errorf("admin: create metrics: %w", err)
	}
	collector, err := registerParameterCollector(cfg.Registry, store)
	if err != nil {
		return nil, err
	}

	s := &Server{
		config: cfg,
		logger: logger,
		health: newHealth(cfg.ServiceName, cfg.Version),
	}

	h := &handlers{
		store:        store,
		decider:      decider,
		maxBodyBytes: cfg.MaxBodyBytes,
		logger:       logger,
		observe:      collector.observe,
	}

	r := chi.NewRouter()
	r.Use(Chain(
		Recovery(logger),
		RequestID(),
		Tracing(cfg.TracerProvider, cfg.Propagator, cfg.SkipLogPaths...),
		RequestLogger(logger, cfg.ServiceName, cfg.SkipLogPaths...),
		reqMetrics.middleware(),
	))
	r.Get("/livez", s.health.live)
	r.Get("/readyz", s.health.ready)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		if cfg.RateLimit != nil {
			r.Use(RateLimit(*cfg.RateLimit))
		}
		r.Get("/parameters", h.listParameters)
		r.Get("/parameters/{name}", h.getParameter)
		r.Put("/parameters/{name}", h.setParameter)
		r.Delete("/parameters/{name}", h.resetParameter)
		r.Post("/hedge/decide", h.decide)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	s.handler = r
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
	return s, nil
}

// Handler returns the routed handler, for tests or embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Health returns the readiness registry served on /readyz.
func (s *Server) Health() *Health {
	return s.health
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.config.Addr
}

// ListenAndServe listens on the configured address and serves until ctx is
// cancelled, then shuts down gracefully within ShutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("admin: listen on %s: %w", s.config.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled or the server fails.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	serverErr := make(chan error, 1)
	go func() {
		s.logger.Info().
			Str("addr", ln.Addr().String()).
			Str("service", s.config.ServiceName).
			Msg("admin server starting")

		err := s.httpServer.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err, ok := <-serverErr:
		if ok {
			s.logger.Error().Err(err).Msg("admin server error")
			return err
		}
		return nil
	case <-ctx.Done():
		s.logger.Info().Err(ctx.Err()).Msg("context cancelled, shutting down")
	}
	return s.shutdown(context.WithoutCancel(ctx))
}

func (s *Server) shutdown(ctx context.Context) error {
	s.logger.Info().
		Dur("timeout", s.config.ShutdownTimeout).
		Msg("starting graceful shutdown")

	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error().Err(err).Msg("graceful shutdown failed, forcing close")
		if closeErr := s.httpServer.Close(); closeErr != nil {
			s.logger.Error().Err(closeErr).Msg("force close failed")
		}
		return err
	}

	s.logger.Info().Msg("admin server stopped gracefully")
	return nil
}

// Shutdown stops the server without waiting for ctx passed to Serve.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

