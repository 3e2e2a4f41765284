// Command hedgerouter runs the read hedging policy of a query router: the
// live server parameters, the hedging decision engine, the admin HTTP API
// and, when Redis is configured, fleet-wide parameter propagation.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/kroma-labs/readhedge/admin"
	"github.com/kroma-labs/readhedge/hedge"
	"github.com/kroma-labs/readhedge/internal/config"
	"github.com/kroma-labs/readhedge/params"
	"github.com/kroma-labs/readhedge/paramsync"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const serviceName = "hedgerouter"

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "hedgerouter: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(os.Environ())
	if err != nil {
		return err
	}
	logger := newLogger(os.Stdout, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	tel, err := setupTelemetry(ctx, cfg, registry)
	if err != nil {
		return err
	}
	defer func() {
		if err := tel.shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("telemetry shutdown failed")
		}
	}()

	store, err := params.NewStore(
		params.WithLogger(logger),
		params.WithMeterProvider(tel.meterProvider),
	)
	if err != nil {
		return err
	}
	if err := applyInitialParameters(ctx, store, cfg.Parameters); err != nil {
		return err
	}

	decider, err := hedge.NewDecider(store,
		hedge.WithLogger(logger),
		hedge.WithMeterProvider(tel.meterProvider),
		hedge.WithTracerProvider(tel.tracerProvider),
	)
	if err != nil {
		return err
	}

	adminOpts := []admin.Option{
		admin.WithAddr(cfg.AdminAddr),
		admin.WithServiceName(serviceName),
		admin.WithVersion(version),
		admin.WithLogger(logger),
		admin.WithMeterProvider(tel.meterProvider),
		admin.WithTracerProvider(tel.tracerProvider),
		admin.WithRegistry(registry),
		admin.WithShutdownTimeout(cfg.ShutdownTimeout),
		admin.WithoutRateLimit(),
	}
	if cfg.AdminRateLimit > 0 {
		adminOpts = append(adminOpts, admin.WithRateLimit(rate.Limit(cfg.AdminRateLimit), cfg.AdminRateBurst))
	}
	server, err := admin.New(store, decider, adminOpts...)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Redis.Enabled() {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()

		syncer := paramsync.New(client, store,
			paramsync.WithKeyPrefix(cfg.Redis.KeyPrefix),
			paramsync.WithLogger(logger),
		)
		server.Health().AddReadinessCheck("redis", syncer.Ping)
		g.Go(func() error {
			return syncer.Run(gctx)
		})
		logger.Info().
			Str("redis_addr", cfg.Redis.Addr).
			Str("origin", syncer.Origin()).
			Msg("fleet parameter sync enabled")
	}

	g.Go(func() error {
		return server.ListenAndServe(gctx)
	})

	logger.Info().
		Str("version", version).
		Str("admin_addr", cfg.AdminAddr).
		Str(params.ReadHedgingMode, string(store.Snapshot().ReadHedgingMode)).
		Int(params.MaxTimeMSForHedgedReads, store.Snapshot().MaxTimeMSForHedgedReads).
		Msg("hedgerouter started")

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info().Msg("hedgerouter stopped")
	return nil
}

// applyInitialParameters sets configured parameter values in name order.
func applyInitialParameters(ctx context.Context, store *params.Store, values map[string]any) error {
	for _, name := range params.Names() {
		value, ok := values[name]
		if !ok {
			continue
		}
		if err := store.Set(ctx, name, value); err != nil {
			return fmt.Errorf("initial %s: %w", name, err)
		}
	}
	return nil
}

func newLogger(w io.Writer, cfg config.Config) zerolog.Logger {
	if cfg.LogPretty {
		w = zerolog.ConsoleWriter{Out: w}
	}
	return zerolog.New(w).
		Level(cfg.LogLevel).
		With().
		Timestamp().
		Str("service", serviceName).
		Logger()
}
