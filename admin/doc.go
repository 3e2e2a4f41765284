// Package admin serves the administrative HTTP surface of a hedging router:
// reading, changing and resetting the hedging server parameters, explaining
// the hedging decision for a read preference document, health checks and
// Prometheus metrics.
//
// Routes:
//
//	GET    /v1/parameters          current values of every parameter
//	GET    /v1/parameters/{name}   one parameter, with its default
//	PUT    /v1/parameters/{name}   body {"value": ...}; 400 if invalid, 404 if unknown
//	DELETE /v1/parameters/{name}   restore the default
//	POST   /v1/hedge/decide        body is a read preference document
//	GET    /livez                  process liveness
//	GET    /readyz                 readiness checks (e.g. Redis)
//	GET    /metrics                Prometheus exposition
//
// Every response uses the same envelope:
//
//	{"data": ..., "errors": [{"field": "...", "message": "..."}], "message": "..."}
//
// Example:
//
//	server, err := admin.New(store, decider,
//	    admin.WithConfig(admin.DefaultConfig()),
//	    admin.WithLogger(logger),
//	)
//	if err != nil {
//	    return err
//	}
//	server.Health().AddReadinessCheck("redis", syncer.Ping)
//
//	// Blocks until ctx is cancelled, then shuts down gracefully.
//	return server.ListenAndServe(ctx)
package admin
