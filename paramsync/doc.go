// Package paramsync propagates hedging parameter changes across a fleet of
// router processes through Redis.
//
// Every accepted local change to a params.Store writes the changed fields to a
// Redis hash (the fleet's record), bumps the hash version and is announced on
// a pub/sub channel, all in one transaction. Each process runs a Syncer that
// reloads the hash on every announcement and every (re)subscription and
// applies it when its version is newer than the last one applied. Changes to
// different parameters made concurrently on different routers merge in the
// hash. Remote applies are not re-announced, and local changes that could not
// be written are retried once Redis is reachable again.
//
// Example:
//
//	rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{"localhost:6379"}})
//	syncer := paramsync.New(rdb, store, paramsync.WithLogger(logger))
//
//	go func() {
//	    _ = syncer.Run(ctx) // returns when ctx is cancelled
//	}()
//
// Publishing goes through a circuit breaker so an unreachable Redis costs an
// administrative change one fast failure instead of a timeout.
package paramsync
