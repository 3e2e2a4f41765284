package paramsync

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	json "github.com/goccy/go-json"
	"github.com/kroma-labs/readhedge/params"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// Syncer keeps a params.Store in step with the rest of the fleet.
//
// The Redis hash is the fleet's record. Local changes write only the fields
// they touched and bump the hash version in one transaction, then announce.
// Every announcement makes each Syncer reload the hash and apply it when its
// version is newer than the last one applied, so concurrent changes to
// different parameters merge in the hash and every store converges on it.
type Syncer struct {
	client  redis.UniversalClient
	store   *params.Store
	cfg     Config
	logger  zerolog.Logger
	breaker *gobreaker.CircuitBreaker[any]

	// mu guards the outgoing side. fieldVersions is the newest store version
	// queued per parameter; pending holds hash values not yet written.
	mu            sync.Mutex
	fieldVersions map[string]uint64
	pending       map[string]string

	// applyMu guards the incoming side.
	applyMu sync.Mutex
	loaded  bool
	applied int64
}

// New creates a Syncer and registers it for the store's local changes.
// Remote changes are only received while Run is active.
func New(client redis.UniversalClient, store *params.Store, opts ...Option) *Syncer {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.applyDefaults()

	s := &Syncer{
		client:        client,
		store:         store,
		cfg:           cfg,
		logger:        cfg.Logger.With().Str("component", "paramsync").Str("origin", cfg.Origin).Logger(),
		fieldVersions: make(map[string]uint64),
		pending:       make(map[string]string),
	}
	s.breaker = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        "paramsync-publish",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("publish circuit breaker state changed")
		},
	})

	store.OnChange(s.onChange)
	return s
}

// Origin returns the identity this Syncer announces with.
func (s *Syncer) Origin() string {
	return s.cfg.Origin
}

// Ping checks the Redis connection. It is suitable as a readiness check.
func (s *Syncer) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Pending returns the names of local changes not yet written to the hash.
func (s *Syncer) Pending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingNames()
}

// onChange announces local changes. Remote changes are never echoed. A change
// that cannot be written stays pending and is retried after reconnecting.
func (s *Syncer) onChange(ctx context.Context, change params.Change) {
	if change.Source != params.SourceLocal {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Listeners run outside the store lock, so an older change to a field
	// can arrive after a newer one.
	for _, name := range change.Parameters {
		if change.Version <= s.fieldVersions[name] {
			continue
		}
		value, err := hashValue(change.New, name)
		if err != nil {
			continue
		}
		s.fieldVersions[name] = change.Version
		s.pending[name] = value
	}

	if err := s.flushLocked(ctx); err != nil {
		s.logger.Error().
			Err(err).
			Uint64("version", change.Version).
			Strs("pending", s.pendingNames()).
			Msg("failed to publish parameter change, will retry")
	}
}

// Publish writes every field of p to the fleet hash and announces it. If the
// write fails the values stay pending like a failed local change.
func (s *Syncer) Publish(ctx context.Context, p params.Parameters) error {
	if err := p.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range params.Names() {
		value, err := hashValue(p, name)
		if err != nil {
			return err
		}
		s.pending[name] = value
	}
	return s.flushLocked(ctx)
}

// flushPending retries pending writes, if any.
func (s *Syncer) flushPending(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked(ctx)
}

// flushLocked writes the pending fields, bumps the fleet version and
// announces, all in one MULTI. s.mu must be held.
func (s *Syncer) flushLocked(ctx context.Context) error {
	if len(s.pending) == 0 {
		return nil
	}
	names := s.pendingNames()

	now := time.Now()
	payload, err := json.Marshal(Message{
		Origin:     s.cfg.Origin,
		Parameters: names,
		At:         now,
	})
	if err != nil {
		return fmt.Errorf("paramsync: encode message: %w", err)
	}

	values := make([]any, 0, 2*len(names)+4)
	for _, name := range names {
		values = append(values, name, s.pending[name])
	}
	values = append(values,
		fieldOrigin, s.cfg.Origin,
		fieldUpdatedAt, now.UTC().Format(time.RFC3339Nano),
	)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.PublishTimeout)
	defer cancel()

	var version *redis.IntCmd
	_, err = s.breaker.Execute(func() (any, error) {
		pipe := s.client.TxPipeline()
		pipe.HSet(ctx, s.cfg.Key, values...)
		version = pipe.HIncrBy(ctx, s.cfg.Key, fieldVersion, 1)
		pipe.Publish(ctx, s.cfg.Channel, payload)
		_, err := pipe.Exec(ctx)
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("paramsync: publish: %w", err)
	}

	for _, name := range names {
		delete(s.pending, name)
	}
	s.logger.Debug().
		Strs("parameters", names).
		Int64("fleet_version", version.Val()).
		Msg("parameter change published")
	return nil
}

func (s *Syncer) pendingNames() []string {
	names := make([]string, 0, len(s.pending))
	for name := range s.pending {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run receives fleet changes until ctx is cancelled. Each time the
// subscription is (re)established, pending local changes are written and the
// hash is reloaded, so changes made on either side while disconnected are
// reconciled. Failed subscriptions are retried with exponential backoff. Run
// returns nil on cancellation.
func (s *Syncer) Run(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.ResubscribeInitialInterval
	b.MaxInterval = s.cfg.ResubscribeMaxInterval

	for {
		subscribed, err := s.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if subscribed {
			b.Reset()
		}

		wait := b.NextBackOff()
		s.logger.Warn().
			Err(err).
			Dur("retry_in", wait).
			Msg("parameter subscription lost")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// session runs one subscription until it fails. subscribed reports whether
// the subscription was confirmed before it ended.
func (s *Syncer) session(ctx context.Context) (subscribed bool, err error) {
	pubsub := s.client.Subscribe(ctx, s.cfg.Channel)
	defer pubsub.Close()

	// A blocked receive does not observe ctx; closing the subscription does.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = pubsub.Close()
		case <-stop:
		}
	}()

	for {
		msg, err := pubsub.ReceiveTimeout(ctx, s.cfg.PingInterval)
		if err != nil {
			if ctx.Err() != nil {
				return subscribed, ctx.Err()
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				if err := pubsub.Ping(ctx); err != nil {
					return subscribed, fmt.Errorf("paramsync: ping subscription: %w", err)
				}
				s.retryPending(ctx)
				continue
			}
			return subscribed, fmt.Errorf("paramsync: receive on %s: %w", s.cfg.Channel, err)
		}

		switch m := msg.(type) {
		case *redis.Subscription:
			if m.Kind != "subscribe" {
				continue
			}
			subscribed = true
			s.logger.Info().Str("channel", s.cfg.Channel).Msg("subscribed to parameter changes")
			s.resync(ctx)
		case *redis.Message:
			s.handle(ctx, m.Payload)
		case *redis.Pong:
		}
	}
}

// resync writes what this process could not publish, then catches up with
// the fleet. The order matters: loading first would overwrite the unpublished
// local values with the fleet's older ones.
func (s *Syncer) resync(ctx context.Context) {
	s.retryPending(ctx)
	if err := s.Load(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("failed to load stored parameters")
	}
}

func (s *Syncer) retryPending(ctx context.Context) {
	if err := s.flushPending(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("failed to publish pending parameter changes")
	}
}

// Load applies the fleet hash to the local store when its version is newer
// than the last one applied, or when nothing has been applied yet.
func (s *Syncer) Load(ctx context.Context) error {
	fields, err := s.client.HGetAll(ctx, s.cfg.Key).Result()
	if err != nil {
		return fmt.Errorf("paramsync: load %s: %w", s.cfg.Key, err)
	}

	stored, ok, err := parseHash(fields)
	if err != nil {
		return fmt.Errorf("paramsync: load %s: %w", s.cfg.Key, err)
	}
	if !ok {
		return nil
	}

	s.applyMu.Lock()
	defer s.applyMu.Unlock()
	if s.loaded && stored.Version <= s.applied {
		return nil
	}
	if err := s.apply(ctx, stored); err != nil {
		return err
	}
	s.loaded = true
	s.applied = stored.Version
	return nil
}

// handle reacts to one announcement by reloading the hash. Announcements
// from this process are reloaded too: a reload triggered by another process
// may have briefly replaced a local value that was still being written.
func (s *Syncer) handle(ctx context.Context, payload string) {
	var msg Message
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		s.logger.Warn().Err(err).Msg("dropping malformed parameter announcement")
		return
	}
	if err := s.Load(ctx); err != nil {
		s.logger.Warn().
			Err(err).
			Str("from", msg.Origin).
			Strs("parameters", msg.Parameters).
			Msg("failed to apply announced parameters")
	}
}

func (s *Syncer) apply(ctx context.Context, stored storedParameters) error {
	if stored.Parameters == s.store.Parameters() {
		return nil
	}
	if err := s.store.UpdateFrom(ctx, stored.Parameters, params.SourceRemote); err != nil {
		return err
	}
	s.logger.Info().
		Str("from", stored.Origin).
		Int64("fleet_version", stored.Version).
		Str("read_hedging_mode", string(stored.Parameters.ReadHedgingMode)).
		Int("max_time_ms_for_hedged_reads", stored.Parameters.MaxTimeMSForHedgedReads).
		Msg("applied fleet parameter change")
	return nil
}
