package paramsync

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config holds Syncer settings.
type Config struct {
	// Key is the Redis hash holding the fleet's current parameters.
	// Default: "readhedge:parameters"
	Key string

	// Channel is the pub/sub channel change announcements are sent on.
	// Default: "readhedge:parameters:changes"
	Channel string

	// Origin identifies this process in announcements so it can skip its own.
	// Default: a random UUID
	Origin string

	// PublishTimeout bounds one hash write plus announcement.
	// Default: 2s
	PublishTimeout time.Duration

	// ResubscribeInitialInterval is the first wait after a failed subscription.
	// Default: 500ms
	ResubscribeInitialInterval time.Duration

	// ResubscribeMaxInterval caps the wait between subscription attempts.
	// Default: 30s
	ResubscribeMaxInterval time.Duration

	// PingInterval is how long the subscription may stay silent before it is
	// pinged. Unpublished local changes are retried on the same tick.
	// Default: 30s
	PingInterval time.Duration

	// BreakerConsecutiveFailures trips the publish breaker after this many
	// failures in a row.
	// Default: 5
	BreakerConsecutiveFailures uint32

	// BreakerTimeout is how long the publish breaker stays open.
	// Default: 10s
	BreakerTimeout time.Duration

	// Logger receives sync events.
	// Default: zerolog.Nop()
	Logger zerolog.Logger
}

// DefaultConfig returns the default Syncer settings with a fresh Origin.
func DefaultConfig() Config {
	return Config{
		Key:                        "readhedge:parameters",
		Channel:                    "readhedge:parameters:changes",
		Origin:                     uuid.NewString(),
		PublishTimeout:             2 * time.Second,
		ResubscribeInitialInterval: 500 * time.Millisecond,
		ResubscribeMaxInterval:     30 * time.Second,
		PingInterval:               30 * time.Second,
		BreakerConsecutiveFailures: 5,
		BreakerTimeout:             10 * time.Second,
		Logger:                     zerolog.Nop(),
	}
}

// Option configures a Syncer.
type Option func(*Config)

// WithConfig replaces all settings.
func WithConfig(cfg Config) Option {
	return func(c *Config) {
		*c = cfg
	}
}

// WithKeyPrefix derives Key and Channel from prefix, so several fleets can
// share one Redis.
func WithKeyPrefix(prefix string) Option {
	return func(c *Config) {
		c.Key = prefix + ":parameters"
		c.Channel = prefix + ":parameters:changes"
	}
}

// WithOrigin sets the process identity used in announcements.
func WithOrigin(origin string) Option {
	return func(c *Config) {
		c.Origin = origin
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithBreaker sets the publish circuit breaker thresholds.
func WithBreaker(consecutiveFailures uint32, openFor time.Duration) Option {
	return func(c *Config) {
		c.BreakerConsecutiveFailures = consecutiveFailures
		c.BreakerTimeout = openFor
	}
}

// WithPingInterval sets how often an idle subscription is checked.
func WithPingInterval(d time.Duration) Option {
	return func(c *Config) {
		c.PingInterval = d
	}
}

// WithResubscribeBackoff sets the resubscribe backoff bounds.
func WithResubscribeBackoff(initial, maxInterval time.Duration) Option {
	return func(c *Config) {
		c.ResubscribeInitialInterval = initial
		c.ResubscribeMaxInterval = maxInterval
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.Key == "" {
		c.Key = d.Key
	}
	if c.Channel == "" {
		c.Channel = d.Channel
	}
	if c.Origin == "" {
		c.Origin = d.Origin
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = d.PublishTimeout
	}
	if c.ResubscribeInitialInterval <= 0 {
		c.ResubscribeInitialInterval = d.ResubscribeInitialInterval
	}
	if c.ResubscribeMaxInterval <= 0 {
		c.ResubscribeMaxInterval = d.ResubscribeMaxInterval
	}
	if c.PingInterval <= 0 {
		c.PingInterval = d.PingInterval
	}
	if c.BreakerConsecutiveFailures == 0 {
		c.BreakerConsecutiveFailures = d.BreakerConsecutiveFailures
	}
	if c.BreakerTimeout <= 0 {
		c.BreakerTimeout = d.BreakerTimeout
	}
}
