// Package config loads the hedgerouter process configuration from defaults
// and READHEDGE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kroma-labs/readhedge/params"
	"github.com/rs/zerolog"
)

// Environment variable names.
const (
	EnvAdminAddr               = "READHEDGE_ADMIN_ADDR"
	EnvAdminRateLimit          = "READHEDGE_ADMIN_RATE_LIMIT"
	EnvAdminRateBurst          = "READHEDGE_ADMIN_RATE_BURST"
	EnvLogLevel                = "READHEDGE_LOG_LEVEL"
	EnvLogPretty               = "READHEDGE_LOG_PRETTY"
	EnvShutdownTimeout         = "READHEDGE_SHUTDOWN_TIMEOUT"
	EnvOTLPEndpoint            = "READHEDGE_OTLP_ENDPOINT"
	EnvReadHedgingMode         = "READHEDGE_READ_HEDGING_MODE"
	EnvMaxTimeMSForHedgedReads = "READHEDGE_MAX_TIME_MS_FOR_HEDGED_READS"
	EnvRedisAddr               = "READHEDGE_REDIS_ADDR"
	EnvRedisPassword           = "READHEDGE_REDIS_PASSWORD"
	EnvRedisDB                 = "READHEDGE_REDIS_DB"
	EnvRedisKeyPrefix          = "READHEDGE_REDIS_KEY_PREFIX"
)

// parameterEnv maps server parameters to the variables that seed them.
var parameterEnv = []struct {
	env  string
	name string
}{
	{env: EnvReadHedgingMode, name: params.ReadHedgingMode},
	{env: EnvMaxTimeMSForHedgedReads, name: params.MaxTimeMSForHedgedReads},
}

// Config is the process configuration.
type Config struct {
	AdminAddr       string
	AdminRateLimit  float64
	AdminRateBurst  int
	LogLevel        zerolog.Level
	LogPretty       bool
	ShutdownTimeout time.Duration

	// OTLPEndpoint is the gRPC trace collector; empty disables trace export.
	OTLPEndpoint string

	// Parameters holds initial server parameter values keyed by parameter
	// name, already converted by params.ParseValue.
	Parameters map[string]any

	// Redis enables fleet parameter sync when Addr is set.
	Redis RedisConfig
}

// RedisConfig configures the optional parameter sync backend.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// Enabled reports whether Redis sync is configured.
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// Default returns the configuration used when no variable is set.
func Default() Config {
	return Config{
		AdminAddr:       ":9090",
		AdminRateLimit:  50,
		AdminRateBurst:  100,
		LogLevel:        zerolog.InfoLevel,
		ShutdownTimeout: 10 * time.Second,
		Parameters:      map[string]any{},
		Redis: RedisConfig{
			KeyPrefix: "readhedge",
		},
	}
}

// Load builds the configuration from defaults overridden by environ, a list
// of KEY=VALUE pairs as returned by os.Environ.
func Load(environ []string) (Config, error) {
	cfg := Default()
	if err := applyEnvOverrides(&cfg, environ); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that parse but are unusable.
func (c Config) Validate() error {
	if c.AdminAddr == "" {
		return errors.New("config: admin address is required")
	}
	if c.AdminRateLimit < 0 {
		return fmt.Errorf("config: %s must be >= 0", EnvAdminRateLimit)
	}
	if c.AdminRateLimit > 0 && c.AdminRateBurst <= 0 {
		return fmt.Errorf("config: %s must be > 0 when rate limiting is enabled", EnvAdminRateBurst)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("config: %s must be > 0", EnvShutdownTimeout)
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("config: %s must be >= 0", EnvRedisDB)
	}
	return nil
}

func applyEnvOverrides(cfg *Config, environ []string) error {
	if cfg == nil {
		return errors.New("config: config is required")
	}
	values := envMap(environ)

	if value, ok := values[EnvAdminAddr]; ok {
		cfg.AdminAddr = value
	}
	if value, ok := values[EnvAdminRateLimit]; ok {
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return envError(EnvAdminRateLimit, value, err)
		}
		cfg.AdminRateLimit = parsed
	}
	if value, ok := values[EnvAdminRateBurst]; ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return envError(EnvAdminRateBurst, value, err)
		}
		cfg.AdminRateBurst = parsed
	}
	if value, ok := values[EnvLogLevel]; ok {
		level, err := zerolog.ParseLevel(strings.ToLower(value))
		if err != nil {
			return envError(EnvLogLevel, value, err)
		}
		cfg.LogLevel = level
	}
	if value, ok := values[EnvLogPretty]; ok {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return envError(EnvLogPretty, value, err)
		}
		cfg.LogPretty = parsed
	}
	if value, ok := values[EnvShutdownTimeout]; ok {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return envError(EnvShutdownTimeout, value, err)
		}
		cfg.ShutdownTimeout = parsed
	}
	if value, ok := values[EnvOTLPEndpoint]; ok {
		cfg.OTLPEndpoint = value
	}

	for _, p := range parameterEnv {
		value, ok := values[p.env]
		if !ok {
			continue
		}
		parsed, err := params.ParseValue(p.name, value)
		if err != nil {
			return envError(p.env, value, err)
		}
		cfg.Parameters[p.name] = parsed
	}

	if value, ok := values[EnvRedisAddr]; ok {
		cfg.Redis.Addr = value
	}
	if value, ok := values[EnvRedisPassword]; ok {
		cfg.Redis.Password = value
	}
	if value, ok := values[EnvRedisDB]; ok {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return envError(EnvRedisDB, value, err)
		}
		cfg.Redis.DB = parsed
	}
	if value, ok := values[EnvRedisKeyPrefix]; ok {
		cfg.Redis.KeyPrefix = value
	}
	return nil
}

func envError(name, value string, err error) error {
	return fmt.Errorf("config: invalid %s=%q: %w", name, value, err)
}

func envMap(environ []string) map[string]string {
	values := make(map[string]string, len(environ))
	for _, entry := range environ {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasPrefix(key, "READHEDGE_") {
			continue
		}
		values[key] = strings.TrimSpace(value)
	}
	return values
}
