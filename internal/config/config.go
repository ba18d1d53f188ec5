// Package config provides configuration loading and validation for the
// tenant service.
package config

import (
	"errors"
	"fmt"
	"time"
)

// ErrConfig indicates an invalid or incomplete configuration. It is fatal at
// startup, never surfaced per request.
var ErrConfig = errors.New("invalid configuration")

// ServiceConfig is the root configuration for the tenant service.
type ServiceConfig struct {
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
	Auth    AuthConfig    `yaml:"auth"`
	Catalog CatalogConfig `yaml:"catalog"`
	Cache   CacheConfig   `yaml:"cache"`
	Router  RouterConfig  `yaml:"router"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address        string          `yaml:"address"`
	Port           int             `yaml:"port"`
	ReadTimeout    Duration        `yaml:"readTimeout"`
	WriteTimeout   Duration        `yaml:"writeTimeout"`
	IdleTimeout    Duration        `yaml:"idleTimeout"`
	MetricsPort    int             `yaml:"metricsPort"`
	LoginRateLimit RateLimitConfig `yaml:"loginRateLimit"`
}

// RateLimitConfig holds token-bucket rate limit settings for the login
// endpoint.
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled"`
	Rate    float64 `yaml:"rate"`
	Burst   int     `yaml:"burst"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// AuthConfig holds token issuing and verification configuration.
type AuthConfig struct {
	// Secret is the process-wide HMAC signing secret. Required.
	Secret string `yaml:"secret"`

	// Issuer is the iss claim stamped on every token.
	Issuer string `yaml:"issuer"`

	AccessTTL  Duration `yaml:"accessTTL"`
	RefreshTTL Duration `yaml:"refreshTTL"`

	// ClockSkew is the tolerance applied when comparing token expiry.
	ClockSkew Duration `yaml:"clockSkew"`

	// Revocation enables refresh-token rotation tracking. When disabled, a
	// rotated refresh token stays replayable until its own expiry.
	Revocation RevocationConfig `yaml:"revocation"`
}

// RevocationConfig holds refresh-token revocation settings.
type RevocationConfig struct {
	Enabled bool `yaml:"enabled"`
}

// CatalogConfig holds master catalog store configuration.
type CatalogConfig struct {
	// URI is the document store connection string. Required.
	URI string `yaml:"uri"`

	// Database is the master catalog database name.
	Database string `yaml:"database"`

	ConnectTimeout Duration `yaml:"connectTimeout"`
}

// CacheType identifies a cache backend.
const (
	CacheTypeMemory = "memory"
	CacheTypeRedis  = "redis"
)

// CacheConfig holds optional shared cache configuration.
type CacheConfig struct {
	Enabled bool   `yaml:"enabled"`
	Type    string `yaml:"type"`

	// MaxEntries bounds the memory cache.
	MaxEntries int `yaml:"maxEntries"`

	TTL Duration `yaml:"ttl"`

	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// RouterConfig holds tenant database router configuration.
type RouterConfig struct {
	// IdleTTL is how long an unused routing cache entry survives before the
	// janitor evicts it.
	IdleTTL Duration `yaml:"idleTTL"`

	// SweepInterval is how often the janitor runs.
	SweepInterval Duration `yaml:"sweepInterval"`

	// MaxRetries bounds store connection attempts before StoreUnavailable
	// surfaces.
	MaxRetries     int      `yaml:"maxRetries"`
	InitialBackoff Duration `yaml:"initialBackoff"`
	MaxBackoff     Duration `yaml:"maxBackoff"`
}

// DefaultConfig returns a ServiceConfig with default values. Secret and
// catalog URI have no defaults and must be provided.
func DefaultConfig() *ServiceConfig {
	return &ServiceConfig{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  Duration(30 * time.Second),
			WriteTimeout: Duration(30 * time.Second),
			IdleTimeout:  Duration(120 * time.Second),
			MetricsPort:  9090,
			LoginRateLimit: RateLimitConfig{
				Enabled: true,
				Rate:    5,
				Burst:   10,
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Auth: AuthConfig{
			Issuer:     "avtenantd",
			AccessTTL:  Duration(15 * time.Minute),
			RefreshTTL: Duration(7 * 24 * time.Hour),
			ClockSkew:  Duration(5 * time.Second),
			Revocation: RevocationConfig{Enabled: true},
		},
		Catalog: CatalogConfig{
			Database:       "master",
			ConnectTimeout: Duration(10 * time.Second),
		},
		Cache: CacheConfig{
			Enabled:    true,
			Type:       CacheTypeMemory,
			MaxEntries: 10000,
			TTL:        Duration(5 * time.Minute),
		},
		Router: RouterConfig{
			IdleTTL:        Duration(30 * time.Minute),
			SweepInterval:  Duration(time.Minute),
			MaxRetries:     3,
			InitialBackoff: Duration(100 * time.Millisecond),
			MaxBackoff:     Duration(2 * time.Second),
		},
	}
}

// Validate checks the configuration for fatal problems.
func (c *ServiceConfig) Validate() error {
	if c.Auth.Secret == "" {
		return fmt.Errorf("%w: auth.secret is required", ErrConfig)
	}
	if len(c.Auth.Secret) < 32 {
		return fmt.Errorf("%w: auth.secret must be at least 32 bytes", ErrConfig)
	}
	if c.Catalog.URI == "" {
		return fmt.Errorf("%w: catalog.uri is required", ErrConfig)
	}
	if c.Catalog.Database == "" {
		return fmt.Errorf("%w: catalog.database is required", ErrConfig)
	}
	if c.Auth.AccessTTL.Duration() <= 0 {
		return fmt.Errorf("%w: auth.accessTTL must be positive", ErrConfig)
	}
	if c.Auth.RefreshTTL.Duration() <= c.Auth.AccessTTL.Duration() {
		return fmt.Errorf("%w: auth.refreshTTL must exceed auth.accessTTL", ErrConfig)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port %d out of range", ErrConfig, c.Server.Port)
	}
	if c.Cache.Enabled {
		switch c.Cache.Type {
		case CacheTypeMemory, CacheTypeRedis, "":
		default:
			return fmt.Errorf("%w: unknown cache.type %q", ErrConfig, c.Cache.Type)
		}
		if c.Cache.Type == CacheTypeRedis && c.Cache.Redis.Address == "" {
			return fmt.Errorf("%w: cache.redis.address is required for redis cache", ErrConfig)
		}
	}
	if c.Router.MaxRetries < 0 {
		return fmt.Errorf("%w: router.maxRetries must not be negative", ErrConfig)
	}
	return nil
}
