package config

import "time"

// RedisConfig contains Redis connection configuration.
type RedisConfig struct {
	Addr     string `env:"ADDR"     envDefault:"localhost:6379"`
	Password string `env:"PASSWORD" envDefault:""`
	DB       int    `env:"DB"       envDefault:"0"`
}

// CacheConfig contains retention windows for the result cache.
//
// Job records are retained long enough to support delayed polling; pointer
// jobs synthesized from a wallet cache hit are short-lived since they
// represent an already-resolved lookup rather than new work.
type CacheConfig struct {
	// ResultTTL is the retention window for job records and memoized
	// wallet results.
	ResultTTL time.Duration `env:"CACHE_RESULT_TTL" envDefault:"24h"`

	// PointerTTL is the retention window for pointer jobs created from a
	// wallet cache hit.
	PointerTTL time.Duration `env:"CACHE_POINTER_TTL" envDefault:"5m"`

	// InFlightTTL bounds the per-wallet in-flight lock. It must exceed the
	// worst-case pipeline duration (30 poll attempts each paying the HTTP
	// timeout, plus submit, fetch, and explanation) so a live run never
	// loses its lock, while still unwedging a wallet after a crash.
	InFlightTTL time.Duration `env:"CACHE_INFLIGHT_TTL" envDefault:"10m"`
}

// Sanitize applies guardrails to cache retention values.
func (c *CacheConfig) Sanitize() {
	if c.ResultTTL <= 0 {
		c.ResultTTL = 24 * time.Hour
	}
	if c.PointerTTL <= 0 {
		c.PointerTTL = 5 * time.Minute
	}
	if c.InFlightTTL <= 0 {
		c.InFlightTTL = 10 * time.Minute
	}
	// A pointer job outliving the memoized result it points at is useless.
	if c.PointerTTL > c.ResultTTL {
		c.PointerTTL = c.ResultTTL
	}
}
