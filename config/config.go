package config

import (
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - http.go: HTTP server and rate limiting configuration
//   - cache.go: Redis cache and retention configuration
//   - analytics.go: Dune analytics engine configuration
//   - llm.go: LLM explanation provider configuration
//   - model.go: clustering model artifact configuration
//   - worker.go: background worker pool configuration
//   - observability.go: metrics configuration
type AppConfig struct {
	// IsDev controls development mode behavior (in-memory cache, verbose logging).
	// Set DEV=true for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	// HTTP server configuration
	HTTP HTTPConfig

	// Cache configuration (Redis connection + retention windows)
	Redis RedisConfig `envPrefix:"REDIS_"`
	Cache CacheConfig

	// Dune analytics engine configuration
	Dune DuneConfig `envPrefix:"DUNE_"`

	// LLM explanation provider configuration
	LLM LLMConfig

	// Clustering model configuration
	Model ModelConfig

	// Background worker pool configuration
	Worker WorkerConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.HTTP.Sanitize()
	c.Cache.Sanitize()
	c.Dune.Sanitize()
	c.LLM.Sanitize()
	c.Worker.Sanitize()
	c.Observability.Sanitize()

	c.detectDevMode()
}

// detectDevMode checks both DEV and APP_ENV environment variables.
// APP_ENV is checked as a fallback so deploy tooling that only sets
// APP_ENV=development still gets dev behavior.
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		appEnv := strings.ToLower(os.Getenv("APP_ENV"))
		c.IsDev = appEnv == "development" || appEnv == "dev"
	}
}
