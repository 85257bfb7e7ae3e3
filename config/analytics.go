package config

import (
	"strings"
	"time"
)

// Query strategies supported by the Dune client. The execute strategy runs
// the full submit/poll/fetch protocol; the cached strategy reads the latest
// stored results of a pre-existing query.
const (
	DuneStrategyExecute = "execute"
	DuneStrategyCached  = "cached"
)

// DuneConfig contains configuration for the Dune analytics engine client.
// All variables carry the DUNE_ prefix (e.g. DUNE_API_KEY).
type DuneConfig struct {
	// APIKey authenticates against the Dune API. Required for the analyze
	// endpoints; startup logs a warning when missing.
	APIKey string `env:"API_KEY"`

	// BaseURL is the Dune API root.
	BaseURL string `env:"BASE_URL" envDefault:"https://api.dune.com"`

	// QueryID identifies the saved wallet-activity query to run.
	QueryID int64 `env:"QUERY_ID" envDefault:"6252521"`

	// Strategy selects between "execute" (submit/poll/fetch) and "cached"
	// (read latest results of the saved query).
	Strategy string `env:"QUERY_STRATEGY" envDefault:"execute"`

	// PollInterval is the delay between execution status checks.
	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"2s"`

	// MaxPollAttempts bounds the status checks per execution. With the
	// default interval this gives a ~60s completion budget.
	MaxPollAttempts int `env:"POLL_MAX_ATTEMPTS" envDefault:"30"`

	// HTTPTimeout bounds each individual request to the engine.
	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT" envDefault:"10s"`
}

// Sanitize normalises Dune client configuration values.
func (c *DuneConfig) Sanitize() {
	c.APIKey = strings.TrimSpace(c.APIKey)
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	if c.BaseURL == "" {
		c.BaseURL = "https://api.dune.com"
	}
	c.Strategy = strings.ToLower(strings.TrimSpace(c.Strategy))
	if c.Strategy != DuneStrategyCached {
		c.Strategy = DuneStrategyExecute
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.MaxPollAttempts < 1 {
		c.MaxPollAttempts = 30
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 10 * time.Second
	}
}
