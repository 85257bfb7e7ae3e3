package config

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	// BaseURL is the base URL of the application (e.g., "https://persona.example.com").
	// Used for generating absolute URLs in responses and logs.
	BaseURL string `env:"APP_BASE_URL" envDefault:"http://localhost:8080"`

	// RateLimitPerMinute is the number of analysis starts each client identity
	// may request per minute. Exceeding it yields HTTP 429, not a queued job.
	RateLimitPerMinute int `env:"HTTP_RATE_LIMIT_PER_MINUTE" envDefault:"10"`

	// RateLimitBurst is the token-bucket burst allowance per client.
	RateLimitBurst int `env:"HTTP_RATE_LIMIT_BURST" envDefault:"5"`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	if h.RateLimitPerMinute < 1 {
		h.RateLimitPerMinute = 1
	}
	if h.RateLimitBurst < 1 {
		h.RateLimitBurst = 1
	}
	// Burst above the per-minute budget defeats the budget
	if h.RateLimitBurst > h.RateLimitPerMinute {
		h.RateLimitBurst = h.RateLimitPerMinute
	}
}
