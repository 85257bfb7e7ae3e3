package config

import (
	"strings"
	"time"
)

// LLMConfig contains configuration for the persona explanation providers.
// Both providers are optional; when neither is configured, completed jobs
// carry the fixed explanation placeholder.
type LLMConfig struct {
	// GroqAPIKey enables the primary chat-completion provider.
	GroqAPIKey string `env:"GROQ_API_KEY"`

	// GroqModel is the chat model requested from the primary provider.
	GroqModel string `env:"GROQ_MODEL" envDefault:"llama-3.1-8b-instant"`

	// GroqBaseURL is the OpenAI-compatible API root of the primary provider.
	GroqBaseURL string `env:"GROQ_BASE_URL" envDefault:"https://api.groq.com/openai"`

	// HFAPIToken enables the Hugging Face inference fallback provider.
	HFAPIToken string `env:"HF_API_TOKEN"`

	// HFModel is the text-generation model used by the fallback provider.
	HFModel string `env:"HF_MODEL" envDefault:"mistralai/Mistral-7B-Instruct-v0.2"`

	// HFBaseURL is the Hugging Face inference API root.
	HFBaseURL string `env:"HF_BASE_URL" envDefault:"https://api-inference.huggingface.co"`

	// Timeout bounds each provider call.
	Timeout time.Duration `env:"LLM_TIMEOUT" envDefault:"15s"`
}

// Sanitize normalises LLM provider configuration values.
func (c *LLMConfig) Sanitize() {
	c.GroqAPIKey = strings.TrimSpace(c.GroqAPIKey)
	c.HFAPIToken = strings.TrimSpace(c.HFAPIToken)
	c.GroqBaseURL = strings.TrimRight(strings.TrimSpace(c.GroqBaseURL), "/")
	c.HFBaseURL = strings.TrimRight(strings.TrimSpace(c.HFBaseURL), "/")
	if c.Timeout <= 0 {
		c.Timeout = 15 * time.Second
	}
}

// Enabled reports whether at least one explanation provider is configured.
func (c *LLMConfig) Enabled() bool {
	return c.GroqAPIKey != "" || c.HFAPIToken != ""
}
