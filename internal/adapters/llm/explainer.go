// Package llm generates natural-language persona explanations through
// hosted language-model providers with a primary/fallback chain.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/jmespath-community/go-jmespath"

	"github.com/chainsight/persona-api/config"
)

// ErrExplanationUnavailable is returned when every configured provider
// failed or none is configured. Callers substitute the fixed placeholder.
var ErrExplanationUnavailable = errors.New("no explanation provider produced a result")

// Content paths into the provider response bodies.
const (
	groqContentPath = "choices[0].message.content"
	hfContentPath   = "[0].generated_text"
)

// provider is one explanation backend in the fallback chain.
type provider struct {
	name    string
	request func(ctx context.Context, prompt string) (*http.Request, error)
	extract string
}

// ChainExplainer tries each configured provider in order and returns the
// first usable explanation.
type ChainExplainer struct {
	providers []provider
	http      *http.Client
	logger    *slog.Logger
}

// ChainExplainerOptions groups dependencies for NewChainExplainer.
type ChainExplainerOptions struct {
	Config     config.LLMConfig
	HTTPClient *http.Client // Optional: defaults to a client with the configured timeout
	Logger     *slog.Logger // Optional: structured logger
}

// NewChainExplainer builds the provider chain from configuration. Providers
// without credentials are left out; an empty chain is valid and always
// returns ErrExplanationUnavailable.
func NewChainExplainer(opts ChainExplainerOptions) *ChainExplainer {
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Config.Timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := &ChainExplainer{http: hc, logger: logger.With("component", "llm_explainer")}

	if cfg := opts.Config; cfg.GroqAPIKey != "" {
		e.providers = append(e.providers, provider{
			name:    "groq",
			extract: groqContentPath,
			request: func(ctx context.Context, prompt string) (*http.Request, error) {
				body, err := json.Marshal(map[string]any{
					"model": cfg.GroqModel,
					"messages": []map[string]string{
						{"role": "user", "content": prompt},
					},
					"max_tokens":  220,
					"temperature": 0.7,
				})
				if err != nil {
					return nil, err
				}
				req, err := http.NewRequestWithContext(ctx, http.MethodPost,
					cfg.GroqBaseURL+"/v1/chat/completions", bytes.NewReader(body))
				if err != nil {
					return nil, err
				}
				req.Header.Set("Authorization", "Bearer "+cfg.GroqAPIKey)
				req.Header.Set("Content-Type", "application/json")
				return req, nil
			},
		})
	}

	if cfg := opts.Config; cfg.HFAPIToken != "" {
		e.providers = append(e.providers, provider{
			name:    "huggingface",
			extract: hfContentPath,
			request: func(ctx context.Context, prompt string) (*http.Request, error) {
				body, err := json.Marshal(map[string]any{
					"inputs": prompt,
					"parameters": map[string]any{
						"max_new_tokens":   220,
						"return_full_text": false,
					},
				})
				if err != nil {
					return nil, err
				}
				req, err := http.NewRequestWithContext(ctx, http.MethodPost,
					cfg.HFBaseURL+"/models/"+cfg.HFModel, bytes.NewReader(body))
				if err != nil {
					return nil, err
				}
				req.Header.Set("Authorization", "Bearer "+cfg.HFAPIToken)
				req.Header.Set("Content-Type", "application/json")
				return req, nil
			},
		})
	}

	return e
}

// Explain builds a prompt from the persona and headline wallet stats, then
// walks the provider chain until one answers.
func (e *ChainExplainer) Explain(ctx context.Context, persona string, stats map[string]float64) (string, error) {
	prompt := buildPrompt(persona, stats)

	for _, p := range e.providers {
		text, err := e.call(ctx, p, prompt)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			e.logger.WarnContext(ctx, "explanation provider failed",
				"provider", p.name,
				"error", err)
			continue
		}
		return text, nil
	}
	return "", ErrExplanationUnavailable
}

func (e *ChainExplainer) call(ctx context.Context, p provider, prompt string) (string, error) {
	req, err := p.request(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("build %s request: %w", p.name, err)
	}

	resp, err := e.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s call: %w", p.name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%s call: status %d: %s", p.name, resp.StatusCode, snippet)
	}

	var decoded any
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode %s response: %w", p.name, err)
	}

	extracted, err := jmespath.Search(p.extract, decoded)
	if err != nil {
		return "", fmt.Errorf("extract %s content: %w", p.name, err)
	}
	text, ok := extracted.(string)
	if !ok || strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%s response carried no content", p.name)
	}
	return strings.TrimSpace(text), nil
}

// buildPrompt renders the persona and its headline stats into the
// explanation request. Stats are sorted for a deterministic prompt.
func buildPrompt(persona string, stats map[string]float64) string {
	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	fmt.Fprintf(&b, "An on-chain wallet was classified as the %q persona based on its activity.\n", persona)
	b.WriteString("Key statistics:\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "- %s: %.2f\n", k, stats[k])
	}
	b.WriteString("In two or three sentences, explain in plain language what this wallet's behavior suggests. Do not mention clustering or machine learning.")
	return b.String()
}
