// Package dune provides clients for the Dune analytics query engine.
//
// The engine is asynchronous: query execution is not instantaneous, so the
// primary client drives a three-phase submit/poll/fetch protocol with a
// bounded poll budget. A simpler client reading the stored results of a
// pre-existing query lives in cached.go; both satisfy
// core.WalletQueryClient.
package dune

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/chainsight/persona-api/config"
)

// ExecutionState is the remote-defined lifecycle state of one execution.
type ExecutionState string

// Remote execution states we react to. Anything else is treated as still
// in progress.
const (
	StateCompleted ExecutionState = "QUERY_STATE_COMPLETED"
	StateFailed    ExecutionState = "QUERY_STATE_FAILED"
	StateCancelled ExecutionState = "QUERY_STATE_CANCELLED"
)

const apiKeyHeader = "X-Dune-API-Key"

// Client executes the submit/poll/fetch protocol against the engine.
type Client struct {
	apiKey       string
	baseURL      string
	queryID      int64
	pollInterval time.Duration
	maxAttempts  int
	http         *http.Client
	logger       *slog.Logger
}

// ClientOptions groups dependencies for NewClient.
type ClientOptions struct {
	Config     config.DuneConfig
	HTTPClient *http.Client // Optional: defaults to a client with the configured timeout
	Logger     *slog.Logger // Optional: structured logger
}

// NewClient builds an execution client. Callers should pass a sanitized
// config.
func NewClient(opts ClientOptions) (*Client, error) {
	if opts.Config.APIKey == "" {
		return nil, errors.New("dune api key is required")
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Config.HTTPTimeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		apiKey:       opts.Config.APIKey,
		baseURL:      opts.Config.BaseURL,
		queryID:      opts.Config.QueryID,
		pollInterval: opts.Config.PollInterval,
		maxAttempts:  opts.Config.MaxPollAttempts,
		http:         hc,
		logger:       logger.With("component", "dune_client"),
	}, nil
}

// FetchWalletRow runs the saved wallet-activity query for one address and
// returns the first result row.
func (c *Client) FetchWalletRow(ctx context.Context, walletAddress string) (map[string]any, error) {
	executionID, err := c.submit(ctx, walletAddress)
	if err != nil {
		return nil, err
	}

	if err := c.awaitCompletion(ctx, executionID); err != nil {
		return nil, err
	}

	rows, err := c.fetchRows(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("wallet %s: %w", walletAddress, ErrEmptyResult)
	}
	return rows[0], nil
}

type executeResponse struct {
	ExecutionID string         `json:"execution_id"`
	State       ExecutionState `json:"state"`
}

// submit issues the parameterized execution request and returns the opaque
// execution id.
func (c *Client) submit(ctx context.Context, walletAddress string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"query_parameters": map[string]string{"wallet": walletAddress},
	})
	if err != nil {
		return "", fmt.Errorf("encode execution request: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/query/%d/execute", c.baseURL, c.queryID)
	var resp executeResponse
	status, err := c.doJSON(ctx, http.MethodPost, url, bytes.NewReader(body), &resp)
	if err != nil {
		return "", &SubmissionError{StatusCode: status, Message: err.Error()}
	}
	if resp.ExecutionID == "" {
		return "", &SubmissionError{StatusCode: status, Message: "response missing execution_id"}
	}

	c.logger.DebugContext(ctx, "execution submitted",
		"execution_id", resp.ExecutionID,
		"wallet", walletAddress)
	return resp.ExecutionID, nil
}

type statusResponse struct {
	State ExecutionState `json:"state"`
}

// awaitCompletion polls execution status at the configured interval until
// the execution completes, fails, or the attempt budget runs out. Transient
// transport errors consume an attempt and the loop continues; a single blip
// must not abort the whole poll.
func (c *Client) awaitCompletion(ctx context.Context, executionID string) error {
	url := fmt.Sprintf("%s/api/v1/execution/%s/status", c.baseURL, executionID)

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		var resp statusResponse
		if _, err := c.doJSON(ctx, http.MethodGet, url, nil, &resp); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.WarnContext(ctx, "execution status check failed",
				"execution_id", executionID,
				"attempt", attempt,
				"error", err)
		} else {
			switch resp.State {
			case StateCompleted:
				return nil
			case StateFailed, StateCancelled:
				return &ExecutionError{ExecutionID: executionID, State: resp.State}
			}
		}

		if attempt == c.maxAttempts {
			break
		}
		if err := sleepCtx(ctx, c.pollInterval); err != nil {
			return err
		}
	}

	return &PollTimeoutError{ExecutionID: executionID, Attempts: c.maxAttempts}
}

type resultsResponse struct {
	Result struct {
		Rows []map[string]any `json:"rows"`
	} `json:"result"`
}

// fetchRows retrieves result rows for a completed execution.
func (c *Client) fetchRows(ctx context.Context, executionID string) ([]map[string]any, error) {
	url := fmt.Sprintf("%s/api/v1/execution/%s/results", c.baseURL, executionID)
	var resp resultsResponse
	if _, err := c.doJSON(ctx, http.MethodGet, url, nil, &resp); err != nil {
		return nil, fmt.Errorf("fetch execution results: %w", err)
	}
	return resp.Result.Rows, nil
}

// doJSON performs one request and decodes a JSON response. Non-2xx statuses
// are errors; 429 is surfaced as a RateLimitError.
func (c *Client) doJSON(ctx context.Context, method, url string, body io.Reader, dst any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set(apiKeyHeader, c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		return resp.StatusCode, &RateLimitError{}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, fmt.Errorf("%s %s: status %d: %s", method, url, resp.StatusCode, snippet)
	}

	if dst != nil {
		if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// sleepCtx waits for d or until the context is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	select {
	case <-ctx.Done():
		if !timer.Stop() {
			<-timer.C
		}
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
