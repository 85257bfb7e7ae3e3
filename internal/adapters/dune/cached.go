package dune

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/chainsight/persona-api/config"
)

// CachedClient reads the most recent stored results of a pre-existing
// query instead of triggering a fresh execution. Useful when the saved
// query is refreshed on a schedule and per-wallet executions would burn
// credits for no gain.
type CachedClient struct {
	inner *Client
}

// NewCachedClient builds a stored-results client from the same options as
// NewClient.
func NewCachedClient(opts ClientOptions) (*CachedClient, error) {
	inner, err := NewClient(opts)
	if err != nil {
		return nil, err
	}
	return &CachedClient{inner: inner}, nil
}

// FetchWalletRow reads the latest stored result rows for the query,
// filtered to one wallet address.
func (c *CachedClient) FetchWalletRow(ctx context.Context, walletAddress string) (map[string]any, error) {
	u := fmt.Sprintf("%s/api/v1/query/%d/results?wallet=%s",
		c.inner.baseURL, c.inner.queryID, url.QueryEscape(walletAddress))

	var resp resultsResponse
	if _, err := c.inner.doJSON(ctx, http.MethodGet, u, nil, &resp); err != nil {
		return nil, fmt.Errorf("fetch stored results: %w", err)
	}
	if len(resp.Result.Rows) == 0 {
		return nil, fmt.Errorf("wallet %s: %w", walletAddress, ErrEmptyResult)
	}
	return resp.Result.Rows[0], nil
}

// FetchPage reads one page of the query's stored result rows. Used by the
// offline dataset tooling; the analysis pipeline always reads single-wallet
// rows.
func (c *CachedClient) FetchPage(ctx context.Context, limit, offset int) ([]map[string]any, error) {
	u := fmt.Sprintf("%s/api/v1/query/%d/results?limit=%d&offset=%d",
		c.inner.baseURL, c.inner.queryID, limit, offset)

	var resp resultsResponse
	if _, err := c.inner.doJSON(ctx, http.MethodGet, u, nil, &resp); err != nil {
		return nil, fmt.Errorf("fetch results page: %w", err)
	}
	return resp.Result.Rows, nil
}

// NewWalletQueryClient returns the client matching the configured fetch
// strategy.
func NewWalletQueryClient(opts ClientOptions) (WalletRowFetcher, error) {
	switch opts.Config.Strategy {
	case config.DuneStrategyCached:
		return NewCachedClient(opts)
	default:
		return NewClient(opts)
	}
}

// WalletRowFetcher is the subset of behavior both clients share.
type WalletRowFetcher interface {
	FetchWalletRow(ctx context.Context, walletAddress string) (map[string]any, error)
}
