package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/chainsight/persona-api/internal/adapters/dune"
)

type downloadDatasetOptions struct {
	Output   string
	PageSize int
	MaxRows  int
	Retries  int
	Timeout  time.Duration
}

func parseDownloadDatasetFlags(args []string) (downloadDatasetOptions, error) {
	fs := flag.NewFlagSet("download-dataset", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts downloadDatasetOptions
	fs.StringVar(&opts.Output, "output", "wallet_dataset.csv", "Output CSV path")
	fs.IntVar(&opts.PageSize, "page-size", 500, "Rows to request per page")
	fs.IntVar(&opts.MaxRows, "max-rows", 0, "Stop after this many rows (0 for all)")
	fs.IntVar(&opts.Retries, "retries", 3, "Retries per page before giving up")
	fs.DurationVar(&opts.Timeout, "timeout", 10*time.Minute, "Overall download timeout")

	if err := fs.Parse(args); err != nil {
		return downloadDatasetOptions{}, err
	}
	if opts.PageSize <= 0 {
		return downloadDatasetOptions{}, fmt.Errorf("--page-size must be positive")
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	return opts, nil
}

func runDownloadDataset(cmdCtx *commandContext, args []string) error {
	opts, err := parseDownloadDatasetFlags(args)
	if err != nil {
		return err
	}
	if cmdCtx.Config.Dune.APIKey == "" {
		return fmt.Errorf("analytics API key is not configured")
	}

	client, err := dune.NewCachedClient(dune.ClientOptions{
		Config:     cmdCtx.Config.Dune,
		HTTPClient: &http.Client{Timeout: cmdCtx.Config.Dune.HTTPTimeout},
		Logger:     cmdCtx.Logger,
	})
	if err != nil {
		return fmt.Errorf("build query client: %w", err)
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, opts.Timeout)
	defer cancel()

	rows, err := fetchAllPages(ctx, cmdCtx, client, opts)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("query returned no rows")
	}

	if writeErr := writeCSV(opts.Output, rowsToRecords(rows)); writeErr != nil {
		return writeErr
	}

	cmdCtx.Logger.Info("dataset download complete",
		"rows", len(rows),
		"output", opts.Output)
	return nil
}

func fetchAllPages(
	ctx context.Context,
	cmdCtx *commandContext,
	client *dune.CachedClient,
	opts downloadDatasetOptions,
) ([]map[string]any, error) {
	var rows []map[string]any
	for offset := 0; ; offset += opts.PageSize {
		page, err := fetchPageWithRetry(ctx, cmdCtx, client, opts, offset)
		if err != nil {
			return nil, err
		}
		rows = append(rows, page...)

		if len(page) < opts.PageSize {
			break
		}
		if opts.MaxRows > 0 && len(rows) >= opts.MaxRows {
			rows = rows[:opts.MaxRows]
			break
		}
	}
	return rows, nil
}

func fetchPageWithRetry(
	ctx context.Context,
	cmdCtx *commandContext,
	client *dune.CachedClient,
	opts downloadDatasetOptions,
	offset int,
) ([]map[string]any, error) {
	var lastErr error
	for attempt := 0; attempt <= opts.Retries; attempt++ {
		if attempt > 0 {
			cmdCtx.Logger.Warn("page fetch retrying",
				"offset", offset,
				"attempt", attempt,
				"error", lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * 2 * time.Second):
			}
		}
		page, err := client.FetchPage(ctx, opts.PageSize, offset)
		if err == nil {
			return page, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("fetch page at offset %d: %w", offset, lastErr)
}

// rowsToRecords flattens JSON rows into CSV records. Columns come from the
// union of keys across all rows, sorted for a stable header.
func rowsToRecords(rows []map[string]any) [][]string {
	columnSet := make(map[string]struct{})
	for _, row := range rows {
		for k := range row {
			columnSet[k] = struct{}{}
		}
	}
	columns := make([]string, 0, len(columnSet))
	for k := range columnSet {
		columns = append(columns, k)
	}
	sort.Strings(columns)

	records := make([][]string, 0, len(rows)+1)
	records = append(records, columns)
	for _, row := range rows {
		record := make([]string, len(columns))
		for i, col := range columns {
			record[i] = cellString(row[col])
		}
		records = append(records, record)
	}
	return records
}

func cellString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}
