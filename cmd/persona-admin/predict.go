package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chainsight/persona-api/internal/adapters/model"
	"github.com/chainsight/persona-api/internal/domain/features"
)

type predictBatchOptions struct {
	Input  string
	Output string
	Model  string
}

func parsePredictBatchFlags(args []string, defaultModel string) (predictBatchOptions, error) {
	fs := flag.NewFlagSet("predict-batch", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var opts predictBatchOptions
	fs.StringVar(&opts.Input, "input", "", "CSV file of wallet feature rows (required)")
	fs.StringVar(&opts.Output, "output", "", "Output CSV path (default <input>_predicted.csv)")
	fs.StringVar(&opts.Model, "model", defaultModel, "Path to the model artifact JSON")

	if err := fs.Parse(args); err != nil {
		return predictBatchOptions{}, err
	}
	if opts.Input == "" {
		return predictBatchOptions{}, fmt.Errorf("--input is required")
	}
	if opts.Output == "" {
		base := strings.TrimSuffix(opts.Input, filepath.Ext(opts.Input))
		opts.Output = base + "_predicted.csv"
	}
	return opts, nil
}

func runPredictBatch(cmdCtx *commandContext, args []string) error {
	opts, err := parsePredictBatchFlags(args, cmdCtx.Config.Model.ArtifactPath)
	if err != nil {
		return err
	}

	predictor, err := model.Load(opts.Model)
	if err != nil {
		return fmt.Errorf("load model artifact: %w", err)
	}

	in, err := os.Open(opts.Input)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer func() {
		if closeErr := in.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("input close failed", "error", closeErr)
		}
	}()

	records, err := csv.NewReader(in).ReadAll()
	if err != nil {
		return fmt.Errorf("read input CSV: %w", err)
	}
	if len(records) < 2 {
		return fmt.Errorf("input CSV has no data rows")
	}

	header := records[0]
	out := make([][]string, 0, len(records))
	out = append(out, append(append([]string{}, header...), "predicted_cluster", "predicted_persona"))

	for i, row := range records[1:] {
		values := numericColumns(header, row)
		prediction, predictErr := predictor.Predict(features.FromValues(values))
		if predictErr != nil {
			return fmt.Errorf("predict row %d: %w", i+1, predictErr)
		}
		out = append(out, append(append([]string{}, row...),
			strconv.Itoa(prediction.ClusterLabel), prediction.Persona))
	}

	if writeErr := writeCSV(opts.Output, out); writeErr != nil {
		return writeErr
	}

	cmdCtx.Logger.Info("predict batch complete",
		"rows", len(records)-1,
		"output", opts.Output)
	return nil
}

// numericColumns keeps only the cells that parse as numbers. Identifier
// columns such as the wallet address pass through to the output unchanged
// but never reach the model.
func numericColumns(header, row []string) map[string]float64 {
	values := make(map[string]float64, len(header))
	for i, name := range header {
		if i >= len(row) {
			break
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(row[i]), 64)
		if err != nil {
			continue
		}
		values[name] = f
	}
	return values
}

func writeCSV(path string, records [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(records); err != nil {
		_ = f.Close()
		return fmt.Errorf("write output CSV: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	return nil
}
