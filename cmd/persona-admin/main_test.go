package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePredictBatchFlagsDefaultsOutput(t *testing.T) {
	t.Parallel()

	opts, err := parsePredictBatchFlags([]string{"--input", "wallets.csv"}, "kmeans_model.json")
	require.NoError(t, err)

	assert.Equal(t, "wallets_predicted.csv", opts.Output)
	assert.Equal(t, "kmeans_model.json", opts.Model)
}

func TestParsePredictBatchFlagsRequiresInput(t *testing.T) {
	t.Parallel()

	_, err := parsePredictBatchFlags(nil, "kmeans_model.json")
	require.Error(t, err)
}

func TestNumericColumnsSkipsIdentifiers(t *testing.T) {
	t.Parallel()

	header := []string{"wallet_address", "tx_count", "avg_value"}
	row := []string{"0xabc", "42", "1.5"}

	values := numericColumns(header, row)

	assert.Equal(t, map[string]float64{"tx_count": 42, "avg_value": 1.5}, values)
}

func TestRowsToRecordsStableHeader(t *testing.T) {
	t.Parallel()

	rows := []map[string]any{
		{"wallet": "0xabc", "tx_count": float64(3)},
		{"wallet": "0xdef", "active": true},
	}

	records := rowsToRecords(rows)

	require.Len(t, records, 3)
	assert.Equal(t, []string{"active", "tx_count", "wallet"}, records[0])
	assert.Equal(t, []string{"", "3", "0xabc"}, records[1])
	assert.Equal(t, []string{"true", "", "0xdef"}, records[2])
}

func TestCommandsAreRegistered(t *testing.T) {
	t.Parallel()

	cmds := commands()
	for _, name := range []string{
		"predict-batch", "download-dataset", "job-status", "wallet-result", "cache-stats",
	} {
		cmd, ok := cmds[name]
		require.True(t, ok, name)
		assert.Equal(t, name, cmd.name)
		assert.NotEmpty(t, cmd.description)
		assert.NotNil(t, cmd.run)
	}
}
