// Package features defines the fixed feature schema required by the
// clustering model and the adapter that maps raw analytics rows onto it.
package features

import (
	"sort"
	"strconv"
)

// Schema is the ordered, fixed set of numeric fields the model consumes.
// Order matters: the training artifact's transform parameters and centroid
// coordinates are positional.
var Schema = []string{
	"tx_count",
	"active_days",
	"avg_tx_per_day",
	"total_gas_spent",
	"total_nft_buys",
	"total_nft_sells",
	"total_nft_volume_usd",
	"unique_nfts_owned",
	"dex_trades",
	"avg_trade_size_usd",
	"total_traded_usd",
	"erc20_receive_usd",
	"erc20_send_usd",
	"native_balance_delta",
}

// Vector is a complete, gap-filled feature vector. Every Schema field is
// present with a defined numeric value.
type Vector struct {
	Values map[string]float64
	// Missing lists schema fields that were absent or null in the source
	// row and defaulted to zero. Recorded for diagnostics only.
	Missing []string
}

// FromRow maps a raw result row onto the schema. A field absent from the
// row, explicitly null, or not coercible to a number defaults to 0.0 and is
// recorded in Missing; this substitution is never an error.
func FromRow(row map[string]any) Vector {
	v := Vector{Values: make(map[string]float64, len(Schema))}
	for _, field := range Schema {
		raw, ok := row[field]
		if !ok || raw == nil {
			v.Values[field] = 0
			v.Missing = append(v.Missing, field)
			continue
		}
		f, ok := coerceFloat(raw)
		if !ok {
			v.Values[field] = 0
			v.Missing = append(v.Missing, field)
			continue
		}
		v.Values[field] = f
	}
	sort.Strings(v.Missing)
	return v
}

// FromValues builds a Vector from an already-complete mapping, e.g. a
// direct prediction request body. Fields outside the schema are ignored.
func FromValues(values map[string]float64) Vector {
	v := Vector{Values: make(map[string]float64, len(Schema))}
	for _, field := range Schema {
		v.Values[field] = values[field]
	}
	return v
}

// Ordered returns the vector's values in schema order.
func (v Vector) Ordered() []float64 {
	out := make([]float64, len(Schema))
	for i, field := range Schema {
		out[i] = v.Values[field]
	}
	return out
}

// coerceFloat converts the value shapes a decoded JSON row can carry.
// Numeric strings are accepted because the analytics engine serialises
// large numerics as strings.
func coerceFloat(raw any) (float64, bool) {
	switch x := raw.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
