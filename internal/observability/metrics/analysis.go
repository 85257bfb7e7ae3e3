// Package metrics standardises the metric names and tags emitted by the
// analysis pipeline.
package metrics

import (
	"time"

	apperrors "github.com/chainsight/persona-api/internal/errors"
	"github.com/chainsight/persona-api/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

// Cache lookup outcomes for the wallet result namespace.
const (
	CacheHit  = "hit"
	CacheMiss = "miss"
)

// AnalysisMetric captures one pipeline lifecycle event for emission.
type AnalysisMetric struct {
	Transition string // started, completed, failed, deduplicated
	Result     string
	Duration   time.Duration
	Err        error
}

// EmitAnalysis emits standardised pipeline lifecycle metrics.
func EmitAnalysis(sink statsd.Sink, in AnalysisMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"transition": in.Transition,
		"result":     in.Result,
	}
	if in.Err != nil && in.Result == ResultError {
		tags["error_code"] = string(apperrors.CodeOf(in.Err))
	}

	sink.Count("analysis.transition", 1, tags)

	if in.Duration > 0 {
		sink.Timing("analysis.duration", in.Duration, CloneTags(tags))
	}
}

// EmitCacheLookup records a wallet result cache lookup outcome.
func EmitCacheLookup(sink statsd.Sink, outcome string) {
	if sink == nil {
		return
	}
	sink.Count("analysis.cache_lookup", 1, map[string]string{"outcome": outcome})
}

// EmitQueueRejected records a pipeline run rejected by a full worker queue.
func EmitQueueRejected(sink statsd.Sink) {
	if sink == nil {
		return
	}
	sink.Count("analysis.queue_rejected", 1, nil)
}

// CloneTags creates a shallow copy of a tag map, filtering nothing.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
