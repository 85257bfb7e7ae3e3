package core

import (
	"context"

	"github.com/chainsight/persona-api/internal/domain/features"
	"github.com/chainsight/persona-api/internal/domain/model"
)

// JobStore persists job records and memoized wallet results on top of a
// CacheRepository, owning the key namespacing and retention windows.
type JobStore interface {
	// SaveJob writes a job record under its id with the long retention
	// window.
	SaveJob(ctx context.Context, job *model.Job) error

	// SavePointerJob writes a pointer job under its id with the short
	// retention window.
	SavePointerJob(ctx context.Context, job *model.Job) error

	// GetJob reads a job record by id. Returns a NotFound application
	// error when the id is unknown or expired.
	GetJob(ctx context.Context, jobID string) (*model.Job, error)

	// SaveWalletResult memoizes a completed job under the wallet key.
	// Rejects jobs that are not completed; failed runs never reach the
	// wallet namespace.
	SaveWalletResult(ctx context.Context, job *model.Job) error

	// GetWalletResult reads the memoized result for a wallet address.
	// A miss returns (nil, nil): absence is the normal cold-cache case,
	// not an error.
	GetWalletResult(ctx context.Context, walletAddress string) (*model.Job, error)

	// AcquireInFlight attempts to take the per-wallet in-flight lock for
	// the given job id. When the lock is already held, the holding job id
	// is returned with acquired=false.
	AcquireInFlight(ctx context.Context, walletAddress, jobID string) (holder string, acquired bool, err error)

	// ReleaseInFlight drops the per-wallet in-flight lock when the given
	// job still owns it. Releasing a lock another job has since acquired
	// is a no-op, not an error.
	ReleaseInFlight(ctx context.Context, walletAddress, jobID string) error
}

// WalletQueryClient fetches the activity row for a wallet from the remote
// analytics engine. Implementations own the retry/backoff and timeout
// policy of the remote protocol.
type WalletQueryClient interface {
	FetchWalletRow(ctx context.Context, walletAddress string) (map[string]any, error)
}

// Predictor assigns a feature vector to a behavioral persona cluster.
type Predictor interface {
	Predict(vec features.Vector) (*model.Prediction, error)
}

// Explainer produces a natural-language explanation for a persona
// assignment. Failures are non-fatal to the pipeline: callers substitute
// the explanation placeholder.
type Explainer interface {
	Explain(ctx context.Context, persona string, stats map[string]float64) (string, error)
}

// TaskQueue schedules background pipeline executions. Enqueue must never
// block the request path; it reports false when the task was not accepted
// (queue full or shutting down).
type TaskQueue interface {
	Enqueue(task func(ctx context.Context)) bool
}
