// Package service contains the business logic orchestrating wallet persona
// analysis: job lifecycle, request deduplication, and the background
// pipeline sequencing the external calls.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chainsight/persona-api/internal/core"
	"github.com/chainsight/persona-api/internal/domain/features"
	"github.com/chainsight/persona-api/internal/domain/model"
	apperrors "github.com/chainsight/persona-api/internal/errors"
	"github.com/chainsight/persona-api/internal/observability/metrics"
	"github.com/chainsight/persona-api/internal/observability/statsd"
)

// AnalysisDeps groups the pipeline collaborators of AnalysisService.
type AnalysisDeps struct {
	Query     core.WalletQueryClient // Required: remote analytics engine
	Predictor core.Predictor         // Optional: nil means the model failed to load
	Explainer core.Explainer         // Optional: nil degrades to the placeholder
	Queue     core.TaskQueue         // Required: background pipeline scheduler
}

// AnalysisServiceOptions groups dependencies for AnalysisService.
type AnalysisServiceOptions struct {
	Store   core.JobStore // Required: job and wallet-result persistence
	Deps    AnalysisDeps
	Logger  *slog.Logger // Optional: structured logger
	Metrics statsd.Sink  // Optional: lifecycle metrics
}

// AnalysisService owns the analysis job lifecycle: it deduplicates requests
// against memoized wallet results and in-flight runs, schedules the
// background pipeline, and exposes polling by job id.
type AnalysisService struct {
	store     core.JobStore
	query     core.WalletQueryClient
	predictor core.Predictor
	explainer core.Explainer
	queue     core.TaskQueue
	logger    *slog.Logger
	metrics   statsd.Sink

	newID func() string
}

// NewAnalysisService constructs a new AnalysisService.
func NewAnalysisService(opts AnalysisServiceOptions) *AnalysisService {
	if opts.Store == nil {
		panic("JobStore is required")
	}
	if opts.Deps.Query == nil {
		panic("WalletQueryClient is required")
	}
	if opts.Deps.Queue == nil {
		panic("TaskQueue is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &AnalysisService{
		store:     opts.Store,
		query:     opts.Deps.Query,
		predictor: opts.Deps.Predictor,
		explainer: opts.Deps.Explainer,
		queue:     opts.Deps.Queue,
		logger:    logger.With("component", "analysis_service"),
		metrics:   opts.Metrics,
		newID:     uuid.NewString,
	}
}

// Start begins an analysis for a wallet address, or short-circuits when a
// fresh result exists. It never waits on the remote engine: a cache miss
// only writes the queued record and enqueues the pipeline.
func (s *AnalysisService) Start(ctx context.Context, walletAddress string) (*model.JobHandle, error) {
	walletAddress = strings.TrimSpace(walletAddress)
	if walletAddress == "" {
		return nil, apperrors.Validation("wallet address is required")
	}
	if s.predictor == nil {
		return nil, apperrors.Unavailable("clustering model is not loaded")
	}

	if handle, err := s.startFromCache(ctx, walletAddress); err != nil {
		return nil, err
	} else if handle != nil {
		return handle, nil
	}

	jobID := s.newID()

	// Collapse concurrent duplicate pipelines for the same wallet: the
	// loser polls the winner's job instead of spawning its own run.
	holder, acquired, err := s.store.AcquireInFlight(ctx, walletAddress, jobID)
	if err != nil {
		return nil, fmt.Errorf("acquire in-flight lock: %w", err)
	}
	if !acquired {
		if handle, ok := s.handleForHolder(ctx, holder, walletAddress); ok {
			return handle, nil
		}
		// The holder's record expired under a live lock. Clear the stale
		// entry (only while it is still the stale holder's) and retake.
		if holder != "" {
			if err := s.store.ReleaseInFlight(ctx, walletAddress, holder); err != nil {
				return nil, fmt.Errorf("release stale in-flight lock: %w", err)
			}
		}
		newHolder, reacquired, err := s.store.AcquireInFlight(ctx, walletAddress, jobID)
		if err != nil {
			return nil, fmt.Errorf("reacquire in-flight lock: %w", err)
		}
		if !reacquired {
			// A racing Start won the retake; fold onto its job like the
			// first attempt.
			if handle, ok := s.handleForHolder(ctx, newHolder, walletAddress); ok {
				return handle, nil
			}
			return nil, apperrors.Unavailable("wallet analysis is locked, retry shortly")
		}
	}

	job := model.NewJob(jobID, walletAddress)
	if err := s.store.SaveJob(ctx, job); err != nil {
		_ = s.store.ReleaseInFlight(ctx, walletAddress, jobID)
		return nil, fmt.Errorf("save queued job: %w", err)
	}

	if ok := s.queue.Enqueue(func(taskCtx context.Context) {
		s.run(taskCtx, jobID, walletAddress)
	}); !ok {
		s.rejectQueuedJob(ctx, job)
		return nil, apperrors.Unavailable("analysis queue is full")
	}

	metrics.EmitAnalysis(s.metrics, metrics.AnalysisMetric{
		Transition: "started",
		Result:     metrics.ResultSuccess,
	})
	s.logger.InfoContext(ctx, "analysis queued", "job_id", jobID, "wallet", walletAddress)

	return &model.JobHandle{
		JobID:         jobID,
		Status:        model.JobStatusQueued,
		WalletAddress: walletAddress,
	}, nil
}

// Status reads the current job record. Unknown or expired ids surface as
// NotFound.
func (s *AnalysisService) Status(ctx context.Context, jobID string) (*model.Job, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, apperrors.Validation("job id is required")
	}
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return job, nil
}

// Predict runs the clustering model synchronously against caller-supplied
// feature values, bypassing the analytics engine and the cache.
func (s *AnalysisService) Predict(values map[string]float64) (*model.Prediction, error) {
	if s.predictor == nil {
		return nil, apperrors.Unavailable("clustering model is not loaded")
	}
	prediction, err := s.predictor.Predict(features.FromValues(values))
	if err != nil {
		return nil, fmt.Errorf("predict persona: %w", err)
	}
	return prediction, nil
}

// startFromCache returns a pointer-job handle when a fresh completed result
// is memoized for the wallet, or nil on a miss.
func (s *AnalysisService) startFromCache(ctx context.Context, walletAddress string) (*model.JobHandle, error) {
	cached, err := s.store.GetWalletResult(ctx, walletAddress)
	if err != nil {
		return nil, fmt.Errorf("read wallet result: %w", err)
	}
	if cached == nil || cached.Status != model.JobStatusCompleted {
		metrics.EmitCacheLookup(s.metrics, metrics.CacheMiss)
		return nil, nil
	}
	metrics.EmitCacheLookup(s.metrics, metrics.CacheHit)

	pointer, err := cached.PointerJob(s.newID())
	if err != nil {
		return nil, fmt.Errorf("synthesize pointer job: %w", err)
	}
	if err := s.store.SavePointerJob(ctx, pointer); err != nil {
		return nil, fmt.Errorf("save pointer job: %w", err)
	}

	s.logger.InfoContext(ctx, "analysis served from cache",
		"job_id", pointer.ID, "wallet", walletAddress)

	return &model.JobHandle{
		JobID:         pointer.ID,
		Status:        model.JobStatusCompleted,
		WalletAddress: walletAddress,
	}, nil
}

// handleForHolder resolves the in-flight lock holder's job into a handle.
// Returns ok=false when the holder's record no longer exists.
func (s *AnalysisService) handleForHolder(ctx context.Context, holderID, walletAddress string) (*model.JobHandle, bool) {
	if holderID == "" {
		return nil, false
	}
	job, err := s.store.GetJob(ctx, holderID)
	if err != nil {
		return nil, false
	}
	s.logger.InfoContext(ctx, "analysis deduplicated onto in-flight job",
		"job_id", holderID, "wallet", walletAddress)
	metrics.EmitAnalysis(s.metrics, metrics.AnalysisMetric{
		Transition: "deduplicated",
		Result:     metrics.ResultSuccess,
	})
	return &model.JobHandle{
		JobID:         job.ID,
		Status:        job.Status,
		WalletAddress: job.WalletAddress,
	}, true
}

// rejectQueuedJob converts an already-saved queued job into a failed record
// when the worker pool would not accept it.
func (s *AnalysisService) rejectQueuedJob(ctx context.Context, job *model.Job) {
	metrics.EmitQueueRejected(s.metrics)
	if err := job.Fail("analysis queue is full"); err == nil {
		if saveErr := s.store.SaveJob(ctx, job); saveErr != nil {
			s.logger.ErrorContext(ctx, "save rejected job", "job_id", job.ID, "error", saveErr)
		}
	}
	if err := s.store.ReleaseInFlight(ctx, job.WalletAddress, job.ID); err != nil {
		s.logger.ErrorContext(ctx, "release in-flight lock", "wallet", job.WalletAddress, "error", err)
	}
}

// run executes the background pipeline for one job. Every failure is caught
// here and turned into a terminal failed record; nothing escapes to the
// worker pool.
func (s *AnalysisService) run(ctx context.Context, jobID, walletAddress string) {
	start := time.Now()
	defer func() {
		if err := s.store.ReleaseInFlight(ctx, walletAddress, jobID); err != nil {
			s.logger.ErrorContext(ctx, "release in-flight lock",
				"wallet", walletAddress, "error", err)
		}
	}()

	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		s.logger.ErrorContext(ctx, "load job for pipeline", "job_id", jobID, "error", err)
		return
	}

	if err := job.MarkProcessing(); err != nil {
		s.logger.WarnContext(ctx, "job not runnable", "job_id", jobID, "status", job.Status)
		return
	}
	if err := s.store.SaveJob(ctx, job); err != nil {
		s.logger.ErrorContext(ctx, "save processing job", "job_id", jobID, "error", err)
		return
	}

	result, err := s.executePipeline(ctx, walletAddress)
	if err != nil {
		s.failJob(ctx, job, err)
		metrics.EmitAnalysis(s.metrics, metrics.AnalysisMetric{
			Transition: "failed",
			Result:     metrics.ResultError,
			Duration:   time.Since(start),
			Err:        err,
		})
		return
	}

	if err := job.Complete(result); err != nil {
		s.logger.ErrorContext(ctx, "complete job", "job_id", jobID, "error", err)
		return
	}
	if err := s.store.SaveJob(ctx, job); err != nil {
		s.logger.ErrorContext(ctx, "save completed job", "job_id", jobID, "error", err)
		return
	}
	// Only completed runs are memoized by wallet; a failure here degrades
	// future requests to a cache miss, not a wrong answer.
	if err := s.store.SaveWalletResult(ctx, job); err != nil {
		s.logger.ErrorContext(ctx, "save wallet result", "job_id", jobID, "error", err)
	}

	metrics.EmitAnalysis(s.metrics, metrics.AnalysisMetric{
		Transition: "completed",
		Result:     metrics.ResultSuccess,
		Duration:   time.Since(start),
	})
	s.logger.InfoContext(ctx, "analysis completed",
		"job_id", jobID,
		"wallet", walletAddress,
		"persona", result.Persona,
		"duration", time.Since(start))
}

// executePipeline sequences the external calls: query, feature adaptation,
// prediction, explanation. Explanation failures degrade to the placeholder
// and never fail the pipeline.
func (s *AnalysisService) executePipeline(ctx context.Context, walletAddress string) (*model.AnalysisResult, error) {
	row, err := s.query.FetchWalletRow(ctx, walletAddress)
	if err != nil {
		return nil, fmt.Errorf("fetch wallet activity: %w", err)
	}

	vec := features.FromRow(row)
	if len(vec.Missing) > 0 {
		s.logger.DebugContext(ctx, "feature fields defaulted to zero",
			"wallet", walletAddress, "fields", vec.Missing)
	}

	prediction, err := s.predictor.Predict(vec)
	if err != nil {
		return nil, fmt.Errorf("predict persona: %w", err)
	}

	explanation := model.ExplanationPlaceholder
	if s.explainer != nil {
		text, err := s.explainer.Explain(ctx, prediction.Persona, vec.Values)
		if err != nil {
			s.logger.WarnContext(ctx, "explanation unavailable",
				"wallet", walletAddress, "error", err)
		} else {
			explanation = text
		}
	}

	return &model.AnalysisResult{
		ClusterLabel:     prediction.ClusterLabel,
		Persona:          prediction.Persona,
		ConfidenceScores: prediction.Probabilities,
		Explanation:      explanation,
		Stats:            vec.Values,
		MissingFields:    vec.Missing,
	}, nil
}

// failJob writes the terminal failed record with the causal message. The
// wallet namespace is never touched for failures.
func (s *AnalysisService) failJob(ctx context.Context, job *model.Job, cause error) {
	s.logger.ErrorContext(ctx, "analysis failed",
		"job_id", job.ID,
		"wallet", job.WalletAddress,
		"error", cause)
	if err := job.Fail(cause.Error()); err != nil {
		s.logger.ErrorContext(ctx, "fail job", "job_id", job.ID, "error", err)
		return
	}
	if err := s.store.SaveJob(ctx, job); err != nil {
		s.logger.ErrorContext(ctx, "save failed job", "job_id", job.ID, "error", err)
	}
}
