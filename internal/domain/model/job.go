// Package model defines the core data types for the wallet persona analysis
// pipeline.
package model

import (
	"errors"
	"fmt"
	"time"
)

// JobStatus represents the current status of an analysis job.
type JobStatus string

const (
	// JobStatusQueued indicates a job is waiting for a pipeline worker.
	JobStatusQueued JobStatus = "queued"
	// JobStatusProcessing indicates the pipeline is currently executing.
	JobStatusProcessing JobStatus = "processing"
	// JobStatusCompleted indicates the pipeline finished successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the pipeline failed.
	JobStatusFailed JobStatus = "failed"
)

// Valid returns true if the JobStatus is valid.
func (s JobStatus) Valid() bool {
	return s == JobStatusQueued || s == JobStatusProcessing ||
		s == JobStatusCompleted || s == JobStatusFailed
}

// Terminal returns true when the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// ExplanationPlaceholder is attached to completed results when no
// explanation provider is configured or every provider failed.
const ExplanationPlaceholder = "Analysis unavailable (AI models busy)."

// AnalysisResult is the outcome of a completed analysis job.
type AnalysisResult struct {
	ClusterLabel     int                `json:"cluster_label"`
	Persona          string             `json:"persona"`
	ConfidenceScores map[string]float64 `json:"confidence_scores"`
	Explanation      string             `json:"explanation"`
	// Stats is the gap-filled feature vector the prediction was made from.
	Stats map[string]float64 `json:"stats"`
	// MissingFields lists schema fields that were absent or null in the
	// analytics row and defaulted to zero. Diagnostic only.
	MissingFields []string `json:"missing_fields,omitempty"`
}

// Job represents one asynchronous analysis of a wallet address.
//
// Exactly one of Result and Error is populated, and only once the job has
// reached a terminal status. A job never leaves a terminal status.
type Job struct {
	ID            string          `json:"job_id"`
	WalletAddress string          `json:"wallet_address"`
	Status        JobStatus       `json:"status"`
	Result        *AnalysisResult `json:"result,omitempty"`
	Error         string          `json:"error,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// NewJob creates a queued job for the given wallet address.
func NewJob(id, walletAddress string) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:            id,
		WalletAddress: walletAddress,
		Status:        JobStatusQueued,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// ErrTerminalTransition is returned when a transition out of a terminal
// status is attempted.
var ErrTerminalTransition = errors.New("job already in terminal status")

// MarkProcessing transitions a queued job into processing.
func (j *Job) MarkProcessing() error {
	if j.Status.Terminal() {
		return ErrTerminalTransition
	}
	j.Status = JobStatusProcessing
	j.UpdatedAt = time.Now().UTC()
	return nil
}

// Complete transitions the job into the completed terminal status with the
// given result.
func (j *Job) Complete(result *AnalysisResult) error {
	if j.Status.Terminal() {
		return ErrTerminalTransition
	}
	if result == nil {
		return errors.New("completed job requires a result")
	}
	j.Status = JobStatusCompleted
	j.Result = result
	j.Error = ""
	j.UpdatedAt = time.Now().UTC()
	return nil
}

// Fail transitions the job into the failed terminal status with a
// human-readable message.
func (j *Job) Fail(message string) error {
	if j.Status.Terminal() {
		return ErrTerminalTransition
	}
	if message == "" {
		message = "analysis failed"
	}
	j.Status = JobStatusFailed
	j.Error = message
	j.Result = nil
	j.UpdatedAt = time.Now().UTC()
	return nil
}

// PointerJob synthesizes a short-lived copy of a completed job under a new
// id, preserving a uniform polling API for wallet cache hits.
func (j *Job) PointerJob(id string) (*Job, error) {
	if j.Status != JobStatusCompleted {
		return nil, fmt.Errorf("pointer job requires a completed source, got %q", j.Status)
	}
	now := time.Now().UTC()
	cp := *j
	cp.ID = id
	cp.CreatedAt = now
	cp.UpdatedAt = now
	return &cp, nil
}

// JobHandle is the immediate response to an analysis start request.
// Callers always poll by job id regardless of whether the result was
// memoized.
type JobHandle struct {
	JobID         string    `json:"job_id"`
	Status        JobStatus `json:"status"`
	WalletAddress string    `json:"wallet_address"`
}
