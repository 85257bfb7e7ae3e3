package dune

import (
	"errors"
	"fmt"
)

// ErrEmptyResult indicates the completed execution returned zero rows. A
// wallet with no recorded activity is treated as not-found, not as a valid
// zero-filled answer.
var ErrEmptyResult = errors.New("no activity rows for wallet")

// SubmissionError indicates the engine rejected the execution request or
// returned a response without an execution id.
type SubmissionError struct {
	StatusCode int
	Message    string
}

func (e *SubmissionError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("query submission rejected (status %d): %s", e.StatusCode, e.Message)
	}
	return "query submission rejected: " + e.Message
}

// ExecutionError indicates the engine ran the query but it reached a failed
// or cancelled state.
type ExecutionError struct {
	ExecutionID string
	State       ExecutionState
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("remote execution %s ended in state %s", e.ExecutionID, e.State)
}

// PollTimeoutError indicates the poll budget was exhausted before the
// execution reached a terminal state.
type PollTimeoutError struct {
	ExecutionID string
	Attempts    int
}

func (e *PollTimeoutError) Error() string {
	return fmt.Sprintf("execution %s did not complete within %d poll attempts", e.ExecutionID, e.Attempts)
}

// RateLimitError indicates the engine returned HTTP 429 for the account.
type RateLimitError struct{}

func (e *RateLimitError) Error() string {
	return "analytics engine rate limit exceeded"
}
