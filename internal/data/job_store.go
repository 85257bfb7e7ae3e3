package data

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chainsight/persona-api/internal/core"
	"github.com/chainsight/persona-api/internal/domain/model"
	apperrors "github.com/chainsight/persona-api/internal/errors"
)

// Key namespaces sharing the one cache store. Raw job ids are UUID-shaped
// and cannot collide with the prefixed namespaces; the prefix discipline
// here is load-bearing and must be preserved.
const (
	walletKeyPrefix   = "wallet:"
	inflightKeyPrefix = "inflight:"
)

// CacheJobStore implements core.JobStore on top of a core.CacheRepository.
// Job records are retained for the long result window so delayed polling
// works; pointer jobs get the short window since they represent an
// already-resolved lookup.
type CacheJobStore struct {
	cache       core.CacheRepository
	resultTTL   time.Duration
	pointerTTL  time.Duration
	inflightTTL time.Duration
}

// CacheJobStoreOptions groups dependencies for NewCacheJobStore.
type CacheJobStoreOptions struct {
	Cache       core.CacheRepository
	ResultTTL   time.Duration
	PointerTTL  time.Duration
	InFlightTTL time.Duration
}

// NewCacheJobStore creates a CacheJobStore with the given retention windows.
func NewCacheJobStore(opts CacheJobStoreOptions) *CacheJobStore {
	if opts.Cache == nil {
		panic("CacheRepository is required")
	}
	if opts.ResultTTL <= 0 {
		opts.ResultTTL = 24 * time.Hour
	}
	if opts.PointerTTL <= 0 {
		opts.PointerTTL = 5 * time.Minute
	}
	if opts.InFlightTTL <= 0 {
		opts.InFlightTTL = 2 * time.Minute
	}
	return &CacheJobStore{
		cache:       opts.Cache,
		resultTTL:   opts.ResultTTL,
		pointerTTL:  opts.PointerTTL,
		inflightTTL: opts.InFlightTTL,
	}
}

var _ core.JobStore = (*CacheJobStore)(nil)

func walletKey(address string) string {
	return walletKeyPrefix + address
}

func inflightKey(address string) string {
	return inflightKeyPrefix + address
}

func (s *CacheJobStore) putJob(ctx context.Context, job *model.Job, ttl time.Duration) error {
	if job == nil || job.ID == "" {
		return apperrors.Validation("job id is required")
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}
	if err := s.cache.Set(ctx, job.ID, payload, ttl); err != nil {
		return fmt.Errorf("store job %s: %w", job.ID, err)
	}
	return nil
}

// SaveJob writes a job record under its id with the long retention window.
func (s *CacheJobStore) SaveJob(ctx context.Context, job *model.Job) error {
	return s.putJob(ctx, job, s.resultTTL)
}

// SavePointerJob writes a pointer job under its id with the short retention
// window.
func (s *CacheJobStore) SavePointerJob(ctx context.Context, job *model.Job) error {
	return s.putJob(ctx, job, s.pointerTTL)
}

// GetJob reads a job record by id.
func (s *CacheJobStore) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	if jobID == "" {
		return nil, apperrors.Validation("job id is required")
	}
	payload, err := s.cache.Get(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("read job %s: %w", jobID, err)
	}
	if payload == nil {
		return nil, apperrors.NotFoundf("job %s not found", jobID)
	}
	var job model.Job
	if err := json.Unmarshal(payload, &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", jobID, err)
	}
	return &job, nil
}

// SaveWalletResult memoizes a completed job under the wallet namespace.
func (s *CacheJobStore) SaveWalletResult(ctx context.Context, job *model.Job) error {
	if job == nil || job.WalletAddress == "" {
		return apperrors.Validation("wallet address is required")
	}
	// Only completed results are memoized by wallet; a failed run must not
	// shadow a later retry.
	if job.Status != model.JobStatusCompleted {
		return apperrors.Validationf("wallet result requires completed job, got %q", job.Status)
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode wallet result %s: %w", job.WalletAddress, err)
	}
	if err := s.cache.Set(ctx, walletKey(job.WalletAddress), payload, s.resultTTL); err != nil {
		return fmt.Errorf("store wallet result %s: %w", job.WalletAddress, err)
	}
	return nil
}

// GetWalletResult reads the memoized result for a wallet; a miss returns
// (nil, nil).
func (s *CacheJobStore) GetWalletResult(ctx context.Context, walletAddress string) (*model.Job, error) {
	if walletAddress == "" {
		return nil, apperrors.Validation("wallet address is required")
	}
	payload, err := s.cache.Get(ctx, walletKey(walletAddress))
	if err != nil {
		return nil, fmt.Errorf("read wallet result %s: %w", walletAddress, err)
	}
	if payload == nil {
		return nil, nil
	}
	var job model.Job
	if err := json.Unmarshal(payload, &job); err != nil {
		return nil, fmt.Errorf("decode wallet result %s: %w", walletAddress, err)
	}
	return &job, nil
}

// AcquireInFlight takes the per-wallet in-flight lock via an atomic
// set-if-not-exists. The lock value is the holding job id so a loser can
// hand its caller the winner's handle. The TTL bounds how long a crashed
// worker can wedge a wallet.
func (s *CacheJobStore) AcquireInFlight(
	ctx context.Context,
	walletAddress, jobID string,
) (string, bool, error) {
	if walletAddress == "" || jobID == "" {
		return "", false, apperrors.Validation("wallet address and job id are required")
	}
	key := inflightKey(walletAddress)
	acquired, err := s.cache.SetIfNotExists(ctx, key, []byte(jobID), s.inflightTTL)
	if err != nil {
		return "", false, fmt.Errorf("acquire in-flight lock %s: %w", walletAddress, err)
	}
	if acquired {
		return jobID, true, nil
	}
	holder, err := s.cache.Get(ctx, key)
	if err != nil {
		return "", false, fmt.Errorf("read in-flight lock %s: %w", walletAddress, err)
	}
	// The holder can expire between the failed acquire and the read; the
	// caller treats an empty holder as lock-free.
	return string(holder), false, nil
}

// ReleaseInFlight drops the per-wallet in-flight lock, but only while the
// given job still owns it. A run whose lock already expired must not drop
// a successor's lock.
func (s *CacheJobStore) ReleaseInFlight(ctx context.Context, walletAddress, jobID string) error {
	if walletAddress == "" || jobID == "" {
		return apperrors.Validation("wallet address and job id are required")
	}
	if _, err := s.cache.DeleteIfEquals(ctx, inflightKey(walletAddress), []byte(jobID)); err != nil {
		return fmt.Errorf("release in-flight lock %s: %w", walletAddress, err)
	}
	return nil
}
