package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainsight/persona-api/internal/data"
	"github.com/chainsight/persona-api/internal/domain/features"
	"github.com/chainsight/persona-api/internal/domain/model"
	apperrors "github.com/chainsight/persona-api/internal/errors"
	"github.com/chainsight/persona-api/internal/service"
)

// syncQueue runs tasks inline so pipeline outcomes are observable without
// goroutine coordination.
type syncQueue struct{ rejected bool }

func (q *syncQueue) Enqueue(task func(ctx context.Context)) bool {
	if q.rejected {
		return false
	}
	task(context.Background())
	return true
}

// holdQueue captures tasks without running them, simulating work still in
// flight.
type holdQueue struct{ tasks []func(ctx context.Context) }

func (q *holdQueue) Enqueue(task func(ctx context.Context)) bool {
	q.tasks = append(q.tasks, task)
	return true
}

func (q *holdQueue) drain() {
	for _, task := range q.tasks {
		task(context.Background())
	}
	q.tasks = nil
}

type fakeQuery struct {
	row map[string]any
	err error
}

func (f *fakeQuery) FetchWalletRow(ctx context.Context, walletAddress string) (map[string]any, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.row, nil
}

type fakePredictor struct {
	prediction *model.Prediction
	err        error
}

func (f *fakePredictor) Predict(vec features.Vector) (*model.Prediction, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.prediction, nil
}

type fakeExplainer struct {
	text string
	err  error
}

func (f *fakeExplainer) Explain(ctx context.Context, persona string, stats map[string]float64) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

func defaultPrediction() *model.Prediction {
	return &model.Prediction{
		ClusterLabel: 2,
		Persona:      "Active Retail Users / Everyday Traders",
		Probabilities: map[string]float64{
			"High-Frequency Bots / Automated Traders":          0.1,
			"High-Value NFT & Crypto Traders (Degen Whales)":   0.1,
			"Active Retail Users / Everyday Traders":           0.7,
			"Ultra-Whales / Institutional & Exchange Wallets":  0.1,
		},
	}
}

type harness struct {
	store *data.CacheJobStore
	svc   *service.AnalysisService
}

func newHarness(t *testing.T, deps service.AnalysisDeps) harness {
	t.Helper()
	store := data.NewCacheJobStore(data.CacheJobStoreOptions{Cache: data.NewMemoryCacheRepo()})
	return harness{
		store: store,
		svc: service.NewAnalysisService(service.AnalysisServiceOptions{
			Store: store,
			Deps:  deps,
		}),
	}
}

func workingDeps(queue *syncQueue) service.AnalysisDeps {
	return service.AnalysisDeps{
		Query:     &fakeQuery{row: map[string]any{"tx_count": 100, "active_days": 10}},
		Predictor: &fakePredictor{prediction: defaultPrediction()},
		Explainer: &fakeExplainer{text: "A steady everyday trader."},
		Queue:     queue,
	}
}

func TestAnalysisService_Start_ColdCacheRunsPipeline(t *testing.T) {
	t.Parallel()

	h := newHarness(t, workingDeps(&syncQueue{}))
	ctx := context.Background()

	handle, err := h.svc.Start(ctx, "0xABC")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusQueued, handle.Status)
	assert.Equal(t, "0xABC", handle.WalletAddress)

	// Synchronous queue: the pipeline already ran to completion.
	job, err := h.svc.Status(ctx, handle.JobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, job.Status)
	require.NotNil(t, job.Result)
	assert.Equal(t, "Active Retail Users / Everyday Traders", job.Result.Persona)
	assert.Equal(t, "A steady everyday trader.", job.Result.Explanation)
	assert.Empty(t, job.Error)

	// Zero-filled fields are recorded, never fatal.
	assert.Contains(t, job.Result.MissingFields, "dex_trades")
	assert.Equal(t, 100.0, job.Result.Stats["tx_count"])
	assert.Equal(t, 0.0, job.Result.Stats["dex_trades"])

	// The completed run is memoized under the wallet key.
	cached, err := h.store.GetWalletResult(ctx, "0xABC")
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, handle.JobID, cached.ID)
}

func TestAnalysisService_Start_CacheHitReturnsPointerJob(t *testing.T) {
	t.Parallel()

	h := newHarness(t, workingDeps(&syncQueue{}))
	ctx := context.Background()

	first, err := h.svc.Start(ctx, "0xABC")
	require.NoError(t, err)

	second, err := h.svc.Start(ctx, "0xABC")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, second.Status)
	assert.NotEqual(t, first.JobID, second.JobID)

	// The pointer job yields the identical memoized result.
	original, err := h.svc.Status(ctx, first.JobID)
	require.NoError(t, err)
	pointer, err := h.svc.Status(ctx, second.JobID)
	require.NoError(t, err)
	assert.Equal(t, original.Result, pointer.Result)
	assert.Equal(t, "0xABC", pointer.WalletAddress)
}

func TestAnalysisService_Start_DeduplicatesInFlight(t *testing.T) {
	t.Parallel()

	queue := &holdQueue{}
	deps := workingDeps(&syncQueue{})
	deps.Queue = queue
	h := newHarness(t, deps)
	ctx := context.Background()

	first, err := h.svc.Start(ctx, "0xABC")
	require.NoError(t, err)

	// Work is still in flight, so the second request is folded onto it.
	second, err := h.svc.Start(ctx, "0xABC")
	require.NoError(t, err)
	assert.Equal(t, first.JobID, second.JobID)
	assert.Len(t, queue.tasks, 1)

	queue.drain()
	job, err := h.svc.Status(ctx, first.JobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, job.Status)

	// The lock is released after the run: a new request starts fresh work.
	third, err := h.svc.Start(ctx, "0xDEF")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusQueued, third.Status)
}

func TestAnalysisService_Start_RecoversStaleLock(t *testing.T) {
	t.Parallel()

	h := newHarness(t, workingDeps(&syncQueue{}))
	ctx := context.Background()

	// Lock held by a job whose record no longer exists (expired).
	_, acquired, err := h.store.AcquireInFlight(ctx, "0xABC", "ghost-job")
	require.NoError(t, err)
	require.True(t, acquired)

	handle, err := h.svc.Start(ctx, "0xABC")
	require.NoError(t, err)

	job, err := h.svc.Status(ctx, handle.JobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, job.Status)
}

// racingStore injects a rival lock acquisition the moment a stale lock is
// released, simulating a concurrent request winning the retake.
type racingStore struct {
	*data.CacheJobStore
	rivalID string
}

func (s *racingStore) ReleaseInFlight(ctx context.Context, walletAddress, jobID string) error {
	if err := s.CacheJobStore.ReleaseInFlight(ctx, walletAddress, jobID); err != nil {
		return err
	}
	if s.rivalID != "" {
		rival := model.NewJob(s.rivalID, walletAddress)
		if err := s.CacheJobStore.SaveJob(ctx, rival); err != nil {
			return err
		}
		if _, _, err := s.CacheJobStore.AcquireInFlight(ctx, walletAddress, s.rivalID); err != nil {
			return err
		}
		s.rivalID = ""
	}
	return nil
}

func TestAnalysisService_Start_RetakeLostToRacingStart(t *testing.T) {
	t.Parallel()

	inner := data.NewCacheJobStore(data.CacheJobStoreOptions{Cache: data.NewMemoryCacheRepo()})
	store := &racingStore{CacheJobStore: inner, rivalID: "rival-job"}
	queue := &holdQueue{}
	svc := service.NewAnalysisService(service.AnalysisServiceOptions{
		Store: store,
		Deps: service.AnalysisDeps{
			Query:     &fakeQuery{row: map[string]any{"tx_count": 100}},
			Predictor: &fakePredictor{prediction: defaultPrediction()},
			Queue:     queue,
		},
	})
	ctx := context.Background()

	// Stale lock: the holding job's record no longer exists.
	_, acquired, err := inner.AcquireInFlight(ctx, "0xABC", "ghost-job")
	require.NoError(t, err)
	require.True(t, acquired)

	handle, err := svc.Start(ctx, "0xABC")
	require.NoError(t, err)
	assert.Equal(t, "rival-job", handle.JobID, "must fold onto the job that won the retake")
	assert.Empty(t, queue.tasks, "losing the retake must not spawn a second pipeline")
}

func TestAnalysisService_Start_ValidatesInput(t *testing.T) {
	t.Parallel()

	h := newHarness(t, workingDeps(&syncQueue{}))

	_, err := h.svc.Start(context.Background(), "   ")
	assert.True(t, apperrors.IsValidation(err))
}

func TestAnalysisService_Start_ModelUnavailable(t *testing.T) {
	t.Parallel()

	deps := workingDeps(&syncQueue{})
	deps.Predictor = nil
	h := newHarness(t, deps)

	_, err := h.svc.Start(context.Background(), "0xABC")
	assert.True(t, apperrors.IsUnavailable(err))
}

func TestAnalysisService_Start_QueueFull(t *testing.T) {
	t.Parallel()

	h := newHarness(t, workingDeps(&syncQueue{rejected: true}))
	ctx := context.Background()

	_, err := h.svc.Start(ctx, "0xABC")
	assert.True(t, apperrors.IsUnavailable(err))

	// The lock was released, so recovery is a plain retry once capacity
	// returns.
	_, acquired, lockErr := h.store.AcquireInFlight(ctx, "0xABC", "retry-probe")
	require.NoError(t, lockErr)
	assert.True(t, acquired)
}

func TestAnalysisService_PipelineFailureWritesFailedRecordOnly(t *testing.T) {
	t.Parallel()

	deps := workingDeps(&syncQueue{})
	deps.Query = &fakeQuery{err: errors.New("remote execution failed")}
	h := newHarness(t, deps)
	ctx := context.Background()

	handle, err := h.svc.Start(ctx, "0xABC")
	require.NoError(t, err)

	job, err := h.svc.Status(ctx, handle.JobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, job.Status)
	assert.Contains(t, job.Error, "remote execution failed")
	assert.Nil(t, job.Result)

	// Failed runs never reach the wallet namespace.
	cached, err := h.store.GetWalletResult(ctx, "0xABC")
	require.NoError(t, err)
	assert.Nil(t, cached)

	// And a later request starts fresh, not from cache.
	retry, err := h.svc.Start(ctx, "0xABC")
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusQueued, retry.Status)
}

func TestAnalysisService_PredictorFailureFailsJob(t *testing.T) {
	t.Parallel()

	deps := workingDeps(&syncQueue{})
	deps.Predictor = &fakePredictor{err: errors.New("artifact dimension mismatch")}
	h := newHarness(t, deps)

	handle, err := h.svc.Start(context.Background(), "0xABC")
	require.NoError(t, err)

	job, err := h.svc.Status(context.Background(), handle.JobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, job.Status)
	assert.Contains(t, job.Error, "artifact dimension mismatch")
}

func TestAnalysisService_ExplainerFailureDegradesToPlaceholder(t *testing.T) {
	t.Parallel()

	deps := workingDeps(&syncQueue{})
	deps.Explainer = &fakeExplainer{err: errors.New("all providers busy")}
	h := newHarness(t, deps)

	handle, err := h.svc.Start(context.Background(), "0xABC")
	require.NoError(t, err)

	job, err := h.svc.Status(context.Background(), handle.JobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, job.Status)
	assert.Equal(t, model.ExplanationPlaceholder, job.Result.Explanation)
}

func TestAnalysisService_NoExplainerUsesPlaceholder(t *testing.T) {
	t.Parallel()

	deps := workingDeps(&syncQueue{})
	deps.Explainer = nil
	h := newHarness(t, deps)

	handle, err := h.svc.Start(context.Background(), "0xABC")
	require.NoError(t, err)

	job, err := h.svc.Status(context.Background(), handle.JobID)
	require.NoError(t, err)
	assert.Equal(t, model.ExplanationPlaceholder, job.Result.Explanation)
}

func TestAnalysisService_Status_UnknownJob(t *testing.T) {
	t.Parallel()

	h := newHarness(t, workingDeps(&syncQueue{}))

	_, err := h.svc.Status(context.Background(), "no-such-job")
	assert.True(t, apperrors.IsNotFound(err))

	_, err = h.svc.Status(context.Background(), "  ")
	assert.True(t, apperrors.IsValidation(err))
}

func TestAnalysisService_Predict(t *testing.T) {
	t.Parallel()

	h := newHarness(t, workingDeps(&syncQueue{}))

	pred, err := h.svc.Predict(map[string]float64{"tx_count": 100})
	require.NoError(t, err)
	assert.Equal(t, 2, pred.ClusterLabel)

	deps := workingDeps(&syncQueue{})
	deps.Predictor = nil
	h2 := newHarness(t, deps)
	_, err = h2.svc.Predict(map[string]float64{"tx_count": 100})
	assert.True(t, apperrors.IsUnavailable(err))
}
