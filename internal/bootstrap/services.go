package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chainsight/persona-api/config"
	"github.com/chainsight/persona-api/internal/adapters/dune"
	"github.com/chainsight/persona-api/internal/adapters/llm"
	kmeans "github.com/chainsight/persona-api/internal/adapters/model"
	"github.com/chainsight/persona-api/internal/core"
	"github.com/chainsight/persona-api/internal/data"
	apperrors "github.com/chainsight/persona-api/internal/errors"
	"github.com/chainsight/persona-api/internal/observability/statsd"
	"github.com/chainsight/persona-api/internal/service"
	"github.com/chainsight/persona-api/internal/worker"
)

// ServiceContainer holds the constructed application services and the
// infrastructure they run on.
type ServiceContainer struct {
	Cache    core.CacheRepository
	Store    *data.CacheJobStore
	Analysis *service.AnalysisService
	Pool     *worker.Pool
	Metrics  *statsd.Client
}

// BuildServices wires the service graph from configuration. A missing
// model artifact or analytics credential degrades the analyze endpoints to
// 503 instead of failing startup, so the process stays probeable.
func BuildServices(cfg *config.AppConfig, logger *slog.Logger) (*ServiceContainer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cache := buildCache(cfg, logger)
	store := data.NewCacheJobStore(data.CacheJobStoreOptions{
		Cache:       cache,
		ResultTTL:   cfg.Cache.ResultTTL,
		PointerTTL:  cfg.Cache.PointerTTL,
		InFlightTTL: cfg.Cache.InFlightTTL,
	})

	metrics, err := statsd.NewClient(statsd.Config{
		Enabled: cfg.Observability.Metrics.IsEnabled(),
		Address: cfg.Observability.Metrics.StatsdAddress,
		Prefix:  cfg.Observability.Metrics.Prefix,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init metrics client: %w", err)
	}

	query, err := buildQueryClient(cfg, logger)
	if err != nil {
		return nil, err
	}

	pool := worker.NewPool(worker.PoolOptions{Config: cfg.Worker, Logger: logger})

	analysis := service.NewAnalysisService(service.AnalysisServiceOptions{
		Store: store,
		Deps: service.AnalysisDeps{
			Query:     query,
			Predictor: buildPredictor(cfg, logger),
			Explainer: buildExplainer(cfg, logger),
			Queue:     pool,
		},
		Logger:  logger,
		Metrics: metrics,
	})

	return &ServiceContainer{
		Cache:    cache,
		Store:    store,
		Analysis: analysis,
		Pool:     pool,
		Metrics:  metrics,
	}, nil
}

// buildCache selects the cache backend: Redis in deployment, in-memory for
// development so the service runs with no infrastructure.
func buildCache(cfg *config.AppConfig, logger *slog.Logger) core.CacheRepository {
	if cfg.IsDev {
		logger.Info("using in-memory cache (dev mode)")
		return data.NewMemoryCacheRepo()
	}
	return data.NewRedisCacheRepo(data.NewRedisClient(cfg.Redis))
}

func buildQueryClient(cfg *config.AppConfig, logger *slog.Logger) (core.WalletQueryClient, error) {
	if cfg.Dune.APIKey == "" {
		logger.Warn("analytics API key missing; analyze endpoints will fail until configured")
		return unavailableQueryClient{}, nil
	}
	client, err := dune.NewWalletQueryClient(dune.ClientOptions{
		Config: cfg.Dune,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init analytics client: %w", err)
	}
	logger.Info("analytics client ready",
		"strategy", cfg.Dune.Strategy,
		"query_id", cfg.Dune.QueryID)
	return client, nil
}

func buildPredictor(cfg *config.AppConfig, logger *slog.Logger) core.Predictor {
	predictor, err := kmeans.Load(cfg.Model.ArtifactPath)
	if err != nil {
		logger.Warn("clustering model not loaded; analyze endpoints will return 503",
			"path", cfg.Model.ArtifactPath,
			"error", err)
		return nil
	}
	logger.Info("clustering model loaded",
		"path", cfg.Model.ArtifactPath,
		"personas", predictor.Personas())
	return predictor
}

func buildExplainer(cfg *config.AppConfig, logger *slog.Logger) core.Explainer {
	if !cfg.LLM.Enabled() {
		logger.Info("no explanation provider configured; results carry the placeholder")
		return nil
	}
	return llm.NewChainExplainer(llm.ChainExplainerOptions{
		Config: cfg.LLM,
		Logger: logger,
	})
}

// unavailableQueryClient stands in when no analytics credential is
// configured. Pipelines fail fast with a clear message instead of a
// confusing remote 401.
type unavailableQueryClient struct{}

func (unavailableQueryClient) FetchWalletRow(ctx context.Context, walletAddress string) (map[string]any, error) {
	return nil, apperrors.Unavailable("analytics engine credential is not configured")
}
