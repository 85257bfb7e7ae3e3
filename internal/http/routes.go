package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/chainsight/persona-api/internal/core"
	"github.com/chainsight/persona-api/internal/service"
)

var errNotFound = errors.New("resource not found")

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Analysis  *service.AnalysisService
	Cache     core.CacheRepository
	RateLimit *RateLimiter // Optional: applied to analysis start only
	Logger    *slog.Logger // Optional: request logging
}

// NewRouter creates and configures the HTTP router.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()

	analysisHandlers := &AnalysisHandlers{Svc: services.Analysis}
	predictHandlers := &PredictHandlers{Svc: services.Analysis}
	healthHandlers := &HealthHandlers{Cache: services.Cache}

	startHandler := http.Handler(http.HandlerFunc(analysisHandlers.Start))
	if services.RateLimit != nil {
		startHandler = services.RateLimit.Middleware(startHandler)
	}

	mux.Handle("POST /analyze/start/{wallet_address}", startHandler)
	mux.Handle("GET /analyze/status/{job_id}", http.HandlerFunc(analysisHandlers.Status))
	mux.Handle("POST /predict", http.HandlerFunc(predictHandlers.Predict))
	mux.Handle("GET /healthz", http.HandlerFunc(healthHandlers.Health))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandlers.Health))
	mux.Handle("GET /", http.HandlerFunc(healthHandlers.Root))

	return Recover(logger)(Logging(logger)(mux))
}
