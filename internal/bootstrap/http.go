package bootstrap

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/chainsight/persona-api/config"
	httpx "github.com/chainsight/persona-api/internal/http"
)

// HTTPServerConfig contains configuration for the HTTP server.
type HTTPServerConfig struct {
	Config   *config.AppConfig
	Services *ServiceContainer
	Logger   *slog.Logger
}

// StartHTTPServer creates and starts the HTTP server.
// Returns the server instance for graceful shutdown.
func StartHTTPServer(cfg *HTTPServerConfig) *http.Server {
	if cfg == nil || cfg.Services == nil {
		return nil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	appCfg := cfg.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	handler := httpx.NewRouter(httpx.RouterServices{
		Analysis:  cfg.Services.Analysis,
		Cache:     cfg.Services.Cache,
		RateLimit: httpx.NewRateLimiter(appCfg.HTTP.RateLimitPerMinute, appCfg.HTTP.RateLimitBurst),
		Logger:    logger,
	})

	return startServer(logger, handler, appCfg.HTTP.Addr)
}

func startServer(logger *slog.Logger, handler http.Handler, addr string) *http.Server {
	// Guard against empty addr to avoid listening on Go default
	if addr == "" {
		addr = ":8080"
	}

	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("starting HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "error", err)
		}
	}()

	return server
}

// ShutdownConfig contains dependencies for HTTP server shutdown.
type ShutdownConfig struct {
	Context  context.Context
	Server   *http.Server
	Services *ServiceContainer
	Logger   *slog.Logger
}

// ShutdownHTTPServer gracefully stops accepting requests, drains the
// worker pool, and releases infrastructure handles.
func ShutdownHTTPServer(cfg ShutdownConfig) error {
	if cfg.Server == nil {
		return nil
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("shutting down HTTP server")
	}

	shutdownCtx, cancel := context.WithTimeout(cfg.Context, 10*time.Second)
	defer cancel()

	if err := cfg.Server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if cfg.Services != nil {
		if cfg.Services.Pool != nil {
			if err := cfg.Services.Pool.Shutdown(cfg.Context); err != nil && cfg.Logger != nil {
				cfg.Logger.Error("worker pool shutdown", "error", err)
			}
		}
		if cfg.Services.Metrics != nil {
			if err := cfg.Services.Metrics.Close(); err != nil && cfg.Logger != nil {
				cfg.Logger.Error("metrics client close", "error", err)
			}
		}
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("HTTP server stopped")
	}

	return nil
}
