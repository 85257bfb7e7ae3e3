package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/chainsight/persona-api/config"
	"github.com/chainsight/persona-api/internal/bootstrap"
)

func main() {
	ctx := context.Background()
	logger := bootstrap.InitLogger()
	if err := run(ctx, logger); err != nil {
		logger.ErrorContext(ctx, "fatal error", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}

	logStartupInfo(ctx, logger, &cfg)

	services, err := bootstrap.BuildServices(&cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	services.Pool.Start(ctx, cfg.Worker.Concurrency)

	server := bootstrap.StartHTTPServer(&bootstrap.HTTPServerConfig{
		Config:   &cfg,
		Services: services,
		Logger:   logger,
	})

	<-ctx.Done()
	stop()

	return bootstrap.ShutdownHTTPServer(bootstrap.ShutdownConfig{
		Context:  context.Background(),
		Server:   server,
		Services: services,
		Logger:   logger,
	})
}

func logStartupInfo(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig) {
	logger.InfoContext(ctx, "starting persona service",
		"addr", cfg.HTTP.Addr,
		"dev", cfg.IsDev,
		"query_strategy", cfg.Dune.Strategy,
		"workers", cfg.Worker.Concurrency)
}
