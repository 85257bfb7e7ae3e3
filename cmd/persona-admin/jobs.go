package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chainsight/persona-api/internal/data"
	"github.com/chainsight/persona-api/internal/domain/model"
)

const cacheCommandTimeout = 30 * time.Second

// connectStore opens a Redis-backed job store. Admin commands always talk
// to Redis; an in-memory cache from another process is not reachable.
func connectStore(cmdCtx *commandContext) (*redis.Client, *data.CacheJobStore) {
	client := data.NewRedisClient(cmdCtx.Config.Redis)
	store := data.NewCacheJobStore(data.CacheJobStoreOptions{
		Cache:       data.NewRedisCacheRepo(client),
		ResultTTL:   cmdCtx.Config.Cache.ResultTTL,
		PointerTTL:  cmdCtx.Config.Cache.PointerTTL,
		InFlightTTL: cmdCtx.Config.Cache.InFlightTTL,
	})
	return client, store
}

func closeRedis(cmdCtx *commandContext, client *redis.Client) {
	if err := client.Close(); err != nil {
		cmdCtx.Logger.Warn("redis close failed", "error", err)
	}
}

func runJobStatus(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("job-status", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	jobID := fs.String("id", "", "Job ID to inspect (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *jobID == "" {
		return fmt.Errorf("--id is required")
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, cacheCommandTimeout)
	defer cancel()

	client, store := connectStore(cmdCtx)
	defer closeRedis(cmdCtx, client)

	job, err := store.GetJob(ctx, *jobID)
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}
	return printJob(job)
}

func runWalletResult(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("wallet-result", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	wallet := fs.String("wallet", "", "Wallet address to inspect (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *wallet == "" {
		return fmt.Errorf("--wallet is required")
	}

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, cacheCommandTimeout)
	defer cancel()

	client, store := connectStore(cmdCtx)
	defer closeRedis(cmdCtx, client)

	job, err := store.GetWalletResult(ctx, *wallet)
	if err != nil {
		return fmt.Errorf("get wallet result: %w", err)
	}
	if job == nil {
		return fmt.Errorf("no cached result for wallet %q", *wallet)
	}
	return printJob(job)
}

func runCacheStats(cmdCtx *commandContext, _ []string) error {
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, cacheCommandTimeout)
	defer cancel()

	client := data.NewRedisClient(cmdCtx.Config.Redis)
	defer closeRedis(cmdCtx, client)

	start := time.Now()
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("cache ping: %w", err)
	}
	if err := writef(os.Stdout, "cache healthy (%s, %s)\n",
		cmdCtx.Config.Redis.Addr, time.Since(start).Round(time.Millisecond)); err != nil {
		return err
	}

	wallets, err := countKeys(ctx, client, "wallet:*")
	if err != nil {
		return err
	}
	inflight, err := countKeys(ctx, client, "inflight:*")
	if err != nil {
		return err
	}
	total, err := client.DBSize(ctx).Result()
	if err != nil {
		return fmt.Errorf("cache dbsize: %w", err)
	}

	if err := writef(os.Stdout, "wallet results:  %d\n", wallets); err != nil {
		return err
	}
	if err := writef(os.Stdout, "in-flight locks: %d\n", inflight); err != nil {
		return err
	}
	return writef(os.Stdout, "job records:     %d\n", total-wallets-inflight)
}

func countKeys(ctx context.Context, client *redis.Client, pattern string) (int64, error) {
	var count int64
	iter := client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("scan %q: %w", pattern, err)
	}
	return count, nil
}

func printJob(job *model.Job) error {
	out, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	return writeln(os.Stdout, string(out))
}
