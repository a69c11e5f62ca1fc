package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/streamcave/overlay-api/internal/adapter/redis"
	"github.com/streamcave/overlay-api/internal/platform/logging"
)

// Drops the Redis token index, e.g. after holder_tokens was edited directly
// in Postgres. Entries are rebuilt from the primary store on demand.
func main() {
	var (
		redisURL = flag.String("redis", os.Getenv("REDIS_URL"), "Redis URL (or set REDIS_URL env)")
		dryRun   = flag.Bool("dry-run", false, "Dry run mode (count entries, don't delete)")
		verbose  = flag.Bool("verbose", false, "Verbose logging")
	)
	flag.Parse()

	if *redisURL == "" {
		log.Fatal("Redis URL required (--redis or REDIS_URL env)")
	}

	level := "info"
	if *verbose {
		level = "debug"
	}
	logging.InitLogger(level, "text")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	rdb, err := redis.NewClient(ctx, *redisURL)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer func() { _ = rdb.Close() }()
	slog.Info("Connected to Redis", "url", sanitizeURL(*redisURL))

	start := time.Now()
	res, err := redis.PurgeTokenCache(ctx, rdb, *dryRun)
	if err != nil {
		log.Fatalf("Purge failed: %v", err)
	}

	slog.Info("Purge summary",
		"dry_run", *dryRun,
		"scanned", res.Scanned,
		"deleted", res.Deleted,
		"duration_ms", time.Since(start).Milliseconds())
}

// sanitizeURL hides the password for logging.
func sanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid>"
	}
	return u.Redacted()
}
