package redis

import (
	"context"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"
)

const purgeScanCount = 100

// PurgeResult summarizes a PurgeTokenCache run.
type PurgeResult struct {
	Scanned int
	Deleted int
}

// PurgeTokenCache deletes every cached token index entry. The primary store
// is untouched, so the next lookup of each token repopulates its entry.
// With dryRun set the keys are only counted.
func PurgeTokenCache(ctx context.Context, rdb goredis.Cmdable, dryRun bool) (PurgeResult, error) {
	var (
		res    PurgeResult
		cursor uint64
	)

	for {
		keys, next, err := rdb.Scan(ctx, cursor, tokenKeyPrefix+"*", purgeScanCount).Result()
		if err != nil {
			return res, fmt.Errorf("scan failed: %w", err)
		}
		res.Scanned += len(keys)

		if !dryRun && len(keys) > 0 {
			n, err := rdb.Del(ctx, keys...).Result()
			if err != nil {
				return res, fmt.Errorf("failed to delete token cache entries: %w", err)
			}
			res.Deleted += int(n)
			slog.Debug("Purged token cache batch", "keys", len(keys), "deleted", n)
		}

		cursor = next
		if cursor == 0 {
			return res, nil
		}
	}
}
