package storage

import (
	"context"
	"time"

	"github.com/mstgnz/paypal-proxy/infra/logger"
)

// Purger removes expired TTL entries
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// RunJanitor purges expired entries every interval until ctx is done
func RunJanitor(ctx context.Context, purger Purger, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := purger.PurgeExpired(ctx)
			if err != nil {
				logger.Warn("Failed to purge expired entries", logger.LogContext{
					Fields: map[string]any{"error": err.Error()},
				})
				continue
			}
			if removed > 0 {
				logger.Debug("Purged expired entries", logger.LogContext{
					Fields: map[string]any{"removed": removed},
				})
			}
		}
	}
}
