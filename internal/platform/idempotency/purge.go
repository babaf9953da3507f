package idempotency

import (
	"context"
	"time"
)

// RunPurge removes expired keys every interval until ctx is done.
func RunPurge(ctx context.Context, store Store, interval time.Duration, batch int, logger Logger) {
	if store == nil || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, time.Minute)
			removed, err := store.Purge(runCtx, time.Now(), batch)
			cancel()
			if logger == nil {
				continue
			}
			if err != nil {
				logger.Printf("idempotency: purge failed: %v", err)
			} else if removed > 0 {
				logger.Printf("idempotency: purged %d expired keys", removed)
			}
		}
	}
}
