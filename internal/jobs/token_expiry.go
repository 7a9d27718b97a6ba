// Package jobs holds the background loops the server runs alongside its HTTP
// surface.
package jobs

import (
	"context"
	"log"
	"time"
)

type TokenDeactivator interface {
	DeactivateExpiredQRTokens(ctx context.Context, now time.Time) (int64, error)
}

// RunTokenExpiry periodically flips expired QR tokens inactive so stale
// posters stop resolving. Blocks until ctx is cancelled.
func RunTokenExpiry(ctx context.Context, store TokenDeactivator, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.DeactivateExpiredQRTokens(ctx, time.Now().UTC())
			if err != nil {
				log.Printf("jobs: token expiry sweep: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("jobs: deactivated %d expired qr tokens", n)
			}
		}
	}
}
