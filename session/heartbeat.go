package session

import (
	"context"
	"time"
)

// RunHeartbeat refreshes the lock every interval until ctx is cancelled.
// Failed updates are logged and retried on the next tick.
func (l *Lock) RunHeartbeat(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := l.Update(); err != nil {
				l.logger.Warn("Failed to update session heartbeat", "error", err)
			}
		}
	}
}
