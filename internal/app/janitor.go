package app

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type sessionPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// startSessionJanitor purges expired sessions every interval until the returned stop function
// is called. A non-positive interval starts nothing.
func startSessionJanitor(purger sessionPurger, interval time.Duration, logger *slog.Logger) func(context.Context) error {
	if purger == nil || interval <= 0 {
		return func(context.Context) error { return nil }
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), interval)
				removed, err := purger.PurgeExpired(ctx)
				cancel()
				if err != nil {
					logger.Warn("purge expired sessions", "error", err)
					continue
				}
				if removed > 0 {
					logger.Info("purged expired sessions", "count", removed)
				}
			}
		}
	}()

	var once sync.Once
	return func(ctx context.Context) error {
		once.Do(func() { close(done) })
		stopped := make(chan struct{})
		go func() {
			wg.Wait()
			close(stopped)
		}()
		select {
		case <-stopped:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
