package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/crsongirkar/YT-Platform/internal/access"
	"github.com/crsongirkar/YT-Platform/internal/auth"
	"github.com/crsongirkar/YT-Platform/internal/config"
	"github.com/crsongirkar/YT-Platform/internal/db"
	"github.com/crsongirkar/YT-Platform/internal/events"
	"github.com/crsongirkar/YT-Platform/internal/handlers"
	"github.com/crsongirkar/YT-Platform/internal/middleware"
	"github.com/crsongirkar/YT-Platform/internal/repositories"
	"github.com/crsongirkar/YT-Platform/internal/storage"
	"github.com/crsongirkar/YT-Platform/internal/wallet"
)

const (
	eventQueueSize = 256
	eventWorkers   = 4
	// idle local rate limiter entries are forgotten after this long.
	limiterIdleTTL = 10 * time.Minute
)

// buildDependencies wires together concrete implementations used by the HTTP handlers. The
// returned cleanup function drains background workers and closes external clients.
func buildDependencies(ctx context.Context, pool db.Pool, cfg config.Config, logger *slog.Logger) (handlers.Dependencies, func(context.Context) error, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var closers []func(context.Context) error
	cleanup := func(ctx context.Context) error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](ctx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	users := repositories.NewPostgresUserRepository(pool)
	videos := repositories.NewPostgresVideoRepository(pool)
	sessions := auth.NewManager(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL, repositories.NewPostgresSessionStore(pool))
	closers = append(closers, startSessionJanitor(sessions, cfg.SessionPurgeInterval, logger))

	deps := handlers.Dependencies{
		Users:           users,
		Sessions:        sessions,
		Authenticator:   sessions,
		Videos:          videos,
		Ledger:          repositories.NewPostgresLedgerRepository(pool),
		StartingBalance: cfg.StartingBalance,
		MaxUploadBytes:  cfg.MaxUploadBytes,
	}
	if pinger, ok := pool.(handlers.Pinger); ok {
		deps.DB = pinger
	}

	var signer access.URLSigner
	if cfg.ObjectStore.Bucket != "" {
		objects, err := storage.NewS3Storage(ctx, cfg.ObjectStore)
		if err != nil {
			return handlers.Dependencies{}, nil, fmt.Errorf("configure object storage: %w", err)
		}
		deps.Storage = objects
		signer = objects
	} else {
		logger.Warn("object storage not configured, uploads are disabled")
	}

	resolver := access.NewResolver(videos, signer, cfg.SignedURLTTL)
	deps.Access = resolver

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.AMQPURL != "" {
		amqpPublisher := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPQueue)
		publisher = amqpPublisher
		closers = append(closers, func(context.Context) error { return amqpPublisher.Close() })
	}
	dispatcher := events.NewDispatcher(publisher, events.DispatcherConfig{
		QueueSize: eventQueueSize,
		Workers:   eventWorkers,
	}, logger)
	closers = append(closers, dispatcher.Shutdown)

	deps.Transfers = wallet.NewEngine(
		repositories.NewPostgresTransferStore(pool),
		resolver,
		wallet.WithNotifier(dispatcher),
	)

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		closers = append(closers, func(context.Context) error { return client.Close() })
		deps.AuthLimiter = middleware.NewRedisRateLimiter(client, "ratelimit:auth", cfg.AuthRateLimit.Requests, cfg.AuthRateLimit.Window)
		deps.TransferLimiter = middleware.NewRedisRateLimiter(client, "ratelimit:transfer", cfg.TransferRateLimit.Requests, cfg.TransferRateLimit.Window)
	} else {
		deps.AuthLimiter = middleware.NewLocalRateLimiter(cfg.AuthRateLimit.Requests, cfg.AuthRateLimit.Window, limiterIdleTTL)
		deps.TransferLimiter = middleware.NewLocalRateLimiter(cfg.TransferRateLimit.Requests, cfg.TransferRateLimit.Window, limiterIdleTTL)
	}

	return deps, cleanup, nil
}
