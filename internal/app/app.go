package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/crsongirkar/YT-Platform/internal/config"
	"github.com/crsongirkar/YT-Platform/internal/db"
	"github.com/crsongirkar/YT-Platform/internal/handlers"
	"github.com/crsongirkar/YT-Platform/internal/httpserver"
	"github.com/crsongirkar/YT-Platform/internal/logging"
	"github.com/crsongirkar/YT-Platform/internal/middleware"
)

// Run bootstraps the platform API. args selects the serve, migrate or seed command.
func Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("expected command: serve, migrate, or seed")
	}

	switch args[0] {
	case "serve":
		return serve(ctx)
	case "migrate":
		return runMigrations(ctx, args[1:])
	case "seed":
		return runSeed(ctx, args[1:])
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func serve(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, flush, err := logging.New(logging.Options{
		Development: cfg.IsDevelopment(),
		Level:       cfg.LogLevel,
		SentryDSN:   cfg.SentryDSN,
	})
	if err != nil {
		return err
	}
	defer flush()
	slog.SetDefault(logger)

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	deps, cleanup, err := buildDependencies(ctx, pool, cfg, logger)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	handlers.RegisterRoutes(mux, deps)

	handler := middleware.RequestLogger(logger)(mux)

	srv := httpserver.New(cfg.AppPort, handler)

	logger.Info("starting http server", "port", cfg.AppPort, "env", cfg.Env)

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- srv.Start()
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown requested", "cause", context.Cause(ctx))
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), httpserver.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", "error", err)
		serveErr = errors.Join(serveErr, err)
	}
	// In-flight transfers may still enqueue events until the server has drained.
	if err := cleanup(shutdownCtx); err != nil {
		logger.Error("release dependencies", "error", err)
		serveErr = errors.Join(serveErr, err)
	}

	return serveErr
}
