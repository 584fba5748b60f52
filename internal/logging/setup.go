package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	slogmulti "github.com/samber/slog-multi"
	slogsentry "github.com/samber/slog-sentry/v2"
)

// Options controls how New builds the process logger.
type Options struct {
	Development bool
	Level       string
	SentryDSN   string
	Output      io.Writer
}

// New builds the process logger. Development mode writes text records, otherwise JSON. When a
// Sentry DSN is configured, error records are also forwarded to Sentry. The returned flush
// function drains buffered Sentry events and must be called before exit.
func New(opts Options) (*slog.Logger, func(), error) {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	level, err := parseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var base slog.Handler
	if opts.Development {
		base = slog.NewTextHandler(out, handlerOpts)
	} else {
		handlerOpts.AddSource = true
		base = slog.NewJSONHandler(out, handlerOpts)
	}

	flush := func() {}
	if opts.SentryDSN == "" {
		return slog.New(base), flush, nil
	}

	if err := sentry.Init(sentry.ClientOptions{Dsn: opts.SentryDSN}); err != nil {
		return nil, nil, fmt.Errorf("init sentry: %w", err)
	}
	flush = func() { sentry.Flush(2 * time.Second) }

	handler := slogmulti.Fanout(
		base,
		slogsentry.Option{Level: slog.LevelError}.NewSentryHandler(),
	)
	return slog.New(handler), flush, nil
}

func parseLevel(value string) (slog.Level, error) {
	if strings.TrimSpace(value) == "" {
		return slog.LevelInfo, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(value)); err != nil {
		return 0, fmt.Errorf("parse log level %q: %w", value, err)
	}
	return level, nil
}
