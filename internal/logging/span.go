package logging

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Span times one operation within a request trace. Records logged through the context returned
// by StartSpan carry the trace and span identifiers.
type Span struct {
	name   string
	logger *slog.Logger
	start  time.Time
	err    error
	now    func() time.Time
}

// StartSpan derives a child span from ctx, opening a new trace when ctx has none.
func StartSpan(ctx context.Context, name string) (context.Context, *Span) {
	if ctx == nil {
		ctx = context.Background()
	}

	logger := FromContext(ctx)

	traceID := TraceIDFromContext(ctx)
	if traceID == "" {
		traceID = uuid.NewString()
		ctx = WithTraceID(ctx, traceID)
		logger = logger.With(slog.String("trace_id", traceID))
	}

	spanID := uuid.NewString()
	attrs := []any{slog.String("span_id", spanID), slog.String("span_name", name)}
	if parent := SpanIDFromContext(ctx); parent != "" {
		attrs = append(attrs, slog.String("parent_span_id", parent))
	}
	logger = logger.With(attrs...)

	ctx = WithLogger(ctx, logger)
	ctx = WithSpanID(ctx, spanID)

	return ctx, &Span{name: name, logger: logger, start: time.Now(), now: time.Now}
}

// SetError marks the span as failed. The last non-nil error wins.
func (s *Span) SetError(err error) {
	if s == nil || err == nil {
		return
	}
	s.err = err
}

// End emits a completion record with the span's duration and outcome.
func (s *Span) End() {
	if s == nil {
		return
	}
	elapsed := s.now().Sub(s.start)
	if s.err != nil {
		s.logger.Info("span failed", slog.Duration("duration", elapsed), slog.String("error", s.err.Error()))
		return
	}
	s.logger.Info("span completed", slog.Duration("duration", elapsed))
}
