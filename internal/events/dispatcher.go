package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/crsongirkar/YT-Platform/internal/logging"
)

// DispatcherConfig controls the concurrency characteristics of the dispatcher.
type DispatcherConfig struct {
	QueueSize      int
	Workers        int
	PublishTimeout time.Duration
}

// Dispatcher publishes events from a bounded queue on a pool of background workers so that
// request paths never wait on the broker.
type Dispatcher struct {
	publisher Publisher
	logger    *slog.Logger
	timeout   time.Duration

	mu     sync.RWMutex
	closed bool
	jobs   chan job
	wg     sync.WaitGroup
	once   sync.Once
}

// job keeps the correlation attributes of the enqueuing request so publish failures can be
// traced back to it.
type job struct {
	event Event
	attrs []slog.Attr
}

var (
	errDispatcherClosed = errors.New("event dispatcher closed")
	// ErrQueueFull indicates the dispatcher dropped an event because its queue is saturated.
	ErrQueueFull = errors.New("event queue full")
)

// NewDispatcher starts the worker pool.
func NewDispatcher(publisher Publisher, cfg DispatcherConfig, logger *slog.Logger) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	if publisher == nil {
		publisher = NopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{
		publisher: publisher,
		logger:    logger,
		timeout:   cfg.PublishTimeout,
		jobs:      make(chan job, cfg.QueueSize),
	}

	d.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go d.worker()
	}

	return d
}

// Enqueue schedules an event for publication. It never blocks: when the queue is full the
// event is dropped and ErrQueueFull returned.
func (d *Dispatcher) Enqueue(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return errDispatcherClosed
	}

	select {
	case d.jobs <- job{event: event, attrs: logging.Correlation(ctx)}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Shutdown stops accepting events and waits for queued events to be published.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.once.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.jobs)
		d.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()

	for j := range d.jobs {
		d.publish(j)
	}
}

func (d *Dispatcher) publish(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	if err := d.publisher.Publish(ctx, j.event); err != nil {
		attrs := append([]slog.Attr{
			slog.String("type", j.event.Type),
			slog.String("recordId", j.event.RecordID),
			slog.String("error", err.Error()),
		}, j.attrs...)
		d.logger.LogAttrs(ctx, slog.LevelError, "publish transfer event", attrs...)
	}
}
