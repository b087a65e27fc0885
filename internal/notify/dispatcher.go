package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

var (
	ErrQueueFull        = errors.New("notification queue full")
	ErrDispatcherClosed = errors.New("notification dispatcher closed")
)

type Config struct {
	Workers   int
	QueueSize int
	// Timeout bounds a single delivery attempt.
	Timeout  time.Duration
	Attempts int
	Backoff  time.Duration
}

// Dispatcher renders and delivers emails. Send delivers synchronously; Dispatch
// enqueues for the worker pool started by Run and never blocks the caller.
type Dispatcher struct {
	renderer Renderer
	mailer   Mailer
	logger   *slog.Logger
	cfg      Config

	mu     sync.RWMutex
	queue  chan Message
	closed bool
}

func NewDispatcher(renderer Renderer, mailer Mailer, logger *slog.Logger, cfg Config) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}

	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}

	if cfg.Backoff <= 0 {
		cfg.Backoff = 500 * time.Millisecond
	}

	return &Dispatcher{
		renderer: renderer,
		mailer:   mailer,
		logger:   logger,
		cfg:      cfg,
		queue:    make(chan Message, cfg.QueueSize),
	}
}

// Send renders msg and delivers it, retrying failed attempts with linear backoff.
// Rendering errors are not retried.
func (d *Dispatcher) Send(ctx context.Context, msg Message) error {
	const op = "notify.Dispatcher.Send"

	subject, html, text, err := d.renderer.Render(msg.Kind, msg.Data)
	if err != nil {
		return fmt.Errorf("%s: %s: %w", op, msg.Kind, err)
	}

	for attempt := 1; ; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
		err = d.mailer.Send(attemptCtx, msg.To, subject, html, text)
		cancel()
		if err == nil {
			return nil
		}

		d.logger.Warn("notification attempt failed",
			"kind", msg.Kind,
			"to", msg.To,
			"attempt", attempt,
			"error", err,
		)

		if attempt >= d.cfg.Attempts {
			return fmt.Errorf("%s: %s after %d attempts: %w", op, msg.Kind, attempt, err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s:%w", op, ctx.Err())
		case <-time.After(d.cfg.Backoff * time.Duration(attempt)):
		}
	}
}

// Dispatch enqueues msg for background delivery. A full or closed queue drops
// the message and logs it.
func (d *Dispatcher) Dispatch(msg Message) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.logger.Error("notification dropped", "kind", msg.Kind, "to", msg.To, "error", ErrDispatcherClosed)
		return ErrDispatcherClosed
	}

	select {
	case d.queue <- msg:
		return nil
	default:
		d.logger.Error("notification dropped", "kind", msg.Kind, "to", msg.To, "error", ErrQueueFull)
		return ErrQueueFull
	}
}

// Run starts the workers and blocks until ctx is done and every queued
// message has been attempted.
func (d *Dispatcher) Run(ctx context.Context) error {
	var g errgroup.Group

	for i := 0; i < d.cfg.Workers; i++ {
		g.Go(func() error {
			for msg := range d.queue {
				if err := d.Send(context.Background(), msg); err != nil {
					d.logger.Error("notification failed", "kind", msg.Kind, "to", msg.To, "error", err)
				}
			}
			return nil
		})
	}

	<-ctx.Done()
	d.close()

	return g.Wait()
}

func (d *Dispatcher) close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.closed {
		d.closed = true
		close(d.queue)
	}
}
