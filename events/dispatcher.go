package events

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

const defaultPublishTimeout = 5 * time.Second

// DispatcherConfig holds the configuration for a Dispatcher.
type DispatcherConfig struct {
	Sinks          []Sink
	BufferSize     uint
	PublishTimeout time.Duration
	Logger         Logger
}

func (c *DispatcherConfig) validate() error {
	if c.BufferSize < 1 {
		return errors.New("config: BufferSize must be greater than 0")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	return nil
}

// Dispatcher delivers committed batches to every sink on a background
// goroutine, one batch at a time and in commit order. Sink failures are logged
// and never fed back into the exchange.
type Dispatcher struct {
	sinks   []Sink
	timeout time.Duration
	queue   chan []Envelope
	logger  Logger

	closeOnce sync.Once
	done      chan struct{}
}

// NewDispatcher creates a dispatcher. Call Run to start delivery.
func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	timeout := cfg.PublishTimeout
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	return &Dispatcher{
		sinks:   cfg.Sinks,
		timeout: timeout,
		queue:   make(chan []Envelope, cfg.BufferSize),
		logger:  cfg.Logger,
		done:    make(chan struct{}),
	}, nil
}

// Dispatch queues a batch. It blocks while the queue is full and drops the
// batch once the dispatcher has been closed.
func (d *Dispatcher) Dispatch(envs []Envelope) {
	if len(envs) == 0 {
		return
	}
	select {
	case <-d.done:
		d.logger.Warn("dispatcher closed, dropping events", "count", len(envs))
	case d.queue <- envs:
	}
}

// Run delivers queued batches until ctx is cancelled or Close is called, then
// flushes whatever is still queued. Once Run returns the dispatcher is closed,
// so later Dispatch calls drop their batch instead of blocking.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case envs := <-d.queue:
			d.deliver(ctx, envs)
		case <-ctx.Done():
			d.Close()
			d.flush(context.Background())
			return
		case <-d.done:
			d.flush(ctx)
			return
		}
	}
}

// Close stops accepting batches.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() { close(d.done) })
}

func (d *Dispatcher) flush(ctx context.Context) {
	for {
		select {
		case envs := <-d.queue:
			d.deliver(ctx, envs)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, envs []Envelope) {
	for _, sink := range d.sinks {
		sctx, cancel := context.WithTimeout(ctx, d.timeout)
		if err := sink.Publish(sctx, envs); err != nil {
			d.logger.Error("failed to publish events", "error", err, "count", len(envs))
		}
		cancel()
	}
}
