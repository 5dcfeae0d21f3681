package notify

import (
	"context"
	"log/slog"

	"remedia/internal/platform/metrics"
)

const defaultBuffer = 256

// Dispatcher queues notifications for asynchronous delivery. It decouples
// transition correctness from notification delivery: the transition has
// already committed by the time Dispatch runs, and nothing that happens here
// can undo it.
type Dispatcher struct {
	sink    Sink
	inbox   chan Notification
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Dispatcher)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

func WithBuffer(size int) Option {
	return func(d *Dispatcher) {
		if size > 0 {
			d.inbox = make(chan Notification, size)
		}
	}
}

func NewDispatcher(sink Sink, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		sink:   sink,
		inbox:  make(chan Notification, defaultBuffer),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch enqueues a notification without blocking. When the buffer is full
// the event is dropped: losing a notification is acceptable, stalling a
// state transition is not.
func (d *Dispatcher) Dispatch(ctx context.Context, n Notification) {
	select {
	case d.inbox <- n:
	default:
		d.metrics.IncNotificationDropped()
		d.logger.WarnContext(ctx, "notification dropped, dispatch buffer full",
			"type", string(n.Type),
			"recipient_id", n.RecipientID.String(),
		)
	}
}

// Run consumes the inbox until ctx is cancelled. Sink failures are logged and
// counted, never returned.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n := <-d.inbox:
			if err := d.sink.Send(ctx, n); err != nil {
				d.metrics.IncNotificationFailure()
				d.logger.ErrorContext(ctx, "notification delivery failed",
					"type", string(n.Type),
					"recipient_id", n.RecipientID.String(),
					"error", err.Error(),
				)
			}
		}
	}
}
