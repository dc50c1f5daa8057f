// Package notify delivers opportunity and trade events to operator channels.
// Events are queued by the Dispatcher and sent from its own goroutine so a
// slow channel never holds up a polling cycle.
package notify

import (
	"context"
	"log/slog"
)

// Sender is implemented by each notification channel.
type Sender interface {
	Send(ctx context.Context, event Event) error
	// Name returns a short identifier for logs (e.g. "telegram").
	Name() string
}

// Dispatcher fans queued events out to every registered Sender.
type Dispatcher struct {
	logger  *slog.Logger
	senders []Sender
	queue   chan Event
}

// NewDispatcher creates a Dispatcher whose queue holds up to queueSize events.
func NewDispatcher(logger *slog.Logger, queueSize int, senders ...Sender) *Dispatcher {
	if queueSize < 1 {
		queueSize = 1
	}
	return &Dispatcher{
		logger:  logger.With("component", "notifier"),
		senders: senders,
		queue:   make(chan Event, queueSize),
	}
}

// Notify queues an event. It never blocks; when the queue is full the event is
// dropped and a warning is logged.
func (d *Dispatcher) Notify(ctx context.Context, event Event) {
	select {
	case d.queue <- event:
	default:
		d.logger.WarnContext(ctx, "Notifier: queue full, dropping event",
			"kind", event.Kind,
			"title", event.Title,
		)
	}
}

// Run delivers queued events until ctx is cancelled. Events still queued at
// that point are discarded.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case event := <-d.queue:
			d.dispatch(ctx, event)
		}
	}
}

// dispatch sends to every sender; one failing sender does not stop the rest.
func (d *Dispatcher) dispatch(ctx context.Context, event Event) {
	for _, s := range d.senders {
		if err := s.Send(ctx, event); err != nil {
			d.logger.ErrorContext(ctx, "Notifier: sender failed",
				"sender", s.Name(),
				"kind", event.Kind,
				"error", err,
			)
			continue
		}
		d.logger.DebugContext(ctx, "Notifier: event sent",
			"sender", s.Name(),
			"kind", event.Kind,
		)
	}
}
