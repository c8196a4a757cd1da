package bus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"ordernotify/internal/domain"
)

const publishTimeout = 10 * time.Second

// InMemoryBus is a Go-channel based event bus for in-process fan-out of
// order events. Handlers run on the bus goroutine, not the publisher's,
// so a slow or failing handler never blocks the host's state transition.
type InMemoryBus struct {
	events   chan domain.OrderEvent
	handlers map[domain.EventKind][]func(domain.OrderEvent)
	mu       sync.RWMutex
	closed   bool
	logger   *slog.Logger
}

// New creates a new InMemoryBus with the given buffer size.
func New(bufferSize int, logger *slog.Logger) *InMemoryBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &InMemoryBus{
		events:   make(chan domain.OrderEvent, bufferSize),
		handlers: make(map[domain.EventKind][]func(domain.OrderEvent)),
		logger:   logger,
	}
}

// Publish enqueues an event. Blocks up to 10 seconds if the bus is full
// instead of dropping.
func (b *InMemoryBus) Publish(evt domain.OrderEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.logger.Warn("attempted to publish to closed bus")
		return
	}

	select {
	case b.events <- evt:
	default:
		b.logger.Warn("event bus full, waiting...", "kind", evt.Kind, "order", evt.Order.Name)
		timer := time.NewTimer(publishTimeout)
		defer timer.Stop()
		select {
		case b.events <- evt:
			b.logger.Info("event delivered after wait", "kind", evt.Kind)
		case <-timer.C:
			b.logger.Error("event dropped: bus full for 10s",
				"kind", evt.Kind,
				"order", evt.Order.Name,
			)
		}
	}
}

// On registers a handler for an event kind. Multiple handlers per kind are
// allowed; registration must happen before Run starts dispatching.
func (b *InMemoryBus) On(kind domain.EventKind, handler func(domain.OrderEvent)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[kind] = append(b.handlers[kind], handler)
}

// Run dispatches events to handlers until the context is cancelled or the
// bus is closed.
func (b *InMemoryBus) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-b.events:
			if !ok {
				return
			}
			b.dispatch(evt)
		}
	}
}

func (b *InMemoryBus) dispatch(evt domain.OrderEvent) {
	b.mu.RLock()
	handlers := b.handlers[evt.Kind]
	b.mu.RUnlock()

	if len(handlers) == 0 {
		b.logger.Warn("no handler registered for event kind", "kind", evt.Kind)
		return
	}
	for _, h := range handlers {
		h(evt)
	}
}

func (b *InMemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		b.closed = true
		close(b.events)
	}
}
