// Package messaging provides the in-process event publisher used when
// no EventBridge bus is configured.
package messaging

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"loom-backend/application/ports"
	"loom-backend/domain/events"
)

// Handler processes one domain event. A handler error is logged and
// never propagated; event delivery must not fail canvas mutations.
type Handler func(ctx context.Context, event events.DomainEvent) error

// LocalPublisher fans events out to in-process subscribers in
// subscription order. Subscribing under the empty event type receives
// every event.
type LocalPublisher struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   *zap.Logger
}

// Compile-time interface check
var _ ports.EventPublisher = (*LocalPublisher)(nil)

// NewLocalPublisher creates a publisher with no subscribers
func NewLocalPublisher(logger *zap.Logger) *LocalPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalPublisher{
		handlers: make(map[string][]Handler),
		logger:   logger,
	}
}

// Subscribe registers a handler for an event type. An empty event type
// subscribes to all events.
func (p *LocalPublisher) Subscribe(eventType string, handler Handler) {
	if handler == nil {
		return
	}
	p.mu.Lock()
	p.handlers[eventType] = append(p.handlers[eventType], handler)
	p.mu.Unlock()
}

// Publish dispatches one event to its subscribers
func (p *LocalPublisher) Publish(ctx context.Context, event events.DomainEvent) error {
	p.mu.RLock()
	handlers := make([]Handler, 0, len(p.handlers[event.GetEventType()])+len(p.handlers[""]))
	handlers = append(handlers, p.handlers[event.GetEventType()]...)
	handlers = append(handlers, p.handlers[""]...)
	p.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			p.logger.Warn("Event handler failed",
				zap.String("eventType", event.GetEventType()),
				zap.String("aggregateID", event.GetAggregateID()),
				zap.Error(err),
			)
		}
	}

	p.logger.Debug("Event dispatched locally",
		zap.String("eventType", event.GetEventType()),
		zap.String("aggregateID", event.GetAggregateID()),
	)

	return nil
}

// PublishBatch dispatches events in order
func (p *LocalPublisher) PublishBatch(ctx context.Context, domainEvents []events.DomainEvent) error {
	for _, event := range domainEvents {
		if err := p.Publish(ctx, event); err != nil {
			return err
		}
	}
	return nil
}
