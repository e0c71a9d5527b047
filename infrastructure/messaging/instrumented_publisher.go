package messaging

import (
	"context"
	"sync"
	"time"

	"loom-backend/application/ports"
	"loom-backend/domain/events"
	"loom-backend/pkg/observability"
)

// InstrumentedPublisher decorates another publisher, folding the event
// stream into collector metrics before forwarding. Counting here keeps
// the engine free of metrics calls and works identically over the
// local dispatcher and EventBridge.
type InstrumentedPublisher struct {
	inner     ports.EventPublisher
	collector *observability.Collector

	mu        sync.Mutex
	runStarts map[string]time.Time
}

var _ ports.EventPublisher = (*InstrumentedPublisher)(nil)

// NewInstrumentedPublisher wraps inner so its event traffic feeds the
// collector. A nil collector returns inner unwrapped.
func NewInstrumentedPublisher(inner ports.EventPublisher, collector *observability.Collector) ports.EventPublisher {
	if collector == nil {
		return inner
	}
	return &InstrumentedPublisher{
		inner:     inner,
		collector: collector,
		runStarts: make(map[string]time.Time),
	}
}

// Publish records the event's metrics and forwards it.
func (p *InstrumentedPublisher) Publish(ctx context.Context, event events.DomainEvent) error {
	p.observe(event)
	return p.inner.Publish(ctx, event)
}

// PublishBatch records each event's metrics and forwards the batch.
func (p *InstrumentedPublisher) PublishBatch(ctx context.Context, batch []events.DomainEvent) error {
	for _, event := range batch {
		p.observe(event)
	}
	return p.inner.PublishBatch(ctx, batch)
}

func (p *InstrumentedPublisher) observe(event events.DomainEvent) {
	switch event.GetEventType() {
	case events.TypeCardCreated:
		p.collector.CardsCreated.Inc()
	case events.TypeCardDeleted:
		p.collector.CardsRemoved.Inc()
	case events.TypeEdgeAdded:
		p.collector.EdgesCreated.Inc()
	case events.TypeEdgeRemoved:
		p.collector.EdgesRemoved.Inc()
	case events.TypeCardRegenerated:
		p.collector.RegenerationCards.WithLabelValues("completed").Inc()
	case events.TypeCardRegenerationFailed:
		p.collector.RegenerationCards.WithLabelValues("failed").Inc()
	case events.TypeRegenerationStarted:
		p.markRunStart(event.GetAggregateID(), event.GetTimestamp())
	case events.TypeRegenerationCompleted:
		p.finishRun(event, "completed")
	case events.TypeRegenerationCancelled:
		p.finishRun(event, "cancelled")
	}
}

func (p *InstrumentedPublisher) markRunStart(canvasID string, at time.Time) {
	p.mu.Lock()
	p.runStarts[canvasID] = at
	p.mu.Unlock()
}

// finishRun observes the run outcome with the wall time since its start
// event. A run whose start was never seen records a zero duration.
func (p *InstrumentedPublisher) finishRun(event events.DomainEvent, outcome string) {
	p.mu.Lock()
	start, ok := p.runStarts[event.GetAggregateID()]
	delete(p.runStarts, event.GetAggregateID())
	p.mu.Unlock()

	var duration time.Duration
	if ok {
		duration = event.GetTimestamp().Sub(start)
	}
	p.collector.ObserveRegenerationRun(outcome, duration)
}
