package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loom-backend/domain/core/valueobjects"
	"loom-backend/domain/events"
	"loom-backend/pkg/observability"
)

func newTestCollector(t *testing.T) *observability.Collector {
	t.Helper()
	observability.ResetForTesting()
	return observability.NewCollector("test")
}

func TestInstrumentedPublisher_CountsGraphMutations(t *testing.T) {
	collector := newTestCollector(t)
	publisher := NewInstrumentedPublisher(NewLocalPublisher(nil), collector)

	canvasID := valueobjects.NewCanvasID()
	cardID := valueobjects.NewCardID()
	edgeID := valueobjects.NewEdgeID()
	now := time.Now()

	require.NoError(t, publisher.PublishBatch(context.Background(), []events.DomainEvent{
		events.NewCardCreated(canvasID, cardID, nil, now),
		events.NewCardCreated(canvasID, valueobjects.NewCardID(), nil, now),
		events.NewCardDeleted(canvasID, cardID, now),
		events.NewEdgeAdded(canvasID, edgeID, cardID, cardID, now),
		events.NewEdgeRemoved(canvasID, edgeID, cardID, cardID, now),
	}))

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.CardsCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.CardsRemoved))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.EdgesCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.EdgesRemoved))
}

func TestInstrumentedPublisher_TracksRegenerationRuns(t *testing.T) {
	collector := newTestCollector(t)
	publisher := NewInstrumentedPublisher(NewLocalPublisher(nil), collector)

	canvasID := valueobjects.NewCanvasID()
	cardID := valueobjects.NewCardID()
	start := time.Now()
	ctx := context.Background()

	require.NoError(t, publisher.Publish(ctx, events.NewRegenerationStarted(canvasID, 2, 1, start)))
	require.NoError(t, publisher.Publish(ctx, events.NewCardRegenerated(canvasID, cardID, 0, start.Add(time.Second))))
	require.NoError(t, publisher.Publish(ctx, events.NewCardRegenerationFailed(canvasID, cardID, 0, "provider down", start.Add(time.Second))))
	require.NoError(t, publisher.Publish(ctx, events.NewRegenerationCompleted(canvasID, 1, 1, start.Add(2*time.Second))))

	assert.Equal(t, 1.0, testutil.ToFloat64(collector.RegenerationCards.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.RegenerationCards.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.RegenerationRuns.WithLabelValues("completed")))

	// A cancellation on another canvas is its own outcome.
	otherID := valueobjects.NewCanvasID()
	require.NoError(t, publisher.Publish(ctx, events.NewRegenerationStarted(otherID, 1, 1, start)))
	require.NoError(t, publisher.Publish(ctx, events.NewRegenerationCancelled(otherID, 0, 1, start.Add(time.Second))))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.RegenerationRuns.WithLabelValues("cancelled")))
}

func TestInstrumentedPublisher_NilCollectorReturnsInnerUnwrapped(t *testing.T) {
	inner := NewLocalPublisher(nil)
	publisher := NewInstrumentedPublisher(inner, nil)
	assert.Same(t, inner, publisher)
}

func TestInstrumentedPublisher_ForwardsToSubscribers(t *testing.T) {
	collector := newTestCollector(t)
	inner := NewLocalPublisher(nil)
	publisher := NewInstrumentedPublisher(inner, collector)

	var seen []string
	inner.Subscribe("", func(_ context.Context, e events.DomainEvent) error {
		seen = append(seen, e.GetEventType())
		return nil
	})

	event := events.NewCardCreated(valueobjects.NewCanvasID(), valueobjects.NewCardID(), nil, time.Now())
	require.NoError(t, publisher.Publish(context.Background(), event))
	assert.Equal(t, []string{events.TypeCardCreated}, seen)
}
