package ports

import (
	"context"
	"time"

	"loom-backend/domain/core/aggregates"
	"loom-backend/domain/core/valueobjects"
	"loom-backend/domain/events"
)

// CanvasRepository defines the interface for canvas persistence
// This is a port in hexagonal architecture - the domain doesn't know about the implementation
type CanvasRepository interface {
	// Save persists a canvas with all its cards and edges (create or update)
	Save(ctx context.Context, canvas *aggregates.Canvas) error

	// GetByID retrieves a fully loaded canvas by its ID
	GetByID(ctx context.Context, id valueobjects.CanvasID) (*aggregates.Canvas, error)

	// List retrieves summaries of all stored canvases
	List(ctx context.Context) ([]CanvasSummary, error)

	// Delete removes a canvas and all its cards and edges
	Delete(ctx context.Context, id valueobjects.CanvasID) error
}

// CanvasSummary is the listing projection of a stored canvas
type CanvasSummary struct {
	ID        valueobjects.CanvasID `json:"id"`
	Name      string                `json:"name"`
	CardCount int                   `json:"cardCount"`
	UpdatedAt time.Time             `json:"updatedAt"`
}

// EventPublisher defines the interface for publishing domain events
type EventPublisher interface {
	// Publish sends a single event
	Publish(ctx context.Context, event events.DomainEvent) error

	// PublishBatch sends multiple events
	PublishBatch(ctx context.Context, events []events.DomainEvent) error
}
