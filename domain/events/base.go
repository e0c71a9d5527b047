package events

import (
	"time"

	"loom-backend/domain/core/valueobjects"
)

// DomainEvent is the base interface for all domain events
// Events represent something that has happened in the past
type DomainEvent interface {
	GetAggregateID() string
	GetEventType() string
	GetTimestamp() time.Time
	GetVersion() int
}

// BaseEvent provides common event fields
type BaseEvent struct {
	AggregateID string    `json:"aggregate_id"`
	EventType   string    `json:"event_type"`
	Timestamp   time.Time `json:"timestamp"`
	Version     int       `json:"version"`
}

func (e BaseEvent) GetAggregateID() string  { return e.AggregateID }
func (e BaseEvent) GetEventType() string    { return e.EventType }
func (e BaseEvent) GetTimestamp() time.Time { return e.Timestamp }
func (e BaseEvent) GetVersion() int         { return e.Version }

// Canvas Events

// CanvasCreated is raised when a new canvas is created
type CanvasCreated struct {
	BaseEvent
	CanvasID valueobjects.CanvasID `json:"canvas_id"`
	Name     string                `json:"name"`
}

// NewCanvasCreated creates a CanvasCreated event
func NewCanvasCreated(canvasID valueobjects.CanvasID, name string, timestamp time.Time) CanvasCreated {
	return CanvasCreated{
		BaseEvent: BaseEvent{
			AggregateID: canvasID.String(),
			EventType:   TypeCanvasCreated,
			Timestamp:   timestamp,
			Version:     1,
		},
		CanvasID: canvasID,
		Name:     name,
	}
}

// CanvasDeleted is raised when a canvas is removed
type CanvasDeleted struct {
	BaseEvent
	CanvasID  valueobjects.CanvasID `json:"canvas_id"`
	CardCount int                   `json:"card_count"`
}

// NewCanvasDeleted creates a CanvasDeleted event
func NewCanvasDeleted(canvasID valueobjects.CanvasID, cardCount int, timestamp time.Time) CanvasDeleted {
	return CanvasDeleted{
		BaseEvent: BaseEvent{
			AggregateID: canvasID.String(),
			EventType:   TypeCanvasDeleted,
			Timestamp:   timestamp,
			Version:     1,
		},
		CanvasID:  canvasID,
		CardCount: cardCount,
	}
}

// CanvasRestored is raised when undo or redo replaces the canvas state
type CanvasRestored struct {
	BaseEvent
	CanvasID  valueobjects.CanvasID `json:"canvas_id"`
	Direction string                `json:"direction"`
	CardCount int                   `json:"card_count"`
	EdgeCount int                   `json:"edge_count"`
}

// NewCanvasRestored creates a CanvasRestored event
func NewCanvasRestored(canvasID valueobjects.CanvasID, direction string, cardCount, edgeCount int, timestamp time.Time) CanvasRestored {
	return CanvasRestored{
		BaseEvent: BaseEvent{
			AggregateID: canvasID.String(),
			EventType:   TypeCanvasRestored,
			Timestamp:   timestamp,
			Version:     1,
		},
		CanvasID:  canvasID,
		Direction: direction,
		CardCount: cardCount,
		EdgeCount: edgeCount,
	}
}

// Card Events

// CardCreated is raised when a new card is added to a canvas
type CardCreated struct {
	BaseEvent
	CanvasID  valueobjects.CanvasID `json:"canvas_id"`
	CardID    valueobjects.CardID   `json:"card_id"`
	ParentIDs []valueobjects.CardID `json:"parent_ids"`
}

// NewCardCreated creates a CardCreated event
func NewCardCreated(canvasID valueobjects.CanvasID, cardID valueobjects.CardID, parentIDs []valueobjects.CardID, timestamp time.Time) CardCreated {
	return CardCreated{
		BaseEvent: BaseEvent{
			AggregateID: canvasID.String(),
			EventType:   TypeCardCreated,
			Timestamp:   timestamp,
			Version:     1,
		},
		CanvasID:  canvasID,
		CardID:    cardID,
		ParentIDs: parentIDs,
	}
}

// CardUpdated is raised when a card's fields change
type CardUpdated struct {
	BaseEvent
	CanvasID valueobjects.CanvasID `json:"canvas_id"`
	CardID   valueobjects.CardID   `json:"card_id"`
}

// NewCardUpdated creates a CardUpdated event
func NewCardUpdated(canvasID valueobjects.CanvasID, cardID valueobjects.CardID, timestamp time.Time) CardUpdated {
	return CardUpdated{
		BaseEvent: BaseEvent{
			AggregateID: canvasID.String(),
			EventType:   TypeCardUpdated,
			Timestamp:   timestamp,
			Version:     1,
		},
		CanvasID: canvasID,
		CardID:   cardID,
	}
}

// CardDeleted is raised when a card and its incident edges are removed
type CardDeleted struct {
	BaseEvent
	CanvasID valueobjects.CanvasID `json:"canvas_id"`
	CardID   valueobjects.CardID   `json:"card_id"`
}

// NewCardDeleted creates a CardDeleted event
func NewCardDeleted(canvasID valueobjects.CanvasID, cardID valueobjects.CardID, timestamp time.Time) CardDeleted {
	return CardDeleted{
		BaseEvent: BaseEvent{
			AggregateID: canvasID.String(),
			EventType:   TypeCardDeleted,
			Timestamp:   timestamp,
			Version:     1,
		},
		CanvasID: canvasID,
		CardID:   cardID,
	}
}

// Edge Events

// EdgeAdded is raised when a context edge is created between two cards
type EdgeAdded struct {
	BaseEvent
	CanvasID valueobjects.CanvasID `json:"canvas_id"`
	EdgeID   valueobjects.EdgeID   `json:"edge_id"`
	SourceID valueobjects.CardID   `json:"source_id"`
	TargetID valueobjects.CardID   `json:"target_id"`
}

// NewEdgeAdded creates an EdgeAdded event
func NewEdgeAdded(canvasID valueobjects.CanvasID, edgeID valueobjects.EdgeID, sourceID, targetID valueobjects.CardID, timestamp time.Time) EdgeAdded {
	return EdgeAdded{
		BaseEvent: BaseEvent{
			AggregateID: canvasID.String(),
			EventType:   TypeEdgeAdded,
			Timestamp:   timestamp,
			Version:     1,
		},
		CanvasID: canvasID,
		EdgeID:   edgeID,
		SourceID: sourceID,
		TargetID: targetID,
	}
}

// EdgeRemoved is raised when a context edge is deleted
type EdgeRemoved struct {
	BaseEvent
	CanvasID valueobjects.CanvasID `json:"canvas_id"`
	EdgeID   valueobjects.EdgeID   `json:"edge_id"`
	SourceID valueobjects.CardID   `json:"source_id"`
	TargetID valueobjects.CardID   `json:"target_id"`
}

// NewEdgeRemoved creates an EdgeRemoved event
func NewEdgeRemoved(canvasID valueobjects.CanvasID, edgeID valueobjects.EdgeID, sourceID, targetID valueobjects.CardID, timestamp time.Time) EdgeRemoved {
	return EdgeRemoved{
		BaseEvent: BaseEvent{
			AggregateID: canvasID.String(),
			EventType:   TypeEdgeRemoved,
			Timestamp:   timestamp,
			Version:     1,
		},
		CanvasID: canvasID,
		EdgeID:   edgeID,
		SourceID: sourceID,
		TargetID: targetID,
	}
}
