package events

import (
	"time"

	"loom-backend/domain/core/valueobjects"
)

// RegenerationStarted is raised when a batch regeneration run begins
type RegenerationStarted struct {
	BaseEvent
	CanvasID   valueobjects.CanvasID `json:"canvas_id"`
	CardCount  int                   `json:"card_count"`
	LevelCount int                   `json:"level_count"`
}

// NewRegenerationStarted creates a RegenerationStarted event
func NewRegenerationStarted(canvasID valueobjects.CanvasID, cardCount, levelCount int, timestamp time.Time) RegenerationStarted {
	return RegenerationStarted{
		BaseEvent: BaseEvent{
			AggregateID: canvasID.String(),
			EventType:   TypeRegenerationStarted,
			Timestamp:   timestamp,
			Version:     1,
		},
		CanvasID:   canvasID,
		CardCount:  cardCount,
		LevelCount: levelCount,
	}
}

// RegenerationCompleted is raised when a batch regeneration run drains
type RegenerationCompleted struct {
	BaseEvent
	CanvasID  valueobjects.CanvasID `json:"canvas_id"`
	Completed int                   `json:"completed"`
	Failed    int                   `json:"failed"`
}

// NewRegenerationCompleted creates a RegenerationCompleted event
func NewRegenerationCompleted(canvasID valueobjects.CanvasID, completed, failed int, timestamp time.Time) RegenerationCompleted {
	return RegenerationCompleted{
		BaseEvent: BaseEvent{
			AggregateID: canvasID.String(),
			EventType:   TypeRegenerationCompleted,
			Timestamp:   timestamp,
			Version:     1,
		},
		CanvasID:  canvasID,
		Completed: completed,
		Failed:    failed,
	}
}

// RegenerationCancelled is raised when a batch regeneration run is
// cancelled before draining
type RegenerationCancelled struct {
	BaseEvent
	CanvasID  valueobjects.CanvasID `json:"canvas_id"`
	Completed int                   `json:"completed"`
	Remaining int                   `json:"remaining"`
}

// NewRegenerationCancelled creates a RegenerationCancelled event
func NewRegenerationCancelled(canvasID valueobjects.CanvasID, completed, remaining int, timestamp time.Time) RegenerationCancelled {
	return RegenerationCancelled{
		BaseEvent: BaseEvent{
			AggregateID: canvasID.String(),
			EventType:   TypeRegenerationCancelled,
			Timestamp:   timestamp,
			Version:     1,
		},
		CanvasID:  canvasID,
		Completed: completed,
		Remaining: remaining,
	}
}

// CardRegenerated is raised when one card's response is rebuilt during
// a regeneration run
type CardRegenerated struct {
	BaseEvent
	CanvasID valueobjects.CanvasID `json:"canvas_id"`
	CardID   valueobjects.CardID   `json:"card_id"`
	Level    int                   `json:"level"`
}

// NewCardRegenerated creates a CardRegenerated event
func NewCardRegenerated(canvasID valueobjects.CanvasID, cardID valueobjects.CardID, level int, timestamp time.Time) CardRegenerated {
	return CardRegenerated{
		BaseEvent: BaseEvent{
			AggregateID: canvasID.String(),
			EventType:   TypeCardRegenerated,
			Timestamp:   timestamp,
			Version:     1,
		},
		CanvasID: canvasID,
		CardID:   cardID,
		Level:    level,
	}
}

// CardRegenerationFailed is raised when one card's regeneration errors
// out; the run keeps going and the card stays stale
type CardRegenerationFailed struct {
	BaseEvent
	CanvasID valueobjects.CanvasID `json:"canvas_id"`
	CardID   valueobjects.CardID   `json:"card_id"`
	Level    int                   `json:"level"`
	Reason   string                `json:"reason"`
}

// NewCardRegenerationFailed creates a CardRegenerationFailed event
func NewCardRegenerationFailed(canvasID valueobjects.CanvasID, cardID valueobjects.CardID, level int, reason string, timestamp time.Time) CardRegenerationFailed {
	return CardRegenerationFailed{
		BaseEvent: BaseEvent{
			AggregateID: canvasID.String(),
			EventType:   TypeCardRegenerationFailed,
			Timestamp:   timestamp,
			Version:     1,
		},
		CanvasID: canvasID,
		CardID:   cardID,
		Level:    level,
		Reason:   reason,
	}
}
