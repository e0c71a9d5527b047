package valueobjects

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	pkgerrors "loom-backend/pkg/errors"
)

// CardID is a value object uniquely identifying a card
type CardID struct {
	value string
}

// NewCardID generates a new unique card ID
func NewCardID() CardID {
	return CardID{value: uuid.New().String()}
}

// NewCardIDFromString creates a CardID from an existing string
func NewCardIDFromString(value string) (CardID, error) {
	if value == "" {
		return CardID{}, pkgerrors.NewValidation("card ID cannot be empty")
	}
	if _, err := uuid.Parse(strings.TrimSpace(value)); err != nil {
		return CardID{}, pkgerrors.NewValidation("card ID must be a valid UUID")
	}
	return CardID{value: strings.TrimSpace(value)}, nil
}

// String returns the string representation
func (id CardID) String() string {
	return id.value
}

// IsZero checks if the ID is uninitialized
func (id CardID) IsZero() bool {
	return id.value == ""
}

// Equals checks if two IDs are the same
func (id CardID) Equals(other CardID) bool {
	return id.value == other.value
}

// MarshalJSON implements json.Marshaler
func (id CardID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.value)
}

// UnmarshalJSON implements json.Unmarshaler
func (id *CardID) UnmarshalJSON(data []byte) error {
	var value string
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	parsed, err := NewCardIDFromString(value)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// EdgeID is a value object uniquely identifying an edge
type EdgeID struct {
	value string
}

// NewEdgeID generates a new unique edge ID
func NewEdgeID() EdgeID {
	return EdgeID{value: uuid.New().String()}
}

// NewEdgeIDFromString creates an EdgeID from an existing string
func NewEdgeIDFromString(value string) (EdgeID, error) {
	if value == "" {
		return EdgeID{}, pkgerrors.NewValidation("edge ID cannot be empty")
	}
	if _, err := uuid.Parse(strings.TrimSpace(value)); err != nil {
		return EdgeID{}, pkgerrors.NewValidation("edge ID must be a valid UUID")
	}
	return EdgeID{value: strings.TrimSpace(value)}, nil
}

// String returns the string representation
func (id EdgeID) String() string {
	return id.value
}

// IsZero checks if the ID is uninitialized
func (id EdgeID) IsZero() bool {
	return id.value == ""
}

// Equals checks if two IDs are the same
func (id EdgeID) Equals(other EdgeID) bool {
	return id.value == other.value
}

// MarshalJSON implements json.Marshaler
func (id EdgeID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.value)
}

// UnmarshalJSON implements json.Unmarshaler
func (id *EdgeID) UnmarshalJSON(data []byte) error {
	var value string
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	parsed, err := NewEdgeIDFromString(value)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// CanvasID is a value object identifying a canvas (one conversation board)
type CanvasID struct {
	value string
}

// NewCanvasID generates a new unique canvas ID
func NewCanvasID() CanvasID {
	return CanvasID{value: uuid.New().String()}
}

// NewCanvasIDFromString creates a CanvasID from an existing string.
// Canvas ids are caller-supplied names in dev mode, so any non-empty
// string is accepted.
func NewCanvasIDFromString(value string) (CanvasID, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return CanvasID{}, pkgerrors.NewValidation("canvas ID cannot be empty")
	}
	return CanvasID{value: trimmed}, nil
}

// String returns the string representation
func (id CanvasID) String() string {
	return id.value
}

// IsZero checks if the ID is uninitialized
func (id CanvasID) IsZero() bool {
	return id.value == ""
}

// Equals checks if two IDs are the same
func (id CanvasID) Equals(other CanvasID) bool {
	return id.value == other.value
}

// MarshalJSON implements json.Marshaler
func (id CanvasID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.value)
}

// UnmarshalJSON implements json.Unmarshaler
func (id *CanvasID) UnmarshalJSON(data []byte) error {
	var value string
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	parsed, err := NewCanvasIDFromString(value)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
