package services

import (
	"fmt"

	"loom-backend/domain/config"
	"loom-backend/domain/core/aggregates"
	"loom-backend/domain/core/valueobjects"

	pkgerrors "loom-backend/pkg/errors"
)

// CanvasValidationService centralizes canvas validation and business
// rules beyond the aggregate's own structural invariants.
type CanvasValidationService struct {
	config *config.DomainConfig
}

// NewCanvasValidationService creates a new canvas validation service
func NewCanvasValidationService(cfg *config.DomainConfig) *CanvasValidationService {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	return &CanvasValidationService{
		config: cfg,
	}
}

// ValidateCanvas performs comprehensive validation of a canvas
func (s *CanvasValidationService) ValidateCanvas(canvas *aggregates.Canvas) error {
	if canvas == nil {
		return pkgerrors.NewValidation("canvas cannot be nil")
	}

	if err := canvas.Validate(); err != nil {
		return err
	}

	if err := s.validateLimits(canvas); err != nil {
		return err
	}

	if err := s.CheckRespondingCycles(canvas); err != nil {
		return err
	}

	return nil
}

// ValidateCardAddition validates if a card can be added to the canvas
func (s *CanvasValidationService) ValidateCardAddition(canvas *aggregates.Canvas, prompt string) error {
	if canvas == nil {
		return pkgerrors.NewValidation("canvas cannot be nil")
	}

	if canvas.CardCount() >= s.config.MaxCardsPerCanvas {
		return pkgerrors.NewValidation(
			fmt.Sprintf("maximum cards reached: %d", s.config.MaxCardsPerCanvas),
		)
	}

	if prompt == "" && !s.config.AllowEmptyPrompt {
		return pkgerrors.NewValidation("card prompt cannot be empty")
	}

	return nil
}

// ValidateEdgeAddition validates if an edge can be added to the canvas
func (s *CanvasValidationService) ValidateEdgeAddition(canvas *aggregates.Canvas, sourceID, targetID valueobjects.CardID) error {
	if canvas == nil {
		return pkgerrors.NewValidation("canvas cannot be nil")
	}

	if !canvas.HasCard(sourceID) {
		return pkgerrors.NewNotFound("source card not found: " + sourceID.String())
	}
	if !canvas.HasCard(targetID) {
		return pkgerrors.NewNotFound("target card not found: " + targetID.String())
	}

	if sourceID.Equals(targetID) && !s.config.AllowSelfEdges {
		return pkgerrors.NewValidation("cannot connect card to itself")
	}

	if canvas.EdgeCount() >= s.config.MaxEdgesPerCanvas {
		return pkgerrors.NewValidation(
			fmt.Sprintf("maximum edges reached: %d", s.config.MaxEdgesPerCanvas),
		)
	}

	return nil
}

// CheckRespondingCycles verifies that no cycle runs through cards
// carrying responses. Transient cycles among unanswered cards are
// tolerated; a cycle of answered cards breaks fingerprinting and
// leveling, so it is a structural error.
func (s *CanvasValidationService) CheckRespondingCycles(canvas *aggregates.Canvas) error {
	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)

	state := make(map[valueobjects.CardID]int)

	var visit func(id valueobjects.CardID) error
	visit = func(id valueobjects.CardID) error {
		state[id] = inStack
		for _, childID := range canvas.ChildIDs(id) {
			child, err := canvas.GetCard(childID)
			if err != nil {
				continue
			}
			if !child.HasResponse() {
				continue
			}
			switch state[childID] {
			case inStack:
				return pkgerrors.NewStructural("cycle detected among answered cards at " + childID.String())
			case unvisited:
				if err := visit(childID); err != nil {
					return err
				}
			}
		}
		state[id] = done
		return nil
	}

	for _, card := range canvas.Cards() {
		if !card.HasResponse() {
			continue
		}
		if state[card.ID()] == unvisited {
			if err := visit(card.ID()); err != nil {
				return err
			}
		}
	}

	return nil
}

// Private helper methods

func (s *CanvasValidationService) validateLimits(canvas *aggregates.Canvas) error {
	if canvas.CardCount() > s.config.MaxCardsPerCanvas {
		return pkgerrors.NewValidation(
			fmt.Sprintf("card count %d exceeds maximum %d", canvas.CardCount(), s.config.MaxCardsPerCanvas),
		)
	}
	if canvas.EdgeCount() > s.config.MaxEdgesPerCanvas {
		return pkgerrors.NewValidation(
			fmt.Sprintf("edge count %d exceeds maximum %d", canvas.EdgeCount(), s.config.MaxEdgesPerCanvas),
		)
	}
	return nil
}
