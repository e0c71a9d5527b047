package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"loom-backend/application/services"
	"loom-backend/domain/core/aggregates"
	"loom-backend/domain/core/entities"
	"loom-backend/domain/core/valueobjects"
	"loom-backend/pkg/api"
	"loom-backend/pkg/utils"
)

// CardHandler handles card-related HTTP requests
type CardHandler struct {
	service *services.CanvasService
	logger  *zap.Logger
}

// NewCardHandler creates a new card handler
func NewCardHandler(service *services.CanvasService, logger *zap.Logger) *CardHandler {
	return &CardHandler{
		service: service,
		logger:  logger,
	}
}

// QuoteRequest anchors a new card to an excerpt of another card's response
type QuoteRequest struct {
	Excerpt  string `json:"excerpt" validate:"required"`
	SourceID string `json:"sourceId" validate:"required,uuid"`
}

// CreateCardRequest represents the request body for creating a card
type CreateCardRequest struct {
	X         float64       `json:"x"`
	Y         float64       `json:"y"`
	Prompt    string        `json:"prompt,omitempty" validate:"omitempty,max=10000"`
	ParentIDs []string      `json:"parentIds,omitempty" validate:"omitempty,max=50,dive,uuid"`
	Quote     *QuoteRequest `json:"quote,omitempty"`
}

// PatchCardRequest represents the request body for a partial card update.
// Pointer fields distinguish "absent" from "set to zero value"; the
// Clear flags null a field out entirely.
type PatchCardRequest struct {
	X                  *float64      `json:"x,omitempty"`
	Y                  *float64      `json:"y,omitempty"`
	Prompt             *string       `json:"prompt,omitempty" validate:"omitempty,max=10000"`
	Response           *string       `json:"response,omitempty"`
	ClearResponse      bool          `json:"clearResponse,omitempty"`
	Summary            *string       `json:"summary,omitempty"`
	ClearSummary       bool          `json:"clearSummary,omitempty"`
	Quote              *QuoteRequest `json:"quote,omitempty"`
	ClearQuote         bool          `json:"clearQuote,omitempty"`
	ExcludedContextIDs *[]string     `json:"excludedContextIds,omitempty" validate:"omitempty,dive,uuid"`
}

// Create handles POST /canvases/{canvasID}/cards
func (h *CardHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		api.Error(w, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	engine, ok := resolveEngine(w, r, h.service)
	if !ok {
		return
	}

	position, err := valueobjects.NewPosition(req.X, req.Y)
	if err != nil {
		api.RespondError(w, err)
		return
	}
	parentIDs, err := parseCardIDs(req.ParentIDs)
	if err != nil {
		api.RespondError(w, err)
		return
	}

	var card *entities.Card
	if req.Quote != nil {
		quote, err := h.buildQuote(engine, *req.Quote)
		if err != nil {
			api.RespondError(w, err)
			return
		}
		card, err = engine.AddQuoteCard(r.Context(), position, req.Prompt, quote, parentIDs)
		if err != nil {
			api.RespondError(w, err)
			return
		}
	} else {
		card, err = engine.AddCard(r.Context(), position, req.Prompt, parentIDs)
		if err != nil {
			api.RespondError(w, err)
			return
		}
	}

	api.Success(w, http.StatusCreated, toCard(card))
}

// buildQuote resolves the quote's source card and freezes its response
// at anchor time.
func (h *CardHandler) buildQuote(engine *services.CanvasEngine, req QuoteRequest) (entities.Quote, error) {
	sourceID, err := valueobjects.NewCardIDFromString(req.SourceID)
	if err != nil {
		return entities.Quote{}, err
	}

	source, err := engine.Card(sourceID)
	if err != nil {
		return entities.Quote{}, err
	}

	quote := entities.Quote{
		Excerpt:  req.Excerpt,
		SourceID: sourceID,
	}
	if response := source.Response(); response != nil {
		quote.SourceResponse = *response
	}
	return quote, nil
}

// Get handles GET /canvases/{canvasID}/cards/{cardID}
func (h *CardHandler) Get(w http.ResponseWriter, r *http.Request) {
	engine, ok := resolveEngine(w, r, h.service)
	if !ok {
		return
	}
	id, err := cardIDParam(r)
	if err != nil {
		api.RespondError(w, err)
		return
	}

	card, err := engine.Card(id)
	if err != nil {
		api.RespondError(w, err)
		return
	}

	api.Success(w, http.StatusOK, toCard(card))
}

// Patch handles PATCH /canvases/{canvasID}/cards/{cardID}
func (h *CardHandler) Patch(w http.ResponseWriter, r *http.Request) {
	var req PatchCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		api.Error(w, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	if (req.X == nil) != (req.Y == nil) {
		api.Error(w, http.StatusBadRequest, "x and y must be moved together")
		return
	}

	engine, ok := resolveEngine(w, r, h.service)
	if !ok {
		return
	}
	id, err := cardIDParam(r)
	if err != nil {
		api.RespondError(w, err)
		return
	}

	patch, err := h.buildPatch(engine, req)
	if err != nil {
		api.RespondError(w, err)
		return
	}

	card, err := engine.PatchCard(r.Context(), id, patch)
	if err != nil {
		api.RespondError(w, err)
		return
	}

	api.Success(w, http.StatusOK, toCard(card))
}

func (h *CardHandler) buildPatch(engine *services.CanvasEngine, req PatchCardRequest) (aggregates.CardPatch, error) {
	patch := aggregates.CardPatch{
		Prompt:        req.Prompt,
		Response:      req.Response,
		ClearResponse: req.ClearResponse,
		Summary:       req.Summary,
		ClearSummary:  req.ClearSummary,
		ClearQuote:    req.ClearQuote,
	}

	if req.X != nil {
		position, err := valueobjects.NewPosition(*req.X, *req.Y)
		if err != nil {
			return aggregates.CardPatch{}, err
		}
		patch.Position = &position
	}
	if req.Quote != nil {
		quote, err := h.buildQuote(engine, *req.Quote)
		if err != nil {
			return aggregates.CardPatch{}, err
		}
		patch.Quote = &quote
	}
	if req.ExcludedContextIDs != nil {
		ids, err := parseCardIDs(*req.ExcludedContextIDs)
		if err != nil {
			return aggregates.CardPatch{}, err
		}
		if ids == nil {
			ids = []valueobjects.CardID{}
		}
		patch.ExcludedContextIDs = &ids
	}
	return patch, nil
}

// Delete handles DELETE /canvases/{canvasID}/cards/{cardID}
func (h *CardHandler) Delete(w http.ResponseWriter, r *http.Request) {
	engine, ok := resolveEngine(w, r, h.service)
	if !ok {
		return
	}
	id, err := cardIDParam(r)
	if err != nil {
		api.RespondError(w, err)
		return
	}

	if err := engine.RemoveCard(r.Context(), id); err != nil {
		api.RespondError(w, err)
		return
	}

	api.Success(w, http.StatusNoContent, nil)
}

// Generate handles POST /canvases/{canvasID}/cards/{cardID}/generate
func (h *CardHandler) Generate(w http.ResponseWriter, r *http.Request) {
	engine, ok := resolveEngine(w, r, h.service)
	if !ok {
		return
	}
	id, err := cardIDParam(r)
	if err != nil {
		api.RespondError(w, err)
		return
	}

	card, err := engine.GenerateCard(r.Context(), id)
	if err != nil {
		api.RespondError(w, err)
		return
	}

	api.Success(w, http.StatusOK, toCard(card))
}

// Summarize handles POST /canvases/{canvasID}/cards/{cardID}/summarize
func (h *CardHandler) Summarize(w http.ResponseWriter, r *http.Request) {
	engine, ok := resolveEngine(w, r, h.service)
	if !ok {
		return
	}
	id, err := cardIDParam(r)
	if err != nil {
		api.RespondError(w, err)
		return
	}

	card, err := engine.SummarizeCard(r.Context(), id)
	if err != nil {
		api.RespondError(w, err)
		return
	}

	api.Success(w, http.StatusOK, toCard(card))
}

// Context handles GET /canvases/{canvasID}/cards/{cardID}/context
func (h *CardHandler) Context(w http.ResponseWriter, r *http.Request) {
	engine, ok := resolveEngine(w, r, h.service)
	if !ok {
		return
	}
	id, err := cardIDParam(r)
	if err != nil {
		api.RespondError(w, err)
		return
	}

	preview, err := engine.ContextPreview(id)
	if err != nil {
		api.RespondError(w, err)
		return
	}

	api.Success(w, http.StatusOK, toContextPreview(preview))
}
