package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"loom-backend/application/services"
	"loom-backend/domain/core/valueobjects"
	"loom-backend/pkg/api"
	"loom-backend/pkg/utils"
)

// EdgeHandler handles context-edge HTTP requests
type EdgeHandler struct {
	service *services.CanvasService
	logger  *zap.Logger
}

// NewEdgeHandler creates a new edge handler
func NewEdgeHandler(service *services.CanvasService, logger *zap.Logger) *EdgeHandler {
	return &EdgeHandler{
		service: service,
		logger:  logger,
	}
}

// ConnectRequest represents the request body for connecting two cards
type ConnectRequest struct {
	SourceID string `json:"sourceId" validate:"required,uuid"`
	TargetID string `json:"targetId" validate:"required,uuid"`
}

// Connect handles POST /canvases/{canvasID}/edges
func (h *EdgeHandler) Connect(w http.ResponseWriter, r *http.Request) {
	var req ConnectRequest
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

	sourceID, err := valueobjects.NewCardIDFromString(req.SourceID)
	if err != nil {
		api.RespondError(w, err)
		return
	}
	targetID, err := valueobjects.NewCardIDFromString(req.TargetID)
	if err != nil {
		api.RespondError(w, err)
		return
	}

	edge, created, err := engine.Connect(r.Context(), sourceID, targetID)
	if err != nil {
		api.RespondError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	api.Success(w, status, api.ConnectResponse{
		Edge:    toEdge(edge),
		Created: created,
	})
}

// Delete handles DELETE /canvases/{canvasID}/edges/{edgeID}
func (h *EdgeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	engine, ok := resolveEngine(w, r, h.service)
	if !ok {
		return
	}

	edgeID, err := valueobjects.NewEdgeIDFromString(chi.URLParam(r, "edgeID"))
	if err != nil {
		api.RespondError(w, err)
		return
	}

	if err := engine.RemoveEdge(r.Context(), edgeID); err != nil {
		api.RespondError(w, err)
		return
	}

	api.Success(w, http.StatusNoContent, nil)
}
