package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"loom-backend/application/services"
	"loom-backend/pkg/api"
	"loom-backend/pkg/utils"
)

// CanvasHandler handles canvas lifecycle HTTP requests
type CanvasHandler struct {
	service *services.CanvasService
	logger  *zap.Logger
}

// NewCanvasHandler creates a new canvas handler
func NewCanvasHandler(service *services.CanvasService, logger *zap.Logger) *CanvasHandler {
	return &CanvasHandler{
		service: service,
		logger:  logger,
	}
}

// CreateCanvasRequest represents the request body for creating a canvas
type CreateCanvasRequest struct {
	Name string `json:"name,omitempty" validate:"omitempty,max=200"`
}

// RenameCanvasRequest represents the request body for renaming a canvas
type RenameCanvasRequest struct {
	Name string `json:"name" validate:"required,min=1,max=200"`
}

// Create handles POST /canvases
func (h *CanvasHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateCanvasRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		api.Error(w, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	engine, err := h.service.CreateCanvas(r.Context(), req.Name)
	if err != nil {
		api.RespondError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, toCanvasView(engine.View()))
}

// List handles GET /canvases
func (h *CanvasHandler) List(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.service.List(r.Context())
	if err != nil {
		api.RespondError(w, err)
		return
	}

	api.Success(w, http.StatusOK, map[string]interface{}{
		"canvases": summaries,
		"count":    len(summaries),
	})
}

// Get handles GET /canvases/{canvasID}
func (h *CanvasHandler) Get(w http.ResponseWriter, r *http.Request) {
	engine, ok := resolveEngine(w, r, h.service)
	if !ok {
		return
	}

	api.Success(w, http.StatusOK, toCanvasView(engine.View()))
}

// Rename handles PUT /canvases/{canvasID}
func (h *CanvasHandler) Rename(w http.ResponseWriter, r *http.Request) {
	var req RenameCanvasRequest
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
	if err := engine.Rename(r.Context(), req.Name); err != nil {
		api.RespondError(w, err)
		return
	}

	api.Success(w, http.StatusOK, toCanvasView(engine.View()))
}

// Delete handles DELETE /canvases/{canvasID}
func (h *CanvasHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := canvasIDParam(r)
	if err != nil {
		api.RespondError(w, err)
		return
	}

	if err := h.service.DeleteCanvas(r.Context(), id); err != nil {
		api.RespondError(w, err)
		return
	}

	h.logger.Info("Canvas deleted via API", zap.String("canvasID", id.String()))
	api.Success(w, http.StatusNoContent, nil)
}

// Close handles POST /canvases/{canvasID}/close. The canvas is saved
// and its engine evicted; the stored canvas survives.
func (h *CanvasHandler) Close(w http.ResponseWriter, r *http.Request) {
	id, err := canvasIDParam(r)
	if err != nil {
		api.RespondError(w, err)
		return
	}

	if err := h.service.CloseCanvas(r.Context(), id); err != nil {
		api.RespondError(w, err)
		return
	}

	api.Success(w, http.StatusNoContent, nil)
}

// Stats handles GET /canvases/{canvasID}/stats
func (h *CanvasHandler) Stats(w http.ResponseWriter, r *http.Request) {
	engine, ok := resolveEngine(w, r, h.service)
	if !ok {
		return
	}

	stats, err := engine.Stats()
	if err != nil {
		api.RespondError(w, err)
		return
	}

	api.Success(w, http.StatusOK, stats)
}

// Stale handles GET /canvases/{canvasID}/stale
func (h *CanvasHandler) Stale(w http.ResponseWriter, r *http.Request) {
	engine, ok := resolveEngine(w, r, h.service)
	if !ok {
		return
	}

	view := engine.View()
	api.Success(w, http.StatusOK, map[string]interface{}{
		"staleIds": idStrings(view.StaleIDs),
		"count":    len(view.StaleIDs),
	})
}

// Recheck handles POST /canvases/{canvasID}/stale/recheck
func (h *CanvasHandler) Recheck(w http.ResponseWriter, r *http.Request) {
	engine, ok := resolveEngine(w, r, h.service)
	if !ok {
		return
	}

	cleared, err := engine.RecheckStale(r.Context())
	if err != nil {
		api.RespondError(w, err)
		return
	}

	api.Success(w, http.StatusOK, api.RecheckResponse{
		ClearedIDs: idStrings(cleared),
		Count:      len(cleared),
	})
}
