package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"loom-backend/application/services"
	"loom-backend/pkg/api"
)

// HistoryHandler handles undo/redo HTTP requests
type HistoryHandler struct {
	service *services.CanvasService
	logger  *zap.Logger
}

// NewHistoryHandler creates a new history handler
func NewHistoryHandler(service *services.CanvasService, logger *zap.Logger) *HistoryHandler {
	return &HistoryHandler{
		service: service,
		logger:  logger,
	}
}

// Status handles GET /canvases/{canvasID}/history
func (h *HistoryHandler) Status(w http.ResponseWriter, r *http.Request) {
	engine, ok := resolveEngine(w, r, h.service)
	if !ok {
		return
	}

	api.Success(w, http.StatusOK, toHistoryStatus(engine.History()))
}

// Undo handles POST /canvases/{canvasID}/history/undo
func (h *HistoryHandler) Undo(w http.ResponseWriter, r *http.Request) {
	engine, ok := resolveEngine(w, r, h.service)
	if !ok {
		return
	}

	applied, err := engine.Undo(r.Context())
	if err != nil {
		api.RespondError(w, err)
		return
	}

	api.Success(w, http.StatusOK, api.RestoreResponse{
		Applied: applied,
		History: toHistoryStatus(engine.History()),
	})
}

// Redo handles POST /canvases/{canvasID}/history/redo
func (h *HistoryHandler) Redo(w http.ResponseWriter, r *http.Request) {
	engine, ok := resolveEngine(w, r, h.service)
	if !ok {
		return
	}

	applied, err := engine.Redo(r.Context())
	if err != nil {
		api.RespondError(w, err)
		return
	}

	api.Success(w, http.StatusOK, api.RestoreResponse{
		Applied: applied,
		History: toHistoryStatus(engine.History()),
	})
}

// Clear handles DELETE /canvases/{canvasID}/history
func (h *HistoryHandler) Clear(w http.ResponseWriter, r *http.Request) {
	engine, ok := resolveEngine(w, r, h.service)
	if !ok {
		return
	}

	engine.ClearHistory()
	api.Success(w, http.StatusOK, toHistoryStatus(engine.History()))
}
