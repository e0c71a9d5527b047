package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"loom-backend/application/services"
	"loom-backend/pkg/api"
)

// RegenerationHandler handles batch-regeneration HTTP requests
type RegenerationHandler struct {
	service *services.CanvasService
	logger  *zap.Logger
}

// NewRegenerationHandler creates a new regeneration handler
func NewRegenerationHandler(service *services.CanvasService, logger *zap.Logger) *RegenerationHandler {
	return &RegenerationHandler{
		service: service,
		logger:  logger,
	}
}

// Start handles POST /canvases/{canvasID}/regenerate
func (h *RegenerationHandler) Start(w http.ResponseWriter, r *http.Request) {
	engine, ok := resolveEngine(w, r, h.service)
	if !ok {
		return
	}

	progress, err := engine.StartRegeneration(r.Context())
	if err != nil {
		api.RespondError(w, err)
		return
	}

	h.logger.Info("Regeneration started via API",
		zap.String("canvasID", engine.ID().String()),
		zap.Int("total", progress.Total))
	api.Success(w, http.StatusAccepted, progress)
}

// Cancel handles DELETE /canvases/{canvasID}/regenerate
func (h *RegenerationHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	engine, ok := resolveEngine(w, r, h.service)
	if !ok {
		return
	}

	progress, err := engine.CancelRegeneration(r.Context())
	if err != nil {
		api.RespondError(w, err)
		return
	}

	api.Success(w, http.StatusOK, progress)
}

// Progress handles GET /canvases/{canvasID}/regenerate
func (h *RegenerationHandler) Progress(w http.ResponseWriter, r *http.Request) {
	engine, ok := resolveEngine(w, r, h.service)
	if !ok {
		return
	}

	api.Success(w, http.StatusOK, engine.RegenerationProgress())
}
