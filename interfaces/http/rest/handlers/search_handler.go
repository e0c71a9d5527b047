package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"loom-backend/application/services"
	"loom-backend/pkg/api"
)

const defaultSearchLimit = 20

// SearchHandler handles full-text card search HTTP requests
type SearchHandler struct {
	service *services.CanvasService
	logger  *zap.Logger
}

// NewSearchHandler creates a new search handler
func NewSearchHandler(service *services.CanvasService, logger *zap.Logger) *SearchHandler {
	return &SearchHandler{
		service: service,
		logger:  logger,
	}
}

// Search handles GET /search?q=...&limit=...
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		api.Error(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}

	limit := defaultSearchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 100 {
			api.Error(w, http.StatusBadRequest, "limit must be an integer between 1 and 100")
			return
		}
		limit = parsed
	}

	hits, err := h.service.SearchCards(r.Context(), query, limit)
	if err != nil {
		api.RespondError(w, err)
		return
	}

	api.Success(w, http.StatusOK, map[string]interface{}{
		"query":   query,
		"results": hits,
		"count":   len(hits),
	})
}
