package memory

import (
	"context"
	"sort"
	"sync"

	"loom-backend/application/ports"
	"loom-backend/domain/core/aggregates"
	"loom-backend/domain/core/valueobjects"
	pkgerrors "loom-backend/pkg/errors"
)

// CanvasRepository is an in-memory implementation of
// ports.CanvasRepository, used by tests and local development runs.
// Aggregates are deep-copied on both save and load so callers never
// alias the stored state.
type CanvasRepository struct {
	mu       sync.RWMutex
	canvases map[valueobjects.CanvasID]*aggregates.Canvas
}

// NewCanvasRepository creates an empty in-memory canvas repository
func NewCanvasRepository() *CanvasRepository {
	return &CanvasRepository{
		canvases: make(map[valueobjects.CanvasID]*aggregates.Canvas),
	}
}

// Save stores a deep copy of the canvas
func (r *CanvasRepository) Save(ctx context.Context, canvas *aggregates.Canvas) error {
	if canvas == nil {
		return pkgerrors.NewValidation("canvas cannot be nil")
	}

	stored, err := cloneCanvas(canvas)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.canvases[canvas.ID()] = stored
	return nil
}

// GetByID returns a deep copy of a stored canvas
func (r *CanvasRepository) GetByID(ctx context.Context, id valueobjects.CanvasID) (*aggregates.Canvas, error) {
	r.mu.RLock()
	stored, exists := r.canvases[id]
	r.mu.RUnlock()

	if !exists {
		return nil, pkgerrors.NewNotFound("canvas not found: " + id.String())
	}
	return cloneCanvas(stored)
}

// List returns summaries of all stored canvases, most recently
// updated first
func (r *CanvasRepository) List(ctx context.Context) ([]ports.CanvasSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	summaries := make([]ports.CanvasSummary, 0, len(r.canvases))
	for _, canvas := range r.canvases {
		summaries = append(summaries, ports.CanvasSummary{
			ID:        canvas.ID(),
			Name:      canvas.Name(),
			CardCount: canvas.CardCount(),
			UpdatedAt: canvas.UpdatedAt(),
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].UpdatedAt.Equal(summaries[j].UpdatedAt) {
			return summaries[i].ID.String() < summaries[j].ID.String()
		}
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	return summaries, nil
}

// Delete removes a canvas
func (r *CanvasRepository) Delete(ctx context.Context, id valueobjects.CanvasID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.canvases[id]; !exists {
		return pkgerrors.NewNotFound("canvas not found: " + id.String())
	}
	delete(r.canvases, id)
	return nil
}

// cloneCanvas rebuilds a canvas from its parts. Edges are loaded
// after cards so parent caches come out consistent.
func cloneCanvas(src *aggregates.Canvas) (*aggregates.Canvas, error) {
	dst, err := aggregates.ReconstructCanvas(src.ID(), src.Name(), src.CreatedAt(), src.UpdatedAt(), src.Version())
	if err != nil {
		return nil, err
	}

	for _, card := range src.Cards() {
		if err := dst.LoadCard(card.Clone()); err != nil {
			return nil, err
		}
	}
	for _, edge := range src.Edges() {
		copied := *edge
		if err := dst.LoadEdge(&copied); err != nil {
			return nil, err
		}
	}
	return dst, nil
}
