package services

import (
	"loom-backend/domain/core/aggregates"
	"loom-backend/domain/core/valueobjects"

	pkgerrors "loom-backend/pkg/errors"
)

// CanvasAnalyticsService handles read-only traversal queries over a
// canvas. Extracting them keeps the aggregate focused on structural
// mutation.
type CanvasAnalyticsService struct {
}

// NewCanvasAnalyticsService creates a new canvas analytics service
func NewCanvasAnalyticsService() *CanvasAnalyticsService {
	return &CanvasAnalyticsService{}
}

// CanvasStats summarizes a canvas for dashboards and polling clients
type CanvasStats struct {
	CardCount     int `json:"cardCount"`
	EdgeCount     int `json:"edgeCount"`
	StaleCount    int `json:"staleCount"`
	RootCount     int `json:"rootCount"`
	LeafCount     int `json:"leafCount"`
	AnsweredCount int `json:"answeredCount"`
	MaxDepth      int `json:"maxDepth"`
}

// Stats computes summary statistics for a canvas
func (s *CanvasAnalyticsService) Stats(canvas *aggregates.Canvas) (*CanvasStats, error) {
	if canvas == nil {
		return nil, pkgerrors.NewValidation("canvas cannot be nil")
	}

	stats := &CanvasStats{
		CardCount:  canvas.CardCount(),
		EdgeCount:  canvas.EdgeCount(),
		StaleCount: canvas.StaleCount(),
	}

	for _, card := range canvas.Cards() {
		if len(card.ParentIDs()) == 0 {
			stats.RootCount++
		}
		if len(canvas.ChildIDs(card.ID())) == 0 {
			stats.LeafCount++
		}
		if card.HasResponse() {
			stats.AnsweredCount++
		}
	}

	stats.MaxDepth = s.maxDepth(canvas)

	return stats, nil
}

// Roots returns cards with no incoming edges
func (s *CanvasAnalyticsService) Roots(canvas *aggregates.Canvas) []valueobjects.CardID {
	var roots []valueobjects.CardID
	for _, card := range canvas.Cards() {
		if len(card.ParentIDs()) == 0 {
			roots = append(roots, card.ID())
		}
	}
	return roots
}

// AncestorIDs walks parent links breadth-first from a card, bounded
// by maxDepth, returning ancestors in visit order
func (s *CanvasAnalyticsService) AncestorIDs(canvas *aggregates.Canvas, id valueobjects.CardID, maxDepth int) ([]valueobjects.CardID, error) {
	card, err := canvas.GetCard(id)
	if err != nil {
		return nil, err
	}
	if maxDepth <= 0 {
		return []valueobjects.CardID{}, nil
	}

	type queued struct {
		id    valueobjects.CardID
		depth int
	}

	visited := map[valueobjects.CardID]bool{id: true}
	var queue []queued
	for _, parentID := range card.ParentIDs() {
		queue = append(queue, queued{id: parentID, depth: 1})
	}

	var result []valueobjects.CardID
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if visited[current.id] {
			continue
		}
		visited[current.id] = true
		result = append(result, current.id)

		if current.depth >= maxDepth {
			continue
		}
		ancestor, getErr := canvas.GetCard(current.id)
		if getErr != nil {
			continue
		}
		for _, parentID := range ancestor.ParentIDs() {
			queue = append(queue, queued{id: parentID, depth: current.depth + 1})
		}
	}

	return result, nil
}

// DescendantIDs walks child links breadth-first from a card,
// returning every reachable descendant in visit order
func (s *CanvasAnalyticsService) DescendantIDs(canvas *aggregates.Canvas, id valueobjects.CardID) ([]valueobjects.CardID, error) {
	if !canvas.HasCard(id) {
		return nil, pkgerrors.NewNotFound("card not found: " + id.String())
	}

	visited := map[valueobjects.CardID]bool{id: true}
	queue := canvas.ChildIDs(id)
	var result []valueobjects.CardID

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if visited[current] {
			continue
		}
		visited[current] = true
		result = append(result, current)

		queue = append(queue, canvas.ChildIDs(current)...)
	}

	return result, nil
}

// ComponentCount returns the number of weakly connected components
func (s *CanvasAnalyticsService) ComponentCount(canvas *aggregates.Canvas) int {
	visited := make(map[valueobjects.CardID]bool)
	count := 0

	for _, id := range canvas.CardIDs() {
		if visited[id] {
			continue
		}
		count++
		s.floodFill(canvas, id, visited)
	}

	return count
}

// Private helper methods

// floodFill marks every card reachable from id ignoring direction
func (s *CanvasAnalyticsService) floodFill(canvas *aggregates.Canvas, id valueobjects.CardID, visited map[valueobjects.CardID]bool) {
	queue := []valueobjects.CardID{id}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if visited[current] {
			continue
		}
		visited[current] = true

		queue = append(queue, canvas.ChildIDs(current)...)
		if card, err := canvas.GetCard(current); err == nil {
			queue = append(queue, card.ParentIDs()...)
		}
	}
}

// maxDepth finds the longest root-to-leaf distance, bailing out on
// cycles by capping iterations at the card count
func (s *CanvasAnalyticsService) maxDepth(canvas *aggregates.Canvas) int {
	depths := make(map[valueobjects.CardID]int)
	queue := s.Roots(canvas)
	for _, root := range queue {
		depths[root] = 0
	}

	deepest := 0
	steps := 0
	limit := canvas.CardCount() * canvasDepthSlack

	for len(queue) > 0 && steps < limit {
		steps++
		current := queue[0]
		queue = queue[1:]

		for _, childID := range canvas.ChildIDs(current) {
			candidate := depths[current] + 1
			if existing, seen := depths[childID]; !seen || candidate > existing {
				depths[childID] = candidate
				if candidate > deepest {
					deepest = candidate
				}
				queue = append(queue, childID)
			}
		}
	}

	return deepest
}

// canvasDepthSlack bounds the longest-path relaxation on graphs with
// transient cycles
const canvasDepthSlack = 4
