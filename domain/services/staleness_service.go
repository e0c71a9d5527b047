package services

import (
	"loom-backend/domain/core/aggregates"
	"loom-backend/domain/core/valueobjects"
)

// StalenessService propagates and resolves the stale flag. It reads
// and flips flags through the canvas but owns no state of its own;
// when a fingerprint cannot be computed the card simply stays stale,
// so errors here can never corrupt the graph.
type StalenessService struct {
	fingerprints *FingerprintService
}

// NewStalenessService creates a staleness service
func NewStalenessService(fingerprints *FingerprintService) *StalenessService {
	if fingerprints == nil {
		fingerprints = NewFingerprintService(nil)
	}
	return &StalenessService{fingerprints: fingerprints}
}

// MarkDescendantsStale flags every descendant of a card stale. Only
// cards carrying a response actually flip; the walk still continues
// through unanswered cards to reach answered ones below them. A
// visited set guards against cycles. Returns the ids that flipped.
func (s *StalenessService) MarkDescendantsStale(canvas *aggregates.Canvas, id valueobjects.CardID) []valueobjects.CardID {
	if canvas == nil {
		return nil
	}

	visited := map[valueobjects.CardID]bool{id: true}
	queue := canvas.ChildIDs(id)
	var marked []valueobjects.CardID

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if visited[current] {
			continue
		}
		visited[current] = true

		card, err := canvas.GetCard(current)
		if err != nil {
			continue
		}
		if card.MarkStale() {
			marked = append(marked, current)
		}

		queue = append(queue, canvas.ChildIDs(current)...)
	}

	return marked
}

// TryClearStale clears a card's stale flag if its current context
// fingerprint matches the one its response was generated against,
// then recurses to its children: resolving an ancestor can unblock a
// child whose context is thereby back to what it was answered with.
// Returns the ids actually cleared.
func (s *StalenessService) TryClearStale(canvas *aggregates.Canvas, id valueobjects.CardID) []valueobjects.CardID {
	if canvas == nil {
		return nil
	}
	return s.tryClearStale(canvas, id, make(map[valueobjects.CardID]bool))
}

// TryClearStaleAll runs TryClearStale over every currently stale
// card. Idempotent: a second call on the result of the first clears
// nothing further.
func (s *StalenessService) TryClearStaleAll(canvas *aggregates.Canvas) []valueobjects.CardID {
	if canvas == nil {
		return nil
	}

	visited := make(map[valueobjects.CardID]bool)
	var cleared []valueobjects.CardID
	for _, id := range canvas.StaleCardIDs() {
		cleared = append(cleared, s.tryClearStale(canvas, id, visited)...)
	}
	return cleared
}

// Reconcile recomputes staleness for every answered card against its
// stored fingerprint, flipping flags in both directions. Incremental
// propagation covers live edits; a wholesale restore of the canvas
// needs this full pass because cards that were fresh before the
// restore may be stale after it. Cards whose fingerprint cannot be
// computed are marked stale. Returns the ids marked and cleared.
func (s *StalenessService) Reconcile(canvas *aggregates.Canvas) (marked, cleared []valueobjects.CardID) {
	if canvas == nil {
		return nil, nil
	}

	for _, id := range canvas.CardIDs() {
		card, err := canvas.GetCard(id)
		if err != nil || !card.HasResponse() || card.ContextFingerprint() == nil {
			continue
		}

		current, err := s.fingerprints.Fingerprint(canvas, id)
		valid := err == nil && current == *card.ContextFingerprint()
		if valid {
			if card.ClearStale() {
				cleared = append(cleared, id)
			}
		} else {
			if card.MarkStale() {
				marked = append(marked, id)
			}
		}
	}
	return marked, cleared
}

func (s *StalenessService) tryClearStale(canvas *aggregates.Canvas, id valueobjects.CardID, visited map[valueobjects.CardID]bool) []valueobjects.CardID {
	if visited[id] {
		return nil
	}
	visited[id] = true

	card, err := canvas.GetCard(id)
	if err != nil {
		return nil
	}
	if !card.IsStale() || card.ContextFingerprint() == nil {
		return nil
	}

	current, err := s.fingerprints.Fingerprint(canvas, id)
	if err != nil {
		// Unknown or cyclic context: leave the card stale. Structural
		// problems surface when the scheduler levels the stale set.
		return nil
	}
	if current != *card.ContextFingerprint() {
		return nil
	}

	card.ClearStale()
	cleared := []valueobjects.CardID{id}

	for _, childID := range canvas.ChildIDs(id) {
		cleared = append(cleared, s.tryClearStale(canvas, childID, visited)...)
	}

	return cleared
}
