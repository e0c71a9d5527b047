// Package handlers implements the REST endpoints over the canvas
// service. Each handler resolves the canvas engine for the request,
// delegates to it, and converts domain objects to their wire form.
package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"loom-backend/application/services"
	"loom-backend/domain/core/aggregates"
	"loom-backend/domain/core/entities"
	"loom-backend/domain/core/valueobjects"
	domainservices "loom-backend/domain/services"
	"loom-backend/pkg/api"
)

// canvasIDParam reads the canvasID path parameter.
func canvasIDParam(r *http.Request) (valueobjects.CanvasID, error) {
	return valueobjects.NewCanvasIDFromString(chi.URLParam(r, "canvasID"))
}

// cardIDParam reads the cardID path parameter. Malformed UUIDs come
// back as validation errors.
func cardIDParam(r *http.Request) (valueobjects.CardID, error) {
	return valueobjects.NewCardIDFromString(chi.URLParam(r, "cardID"))
}

// resolveEngine loads the engine for the request's canvas, writing the
// error response itself when the canvas id is bad or the canvas is
// missing.
func resolveEngine(w http.ResponseWriter, r *http.Request, service *services.CanvasService) (*services.CanvasEngine, bool) {
	id, err := canvasIDParam(r)
	if err != nil {
		api.RespondError(w, err)
		return nil, false
	}

	engine, err := service.Engine(r.Context(), id)
	if err != nil {
		api.RespondError(w, err)
		return nil, false
	}
	return engine, true
}

// parseCardIDs converts a list of id strings, stopping at the first
// malformed one.
func parseCardIDs(values []string) ([]valueobjects.CardID, error) {
	if len(values) == 0 {
		return nil, nil
	}
	ids := make([]valueobjects.CardID, 0, len(values))
	for _, value := range values {
		id, err := valueobjects.NewCardIDFromString(value)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func idStrings(ids []valueobjects.CardID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

// toCard converts a card entity to its wire form.
func toCard(card *entities.Card) api.Card {
	return api.Card{
		ID:                 card.ID().String(),
		X:                  card.Position().X(),
		Y:                  card.Position().Y(),
		Prompt:             card.Prompt(),
		Response:           card.Response(),
		Summary:            card.Summary(),
		ParentIDs:          idStrings(card.ParentIDs()),
		Quote:              toQuote(card.Quote()),
		IsStale:            card.IsStale(),
		PendingRegenerate:  card.PendingRegenerate(),
		ExcludedContextIDs: idStrings(card.ExcludedContextIDs()),
		CreatedAt:          card.CreatedAt().Format(time.RFC3339),
		UpdatedAt:          card.UpdatedAt().Format(time.RFC3339),
		Version:            card.Version(),
	}
}

func toQuote(quote *entities.Quote) *api.Quote {
	if quote == nil {
		return nil
	}
	return &api.Quote{
		Excerpt:        quote.Excerpt,
		SourceID:       quote.SourceID.String(),
		SourceResponse: quote.SourceResponse,
	}
}

func toEdge(edge aggregates.Edge) api.Edge {
	return api.Edge{
		ID:        edge.ID.String(),
		SourceID:  edge.SourceID.String(),
		TargetID:  edge.TargetID.String(),
		CreatedAt: edge.CreatedAt.Format(time.RFC3339),
	}
}

func toCanvasView(view services.CanvasView) api.CanvasView {
	cards := make([]api.Card, len(view.Cards))
	for i, card := range view.Cards {
		cards[i] = toCard(card)
	}
	edges := make([]api.Edge, len(view.Edges))
	for i, edge := range view.Edges {
		edges[i] = toEdge(edge)
	}

	return api.CanvasView{
		ID:        view.ID.String(),
		Name:      view.Name,
		Cards:     cards,
		Edges:     edges,
		StaleIDs:  idStrings(view.StaleIDs),
		CreatedAt: view.CreatedAt.Format(time.RFC3339),
		UpdatedAt: view.UpdatedAt.Format(time.RFC3339),
		Version:   view.Version,
	}
}

func toContextPreview(cardCtx *domainservices.CardContext) api.ContextPreview {
	parents := make([]api.ParentContext, len(cardCtx.Parents))
	for i, parent := range cardCtx.Parents {
		parents[i] = api.ParentContext{
			ID:       parent.ID.String(),
			Prompt:   parent.Prompt,
			Response: parent.Response,
		}
	}
	ancestors := make([]api.AncestorContext, len(cardCtx.Ancestors))
	for i, ancestor := range cardCtx.Ancestors {
		ancestors[i] = api.AncestorContext{
			ID:        ancestor.ID.String(),
			Prompt:    ancestor.Prompt,
			Condensed: ancestor.Condensed,
			Depth:     ancestor.Depth,
		}
	}

	return api.ContextPreview{
		CardID:    cardCtx.CardID.String(),
		Prompt:    cardCtx.Prompt,
		Quote:     toQuote(cardCtx.Quote),
		Parents:   parents,
		Ancestors: ancestors,
	}
}

func toHistoryStatus(status services.HistoryStatus) api.HistoryStatus {
	return api.HistoryStatus{
		CanUndo:   status.CanUndo,
		CanRedo:   status.CanRedo,
		UndoDepth: status.UndoDepth,
		RedoDepth: status.RedoDepth,
	}
}
