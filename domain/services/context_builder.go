package services

import (
	"loom-backend/domain/config"
	"loom-backend/domain/core/aggregates"
	"loom-backend/domain/core/entities"
	"loom-backend/domain/core/valueobjects"

	pkgerrors "loom-backend/pkg/errors"
)

// ContextBuilder assembles the inherited context of a card: its own
// prompt and quote seed, its direct parents in edge order, and a
// depth-capped breadth-first walk over the remaining ancestors. The
// same walk feeds both fingerprinting and generation prompts, so the
// two can never disagree about what a card's context is.
type ContextBuilder struct {
	config *config.DomainConfig
}

// NewContextBuilder creates a context builder
func NewContextBuilder(cfg *config.DomainConfig) *ContextBuilder {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	return &ContextBuilder{config: cfg}
}

// CardContext is the assembled context of one card. Text is carried
// raw; consumers normalize or format as they need.
type CardContext struct {
	CardID    valueobjects.CardID
	Prompt    string
	Quote     *entities.Quote
	Parents   []ParentContext
	Ancestors []AncestorContext
}

// ParentContext is a direct parent's full contribution
type ParentContext struct {
	ID       valueobjects.CardID
	Prompt   string
	Response string
}

// AncestorContext is a distant ancestor's condensed contribution: its
// summary, or a truncated response prefix when no summary exists
type AncestorContext struct {
	ID        valueobjects.CardID
	Prompt    string
	Condensed string
	Depth     int
}

// Build assembles the context for one card. Ancestors manually
// excluded by the card are skipped entirely and not walked through.
// A card reachable from its own ancestry means the responding
// subgraph has a cycle, which is a structural error.
func (b *ContextBuilder) Build(canvas *aggregates.Canvas, id valueobjects.CardID) (*CardContext, error) {
	if canvas == nil {
		return nil, pkgerrors.NewValidation("canvas cannot be nil")
	}

	card, err := canvas.GetCard(id)
	if err != nil {
		return nil, err
	}

	excluded := make(map[valueobjects.CardID]bool)
	for _, excludedID := range card.ExcludedContextIDs() {
		excluded[excludedID] = true
	}

	ctx := &CardContext{
		CardID: id,
		Prompt: card.Prompt(),
		Quote:  card.Quote(),
	}

	type queued struct {
		id    valueobjects.CardID
		depth int
	}

	visited := map[valueobjects.CardID]bool{id: true}
	var queue []queued

	for _, parentID := range card.ParentIDs() {
		if excluded[parentID] || visited[parentID] {
			continue
		}
		parent, getErr := canvas.GetCard(parentID)
		if getErr != nil {
			continue
		}
		visited[parentID] = true
		ctx.Parents = append(ctx.Parents, ParentContext{
			ID:       parentID,
			Prompt:   parent.Prompt(),
			Response: stringOrEmpty(parent.Response()),
		})
		queue = append(queue, queued{id: parentID, depth: 1})
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if current.depth >= b.config.MaxAncestorDepth {
			continue
		}

		currentCard, getErr := canvas.GetCard(current.id)
		if getErr != nil {
			continue
		}

		for _, ancestorID := range currentCard.ParentIDs() {
			if ancestorID.Equals(id) {
				return nil, pkgerrors.NewStructural("context cycle detected through card " + id.String())
			}
			if excluded[ancestorID] || visited[ancestorID] {
				continue
			}
			ancestor, getErr := canvas.GetCard(ancestorID)
			if getErr != nil {
				continue
			}
			visited[ancestorID] = true
			ctx.Ancestors = append(ctx.Ancestors, AncestorContext{
				ID:        ancestorID,
				Prompt:    ancestor.Prompt(),
				Condensed: b.condense(ancestor),
				Depth:     current.depth + 1,
			})
			queue = append(queue, queued{id: ancestorID, depth: current.depth + 1})
		}
	}

	return ctx, nil
}

// condense picks an ancestor's summary, falling back to a response
// prefix when no summary has been written
func (b *ContextBuilder) condense(card *entities.Card) string {
	if summary := card.Summary(); summary != nil {
		return *summary
	}
	if response := card.Response(); response != nil {
		return truncateRunes(*response, b.config.SummaryPrefixRunes)
	}
	return ""
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// truncateRunes cuts a string to at most n runes
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
