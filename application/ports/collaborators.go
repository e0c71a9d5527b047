package ports

import (
	"context"

	"loom-backend/domain/core/valueobjects"
	"loom-backend/domain/services"
)

// GenerationProvider produces responses from assembled card context.
// Implementations own all transport concerns (streaming, retries,
// provider selection); the core only sees the final text or an error.
type GenerationProvider interface {
	// Generate produces a response for the given card context
	Generate(ctx context.Context, request GenerationRequest) (GenerationResult, error)

	// Summarize condenses a response for use as distant-ancestor context
	Summarize(ctx context.Context, text string) (string, error)
}

// GenerationRequest carries everything a provider needs for one card
type GenerationRequest struct {
	CanvasID valueobjects.CanvasID
	CardID   valueobjects.CardID
	Context  *services.CardContext
}

// GenerationResult is a provider's successful output
type GenerationResult struct {
	Response string
	Model    string
}

// SearchIndex is the external full-text index over card content.
// All calls are best-effort from the core's point of view: a failure
// is logged by the caller and never rolls back a graph mutation.
type SearchIndex interface {
	// AddDocument inserts or replaces a card's searchable projection
	AddDocument(ctx context.Context, doc SearchDocument) error

	// RemoveDocument deletes a card from the index, reporting whether
	// a document was actually present
	RemoveDocument(ctx context.Context, id string) (bool, error)

	// Search runs a text query and returns ranked hits
	Search(ctx context.Context, query string, limit int) ([]SearchHit, error)
}

// SearchDocument is the indexable projection of a card
type SearchDocument struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Text    string `json:"text"`
	Preview string `json:"preview"`
}

// SearchHit is one ranked search result
type SearchHit struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Preview string  `json:"preview"`
	Score   float64 `json:"score"`
}

// EmbeddingStore is the external vector store tracking card
// embeddings alongside the search index
type EmbeddingStore interface {
	// DeleteEmbedding removes a card's stored embedding
	DeleteEmbedding(ctx context.Context, id string) error
}
