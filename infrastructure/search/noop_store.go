package search

import (
	"context"

	"go.uber.org/zap"

	"loom-backend/application/ports"
)

// NoopStore satisfies the index and embedding ports without a backing
// cluster. Used when search indexing is disabled; queries come back
// empty instead of erroring so the rest of the API keeps working.
type NoopStore struct {
	logger *zap.Logger
}

// NewNoopStore creates a no-op store
func NewNoopStore(logger *zap.Logger) *NoopStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NoopStore{logger: logger}
}

// AddDocument discards the document
func (s *NoopStore) AddDocument(_ context.Context, doc ports.SearchDocument) error {
	s.logger.Debug("Search indexing disabled, discarding document", zap.String("cardID", doc.ID))
	return nil
}

// RemoveDocument reports nothing was present
func (s *NoopStore) RemoveDocument(_ context.Context, _ string) (bool, error) {
	return false, nil
}

// Search returns no hits
func (s *NoopStore) Search(_ context.Context, _ string, _ int) ([]ports.SearchHit, error) {
	return []ports.SearchHit{}, nil
}

// DeleteEmbedding is a no-op
func (s *NoopStore) DeleteEmbedding(_ context.Context, _ string) error {
	return nil
}
