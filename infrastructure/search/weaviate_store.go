// Package search provides the Weaviate-backed card index and a no-op
// fallback for environments without a search cluster.
package search

import (
	"context"
	"fmt"
	"strconv"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/auth"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"go.uber.org/zap"

	"loom-backend/application/ports"
	"loom-backend/infrastructure/config"
)

// CardClassName is the Weaviate class holding card documents.
const CardClassName = "LoomCard"

// EmbeddingClassName is the Weaviate class holding card vectors. The
// canvas core only ever deletes from it; vectors are written by the
// embedding pipeline.
const EmbeddingClassName = "LoomCardEmbedding"

// WeaviateStore implements ports.SearchIndex and ports.EmbeddingStore
// over a shared Weaviate instance. Card ids double as object ids, so
// upserts and deletes address objects directly.
type WeaviateStore struct {
	client *weaviate.Client
	logger *zap.Logger
}

// NewWeaviateStore connects to the Weaviate endpoint from static config
func NewWeaviateStore(cfg *config.Config, logger *zap.Logger) (*WeaviateStore, error) {
	clientConfig := weaviate.Config{
		Host:   cfg.WeaviateHost,
		Scheme: cfg.WeaviateScheme,
	}
	if cfg.WeaviateAPIKey != "" {
		clientConfig.AuthConfig = auth.ApiKey{Value: cfg.WeaviateAPIKey}
	}

	client, err := weaviate.NewClient(clientConfig)
	if err != nil {
		return nil, fmt.Errorf("creating weaviate client: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WeaviateStore{client: client, logger: logger}, nil
}

// EnsureSchema creates the card and embedding classes if they do not
// exist yet. Idempotent; call once at startup.
func (s *WeaviateStore) EnsureSchema(ctx context.Context) error {
	for _, class := range []*models.Class{cardClass(), embeddingClass()} {
		_, err := s.client.Schema().ClassGetter().WithClassName(class.Class).Do(ctx)
		if err == nil {
			continue
		}
		s.logger.Info("Creating search schema class", zap.String("class", class.Class))
		if err := s.client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
			return fmt.Errorf("creating %s schema: %w", class.Class, err)
		}
	}
	return nil
}

// AddDocument upserts a card's searchable projection
func (s *WeaviateStore) AddDocument(ctx context.Context, doc ports.SearchDocument) error {
	properties := map[string]interface{}{
		"cardId":  doc.ID,
		"title":   doc.Title,
		"text":    doc.Text,
		"preview": doc.Preview,
	}

	exists, err := s.client.Data().Checker().
		WithClassName(CardClassName).
		WithID(doc.ID).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("checking document %s: %w", doc.ID, err)
	}

	if exists {
		err = s.client.Data().Updater().
			WithClassName(CardClassName).
			WithID(doc.ID).
			WithProperties(properties).
			Do(ctx)
	} else {
		_, err = s.client.Data().Creator().
			WithClassName(CardClassName).
			WithID(doc.ID).
			WithProperties(properties).
			Do(ctx)
	}
	if err != nil {
		return fmt.Errorf("indexing document %s: %w", doc.ID, err)
	}
	return nil
}

// RemoveDocument deletes a card's document, reporting whether one was present
func (s *WeaviateStore) RemoveDocument(ctx context.Context, id string) (bool, error) {
	return s.deleteObject(ctx, CardClassName, id)
}

// DeleteEmbedding removes a card's stored vector
func (s *WeaviateStore) DeleteEmbedding(ctx context.Context, id string) error {
	_, err := s.deleteObject(ctx, EmbeddingClassName, id)
	return err
}

// Search runs a BM25 query over card titles and text
func (s *WeaviateStore) Search(ctx context.Context, query string, limit int) ([]ports.SearchHit, error) {
	if limit <= 0 {
		limit = 10
	}

	fields := []graphql.Field{
		{Name: "cardId"},
		{Name: "title"},
		{Name: "preview"},
		{Name: "_additional { score }"},
	}

	result, err := s.client.GraphQL().Get().
		WithClassName(CardClassName).
		WithFields(fields...).
		WithBM25(s.client.GraphQL().Bm25ArgBuilder().WithQuery(query)).
		WithLimit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("search error: %s", result.Errors[0].Message)
	}

	return parseHits(result), nil
}

func (s *WeaviateStore) deleteObject(ctx context.Context, className, id string) (bool, error) {
	exists, err := s.client.Data().Checker().
		WithClassName(className).
		WithID(id).
		Do(ctx)
	if err != nil {
		return false, fmt.Errorf("checking %s object %s: %w", className, id, err)
	}
	if !exists {
		return false, nil
	}

	err = s.client.Data().Deleter().
		WithClassName(className).
		WithID(id).
		Do(ctx)
	if err != nil {
		return false, fmt.Errorf("deleting %s object %s: %w", className, id, err)
	}
	return true, nil
}

// parseHits converts a GraphQL response into ranked hits
func parseHits(result *models.GraphQLResponse) []ports.SearchHit {
	data, ok := result.Data["Get"].(map[string]interface{})
	if !ok {
		return []ports.SearchHit{}
	}
	objects, ok := data[CardClassName].([]interface{})
	if !ok {
		return []ports.SearchHit{}
	}

	hits := make([]ports.SearchHit, 0, len(objects))
	for _, obj := range objects {
		m, ok := obj.(map[string]interface{})
		if !ok {
			continue
		}
		hits = append(hits, ports.SearchHit{
			ID:      getString(m, "cardId"),
			Title:   getString(m, "title"),
			Preview: getString(m, "preview"),
			Score:   getScore(m),
		})
	}
	return hits
}

func cardClass() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	indexSearchable := new(bool)
	*indexSearchable = true

	return &models.Class{
		Class:       CardClassName,
		Description: "Searchable projection of a canvas card",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{
				Name:            "cardId",
				DataType:        []string{"text"},
				Description:     "Card identifier (UUID)",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "title",
				DataType:        []string{"text"},
				Description:     "The card's prompt",
				IndexSearchable: indexSearchable,
				Tokenization:    "word",
			},
			{
				Name:            "text",
				DataType:        []string{"text"},
				Description:     "Prompt and response concatenated for full-text search",
				IndexSearchable: indexSearchable,
				Tokenization:    "word",
			},
			{
				Name:        "preview",
				DataType:    []string{"text"},
				Description: "Short response excerpt for result lists",
			},
		},
	}
}

func embeddingClass() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:       EmbeddingClassName,
		Description: "Card vectors written by the embedding pipeline",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{
				Name:            "cardId",
				DataType:        []string{"text"},
				Description:     "Card identifier (UUID)",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
		},
	}
}

// getString safely extracts a string from a result object
func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// getScore reads the BM25 score out of _additional. Weaviate returns
// it as a string.
func getScore(m map[string]interface{}) float64 {
	additional, ok := m["_additional"].(map[string]interface{})
	if !ok {
		return 0
	}
	switch v := additional["score"].(type) {
	case string:
		score, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0
		}
		return score
	case float64:
		return v
	}
	return 0
}
