package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weaviate/weaviate/entities/models"

	"loom-backend/application/ports"
)

func TestParseHits_ReadsScoreString(t *testing.T) {
	result := &models.GraphQLResponse{
		Data: map[string]models.JSONObject{
			"Get": map[string]interface{}{
				CardClassName: []interface{}{
					map[string]interface{}{
						"cardId":  "card-1",
						"title":   "how does caching work",
						"preview": "the cache sits in front of",
						"_additional": map[string]interface{}{
							"score": "2.5",
						},
					},
					map[string]interface{}{
						"cardId":  "card-2",
						"title":   "cache invalidation",
						"preview": "",
						"_additional": map[string]interface{}{
							"score": "1.25",
						},
					},
				},
			},
		},
	}

	hits := parseHits(result)
	require.Len(t, hits, 2)
	assert.Equal(t, "card-1", hits[0].ID)
	assert.Equal(t, "how does caching work", hits[0].Title)
	assert.InDelta(t, 2.5, hits[0].Score, 0.0001)
	assert.InDelta(t, 1.25, hits[1].Score, 0.0001)
}

func TestParseHits_ToleratesMalformedObjects(t *testing.T) {
	result := &models.GraphQLResponse{
		Data: map[string]models.JSONObject{
			"Get": map[string]interface{}{
				CardClassName: []interface{}{
					"not an object",
					map[string]interface{}{"cardId": "card-3"},
				},
			},
		},
	}

	hits := parseHits(result)
	require.Len(t, hits, 1)
	assert.Equal(t, "card-3", hits[0].ID)
	assert.Zero(t, hits[0].Score)
}

func TestParseHits_EmptyResponse(t *testing.T) {
	assert.Empty(t, parseHits(&models.GraphQLResponse{Data: map[string]models.JSONObject{}}))
}

func TestCardClass_CoversIndexedFields(t *testing.T) {
	class := cardClass()
	assert.Equal(t, CardClassName, class.Class)
	assert.Equal(t, "none", class.Vectorizer)

	names := make([]string, 0, len(class.Properties))
	for _, p := range class.Properties {
		names = append(names, p.Name)
	}
	assert.ElementsMatch(t, []string{"cardId", "title", "text", "preview"}, names)
}

func TestNoopStore_AlwaysSucceeds(t *testing.T) {
	store := NewNoopStore(nil)
	ctx := context.Background()

	require.NoError(t, store.AddDocument(ctx, ports.SearchDocument{ID: "x"}))

	present, err := store.RemoveDocument(ctx, "x")
	require.NoError(t, err)
	assert.False(t, present)

	hits, err := store.Search(ctx, "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)

	require.NoError(t, store.DeleteEmbedding(ctx, "x"))
}
