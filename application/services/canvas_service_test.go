package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"loom-backend/application/indexsync"
	"loom-backend/application/ports"
	"loom-backend/domain/config"
	"loom-backend/domain/core/valueobjects"
	"loom-backend/infrastructure/persistence/memory"
	"loom-backend/pkg/clock"
	pkgerrors "loom-backend/pkg/errors"
)

type recordingSearchIndex struct {
	mu        sync.Mutex
	lastQuery string
	lastLimit int
	hits      []ports.SearchHit
}

func (r *recordingSearchIndex) AddDocument(ctx context.Context, doc ports.SearchDocument) error {
	return nil
}

func (r *recordingSearchIndex) RemoveDocument(ctx context.Context, id string) (bool, error) {
	return false, nil
}

func (r *recordingSearchIndex) Search(ctx context.Context, query string, limit int) ([]ports.SearchHit, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastQuery = query
	r.lastLimit = limit
	return r.hits, nil
}

func newTestService(t *testing.T) (*CanvasService, *recordingSearchIndex) {
	t.Helper()
	search := &recordingSearchIndex{}
	indexer := indexsync.NewSynchronizer(search, nil, 256, zap.NewNop())
	service := NewCanvasService(
		memory.NewCanvasRepository(),
		&fakePublisher{},
		newFakeGenerator(),
		search,
		indexer,
		nil,
		clock.NewFake(),
		zap.NewNop(),
	)
	return service, search
}

func TestCanvasService_CreateAndList(t *testing.T) {
	service, _ := newTestService(t)

	engine, err := service.CreateCanvas(context.Background(), "Research Notes")
	require.NoError(t, err)
	require.NotNil(t, engine)

	summaries, err := service.List(context.Background())
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "Research Notes", summaries[0].Name)
	assert.Equal(t, 0, summaries[0].CardCount)
}

func TestCanvasService_CreateDefaultsUntitledName(t *testing.T) {
	service, _ := newTestService(t)

	engine, err := service.CreateCanvas(context.Background(), "  ")
	require.NoError(t, err)
	assert.Equal(t, "Untitled Canvas", engine.View().Name)
}

func TestCanvasService_EngineIsCached(t *testing.T) {
	service, _ := newTestService(t)

	created, err := service.CreateCanvas(context.Background(), "Cached")
	require.NoError(t, err)

	loaded, err := service.Engine(context.Background(), created.ID())
	require.NoError(t, err)
	assert.Same(t, created, loaded)
}

func TestCanvasService_EngineLoadsFromRepository(t *testing.T) {
	repo := memory.NewCanvasRepository()
	search := &recordingSearchIndex{}
	indexer := indexsync.NewSynchronizer(search, nil, 256, zap.NewNop())
	first := NewCanvasService(repo, &fakePublisher{}, newFakeGenerator(), search, indexer, nil, clock.NewFake(), zap.NewNop())

	engine, err := first.CreateCanvas(context.Background(), "Persisted")
	require.NoError(t, err)
	position, err := valueobjects.NewPosition(1, 2)
	require.NoError(t, err)
	card, err := engine.AddCard(context.Background(), position, "saved prompt", nil)
	require.NoError(t, err)

	// A second service over the same repository sees the stored state.
	second := NewCanvasService(repo, &fakePublisher{}, newFakeGenerator(), search, indexer, nil, clock.NewFake(), zap.NewNop())
	reloaded, err := second.Engine(context.Background(), engine.ID())
	require.NoError(t, err)

	view := reloaded.View()
	require.Len(t, view.Cards, 1)
	assert.True(t, view.Cards[0].ID().Equals(card.ID()))
	assert.Equal(t, "saved prompt", view.Cards[0].Prompt())
}

func TestCanvasService_EngineUnknownCanvasNotFound(t *testing.T) {
	service, _ := newTestService(t)

	_, err := service.Engine(context.Background(), valueobjects.NewCanvasID())
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestCanvasService_DeleteEvictsEngine(t *testing.T) {
	service, _ := newTestService(t)

	engine, err := service.CreateCanvas(context.Background(), "Doomed")
	require.NoError(t, err)
	position, err := valueobjects.NewPosition(0, 0)
	require.NoError(t, err)
	_, err = engine.AddCard(context.Background(), position, "a card", nil)
	require.NoError(t, err)

	require.NoError(t, service.DeleteCanvas(context.Background(), engine.ID()))

	_, err = service.Engine(context.Background(), engine.ID())
	assert.True(t, pkgerrors.IsNotFound(err))

	summaries, err := service.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, summaries)
}

func TestCanvasService_CloseEvictsAndPersists(t *testing.T) {
	service, _ := newTestService(t)

	engine, err := service.CreateCanvas(context.Background(), "Long Day")
	require.NoError(t, err)
	position, err := valueobjects.NewPosition(10, 20)
	require.NoError(t, err)
	card, err := engine.AddCard(context.Background(), position, "keep me", nil)
	require.NoError(t, err)

	require.NoError(t, service.CloseCanvas(context.Background(), engine.ID()))

	// The retired handle refuses further writes.
	_, err = engine.AddCard(context.Background(), position, "too late", nil)
	assert.True(t, pkgerrors.IsConflict(err))

	// The stored canvas survives and reloads into a fresh engine.
	reloaded, err := service.Engine(context.Background(), engine.ID())
	require.NoError(t, err)
	assert.NotSame(t, engine, reloaded)
	view := reloaded.View()
	require.Len(t, view.Cards, 1)
	assert.True(t, view.Cards[0].ID().Equals(card.ID()))

	// Closing a canvas that is not open is a no-op.
	require.NoError(t, service.CloseCanvas(context.Background(), valueobjects.NewCanvasID()))
}

func TestCanvasService_OpenCanvasLimit(t *testing.T) {
	cfg := config.DefaultDomainConfig()
	cfg.MaxOpenCanvases = 1
	search := &recordingSearchIndex{}
	indexer := indexsync.NewSynchronizer(search, nil, 256, zap.NewNop())
	service := NewCanvasService(
		memory.NewCanvasRepository(),
		&fakePublisher{},
		newFakeGenerator(),
		search,
		indexer,
		cfg,
		clock.NewFake(),
		zap.NewNop(),
	)

	first, err := service.CreateCanvas(context.Background(), "First")
	require.NoError(t, err)

	_, err = service.CreateCanvas(context.Background(), "Second")
	assert.True(t, pkgerrors.IsConflict(err), "registry full: creating must be refused")

	// A cached engine is still reachable; only new slots are refused.
	again, err := service.Engine(context.Background(), first.ID())
	require.NoError(t, err)
	assert.Same(t, first, again)

	require.NoError(t, service.CloseCanvas(context.Background(), first.ID()))
	second, err := service.CreateCanvas(context.Background(), "Second")
	require.NoError(t, err)

	// The slot is taken again, so reopening the first canvas is refused.
	_, err = service.Engine(context.Background(), first.ID())
	assert.True(t, pkgerrors.IsConflict(err))

	require.NoError(t, service.CloseCanvas(context.Background(), second.ID()))
	reopened, err := service.Engine(context.Background(), first.ID())
	require.NoError(t, err)
	assert.Equal(t, "First", reopened.View().Name)
}

func TestCanvasService_GaugesSampleOpenEngines(t *testing.T) {
	service, _ := newTestService(t)

	engine, err := service.CreateCanvas(context.Background(), "Observed")
	require.NoError(t, err)
	position, err := valueobjects.NewPosition(0, 0)
	require.NoError(t, err)
	_, err = engine.AddCard(context.Background(), position, "a prompt", nil)
	require.NoError(t, err)

	samples := service.Gauges()
	require.Len(t, samples, 1)
	assert.Equal(t, engine.ID().String(), samples[0].CanvasID)
	assert.Equal(t, 0, samples[0].StaleCards)
	assert.Equal(t, 0, samples[0].UndoDepth, "capture still pending inside the debounce window")

	require.NoError(t, service.CloseCanvas(context.Background(), engine.ID()))
	assert.Empty(t, service.Gauges(), "closed canvases drop out of the sample")
}

func TestCanvasService_SearchValidatesAndDefaults(t *testing.T) {
	service, search := newTestService(t)
	search.hits = []ports.SearchHit{{ID: "card-1", Title: "hit", Score: 0.9}}

	_, err := service.SearchCards(context.Background(), "   ", 10)
	assert.True(t, pkgerrors.IsValidation(err))

	hits, err := service.SearchCards(context.Background(), "monad", 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "card-1", hits[0].ID)
	assert.Equal(t, "monad", search.lastQuery)
	assert.Equal(t, 20, search.lastLimit, "non-positive limit falls back to the default")
}
