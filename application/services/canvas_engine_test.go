package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"loom-backend/application/indexsync"
	"loom-backend/application/ports"
	"loom-backend/application/regen"
	"loom-backend/domain/config"
	"loom-backend/domain/core/aggregates"
	"loom-backend/domain/core/entities"
	"loom-backend/domain/core/valueobjects"
	"loom-backend/domain/events"
	"loom-backend/pkg/clock"
	pkgerrors "loom-backend/pkg/errors"
)

type fakeGenerator struct {
	mu        sync.Mutex
	responses map[string]string
	failures  map[string]error
	gated     map[string]bool
	gate      chan struct{}
	calls     []valueobjects.CardID
	requests  map[string]ports.GenerationRequest
	summary   string
}

func newFakeGenerator() *fakeGenerator {
	return &fakeGenerator{
		responses: make(map[string]string),
		failures:  make(map[string]error),
		gated:     make(map[string]bool),
		gate:      make(chan struct{}),
		requests:  make(map[string]ports.GenerationRequest),
	}
}

func (g *fakeGenerator) Generate(ctx context.Context, req ports.GenerationRequest) (ports.GenerationResult, error) {
	key := req.CardID.String()

	g.mu.Lock()
	g.calls = append(g.calls, req.CardID)
	g.requests[key] = req
	gated := g.gated[key]
	g.mu.Unlock()

	if gated {
		select {
		case <-g.gate:
		case <-ctx.Done():
			return ports.GenerationResult{}, ctx.Err()
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.failures[key]; err != nil {
		return ports.GenerationResult{}, err
	}
	response, ok := g.responses[key]
	if !ok {
		response = "generated:" + key
	}
	return ports.GenerationResult{Response: response, Model: "test-model"}, nil
}

func (g *fakeGenerator) Summarize(ctx context.Context, text string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.summary != "" {
		return g.summary, nil
	}
	return "summary:" + text, nil
}

func (g *fakeGenerator) respond(id valueobjects.CardID, response string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.responses[id.String()] = response
}

func (g *fakeGenerator) fail(id valueobjects.CardID, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failures[id.String()] = err
}

func (g *fakeGenerator) gateCard(id valueobjects.CardID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gated[id.String()] = true
}

func (g *fakeGenerator) release() {
	close(g.gate)
}

func (g *fakeGenerator) callIDs() []valueobjects.CardID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]valueobjects.CardID(nil), g.calls...)
}

func (g *fakeGenerator) requestFor(id valueobjects.CardID) (ports.GenerationRequest, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	req, ok := g.requests[id.String()]
	return req, ok
}

type fakePublisher struct {
	mu     sync.Mutex
	events []events.DomainEvent
}

func (p *fakePublisher) Publish(ctx context.Context, event events.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *fakePublisher) PublishBatch(ctx context.Context, batch []events.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, batch...)
	return nil
}

func (p *fakePublisher) typesSeen() map[string]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	seen := make(map[string]int)
	for _, event := range p.events {
		seen[event.GetEventType()]++
	}
	return seen
}

type fakeRepo struct {
	mu    sync.Mutex
	saves int
	fail  bool
}

func (r *fakeRepo) Save(ctx context.Context, canvas *aggregates.Canvas) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("storage unavailable")
	}
	r.saves++
	return nil
}

func (r *fakeRepo) GetByID(ctx context.Context, id valueobjects.CanvasID) (*aggregates.Canvas, error) {
	return nil, pkgerrors.NewNotFound("canvas not found: " + id.String())
}

func (r *fakeRepo) List(ctx context.Context) ([]ports.CanvasSummary, error) {
	return nil, nil
}

func (r *fakeRepo) Delete(ctx context.Context, id valueobjects.CanvasID) error {
	return nil
}

type stubSearchIndex struct{}

func (stubSearchIndex) AddDocument(ctx context.Context, doc ports.SearchDocument) error { return nil }
func (stubSearchIndex) RemoveDocument(ctx context.Context, id string) (bool, error)    { return false, nil }
func (stubSearchIndex) Search(ctx context.Context, query string, limit int) ([]ports.SearchHit, error) {
	return nil, nil
}

type engineHarness struct {
	t         *testing.T
	engine    *CanvasEngine
	clk       *clock.Fake
	generator *fakeGenerator
	publisher *fakePublisher
	repo      *fakeRepo
}

func newEngineHarness(t *testing.T) *engineHarness {
	t.Helper()

	canvas, err := aggregates.NewCanvas(valueobjects.NewCanvasID(), "Engine Test Canvas")
	require.NoError(t, err)

	h := &engineHarness{
		t:         t,
		clk:       clock.NewFake(),
		generator: newFakeGenerator(),
		publisher: &fakePublisher{},
		repo:      &fakeRepo{},
	}
	indexer := indexsync.NewSynchronizer(stubSearchIndex{}, nil, 256, zap.NewNop())
	h.engine = NewCanvasEngine(canvas, h.repo, h.publisher, h.generator, indexer, config.DefaultDomainConfig(), h.clk, zap.NewNop())
	return h
}

func (h *engineHarness) addCard(prompt string, parentIDs ...valueobjects.CardID) *entities.Card {
	h.t.Helper()
	position, err := valueobjects.NewPosition(0, 0)
	require.NoError(h.t, err)
	card, err := h.engine.AddCard(context.Background(), position, prompt, parentIDs)
	require.NoError(h.t, err)
	return card
}

func (h *engineHarness) answer(id valueobjects.CardID, response string) {
	h.t.Helper()
	h.generator.respond(id, response)
	_, err := h.engine.GenerateCard(context.Background(), id)
	require.NoError(h.t, err)
}

func (h *engineHarness) card(id valueobjects.CardID) *entities.Card {
	h.t.Helper()
	card, err := h.engine.Card(id)
	require.NoError(h.t, err)
	return card
}

func (h *engineHarness) patch(id valueobjects.CardID, patch aggregates.CardPatch) {
	h.t.Helper()
	_, err := h.engine.PatchCard(context.Background(), id, patch)
	require.NoError(h.t, err)
}

func (h *engineHarness) patchPrompt(id valueobjects.CardID, prompt string) {
	h.t.Helper()
	h.patch(id, aggregates.CardPatch{Prompt: &prompt})
}

// settle fires any pending debounce timers: the history capture and
// the stale recheck.
func (h *engineHarness) settle() {
	h.clk.Advance(time.Second)
}

func (h *engineHarness) waitIdle() {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		return h.engine.RegenerationProgress().State == regen.StateIdle
	}, 2*time.Second, 5*time.Millisecond)
}

func TestCanvasEngine_GenerateCommitsFingerprintAndClearsStale(t *testing.T) {
	h := newEngineHarness(t)
	a := h.addCard("What is a monad?")

	h.answer(a.ID(), "A monoid in the category of endofunctors.")

	card := h.card(a.ID())
	require.True(t, card.HasResponse())
	assert.Equal(t, "A monoid in the category of endofunctors.", *card.Response())
	assert.NotNil(t, card.ContextFingerprint())
	assert.False(t, card.IsStale())

	req, ok := h.generator.requestFor(a.ID())
	require.True(t, ok)
	require.NotNil(t, req.Context)
	assert.Equal(t, "What is a monad?", req.Context.Prompt)
}

func TestCanvasEngine_PromptEditMarksAnsweredSubtreeStale(t *testing.T) {
	h := newEngineHarness(t)
	a := h.addCard("root question")
	b := h.addCard("follow-up", a.ID())
	c := h.addCard("unanswered branch", a.ID())
	h.answer(a.ID(), "root answer")
	h.answer(b.ID(), "follow-up answer")

	h.patchPrompt(a.ID(), "rewritten root question")

	assert.True(t, h.card(a.ID()).IsStale())
	assert.True(t, h.card(b.ID()).IsStale())
	assert.False(t, h.card(c.ID()).IsStale(), "card without response never goes stale")

	// The recheck pass must not clear flags for a genuine change.
	h.settle()
	assert.True(t, h.card(a.ID()).IsStale())
	assert.True(t, h.card(b.ID()).IsStale())
}

func TestCanvasEngine_RevertedEditClearsStaleOnRecheck(t *testing.T) {
	h := newEngineHarness(t)
	a := h.addCard("stable question")
	b := h.addCard("child", a.ID())
	h.answer(a.ID(), "stable answer")
	h.answer(b.ID(), "child answer")

	h.patchPrompt(a.ID(), "edited question")
	require.True(t, h.card(a.ID()).IsStale())
	require.True(t, h.card(b.ID()).IsStale())

	h.patchPrompt(a.ID(), "stable question")
	h.settle()

	assert.False(t, h.card(a.ID()).IsStale(), "restored context should clear the flag")
	assert.False(t, h.card(b.ID()).IsStale())
}

func TestCanvasEngine_ExclusionEditMarksCardStale(t *testing.T) {
	h := newEngineHarness(t)
	a := h.addCard("parent")
	b := h.addCard("child", a.ID())
	h.answer(a.ID(), "parent answer")
	h.answer(b.ID(), "child answer")

	excluded := []valueobjects.CardID{a.ID()}
	h.patch(b.ID(), aggregates.CardPatch{ExcludedContextIDs: &excluded})

	assert.True(t, h.card(b.ID()).IsStale())
	assert.False(t, h.card(a.ID()).IsStale())
}

func TestCanvasEngine_ConnectFlagsTargetSubtree(t *testing.T) {
	h := newEngineHarness(t)
	a := h.addCard("new context source")
	b := h.addCard("standalone")
	c := h.addCard("child of standalone", b.ID())
	h.answer(a.ID(), "source answer")
	h.answer(b.ID(), "standalone answer")
	h.answer(c.ID(), "child answer")

	_, created, err := h.engine.Connect(context.Background(), a.ID(), b.ID())
	require.NoError(t, err)
	require.True(t, created)

	assert.False(t, h.card(a.ID()).IsStale())
	assert.True(t, h.card(b.ID()).IsStale())
	assert.True(t, h.card(c.ID()).IsStale())

	_, created, err = h.engine.Connect(context.Background(), a.ID(), b.ID())
	require.NoError(t, err)
	assert.False(t, created, "duplicate edge is idempotently ignored")

	_, _, err = h.engine.Connect(context.Background(), a.ID(), a.ID())
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestCanvasEngine_RemoveCardFlagsOrphanedChildren(t *testing.T) {
	h := newEngineHarness(t)
	a := h.addCard("grandparent")
	b := h.addCard("parent", a.ID())
	c := h.addCard("child", b.ID())
	h.answer(a.ID(), "answer a")
	h.answer(b.ID(), "answer b")
	h.answer(c.ID(), "answer c")

	require.NoError(t, h.engine.RemoveCard(context.Background(), b.ID()))

	_, err := h.engine.Card(b.ID())
	assert.True(t, pkgerrors.IsNotFound(err))

	card := h.card(c.ID())
	assert.Empty(t, card.ParentIDs(), "severed edges are not bridged to grandparents")
	assert.True(t, card.IsStale())
	assert.False(t, h.card(a.ID()).IsStale())
}

func TestCanvasEngine_UndoRemoveResurrectsGenerationState(t *testing.T) {
	h := newEngineHarness(t)
	a := h.addCard("grandparent")
	b := h.addCard("parent", a.ID())
	c := h.addCard("child", b.ID())
	h.answer(a.ID(), "answer a")
	h.answer(b.ID(), "answer b")
	h.answer(c.ID(), "answer c")
	h.settle()

	require.NoError(t, h.engine.RemoveCard(context.Background(), b.ID()))
	h.settle()

	undone, err := h.engine.Undo(context.Background())
	require.NoError(t, err)
	require.True(t, undone)

	card := h.card(b.ID())
	require.True(t, card.HasResponse(), "resurrected card keeps its response")
	assert.Equal(t, "answer b", *card.Response())
	assert.NotNil(t, card.ContextFingerprint())
	assert.Equal(t, []valueobjects.CardID{a.ID()}, card.ParentIDs())

	assert.False(t, h.card(a.ID()).IsStale())
	assert.False(t, h.card(b.ID()).IsStale())
	assert.False(t, h.card(c.ID()).IsStale(), "restored context matches the stored fingerprint again")
	assert.Equal(t, []valueobjects.CardID{b.ID()}, h.card(c.ID()).ParentIDs())
}

func TestCanvasEngine_UndoRedoRoundTrip(t *testing.T) {
	h := newEngineHarness(t)
	a := h.addCard("original prompt")
	h.answer(a.ID(), "the answer")
	h.settle()

	h.patchPrompt(a.ID(), "edited prompt")
	h.settle()

	undone, err := h.engine.Undo(context.Background())
	require.NoError(t, err)
	require.True(t, undone)
	assert.Equal(t, "original prompt", h.card(a.ID()).Prompt())
	assert.Equal(t, "the answer", *h.card(a.ID()).Response())

	redone, err := h.engine.Redo(context.Background())
	require.NoError(t, err)
	require.True(t, redone)
	assert.Equal(t, "edited prompt", h.card(a.ID()).Prompt())

	redone, err = h.engine.Redo(context.Background())
	require.NoError(t, err)
	assert.False(t, redone, "nothing left to redo")
}

func TestCanvasEngine_UndoAtFloorReturnsFalse(t *testing.T) {
	h := newEngineHarness(t)

	undone, err := h.engine.Undo(context.Background())
	require.NoError(t, err)
	assert.False(t, undone)
}

func TestCanvasEngine_RegenerationRunRepairsStaleChain(t *testing.T) {
	h := newEngineHarness(t)
	a := h.addCard("level zero")
	b := h.addCard("level one", a.ID())
	c := h.addCard("level two", b.ID())
	h.answer(a.ID(), "a1")
	h.answer(b.ID(), "b1")
	h.answer(c.ID(), "c1")

	h.patchPrompt(a.ID(), "level zero, take two")
	require.Equal(t, 3, len(h.engine.View().StaleIDs))

	h.generator.respond(a.ID(), "a2")
	h.generator.respond(b.ID(), "b2")
	h.generator.respond(c.ID(), "c2")

	progress, err := h.engine.StartRegeneration(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, progress.Total)
	assert.Equal(t, 3, progress.LevelCount)

	h.waitIdle()

	assert.Equal(t, "a2", *h.card(a.ID()).Response())
	assert.Equal(t, "b2", *h.card(b.ID()).Response())
	assert.Equal(t, "c2", *h.card(c.ID()).Response())
	assert.Empty(t, h.engine.View().StaleIDs)

	// Ancestors regenerate before descendants. The first three calls
	// were the interactive ones; the run's are the last three.
	calls := h.generator.callIDs()
	require.Len(t, calls, 6)
	assert.Equal(t, []valueobjects.CardID{a.ID(), b.ID(), c.ID()}, calls[3:])

	seen := h.publisher.typesSeen()
	assert.Equal(t, 1, seen[events.TypeRegenerationStarted])
	assert.Equal(t, 3, seen[events.TypeCardRegenerated])
	assert.Equal(t, 1, seen[events.TypeRegenerationCompleted])
}

func TestCanvasEngine_RegenerationFailureKeepsCardStale(t *testing.T) {
	h := newEngineHarness(t)
	a := h.addCard("will fail")
	b := h.addCard("will succeed", a.ID())
	h.answer(a.ID(), "a1")
	h.answer(b.ID(), "b1")
	fingerprintBefore := *h.card(a.ID()).ContextFingerprint()

	h.patchPrompt(a.ID(), "changed")
	h.generator.fail(a.ID(), errors.New("model unavailable"))
	h.generator.respond(b.ID(), "b2")

	_, err := h.engine.StartRegeneration(context.Background())
	require.NoError(t, err)
	h.waitIdle()

	failed := h.card(a.ID())
	assert.True(t, failed.IsStale(), "failed card keeps its stale flag")
	assert.Equal(t, "a1", *failed.Response())
	assert.Equal(t, fingerprintBefore, *failed.ContextFingerprint(), "no fingerprint is saved on failure")

	assert.Equal(t, "b2", *h.card(b.ID()).Response())
	assert.False(t, h.card(b.ID()).IsStale(), "the level after a failure still runs")

	seen := h.publisher.typesSeen()
	assert.Equal(t, 1, seen[events.TypeCardRegenerationFailed])
	assert.Equal(t, 1, seen[events.TypeCardRegenerated])
	assert.Equal(t, 1, seen[events.TypeRegenerationCompleted])
}

func TestCanvasEngine_CancelKeepsUndispatchedCardsStale(t *testing.T) {
	h := newEngineHarness(t)
	a := h.addCard("slow card")
	b := h.addCard("queued card", a.ID())
	h.answer(a.ID(), "a1")
	h.answer(b.ID(), "b1")

	h.patchPrompt(a.ID(), "changed")
	h.generator.gateCard(a.ID())

	_, err := h.engine.StartRegeneration(context.Background())
	require.NoError(t, err)

	interactiveCalls := 2
	require.Eventually(t, func() bool {
		return len(h.generator.callIDs()) == interactiveCalls+1
	}, 2*time.Second, 5*time.Millisecond)

	progress, err := h.engine.CancelRegeneration(context.Background())
	require.NoError(t, err)
	assert.Equal(t, regen.StateCancelled, progress.State)

	queued := h.card(b.ID())
	assert.True(t, queued.IsStale())
	assert.False(t, queued.PendingRegenerate(), "cancellation clears the scheduled flag")

	// The inflight card's generation sees the cancelled context and
	// drains without committing.
	require.Eventually(t, func() bool {
		card := h.card(a.ID())
		return !card.PendingRegenerate()
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, "a1", *h.card(a.ID()).Response())
	assert.True(t, h.card(a.ID()).IsStale())

	seen := h.publisher.typesSeen()
	assert.Equal(t, 1, seen[events.TypeRegenerationCancelled])

	// A fresh run is allowed once the cancelled one has drained.
	h.generator.respond(a.ID(), "a2")
	h.generator.respond(b.ID(), "b2")
	h.generator.release()
	progress, err = h.engine.StartRegeneration(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, progress.Total)
	h.waitIdle()
	assert.Empty(t, h.engine.View().StaleIDs)
}

func TestCanvasEngine_CycleAbortsRegeneration(t *testing.T) {
	h := newEngineHarness(t)
	a := h.addCard("first")
	b := h.addCard("second", a.ID())
	h.answer(a.ID(), "answer a")
	h.answer(b.ID(), "answer b")

	_, created, err := h.engine.Connect(context.Background(), b.ID(), a.ID())
	require.NoError(t, err)
	require.True(t, created)
	require.True(t, h.card(a.ID()).IsStale())
	require.True(t, h.card(b.ID()).IsStale())

	_, err = h.engine.StartRegeneration(context.Background())
	require.True(t, pkgerrors.IsStructural(err))

	assert.False(t, h.card(a.ID()).PendingRegenerate())
	assert.False(t, h.card(b.ID()).PendingRegenerate())
	assert.Equal(t, regen.StateIdle, h.engine.RegenerationProgress().State)
}

func TestCanvasEngine_UndoWhileRegenerationRunningConflicts(t *testing.T) {
	h := newEngineHarness(t)
	a := h.addCard("only card")
	h.answer(a.ID(), "first answer")
	h.settle()

	h.patchPrompt(a.ID(), "edited")
	h.settle()

	h.generator.gateCard(a.ID())
	_, err := h.engine.StartRegeneration(context.Background())
	require.NoError(t, err)

	_, err = h.engine.Undo(context.Background())
	assert.True(t, pkgerrors.IsConflict(err))

	h.generator.release()
	h.waitIdle()

	undone, err := h.engine.Undo(context.Background())
	require.NoError(t, err)
	require.True(t, undone)
	assert.Equal(t, "only card", h.card(a.ID()).Prompt())

	// The regenerated fingerprint covers the edited prompt, so the
	// undone card reads as stale again.
	assert.True(t, h.card(a.ID()).IsStale())
}

func TestCanvasEngine_SummarizeStoresSummaryAndFlagsChildren(t *testing.T) {
	h := newEngineHarness(t)
	a := h.addCard("long-winded question")
	b := h.addCard("child", a.ID())
	h.answer(a.ID(), "a very long answer")
	h.answer(b.ID(), "child answer")

	h.generator.summary = "short version"
	card, err := h.engine.SummarizeCard(context.Background(), a.ID())
	require.NoError(t, err)
	require.NotNil(t, card.Summary())
	assert.Equal(t, "short version", *card.Summary())
	assert.True(t, h.card(b.ID()).IsStale(), "summaries feed descendant context")

	unanswered := h.addCard("no response yet")
	_, err = h.engine.SummarizeCard(context.Background(), unanswered.ID())
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestCanvasEngine_QuoteCardCarriesExcerptIntoContext(t *testing.T) {
	h := newEngineHarness(t)
	a := h.addCard("source question")
	h.answer(a.ID(), "the quotable answer")

	position, err := valueobjects.NewPosition(10, 10)
	require.NoError(t, err)
	quote := entities.Quote{
		Excerpt:        "quotable",
		SourceID:       a.ID(),
		SourceResponse: "the quotable answer",
	}
	card, err := h.engine.AddQuoteCard(context.Background(), position, "expand on this", quote, []valueobjects.CardID{a.ID()})
	require.NoError(t, err)
	require.NotNil(t, card.Quote())
	assert.Equal(t, "quotable", card.Quote().Excerpt)

	h.answer(card.ID(), "expanded")
	req, ok := h.generator.requestFor(card.ID())
	require.True(t, ok)
	require.NotNil(t, req.Context.Quote)
	assert.Equal(t, "quotable", req.Context.Quote.Excerpt)
}

func TestCanvasEngine_SaveFailurePropagates(t *testing.T) {
	h := newEngineHarness(t)
	h.repo.fail = true

	position, err := valueobjects.NewPosition(0, 0)
	require.NoError(t, err)
	_, err = h.engine.AddCard(context.Background(), position, "unsaved", nil)
	require.True(t, pkgerrors.IsInternal(err))

	// In-memory state stays authoritative even when the save failed.
	assert.Equal(t, 1, len(h.engine.View().Cards))
}

func TestCanvasEngine_ClearHistoryDropsTimeline(t *testing.T) {
	h := newEngineHarness(t)
	a := h.addCard("only card")
	h.settle()
	require.True(t, h.engine.History().CanUndo)

	require.NoError(t, h.engine.RemoveCard(context.Background(), a.ID()))
	h.settle()

	h.engine.ClearHistory()
	status := h.engine.History()
	assert.False(t, status.CanUndo)
	assert.False(t, status.CanRedo)

	undone, err := h.engine.Undo(context.Background())
	require.NoError(t, err)
	assert.False(t, undone)
}

func TestCanvasEngine_ContextPreviewMatchesGeneratedContext(t *testing.T) {
	h := newEngineHarness(t)
	a := h.addCard("parent prompt")
	b := h.addCard("child prompt", a.ID())
	h.answer(a.ID(), "parent answer")

	preview, err := h.engine.ContextPreview(b.ID())
	require.NoError(t, err)
	assert.Equal(t, "child prompt", preview.Prompt)
	require.Len(t, preview.Parents, 1)
	assert.Equal(t, "parent answer", preview.Parents[0].Response)
}

func TestCanvasEngine_StatsCountsCardsAndStaleness(t *testing.T) {
	h := newEngineHarness(t)
	a := h.addCard("root")
	b := h.addCard("leaf", a.ID())
	h.answer(a.ID(), "answer")
	h.answer(b.ID(), "answer")
	h.patchPrompt(a.ID(), "edited root")

	stats, err := h.engine.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.CardCount)
	assert.Equal(t, 1, stats.EdgeCount)
	assert.Equal(t, 2, stats.StaleCount)
	assert.Equal(t, 2, stats.AnsweredCount)
}
