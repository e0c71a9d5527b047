package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"loom-backend/application/history"
	"loom-backend/application/indexsync"
	"loom-backend/application/ports"
	"loom-backend/application/regen"
	"loom-backend/domain/config"
	"loom-backend/domain/core/aggregates"
	"loom-backend/domain/core/entities"
	"loom-backend/domain/core/valueobjects"
	"loom-backend/domain/events"
	domainservices "loom-backend/domain/services"
	"loom-backend/pkg/clock"
	pkgerrors "loom-backend/pkg/errors"
)

// CanvasEngine is the single writer for one canvas. Every mutation of
// the card graph goes through it, so the aggregate, the staleness
// flags, the undo history, the search index, and the regeneration
// scheduler can never observe each other mid-update.
//
// Locking: engine.mu is the outermost lock. The scheduler and the
// history manager have their own mutexes and are only entered while
// engine.mu is held (or from their own callbacks, which re-enter
// through engine methods that take engine.mu first). Generation calls
// run outside the lock.
type CanvasEngine struct {
	mu     sync.Mutex
	canvas *aggregates.Canvas

	validation   *domainservices.CanvasValidationService
	staleness    *domainservices.StalenessService
	fingerprints *domainservices.FingerprintService
	contexts     *domainservices.ContextBuilder
	documents    *domainservices.CardDocumentService
	analytics    *domainservices.CanvasAnalyticsService

	historyMgr *history.Manager
	scheduler  *regen.Scheduler
	indexer    *indexsync.Synchronizer

	// graveyard keeps full copies of removed cards so undo can
	// resurrect them with their generation state intact. Snapshots
	// only record user intent.
	graveyard map[valueobjects.CardID]*entities.Card

	repo      ports.CanvasRepository
	publisher ports.EventPublisher
	generator ports.GenerationProvider

	cfg    *config.DomainConfig
	clk    clock.Clock
	logger *zap.Logger

	recheckTimer clock.Timer
	closed       bool
}

// NewCanvasEngine wires an engine around a loaded canvas aggregate.
// The indexer is shared across engines; everything else is per-canvas.
func NewCanvasEngine(
	canvas *aggregates.Canvas,
	repo ports.CanvasRepository,
	publisher ports.EventPublisher,
	generator ports.GenerationProvider,
	indexer *indexsync.Synchronizer,
	cfg *config.DomainConfig,
	clk clock.Clock,
	logger *zap.Logger,
) *CanvasEngine {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	if clk == nil {
		clk = clock.System()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	contexts := domainservices.NewContextBuilder(cfg)
	fingerprints := domainservices.NewFingerprintService(contexts)

	e := &CanvasEngine{
		canvas:       canvas,
		validation:   domainservices.NewCanvasValidationService(cfg),
		staleness:    domainservices.NewStalenessService(fingerprints),
		fingerprints: fingerprints,
		contexts:     contexts,
		documents:    domainservices.NewCardDocumentService(),
		analytics:    domainservices.NewCanvasAnalyticsService(),
		indexer:      indexer,
		graveyard:    make(map[valueobjects.CardID]*entities.Card),
		repo:         repo,
		publisher:    publisher,
		generator:    generator,
		cfg:          cfg,
		clk:          clk,
		logger:       logger,
	}

	e.historyMgr = history.NewManager(history.SnapshotCanvas(canvas), cfg, clk, e.flushHistory, logger)
	e.scheduler = regen.NewScheduler(canvas, e.dispatchCard, e.onRunFinished, logger)
	return e
}

// ID returns the canvas identifier.
func (e *CanvasEngine) ID() valueobjects.CanvasID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.canvas.ID()
}

// CanvasView is a read-only copy of the full canvas state.
type CanvasView struct {
	ID        valueobjects.CanvasID
	Name      string
	Cards     []*entities.Card
	Edges     []aggregates.Edge
	StaleIDs  []valueobjects.CardID
	CreatedAt time.Time
	UpdatedAt time.Time
	Version   int
}

// View returns a deep copy of the canvas suitable for rendering.
func (e *CanvasEngine) View() CanvasView {
	e.mu.Lock()
	defer e.mu.Unlock()

	cards := e.canvas.Cards()
	cloned := make([]*entities.Card, len(cards))
	for i, card := range cards {
		cloned[i] = card.Clone()
	}

	edges := e.canvas.Edges()
	copied := make([]aggregates.Edge, len(edges))
	for i, edge := range edges {
		copied[i] = *edge
	}

	return CanvasView{
		ID:        e.canvas.ID(),
		Name:      e.canvas.Name(),
		Cards:     cloned,
		Edges:     copied,
		StaleIDs:  e.canvas.StaleCardIDs(),
		CreatedAt: e.canvas.CreatedAt(),
		UpdatedAt: e.canvas.UpdatedAt(),
		Version:   e.canvas.Version(),
	}
}

// Card returns a copy of a single card.
func (e *CanvasEngine) Card(id valueobjects.CardID) (*entities.Card, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	card, err := e.canvas.GetCard(id)
	if err != nil {
		return nil, err
	}
	return card.Clone(), nil
}

// Rename changes the canvas name. Canvas metadata is outside the undo
// timeline, which tracks cards only.
func (e *CanvasEngine) Rename(ctx context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.canvas.Rename(name); err != nil {
		return err
	}
	return e.persistLocked(ctx)
}

// AddCard creates a card with context edges from the given parents.
func (e *CanvasEngine) AddCard(ctx context.Context, position valueobjects.Position, prompt string, parentIDs []valueobjects.CardID) (*entities.Card, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.addCardLocked(ctx, position, prompt, nil, parentIDs)
}

// AddQuoteCard creates a card anchored to an excerpt of another
// card's response.
func (e *CanvasEngine) AddQuoteCard(ctx context.Context, position valueobjects.Position, prompt string, quote entities.Quote, parentIDs []valueobjects.CardID) (*entities.Card, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.addCardLocked(ctx, position, prompt, &quote, parentIDs)
}

func (e *CanvasEngine) addCardLocked(ctx context.Context, position valueobjects.Position, prompt string, quote *entities.Quote, parentIDs []valueobjects.CardID) (*entities.Card, error) {
	if err := e.validation.ValidateCardAddition(e.canvas, prompt); err != nil {
		return nil, err
	}

	card, err := e.canvas.AddCard(position, prompt, parentIDs)
	if err != nil {
		return nil, err
	}

	if quote != nil {
		if _, err := e.canvas.PatchCard(card.ID(), aggregates.CardPatch{Quote: quote}); err != nil {
			return nil, err
		}
	}

	e.historyMgr.RecordSoon()
	if err := e.persistLocked(ctx); err != nil {
		return nil, err
	}

	e.logger.Info("Card added",
		zap.String("canvasID", e.canvas.ID().String()),
		zap.String("cardID", card.ID().String()),
		zap.Int("parents", len(parentIDs)))
	return card.Clone(), nil
}

// PatchCard applies a partial update and runs the staleness, history,
// and index consequences of whatever actually changed.
func (e *CanvasEngine) PatchCard(ctx context.Context, id valueobjects.CardID, patch aggregates.CardPatch) (*entities.Card, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	result, err := e.canvas.PatchCard(id, patch)
	if err != nil {
		return nil, err
	}

	card, err := e.canvas.GetCard(id)
	if err != nil {
		return nil, err
	}

	if result.AffectsOwnContext() {
		card.MarkStale()
	}
	if result.AffectsDescendantContext() {
		e.staleness.MarkDescendantsStale(e.canvas, id)
	}
	if result.Changed() {
		e.historyMgr.RecordSoon()
		e.scheduleStaleRecheckLocked()
	}

	if result.PromptChanged || result.ResponseChanged || result.SummaryChanged || result.QuoteChanged {
		if card.HasResponse() {
			e.indexer.EnqueueAdd(e.searchDocumentLocked(card))
		} else {
			e.indexer.EnqueueRemove(id.String())
		}
	}

	if err := e.persistLocked(ctx); err != nil {
		return nil, err
	}
	return card.Clone(), nil
}

// RemoveCard deletes a card, rewires its children's parent sets, and
// keeps the removed card in the graveyard for undo.
func (e *CanvasEngine) RemoveCard(ctx context.Context, id valueobjects.CardID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	removed, err := e.canvas.RemoveCard(id)
	if err != nil {
		return err
	}
	e.graveyard[id] = removed.Card

	for _, childID := range removed.ChildIDs {
		e.staleness.MarkDescendantsStale(e.canvas, childID)
	}

	e.indexer.EnqueueRemove(id.String())
	e.historyMgr.RecordSoon()
	e.scheduleStaleRecheckLocked()

	if err := e.persistLocked(ctx); err != nil {
		return err
	}

	e.logger.Info("Card removed",
		zap.String("canvasID", e.canvas.ID().String()),
		zap.String("cardID", id.String()),
		zap.Int("severedEdges", len(removed.RemovedEdges)))
	return nil
}

// Connect adds a context edge, reporting whether it was newly created.
// A duplicate edge is not an error; it just returns created=false.
func (e *CanvasEngine) Connect(ctx context.Context, sourceID, targetID valueobjects.CardID) (aggregates.Edge, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.validation.ValidateEdgeAddition(e.canvas, sourceID, targetID); err != nil {
		return aggregates.Edge{}, false, err
	}

	edge, created, err := e.canvas.AddEdge(sourceID, targetID)
	if err != nil {
		return aggregates.Edge{}, false, err
	}
	if !created {
		return *edge, false, nil
	}

	// The aggregate marked the target itself; its answered
	// descendants inherit the change.
	e.staleness.MarkDescendantsStale(e.canvas, targetID)
	e.historyMgr.RecordSoon()
	e.scheduleStaleRecheckLocked()

	if err := e.persistLocked(ctx); err != nil {
		return aggregates.Edge{}, false, err
	}
	return *edge, true, nil
}

// RemoveEdge deletes a context edge and flags the former target's
// answered subtree.
func (e *CanvasEngine) RemoveEdge(ctx context.Context, edgeID valueobjects.EdgeID) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	edge, err := e.canvas.RemoveEdge(edgeID)
	if err != nil {
		return err
	}

	e.staleness.MarkDescendantsStale(e.canvas, edge.TargetID)
	e.historyMgr.RecordSoon()
	e.scheduleStaleRecheckLocked()
	return e.persistLocked(ctx)
}

// GenerateCard produces a response for one card interactively. The
// provider call runs outside the engine lock.
func (e *CanvasEngine) GenerateCard(ctx context.Context, id valueobjects.CardID) (*entities.Card, error) {
	e.mu.Lock()
	cardCtx, err := e.contexts.Build(e.canvas, id)
	canvasID := e.canvas.ID()
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}

	result, err := e.generator.Generate(ctx, ports.GenerationRequest{
		CanvasID: canvasID,
		CardID:   id,
		Context:  cardCtx,
	})
	if err != nil {
		return nil, pkgerrors.NewGeneration("card generation failed", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.commitResponseLocked(ctx, id, result.Response); err != nil {
		return nil, err
	}

	card, err := e.canvas.GetCard(id)
	if err != nil {
		return nil, err
	}
	return card.Clone(), nil
}

// SummarizeCard asks the provider to condense a card's response and
// stores the result. Summaries stand in for distant ancestors when
// composing context.
func (e *CanvasEngine) SummarizeCard(ctx context.Context, id valueobjects.CardID) (*entities.Card, error) {
	e.mu.Lock()
	card, err := e.canvas.GetCard(id)
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}
	response := card.Response()
	e.mu.Unlock()

	if response == nil {
		return nil, pkgerrors.NewValidation("card has no response to summarize")
	}

	summary, err := e.generator.Summarize(ctx, *response)
	if err != nil {
		return nil, pkgerrors.NewGeneration("summarization failed", err)
	}

	return e.PatchCard(ctx, id, aggregates.CardPatch{Summary: &summary})
}

// commitResponseLocked stores a generated response and runs the
// bookkeeping that follows any response change: fingerprint save,
// stale clear, descendant flagging, and index update. A failed
// fingerprint leaves the card stale; the response is kept regardless.
func (e *CanvasEngine) commitResponseLocked(ctx context.Context, id valueobjects.CardID, response string) error {
	result, err := e.canvas.PatchCard(id, aggregates.CardPatch{Response: &response})
	if err != nil {
		return err
	}

	card, err := e.canvas.GetCard(id)
	if err != nil {
		return err
	}

	if fingerprint, fpErr := e.fingerprints.Fingerprint(e.canvas, id); fpErr == nil {
		card.SaveContextFingerprint(fingerprint)
		card.ClearStale()
	} else {
		e.logger.Warn("Fingerprint unavailable after generation",
			zap.String("cardID", id.String()),
			zap.Error(fpErr))
	}

	if result.ResponseChanged {
		e.staleness.MarkDescendantsStale(e.canvas, id)
		e.scheduleStaleRecheckLocked()
	}

	e.indexer.EnqueueAdd(e.searchDocumentLocked(card))
	return e.persistLocked(ctx)
}

// StartRegeneration schedules every stale card for regeneration in
// dependency order. Returns the initial progress; the run itself
// proceeds on provider goroutines.
func (e *CanvasEngine) StartRegeneration(ctx context.Context) (regen.Progress, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return regen.Progress{}, pkgerrors.NewConflict("canvas engine closed")
	}
	progress, err := e.scheduler.Start(context.WithoutCancel(ctx))
	if err != nil {
		return progress, err
	}
	if progress.Total == 0 {
		return progress, nil
	}

	event := events.NewRegenerationStarted(e.canvas.ID(), progress.Total, progress.LevelCount, e.clk.Now())
	e.publishLocked(ctx, event)
	if err := e.persistLocked(ctx); err != nil {
		e.logger.Warn("Run start not persisted", zap.Error(err))
	}
	return progress, nil
}

// CancelRegeneration stops the active run. Cards already dispatched
// drain in the background; their completions are discarded.
func (e *CanvasEngine) CancelRegeneration(ctx context.Context) (regen.Progress, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	progress, err := e.scheduler.Cancel()
	if err != nil {
		return progress, err
	}
	if err := e.persistLocked(ctx); err != nil {
		e.logger.Warn("Cancellation not persisted", zap.Error(err))
	}
	return progress, nil
}

// RegenerationProgress reports the scheduler's current state.
func (e *CanvasEngine) RegenerationProgress() regen.Progress {
	return e.scheduler.Progress()
}

// dispatchCard is the scheduler's DispatchFunc. It runs on its own
// goroutine per card, builds context under the lock, generates outside
// it, and reports completion exactly once.
func (e *CanvasEngine) dispatchCard(ctx context.Context, cardID valueobjects.CardID, level int) {
	e.mu.Lock()
	cardCtx, buildErr := e.contexts.Build(e.canvas, cardID)
	canvasID := e.canvas.ID()
	e.mu.Unlock()

	if buildErr != nil {
		e.completeCard(ctx, cardID, level, "", buildErr)
		return
	}

	result, genErr := e.generator.Generate(ctx, ports.GenerationRequest{
		CanvasID: canvasID,
		CardID:   cardID,
		Context:  cardCtx,
	})
	if genErr == nil && ctx.Err() != nil {
		genErr = ctx.Err()
	}
	if genErr != nil {
		e.completeCard(ctx, cardID, level, "", genErr)
		return
	}
	e.completeCard(ctx, cardID, level, result.Response, nil)
}

// completeCard commits a regeneration outcome and advances the
// scheduler. A commit failure counts as a card failure.
func (e *CanvasEngine) completeCard(ctx context.Context, cardID valueobjects.CardID, level int, response string, genErr error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if genErr == nil {
		genErr = e.commitResponseLocked(ctx, cardID, response)
	}

	timestamp := e.clk.Now()
	var event events.DomainEvent
	if genErr != nil {
		event = events.NewCardRegenerationFailed(e.canvas.ID(), cardID, level, genErr.Error(), timestamp)
	} else {
		event = events.NewCardRegenerated(e.canvas.ID(), cardID, level, timestamp)
	}
	e.publishLocked(context.WithoutCancel(ctx), event)

	e.scheduler.OnCardComplete(cardID, genErr)
}

// onRunFinished is the scheduler's end-of-run callback. It runs on its
// own goroutine after the state transition.
func (e *CanvasEngine) onRunFinished(summary regen.Summary) {
	ctx := context.Background()

	e.mu.Lock()
	canvasID := e.canvas.ID()
	timestamp := e.clk.Now()
	if !e.closed {
		if err := e.persistLocked(ctx); err != nil {
			e.logger.Warn("Run outcome not persisted", zap.Error(err))
		}
	}
	e.mu.Unlock()

	var event events.DomainEvent
	if summary.Cancelled {
		remaining := summary.Total - summary.Completed - summary.Failed
		event = events.NewRegenerationCancelled(canvasID, summary.Completed, remaining, timestamp)
	} else {
		event = events.NewRegenerationCompleted(canvasID, summary.Completed, summary.Failed, timestamp)
	}
	if err := e.publisher.Publish(ctx, event); err != nil {
		e.logger.Warn("Event publish failed",
			zap.String("eventType", event.GetEventType()),
			zap.Error(err))
	}
}

// RecheckStale recomputes fingerprints for every stale card and
// clears the ones whose context matches again.
func (e *CanvasEngine) RecheckStale(ctx context.Context) ([]valueobjects.CardID, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	cleared := e.staleness.TryClearStaleAll(e.canvas)
	if len(cleared) == 0 {
		return nil, nil
	}
	return cleared, e.persistLocked(ctx)
}

// HistoryStatus reports the undo/redo timeline position.
type HistoryStatus struct {
	CanUndo   bool `json:"canUndo"`
	CanRedo   bool `json:"canRedo"`
	UndoDepth int  `json:"undoDepth"`
	RedoDepth int  `json:"redoDepth"`
}

// History returns the current timeline status.
func (e *CanvasEngine) History() HistoryStatus {
	return HistoryStatus{
		CanUndo:   e.historyMgr.CanUndo(),
		CanRedo:   e.historyMgr.CanRedo(),
		UndoDepth: e.historyMgr.UndoCount(),
		RedoDepth: e.historyMgr.RedoCount(),
	}
}

// Undo restores the previous recorded canvas state. Returns false
// when the timeline is already at its floor.
func (e *CanvasEngine) Undo(ctx context.Context) (bool, error) {
	return e.restore(ctx, "undo")
}

// Redo reapplies the most recently undone state.
func (e *CanvasEngine) Redo(ctx context.Context) (bool, error) {
	return e.restore(ctx, "redo")
}

func (e *CanvasEngine) restore(ctx context.Context, direction string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if state := e.scheduler.Progress().State; state == regen.StateRunning || state == regen.StateLevelInProgress {
		return false, pkgerrors.NewConflict("cannot restore history while regeneration is running")
	}

	current := history.SnapshotCanvas(e.canvas)
	var (
		target history.Snapshot
		diff   history.Diff
		ok     bool
	)
	if direction == "undo" {
		target, diff, ok = e.historyMgr.Undo(current)
	} else {
		target, diff, ok = e.historyMgr.Redo(current)
	}
	if !ok {
		return false, nil
	}

	if err := e.applyRestoreLocked(ctx, target, diff, direction); err != nil {
		return false, err
	}
	return true, nil
}

// ClearHistory drops the timeline and the graveyard. The current
// state becomes the new baseline.
func (e *CanvasEngine) ClearHistory() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.historyMgr.Clear(history.SnapshotCanvas(e.canvas))
	e.graveyard = make(map[valueobjects.CardID]*entities.Card)
}

// applyRestoreLocked rebuilds the canvas to match a snapshot:
// resurrect vanished cards, re-point surviving cards' intent fields,
// rewire edges, drop cards the snapshot lacks, then reconcile
// staleness wholesale and let the index catch up.
func (e *CanvasEngine) applyRestoreLocked(ctx context.Context, target history.Snapshot, diff history.Diff, direction string) error {
	resurrected := make(map[valueobjects.CardID]bool, len(diff.ResurrectedIDs))
	for _, id := range diff.ResurrectedIDs {
		resurrected[id] = true
		if err := e.resurrectLocked(target, id); err != nil {
			e.logger.Warn("Card resurrection failed",
				zap.String("cardID", id.String()),
				zap.Error(err))
		}
	}

	for i := range target.Cards {
		snap := &target.Cards[i]
		if resurrected[snap.ID] {
			continue
		}
		if err := e.applySnapshotFieldsLocked(snap); err != nil {
			e.logger.Warn("Snapshot field restore failed",
				zap.String("cardID", snap.ID.String()),
				zap.Error(err))
		}
	}

	e.rewireEdgesLocked(target)

	for _, id := range diff.VanishedIDs {
		removed, err := e.canvas.RemoveCard(id)
		if err != nil {
			continue
		}
		e.graveyard[id] = removed.Card
	}

	marked, cleared := e.staleness.Reconcile(e.canvas)

	e.indexer.SyncRestore(diff, e.documentResolverLocked())

	event := events.NewCanvasRestored(e.canvas.ID(), direction, e.canvas.CardCount(), e.canvas.EdgeCount(), e.clk.Now())
	e.publishLocked(ctx, event)

	e.logger.Info("Canvas restored",
		zap.String("canvasID", e.canvas.ID().String()),
		zap.String("direction", direction),
		zap.Int("vanished", len(diff.VanishedIDs)),
		zap.Int("resurrected", len(diff.ResurrectedIDs)),
		zap.Int("markedStale", len(marked)),
		zap.Int("clearedStale", len(cleared)))

	return e.persistLocked(ctx)
}

// resurrectLocked rebuilds a removed card from its snapshot, merging
// back the generation state the graveyard preserved. Parent links are
// left empty here; the edge pass recomputes them.
func (e *CanvasEngine) resurrectLocked(target history.Snapshot, id valueobjects.CardID) error {
	snap := findSnapshotCard(target, id)
	if snap == nil {
		return pkgerrors.NewInternal("restored snapshot is missing a resurrected card", nil)
	}

	position, err := valueobjects.NewPosition(snap.X, snap.Y)
	if err != nil {
		return err
	}

	var quote *entities.Quote
	if snap.Quote != nil {
		quote = &entities.Quote{
			Excerpt:        snap.Quote.Excerpt,
			SourceID:       snap.Quote.SourceID,
			SourceResponse: snap.Quote.SourceResponse,
		}
	}

	var (
		response    *string
		summary     *string
		fingerprint *string
		isStale     bool
		version     = 1
		createdAt   = e.clk.Now()
	)
	if buried, ok := e.graveyard[id]; ok {
		response = buried.Response()
		summary = buried.Summary()
		fingerprint = buried.ContextFingerprint()
		isStale = buried.IsStale() && response != nil
		version = buried.Version()
		createdAt = buried.CreatedAt()
	}

	card, err := entities.ReconstructCard(
		id, position, snap.Prompt, response, summary,
		nil, quote, isStale, fingerprint, snap.ExcludedContextIDs,
		createdAt, e.clk.Now(), version,
	)
	if err != nil {
		return err
	}
	return e.canvas.LoadCard(card)
}

// applySnapshotFieldsLocked patches a surviving card back to its
// snapshot's intent fields. Parent links are handled by the edge pass.
func (e *CanvasEngine) applySnapshotFieldsLocked(snap *history.CardSnapshot) error {
	card, err := e.canvas.GetCard(snap.ID)
	if err != nil {
		return err
	}

	patch := aggregates.CardPatch{}
	if card.Position().X() != snap.X || card.Position().Y() != snap.Y {
		position, err := valueobjects.NewPosition(snap.X, snap.Y)
		if err != nil {
			return err
		}
		patch.Position = &position
	}
	if card.Prompt() != snap.Prompt {
		prompt := snap.Prompt
		patch.Prompt = &prompt
	}

	currentQuote := card.Quote()
	switch {
	case snap.Quote == nil && currentQuote != nil:
		patch.ClearQuote = true
	case snap.Quote != nil:
		restored := entities.Quote{
			Excerpt:        snap.Quote.Excerpt,
			SourceID:       snap.Quote.SourceID,
			SourceResponse: snap.Quote.SourceResponse,
		}
		if currentQuote == nil || *currentQuote != restored {
			patch.Quote = &restored
		}
	}

	if !equalCardIDs(card.ExcludedContextIDs(), snap.ExcludedContextIDs) {
		excluded := append([]valueobjects.CardID(nil), snap.ExcludedContextIDs...)
		patch.ExcludedContextIDs = &excluded
	}

	_, err = e.canvas.PatchCard(snap.ID, patch)
	return err
}

// rewireEdgesLocked makes every card's incoming edges match its
// snapshot's parent list, preserving order.
func (e *CanvasEngine) rewireEdgesLocked(target history.Snapshot) {
	for i := range target.Cards {
		snap := &target.Cards[i]
		card, err := e.canvas.GetCard(snap.ID)
		if err != nil {
			continue
		}
		if equalCardIDs(card.ParentIDs(), snap.ParentIDs) {
			continue
		}

		for _, edge := range e.canvas.Edges() {
			if edge.TargetID.Equals(snap.ID) {
				if _, err := e.canvas.RemoveEdge(edge.ID); err != nil {
					e.logger.Warn("Edge removal failed during restore",
						zap.String("edgeID", edge.ID.String()),
						zap.Error(err))
				}
			}
		}
		for _, parentID := range snap.ParentIDs {
			if _, _, err := e.canvas.AddEdge(parentID, snap.ID); err != nil {
				e.logger.Warn("Edge restore skipped",
					zap.String("sourceID", parentID.String()),
					zap.String("targetID", snap.ID.String()),
					zap.Error(err))
			}
		}
	}
}

// documentResolverLocked builds the resolver SyncRestore uses to
// reindex resurrected cards. It runs synchronously under the engine
// lock, so reading the canvas is safe.
func (e *CanvasEngine) documentResolverLocked() indexsync.DocumentResolver {
	return func(id valueobjects.CardID) (ports.SearchDocument, bool) {
		card, err := e.canvas.GetCard(id)
		if err != nil || !card.HasResponse() {
			return ports.SearchDocument{}, false
		}
		return e.searchDocumentLocked(card), true
	}
}

// ContextPreview assembles the context the provider would receive for
// a card, without generating.
func (e *CanvasEngine) ContextPreview(id valueobjects.CardID) (*domainservices.CardContext, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.contexts.Build(e.canvas, id)
}

// Stats computes summary statistics for the canvas.
func (e *CanvasEngine) Stats() (*domainservices.CanvasStats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.analytics.Stats(e.canvas)
}

// EngineGauges is a point-in-time observability sample of one engine.
type EngineGauges struct {
	CanvasID   string
	StaleCards int
	UndoDepth  int
	RedoDepth  int
}

// Gauges samples the engine's scrape-time gauges under one lock.
func (e *CanvasEngine) Gauges() EngineGauges {
	e.mu.Lock()
	defer e.mu.Unlock()
	return EngineGauges{
		CanvasID:   e.canvas.ID().String(),
		StaleCards: len(e.canvas.StaleCardIDs()),
		UndoDepth:  e.historyMgr.UndoCount(),
		RedoDepth:  e.historyMgr.RedoCount(),
	}
}

// Validate runs the full structural check over the canvas.
func (e *CanvasEngine) Validate() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.validation.ValidateCanvas(e.canvas)
}

// Close saves the canvas a final time and retires the engine. An
// active regeneration run is cancelled first and a pending history
// capture is settled so no debounce timer outlives the engine. On a
// save failure the engine stays open so the caller can retry. Once
// closed the engine never writes again.
func (e *CanvasEngine) Close(ctx context.Context) error {
	if _, err := e.scheduler.Cancel(); err != nil && !pkgerrors.IsConflict(err) {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.historyMgr.Commit(history.SnapshotCanvas(e.canvas))
	if err := e.persistLocked(ctx); err != nil {
		return err
	}
	e.retireLocked()
	return nil
}

// discard retires the engine without saving. Used when the canvas
// itself is being deleted and a final save would only resurrect it.
func (e *CanvasEngine) discard() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.retireLocked()
}

func (e *CanvasEngine) retireLocked() {
	e.closed = true
	if e.recheckTimer != nil {
		e.recheckTimer.Stop()
	}
}

// flushHistory is the manager's debounce callback. It re-enters
// through the engine lock and commits the current snapshot.
func (e *CanvasEngine) flushHistory() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.historyMgr.Commit(history.SnapshotCanvas(e.canvas))
}

// scheduleStaleRecheckLocked arms (or re-arms) the debounced pass that
// clears stale flags whose fingerprints match again.
func (e *CanvasEngine) scheduleStaleRecheckLocked() {
	if e.recheckTimer == nil {
		e.recheckTimer = e.clk.AfterFunc(e.cfg.StaleRecheckDebounce, e.runStaleRecheck)
		return
	}
	e.recheckTimer.Reset(e.cfg.StaleRecheckDebounce)
}

func (e *CanvasEngine) runStaleRecheck() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	cleared := e.staleness.TryClearStaleAll(e.canvas)
	if len(cleared) == 0 {
		return
	}
	e.logger.Debug("Stale recheck cleared cards", zap.Int("cards", len(cleared)))
	if err := e.persistLocked(context.Background()); err != nil {
		e.logger.Warn("Stale recheck not persisted", zap.Error(err))
	}
}

// persistLocked saves the aggregate and flushes its pending events.
// Publish failures are logged and swallowed; save failures propagate
// with the in-memory state kept as the source of truth. A retired
// engine refuses to write so a straggler holding one cannot clobber
// whatever replaced it.
func (e *CanvasEngine) persistLocked(ctx context.Context) error {
	if e.closed {
		return pkgerrors.NewConflict("canvas engine closed")
	}
	if err := e.repo.Save(ctx, e.canvas); err != nil {
		e.logger.Error("Canvas save failed",
			zap.String("canvasID", e.canvas.ID().String()),
			zap.Error(err))
		return pkgerrors.NewInternal("failed to save canvas", err)
	}

	pending := e.canvas.GetUncommittedEvents()
	if len(pending) > 0 {
		if err := e.publisher.PublishBatch(ctx, pending); err != nil {
			e.logger.Warn("Event batch publish failed",
				zap.Int("events", len(pending)),
				zap.Error(err))
		}
		e.canvas.MarkEventsAsCommitted()
	}
	return nil
}

func (e *CanvasEngine) publishLocked(ctx context.Context, event events.DomainEvent) {
	if err := e.publisher.Publish(ctx, event); err != nil {
		e.logger.Warn("Event publish failed",
			zap.String("eventType", event.GetEventType()),
			zap.Error(err))
	}
}

func (e *CanvasEngine) searchDocumentLocked(card *entities.Card) ports.SearchDocument {
	doc := e.documents.BuildDocument(card)
	return ports.SearchDocument{
		ID:      doc.ID,
		Title:   doc.Title,
		Text:    doc.Text,
		Preview: doc.Preview,
	}
}

func findSnapshotCard(target history.Snapshot, id valueobjects.CardID) *history.CardSnapshot {
	for i := range target.Cards {
		if target.Cards[i].ID.Equals(id) {
			return &target.Cards[i]
		}
	}
	return nil
}

func equalCardIDs(a, b []valueobjects.CardID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equals(b[i]) {
			return false
		}
	}
	return true
}
