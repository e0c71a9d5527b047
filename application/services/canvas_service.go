package services

import (
	"context"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"loom-backend/application/indexsync"
	"loom-backend/application/ports"
	"loom-backend/domain/config"
	"loom-backend/domain/core/aggregates"
	"loom-backend/domain/core/valueobjects"
	"loom-backend/domain/events"
	"loom-backend/pkg/clock"
	pkgerrors "loom-backend/pkg/errors"
)

// CanvasService owns the engines. It creates canvases, loads them on
// demand, and keeps one engine per canvas alive so all writes to a
// canvas funnel through the same lock.
type CanvasService struct {
	mu      sync.Mutex
	engines map[valueobjects.CanvasID]*CanvasEngine

	repo      ports.CanvasRepository
	publisher ports.EventPublisher
	generator ports.GenerationProvider
	search    ports.SearchIndex
	indexer   *indexsync.Synchronizer

	cfg    *config.DomainConfig
	clk    clock.Clock
	logger *zap.Logger
	tracer trace.Tracer
}

// NewCanvasService creates the registry. The indexer is shared by all
// engines the service hands out.
func NewCanvasService(
	repo ports.CanvasRepository,
	publisher ports.EventPublisher,
	generator ports.GenerationProvider,
	search ports.SearchIndex,
	indexer *indexsync.Synchronizer,
	cfg *config.DomainConfig,
	clk clock.Clock,
	logger *zap.Logger,
) *CanvasService {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	if clk == nil {
		clk = clock.System()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CanvasService{
		engines:   make(map[valueobjects.CanvasID]*CanvasEngine),
		repo:      repo,
		publisher: publisher,
		generator: generator,
		search:    search,
		indexer:   indexer,
		cfg:       cfg,
		clk:       clk,
		logger:    logger,
		tracer:    otel.Tracer("loom-backend.application.canvas_service"),
	}
}

// CreateCanvas creates and persists an empty canvas and returns its
// live engine.
func (s *CanvasService) CreateCanvas(ctx context.Context, name string) (*CanvasEngine, error) {
	ctx, span := s.tracer.Start(ctx, "CanvasService.CreateCanvas",
		trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	s.mu.Lock()
	err := s.capacityLocked()
	s.mu.Unlock()
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	canvas, err := aggregates.NewCanvas(valueobjects.NewCanvasID(), strings.TrimSpace(name))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.String("canvas.id", canvas.ID().String()))

	if err := s.repo.Save(ctx, canvas); err != nil {
		span.RecordError(err)
		return nil, pkgerrors.NewInternal("failed to save canvas", err)
	}
	if pending := canvas.GetUncommittedEvents(); len(pending) > 0 {
		if err := s.publisher.PublishBatch(ctx, pending); err != nil {
			s.logger.Warn("Event batch publish failed", zap.Error(err))
		}
		canvas.MarkEventsAsCommitted()
	}

	engine := s.buildEngine(canvas)

	s.mu.Lock()
	s.engines[canvas.ID()] = engine
	s.mu.Unlock()

	s.logger.Info("Canvas created",
		zap.String("canvasID", canvas.ID().String()),
		zap.String("name", canvas.Name()))
	return engine, nil
}

// Engine returns the live engine for a canvas, loading it from the
// repository on first access.
func (s *CanvasService) Engine(ctx context.Context, id valueobjects.CanvasID) (*CanvasEngine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if engine, ok := s.engines[id]; ok {
		return engine, nil
	}
	if err := s.capacityLocked(); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "CanvasService.LoadCanvas",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("canvas.id", id.String())))
	defer span.End()

	canvas, err := s.repo.GetByID(ctx, id)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	engine := s.buildEngine(canvas)
	s.engines[id] = engine
	s.logger.Debug("Canvas engine loaded", zap.String("canvasID", id.String()))
	return engine, nil
}

// List returns summaries of all stored canvases.
func (s *CanvasService) List(ctx context.Context) ([]ports.CanvasSummary, error) {
	return s.repo.List(ctx)
}

// CloseCanvas saves a canvas and evicts its engine, freeing a slot in
// the registry. The stored canvas is untouched and reloads on the next
// access. Closing a canvas that is not open is a no-op. On a save
// failure the engine stays registered so nothing unsaved is dropped.
func (s *CanvasService) CloseCanvas(ctx context.Context, id valueobjects.CanvasID) error {
	ctx, span := s.tracer.Start(ctx, "CanvasService.CloseCanvas",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("canvas.id", id.String())))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	engine, ok := s.engines[id]
	if !ok {
		return nil
	}
	if err := engine.Close(ctx); err != nil {
		span.RecordError(err)
		return err
	}
	delete(s.engines, id)
	s.logger.Info("Canvas closed", zap.String("canvasID", id.String()))
	return nil
}

// DeleteCanvas removes a canvas, evicting its engine, cancelling any
// active regeneration, and retiring its cards from the search index.
func (s *CanvasService) DeleteCanvas(ctx context.Context, id valueobjects.CanvasID) error {
	ctx, span := s.tracer.Start(ctx, "CanvasService.DeleteCanvas",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("canvas.id", id.String())))
	defer span.End()

	s.mu.Lock()
	engine := s.engines[id]
	delete(s.engines, id)
	s.mu.Unlock()

	var cardIDs []valueobjects.CardID
	if engine != nil {
		if _, err := engine.CancelRegeneration(ctx); err != nil && !pkgerrors.IsConflict(err) {
			s.logger.Warn("Regeneration cancel during delete failed", zap.Error(err))
		}
		for _, card := range engine.View().Cards {
			cardIDs = append(cardIDs, card.ID())
		}
		engine.discard()
	} else if canvas, err := s.repo.GetByID(ctx, id); err == nil {
		cardIDs = canvas.CardIDs()
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		span.RecordError(err)
		return pkgerrors.NewInternal("failed to delete canvas", err)
	}
	span.SetAttributes(attribute.Int("cards.removed", len(cardIDs)))

	for _, cardID := range cardIDs {
		s.indexer.EnqueueRemove(cardID.String())
	}

	event := events.NewCanvasDeleted(id, len(cardIDs), s.clk.Now())
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("Event publish failed",
			zap.String("eventType", event.GetEventType()),
			zap.Error(err))
	}

	s.logger.Info("Canvas deleted",
		zap.String("canvasID", id.String()),
		zap.Int("cards", len(cardIDs)))
	return nil
}

// Gauges samples every open engine for the metrics scrape.
func (s *CanvasService) Gauges() []EngineGauges {
	s.mu.Lock()
	engines := make([]*CanvasEngine, 0, len(s.engines))
	for _, engine := range s.engines {
		engines = append(engines, engine)
	}
	s.mu.Unlock()

	samples := make([]EngineGauges, 0, len(engines))
	for _, engine := range engines {
		samples = append(samples, engine.Gauges())
	}
	return samples
}

// SearchCards runs a text query against the card index. The index
// spans all canvases; hits carry card ids.
func (s *CanvasService) SearchCards(ctx context.Context, query string, limit int) ([]ports.SearchHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, pkgerrors.NewValidation("search query cannot be empty")
	}
	if limit <= 0 {
		limit = 20
	}

	ctx, span := s.tracer.Start(ctx, "CanvasService.SearchCards",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.Int("limit", limit)))
	defer span.End()

	hits, err := s.search.Search(ctx, query, limit)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("hits", len(hits)))
	return hits, nil
}

func (s *CanvasService) buildEngine(canvas *aggregates.Canvas) *CanvasEngine {
	return NewCanvasEngine(canvas, s.repo, s.publisher, s.generator, s.indexer, s.cfg, s.clk, s.logger)
}

// capacityLocked rejects opening another engine once the registry is
// full. There is no automatic eviction; a slot frees up only when a
// canvas is closed or deleted.
func (s *CanvasService) capacityLocked() error {
	if len(s.engines) >= s.cfg.MaxOpenCanvases {
		return pkgerrors.NewConflict("too many open canvases: close one before opening another")
	}
	return nil
}
