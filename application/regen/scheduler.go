// Package regen schedules batch regeneration of stale cards.
//
// A run levels the stale set so that a card is regenerated only after all
// of its stale ancestors have been regenerated. Cards within a level share
// no stale dependencies and are dispatched concurrently.
package regen

import (
	"context"
	"sort"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"loom-backend/domain/core/aggregates"
	"loom-backend/domain/core/valueobjects"
	pkgerrors "loom-backend/pkg/errors"
)

// State identifies where the scheduler is in its run lifecycle.
type State string

const (
	StateIdle            State = "idle"
	StateRunning         State = "running"
	StateLevelInProgress State = "level_in_progress"
	StateCancelled       State = "cancelled"
)

// DispatchFunc regenerates a single card. The scheduler invokes it on its
// own goroutine for every card of the active level; implementations must
// call OnCardComplete exactly once per invocation, whether generation
// succeeded, failed, or was cut short by the run context.
type DispatchFunc func(ctx context.Context, cardID valueobjects.CardID, level int)

// Progress is a point-in-time snapshot of the current or most recent run.
type Progress struct {
	State        State                 `json:"state"`
	Completed    int                   `json:"completed"`
	Failed       int                   `json:"failed"`
	Total        int                   `json:"total"`
	CurrentLevel int                   `json:"currentLevel"`
	LevelCount   int                   `json:"levelCount"`
	RemainingIDs []valueobjects.CardID `json:"remainingIds"`
}

// Summary describes a finished run.
type Summary struct {
	Completed int
	Failed    int
	Total     int
	Cancelled bool
}

// Scheduler drives one regeneration run at a time over a single canvas.
//
// Start, OnCardComplete and Cancel must be serialized with the same lock
// that guards canvas mutations; the scheduler's own mutex additionally
// protects Progress polling from other goroutines.
type Scheduler struct {
	mu       sync.Mutex
	canvas   *aggregates.Canvas
	dispatch DispatchFunc
	onFinish func(Summary)
	logger   *zap.Logger
	tracer   trace.Tracer

	state     State
	levels    [][]valueobjects.CardID
	levelIdx  int
	pending   map[valueobjects.CardID]bool
	inflight  int
	completed int
	failed    int
	total     int
	runCtx    context.Context
	runCancel context.CancelFunc
	runSpan   trace.Span
	levelSpan trace.Span
}

// NewScheduler creates a scheduler bound to one canvas. onFinish, when
// non-nil, is invoked on its own goroutine once per run, at normal
// completion or at cancellation.
func NewScheduler(
	canvas *aggregates.Canvas,
	dispatch DispatchFunc,
	onFinish func(Summary),
	logger *zap.Logger,
) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		canvas:   canvas,
		dispatch: dispatch,
		onFinish: onFinish,
		logger:   logger,
		tracer:   otel.Tracer("loom-backend.application.regen"),
		state:    StateIdle,
		levelIdx: -1,
	}
}

// Start levels the current stale set, flags every scheduled card as
// pending, and dispatches the first level.
//
// An empty stale set leaves the scheduler idle with a zero-total snapshot.
// A dependency cycle among stale cards aborts the run before any card is
// flagged or dispatched. Starting while a run is active, or while a
// cancelled run still has dispatched cards outstanding, is a conflict.
func (s *Scheduler) Start(ctx context.Context) (Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateRunning, StateLevelInProgress:
		return s.progressLocked(), pkgerrors.NewConflict("regeneration already running")
	case StateCancelled:
		if s.inflight > 0 {
			return s.progressLocked(), pkgerrors.NewConflict("cancelled regeneration still draining")
		}
	}

	staleIDs := s.canvas.StaleCardIDs()
	if len(staleIDs) == 0 {
		s.resetLocked()
		return s.progressLocked(), nil
	}

	levels, err := levelStaleSet(s.canvas, staleIDs)
	if err != nil {
		s.resetLocked()
		return s.progressLocked(), err
	}

	s.levels = levels
	s.levelIdx = 0
	s.completed = 0
	s.failed = 0
	s.total = len(staleIDs)
	s.state = StateRunning
	s.runCtx, s.runCancel = context.WithCancel(ctx)
	s.runCtx, s.runSpan = s.tracer.Start(s.runCtx, "regen.Run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("canvas.id", s.canvas.ID().String()),
			attribute.Int("cards", s.total),
			attribute.Int("levels", len(levels)),
		))

	for _, level := range levels {
		for _, id := range level {
			if card, err := s.canvas.GetCard(id); err == nil {
				card.SetPendingRegenerate(true)
			}
		}
	}

	s.logger.Info("Regeneration run started",
		zap.String("canvasID", s.canvas.ID().String()),
		zap.Int("cards", s.total),
		zap.Int("levels", len(levels)),
	)

	s.dispatchLevelLocked()
	return s.progressLocked(), nil
}

// OnCardComplete records the outcome of one dispatched card. Failed cards
// count toward progress but stay stale; the level still advances once
// every card of the level has reported. Completions arriving after a
// cancel only drain the inflight count.
func (s *Scheduler) OnCardComplete(cardID valueobjects.CardID, genErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateCancelled {
		if s.pending[cardID] {
			delete(s.pending, cardID)
			s.inflight--
			if card, err := s.canvas.GetCard(cardID); err == nil {
				card.SetPendingRegenerate(false)
			}
		}
		return
	}

	if s.state != StateLevelInProgress || !s.pending[cardID] {
		s.logger.Warn("Ignoring stray regeneration completion",
			zap.String("cardID", cardID.String()),
			zap.String("state", string(s.state)),
		)
		return
	}

	delete(s.pending, cardID)
	s.inflight--
	if card, err := s.canvas.GetCard(cardID); err == nil {
		card.SetPendingRegenerate(false)
	}

	if genErr != nil {
		s.failed++
		s.logger.Warn("Card regeneration failed",
			zap.String("canvasID", s.canvas.ID().String()),
			zap.String("cardID", cardID.String()),
			zap.Int("level", s.levelIdx),
			zap.Error(genErr),
		)
	} else {
		s.completed++
	}

	if len(s.pending) > 0 {
		return
	}
	if s.levelSpan != nil {
		s.levelSpan.End()
		s.levelSpan = nil
	}
	if s.levelIdx+1 < len(s.levels) {
		s.levelIdx++
		s.dispatchLevelLocked()
		return
	}
	s.finishLocked(false)
}

// Cancel aborts the active run. Cards in levels that have not started are
// unflagged immediately and will not run; dispatched cards finish on
// their own, and their completions no longer advance the run.
func (s *Scheduler) Cancel() (Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRunning && s.state != StateLevelInProgress {
		return s.progressLocked(), pkgerrors.NewConflict("no active regeneration run")
	}

	for _, level := range s.levels[s.levelIdx+1:] {
		for _, id := range level {
			if card, err := s.canvas.GetCard(id); err == nil {
				card.SetPendingRegenerate(false)
			}
		}
	}

	s.logger.Info("Regeneration run cancelled",
		zap.String("canvasID", s.canvas.ID().String()),
		zap.Int("completed", s.completed),
		zap.Int("failed", s.failed),
		zap.Int("inflight", s.inflight),
	)

	s.finishLocked(true)
	return s.progressLocked(), nil
}

// Progress reports a snapshot of the current or most recent run.
func (s *Scheduler) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progressLocked()
}

func (s *Scheduler) dispatchLevelLocked() {
	level := s.levels[s.levelIdx]
	s.pending = make(map[valueobjects.CardID]bool, len(level))
	for _, id := range level {
		s.pending[id] = true
	}
	s.inflight += len(level)
	s.state = StateLevelInProgress

	levelCtx, levelSpan := s.tracer.Start(s.runCtx, "regen.Level",
		trace.WithAttributes(
			attribute.Int("level", s.levelIdx),
			attribute.Int("cards", len(level)),
		))
	s.levelSpan = levelSpan

	s.logger.Debug("Dispatching regeneration level",
		zap.String("canvasID", s.canvas.ID().String()),
		zap.Int("level", s.levelIdx),
		zap.Int("cards", len(level)),
	)

	for _, id := range level {
		go s.dispatch(levelCtx, id, s.levelIdx)
	}
}

func (s *Scheduler) finishLocked(cancelled bool) {
	if s.runCancel != nil {
		s.runCancel()
	}
	if s.levelSpan != nil {
		s.levelSpan.End()
		s.levelSpan = nil
	}

	summary := Summary{
		Completed: s.completed,
		Failed:    s.failed,
		Total:     s.total,
		Cancelled: cancelled,
	}
	if cancelled {
		// pending stays populated as the drain set for inflight cards.
		s.state = StateCancelled
	} else {
		s.state = StateIdle
		s.pending = nil
	}

	if s.runSpan != nil {
		s.runSpan.SetAttributes(
			attribute.Int("completed", summary.Completed),
			attribute.Int("failed", summary.Failed),
			attribute.Bool("cancelled", cancelled),
		)
		s.runSpan.End()
		s.runSpan = nil
	}

	s.logger.Info("Regeneration run finished",
		zap.String("canvasID", s.canvas.ID().String()),
		zap.Int("completed", summary.Completed),
		zap.Int("failed", summary.Failed),
		zap.Int("total", summary.Total),
		zap.Bool("cancelled", cancelled),
	)

	if s.onFinish != nil {
		go s.onFinish(summary)
	}
}

func (s *Scheduler) resetLocked() {
	s.state = StateIdle
	s.levels = nil
	s.levelIdx = -1
	s.pending = nil
	s.completed = 0
	s.failed = 0
	s.total = 0
}

func (s *Scheduler) progressLocked() Progress {
	var remaining []valueobjects.CardID
	if s.state == StateLevelInProgress {
		remaining = make([]valueobjects.CardID, 0, len(s.pending))
		for id := range s.pending {
			remaining = append(remaining, id)
		}
		for _, level := range s.levels[s.levelIdx+1:] {
			remaining = append(remaining, level...)
		}
		sort.Slice(remaining, func(i, j int) bool {
			return remaining[i].String() < remaining[j].String()
		})
	}

	return Progress{
		State:        s.state,
		Completed:    s.completed,
		Failed:       s.failed,
		Total:        s.total,
		CurrentLevel: s.levelIdx,
		LevelCount:   len(s.levels),
		RemainingIDs: remaining,
	}
}

// levelStaleSet partitions the stale cards into dependency levels: level
// zero holds cards with no stale ancestors, and every later level holds
// cards whose stale ancestors all sit in earlier levels. A round that
// assigns nothing while cards remain means the stale set contains a
// cycle.
func levelStaleSet(
	canvas *aggregates.Canvas,
	staleIDs []valueobjects.CardID,
) ([][]valueobjects.CardID, error) {
	stale := make(map[valueobjects.CardID]bool, len(staleIDs))
	for _, id := range staleIDs {
		stale[id] = true
	}

	deps := make(map[valueobjects.CardID]map[valueobjects.CardID]bool, len(staleIDs))
	for _, id := range staleIDs {
		deps[id] = staleAncestors(canvas, id, stale)
	}

	assigned := make(map[valueobjects.CardID]bool, len(staleIDs))
	remaining := append([]valueobjects.CardID(nil), staleIDs...)

	var levels [][]valueobjects.CardID
	for len(remaining) > 0 {
		var level, rest []valueobjects.CardID
		for _, id := range remaining {
			ready := true
			for dep := range deps[id] {
				if !assigned[dep] {
					ready = false
					break
				}
			}
			if ready {
				level = append(level, id)
			} else {
				rest = append(rest, id)
			}
		}
		if len(level) == 0 {
			return nil, pkgerrors.NewStructural("dependency cycle among stale cards")
		}
		for _, id := range level {
			assigned[id] = true
		}
		levels = append(levels, level)
		remaining = rest
	}

	return levels, nil
}

// staleAncestors collects the stale cards reachable from id through
// parent links. The walk passes through fresh ancestors: a stale
// grandparent behind a fresh parent still orders the card.
func staleAncestors(
	canvas *aggregates.Canvas,
	id valueobjects.CardID,
	stale map[valueobjects.CardID]bool,
) map[valueobjects.CardID]bool {
	result := make(map[valueobjects.CardID]bool)
	visited := map[valueobjects.CardID]bool{id: true}
	queue := []valueobjects.CardID{id}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		card, err := canvas.GetCard(current)
		if err != nil {
			continue
		}
		for _, parentID := range card.ParentIDs() {
			if visited[parentID] {
				continue
			}
			visited[parentID] = true
			if stale[parentID] {
				result[parentID] = true
			}
			queue = append(queue, parentID)
		}
	}

	return result
}
