// Package indexsync mirrors card lifecycle changes into the search
// index without ever blocking or failing a canvas mutation.
//
// Commands flow through a bounded queue into a single background worker,
// so the index sees removals and re-adds in the order the canvas
// produced them. Index failures are logged and dropped; the canvas is
// the source of truth and the index may lag it.
package indexsync

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"loom-backend/application/history"
	"loom-backend/application/ports"
	"loom-backend/domain/core/valueobjects"
)

const defaultQueueSize = 256

type commandKind string

const (
	commandAdd    commandKind = "add"
	commandRemove commandKind = "remove"
)

type command struct {
	kind commandKind
	doc  ports.SearchDocument
	id   string
}

// DocumentResolver returns the searchable document for a card id, or
// false when the card has nothing indexable yet.
type DocumentResolver func(id valueobjects.CardID) (ports.SearchDocument, bool)

// Observer is told the outcome of every index command: the operation
// ("add" or "remove") and its status ("ok", "error", or "dropped").
type Observer func(operation, status string)

// Synchronizer applies index commands on a background worker.
type Synchronizer struct {
	index      ports.SearchIndex
	embeddings ports.EmbeddingStore
	logger     *zap.Logger

	mu       sync.RWMutex
	queue    chan command
	closed   bool
	observer Observer
	wg       sync.WaitGroup
	dropped  atomic.Uint64
}

// NewSynchronizer creates a synchronizer with a bounded command queue.
// Call Start before enqueueing work.
func NewSynchronizer(
	index ports.SearchIndex,
	embeddings ports.EmbeddingStore,
	queueSize int,
	logger *zap.Logger,
) *Synchronizer {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synchronizer{
		index:      index,
		embeddings: embeddings,
		logger:     logger,
		queue:      make(chan command, queueSize),
	}
}

// Start launches the worker goroutine. The worker exits when the context
// is cancelled or Stop is called.
func (s *Synchronizer) Start(ctx context.Context) {
	s.wg.Add(1)
	go s.worker(ctx)
}

// Stop closes the intake and waits for the worker to drain the queue.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// EnqueueAdd schedules a document upsert.
func (s *Synchronizer) EnqueueAdd(doc ports.SearchDocument) {
	s.enqueue(command{kind: commandAdd, doc: doc, id: doc.ID})
}

// EnqueueRemove schedules removal of a card's document and embedding.
func (s *Synchronizer) EnqueueRemove(id string) {
	s.enqueue(command{kind: commandRemove, id: id})
}

// SyncRestore translates an undo or redo diff into index commands.
// Vanished cards are retired; resurrected cards are re-added when the
// resolver can produce a document for them. The resolver runs
// synchronously so documents reflect the canvas as just restored.
func (s *Synchronizer) SyncRestore(diff history.Diff, resolve DocumentResolver) {
	for _, id := range diff.VanishedIDs {
		s.EnqueueRemove(id.String())
	}
	for _, id := range diff.ResurrectedIDs {
		if resolve == nil {
			continue
		}
		if doc, ok := resolve(id); ok {
			s.EnqueueAdd(doc)
		}
	}
}

// Dropped reports how many commands were discarded because the queue was
// full or the synchronizer was stopped.
func (s *Synchronizer) Dropped() uint64 {
	return s.dropped.Load()
}

// SetObserver installs a hook that sees every command outcome. Install
// it before Start.
func (s *Synchronizer) SetObserver(observer Observer) {
	s.mu.Lock()
	s.observer = observer
	s.mu.Unlock()
}

func (s *Synchronizer) observe(operation, status string) {
	s.mu.RLock()
	observer := s.observer
	s.mu.RUnlock()
	if observer != nil {
		observer(operation, status)
	}
}

func (s *Synchronizer) enqueue(cmd command) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		s.dropped.Add(1)
		if s.observer != nil {
			s.observer(string(cmd.kind), "dropped")
		}
		s.logger.Warn("Index synchronizer stopped, dropping command",
			zap.String("kind", string(cmd.kind)),
			zap.String("cardID", cmd.id),
		)
		return
	}

	select {
	case s.queue <- cmd:
	default:
		s.dropped.Add(1)
		if s.observer != nil {
			s.observer(string(cmd.kind), "dropped")
		}
		s.logger.Warn("Index queue full, dropping command",
			zap.String("kind", string(cmd.kind)),
			zap.String("cardID", cmd.id),
		)
	}
}

func (s *Synchronizer) worker(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-s.queue:
			if !ok {
				return
			}
			s.apply(ctx, cmd)
		}
	}
}

func (s *Synchronizer) apply(ctx context.Context, cmd command) {
	switch cmd.kind {
	case commandAdd:
		if err := s.index.AddDocument(ctx, cmd.doc); err != nil {
			s.observe("add", "error")
			s.logger.Warn("Search index add failed",
				zap.String("cardID", cmd.id),
				zap.Error(err),
			)
			return
		}
		s.observe("add", "ok")
	case commandRemove:
		status := "ok"
		if _, err := s.index.RemoveDocument(ctx, cmd.id); err != nil {
			status = "error"
			s.logger.Warn("Search index removal failed",
				zap.String("cardID", cmd.id),
				zap.Error(err),
			)
		}
		if s.embeddings != nil {
			if err := s.embeddings.DeleteEmbedding(ctx, cmd.id); err != nil {
				status = "error"
				s.logger.Warn("Embedding removal failed",
					zap.String("cardID", cmd.id),
					zap.Error(err),
				)
			}
		}
		s.observe("remove", status)
	}
}
