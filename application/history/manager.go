package history

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"loom-backend/domain/config"
	"loom-backend/pkg/clock"
)

// Manager owns the undo and redo stacks for one canvas. The top of the
// undo stack is always the current committed state.
//
// Mutations do not commit directly: callers mark the canvas dirty with
// RecordSoon and the manager asks for a flush once edits go quiet, so a
// burst of changes coalesces into a single history entry. Callers pass
// the current canvas state into Commit, Undo, Redo and Clear; the
// manager never reads the canvas itself.
type Manager struct {
	mu       sync.Mutex
	clock    clock.Clock
	debounce time.Duration
	depth    int
	onFlush  func()
	logger   *zap.Logger

	undo  []Snapshot
	redo  []Snapshot
	timer clock.Timer
	dirty bool
}

// NewManager seeds the timeline with the canvas state as loaded. onFlush
// runs on the clock's timer goroutine when a debounced capture comes due;
// it should re-capture the canvas and call Commit.
func NewManager(
	initial Snapshot,
	cfg *config.DomainConfig,
	clk clock.Clock,
	onFlush func(),
	logger *zap.Logger,
) *Manager {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	if clk == nil {
		clk = clock.System()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	depth := cfg.MaxHistoryDepth
	if depth < 2 {
		depth = 2
	}

	return &Manager{
		clock:    clk,
		debounce: cfg.HistoryDebounce,
		depth:    depth,
		onFlush:  onFlush,
		logger:   logger,
		undo:     []Snapshot{initial.Clone()},
	}
}

// RecordSoon marks the canvas dirty and arms the debounce window. Calling
// it again before the window closes restarts the window.
func (m *Manager) RecordSoon() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.dirty = true
	if m.onFlush == nil {
		return
	}
	if m.timer == nil {
		m.timer = m.clock.AfterFunc(m.debounce, m.fireFlush)
		return
	}
	m.timer.Reset(m.debounce)
}

func (m *Manager) fireFlush() {
	m.mu.Lock()
	pending := m.dirty
	onFlush := m.onFlush
	m.mu.Unlock()

	if pending && onFlush != nil {
		onFlush()
	}
}

// Commit pushes the given state as a new history entry. Consecutive
// identical states collapse into one entry; a genuinely new entry
// invalidates the redo stack. The oldest entry drops silently once the
// stack is full. Returns whether a new entry was pushed.
func (m *Manager) Commit(current Snapshot) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commitLocked(current)
}

// Undo steps back one committed state. A capture still pending commits
// first, so the step starts from what is on the canvas right now. The
// returned snapshot is the state to restore, and the diff names cards
// that vanish or come back relative to the current state.
func (m *Manager) Undo(current Snapshot) (Snapshot, Diff, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dirty {
		m.commitLocked(current)
	}
	if len(m.undo) < 2 {
		return Snapshot{}, Diff{}, false
	}

	top := m.undo[len(m.undo)-1]
	m.undo = m.undo[:len(m.undo)-1]
	m.redo = append(m.redo, top)
	target := m.undo[len(m.undo)-1]

	m.logger.Debug("History undo",
		zap.Int("undoDepth", len(m.undo)-1),
		zap.Int("redoDepth", len(m.redo)),
	)
	return target.Clone(), diffSnapshots(top, target), true
}

// Redo re-applies the most recently undone state. Any edit committed
// after an undo has already emptied the redo stack, including a capture
// that is still pending when Redo is called.
func (m *Manager) Redo(current Snapshot) (Snapshot, Diff, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.dirty {
		m.commitLocked(current)
	}
	if len(m.redo) == 0 {
		return Snapshot{}, Diff{}, false
	}

	from := m.undo[len(m.undo)-1]
	target := m.redo[len(m.redo)-1]
	m.redo = m.redo[:len(m.redo)-1]
	m.undo = append(m.undo, target)

	m.logger.Debug("History redo",
		zap.Int("undoDepth", len(m.undo)-1),
		zap.Int("redoDepth", len(m.redo)),
	)
	return target.Clone(), diffSnapshots(from, target), true
}

// Clear drops both stacks and re-seeds the timeline with the given state.
func (m *Manager) Clear(current Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.dirty = false
	m.stopTimerLocked()
	m.undo = []Snapshot{current.Clone()}
	m.redo = nil
}

// CanUndo reports whether a committed state older than the current one
// exists. A still-pending capture is not counted.
func (m *Manager) CanUndo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.undo) > 1
}

// CanRedo reports whether an undone state is available to re-apply.
func (m *Manager) CanRedo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.redo) > 0
}

// UndoCount returns the number of steps available to Undo.
func (m *Manager) UndoCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.undo) - 1
}

// RedoCount returns the number of steps available to Redo.
func (m *Manager) RedoCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.redo)
}

// Dirty reports whether a capture request is still waiting to commit.
func (m *Manager) Dirty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dirty
}

func (m *Manager) commitLocked(current Snapshot) bool {
	m.dirty = false
	m.stopTimerLocked()

	if m.undo[len(m.undo)-1].Equal(current) {
		return false
	}

	m.undo = append(m.undo, current.Clone())
	m.redo = nil
	if len(m.undo) > m.depth {
		m.undo = append(m.undo[:0], m.undo[1:]...)
	}

	m.logger.Debug("History entry committed",
		zap.Int("undoDepth", len(m.undo)-1),
		zap.Int("cards", len(current.Cards)),
	)
	return true
}

func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
	}
}
