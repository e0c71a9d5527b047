package clock

import (
	"sync"
	"time"
)

// Clock abstracts wall time and timer scheduling so debounced
// behavior can be driven deterministically in tests.
type Clock interface {
	// Now returns the current time
	Now() time.Time

	// AfterFunc schedules f to run after d and returns a handle that
	// can stop or reschedule it
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a scheduled callback handle
type Timer interface {
	// Stop cancels the timer, reporting whether it was still pending
	Stop() bool

	// Reset reschedules the timer for a new duration
	Reset(d time.Duration) bool
}

// System returns the real wall clock
func System() Clock {
	return systemClock{}
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return systemTimer{timer: time.AfterFunc(d, f)}
}

type systemTimer struct {
	timer *time.Timer
}

func (t systemTimer) Stop() bool                 { return t.timer.Stop() }
func (t systemTimer) Reset(d time.Duration) bool { return t.timer.Reset(d) }

// Fake is a manually advanced clock for tests. Timers fire
// synchronously inside Advance once their deadline is reached.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

// NewFake creates a fake clock starting at a fixed reference time
func NewFake() *Fake {
	return &Fake{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// Now returns the fake's current time
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// AfterFunc schedules f at now+d on the fake timeline
func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()

	timer := &fakeTimer{
		clock:    f,
		deadline: f.now.Add(d),
		fn:       fn,
		pending:  true,
	}
	f.timers = append(f.timers, timer)
	return timer
}

// Advance moves the fake time forward, firing due timers in deadline
// order. Callbacks run synchronously on the caller's goroutine.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)

	for {
		timer := f.nextDueLocked(target)
		if timer == nil {
			break
		}
		f.now = timer.deadline
		timer.pending = false
		fn := timer.fn
		f.mu.Unlock()
		fn()
		f.mu.Lock()
	}

	f.now = target
	f.mu.Unlock()
}

func (f *Fake) nextDueLocked(target time.Time) *fakeTimer {
	var due *fakeTimer
	for _, timer := range f.timers {
		if !timer.pending || timer.deadline.After(target) {
			continue
		}
		if due == nil || timer.deadline.Before(due.deadline) {
			due = timer
		}
	}
	return due
}

type fakeTimer struct {
	clock    *Fake
	deadline time.Time
	fn       func()
	pending  bool
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	wasPending := t.pending
	t.pending = false
	return wasPending
}

func (t *fakeTimer) Reset(d time.Duration) bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	wasPending := t.pending
	t.deadline = t.clock.now.Add(d)
	t.pending = true
	return wasPending
}
