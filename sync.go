package procsched

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/goroutineid"
)

// Synchronized guards a Scheduler with a single mutex, for hosts that call
// it from multiple goroutines, e.g. a driver goroutine calling Tick, while
// other goroutines spawn or kill processes.
//
// The goroutine holding the lock may re-enter, e.g. a process may call the
// Synchronized it was reached from, within Poll.
type Synchronized struct {
	s  *Scheduler
	mu sync.Mutex
	// owner is the id of the goroutine holding mu, or 0
	owner atomic.Int64
}

// NewSynchronized wraps s, which must not be used directly, except from
// within Poll.
func NewSynchronized(s *Scheduler) *Synchronized {
	if s == nil {
		panic(`procsched: nil scheduler`)
	}
	return &Synchronized{s: s}
}

// Do calls fn with the lock held, for compound operations.
func (x *Synchronized) Do(fn func(s *Scheduler)) {
	defer x.unlock(x.lock())
	fn(x.s)
}

// Tick wraps Scheduler.Tick.
func (x *Synchronized) Tick(seg Segment, now, delta time.Duration) {
	defer x.unlock(x.lock())
	x.s.Tick(seg, now, delta)
}

// Spawn wraps Scheduler.Spawn.
func (x *Synchronized) Spawn(p Process) Handle {
	defer x.unlock(x.lock())
	return x.s.Spawn(p)
}

// SpawnIn wraps Scheduler.SpawnIn.
func (x *Synchronized) SpawnIn(seg Segment, p Process) Handle {
	defer x.unlock(x.lock())
	return x.s.SpawnIn(seg, p)
}

// Pause wraps Scheduler.Pause.
func (x *Synchronized) Pause(h Handle) {
	defer x.unlock(x.lock())
	x.s.Pause(h)
}

// Resume wraps Scheduler.Resume.
func (x *Synchronized) Resume(h Handle) {
	defer x.unlock(x.lock())
	x.s.Resume(h)
}

// Kill wraps Scheduler.Kill.
func (x *Synchronized) Kill(h Handle) bool {
	defer x.unlock(x.lock())
	return x.s.Kill(h)
}

// KillAll wraps Scheduler.KillAll.
func (x *Synchronized) KillAll(segments ...Segment) int {
	defer x.unlock(x.lock())
	return x.s.KillAll(segments...)
}

// IsActive wraps Scheduler.IsActive.
func (x *Synchronized) IsActive(h Handle) bool {
	defer x.unlock(x.lock())
	return x.s.IsActive(h)
}

// IsPaused wraps Scheduler.IsPaused.
func (x *Synchronized) IsPaused(h Handle) bool {
	defer x.unlock(x.lock())
	return x.s.IsPaused(h)
}

// Count wraps Scheduler.Count.
func (x *Synchronized) Count(seg Segment) int {
	defer x.unlock(x.lock())
	return x.s.Count(seg)
}

// CurrentTime wraps Scheduler.CurrentTime.
func (x *Synchronized) CurrentTime(seg Segment) time.Duration {
	defer x.unlock(x.lock())
	return x.s.CurrentTime(seg)
}

// CurrentDelta wraps Scheduler.CurrentDelta.
func (x *Synchronized) CurrentDelta(seg Segment) time.Duration {
	defer x.unlock(x.lock())
	return x.s.CurrentDelta(seg)
}

// SetReplacementFunc wraps Scheduler.SetReplacementFunc.
func (x *Synchronized) SetReplacementFunc(fn ReplacementFunc) {
	defer x.unlock(x.lock())
	x.s.SetReplacementFunc(fn)
}

// lock acquires mu, unless it is already held by the calling goroutine,
// returning true if it was acquired.
func (x *Synchronized) lock() bool {
	id := goroutineid.Get()
	if x.owner.Load() == id {
		return false
	}
	x.mu.Lock()
	x.owner.Store(id)
	return true
}

func (x *Synchronized) unlock(locked bool) {
	if locked {
		x.owner.Store(0)
		x.mu.Unlock()
	}
}
