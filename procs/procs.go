// Package procs implements general purpose processes, and process
// combinators, for use with procsched.Scheduler.
//
// Everything here is built on the public Process protocol, and holds no
// reference to the scheduler, beyond the procsched.Wake provided to each
// poll. Each constructor returns a new, stateful process, which must be
// spawned at most once.
package procs

import (
	"time"

	"github.com/joeycumines/go-procsched"
)

type (
	steps struct {
		steps []procsched.ProcessFunc
		next  int
	}

	then struct {
		current procsched.Process
		rest    []procsched.Process
	}

	waitFor struct {
		d       time.Duration
		started bool
	}

	every struct {
		fn       func(w procsched.Wake) (bool, error)
		interval time.Duration
	}
)

var (
	// compile time assertions

	_ procsched.Process         = (*steps)(nil)
	_ procsched.Process         = (*then)(nil)
	_ procsched.Process         = (*waitFor)(nil)
	_ procsched.Process         = (*every)(nil)
	_ procsched.ReplacementFunc = ReplaceWithNoop
)

// Steps runs each function exactly once, in order, one per poll. The
// instruction returned by each function determines when the next runs,
// e.g. Delay(time.Second) waits one second before the next step. A Done
// instruction ends the sequence early, and the sequence always ends after
// the final step, regardless of its instruction.
//
// Replace is passed through, replacing the sequence as a whole.
func Steps(fns ...procsched.ProcessFunc) procsched.Process {
	return &steps{steps: fns}
}

func (x *steps) Poll(w procsched.Wake) (procsched.Instruction, error) {
	if x.next >= len(x.steps) {
		return procsched.Done(), nil
	}
	fn := x.steps[x.next]
	x.next++
	instruction, err := fn(w)
	if err != nil {
		return instruction, err
	}
	if x.next >= len(x.steps) && !instruction.IsReplace() {
		return procsched.Done(), nil
	}
	return instruction, nil
}

// Then runs each process to completion, in order. When one completes, the
// next is polled immediately, within the same poll. Nil processes are
// skipped.
func Then(processes ...procsched.Process) procsched.Process {
	return &then{rest: processes}
}

func (x *then) Poll(w procsched.Wake) (procsched.Instruction, error) {
	for {
		if x.current == nil {
			if !x.advance() {
				return procsched.Done(), nil
			}
		}
		instruction, err := x.current.Poll(w)
		if err != nil || !instruction.IsDone() {
			return instruction, err
		}
		x.current = nil
	}
}

func (x *then) advance() bool {
	for len(x.rest) != 0 {
		p := x.rest[0]
		x.rest[0] = nil
		x.rest = x.rest[1:]
		if p != nil {
			x.current = p
			return true
		}
	}
	return false
}

// WaitUntil completes on the first poll where cond returns true, including
// the first poll. It is evaluated once per tick.
func WaitUntil(cond func(w procsched.Wake) bool) procsched.ProcessFunc {
	return func(w procsched.Wake) (procsched.Instruction, error) {
		if cond(w) {
			return procsched.Done(), nil
		}
		return procsched.NextTick(), nil
	}
}

// WaitFor completes once the segment clock has advanced by at least d,
// relative to its first poll. A non-positive d completes on the first poll.
func WaitFor(d time.Duration) procsched.Process {
	return &waitFor{d: d}
}

func (x *waitFor) Poll(procsched.Wake) (procsched.Instruction, error) {
	if x.started || x.d <= 0 {
		return procsched.Done(), nil
	}
	x.started = true
	return procsched.Delay(x.d), nil
}

// WaitAll completes once none of the handles identify an active process.
// Invalid handles are treated as inactive.
func WaitAll(handles ...procsched.Handle) procsched.ProcessFunc {
	return func(w procsched.Wake) (procsched.Instruction, error) {
		for _, h := range handles {
			if w.Scheduler.IsActive(h) {
				return procsched.NextTick(), nil
			}
		}
		return procsched.Done(), nil
	}
}

// WaitAny completes once at least one of the handles does not identify an
// active process. It completes immediately if no handles are provided.
func WaitAny(handles ...procsched.Handle) procsched.ProcessFunc {
	return func(w procsched.Wake) (procsched.Instruction, error) {
		for _, h := range handles {
			if !w.Scheduler.IsActive(h) {
				return procsched.Done(), nil
			}
		}
		if len(handles) == 0 {
			return procsched.Done(), nil
		}
		return procsched.NextTick(), nil
	}
}

// Every calls fn on the first poll, then at the given interval (per
// procsched.Delay), until fn returns false, or an error. A non-positive
// interval calls fn once per tick.
func Every(interval time.Duration, fn func(w procsched.Wake) (bool, error)) procsched.Process {
	return &every{fn: fn, interval: interval}
}

func (x *every) Poll(w procsched.Wake) (procsched.Instruction, error) {
	more, err := x.fn(w)
	if err != nil || !more {
		return procsched.Done(), err
	}
	return procsched.Delay(x.interval), nil
}

// Noop returns a process that completes on its first poll.
func Noop() procsched.Process {
	return procsched.ProcessFunc(func(procsched.Wake) (procsched.Instruction, error) {
		return procsched.Done(), nil
	})
}

// ReplaceWithNoop is a procsched.ReplacementFunc that substitutes the
// faulting process with Noop, effectively ending it on its next poll,
// without reporting a fault.
func ReplaceWithNoop(procsched.Process, procsched.Handle) procsched.Process {
	return Noop()
}
