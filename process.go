package procsched

import (
	"fmt"
	"time"
)

type (
	// Process is a suspended computation. Each call to Poll runs it until its
	// next yield point, returning the Instruction that says when it should
	// next be polled.
	//
	// A non-nil error aborts the process, and is reported to the scheduler's
	// error handler, as is a panic. The Instruction is ignored in that case.
	//
	// Poll is always called by the goroutine calling Scheduler.Tick, and is
	// never called concurrently, for processes within the same segment.
	Process interface {
		Poll(w Wake) (Instruction, error)
	}

	// ProcessFunc implements Process.
	ProcessFunc func(w Wake) (Instruction, error)

	// Wake describes a single poll of a process.
	Wake struct {
		// Scheduler is the scheduler polling the process. It may be used to
		// spawn, pause, resume, or kill processes, including the polled
		// process itself.
		//
		// WARNING: This is never the Synchronized wrapper, which would
		// deadlock, if used from within Poll.
		Scheduler *Scheduler

		// Handle identifies the polled process.
		Handle Handle

		// Segment is the segment being ticked.
		Segment Segment

		// Now is the segment clock, i.e. the value provided to Tick.
		Now time.Duration

		// Delta is the value provided to Tick.
		Delta time.Duration
	}

	// Instruction is returned by Process.Poll, to direct the scheduler.
	// The zero value is equivalent to NextTick.
	Instruction struct {
		delay time.Duration
		kind  instructionKind
	}

	instructionKind uint8
)

const (
	instructionNextTick instructionKind = iota
	instructionDelay
	instructionReplace
	instructionDone
)

var (
	// compile time assertions

	_ Process = ProcessFunc(nil)
)

// Poll implements Process.
func (x ProcessFunc) Poll(w Wake) (Instruction, error) { return x(w) }

// NextTick requests the process be polled again on the next tick of its
// segment.
func NextTick() Instruction { return Instruction{kind: instructionNextTick} }

// Delay requests the process be polled on the first tick where the segment
// clock is at least d later than the clock at this poll. A negative d is
// treated as zero, which is equivalent to NextTick.
func Delay(d time.Duration) Instruction {
	if d <= 0 {
		return NextTick()
	}
	return Instruction{kind: instructionDelay, delay: d}
}

// Replace signals that the process should be substituted, using the
// function registered via Scheduler.SetReplacementFunc. If no function is
// registered, it is equivalent to NextTick.
func Replace() Instruction { return Instruction{kind: instructionReplace} }

// Done indicates that the process has completed, and should be removed.
func Done() Instruction { return Instruction{kind: instructionDone} }

// IsDone returns true for the Done instruction.
func (x Instruction) IsDone() bool { return x.kind == instructionDone }

// IsReplace returns true for the Replace instruction.
func (x Instruction) IsReplace() bool { return x.kind == instructionReplace }

// Delay returns the requested delay, which is 0 for all but Delay
// instructions.
func (x Instruction) Delay() time.Duration { return x.delay }

func (x Instruction) String() string {
	switch x.kind {
	case instructionNextTick:
		return `next_tick`
	case instructionDelay:
		return fmt.Sprintf(`delay(%s)`, x.delay)
	case instructionReplace:
		return `replace`
	case instructionDone:
		return `done`
	default:
		return fmt.Sprintf(`instruction(%d)`, x.kind)
	}
}

// isNilProcess guards against both nil interfaces and nil functions.
func isNilProcess(p Process) bool {
	if p == nil {
		return true
	}
	if f, ok := p.(ProcessFunc); ok && f == nil {
		return true
	}
	return false
}
