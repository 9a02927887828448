// Package procsched implements a cooperative process scheduler, that
// multiplexes any number of long-lived, pausable computations ("processes")
// onto periodic ticks, supplied by an external driver.
//
// # Architecture
//
// A [Scheduler] owns one process table per [Segment] (e.g. per-frame,
// fixed-step, post-frame, and background). Each table is an
// [github.com/joeycumines/go-procsched/arena.Arena], so admission and removal
// are O(1), and steady-state operation does not allocate. Processes are
// identified by a [Handle], which pairs the slot index with the slot's
// generation, and is invalidated the moment the process is removed.
//
// The scheduler never reads a clock. The driver calls [Scheduler.Tick] once
// per segment per cycle, providing the segment clock and the delta since the
// previous tick. See the driver package for a ready-made tick source.
//
// # Execution Model
//
// A [Process] is polled via [Process.Poll], which runs it to its next yield
// point, and returns an [Instruction]:
//   - [NextTick]: poll again on the next tick of the segment
//   - [Delay]: poll again once the segment clock has advanced by at least d
//   - [Replace]: substitute the process, see [Scheduler.SetReplacementFunc]
//   - [Done]: remove the process
//
// A non-nil error, or a panic, aborts the process, which is reported to the
// error handler (see [WithErrorHandler]), and never affects other processes.
//
// Within one tick of one segment, processes are polled one at a time, in
// slot order, each at most once (unless [WithCatchUp] is used). Processes
// spawned during a tick are first polled on the next tick.
//
// # Thread Safety
//
// A [Scheduler] is not safe for concurrent use. Processes may call it
// re-entrantly, via [Wake.Scheduler], including to kill themselves. Hosts that
// call it from multiple goroutines should use [Synchronized].
//
// # Usage
//
//	s, err := procsched.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	var n int
//	h := s.Spawn(procsched.ProcessFunc(func(w procsched.Wake) (procsched.Instruction, error) {
//	    n++
//	    if n == 3 {
//	        return procsched.Done(), nil
//	    }
//	    return procsched.Delay(500 * time.Millisecond), nil
//	}))
//
//	for now := time.Duration(0); s.IsActive(h); now += 100 * time.Millisecond {
//	    s.Tick(procsched.SegmentUpdate, now, 100*time.Millisecond)
//	}
package procsched
