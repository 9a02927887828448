package procsched

import (
	"fmt"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/go-procsched/arena"
	"github.com/joeycumines/logiface"
)

type (
	// Scheduler multiplexes cooperative processes onto ticks, supplied by an
	// external driver, per Segment. Instances must be initialized using the
	// New factory.
	//
	// A Scheduler is not safe for concurrent use. All methods, including
	// Tick, must be called from a single goroutine at a time. Methods may be
	// called from within Process.Poll, via Wake.Scheduler. See Synchronized,
	// for hosts calling from multiple goroutines.
	Scheduler struct {
		// Prevent copying
		_ [0]func()

		logger       *logiface.Logger[logiface.Event]
		errorHandler func(h Handle, err error)
		preTick      func(seg Segment, now, delta time.Duration)
		faultLimiter *catrate.Limiter
		replacement  ReplacementFunc
		segments     [numSegments]segmentState
		// current is the process presently within Poll, or the zero Handle
		current Handle
		catchUp int
	}

	// segmentState is fully independent of all other segments
	segmentState struct {
		records *arena.Arena[record]
		clock   time.Duration
		delta   time.Duration
		// epoch increments at the start of each Tick, and is used to defer
		// processes spawned mid-tick to the next tick
		epoch uint64
	}

	// record is the process table entry.
	record struct {
		process   Process
		waitUntil time.Duration
		epoch     uint64
		handle    Handle
		paused    bool
		// held excludes the record from polling while a replacement is being
		// installed
		held bool
	}
)

// New initializes a Scheduler, with every segment clock at zero.
func New(opts ...Option) (*Scheduler, error) {
	cfg, err := resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	x := Scheduler{
		logger:       cfg.logger,
		errorHandler: cfg.errorHandler,
		preTick:      cfg.preTick,
		catchUp:      cfg.catchUp,
	}

	if x.errorHandler == nil {
		if len(cfg.faultLogRates) != 0 {
			if x.faultLimiter, err = newFaultLimiter(cfg.faultLogRates); err != nil {
				return nil, err
			}
		}
		x.errorHandler = x.logFault
	}

	for i := range x.segments {
		x.segments[i].records = arena.New[record](cfg.chunkSizes[i])
	}

	return &x, nil
}

// Spawn is equivalent to SpawnIn(SegmentUpdate, p).
func (x *Scheduler) Spawn(p Process) Handle {
	return x.SpawnIn(SegmentUpdate, p)
}

// SpawnIn adds a process to the given segment. The process will first be
// polled on the next tick of that segment, which will never be the tick
// presently in progress, if SpawnIn is called from within Poll.
//
// The invalid (zero) Handle is returned if p is nil, or seg is invalid.
func (x *Scheduler) SpawnIn(seg Segment, p Process) Handle {
	if !seg.Valid() || isNilProcess(p) {
		x.logger.Debug().
			Stringer(`segment`, seg).
			Bool(`nil_process`, isNilProcess(p)).
			Log(`procsched: spawn rejected`)
		return Handle{}
	}

	st := &x.segments[seg]
	index, generation, rec := st.records.Allocate()
	*rec = record{
		process:   p,
		waitUntil: st.clock,
		epoch:     st.epoch,
		handle: Handle{
			index:      index,
			generation: generation,
			segment:    seg,
		},
	}

	x.logger.Debug().
		Stringer(`handle`, rec.handle).
		Int(`count`, st.records.Len()).
		Log(`procsched: spawned`)

	return rec.handle
}

// Tick advances the clock of seg to now, records delta, then polls every
// process in seg that is due, in slot order. Processes spawned during the
// tick are not polled until the next tick.
//
// It is the caller's responsibility to ensure now is monotonic, per segment.
// Faults are handled per process, and never interrupt the tick.
func (x *Scheduler) Tick(seg Segment, now, delta time.Duration) {
	if !seg.Valid() {
		return
	}

	st := &x.segments[seg]
	st.clock = now
	st.delta = delta
	st.epoch++

	if x.preTick != nil {
		x.preTick(seg, now, delta)
	}

	if st.records.Len() == 0 {
		return
	}

	bound := st.records.Bound()
	for index := uint32(0); index < bound; index++ {
		rec, generation, ok := st.records.At(index)
		if !ok || !x.ready(st, rec) {
			continue
		}
		x.resume(seg, st, index, generation)
	}
}

// ready reports whether rec should be polled, in the current tick of st.
func (x *Scheduler) ready(st *segmentState, rec *record) bool {
	return !rec.paused &&
		!rec.held &&
		rec.epoch != st.epoch &&
		st.clock >= rec.waitUntil
}

// resume polls the process at (index, generation), then applies the
// resulting instruction. The record is re-validated after every call out of
// the scheduler, as the process may have been killed, and the slot reused.
func (x *Scheduler) resume(seg Segment, st *segmentState, index, generation uint32) {
	for n := 0; ; n++ {
		rec, ok := st.records.Get(index, generation)
		if !ok {
			return
		}

		wake := Wake{
			Scheduler: x,
			Handle:    rec.handle,
			Segment:   seg,
			Now:       st.clock,
			Delta:     st.delta,
		}

		instruction, err := x.poll(rec.process, wake)

		rec, ok = st.records.Get(index, generation)
		if !ok {
			// killed during poll, discarding the instruction
			return
		}

		if err != nil {
			x.abort(st, rec, err)
			return
		}

		switch instruction.kind {
		case instructionDone:
			x.remove(st, rec, `done`)
			return

		case instructionReplace:
			x.replace(st, rec)
			return

		case instructionDelay:
			if x.catchUp > 0 {
				rec.waitUntil += instruction.delay
				if st.clock < rec.waitUntil {
					return
				}
				if n >= x.catchUp {
					// drop the backlog
					rec.waitUntil = st.clock + instruction.delay
					return
				}
				if rec.paused || rec.held {
					return
				}
				continue
			}
			rec.waitUntil = st.clock + instruction.delay
			return

		default:
			rec.waitUntil = st.clock
			return
		}
	}
}

// poll calls p.Poll, recovering any panic as a PanicError.
func (x *Scheduler) poll(p Process, wake Wake) (instruction Instruction, err error) {
	previous := x.current
	x.current = wake.Handle
	defer func() {
		x.current = previous
		if r := recover(); r != nil {
			err = PanicError{Value: r}
		}
	}()
	return p.Poll(wake)
}

// abort removes the process then reports err.
func (x *Scheduler) abort(st *segmentState, rec *record, err error) {
	h := rec.handle
	x.remove(st, rec, `fault`)
	x.report(h, &ProcessError{Handle: h, Err: err})
}

// report calls the error handler, logging (rather than propagating) any
// panic, so the tick continues.
func (x *Scheduler) report(h Handle, err error) {
	defer func() {
		if r := recover(); r != nil {
			x.logger.Err().
				Err(PanicError{Value: r}).
				Stringer(`handle`, h).
				Log(`procsched: error handler panicked`)
		}
	}()
	x.errorHandler(h, err)
}

func (x *Scheduler) remove(st *segmentState, rec *record, reason string) {
	h := rec.handle
	st.records.Free(h.index, h.generation)
	x.logger.Debug().
		Stringer(`handle`, h).
		Str(`reason`, reason).
		Log(`procsched: removed`)
}

func (x *Scheduler) lookup(h Handle) (*segmentState, *record, bool) {
	if !h.Valid() || !h.segment.Valid() {
		return nil, nil, false
	}
	st := &x.segments[h.segment]
	rec, ok := st.records.Get(h.index, h.generation)
	if !ok {
		return nil, nil, false
	}
	return st, rec, true
}

// IsActive returns true if the process identified by h has not yet
// completed, faulted, or been killed.
func (x *Scheduler) IsActive(h Handle) bool {
	_, _, ok := x.lookup(h)
	return ok
}

// IsPaused returns true if the process is active and paused.
func (x *Scheduler) IsPaused(h Handle) bool {
	_, rec, ok := x.lookup(h)
	return ok && rec.paused
}

// Pause prevents the process from being polled, until Resume is called.
// It is a no-op if the process is not active, or already paused.
func (x *Scheduler) Pause(h Handle) {
	if _, rec, ok := x.lookup(h); ok {
		rec.paused = true
	}
}

// Resume reverses Pause. If the process's deadline elapsed while it was
// paused, it is polled on the next tick, with no attempt to catch up on
// missed time. It is a no-op if the process is not active, or not paused.
func (x *Scheduler) Resume(h Handle) {
	st, rec, ok := x.lookup(h)
	if !ok || !rec.paused {
		return
	}
	rec.paused = false
	if rec.waitUntil < st.clock {
		rec.waitUntil = st.clock
	}
}

// Kill removes the process, dropping the reference to it, returning true if
// it was active. The handle is permanently invalidated. If called from within
// the process's own Poll, the instruction it returns is discarded.
func (x *Scheduler) Kill(h Handle) bool {
	st, rec, ok := x.lookup(h)
	if !ok {
		return false
	}
	x.remove(st, rec, `killed`)
	return true
}

// KillAll kills every process in the given segments, or every segment, if
// none are given, returning the number killed. Invalid segments are ignored.
// It is safe to call from within Poll.
func (x *Scheduler) KillAll(segments ...Segment) int {
	if len(segments) == 0 {
		segments = Segments()
	}
	var n int
	for _, seg := range segments {
		if !seg.Valid() {
			continue
		}
		n += x.segments[seg].records.Clear()
	}
	if n != 0 {
		x.logger.Debug().
			Int(`count`, n).
			Log(`procsched: killed all`)
	}
	return n
}

// Count returns the number of active processes in seg.
func (x *Scheduler) Count(seg Segment) int {
	if !seg.Valid() {
		return 0
	}
	return x.segments[seg].records.Len()
}

// CurrentTime returns the now value from the most recent Tick of seg.
func (x *Scheduler) CurrentTime(seg Segment) time.Duration {
	if !seg.Valid() {
		return 0
	}
	return x.segments[seg].clock
}

// CurrentDelta returns the delta value from the most recent Tick of seg.
func (x *Scheduler) CurrentDelta(seg Segment) time.Duration {
	if !seg.Valid() {
		return 0
	}
	return x.segments[seg].delta
}

// CurrentProcess returns the handle of the process presently within
// Process.Poll, or the invalid Handle, if called outside of Poll.
func (x *Scheduler) CurrentProcess() Handle { return x.current }

// logFault is the default error handler.
func (x *Scheduler) logFault(h Handle, err error) {
	if next, ok := x.faultLimiter.Allow(h.segment); !ok {
		x.logger.Trace().
			Stringer(`handle`, h).
			Time(`next`, next).
			Log(`procsched: fault log suppressed`)
		return
	}
	x.logger.Err().
		Err(err).
		Stringer(`handle`, h).
		Log(`procsched: process aborted`)
}

// newFaultLimiter converts the catrate panic (invalid rates) into an error.
func newFaultLimiter(rates map[time.Duration]int) (limiter *catrate.Limiter, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf(`procsched: invalid fault log rates: %v`, r)
		}
	}()
	return catrate.NewLimiter(rates), nil
}
