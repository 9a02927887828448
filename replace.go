package procsched

// ReplacementFunc substitutes a process that signalled Replace. It receives
// the faulting process and its handle, and returns the process to install in
// its place. The handle remains the same, from the caller's point of view.
//
// Returning nil kills the process, reporting ErrNilReplacement.
type ReplacementFunc func(faulting Process, h Handle) Process

// SetReplacementFunc registers fn, to handle the next Replace signal, from
// any process, in any segment. Registration is one-shot: fn is cleared
// before it is called, and must be registered again to handle subsequent
// signals. A nil fn clears any registration.
//
// If no function is registered, Replace is treated as NextTick.
func (x *Scheduler) SetReplacementFunc(fn ReplacementFunc) {
	x.replacement = fn
}

// replace implements the Replace instruction for rec.
func (x *Scheduler) replace(st *segmentState, rec *record) {
	fn := x.replacement
	if fn == nil {
		rec.waitUntil = st.clock
		x.logger.Debug().
			Err(ErrReplacementUnavailable).
			Stringer(`handle`, rec.handle).
			Log(`procsched: replace signalled`)
		return
	}
	x.replacement = nil

	h := rec.handle
	faulting := rec.process

	rec.held = true
	next, err := x.callReplacement(fn, faulting, h)

	rec, ok := st.records.Get(h.index, h.generation)
	if !ok {
		// killed by fn
		return
	}
	rec.held = false

	if err == nil && isNilProcess(next) {
		err = ErrNilReplacement
	}
	if err != nil {
		x.abort(st, rec, err)
		return
	}

	rec.process = next
	rec.waitUntil = st.clock

	x.logger.Info().
		Stringer(`handle`, h).
		Log(`procsched: process replaced`)
}

func (x *Scheduler) callReplacement(fn ReplacementFunc, faulting Process, h Handle) (next Process, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = PanicError{Value: r}
		}
	}()
	return fn(faulting, h), nil
}
