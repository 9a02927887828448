// Package driver implements a tick source for procsched, advancing each
// segment at its own cadence: fixed-step, per-frame, post-frame, and a
// low-rate background segment.
package driver

import (
	"context"
	"time"

	"github.com/joeycumines/go-procsched"
	"github.com/joeycumines/logiface"
)

type (
	// Ticker is implemented by *procsched.Scheduler and
	// *procsched.Synchronized.
	Ticker interface {
		Tick(seg procsched.Segment, now, delta time.Duration)
	}

	// Config models optional configuration, for New.
	Config struct {
		// FrameInterval is the period of Run, between frames.
		// **Defaults to 1/60th of a second, if 0, or Config is nil.**
		FrameInterval time.Duration

		// FixedStep is both the period and the delta of the fixed update
		// segment, which advances independently of the frame rate, using an
		// accumulator. The segment clock advances by exactly FixedStep per
		// tick.
		// **Defaults to 20ms, if 0, or Config is nil.**
		// May be disabled by setting it to a negative value.
		FixedStep time.Duration

		// LazyInterval is the minimum time between ticks of the lazy
		// segment. The lazy segment is ticked on the first frame.
		// **Defaults to 250ms, if 0, or Config is nil.**
		// May be disabled by setting it to a negative value.
		LazyInterval time.Duration

		// MaxFixedSteps limits the number of fixed update ticks per frame.
		// Any further backlog is discarded, i.e. the fixed update clock falls
		// behind the frame clock, rather than stalling frames.
		// **Defaults to 8, if 0, or Config is nil.**
		MaxFixedSteps int
	}

	// Driver ticks each segment of a Ticker, once per frame, in the order
	// of procsched.Segments. Instances must be initialized using the New
	// factory.
	//
	// Driver is not safe for concurrent use. Use procsched.Synchronized if
	// the scheduler is also accessed from other goroutines.
	Driver struct {
		ticker        Ticker
		logger        *logiface.Logger[logiface.Event]
		frameInterval time.Duration // configurable
		fixedStep     time.Duration // configurable
		lazyInterval  time.Duration // configurable
		maxFixedSteps int           // configurable
		started       bool
		last          time.Duration // frame clock of the previous frame
		lastLazy      time.Duration
		fixedClock    time.Duration
		accumulator   time.Duration
		frames        uint64
		droppedSteps  uint64
	}
)

var (
	// for testing
	timeNow = time.Now
)

// New initializes a Driver for t, using the provided Config, which may be
// nil. The logger may be nil. A panic will occur if t is nil.
func New(t Ticker, config *Config, logger *logiface.Logger[logiface.Event]) *Driver {
	if t == nil {
		panic(`driver: nil ticker`)
	}

	x := Driver{
		ticker:        t,
		logger:        logger,
		frameInterval: time.Second / 60,
		fixedStep:     20 * time.Millisecond,
		lazyInterval:  250 * time.Millisecond,
		maxFixedSteps: 8,
	}

	if config != nil {
		if config.FrameInterval != 0 {
			x.frameInterval = config.FrameInterval
		}
		if config.FixedStep != 0 {
			x.fixedStep = config.FixedStep
		}
		if config.LazyInterval != 0 {
			x.lazyInterval = config.LazyInterval
		}
		if config.MaxFixedSteps != 0 {
			x.maxFixedSteps = config.MaxFixedSteps
		}
	}

	if x.frameInterval <= 0 {
		panic(`driver: frame interval must be positive`)
	}
	if x.maxFixedSteps < 0 {
		x.maxFixedSteps = 0
	}

	return &x
}

// Step runs a single frame, at the given frame clock, which must not
// decrease between calls. The first Step establishes the origin, and ticks
// every enabled segment other than fixed update with a zero delta.
func (x *Driver) Step(now time.Duration) {
	var delta time.Duration
	if x.started {
		delta = now - x.last
		if delta < 0 {
			delta = 0
		}
	}
	first := !x.started
	x.started = true
	x.last = now
	x.frames++

	x.stepFixed(delta)

	x.ticker.Tick(procsched.SegmentUpdate, now, delta)
	x.ticker.Tick(procsched.SegmentLateUpdate, now, delta)

	if x.lazyInterval > 0 && (first || now-x.lastLazy >= x.lazyInterval) {
		var lazyDelta time.Duration
		if !first {
			lazyDelta = now - x.lastLazy
		}
		x.lastLazy = now
		x.ticker.Tick(procsched.SegmentLazy, now, lazyDelta)
	}
}

func (x *Driver) stepFixed(delta time.Duration) {
	if x.fixedStep <= 0 {
		return
	}
	x.accumulator += delta
	for n := 0; x.accumulator >= x.fixedStep; n++ {
		if n >= x.maxFixedSteps {
			dropped := x.accumulator / x.fixedStep
			x.droppedSteps += uint64(dropped)
			x.accumulator -= dropped * x.fixedStep
			x.logger.Debug().
				Int64(`dropped`, int64(dropped)).
				Uint64(`frame`, x.frames).
				Log(`driver: fixed update backlog dropped`)
			return
		}
		x.accumulator -= x.fixedStep
		x.fixedClock += x.fixedStep
		x.ticker.Tick(procsched.SegmentFixedUpdate, x.fixedClock, x.fixedStep)
	}
}

// Run calls Step every FrameInterval, using the elapsed wall clock time
// since Run was called, until ctx is cancelled, returning ctx.Err().
//
// The first frame runs immediately. Frames are skipped, rather than queued,
// if Step takes longer than FrameInterval.
func (x *Driver) Run(ctx context.Context) error {
	x.logger.Info().
		Dur(`frame_interval`, x.frameInterval).
		Dur(`fixed_step`, x.fixedStep).
		Dur(`lazy_interval`, x.lazyInterval).
		Log(`driver: started`)

	ticker := time.NewTicker(x.frameInterval)
	defer ticker.Stop()

	start := timeNow()
	offset := x.last
	if !x.started {
		x.Step(0)
	}

	for {
		select {
		case <-ctx.Done():
			x.logger.Info().
				Uint64(`frames`, x.frames).
				Uint64(`dropped_fixed_steps`, x.droppedSteps).
				Log(`driver: stopped`)
			return ctx.Err()
		case <-ticker.C:
			if ctx.Err() != nil {
				// cancelled by the previous frame
				continue
			}
			x.Step(offset + timeNow().Sub(start))
		}
	}
}

// Frames returns the number of frames run.
func (x *Driver) Frames() uint64 { return x.frames }

// FixedTime returns the clock of the fixed update segment.
func (x *Driver) FixedTime() time.Duration { return x.fixedClock }

// DroppedFixedSteps returns the total number of fixed update ticks
// discarded due to MaxFixedSteps.
func (x *Driver) DroppedFixedSteps() uint64 { return x.droppedSteps }
