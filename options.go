package procsched

import (
	"fmt"
	"time"

	"github.com/joeycumines/logiface"
)

// schedulerOptions holds configuration options for Scheduler creation.
type schedulerOptions struct {
	logger        *logiface.Logger[logiface.Event]
	errorHandler  func(h Handle, err error)
	preTick       func(seg Segment, now, delta time.Duration)
	faultLogRates map[time.Duration]int
	chunkSizes    [numSegments]int
	catchUp       int
}

// Option configures a Scheduler instance.
type Option interface {
	applyOption(*schedulerOptions) error
}

// optionImpl implements Option.
type optionImpl struct {
	applyOptionFunc func(*schedulerOptions) error
}

func (x *optionImpl) applyOption(opts *schedulerOptions) error {
	return x.applyOptionFunc(opts)
}

// WithLogger configures structured logging. A nil logger (the default)
// disables logging.
func WithLogger(logger *logiface.Logger[logiface.Event]) Option {
	return &optionImpl{func(opts *schedulerOptions) error {
		opts.logger = logger
		return nil
	}}
}

// WithErrorHandler configures the sink for process faults. The error will be
// a *ProcessError. The handler is called from within Tick, after the process
// has been removed.
//
// By default, faults are logged at error level, subject to the rates
// configured by WithFaultLogRates. A panic within handler is recovered and
// logged, and does not interrupt the tick.
func WithErrorHandler(handler func(h Handle, err error)) Option {
	return &optionImpl{func(opts *schedulerOptions) error {
		opts.errorHandler = handler
		return nil
	}}
}

// WithFaultLogRates configures rate limiting for the default error handler,
// applied per segment. See [catrate.NewLimiter] for the semantics. An empty
// map disables rate limiting. Has no effect if WithErrorHandler is used.
func WithFaultLogRates(rates map[time.Duration]int) Option {
	return &optionImpl{func(opts *schedulerOptions) error {
		opts.faultLogRates = rates
		return nil
	}}
}

// WithPreTickHook configures a function, called at the start of each Tick,
// after the segment clock is updated, but before any process is polled.
func WithPreTickHook(hook func(seg Segment, now, delta time.Duration)) Option {
	return &optionImpl{func(opts *schedulerOptions) error {
		opts.preTick = hook
		return nil
	}}
}

// WithSegmentChunkSize configures the number of process slots that the
// segment's table grows by, which is also its initial capacity.
func WithSegmentChunkSize(seg Segment, n int) Option {
	return &optionImpl{func(opts *schedulerOptions) error {
		if !seg.Valid() {
			return fmt.Errorf(`%w: %s`, ErrInvalidSegment, seg)
		}
		if n <= 0 {
			return fmt.Errorf(`%w: %s: %d`, ErrInvalidChunkSize, seg, n)
		}
		opts.chunkSizes[seg] = n
		return nil
	}}
}

// WithCatchUp enables catch-up draining, if max is positive.
//
// By default, a process is polled at most once per tick. With catch-up
// enabled, Delay deadlines advance from the previous deadline, rather than
// the current clock (i.e. a fixed rate), and a process whose new deadline has
// already passed is polled again within the same tick, up to max additional
// times. Any remaining backlog is then dropped.
//
// Only positive delays are caught up. NextTick, and Delay with d <= 0 (which
// is NextTick), are never re-polled within the same tick.
func WithCatchUp(max int) Option {
	return &optionImpl{func(opts *schedulerOptions) error {
		if max < 0 {
			max = 0
		}
		opts.catchUp = max
		return nil
	}}
}

// resolveOptions applies Option instances to schedulerOptions.
func resolveOptions(opts []Option) (*schedulerOptions, error) {
	cfg := &schedulerOptions{
		chunkSizes: [numSegments]int{
			SegmentUpdate:      256,
			SegmentFixedUpdate: 64,
			SegmentLateUpdate:  32,
			SegmentLazy:        16,
		},
		faultLogRates: map[time.Duration]int{
			time.Second: 10,
			time.Minute: 100,
		},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyOption(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
