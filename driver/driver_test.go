package driver

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/joeycumines/go-procsched"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tickCall struct {
	seg        procsched.Segment
	now, delta time.Duration
}

func (x tickCall) String() string {
	return fmt.Sprintf(`%s(%s,%s)`, x.seg, x.now, x.delta)
}

type recordingTicker struct {
	calls []tickCall
	fn    func(call tickCall)
}

func (x *recordingTicker) Tick(seg procsched.Segment, now, delta time.Duration) {
	call := tickCall{seg, now, delta}
	x.calls = append(x.calls, call)
	if x.fn != nil {
		x.fn(call)
	}
}

func (x *recordingTicker) take() []string {
	out := make([]string, len(x.calls))
	for i, c := range x.calls {
		out[i] = c.String()
	}
	x.calls = x.calls[:0]
	return out
}

func TestNew_defaults(t *testing.T) {
	for _, tc := range [...]struct {
		name   string
		config *Config
	}{
		{`nil config`, nil},
		{`zero config`, &Config{}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			d := New(&recordingTicker{}, tc.config, nil)
			assert.Equal(t, time.Second/60, d.frameInterval)
			assert.Equal(t, 20*time.Millisecond, d.fixedStep)
			assert.Equal(t, 250*time.Millisecond, d.lazyInterval)
			assert.Equal(t, 8, d.maxFixedSteps)
		})
	}
}

func TestNew_panics(t *testing.T) {
	assert.PanicsWithValue(t, `driver: nil ticker`, func() { New(nil, nil, nil) })
	assert.PanicsWithValue(t, `driver: frame interval must be positive`, func() {
		New(&recordingTicker{}, &Config{FrameInterval: -1}, nil)
	})
}

func TestDriver_Step_order(t *testing.T) {
	r := &recordingTicker{}
	d := New(r, &Config{FixedStep: 20 * time.Millisecond, LazyInterval: 100 * time.Millisecond}, nil)

	d.Step(0)
	assert.Equal(t, []string{
		`update(0s,0s)`,
		`late_update(0s,0s)`,
		`lazy(0s,0s)`,
	}, r.take())

	d.Step(50 * time.Millisecond)
	assert.Equal(t, []string{
		`fixed_update(20ms,20ms)`,
		`fixed_update(40ms,20ms)`,
		`update(50ms,50ms)`,
		`late_update(50ms,50ms)`,
	}, r.take())

	d.Step(100 * time.Millisecond)
	assert.Equal(t, []string{
		`fixed_update(60ms,20ms)`,
		`fixed_update(80ms,20ms)`,
		`fixed_update(100ms,20ms)`,
		`update(100ms,50ms)`,
		`late_update(100ms,50ms)`,
		`lazy(100ms,100ms)`,
	}, r.take())

	assert.Equal(t, uint64(3), d.Frames())
	assert.Equal(t, 100*time.Millisecond, d.FixedTime())
}

func TestDriver_Step_fixedBacklogDropped(t *testing.T) {
	r := &recordingTicker{}
	d := New(r, &Config{FixedStep: 20 * time.Millisecond, MaxFixedSteps: 2, LazyInterval: -1}, nil)

	d.Step(0)
	r.take()

	d.Step(time.Second + 5*time.Millisecond)
	assert.Equal(t, []string{
		`fixed_update(20ms,20ms)`,
		`fixed_update(40ms,20ms)`,
		`update(1.005s,1.005s)`,
		`late_update(1.005s,1.005s)`,
	}, r.take())
	assert.Equal(t, uint64(48), d.DroppedFixedSteps())

	// the 5ms remainder carries over
	d.Step(time.Second + 20*time.Millisecond)
	assert.Equal(t, []string{
		`fixed_update(60ms,20ms)`,
		`update(1.02s,15ms)`,
		`late_update(1.02s,15ms)`,
	}, r.take())
}

func TestDriver_Step_disabledSegments(t *testing.T) {
	r := &recordingTicker{}
	d := New(r, &Config{FixedStep: -1, LazyInterval: -1}, nil)
	for i := 0; i < 5; i++ {
		d.Step(time.Duration(i) * time.Second)
	}
	for _, c := range r.calls {
		assert.NotEqual(t, procsched.SegmentFixedUpdate, c.seg)
		assert.NotEqual(t, procsched.SegmentLazy, c.seg)
	}
	assert.Len(t, r.calls, 10)
}

func TestDriver_Step_clockNeverDecreases(t *testing.T) {
	r := &recordingTicker{}
	d := New(r, &Config{LazyInterval: -1, FixedStep: -1}, nil)
	d.Step(time.Second)
	d.Step(500 * time.Millisecond)
	assert.Equal(t, []string{
		`update(1s,0s)`,
		`late_update(1s,0s)`,
		`update(500ms,0s)`,
		`late_update(500ms,0s)`,
	}, r.take())
}

func TestDriver_Step_withScheduler(t *testing.T) {
	s, err := procsched.New()
	require.NoError(t, err)
	d := New(s, &Config{FixedStep: 10 * time.Millisecond}, nil)

	var fixed, update int
	s.SpawnIn(procsched.SegmentFixedUpdate, procsched.ProcessFunc(func(w procsched.Wake) (procsched.Instruction, error) {
		fixed++
		assert.Equal(t, 10*time.Millisecond, w.Delta)
		return procsched.NextTick(), nil
	}))
	s.Spawn(procsched.ProcessFunc(func(w procsched.Wake) (procsched.Instruction, error) {
		update++
		return procsched.NextTick(), nil
	}))

	for frame := 0; frame <= 10; frame++ {
		d.Step(time.Duration(frame) * 16 * time.Millisecond)
	}
	assert.Equal(t, 11, update)
	assert.Equal(t, 16, fixed)
	assert.Equal(t, 160*time.Millisecond, s.CurrentTime(procsched.SegmentFixedUpdate))
}

func TestDriver_Run(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var updates int
	r := &recordingTicker{fn: func(call tickCall) {
		if call.seg == procsched.SegmentUpdate {
			updates++
			if updates == 5 {
				cancel()
			}
		}
	}}
	d := New(r, &Config{FrameInterval: time.Millisecond}, nil)

	err := d.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.GreaterOrEqual(t, updates, 5)
	assert.Equal(t, uint64(updates), d.Frames())

	var last time.Duration
	for _, c := range r.calls {
		if c.seg == procsched.SegmentUpdate {
			assert.GreaterOrEqual(t, c.now, last)
			last = c.now
		}
	}
}

func TestDriver_Run_cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := &recordingTicker{}
	d := New(r, &Config{FrameInterval: time.Hour}, nil)
	assert.ErrorIs(t, d.Run(ctx), context.Canceled)
	assert.Equal(t, uint64(1), d.Frames())
}

func TestDriver_Run_fakeClock(t *testing.T) {
	old := timeNow
	defer func() { timeNow = old }()

	base := time.Unix(1_700_000_000, 0)
	var elapsed time.Duration
	timeNow = func() time.Time { return base.Add(elapsed) }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var nows []time.Duration
	r := &recordingTicker{fn: func(call tickCall) {
		if call.seg != procsched.SegmentUpdate {
			return
		}
		nows = append(nows, call.now)
		elapsed += 100 * time.Millisecond
		if len(nows) == 3 {
			cancel()
		}
	}}
	d := New(r, &Config{FrameInterval: time.Millisecond, FixedStep: -1, LazyInterval: -1}, nil)
	require.ErrorIs(t, d.Run(ctx), context.Canceled)
	require.GreaterOrEqual(t, len(nows), 3)
	assert.Equal(t, []time.Duration{0, 100 * time.Millisecond, 200 * time.Millisecond}, nows[:3])
}
