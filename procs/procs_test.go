package procs

import (
	"errors"
	"testing"
	"time"

	"github.com/joeycumines/go-procsched"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// harness ticks SegmentUpdate with a fixed step.
type harness struct {
	*procsched.Scheduler
	now  time.Duration
	step time.Duration
}

func newHarness(t *testing.T, step time.Duration, opts ...procsched.Option) *harness {
	t.Helper()
	s, err := procsched.New(opts...)
	require.NoError(t, err)
	return &harness{Scheduler: s, step: step}
}

func (x *harness) tick() {
	x.Tick(procsched.SegmentUpdate, x.now, x.step)
	x.now += x.step
}

// runUntilInactive ticks until h is no longer active, returning the number of
// ticks, or failing after limit ticks.
func (x *harness) runUntilInactive(t *testing.T, h procsched.Handle, limit int) int {
	t.Helper()
	for i := 1; i <= limit; i++ {
		x.tick()
		if !x.IsActive(h) {
			return i
		}
	}
	t.Fatalf(`%s still active after %d ticks`, h, limit)
	return 0
}

func TestSteps(t *testing.T) {
	x := newHarness(t, 100*time.Millisecond)
	var log []string
	record := func(name string, instruction procsched.Instruction) procsched.ProcessFunc {
		return func(w procsched.Wake) (procsched.Instruction, error) {
			log = append(log, name+`@`+w.Now.String())
			return instruction, nil
		}
	}
	h := x.Spawn(Steps(
		record(`a`, procsched.NextTick()),
		record(`b`, procsched.Delay(300*time.Millisecond)),
		record(`c`, procsched.Delay(time.Hour)),
	))
	assert.Equal(t, 5, x.runUntilInactive(t, h, 10))
	assert.Equal(t, []string{`a@0s`, `b@100ms`, `c@400ms`}, log)
}

func TestSteps_doneEndsEarly(t *testing.T) {
	x := newHarness(t, time.Millisecond)
	var n int
	step := func(w procsched.Wake) (procsched.Instruction, error) {
		n++
		return procsched.Done(), nil
	}
	h := x.Spawn(Steps(step, step, step))
	assert.Equal(t, 1, x.runUntilInactive(t, h, 10))
	assert.Equal(t, 1, n)
}

func TestSteps_empty(t *testing.T) {
	x := newHarness(t, time.Millisecond)
	h := x.Spawn(Steps())
	assert.Equal(t, 1, x.runUntilInactive(t, h, 1))
}

func TestSteps_errorFaults(t *testing.T) {
	var faults []error
	x := newHarness(t, time.Millisecond, procsched.WithErrorHandler(func(h procsched.Handle, err error) {
		faults = append(faults, err)
	}))
	cause := errors.New(`step failed`)
	var reached bool
	h := x.Spawn(Steps(
		func(w procsched.Wake) (procsched.Instruction, error) { return procsched.NextTick(), cause },
		func(w procsched.Wake) (procsched.Instruction, error) { reached = true; return procsched.NextTick(), nil },
	))
	x.tick()
	assert.False(t, x.IsActive(h))
	assert.False(t, reached)
	require.Len(t, faults, 1)
	assert.ErrorIs(t, faults[0], cause)
}

func TestThen(t *testing.T) {
	x := newHarness(t, 10*time.Millisecond)
	var log []string
	mark := func(name string) procsched.Process {
		return procsched.ProcessFunc(func(w procsched.Wake) (procsched.Instruction, error) {
			log = append(log, name+`@`+w.Now.String())
			return procsched.Done(), nil
		})
	}
	h := x.Spawn(Then(
		mark(`first`),
		nil,
		WaitFor(25*time.Millisecond),
		mark(`second`),
		mark(`third`),
	))
	// 0ms: first, wait starts; 30ms: wait ends, second, third
	assert.Equal(t, 4, x.runUntilInactive(t, h, 10))
	assert.Equal(t, []string{`first@0s`, `second@30ms`, `third@30ms`}, log)
}

func TestThen_passesThroughReplace(t *testing.T) {
	x := newHarness(t, time.Millisecond)
	var replaced bool
	x.SetReplacementFunc(func(faulting procsched.Process, h procsched.Handle) procsched.Process {
		replaced = true
		return Noop()
	})
	var after bool
	h := x.Spawn(Then(
		procsched.ProcessFunc(func(w procsched.Wake) (procsched.Instruction, error) { return procsched.Replace(), nil }),
		procsched.ProcessFunc(func(w procsched.Wake) (procsched.Instruction, error) { after = true; return procsched.Done(), nil }),
	))
	assert.Equal(t, 2, x.runUntilInactive(t, h, 10))
	assert.True(t, replaced)
	assert.False(t, after)
}

func TestWaitUntil(t *testing.T) {
	x := newHarness(t, time.Millisecond)
	var flag bool
	var checks int
	h := x.Spawn(WaitUntil(func(w procsched.Wake) bool {
		checks++
		return flag
	}))
	for i := 0; i < 3; i++ {
		x.tick()
	}
	assert.True(t, x.IsActive(h))
	flag = true
	x.tick()
	assert.False(t, x.IsActive(h))
	assert.Equal(t, 4, checks)
}

func TestWaitFor(t *testing.T) {
	for _, tc := range [...]struct {
		name  string
		d     time.Duration
		ticks int
	}{
		{`zero`, 0, 1},
		{`negative`, -time.Second, 1},
		{`exact multiple`, 50 * time.Millisecond, 6},
		{`between ticks`, 55 * time.Millisecond, 7},
	} {
		t.Run(tc.name, func(t *testing.T) {
			x := newHarness(t, 10*time.Millisecond)
			h := x.Spawn(WaitFor(tc.d))
			assert.Equal(t, tc.ticks, x.runUntilInactive(t, h, 100))
		})
	}
}

func TestWaitAll(t *testing.T) {
	x := newHarness(t, 10*time.Millisecond)
	a := x.Spawn(WaitFor(20 * time.Millisecond))
	b := x.Spawn(WaitFor(50 * time.Millisecond))
	// spawned after a and b, so it observes their state within the same tick
	w := x.Spawn(WaitAll(a, b, procsched.Handle{}))

	x.tick()
	x.tick()
	x.tick()
	assert.False(t, x.IsActive(a))
	assert.True(t, x.IsActive(w))

	assert.Equal(t, 3, x.runUntilInactive(t, w, 10))
	assert.False(t, x.IsActive(b))
}

func TestWaitAny(t *testing.T) {
	x := newHarness(t, 10*time.Millisecond)
	a := x.Spawn(WaitFor(time.Hour))
	b := x.Spawn(WaitFor(30 * time.Millisecond))
	w := x.Spawn(WaitAny(a, b))

	assert.Equal(t, 4, x.runUntilInactive(t, w, 10))
	assert.True(t, x.IsActive(a))
	assert.False(t, x.IsActive(b))
}

func TestWaitAny_empty(t *testing.T) {
	x := newHarness(t, time.Millisecond)
	h := x.Spawn(WaitAny())
	assert.Equal(t, 1, x.runUntilInactive(t, h, 1))
}

func TestWaitAll_killedHandle(t *testing.T) {
	x := newHarness(t, time.Millisecond)
	a := x.Spawn(WaitFor(time.Hour))
	w := x.Spawn(WaitAll(a))
	x.tick()
	require.True(t, x.IsActive(w))
	require.True(t, x.Kill(a))
	x.tick()
	assert.False(t, x.IsActive(w))
}

func TestEvery(t *testing.T) {
	x := newHarness(t, 40*time.Millisecond)
	var calls []time.Duration
	h := x.Spawn(Every(100*time.Millisecond, func(w procsched.Wake) (bool, error) {
		calls = append(calls, w.Now)
		return len(calls) < 3, nil
	}))
	x.runUntilInactive(t, h, 100)
	assert.Equal(t, []time.Duration{0, 120 * time.Millisecond, 240 * time.Millisecond}, calls)
}

func TestEvery_error(t *testing.T) {
	var faults int
	x := newHarness(t, time.Millisecond, procsched.WithErrorHandler(func(procsched.Handle, error) { faults++ }))
	h := x.Spawn(Every(0, func(w procsched.Wake) (bool, error) {
		return true, errors.New(`stop`)
	}))
	x.tick()
	assert.False(t, x.IsActive(h))
	assert.Equal(t, 1, faults)
}

func TestReplaceWithNoop(t *testing.T) {
	var faults int
	x := newHarness(t, time.Millisecond, procsched.WithErrorHandler(func(procsched.Handle, error) { faults++ }))
	x.SetReplacementFunc(ReplaceWithNoop)
	var polls int
	h := x.Spawn(procsched.ProcessFunc(func(w procsched.Wake) (procsched.Instruction, error) {
		polls++
		return procsched.Replace(), nil
	}))
	x.tick()
	assert.True(t, x.IsActive(h))
	x.tick()
	assert.False(t, x.IsActive(h))
	assert.Equal(t, 1, polls)
	assert.Zero(t, faults)
}
