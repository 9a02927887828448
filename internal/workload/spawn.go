package workload

import (
	"fmt"
	"time"

	"github.com/joeycumines/go-procsched"
	"github.com/joeycumines/go-procsched/procs"
)

type (
	// Event describes a single poll of a workload process, which returned
	// normally (i.e. did not panic).
	Event struct {
		Name        string
		Handle      procsched.Handle
		Segment     procsched.Segment
		Now         time.Duration
		Instruction procsched.Instruction
		Err         error
	}

	// Observer receives an Event after every poll, from within the poll.
	Observer func(e Event)

	// Spawned maps process names to handles, in declaration order.
	Spawned struct {
		Names   []string
		Handles map[string]procsched.Handle
	}
)

// Spawn adds every process to s, in declaration order. The observer may be
// nil.
func (x *Workload) Spawn(s *procsched.Scheduler, observer Observer) (*Spawned, error) {
	spawned := Spawned{Handles: make(map[string]procsched.Handle, len(x.Processes))}
	for i := range x.Processes {
		spec := &x.Processes[i]
		seg, err := spec.segment()
		if err != nil {
			return nil, fmt.Errorf("process %q: %w", spec.Name, err)
		}
		h := s.SpawnIn(seg, observe(spec.Name, spec.build(spawned.Handles, observer), observer))
		if !h.Valid() {
			return nil, fmt.Errorf("process %q: spawn failed", spec.Name)
		}
		spawned.Names = append(spawned.Names, spec.Name)
		spawned.Handles[spec.Name] = h
	}
	return &spawned, nil
}

func (x *ProcessSpec) build(handles map[string]procsched.Handle, observer Observer) procsched.Process {
	switch x.Kind {
	case KindInterval:
		var n int
		return procs.Every(x.Every, func(procsched.Wake) (bool, error) {
			n++
			return x.Count == 0 || n < x.Count, nil
		})

	case KindCountdown:
		return countdown(x.Count, x.Every)

	case KindFaulty:
		var n int
		return procsched.ProcessFunc(func(procsched.Wake) (procsched.Instruction, error) {
			n++
			if n < x.After {
				return procsched.NextTick(), nil
			}
			if x.Panic {
				panic(fmt.Errorf("%w: %s", ErrInjectedFault, x.Name))
			}
			return procsched.Done(), fmt.Errorf("%w: %s", ErrInjectedFault, x.Name)
		})

	case KindReplaceable:
		var n int
		replacement := func(procsched.Process, procsched.Handle) procsched.Process {
			return observe(x.Name, countdown(x.Count, x.Every), observer)
		}
		return procsched.ProcessFunc(func(w procsched.Wake) (procsched.Instruction, error) {
			n++
			if n < x.After {
				return procsched.NextTick(), nil
			}
			w.Scheduler.SetReplacementFunc(replacement)
			return procsched.Replace(), nil
		})

	case KindWait:
		wait := make([]procsched.Handle, len(x.Wait))
		for i, name := range x.Wait {
			wait[i] = handles[name]
		}
		return procs.Then(procs.WaitAll(wait...), procs.WaitFor(x.Delay))

	default:
		panic(fmt.Sprintf(`workload: unexpected kind %q`, x.Kind))
	}
}

// countdown yields n times, then completes.
func countdown(n int, every time.Duration) procsched.Process {
	fns := make([]procsched.ProcessFunc, n+1)
	for i := range fns {
		fns[i] = func(procsched.Wake) (procsched.Instruction, error) {
			return procsched.Delay(every), nil
		}
	}
	return procs.Steps(fns...)
}

func observe(name string, p procsched.Process, observer Observer) procsched.Process {
	if observer == nil {
		return p
	}
	return procsched.ProcessFunc(func(w procsched.Wake) (procsched.Instruction, error) {
		instruction, err := p.Poll(w)
		observer(Event{
			Name:        name,
			Handle:      w.Handle,
			Segment:     w.Segment,
			Now:         w.Now,
			Instruction: instruction,
			Err:         err,
		})
		return instruction, err
	})
}
