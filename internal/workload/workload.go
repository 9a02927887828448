// Package workload loads YAML workload definitions, which describe a set of
// synthetic processes, and the cadence of the driver that runs them.
package workload

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joeycumines/go-procsched"
	"github.com/joeycumines/go-procsched/driver"
	"gopkg.in/yaml.v3"
)

// Kind identifies the behavior of a synthetic process.
type Kind string

const (
	// KindInterval calls back every Every, Count times (forever if 0).
	KindInterval Kind = `interval`
	// KindCountdown yields Count times, at Every (or every tick if 0), then
	// completes.
	KindCountdown Kind = `countdown`
	// KindFaulty yields each tick, then faults on poll After, returning an
	// error, or panicking if Panic is set.
	KindFaulty Kind = `faulty`
	// KindReplaceable yields each tick, then signals Replace on poll After,
	// substituting itself with a countdown of Count.
	KindReplaceable Kind = `replaceable`
	// KindWait waits for every process named by Wait to end, then for
	// Delay, then completes.
	KindWait Kind = `wait`
)

// ErrInjectedFault is returned by KindFaulty processes.
var ErrInjectedFault = errors.New(`workload: injected fault`)

type (
	// Workload is the root of a workload file.
	Workload struct {
		// Frames is the number of frames to run, if positive.
		Frames int `yaml:"frames"`

		// FrameInterval, FixedStep, LazyInterval, and MaxFixedSteps map to
		// driver.Config, with the same defaults.
		FrameInterval time.Duration `yaml:"frame_interval"`
		FixedStep     time.Duration `yaml:"fixed_step"`
		LazyInterval  time.Duration `yaml:"lazy_interval"`
		MaxFixedSteps int           `yaml:"max_fixed_steps"`

		// CatchUp maps to procsched.WithCatchUp.
		CatchUp int `yaml:"catch_up"`

		Processes []ProcessSpec `yaml:"processes"`
	}

	// ProcessSpec describes a single process. Which fields apply depends on
	// Kind.
	ProcessSpec struct {
		Name    string        `yaml:"name"`
		Segment string        `yaml:"segment"`
		Kind    Kind          `yaml:"kind"`
		Every   time.Duration `yaml:"every"`
		Count   int           `yaml:"count"`
		After   int           `yaml:"after"`
		Panic   bool          `yaml:"panic"`
		Wait    []string      `yaml:"wait"`
		Delay   time.Duration `yaml:"delay"`
	}
)

// Load reads and validates the workload file at path.
func Load(path string) (*Workload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workload: %w", err)
	}
	w, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return w, nil
}

// Parse decodes and validates a workload. Unknown fields are rejected.
func Parse(data []byte) (*Workload, error) {
	var w Workload
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&w); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("YAML parse error: %w", err)
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &w, nil
}

// Validate checks the workload for consistency. Processes may only wait on
// processes declared before them.
func (x *Workload) Validate() error {
	if x.Frames < 0 {
		return fmt.Errorf("frames must not be negative: %d", x.Frames)
	}
	if x.FrameInterval < 0 {
		return fmt.Errorf("frame_interval must not be negative: %s", x.FrameInterval)
	}
	if x.CatchUp < 0 {
		return fmt.Errorf("catch_up must not be negative: %d", x.CatchUp)
	}
	seen := make(map[string]struct{}, len(x.Processes))
	for i := range x.Processes {
		spec := &x.Processes[i]
		if err := spec.validate(seen); err != nil {
			if spec.Name == `` {
				return fmt.Errorf("processes[%d]: %w", i, err)
			}
			return fmt.Errorf("process %q: %w", spec.Name, err)
		}
		seen[spec.Name] = struct{}{}
	}
	return nil
}

func (x *ProcessSpec) validate(seen map[string]struct{}) error {
	if x.Name == `` {
		return errors.New("name is required")
	}
	if _, ok := seen[x.Name]; ok {
		return errors.New("duplicate name")
	}
	if _, err := x.segment(); err != nil {
		return err
	}
	if x.Count < 0 || x.After < 0 || x.Every < 0 || x.Delay < 0 {
		return errors.New("count, after, every, and delay must not be negative")
	}
	switch x.Kind {
	case KindInterval, KindCountdown:
	case KindFaulty, KindReplaceable:
		if x.After == 0 {
			return fmt.Errorf("kind %s requires after", x.Kind)
		}
	case KindWait:
		for _, name := range x.Wait {
			if _, ok := seen[name]; !ok {
				return fmt.Errorf("wait references unknown or later process %q", name)
			}
		}
	case ``:
		return errors.New("kind is required")
	default:
		return fmt.Errorf("unknown kind %q", x.Kind)
	}
	return nil
}

func (x *ProcessSpec) segment() (procsched.Segment, error) {
	if x.Segment == `` {
		return procsched.SegmentUpdate, nil
	}
	return procsched.ParseSegment(x.Segment)
}

// DriverConfig returns the driver configuration.
func (x *Workload) DriverConfig() *driver.Config {
	return &driver.Config{
		FrameInterval: x.FrameInterval,
		FixedStep:     x.FixedStep,
		LazyInterval:  x.LazyInterval,
		MaxFixedSteps: x.MaxFixedSteps,
	}
}

// SchedulerOptions returns the scheduler options.
func (x *Workload) SchedulerOptions() []procsched.Option {
	return []procsched.Option{procsched.WithCatchUp(x.CatchUp)}
}
