package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/joeycumines/go-procsched"
	"github.com/joeycumines/go-procsched/driver"
	"github.com/joeycumines/go-procsched/internal/trace"
	"github.com/joeycumines/go-procsched/internal/workload"
	"github.com/joeycumines/logiface"
	"github.com/spf13/cobra"
)

const defaultFrames = 600

type (
	runOptions struct {
		workloadPath string
		frames       int
		realtime     bool
		traceDB      string
	}

	// simulation is a single run of a workload.
	simulation struct {
		workload *workload.Workload
		name     string
		frames   int
		realtime bool
		logger   *logiface.Logger[logiface.Event]
		store    *trace.Store
	}

	// report summarizes a finished simulation.
	report struct {
		runID     uuid.UUID
		frames    uint64
		elapsed   time.Duration
		dropped   uint64
		processes []processReport
	}

	processReport struct {
		name    string
		segment procsched.Segment
		polls   int
		state   string
	}
)

func newRunCmd(root *rootOptions) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run [workload-file]",
		Short: "Run a workload through the scheduler",
		Long: `Runs every process in the workload file, for a number of frames, then
prints a summary of each process. By default, frames are simulated as fast
as possible, using the workload's frame interval as the frame clock.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				if opts.workloadPath != `` {
					return errors.New("workload specified twice")
				}
				opts.workloadPath = args[0]
			}
			if opts.workloadPath == `` {
				return errors.New("workload file is required")
			}

			w, err := workload.Load(opts.workloadPath)
			if err != nil {
				return err
			}

			sim := simulation{
				workload: w,
				name:     opts.workloadPath,
				frames:   opts.frames,
				realtime: opts.realtime,
				logger:   root.logger,
			}
			if sim.frames == 0 {
				sim.frames = w.Frames
			}
			if sim.frames == 0 && !sim.realtime {
				sim.frames = defaultFrames
			}

			root.logger.Debug().
				Str(`workload`, opts.workloadPath).
				Int(`processes`, len(w.Processes)).
				Int(`frames`, sim.frames).
				Bool(`realtime`, sim.realtime).
				Log(`workload loaded`)

			if opts.traceDB != `` {
				store, err := trace.New(opts.traceDB)
				if err != nil {
					return fmt.Errorf("open trace db: %w", err)
				}
				defer store.Close()
				sim.store = store
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			r, err := sim.run(ctx)
			if err != nil {
				return err
			}
			return r.write(cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&opts.workloadPath, "workload", "w", "", "Workload YAML file")
	cmd.Flags().IntVarP(&opts.frames, "frames", "n", 0, fmt.Sprintf("Frames to run (default: the workload's frames, or %d)", defaultFrames))
	cmd.Flags().BoolVar(&opts.realtime, "realtime", false, "Run frames against the wall clock, until frames complete or interrupted")
	cmd.Flags().StringVar(&opts.traceDB, "trace-db", "", "Record every poll to this SQLite database")

	return cmd
}

func (x *simulation) run(ctx context.Context) (*report, error) {
	if x.frames < 0 {
		return nil, fmt.Errorf("frames must not be negative: %d", x.frames)
	}

	// trace writes must outlive the driver's context
	traceCtx := context.WithoutCancel(ctx)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		d        *driver.Driver
		faulted  = make(map[procsched.Handle]bool)
		polls    = make(map[string]int)
		traceRun *trace.Run
		traceErr error
	)

	if x.store != nil {
		var err error
		if traceRun, err = x.store.BeginRun(traceCtx, x.name, time.Now()); err != nil {
			return nil, err
		}
	}

	opts := append(x.workload.SchedulerOptions(),
		procsched.WithLogger(x.logger),
		procsched.WithErrorHandler(func(h procsched.Handle, err error) {
			faulted[h] = true
			x.logger.Warning().
				Err(err).
				Stringer(`handle`, h).
				Log(`process faulted`)
		}),
		procsched.WithPreTickHook(func(seg procsched.Segment, now, delta time.Duration) {
			// late update is the last segment ticked every frame
			if seg == procsched.SegmentLateUpdate && x.frames > 0 && d.Frames() >= uint64(x.frames) {
				cancel()
			}
		}),
	)
	s, err := procsched.New(opts...)
	if err != nil {
		return nil, err
	}

	spawned, err := x.workload.Spawn(s, func(e workload.Event) {
		polls[e.Name]++
		if traceRun == nil || traceErr != nil {
			return
		}
		rec := trace.Record{
			Frame:       d.Frames(),
			Segment:     e.Segment.String(),
			Name:        e.Name,
			Handle:      e.Handle.String(),
			Now:         e.Now,
			Instruction: e.Instruction.String(),
		}
		if e.Err != nil {
			rec.Err = e.Err.Error()
		}
		traceErr = traceRun.Add(traceCtx, rec)
	})
	if err != nil {
		return nil, err
	}

	d = driver.New(s, x.workload.DriverConfig(), x.logger)

	started := time.Now()
	if x.realtime {
		if err := d.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return nil, err
		}
	} else {
		interval := x.workload.FrameInterval
		if interval <= 0 {
			interval = time.Second / 60
		}
		for frame := 0; frame < x.frames && ctx.Err() == nil; frame++ {
			d.Step(time.Duration(frame) * interval)
		}
	}

	r := report{
		frames:  d.Frames(),
		elapsed: time.Since(started),
		dropped: d.DroppedFixedSteps(),
	}

	for _, name := range spawned.Names {
		h := spawned.Handles[name]
		p := processReport{
			name:    name,
			segment: h.Segment(),
			polls:   polls[name],
		}
		switch {
		case s.IsPaused(h):
			p.state = `paused`
		case s.IsActive(h):
			p.state = `active`
		case faulted[h]:
			p.state = `faulted`
		default:
			p.state = `completed`
		}
		r.processes = append(r.processes, p)
	}

	if traceRun != nil {
		if traceErr != nil {
			return nil, fmt.Errorf("trace: %w", traceErr)
		}
		if err := traceRun.Finish(traceCtx, r.frames, time.Now()); err != nil {
			return nil, fmt.Errorf("trace: %w", err)
		}
		r.runID = traceRun.ID
	}

	x.logger.Info().
		Uint64(`frames`, r.frames).
		Dur(`elapsed`, r.elapsed).
		Int(`processes`, len(r.processes)).
		Log(`run complete`)

	return &r, nil
}

func (x *report) write(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if x.runID != uuid.Nil {
		fmt.Fprintf(tw, "run:\t%s\n", x.runID)
	}
	fmt.Fprintf(tw, "frames:\t%d\n", x.frames)
	if x.dropped != 0 {
		fmt.Fprintf(tw, "dropped fixed steps:\t%d\n", x.dropped)
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "NAME\tSEGMENT\tPOLLS\tSTATE")
	for _, p := range x.processes {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", p.name, p.segment, p.polls, p.state)
	}
	return tw.Flush()
}
