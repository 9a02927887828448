package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/joeycumines/go-procsched/internal/trace"
	"github.com/spf13/cobra"
)

func newRunsCmd(root *rootOptions) *cobra.Command {
	var traceDB string

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List the runs recorded in a trace database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := trace.New(traceDB)
			if err != nil {
				return fmt.Errorf("open trace db: %w", err)
			}
			defer store.Close()

			runs, err := store.Runs(cmd.Context())
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}
			root.logger.Debug().
				Str(`trace_db`, traceDB).
				Int(`count`, len(runs)).
				Log(`listed runs`)

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tWORKLOAD\tSTARTED\tFRAMES\tPOLLS\tSTATUS")
			for _, r := range runs {
				status := `finished`
				if r.FinishedAt.IsZero() {
					status = `incomplete`
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
					r.ID, r.Workload, r.StartedAt.Format(time.RFC3339), r.Frames, r.Records, status)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&traceDB, "trace-db", "", "SQLite trace database")
	_ = cmd.MarkFlagRequired("trace-db")

	return cmd
}
