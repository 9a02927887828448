package main

import (
	"github.com/joeycumines/go-procsched/internal/logging"
	"github.com/joeycumines/logiface"
	"github.com/spf13/cobra"
)

// rootOptions holds the persistent flags, and the logger built from them.
type rootOptions struct {
	logLevel string
	debug    bool
	logger   *logiface.Logger[logiface.Event]
}

func newRootCmd() *cobra.Command {
	var opts rootOptions

	root := &cobra.Command{
		Use:   "procsched",
		Short: "Cooperative process scheduler simulator",
		Long: `procsched drives YAML-defined workloads of cooperative processes through
the scheduler, frame by frame, reporting how each process progressed.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.debug {
				opts.logLevel = `debug`
			}
			level, err := logging.ParseLevel(opts.logLevel)
			if err != nil {
				return err
			}
			opts.logger = logging.New(cmd.ErrOrStderr(), level)
			return nil
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "Log level (trace, debug, info, warn, error, off)")

	root.AddCommand(
		newRunCmd(&opts),
		newRunsCmd(&opts),
		newVersionCmd(),
	)

	return root
}
