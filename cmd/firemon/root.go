package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"firemon/internal/app"
)

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "firemon",
		Short:         "Wildfire change detection and publication daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.AddCommand(newRunCommand())
	return rootCmd
}

func newRunCommand() *cobra.Command {
	opts := app.Options{}
	var port int

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Poll the feed and publish change updates",
		RunE: func(cmd *cobra.Command, args []string) error {
			if port > 0 {
				opts.WebAddr = fmt.Sprintf("127.0.0.1:%d", port)
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return app.Run(ctx, opts)
		},
	}

	runCmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "./config.yaml", "configuration file path")
	runCmd.Flags().StringVarP(&opts.OutputDir, "output-dir", "o", "./data", "output directory for state, audits, and media")
	runCmd.Flags().StringVar(&opts.StateFile, "state-file", "", "override the persisted snapshot path")
	runCmd.Flags().BoolVar(&opts.Once, "once", false, "run one cycle, drain the queue, and exit")
	runCmd.Flags().BoolVar(&opts.Post, "post", false, "actually post to the channel (default is a logged dry run)")
	runCmd.Flags().BoolVar(&opts.Debug, "debug", false, "debug logging, 5s polling, and synthetic deltas")
	runCmd.Flags().IntVar(&port, "port", 0, "override the artifact server port")

	return runCmd
}
