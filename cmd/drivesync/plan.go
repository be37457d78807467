package main

import (
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newPlanCmd())
}

func newPlanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Print every change the next sync would make, without applying it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := readOptions()
			opts.DryRun = true
			opts.Commit = false
			return runSync(cmd, opts, true)
		},
	}
}
