package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/drivesync/drivesync/internal/config"
)

func init() {
	rootCmd.AddCommand(newInitCmd())
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create an example " + config.DefaultConfigFile,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := readOptions().configFile()
			if err := config.WriteExample(path); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", green("Created"), path)
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Next steps:")
			fmt.Fprintln(out, "  1. Replace YOUR_DRIVE_FOLDER_ID with the id from the folder URL")
			fmt.Fprintln(out, "  2. Share the folder with your service account email")
			fmt.Fprintf(out, "  3. Run %s to check access\n", cyan("drive-sync verify"))
			return nil
		},
	}
}
