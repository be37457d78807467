package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/drivesync/drivesync/internal/config"
	"github.com/drivesync/drivesync/internal/drive"
)

var errVerifyFailed = errors.New("one or more folders are not accessible")

func init() {
	rootCmd.AddCommand(newVerifyCmd())
}

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check credentials and access to every configured folder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			opts := readOptions()

			creds, source, err := drive.LoadCredentials(opts.CredentialsFile, opts.Credentials)
			if err != nil {
				return err
			}
			client, err := drive.New(creds)
			if err != nil {
				return err
			}
			cfg, err := config.Load(opts.configFile())
			if err != nil {
				return err
			}

			if err := client.Verify(ctx); err != nil {
				return err
			}
			fmt.Fprintf(out, "%s credentials from %s (%s)\n", okMark(), source, client.Account())

			failed := false
			for _, target := range cfg.Sync {
				item, err := client.GetItem(ctx, target.DriveFolderID)
				if err == nil && !item.IsFolder() {
					err = fmt.Errorf("%s is a %s, not a folder", target.DriveFolderID, item.Kind)
				}
				if err != nil {
					failed = true
					fmt.Fprintf(out, "%s %s: %v\n", failMark(), target, err)
					if h := drive.Hint(err); h != "" {
						fmt.Fprintf(out, "    %s\n", gray.Render(h))
					}
					continue
				}

				children, err := client.ListChildren(ctx, item.ID)
				if err != nil {
					failed = true
					fmt.Fprintf(out, "%s %s: %v\n", failMark(), target, err)
					continue
				}
				files, folders := 0, 0
				for i := range children {
					if children[i].IsFolder() {
						folders++
					} else {
						files++
					}
				}
				fmt.Fprintf(out, "%s %s -> %s %s\n",
					okMark(), highlight.Render(item.Name), target.Key(),
					gray.Render(fmt.Sprintf("(%d files, %d subfolders)", files, folders)))
			}

			if failed {
				return errVerifyFailed
			}
			return nil
		},
	}
}
