package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/drivesync/drivesync/internal/config"
	"github.com/drivesync/drivesync/internal/logging"
	syncer "github.com/drivesync/drivesync/internal/sync"
	"github.com/drivesync/drivesync/internal/version"
)

const (
	envPrefix       = "DRIVE_SYNC"
	exitFailure     = 1
	exitInterrupted = 130
)

var (
	red   = color.New(color.FgHiRed, color.Bold).SprintFunc()
	green = color.New(color.FgHiGreen).SprintFunc()
	cyan  = color.New(color.FgHiCyan).SprintFunc()
)

var closeLog = func() error { return nil }

var rootCmd = &cobra.Command{
	Use:   "drive-sync",
	Short: "Mirror Google Drive folders into this repository as Markdown",
	Long: `drive-sync exports the Google Docs found under the configured Drive folders,
converts them to Markdown and keeps a local copy in sync: new documents are
created, modified ones rewritten and removed ones deleted.`,
	Version:       version.Detailed(),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSync(cmd, readOptions(), false)
	},
}

func init() {
	rootCmd.Flags().SortFlags = false
	rootCmd.Flags().Bool("dry-run", false, "Show what would change without writing anything")
	rootCmd.Flags().Bool("commit", false, "Commit the result to git after a successful sync")

	pf := rootCmd.PersistentFlags()
	pf.SortFlags = false
	pf.StringP("config", "c", "", "Config file (default <base-path>/"+config.DefaultConfigFile+")")
	pf.StringP("base-path", "b", ".", "Repository root the sync folders are relative to")
	pf.String("credentials", "", "Service account JSON")
	pf.String("credentials-file", "", "Path to a service account JSON key file")
	pf.IntP("workers", "w", syncer.DefaultWorkers, "Number of documents converted in parallel")
	pf.String("state-dir", "", "Directory for the manifest and lock (default <base-path>/.drive-sync)")
	pf.String("pandoc", "pandoc", "Pandoc binary")
	pf.String("log-file", "", "Also write logs to this file")
	pf.BoolP("verbose", "v", false, "Debug logging")
}

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer closeLog()

	err := rootCmd.ExecuteContext(ctx)
	switch {
	case err == nil:
		return 0
	case ctx.Err() != nil:
		printError(os.Stderr, errors.New("interrupted"))
		return exitInterrupted
	default:
		printError(os.Stderr, err)
		return exitFailure
	}
}

// setup loads .env, binds flags and env vars into viper and installs the
// logger. It runs before every command.
func setup(cmd *cobra.Command) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	closer, err := logging.Setup(logging.Options{
		Verbose: viper.GetBool("verbose"),
		LogFile: viper.GetString("log-file"),
	})
	if err != nil {
		return err
	}
	closeLog = closer

	slog.Debug("drive-sync", "version", version.Short(), "command", cmd.Name())
	return nil
}

func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "%s %s\n", red("Error:"), err)
	if h := hint(err); h != "" {
		fmt.Fprintf(w, "%s %s\n", cyan("Hint:"), h)
	}
}
