package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/drivesync/drivesync/internal/config"
	"github.com/drivesync/drivesync/internal/convert"
	"github.com/drivesync/drivesync/internal/drive"
	"github.com/drivesync/drivesync/internal/gitrepo"
	"github.com/drivesync/drivesync/internal/manifest"
	syncer "github.com/drivesync/drivesync/internal/sync"
	"github.com/drivesync/drivesync/internal/utils"
	"github.com/drivesync/drivesync/internal/workspace"
)

var errSyncFailed = errors.New("sync finished with errors")

// runSync is the root command: check tools, load credentials and config,
// take the workspace lock, run every target and optionally commit.
func runSync(cmd *cobra.Command, opts options, showPlan bool) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	pandoc := convert.NewPandoc()
	if opts.Pandoc != "" {
		pandoc.Binary = opts.Pandoc
	}
	if err := pandoc.Available(ctx); err != nil {
		return err
	}
	if v, err := pandoc.Version(ctx); err == nil {
		slog.Debug("pandoc", "binary", pandoc.Binary, "version", v)
	}

	creds, source, err := drive.LoadCredentials(opts.CredentialsFile, opts.Credentials)
	if err != nil {
		return err
	}
	client, err := drive.New(creds)
	if err != nil {
		return err
	}
	slog.Debug("credentials", "source", source, "account", client.Account())

	cfg, err := config.Load(opts.configFile())
	if err != nil {
		return err
	}

	ws, err := workspace.New(opts.BasePath, opts.StateDir)
	if err != nil {
		return err
	}
	release, err := acquireWorkspace(ws, opts.DryRun)
	if err != nil {
		return err
	}
	defer release()

	summary, err := syncAll(ctx, ws, cfg, opts, client, convert.NewRouter(pandoc))
	if summary != nil {
		renderSummary(out, summary, showPlan)
	}
	if err != nil {
		return err
	}
	if !summary.OK() {
		return errSyncFailed
	}

	if opts.Commit && !opts.DryRun {
		return commit(ctx, cmd, ws.Root)
	}
	return nil
}

// syncAll owns the manifest for the duration of the engine run. It is
// closed before committing so the database file is complete on disk.
func syncAll(ctx context.Context, ws *workspace.Workspace, cfg *config.Config, opts options, client *drive.Client, conv syncer.Converter) (*syncer.Summary, error) {
	store, err := openManifest(ws, opts.DryRun)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("failed to close manifest", "path", store.Path(), "error", err)
		}
	}()

	engine := syncer.NewEngine(syncer.EngineOptions{
		BasePath: ws.Root,
		DryRun:   opts.DryRun,
		Workers:  opts.Workers,
	}, store, client, client, conv)

	return engine.Run(ctx, cfg.Sync)
}

// acquireWorkspace prepares the state directory and takes the workspace
// lock. A dry run never creates the state directory; it only locks one
// that already exists so it does not read a manifest mid write.
func acquireWorkspace(ws *workspace.Workspace, dryRun bool) (func(), error) {
	if dryRun && !utils.DirExists(ws.StateDir) {
		return func() {}, nil
	}
	if !dryRun {
		if err := ws.Setup(); err != nil {
			return nil, err
		}
	}
	if err := ws.Lock(); err != nil {
		return nil, err
	}
	return func() {
		if err := ws.Unlock(); err != nil {
			slog.Warn("failed to release workspace lock", "error", err)
		}
	}, nil
}

// openManifest opens the store for writing, or read only for a dry run.
func openManifest(ws *workspace.Workspace, dryRun bool) (*manifest.Store, error) {
	store := manifest.New(ws.ManifestPath)
	if dryRun {
		if err := store.OpenReadOnly(); err != nil {
			return nil, err
		}
		return store, nil
	}
	if err := store.Open(); err != nil {
		return nil, err
	}
	if store.Recovered() {
		slog.Warn("manifest was unreadable and has been reset", "path", store.Path())
	}
	return store, nil
}

func commit(ctx context.Context, cmd *cobra.Command, root string) error {
	repo, err := gitrepo.Open(root)
	if err != nil {
		return err
	}
	hash, err := repo.CommitAll(ctx, gitrepo.CommitMessage(time.Now()))
	if errors.Is(err, gitrepo.ErrNothingToCommit) {
		fmt.Fprintln(cmd.OutOrStdout(), "Nothing to commit")
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Committed %s\n", green(hash[:12]))
	return nil
}
