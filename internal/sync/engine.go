package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/drivesync/drivesync/internal/config"
	"github.com/drivesync/drivesync/internal/manifest"
	"github.com/drivesync/drivesync/internal/utils"
)

type EngineOptions struct {
	// BasePath is the repository root all github_folder values are
	// relative to.
	BasePath string
	DryRun   bool
	Workers  int
}

// Engine runs one pass of projector, planner and executor per target.
type Engine struct {
	opts      EngineOptions
	store     Manifest
	projector *Projector
	executor  *Executor
}

func NewEngine(opts EngineOptions, store Manifest, lister Lister, exporter Exporter, converter Converter) *Engine {
	return &Engine{
		opts:      opts,
		store:     store,
		projector: NewProjector(lister, converter),
		executor:  NewExecutor(store, exporter, converter, WithWorkers(opts.Workers), WithDryRun(opts.DryRun)),
	}
}

// TargetReport is the outcome for one configured target.
type TargetReport struct {
	Target   config.Target
	Root     string
	Plan     *Plan
	Result   *Result
	Rebuilt  int
	Err      error
	Duration time.Duration
}

// Summary covers a whole invocation.
type Summary struct {
	RunID    string
	DryRun   bool
	Targets  []*TargetReport
	Duration time.Duration
}

// Totals sums all targets. An unreachable target counts as one failure.
func (s *Summary) Totals() manifest.RunCounts {
	var c manifest.RunCounts
	for _, t := range s.Targets {
		if t.Err != nil {
			c.Failed++
		}
		if t.Result == nil {
			continue
		}
		c.Created += t.Result.Created
		c.Updated += t.Result.Updated
		c.Deleted += t.Result.Deleted
		c.Skipped += t.Result.Skipped
		c.Failed += t.Result.Failed()
	}
	return c
}

// OK is true when nothing failed.
func (s *Summary) OK() bool {
	return s.Totals().Failed == 0
}

// Run syncs targets in configuration order. A failing target never stops
// the others; only cancellation ends the run early.
func (e *Engine) Run(ctx context.Context, targets []config.Target) (*Summary, error) {
	start := time.Now()
	summary := &Summary{RunID: uuid.NewString(), DryRun: e.opts.DryRun}

	// a dry run leaves no trace in the manifest, not even in the run log
	if !e.opts.DryRun {
		if err := e.store.StartRun(summary.RunID, false); err != nil {
			slog.Warn("failed to record run start", "run", summary.RunID, "error", err)
		}
	}
	slog.Info("sync start", "run", summary.RunID, "targets", len(targets), "dryRun", e.opts.DryRun)

	var runErr error
	for _, target := range targets {
		report := e.syncTarget(ctx, target)
		summary.Targets = append(summary.Targets, report)

		if ctx.Err() != nil {
			runErr = ctx.Err()
			break
		}
	}
	summary.Duration = time.Since(start)

	totals := summary.Totals()
	if !e.opts.DryRun {
		if err := e.store.FinishRun(summary.RunID, totals); err != nil {
			slog.Warn("failed to record run end", "run", summary.RunID, "error", err)
		}
	}
	slog.Info("sync end",
		"run", summary.RunID,
		"created", totals.Created,
		"updated", totals.Updated,
		"deleted", totals.Deleted,
		"skipped", totals.Skipped,
		"failed", totals.Failed,
		"took", summary.Duration,
	)

	return summary, runErr
}

func (e *Engine) syncTarget(ctx context.Context, target config.Target) *TargetReport {
	start := time.Now()
	report := &TargetReport{Target: target}
	defer func() { report.Duration = time.Since(start) }()

	key := target.Key()
	root, err := utils.JoinUnder(e.opts.BasePath, key)
	if err != nil {
		report.Err = err
		slog.Error("sync target", "target", key, "error", err)
		return report
	}
	report.Root = root

	ignore := NewIgnoreList(root)
	ignore.Load()

	projected, err := e.projector.Project(ctx, target, ignore)
	if err != nil {
		report.Err = err
		if !errors.Is(err, context.Canceled) {
			slog.Error("sync target", "target", key, "folder", target.DriveFolderID, "error", err)
		}
		return report
	}

	snap, rebuilt, err := e.snapshot(key, root)
	if err != nil {
		report.Err = err
		slog.Error("sync target", "target", key, "error", err)
		return report
	}
	report.Rebuilt = rebuilt

	plan := BuildPlan(projected, snap)
	report.Plan = plan
	slog.Debug("plan", "target", key, "generation", plan.Generation,
		"create", plan.Count(ActionCreate),
		"update", plan.Count(ActionUpdate),
		"delete", plan.Count(ActionDelete),
		"skip", plan.Count(ActionSkip),
	)

	result, err := e.executor.Execute(ctx, root, plan)
	report.Result = result
	if err != nil {
		report.Err = err
		return report
	}

	if !e.opts.DryRun {
		if _, err := e.store.BumpGeneration(key); err != nil {
			slog.Warn("failed to bump manifest generation", "target", key, "error", err)
		}
	}
	return report
}

// snapshot loads the manifest for key, rebuilding it from frontmatter when
// it is empty but the target root already holds mirrored files. Rebuilt
// entries are only stored once the executor has applied the plan.
func (e *Engine) snapshot(key, root string) (*manifest.Snapshot, int, error) {
	snap, err := e.store.Snapshot(key)
	if err != nil {
		return nil, 0, fmt.Errorf("load manifest: %w", err)
	}
	if snap.Len() > 0 {
		return snap, 0, nil
	}

	entries, err := RebuildEntries(root, key)
	if err != nil {
		return nil, 0, fmt.Errorf("rebuild manifest: %w", err)
	}
	if len(entries) == 0 {
		return snap, 0, nil
	}

	slog.Info("rebuilding manifest from existing files", "target", key, "files", len(entries))
	rebuilt := manifest.NewSnapshot(key, snap.Generation, entries)
	rebuilt.Rebuilt = true
	return rebuilt, len(entries), nil
}
