package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/drivesync/drivesync/internal/drive"
	"github.com/drivesync/drivesync/internal/frontmatter"
	"github.com/drivesync/drivesync/internal/manifest"
	"github.com/drivesync/drivesync/internal/utils"
)

const (
	DefaultWorkers = 4
	filePerm       = 0o644
)

// Result is what Execute did, or in dry-run mode would have done.
type Result struct {
	Target   string
	Created  int
	Updated  int
	Deleted  int
	Skipped  int
	Written  []string
	Removed  []string
	Bytes    uint64
	Failures []*ItemFailure
}

func (r *Result) Failed() int {
	return len(r.Failures)
}

type ExecutorOption func(*Executor)

func WithWorkers(n int) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.workers = n
		}
	}
}

func WithDryRun(dryRun bool) ExecutorOption {
	return func(e *Executor) {
		e.dryRun = dryRun
	}
}

// Executor applies plans. It is the only component that mutates the
// manifest or the target tree.
type Executor struct {
	store     ManifestWriter
	exporter  Exporter
	converter Converter
	workers   int
	dryRun    bool
	now       func() time.Time
}

func NewExecutor(store ManifestWriter, exporter Exporter, converter Converter, opts ...ExecutorOption) *Executor {
	e := &Executor{
		store:     store,
		exporter:  exporter,
		converter: converter,
		workers:   DefaultWorkers,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// executeRun carries the mutable state of one Execute call.
type executeRun struct {
	root   string
	target string
	res    *Result
	failed mapset.Set[string]
	mu     sync.Mutex
}

func (r *executeRun) fail(a *Action, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failLocked(a, err)
}

func (r *executeRun) failLocked(a *Action, err error) {
	r.res.Failures = append(r.res.Failures, &ItemFailure{Action: a.Kind, ID: a.RemoteID(), Path: a.LocalPath, Err: err})
	r.failed.Add(a.RemoteID())
}

// Execute runs writes on a bounded pool, then deletes serially. Item
// failures are collected in the result; the returned error is only set
// when ctx is cancelled.
func (e *Executor) Execute(ctx context.Context, root string, plan *Plan) (*Result, error) {
	run := &executeRun{
		root:   root,
		target: plan.Target,
		res:    &Result{Target: plan.Target},
		failed: mapset.NewThreadUnsafeSet[string](),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	for i := range plan.Actions {
		a := &plan.Actions[i]
		switch {
		case a.Kind == ActionSkip:
			e.skip(run, a)
		case a.isWrite():
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				e.write(gctx, run, a)
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return run.res, err
	}
	if err := ctx.Err(); err != nil {
		return run.res, err
	}

	for i := range plan.Actions {
		a := &plan.Actions[i]
		if a.Kind != ActionDelete {
			continue
		}
		if err := ctx.Err(); err != nil {
			return run.res, err
		}
		e.delete(run, a)
	}

	return run.res, nil
}

func (e *Executor) write(ctx context.Context, run *executeRun, a *Action) {
	item := a.Item

	absPath, err := utils.JoinUnder(run.root, a.LocalPath)
	if err != nil {
		run.fail(a, fmt.Errorf("%w: %w", ErrWriteFailed, err))
		return
	}

	if e.dryRun {
		run.mu.Lock()
		run.count(a)
		run.res.Written = append(run.res.Written, a.LocalPath)
		run.mu.Unlock()
		slog.Info("sync", "op", a.Kind, "status", "DryRun", "target", run.target, "path", a.LocalPath, "id", item.ID)
		return
	}

	data, format, err := e.exporter.Export(ctx, item)
	if err != nil {
		run.fail(a, fmt.Errorf("%w: %w", ErrExportFailed, err))
		slog.Error("sync", "op", a.Kind, "status", "Error", "target", run.target, "path", a.LocalPath, "id", item.ID, "error", err)
		return
	}

	body, err := e.converter.Convert(ctx, data, format)
	if err != nil {
		run.fail(a, fmt.Errorf("%w: convert %s: %w", ErrExportFailed, format, err))
		slog.Error("sync", "op", a.Kind, "status", "Error", "target", run.target, "path", a.LocalPath, "id", item.ID, "error", err)
		return
	}

	content, err := frontmatter.Render(frontmatter.Metadata{
		Title:        item.Name,
		DriveID:      item.ID,
		DriveURL:     drive.WebURL(item.ID),
		ModifiedTime: item.ModifiedTime,
		Source:       frontmatter.SourceGoogleDrive,
	}, body)
	if err != nil {
		run.fail(a, fmt.Errorf("%w: %w", ErrWriteFailed, err))
		return
	}

	if err := utils.WriteFileAtomic(absPath, content, filePerm); err != nil {
		run.fail(a, fmt.Errorf("%w: %w", ErrWriteFailed, err))
		slog.Error("sync", "op", a.Kind, "status", "Error", "target", run.target, "path", a.LocalPath, "id", item.ID, "error", err)
		return
	}

	hash, err := utils.FileHash(absPath)
	if err != nil {
		run.fail(a, fmt.Errorf("%w: verify: %w", ErrWriteFailed, err))
		return
	}
	if want := utils.BytesHash(content); hash != want {
		run.fail(a, fmt.Errorf("%w: verify: hash %s, want %s", ErrWriteFailed, hash, want))
		return
	}

	run.mu.Lock()
	defer run.mu.Unlock()

	err = e.store.Put(manifest.Entry{
		Target:       run.target,
		RemoteID:     item.ID,
		LocalPath:    a.LocalPath,
		ModifiedTime: item.ModifiedTime,
		ContentHash:  hash,
		SyncedAt:     e.now(),
	})
	if err != nil {
		run.failLocked(a, fmt.Errorf("%w: manifest: %w", ErrWriteFailed, err))
		return
	}

	run.count(a)
	run.res.Written = append(run.res.Written, a.LocalPath)
	run.res.Bytes += uint64(len(content))
	slog.Info("sync", "op", a.Kind, "status", "Completed", "target", run.target, "path", a.LocalPath, "size", humanize.Bytes(uint64(len(content))))
}

// skip counts an unchanged item. Adopted entries are stored as they were
// rebuilt; the file itself is already current.
func (e *Executor) skip(run *executeRun, a *Action) {
	run.mu.Lock()
	defer run.mu.Unlock()

	if a.Adopt && a.Entry != nil && !e.dryRun {
		entry := *a.Entry
		entry.Target = run.target
		if err := e.store.Put(entry); err != nil {
			run.failLocked(a, fmt.Errorf("%w: manifest: %w", ErrWriteFailed, err))
			return
		}
		slog.Debug("sync", "op", a.Kind, "status", "Adopted", "target", run.target, "path", a.LocalPath, "id", a.RemoteID())
	}
	run.res.Skipped++
}

func (r *executeRun) count(a *Action) {
	switch a.Kind {
	case ActionCreate:
		r.res.Created++
	case ActionUpdate:
		r.res.Updated++
	case ActionDelete:
		r.res.Deleted++
	}
}

func (e *Executor) delete(run *executeRun, a *Action) {
	id := a.RemoteID()

	// the new copy was never written, keep the old one
	if a.Renamed && run.failed.Contains(id) {
		slog.Warn("sync", "op", a.Kind, "status", "Skipped", "target", run.target, "path", a.LocalPath, "id", id, "reason", "move failed")
		return
	}

	absPath, err := utils.JoinUnder(run.root, a.LocalPath)
	if err != nil {
		run.fail(a, fmt.Errorf("%w: %w", ErrWriteFailed, err))
		return
	}

	if e.dryRun {
		run.count(a)
		if !a.PathClaimed {
			run.res.Removed = append(run.res.Removed, a.LocalPath)
		}
		slog.Info("sync", "op", a.Kind, "status", "DryRun", "target", run.target, "path", a.LocalPath, "id", id)
		return
	}

	if !a.PathClaimed {
		err := os.Remove(absPath)
		switch {
		case err == nil:
			run.res.Removed = append(run.res.Removed, a.LocalPath)
		case errors.Is(err, os.ErrNotExist):
			slog.Debug("sync", "op", a.Kind, "target", run.target, "path", a.LocalPath, "message", "file was already deleted")
		default:
			run.fail(a, fmt.Errorf("%w: %w", ErrWriteFailed, err))
			slog.Error("sync", "op", a.Kind, "status", "Error", "target", run.target, "path", a.LocalPath, "error", err)
			return
		}
	}

	if !a.Renamed {
		if err := e.store.Delete(run.target, id); err != nil {
			run.fail(a, fmt.Errorf("%w: manifest: %w", ErrWriteFailed, err))
			return
		}
	}

	if err := utils.RemoveEmptyParents(run.root, filepath.Dir(absPath)); err != nil {
		slog.Warn("failed to prune empty directories", "target", run.target, "path", a.LocalPath, "error", err)
	}

	run.count(a)
	slog.Info("sync", "op", a.Kind, "status", "Completed", "target", run.target, "path", a.LocalPath, "id", id)
}
