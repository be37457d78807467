package sync

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/drivesync/drivesync/internal/config"
	"github.com/drivesync/drivesync/internal/drive"
	"github.com/drivesync/drivesync/internal/glob"
	"github.com/drivesync/drivesync/internal/pathmap"
)

// Projected is a remote leaf together with its local path relative to the
// target root.
type Projected struct {
	Item drive.RemoteItem
	Path string
}

// Projector flattens a remote folder tree into the list of leaves that
// will be mirrored.
type Projector struct {
	lister    Lister
	converter Converter
}

func NewProjector(lister Lister, converter Converter) *Projector {
	return &Projector{lister: lister, converter: converter}
}

type walkState struct {
	target  config.Target
	ignore  *IgnoreList
	folders mapset.Set[string]
	leaves  mapset.Set[string]
	out     []Projected
}

// Project walks the target depth first. Any listing failure aborts the
// whole target with ErrTargetUnreachable, since a partial tree would turn
// into spurious deletes. The result is sorted by path.
func (p *Projector) Project(ctx context.Context, target config.Target, ignore *IgnoreList) ([]Projected, error) {
	root, err := p.lister.GetItem(ctx, target.DriveFolderID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrTargetUnreachable, target.DriveFolderID, err)
	}
	if !root.IsFolder() {
		return nil, fmt.Errorf("%w: %s is not a folder (%s)", ErrTargetUnreachable, target.DriveFolderID, root.MimeType)
	}

	st := &walkState{
		target:  target,
		ignore:  ignore,
		folders: mapset.NewThreadUnsafeSet[string](root.ID),
		leaves:  mapset.NewThreadUnsafeSet[string](),
	}
	if err := p.walk(ctx, st, root.ID, nil); err != nil {
		return nil, err
	}

	sort.Slice(st.out, func(i, j int) bool { return st.out[i].Path < st.out[j].Path })
	slog.Debug("projected", "target", target.Key(), "folder", root.Name, "items", len(st.out))
	return st.out, nil
}

func (p *Projector) walk(ctx context.Context, st *walkState, folderID string, ancestry []pathmap.Segment) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	children, err := p.lister.ListChildren(ctx, folderID)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: list %s: %w", ErrTargetUnreachable, folderID, err)
	}

	// Drive allows the same item under several parents; visit by id order
	// so the first path an item gets is stable.
	slices.SortFunc(children, func(a, b drive.RemoteItem) int { return cmp.Compare(a.ID, b.ID) })

	var (
		kept     []drive.RemoteItem
		segments []pathmap.Segment
	)
	for _, child := range children {
		if !p.keep(st, &child) {
			continue
		}
		kept = append(kept, child)
		segments = append(segments, pathmap.Segment{Name: child.Name, RemoteID: child.ID, IsFolder: child.IsFolder()})
	}

	for i, seg := range pathmap.ResolveSiblings(segments) {
		child := kept[i]
		childAncestry := append(slices.Clone(ancestry), seg)

		if child.IsFolder() {
			if st.folders.Contains(child.ID) {
				continue
			}
			st.folders.Add(child.ID)
			if err := p.walk(ctx, st, child.ID, childAncestry); err != nil {
				return err
			}
			continue
		}

		relPath := pathmap.MapPath(childAncestry)
		if st.ignore.ShouldIgnore(relPath) {
			slog.Debug("project skip", "reason", "ignore file", "path", relPath, "id", child.ID)
			continue
		}
		if st.leaves.Contains(child.ID) {
			slog.Debug("project skip", "reason", "already mapped", "path", relPath, "id", child.ID)
			continue
		}
		st.leaves.Add(child.ID)
		st.out = append(st.out, Projected{Item: child, Path: relPath})
	}

	return nil
}

func (p *Projector) keep(st *walkState, item *drive.RemoteItem) bool {
	if item.IsFolder() {
		if glob.Matches(item.Name, st.target.ExcludeFolders) {
			slog.Debug("project skip", "reason", "excluded folder", "name", item.Name, "id", item.ID)
			return false
		}
		return true
	}

	if glob.Matches(item.Name, st.target.ExcludeFiles) {
		slog.Debug("project skip", "reason", "excluded file", "name", item.Name, "id", item.ID)
		return false
	}
	if item.IsNativeOther() || !p.converter.Supports(item.ExportFormat()) {
		slog.Debug("project skip", "reason", "no converter", "name", item.Name, "mime", item.MimeType)
		return false
	}
	return true
}
