package sync

import (
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/drivesync/drivesync/internal/manifest"
)

// Plan is the ordered list of actions for one target. Every create and
// update comes before the first delete.
type Plan struct {
	Target     string
	Generation int64
	Actions    []Action
}

// Count returns the number of actions of kind.
func (p *Plan) Count(kind ActionKind) int {
	n := 0
	for i := range p.Actions {
		if p.Actions[i].Kind == kind {
			n++
		}
	}
	return n
}

// HasChanges is true when anything other than skips is planned.
func (p *Plan) HasChanges() bool {
	return len(p.Actions) > p.Count(ActionSkip)
}

// Changes returns the non-skip actions in plan order.
func (p *Plan) Changes() []Action {
	var out []Action
	for _, a := range p.Actions {
		if a.Kind != ActionSkip {
			out = append(out, a)
		}
	}
	return out
}

// BuildPlan diffs a projected tree against a manifest snapshot. It has no
// side effects.
func BuildPlan(projected []Projected, snap *manifest.Snapshot) *Plan {
	var (
		writes  []Action
		skips   []Action
		deletes []Action
		seen    = mapset.NewThreadUnsafeSetWithSize[string](len(projected))
		claimed = mapset.NewThreadUnsafeSetWithSize[string](len(projected))
	)

	for _, p := range projected {
		claimed.Add(p.Path)
	}

	for i := range projected {
		p := projected[i]
		item := p.Item
		seen.Add(item.ID)

		entry, ok := snap.Get(item.ID)
		switch {
		case !ok:
			writes = append(writes, Action{Kind: ActionCreate, Item: &item, LocalPath: p.Path})

		case entry.LocalPath != p.Path:
			e := entry
			writes = append(writes, Action{Kind: ActionCreate, Item: &item, Entry: &e, LocalPath: p.Path})
			if !claimed.Contains(entry.LocalPath) {
				deletes = append(deletes, Action{Kind: ActionDelete, Entry: &e, LocalPath: entry.LocalPath, Renamed: true})
			}

		case isNewer(item.ModifiedTime, entry.ModifiedTime):
			e := entry
			writes = append(writes, Action{Kind: ActionUpdate, Item: &item, Entry: &e, LocalPath: p.Path})

		default:
			e := entry
			skips = append(skips, Action{Kind: ActionSkip, Item: &item, Entry: &e, LocalPath: p.Path, Adopt: snap.Rebuilt})
		}
	}

	for _, entry := range snap.Entries() {
		if seen.Contains(entry.RemoteID) {
			continue
		}
		e := entry
		deletes = append(deletes, Action{
			Kind:        ActionDelete,
			Entry:       &e,
			LocalPath:   entry.LocalPath,
			PathClaimed: claimed.Contains(entry.LocalPath),
		})
	}

	actions := make([]Action, 0, len(writes)+len(skips)+len(deletes))
	actions = append(actions, writes...)
	actions = append(actions, skips...)
	actions = append(actions, deletes...)

	return &Plan{
		Target:     snap.Target,
		Generation: snap.Generation,
		Actions:    actions,
	}
}

// isNewer compares RFC 3339 timestamps, falling back to string order when
// either side does not parse.
func isNewer(remote, stored string) bool {
	r, rerr := time.Parse(time.RFC3339Nano, remote)
	s, serr := time.Parse(time.RFC3339Nano, stored)
	if rerr != nil || serr != nil {
		return remote > stored
	}
	return r.After(s)
}
