package sync

import (
	"fmt"

	"github.com/drivesync/drivesync/internal/drive"
	"github.com/drivesync/drivesync/internal/manifest"
)

type ActionKind string

const (
	ActionCreate ActionKind = "create"
	ActionUpdate ActionKind = "update"
	ActionDelete ActionKind = "delete"
	ActionSkip   ActionKind = "skip"
)

// Action is one step of a plan. Item is set for create, update and skip;
// Entry is set whenever the manifest already knows the remote id.
type Action struct {
	Kind      ActionKind
	Item      *drive.RemoteItem
	Entry     *manifest.Entry
	LocalPath string

	// Renamed marks the delete half of a move. The manifest entry has
	// already been replaced by the matching create, so only the old file
	// goes away.
	Renamed bool

	// PathClaimed marks a delete whose old path is the destination of
	// another create in the same plan. Only the manifest entry is dropped.
	PathClaimed bool

	// Adopt marks a skip whose entry was rebuilt from the local tree. The
	// executor records it in the manifest without touching the file.
	Adopt bool
}

// RemoteID of the item the action is about.
func (a *Action) RemoteID() string {
	if a.Item != nil {
		return a.Item.ID
	}
	if a.Entry != nil {
		return a.Entry.RemoteID
	}
	return ""
}

func (a *Action) String() string {
	switch a.Kind {
	case ActionDelete:
		return fmt.Sprintf("%s %s (%s)", a.Kind, a.LocalPath, a.RemoteID())
	default:
		return fmt.Sprintf("%s %s <- %s", a.Kind, a.LocalPath, a.Item)
	}
}

func (a *Action) isWrite() bool {
	return a.Kind == ActionCreate || a.Kind == ActionUpdate
}
