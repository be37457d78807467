package sync

import (
	"context"

	"github.com/drivesync/drivesync/internal/drive"
	"github.com/drivesync/drivesync/internal/manifest"
)

// Lister reads the remote hierarchy.
type Lister interface {
	GetItem(ctx context.Context, id string) (*drive.RemoteItem, error)
	ListChildren(ctx context.Context, folderID string) ([]drive.RemoteItem, error)
}

// Exporter fetches the bytes of a leaf item and reports their mime type.
type Exporter interface {
	Export(ctx context.Context, item *drive.RemoteItem) ([]byte, string, error)
}

// Converter turns exported bytes into Markdown.
type Converter interface {
	Convert(ctx context.Context, data []byte, format string) (string, error)
	Supports(format string) bool
}

// ManifestWriter is the part of the manifest the executor mutates.
type ManifestWriter interface {
	Put(e manifest.Entry) error
	Delete(target, remoteID string) error
}

// Manifest is everything the engine needs from the store.
type Manifest interface {
	ManifestWriter
	Snapshot(target string) (*manifest.Snapshot, error)
	BumpGeneration(target string) (int64, error)
	StartRun(id string, dryRun bool) error
	FinishRun(id string, counts manifest.RunCounts) error
}
