package sync

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/drivesync/drivesync/internal/drive"
	"github.com/drivesync/drivesync/internal/manifest"
)

const (
	t1 = "2024-03-01T10:00:00.000Z"
	t2 = "2024-03-02T10:00:00.000Z"
)

// fakeRemote is an in-memory Drive.
type fakeRemote struct {
	mu        sync.Mutex
	items     map[string]drive.RemoteItem
	children  map[string][]string
	content   map[string]string
	listErr   map[string]error
	exportErr map[string]error
	exports   int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		items:     map[string]drive.RemoteItem{},
		children:  map[string][]string{},
		content:   map[string]string{},
		listErr:   map[string]error{},
		exportErr: map[string]error{},
	}
}

func (f *fakeRemote) add(parent string, item drive.RemoteItem, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item.ParentID = parent
	if _, exists := f.items[item.ID]; !exists && parent != "" {
		f.children[parent] = append(f.children[parent], item.ID)
	}
	f.items[item.ID] = item
	f.content[item.ID] = content
}

func (f *fakeRemote) folder(id, parent, name string) {
	f.add(parent, drive.RemoteItem{ID: id, Name: name, Kind: drive.KindFolder, MimeType: drive.MimeFolder}, "")
}

func (f *fakeRemote) doc(id, parent, name, modified, content string) {
	f.add(parent, drive.RemoteItem{ID: id, Name: name, Kind: drive.KindDocument, MimeType: drive.MimeGoogleDoc, ModifiedTime: modified}, content)
}

func (f *fakeRemote) file(id, parent, name, mime, modified, content string) {
	f.add(parent, drive.RemoteItem{ID: id, Name: name, Kind: drive.KindOf(mime), MimeType: mime, ModifiedTime: modified}, content)
}

func (f *fakeRemote) remove(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item := f.items[id]
	delete(f.items, id)
	ids := f.children[item.ParentID]
	for i, c := range ids {
		if c == id {
			f.children[item.ParentID] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
}

func (f *fakeRemote) GetItem(_ context.Context, id string) (*drive.RemoteItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", id, drive.ErrNotFound)
	}
	return &item, nil
}

func (f *fakeRemote) ListChildren(_ context.Context, folderID string) ([]drive.RemoteItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.listErr[folderID]; err != nil {
		return nil, err
	}
	var out []drive.RemoteItem
	for _, id := range f.children[folderID] {
		out = append(out, f.items[id])
	}
	return out, nil
}

func (f *fakeRemote) Export(_ context.Context, item *drive.RemoteItem) ([]byte, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exports++
	if err := f.exportErr[item.ID]; err != nil {
		return nil, "", err
	}
	return []byte(f.content[item.ID]), item.ExportFormat(), nil
}

func (f *fakeRemote) exportCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exports
}

// fakeConverter passes content through for docx and Markdown.
type fakeConverter struct{}

func (fakeConverter) Supports(format string) bool {
	return format == drive.MimeDocx || format == drive.MimeMarkdown
}

func (fakeConverter) Convert(_ context.Context, data []byte, format string) (string, error) {
	if format == drive.MimeDocx && string(data) == "corrupt" {
		return "", fmt.Errorf("pandoc: unreadable docx")
	}
	return string(data), nil
}

func openManifest(t *testing.T) *manifest.Store {
	t.Helper()
	store := manifest.New(filepath.Join(t.TempDir(), "state", "manifest.db"))
	require.NoError(t, store.Open())
	t.Cleanup(func() { store.Close() })
	return store
}

func snapshot(t *testing.T, store *manifest.Store, target string) *manifest.Snapshot {
	t.Helper()
	snap, err := store.Snapshot(target)
	require.NoError(t, err)
	return snap
}

func paths(projected []Projected) []string {
	out := make([]string, 0, len(projected))
	for _, p := range projected {
		out = append(out, p.Path)
	}
	return out
}

func actionSummary(plan *Plan) []string {
	out := make([]string, 0, len(plan.Actions))
	for _, a := range plan.Actions {
		out = append(out, fmt.Sprintf("%s %s", a.Kind, a.LocalPath))
	}
	return out
}

func sorted(s []string) []string {
	out := append([]string(nil), s...)
	sort.Strings(out)
	return out
}
