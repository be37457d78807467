package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s := New(filepath.Join(t.TempDir(), ".drive-sync", "manifest.db"))
	require.NoError(t, s.Open())
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_PutSnapshotDelete(t *testing.T) {
	s := openStore(t)

	synced := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.Put(Entry{
		Target:       "docs",
		RemoteID:     "D1",
		LocalPath:    "guide.md",
		ModifiedTime: "2024-03-01T10:00:00Z",
		ContentHash:  "abc",
		SyncedAt:     synced,
	}))
	require.NoError(t, s.Put(Entry{Target: "docs", RemoteID: "D2", LocalPath: "faq.md", ModifiedTime: "t1"}))
	require.NoError(t, s.Put(Entry{Target: "rfcs", RemoteID: "D1", LocalPath: "other.md", ModifiedTime: "t1"}))

	snap, err := s.Snapshot("docs")
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Len())

	e, ok := snap.Get("D1")
	require.True(t, ok)
	assert.Equal(t, "guide.md", e.LocalPath)
	assert.Equal(t, "abc", e.ContentHash)
	assert.True(t, synced.Equal(e.SyncedAt))

	ids := []string{}
	for _, e := range snap.Entries() {
		ids = append(ids, e.RemoteID)
	}
	assert.Equal(t, []string{"D1", "D2"}, ids)

	require.NoError(t, s.Delete("docs", "D1"))
	require.NoError(t, s.Delete("docs", "missing"))

	n, err := s.Count("docs")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// other targets are independent
	n, err = s.Count("rfcs")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// snapshots are not affected by later writes
	_, ok = snap.Get("D1")
	assert.True(t, ok)
}

func TestStore_PutReplaces(t *testing.T) {
	s := openStore(t)

	require.NoError(t, s.Put(Entry{Target: "docs", RemoteID: "D1", LocalPath: "guide.md", ModifiedTime: "t1"}))
	require.NoError(t, s.Put(Entry{Target: "docs", RemoteID: "D1", LocalPath: "guide-new.md", ModifiedTime: "t2"}))

	snap, err := s.Snapshot("docs")
	require.NoError(t, err)
	require.Equal(t, 1, snap.Len())
	e, _ := snap.Get("D1")
	assert.Equal(t, "guide-new.md", e.LocalPath)
	assert.Equal(t, "t2", e.ModifiedTime)
}

func TestStore_PutRequiresKeys(t *testing.T) {
	s := openStore(t)
	assert.Error(t, s.Put(Entry{Target: "docs", LocalPath: "x.md"}))
	assert.Error(t, s.Put(Entry{RemoteID: "D1", LocalPath: "x.md"}))
	assert.Error(t, s.Put(Entry{Target: "docs", RemoteID: "D1"}))
}

func TestStore_Generation(t *testing.T) {
	s := openStore(t)

	snap, err := s.Snapshot("docs")
	require.NoError(t, err)
	assert.Equal(t, int64(0), snap.Generation)

	gen, err := s.BumpGeneration("docs")
	require.NoError(t, err)
	assert.Equal(t, int64(1), gen)

	gen, err = s.BumpGeneration("docs")
	require.NoError(t, err)
	assert.Equal(t, int64(2), gen)

	snap, err = s.Snapshot("docs")
	require.NoError(t, err)
	assert.Equal(t, int64(2), snap.Generation)

	other, err := s.Snapshot("rfcs")
	require.NoError(t, err)
	assert.Equal(t, int64(0), other.Generation)
}

func TestStore_PersistsAcrossOpen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "manifest.db")

	s := New(dbPath)
	require.NoError(t, s.Open())
	require.NoError(t, s.Put(Entry{Target: "docs", RemoteID: "D1", LocalPath: "guide.md", ModifiedTime: "t1"}))
	require.NoError(t, s.Close())

	s = New(dbPath)
	require.NoError(t, s.Open())
	defer s.Close()
	assert.False(t, s.Recovered())

	snap, err := s.Snapshot("docs")
	require.NoError(t, err)
	_, ok := snap.Get("D1")
	assert.True(t, ok)
}

func TestStore_CorruptDatabaseIsMovedAside(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "manifest.db")
	require.NoError(t, os.WriteFile(dbPath, []byte(strings.Repeat("not a database ", 512)), 0o644))

	s := New(dbPath)
	require.NoError(t, s.Open())
	defer s.Close()

	assert.True(t, s.Recovered())

	snap, err := s.Snapshot("docs")
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Len())

	backups, err := filepath.Glob(filepath.Join(dir, "manifest.db.*.bak"))
	require.NoError(t, err)
	assert.Len(t, backups, 1)
}

func TestStore_Runs(t *testing.T) {
	s := openStore(t)

	require.NoError(t, s.StartRun("run-1", true))
	require.NoError(t, s.FinishRun("run-1", RunCounts{Created: 2, Skipped: 1, Failed: 1}))

	var counts RunCounts
	require.NoError(t, s.db.Get(&counts, "SELECT created, updated, deleted, skipped, failed FROM runs WHERE id = ?", "run-1"))
	assert.Equal(t, RunCounts{Created: 2, Skipped: 1, Failed: 1}, counts)

	assert.Error(t, s.StartRun("run-1", false), "duplicate run id")
}

func TestStore_NotOpen(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "manifest.db"))
	_, err := s.Snapshot("docs")
	assert.ErrorIs(t, err, ErrNotOpen)
	assert.ErrorIs(t, s.Put(Entry{Target: "a", RemoteID: "b", LocalPath: "c"}), ErrNotOpen)
	assert.ErrorIs(t, s.Close(), ErrNotOpen)
}

func TestStore_OpenReadOnlyMissingFile(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), ".drive-sync", "manifest.db")

	s := New(dbPath)
	require.NoError(t, s.OpenReadOnly())
	defer s.Close()
	assert.True(t, s.ReadOnly())

	snap, err := s.Snapshot("docs")
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Len())

	assert.ErrorIs(t, s.Put(Entry{Target: "docs", RemoteID: "D1", LocalPath: "guide.md"}), ErrReadOnly)
	assert.ErrorIs(t, s.Delete("docs", "D1"), ErrReadOnly)
	assert.ErrorIs(t, s.StartRun("r1", true), ErrReadOnly)
	assert.ErrorIs(t, s.FinishRun("r1", RunCounts{}), ErrReadOnly)
	_, err = s.BumpGeneration("docs")
	assert.ErrorIs(t, err, ErrReadOnly)

	assert.NoDirExists(t, filepath.Dir(dbPath))
}

func TestStore_OpenReadOnlyExisting(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "manifest.db")
	rw := New(dbPath)
	require.NoError(t, rw.Open())
	require.NoError(t, rw.Put(Entry{Target: "docs", RemoteID: "D1", LocalPath: "guide.md", ModifiedTime: "t1"}))
	_, err := rw.BumpGeneration("docs")
	require.NoError(t, err)
	require.NoError(t, rw.Close())
	before, err := os.ReadFile(dbPath)
	require.NoError(t, err)

	s := New(dbPath)
	require.NoError(t, s.OpenReadOnly())
	snap, err := s.Snapshot("docs")
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Len())
	assert.Equal(t, int64(1), snap.Generation)
	assert.ErrorIs(t, s.Put(Entry{Target: "docs", RemoteID: "D2", LocalPath: "faq.md"}), ErrReadOnly)
	require.NoError(t, s.Close())

	after, err := os.ReadFile(dbPath)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestStore_OpenReadOnlyCorruptIsLeftInPlace(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "manifest.db")
	garbage := []byte(strings.Repeat("not a database ", 512))
	require.NoError(t, os.WriteFile(dbPath, garbage, 0o644))

	s := New(dbPath)
	require.NoError(t, s.OpenReadOnly())
	defer s.Close()
	assert.False(t, s.Recovered())

	snap, err := s.Snapshot("docs")
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Len())

	data, err := os.ReadFile(dbPath)
	require.NoError(t, err)
	assert.Equal(t, garbage, data)

	backups, err := filepath.Glob(filepath.Join(dir, "*.bak"))
	require.NoError(t, err)
	assert.Empty(t, backups)
}
