// Package manifest persists what was last written for every mirrored remote
// item. It is the only record of prior state between runs.
package manifest

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/drivesync/drivesync/internal/db"
	"github.com/drivesync/drivesync/internal/utils"
)

const schema = `
CREATE TABLE IF NOT EXISTS manifest_entries (
    target        TEXT NOT NULL,
    remote_id     TEXT NOT NULL,
    local_path    TEXT NOT NULL,
    modified_time TEXT NOT NULL,
    content_hash  TEXT NOT NULL DEFAULT '',
    synced_at     TEXT NOT NULL, -- RFC3339
    PRIMARY KEY (target, remote_id)
);

CREATE INDEX IF NOT EXISTS idx_manifest_local_path ON manifest_entries(target, local_path);

CREATE TABLE IF NOT EXISTS manifest_generations (
    target     TEXT PRIMARY KEY,
    generation INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
    id          TEXT PRIMARY KEY,
    started_at  TEXT NOT NULL,
    finished_at TEXT NOT NULL DEFAULT '',
    dry_run     INTEGER NOT NULL,
    created     INTEGER NOT NULL DEFAULT 0,
    updated     INTEGER NOT NULL DEFAULT 0,
    deleted     INTEGER NOT NULL DEFAULT 0,
    skipped     INTEGER NOT NULL DEFAULT 0,
    failed      INTEGER NOT NULL DEFAULT 0
);
`

var (
	ErrManifestCorrupt = errors.New("manifest corrupt")
	ErrNotOpen         = errors.New("manifest not open")
	ErrReadOnly        = errors.New("manifest opened read only")
)

// Entry records one materialized remote item.
type Entry struct {
	Target       string    `db:"target"`
	RemoteID     string    `db:"remote_id"`
	LocalPath    string    `db:"local_path"`
	ModifiedTime string    `db:"modified_time"`
	ContentHash  string    `db:"content_hash"`
	SyncedAt     time.Time `db:"-"`
}

type dbEntry struct {
	Entry
	SyncedAt string `db:"synced_at"`
}

// RunCounts is the outcome of one invocation.
type RunCounts struct {
	Created int `db:"created"`
	Updated int `db:"updated"`
	Deleted int `db:"deleted"`
	Skipped int `db:"skipped"`
	Failed  int `db:"failed"`
}

// Store is a sqlite backed manifest. Every Put and Delete is its own
// transaction, so a crash never loses or corrupts other entries.
type Store struct {
	db        *sqlx.DB
	dbPath    string
	recovered bool
	readOnly  bool
}

func New(dbPath string) *Store {
	return &Store{dbPath: dbPath}
}

// Open opens the database. An unreadable database is moved aside and a
// fresh one is created; Recovered then reports true.
func (s *Store) Open() error {
	if s.db != nil {
		return fmt.Errorf("manifest already open")
	}

	err := s.open()
	if err == nil {
		return nil
	}
	if !utils.FileExists(s.dbPath) {
		return err
	}

	slog.Warn("manifest unreadable, starting from an empty manifest", "path", s.dbPath, "error", err)
	if qerr := s.quarantine(); qerr != nil {
		return fmt.Errorf("%w: %v (quarantine failed: %v)", ErrManifestCorrupt, err, qerr)
	}
	if err := s.open(); err != nil {
		return fmt.Errorf("open fresh manifest: %w", err)
	}
	s.recovered = true
	return nil
}

// OpenReadOnly opens the database for planning. Nothing on disk is
// created or moved aside. A missing or unreadable database is
// replaced by an empty in-memory manifest. Every write returns ErrReadOnly.
func (s *Store) OpenReadOnly() error {
	if s.db != nil {
		return fmt.Errorf("manifest already open")
	}
	s.readOnly = true

	if utils.FileExists(s.dbPath) {
		conn, err := openExisting(s.dbPath)
		if err == nil {
			s.db = conn
			return nil
		}
		slog.Warn("manifest unreadable, planning against an empty manifest", "path", s.dbPath, "error", err)
	}

	conn, err := db.NewSqliteDB(db.WithMaxOpenConns(1))
	if err != nil {
		return fmt.Errorf("open empty manifest: %w", err)
	}
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return fmt.Errorf("init schema: %w", err)
	}
	s.db = conn
	return nil
}

func openExisting(dbPath string) (*sqlx.DB, error) {
	conn, err := db.NewSqliteDB(db.WithPath(dbPath), db.WithReadOnly(), db.WithMaxOpenConns(1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrManifestCorrupt, err)
	}

	var check string
	if err := conn.Get(&check, "PRAGMA quick_check"); err != nil || check != "ok" {
		conn.Close()
		if err == nil {
			err = errors.New(check)
		}
		return nil, fmt.Errorf("%w: quick_check: %v", ErrManifestCorrupt, err)
	}

	// a file that never went through Open has no tables yet
	var tables int
	err = conn.Get(&tables, `SELECT COUNT(*) FROM sqlite_master
		WHERE type = 'table' AND name IN ('manifest_entries', 'manifest_generations')`)
	if err != nil || tables != 2 {
		conn.Close()
		return nil, fmt.Errorf("%w: missing tables", ErrManifestCorrupt)
	}
	return conn, nil
}

// ReadOnly reports whether the store was opened with OpenReadOnly.
func (s *Store) ReadOnly() bool {
	return s.readOnly
}

// writable guards every mutating method.
func (s *Store) writable() error {
	if s.db == nil {
		return ErrNotOpen
	}
	if s.readOnly {
		return ErrReadOnly
	}
	return nil
}

func (s *Store) open() error {
	conn, err := db.NewSqliteDB(db.WithPath(s.dbPath), db.WithMaxOpenConns(1))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrManifestCorrupt, err)
	}

	var check string
	if err := conn.Get(&check, "PRAGMA quick_check"); err != nil || check != "ok" {
		conn.Close()
		if err == nil {
			err = errors.New(check)
		}
		return fmt.Errorf("%w: quick_check: %v", ErrManifestCorrupt, err)
	}

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return fmt.Errorf("%w: init schema: %v", ErrManifestCorrupt, err)
	}

	s.db = conn
	return nil
}

func (s *Store) quarantine() error {
	if s.db != nil {
		s.db.Close()
		s.db = nil
	}
	backup := fmt.Sprintf("%s.%s.bak", s.dbPath, time.Now().UTC().Format("20060102150405"))
	if err := os.Rename(s.dbPath, backup); err != nil {
		return err
	}
	for _, suffix := range []string{"-wal", "-shm"} {
		os.Remove(s.dbPath + suffix)
	}
	slog.Warn("manifest moved aside", "backup", backup)
	return nil
}

// Recovered reports whether Open had to replace an unreadable database.
func (s *Store) Recovered() bool {
	return s.recovered
}

func (s *Store) Path() string {
	return s.dbPath
}

func (s *Store) Close() error {
	if s.db == nil {
		return ErrNotOpen
	}
	err := s.db.Close()
	s.db = nil
	if err != nil {
		slog.Error("failed to close manifest", "error", err)
		return err
	}
	slog.Debug("manifest closed")
	return nil
}

// Snapshot loads an immutable copy of every entry of target.
func (s *Store) Snapshot(target string) (*Snapshot, error) {
	if s.db == nil {
		return nil, ErrNotOpen
	}

	var rows []dbEntry
	err := s.db.Select(&rows, `SELECT target, remote_id, local_path, modified_time, content_hash, synced_at
		FROM manifest_entries WHERE target = ?`, target)
	if err != nil {
		return nil, fmt.Errorf("query entries for %s: %w", target, err)
	}

	var generation int64
	err = s.db.Get(&generation, "SELECT generation FROM manifest_generations WHERE target = ?", target)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("query generation for %s: %w", target, err)
	}

	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		e := row.Entry
		if ts, err := time.Parse(time.RFC3339, row.SyncedAt); err == nil {
			e.SyncedAt = ts
		} else {
			slog.Warn("manifest entry has bad synced_at", "target", target, "remote_id", e.RemoteID, "value", row.SyncedAt)
		}
		entries = append(entries, e)
	}

	return NewSnapshot(target, generation, entries), nil
}

// Put inserts or replaces one entry.
func (s *Store) Put(e Entry) error {
	if err := s.writable(); err != nil {
		return err
	}
	if e.Target == "" || e.RemoteID == "" || e.LocalPath == "" {
		return fmt.Errorf("manifest entry needs target, remote id and local path")
	}
	if e.SyncedAt.IsZero() {
		e.SyncedAt = time.Now()
	}

	row := dbEntry{Entry: e, SyncedAt: e.SyncedAt.UTC().Format(time.RFC3339)}
	_, err := s.db.NamedExec(`INSERT OR REPLACE INTO manifest_entries
		(target, remote_id, local_path, modified_time, content_hash, synced_at)
		VALUES (:target, :remote_id, :local_path, :modified_time, :content_hash, :synced_at)`, row)
	if err != nil {
		return fmt.Errorf("put %s/%s: %w", e.Target, e.RemoteID, err)
	}
	slog.Debug("manifest put", "target", e.Target, "remote_id", e.RemoteID, "path", e.LocalPath)
	return nil
}

// Delete removes one entry. Deleting a missing entry is not an error.
func (s *Store) Delete(target, remoteID string) error {
	if err := s.writable(); err != nil {
		return err
	}
	if _, err := s.db.Exec("DELETE FROM manifest_entries WHERE target = ? AND remote_id = ?", target, remoteID); err != nil {
		return fmt.Errorf("delete %s/%s: %w", target, remoteID, err)
	}
	return nil
}

// Count returns the number of entries stored for target.
func (s *Store) Count(target string) (int, error) {
	if s.db == nil {
		return 0, ErrNotOpen
	}
	var n int
	if err := s.db.Get(&n, "SELECT COUNT(*) FROM manifest_entries WHERE target = ?", target); err != nil {
		return 0, fmt.Errorf("count %s: %w", target, err)
	}
	return n, nil
}

// BumpGeneration marks a new committed version of target's entries.
func (s *Store) BumpGeneration(target string) (int64, error) {
	if err := s.writable(); err != nil {
		return 0, err
	}
	_, err := s.db.Exec(`INSERT INTO manifest_generations (target, generation) VALUES (?, 1)
		ON CONFLICT(target) DO UPDATE SET generation = generation + 1`, target)
	if err != nil {
		return 0, fmt.Errorf("bump generation for %s: %w", target, err)
	}
	var gen int64
	if err := s.db.Get(&gen, "SELECT generation FROM manifest_generations WHERE target = ?", target); err != nil {
		return 0, fmt.Errorf("read generation for %s: %w", target, err)
	}
	return gen, nil
}

// StartRun records the start of an invocation.
func (s *Store) StartRun(id string, dryRun bool) error {
	if err := s.writable(); err != nil {
		return err
	}
	_, err := s.db.Exec("INSERT INTO runs (id, started_at, dry_run) VALUES (?, ?, ?)",
		id, time.Now().UTC().Format(time.RFC3339), dryRun)
	if err != nil {
		return fmt.Errorf("start run %s: %w", id, err)
	}
	return nil
}

// FinishRun stores the final counts of an invocation.
func (s *Store) FinishRun(id string, counts RunCounts) error {
	if err := s.writable(); err != nil {
		return err
	}
	_, err := s.db.Exec(`UPDATE runs SET finished_at = ?, created = ?, updated = ?, deleted = ?, skipped = ?, failed = ?
		WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339), counts.Created, counts.Updated, counts.Deleted, counts.Skipped, counts.Failed, id)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", id, err)
	}
	return nil
}

// Snapshot is a read-only view of one target's entries at a generation.
type Snapshot struct {
	Target     string
	Generation int64
	// Rebuilt marks entries recovered from the local tree that the store
	// does not hold yet.
	Rebuilt bool
	entries map[string]Entry
}

func NewSnapshot(target string, generation int64, entries []Entry) *Snapshot {
	m := make(map[string]Entry, len(entries))
	for _, e := range entries {
		m[e.RemoteID] = e
	}
	return &Snapshot{Target: target, Generation: generation, entries: m}
}

func (s *Snapshot) Get(remoteID string) (Entry, bool) {
	e, ok := s.entries[remoteID]
	return e, ok
}

func (s *Snapshot) Len() int {
	return len(s.entries)
}

// Entries returns all entries ordered by remote id.
func (s *Snapshot) Entries() []Entry {
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RemoteID < out[j].RemoteID })
	return out
}
