// Package workspace owns the repository checkout drive-sync writes into
// and its private state directory.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/drivesync/drivesync/internal/utils"
)

const (
	StateDirName = ".drive-sync"
	manifestFile = "manifest.db"
	lockFile     = "drive-sync.lock"
	gitignore    = ".gitignore"
)

// state that must never be committed; manifest.db itself is kept so CI
// checkouts stay incremental
const stateGitignore = `*.lock
*.db-wal
*.db-shm
*.bak
`

var (
	ErrWorkspaceLocked = errors.New("workspace locked by another drive-sync run")
)

type Workspace struct {
	Root         string
	StateDir     string
	ManifestPath string

	flock *flock.Flock
}

// New resolves the base path. stateDir may be empty for the default
// <base>/.drive-sync.
func New(basePath, stateDir string) (*Workspace, error) {
	root, err := utils.ResolvePath(basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", basePath, err)
	}

	if stateDir == "" {
		stateDir = filepath.Join(root, StateDirName)
	} else if stateDir, err = utils.ResolvePath(stateDir); err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", stateDir, err)
	}

	return &Workspace{
		Root:         root,
		StateDir:     stateDir,
		ManifestPath: filepath.Join(stateDir, manifestFile),
		flock:        flock.New(filepath.Join(stateDir, lockFile)),
	}, nil
}

// Setup creates the state directory and its .gitignore.
func (w *Workspace) Setup() error {
	if err := utils.EnsureDir(w.StateDir); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", w.StateDir, err)
	}
	ignorePath := filepath.Join(w.StateDir, gitignore)
	if !utils.FileExists(ignorePath) {
		if err := os.WriteFile(ignorePath, []byte(stateGitignore), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", ignorePath, err)
		}
	}
	return nil
}

// Lock makes sure only one run uses the manifest at a time.
func (w *Workspace) Lock() error {
	if err := utils.EnsureDir(w.StateDir); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", w.StateDir, err)
	}

	locked, err := w.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock workspace: %w", err)
	}
	if !locked {
		return ErrWorkspaceLocked
	}
	return nil
}

func (w *Workspace) Unlock() error {
	// only the holder removes the lock file
	if !w.flock.Locked() {
		return nil
	}
	if err := w.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock workspace: %w", err)
	}
	return os.Remove(w.flock.Path())
}
