// Package gitrepo stages and commits the mirrored tree.
package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const (
	DefaultAuthorName  = "drive-sync"
	DefaultAuthorEmail = "drive-sync@users.noreply.github.com"
	timestampLayout    = "2006-01-02 15:04:05 UTC"
)

var (
	ErrNotRepository   = errors.New("not a git repository")
	ErrNothingToCommit = errors.New("nothing to commit")
)

// CommitMessage is the message used for every sync commit.
func CommitMessage(now time.Time) string {
	return fmt.Sprintf("Sync: Update from Google Drive (%s)", now.UTC().Format(timestampLayout))
}

type Repo struct {
	repo     *git.Repository
	worktree *git.Worktree
	root     string
}

// Open finds the repository containing path.
func Open(path string) (*Repo, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("%w: %s", ErrNotRepository, path)
		}
		return nil, fmt.Errorf("open repository %s: %w", path, err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("open worktree: %w", err)
	}

	return &Repo{repo: repo, worktree: wt, root: wt.Filesystem.Root()}, nil
}

func (r *Repo) Root() string {
	return r.root
}

// StageAll mirrors `git add -A`: new and modified files are added, deleted
// files are removed from the index. Ignored files stay untouched. It
// returns the number of staged changes.
func (r *Repo) StageAll(ctx context.Context) (int, error) {
	status, err := r.worktree.Status()
	if err != nil {
		return 0, fmt.Errorf("worktree status: %w", err)
	}

	for path, fs := range status {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		switch fs.Worktree {
		case git.Unmodified:
			continue
		case git.Deleted:
			if _, err := r.worktree.Remove(path); err != nil {
				return 0, fmt.Errorf("stage removal of %s: %w", path, err)
			}
		default:
			if _, err := r.worktree.Add(path); err != nil {
				return 0, fmt.Errorf("stage %s: %w", path, err)
			}
		}
	}

	status, err = r.worktree.Status()
	if err != nil {
		return 0, fmt.Errorf("worktree status: %w", err)
	}
	staged := 0
	for _, fs := range status {
		if fs.Staging != git.Unmodified && fs.Staging != git.Untracked {
			staged++
		}
	}
	return staged, nil
}

// CommitAll stages everything and commits it. It returns
// ErrNothingToCommit when the tree is clean.
func (r *Repo) CommitAll(ctx context.Context, msg string) (string, error) {
	staged, err := r.StageAll(ctx)
	if err != nil {
		return "", err
	}
	if staged == 0 {
		return "", ErrNothingToCommit
	}

	who := r.signature()
	hash, err := r.worktree.Commit(msg, &git.CommitOptions{
		Author:    who,
		Committer: who,
	})
	if err != nil {
		if errors.Is(err, git.ErrEmptyCommit) {
			return "", ErrNothingToCommit
		}
		return "", fmt.Errorf("commit: %w", err)
	}

	slog.Info("committed changes", "hash", hash.String()[:12], "files", staged, "message", msg)
	return hash.String(), nil
}

// signature uses the configured user when there is one.
func (r *Repo) signature() *object.Signature {
	sig := &object.Signature{Name: DefaultAuthorName, Email: DefaultAuthorEmail, When: time.Now()}

	cfg, err := r.repo.ConfigScoped(config.GlobalScope)
	if err != nil {
		slog.Debug("git config unavailable, using default author", "error", err)
		return sig
	}
	if cfg.User.Name != "" {
		sig.Name = cfg.User.Name
	}
	if cfg.User.Email != "" {
		sig.Email = cfg.User.Email
	}
	return sig
}
