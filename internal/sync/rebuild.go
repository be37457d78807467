package sync

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/drivesync/drivesync/internal/frontmatter"
	"github.com/drivesync/drivesync/internal/manifest"
	"github.com/drivesync/drivesync/internal/pathmap"
	"github.com/drivesync/drivesync/internal/utils"
)

// RebuildEntries reconstructs manifest entries for target from the
// frontmatter of Markdown files already under root. It lets a lost
// manifest recover without reconverting everything, and keeps stale files
// deletable. Files written by other tools are ignored.
func RebuildEntries(root, target string) ([]manifest.Entry, error) {
	if !utils.DirExists(root) {
		return nil, nil
	}

	var (
		entries []manifest.Entry
		seen    = map[string]string{}
	)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), pathmap.DocumentExt) {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			slog.Warn("rebuild: unreadable file", "path", path, "error", err)
			return nil
		}
		meta, _, err := frontmatter.Parse(data)
		if err != nil || meta.DriveID == "" {
			return nil
		}
		if meta.Source != "" && meta.Source != frontmatter.SourceGoogleDrive {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if prev, dup := seen[meta.DriveID]; dup {
			slog.Warn("rebuild: drive id claimed by two files", "id", meta.DriveID, "kept", prev, "ignored", rel)
			return nil
		}
		seen[meta.DriveID] = rel

		entries = append(entries, manifest.Entry{
			Target:       target,
			RemoteID:     meta.DriveID,
			LocalPath:    rel,
			ModifiedTime: meta.ModifiedTime,
			ContentHash:  utils.BytesHash(data),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return entries, nil
}
