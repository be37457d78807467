package sync

import (
	"bufio"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"

	"github.com/drivesync/drivesync/internal/utils"
)

// IgnoreFile lives in a target's local root and uses gitignore syntax
// against mapped paths.
const IgnoreFile = ".drivesyncignore"

type IgnoreList struct {
	rootDir string
	ignore  *gitignore.GitIgnore
	rules   int
}

func NewIgnoreList(rootDir string) *IgnoreList {
	return &IgnoreList{rootDir: rootDir}
}

// Load reads the ignore file if present. A missing or unreadable file
// leaves the list empty.
func (s *IgnoreList) Load() {
	ignorePath := filepath.Join(s.rootDir, IgnoreFile)
	var lines []string

	if utils.FileExists(ignorePath) {
		file, err := os.Open(ignorePath)
		if err != nil {
			slog.Warn("failed to open ignore file", "path", ignorePath, "error", err)
		} else {
			defer file.Close()

			scanner := bufio.NewScanner(file)
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line != "" && !strings.HasPrefix(line, "#") {
					lines = append(lines, line)
				}
			}
			if err := scanner.Err(); err != nil {
				slog.Warn("error reading ignore file", "path", ignorePath, "error", err)
			} else {
				slog.Debug("loaded ignore file", "path", ignorePath, "rules", len(lines))
			}
		}
	}

	s.rules = len(lines)
	s.ignore = gitignore.CompileIgnoreLines(lines...)
}

// Rules is the number of patterns loaded.
func (s *IgnoreList) Rules() int {
	return s.rules
}

// ShouldIgnore matches a slash separated path relative to the target root.
func (s *IgnoreList) ShouldIgnore(relPath string) bool {
	if s == nil || s.ignore == nil || s.rules == 0 {
		return false
	}
	return s.ignore.MatchesPath(relPath)
}
