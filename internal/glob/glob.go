// Package glob evaluates shell style exclusion patterns against bare
// file and folder names.
package glob

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Remote names may contain '/', which doublestar treats as a separator.
// Both sides are rewritten to a look-alike rune so '*' still spans it.
const slashStandIn = "∕"

func fold(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), "/", slashStandIn)
}

// Matches reports whether name matches any of patterns, ignoring case.
// Malformed patterns never match.
func Matches(name string, patterns []string) bool {
	if len(patterns) == 0 {
		return false
	}
	folded := fold(name)
	for _, p := range patterns {
		if ok, err := doublestar.Match(fold(p), folded); err == nil && ok {
			return true
		}
	}
	return false
}

// Validate returns an error naming the first malformed pattern.
func Validate(patterns []string) error {
	for _, p := range patterns {
		if strings.TrimSpace(p) == "" {
			return fmt.Errorf("empty pattern")
		}
		if !doublestar.ValidatePattern(fold(p)) {
			return fmt.Errorf("invalid pattern %q", p)
		}
	}
	return nil
}
