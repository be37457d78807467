// Package frontmatter renders and parses the YAML provenance block at the
// top of every mirrored Markdown file.
package frontmatter

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	delimiter = "---"
	// SourceGoogleDrive is written into every generated document.
	SourceGoogleDrive = "google-drive"
)

var ErrNoFrontmatter = errors.New("frontmatter: missing or unterminated block")

// Metadata is serialized in field order.
type Metadata struct {
	Title        string `yaml:"title"`
	DriveID      string `yaml:"drive_id"`
	DriveURL     string `yaml:"drive_url,omitempty"`
	ModifiedTime string `yaml:"modified_time"`
	Source       string `yaml:"source,omitempty"`
}

// Render returns the complete document: frontmatter, blank line, body and
// a trailing newline.
func Render(meta Metadata, body string) ([]byte, error) {
	if meta.DriveID == "" {
		return nil, errors.New("frontmatter: drive_id is required")
	}

	var buf bytes.Buffer
	buf.WriteString(delimiter + "\n")

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&meta); err != nil {
		return nil, fmt.Errorf("frontmatter: encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("frontmatter: encode: %w", err)
	}

	buf.WriteString(delimiter + "\n\n")
	buf.WriteString(strings.TrimRight(body, "\n"))
	buf.WriteString("\n")
	return buf.Bytes(), nil
}

// Parse splits a document into its metadata and body.
func Parse(data []byte) (*Metadata, string, error) {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	if !strings.HasPrefix(text, delimiter+"\n") {
		return nil, "", ErrNoFrontmatter
	}

	rest := text[len(delimiter)+1:]
	end := strings.Index(rest, "\n"+delimiter)
	var block string
	switch {
	case strings.HasPrefix(rest, delimiter):
		block, rest = "", rest[len(delimiter):]
	case end >= 0:
		block, rest = rest[:end+1], rest[end+1+len(delimiter):]
	default:
		return nil, "", ErrNoFrontmatter
	}

	var meta Metadata
	if err := yaml.Unmarshal([]byte(block), &meta); err != nil {
		return nil, "", fmt.Errorf("frontmatter: decode: %w", err)
	}

	body := strings.TrimPrefix(rest, "\n")
	body = strings.TrimPrefix(body, "\n")
	return &meta, body, nil
}
