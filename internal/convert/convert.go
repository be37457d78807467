// Package convert turns fetched remote bytes into GitHub-flavoured Markdown.
package convert

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strings"

	"github.com/drivesync/drivesync/internal/drive"
)

var (
	ErrUnsupportedFormat = errors.New("convert: unsupported format")
	ErrPandocMissing     = errors.New("convert: pandoc is not installed or not in PATH")
	ErrConversionFailed  = errors.New("convert: conversion failed")
)

// Converter converts bytes of the given mime type to Markdown.
type Converter interface {
	Convert(ctx context.Context, data []byte, format string) (string, error)
}

// Pandoc converts docx through an external pandoc binary.
type Pandoc struct {
	Binary string
}

func NewPandoc() *Pandoc {
	return &Pandoc{Binary: "pandoc"}
}

// Available checks that pandoc can be executed.
func (p *Pandoc) Available(ctx context.Context) error {
	bin, err := exec.LookPath(p.Binary)
	if err != nil {
		return ErrPandocMissing
	}
	if err := exec.CommandContext(ctx, bin, "--version").Run(); err != nil {
		return fmt.Errorf("%w: %v", ErrPandocMissing, err)
	}
	p.Binary = bin
	return nil
}

// Version returns the first line of `pandoc --version`.
func (p *Pandoc) Version(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, p.Binary, "--version").Output()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrPandocMissing, err)
	}
	first, _, _ := strings.Cut(string(out), "\n")
	return strings.TrimSpace(first), nil
}

func (p *Pandoc) Convert(ctx context.Context, data []byte, format string) (string, error) {
	if format != drive.MimeDocx {
		return "", fmt.Errorf("%w: pandoc route got %s", ErrUnsupportedFormat, format)
	}

	tmp, err := os.CreateTemp("", "drive-sync-*.docx")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.Binary, tmp.Name(), "-f", "docx", "-t", "gfm", "--wrap=none")
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		var execErr *exec.Error
		if errors.As(err, &execErr) || errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %v", ErrPandocMissing, err)
		}
		return "", fmt.Errorf("%w: pandoc: %v: %s", ErrConversionFailed, err, strings.TrimSpace(stderr.String()))
	}

	return strings.TrimSpace(stdout.String()), nil
}

// Passthrough mirrors Markdown and plain text uploads with light
// normalisation: BOM removed, CRLF folded to LF, outer blank space trimmed.
type Passthrough struct{}

func (Passthrough) Convert(_ context.Context, data []byte, _ string) (string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	return strings.TrimSpace(text), nil
}

// Router picks a converter by source mime type.
type Router struct {
	routes map[string]Converter
}

// NewRouter routes docx to pandoc and Markdown or plain text through
// Passthrough.
func NewRouter(pandoc Converter) *Router {
	r := &Router{routes: map[string]Converter{}}
	if pandoc != nil {
		r.Register(drive.MimeDocx, pandoc)
	}
	r.Register(drive.MimeMarkdown, Passthrough{})
	r.Register(drive.MimeMarkdownAlt, Passthrough{})
	r.Register(drive.MimePlainText, Passthrough{})
	return r
}

func (r *Router) Register(format string, c Converter) {
	r.routes[format] = c
}

// Supports reports whether a converter exists for format.
func (r *Router) Supports(format string) bool {
	_, ok := r.routes[format]
	return ok
}

func (r *Router) Convert(ctx context.Context, data []byte, format string) (string, error) {
	c, ok := r.routes[format]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	return c.Convert(ctx, data, format)
}
