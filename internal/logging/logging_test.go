package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFanout_RespectsLevels(t *testing.T) {
	var infoBuf, debugBuf bytes.Buffer
	logger := slog.New(NewFanout(
		slog.NewTextHandler(&infoBuf, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewTextHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug}),
	))

	logger.Debug("only debug")
	logger.With("target", "docs").Info("both")

	assert.NotContains(t, infoBuf.String(), "only debug")
	assert.Contains(t, infoBuf.String(), "target=docs")
	assert.Contains(t, debugBuf.String(), "only debug")
	assert.Contains(t, debugBuf.String(), "both")
}

func TestSetup_WritesLogFile(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	logFile := filepath.Join(t.TempDir(), "logs", "drive-sync.log")
	var console bytes.Buffer

	closeLog, err := Setup(Options{Verbose: false, LogFile: logFile, Console: &console})
	require.NoError(t, err)

	slog.Debug("debug line", "path", "docs/guide.md")
	slog.Info("info line")
	require.NoError(t, closeLog())

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "debug line")
	assert.Contains(t, string(data), "info line")
	assert.Contains(t, console.String(), "info line")
	assert.NotContains(t, console.String(), "debug line")
	assert.NotContains(t, console.String(), "\x1b[", "non terminal writers get no colour")
}
