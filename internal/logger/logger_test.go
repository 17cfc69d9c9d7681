package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/slidecast/internal/config"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}

func TestJSONHandler(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewHandler(&buf, "json", slog.LevelInfo, false))

	log.Debug("hidden")
	log.Info("narrated slide", "slide_number", 3)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "narrated slide", entry["msg"])
	assert.EqualValues(t, 3, entry["slide_number"])
}

func TestTextHandler(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewHandler(&buf, "text", slog.LevelInfo, false))

	log.Warn("skipping slide", "slide_number", 2)
	assert.Contains(t, buf.String(), "skipping slide")
	assert.Contains(t, buf.String(), "slide_number=2")
}

func TestNewWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slidecast.log")
	log, closer := New(config.LogConfig{Level: "info", Format: "json", File: path, MaxSizeMB: 1})

	log.Info("hello")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
}
