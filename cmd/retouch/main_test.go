package main

import (
	"bytes"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/retouch/internal/config"
)

func TestSessionOptions(t *testing.T) {
	cfg := config.DefaultConfig()
	opts, err := sessionOptions(cfg, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, opts)

	cfg.Brush.Color = "nope"
	_, err = sessionOptions(cfg, nil)
	assert.Error(t, err)

	cfg = config.DefaultConfig()
	cfg.Display.Effect = "sparkle"
	_, err = sessionOptions(cfg, nil)
	assert.Error(t, err)
}

func TestNewBackend(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Backend.Headers = map[string]string{"X-Token": "abc"}
	_, err := newBackend(cfg)
	require.NoError(t, err)

	cfg.Backend.URL = "unix:///tmp/sock"
	_, err = newBackend(cfg)
	assert.Error(t, err)
}

func TestReadDocuments(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, 7, 5))))
	good := filepath.Join(dir, "page-01.png")
	require.NoError(t, os.WriteFile(good, buf.Bytes(), 0o600))

	docs, err := readDocuments([]string{good})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "page-01.png", docs[0].Name)
	assert.Equal(t, 7, docs[0].Width)
	assert.Equal(t, 5, docs[0].Height)
	assert.NoError(t, docs[0].Validate())

	bad := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(bad, []byte("hello"), 0o600))
	_, err = readDocuments([]string{bad})
	assert.Error(t, err)
}

func TestRedact(t *testing.T) {
	assert.Empty(t, redact(""))
	assert.NotContains(t, redact("sk-secret"), "secret")
}
