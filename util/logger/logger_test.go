package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileLogger(t *testing.T) {
	assert := assert.New(t)
	path := filepath.Join(t.TempDir(), "blkd.log")
	log, err := New(Config{Level: "debug", Format: "json", OutputFile: path}, "lmfs-blkd")
	require.NoError(t, err)
	log.Debug("attached device")
	log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(string(data), "attached device")
	assert.Contains(string(data), `"service":"lmfs-blkd"`)
	assert.Contains(string(data), `"level":"DEBUG"`)
}

func TestBadLevelDefaultsToInfo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.log")
	log, err := New(Config{Level: "chatty", Format: "console", OutputFile: path}, "t")
	require.NoError(t, err)
	log.Debug("hidden")
	log.Info("shown")
	log.Sync()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "shown")
}

func TestBadOutput(t *testing.T) {
	_, err := New(Config{OutputFile: filepath.Join(t.TempDir(), "no", "such", "dir.log")}, "t")
	assert.Error(t, err)
}
