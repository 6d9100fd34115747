package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, s string) string {
	path := filepath.Join(t.TempDir(), "lmfs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(s), 0644))
	return path
}

func TestDefaultValid(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.NoError(t, c.Validate())
	assert.Equal(t, uint64(64<<20), c.DeviceBytes())
}

func TestLoad(t *testing.T) {
	assert := assert.New(t)
	path := write(t, `
cache:
  block_size: 1024
  buffers: 32
  vm_may_cache: true
device:
  image: /tmp/disk.img
  create: true
sync:
  interval: 250ms
log:
  level: debug
`)
	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(uint64(1024), c.Cache.BlockSize)
	assert.Equal(uint64(32), c.Cache.Buffers)
	assert.True(c.Bcache().VMMayCache)
	assert.Equal("/tmp/disk.img", c.Device.Image)
	assert.Equal(uint64(64), c.Device.SizeMB, "unset keys keep their defaults")
	assert.Equal(250*time.Millisecond, c.Sync.Interval)
	assert.Equal("debug", c.Log.Level)
	assert.Equal("console", c.Log.Format)
	assert.Contains(c.String(), "block_size: 1024")
}

func TestLoadInvalid(t *testing.T) {
	for _, s := range []string{
		"cache: {block_size: 3000}",
		"cache: {buffers: 0}",
		"device: {image: a, remote: 'b:1'}",
		"device: {raw: true}",
		"sync: {interval: -1s}",
	} {
		_, err := Load(write(t, s))
		assert.ErrorIs(t, err, ErrInvalid, s)
	}
	_, err := Load(write(t, "cache: [1, 2"))
	assert.Error(t, err)
	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestOpenDevice(t *testing.T) {
	assert := assert.New(t)
	c := Default()
	c.Device.SizeMB = 1
	d, err := c.OpenDevice()
	require.NoError(t, err)
	assert.Equal(uint64(1<<20), d.Size())
	assert.NoError(d.Close())

	c.Device.Image = filepath.Join(t.TempDir(), "disk.img")
	c.Device.Create = true
	d, err = c.OpenDevice()
	require.NoError(t, err)
	assert.NoError(d.Close())

	c.Device.Create = false
	d, err = c.OpenDevice()
	require.NoError(t, err)
	assert.NoError(d.Close())
}
