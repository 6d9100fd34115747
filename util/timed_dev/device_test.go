package timed_dev

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/go-lmfs/blkdev"
)

func TestTimedDevice(t *testing.T) {
	assert := assert.New(t)
	img, err := blkdev.NewMemImage(8*1024, 1024)
	require.NoError(t, err)
	d := New(img)

	buf := [][]byte{make([]byte, 1024), make([]byte, 1024)}
	_, err = d.WriteBlocks(0, buf)
	assert.NoError(err)
	_, err = d.ReadBlocks(0, buf)
	assert.NoError(err)
	_, err = d.ReadBlocks(1, buf[:1])
	assert.NoError(err)
	assert.NoError(d.Sync())

	r, w, s := d.Counts()
	assert.Equal(uint32(2), r)
	assert.Equal(uint32(1), w)
	assert.Equal(uint32(1), s)
	assert.Equal(0, d.MaxTransfer())

	out := new(bytes.Buffer)
	d.WriteStats(out)
	assert.Contains(out.String(), "dev.Read")
	d.ResetStats()
	r, _, _ = d.Counts()
	assert.Equal(uint32(0), r)
}
