package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/go-lmfs/bcache"
	"github.com/mit-pdos/go-lmfs/blkdev"
)

func mkShared(t *testing.T) (*bcache.Shared, *blkdev.Faulty) {
	img, err := blkdev.NewMemImage(64*1024, 1024)
	require.NoError(t, err)
	dev := blkdev.NewFaulty(img)
	tbl := blkdev.NewTable()
	require.NoError(t, tbl.Attach(0, dev))
	p, err := bcache.New(tbl, bcache.Config{BlockSize: 1024, Buffers: 16})
	require.NoError(t, err)
	return bcache.MkShared(p), dev
}

func TestClient(t *testing.T) {
	sh, _ := mkShared(t)
	w := workload{blocks: 32, writes: 0.5, oneShot: 0.2}
	r := client(sh, w, nil, 20*time.Millisecond, 1)
	assert.Greater(t, r.iters, 0)
	assert.Equal(t, 0, r.errors)
	sh.CheckInvariants()
	assert.NoError(t, sh.FlushAll())
}

// Each pass over 8 blocks does 7 successful gets. Block 2 fails both in
// the read-ahead of blocks 1-4 and in its own get.
func TestClientCountsReadAheadErrors(t *testing.T) {
	sh, dev := mkShared(t)
	dev.FailRead(2, true)
	w := workload{blocks: 8, seq: true, prefetch: 4}
	r := client(sh, w, nil, 50*time.Millisecond, 1)
	require.Greater(t, r.iters, 14)
	assert.GreaterOrEqual(t, r.errors, 2*(r.iters/7))
	sh.CheckInvariants()
}
