package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/go-lmfs/bcache"
	"github.com/mit-pdos/go-lmfs/blkdev"
)

func mkShell(t *testing.T) (*shell, *bytes.Buffer, *blkdev.Disk) {
	img, err := blkdev.NewMemImage(32*1024, 1024)
	require.NoError(t, err)
	tbl := blkdev.NewTable()
	require.NoError(t, tbl.Attach(0, img))
	p, err := bcache.New(tbl, bcache.Config{BlockSize: 1024, Buffers: 4})
	require.NoError(t, err)
	out := new(bytes.Buffer)
	return newShell(p, out), out, img
}

func TestShellWriteFlush(t *testing.T) {
	assert := assert.New(t)
	sh, out, img := mkShell(t)

	assert.NoError(sh.exec("write 3 0 hello world"))
	assert.Contains(out.String(), "wrote 11 bytes")
	assert.NoError(sh.exec("flush"))

	buf := make([]byte, 1024)
	_, err := img.ReadBlocks(3, [][]byte{buf})
	require.NoError(t, err)
	assert.Equal("hello world", string(buf[:11]))

	out.Reset()
	assert.NoError(sh.exec("dump 3 16"))
	assert.Contains(out.String(), "hello world")
}

func TestShellHeld(t *testing.T) {
	assert := assert.New(t)
	sh, out, _ := mkShell(t)

	assert.NoError(sh.exec("get 1"))
	assert.NoError(sh.exec("get 2 noread"))
	assert.Contains(out.String(), "1: block 2")
	assert.Error(sh.exec("free 1"))
	assert.ErrorIs(sh.exec("bsize 2048"), bcache.ErrPoolBusy)
	assert.ErrorIs(sh.exec("get 9 peek"), bcache.ErrNotResident)

	out.Reset()
	assert.NoError(sh.exec("held"))
	assert.Equal("0: block 1 dirty false\n1: block 2 dirty false\n", out.String())

	assert.NoError(sh.exec("put 0 oneshot"))
	assert.NoError(sh.exec("put 1"))
	assert.Error(sh.exec("put 1"))
	assert.NoError(sh.exec("bsize 2048"))
	assert.NoError(sh.exec("check"))
}

func TestShellMisc(t *testing.T) {
	assert := assert.New(t)
	sh, out, _ := mkShell(t)

	assert.NoError(sh.exec(""))
	assert.NoError(sh.exec("?"))
	assert.Contains(out.String(), "prefetch")
	assert.NoError(sh.exec("prefetch 4 5 6"))
	assert.NoError(sh.exec("zero 4"))
	assert.NoError(sh.exec("free 4"))
	assert.NoError(sh.exec("invalidate"))
	assert.NoError(sh.exec("bufs 8"))
	out.Reset()
	assert.NoError(sh.exec("stats"))
	assert.Contains(out.String(), "capacity")
	assert.NoError(sh.exec("ops"))
	assert.ErrorIs(sh.exec("get"), errUsage)
	assert.Error(sh.exec("frobnicate"))
	assert.ErrorIs(sh.exec("quit"), errQuit)
}
