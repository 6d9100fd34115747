package blkdev

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tchajed/goose/machine/disk"

	"github.com/mit-pdos/go-lmfs/common"
)

func mkdataval(b byte, sz uint64) []byte {
	data := make([]byte, sz)
	for i := range data {
		data[i] = b
	}
	return data
}

func mkbufs(n int, sz uint64) [][]byte {
	bufs := make([][]byte, n)
	for i := range bufs {
		bufs[i] = make([]byte, sz)
	}
	return bufs
}

func testRoundTrip(t *testing.T, d Device, bsize uint64) {
	nblk := d.Size() / bsize
	require.True(t, nblk >= 8)

	w := [][]byte{mkdataval(1, bsize), mkdataval(2, bsize), mkdataval(3, bsize)}
	n, err := d.WriteBlocks(3, w)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// a neighbour in the same disk block must survive
	n, err = d.WriteBlocks(6, [][]byte{mkdataval(9, bsize)})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	r := mkbufs(4, bsize)
	n, err = d.ReadBlocks(3, r)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, w[0], r[0])
	assert.Equal(t, w[1], r[1])
	assert.Equal(t, w[2], r[2])
	assert.Equal(t, mkdataval(9, bsize), r[3])

	r = mkbufs(1, bsize)
	_, err = d.ReadBlocks(7, r)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, bsize), r[0])

	_, err = d.ReadBlocks(common.Bnum(nblk), mkbufs(1, bsize))
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = d.WriteBlocks(common.Bnum(nblk-1), mkbufs(2, bsize))
	assert.ErrorIs(t, err, ErrOutOfRange)
	assert.NoError(t, d.Sync())
}

func TestMemImageBlockSizes(t *testing.T) {
	for _, bsize := range []uint64{1024, 2048, 4096} {
		d, err := NewMemImage(64*1024, bsize)
		require.NoError(t, err)
		assert.Equal(t, uint64(64*1024), d.Size())
		assert.Equal(t, bsize, d.Label().BlockSize)
		testRoundTrip(t, d, bsize)
	}
}

func TestBadTransfer(t *testing.T) {
	d, err := NewMemImage(16*1024, 1024)
	require.NoError(t, err)
	_, err = d.ReadBlocks(0, nil)
	assert.ErrorIs(t, err, ErrBadTransfer)
	_, err = d.ReadBlocks(0, [][]byte{make([]byte, 1000)})
	assert.ErrorIs(t, err, ErrBadTransfer)
	_, err = d.WriteBlocks(0, [][]byte{make([]byte, 1024), make([]byte, 2048)})
	assert.ErrorIs(t, err, ErrBadTransfer)
	_, err = d.ReadBlocks(common.Bnum(^uint64(0)), mkbufs(2, 1024))
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestCheckTransferBounds(t *testing.T) {
	bsize, err := checkTransfer(8*1024, 6, mkbufs(2, 1024))
	require.NoError(t, err)
	assert.Equal(t, uint64(1024), bsize)
	_, err = checkTransfer(8*1024, 7, mkbufs(2, 1024))
	assert.ErrorIs(t, err, ErrOutOfRange)
	_, err = checkTransfer(^uint64(0), common.Bnum(^uint64(0)-1), mkbufs(3, 1024))
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestLabel(t *testing.T) {
	d := disk.NewMemDisk(8)
	_, err := ReadLabel(d)
	assert.ErrorIs(t, err, ErrBadLabel)

	l, err := Format(d, 2048)
	require.NoError(t, err)
	l2, err := ReadLabel(d)
	require.NoError(t, err)
	assert.Equal(t, l.ID, l2.ID)
	assert.Equal(t, uint64(2048), l2.BlockSize)
	assert.Equal(t, uint64(8), l2.NBlocks)

	_, err = Format(d, 3000)
	assert.Error(t, err)
}

func TestOpenImageReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lmfs.img")
	d, err := OpenImage(path, 32*1024, 1024, true)
	require.NoError(t, err)
	id := d.Label().ID
	_, err = d.WriteBlocks(5, [][]byte{mkdataval(7, 1024)})
	require.NoError(t, err)
	require.NoError(t, d.Sync())
	require.NoError(t, d.Close())

	d, err = OpenImage(path, 32*1024, 1024, false)
	require.NoError(t, err)
	defer d.Close()
	assert.Equal(t, id, d.Label().ID)
	r := mkbufs(1, 1024)
	_, err = d.ReadBlocks(5, r)
	require.NoError(t, err)
	assert.Equal(t, mkdataval(7, 1024), r[0])
}

func TestFileDevice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raw.dev")
	f, err := OpenFile(path, 64*1024, true)
	require.NoError(t, err)
	testRoundTrip(t, f, 2048)
	require.NoError(t, f.Close())

	st, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(64*1024), st.Size())

	f, err = OpenFile(path, 0, false)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, uint64(64*1024), f.Size())
	r := mkbufs(1, 2048)
	_, err = f.ReadBlocks(4, r)
	require.NoError(t, err)
	assert.Equal(t, mkdataval(2, 2048), r[0])
}

func TestAdvance(t *testing.T) {
	bufs := mkbufs(3, 4)
	assert.Len(t, advance(bufs, 4), 2)
	rest := advance(bufs, 6)
	assert.Len(t, rest, 2)
	assert.Len(t, rest[0], 2)
	assert.Len(t, advance(bufs, 12), 0)
}

func TestTable(t *testing.T) {
	tbl := NewTable()
	d, err := NewMemImage(16*1024, 1024)
	require.NoError(t, err)

	require.NoError(t, tbl.Attach(1, d))
	assert.ErrorIs(t, tbl.Attach(1, d), ErrBusy)
	assert.ErrorIs(t, tbl.Attach(common.NO_DEV, d), ErrNoDevice)

	n, err := tbl.WriteBlocks(1, 2, [][]byte{mkdataval(4, 1024)})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	r := mkbufs(1, 1024)
	_, err = tbl.ReadBlocks(1, 2, r)
	require.NoError(t, err)
	assert.Equal(t, mkdataval(4, 1024), r[0])

	_, err = tbl.ReadBlocks(2, 2, r)
	assert.ErrorIs(t, err, ErrNoDevice)
	assert.Equal(t, 0, tbl.MaxTransfer(1))
	assert.Equal(t, []common.Dev{1}, tbl.Devices())

	got, err := tbl.Detach(1)
	require.NoError(t, err)
	assert.Equal(t, Device(d), got)
	_, err = tbl.Detach(1)
	assert.ErrorIs(t, err, ErrNoDevice)
	assert.NoError(t, tbl.Close())
}

func TestFaulty(t *testing.T) {
	d, err := NewMemImage(16*1024, 1024)
	require.NoError(t, err)
	f := NewFaulty(d)

	f.FailWrite(3, true)
	n, err := f.WriteBlocks(1, mkbufs(4, 1024))
	assert.ErrorIs(t, err, ErrInjected)
	assert.Equal(t, 2, n)
	f.FailWrite(3, false)
	n, err = f.WriteBlocks(1, mkbufs(4, 1024))
	assert.NoError(t, err)
	assert.Equal(t, 4, n)

	f.RejectBatches(true)
	_, err = f.ReadBlocks(0, mkbufs(2, 1024))
	assert.ErrorIs(t, err, ErrInjected)
	n, err = f.ReadBlocks(0, mkbufs(1, 1024))
	assert.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, []Run{
		{Write: true, Start: 1, N: 4},
		{Write: true, Start: 1, N: 4},
		{Write: false, Start: 0, N: 2},
		{Write: false, Start: 0, N: 1},
	}, f.Runs())

	f.SetMaxTransfer(1)
	assert.Equal(t, 1, f.MaxTransfer())
}
