package blkrpc

import (
	"bytes"
	"net"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeldovich/go-rpcgen/rfc1057"
	"github.com/zeldovich/go-rpcgen/xdr"

	"github.com/mit-pdos/go-lmfs/bcache"
	"github.com/mit-pdos/go-lmfs/blkdev"
	"github.com/mit-pdos/go-lmfs/common"
)

const bsize = 1024

func serve(t *testing.T, dev blkdev.Device) (*Server, string) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { listener.Close() })

	srv := rfc1057.MakeServer()
	s := Register(srv, dev, bsize)
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go srv.Run(conn)
		}
	}()
	return s, listener.Addr().String()
}

func mkClient(t *testing.T) (*Client, *blkdev.Faulty, *Server) {
	img, err := blkdev.NewMemImage(32*bsize, bsize)
	require.NoError(t, err)
	dev := blkdev.NewFaulty(img)
	s, addr := serve(t, dev)
	c, err := Dial(addr)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, dev, s
}

func blocks(n int, v byte) [][]byte {
	bufs := make([][]byte, n)
	for i := range bufs {
		bufs[i] = bytes.Repeat([]byte{v + byte(i)}, bsize)
	}
	return bufs
}

func TestReadArgsSize(t *testing.T) {
	var a ReadArgs
	bs, err := xdr.EncodeBuf(&a)
	require.NoError(t, err)
	assert.Equal(t, 16, len(bs))
}

func TestInfo(t *testing.T) {
	assert := assert.New(t)
	c, _, _ := mkClient(t)
	assert.NoError(c.Null())
	assert.Equal(uint64(32*bsize), c.Size())
	assert.Equal(uint64(bsize), c.BlockSize())
	assert.Equal(int(MAX_RUN), c.MaxTransfer())
}

func TestReadWrite(t *testing.T) {
	assert := assert.New(t)
	c, _, s := mkClient(t)

	n, err := c.WriteBlocks(4, blocks(3, 10))
	assert.NoError(err)
	assert.Equal(3, n)
	assert.NoError(c.Sync())

	got := blocks(4, 0)
	n, err = c.ReadBlocks(3, got)
	assert.NoError(err)
	assert.Equal(4, n)
	assert.Equal(make([]byte, bsize), got[0])
	assert.Equal(bytes.Repeat([]byte{10}, bsize), got[1])
	assert.Equal(bytes.Repeat([]byte{12}, bsize), got[3])

	buf := new(bytes.Buffer)
	s.WriteOpStats(buf)
	assert.Contains(buf.String(), "WRITE")
}

func TestRemoteErrors(t *testing.T) {
	assert := assert.New(t)
	c, dev, _ := mkClient(t)

	_, err := c.ReadBlocks(31, blocks(2, 0))
	assert.ErrorIs(err, ErrRemote)
	assert.ErrorIs(err, blkdev.ErrOutOfRange)

	_, err = c.ReadBlocks(0, [][]byte{make([]byte, 100)})
	assert.ErrorIs(err, blkdev.ErrBadTransfer)

	_, err = c.ReadBlocks(0, blocks(int(MAX_RUN)+1, 0))
	assert.ErrorIs(err, blkdev.ErrBadTransfer)

	dev.FailWrite(2, true)
	n, err := c.WriteBlocks(0, blocks(4, 1))
	assert.ErrorIs(err, ErrRemote)
	assert.Equal(2, n)
}

func TestReadRejectsBadRun(t *testing.T) {
	assert := assert.New(t)
	c, dev, _ := mkClient(t)

	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	var res ReadRes
	err := c.call(BLKPROC_READ, &ReadArgs{Count: MAX_RUN, BlockSize: 1 << 24}, &res)
	require.NoError(t, err)
	runtime.ReadMemStats(&after)
	assert.Equal(BLKERR_INVAL, res.Status)
	assert.Equal(uint32(0), res.N)
	assert.Less(after.TotalAlloc-before.TotalAlloc, uint64(16<<20))

	res = ReadRes{}
	err = c.call(BLKPROC_READ, &ReadArgs{Count: 0, BlockSize: bsize}, &res)
	require.NoError(t, err)
	assert.Equal(BLKERR_INVAL, res.Status)
	assert.Empty(dev.Runs())
}

// A pool can run on top of a remote device.
func TestPoolOverRPC(t *testing.T) {
	assert := assert.New(t)
	c, _, _ := mkClient(t)
	tbl := blkdev.NewTable()
	require.NoError(t, tbl.Attach(0, c))
	p, err := bcache.New(tbl, bcache.Config{BlockSize: c.BlockSize(), Buffers: 2})
	require.NoError(t, err)

	for bn := common.Bnum(0); bn < 3; bn++ {
		b, err := p.GetBlock(0, bn, bcache.NO_READ)
		require.NoError(t, err)
		b.WriteAt([]byte{byte(bn + 1)}, 0)
		p.PutBlock(b)
	}
	assert.NoError(p.FlushAll())
	p.InvalidateDevice(0)

	for bn := common.Bnum(0); bn < 3; bn++ {
		b, err := p.GetBlock(0, bn, bcache.NORMAL)
		require.NoError(t, err)
		assert.Equal(byte(bn+1), b.Data()[0])
		p.PutBlock(b)
	}
	p.CheckInvariants()
}
