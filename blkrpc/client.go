package blkrpc

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/mit-pdos/go-journal/util"
	"github.com/zeldovich/go-rpcgen/rfc1057"
	"github.com/zeldovich/go-rpcgen/xdr"

	"github.com/mit-pdos/go-lmfs/blkdev"
	"github.com/mit-pdos/go-lmfs/common"
)

var ErrRemote = errors.New("blkrpc: remote device error")

// Client is a block device served by a remote Server. Calls are
// serialized over one connection.
type Client struct {
	mu    *sync.Mutex
	conn  net.Conn
	clnt  *rfc1057.Client
	cred  rfc1057.Opaque_auth
	verf  rfc1057.Opaque_auth
	size  uint64
	bsize uint64
	max   int
}

func Dial(addr string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	c, err := NewClient(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

// NewClient speaks the block device program over conn and fetches the
// device's geometry.
func NewClient(conn net.Conn) (*Client, error) {
	var cred rfc1057.Opaque_auth
	cred.Flavor = rfc1057.AUTH_NONE
	c := &Client{
		mu:   new(sync.Mutex),
		conn: conn,
		clnt: rfc1057.MakeClient(conn, LMFS_BLKDEV_PROG, LMFS_BLKDEV_V1),
		cred: cred,
		verf: cred,
	}
	var arg xdr.Void
	var res InfoRes
	if err := c.call(BLKPROC_INFO, &arg, &res); err != nil {
		return nil, err
	}
	if err := remoteError(res.Status, "info"); err != nil {
		return nil, err
	}
	c.size = res.Size
	c.bsize = uint64(res.BlockSize)
	c.max = int(res.MaxTransfer)
	util.DPrintf(1, "blkrpc: %v size %d bsize %d max %d\n",
		conn.RemoteAddr(), c.size, c.bsize, c.max)
	return c, nil
}

func (c *Client) call(proc uint32, arg xdr.Xdrable, res xdr.Xdrable) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	err := c.clnt.Call(proc, c.cred, c.verf, arg, res)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrRemote, err)
	}
	return nil
}

func remoteError(st Blkstat, msg string) error {
	switch st {
	case BLK_OK:
		return nil
	case BLKERR_RANGE:
		return fmt.Errorf("%w: %w: %s", ErrRemote, blkdev.ErrOutOfRange, msg)
	case BLKERR_INVAL:
		return fmt.Errorf("%w: %w: %s", ErrRemote, blkdev.ErrBadTransfer, msg)
	}
	return fmt.Errorf("%w: status %d: %s", ErrRemote, st, msg)
}

func (c *Client) Null() error {
	var arg, res xdr.Void
	return c.call(BLKPROC_NULL, &arg, &res)
}

func (c *Client) Size() uint64 {
	return c.size
}

// BlockSize is the block size the server advertises.
func (c *Client) BlockSize() uint64 {
	return c.bsize
}

func (c *Client) MaxTransfer() int {
	return c.max
}

func runSize(bufs [][]byte) (uint32, error) {
	if len(bufs) == 0 {
		return 0, fmt.Errorf("%w: empty run", blkdev.ErrBadTransfer)
	}
	bsize := len(bufs[0])
	for _, b := range bufs {
		if len(b) != bsize {
			return 0, fmt.Errorf("%w: mixed buffer sizes", blkdev.ErrBadTransfer)
		}
	}
	return uint32(bsize), nil
}

func (c *Client) ReadBlocks(start common.Bnum, bufs [][]byte) (int, error) {
	bsize, err := runSize(bufs)
	if err != nil {
		return 0, err
	}
	arg := ReadArgs{Start: uint64(start), Count: uint32(len(bufs)), BlockSize: bsize}
	var res ReadRes
	if err := c.call(BLKPROC_READ, &arg, &res); err != nil {
		return 0, err
	}
	n := int(res.N)
	if n > len(bufs) || len(res.Data) < n*int(bsize) {
		return 0, fmt.Errorf("%w: reply of %d blocks, %d bytes", ErrRemote, res.N, len(res.Data))
	}
	for i := 0; i < n; i++ {
		copy(bufs[i], res.Data[i*int(bsize):])
	}
	return n, remoteError(res.Status, res.Msg)
}

func (c *Client) WriteBlocks(start common.Bnum, bufs [][]byte) (int, error) {
	bsize, err := runSize(bufs)
	if err != nil {
		return 0, err
	}
	data := make([]byte, 0, len(bufs)*int(bsize))
	for _, b := range bufs {
		data = append(data, b...)
	}
	arg := WriteArgs{Start: uint64(start), BlockSize: bsize, Data: data}
	var res WriteRes
	if err := c.call(BLKPROC_WRITE, &arg, &res); err != nil {
		return 0, err
	}
	n := int(res.N)
	if n > len(bufs) {
		n = len(bufs)
	}
	return n, remoteError(res.Status, res.Msg)
}

func (c *Client) Sync() error {
	var arg xdr.Void
	var res SyncRes
	if err := c.call(BLKPROC_SYNC, &arg, &res); err != nil {
		return err
	}
	return remoteError(res.Status, res.Msg)
}

func (c *Client) Close() error {
	return c.conn.Close()
}
