package blkrpc

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/mit-pdos/go-journal/util"
	"github.com/zeldovich/go-rpcgen/rfc1057"
	"github.com/zeldovich/go-rpcgen/xdr"

	"github.com/mit-pdos/go-lmfs/blkdev"
	"github.com/mit-pdos/go-lmfs/common"
	"github.com/mit-pdos/go-lmfs/util/stats"
)

const NUM_BLK_OPS = 5

var blkopNames = []string{"NULL", "INFO", "READ", "WRITE", "SYNC"}

// Server exports one block device.
type Server struct {
	dev   blkdev.Device
	bsize uint64
	ops   [NUM_BLK_OPS]stats.Op
}

// Register installs the block device program on srv, serving dev. bsize
// is the block size advertised to clients.
func Register(srv *rfc1057.Server, dev blkdev.Device, bsize uint64) *Server {
	s := &Server{dev: dev, bsize: bsize}
	srv.Register(LMFS_BLKDEV_PROG, LMFS_BLKDEV_V1, BLKPROC_NULL, s.null)
	srv.Register(LMFS_BLKDEV_PROG, LMFS_BLKDEV_V1, BLKPROC_INFO, s.info)
	srv.Register(LMFS_BLKDEV_PROG, LMFS_BLKDEV_V1, BLKPROC_READ, s.read)
	srv.Register(LMFS_BLKDEV_PROG, LMFS_BLKDEV_V1, BLKPROC_WRITE, s.write)
	srv.Register(LMFS_BLKDEV_PROG, LMFS_BLKDEV_V1, BLKPROC_SYNC, s.sync)
	return s
}

func (s *Server) maxTransfer() uint32 {
	max := MAX_RUN
	if l, ok := s.dev.(blkdev.Limiter); ok {
		if n := l.MaxTransfer(); n > 0 && uint32(n) < max {
			max = uint32(n)
		}
	}
	return max
}

func status(err error) Blkstat {
	switch {
	case err == nil:
		return BLK_OK
	case errors.Is(err, blkdev.ErrOutOfRange):
		return BLKERR_RANGE
	case errors.Is(err, blkdev.ErrBadTransfer):
		return BLKERR_INVAL
	}
	return BLKERR_IO
}

func errMsg(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func checkRun(count uint32, bsize uint32) error {
	if count == 0 || !common.ValidBlockSize(uint64(bsize)) {
		return fmt.Errorf("%w: %d blocks of %d bytes", blkdev.ErrBadTransfer, count, bsize)
	}
	return nil
}

// split cuts data into count buffers of bsize bytes.
func split(data []byte, count uint32, bsize uint32) ([][]byte, error) {
	if err := checkRun(count, bsize); err != nil {
		return nil, err
	}
	if uint64(len(data)) != uint64(count)*uint64(bsize) {
		return nil, fmt.Errorf("%w: %d bytes for %d blocks", blkdev.ErrBadTransfer, len(data), count)
	}
	bufs := make([][]byte, count)
	for i := range bufs {
		off := uint32(i) * bsize
		bufs[i] = data[off : off+bsize]
	}
	return bufs, nil
}

func (s *Server) null(args *xdr.XdrState) (res xdr.Xdrable, err error) {
	defer s.ops[BLKPROC_NULL].Record(time.Now())
	var in xdr.Void
	in.Xdr(args)
	err = args.Error()
	if err != nil {
		return
	}
	return &xdr.Void{}, nil
}

func (s *Server) info(args *xdr.XdrState) (res xdr.Xdrable, err error) {
	defer s.ops[BLKPROC_INFO].Record(time.Now())
	var in xdr.Void
	in.Xdr(args)
	err = args.Error()
	if err != nil {
		return
	}
	out := &InfoRes{
		Status:      BLK_OK,
		Size:        s.dev.Size(),
		BlockSize:   uint32(s.bsize),
		MaxTransfer: s.maxTransfer(),
	}
	return out, nil
}

func (s *Server) read(args *xdr.XdrState) (res xdr.Xdrable, err error) {
	defer s.ops[BLKPROC_READ].Record(time.Now())
	var in ReadArgs
	in.Xdr(args)
	err = args.Error()
	if err != nil {
		return
	}
	util.DPrintf(5, "blkrpc: READ %d+%d bsize %d\n", in.Start, in.Count, in.BlockSize)

	out := &ReadRes{}
	if in.Count > s.maxTransfer() {
		out.Status = BLKERR_INVAL
		out.Msg = fmt.Sprintf("run of %d exceeds %d", in.Count, s.maxTransfer())
		return out, nil
	}
	if e := checkRun(in.Count, in.BlockSize); e != nil {
		out.Status = status(e)
		out.Msg = e.Error()
		return out, nil
	}
	data := make([]byte, uint64(in.Count)*uint64(in.BlockSize))
	bufs, e := split(data, in.Count, in.BlockSize)
	if e != nil {
		out.Status = status(e)
		out.Msg = e.Error()
		return out, nil
	}
	n, e := s.dev.ReadBlocks(common.Bnum(in.Start), bufs)
	if n < 0 {
		n = 0
	}
	out.Status = status(e)
	out.Msg = errMsg(e)
	out.N = uint32(n)
	out.Data = data[:uint64(n)*uint64(in.BlockSize)]
	return out, nil
}

func (s *Server) write(args *xdr.XdrState) (res xdr.Xdrable, err error) {
	defer s.ops[BLKPROC_WRITE].Record(time.Now())
	var in WriteArgs
	in.Xdr(args)
	err = args.Error()
	if err != nil {
		return
	}
	out := &WriteRes{}
	var count uint32
	if in.BlockSize != 0 {
		count = uint32(uint64(len(in.Data)) / uint64(in.BlockSize))
	}
	util.DPrintf(5, "blkrpc: WRITE %d+%d bsize %d\n", in.Start, count, in.BlockSize)
	if count > s.maxTransfer() {
		out.Status = BLKERR_INVAL
		out.Msg = fmt.Sprintf("run of %d exceeds %d", count, s.maxTransfer())
		return out, nil
	}
	bufs, e := split(in.Data, count, in.BlockSize)
	if e != nil {
		out.Status = status(e)
		out.Msg = e.Error()
		return out, nil
	}
	n, e := s.dev.WriteBlocks(common.Bnum(in.Start), bufs)
	if n < 0 {
		n = 0
	}
	out.Status = status(e)
	out.Msg = errMsg(e)
	out.N = uint32(n)
	return out, nil
}

func (s *Server) sync(args *xdr.XdrState) (res xdr.Xdrable, err error) {
	defer s.ops[BLKPROC_SYNC].Record(time.Now())
	var in xdr.Void
	in.Xdr(args)
	err = args.Error()
	if err != nil {
		return
	}
	e := s.dev.Sync()
	return &SyncRes{Status: status(e), Msg: errMsg(e)}, nil
}

func (s *Server) WriteOpStats(w io.Writer) {
	stats.WriteTable(blkopNames, s.ops[:], w)
}

func (s *Server) ResetOpStats() {
	for i := range s.ops {
		s.ops[i].Reset()
	}
}
