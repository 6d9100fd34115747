package blkdev

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mit-pdos/go-journal/util"

	"github.com/mit-pdos/go-lmfs/common"
)

// IOV_MAX on the platforms we run on
const maxIovecs = 1024

// File is a raw device backed by a regular file or a block special file.
// A run of blocks is moved with one vectored system call where the
// platform has one.
type File struct {
	mu   *sync.Mutex
	f    *os.File
	size uint64
}

// OpenFile opens path as a device of size bytes. With create set the
// file is created and sized; otherwise its current size is used when
// size is 0.
func OpenFile(path string, size uint64, create bool) (*File, error) {
	flags := os.O_RDWR
	if create {
		flags |= os.O_CREATE
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if create {
		if err := f.Truncate(int64(size)); err != nil {
			f.Close()
			return nil, fmt.Errorf("truncate %s: %w", path, err)
		}
	} else if size == 0 {
		st, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, err
		}
		size = uint64(st.Size())
	}
	util.DPrintf(1, "OpenFile %s: %d bytes\n", path, size)
	return &File{mu: new(sync.Mutex), f: f, size: size}, nil
}

func (f *File) Size() uint64 {
	return f.size
}

func (f *File) MaxTransfer() int {
	return maxIovecs
}

func (f *File) ReadBlocks(start common.Bnum, bufs [][]byte) (int, error) {
	bsize, err := checkTransfer(f.size, start, bufs)
	if err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n, err := f.readv(bufs, int64(uint64(start)*bsize))
	return n / int(bsize), err
}

func (f *File) WriteBlocks(start common.Bnum, bufs [][]byte) (int, error) {
	bsize, err := checkTransfer(f.size, start, bufs)
	if err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	n, err := f.writev(bufs, int64(uint64(start)*bsize))
	return n / int(bsize), err
}

func (f *File) Close() error {
	return f.f.Close()
}

// advance drops the first n bytes of a vector of equally sized buffers.
func advance(bufs [][]byte, n int) [][]byte {
	for n > 0 && len(bufs) > 0 {
		if n >= len(bufs[0]) {
			n -= len(bufs[0])
			bufs = bufs[1:]
		} else {
			bufs = append([][]byte{bufs[0][n:]}, bufs[1:]...)
			n = 0
		}
	}
	return bufs
}

func total(bufs [][]byte) int {
	n := 0
	for _, b := range bufs {
		n += len(b)
	}
	return n
}

var errShort = io.ErrUnexpectedEOF
