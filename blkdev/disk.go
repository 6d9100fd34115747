package blkdev

import (
	"fmt"
	"sync"

	"github.com/mit-pdos/go-journal/util"
	"github.com/tchajed/goose/machine/disk"

	"github.com/mit-pdos/go-lmfs/common"
)

//
// Device over a goose disk. Disk blocks are disk.BlockSize bytes; cache
// blocks may be smaller and are packed into disk blocks, so writes of a
// partial disk block are read-modify-write. Disk block 0 holds the label.
//

type Disk struct {
	mu    *sync.Mutex
	d     disk.Disk
	label *Label
}

func mkDisk(d disk.Disk, l *Label) *Disk {
	return &Disk{
		mu:    new(sync.Mutex),
		d:     d,
		label: l,
	}
}

// NewMemImage formats an in-memory disk of size bytes (rounded up to whole
// disk blocks, plus the label block).
func NewMemImage(size uint64, bsize uint64) (*Disk, error) {
	nblk := util.RoundUp(size, disk.BlockSize) + 1
	d := disk.NewMemDisk(nblk)
	l, err := Format(d, bsize)
	if err != nil {
		return nil, err
	}
	util.DPrintf(1, "NewMemImage: %v\n", l)
	return mkDisk(d, l), nil
}

// OpenImage opens the image file at path. With create set the file is
// (re)formatted with block size bsize; otherwise its label must be valid.
func OpenImage(path string, size uint64, bsize uint64, create bool) (*Disk, error) {
	nblk := util.RoundUp(size, disk.BlockSize) + 1
	d, err := disk.NewFileDisk(path, nblk)
	if err != nil {
		return nil, fmt.Errorf("could not open disk %s: %w", path, err)
	}
	var l *Label
	if create {
		l, err = Format(d, bsize)
	} else {
		l, err = ReadLabel(d)
	}
	if err != nil {
		d.Close()
		return nil, err
	}
	util.DPrintf(1, "OpenImage %s: %v\n", path, l)
	return mkDisk(d, l), nil
}

// Wrap uses an already formatted goose disk.
func Wrap(d disk.Disk) (*Disk, error) {
	l, err := ReadLabel(d)
	if err != nil {
		return nil, err
	}
	return mkDisk(d, l), nil
}

func (d *Disk) Label() *Label {
	return d.label
}

func (d *Disk) Size() uint64 {
	return (d.label.NBlocks - 1) * disk.BlockSize
}

// diskAddr returns the disk block and byte offset holding cache block bn.
func diskAddr(bn uint64, bsize uint64) (uint64, uint64) {
	off := bn * bsize
	return LABEL_BLOCK + 1 + off/disk.BlockSize, off % disk.BlockSize
}

func (d *Disk) ReadBlocks(start common.Bnum, bufs [][]byte) (int, error) {
	bsize, err := checkTransfer(d.Size(), start, bufs)
	if err != nil {
		return 0, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	var cur disk.Block
	var curAddr uint64
	for i, b := range bufs {
		a, off := diskAddr(uint64(start)+uint64(i), bsize)
		if cur == nil || a != curAddr {
			cur = d.d.Read(a)
			curAddr = a
		}
		copy(b, cur[off:off+bsize])
	}
	return len(bufs), nil
}

func (d *Disk) WriteBlocks(start common.Bnum, bufs [][]byte) (int, error) {
	bsize, err := checkTransfer(d.Size(), start, bufs)
	if err != nil {
		return 0, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	var cur disk.Block
	var curAddr uint64
	for i, b := range bufs {
		a, off := diskAddr(uint64(start)+uint64(i), bsize)
		if cur != nil && a != curAddr {
			d.d.Write(curAddr, cur)
			cur = nil
		}
		if cur == nil {
			if bsize == disk.BlockSize {
				cur = make(disk.Block, disk.BlockSize)
			} else {
				cur = d.d.Read(a)
			}
			curAddr = a
		}
		copy(cur[off:off+bsize], b)
	}
	if cur != nil {
		d.d.Write(curAddr, cur)
	}
	return len(bufs), nil
}

func (d *Disk) Sync() error {
	d.d.Barrier()
	return nil
}

func (d *Disk) Close() error {
	d.d.Close()
	return nil
}
