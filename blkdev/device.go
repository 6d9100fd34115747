// Package blkdev is the device side of the buffer cache: the per-device
// scatter/gather interface, a table multiplexing device numbers onto
// attached devices, and the concrete devices (goose disks and raw files).
package blkdev

import (
	"errors"
	"fmt"
	"sync"

	"github.com/goose-lang/std"
	"github.com/mit-pdos/go-journal/util"

	"github.com/mit-pdos/go-lmfs/common"
)

var (
	ErrNoDevice    = errors.New("blkdev: no such device")
	ErrBusy        = errors.New("blkdev: device already attached")
	ErrOutOfRange  = errors.New("blkdev: block out of range")
	ErrBadTransfer = errors.New("blkdev: malformed transfer")
)

// Device reads and writes runs of contiguous blocks. All buffers of one
// call have the same length, which is the block size of the transfer.
// The returned count is the number of blocks transferred; a run of one
// block is always legal.
type Device interface {
	ReadBlocks(start common.Bnum, bufs [][]byte) (int, error)
	WriteBlocks(start common.Bnum, bufs [][]byte) (int, error)
	// Size of the device in bytes.
	Size() uint64
	Sync() error
	Close() error
}

// Limiter is implemented by devices that cap the number of blocks in one
// transfer.
type Limiter interface {
	MaxTransfer() int
}

// checkTransfer validates a run against a device of size bytes and
// returns the block size of the run.
func checkTransfer(size uint64, start common.Bnum, bufs [][]byte) (uint64, error) {
	if len(bufs) == 0 {
		return 0, fmt.Errorf("%w: empty run", ErrBadTransfer)
	}
	bsize := uint64(len(bufs[0]))
	if !common.ValidBlockSize(bsize) {
		return 0, fmt.Errorf("%w: block size %d", ErrBadTransfer, bsize)
	}
	for _, b := range bufs {
		if uint64(len(b)) != bsize {
			return 0, fmt.Errorf("%w: mixed buffer sizes", ErrBadTransfer)
		}
	}
	first := uint64(start)
	n := uint64(len(bufs))
	if first+n < first {
		return 0, ErrOutOfRange
	}
	end := std.SumAssumeNoOverflow(first, n)
	if end > size/bsize {
		return 0, fmt.Errorf("%w: blocks [%d,%d) of %d", ErrOutOfRange, first, end, size/bsize)
	}
	return bsize, nil
}

// Table maps device numbers to attached devices. It implements the driver
// interface the buffer cache issues its I/O through.
type Table struct {
	mu   *sync.RWMutex
	devs map[common.Dev]Device
}

func NewTable() *Table {
	return &Table{
		mu:   new(sync.RWMutex),
		devs: make(map[common.Dev]Device),
	}
}

func (t *Table) Attach(dev common.Dev, d Device) error {
	if dev == common.NO_DEV {
		return ErrNoDevice
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.devs[dev]; ok {
		return ErrBusy
	}
	util.DPrintf(1, "blkdev: attach %v size %d\n", dev, d.Size())
	t.devs[dev] = d
	return nil
}

// Detach removes dev from the table without closing it.
func (t *Table) Detach(dev common.Dev) (Device, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.devs[dev]
	if !ok {
		return nil, ErrNoDevice
	}
	delete(t.devs, dev)
	util.DPrintf(1, "blkdev: detach %v\n", dev)
	return d, nil
}

func (t *Table) Lookup(dev common.Dev) (Device, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	d, ok := t.devs[dev]
	if !ok {
		return nil, ErrNoDevice
	}
	return d, nil
}

func (t *Table) Devices() []common.Dev {
	t.mu.RLock()
	defer t.mu.RUnlock()
	devs := make([]common.Dev, 0, len(t.devs))
	for dev := range t.devs {
		devs = append(devs, dev)
	}
	return devs
}

func (t *Table) ReadBlocks(dev common.Dev, start common.Bnum, bufs [][]byte) (int, error) {
	d, err := t.Lookup(dev)
	if err != nil {
		return 0, err
	}
	return d.ReadBlocks(start, bufs)
}

func (t *Table) WriteBlocks(dev common.Dev, start common.Bnum, bufs [][]byte) (int, error) {
	d, err := t.Lookup(dev)
	if err != nil {
		return 0, err
	}
	return d.WriteBlocks(start, bufs)
}

// MaxTransfer returns the run limit of dev, or 0 when it has none.
func (t *Table) MaxTransfer(dev common.Dev) int {
	d, err := t.Lookup(dev)
	if err != nil {
		return 0
	}
	if l, ok := d.(Limiter); ok {
		return l.MaxTransfer()
	}
	return 0
}

func (t *Table) Sync(dev common.Dev) error {
	d, err := t.Lookup(dev)
	if err != nil {
		return err
	}
	return d.Sync()
}

// Close closes and detaches every device, returning the first error.
func (t *Table) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	var first error
	for dev, d := range t.devs {
		if err := d.Close(); err != nil && first == nil {
			first = fmt.Errorf("close %v: %w", dev, err)
		}
		delete(t.devs, dev)
	}
	return first
}
