package timed_dev

import (
	"io"
	"time"

	"github.com/mit-pdos/go-lmfs/blkdev"
	"github.com/mit-pdos/go-lmfs/common"
	"github.com/mit-pdos/go-lmfs/util/stats"
)

// Device records the latency of every call to the device it wraps.
type Device struct {
	d   blkdev.Device
	ops [3]stats.Op
}

func New(d blkdev.Device) *Device {
	return &Device{d: d}
}

const (
	readOp int = iota
	writeOp
	syncOp
)

var ops = []string{"dev.Read", "dev.Write", "dev.Sync"}

// assert that Device implements blkdev.Device
var _ blkdev.Device = &Device{}

func (d *Device) ReadBlocks(start common.Bnum, bufs [][]byte) (int, error) {
	defer d.ops[readOp].Record(time.Now())
	return d.d.ReadBlocks(start, bufs)
}

func (d *Device) WriteBlocks(start common.Bnum, bufs [][]byte) (int, error) {
	defer d.ops[writeOp].Record(time.Now())
	return d.d.WriteBlocks(start, bufs)
}

func (d *Device) Sync() error {
	defer d.ops[syncOp].Record(time.Now())
	return d.d.Sync()
}

func (d *Device) Size() uint64 {
	return d.d.Size()
}

// MaxTransfer passes through the wrapped device's run limit.
func (d *Device) MaxTransfer() int {
	if l, ok := d.d.(blkdev.Limiter); ok {
		return l.MaxTransfer()
	}
	return 0
}

func (d *Device) Close() error {
	return d.d.Close()
}

func (d *Device) WriteStats(w io.Writer) {
	stats.WriteTable(ops, d.ops[:], w)
}

func (d *Device) ResetStats() {
	for i := range d.ops {
		d.ops[i].Reset()
	}
}

func (d *Device) Counts() (reads, writes, syncs uint32) {
	return d.ops[readOp].Count(), d.ops[writeOp].Count(), d.ops[syncOp].Count()
}
