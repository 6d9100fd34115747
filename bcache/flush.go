package bcache

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/mit-pdos/go-journal/util"
	"go.uber.org/multierr"

	"github.com/mit-pdos/go-lmfs/common"
)

func (p *Pool) dirtySlots(dev common.Dev) []int32 {
	var ids []int32
	for i := range p.slots {
		s := &p.slots[i]
		if s.gen != 0 && !s.orphan && s.dev == dev && s.dirty {
			ids = append(ids, int32(i))
		}
	}
	return ids
}

// FlushDevice writes back every dirty block of dev, including blocks that
// are currently held. It keeps going past failed blocks; those stay dirty
// and each contributes an *IOError to the returned error.
func (p *Pool) FlushDevice(dev common.Dev) error {
	defer p.ops[opFlush].Record(time.Now())
	ids := p.dirtySlots(dev)
	if len(ids) == 0 {
		return nil
	}
	p.cnt.flushes++
	util.DPrintf(3, "bcache: flush %v: %d dirty blocks\n", dev, len(ids))
	return p.writeSlots(dev, ids)
}

func (p *Pool) devices(pred func(s *slot) bool) []common.Dev {
	seen := make(map[common.Dev]bool)
	var devs []common.Dev
	for i := range p.slots {
		s := &p.slots[i]
		if s.gen == 0 || s.orphan || seen[s.dev] || !pred(s) {
			continue
		}
		seen[s.dev] = true
		devs = append(devs, s.dev)
	}
	sort.Slice(devs, func(i, j int) bool { return devs[i] < devs[j] })
	return devs
}

// FlushAll flushes every device that has dirty blocks.
func (p *Pool) FlushAll() error {
	var errs error
	for _, dev := range p.devices(func(s *slot) bool { return s.dirty }) {
		errs = multierr.Append(errs, p.FlushDevice(dev))
	}
	return errs
}

// InvalidateDevice forgets every block of dev without writing anything
// back. Blocks that are still held become orphans: their holders may
// finish with them, but they are no longer found by GetBlock and go back
// to the free stack on their last PutBlock.
func (p *Pool) InvalidateDevice(dev common.Dev) {
	defer p.ops[opInvalidate].Record(time.Now())
	var discarded, orphaned int
	for i := range p.slots {
		s := &p.slots[i]
		if s.gen == 0 || s.orphan || s.dev != dev {
			continue
		}
		id := int32(i)
		if s.dirty {
			discarded++
		}
		p.index.Remove(s.key())
		if s.ref > 0 {
			s.orphan = true
			s.dirty = false
			orphaned++
			continue
		}
		p.lru.Remove(id)
		p.toEmpty(id)
	}
	p.cnt.discarded += uint64(discarded)
	if discarded > 0 {
		util.DPrintf(0, "bcache: invalidate %v: %d dirty blocks lost\n", dev, discarded)
	}
	if orphaned > 0 {
		util.DPrintf(1, "bcache: invalidate %v: %d blocks still held\n", dev, orphaned)
	}
	if p.cfg.VMMayCache && p.cfg.VM != nil {
		p.cfg.VM.ForgetDevice(dev)
	}
}

// resize flushes everything and reallocates the pool. Nothing changes
// unless the flush succeeds.
func (p *Pool) resize(bsize uint64, nbuf uint64) error {
	if p.inUse != 0 {
		return fmt.Errorf("%w: %d blocks", ErrPoolBusy, p.inUse)
	}
	if err := p.FlushAll(); err != nil {
		return err
	}
	if p.cfg.VMMayCache && p.cfg.VM != nil {
		for _, dev := range p.devices(func(s *slot) bool { return true }) {
			p.cfg.VM.ForgetDevice(dev)
		}
	}
	util.DPrintf(1, "bcache: resize %d x %d -> %d x %d\n",
		len(p.slots), p.bsize, nbuf, bsize)
	p.reset(bsize, nbuf)
	return nil
}

// SetBlockSize switches the pool to blocks of sz bytes, dropping all
// cached content. Setting the current size does nothing.
func (p *Pool) SetBlockSize(sz uint64) error {
	if !common.ValidBlockSize(sz) {
		return fmt.Errorf("%w: %d", ErrInvalidBlockSize, sz)
	}
	if sz == p.bsize {
		return nil
	}
	return p.resize(sz, uint64(len(p.slots)))
}

// SetBuffers changes the number of buffers, with the same rules as
// SetBlockSize.
func (p *Pool) SetBuffers(n uint64) error {
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrInvalidBuffers, n)
	}
	if n == uint64(len(p.slots)) {
		return nil
	}
	return p.resize(p.bsize, n)
}

// Prefetch loads the blocks of dev that are not resident yet, reading
// contiguous ones together, and leaves them in the cache unreferenced. It
// stops allocating when the pool runs out of buffers. Blocks that fail to
// read are dropped.
func (p *Pool) Prefetch(dev common.Dev, bnums []common.Bnum) error {
	defer p.ops[opPrefetch].Record(time.Now())
	seen := make(map[common.Bnum]bool, len(bnums))
	var held []*Buf
	var load []int32
	var errs error
	for _, bn := range bnums {
		if seen[bn] {
			continue
		}
		seen[bn] = true
		b, err := p.GetBlock(dev, bn, PREFETCH)
		if errors.Is(err, ErrOutOfBuffers) {
			break
		}
		if err != nil {
			errs = multierr.Append(errs, err)
			break
		}
		held = append(held, b)
		if !p.slots[b.id].valid {
			load = append(load, b.id)
		}
	}
	if len(load) > 0 {
		errs = multierr.Append(errs, p.readSlots(dev, load))
	}
	for _, b := range held {
		p.PutBlock(b)
	}
	return errs
}
