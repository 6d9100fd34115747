package bcache

import (
	"fmt"
	"time"

	"github.com/lpabon/godbc"
	"github.com/mit-pdos/go-journal/util"

	"github.com/mit-pdos/go-lmfs/cache"
	"github.com/mit-pdos/go-lmfs/common"
	"github.com/mit-pdos/go-lmfs/util/stats"
)

//
// Buffer cache for file-system servers: a fixed number of block-sized
// slots, indexed by (device, block number), with unreferenced blocks kept
// on an LRU list until their slot is needed for another block. Dirty
// blocks are written back on eviction, on flush, or when a caller asks for
// it; they are dropped unwritten only by FreeBlock and InvalidateDevice.
//
// A Pool is not safe for concurrent use. It expects a single owner that
// runs one request to completion before the next, like a file server's
// main loop; Shared wraps a Pool for callers that need locking.
//

// Mode selects what GetBlock does on a miss.
type Mode int

const (
	NORMAL   Mode = iota // read the block from the device
	NO_READ              // caller overwrites the whole block; skip the read
	PREFETCH             // allocate without reading; content not loaded yet
	PEEK                 // only return a block that is already resident
)

func (m Mode) String() string {
	switch m {
	case NORMAL:
		return "NORMAL"
	case NO_READ:
		return "NO_READ"
	case PREFETCH:
		return "PREFETCH"
	case PEEK:
		return "PEEK"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Hint qualifies a PutBlock.
type Hint uint32

const (
	// unlikely to be needed again soon: first in line for eviction
	ONE_SHOT Hint = 1 << iota
	// write the block now if it is dirty
	WRITE_IMMED
)

// Driver issues block I/O for the cache. Each call moves a run of
// contiguous blocks on one device and returns how many were transferred.
type Driver interface {
	ReadBlocks(dev common.Dev, start common.Bnum, bufs [][]byte) (int, error)
	WriteBlocks(dev common.Dev, start common.Bnum, bufs [][]byte) (int, error)
}

// TransferLimiter is implemented by drivers that cap the length of a run
// per device. A limit <= 0 means unlimited.
type TransferLimiter interface {
	MaxTransfer(dev common.Dev) int
}

// VMCache is told which file region a cached block belongs to, when the
// pool is allowed to share blocks with the VM page cache.
type VMCache interface {
	SetCacheBlock(dev common.Dev, bnum common.Bnum, ino common.Inum, off uint64)
	ForgetBlock(dev common.Dev, bnum common.Bnum)
	ForgetDevice(dev common.Dev)
}

type Config struct {
	BlockSize  uint64
	Buffers    uint64
	VMMayCache bool
	VM         VMCache
}

const (
	opGet int = iota
	opPut
	opFlush
	opPrefetch
	opInvalidate
)

var opNames = []string{"GetBlock", "PutBlock", "FlushDevice", "Prefetch", "Invalidate"}

type counters struct {
	hits, misses, prefetches  uint64
	evictions, outOfBufs      uint64
	reads, writes             uint64
	readErrors, writeErrors   uint64
	fallbacks, discarded      uint64
	flushes                   uint64
}

type Pool struct {
	drv     Driver
	cfg     Config
	bsize   uint64
	slots   []slot
	index   *cache.Index
	lru     *cache.LRU
	empty   []int32
	inUse   uint64
	nextGen uint64
	cnt     counters
	ops     [5]stats.Op
}

func New(drv Driver, cfg Config) (*Pool, error) {
	if !common.ValidBlockSize(cfg.BlockSize) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBlockSize, cfg.BlockSize)
	}
	if cfg.Buffers == 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBuffers, cfg.Buffers)
	}
	p := &Pool{
		drv: drv,
		cfg: cfg,
	}
	p.reset(cfg.BlockSize, cfg.Buffers)
	util.DPrintf(1, "bcache: %d buffers of %d bytes, vm cache %v\n",
		cfg.Buffers, cfg.BlockSize, cfg.VMMayCache)
	return p, nil
}

// reset drops every block and (re)allocates nbuf slots of bsize bytes.
// No slot may be referenced.
func (p *Pool) reset(bsize uint64, nbuf uint64) {
	godbc.Require(p.inUse == 0, "reset with blocks in use", p.inUse)
	p.bsize = bsize
	p.slots = make([]slot, nbuf)
	p.index = cache.MkIndex(nbuf)
	p.lru = cache.MkLRU(nbuf)
	p.empty = make([]int32, 0, nbuf)
	for i := range p.slots {
		p.slots[i] = slot{
			dev:  common.NO_DEV,
			data: make([]byte, bsize),
			ino:  common.NO_INODE,
		}
	}
	// hand out low slots first
	for i := int(nbuf) - 1; i >= 0; i-- {
		p.empty = append(p.empty, int32(i))
	}
}

func (p *Pool) handle(id int32) *Buf {
	return &Buf{p: p, id: id, gen: p.slots[id].gen}
}

// toEmpty returns an unreferenced slot to the free stack.
func (p *Pool) toEmpty(id int32) {
	s := &p.slots[id]
	if s.ref != 0 {
		fatalf("freeing referenced slot %d: %v", id, s)
	}
	s.dev = common.NO_DEV
	s.bnum = 0
	s.dirty = false
	s.valid = false
	s.orphan = false
	s.ino = common.NO_INODE
	s.inoOff = 0
	s.gen = 0
	p.empty = append(p.empty, id)
}

// allocSlot finds a slot for a new block: an empty one if there is any,
// otherwise the least-recently-used unreferenced block, written back
// first if it is dirty.
func (p *Pool) allocSlot() (int32, error) {
	if n := len(p.empty); n > 0 {
		id := p.empty[n-1]
		p.empty = p.empty[:n-1]
		return id, nil
	}
	id, ok := p.lru.PeekLRU()
	if !ok {
		p.cnt.outOfBufs++
		util.DPrintf(2, "bcache: all %d buffers in use\n", len(p.slots))
		return -1, ErrOutOfBuffers
	}
	s := &p.slots[id]
	if s.ref != 0 {
		fatalf("evicting referenced block %v", s)
	}
	if s.dirty {
		// Write back the whole device rather than just the victim, so
		// the next evictions find clean blocks.
		err := p.FlushDevice(s.dev)
		if s.dirty {
			return -1, victimError(err, s)
		}
		if err != nil {
			util.DPrintf(1, "bcache: evict %v: flush: %v\n", s.key(), err)
		}
	}
	util.DPrintf(5, "bcache: evict %v from slot %d\n", s.key(), id)
	p.lru.Remove(id)
	p.index.Remove(s.key())
	s.gen = 0
	p.cnt.evictions++
	return id, nil
}

func (p *Pool) GetBlock(dev common.Dev, bnum common.Bnum, mode Mode) (*Buf, error) {
	return p.GetBlockIno(dev, bnum, mode, common.NO_INODE, 0)
}

// GetBlockIno is GetBlock that also records which inode and file offset
// the block backs, when the pool may share blocks with the VM cache.
func (p *Pool) GetBlockIno(dev common.Dev, bnum common.Bnum, mode Mode,
	ino common.Inum, off uint64) (*Buf, error) {
	defer p.ops[opGet].Record(time.Now())
	if dev == common.NO_DEV {
		return nil, ErrNoDevice
	}
	k := cache.MkKey(dev, bnum)
	if id, ok := p.index.Lookup(k); ok {
		return p.hit(id, mode, ino, off)
	}
	if mode == PEEK {
		return nil, ErrNotResident
	}

	id, err := p.allocSlot()
	if err != nil {
		return nil, err
	}
	p.nextGen++
	s := &p.slots[id]
	s.dev = dev
	s.bnum = bnum
	s.ref = 1
	s.dirty = false
	s.valid = false
	s.orphan = false
	s.ino = common.NO_INODE
	s.inoOff = 0
	s.gen = p.nextGen
	p.index.Insert(k, id)
	p.inUse++

	switch mode {
	case NORMAL:
		p.cnt.misses++
		if err := p.readSlots(dev, []int32{id}); err != nil {
			p.index.Remove(k)
			s.ref = 0
			p.inUse--
			p.toEmpty(id)
			return nil, err
		}
	case NO_READ:
		p.cnt.misses++
		clear(s.data)
		s.valid = true
	case PREFETCH:
		p.cnt.prefetches++
		clear(s.data)
	}
	p.setIno(s, ino, off)
	util.DPrintf(5, "bcache: get %v mode %v -> slot %d\n", k, mode, id)
	return p.handle(id), nil
}

func (p *Pool) hit(id int32, mode Mode, ino common.Inum, off uint64) (*Buf, error) {
	s := &p.slots[id]
	if !s.valid && mode == PEEK {
		// allocated by a prefetch but not read yet
		return nil, ErrNotResident
	}
	if s.ref == 0 {
		p.lru.Remove(id)
		p.inUse++
	}
	s.ref++
	p.cnt.hits++
	if !s.valid {
		switch mode {
		case NORMAL:
			if err := p.readSlots(s.dev, []int32{id}); err != nil {
				p.release(id, 0)
				return nil, err
			}
		case NO_READ:
			clear(s.data)
			s.valid = true
		}
	}
	p.setIno(s, ino, off)
	return p.handle(id), nil
}

func (p *Pool) setIno(s *slot, ino common.Inum, off uint64) {
	if !p.cfg.VMMayCache || ino == common.NO_INODE {
		return
	}
	s.ino = ino
	s.inoOff = off
}

// PutBlock releases a reference obtained from GetBlock.
func (p *Pool) PutBlock(b *Buf) {
	if err := p.PutBlockHint(b, 0); err != nil {
		// only WRITE_IMMED can fail
		fatalf("put without hint failed: %v", err)
	}
}

// PutBlockHint releases b like PutBlock, placing it at the eviction end of
// the LRU list for ONE_SHOT and writing it out first for WRITE_IMMED. A
// failed immediate write leaves the block dirty and is returned.
func (p *Pool) PutBlockHint(b *Buf, hint Hint) error {
	defer p.ops[opPut].Record(time.Now())
	if b == nil {
		return nil
	}
	s := b.slot()
	var err error
	if hint&WRITE_IMMED != 0 && s.dirty && s.valid && !s.orphan {
		err = p.writeSlots(s.dev, []int32{b.id})
	}
	p.release(b.id, hint)
	return err
}

func (p *Pool) release(id int32, hint Hint) {
	s := &p.slots[id]
	if s.ref == 0 {
		fatalf("put of unreferenced block %v", s)
	}
	s.ref--
	if s.ref > 0 {
		return
	}
	p.inUse--
	switch {
	case s.orphan:
		p.toEmpty(id)
	case !s.valid:
		// prefetched but never loaded: not worth keeping
		p.index.Remove(s.key())
		p.toEmpty(id)
	default:
		if s.ino != common.NO_INODE && p.cfg.VM != nil {
			p.cfg.VM.SetCacheBlock(s.dev, s.bnum, s.ino, s.inoOff)
		}
		if hint&ONE_SHOT != 0 {
			p.lru.PushLRU(id)
		} else {
			p.lru.PushMRU(id)
		}
	}
}

// Orphans are never written back, so they are never marked dirty.
func (p *Pool) markDirty(s *slot) {
	if s.orphan {
		return
	}
	s.dirty = true
	s.valid = true
}

func (p *Pool) MarkDirty(b *Buf) {
	p.markDirty(b.slot())
}

func (p *Pool) MarkClean(b *Buf) {
	b.slot().dirty = false
}

func (p *Pool) IsClean(b *Buf) bool {
	return !b.slot().dirty
}

// ZeroBlock clears b and marks it dirty.
func (p *Pool) ZeroBlock(b *Buf) {
	b.Zero()
}

// FreeBlock forgets a block whose content is logically deleted, without
// writing it back. Freeing a block someone still holds is a programmer
// error.
func (p *Pool) FreeBlock(dev common.Dev, bnum common.Bnum) {
	k := cache.MkKey(dev, bnum)
	if id, ok := p.index.Lookup(k); ok {
		s := &p.slots[id]
		if s.ref != 0 {
			fatalf("free of block in use %v", s)
		}
		if s.dirty {
			p.cnt.discarded++
			util.DPrintf(3, "bcache: free dirty block %v\n", k)
		}
		p.lru.Remove(id)
		p.index.Remove(k)
		p.toEmpty(id)
	}
	if p.cfg.VMMayCache && p.cfg.VM != nil {
		p.cfg.VM.ForgetBlock(dev, bnum)
	}
}

func (p *Pool) BlockSize() uint64 {
	return p.bsize
}

// NrBufs is the capacity of the pool in blocks.
func (p *Pool) NrBufs() uint64 {
	return uint64(len(p.slots))
}

// BufsInUse is the number of blocks with at least one holder.
func (p *Pool) BufsInUse() uint64 {
	return p.inUse
}

// Resident is the number of slots holding a block, orphans included.
func (p *Pool) Resident() uint64 {
	return uint64(len(p.slots) - len(p.empty))
}
