package bcache

import (
	"fmt"

	"github.com/mit-pdos/go-lmfs/cache"
	"github.com/mit-pdos/go-lmfs/common"
)

// slot is one block descriptor of the arena. A slot is empty (on the
// free stack, dev == NO_DEV), resident and indexed, or an orphan: still
// held by callers but detached from the index by InvalidateDevice.
type slot struct {
	dev    common.Dev
	bnum   common.Bnum
	data   []byte
	ref    uint32
	dirty  bool
	valid  bool // data holds the block's content
	orphan bool
	ino    common.Inum
	inoOff uint64
	gen    uint64 // 0 while empty
}

func (s *slot) key() cache.Key {
	return cache.MkKey(s.dev, s.bnum)
}

func (s *slot) String() string {
	return fmt.Sprintf("%v:%d ref %d dirty %v valid %v orphan %v",
		s.dev, s.bnum, s.ref, s.dirty, s.valid, s.orphan)
}

// Buf is a caller's handle on a cached block. It stays usable until the
// matching PutBlock; a handle whose slot has since been given another
// identity panics on use.
type Buf struct {
	p   *Pool
	id  int32
	gen uint64
}

func (b *Buf) slot() *slot {
	if b.id < 0 || int(b.id) >= len(b.p.slots) {
		fatalf("stale handle: slot %d", b.id)
	}
	s := &b.p.slots[b.id]
	if s.gen != b.gen || s.gen == 0 {
		fatalf("stale handle: slot %d gen %d, slot now gen %d", b.id, b.gen, s.gen)
	}
	return s
}

// Data returns the block's buffer. Callers that modify it must call
// MarkDirty (or use WriteAt, which does).
func (b *Buf) Data() []byte {
	return b.slot().data
}

func (b *Buf) Dev() common.Dev {
	return b.slot().dev
}

func (b *Buf) Bnum() common.Bnum {
	return b.slot().bnum
}

func (b *Buf) Ino() common.Inum {
	return b.slot().ino
}

func (b *Buf) InoOff() uint64 {
	return b.slot().inoOff
}

func (b *Buf) IsDirty() bool {
	return b.slot().dirty
}

// WriteAt copies p into the block at off and marks the block dirty.
func (b *Buf) WriteAt(p []byte, off uint64) int {
	s := b.slot()
	if off >= uint64(len(s.data)) || len(p) == 0 {
		return 0
	}
	n := copy(s.data[off:], p)
	b.p.markDirty(s)
	return n
}

// Zero clears the block and marks it dirty.
func (b *Buf) Zero() {
	s := b.slot()
	clear(s.data)
	b.p.markDirty(s)
}

// ReadAt copies the block's content at off into p.
func (b *Buf) ReadAt(p []byte, off uint64) int {
	s := b.slot()
	if off > uint64(len(s.data)) {
		return 0
	}
	return copy(p, s.data[off:])
}

func (b *Buf) String() string {
	return fmt.Sprintf("buf %d: %v", b.id, b.slot())
}
