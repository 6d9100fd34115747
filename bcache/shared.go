package bcache

import (
	"io"
	"sync"

	"github.com/mit-pdos/go-lmfs/common"
)

// Shared serializes access to a Pool for callers on several goroutines,
// such as a sync daemon running beside a request loop. Holding the lock
// across a miss means a second request for the same block waits for the
// first read instead of issuing its own.
//
// Buf handles returned by Shared must only be used through Shared.
type Shared struct {
	mu *sync.Mutex
	p  *Pool
}

func MkShared(p *Pool) *Shared {
	return &Shared{mu: new(sync.Mutex), p: p}
}

func (sh *Shared) GetBlock(dev common.Dev, bnum common.Bnum, mode Mode) (*Buf, error) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.p.GetBlock(dev, bnum, mode)
}

func (sh *Shared) GetBlockIno(dev common.Dev, bnum common.Bnum, mode Mode,
	ino common.Inum, off uint64) (*Buf, error) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.p.GetBlockIno(dev, bnum, mode, ino, off)
}

func (sh *Shared) PutBlock(b *Buf) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.p.PutBlock(b)
}

func (sh *Shared) PutBlockHint(b *Buf, hint Hint) error {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.p.PutBlockHint(b, hint)
}

// ReadAt copies part of a held block into dst.
func (sh *Shared) ReadAt(b *Buf, dst []byte, off uint64) int {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return b.ReadAt(dst, off)
}

// WriteAt copies src into a held block and marks it dirty.
func (sh *Shared) WriteAt(b *Buf, src []byte, off uint64) int {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return b.WriteAt(src, off)
}

func (sh *Shared) MarkDirty(b *Buf) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.p.MarkDirty(b)
}

func (sh *Shared) MarkClean(b *Buf) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.p.MarkClean(b)
}

func (sh *Shared) IsClean(b *Buf) bool {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.p.IsClean(b)
}

func (sh *Shared) ZeroBlock(b *Buf) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.p.ZeroBlock(b)
}

func (sh *Shared) FreeBlock(dev common.Dev, bnum common.Bnum) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.p.FreeBlock(dev, bnum)
}

func (sh *Shared) FlushDevice(dev common.Dev) error {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.p.FlushDevice(dev)
}

func (sh *Shared) FlushAll() error {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.p.FlushAll()
}

func (sh *Shared) InvalidateDevice(dev common.Dev) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.p.InvalidateDevice(dev)
}

func (sh *Shared) SetBlockSize(sz uint64) error {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.p.SetBlockSize(sz)
}

func (sh *Shared) SetBuffers(n uint64) error {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.p.SetBuffers(n)
}

func (sh *Shared) Prefetch(dev common.Dev, bnums []common.Bnum) error {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.p.Prefetch(dev, bnums)
}

func (sh *Shared) Stats() Stats {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.p.Stats()
}

func (sh *Shared) BlockSize() uint64 {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return sh.p.BlockSize()
}

func (sh *Shared) WriteOpStats(w io.Writer) {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.p.WriteOpStats(w)
}

func (sh *Shared) CheckInvariants() {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	sh.p.CheckInvariants()
}
