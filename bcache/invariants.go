package bcache

import (
	"github.com/mit-pdos/go-lmfs/cache"
	"github.com/mit-pdos/go-lmfs/common"
)

// CheckInvariants cross-checks the arena, the index, the LRU list and the
// free stack, panicking with an *InvariantError on the first mismatch.
func (p *Pool) CheckInvariants() {
	onEmpty := make([]bool, len(p.slots))
	for _, id := range p.empty {
		if onEmpty[id] {
			fatalf("slot %d twice on free stack", id)
		}
		onEmpty[id] = true
	}

	var inUse uint64
	for i := range p.slots {
		id := int32(i)
		s := &p.slots[i]
		if uint64(len(s.data)) != p.bsize {
			fatalf("slot %d has %d bytes, block size %d", id, len(s.data), p.bsize)
		}
		if s.ref > 0 {
			inUse++
		}
		if onEmpty[id] {
			if s.gen != 0 || s.ref != 0 || s.dev != common.NO_DEV || p.lru.Contains(id) {
				fatalf("free slot %d in use: %v", id, s)
			}
			continue
		}
		if s.gen == 0 {
			fatalf("slot %d lost: neither free nor resident", id)
		}
		if s.dirty && !s.valid {
			fatalf("slot %d dirty without content", id)
		}
		if p.lru.Contains(id) != (s.ref == 0) {
			fatalf("slot %d ref %d but lru membership %v", id, s.ref, p.lru.Contains(id))
		}
		got, ok := p.index.Lookup(s.key())
		if s.orphan {
			if s.ref == 0 || s.dirty {
				fatalf("orphan slot %d: %v", id, s)
			}
			if ok && got == id {
				fatalf("orphan slot %d still indexed", id)
			}
			continue
		}
		if !ok || got != id {
			fatalf("slot %d (%v) not indexed", id, s.key())
		}
	}
	if inUse != p.inUse {
		fatalf("in-use count %d, counted %d", p.inUse, inUse)
	}

	p.index.Apply(func(k cache.Key, id int32) {
		s := &p.slots[id]
		if s.key() != k || s.orphan || onEmpty[id] {
			fatalf("index entry %v points at slot %d: %v", k, id, s)
		}
	})

	resident := uint64(len(p.slots) - len(p.empty))
	if p.index.Len() > resident || resident > uint64(len(p.slots)) {
		fatalf("index has %d entries, %d resident of %d", p.index.Len(), resident, len(p.slots))
	}
}
