package bcache

import (
	"io"

	"github.com/mit-pdos/go-lmfs/util/stats"
)

// Stats is a snapshot of the pool's occupancy and counters.
type Stats struct {
	Capacity  uint64
	BlockSize uint64
	Resident  uint64 // slots holding a block, orphans included
	InUse     uint64 // blocks with a holder
	Free      uint64 // slots holding nothing
	Evictable uint64 // unreferenced resident blocks (the LRU list)
	Dirty     uint64

	Hits         uint64
	Misses       uint64
	Prefetches   uint64
	Evictions    uint64
	OutOfBuffers uint64
	Reads        uint64
	Writes       uint64
	ReadErrors   uint64
	WriteErrors  uint64
	Fallbacks    uint64
	Discarded    uint64
	Flushes      uint64
}

func (p *Pool) Stats() Stats {
	var dirty uint64
	for i := range p.slots {
		s := &p.slots[i]
		if s.gen != 0 && !s.orphan && s.dirty {
			dirty++
		}
	}
	return Stats{
		Capacity:     uint64(len(p.slots)),
		BlockSize:    p.bsize,
		Resident:     p.Resident(),
		InUse:        p.inUse,
		Free:         uint64(len(p.empty)),
		Evictable:    p.lru.Len(),
		Dirty:        dirty,
		Hits:         p.cnt.hits,
		Misses:       p.cnt.misses,
		Prefetches:   p.cnt.prefetches,
		Evictions:    p.cnt.evictions,
		OutOfBuffers: p.cnt.outOfBufs,
		Reads:        p.cnt.reads,
		Writes:       p.cnt.writes,
		ReadErrors:   p.cnt.readErrors,
		WriteErrors:  p.cnt.writeErrors,
		Fallbacks:    p.cnt.fallbacks,
		Discarded:    p.cnt.discarded,
		Flushes:      p.cnt.flushes,
	}
}

// Names and values in a fixed order, for tables and metrics.
func (st Stats) Counters() ([]string, []uint64) {
	names := []string{
		"capacity", "block_size", "resident", "in_use", "free", "evictable", "dirty",
		"hits", "misses", "prefetches", "evictions", "out_of_buffers",
		"reads", "writes", "read_errors", "write_errors", "fallbacks",
		"discarded", "flushes",
	}
	vals := []uint64{
		st.Capacity, st.BlockSize, st.Resident, st.InUse, st.Free, st.Evictable, st.Dirty,
		st.Hits, st.Misses, st.Prefetches, st.Evictions, st.OutOfBuffers,
		st.Reads, st.Writes, st.ReadErrors, st.WriteErrors, st.Fallbacks,
		st.Discarded, st.Flushes,
	}
	return names, vals
}

func (st Stats) WriteTable(w io.Writer) {
	names, vals := st.Counters()
	stats.WriteCounters(names, vals, w)
}

func (p *Pool) WriteOpStats(w io.Writer) {
	stats.WriteTable(opNames, p.ops[:], w)
}

func (p *Pool) ResetOpStats() {
	for i := range p.ops {
		p.ops[i].Reset()
	}
}

// ResetStats zeroes the event counters; occupancy is unaffected.
func (p *Pool) ResetStats() {
	p.cnt = counters{}
	p.ResetOpStats()
}
